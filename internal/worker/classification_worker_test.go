package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ignite/adclassify/internal/alertlog"
	"github.com/ignite/adclassify/internal/domain"
	"github.com/ignite/adclassify/internal/notify"
	"github.com/ignite/adclassify/internal/pkg/distlock"
	"github.com/ignite/adclassify/internal/pkg/retry"
	"github.com/ignite/adclassify/internal/storage"
	"github.com/ignite/adclassify/internal/telemetry"
)

var (
	runDay   = time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	runClock = runDay.Add(6 * time.Hour)
)

// =============================================================================
// FAKES
// =============================================================================

type fakeConfigs struct {
	mu      sync.Mutex
	clients []string
	cfgs    map[string]domain.EngineConfig
	err     error
	listErr error
}

func (f *fakeConfigs) Get(_ context.Context, clientID string) (domain.EngineConfig, []string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.EngineConfig{}, nil, f.err
	}
	if cfg, ok := f.cfgs[clientID]; ok {
		return cfg, nil, nil
	}
	return domain.DefaultEngineConfigFor(clientID), nil, nil
}

func (f *fakeConfigs) ListActiveClients(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients, f.listErr
}

// flakyRecords fails every read for the listed clients.
type flakyRecords struct {
	*storage.Memory
	failFor map[string]bool
}

func (f flakyRecords) ListDailyRecords(ctx context.Context, clientID string, from, to time.Time) ([]domain.DailyRecord, error) {
	if f.failFor[clientID] {
		return nil, errors.New("table unavailable")
	}
	return f.Memory.ListDailyRecords(ctx, clientID, from, to)
}

type recordingNotifier struct {
	mu      sync.Mutex
	digests []notify.Digest
}

func (n *recordingNotifier) Notify(_ context.Context, d notify.Digest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.digests = append(n.digests, d)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.digests)
}

type memLock struct {
	locks *sync.Map
	key   string
}

func (l memLock) Acquire(context.Context) (bool, error) {
	_, loaded := l.locks.LoadOrStore(l.key, true)
	return !loaded, nil
}

func (l memLock) Release(context.Context) error {
	l.locks.Delete(l.key)
	return nil
}

func memLocks(locks *sync.Map) LockFactory {
	return func(key string, _ time.Duration) distlock.DistLock { return memLock{locks: locks, key: key} }
}

// =============================================================================
// FIXTURES
// =============================================================================

// clientRecords is an account with one campaign split over eight even
// adsets and one ad whose frequency and CPA climbed in the last week.
func clientRecords(clientID string) []domain.DailyRecord {
	var recs []domain.DailyRecord
	add := func(level domain.Level, id, parent string, ago int, spend, purchases float64, freq *float64) {
		recs = append(recs, domain.DailyRecord{
			Key:       domain.EntityKey{ClientID: clientID, Level: level, EntityID: id},
			Date:      runDay.AddDate(0, 0, -ago),
			Name:      id,
			ParentID:  parent,
			Spend:     spend,
			Purchases: purchases,
			Frequency: freq,
		})
	}
	high := 5.2
	for ago := 0; ago < 14; ago++ {
		add(domain.LevelAccount, "acct", "", ago, 300, 3, nil)
		add(domain.LevelCampaign, "cmp1", "acct", ago, 300, 3, nil)
		for i := 0; i < 8; i++ {
			add(domain.LevelAdset, fmt.Sprintf("as%d", i), "cmp1", ago, 37.5, 0, nil)
		}
		if ago < 7 {
			add(domain.LevelAd, "ad1", "as0", ago, 132, 1, &high)
		} else {
			add(domain.LevelAd, "ad1", "as0", ago, 68, 1, nil)
		}
	}
	return recs
}

type harness struct {
	worker   *ClassificationWorker
	store    *storage.Memory
	alerts   *alertlog.MemoryLog
	configs  *fakeConfigs
	notifier *recordingNotifier
	metrics  *telemetry.Metrics
	locks    *sync.Map
}

func newHarness(t *testing.T, clients ...string) *harness {
	t.Helper()
	h := &harness{
		store:    storage.NewMemory(),
		alerts:   alertlog.NewMemoryLog(),
		configs:  &fakeConfigs{clients: clients},
		notifier: &recordingNotifier{},
		metrics:  telemetry.New(),
		locks:    &sync.Map{},
	}
	for _, c := range clients {
		require.NoError(t, h.store.PutDailyRecords(context.Background(), clientRecords(c)))
	}
	h.worker = New(h.deps(h.store), Options{
		Interval: time.Hour,
		Retry:    retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	})
	return h
}

func (h *harness) deps(records RecordSource) Deps {
	return Deps{
		Records:   records,
		Results:   h.store,
		Snapshots: h.store,
		Alerts:    h.alerts,
		Configs:   h.configs,
		Locks:     memLocks(h.locks),
		Notifier:  h.notifier,
		Metrics:   h.metrics,
		Now:       func() time.Time { return runClock },
	}
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// CLIENT RUNS
// =============================================================================

func TestRunClient_PersistsAndNotifies(t *testing.T) {
	h := newHarness(t, "acme")
	ctx := context.Background()

	res, err := h.worker.RunClient(ctx, "acme", runDay)
	require.NoError(t, err)
	require.Len(t, res.Classifications, 11)
	require.NotEmpty(t, res.Alerts)

	stored, err := h.store.GetClassifications(ctx, "acme", runDay)
	require.NoError(t, err)
	assert.Len(t, stored, 11)

	m, ok := h.store.Metrics(domain.EntityKey{ClientID: "acme", Level: domain.LevelAd, EntityID: "ad1"})
	require.True(t, ok)
	assert.InDelta(t, 924, m.Spend7d, 1e-9)

	snap, err := h.store.GetSnapshot(ctx, "acme", runDay)
	require.NoError(t, err)
	assert.Equal(t, 11, snap.EntityCount)
	assert.NotEmpty(t, snap.RunID)
	assert.Equal(t, runClock, snap.GeneratedAt)

	fired, err := h.alerts.Fired(ctx, "acme", runDay)
	require.NoError(t, err)
	assert.Len(t, fired, len(res.Alerts))

	require.Equal(t, 1, h.notifier.count())
	assert.Equal(t, snap.RunID, h.notifier.digests[0].RunID)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Runs.WithLabelValues(telemetry.StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Decisions.WithLabelValues("ROTATE_CONCEPT", "ad")))
}

func TestRunClient_SameDayRerunIsQuiet(t *testing.T) {
	h := newHarness(t, "acme")
	ctx := context.Background()

	first, err := h.worker.RunClient(ctx, "acme", runDay)
	require.NoError(t, err)
	require.NotEmpty(t, first.Alerts)

	second, err := h.worker.RunClient(ctx, "acme", runDay)
	require.NoError(t, err)
	assert.Empty(t, second.Alerts)
	assert.Equal(t, 1, h.notifier.count())
	assert.Equal(t, first.Classifications, second.Classifications)
}

func TestRunClient_Locked(t *testing.T) {
	h := newHarness(t, "acme")
	h.locks.Store(distlock.ClientRunKey("acme", runDay), true)

	_, err := h.worker.RunClient(context.Background(), "acme", runDay)
	assert.ErrorIs(t, err, distlock.ErrLocked)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Runs.WithLabelValues(telemetry.StatusLocked)))

	_, err = h.store.GetSnapshot(context.Background(), "acme", runDay)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunClient_ConfigUnavailableFallsBackToDefaults(t *testing.T) {
	h := newHarness(t, "acme")
	h.configs.err = errors.New("connection refused")

	res, err := h.worker.RunClient(context.Background(), "acme", runDay)
	require.NoError(t, err)
	assert.Equal(t, []string{fallbackAll}, res.Snapshot.ConfigFallbacks)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ConfigFallbacks.WithLabelValues(fallbackAll)))
}

func TestRunClient_UsesClientConfig(t *testing.T) {
	h := newHarness(t, "acme")
	cfg := domain.DefaultEngineConfigFor("acme")
	cfg.Fatigue.FrequencyThreshold = 8
	h.configs.cfgs = map[string]domain.EngineConfig{"acme": cfg}

	res, err := h.worker.RunClient(context.Background(), "acme", runDay)
	require.NoError(t, err)
	for _, c := range res.Classifications {
		assert.NotEqual(t, domain.FatigueReal, c.FatigueState, c.Key.String())
	}
}

func TestRunClient_RecordsFailure(t *testing.T) {
	h := newHarness(t, "acme")
	h.worker = New(h.deps(flakyRecords{Memory: h.store, failFor: map[string]bool{"acme": true}}), h.worker.opts)

	_, err := h.worker.RunClient(context.Background(), "acme", runDay)
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Runs.WithLabelValues(telemetry.StatusFailed)))

	_, ok := h.locks.Load(distlock.ClientRunKey("acme", runDay))
	assert.False(t, ok, "lock released after failure")
}

// withBudgetSwing doubles ad1's daily budget over the last three days, which
// makes its fatigued state unstable and escalates it to KILL_RETRY.
func withBudgetSwing(recs []domain.DailyRecord) []domain.DailyRecord {
	for i, r := range recs {
		if r.Key.EntityID != "ad1" {
			continue
		}
		budget := 100.0
		if r.Date.After(runDay.AddDate(0, 0, -3)) {
			budget = 200
		}
		recs[i].DailyBudget = &budget
	}
	return recs
}

func TestRunClient_KillRetryAlertsOnlyOnFlip(t *testing.T) {
	ctx := context.Background()
	killAlerts := func(alerts []domain.Alert) int {
		n := 0
		for _, a := range alerts {
			if a.Type == domain.AlertKillRetry {
				n++
			}
		}
		return n
	}

	h := newHarness(t, "acme")
	require.NoError(t, h.store.PutDailyRecords(ctx, withBudgetSwing(clientRecords("acme"))))

	res, err := h.worker.RunClient(ctx, "acme", runDay)
	require.NoError(t, err)
	assert.Equal(t, 1, killAlerts(res.Alerts))

	// Same data, but yesterday already said KILL_RETRY.
	h = newHarness(t, "acme")
	require.NoError(t, h.store.PutDailyRecords(ctx, withBudgetSwing(clientRecords("acme"))))
	prior := domain.NeutralClassification(domain.EntityKey{ClientID: "acme", Level: domain.LevelAd, EntityID: "ad1"}, runDay.AddDate(0, 0, -1))
	prior.FinalDecision = domain.DecisionKillRetry
	require.NoError(t, h.store.PutClassifications(ctx, []domain.EntityClassification{prior}))

	res, err = h.worker.RunClient(ctx, "acme", runDay)
	require.NoError(t, err)
	assert.Equal(t, 0, killAlerts(res.Alerts))
}

// =============================================================================
// SCHEDULING
// =============================================================================

func TestRunAll_IsolatesClientFailures(t *testing.T) {
	h := newHarness(t, "acme", "globex", "initech")
	h.worker = New(h.deps(flakyRecords{Memory: h.store, failFor: map[string]bool{"globex": true}}), h.worker.opts)

	require.NoError(t, h.worker.RunAll(context.Background()))

	for _, c := range []string{"acme", "initech"} {
		_, err := h.store.GetSnapshot(context.Background(), c, runDay)
		assert.NoError(t, err, c)
	}
	_, err := h.store.GetSnapshot(context.Background(), "globex", runDay)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.Runs.WithLabelValues(telemetry.StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Runs.WithLabelValues(telemetry.StatusFailed)))
}

func TestRunAll_ListFailure(t *testing.T) {
	h := newHarness(t)
	h.configs.listErr = errors.New("db down")
	assert.Error(t, h.worker.RunAll(context.Background()))
}

func TestStartStop(t *testing.T) {
	h := newHarness(t, "acme")

	require.NoError(t, h.worker.Start())
	assert.Error(t, h.worker.Start(), "double start")

	require.Eventually(t, func() bool {
		_, err := h.store.GetSnapshot(context.Background(), "acme", runDay)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	h.worker.Stop()
	h.worker.Stop()
}
