package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ignite/adclassify/internal/domain"
	"github.com/ignite/adclassify/internal/engine"
	"github.com/ignite/adclassify/internal/notify"
	"github.com/ignite/adclassify/internal/pkg/distlock"
	"github.com/ignite/adclassify/internal/pkg/logger"
	"github.com/ignite/adclassify/internal/pkg/retry"
	"github.com/ignite/adclassify/internal/telemetry"
)

// =============================================================================
// CLASSIFICATION WORKER
// =============================================================================
// Every interval the worker lists active clients and runs each one through
// the engine under a per-client lock. Clients run concurrently up to the
// configured limit; one client's failure never stops the others.

const (
	DefaultInterval    = time.Hour
	DefaultRunTimeout  = 2 * time.Minute
	DefaultLockTTL     = 5 * time.Minute
	DefaultConcurrency = 4
)

// fallbackAll is reported when the whole stored config was unreadable.
const fallbackAll = "engine_config"

// Options tunes scheduling. Zero values take the defaults above.
type Options struct {
	Interval    time.Duration
	RunTimeout  time.Duration
	LockTTL     time.Duration
	Concurrency int
	Strategy    domain.AlertStrategy
	Retry       retry.Policy
}

// Deps are the worker's collaborators. Notifier and Metrics are optional.
type Deps struct {
	Records   RecordSource
	Results   ResultStore
	Snapshots SnapshotArchive
	Alerts    AlertLog
	Configs   ConfigProvider
	Locks     LockFactory
	Notifier  notify.Notifier
	Metrics   *telemetry.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
}

// ClassificationWorker runs scheduled classification for all clients.
type ClassificationWorker struct {
	deps Deps
	opts Options

	// Stats
	runsOK     int64
	runsFailed int64

	// Control
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// New creates a worker. It does not start scheduling until Start is called.
func New(deps Deps, opts Options) *ClassificationWorker {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = DefaultRunTimeout
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Strategy == "" {
		opts.Strategy = domain.AlertStrategyFull
	}
	if opts.Retry == (retry.Policy{}) {
		opts.Retry = retry.DefaultPolicy()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.LogNotifier{}
	}
	return &ClassificationWorker{deps: deps, opts: opts}
}

// Start runs one pass immediately and then one per interval until Stop.
func (w *ClassificationWorker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("classification worker already running")
	}
	w.running = true

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	logger.Info("classification worker starting",
		"interval", w.opts.Interval.String(), "concurrency", w.opts.Concurrency, "strategy", string(w.opts.Strategy))

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Stop cancels in-flight runs and waits for the loop to exit.
func (w *ClassificationWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()
	logger.Info("classification worker stopped",
		"runs_ok", atomic.LoadInt64(&w.runsOK), "runs_failed", atomic.LoadInt64(&w.runsFailed))
}

func (w *ClassificationWorker) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		if err := w.RunAll(ctx); err != nil && ctx.Err() == nil {
			logger.Error("classification pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunAll runs every active client for today. Per-client failures are logged
// and counted; the returned error only reports a failure to list clients.
func (w *ClassificationWorker) RunAll(ctx context.Context) error {
	var clients []string
	err := retry.Do(ctx, w.opts.Retry, "configs.ListActiveClients", func(ctx context.Context) error {
		var err error
		clients, err = w.deps.Configs.ListActiveClients(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("list active clients: %w", err)
	}

	date := domain.Day(w.deps.Now())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.Concurrency)
	for _, clientID := range clients {
		g.Go(func() error {
			// Errors stay per client so the group never cancels siblings.
			_, _ = w.RunClient(gctx, clientID, date)
			return nil
		})
	}
	return g.Wait()
}

// RunClient runs one client for one date under its lock and persists the
// results. It returns distlock.ErrLocked when another worker holds the run.
func (w *ClassificationWorker) RunClient(ctx context.Context, clientID string, date time.Time) (*engine.RunResult, error) {
	start := w.deps.Now()
	date = domain.Day(date)
	runID := uuid.New().String()
	log := logger.With("client_id", clientID, "run_id", runID, "date", date.Format(domain.DateLayout))

	ctx, cancel := context.WithTimeout(ctx, w.opts.RunTimeout)
	defer cancel()

	var res engine.RunResult
	lock := w.deps.Locks(distlock.ClientRunKey(clientID, date), w.opts.LockTTL)
	err := distlock.Run(ctx, lock, func(ctx context.Context) error {
		var err error
		res, err = w.runLocked(ctx, clientID, runID, date)
		return err
	})

	status := telemetry.StatusOK
	switch {
	case errors.Is(err, distlock.ErrLocked):
		status = telemetry.StatusLocked
		log.Infow("client run already in progress elsewhere")
	case err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		status = telemetry.StatusTimeout
		atomic.AddInt64(&w.runsFailed, 1)
		log.Errorw("client run timed out", "timeout", w.opts.RunTimeout.String())
	case err != nil:
		status = telemetry.StatusFailed
		atomic.AddInt64(&w.runsFailed, 1)
		log.Errorw("client run failed", "error", err)
	default:
		atomic.AddInt64(&w.runsOK, 1)
		log.Infow("client run complete",
			"entities", len(res.Classifications), "alerts", len(res.Alerts), "skipped", len(res.Skipped),
			"elapsed", w.deps.Now().Sub(start).String())
	}
	if w.deps.Metrics != nil {
		w.deps.Metrics.RunFinished(status, w.deps.Now().Sub(start))
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (w *ClassificationWorker) runLocked(ctx context.Context, clientID, runID string, date time.Time) (engine.RunResult, error) {
	in, err := w.load(ctx, clientID, runID, date)
	if err != nil {
		return engine.RunResult{}, err
	}

	res := engine.RunClient(in)
	for _, skipped := range res.Skipped {
		logger.Warn("skipped malformed record", "client_id", clientID, "run_id", runID, "error", skipped)
	}

	if err := w.persist(ctx, res); err != nil {
		return engine.RunResult{}, err
	}

	if len(res.Alerts) > 0 {
		if err := w.do(ctx, "alerts.Record", func(ctx context.Context) error {
			return w.deps.Alerts.Record(ctx, clientID, date, res.Alerts)
		}); err != nil {
			return engine.RunResult{}, fmt.Errorf("record alerts: %w", err)
		}
		// Delivery problems never fail the run; the results are already saved.
		if err := w.deps.Notifier.Notify(ctx, notify.Digest{
			ClientID: clientID,
			RunID:    runID,
			Date:     date,
			Alerts:   res.Alerts,
			Snapshot: res.Snapshot,
		}); err != nil {
			logger.Error("alert delivery failed", "client_id", clientID, "run_id", runID, "error", err)
		}
	}

	if w.deps.Metrics != nil {
		w.deps.Metrics.Classified(clientID, w.deps.Now(), res.Classifications, res.Alerts,
			len(res.Skipped), in.ConfigFallbacks)
	}
	return res, nil
}

// load gathers the run input. A config that cannot be read falls back to
// defaults; everything else is required.
func (w *ClassificationWorker) load(ctx context.Context, clientID, runID string, date time.Time) (engine.RunInput, error) {
	in := engine.RunInput{
		ClientID: clientID,
		RunID:    runID,
		Date:     date,
		Strategy: w.opts.Strategy,
	}

	err := w.do(ctx, "configs.Get", func(ctx context.Context) error {
		var err error
		in.Config, in.ConfigFallbacks, err = w.deps.Configs.Get(ctx, clientID)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return in, ctx.Err()
		}
		logger.Warn("engine config unavailable, using defaults", "client_id", clientID, "error", err)
		in.Config = domain.DefaultEngineConfigFor(clientID)
		in.ConfigFallbacks = []string{fallbackAll}
	}

	from := date.AddDate(0, 0, -(engine.HistoryDays - 1))
	if err := w.do(ctx, "records.List", func(ctx context.Context) error {
		var err error
		in.Records, err = w.deps.Records.ListDailyRecords(ctx, clientID, from, date)
		return err
	}); err != nil {
		return in, fmt.Errorf("load records: %w", err)
	}

	var prior []domain.EntityClassification
	if err := w.do(ctx, "results.GetClassifications", func(ctx context.Context) error {
		var err error
		prior, err = w.deps.Results.GetClassifications(ctx, clientID, date.AddDate(0, 0, -1))
		return err
	}); err != nil {
		return in, fmt.Errorf("load prior classifications: %w", err)
	}
	in.PriorDecisions = make(map[domain.EntityKey]domain.Decision, len(prior))
	for _, c := range prior {
		in.PriorDecisions[c.Key] = c.FinalDecision
	}

	if err := w.do(ctx, "alerts.Fired", func(ctx context.Context) error {
		var err error
		in.FiredToday, err = w.deps.Alerts.Fired(ctx, clientID, date)
		return err
	}); err != nil {
		return in, fmt.Errorf("load fired alerts: %w", err)
	}

	in.Now = w.deps.Now()
	return in, nil
}

// persist writes metrics and classifications before the snapshot so a
// snapshot never points at results that are missing.
func (w *ClassificationWorker) persist(ctx context.Context, res engine.RunResult) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.do(gctx, "results.PutMetrics", func(ctx context.Context) error {
			return w.deps.Results.PutMetrics(ctx, res.Metrics)
		})
	})
	g.Go(func() error {
		return w.do(gctx, "results.PutClassifications", func(ctx context.Context) error {
			return w.deps.Results.PutClassifications(ctx, res.Classifications)
		})
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("persist results: %w", err)
	}

	if err := w.do(ctx, "snapshots.Put", func(ctx context.Context) error {
		return w.deps.Snapshots.PutSnapshot(ctx, res.Snapshot)
	}); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

func (w *ClassificationWorker) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, w.opts.Retry, op, fn)
}
