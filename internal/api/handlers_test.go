package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adclassify/internal/domain"
	"github.com/ignite/adclassify/internal/engine"
	"github.com/ignite/adclassify/internal/pkg/distlock"
	"github.com/ignite/adclassify/internal/storage"
)

var testDay = time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)

type stubRunner struct {
	gotClient string
	gotDate   time.Time
	err       error
}

func (s *stubRunner) RunClient(_ context.Context, clientID string, date time.Time) (*engine.RunResult, error) {
	s.gotClient, s.gotDate = clientID, date
	if s.err != nil {
		return nil, s.err
	}
	return &engine.RunResult{Snapshot: domain.ClientSnapshot{ClientID: clientID, Date: date, EntityCount: 3}}, nil
}

func newTestRouter(t *testing.T) (http.Handler, *stubRunner, *storage.Memory) {
	t.Helper()
	runner := &stubRunner{}
	snaps := storage.NewMemory()
	h := &Handlers{
		Snapshots: snaps,
		Runner:    runner,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, "adclassify_runs_total 1")
		}),
		Now: func() time.Time { return testDay.Add(9 * time.Hour) },
	}
	return SetupRoutes(h, []string{"https://ops.example.com"}), runner, snaps
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	h, _, _ := newTestRouter(t)
	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestReadiness(t *testing.T) {
	handlers := &Handlers{Ready: map[string]ReadyCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}}
	h := SetupRoutes(handlers, nil)

	rec := do(t, h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "not ready", body["error"])
	checks := body["details"].(map[string]any)
	assert.Equal(t, "ok", checks["postgres"])
	assert.Equal(t, "connection refused", checks["redis"])

	handlers.Ready["redis"] = func(context.Context) error { return nil }
	rec = do(t, h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode(t, rec)["status"])
}

func TestMetricsMounted(t *testing.T) {
	h, _, _ := newTestRouter(t)
	rec := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "adclassify_runs_total")
}

func TestOptionalRoutesNotMounted(t *testing.T) {
	h := SetupRoutes(&Handlers{}, nil)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/metrics", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/clients/acme/snapshots/2026-10-14", "").Code)
}

func TestGetSnapshot(t *testing.T) {
	h, _, snaps := newTestRouter(t)
	require.NoError(t, snaps.PutSnapshot(context.Background(), domain.ClientSnapshot{
		ClientID: "acme", Date: testDay, Spend7d: 2100,
	}))

	rec := do(t, h, http.MethodGet, "/v1/clients/acme/snapshots/2026-10-14", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2100.0, decode(t, rec)["spend_7d"])

	rec = do(t, h, http.MethodGet, "/v1/clients/acme/snapshots/2026-10-13", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/clients/acme/snapshots/yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerRun(t *testing.T) {
	h, runner, _ := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/v1/clients/acme/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acme", runner.gotClient)
	assert.Equal(t, testDay, runner.gotDate)
	assert.Equal(t, 3.0, decode(t, rec)["entity_count"])

	rec = do(t, h, http.MethodPost, "/v1/clients/acme/runs", `{"date":"2026-10-01"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), runner.gotDate)

	rec = do(t, h, http.MethodPost, "/v1/clients/acme/runs", `{"date":"10/01"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/clients/acme/runs", `{"date":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerRun_Failure(t *testing.T) {
	h, runner, _ := newTestRouter(t)
	runner.err = errors.New("dynamodb throttled")

	rec := do(t, h, http.MethodPost, "/v1/clients/acme/runs", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "dynamodb")
}

func TestTriggerRun_Locked(t *testing.T) {
	h, runner, _ := newTestRouter(t)
	runner.err = fmt.Errorf("run acme: %w", distlock.ErrLocked)

	rec := do(t, h, http.MethodPost, "/v1/clients/acme/runs", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h, _, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/v1/clients/acme/runs", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://ops.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
