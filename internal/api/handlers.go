package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ignite/adclassify/internal/domain"
	"github.com/ignite/adclassify/internal/pkg/distlock"
	"github.com/ignite/adclassify/internal/pkg/httputil"
	"github.com/ignite/adclassify/internal/pkg/logger"
	"github.com/ignite/adclassify/internal/storage"
)

const readyTimeout = 3 * time.Second

// Health reports that the process is up.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

// Readiness runs every dependency check and reports 503 if any fails.
func (h *Handlers) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	names := make([]string, 0, len(h.Ready))
	for name := range h.Ready {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	ready := true
	for _, name := range names {
		if err := h.Ready[name](ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}
	if !ready {
		httputil.ErrorWithDetails(w, http.StatusServiceUnavailable, "not ready", checks)
		return
	}
	httputil.OK(w, map[string]any{"status": "ready", "checks": checks})
}

// GetSnapshot returns the archived snapshot for one date.
func (h *Handlers) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	date, err := time.Parse(domain.DateLayout, chi.URLParam(r, "date"))
	if err != nil {
		httputil.BadRequest(w, "date must be YYYY-MM-DD")
		return
	}

	snap, err := h.Snapshots.GetSnapshot(r.Context(), clientID, date)
	if errors.Is(err, storage.ErrNotFound) {
		httputil.NotFound(w, "no snapshot for "+clientID+" on "+date.Format(domain.DateLayout))
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, snap)
}

type runRequest struct {
	Date string `json:"date"`
}

// TriggerRun runs one client now. The body is optional; its date defaults
// to today.
func (h *Handlers) TriggerRun(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	var req runRequest
	if r.ContentLength != 0 && !httputil.Decode(w, r, &req) {
		return
	}

	date := domain.Day(h.Now())
	if req.Date != "" {
		d, err := time.Parse(domain.DateLayout, req.Date)
		if err != nil {
			httputil.BadRequest(w, "date must be YYYY-MM-DD")
			return
		}
		date = d
	}

	res, err := h.Runner.RunClient(r.Context(), clientID, date)
	if errors.Is(err, distlock.ErrLocked) {
		httputil.Error(w, http.StatusConflict, "a run for this client is already in progress")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, res.Snapshot)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
