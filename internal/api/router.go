// Package api serves the operational endpoints: health, readiness, metrics,
// on-demand runs and archived snapshot lookups.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/adclassify/internal/domain"
	"github.com/ignite/adclassify/internal/engine"
)

// SnapshotReader loads archived client snapshots.
type SnapshotReader interface {
	GetSnapshot(ctx context.Context, clientID string, date time.Time) (*domain.ClientSnapshot, error)
}

// Runner triggers an on-demand client run.
type Runner interface {
	RunClient(ctx context.Context, clientID string, date time.Time) (*engine.RunResult, error)
}

// ReadyCheck reports whether one dependency is usable.
type ReadyCheck func(ctx context.Context) error

// Handlers holds the collaborators behind the routes. Any of them may be
// nil, in which case the matching routes are not mounted.
type Handlers struct {
	Snapshots SnapshotReader
	Runner    Runner
	Metrics   http.Handler
	Ready     map[string]ReadyCheck
	Now       func() time.Time
}

// SetupRoutes configures all routes.
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	if h.Now == nil {
		h.Now = time.Now
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(requestLogger)

	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", h.Health)
	r.Get("/readyz", h.Readiness)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}

	r.Route("/v1/clients/{clientID}", func(r chi.Router) {
		if h.Snapshots != nil {
			r.Get("/snapshots/{date}", h.GetSnapshot)
		}
		if h.Runner != nil {
			r.Post("/runs", h.TriggerRun)
		}
	})

	return r
}
