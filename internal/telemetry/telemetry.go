// Package telemetry exposes classification run metrics to Prometheus.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ignite/adclassify/internal/domain"
)

const namespace = "adclassify"

// Run statuses.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusLocked  = "locked"
	StatusTimeout = "timeout"
)

// Metrics holds every collector the service reports. Each instance owns its
// registry so tests and multiple workers never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	Runs            *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	Decisions       *prometheus.CounterVec
	Alerts          *prometheus.CounterVec
	SkippedRecords  prometheus.Counter
	ConfigFallbacks *prometheus.CounterVec
	LastSuccess     *prometheus.GaugeVec
}

// New creates and registers the collectors, plus Go and process metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Client classification runs by outcome.",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of one client run including I/O.",
			Buckets:   prometheus.DefBuckets,
		}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_classified_total",
			Help:      "Entities classified by final decision and level.",
		}, []string{"decision", "level"}),
		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts emitted by type and severity.",
		}, []string{"type", "severity"}),
		SkippedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_records_total",
			Help:      "Malformed daily records excluded from aggregation.",
		}),
		ConfigFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_fallbacks_total",
			Help:      "Engine config fields replaced by their default.",
		}, []string{"field"}),
		LastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run per client.",
		}, []string{"client_id"}),
	}
	reg.MustRegister(
		m.Runs, m.RunDuration, m.Decisions, m.Alerts,
		m.SkippedRecords, m.ConfigFallbacks, m.LastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RunFinished records the outcome of one client run.
func (m *Metrics) RunFinished(status string, elapsed time.Duration) {
	m.Runs.WithLabelValues(status).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
}

// Classified records a successful run's classifications, alerts and data
// quality counters.
func (m *Metrics) Classified(clientID string, at time.Time, classifications []domain.EntityClassification, alerts []domain.Alert, skipped int, fallbacks []string) {
	for _, c := range classifications {
		m.Decisions.WithLabelValues(string(c.FinalDecision), string(c.Key.Level)).Inc()
	}
	for _, a := range alerts {
		m.Alerts.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
	}
	m.SkippedRecords.Add(float64(skipped))
	for _, f := range fallbacks {
		m.ConfigFallbacks.WithLabelValues(f).Inc()
	}
	m.LastSuccess.WithLabelValues(clientID).Set(float64(at.Unix()))
}
