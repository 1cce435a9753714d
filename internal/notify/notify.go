// Package notify delivers a run's alerts to people. Alerts are rendered into
// a single digest per client run.
package notify

import (
	"context"
	"strings"
	"time"

	"github.com/ignite/adclassify/internal/domain"
	"github.com/ignite/adclassify/internal/pkg/logger"
)

// Digest is everything a notifier needs about one client run.
type Digest struct {
	ClientID string
	RunID    string
	Date     time.Time
	Alerts   []domain.Alert
	Snapshot domain.ClientSnapshot
}

// Notifier delivers a digest. Implementations must be safe for concurrent
// use.
type Notifier interface {
	Notify(ctx context.Context, d Digest) error
}

// ParseSeverity maps a config string to a severity; unknown values resolve
// to INFO so nothing is silently dropped.
func ParseSeverity(s string) domain.Severity {
	switch sev := domain.Severity(strings.ToUpper(strings.TrimSpace(s))); sev {
	case domain.SeverityCritical, domain.SeverityWarning:
		return sev
	}
	return domain.SeverityInfo
}

// filterSeverity keeps alerts at min or more severe, preserving order.
func filterSeverity(alerts []domain.Alert, min domain.Severity) []domain.Alert {
	out := make([]domain.Alert, 0, len(alerts))
	for _, a := range alerts {
		if a.Severity.Rank() <= min.Rank() {
			out = append(out, a)
		}
	}
	return out
}

// LogNotifier writes alerts to the structured log. Used when no mail
// transport is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, d Digest) error {
	for _, a := range d.Alerts {
		logger.Warn("alert",
			"client_id", d.ClientID,
			"run_id", d.RunID,
			"entity", a.Key.String(),
			"type", string(a.Type),
			"severity", string(a.Severity),
			"impact", a.ImpactScore,
			"evidence", a.Evidence,
		)
	}
	return nil
}
