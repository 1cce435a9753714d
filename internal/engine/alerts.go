package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/ignite/adclassify/internal/domain"
)

// AlertInput is one client's state for alert detection.
//
// PriorDecisions holds the previous day's final decision per entity and is
// used to detect flips into KILL_RETRY. FiredToday is the set of alerts
// already emitted earlier on the same day; matching candidates are dropped.
type AlertInput struct {
	Date            time.Time
	Strategy        domain.AlertStrategy
	Config          domain.EngineConfig
	Metrics         []domain.EntityMetrics
	Classifications []domain.EntityClassification
	PriorDecisions  map[domain.EntityKey]domain.Decision
	FiredToday      map[domain.AlertKey]bool
}

// DetectAlerts scans rolling metrics and classifications for threshold
// crossings and returns the de-duplicated alerts ordered by severity, then
// impact descending. It performs no I/O.
func DetectAlerts(in AlertInput) []domain.Alert {
	if in.Strategy == domain.AlertStrategyOff {
		return nil
	}
	date := domain.Day(in.Date)
	cfg := in.Config

	levelSpend := make(map[domain.Level]float64)
	for _, m := range in.Metrics {
		levelSpend[m.Key.Level] += m.Spend7d
	}

	var candidates []domain.Alert
	emit := func(a domain.Alert) {
		a.Date = date
		if in.FiredToday[a.DedupKey()] {
			return
		}
		candidates = append(candidates, a)
	}

	// Metric-only rules.
	for _, m := range in.Metrics {
		limit := cfg.Alerts.LearningResetBudgetChangePct
		if !m.BudgetChange3dPct.Abs().GreaterThan(limit) {
			continue
		}
		v := m.BudgetChange3dPct.Or(0)
		emit(domain.Alert{
			Key:         m.Key,
			EntityName:  m.Name,
			Type:        domain.AlertLearningResetRisk,
			Severity:    domain.SeverityWarning,
			Title:       fmt.Sprintf("Learning reset risk: %s budget changed %+.0f%%", m.Key.Level, v),
			Evidence:    []string{fmt.Sprintf("daily budget changed %+.0f%% over 3d (limit %.0f%%)", v, limit)},
			ImpactScore: round4(clamp01(ratioOrZero(m.Spend7d, levelSpend[m.Key.Level]))),
		})
	}

	if in.Strategy == domain.AlertStrategyMetricsOnly {
		return orderAlerts(candidates)
	}

	metrics := make(map[domain.EntityKey]domain.EntityMetrics, len(in.Metrics))
	for _, m := range in.Metrics {
		metrics[m.Key] = m
	}

	for _, c := range in.Classifications {
		m := metrics[c.Key]

		if c.FinalDecision == domain.DecisionKillRetry && in.PriorDecisions[c.Key] != domain.DecisionKillRetry {
			emit(domain.Alert{
				Key:         c.Key,
				EntityName:  c.Name,
				Type:        domain.AlertKillRetry,
				Severity:    domain.SeverityCritical,
				Title:       fmt.Sprintf("Kill and retry: %s %s is fatigued while unstable", c.Key.Level, displayName(c)),
				Evidence:    c.Evidence,
				ImpactScore: c.ImpactScore,
			})
		}

		if c.LearningState == domain.LearningExploitation && m.Frequency7d.GreaterThan(cfg.Alerts.ScalingFrequencyMax) {
			emit(domain.Alert{
				Key:        c.Key,
				EntityName: c.Name,
				Type:       domain.AlertScalingBlocked,
				Severity:   domain.SeverityInfo,
				Title:      fmt.Sprintf("Scaling opportunity blocked by frequency ceiling on %s", displayName(c)),
				Evidence: []string{fmt.Sprintf("exploiting at frequency %.1f > ceiling %.1f",
					m.Frequency7d.Or(0), cfg.Alerts.ScalingFrequencyMax)},
				ImpactScore: c.ImpactScore,
			})
		}

		if c.FatigueState == domain.FatigueReal && c.FinalDecision != domain.DecisionKillRetry {
			emit(domain.Alert{
				Key:         c.Key,
				EntityName:  c.Name,
				Type:        domain.AlertCreativeFatigue,
				Severity:    domain.SeverityWarning,
				Title:       fmt.Sprintf("Creative fatigue on %s", displayName(c)),
				Evidence:    c.Evidence,
				ImpactScore: c.ImpactScore,
			})
		}
	}
	return orderAlerts(candidates)
}

func orderAlerts(alerts []domain.Alert) []domain.Alert {
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() < b.Severity.Rank()
		}
		if a.ImpactScore != b.ImpactScore {
			return a.ImpactScore > b.ImpactScore
		}
		if a.Key != b.Key {
			return a.Key.Less(b.Key)
		}
		return a.Type < b.Type
	})
	return alerts
}

func displayName(c domain.EntityClassification) string {
	if c.Name != "" {
		return c.Name
	}
	return c.Key.EntityID
}
