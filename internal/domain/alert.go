package domain

import "time"

// Severity ranks alerts for ordering and delivery.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
)

// Rank returns 0 for the most severe level.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	case SeverityInfo:
		return 2
	}
	return 3
}

// AlertType identifies the condition an alert reports.
type AlertType string

const (
	AlertKillRetry         AlertType = "KILL_RETRY"
	AlertLearningResetRisk AlertType = "LEARNING_RESET_RISK"
	AlertScalingBlocked    AlertType = "SCALING_BLOCKED"
	AlertCreativeFatigue   AlertType = "CREATIVE_FATIGUE"
)

// AlertStrategy selects which alert rules a run evaluates. It is passed
// explicitly into each run.
type AlertStrategy string

const (
	// AlertStrategyFull evaluates metric and classification rules.
	AlertStrategyFull AlertStrategy = "full"
	// AlertStrategyMetricsOnly evaluates only rules that need no classification.
	AlertStrategyMetricsOnly AlertStrategy = "metrics_only"
	// AlertStrategyOff disables alerting.
	AlertStrategyOff AlertStrategy = "off"
)

// ParseAlertStrategy maps a config string to a strategy; unknown values
// resolve to full.
func ParseAlertStrategy(s string) AlertStrategy {
	switch AlertStrategy(s) {
	case AlertStrategyMetricsOnly, AlertStrategyOff:
		return AlertStrategy(s)
	}
	return AlertStrategyFull
}

// Alert is a transient, per-run notification candidate.
type Alert struct {
	Key         EntityKey `json:"key"`
	EntityName  string    `json:"entity_name,omitempty"`
	Date        time.Time `json:"date"`
	Type        AlertType `json:"type"`
	Severity    Severity  `json:"severity"`
	Title       string    `json:"title"`
	Evidence    []string  `json:"evidence"`
	ImpactScore float64   `json:"impact_score"`
}

// DedupKey identifies an alert for same-day suppression.
func (a Alert) DedupKey() AlertKey {
	return AlertKey{ClientID: a.Key.ClientID, EntityID: a.Key.EntityID, Type: a.Type}
}

// AlertKey is the (client, entity, type) de-duplication key.
type AlertKey struct {
	ClientID string
	EntityID string
	Type     AlertType
}

func (k AlertKey) String() string {
	return k.ClientID + "|" + k.EntityID + "|" + string(k.Type)
}
