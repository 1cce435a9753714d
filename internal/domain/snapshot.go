package domain

import (
	"time"

	"github.com/ignite/adclassify/internal/pkg/optional"
)

// ClientSnapshot is the per-client rollup written after every run. It is
// what the dashboard and report generator read.
type ClientSnapshot struct {
	ClientID    string    `json:"client_id"`
	RunID       string    `json:"run_id"`
	Date        time.Time `json:"date"`
	GeneratedAt time.Time `json:"generated_at"`

	Spend7d     float64        `json:"spend_7d"`
	Spend14d    float64        `json:"spend_14d"`
	Purchases7d float64        `json:"purchases_7d"`
	CPA7d       optional.Float `json:"cpa_7d"`
	ROAS7d      optional.Float `json:"roas_7d"`

	EntityCount     int                 `json:"entity_count"`
	DecisionCounts  map[Decision]int    `json:"decision_counts"`
	Findings        []Finding           `json:"findings"`
	Alerts          []Alert             `json:"alerts"`
	SkippedRecords  int                 `json:"skipped_records"`
	ConfigFallbacks []string            `json:"config_fallbacks,omitempty"`
	PercentileBands []ClientPercentiles `json:"percentile_bands"`
}

// Finding is one actionable classification surfaced in the snapshot.
type Finding struct {
	Key         EntityKey `json:"key"`
	Name        string    `json:"name,omitempty"`
	Decision    Decision  `json:"decision"`
	Evidence    []string  `json:"evidence"`
	ImpactScore float64   `json:"impact_score"`
	Confidence  float64   `json:"confidence"`
}
