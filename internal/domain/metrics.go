package domain

import (
	"time"

	"github.com/ignite/adclassify/internal/pkg/optional"
)

// EntityMetrics is the rolling aggregate for one entity. It is recomputed
// every sync cycle and overwritten in place.
type EntityMetrics struct {
	Key       EntityKey `json:"key"`
	AsOf      time.Time `json:"as_of"`
	Name      string    `json:"name,omitempty"`
	ParentID  string    `json:"parent_id,omitempty"`
	ConceptID string    `json:"concept_id,omitempty"`
	DaysSeen  int       `json:"days_seen"`

	Spend7d           float64 `json:"spend_7d"`
	Spend14d          float64 `json:"spend_14d"`
	Impressions7d     int64   `json:"impressions_7d"`
	Clicks7d          int64   `json:"clicks_7d"`
	Purchases7d       float64 `json:"purchases_7d"`
	Purchases14d      float64 `json:"purchases_14d"`
	ConversionValue7d float64 `json:"conversion_value_7d"`

	ViewContent7d      float64 `json:"view_content_7d"`
	AddToCart7d        float64 `json:"add_to_cart_7d"`
	InitiateCheckout7d float64 `json:"initiate_checkout_7d"`

	CPA7d            optional.Float `json:"cpa_7d"`
	CPA14d           optional.Float `json:"cpa_14d"`
	ROAS7d           optional.Float `json:"roas_7d"`
	CTR7d            optional.Float `json:"ctr_7d"`
	ConversionRate7d optional.Float `json:"conversion_rate_7d"`
	Frequency7d      optional.Float `json:"frequency_7d"`
	HookRate7d       optional.Float `json:"hook_rate_7d"`
	HookRate14d      optional.Float `json:"hook_rate_14d"`

	HookRateDeltaPct  optional.Float `json:"hook_rate_delta_pct"`
	CPAChangePct      optional.Float `json:"cpa_change_pct"`
	BudgetChange3dPct optional.Float `json:"budget_change_3d_pct"`
	PerformanceCV7d   optional.Float `json:"performance_cv_7d"`
}

// HasBOFUSignals reports whether any bottom-of-funnel event occurred in 7d.
func (m EntityMetrics) HasBOFUSignals() bool {
	return m.AddToCart7d+m.InitiateCheckout7d+m.Purchases7d > 0
}

// FunnelRevenueRatio is the share of funnel actions that reached a purchase.
func (m EntityMetrics) FunnelRevenueRatio() optional.Float {
	return optional.Ratio(m.Purchases7d, m.AddToCart7d+m.InitiateCheckout7d+m.Purchases7d)
}

// InverseCPA is purchases per unit of spend over 7d.
func (m EntityMetrics) InverseCPA() optional.Float {
	return optional.Ratio(m.Purchases7d, m.Spend7d)
}

// PercentileMetric names one of the normalized metrics banded per client.
type PercentileMetric string

const (
	MetricFunnelRevenueRatio PercentileMetric = "funnel_revenue_ratio"
	MetricConversionRate     PercentileMetric = "conversion_rate"
	MetricInverseCPA         PercentileMetric = "inverse_cpa"
	MetricCTR                PercentileMetric = "ctr"
)

// AllPercentileMetrics returns the banded metrics in a fixed order.
func AllPercentileMetrics() []PercentileMetric {
	return []PercentileMetric{MetricFunnelRevenueRatio, MetricConversionRate, MetricInverseCPA, MetricCTR}
}

// Value extracts the named metric from m.
func (m EntityMetrics) Value(pm PercentileMetric) optional.Float {
	switch pm {
	case MetricFunnelRevenueRatio:
		return m.FunnelRevenueRatio()
	case MetricConversionRate:
		return m.ConversionRate7d
	case MetricInverseCPA:
		return m.InverseCPA()
	case MetricCTR:
		return m.CTR7d
	}
	return optional.None()
}

// PercentileBand holds the p10/p90 cut points of one metric.
type PercentileBand struct {
	P10        float64 `json:"p10"`
	P90        float64 `json:"p90"`
	SampleSize int     `json:"sample_size"`
	Fallback   bool    `json:"fallback"`
}

// Normalize maps v onto [0,1] relative to the band. On a degenerate band
// (no spread) a value equal to it sits at 0.5.
func (b PercentileBand) Normalize(v float64) float64 {
	if b.P90 <= b.P10 {
		switch {
		case v > b.P90:
			return 1
		case v < b.P10:
			return 0
		}
		return 0.5
	}
	n := (v - b.P10) / (b.P90 - b.P10)
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}

// DefaultPercentileBands are used for a metric when the client has too few
// active entities to derive a meaningful band.
func DefaultPercentileBands() map[PercentileMetric]PercentileBand {
	return map[PercentileMetric]PercentileBand{
		MetricFunnelRevenueRatio: {P10: 0.05, P90: 0.40, Fallback: true},
		MetricConversionRate:     {P10: 0.005, P90: 0.05, Fallback: true},
		MetricInverseCPA:         {P10: 0.005, P90: 0.05, Fallback: true},
		MetricCTR:                {P10: 0.005, P90: 0.03, Fallback: true},
	}
}

// ClientPercentiles are the per-client bands computed once per run and
// shared read-only across all entities of that client.
type ClientPercentiles struct {
	ClientID string                              `json:"client_id"`
	Level    Level                               `json:"level"`
	Bands    map[PercentileMetric]PercentileBand `json:"bands"`
}

// Band returns the band for pm, falling back to the documented default.
func (p ClientPercentiles) Band(pm PercentileMetric) PercentileBand {
	if b, ok := p.Bands[pm]; ok {
		return b
	}
	return DefaultPercentileBands()[pm]
}

// Fallback reports whether every band came from the defaults.
func (p ClientPercentiles) Fallback() bool {
	for _, pm := range AllPercentileMetrics() {
		if !p.Band(pm).Fallback {
			return false
		}
	}
	return true
}
