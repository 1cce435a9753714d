package engine

import (
	"time"

	"github.com/ignite/adclassify/internal/domain"
	"github.com/ignite/adclassify/internal/pkg/optional"
)

var testAsOf = time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time { return testAsOf.AddDate(0, 0, -n) }

func f64(v float64) *float64 { return &v }

func key(level domain.Level, id string) domain.EntityKey {
	return domain.EntityKey{ClientID: "c1", Level: level, EntityID: id}
}

// metricsWith returns an entity that has spent in both windows with every
// derived metric absent, so each test only sets what it exercises.
func metricsWith(level domain.Level, id string, mutate func(m *domain.EntityMetrics)) domain.EntityMetrics {
	m := domain.EntityMetrics{
		Key:      key(level, id),
		AsOf:     testAsOf,
		Name:     id,
		Spend7d:  1000,
		Spend14d: 2000,
	}
	if mutate != nil {
		mutate(&m)
	}
	return m
}

// scenarioA is an ad with frequency 5.2 and CPA 132 against a 14d CPA of 100.
func scenarioA(m *domain.EntityMetrics) {
	m.Spend7d = 1320
	m.Spend14d = 2320
	m.Purchases7d = 10
	m.Purchases14d = 20
	m.Frequency7d = optional.Some(5.2)
	m.CPA7d = optional.Some(132)
	m.CPA14d = optional.Some(100)
	m.CPAChangePct = optional.Delta(132, 100)
}

// strongBOFU is a stable, efficient, purchase-heavy entity.
func strongBOFU(m *domain.EntityMetrics) {
	m.Spend7d = 1000
	m.Spend14d = 2000
	m.Impressions7d = 50000
	m.Clicks7d = 1000
	m.Purchases7d = 100
	m.Purchases14d = 190
	m.AddToCart7d = 100
	m.InitiateCheckout7d = 50
	m.CTR7d = optional.Ratio(1000, 50000)
	m.ConversionRate7d = optional.Ratio(100, 1000)
	m.CPA7d = optional.Some(10)
	m.CPA14d = optional.Ratio(2000, 190)
	m.CPAChangePct = optional.Some(-5)
}

func defaultBands(level domain.Level) domain.ClientPercentiles {
	return ComputePercentiles("c1", level, nil, domain.DefaultEngineConfig())
}

func classify(m domain.EntityMetrics, children []ChildSpend) domain.EntityClassification {
	return Classify(ClassifyInput{
		Metrics:      m,
		Children:     children,
		Percentiles:  defaultBands(m.Key.Level),
		LevelSpend7d: m.Spend7d * 4,
		Config:       domain.DefaultEngineConfig(),
		Date:         testAsOf,
	})
}

func equalChildren(n int, spend float64) []ChildSpend {
	out := make([]ChildSpend, n)
	for i := range out {
		out[i] = ChildSpend{EntityID: string(rune('a' + i)), Spend7d: spend}
	}
	return out
}
