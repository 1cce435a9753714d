package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adclassify/internal/domain"
	"github.com/ignite/adclassify/internal/pkg/optional"
)

func killRetryClassification(id string, impact float64) domain.EntityClassification {
	c := domain.NeutralClassification(key(domain.LevelAd, id), testAsOf)
	c.LearningState = domain.LearningUnstable
	c.FatigueState = domain.FatigueReal
	c.FinalDecision = domain.DecisionKillRetry
	c.Evidence = []string{"frequency 5.2 > threshold 4.0", "daily budget changed +80% over 3d (limit 50%)"}
	c.ImpactScore = impact
	return c
}

func alertTypes(alerts []domain.Alert) []domain.AlertType {
	out := make([]domain.AlertType, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, a.Type)
	}
	return out
}

func TestDetectAlerts_KillRetryDeduplicatedWithinDay(t *testing.T) {
	in := AlertInput{
		Date:            testAsOf,
		Strategy:        domain.AlertStrategyFull,
		Config:          domain.DefaultEngineConfig(),
		Classifications: []domain.EntityClassification{killRetryClassification("x", 0.4)},
	}

	first := DetectAlerts(in)
	require.Len(t, first, 1)
	assert.Equal(t, domain.AlertKillRetry, first[0].Type)
	assert.Equal(t, domain.SeverityCritical, first[0].Severity)
	assert.Equal(t, testAsOf, first[0].Date)
	assert.NotEmpty(t, first[0].Evidence)

	in.FiredToday = map[domain.AlertKey]bool{first[0].DedupKey(): true}
	second := DetectAlerts(in)
	assert.Empty(t, second)
}

func TestDetectAlerts_KillRetryOnlyOnFlip(t *testing.T) {
	c := killRetryClassification("x", 0.4)
	in := AlertInput{
		Date:            testAsOf,
		Strategy:        domain.AlertStrategyFull,
		Config:          domain.DefaultEngineConfig(),
		Classifications: []domain.EntityClassification{c},
		PriorDecisions:  map[domain.EntityKey]domain.Decision{c.Key: domain.DecisionKillRetry},
	}
	assert.Empty(t, DetectAlerts(in))

	in.PriorDecisions[c.Key] = domain.DecisionRotateConcept
	assert.Equal(t, []domain.AlertType{domain.AlertKillRetry}, alertTypes(DetectAlerts(in)))
}

func TestDetectAlerts_Rules(t *testing.T) {
	exploiting := domain.NeutralClassification(key(domain.LevelAdset, "scale"), testAsOf)
	exploiting.LearningState = domain.LearningExploitation
	exploiting.ImpactScore = 0.3

	rotating := domain.NeutralClassification(key(domain.LevelAd, "tired"), testAsOf)
	rotating.FatigueState = domain.FatigueReal
	rotating.FinalDecision = domain.DecisionRotateConcept
	rotating.Evidence = []string{"frequency 5.2 > threshold 4.0"}
	rotating.ImpactScore = 0.2

	metrics := []domain.EntityMetrics{
		metricsWith(domain.LevelCampaign, "swing", func(m *domain.EntityMetrics) {
			m.BudgetChange3dPct = optional.Some(-65)
		}),
		metricsWith(domain.LevelCampaign, "calm", func(m *domain.EntityMetrics) {
			m.Spend7d = 3000
			m.BudgetChange3dPct = optional.Some(40)
		}),
		metricsWith(domain.LevelAdset, "scale", func(m *domain.EntityMetrics) {
			m.Frequency7d = optional.Some(3.4)
		}),
		metricsWith(domain.LevelAd, "tired", nil),
	}

	alerts := DetectAlerts(AlertInput{
		Date:            testAsOf,
		Strategy:        domain.AlertStrategyFull,
		Config:          domain.DefaultEngineConfig(),
		Metrics:         metrics,
		Classifications: []domain.EntityClassification{exploiting, rotating},
	})

	require.Len(t, alerts, 3)

	assert.Equal(t, domain.AlertLearningResetRisk, alerts[0].Type)
	assert.Equal(t, "swing", alerts[0].Key.EntityID)
	assert.Equal(t, domain.SeverityWarning, alerts[0].Severity)
	assert.InDelta(t, 0.25, alerts[0].ImpactScore, 1e-9)
	assert.Contains(t, alerts[0].Evidence[0], "-65%")

	assert.Equal(t, domain.AlertCreativeFatigue, alerts[1].Type)
	assert.Equal(t, domain.SeverityWarning, alerts[1].Severity)

	assert.Equal(t, domain.AlertScalingBlocked, alerts[2].Type)
	assert.Equal(t, domain.SeverityInfo, alerts[2].Severity)
	assert.Contains(t, alerts[2].Evidence[0], "frequency 3.4 > ceiling 3.0")
}

func TestDetectAlerts_OrderBySeverityThenImpact(t *testing.T) {
	lowKill := killRetryClassification("low", 0.1)
	highKill := killRetryClassification("high", 0.6)
	exploiting := domain.NeutralClassification(key(domain.LevelAd, "big"), testAsOf)
	exploiting.LearningState = domain.LearningExploitation
	exploiting.ImpactScore = 0.9

	alerts := DetectAlerts(AlertInput{
		Date:     testAsOf,
		Strategy: domain.AlertStrategyFull,
		Config:   domain.DefaultEngineConfig(),
		Metrics: []domain.EntityMetrics{
			metricsWith(domain.LevelAd, "big", func(m *domain.EntityMetrics) { m.Frequency7d = optional.Some(6) }),
		},
		Classifications: []domain.EntityClassification{exploiting, lowKill, highKill},
	})

	require.Len(t, alerts, 3)
	assert.Equal(t, "high", alerts[0].Key.EntityID)
	assert.Equal(t, domain.AlertKillRetry, alerts[0].Type)
	assert.Equal(t, "low", alerts[1].Key.EntityID)
	assert.Equal(t, domain.SeverityInfo, alerts[2].Severity)
	for i := 1; i < len(alerts); i++ {
		assert.LessOrEqual(t, alerts[i-1].Severity.Rank(), alerts[i].Severity.Rank())
	}
}

func TestDetectAlerts_Strategy(t *testing.T) {
	in := AlertInput{
		Date:   testAsOf,
		Config: domain.DefaultEngineConfig(),
		Metrics: []domain.EntityMetrics{
			metricsWith(domain.LevelCampaign, "swing", func(m *domain.EntityMetrics) {
				m.BudgetChange3dPct = optional.Some(90)
			}),
		},
		Classifications: []domain.EntityClassification{killRetryClassification("x", 0.5)},
	}

	tests := []struct {
		strategy domain.AlertStrategy
		want     []domain.AlertType
	}{
		{domain.AlertStrategyFull, []domain.AlertType{domain.AlertKillRetry, domain.AlertLearningResetRisk}},
		{domain.AlertStrategyMetricsOnly, []domain.AlertType{domain.AlertLearningResetRisk}},
		{domain.AlertStrategyOff, []domain.AlertType{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			in.Strategy = tt.strategy
			assert.Equal(t, tt.want, alertTypes(DetectAlerts(in)))
		})
	}
}

func TestParseAlertStrategy(t *testing.T) {
	assert.Equal(t, domain.AlertStrategyOff, domain.ParseAlertStrategy("off"))
	assert.Equal(t, domain.AlertStrategyMetricsOnly, domain.ParseAlertStrategy("metrics_only"))
	assert.Equal(t, domain.AlertStrategyFull, domain.ParseAlertStrategy(""))
	assert.Equal(t, domain.AlertStrategyFull, domain.ParseAlertStrategy("legacy"))
}
