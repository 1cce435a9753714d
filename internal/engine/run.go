package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/ignite/adclassify/internal/domain"
	"github.com/ignite/adclassify/internal/pkg/optional"
)

// RunInput is everything one client run needs. The caller loads it from the
// storage collaborators; RunClient itself does no I/O.
type RunInput struct {
	ClientID        string
	RunID           string
	Date            time.Time
	Now             time.Time
	Records         []domain.DailyRecord
	Config          domain.EngineConfig
	ConfigFallbacks []string
	Strategy        domain.AlertStrategy
	PriorDecisions  map[domain.EntityKey]domain.Decision
	FiredToday      map[domain.AlertKey]bool
}

// RunResult is the output of one client run.
type RunResult struct {
	Metrics         []domain.EntityMetrics
	Classifications []domain.EntityClassification
	Percentiles     []domain.ClientPercentiles
	Alerts          []domain.Alert
	Snapshot        domain.ClientSnapshot
	// Skipped lists why each malformed record was dropped.
	Skipped []error
}

// RunClient runs the full pipeline for one client: validate records,
// aggregate, classify against one shared percentile snapshot, detect alerts
// and roll everything up into a snapshot. A malformed record is skipped
// without affecting the other entities.
func RunClient(in RunInput) RunResult {
	date := domain.Day(in.Date)
	var res RunResult

	records := make([]domain.DailyRecord, 0, len(in.Records))
	for _, r := range in.Records {
		if err := r.Validate(); err != nil {
			res.Skipped = append(res.Skipped, err)
			continue
		}
		if r.Key.ClientID != in.ClientID {
			res.Skipped = append(res.Skipped, fmt.Errorf("%w: %s does not belong to client %s",
				domain.ErrMalformedRecord, r.Key, in.ClientID))
			continue
		}
		records = append(records, r)
	}

	res.Metrics = AggregateAll(records, date)
	res.Classifications, res.Percentiles = ClassifyClient(in.ClientID, date, res.Metrics, in.Config)
	res.Alerts = DetectAlerts(AlertInput{
		Date:            date,
		Strategy:        in.Strategy,
		Config:          in.Config,
		Metrics:         res.Metrics,
		Classifications: res.Classifications,
		PriorDecisions:  in.PriorDecisions,
		FiredToday:      in.FiredToday,
	})
	res.Snapshot = BuildSnapshot(in, res)
	return res
}

// BuildSnapshot rolls a run result up into the per-client snapshot. Client
// totals come from the top-most level present so spend is not counted once
// per level.
func BuildSnapshot(in RunInput, res RunResult) domain.ClientSnapshot {
	snap := domain.ClientSnapshot{
		ClientID:        in.ClientID,
		RunID:           in.RunID,
		Date:            domain.Day(in.Date),
		GeneratedAt:     in.Now.UTC(),
		EntityCount:     len(res.Classifications),
		DecisionCounts:  make(map[domain.Decision]int),
		Findings:        []domain.Finding{},
		Alerts:          res.Alerts,
		SkippedRecords:  len(res.Skipped),
		ConfigFallbacks: in.ConfigFallbacks,
		PercentileBands: res.Percentiles,
	}
	if snap.Alerts == nil {
		snap.Alerts = []domain.Alert{}
	}

	var value7d float64
	top := topLevel(res.Metrics)
	for _, m := range res.Metrics {
		if m.Key.Level != top {
			continue
		}
		snap.Spend7d += m.Spend7d
		snap.Spend14d += m.Spend14d
		snap.Purchases7d += m.Purchases7d
		value7d += m.ConversionValue7d
	}
	snap.CPA7d = optional.Ratio(snap.Spend7d, snap.Purchases7d)
	snap.ROAS7d = optional.Ratio(value7d, snap.Spend7d)

	for _, c := range res.Classifications {
		snap.DecisionCounts[c.FinalDecision]++
		if c.FinalDecision == domain.DecisionHold {
			continue
		}
		snap.Findings = append(snap.Findings, domain.Finding{
			Key:         c.Key,
			Name:        c.Name,
			Decision:    c.FinalDecision,
			Evidence:    c.Evidence,
			ImpactScore: c.ImpactScore,
			Confidence:  c.ConfidenceScore,
		})
	}
	sort.SliceStable(snap.Findings, func(i, j int) bool {
		a, b := snap.Findings[i], snap.Findings[j]
		if a.ImpactScore != b.ImpactScore {
			return a.ImpactScore > b.ImpactScore
		}
		return a.Key.Less(b.Key)
	})
	if limit := in.Config.Findings.MaxFindings; limit > 0 && len(snap.Findings) > limit {
		snap.Findings = snap.Findings[:limit]
	}
	return snap
}

func topLevel(metrics []domain.EntityMetrics) domain.Level {
	var top domain.Level
	for _, m := range metrics {
		if top == "" || m.Key.Level.Rank() < top.Rank() {
			top = m.Key.Level
		}
	}
	return top
}
