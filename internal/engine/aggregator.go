package engine

import (
	"math"
	"sort"
	"time"

	"github.com/ignite/adclassify/internal/domain"
	"github.com/ignite/adclassify/internal/pkg/optional"
)

// HistoryDays is how many days of records, ending at the run date, a run
// needs to read.
const HistoryDays = longWindowDays

const (
	shortWindowDays = 7
	longWindowDays  = 14
	budgetSpanDays  = 3
)

// Aggregate computes the rolling 7d/14d metrics for one entity from its
// daily records. asOf is the last fully synced day; records after it or
// older than the long window are ignored, as are records for other keys.
// Missing days count as zero activity and are left out of averages.
func Aggregate(key domain.EntityKey, records []domain.DailyRecord, asOf time.Time) domain.EntityMetrics {
	asOf = domain.Day(asOf)
	m := domain.EntityMetrics{Key: key, AsOf: asOf}

	byDay := make(map[int]domain.DailyRecord, len(records))
	var latest time.Time
	for _, r := range records {
		if r.Key != key {
			continue
		}
		age := daysBetween(r.Day(), asOf)
		if age < 0 || age >= longWindowDays {
			continue
		}
		byDay[age] = r
		if !r.Day().Before(latest) {
			latest = r.Day()
			m.Name, m.ParentID, m.ConceptID = r.Name, r.ParentID, r.ConceptID
		}
	}
	m.DaysSeen = len(byDay)

	var (
		impressions14d, videoViews7d, videoViews14d int64
		freqSum                                     float64
		freqDays                                    int
		dailyCPA                                    []float64
	)
	// Walk days in order so float sums are reproducible.
	for age := 0; age < longWindowDays; age++ {
		r, ok := byDay[age]
		if !ok {
			continue
		}
		m.Spend14d += r.Spend
		m.Purchases14d += r.Purchases
		impressions14d += r.Impressions
		videoViews14d += r.VideoViews3s
		if age >= shortWindowDays {
			continue
		}
		m.Spend7d += r.Spend
		m.Impressions7d += r.Impressions
		m.Clicks7d += r.Clicks
		m.Purchases7d += r.Purchases
		m.ConversionValue7d += r.ConversionValue
		m.ViewContent7d += r.ViewContent
		m.AddToCart7d += r.AddToCart
		m.InitiateCheckout7d += r.InitiateCheckout
		videoViews7d += r.VideoViews3s
		if r.Frequency != nil {
			freqSum += *r.Frequency
			freqDays++
		}
		if r.Purchases > 0 {
			dailyCPA = append(dailyCPA, r.Spend/r.Purchases)
		}
	}

	m.CPA7d = optional.Ratio(m.Spend7d, m.Purchases7d)
	m.CPA14d = optional.Ratio(m.Spend14d, m.Purchases14d)
	m.ROAS7d = optional.Ratio(m.ConversionValue7d, m.Spend7d)
	m.CTR7d = optional.Ratio(float64(m.Clicks7d), float64(m.Impressions7d))
	m.ConversionRate7d = optional.Ratio(m.Purchases7d, float64(m.Clicks7d))
	m.Frequency7d = optional.Ratio(freqSum, float64(freqDays))
	m.HookRate7d = optional.Ratio(float64(videoViews7d), float64(m.Impressions7d))
	m.HookRate14d = optional.Ratio(float64(videoViews14d), float64(impressions14d))

	m.HookRateDeltaPct = optional.DeltaOf(m.HookRate7d, m.HookRate14d)
	m.CPAChangePct = optional.DeltaOf(m.CPA7d, m.CPA14d)
	m.BudgetChange3dPct = budgetChange(byDay)
	m.PerformanceCV7d = coefficientOfVariation(dailyCPA)
	return m
}

// AggregateAll groups records by entity and aggregates each group. The
// result is sorted by key.
func AggregateAll(records []domain.DailyRecord, asOf time.Time) []domain.EntityMetrics {
	groups := make(map[domain.EntityKey][]domain.DailyRecord)
	for _, r := range records {
		groups[r.Key] = append(groups[r.Key], r)
	}
	out := make([]domain.EntityMetrics, 0, len(groups))
	for key, recs := range groups {
		out = append(out, Aggregate(key, recs, asOf))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out
}

// budgetChange compares the mean daily budget of the latest three days with
// the three days before. Every one of the six days must carry a budget.
func budgetChange(byDay map[int]domain.DailyRecord) optional.Float {
	var recent, prior float64
	for age := 0; age < 2*budgetSpanDays; age++ {
		r, ok := byDay[age]
		if !ok || r.DailyBudget == nil {
			return optional.None()
		}
		if age < budgetSpanDays {
			recent += *r.DailyBudget
		} else {
			prior += *r.DailyBudget
		}
	}
	return optional.Delta(recent/budgetSpanDays, prior/budgetSpanDays)
}

func coefficientOfVariation(vals []float64) optional.Float {
	if len(vals) < 3 {
		return optional.None()
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))
	if mean == 0 {
		return optional.None()
	}
	var sq float64
	for _, v := range vals {
		sq += (v - mean) * (v - mean)
	}
	return optional.Some(math.Sqrt(sq/float64(len(vals))) / mean)
}

func daysBetween(day, asOf time.Time) int {
	return int(asOf.Sub(day).Hours() / 24)
}
