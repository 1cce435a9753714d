package engine

import (
	"math"
	"sort"

	"github.com/ignite/adclassify/internal/domain"
)

// ComputePercentiles derives p10/p90 bands for one client at one level
// from the active entities (7d spend > 0) in metrics. A metric with fewer
// than cfg.Findings.MinPercentileSample defined values falls back to the
// documented default band.
func ComputePercentiles(clientID string, level domain.Level, metrics []domain.EntityMetrics, cfg domain.EngineConfig) domain.ClientPercentiles {
	minSample := cfg.Findings.MinPercentileSample
	if minSample < 2 {
		minSample = domain.DefaultEngineConfig().Findings.MinPercentileSample
	}
	defaults := domain.DefaultPercentileBands()

	out := domain.ClientPercentiles{
		ClientID: clientID,
		Level:    level,
		Bands:    make(map[domain.PercentileMetric]domain.PercentileBand, len(defaults)),
	}
	for _, pm := range domain.AllPercentileMetrics() {
		var vals []float64
		for _, m := range metrics {
			if m.Key.ClientID != clientID || m.Key.Level != level || m.Spend7d <= 0 {
				continue
			}
			if v, ok := m.Value(pm).Get(); ok {
				vals = append(vals, v)
			}
		}
		if len(vals) < minSample {
			out.Bands[pm] = defaults[pm]
			continue
		}
		sort.Float64s(vals)
		out.Bands[pm] = domain.PercentileBand{
			P10:        Percentile(vals, 0.10),
			P90:        Percentile(vals, 0.90),
			SampleSize: len(vals),
		}
	}
	return out
}

// Percentile returns the p-th percentile (0..1) of sorted using linear
// interpolation between closest ranks. sorted must be ascending and
// non-empty.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	rank := p * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
