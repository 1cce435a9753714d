package engine

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ignite/adclassify/internal/domain"
)

// ChildSpend is the 7d spend of one direct child of an entity.
type ChildSpend struct {
	EntityID string
	Spend7d  float64
}

// ClassifyInput is everything needed to classify one entity. Percentiles
// must be the client's shared snapshot for the entity's level.
type ClassifyInput struct {
	Metrics      domain.EntityMetrics
	Children     []ChildSpend
	Percentiles  domain.ClientPercentiles
	LevelSpend7d float64
	Config       domain.EngineConfig
	Date         time.Time
}

// axisSignal is what a classifier axis reports besides its state: the
// evidence line and how far past its threshold the triggering metric is.
type axisSignal struct {
	evidence string
	excess   float64
}

func (s axisSignal) fired() bool { return s.evidence != "" }

// Classify evaluates the four axes for one entity and combines them into a
// final decision. It never fails: missing metrics degrade the affected axis
// to its neutral state.
func Classify(in ClassifyInput) domain.EntityClassification {
	m := in.Metrics
	cfg := in.Config
	out := domain.NeutralClassification(m.Key, in.Date)
	out.ConceptID = m.ConceptID
	out.Name = m.Name

	if !sufficientData(m, cfg) {
		return out
	}

	learning, learnSig := classifyLearning(m, in.Percentiles, cfg)
	intent, score := classifyIntent(m, in.Percentiles, cfg)
	fatigue, fatigueSig := classifyFatigue(m, cfg)
	structure, structSig := classifyStructure(m.Key.Level, in.Children, cfg)

	out.LearningState = learning
	out.IntentStage = intent
	out.IntentScore = round4(score)
	out.FatigueState = fatigue
	out.StructuralState = structure
	out.ImpactScore = round4(clamp01(ratioOrZero(m.Spend7d, in.LevelSpend7d)))

	var (
		decision domain.Decision
		evidence []string
		excess   float64
	)
	switch {
	case fatigue == domain.FatigueReal:
		evidence = append(evidence, fatigueSig.evidence)
		excess = fatigueSig.excess
		decision = domain.DecisionRotateConcept
		if learning == domain.LearningUnstable {
			decision = domain.DecisionKillRetry
			evidence = append(evidence, learnSig.evidence)
		}
	case structure == domain.StructureOverconcentrated, structure == domain.StructureFragmented:
		decision = domain.DecisionConsolidate
		evidence = append(evidence, structSig.evidence)
		excess = structSig.excess
	case learning == domain.LearningExploitation && intent == domain.IntentBOFU:
		decision = domain.DecisionScale
		evidence = append(evidence, learnSig.evidence,
			fmt.Sprintf("intent score %.2f >= %.2f (BOFU)", score, cfg.Intent.BOFUScoreMin))
		excess = math.Min(learnSig.excess, score/cfg.Intent.BOFUScoreMin-1)
	case intent == domain.IntentTOFU && !m.HasBOFUSignals():
		decision = domain.DecisionIntroduceBOFUVariants
		evidence = append(evidence, fmt.Sprintf(
			"intent score %.2f < %.2f (TOFU) with no add-to-cart, checkout or purchase events in 7d",
			score, cfg.Intent.TOFUScoreMax))
		excess = 1 - score/cfg.Intent.TOFUScoreMax
	default:
		decision = domain.DecisionHold
		for _, s := range []axisSignal{learnSig, fatigueSig, structSig} {
			if s.fired() {
				evidence = append(evidence, s.evidence)
			}
		}
	}

	out.FinalDecision = decision
	if evidence != nil {
		out.Evidence = evidence
	}
	out.ConfidenceScore = round4(clamp01(0.5 + excess))
	return out
}

func sufficientData(m domain.EntityMetrics, cfg domain.EngineConfig) bool {
	if m.Spend14d <= 0 {
		return false
	}
	if cfg.Findings.MinSpend7d > 0 && m.Spend7d < cfg.Findings.MinSpend7d {
		return false
	}
	return true
}

func classifyLearning(m domain.EntityMetrics, pct domain.ClientPercentiles, cfg domain.EngineConfig) (domain.LearningState, axisSignal) {
	limit := cfg.Alerts.LearningResetBudgetChangePct
	if m.BudgetChange3dPct.Abs().GreaterThan(limit) {
		v := m.BudgetChange3dPct.Or(0)
		return domain.LearningUnstable, axisSignal{
			evidence: fmt.Sprintf("daily budget changed %+.0f%% over 3d (limit %.0f%%)", v, limit),
			excess:   math.Abs(v)/limit - 1,
		}
	}
	if m.CPAChangePct.Abs().GreaterThan(limit) {
		v := m.CPAChangePct.Or(0)
		return domain.LearningUnstable, axisSignal{
			evidence: fmt.Sprintf("CPA swung %+.0f%% vs 14d baseline (limit %.0f%%)", v, limit),
			excess:   math.Abs(v)/limit - 1,
		}
	}

	if m.Purchases7d < cfg.Learning.MinConversions && m.PerformanceCV7d.GreaterThan(cfg.Learning.VolatilityCV) {
		cv := m.PerformanceCV7d.Or(0)
		return domain.LearningExploration, axisSignal{
			evidence: fmt.Sprintf("exploring: %.0f purchases in 7d (< %.0f) with daily CPA variation %.2f > %.2f",
				m.Purchases7d, cfg.Learning.MinConversions, cv, cfg.Learning.VolatilityCV),
			excess: cv/cfg.Learning.VolatilityCV - 1,
		}
	}

	if m.Purchases7d >= cfg.Learning.MinConversions && m.CPAChangePct.Abs().LessOrEqual(cfg.Learning.StableCPAChangePct) {
		if inv, ok := m.InverseCPA().Get(); ok {
			rel := pct.Band(domain.MetricInverseCPA).Normalize(inv)
			if rel >= 0.5 {
				return domain.LearningExploitation, axisSignal{
					evidence: fmt.Sprintf("exploiting: %.0f purchases in 7d, CPA %+.0f%% vs 14d, efficiency at %.0f%% of client band",
						m.Purchases7d, m.CPAChangePct.Or(0), rel*100),
					excess: m.Purchases7d/cfg.Learning.MinConversions - 1,
				}
			}
		}
	}
	return domain.LearningStabilizing, axisSignal{}
}

var intentWeights = []struct {
	metric domain.PercentileMetric
	weight float64
}{
	{domain.MetricFunnelRevenueRatio, 0.3},
	{domain.MetricConversionRate, 0.3},
	{domain.MetricInverseCPA, 0.3},
	{domain.MetricCTR, 0.1},
}

func classifyIntent(m domain.EntityMetrics, pct domain.ClientPercentiles, cfg domain.EngineConfig) (domain.IntentStage, float64) {
	var sum, weights float64
	for _, iw := range intentWeights {
		v, ok := m.Value(iw.metric).Get()
		if !ok {
			continue
		}
		sum += pct.Band(iw.metric).Normalize(v) * iw.weight
		weights += iw.weight
	}
	if weights == 0 {
		return domain.IntentMOFU, 0.5
	}
	score := sum / weights
	switch {
	case score >= cfg.Intent.BOFUScoreMin:
		return domain.IntentBOFU, score
	case score < cfg.Intent.TOFUScoreMax:
		return domain.IntentTOFU, score
	}
	return domain.IntentMOFU, score
}

func classifyFatigue(m domain.EntityMetrics, cfg domain.EngineConfig) (domain.FatigueState, axisSignal) {
	fc := cfg.Fatigue
	highFreq := m.Frequency7d.GreaterThan(fc.FrequencyThreshold)
	freq := m.Frequency7d.Or(0)

	cpa7, ok7 := m.CPA7d.Get()
	cpa14, ok14 := m.CPA14d.Get()
	costDegraded := ok7 && ok14 && cpa7 > cpa14*fc.CPAMultiplierThreshold

	if highFreq && costDegraded {
		return domain.FatigueReal, axisSignal{
			evidence: fmt.Sprintf("frequency %.1f > threshold %.1f with CPA %+.0f%% vs 14d baseline (%.2f vs %.2f, limit x%.2f)",
				freq, fc.FrequencyThreshold, (cpa7/cpa14-1)*100, cpa7, cpa14, fc.CPAMultiplierThreshold),
			excess: math.Min(freq/fc.FrequencyThreshold-1, cpa7/(cpa14*fc.CPAMultiplierThreshold)-1),
		}
	}
	if m.HookRateDeltaPct.LessOrEqual(fc.HookRateDeltaThreshold) {
		d := m.HookRateDeltaPct.Or(0)
		return domain.FatigueConceptDecay, axisSignal{
			evidence: fmt.Sprintf("hook rate %+.0f%% vs 14d (threshold %.0f%%)", d, fc.HookRateDeltaThreshold),
			excess:   d/fc.HookRateDeltaThreshold - 1,
		}
	}
	if highFreq {
		return domain.FatigueHealthyRepetition, axisSignal{
			evidence: fmt.Sprintf("frequency %.1f > threshold %.1f without CPA degradation", freq, fc.FrequencyThreshold),
			excess:   freq/fc.FrequencyThreshold - 1,
		}
	}
	return domain.FatigueNone, axisSignal{}
}

func classifyStructure(level domain.Level, children []ChildSpend, cfg domain.EngineConfig) (domain.StructuralState, axisSignal) {
	sc := cfg.Structure
	childLevel := level.ChildLevel()
	if childLevel == "" || len(children) == 0 {
		return domain.StructureHealthy, axisSignal{}
	}

	var total, largest float64
	for _, c := range children {
		total += c.Spend7d
		if c.Spend7d > largest {
			largest = c.Spend7d
		}
	}
	if total <= 0 {
		return domain.StructureHealthy, axisSignal{}
	}
	share := largest / total * 100
	n := len(children)

	if n >= 2 && share >= sc.OverconcentrationPct && total >= sc.OverconcentrationMinSpend {
		return domain.StructureOverconcentrated, axisSignal{
			evidence: fmt.Sprintf("one %s holds %.1f%% of %.2f spend across %d %ss (limit %.0f%%)",
				childLevel, share, total, n, childLevel, sc.OverconcentrationPct),
			excess: share/sc.OverconcentrationPct - 1,
		}
	}
	maxShare := 100 / float64(sc.FragmentationAdsetsMax)
	if n > sc.FragmentationAdsetsMax && share <= maxShare {
		return domain.StructureFragmented, axisSignal{
			evidence: fmt.Sprintf("%d %ss > max %d and largest holds %.1f%% of spend (<= %.1f%%)",
				n, childLevel, sc.FragmentationAdsetsMax, share, maxShare),
			excess: float64(n)/float64(sc.FragmentationAdsetsMax) - 1,
		}
	}
	return domain.StructureHealthy, axisSignal{}
}

// ClassifyClient classifies every entity of one client against a single
// percentile snapshot per level. Output is sorted by key, so identical
// input yields identical output.
func ClassifyClient(clientID string, date time.Time, metrics []domain.EntityMetrics, cfg domain.EngineConfig) ([]domain.EntityClassification, []domain.ClientPercentiles) {
	byLevel := make(map[domain.Level][]domain.EntityMetrics)
	children := make(map[domain.EntityKey][]ChildSpend)
	levelSpend := make(map[domain.Level]float64)

	var clientSpend14d float64
	for _, m := range metrics {
		if m.Key.ClientID == clientID {
			clientSpend14d += m.Spend14d
		}
	}
	// Nothing spent anywhere: nothing to classify.
	if clientSpend14d <= 0 {
		return nil, nil
	}

	for _, m := range metrics {
		if m.Key.ClientID != clientID {
			continue
		}
		byLevel[m.Key.Level] = append(byLevel[m.Key.Level], m)
		levelSpend[m.Key.Level] += m.Spend7d
		if parent := parentLevel(m.Key.Level); parent != "" && m.ParentID != "" {
			pk := domain.EntityKey{ClientID: clientID, Level: parent, EntityID: m.ParentID}
			children[pk] = append(children[pk], ChildSpend{EntityID: m.Key.EntityID, Spend7d: m.Spend7d})
		}
	}

	var (
		out   []domain.EntityClassification
		bands []domain.ClientPercentiles
	)
	for _, level := range domain.AllLevels() {
		ms := byLevel[level]
		if len(ms) == 0 {
			continue
		}
		pct := ComputePercentiles(clientID, level, ms, cfg)
		bands = append(bands, pct)
		for _, m := range ms {
			out = append(out, Classify(ClassifyInput{
				Metrics:      m,
				Children:     children[m.Key],
				Percentiles:  pct,
				LevelSpend7d: levelSpend[level],
				Config:       cfg,
				Date:         date,
			}))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out, bands
}

func parentLevel(l domain.Level) domain.Level {
	for _, p := range domain.AllLevels() {
		if p.ChildLevel() == l {
			return p
		}
	}
	return ""
}

func ratioOrZero(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
