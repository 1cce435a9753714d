package domain

import "time"

// LearningState describes where an entity is in the delivery learning cycle.
type LearningState string

const (
	LearningExploration  LearningState = "EXPLORATION"
	LearningStabilizing  LearningState = "STABILIZING"
	LearningExploitation LearningState = "EXPLOITATION"
	LearningUnstable     LearningState = "UNSTABLE"
)

// IntentStage places an entity in the funnel.
type IntentStage string

const (
	IntentTOFU IntentStage = "TOFU"
	IntentMOFU IntentStage = "MOFU"
	IntentBOFU IntentStage = "BOFU"
)

// FatigueState is the creative fatigue diagnosis.
type FatigueState string

const (
	FatigueReal              FatigueState = "REAL"
	FatigueHealthyRepetition FatigueState = "HEALTHY_REPETITION"
	FatigueConceptDecay      FatigueState = "CONCEPT_DECAY"
	FatigueNone              FatigueState = "NONE"
)

// StructuralState describes how spend is spread over an entity's children.
type StructuralState string

const (
	StructureFragmented       StructuralState = "FRAGMENTED"
	StructureOverconcentrated StructuralState = "OVERCONCENTRATED"
	StructureHealthy          StructuralState = "HEALTHY"
)

// Decision is the recommended action derived from the four axes.
type Decision string

const (
	DecisionKillRetry             Decision = "KILL_RETRY"
	DecisionRotateConcept         Decision = "ROTATE_CONCEPT"
	DecisionConsolidate           Decision = "CONSOLIDATE"
	DecisionScale                 Decision = "SCALE"
	DecisionIntroduceBOFUVariants Decision = "INTRODUCE_BOFU_VARIANTS"
	DecisionHold                  Decision = "HOLD"
)

// AllDecisions returns every decision in precedence order.
func AllDecisions() []Decision {
	return []Decision{
		DecisionKillRetry, DecisionRotateConcept, DecisionConsolidate,
		DecisionScale, DecisionIntroduceBOFUVariants, DecisionHold,
	}
}

// EntityClassification is the immutable output of one classification run
// for one entity on one date.
type EntityClassification struct {
	Key       EntityKey `json:"key"`
	Date      time.Time `json:"date"`
	ConceptID string    `json:"concept_id,omitempty"`
	Name      string    `json:"name,omitempty"`

	LearningState   LearningState   `json:"learning_state"`
	IntentStage     IntentStage     `json:"intent_stage"`
	IntentScore     float64         `json:"intent_score"`
	FatigueState    FatigueState    `json:"fatigue_state"`
	StructuralState StructuralState `json:"structural_state"`

	FinalDecision   Decision `json:"final_decision"`
	Evidence        []string `json:"evidence"`
	ConfidenceScore float64  `json:"confidence_score"`
	ImpactScore     float64  `json:"impact_score"`
}

// NeutralClassification is the result for an entity without enough data:
// every axis at its neutral state, HOLD and no evidence.
func NeutralClassification(key EntityKey, date time.Time) EntityClassification {
	return EntityClassification{
		Key:             key,
		Date:            Day(date),
		LearningState:   LearningStabilizing,
		IntentStage:     IntentMOFU,
		IntentScore:     0.5,
		FatigueState:    FatigueNone,
		StructuralState: StructureHealthy,
		FinalDecision:   DecisionHold,
		Evidence:        []string{},
	}
}

// Explainable reports whether the classification satisfies the evidence
// requirement: anything other than HOLD must cite at least one reason.
func (c EntityClassification) Explainable() bool {
	return c.FinalDecision == DecisionHold || len(c.Evidence) > 0
}
