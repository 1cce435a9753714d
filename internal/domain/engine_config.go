package domain

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// DefaultsVersion is bumped whenever a documented default changes so stored
// configs can be traced back to the defaults they were created from.
const DefaultsVersion = 1

// ErrInvalidConfig wraps every config validation failure.
var ErrInvalidConfig = errors.New("invalid engine config")

// EngineConfig holds the per-client tunable thresholds. Every field has a
// documented default in DefaultEngineConfig.
type EngineConfig struct {
	ClientID        string    `json:"client_id"`
	Version         int       `json:"version"`
	DefaultsVersion int       `json:"defaults_version"`
	UpdatedAt       time.Time `json:"updated_at"`

	Fatigue   FatigueConfig   `json:"fatigue"`
	Structure StructureConfig `json:"structure"`
	Alerts    AlertsConfig    `json:"alerts"`
	Findings  FindingsConfig  `json:"findings"`
	Learning  LearningConfig  `json:"learning"`
	Intent    IntentConfig    `json:"intent"`
}

// FatigueConfig drives the fatigue classifier.
type FatigueConfig struct {
	// FrequencyThreshold is the 7d average frequency above which an
	// audience is considered saturated.
	FrequencyThreshold float64 `json:"frequencyThreshold"`
	// CPAMultiplierThreshold is how far 7d CPA must exceed 14d CPA to count
	// as cost degradation.
	CPAMultiplierThreshold float64 `json:"cpaMultiplierThreshold"`
	// HookRateDeltaThreshold is the 7d-vs-14d hook rate change (percent) at
	// or below which a concept is decaying. Negative.
	HookRateDeltaThreshold float64 `json:"hookRateDeltaThreshold"`
}

// StructureConfig drives the structural classifier.
type StructureConfig struct {
	FragmentationAdsetsMax    int     `json:"fragmentationAdsetsMax"`
	OverconcentrationPct      float64 `json:"overconcentrationPct"`
	OverconcentrationMinSpend float64 `json:"overconcentrationMinSpend"`
}

// AlertsConfig drives the alert engine and the instability check.
type AlertsConfig struct {
	LearningResetBudgetChangePct float64 `json:"learningResetBudgetChangePct"`
	ScalingFrequencyMax          float64 `json:"scalingFrequencyMax"`
}

// FindingsConfig controls data sufficiency and snapshot findings.
type FindingsConfig struct {
	MinSpend7d          float64 `json:"minSpend7d"`
	MinPercentileSample int     `json:"minPercentileSample"`
	MaxFindings         int     `json:"maxFindings"`
}

// LearningConfig drives the learning-state classifier.
type LearningConfig struct {
	MinConversions     float64 `json:"minConversions"`
	VolatilityCV       float64 `json:"volatilityCV"`
	StableCPAChangePct float64 `json:"stableCPAChangePct"`
}

// IntentConfig sets the intent score cut points.
type IntentConfig struct {
	BOFUScoreMin float64 `json:"bofuScoreMin"`
	TOFUScoreMax float64 `json:"tofuScoreMax"`
}

// DefaultEngineConfig returns the documented defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultsVersion: DefaultsVersion,
		Fatigue: FatigueConfig{
			FrequencyThreshold:     4.0,
			CPAMultiplierThreshold: 1.25,
			HookRateDeltaThreshold: -20,
		},
		Structure: StructureConfig{
			FragmentationAdsetsMax:    6,
			OverconcentrationPct:      80,
			OverconcentrationMinSpend: 1000,
		},
		Alerts: AlertsConfig{
			LearningResetBudgetChangePct: 50,
			ScalingFrequencyMax:          3.0,
		},
		Findings: FindingsConfig{
			MinSpend7d:          0,
			MinPercentileSample: 5,
			MaxFindings:         10,
		},
		Learning: LearningConfig{
			MinConversions:     50,
			VolatilityCV:       0.5,
			StableCPAChangePct: 20,
		},
		Intent: IntentConfig{
			BOFUScoreMin: 0.66,
			TOFUScoreMax: 0.33,
		},
	}
}

// DefaultEngineConfigFor returns the defaults stamped with a client ID.
func DefaultEngineConfigFor(clientID string) EngineConfig {
	cfg := DefaultEngineConfig()
	cfg.ClientID = clientID
	return cfg
}

type configCheck struct {
	field string
	bad   func(c *EngineConfig) bool
	reset func(c *EngineConfig, d EngineConfig)
}

var configChecks = []configCheck{
	{"fatigue.frequencyThreshold",
		func(c *EngineConfig) bool { return c.Fatigue.FrequencyThreshold <= 0 },
		func(c *EngineConfig, d EngineConfig) { c.Fatigue.FrequencyThreshold = d.Fatigue.FrequencyThreshold }},
	{"fatigue.cpaMultiplierThreshold",
		func(c *EngineConfig) bool { return c.Fatigue.CPAMultiplierThreshold < 1 },
		func(c *EngineConfig, d EngineConfig) { c.Fatigue.CPAMultiplierThreshold = d.Fatigue.CPAMultiplierThreshold }},
	{"fatigue.hookRateDeltaThreshold",
		func(c *EngineConfig) bool { return c.Fatigue.HookRateDeltaThreshold >= 0 || c.Fatigue.HookRateDeltaThreshold < -100 },
		func(c *EngineConfig, d EngineConfig) { c.Fatigue.HookRateDeltaThreshold = d.Fatigue.HookRateDeltaThreshold }},
	{"structure.fragmentationAdsetsMax",
		func(c *EngineConfig) bool { return c.Structure.FragmentationAdsetsMax < 1 },
		func(c *EngineConfig, d EngineConfig) { c.Structure.FragmentationAdsetsMax = d.Structure.FragmentationAdsetsMax }},
	{"structure.overconcentrationPct",
		func(c *EngineConfig) bool {
			return c.Structure.OverconcentrationPct <= 0 || c.Structure.OverconcentrationPct > 100
		},
		func(c *EngineConfig, d EngineConfig) { c.Structure.OverconcentrationPct = d.Structure.OverconcentrationPct }},
	{"structure.overconcentrationMinSpend",
		func(c *EngineConfig) bool { return c.Structure.OverconcentrationMinSpend < 0 },
		func(c *EngineConfig, d EngineConfig) {
			c.Structure.OverconcentrationMinSpend = d.Structure.OverconcentrationMinSpend
		}},
	{"alerts.learningResetBudgetChangePct",
		func(c *EngineConfig) bool { return c.Alerts.LearningResetBudgetChangePct <= 0 },
		func(c *EngineConfig, d EngineConfig) {
			c.Alerts.LearningResetBudgetChangePct = d.Alerts.LearningResetBudgetChangePct
		}},
	{"alerts.scalingFrequencyMax",
		func(c *EngineConfig) bool { return c.Alerts.ScalingFrequencyMax <= 0 },
		func(c *EngineConfig, d EngineConfig) { c.Alerts.ScalingFrequencyMax = d.Alerts.ScalingFrequencyMax }},
	{"findings.minSpend7d",
		func(c *EngineConfig) bool { return c.Findings.MinSpend7d < 0 },
		func(c *EngineConfig, d EngineConfig) { c.Findings.MinSpend7d = d.Findings.MinSpend7d }},
	{"findings.minPercentileSample",
		func(c *EngineConfig) bool { return c.Findings.MinPercentileSample < 2 },
		func(c *EngineConfig, d EngineConfig) { c.Findings.MinPercentileSample = d.Findings.MinPercentileSample }},
	{"findings.maxFindings",
		func(c *EngineConfig) bool { return c.Findings.MaxFindings < 1 },
		func(c *EngineConfig, d EngineConfig) { c.Findings.MaxFindings = d.Findings.MaxFindings }},
	{"learning.minConversions",
		func(c *EngineConfig) bool { return c.Learning.MinConversions <= 0 },
		func(c *EngineConfig, d EngineConfig) { c.Learning.MinConversions = d.Learning.MinConversions }},
	{"learning.volatilityCV",
		func(c *EngineConfig) bool { return c.Learning.VolatilityCV <= 0 },
		func(c *EngineConfig, d EngineConfig) { c.Learning.VolatilityCV = d.Learning.VolatilityCV }},
	{"learning.stableCPAChangePct",
		func(c *EngineConfig) bool { return c.Learning.StableCPAChangePct <= 0 },
		func(c *EngineConfig, d EngineConfig) { c.Learning.StableCPAChangePct = d.Learning.StableCPAChangePct }},
	{"intent.bofuScoreMin",
		func(c *EngineConfig) bool { return c.Intent.BOFUScoreMin <= 0 || c.Intent.BOFUScoreMin > 1 },
		func(c *EngineConfig, d EngineConfig) { c.Intent.BOFUScoreMin = d.Intent.BOFUScoreMin }},
	{"intent.tofuScoreMax",
		func(c *EngineConfig) bool {
			return c.Intent.TOFUScoreMax <= 0 || c.Intent.TOFUScoreMax >= c.Intent.BOFUScoreMin
		},
		func(c *EngineConfig, d EngineConfig) { c.Intent.TOFUScoreMax = d.Intent.TOFUScoreMax }},
}

// Validate returns every invalid field joined into one error, or nil.
func (c EngineConfig) Validate() error {
	var errs []error
	for _, chk := range configChecks {
		if chk.bad(&c) {
			errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidConfig, chk.field))
		}
	}
	return errors.Join(errs...)
}

// Normalize replaces each invalid field with its default and returns the
// names of the fields it replaced.
func (c *EngineConfig) Normalize() []string {
	d := DefaultEngineConfig()
	var replaced []string
	for _, chk := range configChecks {
		if chk.bad(c) {
			chk.reset(c, d)
			replaced = append(replaced, chk.field)
		}
	}
	// A valid BOFU cut point can sit at or below the default TOFU cut point;
	// the intent band then only holds together with both defaults.
	if c.Intent.TOFUScoreMax >= c.Intent.BOFUScoreMin {
		c.Intent = d.Intent
		if !slices.Contains(replaced, "intent.bofuScoreMin") {
			replaced = append(replaced, "intent.bofuScoreMin")
		}
	}
	if c.DefaultsVersion == 0 {
		c.DefaultsVersion = DefaultsVersion
	}
	return replaced
}
