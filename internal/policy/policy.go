// Package policy holds the versioned tuning tables for routing, ensemble
// voting, FACT validation and GOALIE risk adjustment.
package policy

import (
	"time"

	"github.com/sells-group/trust-router/internal/model"
)

// Policy is an immutable snapshot of every tuning constant. Components
// receive a *Policy and must not modify it.
type Policy struct {
	Version    string                 `yaml:"version"`
	Complexity ComplexityPolicy       `yaml:"complexity"`
	Routing    RoutingPolicy          `yaml:"routing"`
	Models     map[string]ModelPolicy `yaml:"models"`
	Ensemble   EnsemblePolicy         `yaml:"ensemble"`
	FACT       FACTPolicy             `yaml:"fact"`
	GOALIE     GOALIEPolicy           `yaml:"goalie"`
	Drift      DriftThresholds        `yaml:"drift"`
}

// ComplexityPolicy weights the complexity sub-scores.
type ComplexityPolicy struct {
	LengthWeight          float64 `yaml:"length_weight"`
	LexicalWeight         float64 `yaml:"lexical_weight"`
	NumericWeight         float64 `yaml:"numeric_weight"`
	ForwardLookingWeight  float64 `yaml:"forward_looking_weight"`
	VolatilityWeight      float64 `yaml:"volatility_weight"`
	LengthSaturationWords int     `yaml:"length_saturation_words"`
	NumericSaturation     float64 `yaml:"numeric_saturation"`
	ForwardSaturation     float64 `yaml:"forward_saturation"`
}

// RoutingPolicy holds the router's threshold bands and model choices.
type RoutingPolicy struct {
	LowThreshold   float64  `yaml:"low_threshold"`
	HighThreshold  float64  `yaml:"high_threshold"`
	MinPlan        string   `yaml:"min_plan"`
	FastModel      string   `yaml:"fast_model"`
	DeepModel      string   `yaml:"deep_model"`
	EnsembleModels []string `yaml:"ensemble_models"`
}

// ModelPolicy is the per-model weight and timeout entry.
type ModelPolicy struct {
	Provider  string        `yaml:"provider"`
	Weight    float64       `yaml:"weight"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxTokens int           `yaml:"max_tokens"`
}

// EnsemblePolicy configures concurrent invocation and vote merging.
type EnsemblePolicy struct {
	DefaultWeight         float64       `yaml:"default_weight"`
	DefaultTimeout        time.Duration `yaml:"default_timeout"`
	MaxAttempts           int           `yaml:"max_attempts"`
	InitialBackoff        time.Duration `yaml:"initial_backoff"`
	MaxBackoff            time.Duration `yaml:"max_backoff"`
	Quorum                int           `yaml:"quorum"`
	ValueTolerance        float64       `yaml:"value_tolerance"`
	DisagreementThreshold float64       `yaml:"disagreement_threshold"`
	DisagreementPenalty   float64       `yaml:"disagreement_penalty"`
	FailurePenalty        float64       `yaml:"failure_penalty"`
	BreakerThreshold      int           `yaml:"breaker_threshold"`
	BreakerReset          time.Duration `yaml:"breaker_reset"`
}

// FACTPolicy configures the three validators and their aggregation.
type FACTPolicy struct {
	MathematicalWeight   float64 `yaml:"mathematical_weight"`
	LogicalWeight        float64 `yaml:"logical_weight"`
	CriticalWeight       float64 `yaml:"critical_weight"`
	TolerancePP          float64 `yaml:"tolerance_pp"`
	CriticalDeviationPP  float64 `yaml:"critical_deviation_pp"`
	NoNumbersConfidence  float64 `yaml:"no_numbers_confidence"`
	NoRelationConfidence float64 `yaml:"no_relation_confidence"`
	FallacyPenalty       float64 `yaml:"fallacy_penalty"`
	MaxFallacyPenalty    float64 `yaml:"max_fallacy_penalty"`
	ReferenceTolerance   float64 `yaml:"reference_tolerance"`
	UngroundedConfidence float64 `yaml:"ungrounded_confidence"`
	MatchedConfidence    float64 `yaml:"matched_confidence"`

	// FailedConfidence caps a failed check. CriticalFailedConfidence replaces
	// it when the failure is critical.
	FailedConfidence         float64 `yaml:"failed_confidence"`
	CriticalFailedConfidence float64 `yaml:"critical_failed_confidence"`
	AmbiguityPenalty         float64 `yaml:"ambiguity_penalty"`
	BreachPenalty            float64 `yaml:"breach_penalty"`
}

// GOALIEPolicy configures risk assessment, confidence blending and
// adjustment.
type GOALIEPolicy struct {
	BaseScores       map[string]float64  `yaml:"base_scores"`
	Keywords         map[string][]string `yaml:"keywords"`
	Factors          FactorPolicy        `yaml:"factors"`
	LevelBands       []Band              `yaml:"level_bands"`
	ReliabilityBands []Band              `yaml:"reliability_bands"`
	Blend            BlendPolicy         `yaml:"blend"`
	Adjustment       AdjustmentPolicy    `yaml:"adjustment"`
}

// FactorPolicy holds risk factor deltas and their trigger thresholds.
// Mitigations are subtracted from the risk score.
type FactorPolicy struct {
	Uncertainty              float64 `yaml:"uncertainty"`
	ThinHistory              float64 `yaml:"thin_history"`
	MinHistoryDepth          int     `yaml:"min_history_depth"`
	Volatility               float64 `yaml:"volatility"`
	VolatilityThreshold      float64 `yaml:"volatility_threshold"`
	Disagreement             float64 `yaml:"disagreement"`
	ForwardLooking           float64 `yaml:"forward_looking"`
	FACTFailure              float64 `yaml:"fact_failure"`
	FACTSeverity             float64 `yaml:"fact_severity"`
	StrongAgreement          float64 `yaml:"strong_agreement"`
	StrongAgreementThreshold float64 `yaml:"strong_agreement_threshold"`
	HighFACTConfidence       float64 `yaml:"high_fact_confidence"`
	HighFACTConfidenceMin    float64 `yaml:"high_fact_confidence_min"`
}

// Band maps a half-open score range [Min, Max) to a named level. A band whose
// Max is at least 1 also includes its upper bound.
type Band struct {
	Name string  `yaml:"name"`
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
}

// Contains reports whether v falls inside the band.
func (b Band) Contains(v float64) bool {
	if v < b.Min {
		return false
	}
	return v < b.Max || (b.Max >= 1 && v <= b.Max)
}

// BlendPolicy weights the blended confidence inputs.
type BlendPolicy struct {
	AgreementWeight float64 `yaml:"agreement_weight"`
	FACTWeight      float64 `yaml:"fact_weight"`
	ModelWeight     float64 `yaml:"model_weight"`
	VariancePenalty float64 `yaml:"variance_penalty"`
}

// AdjustmentPolicy holds the adjustment factor constants:
// factor = clamp(Base - RiskCoef*risk + ConfidenceCoef*(confidence - Pivot), Min, Max).
type AdjustmentPolicy struct {
	Base           float64 `yaml:"base"`
	RiskCoef       float64 `yaml:"risk_coef"`
	ConfidenceCoef float64 `yaml:"confidence_coef"`
	Pivot          float64 `yaml:"pivot"`
	Min            float64 `yaml:"min"`
	Max            float64 `yaml:"max"`
}

// DriftThresholds bounds how far metrics may degrade before drift fires.
type DriftThresholds struct {
	MaxAccuracyDrop    float64 `yaml:"max_accuracy_drop"`
	MaxF1Drop          float64 `yaml:"max_f1_drop"`
	MaxCalibrationDrop float64 `yaml:"max_calibration_drop"`
	MinAccuracy        float64 `yaml:"min_accuracy"`
	MinCalibration     float64 `yaml:"min_calibration"`
	MinSamples         int     `yaml:"min_samples"`
	CalibrationBins    int     `yaml:"calibration_bins"`
}

// Model returns the entry for id, falling back to ensemble defaults.
func (p *Policy) Model(id string) ModelPolicy {
	mp, ok := p.Models[id]
	if !ok {
		mp = ModelPolicy{Provider: ProviderAnthropic}
	}
	if mp.Weight <= 0 {
		mp.Weight = p.Ensemble.DefaultWeight
	}
	if mp.Timeout <= 0 {
		mp.Timeout = p.Ensemble.DefaultTimeout
	}
	if mp.MaxTokens <= 0 {
		mp.MaxTokens = 1024
	}
	return mp
}

// BaseScore returns the configured base risk score for a category.
func (p *Policy) BaseScore(c model.RiskCategory) (float64, bool) {
	v, ok := p.GOALIE.BaseScores[c.String()]
	return v, ok
}

// MinPlanKind parses the routing floor. An empty value means no floor.
func (p *Policy) MinPlanKind() (model.PlanKind, error) {
	if p.Routing.MinPlan == "" {
		return model.PlanFastTrack, nil
	}
	var k model.PlanKind
	if err := k.UnmarshalText([]byte(p.Routing.MinPlan)); err != nil {
		return model.PlanEnsemble, err
	}
	return k, nil
}

// Providers understood by the inference registry.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)
