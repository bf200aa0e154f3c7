package policy

import (
	"fmt"
	"math"
	"os"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/trust-router/internal/model"
)

// Load reads a policy file. The YAML has a top-level "policy" key; fields it
// omits keep their built-in defaults. The result is validated.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "policy: read %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates policy YAML.
func Parse(data []byte) (*Policy, error) {
	wrapper := struct {
		Policy Policy `yaml:"policy"`
	}{Policy: *Default()}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "policy: parse")
	}
	p := &wrapper.Policy
	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Marshal encodes p in the file format Parse reads.
func Marshal(p *Policy) ([]byte, error) {
	out, err := yaml.Marshal(struct {
		Policy *Policy `yaml:"policy"`
	}{Policy: p})
	if err != nil {
		return nil, eris.Wrap(err, "policy: marshal")
	}
	return out, nil
}

// Validate checks that a policy is internally consistent. Band tables must
// cover [0,1] without gaps so every score maps to exactly one level.
func Validate(p *Policy) error {
	if p == nil {
		return eris.Wrap(model.ErrConfigurationDrift, "policy: nil policy")
	}
	var errs []string

	if strings.TrimSpace(p.Version) == "" {
		errs = append(errs, "version is required")
	}

	c := p.Complexity
	cw := map[string]float64{
		"length_weight":          c.LengthWeight,
		"lexical_weight":         c.LexicalWeight,
		"numeric_weight":         c.NumericWeight,
		"forward_looking_weight": c.ForwardLookingWeight,
		"volatility_weight":      c.VolatilityWeight,
	}
	errs = append(errs, checkWeights("complexity", cw)...)
	if c.LengthSaturationWords <= 0 {
		errs = append(errs, "complexity.length_saturation_words must be > 0")
	}
	if c.NumericSaturation <= 0 || c.ForwardSaturation <= 0 {
		errs = append(errs, "complexity saturation values must be > 0")
	}

	r := p.Routing
	if !inUnit(r.LowThreshold) || !inUnit(r.HighThreshold) || r.LowThreshold > r.HighThreshold {
		errs = append(errs, fmt.Sprintf("routing thresholds must satisfy 0 <= low (%.2f) <= high (%.2f) <= 1", r.LowThreshold, r.HighThreshold))
	}
	if r.FastModel == "" || r.DeepModel == "" {
		errs = append(errs, "routing.fast_model and routing.deep_model are required")
	}
	if len(r.EnsembleModels) < 2 {
		errs = append(errs, "routing.ensemble_models needs at least 2 models")
	}
	if _, err := p.MinPlanKind(); err != nil {
		errs = append(errs, fmt.Sprintf("routing.min_plan %q is not a plan kind", r.MinPlan))
	}

	for id, mp := range p.Models {
		if mp.Provider != ProviderAnthropic && mp.Provider != ProviderOpenAI {
			errs = append(errs, fmt.Sprintf("models.%s.provider %q is not supported", id, mp.Provider))
		}
		if mp.Weight < 0 || mp.Timeout < 0 {
			errs = append(errs, fmt.Sprintf("models.%s weight and timeout must be >= 0", id))
		}
	}

	e := p.Ensemble
	if e.DefaultWeight <= 0 || e.DefaultTimeout <= 0 {
		errs = append(errs, "ensemble.default_weight and ensemble.default_timeout must be > 0")
	}
	if e.MaxAttempts < 1 {
		errs = append(errs, "ensemble.max_attempts must be >= 1")
	}
	if e.Quorum < -1 {
		errs = append(errs, "ensemble.quorum must be >= -1")
	}
	for name, v := range map[string]float64{
		"value_tolerance":        e.ValueTolerance,
		"disagreement_threshold": e.DisagreementThreshold,
		"disagreement_penalty":   e.DisagreementPenalty,
		"failure_penalty":        e.FailurePenalty,
	} {
		if !inUnit(v) {
			errs = append(errs, fmt.Sprintf("ensemble.%s must be in [0,1]", name))
		}
	}

	f := p.FACT
	errs = append(errs, checkWeights("fact", map[string]float64{
		"mathematical_weight": f.MathematicalWeight,
		"logical_weight":      f.LogicalWeight,
		"critical_weight":     f.CriticalWeight,
	})...)
	if f.TolerancePP <= 0 || f.CriticalDeviationPP < f.TolerancePP {
		errs = append(errs, "fact tolerances must satisfy 0 < tolerance_pp <= critical_deviation_pp")
	}
	for name, v := range map[string]float64{
		"no_numbers_confidence":      f.NoNumbersConfidence,
		"no_relation_confidence":     f.NoRelationConfidence,
		"fallacy_penalty":            f.FallacyPenalty,
		"max_fallacy_penalty":        f.MaxFallacyPenalty,
		"reference_tolerance":        f.ReferenceTolerance,
		"ungrounded_confidence":      f.UngroundedConfidence,
		"matched_confidence":         f.MatchedConfidence,
		"failed_confidence":          f.FailedConfidence,
		"critical_failed_confidence": f.CriticalFailedConfidence,
		"ambiguity_penalty":          f.AmbiguityPenalty,
		"breach_penalty":             f.BreachPenalty,
	} {
		if !inUnit(v) {
			errs = append(errs, fmt.Sprintf("fact.%s must be in [0,1]", name))
		}
	}

	g := p.GOALIE
	for _, cat := range model.RiskCategories {
		v, ok := g.BaseScores[cat.String()]
		switch {
		case !ok:
			errs = append(errs, fmt.Sprintf("goalie.base_scores.%s is missing", cat))
		case !inUnit(v):
			errs = append(errs, fmt.Sprintf("goalie.base_scores.%s must be in [0,1]", cat))
		}
	}
	errs = append(errs, checkBands("goalie.level_bands", g.LevelBands, levelNames)...)
	errs = append(errs, checkBands("goalie.reliability_bands", g.ReliabilityBands, reliabilityNames)...)

	a := g.Adjustment
	if a.Min <= 0 || a.Max > 1 || a.Min > a.Max {
		errs = append(errs, "goalie.adjustment must satisfy 0 < min <= max <= 1")
	}
	if a.RiskCoef < 0 || a.ConfidenceCoef < 0 {
		errs = append(errs, "goalie.adjustment coefficients must be >= 0")
	}
	errs = append(errs, checkWeights("goalie.blend", map[string]float64{
		"agreement_weight": g.Blend.AgreementWeight,
		"fact_weight":      g.Blend.FACTWeight,
		"model_weight":     g.Blend.ModelWeight,
	})...)

	if p.Drift.CalibrationBins < 1 {
		errs = append(errs, "drift.calibration_bins must be >= 1")
	}

	if len(errs) > 0 {
		slices.Sort(errs)
		return eris.Wrapf(model.ErrConfigurationDrift, "policy: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

var (
	levelNames       = []string{"minimal", "low", "moderate", "high", "critical"}
	reliabilityNames = []string{"reliable", "uncertain", "unreliable"}
)

func checkWeights(section string, weights map[string]float64) []string {
	var errs []string
	var sum float64
	for name, w := range weights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s.%s must be >= 0", section, name))
		}
		sum += w
	}
	if sum <= 0 {
		errs = append(errs, fmt.Sprintf("%s weights must sum to > 0", section))
	}
	return errs
}

func checkBands(section string, bands []Band, allowed []string) []string {
	if len(bands) == 0 {
		return []string{section + " is empty"}
	}
	var errs []string
	sorted := slices.Clone(bands)
	slices.SortFunc(sorted, func(a, b Band) int {
		switch {
		case a.Min < b.Min:
			return -1
		case a.Min > b.Min:
			return 1
		}
		return 0
	})
	for _, b := range sorted {
		if !slices.Contains(allowed, b.Name) {
			errs = append(errs, fmt.Sprintf("%s has unknown band %q", section, b.Name))
		}
	}
	if sorted[0].Min > 0 {
		errs = append(errs, fmt.Sprintf("%s does not start at 0", section))
	}
	for i := 1; i < len(sorted); i++ {
		if math.Abs(sorted[i].Min-sorted[i-1].Max) > 1e-9 {
			errs = append(errs, fmt.Sprintf("%s has a gap or overlap at %.2f", section, sorted[i-1].Max))
		}
	}
	if sorted[len(sorted)-1].Max < 1 {
		errs = append(errs, fmt.Sprintf("%s does not reach 1", section))
	}
	return errs
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}
