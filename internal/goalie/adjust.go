package goalie

import (
	"fmt"
	"math"

	"github.com/sells-group/trust-router/internal/model"
	"github.com/sells-group/trust-router/internal/policy"
)

// Smallest factor ever produced; the factor is always in (0, 1].
const minFactor = 0.01

var factorDisclaimers = map[string]string{
	FactorUncertainty:    "High uncertainty: the source context flags this subject as uncertain.",
	FactorThinHistory:    "Limited history: too few prior periods to benchmark this prediction.",
	FactorVolatility:     "High volatility: the subject's historical results vary widely.",
	FactorDisagreement:   "High uncertainty due to model disagreement.",
	FactorForwardLooking: "Forward-looking statement: actual results may differ materially.",
	FactorFACTFailure:    "The claim failed fact validation.",
	FactorFACTSeverity:   "Fact validation raised high-severity findings.",
}

// Factor computes the adjustment factor for a risk score and blended
// confidence.
func Factor(risk, confidence float64, a policy.AdjustmentPolicy) float64 {
	f := a.Base - a.RiskCoef*risk + a.ConfidenceCoef*(confidence-a.Pivot)
	if math.IsNaN(f) {
		f = a.Min
	}
	f = math.Min(math.Max(f, a.Min), a.Max)
	return math.Min(math.Max(f, minFactor), 1)
}

// Adjust builds the final prediction. It never modifies its inputs.
func Adjust(pred model.PredictionValue, risk model.RiskAssessment, conf model.ConfidenceScore, report model.ValidationReport, a policy.AdjustmentPolicy) model.AdjustedPrediction {
	factor := Factor(risk.Score, conf.Blended, a)

	out := model.AdjustedPrediction{
		OriginalValue:    clone(pred),
		AdjustmentFactor: factor,
		ShouldDisplay:    true,
	}

	if pred.IsNumeric() {
		v := *pred.Number * factor
		out.AdjustedValue = model.PredictionValue{Number: &v, Text: pred.Text}
	} else {
		out.AdjustedValue = model.PredictionValue{Text: qualifier(conf.Reliability) + pred.Text}
	}

	for _, name := range risk.Factors {
		if d, ok := factorDisclaimers[name]; ok {
			out.Disclaimers = append(out.Disclaimers, d)
		}
	}
	switch conf.Reliability {
	case model.Uncertain:
		out.Disclaimers = append(out.Disclaimers, fmt.Sprintf("Moderate confidence (%.2f): treat as indicative.", conf.Blended))
	case model.Unreliable:
		out.Disclaimers = append(out.Disclaimers, fmt.Sprintf("Low confidence (%.2f): this prediction is unreliable.", conf.Blended))
	case model.Reliable:
	}

	if risk.Level == model.RiskCritical && conf.Reliability == model.Unreliable {
		out.ShouldDisplay = false
		out.Disclaimers = append(out.Disclaimers, "Suppressed: critical risk combined with unreliable confidence.")
	}
	if !report.OverallPassed {
		out.ShouldDisplay = false
		out.Disclaimers = append(out.Disclaimers, "Suppressed: the claim did not pass fact validation.")
	}
	return out
}

func qualifier(r model.Reliability) string {
	switch r {
	case model.Uncertain:
		return "Possibly: "
	case model.Unreliable:
		return "Unverified: "
	default:
		return ""
	}
}

func clone(v model.PredictionValue) model.PredictionValue {
	if v.Number == nil {
		return v
	}
	n := *v.Number
	return model.PredictionValue{Number: &n, Text: v.Text}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
