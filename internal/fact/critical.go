package fact

import (
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/trust-router/internal/model"
	"github.com/sells-group/trust-router/internal/policy"
)

// critical grounds high-materiality claims in the entity's reference facts
// and regulatory thresholds.
func critical(text string, claim model.Claim, cc model.ClaimContext, p policy.FACTPolicy) model.ValidationResult {
	res := model.ValidationResult{Type: model.ValidationCritical, Severity: model.SeverityLow}
	if !claim.HighStakes && !cc.HighStakes {
		res.Passed = true
		res.Findings = []string{"not a high-materiality claim"}
		return res
	}
	res.Applicable = true

	if !cc.Grounded() {
		res.Passed = true
		res.Confidence = p.UngroundedConfidence
		res.Severity = model.SeverityMedium
		res.Findings = []string{"no reference context available to ground a high-materiality claim"}
		return res
	}

	qs := currentValues(text, extractQuantities(text))
	res.Passed = true
	matched, mismatched := 0, 0

	for _, f := range cc.ReferenceFacts {
		q, ok := nearestFor(text, qs, f.Metric, unitFor(f.Unit))
		if !ok {
			continue
		}
		scale := math.Max(math.Abs(f.Value), 1e-9)
		if math.Abs(q.Value-f.Value)/scale <= p.ReferenceTolerance {
			matched++
			res.Findings = append(res.Findings, fmt.Sprintf("%s %s matches reference%s", metricLabel(f.Metric), q.Raw, period(f.Period)))
			continue
		}
		mismatched++
		res.Findings = append(res.Findings, fmt.Sprintf("%s stated as %s but reference%s is %s", metricLabel(f.Metric), q.Raw, period(f.Period), formatAmount(f.Value)))
	}

	breaches := 0
	for _, th := range cc.Thresholds {
		q, ok := nearestFor(text, qs, th.Metric, unitAny)
		if !ok {
			continue
		}
		if (th.Min != nil && q.Value < *th.Min) || (th.Max != nil && q.Value > *th.Max) {
			breaches++
			desc := th.Description
			if desc == "" {
				desc = "regulatory threshold"
			}
			res.Findings = append(res.Findings, fmt.Sprintf("%s %s breaches %s", metricLabel(th.Metric), q.Raw, desc))
		}
	}

	switch {
	case mismatched > 0:
		res.Passed = false
		res.Severity = model.SeverityHigh
		res.Confidence = p.FailedConfidence
	case matched > 0:
		res.Confidence = p.MatchedConfidence
	default:
		res.Confidence = p.UngroundedConfidence
		res.Findings = append(res.Findings, "claim figures not covered by reference facts")
	}
	if breaches > 0 {
		res.Severity = model.MaxSeverity(res.Severity, model.SeverityHigh)
		res.Confidence = math.Max(0, res.Confidence-p.BreachPenalty)
	}
	return res
}

// nearestFor finds the quantity closest to a mention of metric. Quantities
// of an incompatible unit are ignored; unitPlain accepts money and plain
// numbers alike.
func nearestFor(text string, qs []quantity, metric string, want unit) (quantity, bool) {
	name := strings.ToLower(strings.ReplaceAll(metric, "_", " "))
	phrases := []string{name}
	for _, m := range sortedKeys(metrics) {
		if m == strings.ToLower(metric) || strings.Contains(name, metricLabel(m)) {
			phrases = append(phrases, metrics[m]...)
		}
	}

	best, bestDist := quantity{}, -1
	for _, ph := range phrases {
		for i := 0; ; {
			j := strings.Index(text[i:], ph)
			if j < 0 {
				break
			}
			pos := i + j
			for _, q := range qs {
				if !compatible(q.Unit, want) {
					continue
				}
				d := q.Start - pos
				if d < 0 {
					d = pos - q.End
				}
				if d < 0 {
					d = 0
				}
				if bestDist < 0 || d < bestDist {
					best, bestDist = q, d
				}
			}
			i = pos + len(ph)
		}
	}
	return best, bestDist >= 0
}

// currentValues drops the starting figures of "from A to B" phrases so
// reference checks compare against the value the claim ends on.
func currentValues(text string, qs []quantity) []quantity {
	out := make([]quantity, 0, len(qs))
	for _, q := range qs {
		if !precededBy(text, q, "from") {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return qs
	}
	return out
}

// unitAny matches every quantity.
const unitAny unit = -1

func compatible(got, want unit) bool {
	switch want {
	case unitAny:
		return true
	case unitPercent:
		return got == unitPercent
	}
	return got == unitMoney || got == unitPlain
}

func unitFor(s string) unit {
	switch strings.ToLower(s) {
	case "percent", "%", "pct":
		return unitPercent
	case "usd", "$":
		return unitMoney
	default:
		return unitPlain
	}
}

func period(p string) string {
	if p == "" {
		return ""
	}
	return " for " + p
}
