package fact

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/sells-group/trust-router/internal/lexicon"
	"github.com/sells-group/trust-router/internal/model"
	"github.com/sells-group/trust-router/internal/policy"
)

var (
	upWords = []string{
		"increase", "increased", "increases", "increasing", "grew", "grow", "grows", "growth",
		"rose", "rise", "rises", "up", "gain", "gained", "climbed", "jumped", "improved",
		"expanded", "higher", "surged", "raised",
	}
	downWords = []string{
		"decrease", "decreased", "decreases", "declined", "decline", "declines", "fell", "fall",
		"falls", "dropped", "drop", "down", "lost", "shrank", "contracted", "lower", "slipped",
		"plunged", "reduced", "cut",
	}
)

// verdict is the outcome of one recomputed relation.
type verdict struct {
	finding   string
	passed    bool
	severity  model.Severity
	ambiguous bool
}

// mathematical recomputes every arithmetic relation the claim asserts.
func mathematical(text string, p policy.FACTPolicy) model.ValidationResult {
	res := model.ValidationResult{Type: model.ValidationMathematical, Applicable: true, Severity: model.SeverityLow}

	if len(lexicon.Words(text)) == 0 {
		res.Findings = []string{"claim has no parseable words"}
		res.Severity = model.SeverityHigh
		return res
	}

	qs := extractQuantities(text)
	if len(qs) == 0 {
		res.Passed = true
		res.Confidence = p.NoNumbersConfidence
		res.Findings = []string{"no numeric content to verify"}
		return res
	}

	var verdicts []verdict
	for _, sentence := range clauses(text) {
		verdicts = append(verdicts, checkChange(sentence, p)...)
		verdicts = append(verdicts, checkShare(sentence, p)...)
		verdicts = append(verdicts, checkArithmetic(sentence, p)...)
	}
	if len(verdicts) == 0 {
		res.Passed = true
		res.Confidence = p.NoRelationConfidence
		res.Findings = []string{fmt.Sprintf("found %d figures but no checkable relation", len(qs))}
		return res
	}

	res.Passed = true
	res.Confidence = 1
	for _, v := range verdicts {
		res.Findings = append(res.Findings, v.finding)
		if !v.passed {
			res.Passed = false
		}
		if v.ambiguous {
			res.Confidence -= p.AmbiguityPenalty
		}
		res.Severity = model.MaxSeverity(res.Severity, v.severity)
	}
	if !res.Passed {
		res.Confidence = p.FailedConfidence
		if res.Severity == model.SeverityCritical {
			res.Confidence = p.CriticalFailedConfidence
		}
	}
	res.Confidence = math.Max(0, res.Confidence)
	return res
}

// clauses splits text into sentences so relations never span sentences.
func clauses(text string) []string {
	return lexicon.Sentences(text)
}

var directionRe = regexp.MustCompile(`(?i)\b(` + strings.Join(append(append([]string{}, upWords...), downWords...), "|") + `)\b`)

// checkChange verifies "<metric> <direction> P% from A to B" statements,
// with the endpoints in either order, and "<metric> of A <direction> P% to B"
// where the base is named before the direction word.
func checkChange(s string, p policy.FACTPolicy) []verdict {
	qs := extractQuantities(s)
	from, to, ok := changeEndpoints(s, qs)
	if !ok {
		return nil
	}
	a, b := qs[from], qs[to]

	if (a.Unit == unitPercent) != (b.Unit == unitPercent) {
		return []verdict{{
			finding:  fmt.Sprintf("unit conflation: compares %s (%s) with %s (%s)", a.Raw, a.Unit, b.Raw, b.Unit),
			severity: model.SeverityHigh,
		}}
	}

	lower := strings.ToLower(s)
	up := lexicon.ContainsAny(lower, upWords)
	down := lexicon.ContainsAny(lower, downWords)

	var out []verdict
	delta := b.Value - a.Value
	switch {
	case up && !down && delta < 0:
		out = append(out, verdict{
			finding:  fmt.Sprintf("direction contradiction: described as an increase but %s to %s is a decrease", a.Raw, b.Raw),
			severity: model.SeverityCritical,
		})
	case down && !up && delta > 0:
		out = append(out, verdict{
			finding:  fmt.Sprintf("direction contradiction: described as a decrease but %s to %s is an increase", a.Raw, b.Raw),
			severity: model.SeverityCritical,
		})
	}

	for i, q := range qs {
		if i == from || i == to {
			continue
		}
		switch q.Unit {
		case unitPercent:
			out = append(out, checkPercentChange(a, b, q, p))
		case unitPoints:
			if a.Unit != unitPercent {
				out = append(out, verdict{
					finding:  fmt.Sprintf("unit conflation: %s applied to non-percentage values", q.Raw),
					severity: model.SeverityHigh,
				})
				continue
			}
			out = append(out, compare("percentage point change", math.Abs(delta), math.Abs(q.Value), q.Raw, p))
		case unitMoney, unitPlain:
			if !precededBy(s, q, "by") {
				continue
			}
			out = append(out, checkAbsoluteDelta(delta, q, p))
		}
	}
	return out
}

// changeEndpoints picks the start and end values of a stated change. An
// endpoint missing its from/to marker may be supplied by a figure introduced
// with "of" or "at" when a direction word separates it from the other
// endpoint, so a range such as "of $4.2B to $4.4B" is not read as a change.
func changeEndpoints(s string, qs []quantity) (from, to int, ok bool) {
	from, to = -1, -1
	for i := range qs {
		switch {
		case from < 0 && precededBy(s, qs[i], "from"):
			from = i
		case to < 0 && precededBy(s, qs[i], "to"):
			to = i
		}
	}
	if from >= 0 && to >= 0 {
		return from, to, true
	}
	if from < 0 && to < 0 {
		return -1, -1, false
	}

	other := qs[max(from, to)]
	named := -1
	for i := range qs {
		if qs[i].End > other.Start {
			break
		}
		if !precededBy(s, qs[i], "of") && !precededBy(s, qs[i], "at") {
			continue
		}
		if directionRe.MatchString(s[qs[i].End:other.Start]) {
			named = i
		}
	}
	switch {
	case named < 0:
		return -1, -1, false
	case from < 0:
		// "revenue of A rose P% to B"
		return named, to, true
	default:
		// "revenue of B rose P% from A"
		return from, named, true
	}
}

func checkPercentChange(a, b, asserted quantity, p policy.FACTPolicy) verdict {
	if a.Value == 0 {
		return verdict{
			finding:  fmt.Sprintf("cannot verify %s change from a zero base", asserted.Raw),
			passed:   true,
			severity: model.SeverityMedium,
		}
	}
	rel := (b.Value - a.Value) / math.Abs(a.Value) * 100
	v := compare("relative change", math.Abs(rel), math.Abs(asserted.Value), asserted.Raw, p)
	if v.passed || a.Unit != unitPercent {
		return v
	}
	// Between two percentages "+2%" may mean two points.
	points := math.Abs(b.Value - a.Value)
	if math.Abs(points-math.Abs(asserted.Value)) <= p.TolerancePP {
		return verdict{
			finding:   fmt.Sprintf("%s matches the percentage point change %.2f, not the relative change %.2f%%; ambiguous wording", asserted.Raw, points, rel),
			passed:    true,
			severity:  model.SeverityMedium,
			ambiguous: true,
		}
	}
	return v
}

func checkAbsoluteDelta(delta float64, asserted quantity, p policy.FACTPolicy) verdict {
	want := math.Abs(asserted.Value)
	got := math.Abs(delta)
	scale := math.Max(want, 1e-9)
	dev := math.Abs(got-want) / scale * 100
	if dev <= p.TolerancePP {
		return verdict{finding: fmt.Sprintf("absolute change %s verified", asserted.Raw), passed: true, severity: model.SeverityLow}
	}
	sev := model.SeverityHigh
	if dev > p.CriticalDeviationPP {
		sev = model.SeverityCritical
	}
	return verdict{
		finding:  fmt.Sprintf("absolute change stated as %s but recomputes to %s", asserted.Raw, formatAmount(got)),
		severity: sev,
	}
}

// checkShare verifies "A is P% of B".
func checkShare(s string, p policy.FACTPolicy) []verdict {
	qs := extractQuantities(s)
	var out []verdict
	for i := 1; i+1 < len(qs); i++ {
		pct, part, whole := qs[i], qs[i-1], qs[i+1]
		if pct.Unit != unitPercent || part.Unit == unitPercent || whole.Unit == unitPercent {
			continue
		}
		between := strings.TrimSpace(s[pct.End:whole.Start])
		if !strings.HasPrefix(between, "of") {
			continue
		}
		link := strings.TrimSpace(s[part.End:pct.Start])
		if !lexicon.ContainsAny(link, []string{"is", "was", "represents", "represented", "accounts for", "accounted for", "equals", "equaled", "or"}) {
			continue
		}
		if whole.Value == 0 {
			continue
		}
		share := part.Value / whole.Value * 100
		out = append(out, compare("share", share, pct.Value, pct.Raw, p))
	}
	return out
}

// checkArithmetic verifies explicit "A op B = C" expressions.
func checkArithmetic(s string, p policy.FACTPolicy) []verdict {
	qs := extractQuantities(s)
	var out []verdict
	for i := 0; i+2 < len(qs); i++ {
		a, b, c := qs[i], qs[i+1], qs[i+2]
		op := strings.TrimSpace(s[a.End:b.Start])
		eq := strings.TrimSpace(s[b.End:c.Start])
		if eq != "=" && eq != "equals" {
			continue
		}
		var got float64
		switch op {
		case "+", "plus":
			got = a.Value + b.Value
		case "-", "minus":
			got = a.Value - b.Value
		case "x", "*", "×", "times":
			got = a.Value * b.Value
		case "/", "divided by":
			if b.Value == 0 {
				out = append(out, verdict{finding: "division by zero in stated arithmetic", severity: model.SeverityHigh})
				continue
			}
			got = a.Value / b.Value
		default:
			continue
		}
		scale := math.Max(math.Abs(c.Value), 1e-9)
		dev := math.Abs(got-c.Value) / scale * 100
		expr := fmt.Sprintf("%s %s %s = %s", a.Raw, op, b.Raw, c.Raw)
		if dev <= p.TolerancePP {
			out = append(out, verdict{finding: "arithmetic verified: " + expr, passed: true, severity: model.SeverityLow})
			continue
		}
		sev := model.SeverityHigh
		if dev > p.CriticalDeviationPP {
			sev = model.SeverityCritical
		}
		out = append(out, verdict{finding: fmt.Sprintf("arithmetic mismatch: %s recomputes to %s", expr, formatAmount(got)), severity: sev})
	}
	return out
}

// compare checks a recomputed percentage against the stated one in
// percentage points.
func compare(what string, got, stated float64, raw string, p policy.FACTPolicy) verdict {
	dev := math.Abs(got - stated)
	if dev <= p.TolerancePP {
		return verdict{
			finding:  fmt.Sprintf("%s %s verified (recomputed %.2f)", what, raw, got),
			passed:   true,
			severity: model.SeverityLow,
		}
	}
	sev := model.SeverityHigh
	if dev > p.CriticalDeviationPP {
		sev = model.SeverityCritical
	}
	return verdict{
		finding:  fmt.Sprintf("%s stated as %s but recomputes to %.2f (off by %.2f points)", what, raw, got, dev),
		severity: sev,
	}
}

func formatAmount(v float64) string {
	switch a := math.Abs(v); {
	case a >= 1e9:
		return fmt.Sprintf("%.2fB", v/1e9)
	case a >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	case a >= 1e3:
		return fmt.Sprintf("%.2fK", v/1e3)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}
