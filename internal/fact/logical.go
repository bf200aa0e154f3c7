package fact

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sells-group/trust-router/internal/lexicon"
	"github.com/sells-group/trust-router/internal/model"
	"github.com/sells-group/trust-router/internal/policy"
)

// metrics maps a canonical metric to the phrases that name it.
var metrics = map[string][]string{
	"revenue":      {"revenue", "revenues", "sales", "top line", "turnover"},
	"earnings":     {"earnings", "net income", "profit", "profits", "bottom line", "net profit"},
	"eps":          {"eps", "earnings per share"},
	"margin":       {"margin", "margins", "gross margin", "operating margin"},
	"cash_flow":    {"cash flow", "free cash flow", "operating cash flow"},
	"debt":         {"debt", "borrowings", "leverage"},
	"expenses":     {"expenses", "costs", "opex", "operating expenses"},
	"guidance":     {"guidance", "outlook", "forecast"},
	"dividend":     {"dividend", "dividends", "payout"},
	"market_share": {"market share"},
}

var clauseSplitRe = regexp.MustCompile(`,\s|\bbut\b|\bwhile\b|\bwhereas\b|\balthough\b|\bhowever\b|\bbecause\b|\bdue to\b|\bas a result\b|\btherefore\b|\bthus\b`)

var fallacies = []struct {
	name    string
	markers []string
}{
	{"unsupported causal claim", []string{"because", "due to", "driven by", "as a result of", "caused by", "led to", "resulted in", "thanks to", "owing to"}},
	{"overgeneralization", []string{"always", "never", "everyone", "no one", "without exception", "every single", "across the board"}},
	{"unwarranted certainty", []string{"guaranteed", "guarantee", "certainly", "definitely", "inevitably", "cannot fail", "risk-free", "sure to", "will continue", "no doubt"}},
}

type direction int

const (
	dirNone direction = 0
	dirUp   direction = 1
	dirDown direction = -1
)

// logical checks that the claim does not contradict itself or its context
// and flags reasoning that overreaches its support.
func logical(text string, cc model.ClaimContext, p policy.FACTPolicy) model.ValidationResult {
	res := model.ValidationResult{Type: model.ValidationLogical, Applicable: true, Severity: model.SeverityLow}

	if len(lexicon.Words(text)) == 0 {
		res.Findings = []string{"claim has no logical structure to evaluate"}
		res.Severity = model.SeverityHigh
		return res
	}

	claimDirs := directions(text)
	res.Passed = true
	res.Confidence = 1
	if len(claimDirs) == 0 {
		res.Confidence = p.NoRelationConfidence
	}

	for _, m := range sortedKeys(claimDirs) {
		d := claimDirs[m]
		if d[dirUp] && d[dirDown] {
			res.Passed = false
			res.Severity = model.SeverityHigh
			res.Findings = append(res.Findings, fmt.Sprintf("contradiction: %s described as both rising and falling", metricLabel(m)))
		}
	}

	ctxDirs := contextDirections(cc)
	for _, m := range sortedKeys(claimDirs) {
		d := claimDirs[m]
		cd, ok := ctxDirs[m]
		if !ok || (d[dirUp] && d[dirDown]) {
			continue
		}
		switch {
		case d[dirUp] && cd[dirDown] && !cd[dirUp]:
			res.Passed = false
			res.Severity = model.SeverityHigh
			res.Findings = append(res.Findings, fmt.Sprintf("contradiction: claim says %s rose but context says it fell", metricLabel(m)))
		case d[dirDown] && cd[dirUp] && !cd[dirDown]:
			res.Passed = false
			res.Severity = model.SeverityHigh
			res.Findings = append(res.Findings, fmt.Sprintf("contradiction: claim says %s fell but context says it rose", metricLabel(m)))
		case (d[dirUp] && cd[dirUp]) || (d[dirDown] && cd[dirDown]):
			res.Findings = append(res.Findings, fmt.Sprintf("%s direction consistent with context", metricLabel(m)))
		}
	}

	supported := len(extractQuantities(text)) > 0 || cc.Grounded()
	penalty := 0.0
	for _, f := range fallacies {
		if !lexicon.ContainsAny(text, f.markers) {
			continue
		}
		if f.name == "unsupported causal claim" && supported {
			continue
		}
		penalty += p.FallacyPenalty
		res.Findings = append(res.Findings, "reasoning signal: "+f.name)
		res.Severity = model.MaxSeverity(res.Severity, model.SeverityMedium)
	}
	if penalty > p.MaxFallacyPenalty {
		penalty = p.MaxFallacyPenalty
	}
	res.Confidence -= penalty
	if !res.Passed {
		res.Confidence = min(res.Confidence, p.FailedConfidence)
	}
	if res.Confidence < 0 {
		res.Confidence = 0
	}
	if len(res.Findings) == 0 {
		res.Findings = []string{"no logical inconsistencies found"}
	}
	return res
}

// directions maps each metric mentioned in text to the directions asserted
// for it. A clause's direction applies to every metric in that clause.
func directions(text string) map[string]map[direction]bool {
	out := map[string]map[direction]bool{}
	for _, sentence := range lexicon.Sentences(text) {
		for _, clause := range clauseSplitRe.Split(sentence, -1) {
			clause = strings.TrimSpace(clause)
			up := lexicon.ContainsAny(clause, upWords)
			down := lexicon.ContainsAny(clause, downWords)
			if up == down {
				continue
			}
			d := dirUp
			if down {
				d = dirDown
			}
			for m, phrases := range metrics {
				if lexicon.ContainsAny(clause, phrases) {
					if out[m] == nil {
						out[m] = map[direction]bool{}
					}
					out[m][d] = true
				}
			}
		}
	}
	return out
}

// contextDirections collects metric directions from context statements and
// from signed growth or change reference facts.
func contextDirections(cc model.ClaimContext) map[string]map[direction]bool {
	out := map[string]map[direction]bool{}
	add := func(m string, d direction) {
		if out[m] == nil {
			out[m] = map[direction]bool{}
		}
		out[m][d] = true
	}
	for _, s := range cc.Statements {
		for m, ds := range directions(strings.ToLower(lexicon.Normalize(s))) {
			for d := range ds {
				add(m, d)
			}
		}
	}
	for _, f := range cc.ReferenceFacts {
		name := strings.ToLower(strings.ReplaceAll(f.Metric, "_", " "))
		if !strings.Contains(name, "growth") && !strings.Contains(name, "change") || f.Value == 0 {
			continue
		}
		d := dirUp
		if f.Value < 0 {
			d = dirDown
		}
		for m, phrases := range metrics {
			if lexicon.ContainsAny(name, phrases) {
				add(m, d)
			}
		}
	}
	return out
}

func metricLabel(m string) string {
	return strings.ReplaceAll(m, "_", " ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
