package fact

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

type unit int

const (
	unitPlain unit = iota
	unitMoney
	unitPercent
	unitPoints
)

func (u unit) String() string {
	switch u {
	case unitMoney:
		return "money"
	case unitPercent:
		return "percent"
	case unitPoints:
		return "percentage points"
	default:
		return "number"
	}
}

// quantity is one number found in claim text, already scaled to base units.
type quantity struct {
	Value float64
	Unit  unit
	Start int
	End   int
	Raw   string
}

var quantityRe = regexp.MustCompile(`(?i)(\$|usd\s?)?(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)\s*(percentage points?|percent|basis points|bps\b|pp\b|%|trillion\b|billion\b|million\b|thousand\b|tn\b|bn\b|mn\b|[tbmk]\b)?`)

var scales = map[string]float64{
	"t": 1e12, "tn": 1e12, "trillion": 1e12,
	"b": 1e9, "bn": 1e9, "billion": 1e9,
	"m": 1e6, "mn": 1e6, "million": 1e6,
	"k": 1e3, "thousand": 1e3,
}

// extractQuantities finds every number in lower-cased normalized text.
// Calendar years are not quantities.
func extractQuantities(text string) []quantity {
	var out []quantity
	for _, m := range quantityRe.FindAllStringSubmatchIndex(text, -1) {
		// Skip digits glued to letters, as in "q3" or "fy2024".
		if m[0] > 0 && isLetter(text[m[0]-1]) {
			continue
		}
		num := strings.ReplaceAll(text[m[4]:m[5]], ",", "")
		v, err := strconv.ParseFloat(num, 64)
		if err != nil || math.IsInf(v, 0) {
			continue
		}
		if m[4] > 0 && text[m[4]-1] == '-' && (m[4] < 2 || !isAlnum(text[m[4]-2])) {
			v = -v
		}

		q := quantity{Value: v, Unit: unitPlain, Start: m[0], End: m[1], Raw: strings.TrimSpace(text[m[0]:m[1]])}
		if m[2] >= 0 {
			q.Unit = unitMoney
		}
		if m[6] >= 0 {
			suffix := strings.ToLower(text[m[6]:m[7]])
			switch {
			case suffix == "%" || suffix == "percent":
				q.Unit = unitPercent
			case strings.HasPrefix(suffix, "percentage point") || suffix == "pp":
				q.Unit = unitPoints
			case suffix == "bps" || suffix == "basis points":
				q.Unit = unitPoints
				q.Value /= 100
			default:
				q.Value *= scales[suffix]
			}
		}
		if isYear(q, num) {
			continue
		}
		out = append(out, q)
	}
	return out
}

// isYear reports whether a bare four digit integer reads as a calendar year.
func isYear(q quantity, num string) bool {
	return q.Unit == unitPlain && len(num) == 4 && !strings.Contains(num, ".") && q.Value >= 1900 && q.Value <= 2100
}

// before returns up to n bytes of text preceding q, trimmed and lower-cased.
func before(text string, q quantity, n int) string {
	start := max(0, q.Start-n)
	return strings.TrimSpace(text[start:q.Start])
}

func precededBy(text string, q quantity, word string) bool {
	b := before(text, q, len(word)+2)
	return strings.HasSuffix(b, word) && (len(b) == len(word) || !isLetter(b[len(b)-len(word)-1]))
}

func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

func isAlnum(c byte) bool { return isLetter(c) || (c >= '0' && c <= '9') }
