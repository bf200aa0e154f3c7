// Package lexicon holds the shared financial vocabulary and text
// normalization used by the scorer, the validators and the risk layer.
package lexicon

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// dashFolder maps unicode dashes and minus signs to ASCII.
var dashFolder = strings.NewReplacer(
	"\u2212", "-",
	"\u2013", "-",
	"\u2014", " - ",
	"\u2012", "-",
	"\u2009", " ",
	"\u202f", " ",
)

// Normalize applies NFKC, folds dashes and collapses whitespace. Full-width
// digits and symbols become ASCII so numeric parsing sees one form.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = dashFolder.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

var wordRe = regexp.MustCompile(`[A-Za-z][A-Za-z'\-]*`)

// Words returns the alphabetic tokens of s in lower case.
func Words(s string) []string {
	raw := wordRe.FindAllString(s, -1)
	out := make([]string, len(raw))
	for i, w := range raw {
		out[i] = strings.ToLower(w)
	}
	return out
}

var sentenceRe = regexp.MustCompile(`[.!?;]+(\s+|$)`)

// Sentences splits s on terminal punctuation. Decimal points are kept
// because a split requires trailing whitespace or end of input.
func Sentences(s string) []string {
	var out []string
	for _, part := range sentenceRe.Split(s, -1) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ForwardLooking phrases mark predictive statements.
var ForwardLooking = []string{
	"expect", "expects", "expected", "anticipate", "anticipates", "forecast",
	"forecasts", "guidance", "outlook", "project", "projects", "projected",
	"will", "plan to", "plans to", "intend", "intends", "target", "estimate",
	"estimates", "likely", "going forward", "next year", "next quarter",
}

// FinancialTerms count toward numeric density alongside literal figures.
var FinancialTerms = []string{
	"revenue", "revenues", "sales", "earnings", "eps", "ebitda", "margin",
	"margins", "profit", "income", "cash", "debt", "liabilities", "assets",
	"equity", "dividend", "capex", "opex", "expenses", "guidance", "yoy",
	"quarter", "fiscal", "basis", "points", "bps",
}

// CountPhrases counts occurrences of any phrase as a whole word or word
// sequence in lower-cased text.
func CountPhrases(lower string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		n += countWord(lower, p)
	}
	return n
}

// ContainsAny reports whether lower contains any phrase as a whole word.
func ContainsAny(lower string, phrases []string) bool {
	for _, p := range phrases {
		if countWord(lower, p) > 0 {
			return true
		}
	}
	return false
}

func countWord(s, w string) int {
	n := 0
	for i := 0; ; {
		j := strings.Index(s[i:], w)
		if j < 0 {
			return n
		}
		start := i + j
		end := start + len(w)
		if boundary(s, start-1) && boundary(s, end) {
			n++
		}
		i = start + 1
		if i >= len(s) {
			return n
		}
	}
}

func boundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	r := rune(s[i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
