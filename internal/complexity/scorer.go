// Package complexity scores document sections for routing.
package complexity

import (
	"math"
	"regexp"
	"strings"

	"github.com/sells-group/trust-router/internal/lexicon"
	"github.com/sells-group/trust-router/internal/model"
	"github.com/sells-group/trust-router/internal/policy"
)

// Lexical normalization bounds. Mean word length of plain English sits near
// 4.5 letters; dense filings approach 7.
const (
	minMeanWordLen = 4.0
	maxMeanWordLen = 7.0
	longWordLen    = 9
)

var numericRe = regexp.MustCompile(`[$€£]?\d[\d,]*(\.\d+)?\s*(%|percent|bps|[KMBT]\b|thousand|million|billion|trillion)?`)

// Score computes the complexity of a section. It is a pure function of its
// inputs; empty text yields the minimum score.
func Score(text string, meta model.SectionMeta, p policy.ComplexityPolicy) model.ComplexityScore {
	text = lexicon.Normalize(text)
	vol := clamp01(meta.HistoricalVolatility)
	if text == "" {
		return model.ComplexityScore{}
	}

	words := strings.Fields(text)
	alpha := lexicon.Words(text)
	lower := strings.ToLower(text)

	s := model.ComplexityScore{
		Length:         clamp01(float64(len(words)) / float64(max(p.LengthSaturationWords, 1))),
		Lexical:        lexical(alpha),
		NumericDensity: numericDensity(text, lower, len(words), p.NumericSaturation),
		ForwardLooking: forwardDensity(text, lower, p.ForwardSaturation),
		Volatility:     vol,
	}

	total := p.LengthWeight + p.LexicalWeight + p.NumericWeight + p.ForwardLookingWeight + p.VolatilityWeight
	if total <= 0 {
		return s
	}
	sum := p.LengthWeight*s.Length +
		p.LexicalWeight*s.Lexical +
		p.NumericWeight*s.NumericDensity +
		p.ForwardLookingWeight*s.ForwardLooking +
		p.VolatilityWeight*s.Volatility
	s.Value = clamp01(sum / total)
	return s
}

func lexical(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	var letters, long int
	for _, w := range words {
		letters += len(w)
		if len(w) >= longWordLen {
			long++
		}
	}
	mean := float64(letters) / float64(len(words))
	meanScore := clamp01((mean - minMeanWordLen) / (maxMeanWordLen - minMeanWordLen))
	longRatio := clamp01(float64(long) / float64(len(words)) * 4)
	return (meanScore + longRatio) / 2
}

func numericDensity(text, lower string, wordCount int, saturation float64) float64 {
	if wordCount == 0 || saturation <= 0 {
		return 0
	}
	hits := len(numericRe.FindAllString(text, -1)) + lexicon.CountPhrases(lower, lexicon.FinancialTerms)
	return clamp01(float64(hits) / float64(wordCount) / saturation)
}

func forwardDensity(text, lower string, saturation float64) float64 {
	sentences := len(lexicon.Sentences(text))
	if sentences == 0 || saturation <= 0 {
		return 0
	}
	hits := lexicon.CountPhrases(lower, lexicon.ForwardLooking)
	return clamp01(float64(hits) / float64(sentences) / saturation)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
