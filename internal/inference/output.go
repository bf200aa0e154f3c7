package inference

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/trust-router/internal/model"
)

const systemPrompt = `You verify claims taken from financial documents.
Read the section and state the single most important quantitative or qualitative claim it makes.
Respond with JSON only:
{"claim": "<the claim restated in one sentence>", "value": <the claim's key number, or null>, "confidence": <0.0 to 1.0>}`

// BuildPrompt renders the user prompt for one section.
func BuildPrompt(text string, claimHint string) string {
	var b strings.Builder
	b.WriteString("Section:\n")
	b.WriteString(text)
	if claimHint != "" {
		b.WriteString("\n\nClaim under review:\n")
		b.WriteString(claimHint)
	}
	return b.String()
}

type rawOutput struct {
	Claim      string  `json:"claim"`
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
}

// ParseOutput turns raw model text into a ModelOutput. Text that is not the
// expected JSON is kept as the extracted claim with zero self-reported
// confidence.
func ParseOutput(modelID, raw string, latency time.Duration) model.ModelOutput {
	out := model.ModelOutput{
		ModelID: modelID,
		RawText: raw,
		Latency: latency,
	}

	var parsed rawOutput
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &parsed); err != nil {
		out.ExtractedClaim = strings.TrimSpace(raw)
		return out
	}

	out.ExtractedClaim = strings.TrimSpace(parsed.Claim)
	if out.ExtractedClaim == "" {
		out.ExtractedClaim = strings.TrimSpace(raw)
	}
	out.Value = toFloat(parsed.Value)
	out.SelfReportedConfidence = clamp01(parsed.Confidence)
	return out
}

// cleanJSON strips code fences and surrounding prose from a JSON answer.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	for _, fence := range []string{"```json", "```"} {
		if strings.HasPrefix(text, fence) {
			text = strings.TrimPrefix(text, fence)
			if idx := strings.LastIndex(text, "```"); idx >= 0 {
				text = text[:idx]
			}
			break
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func toFloat(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		s := strings.NewReplacer(",", "", "$", "", "%", "").Replace(strings.TrimSpace(x))
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
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

// String renders a response for logs.
func (r *Response) String() string {
	return fmt.Sprintf("%s (%d in / %d out, %s)", r.ModelID, r.InputTokens, r.OutputTokens, r.Latency)
}
