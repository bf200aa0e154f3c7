package inference

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		wantClaim string
		wantValue *float64
		wantConf  float64
	}{
		{
			name:      "plain json",
			raw:       `{"claim":"Revenue grew 25%","value":25,"confidence":0.9}`,
			wantClaim: "Revenue grew 25%",
			wantValue: ptr(25),
			wantConf:  0.9,
		},
		{
			name:      "fenced with prose",
			raw:       "Here you go:\n```json\n{\"claim\":\"Margin fell\",\"value\":\"12.5%\",\"confidence\":0.6}\n```",
			wantClaim: "Margin fell",
			wantValue: ptr(12.5),
			wantConf:  0.6,
		},
		{
			name:      "null value and oversized confidence",
			raw:       `{"claim":"Outlook is stable","value":null,"confidence":7}`,
			wantClaim: "Outlook is stable",
			wantConf:  1,
		},
		{
			name:      "not json",
			raw:       "  Revenue grew strongly.  ",
			wantClaim: "Revenue grew strongly.",
		},
		{
			name:      "unparsable value string",
			raw:       `{"claim":"x","value":"n/a","confidence":-1}`,
			wantClaim: "x",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out := ParseOutput("m", tt.raw, time.Second)
			assert.Equal(t, "m", out.ModelID)
			assert.Equal(t, tt.raw, out.RawText)
			assert.Equal(t, time.Second, out.Latency)
			assert.Equal(t, tt.wantClaim, out.ExtractedClaim)
			assert.InDelta(t, tt.wantConf, out.SelfReportedConfidence, 1e-9)
			if tt.wantValue == nil {
				assert.Nil(t, out.Value)
				return
			}
			require.NotNil(t, out.Value)
			assert.InDelta(t, *tt.wantValue, *out.Value, 1e-9)
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Section:\nbody", BuildPrompt("body", ""))
	assert.Contains(t, BuildPrompt("body", "Revenue grew 25%"), "Claim under review:\nRevenue grew 25%")
}

func ptr(f float64) *float64 { return &f }
