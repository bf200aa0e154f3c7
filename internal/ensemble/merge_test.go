package ensemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/trust-router/internal/model"
	"github.com/sells-group/trust-router/internal/policy"
)

func out(id string, value float64, conf float64) model.ModelOutput {
	v := value
	return model.ModelOutput{ModelID: id, ExtractedClaim: "Revenue grew", Value: &v, SelfReportedConfidence: conf}
}

func textOut(id, claim string, conf float64) model.ModelOutput {
	return model.ModelOutput{ModelID: id, ExtractedClaim: claim, SelfReportedConfidence: conf}
}

func TestAgreement_IdenticalOutputs(t *testing.T) {
	t.Parallel()

	outputs := []model.ModelOutput{out("a", 25, 0.9), out("b", 25, 0.7), out("c", 25, 0.8)}
	assert.InDelta(t, 1.0, Agreement(outputs, 0.01), 1e-9)

	texts := []model.ModelOutput{textOut("a", "Margins held.", 0.5), textOut("b", "margins  held", 0.5)}
	assert.InDelta(t, 1.0, Agreement(texts, 0.01), 1e-9)
}

func TestAgreement_WithinToleranceUsesVariance(t *testing.T) {
	t.Parallel()

	outputs := []model.ModelOutput{out("a", 100, 0.9), out("b", 100.5, 0.9)}
	got := Agreement(outputs, 0.01)
	assert.Less(t, got, 1.0)
	assert.Greater(t, got, 0.99)
}

func TestAgreement_Empty(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0.0, Agreement(nil, 0.01))
	assert.Equal(t, 1.0, Agreement([]model.ModelOutput{out("a", 1, 1)}, 0.01))
}

func TestMerge_FourAgainstOne(t *testing.T) {
	t.Parallel()

	p := policy.Default()
	outputs := []model.ModelOutput{
		out("a", 25, 0.8), out("b", 25, 0.8), out("c", 25, 0.8), out("d", 25, 0.8),
		out("e", 40, 0.8),
	}
	m := Merge(outputs, nil, nil, p)

	assert.InDelta(t, 0.8, m.AgreementScore, 1e-9)
	assert.False(t, m.DisagreementFlag)
	require.NotNil(t, m.Value)
	assert.InDelta(t, 25, *m.Value, 1e-9)
	// 4 winners of weight 0.8 at confidence 0.8 over a total weight of 4.0.
	assert.InDelta(t, 4*0.8*0.8/4.0, m.AggregateConfidence, 1e-9)
	assert.Len(t, m.ContributingModels, 5)
}

func TestMerge_EvenSplitPenalized(t *testing.T) {
	t.Parallel()

	p := policy.Default()
	m := Merge([]model.ModelOutput{out("a", 25, 0.8), out("b", 40, 0.8)}, nil, nil, p)

	assert.InDelta(t, 0.5, m.AgreementScore, 1e-9)
	assert.True(t, m.DisagreementFlag)
	assert.InDelta(t, 0.4-p.Ensemble.DisagreementPenalty, m.AggregateConfidence, 1e-9)
	require.NotNil(t, m.Value)
	assert.InDelta(t, 25, *m.Value, 1e-9, "tie goes to the first heaviest group")
}

func TestMerge_HeaviestGroupWins(t *testing.T) {
	t.Parallel()

	p := policy.Default()
	p.Models["heavy"] = policy.ModelPolicy{Provider: policy.ProviderAnthropic, Weight: 2}
	p.Models["light"] = policy.ModelPolicy{Provider: policy.ProviderAnthropic, Weight: 0.5}

	// 25: a(1.0) + light(0.5) = 1.5 against 40: heavy(2.0).
	m := Merge([]model.ModelOutput{out("a", 25, 1), out("light", 25, 1), out("heavy", 40, 1)}, nil, nil, p)
	require.NotNil(t, m.Value)
	assert.InDelta(t, 40, *m.Value, 1e-9)
}

func TestMerge_FailurePenalty(t *testing.T) {
	t.Parallel()

	p := policy.Default()
	m := Merge([]model.ModelOutput{out("a", 25, 0.8), out("b", 25, 0.8)}, []string{"c"}, nil, p)

	assert.InDelta(t, 1.0, m.AgreementScore, 1e-9)
	assert.InDelta(t, 0.8*(1-0.5/3), m.AggregateConfidence, 1e-9)
	assert.Equal(t, []string{"c"}, m.FailedModels)
}

func TestMerge_CancelledNotPenalized(t *testing.T) {
	t.Parallel()

	p := policy.Default()
	m := Merge([]model.ModelOutput{out("a", 25, 0.8), out("b", 25, 0.8)}, nil, []string{"c"}, p)
	assert.InDelta(t, 0.8, m.AggregateConfidence, 1e-9)
	assert.Equal(t, []string{"c"}, m.CancelledModels)
	assert.Empty(t, m.FailedModels)
}

func TestMerge_NoConfidenceReported(t *testing.T) {
	t.Parallel()

	p := policy.Default()
	m := Merge([]model.ModelOutput{textOut("a", "Guidance raised", 0), textOut("b", "guidance raised.", 0)}, nil, nil, p)
	assert.Equal(t, "Guidance raised", m.Claim)
	assert.Nil(t, m.Value)
	assert.InDelta(t, neutralConfidence, m.AggregateConfidence, 1e-9)
}

func TestMerge_SingleOutput(t *testing.T) {
	t.Parallel()

	m := Merge([]model.ModelOutput{out("a", 10, 0.6)}, nil, nil, policy.Default())
	assert.Equal(t, 1.0, m.AgreementScore)
	assert.InDelta(t, 0.6, m.AggregateConfidence, 1e-9)
	assert.False(t, m.DisagreementFlag)
}
