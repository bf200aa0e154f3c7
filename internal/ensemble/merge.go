package ensemble

import (
	"math"
	"strings"

	"github.com/sells-group/trust-router/internal/lexicon"
	"github.com/sells-group/trust-router/internal/model"
	"github.com/sells-group/trust-router/internal/policy"
)

// Confidence assumed for every model when none of them reports one.
const neutralConfidence = 0.5

type group struct {
	members []int
	anchor  *float64
	key     string
	weight  float64
}

// Merge combines successful outputs into one prediction by weighted vote.
// failed and cancelled name the models that produced nothing; only failures
// reduce confidence.
func Merge(outputs []model.ModelOutput, failed, cancelled []string, p *policy.Policy) model.MergedPrediction {
	ep := p.Ensemble
	merged := model.MergedPrediction{
		FailedModels:    append([]string(nil), failed...),
		CancelledModels: append([]string(nil), cancelled...),
	}
	if len(outputs) == 0 {
		return merged
	}

	conf := confidences(outputs)
	weights := make([]float64, len(outputs))
	var total float64
	for i, o := range outputs {
		weights[i] = p.Model(o.ModelID).Weight * conf[i]
		total += weights[i]
		merged.ContributingModels = append(merged.ContributingModels, o.ModelID)
	}

	groups := groupOutputs(outputs, ep.ValueTolerance)
	for gi := range groups {
		for _, i := range groups[gi].members {
			groups[gi].weight += weights[i]
		}
	}
	win := winner(groups, weights)

	var winConf float64
	for _, i := range win.members {
		winConf += weights[i] * conf[i]
	}
	if total > 0 {
		merged.AggregateConfidence = winConf / total
	}

	best := win.members[0]
	for _, i := range win.members[1:] {
		if weights[i] > weights[best] {
			best = i
		}
	}
	merged.Claim = outputs[best].ExtractedClaim
	merged.Value = weightedValue(outputs, weights, win.members)
	merged.AgreementScore = agreement(outputs, groups)

	if attempted := len(outputs) + len(failed); len(failed) > 0 {
		merged.AggregateConfidence *= 1 - ep.FailurePenalty*float64(len(failed))/float64(attempted)
	}
	if 1-merged.AgreementScore > ep.DisagreementThreshold {
		merged.DisagreementFlag = true
		merged.AggregateConfidence -= ep.DisagreementPenalty
	}
	merged.AggregateConfidence = clamp01(merged.AggregateConfidence)
	return merged
}

// Agreement scores how closely outputs agree, in [0,1]. A single group of
// numeric answers scores 1 minus their normalized variance; several groups
// score the plurality fraction.
func Agreement(outputs []model.ModelOutput, tolerance float64) float64 {
	if len(outputs) == 0 {
		return 0
	}
	return agreement(outputs, groupOutputs(outputs, tolerance))
}

func agreement(outputs []model.ModelOutput, groups []group) float64 {
	if len(outputs) <= 1 {
		return 1
	}
	if len(groups) > 1 {
		largest := 0
		for _, g := range groups {
			largest = max(largest, len(g.members))
		}
		return float64(largest) / float64(len(outputs))
	}

	var values []float64
	for _, i := range groups[0].members {
		if outputs[i].Value != nil {
			values = append(values, *outputs[i].Value)
		}
	}
	if len(values) < 2 {
		return 1
	}
	mean, variance := meanVariance(values)
	if variance == 0 {
		return 1
	}
	if mean == 0 {
		return 0
	}
	return clamp01(1 - variance/(mean*mean))
}

// groupOutputs buckets numeric answers by relative tolerance around each
// group's first value and text answers by normalized claim.
func groupOutputs(outputs []model.ModelOutput, tolerance float64) []group {
	var groups []group
outer:
	for i, o := range outputs {
		key := ""
		if o.Value == nil {
			key = claimKey(o.ExtractedClaim)
		}
		for gi := range groups {
			g := &groups[gi]
			switch {
			case o.Value != nil && g.anchor != nil && within(*o.Value, *g.anchor, tolerance):
			case o.Value == nil && g.anchor == nil && g.key == key:
			default:
				continue
			}
			g.members = append(g.members, i)
			continue outer
		}
		groups = append(groups, group{members: []int{i}, anchor: o.Value, key: key})
	}
	return groups
}

// winner returns the heaviest group. Ties go to the group holding the single
// heaviest model.
func winner(groups []group, weights []float64) group {
	best := 0
	for gi := 1; gi < len(groups); gi++ {
		switch {
		case groups[gi].weight > groups[best].weight:
			best = gi
		case groups[gi].weight == groups[best].weight && maxWeight(groups[gi], weights) > maxWeight(groups[best], weights):
			best = gi
		}
	}
	return groups[best]
}

func maxWeight(g group, weights []float64) float64 {
	m := 0.0
	for _, i := range g.members {
		m = max(m, weights[i])
	}
	return m
}

func weightedValue(outputs []model.ModelOutput, weights []float64, members []int) *float64 {
	var sum, wsum float64
	var plain []float64
	for _, i := range members {
		if outputs[i].Value == nil {
			continue
		}
		plain = append(plain, *outputs[i].Value)
		sum += weights[i] * *outputs[i].Value
		wsum += weights[i]
	}
	if len(plain) == 0 {
		return nil
	}
	var v float64
	if wsum > 0 {
		v = sum / wsum
	} else {
		v, _ = meanVariance(plain)
	}
	return &v
}

func confidences(outputs []model.ModelOutput) []float64 {
	conf := make([]float64, len(outputs))
	reported := false
	for i, o := range outputs {
		conf[i] = clamp01(o.SelfReportedConfidence)
		if conf[i] > 0 {
			reported = true
		}
	}
	if !reported {
		for i := range conf {
			conf[i] = neutralConfidence
		}
	}
	return conf
}

func within(v, anchor, tolerance float64) bool {
	scale := math.Max(math.Abs(v), math.Abs(anchor))
	if scale == 0 {
		return true
	}
	return math.Abs(v-anchor) <= tolerance*scale
}

func claimKey(s string) string {
	s = strings.ToLower(lexicon.Normalize(s))
	return strings.TrimRight(s, ".!?; ")
}

func meanVariance(xs []float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return mean, ss / float64(len(xs))
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
