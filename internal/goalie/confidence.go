package goalie

import (
	"go.uber.org/zap"

	"github.com/sells-group/trust-router/internal/model"
	"github.com/sells-group/trust-router/internal/policy"
)

// ScoreConfidence blends model agreement, FACT confidence and the models'
// own confidence, less a penalty for their spread.
func (pr *Protector) ScoreConfidence(in Input, p *policy.Policy) model.ConfidenceScore {
	bl := p.GOALIE.Blend
	agreement, _ := agreementOf(in, p)

	selfMean, variance := selfConfidence(in)
	var factConf float64
	if in.Report != nil {
		factConf = in.Report.ConfidenceScore
	}

	blended := bl.AgreementWeight*agreement +
		bl.FACTWeight*factConf +
		bl.ModelWeight*selfMean -
		bl.VariancePenalty*variance

	cs := model.ConfidenceScore{
		ModelAgreement: agreement,
		Variance:       variance,
		Blended:        clamp01(blended),
	}
	cs.Reliability = pr.reliability(cs.Blended, p.GOALIE.ReliabilityBands, p.Version)
	return cs
}

// selfConfidence returns the mean and population variance of the models'
// self-reported confidence. Without outputs the merged aggregate stands in
// for the mean.
func selfConfidence(in Input) (float64, float64) {
	if len(in.Outputs) == 0 {
		if in.Merged != nil {
			return in.Merged.AggregateConfidence, 0
		}
		return 0, 0
	}
	var sum float64
	for _, o := range in.Outputs {
		sum += clamp01(o.SelfReportedConfidence)
	}
	mean := sum / float64(len(in.Outputs))
	var ss float64
	for _, o := range in.Outputs {
		d := clamp01(o.SelfReportedConfidence) - mean
		ss += d * d
	}
	return mean, ss / float64(len(in.Outputs))
}

func (pr *Protector) reliability(blended float64, bands []policy.Band, version string) model.Reliability {
	for _, b := range bands {
		if !b.Contains(blended) {
			continue
		}
		if r, err := model.ParseReliability(b.Name); err == nil {
			return r
		}
	}
	pr.log.Warn("goalie: no reliability band matched, failing closed to unreliable",
		zap.Error(model.ErrConfigurationDrift),
		zap.Float64("confidence", blended),
		zap.String("policy_version", version),
	)
	return model.Unreliable
}
