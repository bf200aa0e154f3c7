package goalie

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/trust-router/internal/ensemble"
	"github.com/sells-group/trust-router/internal/lexicon"
	"github.com/sells-group/trust-router/internal/model"
	"github.com/sells-group/trust-router/internal/policy"
)

// Risk factor names recorded on assessments.
const (
	FactorUncertainty    = "uncertainty_flag"
	FactorThinHistory    = "thin_history"
	FactorVolatility     = "high_volatility"
	FactorDisagreement   = "model_disagreement"
	FactorForwardLooking = "forward_looking"
	FactorFACTFailure    = "fact_failure"
	FactorFACTSeverity   = "fact_severity"
	MitigationAgreement  = "strong_agreement"
	MitigationFACT       = "high_fact_confidence"
)

// AssessRisk classifies the prediction and scores it from the category
// base plus every fired factor, minus mitigations.
func (pr *Protector) AssessRisk(in Input, p *policy.Policy) model.RiskAssessment {
	gp := p.GOALIE
	f := gp.Factors
	lower := strings.ToLower(lexicon.Normalize(in.Prediction.Text))

	cat := classify(lower, p)
	base, _ := p.BaseScore(cat)
	ra := model.RiskAssessment{Category: cat, Score: base}

	fire := func(name string, delta float64) {
		ra.Score += delta
		ra.Factors = append(ra.Factors, name)
	}

	if in.Context.UncertaintyFlag {
		fire(FactorUncertainty, f.Uncertainty)
	}
	if in.Context.HistoryDepth < f.MinHistoryDepth {
		fire(FactorThinHistory, f.ThinHistory)
	}
	if in.Context.HistoricalVolatility >= f.VolatilityThreshold {
		fire(FactorVolatility, f.Volatility)
	}

	agreement, disagree := agreementOf(in, p)
	if disagree {
		fire(FactorDisagreement, f.Disagreement)
	}
	if lexicon.ContainsAny(lower, lexicon.ForwardLooking) {
		fire(FactorForwardLooking, f.ForwardLooking)
	}
	if in.Report != nil {
		if !in.Report.OverallPassed {
			fire(FactorFACTFailure, f.FACTFailure)
		}
		if in.Report.RiskLevel >= model.SeverityHigh {
			fire(FactorFACTSeverity, f.FACTSeverity)
		}
	}

	if len(in.Outputs) >= 2 && agreement >= f.StrongAgreementThreshold && !disagree {
		fire(MitigationAgreement, -f.StrongAgreement)
	}
	if in.Report != nil && in.Report.OverallPassed && in.Report.ConfidenceScore >= f.HighFACTConfidenceMin {
		fire(MitigationFACT, -f.HighFACTConfidence)
	}

	ra.Score = clamp01(ra.Score)
	ra.Level = pr.level(ra.Score, gp.LevelBands, p.Version)
	return ra
}

// classify picks the category with the most keyword hits. Ties go to the
// category with the higher base score.
func classify(lower string, p *policy.Policy) model.RiskCategory {
	best, bestHits, bestBase := model.RiskGeneral, 0, -1.0
	for _, c := range model.RiskCategories {
		if c == model.RiskGeneral {
			continue
		}
		hits := lexicon.CountPhrases(lower, p.GOALIE.Keywords[c.String()])
		if hits == 0 {
			continue
		}
		base, _ := p.BaseScore(c)
		if hits > bestHits || (hits == bestHits && base > bestBase) {
			best, bestHits, bestBase = c, hits, base
		}
	}
	return best
}

// agreementOf returns model agreement and whether it counts as
// disagreement. A merged prediction's own score takes precedence.
func agreementOf(in Input, p *policy.Policy) (float64, bool) {
	if in.Merged != nil {
		return in.Merged.AgreementScore, in.Merged.DisagreementFlag
	}
	if len(in.Outputs) == 0 {
		return 0, false
	}
	a := ensemble.Agreement(in.Outputs, p.Ensemble.ValueTolerance)
	return a, len(in.Outputs) > 1 && 1-a > p.Ensemble.DisagreementThreshold
}

func (pr *Protector) level(score float64, bands []policy.Band, version string) model.RiskLevel {
	for _, b := range bands {
		if !b.Contains(score) {
			continue
		}
		if l, err := model.ParseRiskLevel(b.Name); err == nil {
			return l
		}
	}
	pr.log.Warn("goalie: no risk band matched, failing closed to critical",
		zap.Error(model.ErrConfigurationDrift),
		zap.Float64("score", score),
		zap.String("policy_version", version),
	)
	return model.RiskCritical
}
