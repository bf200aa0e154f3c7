// Package goalie scores risk and confidence for validated predictions and
// adjusts or suppresses them before they reach a consumer.
package goalie

import (
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trust-router/internal/model"
	"github.com/sells-group/trust-router/internal/policy"
)

// Input is everything known about one prediction after validation.
type Input struct {
	Prediction model.PredictionValue
	Context    model.ClaimContext
	Outputs    []model.ModelOutput
	// Merged is nil when the prediction did not come from a plan run.
	Merged *model.MergedPrediction
	Report *model.ValidationReport
}

// Protection is the result of all three stages.
type Protection struct {
	Risk       model.RiskAssessment     `json:"risk_assessment"`
	Confidence model.ConfidenceScore    `json:"confidence_score"`
	Adjusted   model.AdjustedPrediction `json:"adjusted_prediction"`
}

// Protector runs risk assessment, confidence scoring and adjustment.
type Protector struct {
	log *zap.Logger
}

// New creates a Protector.
func New() *Protector {
	return &Protector{log: zap.L().With(zap.String("component", "goalie"))}
}

// Protect runs the three stages in order. It fails only on missing
// required input; uncertainty is always encoded in the result.
func (pr *Protector) Protect(in Input, p *policy.Policy) (Protection, error) {
	switch {
	case strings.TrimSpace(in.Prediction.Text) == "":
		return Protection{}, eris.Wrap(model.ErrInvalidInput, "goalie: prediction text is required")
	case in.Context.EntityID == "":
		return Protection{}, eris.Wrap(model.ErrInvalidInput, "goalie: entity id is required")
	case in.Report == nil:
		return Protection{}, eris.Wrap(model.ErrInvalidInput, "goalie: validation report is required")
	}

	risk := pr.AssessRisk(in, p)
	conf := pr.ScoreConfidence(in, p)
	adj := Adjust(in.Prediction, risk, conf, *in.Report, p.GOALIE.Adjustment)

	fields := []zap.Field{
		zap.String("entity_id", in.Context.EntityID),
		zap.Stringer("category", risk.Category),
		zap.Float64("risk", risk.Score),
		zap.Stringer("risk_level", risk.Level),
		zap.Float64("confidence", conf.Blended),
		zap.Stringer("reliability", conf.Reliability),
		zap.Float64("factor", adj.AdjustmentFactor),
	}
	if !adj.ShouldDisplay {
		pr.log.Info("goalie: prediction suppressed", fields...)
	} else {
		pr.log.Debug("goalie: prediction adjusted", fields...)
	}
	return Protection{Risk: risk, Confidence: conf, Adjusted: adj}, nil
}
