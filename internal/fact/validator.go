// Package fact validates model claims with mathematical, logical and
// critical checks.
package fact

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/trust-router/internal/lexicon"
	"github.com/sells-group/trust-router/internal/model"
	"github.com/sells-group/trust-router/internal/policy"
)

// Validator runs the three checks. It holds no mutable state, so one
// instance serves concurrent requests.
type Validator struct {
	log *zap.Logger
}

// New creates a Validator.
func New() *Validator {
	return &Validator{log: zap.L().With(zap.String("component", "fact"))}
}

// Validate checks claim against its context. Results are always ordered
// Mathematical, Logical, Critical. Only empty claim text and a done context
// are errors; weak or malformed claims are reported through the results.
func (v *Validator) Validate(ctx context.Context, claim model.Claim, cc model.ClaimContext, p policy.FACTPolicy) (model.ValidationReport, error) {
	if strings.TrimSpace(claim.Text) == "" {
		return model.ValidationReport{}, eris.Wrap(model.ErrInvalidInput, "fact: claim text is required")
	}
	text := strings.ToLower(lexicon.Normalize(claim.Text))

	results := make([]model.ValidationResult, 3)
	g, gctx := errgroup.WithContext(ctx)
	checks := []func() model.ValidationResult{
		func() model.ValidationResult { return mathematical(text, p) },
		func() model.ValidationResult { return logical(text, cc, p) },
		func() model.ValidationResult { return critical(text, claim, cc, p) },
	}
	for i, check := range checks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = check()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.ValidationReport{}, eris.Wrap(err, "fact: validate")
	}

	report := Aggregate(claim.ID, results, p)
	if mres, _ := report.Result(model.ValidationMathematical); !mres.Passed && mres.Confidence == 0 {
		v.log.Debug("fact: claim unparsable",
			zap.String("claim_id", claim.ID),
			zap.Error(model.ErrMalformedClaim),
		)
	}
	v.log.Debug("fact: claim validated",
		zap.String("claim_id", claim.ID),
		zap.Bool("passed", report.OverallPassed),
		zap.Float64("confidence", report.ConfidenceScore),
		zap.Stringer("risk_level", report.RiskLevel),
	)
	return report, nil
}

// Aggregate builds a report from results in Mathematical, Logical, Critical
// order. Any applicable Critical severity fails the report.
func Aggregate(claimID string, results []model.ValidationResult, p policy.FACTPolicy) model.ValidationReport {
	report := model.ValidationReport{
		ClaimID:       claimID,
		Results:       results,
		OverallPassed: true,
		RiskLevel:     model.SeverityLow,
	}

	var weighted, weights float64
	for _, r := range results {
		if !r.Applicable {
			continue
		}
		if !r.Passed || r.Severity == model.SeverityCritical {
			report.OverallPassed = false
		}
		report.RiskLevel = model.MaxSeverity(report.RiskLevel, r.Severity)

		w := weight(r.Type, p)
		weighted += w * r.Confidence
		weights += w
	}
	if weights > 0 {
		report.ConfidenceScore = weighted / weights
	}
	return report
}

func weight(t model.ValidationType, p policy.FACTPolicy) float64 {
	switch t {
	case model.ValidationMathematical:
		return p.MathematicalWeight
	case model.ValidationLogical:
		return p.LogicalWeight
	case model.ValidationCritical:
		return p.CriticalWeight
	}
	return 0
}
