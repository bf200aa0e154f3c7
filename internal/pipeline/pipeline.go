// Package pipeline runs one document section through scoring, routing,
// the model plan, FACT validation and GOALIE protection, then records the
// audit trail.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trust-router/internal/complexity"
	"github.com/sells-group/trust-router/internal/cost"
	"github.com/sells-group/trust-router/internal/ensemble"
	"github.com/sells-group/trust-router/internal/fact"
	"github.com/sells-group/trust-router/internal/goalie"
	"github.com/sells-group/trust-router/internal/metrics"
	"github.com/sells-group/trust-router/internal/model"
	"github.com/sells-group/trust-router/internal/policy"
	"github.com/sells-group/trust-router/internal/router"
)

// Request is one section to analyze.
type Request struct {
	InputRef  string             `json:"input_ref,omitempty"`
	Text      string             `json:"text"`
	ClaimHint string             `json:"claim_hint,omitempty"`
	Meta      model.SectionMeta  `json:"meta"`
	Context   model.ClaimContext `json:"context"`
}

// Result is the full outcome of an analysis.
type Result struct {
	AuditID    string                    `json:"audit_id"`
	Complexity model.ComplexityScore     `json:"complexity"`
	Plan       model.ExecutionPlan       `json:"execution_plan"`
	Outputs    []model.ModelOutput       `json:"model_outputs"`
	Merged     model.MergedPrediction    `json:"merged_prediction"`
	Claim      model.Claim               `json:"claim"`
	Report     model.ValidationReport    `json:"validation_report"`
	Risk       model.RiskAssessment      `json:"risk_assessment"`
	Confidence model.ConfidenceScore     `json:"confidence_score"`
	Adjusted   model.AdjustedPrediction  `json:"adjusted_prediction"`
	Usage      map[string]ensemble.Usage `json:"usage"`
	CostUSD    float64                   `json:"cost_usd"`
	Elapsed    time.Duration             `json:"elapsed"`
}

// Runner executes a plan. *ensemble.Coordinator satisfies it.
type Runner interface {
	Run(ctx context.Context, plan model.ExecutionPlan, in ensemble.Input, p *policy.Policy) (*ensemble.Result, error)
}

// AuditStore persists and reads back audit records.
type AuditStore interface {
	SaveAudit(ctx context.Context, rec *model.AuditRecord) error
	GetAudit(ctx context.Context, id string) (*model.AuditRecord, error)
}

// Recorder receives validation observations. *metrics.Tracker satisfies it.
type Recorder interface {
	Record(report model.ValidationReport, outcome model.Outcome)
	Label(ctx context.Context, report model.ValidationReport, outcome model.Outcome) error
}

// PolicySource supplies the current policy snapshot. *policy.Holder
// satisfies it.
type PolicySource interface {
	Current() *policy.Policy
}

// Pipeline wires the stages together. It holds no per-request state.
type Pipeline struct {
	policies  PolicySource
	router    *router.Router
	runner    Runner
	validator *fact.Validator
	protector *goalie.Protector
	audits    AuditStore
	recorder  Recorder
	calc      *cost.Calculator
	log       *zap.Logger
}

// Deps are the collaborators of a Pipeline. Audits and Recorder may be nil.
type Deps struct {
	Policies PolicySource
	Runner   Runner
	Audits   AuditStore
	Recorder Recorder
	Costs    *cost.Calculator
}

// New creates a Pipeline.
func New(d Deps) *Pipeline {
	return &Pipeline{
		policies:  d.Policies,
		router:    router.New(d.Costs),
		runner:    d.Runner,
		validator: fact.New(),
		protector: goalie.New(),
		audits:    d.Audits,
		recorder:  d.Recorder,
		calc:      d.Costs,
		log:       zap.L().With(zap.String("component", "pipeline")),
	}
}

// Analyze runs req through every stage under one policy snapshot.
// Infrastructure failures such as every model failing or a cancelled
// context are returned as errors; weak or risky content never is.
func (pl *Pipeline) Analyze(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, eris.Wrap(model.ErrInvalidInput, "pipeline: section text is required")
	}
	cc := req.Context
	if cc.EntityID == "" {
		cc.EntityID = req.Meta.EntityID
	}
	if cc.EntityID == "" {
		return nil, eris.Wrap(model.ErrInvalidInput, "pipeline: entity id is required")
	}
	meta := req.Meta
	meta.EntityID = cc.EntityID
	meta.HighStakes = meta.HighStakes || cc.HighStakes
	cc.HighStakes = meta.HighStakes
	if cc.HistoricalVolatility == 0 {
		cc.HistoricalVolatility = meta.HistoricalVolatility
	}

	p := pl.policies.Current()
	started := time.Now().UTC()
	log := pl.log.With(
		zap.String("entity_id", cc.EntityID),
		zap.String("input_ref", req.InputRef),
		zap.String("policy_version", p.Version),
	)

	score := complexity.Score(req.Text, meta, p.Complexity)
	plan := pl.router.Route(score, meta, p)

	run, err := pl.runner.Run(ctx, plan, ensemble.Input{Text: req.Text, ClaimHint: req.ClaimHint}, p)
	if err != nil {
		log.Error("pipeline: plan failed", zap.Stringer("plan", plan.Kind), zap.Error(err))
		return nil, eris.Wrap(err, "pipeline: run plan")
	}

	claim := model.Claim{
		ID:         uuid.New().String(),
		Text:       claimText(run.Merged, req),
		Value:      run.Merged.Value,
		HighStakes: meta.HighStakes,
	}
	report, err := pl.validator.Validate(ctx, claim, cc, p.FACT)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: validate claim")
	}

	merged := run.Merged
	prot, err := pl.protector.Protect(goalie.Input{
		Prediction: model.PredictionValue{Number: merged.Value, Text: claim.Text},
		Context:    cc,
		Outputs:    run.Outputs,
		Merged:     &merged,
		Report:     &report,
	}, p)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: protect prediction")
	}

	res := &Result{
		AuditID:    uuid.New().String(),
		Complexity: score,
		Plan:       plan,
		Outputs:    run.Outputs,
		Merged:     merged,
		Claim:      claim,
		Report:     report,
		Risk:       prot.Risk,
		Confidence: prot.Confidence,
		Adjusted:   prot.Adjusted,
		Usage:      run.Usage,
		CostUSD:    pl.cost(run.Usage),
		Elapsed:    time.Since(started),
	}

	pl.audit(ctx, log, res, req, cc, p, started)
	if pl.recorder != nil {
		pl.recorder.Record(report, model.OutcomeUnknown)
	}
	metrics.RecordAnalysis(plan.Kind, res.Elapsed.Seconds(), res.Adjusted, res.Risk.Level, res.Confidence.Reliability)

	log.Info("pipeline: analysis complete",
		zap.String("audit_id", res.AuditID),
		zap.Stringer("plan", plan.Kind),
		zap.Float64("complexity", score.Value),
		zap.Bool("fact_passed", report.OverallPassed),
		zap.Stringer("risk_level", res.Risk.Level),
		zap.Stringer("reliability", res.Confidence.Reliability),
		zap.Float64("factor", res.Adjusted.AdjustmentFactor),
		zap.Bool("display", res.Adjusted.ShouldDisplay),
		zap.Float64("cost_usd", res.CostUSD),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

// Label attaches a ground-truth outcome to a stored analysis.
func (pl *Pipeline) Label(ctx context.Context, auditID string, outcome model.Outcome) error {
	if pl.audits == nil || pl.recorder == nil {
		return eris.New("pipeline: labeling needs an audit store and a recorder")
	}
	rec, err := pl.audits.GetAudit(ctx, auditID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: label %s", auditID)
	}
	return pl.recorder.Label(ctx, rec.ValidationReport, outcome)
}

// audit writes the record. A failed write is logged and never fails the
// analysis.
func (pl *Pipeline) audit(ctx context.Context, log *zap.Logger, res *Result, req Request, cc model.ClaimContext, p *policy.Policy, started time.Time) {
	if pl.audits == nil {
		return
	}
	rec := &model.AuditRecord{
		ID:                 res.AuditID,
		InputRef:           req.InputRef,
		EntityID:           cc.EntityID,
		PolicyVersion:      p.Version,
		Complexity:         res.Complexity,
		ExecutionPlan:      res.Plan,
		Merged:             res.Merged,
		ValidationReport:   res.Report,
		RiskAssessment:     res.Risk,
		ConfidenceScore:    res.Confidence,
		AdjustedPrediction: res.Adjusted,
		StartedAt:          started,
		CompletedAt:        time.Now().UTC(),
	}
	if err := pl.audits.SaveAudit(ctx, rec); err != nil {
		log.Warn("pipeline: audit write failed", zap.String("audit_id", rec.ID), zap.Error(err))
	}
}

func (pl *Pipeline) cost(usage map[string]ensemble.Usage) float64 {
	if pl.calc == nil {
		return 0
	}
	var total float64
	for id, u := range usage {
		total += pl.calc.Call(id, u.InputTokens, u.OutputTokens)
	}
	return total
}

// claimText picks the statement to validate: the merged claim, then the
// caller's hint, then the section itself.
func claimText(m model.MergedPrediction, req Request) string {
	for _, s := range []string{m.Claim, req.ClaimHint, req.Text} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
