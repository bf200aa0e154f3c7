// Package router maps complexity scores to execution plans.
package router

import (
	"go.uber.org/zap"

	"github.com/sells-group/trust-router/internal/cost"
	"github.com/sells-group/trust-router/internal/model"
	"github.com/sells-group/trust-router/internal/policy"
)

// Planned output size used for cost estimates.
const estimatedOutputTokens = 512

// rule is one row of the routing table. Rows are evaluated in order and the
// first match wins.
type rule struct {
	name  string
	match func(score float64, meta model.SectionMeta, r policy.RoutingPolicy) bool
	plan  func(r policy.RoutingPolicy) model.ExecutionPlan
}

var table = []rule{
	{
		name:  "materiality",
		match: func(_ float64, meta model.SectionMeta, _ policy.RoutingPolicy) bool { return meta.HighStakes },
		plan:  ensemblePlan,
	},
	{
		name:  "below_low",
		match: func(s float64, _ model.SectionMeta, r policy.RoutingPolicy) bool { return s < r.LowThreshold },
		plan:  func(r policy.RoutingPolicy) model.ExecutionPlan { return model.FastTrack(r.FastModel) },
	},
	{
		// The high edge belongs to DeepAnalysis, the more rigorous side.
		name:  "at_or_above_high",
		match: func(s float64, _ model.SectionMeta, r policy.RoutingPolicy) bool { return s >= r.HighThreshold },
		plan:  func(r policy.RoutingPolicy) model.ExecutionPlan { return model.DeepAnalysis(r.DeepModel) },
	},
	{
		// The low edge belongs to Hybrid rather than FastTrack.
		name:  "borderline",
		match: func(s float64, _ model.SectionMeta, r policy.RoutingPolicy) bool { return s >= r.LowThreshold && s < r.HighThreshold },
		plan:  func(r policy.RoutingPolicy) model.ExecutionPlan { return model.Hybrid(r.FastModel, r.DeepModel) },
	},
}

func ensemblePlan(r policy.RoutingPolicy) model.ExecutionPlan {
	return model.Ensemble(r.EnsembleModels...)
}

// Router picks an execution plan. It holds no mutable state.
type Router struct {
	calc *cost.Calculator
	log  *zap.Logger
}

// New creates a Router. calc may be nil to skip cost estimates.
func New(calc *cost.Calculator) *Router {
	return &Router{calc: calc, log: zap.L().With(zap.String("component", "router"))}
}

// Route returns the plan for a score under policy p. If no table row
// produces a valid plan the router fails closed to Ensemble and logs a
// configuration drift warning.
func (rt *Router) Route(score model.ComplexityScore, meta model.SectionMeta, p *policy.Policy) model.ExecutionPlan {
	r := p.Routing
	s := score.Value

	var plan model.ExecutionPlan
	matched := ""
	if s >= 0 && s <= 1 && r.LowThreshold <= r.HighThreshold {
		for _, row := range table {
			if row.match(s, meta, r) {
				plan = row.plan(r)
				matched = row.name
				break
			}
		}
	}

	if matched == "" || plan.Validate() != nil {
		rt.log.Warn("router: no routing rule matched, failing closed to ensemble",
			zap.Error(model.ErrConfigurationDrift),
			zap.Float64("score", s),
			zap.Float64("low", r.LowThreshold),
			zap.Float64("high", r.HighThreshold),
			zap.String("policy_version", p.Version),
		)
		return rt.failClosed(p)
	}

	plan = rt.applyFloor(plan, p)

	fields := []zap.Field{
		zap.String("rule", matched),
		zap.Stringer("plan", plan.Kind),
		zap.Strings("models", plan.Models),
		zap.Float64("score", s),
	}
	if rt.calc != nil {
		fields = append(fields, zap.Float64("est_cost_usd", rt.calc.Plan(plan, estimatedInputTokens(score), estimatedOutputTokens)))
	}
	rt.log.Debug("router: plan selected", fields...)
	return plan
}

// applyFloor lifts plan to the configured minimum rigor. Cost optimization
// never drops below the floor.
func (rt *Router) applyFloor(plan model.ExecutionPlan, p *policy.Policy) model.ExecutionPlan {
	floor, err := p.MinPlanKind()
	if err != nil {
		rt.log.Warn("router: invalid plan floor, using ensemble",
			zap.Error(model.ErrConfigurationDrift),
			zap.String("min_plan", p.Routing.MinPlan),
		)
		floor = model.PlanEnsemble
	}
	if plan.Kind >= floor {
		return plan
	}
	r := p.Routing
	var lifted model.ExecutionPlan
	switch floor {
	case model.PlanFastTrack:
		lifted = model.FastTrack(r.FastModel)
	case model.PlanHybrid:
		lifted = model.Hybrid(r.FastModel, r.DeepModel)
	case model.PlanDeepAnalysis:
		lifted = model.DeepAnalysis(r.DeepModel)
	case model.PlanEnsemble:
		lifted = ensemblePlan(r)
	}
	if lifted.Validate() != nil {
		return rt.failClosed(p)
	}
	return lifted
}

// failClosed returns the broadest ensemble the policy allows. When even the
// ensemble list is unusable every distinct configured model is used.
func (rt *Router) failClosed(p *policy.Policy) model.ExecutionPlan {
	plan := ensemblePlan(p.Routing)
	if plan.Validate() == nil {
		return plan
	}
	seen := map[string]bool{}
	var models []string
	for _, m := range append([]string{p.Routing.FastModel, p.Routing.DeepModel}, p.Routing.EnsembleModels...) {
		if m != "" && !seen[m] {
			seen[m] = true
			models = append(models, m)
		}
	}
	return model.Ensemble(models...)
}

// estimatedInputTokens scales a nominal prompt by section length.
func estimatedInputTokens(score model.ComplexityScore) int {
	return 500 + int(score.Length*2000)
}
