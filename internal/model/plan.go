package model

import (
	"slices"

	"github.com/rotisserie/eris"
)

// ExecutionPlan is the routing decision for one request. Build it with the
// constructors below and treat it as read-only afterwards.
type ExecutionPlan struct {
	Kind   PlanKind `json:"kind"`
	Models []string `json:"models"`
}

// FastTrack runs a single cheap model.
func FastTrack(m string) ExecutionPlan {
	return ExecutionPlan{Kind: PlanFastTrack, Models: []string{m}}
}

// DeepAnalysis runs a single expensive model.
func DeepAnalysis(m string) ExecutionPlan {
	return ExecutionPlan{Kind: PlanDeepAnalysis, Models: []string{m}}
}

// Hybrid runs a cheap and an expensive model and merges them.
func Hybrid(a, b string) ExecutionPlan {
	return ExecutionPlan{Kind: PlanHybrid, Models: []string{a, b}}
}

// Ensemble runs every listed model concurrently.
func Ensemble(models ...string) ExecutionPlan {
	return ExecutionPlan{Kind: PlanEnsemble, Models: slices.Clone(models)}
}

// Validate checks the model count against the plan variant.
func (p ExecutionPlan) Validate() error {
	for _, m := range p.Models {
		if m == "" {
			return eris.Wrap(ErrInvalidInput, "model: plan has empty model id")
		}
	}
	switch p.Kind {
	case PlanFastTrack, PlanDeepAnalysis:
		if len(p.Models) != 1 {
			return eris.Wrapf(ErrInvalidInput, "model: %s plan needs 1 model, got %d", p.Kind, len(p.Models))
		}
	case PlanHybrid:
		if len(p.Models) != 2 {
			return eris.Wrapf(ErrInvalidInput, "model: hybrid plan needs 2 models, got %d", len(p.Models))
		}
	case PlanEnsemble:
		if len(p.Models) < 2 {
			return eris.Wrapf(ErrInvalidInput, "model: ensemble plan needs at least 2 models, got %d", len(p.Models))
		}
	default:
		return eris.Wrapf(ErrInvalidInput, "model: unknown plan kind %d", int(p.Kind))
	}
	return nil
}
