// Package inference dispatches prompts to model providers.
package inference

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trust-router/internal/model"
	"github.com/sells-group/trust-router/internal/policy"
)

// Response is one completed model call.
type Response struct {
	ModelID      string
	Text         string
	InputTokens  int
	OutputTokens int
	Latency      time.Duration
}

// Invoker runs a prompt against a model. Implementations must honor ctx
// cancellation.
type Invoker interface {
	Invoke(ctx context.Context, modelID, prompt string) (*Response, error)
}

// Call is a provider-level request.
type Call struct {
	ModelID   string
	System    string
	Prompt    string
	MaxTokens int
}

// Provider is one inference backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, call Call) (*Response, error)
}

// Dispatcher implements Invoker by routing each model to the provider named
// in the request's policy snapshot.
type Dispatcher struct {
	providers map[string]Provider
	log       *zap.Logger
}

// NewDispatcher registers providers by name. Nil providers are skipped so
// callers can pass unconfigured backends directly.
func NewDispatcher(providers ...Provider) *Dispatcher {
	d := &Dispatcher{
		providers: make(map[string]Provider, len(providers)),
		log:       zap.L().With(zap.String("component", "inference")),
	}
	for _, p := range providers {
		if p == nil {
			continue
		}
		d.providers[p.Name()] = p
	}
	return d
}

// Invoke implements Invoker.
func (d *Dispatcher) Invoke(ctx context.Context, modelID, prompt string) (*Response, error) {
	mp := policy.FromContext(ctx).Model(modelID)
	p, ok := d.providers[mp.Provider]
	if !ok {
		return nil, eris.Wrapf(model.ErrModelUnavailable, "inference: no %q provider for %s", mp.Provider, modelID)
	}

	start := time.Now()
	resp, err := p.Complete(ctx, Call{
		ModelID:   modelID,
		System:    systemPrompt,
		Prompt:    prompt,
		MaxTokens: mp.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	resp.ModelID = modelID
	resp.Latency = time.Since(start)

	d.log.Debug("inference: call complete",
		zap.String("model", modelID),
		zap.String("provider", mp.Provider),
		zap.Int("input_tokens", resp.InputTokens),
		zap.Int("output_tokens", resp.OutputTokens),
		zap.Duration("latency", resp.Latency),
	)
	return resp, nil
}
