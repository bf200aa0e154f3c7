package inference

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/trust-router/internal/model"
	"github.com/sells-group/trust-router/internal/policy"
	"github.com/sells-group/trust-router/internal/resilience"
	"github.com/sells-group/trust-router/pkg/anthropic"
	"github.com/sells-group/trust-router/pkg/openai"
)

// NewLimiter builds a provider limiter. rps <= 0 disables limiting.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

type anthropicProvider struct {
	client  anthropic.Client
	limiter *rate.Limiter
}

// NewAnthropicProvider adapts an Anthropic client. A nil client returns nil.
func NewAnthropicProvider(client anthropic.Client, limiter *rate.Limiter) Provider {
	if client == nil {
		return nil
	}
	return &anthropicProvider{client: client, limiter: limiter}
}

func (p *anthropicProvider) Name() string { return policy.ProviderAnthropic }

func (p *anthropicProvider) Complete(ctx context.Context, call Call) (*Response, error) {
	if err := wait(ctx, p.limiter); err != nil {
		return nil, err
	}
	temp := 0.0
	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       call.ModelID,
		MaxTokens:   int64(call.MaxTokens),
		System:      call.System,
		Messages:    []anthropic.Message{{Role: "user", Content: call.Prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, classify(ctx, err, anthropic.StatusCode(err))
	}
	return &Response{
		Text:         resp.Text(),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}

type openaiProvider struct {
	client  openai.Client
	limiter *rate.Limiter
}

// NewOpenAIProvider adapts an OpenAI client. A nil client returns nil.
func NewOpenAIProvider(client openai.Client, limiter *rate.Limiter) Provider {
	if client == nil {
		return nil
	}
	return &openaiProvider{client: client, limiter: limiter}
}

func (p *openaiProvider) Name() string { return policy.ProviderOpenAI }

func (p *openaiProvider) Complete(ctx context.Context, call Call) (*Response, error) {
	if err := wait(ctx, p.limiter); err != nil {
		return nil, err
	}
	var temp float32
	resp, err := p.client.Complete(ctx, openai.CompletionRequest{
		Model:       call.ModelID,
		System:      call.System,
		Prompt:      call.Prompt,
		MaxTokens:   call.MaxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return nil, classify(ctx, err, openai.StatusCode(err))
	}
	return &Response{
		Text:         resp.Text,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}, nil
}

func wait(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	if err := l.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return classify(ctx, ctx.Err(), 0)
		}
		return eris.Wrap(err, "inference: rate limit wait")
	}
	return nil
}

// classify maps provider failures onto the error taxonomy. Deadline expiry
// becomes ErrModelTimeout, transient statuses become TransientError and
// caller cancellation passes through unchanged.
func classify(ctx context.Context, err error, status int) error {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return eris.Wrap(model.ErrModelTimeout, err.Error())
	case resilience.IsTransientHTTPStatus(status):
		return resilience.NewTransientError(err, status)
	default:
		return err
	}
}
