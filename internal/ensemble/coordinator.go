// Package ensemble fans a plan out across its models and merges the answers
// with a weighted vote.
package ensemble

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/trust-router/internal/inference"
	"github.com/sells-group/trust-router/internal/model"
	"github.com/sells-group/trust-router/internal/policy"
	"github.com/sells-group/trust-router/internal/resilience"
)

// Input is what every model in a plan is asked about.
type Input struct {
	Text      string
	ClaimHint string
}

// Usage is the token spend of one model across its attempts.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Result is a completed plan run.
type Result struct {
	Plan    model.ExecutionPlan
	Outputs []model.ModelOutput
	Merged  model.MergedPrediction
	// Failures holds the final error of every model that failed.
	Failures map[string]error
	Usage    map[string]Usage
	Elapsed  time.Duration
}

type status int

const (
	statusPending status = iota
	statusSucceeded
	statusFailed
	statusCancelled
)

type slot struct {
	status status
	output model.ModelOutput
	usage  Usage
	err    error
}

// Coordinator runs execution plans.
type Coordinator struct {
	invoker  inference.Invoker
	breakers *resilience.ModelBreakers
	log      *zap.Logger
}

// New creates a Coordinator. breakers may be nil to disable circuit
// breaking.
func New(invoker inference.Invoker, breakers *resilience.ModelBreakers) *Coordinator {
	return &Coordinator{
		invoker:  invoker,
		breakers: breakers,
		log:      zap.L().With(zap.String("component", "ensemble")),
	}
}

// Run invokes every model in plan concurrently and merges the successful
// outputs once all calls have settled. It fails with ErrModelUnavailable
// when no model succeeds, and with the context error when ctx ends first.
func (c *Coordinator) Run(ctx context.Context, plan model.ExecutionPlan, in Input, p *policy.Policy) (*Result, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	ctx = policy.WithContext(ctx, p)

	n := len(plan.Models)
	need := quorum(p.Ensemble.Quorum, n)
	prompt := inference.BuildPrompt(in.Text, in.ClaimHint)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	slots := make([]slot, n)
	var mu sync.Mutex
	succeeded := 0

	var g errgroup.Group
	for i, id := range plan.Models {
		g.Go(func() error {
			out, usage, err := c.call(runCtx, id, prompt, p)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				slots[i] = slot{status: statusSucceeded, output: out, usage: usage}
				succeeded++
				if succeeded >= need && need < n {
					cancelRun()
				}
			case runCtx.Err() != nil && ctx.Err() == nil:
				slots[i] = slot{status: statusCancelled, usage: usage, err: err}
			default:
				slots[i] = slot{status: statusFailed, usage: usage, err: err}
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "ensemble: run cancelled")
	}

	res := &Result{
		Plan:     plan,
		Failures: map[string]error{},
		Usage:    make(map[string]Usage, n),
	}
	var failed, cancelled []string
	for i, id := range plan.Models {
		s := slots[i]
		res.Usage[id] = s.usage
		switch s.status {
		case statusSucceeded:
			res.Outputs = append(res.Outputs, s.output)
		case statusCancelled:
			cancelled = append(cancelled, id)
		case statusFailed, statusPending:
			failed = append(failed, id)
			res.Failures[id] = s.err
		}
	}

	if len(res.Outputs) == 0 {
		return nil, eris.Wrapf(model.ErrModelUnavailable, "ensemble: all %d models failed: %s", n, describe(res.Failures))
	}

	res.Merged = Merge(res.Outputs, failed, cancelled, p)
	res.Elapsed = time.Since(start)

	c.log.Info("ensemble: plan complete",
		zap.Stringer("plan", plan.Kind),
		zap.Int("succeeded", len(res.Outputs)),
		zap.Strings("failed", failed),
		zap.Strings("cancelled", cancelled),
		zap.Float64("agreement", res.Merged.AgreementScore),
		zap.Float64("confidence", res.Merged.AggregateConfidence),
		zap.Bool("disagreement", res.Merged.DisagreementFlag),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

// call runs one model with per-attempt timeouts, retries and the model's
// circuit breaker.
func (c *Coordinator) call(ctx context.Context, id, prompt string, p *policy.Policy) (model.ModelOutput, Usage, error) {
	mp := p.Model(id)
	cfg := resilience.RetryFromPolicy(p.Ensemble)
	cfg.OnRetry = resilience.RetryLogger("ensemble", id)

	var usage Usage
	attempt := func(ctx context.Context) (*inference.Response, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, mp.Timeout)
		defer cancel()

		resp, err := c.invoker.Invoke(attemptCtx, id, prompt)
		if err == nil {
			usage.InputTokens += resp.InputTokens
			usage.OutputTokens += resp.OutputTokens
			return resp, nil
		}
		if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && !eris.Is(err, model.ErrModelTimeout) {
			return nil, eris.Wrapf(model.ErrModelTimeout, "ensemble: %s after %s", id, mp.Timeout)
		}
		return nil, err
	}

	resp, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*inference.Response, error) {
		if c.breakers == nil {
			return attempt(ctx)
		}
		return resilience.ExecuteVal(ctx, c.breakers.Get(id), attempt)
	})
	if err != nil {
		return model.ModelOutput{}, usage, err
	}
	return inference.ParseOutput(id, resp.Text, resp.Latency), usage, nil
}

// quorum resolves the configured quorum against n models: 0 waits for every
// model and a negative value asks for a simple majority.
func quorum(q, n int) int {
	switch {
	case q == 0 || q > n:
		return n
	case q < 0:
		return n/2 + 1
	default:
		return q
	}
}

func describe(failures map[string]error) string {
	ids := make([]string, 0, len(failures))
	for id := range failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		msg := "unknown error"
		if failures[id] != nil {
			msg = failures[id].Error()
		}
		parts = append(parts, id+": "+msg)
	}
	return strings.Join(parts, "; ")
}
