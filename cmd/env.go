package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trust-router/internal/cost"
	"github.com/sells-group/trust-router/internal/db"
	"github.com/sells-group/trust-router/internal/ensemble"
	"github.com/sells-group/trust-router/internal/inference"
	"github.com/sells-group/trust-router/internal/metrics"
	"github.com/sells-group/trust-router/internal/monitoring"
	"github.com/sells-group/trust-router/internal/pipeline"
	"github.com/sells-group/trust-router/internal/policy"
	"github.com/sells-group/trust-router/internal/resilience"
	"github.com/sells-group/trust-router/internal/store"
	"github.com/sells-group/trust-router/pkg/anthropic"
	"github.com/sells-group/trust-router/pkg/openai"
)

// appEnv holds the initialized store, tracker, policy and pipeline shared
// by the analyze, label, serve and metrics commands.
type appEnv struct {
	Store    store.Store
	Policies *policy.Holder
	Tracker  *metrics.Tracker
	Breakers *resilience.ModelBreakers
	Pipeline *pipeline.Pipeline // nil in metrics mode
}

// Close drains pending observations and closes the store.
func (e *appEnv) Close() {
	if e.Tracker != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := e.Tracker.Close(ctx); err != nil {
			zap.L().Warn("tracker close", zap.Error(err))
		}
		cancel()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// Collector builds a drift collector over the configured windows.
func (e *appEnv) Collector() *monitoring.Collector {
	return monitoring.NewCollector(e.Tracker,
		time.Duration(cfg.Monitoring.LookbackWindowHours)*time.Hour,
		time.Duration(cfg.Monitoring.BaselineWindowHours)*time.Hour,
	)
}

// initApp validates config for mode, opens and migrates the store and
// builds the tracker. Modes "analyze" and "serve" also build the pipeline.
// Callers should defer env.Close().
func initApp(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	policies, err := loadPolicy()
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	env := &appEnv{
		Store:    st,
		Policies: policies,
		Tracker: metrics.NewTracker(st, metrics.Options{
			FlushInterval: time.Duration(cfg.Metrics.FlushIntervalSecs) * time.Second,
			BatchSize:     cfg.Metrics.BatchSize,
			MaxPending:    cfg.Metrics.MaxPending,
		}),
	}
	if mode == "metrics" {
		return env, nil
	}

	env.Breakers = resilience.NewModelBreakers(resilience.BreakerFromPolicy(policies.Current().Ensemble))
	env.Pipeline = pipeline.New(pipeline.Deps{
		Policies: policies,
		Runner:   ensemble.New(initInvoker(), env.Breakers),
		Audits:   st,
		Recorder: env.Tracker,
		Costs:    cost.NewCalculator(cost.DefaultRates()),
	})
	return env, nil
}

// initStore opens the configured store and applies migrations.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, store.Options{
		Driver:      cfg.Store.Driver,
		DatabaseURL: cfg.Store.DatabaseURL,
		Pool:        db.PoolConfig{MaxConns: cfg.Store.MaxConns, MinConns: cfg.Store.MinConns},
	})
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// loadPolicy reads the configured policy file, or the built-in policy when
// none is set.
func loadPolicy() (*policy.Holder, error) {
	p := policy.Default()
	if cfg.Policy.Path != "" {
		loaded, err := policy.Load(cfg.Policy.Path)
		if err != nil {
			return nil, err
		}
		p = loaded
	}
	zap.L().Info("policy loaded", zap.String("version", p.Version), zap.String("path", cfg.Policy.Path))
	return policy.NewHolder(p)
}

// initInvoker registers a provider for each configured API key.
func initInvoker() *inference.Dispatcher {
	var providers []inference.Provider
	if cfg.Anthropic.Key != "" {
		providers = append(providers, inference.NewAnthropicProvider(
			anthropic.NewClient(cfg.Anthropic.Key, anthropic.Options{}),
			inference.NewLimiter(cfg.Anthropic.RateLimitRPS, cfg.Anthropic.Burst),
		))
	} else {
		zap.L().Debug("TRUST_ANTHROPIC_KEY not set, anthropic models disabled")
	}
	if cfg.OpenAI.Key != "" {
		providers = append(providers, inference.NewOpenAIProvider(
			openai.NewClient(cfg.OpenAI.Key, openai.Options{BaseURL: cfg.OpenAI.BaseURL}),
			inference.NewLimiter(cfg.OpenAI.RateLimitRPS, cfg.OpenAI.Burst),
		))
	} else {
		zap.L().Debug("TRUST_OPENAI_KEY not set, openai models disabled")
	}
	return inference.NewDispatcher(providers...)
}
