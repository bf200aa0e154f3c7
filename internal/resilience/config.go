package resilience

import (
	"github.com/sells-group/trust-router/internal/policy"
)

// RetryFromPolicy builds the per-model retry policy from the ensemble table.
func RetryFromPolicy(p policy.EnsemblePolicy) RetryConfig {
	cfg := DefaultRetryConfig()
	if p.MaxAttempts > 0 {
		cfg.MaxAttempts = p.MaxAttempts
	}
	if p.InitialBackoff > 0 {
		cfg.InitialBackoff = p.InitialBackoff
	}
	if p.MaxBackoff > 0 {
		cfg.MaxBackoff = p.MaxBackoff
	}
	return cfg
}

// BreakerFromPolicy builds the per-model circuit breaker config.
func BreakerFromPolicy(p policy.EnsemblePolicy) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if p.BreakerThreshold > 0 {
		cfg.FailureThreshold = p.BreakerThreshold
	}
	if p.BreakerReset > 0 {
		cfg.ResetTimeout = p.BreakerReset
	}
	return cfg
}
