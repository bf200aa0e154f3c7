package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the fields a command mode needs. Modes are "analyze",
// "serve" and "metrics".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "analyze", "serve":
		if c.Anthropic.Key == "" && c.OpenAI.Key == "" {
			errs = append(errs, "anthropic.key or openai.key is required")
		}
		if c.Anthropic.RateLimitRPS < 0 || c.OpenAI.RateLimitRPS < 0 {
			errs = append(errs, "provider rate_limit_rps must be >= 0")
		}
		if mode == "serve" {
			if c.Server.Port <= 0 || c.Server.Port > 65535 {
				errs = append(errs, "server.port must be > 0 and <= 65535")
			}
			if c.Server.RateLimitRPS <= 0 {
				errs = append(errs, "server.rate_limit_rps must be > 0")
			}
		}
	case "metrics":
		if c.Monitoring.LookbackWindowHours <= 0 || c.Monitoring.BaselineWindowHours <= 0 {
			errs = append(errs, "monitoring window hours must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Metrics.FlushIntervalSecs <= 0 {
		errs = append(errs, "metrics.flush_interval_secs must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
