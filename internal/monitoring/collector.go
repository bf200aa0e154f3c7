// Package monitoring runs scheduled drift checks over validation metrics and
// delivers alerts by webhook.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/trust-router/internal/metrics"
	"github.com/sells-group/trust-router/internal/model"
	"github.com/sells-group/trust-router/internal/policy"
)

// Snapshot is one drift check: the current window, the baseline window
// immediately before it and the comparison result.
type Snapshot struct {
	Current     metrics.ValidationMetrics `json:"current"`
	Baseline    metrics.ValidationMetrics `json:"baseline"`
	Drift       bool                      `json:"drift"`
	Findings    []metrics.DriftFinding    `json:"findings,omitempty"`
	CollectedAt time.Time                 `json:"collected_at"`
}

// Calculator computes metrics for a window. *metrics.Tracker satisfies it.
type Calculator interface {
	Calculate(ctx context.Context, w model.Window, bins int) (metrics.ValidationMetrics, error)
}

// Collector computes current and baseline windows and compares them.
type Collector struct {
	calc     Calculator
	lookback time.Duration
	baseline time.Duration
	now      func() time.Time
}

// NewCollector creates a Collector. lookback is the current window length;
// baseline is the length of the window that precedes it.
func NewCollector(calc Calculator, lookback, baseline time.Duration) *Collector {
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	if baseline <= 0 {
		baseline = 7 * 24 * time.Hour
	}
	return &Collector{
		calc:     calc,
		lookback: lookback,
		baseline: baseline,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Windows returns the current and baseline windows ending at now.
func (c *Collector) Windows() (current, baseline model.Window) {
	end := c.now()
	current = model.Window{Start: end.Add(-c.lookback), End: end}
	baseline = model.Window{Start: current.Start.Add(-c.baseline), End: current.Start}
	return current, baseline
}

// Collect computes both windows under the drift thresholds of p.
func (c *Collector) Collect(ctx context.Context, p *policy.Policy) (*Snapshot, error) {
	curW, baseW := c.Windows()
	bins := p.Drift.CalibrationBins

	cur, err := c.calc.Calculate(ctx, curW, bins)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: current window")
	}
	base, err := c.calc.Calculate(ctx, baseW, bins)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: baseline window")
	}

	drift, findings := metrics.CheckDrift(cur, base, p.Drift)
	return &Snapshot{
		Current:     cur,
		Baseline:    base,
		Drift:       drift,
		Findings:    findings,
		CollectedAt: c.now(),
	}, nil
}
