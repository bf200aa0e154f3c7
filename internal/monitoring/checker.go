package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/trust-router/internal/config"
	"github.com/sells-group/trust-router/internal/metrics"
	"github.com/sells-group/trust-router/internal/policy"
)

// Checker runs periodic drift checks in the background, off the request
// path.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	sink      metrics.Sink
	policy    func() *policy.Policy
	cfg       config.MonitoringConfig
}

// NewChecker creates a background drift checker. current supplies the
// policy snapshot for each check; sink may be nil.
func NewChecker(collector *Collector, alerter *Alerter, sink metrics.Sink, current func() *policy.Policy, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		sink:      sink,
		policy:    current,
		cfg:       cfg,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting drift checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
		zap.Int("baseline_hours", c.cfg.BaselineWindowHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("drift checker stopped")
			return
		case <-ticker.C:
			if _, err := c.Check(ctx); err != nil {
				log.Error("monitoring: drift check failed", zap.Error(err))
			}
		}
	}
}

// Check runs one drift check: emits metric records, then sends alerts when
// drift fired.
func (c *Checker) Check(ctx context.Context) (*Snapshot, error) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))

	snap, err := c.collector.Collect(ctx, c.policy())
	if err != nil {
		return nil, err
	}

	if c.sink != nil {
		if err := c.sink.Emit(ctx, metrics.Records(snap.Current, snap.Findings)); err != nil {
			log.Warn("monitoring: emit metric records", zap.Error(err))
		}
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("monitoring: no drift detected",
			zap.Int("samples", snap.Current.Samples),
			zap.Int("baseline_samples", snap.Baseline.Samples),
		)
		return snap, nil
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Warn("monitoring: drift detected",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
	return snap, nil
}
