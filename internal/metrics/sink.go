package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/sells-group/trust-router/internal/model"
)

// Tracker and pipeline instrumentation on the default registry.
var (
	observationsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trust_router",
		Subsystem: "metrics",
		Name:      "observations_recorded_total",
		Help:      "Observations queued by the tracker",
	})

	observationsFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trust_router",
		Subsystem: "metrics",
		Name:      "observations_flushed_total",
		Help:      "Observations written to the store",
	})

	observationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trust_router",
		Subsystem: "metrics",
		Name:      "observations_dropped_total",
		Help:      "Observations discarded because the queue was full",
	})

	flushErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trust_router",
		Subsystem: "metrics",
		Name:      "flush_errors_total",
		Help:      "Observation batches that failed to write and were re-queued",
	})

	// Labels: plan
	plansRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trust_router",
		Subsystem: "pipeline",
		Name:      "plans_total",
		Help:      "Analyses by execution plan",
	}, []string{"plan"})

	// Labels: risk_level, reliability
	predictionsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trust_router",
		Subsystem: "pipeline",
		Name:      "suppressed_total",
		Help:      "Predictions returned with should_display=false",
	}, []string{"risk_level", "reliability"})

	// Labels: plan
	analysisLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "trust_router",
		Subsystem: "pipeline",
		Name:      "latency_seconds",
		Help:      "End-to-end analysis latency in seconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"plan"})
)

// RecordAnalysis observes one completed analysis.
func RecordAnalysis(plan model.PlanKind, seconds float64, adj model.AdjustedPrediction, risk model.RiskLevel, rel model.Reliability) {
	plansRouted.WithLabelValues(plan.String()).Inc()
	analysisLatency.WithLabelValues(plan.String()).Observe(seconds)
	if !adj.ShouldDisplay {
		predictionsSuppressed.WithLabelValues(risk.String(), rel.String()).Inc()
	}
}

// Sink receives metric records for dashboards and alerting.
type Sink interface {
	Emit(ctx context.Context, records []model.MetricRecord) error
}

// PrometheusSink exposes the latest record per metric as gauges.
type PrometheusSink struct {
	value *prometheus.GaugeVec
	drift *prometheus.GaugeVec
}

// NewPrometheusSink registers its gauges with reg.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	f := promauto.With(reg)
	return &PrometheusSink{
		// Labels: metric
		value: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "trust_router",
			Subsystem: "validation",
			Name:      "metric_value",
			Help:      "Latest computed validation metric",
		}, []string{"metric"}),
		// Labels: metric
		drift: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "trust_router",
			Subsystem: "validation",
			Name:      "drift_flag",
			Help:      "1 when the metric breached a drift threshold in the latest check",
		}, []string{"metric"}),
	}
}

func (s *PrometheusSink) Emit(_ context.Context, records []model.MetricRecord) error {
	for _, r := range records {
		s.value.WithLabelValues(r.MetricName).Set(r.Value)
		flag := 0.0
		if r.DriftFlag {
			flag = 1
		}
		s.drift.WithLabelValues(r.MetricName).Set(flag)
	}
	return nil
}

// LogSink writes records to the global logger.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink() *LogSink {
	return &LogSink{log: zap.L().With(zap.String("component", "metrics.sink"))}
}

func (s *LogSink) Emit(_ context.Context, records []model.MetricRecord) error {
	for _, r := range records {
		level := s.log.Info
		if r.DriftFlag {
			level = s.log.Warn
		}
		level("metrics: record",
			zap.String("metric", r.MetricName),
			zap.Float64("value", r.Value),
			zap.Stringer("window", r.Window),
			zap.Bool("drift", r.DriftFlag),
		)
	}
	return nil
}

// MultiSink fans records out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, records []model.MetricRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
