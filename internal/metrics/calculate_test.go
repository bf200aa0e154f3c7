package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/trust-router/internal/model"
	"github.com/sells-group/trust-router/internal/policy"
)

var t0 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func obs(claim string, passed bool, conf float64, outcome model.Outcome, at time.Duration) model.Observation {
	return model.Observation{ClaimID: claim, OverallPassed: passed, Confidence: conf, Outcome: outcome, RecordedAt: t0.Add(at)}
}

func TestCompute_ConfusionMatrix(t *testing.T) {
	t.Parallel()

	m := Compute(model.Window{}, []model.Observation{
		obs("tp", false, 0.2, model.OutcomeInvalid, 0),
		obs("fp", false, 0.4, model.OutcomeValid, 0),
		obs("tn1", true, 0.9, model.OutcomeValid, 0),
		obs("tn2", true, 0.8, model.OutcomeValid, 0),
		obs("fn", true, 0.7, model.OutcomeInvalid, 0),
	}, 10)

	assert.Equal(t, 5, m.Samples)
	assert.Equal(t, 1, m.TruePositives)
	assert.Equal(t, 1, m.FalsePositives)
	assert.Equal(t, 2, m.TrueNegatives)
	assert.Equal(t, 1, m.FalseNegatives)
	assert.InDelta(t, 0.6, m.Accuracy, 1e-9)
	assert.InDelta(t, 0.5, m.Precision, 1e-9)
	assert.InDelta(t, 0.5, m.Recall, 1e-9)
	assert.InDelta(t, 0.5, m.F1, 1e-9)
}

func TestCompute_LatestLabelWins(t *testing.T) {
	t.Parallel()

	m := Compute(model.Window{}, []model.Observation{
		obs("c1", true, 0.9, model.OutcomeUnknown, 0),
		obs("c1", true, 0.9, model.OutcomeInvalid, time.Minute),
		obs("c1", true, 0.9, model.OutcomeValid, 2*time.Minute),
		obs("c2", true, 0.9, model.OutcomeUnknown, 0),
	}, 10)

	assert.Equal(t, 1, m.Samples)
	assert.Equal(t, 1, m.Unlabeled)
	assert.Equal(t, 1, m.TrueNegatives)
	assert.InDelta(t, 1.0, m.Accuracy, 1e-9)
}

func TestCompute_Calibration(t *testing.T) {
	t.Parallel()

	perfect := Compute(model.Window{}, []model.Observation{
		obs("a", true, 1.0, model.OutcomeValid, 0),
		obs("b", false, 0.0, model.OutcomeInvalid, 0),
	}, 10)
	assert.InDelta(t, 1.0, perfect.Calibration, 1e-9)
	assert.InDelta(t, 0.0, perfect.Brier, 1e-9)

	// Everything at 0.9 confidence but only half valid: ECE = 0.4.
	over := Compute(model.Window{}, []model.Observation{
		obs("a", true, 0.9, model.OutcomeValid, 0),
		obs("b", true, 0.9, model.OutcomeInvalid, 0),
	}, 10)
	assert.InDelta(t, 0.6, over.Calibration, 1e-9)
	assert.InDelta(t, (0.01+0.81)/2, over.Brier, 1e-9)
}

func TestCompute_Empty(t *testing.T) {
	t.Parallel()

	m := Compute(model.Window{}, nil, 0)
	assert.Equal(t, 0, m.Samples)
	assert.Zero(t, m.Accuracy)
	assert.Zero(t, m.F1)
}

func metricsWith(samples int, acc, f1, cal float64) ValidationMetrics {
	return ValidationMetrics{Samples: samples, Accuracy: acc, F1: f1, Calibration: cal}
}

func TestCheckDrift(t *testing.T) {
	t.Parallel()
	th := policy.Default().Drift

	tests := []struct {
		name     string
		current  ValidationMetrics
		baseline ValidationMetrics
		want     bool
		metrics  []string
	}{
		{"stable", metricsWith(50, 0.9, 0.85, 0.9), metricsWith(50, 0.91, 0.86, 0.9), false, nil},
		{"accuracy drop", metricsWith(50, 0.80, 0.85, 0.9), metricsWith(50, 0.90, 0.85, 0.9), true, []string{MetricAccuracy}},
		{"f1 and calibration drop", metricsWith(50, 0.9, 0.70, 0.70), metricsWith(50, 0.9, 0.85, 0.85), true, []string{MetricF1, MetricCalibration}},
		{"accuracy floor", metricsWith(50, 0.65, 0.85, 0.9), metricsWith(50, 0.66, 0.85, 0.9), true, []string{MetricAccuracy}},
		{"thin current window", metricsWith(5, 0.1, 0.1, 0.1), metricsWith(50, 0.9, 0.9, 0.9), false, nil},
		{"thin baseline window", metricsWith(50, 0.1, 0.1, 0.1), metricsWith(5, 0.9, 0.9, 0.9), false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, findings := CheckDrift(tt.current, tt.baseline, th)
			assert.Equal(t, tt.want, got)
			var names []string
			for _, f := range findings {
				names = append(names, f.Metric)
			}
			assert.Equal(t, tt.metrics, names)
		})
	}
}

func TestRecords_FlagsDriftedMetrics(t *testing.T) {
	t.Parallel()

	w := model.Window{Start: t0, End: t0.Add(24 * time.Hour)}
	m := metricsWith(40, 0.8, 0.7, 0.9)
	m.Window = w
	recs := Records(m, []DriftFinding{{Metric: MetricAccuracy, Reason: "dropped"}})

	require.Len(t, recs, 7)
	byName := map[string]model.MetricRecord{}
	for _, r := range recs {
		byName[r.MetricName] = r
		assert.Equal(t, w, r.Window)
	}
	assert.True(t, byName[MetricAccuracy].DriftFlag)
	assert.False(t, byName[MetricF1].DriftFlag)
	assert.InDelta(t, 40, byName[MetricSamples].Value, 1e-9)
}

func TestPrometheusSink(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)
	require.NoError(t, sink.Emit(context.Background(), []model.MetricRecord{
		{MetricName: MetricAccuracy, Value: 0.83, DriftFlag: true},
		{MetricName: MetricF1, Value: 0.71},
	}))

	assert.InDelta(t, 0.83, gaugeValue(t, sink.value.WithLabelValues(MetricAccuracy)), 1e-9)
	assert.InDelta(t, 1, gaugeValue(t, sink.drift.WithLabelValues(MetricAccuracy)), 1e-9)
	assert.InDelta(t, 0, gaugeValue(t, sink.drift.WithLabelValues(MetricF1)), 1e-9)
}

func TestLogSinkAndMultiSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	sink := MultiSink{NewLogSink(), NewPrometheusSink(prometheus.NewRegistry())}
	require.NoError(t, sink.Emit(context.Background(), []model.MetricRecord{
		{MetricName: MetricAccuracy, Value: 0.5, DriftFlag: true},
		{MetricName: MetricF1, Value: 0.9},
	}))

	assert.Equal(t, 2, logs.FilterMessage("metrics: record").Len())
	assert.Equal(t, 1, logs.FilterLevelExact(zap.WarnLevel).Len())
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}
