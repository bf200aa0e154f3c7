package metrics

import (
	"fmt"

	"github.com/sells-group/trust-router/internal/model"
	"github.com/sells-group/trust-router/internal/policy"
)

// Metric names used in records and findings.
const (
	MetricAccuracy    = "accuracy"
	MetricPrecision   = "precision"
	MetricRecall      = "recall"
	MetricF1          = "f1"
	MetricCalibration = "calibration"
	MetricBrier       = "brier"
	MetricSamples     = "samples"
)

// DriftFinding explains one threshold breach.
type DriftFinding struct {
	Metric    string  `json:"metric"`
	Current   float64 `json:"current"`
	Baseline  float64 `json:"baseline"`
	Threshold float64 `json:"threshold"`
	Reason    string  `json:"reason"`
}

func (f DriftFinding) String() string {
	return fmt.Sprintf("%s %s: current %.3f, baseline %.3f, threshold %.3f",
		f.Metric, f.Reason, f.Current, f.Baseline, f.Threshold)
}

// CheckDrift compares current against baseline. Drops larger than the
// configured maxima and values under the absolute floors are findings.
// Windows with fewer than MinSamples labeled claims never flag.
func CheckDrift(current, baseline ValidationMetrics, th policy.DriftThresholds) (bool, []DriftFinding) {
	if current.Samples < th.MinSamples || baseline.Samples < th.MinSamples || current.Samples == 0 {
		return false, nil
	}

	var findings []DriftFinding
	drop := func(metric string, cur, base, limit float64) {
		if limit > 0 && base-cur > limit {
			findings = append(findings, DriftFinding{Metric: metric, Current: cur, Baseline: base, Threshold: limit, Reason: "dropped"})
		}
	}
	floor := func(metric string, cur, base, limit float64) {
		if limit > 0 && cur < limit {
			findings = append(findings, DriftFinding{Metric: metric, Current: cur, Baseline: base, Threshold: limit, Reason: "below floor"})
		}
	}

	drop(MetricAccuracy, current.Accuracy, baseline.Accuracy, th.MaxAccuracyDrop)
	drop(MetricF1, current.F1, baseline.F1, th.MaxF1Drop)
	drop(MetricCalibration, current.Calibration, baseline.Calibration, th.MaxCalibrationDrop)
	floor(MetricAccuracy, current.Accuracy, baseline.Accuracy, th.MinAccuracy)
	floor(MetricCalibration, current.Calibration, baseline.Calibration, th.MinCalibration)

	return len(findings) > 0, findings
}

// Records flattens m into sink records. A metric is flagged when any
// finding names it.
func Records(m ValidationMetrics, findings []DriftFinding) []model.MetricRecord {
	flagged := map[string]bool{}
	for _, f := range findings {
		flagged[f.Metric] = true
	}
	values := []struct {
		name  string
		value float64
	}{
		{MetricAccuracy, m.Accuracy},
		{MetricPrecision, m.Precision},
		{MetricRecall, m.Recall},
		{MetricF1, m.F1},
		{MetricCalibration, m.Calibration},
		{MetricBrier, m.Brier},
		{MetricSamples, float64(m.Samples)},
	}
	out := make([]model.MetricRecord, len(values))
	for i, v := range values {
		out[i] = model.MetricRecord{MetricName: v.name, Value: v.value, Window: m.Window, DriftFlag: flagged[v.name]}
	}
	return out
}
