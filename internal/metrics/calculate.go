package metrics

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trust-router/internal/model"
)

// ValidationMetrics summarizes labeled validation outcomes in a window. The
// positive class is a claim flagged invalid.
type ValidationMetrics struct {
	Window    model.Window `json:"window"`
	Samples   int          `json:"samples"`
	Unlabeled int          `json:"unlabeled"`

	TruePositives  int `json:"true_positives"`
	FalsePositives int `json:"false_positives"`
	TrueNegatives  int `json:"true_negatives"`
	FalseNegatives int `json:"false_negatives"`

	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	// Calibration is 1 - expected calibration error of confidence against
	// realized validity.
	Calibration float64 `json:"calibration"`
	Brier       float64 `json:"brier"`
}

// Calculate reads the window's observations and computes metrics using bins
// calibration buckets.
func (t *Tracker) Calculate(ctx context.Context, w model.Window, bins int) (ValidationMetrics, error) {
	obs, err := t.repo.ListObservations(ctx, w)
	if err != nil {
		return ValidationMetrics{}, eris.Wrapf(err, "metrics: calculate %s", w)
	}
	m := Compute(w, obs, bins)
	t.log.Debug("metrics: window calculated",
		zap.Stringer("window", w),
		zap.Int("samples", m.Samples),
		zap.Int("unlabeled", m.Unlabeled),
		zap.Float64("accuracy", m.Accuracy),
		zap.Float64("f1", m.F1),
		zap.Float64("calibration", m.Calibration),
	)
	return m, nil
}

// Compute derives metrics from raw observations. Each claim contributes its
// latest labeled observation; claims never labeled are counted as unlabeled.
func Compute(w model.Window, obs []model.Observation, bins int) ValidationMetrics {
	m := ValidationMetrics{Window: w}
	labeled := latestLabels(obs)

	seen := map[string]bool{}
	for _, o := range obs {
		if !seen[o.ClaimID] {
			seen[o.ClaimID] = true
			if _, ok := labeled[o.ClaimID]; !ok {
				m.Unlabeled++
			}
		}
	}

	if bins < 1 {
		bins = 1
	}
	binConf := make([]float64, bins)
	binValid := make([]float64, bins)
	binCount := make([]int, bins)

	var brier float64
	for _, o := range labeled {
		flagged := !o.OverallPassed
		invalid := o.Outcome == model.OutcomeInvalid
		switch {
		case flagged && invalid:
			m.TruePositives++
		case flagged && !invalid:
			m.FalsePositives++
		case !flagged && invalid:
			m.FalseNegatives++
		default:
			m.TrueNegatives++
		}

		c := clamp01(o.Confidence)
		y := 0.0
		if !invalid {
			y = 1
		}
		brier += (c - y) * (c - y)

		b := min(int(c*float64(bins)), bins-1)
		binConf[b] += c
		binValid[b] += y
		binCount[b]++
	}

	m.Samples = len(labeled)
	if m.Samples == 0 {
		return m
	}
	n := float64(m.Samples)

	m.Accuracy = float64(m.TruePositives+m.TrueNegatives) / n
	m.Precision = ratio(m.TruePositives, m.TruePositives+m.FalsePositives)
	m.Recall = ratio(m.TruePositives, m.TruePositives+m.FalseNegatives)
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	m.Brier = brier / n

	var ece float64
	for b := range bins {
		if binCount[b] == 0 {
			continue
		}
		k := float64(binCount[b])
		ece += (k / n) * math.Abs(binConf[b]/k-binValid[b]/k)
	}
	m.Calibration = 1 - ece
	return m
}

// latestLabels keeps the most recent labeled observation per claim.
func latestLabels(obs []model.Observation) map[string]model.Observation {
	out := map[string]model.Observation{}
	for _, o := range obs {
		if o.Outcome == model.OutcomeUnknown {
			continue
		}
		prev, ok := out[o.ClaimID]
		if !ok || !o.RecordedAt.Before(prev.RecordedAt) {
			out[o.ClaimID] = o
		}
	}
	return out
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
