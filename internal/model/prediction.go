package model

import "time"

// RiskAssessment is the first GOALIE stage.
type RiskAssessment struct {
	Category RiskCategory `json:"category"`
	Level    RiskLevel    `json:"risk_level"`
	Score    float64      `json:"risk_score"`
	Factors  []string     `json:"factors"`
}

// ConfidenceScore is the second GOALIE stage.
type ConfidenceScore struct {
	ModelAgreement float64     `json:"model_agreement"`
	Variance       float64     `json:"variance"`
	Blended        float64     `json:"blended"`
	Reliability    Reliability `json:"reliability"`
}

// PredictionValue holds either a numeric or a qualitative prediction.
type PredictionValue struct {
	Number *float64 `json:"number,omitempty"`
	Text   string   `json:"text"`
}

// IsNumeric reports whether the value carries a number.
func (v PredictionValue) IsNumeric() bool { return v.Number != nil }

// AdjustedPrediction is the terminal artifact of the pipeline. It is built
// once and never modified; re-validation produces a new value.
type AdjustedPrediction struct {
	OriginalValue    PredictionValue `json:"original_value"`
	AdjustedValue    PredictionValue `json:"adjusted_value"`
	AdjustmentFactor float64         `json:"adjustment_factor"`
	Disclaimers      []string        `json:"disclaimers"`
	ShouldDisplay    bool            `json:"should_display"`
}

// AuditRecord is emitted for every completed analysis.
type AuditRecord struct {
	ID                 string             `json:"id"`
	InputRef           string             `json:"input_ref"`
	EntityID           string             `json:"entity_id"`
	PolicyVersion      string             `json:"policy_version"`
	Complexity         ComplexityScore    `json:"complexity"`
	ExecutionPlan      ExecutionPlan      `json:"execution_plan"`
	Merged             MergedPrediction   `json:"merged_prediction"`
	ValidationReport   ValidationReport   `json:"validation_report"`
	RiskAssessment     RiskAssessment     `json:"risk_assessment"`
	ConfidenceScore    ConfidenceScore    `json:"confidence_score"`
	AdjustedPrediction AdjustedPrediction `json:"adjusted_prediction"`
	StartedAt          time.Time          `json:"started_at"`
	CompletedAt        time.Time          `json:"completed_at"`
}

// Observation is a single validation outcome tracked for metrics. Unlabeled
// observations carry OutcomeUnknown.
type Observation struct {
	ID            string    `json:"id"`
	ClaimID       string    `json:"claim_id"`
	OverallPassed bool      `json:"overall_passed"`
	Confidence    float64   `json:"confidence"`
	RiskLevel     Severity  `json:"risk_level"`
	Outcome       Outcome   `json:"outcome"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// String formats the window for metric labels.
func (w Window) String() string {
	return w.Start.UTC().Format(time.RFC3339) + "/" + w.End.UTC().Format(time.RFC3339)
}

// MetricRecord is emitted by the metrics tracker to downstream sinks.
type MetricRecord struct {
	MetricName string  `json:"metric_name"`
	Value      float64 `json:"value"`
	Window     Window  `json:"window"`
	DriftFlag  bool    `json:"drift_flag"`
}
