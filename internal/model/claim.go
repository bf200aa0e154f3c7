package model

import "time"

// SectionMeta is the document metadata consumed by complexity scoring and
// routing.
type SectionMeta struct {
	EntityID             string  `json:"entity_id"`
	SectionType          string  `json:"section_type,omitempty"`
	HighStakes           bool    `json:"high_stakes"`
	HistoricalVolatility float64 `json:"historical_volatility"`
}

// ComplexityScore is the routing input computed once per section.
type ComplexityScore struct {
	Value          float64 `json:"value"`
	Length         float64 `json:"length"`
	Lexical        float64 `json:"lexical"`
	NumericDensity float64 `json:"numeric_density"`
	ForwardLooking float64 `json:"forward_looking"`
	Volatility     float64 `json:"volatility"`
}

// Claim is a single statement produced by a model and checked by FACT.
type Claim struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	Value      *float64 `json:"value,omitempty"`
	HighStakes bool     `json:"high_stakes"`
}

// ReferenceFact is a known value for the subject entity.
type ReferenceFact struct {
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
	// Unit is "usd", "percent" or empty for a plain number.
	Unit   string `json:"unit,omitempty"`
	Period string `json:"period,omitempty"`
}

// RegulatoryThreshold bounds a metric. Either side may be open.
type RegulatoryThreshold struct {
	Metric      string   `json:"metric"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Description string   `json:"description,omitempty"`
}

// ClaimContext carries everything the trust layer knows about the subject
// entity beyond the claim itself.
type ClaimContext struct {
	EntityID             string                `json:"entity_id"`
	EntityName           string                `json:"entity_name,omitempty"`
	HighStakes           bool                  `json:"high_stakes"`
	UncertaintyFlag      bool                  `json:"uncertainty_flag"`
	HistoricalVolatility float64               `json:"historical_volatility"`
	HistoryDepth         int                   `json:"history_depth"`
	ReferenceFacts       []ReferenceFact       `json:"reference_facts,omitempty"`
	Statements           []string              `json:"statements,omitempty"`
	Thresholds           []RegulatoryThreshold `json:"thresholds,omitempty"`
}

// Grounded reports whether any external context is available.
func (c ClaimContext) Grounded() bool {
	return len(c.ReferenceFacts) > 0 || len(c.Statements) > 0 || len(c.Thresholds) > 0
}

// ModelOutput is one model invocation result.
type ModelOutput struct {
	ModelID                string        `json:"model_id"`
	RawText                string        `json:"raw_text"`
	ExtractedClaim         string        `json:"extracted_claim"`
	Value                  *float64      `json:"value,omitempty"`
	SelfReportedConfidence float64       `json:"self_reported_confidence"`
	Latency                time.Duration `json:"latency"`
}

// MergedPrediction is the weighted-vote result of a plan.
type MergedPrediction struct {
	Claim               string   `json:"claim"`
	Value               *float64 `json:"value,omitempty"`
	AggregateConfidence float64  `json:"aggregate_confidence"`
	AgreementScore      float64  `json:"agreement_score"`
	ContributingModels  []string `json:"contributing_models"`
	FailedModels        []string `json:"failed_models,omitempty"`
	CancelledModels     []string `json:"cancelled_models,omitempty"`
	DisagreementFlag    bool     `json:"disagreement_flag"`
}
