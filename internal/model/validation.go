package model

// ValidationResult is the outcome of one FACT check.
type ValidationResult struct {
	Type       ValidationType `json:"validation_type"`
	Applicable bool           `json:"applicable"`
	Passed     bool           `json:"passed"`
	Confidence float64        `json:"confidence"`
	Findings   []string       `json:"findings"`
	Severity   Severity       `json:"severity"`
}

// ValidationReport collects the FACT results for a claim in a fixed order.
type ValidationReport struct {
	ClaimID         string             `json:"claim_id"`
	Results         []ValidationResult `json:"results"`
	OverallPassed   bool               `json:"overall_passed"`
	ConfidenceScore float64            `json:"confidence_score"`
	RiskLevel       Severity           `json:"risk_level"`
}

// Result returns the result of the given check, if present.
func (r ValidationReport) Result(t ValidationType) (ValidationResult, bool) {
	for _, res := range r.Results {
		if res.Type == t {
			return res, true
		}
	}
	return ValidationResult{}, false
}

// Findings flattens findings across all applicable results.
func (r ValidationReport) Findings() []string {
	var out []string
	for _, res := range r.Results {
		if res.Applicable {
			out = append(out, res.Findings...)
		}
	}
	return out
}
