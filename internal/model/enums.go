package model

import (
	"github.com/rotisserie/eris"
)

// PlanKind identifies an execution plan variant. Values are ordered by
// analytical rigor so a floor can be applied with a simple comparison.
type PlanKind int

const (
	PlanFastTrack PlanKind = iota
	PlanHybrid
	PlanDeepAnalysis
	PlanEnsemble
)

var planKindNames = map[PlanKind]string{
	PlanFastTrack:    "fast_track",
	PlanHybrid:       "hybrid",
	PlanDeepAnalysis: "deep_analysis",
	PlanEnsemble:     "ensemble",
}

func (k PlanKind) String() string {
	if s, ok := planKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (k PlanKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PlanKind) UnmarshalText(b []byte) error {
	v, err := parseEnum(planKindNames, string(b), "plan kind")
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// ValidationType identifies one of the three FACT checks.
type ValidationType int

const (
	ValidationMathematical ValidationType = iota
	ValidationLogical
	ValidationCritical
)

var validationTypeNames = map[ValidationType]string{
	ValidationMathematical: "mathematical",
	ValidationLogical:      "logical",
	ValidationCritical:     "critical",
}

func (v ValidationType) String() string {
	if s, ok := validationTypeNames[v]; ok {
		return s
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (v ValidationType) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *ValidationType) UnmarshalText(b []byte) error {
	p, err := parseEnum(validationTypeNames, string(b), "validation type")
	if err != nil {
		return err
	}
	*v = p
	return nil
}

// Severity grades a validation finding. Higher values are worse.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if n, ok := severityNames[s]; ok {
		return n
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	p, err := parseEnum(severityNames, string(b), "severity")
	if err != nil {
		return err
	}
	*s = p
	return nil
}

// MaxSeverity returns the worse of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b > a {
		return b
	}
	return a
}

// RiskCategory is the GOALIE classification of a prediction.
type RiskCategory int

const (
	RiskGeneral RiskCategory = iota
	RiskFinancial
	RiskMarket
	RiskValuation
	RiskRegulatory
	RiskCompetitive
)

var riskCategoryNames = map[RiskCategory]string{
	RiskGeneral:     "general",
	RiskFinancial:   "financial",
	RiskMarket:      "market",
	RiskValuation:   "valuation",
	RiskRegulatory:  "regulatory",
	RiskCompetitive: "competitive",
}

// RiskCategories lists every category in declaration order.
var RiskCategories = []RiskCategory{
	RiskGeneral, RiskFinancial, RiskMarket, RiskValuation, RiskRegulatory, RiskCompetitive,
}

func (c RiskCategory) String() string {
	if s, ok := riskCategoryNames[c]; ok {
		return s
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (c RiskCategory) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *RiskCategory) UnmarshalText(b []byte) error {
	p, err := parseEnum(riskCategoryNames, string(b), "risk category")
	if err != nil {
		return err
	}
	*c = p
	return nil
}

// RiskLevel is the banded form of a risk score.
type RiskLevel int

const (
	RiskMinimal RiskLevel = iota
	RiskLow
	RiskModerate
	RiskHigh
	RiskCritical
)

var riskLevelNames = map[RiskLevel]string{
	RiskMinimal:  "minimal",
	RiskLow:      "low",
	RiskModerate: "moderate",
	RiskHigh:     "high",
	RiskCritical: "critical",
}

func (l RiskLevel) String() string {
	if s, ok := riskLevelNames[l]; ok {
		return s
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (l RiskLevel) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *RiskLevel) UnmarshalText(b []byte) error {
	p, err := parseEnum(riskLevelNames, string(b), "risk level")
	if err != nil {
		return err
	}
	*l = p
	return nil
}

// Reliability is the banded form of a blended confidence.
type Reliability int

const (
	Reliable Reliability = iota
	Uncertain
	Unreliable
)

var reliabilityNames = map[Reliability]string{
	Reliable:   "reliable",
	Uncertain:  "uncertain",
	Unreliable: "unreliable",
}

func (r Reliability) String() string {
	if s, ok := reliabilityNames[r]; ok {
		return s
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (r Reliability) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Reliability) UnmarshalText(b []byte) error {
	p, err := parseEnum(reliabilityNames, string(b), "reliability")
	if err != nil {
		return err
	}
	*r = p
	return nil
}

// Outcome is the ground-truth label attached to a validated claim.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeValid
	OutcomeInvalid
)

var outcomeNames = map[Outcome]string{
	OutcomeUnknown: "unknown",
	OutcomeValid:   "valid",
	OutcomeInvalid: "invalid",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(b []byte) error {
	p, err := parseEnum(outcomeNames, string(b), "outcome")
	if err != nil {
		return err
	}
	*o = p
	return nil
}

// ParseOutcome converts a label such as "valid" into an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	return parseEnum(outcomeNames, s, "outcome")
}

// ParseRiskCategory parses a category name.
func ParseRiskCategory(s string) (RiskCategory, error) {
	return parseEnum(riskCategoryNames, s, "risk category")
}

// ParseRiskLevel parses a risk level name.
func ParseRiskLevel(s string) (RiskLevel, error) {
	return parseEnum(riskLevelNames, s, "risk level")
}

// ParseReliability parses a reliability name.
func ParseReliability(s string) (Reliability, error) {
	return parseEnum(reliabilityNames, s, "reliability")
}

func parseEnum[T comparable](names map[T]string, s, what string) (T, error) {
	for k, name := range names {
		if name == s {
			return k, nil
		}
	}
	var zero T
	return zero, eris.Wrapf(ErrInvalidInput, "model: unknown %s %q", what, s)
}

// ParseSeverity parses a severity name.
func ParseSeverity(s string) (Severity, error) {
	return parseEnum(severityNames, s, "severity")
}
