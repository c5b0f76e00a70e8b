package domain

import (
	"encoding/json"
	"time"
)

// RuleType identifies the applicant attribute class a rule checks.
type RuleType string

const (
	RuleTypeAge              RuleType = "AGE"
	RuleTypeIncomeGroup      RuleType = "INCOME_GROUP"
	RuleTypeDistrict         RuleType = "DISTRICT"
	RuleTypeDisability       RuleType = "DISABILITY"
	RuleTypeFamilySize       RuleType = "FAMILY_SIZE"
	RuleTypeCategory         RuleType = "CATEGORY"
	RuleTypeLandOwnership    RuleType = "LAND_OWNERSHIP"
	RuleTypeEmploymentStatus RuleType = "EMPLOYMENT_STATUS"
	RuleTypeCustom           RuleType = "CUSTOM"
)

// RuleCategory groups rules by the kind of check they perform.
// Categories are evaluated independently and merged; a duplicate-detection
// rule is just a rule with a category tag, not a special case.
type RuleCategory string

const (
	CategoryEligibility  RuleCategory = "ELIGIBILITY"
	CategoryAuthenticity RuleCategory = "AUTHENTICITY"
	CategoryDocument     RuleCategory = "DOCUMENT"
	CategoryDuplicate    RuleCategory = "DUPLICATE"
	CategoryCrossScheme  RuleCategory = "CROSS_SCHEME"
	CategoryFraud        RuleCategory = "FRAUD"
)

// Operator is the comparison a rule applies to a context field.
type Operator string

const (
	OpGTE     Operator = ">="
	OpLTE     Operator = "<="
	OpEQ      Operator = "=="
	OpNEQ     Operator = "!="
	OpIn      Operator = "IN"
	OpNotIn   Operator = "NOT_IN"
	OpBetween Operator = "BETWEEN"
)

// Severity of a rule failure. Mandatory rules fail CRITICAL, optional
// rules fail WARNING.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
)

// Rule is a single typed predicate over one applicant attribute, scoped
// to a scheme and a time range. Rules are versioned: an update creates a
// new version and closes the prior one, never mutating history in place.
type Rule struct {
	ID         string       `json:"id"`
	SchemeCode string       `json:"schemeCode"`
	Name       string       `json:"name"`
	Type       RuleType     `json:"type"`
	Category   RuleCategory `json:"category"`

	// Field is the EvaluationContext key the rule reads.
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`

	// Value holds the operand(s) as JSON: a scalar for comparison
	// operators, an array for IN/NOT_IN, a two-element array for BETWEEN.
	// It is parsed into a typed predicate once at rule load time.
	Value json.RawMessage `json:"value"`

	Mandatory bool `json:"mandatory"`
	Priority  int  `json:"priority"`

	Version       int        `json:"version"`
	EffectiveFrom time.Time  `json:"effectiveFrom"`
	EffectiveTo   *time.Time `json:"effectiveTo,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// ActiveAt reports whether this rule version is in effect at t.
func (r *Rule) ActiveAt(t time.Time) bool {
	if t.Before(r.EffectiveFrom) {
		return false
	}
	return r.EffectiveTo == nil || t.Before(*r.EffectiveTo)
}

// FailureSeverity returns the severity this rule carries when it fails.
func (r *Rule) FailureSeverity() Severity {
	if r.Mandatory {
		return SeverityCritical
	}
	return SeverityWarning
}

// RuleSetSnapshot is an immutable, named capture of all active rules for
// a scheme at a point in time, created explicitly for audit and
// reproducibility.
type RuleSetSnapshot struct {
	ID         string    `json:"id"`
	SchemeCode string    `json:"schemeCode"`
	Name       string    `json:"name"`
	TakenAt    time.Time `json:"takenAt"`
	Rules      []*Rule   `json:"rules"`
}

// RuleOutcome records the result of evaluating one rule.
type RuleOutcome struct {
	RuleName string       `json:"ruleName"`
	Category RuleCategory `json:"category"`
	Passed   bool         `json:"passed"`
	Severity Severity     `json:"severity,omitempty"`
	Reason   string       `json:"reason,omitempty"`
}

// RuleEvaluationResult is the merged outcome of evaluating a rule set
// against one applicant's context.
//
// Invariants: Passed == (FailedCount == 0); CriticalFailures is non-empty
// iff at least one mandatory rule failed.
type RuleEvaluationResult struct {
	Passed           bool          `json:"passed"`
	PerRule          []RuleOutcome `json:"perRule"`
	CriticalFailures []string      `json:"criticalFailures,omitempty"`
	PassedCount      int           `json:"passedCount"`
	FailedCount      int           `json:"failedCount"`
}

// Warnings returns the names of optional rules that failed.
func (r *RuleEvaluationResult) Warnings() []string {
	var names []string
	for _, o := range r.PerRule {
		if !o.Passed && o.Severity == SeverityWarning {
			names = append(names, o.RuleName)
		}
	}
	return names
}
