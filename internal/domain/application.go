// Package domain defines the core interfaces and types for adjudex.
package domain

import (
	"time"
)

// SubmissionMode is how an application entered the system.
const (
	SubmissionModeAuto     = "AUTO"
	SubmissionModeAssisted = "ASSISTED"
	SubmissionModeManual   = "MANUAL"
)

// Application is a benefit-scheme application awaiting a decision.
type Application struct {
	ID         string `json:"id"`
	SchemeCode string `json:"schemeCode"`

	// Attributes is the flattened applicant data a rule may reference.
	Attributes EvaluationContext `json:"attributes"`

	SubmissionMode string    `json:"submissionMode"`
	SubmittedAt    time.Time `json:"submittedAt"`
	CreatedAt      time.Time `json:"createdAt"`
}

// EvaluationContext is the read-only key/value mapping of applicant
// attributes referenced by rules and the risk scorer. Values are the
// types JSON decoding produces: float64, string, bool, []any.
type EvaluationContext map[string]any

// Float returns the numeric value of a key. Integer-typed values are
// widened; the second return is false when the key is missing or not
// numeric.
func (c EvaluationContext) Float(key string) (float64, bool) {
	v, ok := c[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// String returns the string value of a key.
func (c EvaluationContext) String(key string) (string, bool) {
	v, ok := c[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Bool returns the boolean value of a key.
func (c EvaluationContext) Bool(key string) (bool, bool) {
	v, ok := c[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Has reports whether the key is present, regardless of type.
func (c EvaluationContext) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// Well-known context keys consumed by the risk scorer's feature
// extraction. The excluded data layer is responsible for populating them.
const (
	CtxPastRejections        = "past_rejection_count"
	CtxEligibilityConfidence = "eligibility_confidence"
	CtxEnrollmentCount       = "prior_enrollment_count"
	CtxSubmissionMode        = "submission_mode"
	CtxBenefitTotal          = "benefit_amount_total"
)
