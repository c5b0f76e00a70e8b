package risk

import (
	"github.com/opengov-stack/adjudex/internal/domain"
)

// FeatureVector is the fixed set of numeric features the scorer extracts
// from an applicant's context. Missing context fields extract as zero;
// incomplete data is a scoring input, never an error.
type FeatureVector struct {
	PastRejections        float64 `json:"pastRejections"`
	EligibilityConfidence float64 `json:"eligibilityConfidence"`
	EnrollmentCount       float64 `json:"enrollmentCount"`
	NonAutoSubmission     float64 `json:"nonAutoSubmission"` // 1 when not submitted through the auto channel
	BenefitTotal          float64 `json:"benefitTotal"`
}

// ExtractFeatures flattens the applicant context into the feature vector.
func ExtractFeatures(ctx domain.EvaluationContext) FeatureVector {
	var fv FeatureVector

	if v, ok := ctx.Float(domain.CtxPastRejections); ok {
		fv.PastRejections = v
	}
	if v, ok := ctx.Float(domain.CtxEligibilityConfidence); ok {
		fv.EligibilityConfidence = v
	}
	if v, ok := ctx.Float(domain.CtxEnrollmentCount); ok {
		fv.EnrollmentCount = v
	}
	if v, ok := ctx.Float(domain.CtxBenefitTotal); ok {
		fv.BenefitTotal = v
	}
	if mode, ok := ctx.String(domain.CtxSubmissionMode); ok && mode != domain.SubmissionModeAuto {
		fv.NonAutoSubmission = 1
	}

	return fv
}
