package domain

// SchemeConfig holds the per-scheme decision thresholds and policy flags.
type SchemeConfig struct {
	SchemeCode string `json:"schemeCode"`

	// Band boundaries: score <= LowRiskMax is LOW, score <= MediumRiskMax
	// is MEDIUM, anything above is HIGH.
	LowRiskMax    float64 `json:"lowRiskMax"`
	MediumRiskMax float64 `json:"mediumRiskMax"`

	// AllowAutoApprove permits AUTO_APPROVE for low-risk applications.
	// When false, low-risk applications route to an officer instead.
	AllowAutoApprove bool `json:"allowAutoApprove"`

	// RouteHighToFraud sends high-band applications to the fraud queue.
	// When false they route to the officer worklist like medium-band ones.
	RouteHighToFraud bool `json:"routeHighToFraud"`

	// PaymentSystem identifies the payment backend attached to payment
	// triggers created for this scheme.
	PaymentSystem string `json:"paymentSystem,omitempty"`

	// Weights overrides the fallback scoring weights for this scheme.
	// Nil means the engine defaults apply.
	Weights *ScoringWeights `json:"weights,omitempty"`
}

// BandFor maps a score to a risk band using this scheme's thresholds.
// Monotonic in score for fixed thresholds.
func (c *SchemeConfig) BandFor(score float64) RiskBand {
	switch {
	case score <= c.LowRiskMax:
		return BandLow
	case score <= c.MediumRiskMax:
		return BandMedium
	default:
		return BandHigh
	}
}

// ScoringWeights parameterizes the deterministic fallback risk score.
// These are hand-tuned configuration defaults, not semantic contracts,
// and are overridable per scheme.
type ScoringWeights struct {
	Base               float64 `json:"base"`
	PerRejection       float64 `json:"perRejection"`
	RejectionCap       float64 `json:"rejectionCap"`
	ConfidenceRelief   float64 `json:"confidenceRelief"`
	PerEnrollment      float64 `json:"perEnrollment"`
	EnrollmentCap      float64 `json:"enrollmentCap"`
	NonAutoSubmission  float64 `json:"nonAutoSubmission"`
	TopFactorThreshold float64 `json:"topFactorThreshold"`
}

// DefaultScoringWeights returns the engine-default fallback weights.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		Base:               0.5,
		PerRejection:       0.08,
		RejectionCap:       0.3,
		ConfidenceRelief:   0.3,
		PerEnrollment:      0.04,
		EnrollmentCap:      0.2,
		NonAutoSubmission:  0.05,
		TopFactorThreshold: 0.15,
	}
}
