// Package risk blends rule outcomes with a trained classifier's
// probability estimate to produce a banded risk score.
package risk

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/opengov-stack/adjudex/internal/domain"
)

// Scorer produces a risk probability and band for one application.
// When a trained classifier is configured and reachable it delegates
// scoring to it; on any classifier failure it falls back to a
// deterministic weighted-linear score.
type Scorer struct {
	classifier Classifier
	weights    domain.ScoringWeights
}

// NewScorer creates a scorer. classifier may be nil, in which case the
// deterministic fallback is used exclusively.
func NewScorer(classifier Classifier, weights domain.ScoringWeights) *Scorer {
	return &Scorer{classifier: classifier, weights: weights}
}

// contribution names one feature's signed share of the fallback score.
type contribution struct {
	name  string
	value float64
}

// Score extracts features, scores them, and maps the result to a band
// using the scheme's thresholds.
func (s *Scorer) Score(ctx context.Context, applicationID string, ec domain.EvaluationContext, scheme *domain.SchemeConfig) *domain.RiskScore {
	features := ExtractFeatures(ec)

	weights := s.weights
	if scheme.Weights != nil {
		weights = *scheme.Weights
	}

	// The fallback contributions double as the human-readable
	// explanation even when the classifier supplies the probability.
	fallbackScore, contribs := fallback(features, weights)

	score := fallbackScore
	modelType := domain.ModelTypeFallback
	modelVersion := ""

	if s.classifier != nil {
		prob, version, err := s.classifier.Score(ctx, applicationID, features)
		if err != nil {
			slog.Warn("classifier scoring failed, using rule-based fallback",
				"application_id", applicationID,
				"error", err,
			)
		} else {
			score = prob
			modelType = domain.ModelTypeClassifier
			modelVersion = version
		}
	}

	return &domain.RiskScore{
		Score:        score,
		Band:         scheme.BandFor(score),
		TopFactors:   topFactors(contribs, weights.TopFactorThreshold),
		ModelType:    modelType,
		ModelVersion: modelVersion,
	}
}

// fallback computes the deterministic weighted-linear score: past
// rejections raise risk, eligibility confidence and an established
// enrollment track record lower it, non-auto submission raises it
// slightly.
func fallback(fv FeatureVector, w domain.ScoringWeights) (float64, []contribution) {
	contribs := []contribution{
		{domain.CtxPastRejections, math.Min(fv.PastRejections*w.PerRejection, w.RejectionCap)},
		{domain.CtxEligibilityConfidence, -fv.EligibilityConfidence * w.ConfidenceRelief},
		{domain.CtxEnrollmentCount, -math.Min(fv.EnrollmentCount*w.PerEnrollment, w.EnrollmentCap)},
		{domain.CtxSubmissionMode, fv.NonAutoSubmission * w.NonAutoSubmission},
	}

	score := w.Base
	for _, c := range contribs {
		score += c.value
	}

	return clamp01(score), contribs
}

// topFactors returns the feature names whose contribution magnitude
// exceeds the configured fraction of the total magnitude, ordered by
// descending magnitude.
func topFactors(contribs []contribution, threshold float64) []string {
	var total float64
	for _, c := range contribs {
		total += math.Abs(c.value)
	}
	if total == 0 {
		return nil
	}

	sorted := make([]contribution, len(contribs))
	copy(sorted, contribs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return math.Abs(sorted[i].value) > math.Abs(sorted[j].value)
	})

	var names []string
	for _, c := range sorted {
		if math.Abs(c.value) >= threshold*total {
			names = append(names, c.name)
		}
	}
	return names
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
