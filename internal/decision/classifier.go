// Package decision turns rule and risk outcomes into terminal decisions
// and dispatches them to their downstream channels.
package decision

import (
	"fmt"
	"strings"

	"github.com/opengov-stack/adjudex/internal/domain"
)

// Classify combines rule results, the risk score, and scheme policy into
// one terminal decision. Pure function, no I/O: identifiers and
// timestamps are filled in by the caller.
//
// A hard rule failure is checked first and is never overridden by a
// favorable risk score. Optional-rule warnings inform the reason but
// never block.
func Classify(ruleResult *domain.RuleEvaluationResult, riskScore *domain.RiskScore, scheme *domain.SchemeConfig) *domain.Decision {
	d := &domain.Decision{
		SchemeCode: scheme.SchemeCode,
		RiskScore:  riskScore.Score,
		RiskBand:   riskScore.Band,
		RuleResult: ruleResult,
	}

	if len(ruleResult.CriticalFailures) > 0 {
		d.Type = domain.DecisionAutoReject
		d.Status = domain.StatusRejected
		d.Reason = "critical rule failures: " + strings.Join(ruleResult.CriticalFailures, ", ")
		return d
	}

	reason := fmt.Sprintf("risk band %s (score %.2f)", riskScore.Band, riskScore.Score)
	if warnings := ruleResult.Warnings(); len(warnings) > 0 {
		reason += "; warnings: " + strings.Join(warnings, ", ")
	}
	d.Reason = reason

	switch riskScore.Band {
	case domain.BandLow:
		if scheme.AllowAutoApprove {
			d.Type = domain.DecisionAutoApprove
			d.Status = domain.StatusApproved
			return d
		}
		// Low risk without auto-approval still needs a human.
		d.Type = domain.DecisionRouteOfficer
		d.Status = domain.StatusUnderReview
		return d

	case domain.BandMedium:
		d.Type = domain.DecisionRouteOfficer
		d.Status = domain.StatusUnderReview
		return d

	default: // HIGH
		if scheme.RouteHighToFraud {
			d.Type = domain.DecisionRouteFraud
		} else {
			d.Type = domain.DecisionRouteOfficer
		}
		d.Status = domain.StatusUnderReview
		return d
	}
}
