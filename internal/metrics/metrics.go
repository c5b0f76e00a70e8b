// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EvaluationsTotal counts completed pipeline runs by scheme and
	// terminal decision type.
	EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adjudex",
		Name:      "evaluations_total",
		Help:      "Completed application evaluations by decision type.",
	}, []string{"scheme", "decision"})

	// EvaluationDuration observes end-to-end pipeline latency.
	EvaluationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "adjudex",
		Name:      "evaluation_duration_seconds",
		Help:      "End-to-end evaluation pipeline duration.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"scheme"})

	// RuleFailuresTotal counts failed rule checks by scheme and severity.
	RuleFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adjudex",
		Name:      "rule_failures_total",
		Help:      "Failed rule evaluations by severity.",
	}, []string{"scheme", "severity"})

	// FallbackScores counts risk scores produced without the trained
	// classifier.
	FallbackScores = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adjudex",
		Name:      "fallback_scores_total",
		Help:      "Risk scores computed by the rule-based fallback.",
	}, []string{"scheme"})

	// ConnectorAttempts counts individual submission attempts by
	// connector and outcome status.
	ConnectorAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adjudex",
		Name:      "connector_attempts_total",
		Help:      "Department submission attempts by outcome.",
	}, []string{"connector", "status"})

	// ConnectorRetries counts attempts that were followed by a retry.
	ConnectorRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adjudex",
		Name:      "connector_retries_total",
		Help:      "Department submission retries.",
	}, []string{"connector"})
)
