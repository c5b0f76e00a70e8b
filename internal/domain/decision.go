package domain

import "time"

// DecisionType is the terminal output of decision classification.
type DecisionType string

const (
	DecisionAutoApprove  DecisionType = "AUTO_APPROVE"
	DecisionAutoReject   DecisionType = "AUTO_REJECT"
	DecisionRouteOfficer DecisionType = "ROUTE_TO_OFFICER"
	DecisionRouteFraud   DecisionType = "ROUTE_TO_FRAUD"
)

// DecisionStatus is the application status a decision implies.
type DecisionStatus string

const (
	StatusApproved    DecisionStatus = "approved"
	StatusRejected    DecisionStatus = "rejected"
	StatusUnderReview DecisionStatus = "under_review"
)

// Routing destinations recorded on a decision.
const (
	RoutedOfficerWorklist = "OFFICER_WORKLIST"
	RoutedFraudQueue      = "FRAUD_QUEUE"
	RoutedPaymentSystem   = "PAYMENT_SYSTEM"
)

// Decision is the immutable record of one evaluation run. Re-evaluation
// produces a new row, never an in-place update, preserving the audit
// trail.
type Decision struct {
	ID            string         `json:"id"`
	ApplicationID string         `json:"applicationId"`
	SchemeCode    string         `json:"schemeCode"`
	Type          DecisionType   `json:"type"`
	Status        DecisionStatus `json:"status"`
	RiskScore     float64        `json:"riskScore"`
	RiskBand      RiskBand       `json:"riskBand"`
	Reason        string         `json:"reason,omitempty"`
	RoutedTo      string         `json:"routedTo,omitempty"`

	// RuleResult is persisted alongside the decision for audit.
	RuleResult *RuleEvaluationResult `json:"ruleResult,omitempty"`

	TraceID   string    `json:"traceId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// RoutingAction names the downstream effect of routing a decision.
type RoutingAction string

const (
	ActionPaymentTriggered RoutingAction = "payment_triggered"
	ActionOfficerWorklist  RoutingAction = "officer_worklist"
	ActionFraudQueue       RoutingAction = "fraud_queue"
	ActionRejected         RoutingAction = "rejected"
)

// RoutingResult is the outcome of dispatching a decision to its channel.
type RoutingResult struct {
	Action  RoutingAction  `json:"action"`
	Status  DecisionStatus `json:"status"`
	Message string         `json:"message,omitempty"`
}

// PaymentTrigger is the pending payment record created for an
// auto-approved application. At most one exists per decision.
type PaymentTrigger struct {
	ID            string    `json:"id"`
	DecisionID    string    `json:"decisionId"`
	ApplicationID string    `json:"applicationId"`
	SchemeCode    string    `json:"schemeCode"`
	PaymentSystem string    `json:"paymentSystem"`
	Status        string    `json:"status"` // "pending" until the payment system picks it up
	CreatedAt     time.Time `json:"createdAt"`
}

// PaymentStatusPending is the initial payment trigger status.
const PaymentStatusPending = "pending"
