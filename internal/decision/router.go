package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opengov-stack/adjudex/internal/domain"
)

// Router dispatches a decision to its channel and persists routing
// state. Routing is at-least-once: re-routing the same decision must not
// create a second payment trigger.
type Router struct {
	store domain.Store
	bus   domain.EventBus
}

// NewRouter creates a decision router. bus may be nil when event
// publication is not wired (tests, one-shot CLI runs).
func NewRouter(store domain.Store, bus domain.EventBus) *Router {
	return &Router{store: store, bus: bus}
}

// Route persists the decision and performs its routing action.
// The decision must carry its identifiers; Route sets RoutedTo.
func (r *Router) Route(ctx context.Context, d *domain.Decision) (*domain.RoutingResult, error) {
	if d.ID == "" || d.ApplicationID == "" {
		return nil, fmt.Errorf("decision id and application id are required")
	}

	result := &domain.RoutingResult{Status: d.Status}

	switch d.Type {
	case domain.DecisionAutoApprove:
		d.RoutedTo = domain.RoutedPaymentSystem
		result.Action = domain.ActionPaymentTriggered
	case domain.DecisionRouteOfficer:
		d.RoutedTo = domain.RoutedOfficerWorklist
		result.Action = domain.ActionOfficerWorklist
	case domain.DecisionRouteFraud:
		d.RoutedTo = domain.RoutedFraudQueue
		result.Action = domain.ActionFraudQueue
	case domain.DecisionAutoReject:
		// No downstream action beyond marking the application rejected.
		result.Action = domain.ActionRejected
	default:
		return nil, fmt.Errorf("unknown decision type %q", d.Type)
	}

	// Insert-only; a retried route of the same decision is a no-op.
	if err := r.store.SaveDecision(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to save decision: %w", err)
	}

	if d.Type == domain.DecisionAutoApprove {
		created, err := r.triggerPayment(ctx, d)
		if err != nil {
			return nil, err
		}
		if created {
			result.Message = "payment trigger created"
		} else {
			result.Message = "payment trigger already exists"
		}
	}

	r.publish(ctx, d)

	return result, nil
}

// triggerPayment creates the pending payment record for an approved
// application. Returns false when a trigger for this decision already
// exists.
func (r *Router) triggerPayment(ctx context.Context, d *domain.Decision) (bool, error) {
	scheme, err := r.store.GetSchemeConfig(ctx, d.SchemeCode)
	if err != nil {
		return false, fmt.Errorf("failed to load scheme config for payment trigger: %w", err)
	}

	pt := &domain.PaymentTrigger{
		ID:            uuid.New().String(),
		DecisionID:    d.ID,
		ApplicationID: d.ApplicationID,
		SchemeCode:    d.SchemeCode,
		PaymentSystem: scheme.PaymentSystem,
		Status:        domain.PaymentStatusPending,
		CreatedAt:     time.Now().UTC(),
	}

	created, err := r.store.CreatePaymentTrigger(ctx, pt)
	if err != nil {
		return false, fmt.Errorf("failed to create payment trigger: %w", err)
	}
	return created, nil
}

// publish emits routing events; publication failures are logged, never
// fatal to the routing itself.
func (r *Router) publish(ctx context.Context, d *domain.Decision) {
	if r.bus == nil {
		return
	}

	payload, _ := json.Marshal(d)
	if err := r.bus.Publish(ctx, d.SchemeCode, domain.TopicDecisionCreated, payload); err != nil {
		slog.Error("failed to publish decision event",
			"decision_id", d.ID,
			"error", err,
		)
	}

	if d.Type == domain.DecisionRouteFraud {
		if err := r.bus.Publish(ctx, d.SchemeCode, domain.TopicFraudAlert, payload); err != nil {
			slog.Error("failed to publish fraud alert",
				"decision_id", d.ID,
				"error", err,
			)
		}
	}

	if d.Type == domain.DecisionAutoApprove {
		if err := r.bus.Publish(ctx, d.SchemeCode, domain.TopicPaymentTriggered, payload); err != nil {
			slog.Error("failed to publish payment trigger event",
				"decision_id", d.ID,
				"error", err,
			)
		}
	}
}
