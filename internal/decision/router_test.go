package decision

import (
	"context"
	"testing"
	"time"

	"github.com/opengov-stack/adjudex/internal/domain"
)

// memStore is a minimal in-memory Store for router tests.
type memStore struct {
	decisions map[string]*domain.Decision
	triggers  map[string]*domain.PaymentTrigger // keyed by decision ID
	schemes   map[string]*domain.SchemeConfig
}

func newMemStore() *memStore {
	return &memStore{
		decisions: make(map[string]*domain.Decision),
		triggers:  make(map[string]*domain.PaymentTrigger),
		schemes: map[string]*domain.SchemeConfig{
			"OLD-AGE-PENSION": {
				SchemeCode:    "OLD-AGE-PENSION",
				PaymentSystem: "STATE-DBT",
			},
		},
	}
}

func (m *memStore) SaveDecision(ctx context.Context, d *domain.Decision) error {
	if _, exists := m.decisions[d.ID]; exists {
		return nil // insert-only, retried saves are no-ops
	}
	m.decisions[d.ID] = d
	return nil
}

func (m *memStore) GetSchemeConfig(ctx context.Context, schemeCode string) (*domain.SchemeConfig, error) {
	return m.schemes[schemeCode], nil
}

func (m *memStore) CreatePaymentTrigger(ctx context.Context, pt *domain.PaymentTrigger) (bool, error) {
	if _, exists := m.triggers[pt.DecisionID]; exists {
		return false, nil
	}
	m.triggers[pt.DecisionID] = pt
	return true, nil
}

func (m *memStore) SaveApplication(ctx context.Context, app *domain.Application) error { return nil }
func (m *memStore) GetApplication(ctx context.Context, id string) (*domain.Application, error) {
	return nil, nil
}
func (m *memStore) GetEvaluationContext(ctx context.Context, id string) (domain.EvaluationContext, error) {
	return nil, nil
}
func (m *memStore) SaveRuleVersion(ctx context.Context, rule *domain.Rule) error { return nil }
func (m *memStore) GetActiveRules(ctx context.Context, schemeCode string, at time.Time) ([]*domain.Rule, error) {
	return nil, nil
}
func (m *memStore) ListRuleVersions(ctx context.Context, schemeCode, name string) ([]*domain.Rule, error) {
	return nil, nil
}
func (m *memStore) SaveSnapshot(ctx context.Context, snap *domain.RuleSetSnapshot) error { return nil }
func (m *memStore) GetSnapshot(ctx context.Context, schemeCode, name string) (*domain.RuleSetSnapshot, error) {
	return nil, nil
}
func (m *memStore) SaveSchemeConfig(ctx context.Context, cfg *domain.SchemeConfig) error { return nil }
func (m *memStore) GetConnectorConfig(ctx context.Context, name, schemeCode string) (*domain.ConnectorConfig, error) {
	return nil, nil
}
func (m *memStore) SaveConnectorConfig(ctx context.Context, cfg *domain.ConnectorConfig) error {
	return nil
}
func (m *memStore) GetDecision(ctx context.Context, id string) (*domain.Decision, error) {
	return m.decisions[id], nil
}
func (m *memStore) LatestDecision(ctx context.Context, applicationID string) (*domain.Decision, error) {
	return nil, nil
}
func (m *memStore) GetPaymentTrigger(ctx context.Context, decisionID string) (*domain.PaymentTrigger, error) {
	return m.triggers[decisionID], nil
}
func (m *memStore) Ping(ctx context.Context) error { return nil }
func (m *memStore) Close() error                   { return nil }

func approveDecision() *domain.Decision {
	return &domain.Decision{
		ID:            "dec-001",
		ApplicationID: "app-001",
		SchemeCode:    "OLD-AGE-PENSION",
		Type:          domain.DecisionAutoApprove,
		Status:        domain.StatusApproved,
	}
}

func TestRouteAutoApproveCreatesPaymentTrigger(t *testing.T) {
	store := newMemStore()
	router := NewRouter(store, nil)

	result, err := router.Route(context.Background(), approveDecision())
	if err != nil {
		t.Fatalf("routing failed: %v", err)
	}

	if result.Action != domain.ActionPaymentTriggered {
		t.Errorf("expected payment_triggered, got %s", result.Action)
	}

	pt := store.triggers["dec-001"]
	if pt == nil {
		t.Fatal("expected a payment trigger")
	}
	if pt.Status != domain.PaymentStatusPending {
		t.Errorf("expected pending trigger, got %s", pt.Status)
	}
	if pt.PaymentSystem != "STATE-DBT" {
		t.Errorf("expected scheme payment system attached, got %q", pt.PaymentSystem)
	}
}

// Re-routing the same decision must not create a second payment trigger.
func TestRouteIsIdempotent(t *testing.T) {
	store := newMemStore()
	router := NewRouter(store, nil)

	d := approveDecision()
	if _, err := router.Route(context.Background(), d); err != nil {
		t.Fatalf("first route failed: %v", err)
	}
	if _, err := router.Route(context.Background(), d); err != nil {
		t.Fatalf("second route failed: %v", err)
	}

	if len(store.triggers) != 1 {
		t.Errorf("expected exactly 1 payment trigger, got %d", len(store.triggers))
	}
	if len(store.decisions) != 1 {
		t.Errorf("expected exactly 1 decision row, got %d", len(store.decisions))
	}
}

func TestRouteDestinations(t *testing.T) {
	cases := []struct {
		decisionType domain.DecisionType
		wantAction   domain.RoutingAction
		wantRoutedTo string
	}{
		{domain.DecisionRouteOfficer, domain.ActionOfficerWorklist, domain.RoutedOfficerWorklist},
		{domain.DecisionRouteFraud, domain.ActionFraudQueue, domain.RoutedFraudQueue},
		{domain.DecisionAutoReject, domain.ActionRejected, ""},
	}

	for _, tc := range cases {
		store := newMemStore()
		router := NewRouter(store, nil)

		d := approveDecision()
		d.Type = tc.decisionType
		d.Status = domain.StatusUnderReview

		result, err := router.Route(context.Background(), d)
		if err != nil {
			t.Fatalf("%s: routing failed: %v", tc.decisionType, err)
		}
		if result.Action != tc.wantAction {
			t.Errorf("%s: expected action %s, got %s", tc.decisionType, tc.wantAction, result.Action)
		}
		if d.RoutedTo != tc.wantRoutedTo {
			t.Errorf("%s: expected routed_to %q, got %q", tc.decisionType, tc.wantRoutedTo, d.RoutedTo)
		}
		if len(store.triggers) != 0 {
			t.Errorf("%s: no payment trigger expected", tc.decisionType)
		}
	}
}

func TestRouteRequiresIdentifiers(t *testing.T) {
	router := NewRouter(newMemStore(), nil)

	if _, err := router.Route(context.Background(), &domain.Decision{Type: domain.DecisionAutoReject}); err == nil {
		t.Error("expected error for decision without identifiers")
	}
}
