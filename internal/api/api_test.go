package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/opengov-stack/adjudex/internal/bus"
	"github.com/opengov-stack/adjudex/internal/cache"
	"github.com/opengov-stack/adjudex/internal/decision"
	"github.com/opengov-stack/adjudex/internal/domain"
	"github.com/opengov-stack/adjudex/internal/pipeline"
	"github.com/opengov-stack/adjudex/internal/repository"
	"github.com/opengov-stack/adjudex/internal/risk"
	"github.com/opengov-stack/adjudex/internal/rules"
	"github.com/opengov-stack/adjudex/internal/rulestore"
)

const testScheme = "OLD-AGE-PENSION"

func createTestServer(t *testing.T) *Server {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "adjudex-api-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	store, err := repository.New(domain.StoreConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	ctx := context.Background()
	if err := store.SaveSchemeConfig(ctx, &domain.SchemeConfig{
		SchemeCode:       testScheme,
		LowRiskMax:       0.3,
		MediumRiskMax:    0.6,
		AllowAutoApprove: true,
		RouteHighToFraud: true,
		PaymentSystem:    "treasury-core",
	}); err != nil {
		t.Fatalf("failed to save scheme config: %v", err)
	}

	svc := rulestore.NewService(store, cache.NewLRUCache(100), rules.NewEngine())
	if _, err := svc.CreateRuleVersion(ctx, &domain.Rule{
		SchemeCode:    testScheme,
		Name:          "minimum-age",
		Type:          domain.RuleTypeAge,
		Category:      domain.CategoryEligibility,
		Field:         "age",
		Operator:      domain.OpGTE,
		Value:         json.RawMessage(`60`),
		Mandatory:     true,
		Priority:      10,
		EffectiveFrom: time.Now().UTC().Add(-time.Minute),
	}); err != nil {
		t.Fatalf("failed to create rule: %v", err)
	}

	scorer := risk.NewScorer(nil, domain.DefaultScoringWeights())
	router := decision.NewRouter(store, eventBus)
	p := pipeline.New(store, svc, scorer, router, eventBus)

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}
	return NewServer(cfg, store, nil, eventBus, svc, p, "test-v1", domain.BatchConfig{Concurrency: 4})
}

func doJSON(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func TestCreateAndEvaluateApplication(t *testing.T) {
	server := createTestServer(t)

	t.Run("SynchronousEvaluation", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/applications", ApplicationRequest{
			SchemeCode: testScheme,
			Attributes: domain.EvaluationContext{
				"age":                    67,
				"eligibility_confidence": 0.9,
				"prior_enrollment_count": 3,
			},
			Evaluate: true,
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp pipeline.EvaluationResult
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Decision == nil || resp.Decision.Type != domain.DecisionAutoApprove {
			t.Fatalf("expected AUTO_APPROVE, got %+v", resp.Decision)
		}
		if resp.Decision.ID == "" {
			t.Error("expected decision id in response")
		}

		// The decision must be retrievable afterwards.
		rr = doJSON(t, server, http.MethodGet, "/applications/"+resp.Application.ID+"/decision", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("DeferredEvaluation", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/applications", ApplicationRequest{
			ID:         "app-deferred",
			SchemeCode: testScheme,
			Attributes: domain.EvaluationContext{"age": 70},
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		rr = doJSON(t, server, http.MethodPost, "/applications/app-deferred/evaluate", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("MissingScheme", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/applications", ApplicationRequest{
			Attributes: domain.EvaluationContext{"age": 70},
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("UnknownApplication", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/applications/nope/evaluate", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestBatchEndpoint(t *testing.T) {
	server := createTestServer(t)

	for _, id := range []string{"b-1", "b-2"} {
		rr := doJSON(t, server, http.MethodPost, "/applications", ApplicationRequest{
			ID:         id,
			SchemeCode: testScheme,
			Attributes: domain.EvaluationContext{"age": 70},
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("failed to create %s: %d", id, rr.Code)
		}
	}

	rr := doJSON(t, server, http.MethodPost, "/evaluate/batch", BatchRequest{
		ApplicationIDs: []string{"b-1", "b-2", "b-missing"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp pipeline.BatchResult
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Succeeded != 2 || resp.Failed != 1 {
		t.Errorf("expected 2 succeeded / 1 failed, got %d / %d", resp.Succeeded, resp.Failed)
	}
}

func TestRuleManagementEndpoints(t *testing.T) {
	server := createTestServer(t)
	base := "/schemes/" + testScheme

	t.Run("ListActiveRules", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, base+"/rules", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var resp struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != 1 {
			t.Errorf("expected 1 active rule, got %d", resp.Count)
		}
	})

	t.Run("CreateNewVersion", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, base+"/rules", domain.Rule{
			Name:      "minimum-age",
			Type:      domain.RuleTypeAge,
			Category:  domain.CategoryEligibility,
			Field:     "age",
			Operator:  domain.OpGTE,
			Value:     json.RawMessage(`65`),
			Mandatory: true,
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
		var created domain.Rule
		if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if created.Version != 2 {
			t.Errorf("expected version 2, got %d", created.Version)
		}

		rr = doJSON(t, server, http.MethodGet, base+"/rules/minimum-age/versions", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var versions struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &versions); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if versions.Count != 2 {
			t.Errorf("expected 2 versions, got %d", versions.Count)
		}
	})

	t.Run("RejectInvalidOperator", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, base+"/rules", domain.Rule{
			Name:     "bad-rule",
			Type:     domain.RuleTypeAge,
			Category: domain.CategoryEligibility,
			Field:    "age",
			Operator: "LIKE",
			Value:    json.RawMessage(`60`),
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("Snapshots", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, base+"/snapshots", SnapshotRequest{Name: "pre-reform"})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		rr = doJSON(t, server, http.MethodGet, base+"/snapshots/pre-reform", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		rr = doJSON(t, server, http.MethodGet, base+"/snapshots/unknown", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestSchemeConfigEndpoints(t *testing.T) {
	server := createTestServer(t)
	base := "/schemes/HOUSING-ASSIST"

	t.Run("SaveAndGet", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPut, base+"/config", domain.SchemeConfig{
			LowRiskMax:       0.25,
			MediumRiskMax:    0.55,
			AllowAutoApprove: false,
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		rr = doJSON(t, server, http.MethodGet, base+"/config", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var cfg domain.SchemeConfig
		if err := json.Unmarshal(rr.Body.Bytes(), &cfg); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if cfg.SchemeCode != "HOUSING-ASSIST" || cfg.LowRiskMax != 0.25 {
			t.Errorf("unexpected config: %+v", cfg)
		}
	})

	t.Run("RejectBadThresholds", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPut, base+"/config", domain.SchemeConfig{
			LowRiskMax:    0.6,
			MediumRiskMax: 0.3,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("UnknownScheme", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/schemes/NOPE/config", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestConnectorConfigEndpoints(t *testing.T) {
	server := createTestServer(t)
	base := "/schemes/" + testScheme + "/connectors/pension-dept"

	rr := doJSON(t, server, http.MethodPut, base, domain.ConnectorConfig{
		Type:              domain.ConnectorREST,
		BaseURL:           "https://dept.example.gov",
		EndpointPath:      "/applications",
		Auth:              domain.AuthAPIKey,
		MaxRetries:        3,
		RetryDelaySeconds: 2,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodGet, base, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var cfg domain.ConnectorConfig
	if err := json.Unmarshal(rr.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if cfg.Name != "pension-dept" || cfg.SchemeCode != testScheme {
		t.Errorf("unexpected identity: %+v", cfg)
	}

	rr = doJSON(t, server, http.MethodPut, base, domain.ConnectorConfig{Type: domain.ConnectorREST})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for missing baseUrl, got %d", rr.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	server := createTestServer(t)

	rr := doJSON(t, server, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var health map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &health); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("expected healthy, got %q", health["status"])
	}

	rr = doJSON(t, server, http.MethodGet, "/ready", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	rr = doJSON(t, server, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200 from metrics, got %d", rr.Code)
	}
}
