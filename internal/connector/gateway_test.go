package connector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/opengov-stack/adjudex/internal/domain"
)

func gatewayServers(t *testing.T, submit http.HandlerFunc) (*httptest.Server, *domain.ConnectorConfig) {
	t.Helper()

	var tokenCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		if err := r.ParseForm(); err != nil {
			t.Fatalf("bad token request: %v", err)
		}
		if r.PostForm.Get("grant_type") != "client_credentials" {
			t.Errorf("unexpected grant type %q", r.PostForm.Get("grant_type"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-abc",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/submissions", submit)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := testConfig()
	cfg.Type = domain.ConnectorGateway
	cfg.Auth = domain.AuthOAuth2
	cfg.BaseURL = srv.URL
	cfg.EndpointPath = "/submissions"
	cfg.SenderCode = "ADJUDEX-01"
	cfg.AuthConfig = domain.AuthConfig{
		TokenURL:     srv.URL + "/oauth/token",
		ClientID:     "adjudex",
		ClientSecret: "s3cret",
	}
	return srv, cfg
}

func TestGatewaySubmitSuccess(t *testing.T) {
	var gotAuth string
	var gotEnvelope gatewayEnvelope
	_, cfg := gatewayServers(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotEnvelope); err != nil {
			t.Errorf("unreadable envelope: %v", err)
		}
		json.NewEncoder(w).Encode(gatewayResponse{Status: "ACCEPTED", ReferenceNumber: "GW-100"})
	})

	sub, err := NewSubmitter(cfg)
	if err != nil {
		t.Fatalf("failed to build submitter: %v", err)
	}

	result, err := sub.Submit(context.Background(), submissionRequest())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !result.Success || result.DepartmentRef != "GW-100" {
		t.Errorf("unexpected result: %+v", result)
	}
	if gotAuth != "Bearer tok-abc" {
		t.Errorf("expected bearer token, got %q", gotAuth)
	}
	if gotEnvelope.SenderCode != "ADJUDEX-01" {
		t.Errorf("expected sender code in envelope, got %q", gotEnvelope.SenderCode)
	}
	if gotEnvelope.MessageID != "req-123" {
		t.Errorf("message id must be the idempotency key, got %q", gotEnvelope.MessageID)
	}
}

func TestGatewayPendingRetryHonored(t *testing.T) {
	var calls int
	_, cfg := gatewayServers(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			json.NewEncoder(w).Encode(gatewayResponse{Status: "PENDING_RETRY", RetryAfterSeconds: 1})
			return
		}
		json.NewEncoder(w).Encode(gatewayResponse{Status: "ACCEPTED", ReferenceNumber: "GW-2"})
	})

	conn, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to build connector: %v", err)
	}
	policy := newRetryPolicy(cfg)
	policy.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	sub := &Submitter{conn: conn, cfg: cfg, policy: policy}

	result, err := sub.Submit(context.Background(), submissionRequest())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success after gateway retry, got %s", result.Status)
	}
	if result.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", result.Attempts)
	}
}

func TestGatewayRejectionNotRetried(t *testing.T) {
	var calls int
	_, cfg := gatewayServers(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(gatewayResponse{
			Status:       "REJECTED",
			ErrorCode:    "GW-403",
			ErrorMessage: "scheme not onboarded",
		})
	})

	sub, err := NewSubmitter(cfg)
	if err != nil {
		t.Fatalf("failed to build submitter: %v", err)
	}

	result, err := sub.Submit(context.Background(), submissionRequest())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if result.Status != domain.SubmissionValidationError {
		t.Errorf("expected validation error, got %s", result.Status)
	}
	if calls != 1 {
		t.Errorf("rejection must not be retried, got %d calls", calls)
	}
}

func TestTokenSourceSignsClientAssertion(t *testing.T) {
	const signingKey = "assertion-signing-key"

	var gotAssertion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotAssertion = r.PostForm.Get("client_assertion")
		if got := r.PostForm.Get("client_assertion_type"); got != "urn:ietf:params:oauth:client-assertion-type:jwt-bearer" {
			t.Errorf("unexpected assertion type %q", got)
		}
		if r.PostForm.Get("client_secret") != "" {
			t.Error("client secret must not be sent with assertion grants")
		}
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-jwt", "expires_in": 60})
	}))
	defer srv.Close()

	ts := newTokenSource(domain.AuthConfig{
		TokenURL:   srv.URL,
		ClientID:   "adjudex",
		SigningKey: signingKey,
	}, srv.Client())

	token, err := ts.Token(context.Background())
	if err != nil {
		t.Fatalf("token fetch failed: %v", err)
	}
	if token != "tok-jwt" {
		t.Errorf("unexpected token %q", token)
	}

	parsed, err := jwt.ParseWithClaims(gotAssertion, &jwt.RegisteredClaims{}, func(tok *jwt.Token) (any, error) {
		return []byte(signingKey), nil
	})
	if err != nil {
		t.Fatalf("assertion does not verify: %v", err)
	}
	claims := parsed.Claims.(*jwt.RegisteredClaims)
	if claims.Issuer != "adjudex" || claims.Subject != "adjudex" {
		t.Errorf("unexpected assertion claims: %+v", claims)
	}
}

func TestTokenSourceCachesUntilExpiry(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 3600})
	}))
	defer srv.Close()

	ts := newTokenSource(domain.AuthConfig{
		TokenURL:     srv.URL,
		ClientID:     "adjudex",
		ClientSecret: "s3cret",
	}, srv.Client())

	for i := 0; i < 3; i++ {
		if _, err := ts.Token(context.Background()); err != nil {
			t.Fatalf("token fetch %d failed: %v", i, err)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 token fetch, got %d", calls)
	}

	ts.Invalidate()
	if _, err := ts.Token(context.Background()); err != nil {
		t.Fatalf("token fetch after invalidate failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected refetch after invalidate, got %d calls", calls)
	}
}
