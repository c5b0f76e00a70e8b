package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/opengov-stack/adjudex/internal/domain"
)

// tokenSource lazily fetches and caches an OAuth2 client-credentials
// token. Safe for concurrent use; a refresh replaces the cached token
// for all callers.
type tokenSource struct {
	cfg    domain.AuthConfig
	client *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

func newTokenSource(cfg domain.AuthConfig, client *http.Client) *tokenSource {
	return &tokenSource{cfg: cfg, client: client}
}

// Token returns the cached credential, fetching one when absent or
// within a minute of expiry.
func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && time.Now().Before(ts.expires.Add(-time.Minute)) {
		return ts.token, nil
	}
	return ts.fetchLocked(ctx)
}

// Invalidate drops the cached token so the next Token call fetches a
// fresh one. Called after the department rejects a credential.
func (ts *tokenSource) Invalidate() {
	ts.mu.Lock()
	ts.token = ""
	ts.mu.Unlock()
}

func (ts *tokenSource) fetchLocked(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	if ts.cfg.Scope != "" {
		form.Set("scope", ts.cfg.Scope)
	}

	if ts.cfg.SigningKey != "" {
		assertion, err := ts.clientAssertion()
		if err != nil {
			return "", fmt.Errorf("failed to sign client assertion: %w", err)
		}
		form.Set("client_assertion_type", "urn:ietf:params:oauth:client-assertion-type:jwt-bearer")
		form.Set("client_assertion", assertion)
		form.Set("client_id", ts.cfg.ClientID)
	} else {
		form.Set("client_id", ts.cfg.ClientID)
		form.Set("client_secret", ts.cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var tr struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("malformed token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}

	ts.token = tr.AccessToken
	if tr.ExpiresIn > 0 {
		ts.expires = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	} else {
		ts.expires = time.Now().Add(5 * time.Minute)
	}
	return ts.token, nil
}

// clientAssertion builds the signed JWT used in place of a client
// secret when the department requires assertion-based grants.
func (ts *tokenSource) clientAssertion() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    ts.cfg.ClientID,
		Subject:   ts.cfg.ClientID,
		Audience:  jwt.ClaimStrings{ts.cfg.TokenURL},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(2 * time.Minute)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(ts.cfg.SigningKey))
}
