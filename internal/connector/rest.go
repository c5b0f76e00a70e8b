package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/opengov-stack/adjudex/internal/domain"
)

// restConnector speaks JSON over HTTPS with API-key, basic or bearer
// authentication.
type restConnector struct {
	cfg    *domain.ConnectorConfig
	client *http.Client
	tokens *tokenSource
}

func newRESTConnector(cfg *domain.ConnectorConfig, client *http.Client) *restConnector {
	c := &restConnector{cfg: cfg, client: client}
	if cfg.Auth == domain.AuthOAuth2 {
		c.tokens = newTokenSource(cfg.AuthConfig, client)
	}
	return c
}

func (c *restConnector) FormatPayload(req *domain.SubmissionRequest) ([]byte, error) {
	return json.Marshal(req)
}

func (c *restConnector) Send(ctx context.Context, payload []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(c.cfg), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	switch c.cfg.Auth {
	case domain.AuthAPIKey:
		header := c.cfg.AuthConfig.APIKeyHeader
		if header == "" {
			header = "X-API-Key"
		}
		req.Header.Set(header, c.cfg.AuthConfig.APIKey)
	case domain.AuthBasic:
		req.SetBasicAuth(c.cfg.AuthConfig.Username, c.cfg.AuthConfig.Password)
	case domain.AuthOAuth2:
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain bearer token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

func (c *restConnector) ParseResponse(resp *Response) (*domain.SubmissionResult, error) {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var body struct {
			ReferenceNumber string `json:"referenceNumber"`
			Message         string `json:"message"`
		}
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			return nil, fmt.Errorf("malformed success body: %w", err)
		}
		return &domain.SubmissionResult{
			Success:       true,
			DepartmentRef: body.ReferenceNumber,
			Status:        domain.SubmissionSuccess,
			Message:       body.Message,
		}, nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &domain.SubmissionResult{
			Status:  domain.SubmissionValidationError,
			Message: errorMessage(resp.Body, fmt.Sprintf("department rejected submission (%d)", resp.StatusCode)),
		}, nil

	default:
		return &domain.SubmissionResult{
			Status:  domain.SubmissionError,
			Message: errorMessage(resp.Body, fmt.Sprintf("department error (%d)", resp.StatusCode)),
		}, nil
	}
}

// errorMessage extracts a human-readable error from a JSON error body,
// falling back when the body is not parseable.
func errorMessage(body []byte, fallback string) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Error != "" {
			return e.Error
		}
	}
	return fallback
}

func (c *restConnector) refreshCredential(ctx context.Context) error {
	if c.tokens == nil {
		return fmt.Errorf("connector %q has no refreshable credential", c.cfg.Name)
	}
	c.tokens.Invalidate()
	_, err := c.tokens.Token(ctx)
	return err
}
