package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opengov-stack/adjudex/internal/domain"
)

// gatewayConnector speaks the national-gateway JSON envelope with
// OAuth2 client-credentials auth. The gateway sits in front of many
// departments; the envelope identifies the sender and carries the
// submission as an opaque payload.
type gatewayConnector struct {
	cfg    *domain.ConnectorConfig
	client *http.Client
	tokens *tokenSource
}

func newGatewayConnector(cfg *domain.ConnectorConfig, client *http.Client) *gatewayConnector {
	return &gatewayConnector{
		cfg:    cfg,
		client: client,
		tokens: newTokenSource(cfg.AuthConfig, client),
	}
}

type gatewayEnvelope struct {
	Version    string                    `json:"version"`
	SenderCode string                    `json:"senderCode"`
	MessageID  string                    `json:"messageId"`
	Timestamp  string                    `json:"timestamp"`
	Payload    *domain.SubmissionRequest `json:"payload"`
}

func (c *gatewayConnector) FormatPayload(req *domain.SubmissionRequest) ([]byte, error) {
	env := gatewayEnvelope{
		Version:    "1.0",
		SenderCode: c.cfg.SenderCode,
		MessageID:  req.RequestID,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Payload:    req,
	}
	return json.Marshal(env)
}

func (c *gatewayConnector) Send(ctx context.Context, payload []byte) (*Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain gateway token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(c.cfg), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

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

type gatewayResponse struct {
	Status            string `json:"status"` // ACCEPTED, REJECTED, PENDING_RETRY
	ReferenceNumber   string `json:"referenceNumber"`
	ErrorCode         string `json:"errorCode"`
	ErrorMessage      string `json:"errorMessage"`
	RetryAfterSeconds int    `json:"retryAfterSeconds"`
}

func (c *gatewayConnector) ParseResponse(resp *Response) (*domain.SubmissionResult, error) {
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return &domain.SubmissionResult{
			Status:  domain.SubmissionValidationError,
			Message: errorMessage(resp.Body, fmt.Sprintf("gateway rejected submission (%d)", resp.StatusCode)),
		}, nil
	}

	var gr gatewayResponse
	if err := json.Unmarshal(resp.Body, &gr); err != nil {
		return nil, fmt.Errorf("malformed gateway response: %w", err)
	}

	switch gr.Status {
	case "ACCEPTED":
		return &domain.SubmissionResult{
			Success:       true,
			DepartmentRef: gr.ReferenceNumber,
			Status:        domain.SubmissionSuccess,
		}, nil
	case "PENDING_RETRY":
		// The gateway asks us to come back; the retry loop honors it.
		return &domain.SubmissionResult{
			Status:            domain.SubmissionError,
			Message:           gr.ErrorMessage,
			RetryRequired:     true,
			RetryAfterSeconds: gr.RetryAfterSeconds,
		}, nil
	case "REJECTED":
		return &domain.SubmissionResult{
			Status:  domain.SubmissionValidationError,
			Message: fmt.Sprintf("%s: %s", gr.ErrorCode, gr.ErrorMessage),
		}, nil
	default:
		return &domain.SubmissionResult{
			Status:  domain.SubmissionError,
			Message: fmt.Sprintf("unknown gateway status %q", gr.Status),
		}, nil
	}
}

func (c *gatewayConnector) refreshCredential(ctx context.Context) error {
	c.tokens.Invalidate()
	_, err := c.tokens.Token(ctx)
	return err
}
