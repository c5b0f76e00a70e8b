// Package connector submits approved applications to external department
// systems. One interface, three wire protocols; retry, idempotency and
// credential refresh are shared across all of them.
package connector

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/opengov-stack/adjudex/internal/domain"
)

// Response is the raw wire response from a single submission attempt.
type Response struct {
	StatusCode int
	Body       []byte
}

// Connector is the protocol-specific part of a department submission.
// Implementations differ only in wire format and auth handshake; the
// retry loop lives in Submitter.
type Connector interface {
	// FormatPayload renders the request into the department's wire
	// format. The request ID is always embedded so the department can
	// de-duplicate retried submissions.
	FormatPayload(req *domain.SubmissionRequest) ([]byte, error)

	// Send performs one network attempt with the payload.
	Send(ctx context.Context, payload []byte) (*Response, error)

	// ParseResponse classifies the department's reply.
	ParseResponse(resp *Response) (*domain.SubmissionResult, error)
}

// tokenRefresher is implemented by connectors holding a refreshable
// credential. The submitter invalidates it once on an auth failure.
type tokenRefresher interface {
	refreshCredential(ctx context.Context) error
}

// New builds the connector for a config, keyed on connector type.
func New(cfg *domain.ConnectorConfig) (Connector, error) {
	if cfg == nil {
		return nil, fmt.Errorf("connector config is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("connector %q: base url is required", cfg.Name)
	}

	client := &http.Client{Timeout: attemptTimeout(cfg)}

	switch cfg.Type {
	case domain.ConnectorREST:
		return newRESTConnector(cfg, client), nil
	case domain.ConnectorSOAP:
		return newSOAPConnector(cfg, client), nil
	case domain.ConnectorGateway:
		return newGatewayConnector(cfg, client), nil
	default:
		return nil, fmt.Errorf("unknown connector type %q", cfg.Type)
	}
}

func attemptTimeout(cfg *domain.ConnectorConfig) time.Duration {
	if cfg.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(cfg.TimeoutSeconds) * time.Second
}

func endpoint(cfg *domain.ConnectorConfig) string {
	return cfg.BaseURL + cfg.EndpointPath
}
