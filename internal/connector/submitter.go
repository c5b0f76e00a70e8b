package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/opengov-stack/adjudex/internal/domain"
	"github.com/opengov-stack/adjudex/internal/metrics"
)

// Submitter wraps a connector with the shared retry loop. One attempt
// is Send + ParseResponse under a per-attempt timeout; a timeout
// converts to a retryable TIMEOUT result rather than a fatal error.
type Submitter struct {
	conn   Connector
	cfg    *domain.ConnectorConfig
	policy *retryPolicy
}

// NewSubmitter builds the retrying submitter for a connector config.
func NewSubmitter(cfg *domain.ConnectorConfig) (*Submitter, error) {
	conn, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return &Submitter{conn: conn, cfg: cfg, policy: newRetryPolicy(cfg)}, nil
}

// Submit delivers the request, retrying per the connector's policy.
// An authentication failure triggers one credential refresh and a
// single extra attempt, independent of the retry budget.
func (s *Submitter) Submit(ctx context.Context, req *domain.SubmissionRequest) (*domain.SubmissionResult, error) {
	if req.RequestID == "" {
		return nil, fmt.Errorf("submission request id is required")
	}

	payload, err := s.conn.FormatPayload(req)
	if err != nil {
		return nil, fmt.Errorf("failed to format payload for %s: %w", s.cfg.Name, err)
	}

	attempt := 1
	authRefreshed := false
	for {
		result, statusCode := s.attempt(ctx, payload)
		result.Attempts = attempt
		metrics.ConnectorAttempts.WithLabelValues(s.cfg.Name, string(result.Status)).Inc()

		if result.Success {
			return result, nil
		}

		if isAuthStatus(statusCode) && !authRefreshed {
			if refresher, ok := s.conn.(tokenRefresher); ok {
				authRefreshed = true
				if err := refresher.refreshCredential(ctx); err != nil {
					result.Message = fmt.Sprintf("credential refresh failed: %v", err)
					return result, nil
				}
				slog.Info("credential refreshed after auth failure",
					"connector", s.cfg.Name,
					"application_id", req.ApplicationID,
				)
				continue
			}
		}

		if !s.policy.shouldRetry(attempt, result, statusCode) {
			return result, nil
		}

		slog.Warn("submission attempt failed, retrying",
			"connector", s.cfg.Name,
			"application_id", req.ApplicationID,
			"attempt", attempt,
			"status", result.Status,
		)
		metrics.ConnectorRetries.WithLabelValues(s.cfg.Name).Inc()

		if err := s.policy.wait(ctx, attempt, result); err != nil {
			result.Message = "submission cancelled during backoff"
			return result, err
		}
		attempt++
	}
}

// attempt runs one Send/ParseResponse cycle. Network and timeout
// failures never escape as errors; they become classified results so
// the retry policy can act on them.
func (s *Submitter) attempt(ctx context.Context, payload []byte) (*domain.SubmissionResult, int) {
	actx, cancel := context.WithTimeout(ctx, attemptTimeout(s.cfg))
	defer cancel()

	resp, err := s.conn.Send(actx, payload)
	if err != nil {
		if isTimeout(err) {
			return &domain.SubmissionResult{
				Status:  domain.SubmissionTimeout,
				Message: "submission timed out",
			}, 0
		}
		// Transport failures (refused, reset) are retryable like
		// timeouts; only the department's own responses can rule a
		// retry out.
		return &domain.SubmissionResult{
			Status:        domain.SubmissionError,
			Message:       err.Error(),
			RetryRequired: true,
		}, 0
	}

	result, err := s.conn.ParseResponse(resp)
	if err != nil {
		return &domain.SubmissionResult{
			Status:  domain.SubmissionError,
			Message: fmt.Sprintf("unparseable department response: %v", err),
		}, resp.StatusCode
	}
	return result, resp.StatusCode
}

func isAuthStatus(statusCode int) bool {
	return statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
