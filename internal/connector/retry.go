package connector

import (
	"context"
	"time"

	"github.com/opengov-stack/adjudex/internal/domain"
)

// retryPolicy decides whether a failed attempt is retried and how long
// to wait before the next one. The sleep function is injectable so
// tests run without real delays.
type retryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	retryable  map[int]struct{}

	sleep func(ctx context.Context, d time.Duration) error
}

func newRetryPolicy(cfg *domain.ConnectorConfig) *retryPolicy {
	p := &retryPolicy{
		maxRetries: cfg.MaxRetries,
		baseDelay:  time.Duration(cfg.RetryDelaySeconds) * time.Second,
		retryable:  make(map[int]struct{}, len(cfg.RetryableStatusCodes)),
		sleep:      sleepCtx,
	}
	for _, code := range cfg.RetryableStatusCodes {
		p.retryable[code] = struct{}{}
	}
	return p
}

// shouldRetry reports whether another attempt follows. Validation
// errors (4xx) are never retried; timeouts and explicitly-flagged
// results are, along with configured status codes.
func (p *retryPolicy) shouldRetry(attempt int, result *domain.SubmissionResult, statusCode int) bool {
	if attempt >= p.maxRetries {
		return false
	}
	if result.Status == domain.SubmissionValidationError {
		return false
	}
	if statusCode >= 400 && statusCode < 500 {
		return false
	}
	if result.Status == domain.SubmissionTimeout {
		return true
	}
	if result.RetryRequired {
		return true
	}
	_, ok := p.retryable[statusCode]
	return ok
}

// delay returns the backoff before attempt+1: base * 2^(attempt-1).
func (p *retryPolicy) delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.baseDelay * (1 << (attempt - 1))
}

// wait sleeps out the backoff. A department's own retry-after hint
// overrides the exponential schedule when present.
func (p *retryPolicy) wait(ctx context.Context, attempt int, result *domain.SubmissionResult) error {
	d := p.delay(attempt)
	if result != nil && result.RetryAfterSeconds > 0 {
		d = time.Duration(result.RetryAfterSeconds) * time.Second
	}
	return p.sleep(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
