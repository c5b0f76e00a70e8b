package connector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opengov-stack/adjudex/internal/domain"
)

// scriptedConnector replays a fixed sequence of attempt outcomes.
type scriptedConnector struct {
	responses []scriptedAttempt
	calls     int

	refreshed  int
	refreshErr error
}

type scriptedAttempt struct {
	result     *domain.SubmissionResult
	statusCode int
	err        error
}

func (s *scriptedConnector) FormatPayload(req *domain.SubmissionRequest) ([]byte, error) {
	return []byte(`{}`), nil
}

func (s *scriptedConnector) Send(ctx context.Context, payload []byte) (*Response, error) {
	i := s.calls
	s.calls++
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	if s.responses[i].err != nil {
		return nil, s.responses[i].err
	}
	return &Response{StatusCode: s.responses[i].statusCode}, nil
}

func (s *scriptedConnector) ParseResponse(resp *Response) (*domain.SubmissionResult, error) {
	for i, r := range s.responses {
		if r.statusCode == resp.StatusCode && i < s.calls {
			// copy so Attempts mutation does not leak between calls
			out := *r.result
			return &out, nil
		}
	}
	out := *s.responses[len(s.responses)-1].result
	return &out, nil
}

func (s *scriptedConnector) refreshCredential(ctx context.Context) error {
	s.refreshed++
	return s.refreshErr
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func newTestSubmitter(conn Connector, cfg *domain.ConnectorConfig) (*Submitter, *[]time.Duration) {
	policy := newRetryPolicy(cfg)
	var slept []time.Duration
	policy.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return &Submitter{conn: conn, cfg: cfg, policy: policy}, &slept
}

func submissionRequest() *domain.SubmissionRequest {
	return &domain.SubmissionRequest{
		RequestID:     "req-123",
		ApplicationID: "app-001",
		SchemeCode:    "OLD-AGE-PENSION",
		SubmittedAt:   time.Now(),
	}
}

func TestSubmitRetriesThenSucceeds(t *testing.T) {
	conn := &scriptedConnector{responses: []scriptedAttempt{
		{result: &domain.SubmissionResult{Status: domain.SubmissionError}, statusCode: 503},
		{result: &domain.SubmissionResult{Status: domain.SubmissionError}, statusCode: 503},
		{result: &domain.SubmissionResult{Success: true, Status: domain.SubmissionSuccess, DepartmentRef: "DEPT-9"}, statusCode: 200},
	}}
	sub, slept := newTestSubmitter(conn, testConfig())

	result, err := sub.Submit(context.Background(), submissionRequest())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %s: %s", result.Status, result.Message)
	}
	if result.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", result.Attempts)
	}
	if result.DepartmentRef != "DEPT-9" {
		t.Errorf("unexpected department ref %q", result.DepartmentRef)
	}

	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("expected %d backoffs, got %v", len(want), *slept)
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Errorf("backoff[%d] = %v, want %v", i, (*slept)[i], d)
		}
	}
}

func TestSubmitValidationErrorNotRetried(t *testing.T) {
	conn := &scriptedConnector{responses: []scriptedAttempt{
		{result: &domain.SubmissionResult{Status: domain.SubmissionValidationError, Message: "missing field"}, statusCode: 400},
	}}
	sub, slept := newTestSubmitter(conn, testConfig())

	result, err := sub.Submit(context.Background(), submissionRequest())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if result.Status != domain.SubmissionValidationError {
		t.Errorf("expected validation error, got %s", result.Status)
	}
	if conn.calls != 1 {
		t.Errorf("expected 1 attempt, got %d", conn.calls)
	}
	if len(*slept) != 0 {
		t.Errorf("expected no backoff, got %v", *slept)
	}
}

func TestSubmitTimeoutIsRetried(t *testing.T) {
	conn := &scriptedConnector{responses: []scriptedAttempt{
		{err: timeoutErr{}},
		{result: &domain.SubmissionResult{Success: true, Status: domain.SubmissionSuccess}, statusCode: 200},
	}}
	sub, _ := newTestSubmitter(conn, testConfig())

	result, err := sub.Submit(context.Background(), submissionRequest())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success after timeout retry, got %s", result.Status)
	}
	if result.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", result.Attempts)
	}
}

func TestSubmitTransportErrorIsRetried(t *testing.T) {
	conn := &scriptedConnector{responses: []scriptedAttempt{
		{err: errors.New("dial tcp 10.0.0.1:443: connection refused")},
		{result: &domain.SubmissionResult{Success: true, Status: domain.SubmissionSuccess}, statusCode: 200},
	}}
	sub, slept := newTestSubmitter(conn, testConfig())

	result, err := sub.Submit(context.Background(), submissionRequest())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success after transport-error retry, got %s: %s", result.Status, result.Message)
	}
	if result.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", result.Attempts)
	}
	if len(*slept) != 1 {
		t.Errorf("expected 1 backoff, got %v", *slept)
	}
}

func TestSubmitHonorsRetryAfterHint(t *testing.T) {
	conn := &scriptedConnector{responses: []scriptedAttempt{
		{result: &domain.SubmissionResult{
			Status:            domain.SubmissionError,
			RetryRequired:     true,
			RetryAfterSeconds: 7,
		}, statusCode: 503},
		{result: &domain.SubmissionResult{Success: true, Status: domain.SubmissionSuccess}, statusCode: 200},
	}}
	sub, slept := newTestSubmitter(conn, testConfig())

	result, err := sub.Submit(context.Background(), submissionRequest())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %s", result.Status)
	}
	// The server's hint replaces the exponential schedule.
	if len(*slept) != 1 || (*slept)[0] != 7*time.Second {
		t.Errorf("expected a single 7s backoff, got %v", *slept)
	}
}

func TestSubmitExhaustsRetryBudget(t *testing.T) {
	conn := &scriptedConnector{responses: []scriptedAttempt{
		{result: &domain.SubmissionResult{Status: domain.SubmissionError}, statusCode: 503},
	}}
	sub, _ := newTestSubmitter(conn, testConfig())

	result, err := sub.Submit(context.Background(), submissionRequest())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if result.Success {
		t.Error("expected failure after exhausting retries")
	}
	if conn.calls != 3 {
		t.Errorf("expected 3 attempts (max retries), got %d", conn.calls)
	}
}

func TestSubmitAuthFailureRefreshesOnce(t *testing.T) {
	conn := &scriptedConnector{responses: []scriptedAttempt{
		{result: &domain.SubmissionResult{Status: domain.SubmissionError, Message: "expired token"}, statusCode: 401},
		{result: &domain.SubmissionResult{Success: true, Status: domain.SubmissionSuccess}, statusCode: 200},
	}}
	sub, _ := newTestSubmitter(conn, testConfig())

	result, err := sub.Submit(context.Background(), submissionRequest())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success after credential refresh, got %s: %s", result.Status, result.Message)
	}
	if conn.refreshed != 1 {
		t.Errorf("expected exactly 1 credential refresh, got %d", conn.refreshed)
	}
}

func TestSubmitAuthFailureOnlyOneExtraAttempt(t *testing.T) {
	conn := &scriptedConnector{responses: []scriptedAttempt{
		{result: &domain.SubmissionResult{Status: domain.SubmissionError, Message: "expired token"}, statusCode: 401},
	}}
	sub, _ := newTestSubmitter(conn, testConfig())

	result, err := sub.Submit(context.Background(), submissionRequest())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if result.Success {
		t.Error("expected failure when auth keeps failing")
	}
	if conn.refreshed != 1 {
		t.Errorf("expected exactly 1 refresh, got %d", conn.refreshed)
	}
	// first attempt, refresh, one extra attempt, then the 401 surfaces
	if conn.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", conn.calls)
	}
}

func TestSubmitRequiresRequestID(t *testing.T) {
	sub, _ := newTestSubmitter(&scriptedConnector{responses: []scriptedAttempt{
		{result: &domain.SubmissionResult{Success: true, Status: domain.SubmissionSuccess}, statusCode: 200},
	}}, testConfig())

	req := submissionRequest()
	req.RequestID = ""
	if _, err := sub.Submit(context.Background(), req); err == nil {
		t.Error("expected error for missing request id")
	}
}
