package connector

import (
	"testing"
	"time"

	"github.com/opengov-stack/adjudex/internal/domain"
)

func testConfig() *domain.ConnectorConfig {
	return &domain.ConnectorConfig{
		Name:                 "pension-dept",
		SchemeCode:           "OLD-AGE-PENSION",
		Type:                 domain.ConnectorREST,
		BaseURL:              "https://dept.example",
		EndpointPath:         "/applications",
		MaxRetries:           3,
		RetryDelaySeconds:    2,
		RetryableStatusCodes: []int{502, 503},
		TimeoutSeconds:       5,
	}
}

func TestBackoffIsExponential(t *testing.T) {
	p := newRetryPolicy(testConfig())

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, expected := range want {
		if got := p.delay(i + 1); got != expected {
			t.Errorf("delay(%d) = %v, want %v", i+1, got, expected)
		}
	}
}

func TestShouldRetry(t *testing.T) {
	p := newRetryPolicy(testConfig())

	cases := []struct {
		name       string
		attempt    int
		result     *domain.SubmissionResult
		statusCode int
		want       bool
	}{
		{"retryable status code", 1, &domain.SubmissionResult{Status: domain.SubmissionError}, 503, true},
		{"non-retryable 5xx", 1, &domain.SubmissionResult{Status: domain.SubmissionError}, 500, false},
		{"timeout always retryable", 1, &domain.SubmissionResult{Status: domain.SubmissionTimeout}, 0, true},
		{"explicit retry flag", 1, &domain.SubmissionResult{Status: domain.SubmissionError, RetryRequired: true}, 200, true},
		{"validation error never retried", 1, &domain.SubmissionResult{Status: domain.SubmissionValidationError}, 400, false},
		{"4xx never retried even if listed", 1, &domain.SubmissionResult{Status: domain.SubmissionError}, 404, false},
		{"budget exhausted", 3, &domain.SubmissionResult{Status: domain.SubmissionTimeout}, 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := p.shouldRetry(tc.attempt, tc.result, tc.statusCode); got != tc.want {
				t.Errorf("shouldRetry(%d, %s, %d) = %v, want %v",
					tc.attempt, tc.result.Status, tc.statusCode, got, tc.want)
			}
		})
	}
}

func TestFourXXNeverRetriedRegardlessOfConfig(t *testing.T) {
	cfg := testConfig()
	cfg.RetryableStatusCodes = []int{429}
	p := newRetryPolicy(cfg)

	if p.shouldRetry(1, &domain.SubmissionResult{Status: domain.SubmissionError}, 429) {
		t.Error("a 4xx must never be retried")
	}
}
