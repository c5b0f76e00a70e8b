package domain

import "time"

// ConnectorType selects the wire protocol a department connector speaks.
type ConnectorType string

const (
	ConnectorREST    ConnectorType = "REST"
	ConnectorSOAP    ConnectorType = "SOAP"
	ConnectorGateway ConnectorType = "GATEWAY"
)

// AuthType selects the authentication scheme a connector uses.
type AuthType string

const (
	AuthAPIKey AuthType = "API_KEY"
	AuthOAuth2 AuthType = "OAUTH2"
	AuthBasic  AuthType = "BASIC"
	AuthWSS    AuthType = "WSS"
)

// AuthConfig carries the credentials for a connector. Only the fields
// relevant to the connector's AuthType are populated.
type AuthConfig struct {
	// API_KEY
	APIKey       string `json:"apiKey,omitempty"`
	APIKeyHeader string `json:"apiKeyHeader,omitempty"` // defaults to X-API-Key

	// BASIC and WSS (WS-Security UsernameToken)
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// OAUTH2 client credentials
	TokenURL     string `json:"tokenUrl,omitempty"`
	ClientID     string `json:"clientId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Scope        string `json:"scope,omitempty"`

	// SigningKey, when set, switches the OAuth2 token request to a signed
	// client-assertion grant instead of a plain client secret.
	SigningKey string `json:"signingKey,omitempty"`
}

// ConnectorConfig describes one external department endpoint. Owned by an
// administrative surface; the connector layer only reads it.
type ConnectorConfig struct {
	Name       string        `json:"name"`
	SchemeCode string        `json:"schemeCode"`
	Type       ConnectorType `json:"type"`

	BaseURL      string `json:"baseUrl"`
	EndpointPath string `json:"endpointPath"`

	Auth       AuthType   `json:"auth"`
	AuthConfig AuthConfig `json:"authConfig"`

	MaxRetries           int   `json:"maxRetries"`
	RetryDelaySeconds    int   `json:"retryDelaySeconds"`
	RetryableStatusCodes []int `json:"retryableStatusCodes"`

	// TimeoutSeconds bounds a single submission attempt, independent of
	// the retry loop's backoff.
	TimeoutSeconds int `json:"timeoutSeconds"`

	// SenderCode identifies this system in gateway envelopes.
	SenderCode string `json:"senderCode,omitempty"`
}

// SubmissionStatus classifies a submission outcome.
type SubmissionStatus string

const (
	SubmissionSuccess         SubmissionStatus = "SUCCESS"
	SubmissionError           SubmissionStatus = "ERROR"
	SubmissionValidationError SubmissionStatus = "VALIDATION_ERROR"
	SubmissionTimeout         SubmissionStatus = "TIMEOUT"
)

// SubmissionRequest is the application payload handed to a connector.
// RequestID is the caller-generated idempotency key embedded in every
// wire payload so a department can de-duplicate retried submissions.
type SubmissionRequest struct {
	RequestID     string            `json:"requestId"`
	ApplicationID string            `json:"applicationId"`
	SchemeCode    string            `json:"schemeCode"`
	Applicant     EvaluationContext `json:"applicant"`
	SubmittedAt   time.Time         `json:"submittedAt"`
}

// SubmissionResult is the parsed outcome of a department submission.
type SubmissionResult struct {
	Success           bool             `json:"success"`
	DepartmentRef     string           `json:"departmentReferenceNumber,omitempty"`
	Status            SubmissionStatus `json:"status"`
	Message           string           `json:"message,omitempty"`
	RetryRequired     bool             `json:"retryRequired"`
	RetryAfterSeconds int              `json:"retryAfterSeconds,omitempty"`
	Attempts          int              `json:"attempts,omitempty"`
}
