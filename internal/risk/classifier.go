package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opengov-stack/adjudex/internal/domain"
)

// Classifier scores a feature vector with a trained model. Any error it
// returns downgrades the scorer to its deterministic fallback; a
// classifier failure is never fatal to an evaluation.
type Classifier interface {
	// Score returns the model's risk probability in [0,1] and the model
	// version that produced it.
	Score(ctx context.Context, applicationID string, features FeatureVector) (float64, string, error)
}

// HTTPClassifier calls an external model-serving endpoint.
type HTTPClassifier struct {
	url    string
	client *http.Client
}

// NewHTTPClassifier creates a classifier client for the given scoring
// endpoint. Returns nil when no URL is configured, which the scorer
// treats as "fallback only".
func NewHTTPClassifier(cfg domain.ClassifierConfig) *HTTPClassifier {
	if cfg.URL == "" {
		return nil
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPClassifier{
		url:    cfg.URL,
		client: &http.Client{Timeout: timeout},
	}
}

type scoreRequest struct {
	ApplicationID string        `json:"applicationId"`
	Features      FeatureVector `json:"features"`
}

type scoreResponse struct {
	Probability  *float64 `json:"probability"`
	ModelVersion string   `json:"modelVersion"`
}

// Score posts the feature vector to the model server and parses the
// returned probability.
func (c *HTTPClassifier) Score(ctx context.Context, applicationID string, features FeatureVector) (float64, string, error) {
	body, err := json.Marshal(scoreRequest{ApplicationID: applicationID, Features: features})
	if err != nil {
		return 0, "", fmt.Errorf("failed to encode score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("classifier unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, "", fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	var sr scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return 0, "", fmt.Errorf("malformed classifier response: %w", err)
	}
	if sr.Probability == nil || *sr.Probability < 0 || *sr.Probability > 1 {
		return 0, "", fmt.Errorf("classifier probability out of range")
	}

	return *sr.Probability, sr.ModelVersion, nil
}
