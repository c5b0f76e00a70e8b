// Package worker provides async application processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/opengov-stack/adjudex/internal/domain"
	"github.com/opengov-stack/adjudex/internal/pipeline"
)

// Worker evaluates submitted applications asynchronously from the
// EventBus.
type Worker struct {
	bus      domain.EventBus
	pipeline *pipeline.Pipeline

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// SchemeCodes is the list of schemes to process. Bus subjects are
	// scoped per scheme, so at least one scheme is required.
	SchemeCodes []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, p *pipeline.Pipeline) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		pipeline: p,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing submitted applications for the given schemes.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.SchemeCodes) == 0 {
		return errors.New("worker: no scheme codes configured")
	}

	for _, schemeCode := range cfg.SchemeCodes {
		if err := w.startSchemeWorker(schemeCode); err != nil {
			slog.Error("failed to start worker for scheme",
				"scheme_code", schemeCode,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"scheme_count", len(cfg.SchemeCodes),
	)

	return nil
}

func (w *Worker) startSchemeWorker(schemeCode string) error {
	sub, err := w.bus.Subscribe(w.ctx, schemeCode, domain.TopicApplicationSubmitted, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("scheme worker started",
		"scheme_code", schemeCode,
		"topic", domain.TopicApplicationSubmitted,
	)

	return nil
}

// SubmittedMessage is the payload announcing a stored application that
// is ready for evaluation.
type SubmittedMessage struct {
	ApplicationID string `json:"applicationId"`
	SchemeCode    string `json:"schemeCode"`
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var sm SubmittedMessage
	if err := json.Unmarshal(msg.Payload, &sm); err != nil {
		slog.Error("failed to parse submitted message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if sm.ApplicationID == "" {
		slog.Error("submitted message missing application id",
			"message_id", msg.ID,
		)
		return nil
	}

	res, err := w.pipeline.EvaluateApplication(ctx, sm.ApplicationID)
	if err != nil {
		slog.Error("async evaluation failed",
			"application_id", sm.ApplicationID,
			"error", err,
		)
		return err
	}

	slog.Info("application processed",
		"application_id", sm.ApplicationID,
		"scheme_code", res.Application.SchemeCode,
		"decision_type", res.Decision.Type,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
