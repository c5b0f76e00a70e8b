// Package pipeline orchestrates the full decision flow for one
// application: rule evaluation, risk scoring, decision classification,
// and routing, plus submission of decided applications to external
// department systems.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opengov-stack/adjudex/internal/connector"
	"github.com/opengov-stack/adjudex/internal/decision"
	"github.com/opengov-stack/adjudex/internal/domain"
	"github.com/opengov-stack/adjudex/internal/metrics"
	"github.com/opengov-stack/adjudex/internal/risk"
	"github.com/opengov-stack/adjudex/internal/rulestore"
)

var tracer = otel.Tracer("adjudex-pipeline")

// EvaluationResult bundles every stage output of one pipeline run.
type EvaluationResult struct {
	Application *domain.Application          `json:"application"`
	RuleResult  *domain.RuleEvaluationResult `json:"ruleResult"`
	RiskScore   *domain.RiskScore            `json:"riskScore"`
	Decision    *domain.Decision             `json:"decision"`
	Routing     *domain.RoutingResult        `json:"routing"`
}

// Pipeline runs applications through evaluation and submission. It is
// safe for concurrent use.
type Pipeline struct {
	store  domain.Store
	rules  *rulestore.Service
	scorer *risk.Scorer
	router *decision.Router
	bus    domain.EventBus
}

// New wires the pipeline stages together.
func New(store domain.Store, rules *rulestore.Service, scorer *risk.Scorer, router *decision.Router, bus domain.EventBus) *Pipeline {
	return &Pipeline{
		store:  store,
		rules:  rules,
		scorer: scorer,
		router: router,
		bus:    bus,
	}
}

// EvaluateApplication runs the stored application through rules, risk
// scoring, classification, and routing, persisting the resulting
// decision. Each call produces a new decision row; re-evaluation never
// mutates history.
func (p *Pipeline) EvaluateApplication(ctx context.Context, applicationID string) (*EvaluationResult, error) {
	ctx, span := tracer.Start(ctx, "pipeline.evaluate",
		trace.WithAttributes(attribute.String("application.id", applicationID)))
	defer span.End()

	start := time.Now()

	app, err := p.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("load application %s: %w", applicationID, err)
	}

	scheme, err := p.rules.SchemeConfig(ctx, app.SchemeCode)
	if err != nil {
		return nil, fmt.Errorf("load scheme config %s: %w", app.SchemeCode, err)
	}

	if err := p.rules.EnsureLoaded(ctx, app.SchemeCode); err != nil {
		return nil, fmt.Errorf("load rules for %s: %w", app.SchemeCode, err)
	}

	ruleResult, err := p.rules.Engine().Evaluate(app.SchemeCode, app.Attributes)
	if err != nil {
		return nil, fmt.Errorf("evaluate rules: %w", err)
	}
	for _, outcome := range ruleResult.PerRule {
		if !outcome.Passed {
			metrics.RuleFailuresTotal.WithLabelValues(app.SchemeCode, string(outcome.Severity)).Inc()
		}
	}

	riskScore := p.scorer.Score(ctx, app.ID, app.Attributes, scheme)
	if riskScore.ModelType == domain.ModelTypeFallback {
		metrics.FallbackScores.WithLabelValues(app.SchemeCode).Inc()
	}

	d := decision.Classify(ruleResult, riskScore, scheme)
	d.ID = uuid.New().String()
	d.ApplicationID = app.ID
	d.SchemeCode = app.SchemeCode
	d.CreatedAt = time.Now().UTC()
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.TraceID().IsValid() {
		d.TraceID = sc.TraceID().String()
	}

	routing, err := p.router.Route(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("route decision %s: %w", d.ID, err)
	}

	metrics.EvaluationsTotal.WithLabelValues(app.SchemeCode, string(d.Type)).Inc()
	metrics.EvaluationDuration.WithLabelValues(app.SchemeCode).Observe(time.Since(start).Seconds())

	slog.Info("application evaluated",
		"application_id", app.ID,
		"scheme_code", app.SchemeCode,
		"decision_id", d.ID,
		"decision_type", d.Type,
		"risk_band", riskScore.Band,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &EvaluationResult{
		Application: app,
		RuleResult:  ruleResult,
		RiskScore:   riskScore,
		Decision:    d,
		Routing:     routing,
	}, nil
}

// SubmitToDepartment delivers an application to the named department
// connector. A fresh request ID is minted per call and embedded in the
// wire payload so the department can deduplicate deliveries.
func (p *Pipeline) SubmitToDepartment(ctx context.Context, applicationID, connectorName string) (*domain.SubmissionResult, error) {
	ctx, span := tracer.Start(ctx, "pipeline.submit",
		trace.WithAttributes(
			attribute.String("application.id", applicationID),
			attribute.String("connector.name", connectorName),
		))
	defer span.End()

	app, err := p.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("load application %s: %w", applicationID, err)
	}

	cfg, err := p.store.GetConnectorConfig(ctx, connectorName, app.SchemeCode)
	if err != nil {
		return nil, fmt.Errorf("load connector %s for %s: %w", connectorName, app.SchemeCode, err)
	}

	sub, err := connector.NewSubmitter(cfg)
	if err != nil {
		return nil, fmt.Errorf("build connector %s: %w", connectorName, err)
	}

	req := &domain.SubmissionRequest{
		RequestID:     uuid.New().String(),
		ApplicationID: app.ID,
		SchemeCode:    app.SchemeCode,
		Applicant:     app.Attributes,
		SubmittedAt:   time.Now().UTC(),
	}

	result, err := sub.Submit(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("submit %s via %s: %w", app.ID, connectorName, err)
	}

	p.publishSubmission(ctx, app, connectorName, req.RequestID, result)

	slog.Info("department submission finished",
		"application_id", app.ID,
		"connector", connectorName,
		"request_id", req.RequestID,
		"success", result.Success,
		"status", result.Status,
		"attempts", result.Attempts,
	)
	return result, nil
}

func (p *Pipeline) publishSubmission(ctx context.Context, app *domain.Application, connectorName, requestID string, result *domain.SubmissionResult) {
	if p.bus == nil {
		return
	}
	payload := fmt.Sprintf(`{"applicationId":%q,"connector":%q,"requestId":%q,"success":%t,"status":%q,"attempts":%d}`,
		app.ID, connectorName, requestID, result.Success, result.Status, result.Attempts)
	if err := p.bus.Publish(ctx, app.SchemeCode, domain.TopicSubmissionCompleted, []byte(payload)); err != nil {
		slog.Error("publish submission event failed",
			"application_id", app.ID,
			"error", err,
		)
	}
}
