package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opengov-stack/adjudex/internal/domain"
	"github.com/opengov-stack/adjudex/internal/pipeline"
	"github.com/opengov-stack/adjudex/internal/repository"
	"github.com/opengov-stack/adjudex/internal/rulestore"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	store    domain.Store
	cache    domain.Cache
	bus      domain.EventBus
	rules    *rulestore.Service
	pipeline *pipeline.Pipeline
	version  string
	batch    domain.BatchConfig
}

// NewHandler creates a new API handler.
func NewHandler(store domain.Store, cache domain.Cache, bus domain.EventBus, rules *rulestore.Service, p *pipeline.Pipeline, version string, batch domain.BatchConfig) *Handler {
	return &Handler{
		store:    store,
		cache:    cache,
		bus:      bus,
		rules:    rules,
		pipeline: p,
		version:  version,
		batch:    batch,
	}
}

// ApplicationRequest is the request body for POST /applications.
type ApplicationRequest struct {
	ID             string                   `json:"id,omitempty"`
	SchemeCode     string                   `json:"schemeCode"`
	Attributes     domain.EvaluationContext `json:"attributes"`
	SubmissionMode string                   `json:"submissionMode,omitempty"`
	Evaluate       bool                     `json:"evaluate,omitempty"`
}

// CreateApplication stores an application and announces it on the bus.
// With "evaluate": true the decision pipeline runs synchronously and
// the full evaluation result is returned.
func (h *Handler) CreateApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.SchemeCode == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "schemeCode is required",
		})
		return
	}
	if len(req.Attributes) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "attributes are required",
		})
		return
	}
	mode := req.SubmissionMode
	if mode == "" {
		mode = domain.SubmissionModeAuto
	}

	app := &domain.Application{
		ID:             req.ID,
		SchemeCode:     req.SchemeCode,
		Attributes:     req.Attributes,
		SubmissionMode: mode,
		SubmittedAt:    time.Now().UTC(),
	}
	if app.ID == "" {
		app.ID = uuid.New().String()
	}

	if err := h.store.SaveApplication(ctx, app); err != nil {
		slog.Error("failed to save application", "id", app.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save application",
		})
		return
	}

	if req.Evaluate {
		res, err := h.pipeline.EvaluateApplication(ctx, app.ID)
		if err != nil {
			slog.Error("evaluation failed", "id", app.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "evaluation failed",
			})
			return
		}
		writeJSON(w, http.StatusCreated, res)
		return
	}

	h.announce(r, app)
	writeJSON(w, http.StatusCreated, app)
}

// announce publishes the stored application for async workers.
func (h *Handler) announce(r *http.Request, app *domain.Application) {
	if h.bus == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"applicationId": app.ID,
		"schemeCode":    app.SchemeCode,
	})
	if err := h.bus.Publish(r.Context(), app.SchemeCode, domain.TopicApplicationSubmitted, payload); err != nil {
		slog.Error("failed to publish application", "id", app.ID, "error", err)
	}
}

// GetApplication retrieves an application by ID.
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	app, err := h.store.GetApplication(r.Context(), id)
	if err != nil {
		writeNotFoundOr500(w, err, "application not found")
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// EvaluateApplication runs the decision pipeline synchronously.
func (h *Handler) EvaluateApplication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	res, err := h.pipeline.EvaluateApplication(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "application not found",
			})
			return
		}
		slog.Error("evaluation failed", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "evaluation failed",
		})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// BatchRequest is the request body for POST /evaluate/batch.
type BatchRequest struct {
	ApplicationIDs []string `json:"applicationIds"`
	Concurrency    int      `json:"concurrency,omitempty"`
}

// EvaluateBatch evaluates many stored applications concurrently.
func (h *Handler) EvaluateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.ApplicationIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "applicationIds are required",
		})
		return
	}

	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = h.batch.Concurrency
	}

	res, err := h.pipeline.EvaluateBatch(r.Context(), req.ApplicationIDs, concurrency)
	if err != nil {
		slog.Error("batch evaluation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "batch evaluation failed",
		})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SubmitRequest is the request body for POST /applications/{id}/submit.
type SubmitRequest struct {
	Connector string `json:"connector"`
}

// SubmitApplication delivers an application to a department connector.
func (h *Handler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Connector == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "connector is required",
		})
		return
	}

	result, err := h.pipeline.SubmitToDepartment(r.Context(), id, req.Connector)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "application or connector not found",
			})
			return
		}
		slog.Error("submission failed", "id", id, "connector", req.Connector, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "submission failed",
		})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetDecision retrieves a decision by ID.
func (h *Handler) GetDecision(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := h.store.GetDecision(r.Context(), id)
	if err != nil {
		writeNotFoundOr500(w, err, "decision not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// GetLatestDecision retrieves the newest decision for an application.
func (h *Handler) GetLatestDecision(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := h.store.LatestDecision(r.Context(), id)
	if err != nil {
		writeNotFoundOr500(w, err, "no decision for application")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// CreateRule creates a new version of a rule for a scheme. Versioning
// is automatic: the previous active version is closed when the new one
// takes effect.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	schemeCode := chi.URLParam(r, "schemeCode")

	var rule domain.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	rule.SchemeCode = schemeCode
	if rule.Name == "" || rule.Field == "" || rule.Operator == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name, field, and operator are required",
		})
		return
	}
	if rule.EffectiveFrom.IsZero() {
		rule.EffectiveFrom = time.Now().UTC()
	}

	created, err := h.rules.CreateRuleVersion(r.Context(), &rule)
	if err != nil {
		if errors.Is(err, rulestore.ErrInvalidRule) || errors.Is(err, repository.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("failed to create rule", "scheme_code", schemeCode, "name", rule.Name, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to create rule",
		})
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListRules returns the scheme's currently active rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	schemeCode := chi.URLParam(r, "schemeCode")

	active, err := h.rules.ActiveRules(r.Context(), schemeCode)
	if err != nil {
		slog.Error("failed to list rules", "scheme_code", schemeCode, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list rules",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": active,
		"count": len(active),
	})
}

// ListRuleVersions returns the full version history of one rule.
func (h *Handler) ListRuleVersions(w http.ResponseWriter, r *http.Request) {
	schemeCode := chi.URLParam(r, "schemeCode")
	name := chi.URLParam(r, "name")

	versions, err := h.rules.ListVersions(r.Context(), schemeCode, name)
	if err != nil {
		slog.Error("failed to list versions", "scheme_code", schemeCode, "name", name, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list rule versions",
		})
		return
	}
	if len(versions) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"versions": versions,
		"count":    len(versions),
	})
}

// SnapshotRequest is the request body for POST snapshots.
type SnapshotRequest struct {
	Name string `json:"name"`
}

// TakeSnapshot freezes the scheme's current active rule set under a name.
func (h *Handler) TakeSnapshot(w http.ResponseWriter, r *http.Request) {
	schemeCode := chi.URLParam(r, "schemeCode")

	var req SnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name is required",
		})
		return
	}

	snap, err := h.rules.TakeSnapshot(r.Context(), schemeCode, req.Name)
	if err != nil {
		slog.Error("failed to take snapshot", "scheme_code", schemeCode, "name", req.Name, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to take snapshot",
		})
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// GetSnapshot retrieves a named rule set snapshot.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	schemeCode := chi.URLParam(r, "schemeCode")
	name := chi.URLParam(r, "name")

	snap, err := h.rules.GetSnapshot(r.Context(), schemeCode, name)
	if err != nil {
		writeNotFoundOr500(w, err, "snapshot not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetSchemeConfig retrieves a scheme's decision configuration.
func (h *Handler) GetSchemeConfig(w http.ResponseWriter, r *http.Request) {
	schemeCode := chi.URLParam(r, "schemeCode")

	cfg, err := h.rules.SchemeConfig(r.Context(), schemeCode)
	if err != nil {
		writeNotFoundOr500(w, err, "scheme not found")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// SaveSchemeConfig creates or replaces a scheme's configuration.
func (h *Handler) SaveSchemeConfig(w http.ResponseWriter, r *http.Request) {
	schemeCode := chi.URLParam(r, "schemeCode")

	var cfg domain.SchemeConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	cfg.SchemeCode = schemeCode
	if cfg.LowRiskMax <= 0 || cfg.MediumRiskMax < cfg.LowRiskMax {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "band thresholds must satisfy 0 < lowRiskMax <= mediumRiskMax",
		})
		return
	}

	if err := h.rules.SaveSchemeConfig(r.Context(), &cfg); err != nil {
		slog.Error("failed to save scheme config", "scheme_code", schemeCode, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save scheme config",
		})
		return
	}
	writeJSON(w, http.StatusOK, &cfg)
}

// GetConnectorConfig retrieves a department connector configuration.
func (h *Handler) GetConnectorConfig(w http.ResponseWriter, r *http.Request) {
	schemeCode := chi.URLParam(r, "schemeCode")
	name := chi.URLParam(r, "name")

	cfg, err := h.store.GetConnectorConfig(r.Context(), name, schemeCode)
	if err != nil {
		writeNotFoundOr500(w, err, "connector not found")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// SaveConnectorConfig creates or replaces a department connector.
func (h *Handler) SaveConnectorConfig(w http.ResponseWriter, r *http.Request) {
	schemeCode := chi.URLParam(r, "schemeCode")
	name := chi.URLParam(r, "name")

	var cfg domain.ConnectorConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	cfg.Name = name
	cfg.SchemeCode = schemeCode
	if cfg.Type == "" || cfg.BaseURL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "type and baseUrl are required",
		})
		return
	}

	if err := h.store.SaveConnectorConfig(r.Context(), &cfg); err != nil {
		slog.Error("failed to save connector config", "name", name, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save connector config",
		})
		return
	}
	writeJSON(w, http.StatusOK, &cfg)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeNotFoundOr500(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": msg,
		})
		return
	}
	slog.Error("request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "internal error",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
