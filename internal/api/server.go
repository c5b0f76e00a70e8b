package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opengov-stack/adjudex/internal/domain"
	"github.com/opengov-stack/adjudex/internal/pipeline"
	"github.com/opengov-stack/adjudex/internal/rulestore"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, store domain.Store, cache domain.Cache, bus domain.EventBus, rules *rulestore.Service, p *pipeline.Pipeline, version string, batch domain.BatchConfig) *Server {
	handler := NewHandler(store, cache, bus, rules, p, version, batch)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Operational endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Handle("/metrics", promhttp.Handler())

	// Application lifecycle
	router.Post("/applications", handler.CreateApplication)
	router.Get("/applications/{id}", handler.GetApplication)
	router.Post("/applications/{id}/evaluate", handler.EvaluateApplication)
	router.Post("/applications/{id}/submit", handler.SubmitApplication)
	router.Get("/applications/{id}/decision", handler.GetLatestDecision)
	router.Post("/evaluate/batch", handler.EvaluateBatch)

	// Decision retrieval
	router.Get("/decisions/{id}", handler.GetDecision)

	// Per-scheme administration
	router.Route("/schemes/{schemeCode}", func(r chi.Router) {
		r.Get("/config", handler.GetSchemeConfig)
		r.Put("/config", handler.SaveSchemeConfig)

		r.Get("/rules", handler.ListRules)
		r.Post("/rules", handler.CreateRule)
		r.Get("/rules/{name}/versions", handler.ListRuleVersions)

		r.Post("/snapshots", handler.TakeSnapshot)
		r.Get("/snapshots/{name}", handler.GetSnapshot)

		r.Get("/connectors/{name}", handler.GetConnectorConfig)
		r.Put("/connectors/{name}", handler.SaveConnectorConfig)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
