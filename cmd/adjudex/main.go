// Adjudex - Benefit application decisioning for government schemes.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opengov-stack/adjudex/internal/api"
	"github.com/opengov-stack/adjudex/internal/bus"
	"github.com/opengov-stack/adjudex/internal/cache"
	"github.com/opengov-stack/adjudex/internal/decision"
	"github.com/opengov-stack/adjudex/internal/domain"
	"github.com/opengov-stack/adjudex/internal/pipeline"
	"github.com/opengov-stack/adjudex/internal/repository"
	"github.com/opengov-stack/adjudex/internal/risk"
	"github.com/opengov-stack/adjudex/internal/rules"
	"github.com/opengov-stack/adjudex/internal/rulestore"
	"github.com/opengov-stack/adjudex/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg := loadConfig()
	setupLogger(cfg.Logging)

	slog.Info("starting adjudex",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"store", cfg.Store.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Store
	store, err := repository.New(cfg.Store)
	if err != nil {
		slog.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("store initialized", "driver", cfg.Store.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize rule engine and lifecycle service. Rules are loaded
	// per scheme on first use and via POST /schemes/{code}/rules.
	engine := rules.NewEngine()
	defer engine.Close()
	ruleSvc := rulestore.NewService(store, cacheImpl, engine)
	slog.Info("rule engine initialized")

	// Initialize risk scorer. The interface must stay nil when no
	// classifier endpoint is configured; a typed nil would defeat the
	// fallback check.
	var classifier risk.Classifier
	if c := risk.NewHTTPClassifier(cfg.Classifier); c != nil {
		classifier = c
		slog.Info("classifier configured", "url", cfg.Classifier.URL)
	}
	scorer := risk.NewScorer(classifier, domain.DefaultScoringWeights())

	// Initialize decision router and pipeline
	router := decision.NewRouter(store, busImpl)
	pipe := pipeline.New(store, ruleSvc, scorer, router, busImpl)
	slog.Info("decision pipeline initialized")

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("ADJUDEX_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, pipe)

		var schemes []string
		if env := os.Getenv("ADJUDEX_SCHEMES"); env != "" {
			schemes = strings.Split(env, ",")
		}

		if len(schemes) == 0 {
			slog.Warn("async worker idle, set ADJUDEX_SCHEMES to subscribe")
			asyncWorker = nil
		} else if err := asyncWorker.Start(worker.Config{SchemeCodes: schemes}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "scheme_count", len(schemes))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, store, cacheImpl, busImpl, ruleSvc, pipe, Version, cfg.Batch)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("adjudex is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("adjudex shutdown complete")
}

// loadConfig builds the effective configuration: tier defaults, then an
// optional YAML file named by ADJUDEX_CONFIG.
func loadConfig() *domain.Config {
	cfg := domain.DefaultConfig()
	if os.Getenv("ADJUDEX_TIER") == "pro" {
		cfg = domain.ProConfig()
	}

	if path := os.Getenv("ADJUDEX_CONFIG"); path != "" {
		loaded, err := domain.LoadConfig(path, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	return cfg
}

func setupLogger(cfg domain.LoggingConfig) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if os.Getenv("ADJUDEX_DEBUG") == "true" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  adjudex - benefit application decisioning")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /applications                        - Store (and optionally evaluate) an application")
	fmt.Println("    POST /applications/{id}/evaluate          - Run the decision pipeline")
	fmt.Println("    POST /applications/{id}/submit            - Submit to a department system")
	fmt.Println("    GET  /applications/{id}/decision          - Latest decision for an application")
	fmt.Println("    POST /evaluate/batch                      - Evaluate many applications")
	fmt.Println("    GET  /decisions/{id}                      - Get decision by ID")
	fmt.Println("    POST /schemes/{code}/rules                - Create a rule version")
	fmt.Println("    GET  /schemes/{code}/rules                - List active rules")
	fmt.Println("    GET  /schemes/{code}/rules/{name}/versions - Rule version history")
	fmt.Println("    POST /schemes/{code}/snapshots            - Freeze the active rule set")
	fmt.Println("    PUT  /schemes/{code}/config               - Set scheme thresholds")
	fmt.Println("    PUT  /schemes/{code}/connectors/{name}    - Configure a department connector")
	fmt.Println("    GET  /health                              - Health check")
	fmt.Println("    GET  /metrics                             - Prometheus metrics")
	fmt.Println()
}
