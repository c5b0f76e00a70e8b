// Package rulestore manages the versioned rule lifecycle: persistence,
// caching, snapshots and loading compiled rule sets into the engine.
package rulestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opengov-stack/adjudex/internal/domain"
	"github.com/opengov-stack/adjudex/internal/rules"
)

// cacheTTL bounds staleness of cached rule sets and scheme configs.
const cacheTTL = 5 * time.Minute

// ErrInvalidRule marks rule payloads the engine refuses to compile.
var ErrInvalidRule = errors.New("invalid rule")

// Service coordinates rule persistence with the in-memory engine.
// cache may be nil; lookups then always hit the store.
type Service struct {
	store  domain.Store
	cache  domain.Cache
	engine *rules.Engine
}

// NewService creates the rule lifecycle service.
func NewService(store domain.Store, cache domain.Cache, engine *rules.Engine) *Service {
	return &Service{store: store, cache: cache, engine: engine}
}

// Engine exposes the compiled rule engine for evaluation callers.
func (s *Service) Engine() *rules.Engine {
	return s.engine
}

// CreateRuleVersion validates and persists a new version of a rule,
// then reloads the scheme's compiled rule set. The previous version is
// closed atomically by the store.
func (s *Service) CreateRuleVersion(ctx context.Context, rule *domain.Rule) (*domain.Rule, error) {
	if err := s.engine.ValidateRule(rule); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if err := s.store.SaveRuleVersion(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to save rule version: %w", err)
	}

	s.invalidate(ctx, rule.SchemeCode)

	if err := s.ReloadScheme(ctx, rule.SchemeCode); err != nil {
		return nil, err
	}

	slog.Info("rule version created",
		"scheme", rule.SchemeCode,
		"rule", rule.Name,
		"version", rule.Version,
	)
	return rule, nil
}

// ActiveRules returns the rule versions in effect now, cached per scheme.
func (s *Service) ActiveRules(ctx context.Context, schemeCode string) ([]*domain.Rule, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, schemeCode, domain.CacheKeyActiveRules); err == nil && data != nil {
			var cached []*domain.Rule
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		}
	}

	ruleSet, err := s.store.GetActiveRules(ctx, schemeCode, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to load active rules: %w", err)
	}

	if s.cache != nil {
		if data, err := json.Marshal(ruleSet); err == nil {
			_ = s.cache.Set(ctx, schemeCode, domain.CacheKeyActiveRules, data, cacheTTL)
		}
	}
	return ruleSet, nil
}

// ListVersions returns the full version history of one rule.
func (s *Service) ListVersions(ctx context.Context, schemeCode, name string) ([]*domain.Rule, error) {
	return s.store.ListRuleVersions(ctx, schemeCode, name)
}

// ReloadScheme recompiles the scheme's active rules into the engine.
func (s *Service) ReloadScheme(ctx context.Context, schemeCode string) error {
	ruleSet, err := s.store.GetActiveRules(ctx, schemeCode, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to load rules for %s: %w", schemeCode, err)
	}
	if err := s.engine.LoadRules(schemeCode, ruleSet); err != nil {
		return fmt.Errorf("failed to compile rules for %s: %w", schemeCode, err)
	}
	return nil
}

// EnsureLoaded loads a scheme into the engine on first use.
func (s *Service) EnsureLoaded(ctx context.Context, schemeCode string) error {
	if s.engine.RulesCount(schemeCode) > 0 {
		return nil
	}
	return s.ReloadScheme(ctx, schemeCode)
}

// TakeSnapshot freezes the scheme's current active rule set under a
// name, for audit and reproducible re-evaluation.
func (s *Service) TakeSnapshot(ctx context.Context, schemeCode, name string) (*domain.RuleSetSnapshot, error) {
	if name == "" {
		return nil, fmt.Errorf("snapshot name is required")
	}

	ruleSet, err := s.store.GetActiveRules(ctx, schemeCode, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to load active rules: %w", err)
	}

	snap := &domain.RuleSetSnapshot{
		ID:         uuid.New().String(),
		SchemeCode: schemeCode,
		Name:       name,
		TakenAt:    time.Now().UTC(),
		Rules:      ruleSet,
	}
	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	slog.Info("rule set snapshot taken",
		"scheme", schemeCode,
		"name", name,
		"rules", len(ruleSet),
	)
	return snap, nil
}

// GetSnapshot retrieves a named snapshot.
func (s *Service) GetSnapshot(ctx context.Context, schemeCode, name string) (*domain.RuleSetSnapshot, error) {
	return s.store.GetSnapshot(ctx, schemeCode, name)
}

// SchemeConfig returns the thresholds and policy flags, cached per scheme.
func (s *Service) SchemeConfig(ctx context.Context, schemeCode string) (*domain.SchemeConfig, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, schemeCode, domain.CacheKeySchemeConfig); err == nil && data != nil {
			var cached domain.SchemeConfig
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	cfg, err := s.store.GetSchemeConfig(ctx, schemeCode)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(cfg); err == nil {
			_ = s.cache.Set(ctx, schemeCode, domain.CacheKeySchemeConfig, data, cacheTTL)
		}
	}
	return cfg, nil
}

// SaveSchemeConfig persists a scheme configuration and drops the cache.
func (s *Service) SaveSchemeConfig(ctx context.Context, cfg *domain.SchemeConfig) error {
	if err := s.store.SaveSchemeConfig(ctx, cfg); err != nil {
		return err
	}
	s.invalidate(ctx, cfg.SchemeCode)
	return nil
}

func (s *Service) invalidate(ctx context.Context, schemeCode string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Delete(ctx, schemeCode, domain.CacheKeyActiveRules)
	_ = s.cache.Delete(ctx, schemeCode, domain.CacheKeySchemeConfig)
}
