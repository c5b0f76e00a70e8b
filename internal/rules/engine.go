// Package rules provides the typed-predicate rule evaluation engine.
package rules

import (
	"fmt"
	"sort"
	"sync"

	"github.com/opengov-stack/adjudex/internal/domain"
)

// Engine holds compiled rule sets per scheme and evaluates them against
// applicant contexts. Rules are compiled once at load; evaluation never
// parses operands.
type Engine struct {
	mu       sync.RWMutex
	compiled map[string][]*CompiledRule // keyed by scheme code
}

// NewEngine creates an empty rule engine.
func NewEngine() *Engine {
	return &Engine{
		compiled: make(map[string][]*CompiledRule),
	}
}

// ValidateRule compiles a rule without mutating loaded rule sets.
func (e *Engine) ValidateRule(rule *domain.Rule) error {
	if rule == nil {
		return fmt.Errorf("rule is required")
	}
	_, err := Compile(rule)
	return err
}

// LoadRules compiles and installs the rule set for a scheme, replacing
// any previously loaded set. Rules are ordered by descending priority
// for stable reporting; ordering never affects the evaluation result.
func (e *Engine) LoadRules(schemeCode string, ruleSet []*domain.Rule) error {
	compiled := make([]*CompiledRule, 0, len(ruleSet))
	for _, r := range ruleSet {
		cr, err := Compile(r)
		if err != nil {
			return fmt.Errorf("failed to compile rule set for scheme %s: %w", schemeCode, err)
		}
		compiled = append(compiled, cr)
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		if compiled[i].Rule.Priority != compiled[j].Rule.Priority {
			return compiled[i].Rule.Priority > compiled[j].Rule.Priority
		}
		return compiled[i].Rule.Name < compiled[j].Rule.Name
	})

	e.mu.Lock()
	e.compiled[schemeCode] = compiled
	e.mu.Unlock()

	return nil
}

// Evaluate runs the loaded rule set for a scheme against one applicant
// context and merges the outcomes.
func (e *Engine) Evaluate(schemeCode string, ctx domain.EvaluationContext) (*domain.RuleEvaluationResult, error) {
	e.mu.RLock()
	compiled, ok := e.compiled[schemeCode]
	e.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no rule set loaded for scheme %s", schemeCode)
	}

	return EvaluateSet(compiled, ctx), nil
}

// EvaluateSet evaluates a compiled rule set against a context. All rules
// are evaluated; there is no short-circuit at the rule level. A rule
// whose context field is missing is recorded as failed, not skipped.
func EvaluateSet(ruleSet []*CompiledRule, ctx domain.EvaluationContext) *domain.RuleEvaluationResult {
	result := &domain.RuleEvaluationResult{
		PerRule: make([]domain.RuleOutcome, 0, len(ruleSet)),
	}

	for _, cr := range ruleSet {
		outcome := evaluateRule(cr, ctx)
		result.PerRule = append(result.PerRule, outcome)

		if outcome.Passed {
			result.PassedCount++
			continue
		}
		result.FailedCount++
		if outcome.Severity == domain.SeverityCritical {
			result.CriticalFailures = append(result.CriticalFailures, outcome.RuleName)
		}
	}

	result.Passed = result.FailedCount == 0
	return result
}

// evaluateRule applies one compiled predicate to the context.
func evaluateRule(cr *CompiledRule, ctx domain.EvaluationContext) domain.RuleOutcome {
	outcome := domain.RuleOutcome{
		RuleName: cr.Rule.Name,
		Category: cr.Rule.Category,
	}

	actual, present := ctx[cr.Rule.Field]
	if !present {
		// Silent skipping would let incomplete applicant data pass.
		outcome.Passed = false
		outcome.Severity = cr.Rule.FailureSeverity()
		outcome.Reason = fmt.Sprintf("context field %q is missing", cr.Rule.Field)
		return outcome
	}

	passed, reason := cr.pred.matches(actual)
	outcome.Passed = passed
	if !passed {
		outcome.Severity = cr.Rule.FailureSeverity()
		outcome.Reason = reason
	}
	return outcome
}

// RulesCount returns the number of rules loaded for a scheme.
func (e *Engine) RulesCount(schemeCode string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled[schemeCode])
}

// Schemes returns the scheme codes with a loaded rule set.
func (e *Engine) Schemes() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	schemes := make([]string, 0, len(e.compiled))
	for code := range e.compiled {
		schemes = append(schemes, code)
	}
	sort.Strings(schemes)
	return schemes
}

// Close clears all loaded rule sets.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string][]*CompiledRule)
	return nil
}
