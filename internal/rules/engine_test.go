package rules

import (
	"encoding/json"
	"testing"

	"github.com/opengov-stack/adjudex/internal/domain"
)

func schemeRule(name string, field string, op domain.Operator, value string, mandatory bool) *domain.Rule {
	return &domain.Rule{
		Name:       name,
		SchemeCode: "OLD-AGE-PENSION",
		Category:   domain.CategoryEligibility,
		Field:      field,
		Operator:   op,
		Value:      json.RawMessage(value),
		Mandatory:  mandatory,
	}
}

func TestEngineLoadAndCount(t *testing.T) {
	engine := NewEngine()
	defer engine.Close()

	if engine.RulesCount("OLD-AGE-PENSION") != 0 {
		t.Errorf("expected 0 rules, got %d", engine.RulesCount("OLD-AGE-PENSION"))
	}

	err := engine.LoadRules("OLD-AGE-PENSION", []*domain.Rule{
		schemeRule("min-age", "age", domain.OpGTE, `60`, true),
		schemeRule("income-cap", "annual_income", domain.OpLTE, `100000`, true),
	})
	if err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}

	if engine.RulesCount("OLD-AGE-PENSION") != 2 {
		t.Errorf("expected 2 rules, got %d", engine.RulesCount("OLD-AGE-PENSION"))
	}
}

func TestEngineLoadInvalidRule(t *testing.T) {
	engine := NewEngine()
	defer engine.Close()

	err := engine.LoadRules("OLD-AGE-PENSION", []*domain.Rule{
		schemeRule("broken", "age", domain.OpGTE, `"sixty"`, true),
	})
	if err == nil {
		t.Error("expected error for non-numeric comparison operand")
	}
}

func TestEvaluateAllRulesPass(t *testing.T) {
	engine := NewEngine()
	defer engine.Close()

	engine.LoadRules("OLD-AGE-PENSION", []*domain.Rule{
		schemeRule("min-age", "age", domain.OpGTE, `60`, true),
		schemeRule("district", "district", domain.OpIn, `["D01","D02"]`, false),
	})

	result, err := engine.Evaluate("OLD-AGE-PENSION", domain.EvaluationContext{
		"age":      65.0,
		"district": "D01",
	})
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	if !result.Passed {
		t.Error("expected result to pass")
	}
	if result.PassedCount != 2 || result.FailedCount != 0 {
		t.Errorf("expected 2 passed / 0 failed, got %d / %d", result.PassedCount, result.FailedCount)
	}
	if len(result.CriticalFailures) != 0 {
		t.Errorf("expected no critical failures, got %v", result.CriticalFailures)
	}
}

func TestMandatoryFailureIsCritical(t *testing.T) {
	engine := NewEngine()
	defer engine.Close()

	engine.LoadRules("OLD-AGE-PENSION", []*domain.Rule{
		schemeRule("min-age", "age", domain.OpGTE, `60`, true),
	})

	result, _ := engine.Evaluate("OLD-AGE-PENSION", domain.EvaluationContext{"age": 45.0})

	if result.Passed {
		t.Error("expected result to fail")
	}
	if len(result.CriticalFailures) != 1 || result.CriticalFailures[0] != "min-age" {
		t.Errorf("expected critical failure for min-age, got %v", result.CriticalFailures)
	}
	if result.PerRule[0].Severity != domain.SeverityCritical {
		t.Errorf("expected CRITICAL severity, got %s", result.PerRule[0].Severity)
	}
}

func TestOptionalFailureIsWarningOnly(t *testing.T) {
	engine := NewEngine()
	defer engine.Close()

	engine.LoadRules("OLD-AGE-PENSION", []*domain.Rule{
		schemeRule("min-age", "age", domain.OpGTE, `60`, true),
		schemeRule("preferred-district", "district", domain.OpIn, `["D01"]`, false),
	})

	result, _ := engine.Evaluate("OLD-AGE-PENSION", domain.EvaluationContext{
		"age":      70.0,
		"district": "D07",
	})

	if result.Passed {
		t.Error("expected result to fail with one warning")
	}
	if result.FailedCount != 1 {
		t.Errorf("expected 1 failure, got %d", result.FailedCount)
	}
	if len(result.CriticalFailures) != 0 {
		t.Errorf("optional failure must not be critical, got %v", result.CriticalFailures)
	}
	warnings := result.Warnings()
	if len(warnings) != 1 || warnings[0] != "preferred-district" {
		t.Errorf("expected warning for preferred-district, got %v", warnings)
	}
}

// A missing context field referenced by a mandatory rule always yields
// that rule as failed with severity CRITICAL, never skipped.
func TestMissingFieldFailsRule(t *testing.T) {
	engine := NewEngine()
	defer engine.Close()

	engine.LoadRules("OLD-AGE-PENSION", []*domain.Rule{
		schemeRule("deceased-check", "is_deceased", domain.OpEQ, `false`, true),
	})

	result, _ := engine.Evaluate("OLD-AGE-PENSION", domain.EvaluationContext{"age": 70.0})

	if result.Passed {
		t.Error("missing mandatory field must fail the evaluation")
	}
	if len(result.CriticalFailures) != 1 {
		t.Fatalf("expected 1 critical failure, got %d", len(result.CriticalFailures))
	}
	if result.PerRule[0].Reason == "" {
		t.Error("expected a reason recording the missing field")
	}
}

// Passed must always equal (FailedCount == 0).
func TestPassedMatchesFailedCount(t *testing.T) {
	engine := NewEngine()
	defer engine.Close()

	engine.LoadRules("OLD-AGE-PENSION", []*domain.Rule{
		schemeRule("min-age", "age", domain.OpGTE, `60`, true),
		schemeRule("income-cap", "annual_income", domain.OpLTE, `100000`, true),
		schemeRule("family-size", "family_size", domain.OpBetween, `[1, 10]`, false),
	})

	contexts := []domain.EvaluationContext{
		{"age": 65.0, "annual_income": 50000.0, "family_size": 4.0},
		{"age": 30.0, "annual_income": 50000.0, "family_size": 4.0},
		{"age": 65.0, "annual_income": 500000.0},
		{},
	}

	for i, ctx := range contexts {
		result, err := engine.Evaluate("OLD-AGE-PENSION", ctx)
		if err != nil {
			t.Fatalf("context %d: %v", i, err)
		}
		if result.Passed != (result.FailedCount == 0) {
			t.Errorf("context %d: Passed=%v inconsistent with FailedCount=%d", i, result.Passed, result.FailedCount)
		}
		if result.PassedCount+result.FailedCount != 3 {
			t.Errorf("context %d: all rules must be evaluated, got %d outcomes", i, result.PassedCount+result.FailedCount)
		}
	}
}

func TestEvaluateUnknownScheme(t *testing.T) {
	engine := NewEngine()
	defer engine.Close()

	if _, err := engine.Evaluate("NO-SUCH-SCHEME", domain.EvaluationContext{}); err == nil {
		t.Error("expected error for scheme without a loaded rule set")
	}
}

func TestCategoriesAreMergedNotSpecialCased(t *testing.T) {
	engine := NewEngine()
	defer engine.Close()

	dup := schemeRule("duplicate-claim", "duplicate_claim", domain.OpEQ, `false`, true)
	dup.Category = domain.CategoryDuplicate
	cross := schemeRule("cross-scheme-exclusion", "enrolled_schemes_conflict", domain.OpEQ, `false`, true)
	cross.Category = domain.CategoryCrossScheme

	engine.LoadRules("OLD-AGE-PENSION", []*domain.Rule{
		schemeRule("min-age", "age", domain.OpGTE, `60`, true),
		dup,
		cross,
	})

	result, _ := engine.Evaluate("OLD-AGE-PENSION", domain.EvaluationContext{
		"age":                       65.0,
		"duplicate_claim":           true,
		"enrolled_schemes_conflict": false,
	})

	if len(result.CriticalFailures) != 1 || result.CriticalFailures[0] != "duplicate-claim" {
		t.Errorf("expected only duplicate-claim to fail, got %v", result.CriticalFailures)
	}
	categories := map[domain.RuleCategory]bool{}
	for _, o := range result.PerRule {
		categories[o.Category] = true
	}
	if len(categories) != 3 {
		t.Errorf("expected outcomes across 3 categories, got %v", categories)
	}
}
