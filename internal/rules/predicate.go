package rules

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/opengov-stack/adjudex/internal/domain"
)

// predicate is a compiled, strongly-typed rule operand. Each operator
// maps to one variant, resolved once at rule load time rather than
// re-parsed per evaluation.
type predicate interface {
	// matches reports whether the actual context value satisfies the
	// predicate. The reason is populated only on a non-match.
	matches(actual any) (bool, string)
}

// CompiledRule pairs a rule with its resolved predicate.
type CompiledRule struct {
	Rule *domain.Rule
	pred predicate
}

// Compile resolves a rule's operator and JSON operand into a typed
// predicate. Fails on unknown operators or operands of the wrong shape.
func Compile(rule *domain.Rule) (*CompiledRule, error) {
	if rule.Field == "" {
		return nil, fmt.Errorf("rule %s: field is required", rule.Name)
	}

	var pred predicate
	var err error

	switch rule.Operator {
	case domain.OpGTE, domain.OpLTE:
		pred, err = compileComparison(rule)
	case domain.OpEQ, domain.OpNEQ:
		pred, err = compileEquality(rule)
	case domain.OpIn, domain.OpNotIn:
		pred, err = compileMembership(rule)
	case domain.OpBetween:
		pred, err = compileRange(rule)
	default:
		return nil, fmt.Errorf("rule %s: unsupported operator %q", rule.Name, rule.Operator)
	}
	if err != nil {
		return nil, err
	}

	return &CompiledRule{Rule: rule, pred: pred}, nil
}

// comparison implements >= and <= over numeric fields.
type comparison struct {
	op    domain.Operator
	bound float64
}

func compileComparison(rule *domain.Rule) (predicate, error) {
	var bound float64
	if err := json.Unmarshal(rule.Value, &bound); err != nil {
		return nil, fmt.Errorf("rule %s: operator %s needs a numeric operand: %w", rule.Name, rule.Operator, err)
	}
	return &comparison{op: rule.Operator, bound: bound}, nil
}

func (p *comparison) matches(actual any) (bool, string) {
	n, ok := toNumber(actual)
	if !ok {
		return false, fmt.Sprintf("value %v is not numeric", actual)
	}
	if p.op == domain.OpGTE {
		if n >= p.bound {
			return true, ""
		}
		return false, fmt.Sprintf("%v is below %v", n, p.bound)
	}
	if n <= p.bound {
		return true, ""
	}
	return false, fmt.Sprintf("%v is above %v", n, p.bound)
}

// equality implements == and != with exact-match semantics. Numbers are
// compared numerically, everything else by canonical string form.
type equality struct {
	want   string
	negate bool
}

func compileEquality(rule *domain.Rule) (predicate, error) {
	var operand any
	if err := json.Unmarshal(rule.Value, &operand); err != nil {
		return nil, fmt.Errorf("rule %s: invalid operand: %w", rule.Name, err)
	}
	key, ok := canonical(operand)
	if !ok {
		return nil, fmt.Errorf("rule %s: operator %s needs a scalar operand", rule.Name, rule.Operator)
	}
	return &equality{want: key, negate: rule.Operator == domain.OpNEQ}, nil
}

func (p *equality) matches(actual any) (bool, string) {
	got, ok := canonical(actual)
	if !ok {
		return false, fmt.Sprintf("value %v is not comparable", actual)
	}
	match := got == p.want
	if p.negate {
		match = !match
	}
	if match {
		return true, ""
	}
	if p.negate {
		return false, fmt.Sprintf("value equals excluded %q", p.want)
	}
	return false, fmt.Sprintf("value %q does not equal %q", got, p.want)
}

// membership implements IN and NOT_IN over a set of scalars.
type membership struct {
	members map[string]struct{}
	negate  bool
}

func compileMembership(rule *domain.Rule) (predicate, error) {
	var operands []any
	if err := json.Unmarshal(rule.Value, &operands); err != nil {
		return nil, fmt.Errorf("rule %s: operator %s needs an array operand: %w", rule.Name, rule.Operator, err)
	}
	if len(operands) == 0 {
		return nil, fmt.Errorf("rule %s: operator %s needs a non-empty set", rule.Name, rule.Operator)
	}
	members := make(map[string]struct{}, len(operands))
	for _, o := range operands {
		key, ok := canonical(o)
		if !ok {
			return nil, fmt.Errorf("rule %s: set member %v is not a scalar", rule.Name, o)
		}
		members[key] = struct{}{}
	}
	return &membership{members: members, negate: rule.Operator == domain.OpNotIn}, nil
}

func (p *membership) matches(actual any) (bool, string) {
	got, ok := canonical(actual)
	if !ok {
		return false, fmt.Sprintf("value %v is not comparable", actual)
	}
	_, in := p.members[got]
	if p.negate {
		if !in {
			return true, ""
		}
		return false, fmt.Sprintf("value %q is in the excluded set", got)
	}
	if in {
		return true, ""
	}
	return false, fmt.Sprintf("value %q is not in the allowed set", got)
}

// numericRange implements BETWEEN with inclusive bounds.
type numericRange struct {
	lo, hi float64
}

func compileRange(rule *domain.Rule) (predicate, error) {
	var bounds []float64
	if err := json.Unmarshal(rule.Value, &bounds); err != nil {
		return nil, fmt.Errorf("rule %s: BETWEEN needs a two-element numeric array: %w", rule.Name, err)
	}
	if len(bounds) != 2 {
		return nil, fmt.Errorf("rule %s: BETWEEN needs exactly two bounds, got %d", rule.Name, len(bounds))
	}
	if bounds[0] > bounds[1] {
		return nil, fmt.Errorf("rule %s: BETWEEN lower bound %v exceeds upper bound %v", rule.Name, bounds[0], bounds[1])
	}
	return &numericRange{lo: bounds[0], hi: bounds[1]}, nil
}

func (p *numericRange) matches(actual any) (bool, string) {
	n, ok := toNumber(actual)
	if !ok {
		return false, fmt.Sprintf("value %v is not numeric", actual)
	}
	if n >= p.lo && n <= p.hi {
		return true, ""
	}
	return false, fmt.Sprintf("%v is outside [%v, %v]", n, p.lo, p.hi)
}

// toNumber widens the numeric types JSON decoding and Go literals produce.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// canonical maps a scalar to a comparable string key. Numbers collapse to
// one canonical form so 18 and 18.0 compare equal.
func canonical(v any) (string, bool) {
	if n, ok := toNumber(v); ok {
		return strconv.FormatFloat(n, 'g', -1, 64), true
	}
	switch s := v.(type) {
	case string:
		return s, true
	case bool:
		return strconv.FormatBool(s), true
	}
	return "", false
}
