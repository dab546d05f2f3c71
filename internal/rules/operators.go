// internal/rules/operators.go
package rules

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/solatis/pricekeeper/internal/types"
)

/*
 * Operator comparison logic.
 *
 * Two families, chosen at compile time by operator:
 *   - numeric: EQUALS, NOT_EQUALS, GREATER_THAN(_EQUALS), LESS_THAN(_EQUALS),
 *     BETWEEN, NOT_BETWEEN. Decimal comparison, BETWEEN inclusive at both ends.
 *   - text: EQUALS, NOT_EQUALS, IN, NOT_IN, CONTAINS, NOT_CONTAINS,
 *     STARTS_WITH, ENDS_WITH. Exact, case-sensitive string comparison.
 *
 * Plain functions with a switch; the operator set is closed and the
 * per-operator behaviour is one line each.
 */

// NumericComparison is a compiled numeric predicate.
type NumericComparison struct {
	Op    types.Operator
	Value decimal.Decimal  // threshold for single-value operators
	Min   *decimal.Decimal // BETWEEN/NOT_BETWEEN lower end, nil = open
	Max   *decimal.Decimal // BETWEEN/NOT_BETWEEN upper end, nil = open
}

// Matches applies the comparison to x.
func (c NumericComparison) Matches(x decimal.Decimal) bool {
	switch c.Op {
	case types.OpEquals:
		return x.Equal(c.Value)
	case types.OpNotEquals:
		return !x.Equal(c.Value)
	case types.OpGreaterThan:
		return x.GreaterThan(c.Value)
	case types.OpGreaterThanEquals:
		return x.GreaterThanOrEqual(c.Value)
	case types.OpLessThan:
		return x.LessThan(c.Value)
	case types.OpLessThanEquals:
		return x.LessThanOrEqual(c.Value)
	case types.OpBetween:
		return between(x, c.Min, c.Max)
	case types.OpNotBetween:
		return !between(x, c.Min, c.Max)
	default:
		return false
	}
}

func between(x decimal.Decimal, lo, hi *decimal.Decimal) bool {
	if lo != nil && x.LessThan(*lo) {
		return false
	}
	if hi != nil && x.GreaterThan(*hi) {
		return false
	}
	return true
}

// TextComparison is a compiled string predicate.
type TextComparison struct {
	Op     types.Operator
	Value  string
	Values []string // IN/NOT_IN
}

// Matches applies the comparison to one scalar value.
func (c TextComparison) Matches(s string) bool {
	switch c.Op {
	case types.OpEquals:
		return s == c.Value
	case types.OpNotEquals:
		return s != c.Value
	case types.OpIn:
		return contains(c.Values, s)
	case types.OpNotIn:
		return !contains(c.Values, s)
	case types.OpContains:
		return strings.Contains(s, c.Value)
	case types.OpNotContains:
		return !strings.Contains(s, c.Value)
	case types.OpStartsWith:
		return strings.HasPrefix(s, c.Value)
	case types.OpEndsWith:
		return strings.HasSuffix(s, c.Value)
	default:
		return false
	}
}

// MatchesAny applies the comparison to an attribute that may be a collection.
// Positive operators need one matching element; negated operators need none.
// A scalar string with CONTAINS is a substring test; a collection with
// CONTAINS is a membership test.
func (c TextComparison) MatchesAny(values []any) bool {
	negated := isNegated(c.Op)
	positive := c
	if negated {
		positive.Op = positiveOf(c.Op)
	}

	hit := false
	for _, v := range values {
		if arr, ok := v.([]any); ok {
			for _, elem := range arr {
				s, err := ToText(elem)
				if err != nil {
					continue
				}
				if positive.Op == types.OpContains {
					if s == positive.Value {
						hit = true
					}
				} else if positive.Matches(s) {
					hit = true
				}
			}
			continue
		}
		s, err := ToText(v)
		if err != nil {
			continue
		}
		if positive.Matches(s) {
			hit = true
		}
	}
	if negated {
		return !hit
	}
	return hit
}

func isNegated(op types.Operator) bool {
	switch op {
	case types.OpNotEquals, types.OpNotIn, types.OpNotContains:
		return true
	}
	return false
}

func positiveOf(op types.Operator) types.Operator {
	switch op {
	case types.OpNotEquals:
		return types.OpEquals
	case types.OpNotIn:
		return types.OpIn
	case types.OpNotContains:
		return types.OpContains
	}
	return op
}

// IsNumericOperator reports whether op belongs to the numeric family only.
func IsNumericOperator(op types.Operator) bool {
	switch op {
	case types.OpGreaterThan, types.OpGreaterThanEquals, types.OpLessThan, types.OpLessThanEquals,
		types.OpBetween, types.OpNotBetween:
		return true
	}
	return false
}

// IsTextOperator reports whether op is supported by text comparisons.
func IsTextOperator(op types.Operator) bool {
	switch op {
	case types.OpEquals, types.OpNotEquals, types.OpIn, types.OpNotIn, types.OpContains,
		types.OpNotContains, types.OpStartsWith, types.OpEndsWith:
		return true
	}
	return false
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
