// internal/rules/cost.go
package rules

import "github.com/solatis/pricekeeper/internal/types"

/*
 * Cost model for condition ordering.
 *
 * Conditions are ANDed, so the first false condition ends evaluation.
 * Ordering cheap in-memory checks before external lookups means a rule
 * that fails its price range never pays for a competitor price fetch.
 *
 * cost = type_cost + operator_cost + path_cost
 *
 * Type costs separate three tiers: arithmetic on the context (< 100),
 * attribute traversal (100s), and external lookups (1000s). Competitor
 * prices are the most expensive source because they leave the building.
 */

const (
	// In-memory checks
	CostCustom      = 1
	CostPriceRange  = 5
	CostMarginRange = 8
	CostTimeBased   = 10

	// Attribute traversal
	CostProductAttribute = 64
	CostPathSegment      = 16

	// External lookups
	CostCategoryAttribute = 512
	CostInventoryLevel    = 1024
	CostSalesVelocity     = 1024
	CostCompetitorPrice   = 2048

	// Operator base costs
	CostOpEquals  = 1
	CostOpRange   = 2
	CostOpIn      = 4
	CostOpContain = 8

	// Wildcard fan-out multiplier per wildcard segment
	WildcardMultiplier = 8
)

// CalculateConditionCost computes the ordering cost for a condition.
func CalculateConditionCost(condType types.ConditionType, op types.Operator, path []types.PathSegment) int {
	cost := typeCost(condType) + operatorCost(op)

	if len(path) > 0 {
		mult := 1
		segs := 0
		for _, seg := range path {
			if seg.Wildcard {
				mult *= WildcardMultiplier
			}
			segs++
		}
		cost += segs * CostPathSegment * mult
	}
	return cost
}

func typeCost(t types.ConditionType) int {
	switch t {
	case types.ConditionCustom:
		return CostCustom
	case types.ConditionPriceRange:
		return CostPriceRange
	case types.ConditionMarginRange:
		return CostMarginRange
	case types.ConditionTimeBased:
		return CostTimeBased
	case types.ConditionProductAttribute:
		return CostProductAttribute
	case types.ConditionCategoryAttribute:
		return CostCategoryAttribute
	case types.ConditionInventoryLevel:
		return CostInventoryLevel
	case types.ConditionSalesVelocity:
		return CostSalesVelocity
	case types.ConditionCompetitorPrice:
		return CostCompetitorPrice
	default:
		return CostCompetitorPrice
	}
}

func operatorCost(op types.Operator) int {
	switch op {
	case types.OpEquals, types.OpNotEquals:
		return CostOpEquals
	case types.OpGreaterThan, types.OpGreaterThanEquals, types.OpLessThan, types.OpLessThanEquals,
		types.OpBetween, types.OpNotBetween:
		return CostOpRange
	case types.OpIn, types.OpNotIn:
		return CostOpIn
	case types.OpContains, types.OpNotContains, types.OpStartsWith, types.OpEndsWith:
		return CostOpContain
	default:
		return CostOpEquals
	}
}
