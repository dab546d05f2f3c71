package rules

import (
	"github.com/shopspring/decimal"
	"github.com/solatis/pricekeeper/internal/constraints"
	"github.com/solatis/pricekeeper/internal/types"
)

// Result is the outcome of applying one rule.
type Result struct {
	RuleID   types.RuleID   `json:"rule_id"`
	RuleName string         `json:"rule_name"`
	RuleType types.RuleType `json:"rule_type"`

	OriginalPrice    decimal.Decimal  `json:"original_price"`
	AdjustedPrice    decimal.Decimal  `json:"adjusted_price"`
	DiscountAmount   decimal.Decimal  `json:"discount_amount"`             // original - adjusted; negative for increases
	MarginPercentage *decimal.Decimal `json:"margin_percentage,omitempty"` // cost based; nil when cost is unknown

	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewResult builds a Result, deriving the discount and margin.
func NewResult(rule *CompiledRule, original, adjusted, cost decimal.Decimal, meta map[string]any) Result {
	r := Result{
		RuleID:         rule.ID(),
		RuleName:       rule.Name(),
		RuleType:       rule.Rule.Type,
		OriginalPrice:  original,
		AdjustedPrice:  adjusted,
		DiscountAmount: original.Sub(adjusted),
		Metadata:       meta,
	}
	if m, ok := constraints.CostMargin(adjusted, cost); ok {
		r.MarginPercentage = &m
	}
	return r
}

// WithAdjustedPrice returns a copy of r re-derived for a constrained price.
func (r Result) WithAdjustedPrice(p, cost decimal.Decimal) Result {
	r.AdjustedPrice = p
	r.DiscountAmount = r.OriginalPrice.Sub(p)
	r.MarginPercentage = nil
	if m, ok := constraints.CostMargin(p, cost); ok {
		r.MarginPercentage = &m
	}
	return r
}
