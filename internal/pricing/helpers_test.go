// internal/pricing/helpers_test.go
package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/solatis/pricekeeper/internal/rules"
	"github.com/solatis/pricekeeper/internal/types"
)

var monday = time.Date(2026, 10, 12, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

// activeRule returns an ACTIVE unscoped rule with one always-true condition
// and the given action.
func activeRule(id string, priority int, at types.ActionType, params string) *types.PricingRule {
	return &types.PricingRule{
		ID:       types.RuleID(id),
		Name:     "rule " + id,
		Type:     types.RuleTypeDiscount,
		Status:   types.StatusActive,
		Priority: priority,
		Version:  1,
		Conditions: []types.RuleCondition{
			{Type: types.ConditionCustom, Sequence: 1, Enabled: true},
		},
		Actions: []types.RuleAction{
			{Type: at, Parameters: types.RawParams(params), Sequence: 1, Enabled: true},
		},
	}
}

func request(price string) *rules.EvaluationContext {
	return &rules.EvaluationContext{
		ProductID:   "prod-1",
		SellerID:    "seller-1",
		SiteID:      "site-1",
		CategoryID:  "cat-1",
		BasePrice:   d(price),
		Quantity:    1,
		EvaluatedAt: monday,
	}
}

// memStore returns every rule it holds; the resolver does the filtering.
// byIDOnly rules are reachable through GetRule only.
type memStore struct {
	rules    []*types.PricingRule
	byIDOnly []*types.PricingRule
	err      error
	getCalls int
}

func (m *memStore) FindApplicable(ctx context.Context, q types.ApplicabilityQuery) ([]*types.PricingRule, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]*types.PricingRule, len(m.rules))
	copy(out, m.rules)
	return out, nil
}

func (m *memStore) GetRule(ctx context.Context, id types.RuleID) (*types.PricingRule, error) {
	m.getCalls++
	if m.err != nil {
		return nil, m.err
	}
	for _, r := range append(append([]*types.PricingRule(nil), m.rules...), m.byIDOnly...) {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", types.ErrRuleNotFound, id)
}

var errStoreDown = errors.New("store down")

func ids(list []*rules.CompiledRule) []types.RuleID {
	out := make([]types.RuleID, len(list))
	for i, r := range list {
		out[i] = r.ID()
	}
	return out
}
