// internal/rules/helpers_test.go
package rules

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/solatis/pricekeeper/internal/types"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func raw(s string) types.RawParams {
	return types.RawParams(s)
}

func cond(seq int, ct types.ConditionType, op types.Operator, attr, value string) types.RuleCondition {
	return types.RuleCondition{Type: ct, Operator: op, Attribute: attr, Value: raw(value), Sequence: seq, Enabled: true}
}

func act(seq int, at types.ActionType, params string) types.RuleAction {
	return types.RuleAction{Type: at, Parameters: raw(params), Sequence: seq, Enabled: true}
}

func newRule(conds []types.RuleCondition, acts []types.RuleAction) *types.PricingRule {
	return &types.PricingRule{
		ID:         "rule-001",
		Name:       "test-rule",
		Type:       types.RuleTypeDiscount,
		Status:     types.StatusActive,
		Priority:   1,
		Conditions: conds,
		Actions:    acts,
	}
}

func mustCompile(t *testing.T, r *types.PricingRule) *CompiledRule {
	t.Helper()
	c, err := Compile(r)
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}
	return c
}

func newContext(price string) *EvaluationContext {
	return &EvaluationContext{
		ProductID:   "prod-1",
		SellerID:    "seller-1",
		SiteID:      "site-1",
		CategoryID:  "cat-1",
		BasePrice:   d(price),
		Quantity:    1,
		EvaluatedAt: time.Date(2026, 10, 12, 12, 0, 0, 0, time.UTC),
	}
}

type fakeCompetitors struct {
	prices map[string]decimal.Decimal
	err    error
	delay  time.Duration
	calls  int
}

func (f *fakeCompetitors) CompetitorPrice(ctx context.Context, productID, competitorID string) (decimal.Decimal, bool, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return decimal.Zero, false, ctx.Err()
		}
	}
	if f.err != nil {
		return decimal.Zero, false, f.err
	}
	p, ok := f.prices[competitorID]
	return p, ok, nil
}

type fakeInventory struct {
	level int
	calls int
}

func (f *fakeInventory) InventoryLevel(ctx context.Context, productID, sellerID, siteID string) (int, error) {
	f.calls++
	return f.level, nil
}

type fakeBundles struct {
	discounts map[string]decimal.Decimal
}

func (f *fakeBundles) BundleDiscountPercent(ctx context.Context, bundleID, productID string) (decimal.Decimal, bool, error) {
	p, ok := f.discounts[bundleID]
	return p, ok, nil
}

type fakeVelocity struct {
	velocity decimal.Decimal
}

func (f *fakeVelocity) SalesVelocity(ctx context.Context, productID, sellerID, siteID string) (decimal.Decimal, error) {
	return f.velocity, nil
}

type fakeCategories struct {
	attrs map[string]map[string]any
	calls int
}

func (f *fakeCategories) CategoryAttributes(ctx context.Context, categoryID string) (map[string]any, error) {
	f.calls++
	return f.attrs[categoryID], nil
}

type countingObserver struct {
	conditions map[string]int
	actions    map[string]int
	lookups    map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{conditions: map[string]int{}, actions: map[string]int{}, lookups: map[string]int{}}
}

func (o *countingObserver) ConditionFailed(t string)   { o.conditions[t]++ }
func (o *countingObserver) ActionFailed(t string)      { o.actions[t]++ }
func (o *countingObserver) LookupUnavailable(s string) { o.lookups[s]++ }
