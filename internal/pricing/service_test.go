// internal/pricing/service_test.go
package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/solatis/pricekeeper/internal/constraints"
	"github.com/solatis/pricekeeper/internal/rules"
	"github.com/solatis/pricekeeper/internal/types"
)

func newService(store RuleStore, opts ...Option) *Service {
	return NewService(NewResolver(store, nil, nil), rules.NewEngine(rules.Sources{}), opts...)
}

func TestEvaluate_FoldsAcrossRules(t *testing.T) {
	store := &memStore{rules: []*types.PricingRule{
		activeRule("b", 5, types.ActionApplyDiscountAmount, `{"amount":5}`),
		activeRule("a", 10, types.ActionApplyDiscountPercentage, `{"percentage":10}`),
	}}

	got, err := newService(store).Evaluate(context.Background(), request("100"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !got.FinalPrice.Equal(d("85")) {
		t.Errorf("FinalPrice = %s, want 85", got.FinalPrice)
	}
	if !got.OriginalPrice.Equal(d("100")) {
		t.Errorf("OriginalPrice = %s, want 100", got.OriginalPrice)
	}
	if len(got.Applied) != 2 {
		t.Fatalf("len(Applied) = %d, want 2", len(got.Applied))
	}
	if got.Applied[0].RuleID != "a" || got.Applied[1].RuleID != "b" {
		t.Errorf("Applied order = [%s %s], want [a b]", got.Applied[0].RuleID, got.Applied[1].RuleID)
	}
	if !got.Applied[1].OriginalPrice.Equal(d("90")) {
		t.Errorf("second rule OriginalPrice = %s, want 90 (folded)", got.Applied[1].OriginalPrice)
	}
}

func TestEvaluate_ZeroWorkingPriceReachesNextRule(t *testing.T) {
	zero := activeRule("a", 10, types.ActionSetPrice, `0`)
	below := activeRule("b", 5, types.ActionSetPrice, `7`)
	below.Conditions = []types.RuleCondition{
		{Type: types.ConditionPriceRange, Operator: types.OpLessThan, Value: types.RawParams(`1`), Sequence: 1, Enabled: true},
	}

	got, err := newService(&memStore{rules: []*types.PricingRule{zero, below}}).Evaluate(context.Background(), request("100"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !got.FinalPrice.Equal(d("7")) {
		t.Errorf("FinalPrice = %s, want 7", got.FinalPrice)
	}
	if len(got.Applied) != 2 {
		t.Errorf("len(Applied) = %d, want 2", len(got.Applied))
	}
}

func TestEvaluate_FailedRuleContributesNothing(t *testing.T) {
	store := &memStore{rules: []*types.PricingRule{
		activeRule("broken", 10, types.ActionApplyDiscountAmount, `{"amount":500}`),
		activeRule("ok", 5, types.ActionApplyDiscountPercentage, `{"percentage":10}`),
	}}

	got, err := newService(store).Evaluate(context.Background(), request("100"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !got.FinalPrice.Equal(d("90")) {
		t.Errorf("FinalPrice = %s, want 90", got.FinalPrice)
	}
	if len(got.Applied) != 1 || got.Applied[0].RuleID != "ok" {
		t.Errorf("Applied = %+v, want only rule ok", got.Applied)
	}
}

func TestEvaluate_HardFailures(t *testing.T) {
	svc := newService(&memStore{})
	bad := request("100")
	bad.ProductID = ""
	if _, err := svc.Evaluate(context.Background(), bad); !errors.Is(err, types.ErrInvalidContext) {
		t.Errorf("Evaluate(no product) error = %v, want ErrInvalidContext", err)
	}

	svc = newService(&memStore{err: errStoreDown})
	if _, err := svc.Evaluate(context.Background(), request("100")); !errors.Is(err, errStoreDown) {
		t.Errorf("Evaluate(store down) error = %v, want errStoreDown", err)
	}
}

func TestEvaluate_NoRules(t *testing.T) {
	got, err := newService(&memStore{}).Evaluate(context.Background(), request("42"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !got.FinalPrice.Equal(d("42")) || len(got.Applied) != 0 {
		t.Errorf("Evaluate() = (%s, %d applied), want (42, 0)", got.FinalPrice, len(got.Applied))
	}
}

func TestEvaluate_DefaultsEvaluationTime(t *testing.T) {
	ec := request("10")
	ec.EvaluatedAt = time.Time{}
	got, err := newService(&memStore{}, WithClock(func() time.Time { return monday })).Evaluate(context.Background(), ec)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !got.EvaluatedAt.Equal(monday) {
		t.Errorf("EvaluatedAt = %v, want %v", got.EvaluatedAt, monday)
	}
}

// Property-based test: cost 80 with a 20% minimum margin floors any lower price at exactly 100
func TestEvaluate_PropertyMarginFloor(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("price below floor becomes 100", prop.ForAll(
		func(cents int64) bool {
			rule := activeRule("floor", 1, types.ActionSetPrice, decimal.New(cents, -2).String())
			rule.MinimumMargin = dp("20")
			ec := request("150")
			ec.CostPrice = d("80")

			got, err := newService(&memStore{rules: []*types.PricingRule{rule}}).Evaluate(context.Background(), ec)
			if err != nil {
				return false
			}
			return got.FinalPrice.Equal(d("100"))
		},
		gen.Int64Range(0, 9999),
	))

	properties.TestingRun(t)
}

func TestEvaluate_SellerSiteBounds(t *testing.T) {
	withBounds := func(action string) *types.PricingRule {
		r := activeRule("bounded", 1, types.ActionSetPrice, action)
		r.MinimumPrice = dp("50")
		r.MaximumPrice = dp("200")
		r.SellerSiteConfigs = []types.SellerSiteConfig{
			{SellerID: "seller-1", SiteID: "site-1", MaximumPrice: dp("150"), Active: true},
			{SellerID: "seller-2", SiteID: "site-1", MaximumPrice: dp("60"), Active: true},
			{SellerID: "seller-1", SiteID: "site-1", MinimumPrice: dp("70"), Active: false},
		}
		return r
	}

	tests := []struct {
		name   string
		action string
		seller string
		want   string
	}{
		{"config max tighter than rule", "300", "seller-1", "150"},
		{"rule min applies, inactive config ignored", "10", "seller-1", "50"},
		{"in bounds unchanged", "120", "seller-1", "120"},
		{"other seller's config", "180", "seller-2", "60"},
		{"no config for seller", "300", "seller-3", "200"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec := request("100")
			ec.SellerID = tt.seller
			got, err := newService(&memStore{rules: []*types.PricingRule{withBounds(tt.action)}}).Evaluate(context.Background(), ec)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if !got.FinalPrice.Equal(d(tt.want)) {
				t.Errorf("FinalPrice = %s, want %s", got.FinalPrice, tt.want)
			}
		})
	}
}

func TestApplyConstraints(t *testing.T) {
	window := func(typ constraints.BlackoutType, adj *decimal.Decimal) *constraints.TimeConstraints {
		return &constraints.TimeConstraints{Blackouts: []constraints.BlackoutPeriod{{
			Type:                   typ,
			Start:                  monday.Add(-time.Hour),
			End:                    monday.Add(time.Hour),
			PriceAdjustmentPercent: adj,
		}}}
	}

	tests := []struct {
		name     string
		rule     func(r *types.PricingRule)
		cost     string
		region   string
		start    string
		proposed string
		want     string
	}{
		{
			name: "no constraints",
			rule: func(r *types.PricingRule) {},
			start: "100", proposed: "87.345", want: "87.345",
		},
		{
			name: "discount-only blackout blocks decrease",
			rule: func(r *types.PricingRule) { r.TimeConstraints = window(constraints.BlackoutDiscountOnly, nil) },
			start: "100", proposed: "90", want: "100",
		},
		{
			name: "discount-only blackout allows increase",
			rule: func(r *types.PricingRule) { r.TimeConstraints = window(constraints.BlackoutDiscountOnly, nil) },
			start: "100", proposed: "110", want: "110",
		},
		{
			name: "increase-only blackout blocks increase",
			rule: func(r *types.PricingRule) { r.TimeConstraints = window(constraints.BlackoutIncreaseOnly, nil) },
			start: "100", proposed: "110", want: "100",
		},
		{
			name: "blackout price adjustment",
			rule: func(r *types.PricingRule) { r.TimeConstraints = window(constraints.BlackoutFull, dp("5")) },
			start: "100", proposed: "70", want: "105",
		},
		{
			name: "margin ceiling",
			rule: func(r *types.PricingRule) { r.MaximumMargin = dp("25") },
			cost: "60", start: "100", proposed: "100", want: "80",
		},
		{
			name: "category margin override",
			rule: func(r *types.PricingRule) {
				r.MinimumMargin = dp("10")
				r.MarginConstraints = &constraints.MarginConstraints{
					CategoryOverrides: map[string]constraints.Bounds{"cat-1": {Min: dp("50")}},
				}
			},
			cost: "50", start: "100", proposed: "60", want: "100",
		},
		{
			name: "cost based margin floor",
			rule: func(r *types.PricingRule) {
				r.MinimumMargin = dp("20")
				r.MarginConstraints = &constraints.MarginConstraints{Basis: constraints.BasisCost}
			},
			cost: "80", start: "100", proposed: "90", want: "96",
		},
		{
			name: "margin without cost unchanged",
			rule: func(r *types.PricingRule) { r.MinimumMargin = dp("50") },
			start: "100", proposed: "60", want: "60",
		},
		{
			name: "max change from starting price",
			rule: func(r *types.PricingRule) { r.PriceConstraints = &constraints.PriceConstraints{MaxChangePercent: dp("10")} },
			start: "100", proposed: "50", want: "90",
		},
		{
			name: "regional adjustment",
			rule: func(r *types.PricingRule) {
				r.PriceConstraints = &constraints.PriceConstraints{RegionalAdjustments: map[string]decimal.Decimal{"EU": d("10")}}
			},
			region: "EU", start: "100", proposed: "100", want: "110",
		},
		{
			name: "region then round up",
			rule: func(r *types.PricingRule) {
				r.PriceConstraints = &constraints.PriceConstraints{
					RegionalAdjustments: map[string]decimal.Decimal{"EU": d("5")},
					Rounding:            constraints.RoundingUp,
					Denomination:        dp("1"),
				}
			},
			region: "EU", start: "100", proposed: "95", want: "100",
		},
		{
			name: "custom price ending",
			rule: func(r *types.PricingRule) {
				r.PriceConstraints = &constraints.PriceConstraints{Rounding: constraints.RoundingCustom, PriceEnding: dp("0.99")}
			},
			start: "15", proposed: "12.80", want: "12.99",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := activeRule("c", 1, types.ActionCustom, `{}`)
			tt.rule(r)
			ec := request("100")
			ec.Region = tt.region
			if tt.cost != "" {
				ec.CostPrice = d(tt.cost)
			}
			got := ApplyConstraints(r, ec, d(tt.start), d(tt.proposed))
			if !got.Equal(d(tt.want)) {
				t.Errorf("ApplyConstraints() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEvaluate_SlotCapacity(t *testing.T) {
	rule := activeRule("lunch", 1, types.ActionApplyDiscountPercentage, `{"percentage":10}`)
	rule.TimeConstraints = &constraints.TimeConstraints{Slots: []constraints.TimeSlot{{
		Name:     "lunch",
		Window:   constraints.Window{Start: 11 * 3600, End: 14 * 3600},
		Capacity: 1,
	}}}
	svc := newService(&memStore{rules: []*types.PricingRule{rule}})

	first, err := svc.Evaluate(context.Background(), request("100"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(first.Applied) != 1 {
		t.Fatalf("first Evaluate applied %d rules, want 1", len(first.Applied))
	}

	second, err := svc.Evaluate(context.Background(), request("100"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(second.Applied) != 0 || !second.FinalPrice.Equal(d("100")) {
		t.Errorf("second Evaluate = (%s, %d applied), want (100, 0) after capacity spent", second.FinalPrice, len(second.Applied))
	}

	nextDay := request("100")
	nextDay.EvaluatedAt = monday.Add(24 * time.Hour)
	third, err := svc.Evaluate(context.Background(), nextDay)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(third.Applied) != 1 {
		t.Errorf("next day applied %d rules, want 1 (capacity resets daily)", len(third.Applied))
	}
}
