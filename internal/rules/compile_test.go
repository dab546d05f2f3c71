// internal/rules/compile_test.go
package rules

import (
	"errors"
	"testing"

	"github.com/solatis/pricekeeper/internal/types"
)

func TestCompile_SimpleRule(t *testing.T) {
	rule := newRule(
		[]types.RuleCondition{cond(1, types.ConditionPriceRange, types.OpBetween, "", `{"min":10,"max":100}`)},
		[]types.RuleAction{act(1, types.ActionApplyDiscountPercentage, `{"percentage":10}`)},
	)

	compiled := mustCompile(t, rule)

	if compiled.ID() != "rule-001" {
		t.Errorf("ID() = %v, want %v", compiled.ID(), "rule-001")
	}
	if compiled.Name() != "test-rule" {
		t.Errorf("Name() = %v, want %v", compiled.Name(), "test-rule")
	}
	if len(compiled.Conditions) != 1 {
		t.Fatalf("len(Conditions) = %v, want 1", len(compiled.Conditions))
	}
	if len(compiled.Actions) != 1 {
		t.Fatalf("len(Actions) = %v, want 1", len(compiled.Actions))
	}
	if _, ok := compiled.Conditions[0].Check.(priceRangeCheck); !ok {
		t.Errorf("Check = %T, want priceRangeCheck", compiled.Conditions[0].Check)
	}
}

func TestCompile_SnapshotIsIsolated(t *testing.T) {
	rule := newRule(nil, []types.RuleAction{act(1, types.ActionSetPrice, `{"price":10}`)})
	compiled := mustCompile(t, rule)

	rule.Name = "renamed"
	rule.Actions[0].Sequence = 99

	if compiled.Name() != "test-rule" {
		t.Errorf("Name() = %q after source edit, want test-rule", compiled.Name())
	}
	if compiled.Rule.Actions[0].Sequence != 1 {
		t.Errorf("snapshot action sequence changed with source")
	}
}

func TestCompile_ActionsOrderedBySequence(t *testing.T) {
	rule := newRule(nil, []types.RuleAction{
		act(3, types.ActionCustom, `{}`),
		act(1, types.ActionSetPrice, `{"price":10}`),
		act(2, types.ActionApplyDiscountAmount, `{"amount":1}`),
	})

	compiled := mustCompile(t, rule)

	for i, want := range []int{1, 2, 3} {
		if compiled.Actions[i].Sequence != want {
			t.Errorf("Actions[%d].Sequence = %d, want %d", i, compiled.Actions[i].Sequence, want)
		}
	}
}

func TestCompile_ConditionsOrderedByCost(t *testing.T) {
	rule := newRule([]types.RuleCondition{
		cond(1, types.ConditionCompetitorPrice, types.OpLessThan, "acme", `{"value":100}`),
		cond(2, types.ConditionInventoryLevel, types.OpGreaterThan, "", `10`),
		cond(3, types.ConditionProductAttribute, types.OpEquals, "color", `"red"`),
		cond(4, types.ConditionPriceRange, types.OpBetween, "", `{"min":1,"max":2}`),
		cond(5, types.ConditionPriceRange, types.OpGreaterThan, "", `1`),
	}, []types.RuleAction{act(1, types.ActionCustom, `{}`)})

	compiled := mustCompile(t, rule)

	want := []types.ConditionType{
		types.ConditionPriceRange,
		types.ConditionPriceRange,
		types.ConditionProductAttribute,
		types.ConditionInventoryLevel,
		types.ConditionCompetitorPrice,
	}
	for i, ct := range want {
		if compiled.Conditions[i].Type != ct {
			t.Errorf("Conditions[%d].Type = %s, want %s", i, compiled.Conditions[i].Type, ct)
		}
	}
	// equal cost keeps authoring order
	if compiled.Conditions[0].Sequence != 4 || compiled.Conditions[1].Sequence != 5 {
		t.Errorf("equal-cost conditions reordered: %d, %d", compiled.Conditions[0].Sequence, compiled.Conditions[1].Sequence)
	}
}

func TestCompile_DisabledEntriesDropped(t *testing.T) {
	disabled := cond(2, types.ConditionCustom, "", "", `{}`)
	disabled.Enabled = false
	disabledAct := act(2, types.ActionSetPrice, `{"price":1}`)
	disabledAct.Enabled = false

	rule := newRule(
		[]types.RuleCondition{cond(1, types.ConditionCustom, "", "", `{}`), disabled},
		[]types.RuleAction{act(1, types.ActionCustom, `{}`), disabledAct},
	)

	compiled := mustCompile(t, rule)
	if len(compiled.Conditions) != 1 || len(compiled.Actions) != 1 {
		t.Errorf("compiled %d conditions / %d actions, want 1 / 1", len(compiled.Conditions), len(compiled.Actions))
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		conds   []types.RuleCondition
		acts    []types.RuleAction
		wantErr error
	}{
		{
			name:    "duplicate action sequence",
			acts:    []types.RuleAction{act(1, types.ActionCustom, `{}`), act(1, types.ActionCustom, `{}`)},
			wantErr: types.ErrDuplicateSequence,
		},
		{
			name:    "duplicate condition sequence",
			conds:   []types.RuleCondition{cond(1, types.ConditionCustom, "", "", `{}`), cond(1, types.ConditionCustom, "", "", `{}`)},
			wantErr: types.ErrDuplicateSequence,
		},
		{
			name:    "unknown condition type",
			conds:   []types.RuleCondition{cond(1, "WEATHER", types.OpEquals, "", `1`)},
			wantErr: types.ErrUnknownConditionType,
		},
		{
			name:    "unknown action type",
			acts:    []types.RuleAction{act(1, "DOUBLE", `{}`)},
			wantErr: types.ErrUnknownActionType,
		},
		{
			name:    "text operator on price range",
			conds:   []types.RuleCondition{cond(1, types.ConditionPriceRange, types.OpContains, "", `1`)},
			wantErr: types.ErrInvalidOperator,
		},
		{
			name:    "between without bounds",
			conds:   []types.RuleCondition{cond(1, types.ConditionPriceRange, types.OpBetween, "", `{"value":1}`)},
			wantErr: types.ErrInvalidParameters,
		},
		{
			name:    "inverted range",
			conds:   []types.RuleCondition{cond(1, types.ConditionPriceRange, types.OpBetween, "", `{"min":5,"max":1}`)},
			wantErr: types.ErrInvalidParameters,
		},
		{
			name:    "misspelled parameter",
			acts:    []types.RuleAction{act(1, types.ActionApplyDiscountPercentage, `{"percentge":10}`)},
			wantErr: types.ErrInvalidParameters,
		},
		{
			name:    "discount over 100",
			acts:    []types.RuleAction{act(1, types.ActionApplyDiscountPercentage, `{"percentage":150}`)},
			wantErr: types.ErrInvalidParameters,
		},
		{
			name:    "negative price",
			acts:    []types.RuleAction{act(1, types.ActionSetPrice, `-1`)},
			wantErr: types.ErrInvalidParameters,
		},
		{
			name:    "competitor without id",
			acts:    []types.RuleAction{act(1, types.ActionMatchCompetitorPrice, `{}`)},
			wantErr: types.ErrInvalidParameters,
		},
		{
			name:    "inverted quantity range",
			acts:    []types.RuleAction{act(1, types.ActionQuantityDiscount, `{"minQuantity":5,"maxQuantity":2,"percentage":5}`)},
			wantErr: types.ErrInvalidParameters,
		},
		{
			name:    "bad time window",
			conds:   []types.RuleCondition{cond(1, types.ConditionTimeBased, "", "", `{"startTime":"25:00","endTime":"10:00"}`)},
			wantErr: types.ErrInvalidParameters,
		},
		{
			name:    "attribute path too deep",
			conds:   []types.RuleCondition{cond(1, types.ConditionProductAttribute, types.OpEquals, "a.b.c.d.e.f.g.h.i.j.k.l.m.n.o.p.q", `"x"`)},
			wantErr: types.ErrPathTooDeep,
		},
		{
			name: "too many IN values",
			conds: []types.RuleCondition{cond(1, types.ConditionProductAttribute, types.OpIn, "color",
				`[`+repeatJSON(`"x"`, types.MaxInOperatorValues+1)+`]`)},
			wantErr: types.ErrTooManyInValues,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(newRule(tt.conds, tt.acts))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Compile() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCompile_SetMarginUsesRuleBasis(t *testing.T) {
	rule := newRule(nil, []types.RuleAction{act(1, types.ActionSetMargin, `{"margin":25}`)})
	compiled := mustCompile(t, rule)

	step, ok := compiled.Actions[0].Step.(setMarginStep)
	if !ok {
		t.Fatalf("Step = %T, want setMarginStep", compiled.Actions[0].Step)
	}
	if step.basis != "SELLING_PRICE_BASED" {
		t.Errorf("basis = %s, want SELLING_PRICE_BASED", step.basis)
	}

	override := newRule(nil, []types.RuleAction{act(1, types.ActionSetMargin, `{"margin":150,"basis":"cost_based"}`)})
	compiled = mustCompile(t, override)
	if s := compiled.Actions[0].Step.(setMarginStep); s.basis != "COST_BASED" {
		t.Errorf("basis = %s, want COST_BASED", s.basis)
	}

	if _, err := Compile(newRule(nil, []types.RuleAction{act(1, types.ActionSetMargin, `{"margin":100}`)})); !errors.Is(err, types.ErrInvalidParameters) {
		t.Errorf("Compile() error = %v, want ErrInvalidParameters for 100%% selling margin", err)
	}
}

func repeatJSON(item string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ","
		}
		out += item
	}
	return out
}
