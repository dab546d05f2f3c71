// internal/rules/compile.go
package rules

import (
	"fmt"
	"sort"

	"github.com/solatis/pricekeeper/internal/types"
)

/*
 * Rule compilation.
 *
 * Compile turns a types.PricingRule into an immutable CompiledRule:
 *   1. Reject duplicate sequence numbers (conditions and actions separately)
 *   2. Enforce resource limits
 *   3. Parse every enabled condition value and action parameter document
 *      into its typed variant
 *   4. Order actions by ascending sequence
 *   5. Order conditions by ascending cost, stable on sequence
 *
 * Disabled conditions and actions are validated for sequence uniqueness but
 * otherwise dropped. The compiled rule keeps a deep copy of its source, so
 * later edits to the stored rule cannot leak into an evaluation in flight.
 */

// CompiledCondition is a parsed, cost-annotated condition.
type CompiledCondition struct {
	ID       string
	Type     types.ConditionType
	Sequence int
	Cost     int
	Check    conditionCheck
}

// CompiledAction is a parsed pipeline step.
type CompiledAction struct {
	ID       string
	Type     types.ActionType
	Sequence int
	Step     actionStep
}

// CompiledRule is an immutable, evaluation-ready snapshot of a rule.
type CompiledRule struct {
	Rule       *types.PricingRule
	Conditions []CompiledCondition // ascending cost
	Actions    []CompiledAction    // ascending sequence
}

// ID returns the source rule id.
func (c *CompiledRule) ID() types.RuleID { return c.Rule.ID }

// Name returns the source rule name.
func (c *CompiledRule) Name() string { return c.Rule.Name }

// Priority returns the source rule priority.
func (c *CompiledRule) Priority() int { return c.Rule.Priority }

// Version returns the source rule version.
func (c *CompiledRule) Version() int64 { return c.Rule.Version }

// Compile validates and pre-processes a rule for evaluation.
func Compile(rule *types.PricingRule) (*CompiledRule, error) {
	if rule == nil {
		return nil, fmt.Errorf("%w: nil rule", types.ErrValidation)
	}
	if len(rule.Conditions) > types.MaxConditionsPerRule {
		return nil, fmt.Errorf("%w: %d conditions exceeds limit %d", types.ErrValidation, len(rule.Conditions), types.MaxConditionsPerRule)
	}
	if len(rule.Actions) > types.MaxActionsPerRule {
		return nil, fmt.Errorf("%w: %d actions exceeds limit %d", types.ErrValidation, len(rule.Actions), types.MaxActionsPerRule)
	}

	snapshot := rule.Clone()
	compiled := &CompiledRule{
		Rule:       snapshot,
		Conditions: make([]CompiledCondition, 0, len(snapshot.Conditions)),
		Actions:    make([]CompiledAction, 0, len(snapshot.Actions)),
	}

	seen := make(map[int]bool, len(snapshot.Conditions))
	for _, cond := range snapshot.Conditions {
		if seen[cond.Sequence] {
			return nil, fmt.Errorf("%w: condition sequence %d", types.ErrDuplicateSequence, cond.Sequence)
		}
		seen[cond.Sequence] = true
		if !cond.Enabled {
			continue
		}
		cc, err := compileCondition(cond)
		if err != nil {
			return nil, fmt.Errorf("condition %d (%s): %w", cond.Sequence, cond.Type, err)
		}
		compiled.Conditions = append(compiled.Conditions, cc)
	}

	seen = make(map[int]bool, len(snapshot.Actions))
	for _, act := range snapshot.Actions {
		if seen[act.Sequence] {
			return nil, fmt.Errorf("%w: action sequence %d", types.ErrDuplicateSequence, act.Sequence)
		}
		seen[act.Sequence] = true
		if !act.Enabled {
			continue
		}
		step, err := parseAction(snapshot, act)
		if err != nil {
			return nil, fmt.Errorf("action %d (%s): %w", act.Sequence, act.Type, err)
		}
		compiled.Actions = append(compiled.Actions, CompiledAction{
			ID:       act.ID,
			Type:     act.Type,
			Sequence: act.Sequence,
			Step:     step,
		})
	}

	sort.Slice(compiled.Actions, func(i, j int) bool {
		return compiled.Actions[i].Sequence < compiled.Actions[j].Sequence
	})

	// Sequence first so equal-cost conditions keep authoring order.
	sort.Slice(compiled.Conditions, func(i, j int) bool {
		return compiled.Conditions[i].Sequence < compiled.Conditions[j].Sequence
	})
	sort.SliceStable(compiled.Conditions, func(i, j int) bool {
		return compiled.Conditions[i].Cost < compiled.Conditions[j].Cost
	})

	return compiled, nil
}

func compileCondition(cond types.RuleCondition) (CompiledCondition, error) {
	check, err := parseCondition(cond)
	if err != nil {
		return CompiledCondition{}, err
	}

	var path []types.PathSegment
	if ac, ok := check.(attributeCheck); ok {
		path = ac.path
	}

	return CompiledCondition{
		ID:       cond.ID,
		Type:     cond.Type,
		Sequence: cond.Sequence,
		Cost:     CalculateConditionCost(cond.Type, cond.Operator, path),
		Check:    check,
	}, nil
}
