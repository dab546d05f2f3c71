// internal/rules/conditions.go
package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/solatis/pricekeeper/internal/constraints"
	"github.com/solatis/pricekeeper/internal/types"
)

/*
 * Condition variants.
 *
 * One struct per condition type, produced by parseCondition at compile time
 * and dispatched with a type switch in checkCondition. Each check returns
 * (matched, error); the caller turns any error into a logged, counted
 * false so one broken condition cannot fail the whole evaluation.
 */

// conditionCheck is the closed set of compiled condition variants.
type conditionCheck interface {
	conditionType() types.ConditionType
}

const (
	relativeBelow = "BELOW"
	relativeAbove = "ABOVE"
)

type attributeScope int

const (
	productScope attributeScope = iota
	categoryScope
)

type priceRangeCheck struct{ cmp NumericComparison }

type marginRangeCheck struct{ cmp NumericComparison }

type inventoryCheck struct{ cmp NumericComparison }

type salesVelocityCheck struct{ cmp NumericComparison }

type competitorCheck struct {
	competitorID string
	relative     string             // BELOW/ABOVE the working price, or empty
	cmp          *NumericComparison // threshold on the competitor price, or nil
}

type timeWindowCheck struct {
	window   constraints.Window
	location string // IANA name; empty uses the evaluation time's own location
}

type attributeCheck struct {
	scope   attributeScope
	path    []types.PathSegment
	numeric *NumericComparison
	text    *TextComparison
}

type customCheck struct{ params types.RawParams }

func (priceRangeCheck) conditionType() types.ConditionType    { return types.ConditionPriceRange }
func (marginRangeCheck) conditionType() types.ConditionType   { return types.ConditionMarginRange }
func (inventoryCheck) conditionType() types.ConditionType     { return types.ConditionInventoryLevel }
func (salesVelocityCheck) conditionType() types.ConditionType { return types.ConditionSalesVelocity }
func (competitorCheck) conditionType() types.ConditionType    { return types.ConditionCompetitorPrice }
func (timeWindowCheck) conditionType() types.ConditionType    { return types.ConditionTimeBased }
func (customCheck) conditionType() types.ConditionType        { return types.ConditionCustom }
func (c attributeCheck) conditionType() types.ConditionType {
	if c.scope == categoryScope {
		return types.ConditionCategoryAttribute
	}
	return types.ConditionProductAttribute
}

var errCostUnknown = errors.New("cost price unknown")

// checkCondition evaluates one compiled condition.
func (e *Engine) checkCondition(ctx context.Context, cond CompiledCondition, ec *EvaluationContext) (bool, error) {
	switch c := cond.Check.(type) {
	case priceRangeCheck:
		return c.cmp.Matches(ec.Price()), nil

	case marginRangeCheck:
		m, ok := constraints.CostMargin(ec.Price(), ec.CostPrice)
		if !ok {
			return false, errCostUnknown
		}
		return c.cmp.Matches(m), nil

	case inventoryCheck:
		level, err := e.inventoryLevel(ctx, ec)
		if err != nil {
			return false, err
		}
		return c.cmp.Matches(decimalFromInt(level)), nil

	case salesVelocityCheck:
		v, err := e.salesVelocity(ctx, ec)
		if err != nil {
			return false, err
		}
		return c.cmp.Matches(v), nil

	case competitorCheck:
		p, err := e.competitorPrice(ctx, ec, c.competitorID)
		if err != nil {
			return false, err
		}
		switch c.relative {
		case relativeBelow:
			if !p.LessThan(ec.Price()) {
				return false, nil
			}
		case relativeAbove:
			if !p.GreaterThan(ec.Price()) {
				return false, nil
			}
		}
		if c.cmp != nil {
			return c.cmp.Matches(p), nil
		}
		return true, nil

	case timeWindowCheck:
		at := ec.EvaluatedAt
		if c.location != "" {
			loc, err := constraints.LoadLocation(c.location)
			if err != nil {
				return false, err
			}
			at = at.In(loc)
		}
		return c.window.StrictlyContains(constraints.ClockOf(at)), nil

	case attributeCheck:
		var data any = ec.Attributes
		if c.scope == categoryScope {
			attrs, err := e.categoryAttributes(ctx, ec)
			if err != nil {
				return false, err
			}
			data = attrs
		}
		return c.matches(data)

	case customCheck:
		return true, nil

	default:
		return false, fmt.Errorf("%w: %T", types.ErrUnknownConditionType, cond.Check)
	}
}

// matches resolves the attribute path and applies the comparison.
// A missing attribute never matches, negated operators included.
func (c attributeCheck) matches(data any) (bool, error) {
	values := ResolveAll(c.path, data)
	if len(values) == 0 {
		return false, fmt.Errorf("%w: %s", types.ErrFieldNotFound, FormatPath(c.path))
	}

	if c.numeric != nil {
		for _, v := range values {
			d, err := ToDecimal(v)
			if err != nil {
				continue
			}
			if c.numeric.Matches(d) {
				return true, nil
			}
		}
		return false, nil
	}
	return c.text.MatchesAny(values), nil
}
