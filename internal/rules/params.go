// internal/rules/params.go
package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/solatis/pricekeeper/internal/constraints"
	"github.com/solatis/pricekeeper/internal/types"
)

/*
 * Parameter parsing for condition values and action parameters.
 *
 * Every JSON document is decoded exactly once, inside Compile. Unknown keys
 * in object documents are rejected so a typo ("percentge") fails at
 * authoring time instead of silently producing a no-op rule.
 *
 * Numeric condition values accept three shapes:
 *   {"min": 10, "max": 20}    range (BETWEEN/NOT_BETWEEN, or one end as threshold)
 *   {"value": 10}             threshold
 *   10 or "10"                bare threshold
 */

func decodeStrict(raw types.RawParams, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidParameters, err)
	}
	return nil
}

func isObject(raw types.RawParams) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func isEmpty(raw types.RawParams) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

type rangeValue struct {
	Min   *decimal.Decimal `json:"min"`
	Max   *decimal.Decimal `json:"max"`
	Value *decimal.Decimal `json:"value"`
}

// parseNumeric compiles a numeric condition value for op.
// An empty operator defaults to BETWEEN for ranges and EQUALS for thresholds.
func parseNumeric(op types.Operator, raw types.RawParams) (NumericComparison, error) {
	if isEmpty(raw) {
		return NumericComparison{}, fmt.Errorf("%w: missing numeric value", types.ErrInvalidParameters)
	}

	var rv rangeValue
	if isObject(raw) {
		if err := decodeStrict(raw, &rv); err != nil {
			return NumericComparison{}, err
		}
	} else {
		var d decimal.Decimal
		if err := json.Unmarshal(raw, &d); err != nil {
			return NumericComparison{}, fmt.Errorf("%w: %v", types.ErrInvalidParameters, err)
		}
		rv.Value = &d
	}

	if op == "" {
		if rv.Min != nil || rv.Max != nil {
			op = types.OpBetween
		} else {
			op = types.OpEquals
		}
	}
	if !IsNumericOperator(op) && op != types.OpEquals && op != types.OpNotEquals {
		return NumericComparison{}, fmt.Errorf("%w: %s", types.ErrInvalidOperator, op)
	}

	cmp := NumericComparison{Op: op}
	switch op {
	case types.OpBetween, types.OpNotBetween:
		if rv.Min == nil && rv.Max == nil {
			return NumericComparison{}, fmt.Errorf("%w: %s needs min and/or max", types.ErrInvalidParameters, op)
		}
		if rv.Min != nil && rv.Max != nil && rv.Min.GreaterThan(*rv.Max) {
			return NumericComparison{}, fmt.Errorf("%w: min %s exceeds max %s", types.ErrInvalidParameters, rv.Min, rv.Max)
		}
		cmp.Min, cmp.Max = rv.Min, rv.Max
	default:
		threshold := rv.Value
		if threshold == nil {
			switch op {
			case types.OpGreaterThan, types.OpGreaterThanEquals:
				threshold = rv.Min
			case types.OpLessThan, types.OpLessThanEquals:
				threshold = rv.Max
			}
		}
		if threshold == nil {
			return NumericComparison{}, fmt.Errorf("%w: %s needs a threshold value", types.ErrInvalidParameters, op)
		}
		cmp.Value = *threshold
	}
	return cmp, nil
}

// parseText compiles a text condition value for op.
// Accepts a scalar, an array (IN/NOT_IN), or {"value": x} / {"values": [...]}.
func parseText(op types.Operator, raw types.RawParams) (TextComparison, error) {
	if op == "" {
		op = types.OpEquals
	}
	if !IsTextOperator(op) {
		return TextComparison{}, fmt.Errorf("%w: %s", types.ErrInvalidOperator, op)
	}
	if isEmpty(raw) {
		return TextComparison{}, fmt.Errorf("%w: missing value", types.ErrInvalidParameters)
	}

	var decoded any
	if isObject(raw) {
		var obj struct {
			Value  any   `json:"value"`
			Values []any `json:"values"`
		}
		if err := decodeStrict(raw, &obj); err != nil {
			return TextComparison{}, err
		}
		if obj.Values != nil {
			decoded = obj.Values
		} else {
			decoded = obj.Value
		}
	} else if err := json.Unmarshal(raw, &decoded); err != nil {
		return TextComparison{}, fmt.Errorf("%w: %v", types.ErrInvalidParameters, err)
	}

	cmp := TextComparison{Op: op}
	switch op {
	case types.OpIn, types.OpNotIn:
		values, err := ToTexts(decoded)
		if err != nil {
			return TextComparison{}, fmt.Errorf("%w: %s values: %v", types.ErrInvalidParameters, op, err)
		}
		if len(values) > types.MaxInOperatorValues {
			return TextComparison{}, types.ErrTooManyInValues
		}
		cmp.Values = values
	default:
		s, err := ToText(decoded)
		if err != nil {
			return TextComparison{}, fmt.Errorf("%w: %s value: %v", types.ErrInvalidParameters, op, err)
		}
		cmp.Value = s
	}
	return cmp, nil
}

type timeValue struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Timezone  string `json:"timezone"`
}

func parseTimeWindow(raw types.RawParams) (timeWindowCheck, error) {
	var tv timeValue
	if err := decodeStrict(raw, &tv); err != nil {
		return timeWindowCheck{}, err
	}
	start, err := constraints.ParseClock(tv.StartTime)
	if err != nil {
		return timeWindowCheck{}, fmt.Errorf("%w: startTime: %v", types.ErrInvalidParameters, err)
	}
	end, err := constraints.ParseClock(tv.EndTime)
	if err != nil {
		return timeWindowCheck{}, fmt.Errorf("%w: endTime: %v", types.ErrInvalidParameters, err)
	}
	if start == end {
		return timeWindowCheck{}, fmt.Errorf("%w: startTime equals endTime", types.ErrInvalidParameters)
	}
	if tv.Timezone != "" {
		if _, err := constraints.LoadLocation(tv.Timezone); err != nil {
			return timeWindowCheck{}, fmt.Errorf("%w: timezone %q", types.ErrInvalidParameters, tv.Timezone)
		}
	}
	return timeWindowCheck{window: constraints.Window{Start: start, End: end}, location: tv.Timezone}, nil
}

type competitorValue struct {
	CompetitorID string           `json:"competitorId"`
	Relative     string           `json:"relative"`
	Min          *decimal.Decimal `json:"min"`
	Max          *decimal.Decimal `json:"max"`
	Value        *decimal.Decimal `json:"value"`
}

func parseCompetitorCondition(cond types.RuleCondition) (competitorCheck, error) {
	check := competitorCheck{competitorID: cond.Attribute}
	if isObject(cond.Value) {
		var cv competitorValue
		if err := decodeStrict(cond.Value, &cv); err != nil {
			return competitorCheck{}, err
		}
		if cv.CompetitorID != "" {
			check.competitorID = cv.CompetitorID
		}
		if cv.Relative != "" {
			rel := strings.ToUpper(cv.Relative)
			if rel != relativeBelow && rel != relativeAbove {
				return competitorCheck{}, fmt.Errorf("%w: relative must be BELOW or ABOVE, got %q", types.ErrInvalidParameters, cv.Relative)
			}
			check.relative = rel
		}
		if cv.Min != nil || cv.Max != nil || cv.Value != nil {
			stripped, _ := json.Marshal(rangeValue{Min: cv.Min, Max: cv.Max, Value: cv.Value})
			cmp, err := parseNumeric(cond.Operator, stripped)
			if err != nil {
				return competitorCheck{}, err
			}
			check.cmp = &cmp
		}
	} else if !isEmpty(cond.Value) {
		cmp, err := parseNumeric(cond.Operator, cond.Value)
		if err != nil {
			return competitorCheck{}, err
		}
		check.cmp = &cmp
	}

	if check.competitorID == "" {
		return competitorCheck{}, fmt.Errorf("%w: competitor id required (attribute or competitorId)", types.ErrInvalidParameters)
	}
	if check.relative == "" && check.cmp == nil {
		return competitorCheck{}, fmt.Errorf("%w: competitor condition needs relative or a threshold", types.ErrInvalidParameters)
	}
	return check, nil
}

func parseAttributeCondition(scope attributeScope, cond types.RuleCondition) (attributeCheck, error) {
	path, err := ParsePath(cond.Attribute)
	if err != nil {
		return attributeCheck{}, err
	}
	check := attributeCheck{scope: scope, path: path}
	if IsNumericOperator(cond.Operator) {
		cmp, err := parseNumeric(cond.Operator, cond.Value)
		if err != nil {
			return attributeCheck{}, err
		}
		check.numeric = &cmp
		return check, nil
	}
	cmp, err := parseText(cond.Operator, cond.Value)
	if err != nil {
		return attributeCheck{}, err
	}
	check.text = &cmp
	return check, nil
}

// Action parameter documents.

type setPriceParams struct {
	Price *decimal.Decimal `json:"price"`
	Value *decimal.Decimal `json:"value"`
}

type percentageParams struct {
	Percentage *decimal.Decimal `json:"percentage"`
}

type amountParams struct {
	Amount *decimal.Decimal `json:"amount"`
}

type marginParams struct {
	Margin *decimal.Decimal `json:"margin"`
	Basis  string           `json:"basis"`
}

type competitorParams struct {
	CompetitorID string           `json:"competitorId"`
	Percentage   *decimal.Decimal `json:"percentage"`
}

type bundleParams struct {
	BundleID string `json:"bundleId"`
}

type quantityParams struct {
	MinQuantity *int             `json:"minQuantity"`
	MaxQuantity *int             `json:"maxQuantity"`
	Percentage  *decimal.Decimal `json:"percentage"`
}

var hundred = decimal.NewFromInt(100)

func requirePercent(name string, p *decimal.Decimal) (decimal.Decimal, error) {
	if p == nil {
		return decimal.Zero, fmt.Errorf("%w: %s required", types.ErrInvalidParameters, name)
	}
	if p.IsNegative() || p.GreaterThan(hundred) {
		return decimal.Zero, fmt.Errorf("%w: %s must be in [0, 100], got %s", types.ErrInvalidParameters, name, p)
	}
	return *p, nil
}

func parseAction(rule *types.PricingRule, act types.RuleAction) (actionStep, error) {
	raw := act.Parameters
	switch act.Type {
	case types.ActionSetPrice:
		var p setPriceParams
		if isObject(raw) {
			if err := decodeStrict(raw, &p); err != nil {
				return nil, err
			}
		} else if !isEmpty(raw) {
			var d decimal.Decimal
			if err := json.Unmarshal(raw, &d); err != nil {
				return nil, fmt.Errorf("%w: %v", types.ErrInvalidParameters, err)
			}
			p.Price = &d
		}
		price := p.Price
		if price == nil {
			price = p.Value
		}
		if price == nil || price.IsNegative() {
			return nil, fmt.Errorf("%w: price must be a non-negative number", types.ErrInvalidParameters)
		}
		return setPriceStep{price: *price}, nil

	case types.ActionApplyDiscountPercentage:
		var p percentageParams
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		pct, err := requirePercent("percentage", p.Percentage)
		if err != nil {
			return nil, err
		}
		return discountPercentStep{percent: pct}, nil

	case types.ActionApplyDiscountAmount:
		var p amountParams
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		if p.Amount == nil || p.Amount.IsNegative() {
			return nil, fmt.Errorf("%w: amount must be a non-negative number", types.ErrInvalidParameters)
		}
		return discountAmountStep{amount: *p.Amount}, nil

	case types.ActionSetMargin:
		var p marginParams
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		if p.Margin == nil || p.Margin.IsNegative() {
			return nil, fmt.Errorf("%w: margin must be a non-negative number", types.ErrInvalidParameters)
		}
		basis := rule.MarginConstraints.EffectiveBasis()
		if p.Basis != "" {
			basis = constraints.MarginBasis(strings.ToUpper(p.Basis))
			if err := (&constraints.MarginConstraints{Basis: basis}).Validate().Err(); err != nil {
				return nil, fmt.Errorf("%w: %v", types.ErrInvalidParameters, err)
			}
		}
		if basis != constraints.BasisCost && basis != constraints.BasisMRP && !p.Margin.LessThan(hundred) {
			return nil, fmt.Errorf("%w: margin must be below 100 for %s", types.ErrInvalidParameters, basis)
		}
		return setMarginStep{margin: *p.Margin, basis: basis}, nil

	case types.ActionMatchCompetitorPrice:
		var p competitorParams
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		if p.CompetitorID == "" {
			return nil, fmt.Errorf("%w: competitorId required", types.ErrInvalidParameters)
		}
		if p.Percentage != nil {
			return nil, fmt.Errorf("%w: percentage is not used by %s", types.ErrInvalidParameters, act.Type)
		}
		return matchCompetitorStep{competitorID: p.CompetitorID}, nil

	case types.ActionBeatCompetitorPrice:
		var p competitorParams
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		if p.CompetitorID == "" {
			return nil, fmt.Errorf("%w: competitorId required", types.ErrInvalidParameters)
		}
		pct, err := requirePercent("percentage", p.Percentage)
		if err != nil {
			return nil, err
		}
		return beatCompetitorStep{competitorID: p.CompetitorID, percent: pct}, nil

	case types.ActionBundleDiscount:
		var p bundleParams
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		if p.BundleID == "" {
			return nil, fmt.Errorf("%w: bundleId required", types.ErrInvalidParameters)
		}
		return bundleDiscountStep{bundleID: p.BundleID}, nil

	case types.ActionQuantityDiscount:
		var p quantityParams
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		pct, err := requirePercent("percentage", p.Percentage)
		if err != nil {
			return nil, err
		}
		if p.MinQuantity != nil && *p.MinQuantity < 0 {
			return nil, fmt.Errorf("%w: minQuantity must not be negative", types.ErrInvalidParameters)
		}
		if p.MinQuantity != nil && p.MaxQuantity != nil && *p.MinQuantity > *p.MaxQuantity {
			return nil, fmt.Errorf("%w: minQuantity exceeds maxQuantity", types.ErrInvalidParameters)
		}
		return quantityDiscountStep{min: p.MinQuantity, max: p.MaxQuantity, percent: pct}, nil

	case types.ActionCustom:
		return customStep{params: append(types.RawParams(nil), raw...)}, nil

	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownActionType, act.Type)
	}
}

func parseCondition(cond types.RuleCondition) (conditionCheck, error) {
	switch cond.Type {
	case types.ConditionPriceRange:
		cmp, err := parseNumeric(cond.Operator, cond.Value)
		return priceRangeCheck{cmp: cmp}, err
	case types.ConditionMarginRange:
		cmp, err := parseNumeric(cond.Operator, cond.Value)
		return marginRangeCheck{cmp: cmp}, err
	case types.ConditionInventoryLevel:
		cmp, err := parseNumeric(cond.Operator, cond.Value)
		return inventoryCheck{cmp: cmp}, err
	case types.ConditionSalesVelocity:
		cmp, err := parseNumeric(cond.Operator, cond.Value)
		return salesVelocityCheck{cmp: cmp}, err
	case types.ConditionCompetitorPrice:
		return parseCompetitorCondition(cond)
	case types.ConditionTimeBased:
		return parseTimeWindow(cond.Value)
	case types.ConditionProductAttribute:
		return parseAttributeCondition(productScope, cond)
	case types.ConditionCategoryAttribute:
		return parseAttributeCondition(categoryScope, cond)
	case types.ConditionCustom:
		return customCheck{params: append(types.RawParams(nil), cond.Value...)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownConditionType, cond.Type)
	}
}
