// internal/rules/actions.go
package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/solatis/pricekeeper/internal/constraints"
	"github.com/solatis/pricekeeper/internal/types"
	"go.uber.org/zap"
)

/*
 * Action pipeline.
 *
 * ExecuteActions is a fold over the rule's actions in ascending sequence:
 *
 *   price_0 = start
 *   price_n = step_n(ctx, price_{n-1})
 *
 * Each step returns its price and a set of notes; nothing is mutated in
 * place. Unavailable lookups turn a step into a no-op. A negative price or
 * any other step error aborts the rule with ErrActionFailed and the caller
 * treats the rule as not applied.
 *
 * SET_MARGIN prices to a target margin over cost using the rule's margin
 * basis. Without a known cost it falls back to marking the working price
 * up by the margin percentage.
 */

// actionStep is the closed set of compiled action variants.
type actionStep interface {
	actionType() types.ActionType
}

type setPriceStep struct{ price decimal.Decimal }

type discountPercentStep struct{ percent decimal.Decimal }

type discountAmountStep struct{ amount decimal.Decimal }

type setMarginStep struct {
	margin decimal.Decimal
	basis  constraints.MarginBasis
}

type matchCompetitorStep struct{ competitorID string }

type beatCompetitorStep struct {
	competitorID string
	percent      decimal.Decimal // share of the gap to close
}

type bundleDiscountStep struct{ bundleID string }

type quantityDiscountStep struct {
	min, max *int
	percent  decimal.Decimal
}

type customStep struct{ params types.RawParams }

func (setPriceStep) actionType() types.ActionType         { return types.ActionSetPrice }
func (discountPercentStep) actionType() types.ActionType  { return types.ActionApplyDiscountPercentage }
func (discountAmountStep) actionType() types.ActionType   { return types.ActionApplyDiscountAmount }
func (setMarginStep) actionType() types.ActionType        { return types.ActionSetMargin }
func (matchCompetitorStep) actionType() types.ActionType  { return types.ActionMatchCompetitorPrice }
func (beatCompetitorStep) actionType() types.ActionType   { return types.ActionBeatCompetitorPrice }
func (bundleDiscountStep) actionType() types.ActionType   { return types.ActionBundleDiscount }
func (quantityDiscountStep) actionType() types.ActionType { return types.ActionQuantityDiscount }
func (customStep) actionType() types.ActionType           { return types.ActionCustom }

// notes are per-step metadata merged into the rule result.
type notes map[string]any

// ExecuteActions folds the rule's actions over start.
func (e *Engine) ExecuteActions(ctx context.Context, rule *CompiledRule, ec *EvaluationContext, start decimal.Decimal) (Result, error) {
	price := start
	meta := map[string]any{}

	for _, act := range rule.Actions {
		next, n, err := e.applyAction(ctx, act, ec.WithPrice(price), price)
		if err == nil && next.IsNegative() {
			err = fmt.Errorf("price would become negative (%s)", next)
		}
		if err != nil {
			e.observer.ActionFailed(string(act.Type))
			e.logger.Warn("action failed, rule not applied",
				zap.String("rule_id", string(rule.ID())),
				zap.String("action_type", string(act.Type)),
				zap.Int("sequence", act.Sequence),
				zap.Error(err))
			return Result{}, fmt.Errorf("%w: rule %s action %d (%s): %v", types.ErrActionFailed, rule.ID(), act.Sequence, act.Type, err)
		}
		for k, v := range n {
			meta[k] = v
		}
		price = next
	}

	return NewResult(rule, start, price, ec.CostPrice, meta), nil
}

func (e *Engine) applyAction(ctx context.Context, act CompiledAction, ec *EvaluationContext, price decimal.Decimal) (decimal.Decimal, notes, error) {
	switch s := act.Step.(type) {
	case setPriceStep:
		return s.price, nil, nil

	case discountPercentStep:
		return price.Sub(percentOf(price, s.percent)), nil, nil

	case discountAmountStep:
		return price.Sub(s.amount), nil, nil

	case setMarginStep:
		if ec.CostPrice.Sign() > 0 {
			target, ok := constraints.PriceForMargin(ec.CostPrice, ec.MRP, s.margin, s.basis)
			if !ok {
				return decimal.Zero, nil, fmt.Errorf("no price reaches margin %s on %s basis", s.margin, s.basis)
			}
			return target, notes{"margin_basis": string(s.basis)}, nil
		}
		return price.Add(percentOf(price, s.margin)), notes{"margin_basis": "MARKUP_ON_PRICE"}, nil

	case matchCompetitorStep:
		p, err := e.competitorPrice(ctx, ec, s.competitorID)
		if err != nil {
			return e.skipUnavailable(act, price, err)
		}
		return p, notes{"matched_competitor": s.competitorID, "competitor_price": p.String()}, nil

	case beatCompetitorStep:
		p, err := e.competitorPrice(ctx, ec, s.competitorID)
		if err != nil {
			return e.skipUnavailable(act, price, err)
		}
		if !price.GreaterThan(p) {
			return price, nil, nil
		}
		gap := price.Sub(p)
		return price.Sub(percentOf(gap, s.percent)), notes{"beaten_competitor": s.competitorID, "competitor_price": p.String()}, nil

	case bundleDiscountStep:
		pct, err := e.bundleDiscount(ctx, ec, s.bundleID)
		if err != nil {
			return e.skipUnavailable(act, price, err)
		}
		if pct.IsNegative() || pct.GreaterThan(hundred) {
			return decimal.Zero, nil, fmt.Errorf("bundle %s discount %s%% out of range", s.bundleID, pct)
		}
		return price.Sub(percentOf(price, pct)), notes{"bundle_id": s.bundleID}, nil

	case quantityDiscountStep:
		if s.min != nil && ec.Quantity < *s.min {
			return price, nil, nil
		}
		if s.max != nil && ec.Quantity > *s.max {
			return price, nil, nil
		}
		return price.Sub(percentOf(price, s.percent)), nil, nil

	case customStep:
		return price, nil, nil

	default:
		return decimal.Zero, nil, fmt.Errorf("%w: %T", types.ErrUnknownActionType, act.Step)
	}
}

// skipUnavailable turns an unavailable lookup into a no-op step.
func (e *Engine) skipUnavailable(act CompiledAction, price decimal.Decimal, err error) (decimal.Decimal, notes, error) {
	if errors.Is(err, types.ErrLookupUnavailable) {
		e.logger.Debug("lookup unavailable, action skipped",
			zap.String("action_type", string(act.Type)),
			zap.Error(err))
		return price, nil, nil
	}
	return decimal.Zero, nil, err
}

func percentOf(v, pct decimal.Decimal) decimal.Decimal {
	return v.Mul(pct).Div(hundred)
}

func decimalFromInt(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}
