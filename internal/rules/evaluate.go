// internal/rules/evaluate.go
package rules

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

/*
 * Rule evaluation.
 *
 * EvaluateConditions is a logical AND over the rule's enabled conditions,
 * walked in compiled (cost) order and short-circuiting on the first false.
 * A condition that errors (bad value, unavailable lookup, timeout) counts
 * as false, is logged at warn and reported to the observer; the error is
 * never returned.
 *
 * Apply combines both halves: conditions gate, actions fold.
 */

// EvaluateConditions reports whether every enabled condition holds.
// A rule without enabled conditions matches.
func (e *Engine) EvaluateConditions(ctx context.Context, rule *CompiledRule, ec *EvaluationContext) bool {
	for _, cond := range rule.Conditions {
		matched, err := e.checkCondition(ctx, cond, ec)
		if err != nil {
			e.observer.ConditionFailed(string(cond.Type))
			e.logger.Warn("condition failed, treated as false",
				zap.String("rule_id", string(rule.ID())),
				zap.String("condition_type", string(cond.Type)),
				zap.Int("sequence", cond.Sequence),
				zap.Error(err))
			return false
		}
		if !matched {
			return false
		}
	}
	return true
}

// Apply evaluates conditions against ec at price start and, when they hold,
// executes the actions. applied is false when conditions did not match.
func (e *Engine) Apply(ctx context.Context, rule *CompiledRule, ec *EvaluationContext, start decimal.Decimal) (res Result, applied bool, err error) {
	working := ec.WithPrice(start)
	if !e.EvaluateConditions(ctx, rule, working) {
		return Result{}, false, nil
	}
	res, err = e.ExecuteActions(ctx, rule, working, start)
	if err != nil {
		return Result{}, false, err
	}
	return res, true, nil
}
