// internal/pricing/resolver.go
package pricing

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/solatis/pricekeeper/internal/constraints"
	"github.com/solatis/pricekeeper/internal/rules"
	"github.com/solatis/pricekeeper/internal/types"
	"go.uber.org/zap"
)

/*
 * Rule applicability resolution.
 *
 * The store narrows by status, effective window and scope; the resolver
 * re-checks those predicates against the rule it compiles (the store query
 * and the compiled snapshot may race with a save) and then applies the
 * time constraints a SQL filter cannot express: allowed days, main window,
 * special windows, slots and FULL blackouts.
 *
 * A FULL blackout without a price adjustment removes the rule. When the
 * blackout names an alternate rule that is itself ACTIVE, in scope and
 * effective, the alternate takes the blacked-out rule's place.
 *
 * Output order: priority descending, rule id ascending.
 */

// RuleStore is the read side of rule persistence used during evaluation.
type RuleStore interface {
	// FindApplicable returns ACTIVE rules in scope and effective at q.At.
	FindApplicable(ctx context.Context, q types.ApplicabilityQuery) ([]*types.PricingRule, error)
	// GetRule returns one rule or an error wrapping types.ErrRuleNotFound.
	GetRule(ctx context.Context, id types.RuleID) (*types.PricingRule, error)
}

// Resolver produces the ordered, compiled rule list for a pricing request.
type Resolver struct {
	store  RuleStore
	cache  *CompiledCache
	logger *zap.Logger
}

// NewResolver creates a resolver over store. A nil cache gets a default one.
func NewResolver(store RuleStore, cache *CompiledCache, logger *zap.Logger) *Resolver {
	if cache == nil {
		cache = NewCompiledCache(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, cache: cache, logger: logger}
}

// Cache exposes the compiled-rule cache for invalidation on writes.
func (r *Resolver) Cache() *CompiledCache {
	return r.cache
}

// Applicable returns the compiled rules that apply to q, best first.
// No match is an empty slice; only store failures return an error.
func (r *Resolver) Applicable(ctx context.Context, q types.ApplicabilityQuery) ([]*rules.CompiledRule, error) {
	found, err := r.store.FindApplicable(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("find applicable rules: %w", err)
	}

	seen := make(map[types.RuleID]bool, len(found))
	out := make([]*rules.CompiledRule, 0, len(found))

	for _, rule := range found {
		if !applies(rule, q) {
			continue
		}
		tc := rule.TimeConstraints
		if !tc.Admits(q.At) {
			continue
		}

		if bo := tc.ActiveBlackout(q.At); bo != nil && bo.Type == constraints.BlackoutFull && bo.PriceAdjustmentPercent == nil {
			alt, err := r.alternate(ctx, rule, bo, q)
			if err != nil {
				return nil, err
			}
			if alt == nil {
				r.logger.Debug("rule blacked out",
					zap.String("rule_id", string(rule.ID)),
					zap.String("blackout", bo.Name))
				continue
			}
			rule = alt
		}

		if seen[rule.ID] {
			continue
		}
		compiled, err := r.cache.Get(rule)
		if err != nil {
			// stored rules passed validation on save; a failure here means the
			// row was edited out of band, so the rule is skipped, not fatal
			r.logger.Warn("stored rule does not compile, skipped",
				zap.String("rule_id", string(rule.ID)),
				zap.Int64("version", rule.Version),
				zap.Error(err))
			continue
		}
		seen[rule.ID] = true
		out = append(out, compiled)
	}

	SortByPriority(out)
	return out, nil
}

// alternate loads the blackout's alternate rule when it can stand in.
func (r *Resolver) alternate(ctx context.Context, rule *types.PricingRule, bo *constraints.BlackoutPeriod, q types.ApplicabilityQuery) (*types.PricingRule, error) {
	if bo.AlternateRuleID == "" || types.RuleID(bo.AlternateRuleID) == rule.ID {
		return nil, nil
	}
	alt, err := r.store.GetRule(ctx, types.RuleID(bo.AlternateRuleID))
	if errors.Is(err, types.ErrRuleNotFound) {
		r.logger.Warn("blackout alternate rule not found",
			zap.String("rule_id", string(rule.ID)),
			zap.String("alternate_rule_id", bo.AlternateRuleID))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load alternate rule %s: %w", bo.AlternateRuleID, err)
	}
	if !applies(alt, q) || !alt.TimeConstraints.Admits(q.At) {
		return nil, nil
	}
	// an alternate that is blacked out itself does not chain further
	if b := alt.TimeConstraints.ActiveBlackout(q.At); b != nil && b.Type == constraints.BlackoutFull && b.PriceAdjustmentPercent == nil {
		return nil, nil
	}
	return alt, nil
}

func applies(rule *types.PricingRule, q types.ApplicabilityQuery) bool {
	return rule.Status == types.StatusActive &&
		rule.EffectiveAt(q.At) &&
		rule.AppliesTo(q.SellerID, q.SiteID, q.CategoryID, q.BrandID)
}

// SortByPriority orders rules by priority descending, then rule id ascending.
func SortByPriority(list []*rules.CompiledRule) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Priority() != list[j].Priority() {
			return list[i].Priority() > list[j].Priority()
		}
		return list[i].ID() < list[j].ID()
	})
}
