// internal/types/validate.go
package types

import (
	"fmt"
	"strconv"

	"github.com/solatis/pricekeeper/internal/constraints"
)

/*
 * Authoring validation for pricing rules.
 *
 * Validate rejects what runtime evaluation would otherwise clamp: negative
 * bounds, min > max, inverted effective windows. It also checks enum
 * membership and resource limits. A new rule may only carry DRAFT status;
 * every later status comes from a lifecycle transition. Parameter documents are checked by
 * rules.Compile, which callers run after Validate before persisting.
 *
 * All problems are collected into one constraints.ValidationErrors so the
 * caller sees every rejected field at once.
 */

// Validate checks a rule for authoring errors.
// Returned errors match both ErrValidation and constraints.ErrInvalid.
func Validate(r *PricingRule) error {
	var errs constraints.ValidationErrors

	if r.Name == "" {
		errs.Add("name", "required")
	} else if len(r.Name) > MaxNameLength {
		errs.Add("name", "exceeds %d characters", MaxNameLength)
	}
	if !r.Type.Valid() {
		errs.Add("type", "unknown rule type %q", r.Type)
	}
	if r.Status != "" {
		if _, err := ParseRuleStatus(string(r.Status)); err != nil {
			errs.Add("status", "unknown status %q", r.Status)
		} else if r.Version == 0 && r.Status != StatusDraft {
			errs.Add("status", "new rules start as %s, got %s", StatusDraft, r.Status)
		}
	}

	for field, set := range map[string][]string{
		"seller_ids":   r.SellerIDs,
		"site_ids":     r.SiteIDs,
		"category_ids": r.CategoryIDs,
		"brand_ids":    r.BrandIDs,
	} {
		if len(set) > MaxScopeEntries {
			errs.Add(field, "exceeds %d entries", MaxScopeEntries)
		}
	}

	if r.EffectiveFrom != nil && r.EffectiveTo != nil && r.EffectiveFrom.After(*r.EffectiveTo) {
		errs.Add("effective_from", "must not be after effective_to")
	}

	basis := r.MarginConstraints.EffectiveBasis()
	errs.Merge("price", constraints.Bounds{Min: r.MinimumPrice, Max: r.MaximumPrice}.Validate())
	errs.Merge("margin", constraints.ValidateMarginBounds(constraints.Bounds{Min: r.MinimumMargin, Max: r.MaximumMargin}, basis))

	if len(r.Conditions) > MaxConditionsPerRule {
		errs.Add("conditions", "exceeds %d entries", MaxConditionsPerRule)
	}
	for i, c := range r.Conditions {
		if !c.Type.Valid() {
			errs.Add(indexed("conditions", i)+".type", "unknown condition type %q", c.Type)
		}
		if c.Operator != "" && !c.Operator.Valid() {
			errs.Add(indexed("conditions", i)+".operator", "unknown operator %q", c.Operator)
		}
	}
	if len(r.Actions) > MaxActionsPerRule {
		errs.Add("actions", "exceeds %d entries", MaxActionsPerRule)
	}
	for i, a := range r.Actions {
		if !a.Type.Valid() {
			errs.Add(indexed("actions", i)+".type", "unknown action type %q", a.Type)
		}
	}

	for i, cfg := range r.SellerSiteConfigs {
		field := indexed("seller_site_configs", i)
		if cfg.SellerID == "" {
			errs.Add(field+".seller_id", "required")
		}
		if cfg.SiteID == "" {
			errs.Add(field+".site_id", "required")
		}
		errs.Merge(field+".price", constraints.Bounds{Min: cfg.MinimumPrice, Max: cfg.MaximumPrice}.Validate())
		errs.Merge(field+".margin", constraints.ValidateMarginBounds(constraints.Bounds{Min: cfg.MinimumMargin, Max: cfg.MaximumMargin}, basis))
	}

	errs.Merge("price_constraints", r.PriceConstraints.Validate())
	errs.Merge("margin_constraints", r.MarginConstraints.Validate())
	errs.Merge("time_constraints", r.TimeConstraints.Validate())

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrValidation, errs)
}

func indexed(field string, i int) string {
	return field + "[" + strconv.Itoa(i) + "]"
}

// Valid reports whether t is a known rule type.
func (t RuleType) Valid() bool {
	switch t {
	case RuleTypePrice, RuleTypeDiscount, RuleTypeMarkup, RuleTypeMargin, RuleTypeCompetitive,
		RuleTypeBundle, RuleTypeQuantity, RuleTypePromotional, RuleTypeClearance, RuleTypeDynamic:
		return true
	}
	return false
}

// Valid reports whether t is a known condition type.
func (t ConditionType) Valid() bool {
	switch t {
	case ConditionPriceRange, ConditionMarginRange, ConditionInventoryLevel, ConditionCompetitorPrice,
		ConditionTimeBased, ConditionCategoryAttribute, ConditionProductAttribute,
		ConditionSalesVelocity, ConditionCustom:
		return true
	}
	return false
}

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	switch op {
	case OpEquals, OpNotEquals, OpGreaterThan, OpGreaterThanEquals, OpLessThan, OpLessThanEquals,
		OpBetween, OpNotBetween, OpIn, OpNotIn, OpContains, OpNotContains, OpStartsWith, OpEndsWith:
		return true
	}
	return false
}

// Valid reports whether t is a known action type.
func (t ActionType) Valid() bool {
	switch t {
	case ActionSetPrice, ActionApplyDiscountPercentage, ActionApplyDiscountAmount, ActionSetMargin,
		ActionMatchCompetitorPrice, ActionBeatCompetitorPrice, ActionBundleDiscount,
		ActionQuantityDiscount, ActionCustom:
		return true
	}
	return false
}
