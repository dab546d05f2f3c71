// internal/types/rules.go
package types

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/solatis/pricekeeper/internal/constraints"
)

/*
 * Domain types for pricing rules.
 *
 * PricingRule owns its conditions, actions and seller/site overrides; they are
 * saved and deleted together. Condition values and action parameters are raw
 * JSON here; internal/rules parses them once into typed variants when a rule
 * is compiled, so malformed rules fail at authoring time.
 *
 * Key types:
 *   - PricingRule: scoped, prioritized, time-bounded bundle of conditions and actions
 *   - RuleCondition: predicate gating the rule
 *   - RuleAction: price-mutating step, executed in ascending Sequence
 *   - SellerSiteConfig: per (seller, site) bound overrides
 *   - ApplicabilityQuery: lookup key used by the resolver and the store
 */

// RuleType classifies a rule for reporting and conflict detection.
type RuleType string

const (
	RuleTypePrice       RuleType = "PRICE"
	RuleTypeDiscount    RuleType = "DISCOUNT"
	RuleTypeMarkup      RuleType = "MARKUP"
	RuleTypeMargin      RuleType = "MARGIN"
	RuleTypeCompetitive RuleType = "COMPETITIVE"
	RuleTypeBundle      RuleType = "BUNDLE"
	RuleTypeQuantity    RuleType = "QUANTITY"
	RuleTypePromotional RuleType = "PROMOTIONAL"
	RuleTypeClearance   RuleType = "CLEARANCE"
	RuleTypeDynamic     RuleType = "DYNAMIC"
)

// ConditionType selects the evaluation strategy of a condition.
type ConditionType string

const (
	ConditionPriceRange        ConditionType = "PRICE_RANGE"
	ConditionMarginRange       ConditionType = "MARGIN_RANGE"
	ConditionInventoryLevel    ConditionType = "INVENTORY_LEVEL"
	ConditionCompetitorPrice   ConditionType = "COMPETITOR_PRICE"
	ConditionTimeBased         ConditionType = "TIME_BASED"
	ConditionCategoryAttribute ConditionType = "CATEGORY_ATTRIBUTE"
	ConditionProductAttribute  ConditionType = "PRODUCT_ATTRIBUTE"
	ConditionSalesVelocity     ConditionType = "SALES_VELOCITY"
	ConditionCustom            ConditionType = "CUSTOM"
)

// Operator is a comparison operator used by conditions.
type Operator string

const (
	OpEquals            Operator = "EQUALS"
	OpNotEquals         Operator = "NOT_EQUALS"
	OpGreaterThan       Operator = "GREATER_THAN"
	OpGreaterThanEquals Operator = "GREATER_THAN_EQUALS"
	OpLessThan          Operator = "LESS_THAN"
	OpLessThanEquals    Operator = "LESS_THAN_EQUALS"
	OpBetween           Operator = "BETWEEN"
	OpNotBetween        Operator = "NOT_BETWEEN"
	OpIn                Operator = "IN"
	OpNotIn             Operator = "NOT_IN"
	OpContains          Operator = "CONTAINS"
	OpNotContains       Operator = "NOT_CONTAINS"
	OpStartsWith        Operator = "STARTS_WITH"
	OpEndsWith          Operator = "ENDS_WITH"
)

// ActionType selects the execution strategy of an action.
type ActionType string

const (
	ActionSetPrice                ActionType = "SET_PRICE"
	ActionApplyDiscountPercentage ActionType = "APPLY_DISCOUNT_PERCENTAGE"
	ActionApplyDiscountAmount     ActionType = "APPLY_DISCOUNT_AMOUNT"
	ActionSetMargin               ActionType = "SET_MARGIN"
	ActionMatchCompetitorPrice    ActionType = "MATCH_COMPETITOR_PRICE"
	ActionBeatCompetitorPrice     ActionType = "BEAT_COMPETITOR_PRICE"
	ActionBundleDiscount          ActionType = "BUNDLE_DISCOUNT"
	ActionQuantityDiscount        ActionType = "QUANTITY_DISCOUNT"
	ActionCustom                  ActionType = "CUSTOM"
)

// RuleCondition is a single predicate owned by a rule.
type RuleCondition struct {
	ID        string        `json:"id,omitempty"`
	Type      ConditionType `json:"type"`
	Attribute string        `json:"attribute,omitempty"` // target attribute, competitor id, etc.
	Operator  Operator      `json:"operator"`
	Value     RawParams     `json:"value,omitempty"`
	Sequence  int           `json:"sequence"`
	Enabled   bool          `json:"enabled"`
}

// RuleAction is a single pipeline step owned by a rule.
type RuleAction struct {
	ID         string     `json:"id,omitempty"`
	Type       ActionType `json:"type"`
	Parameters RawParams  `json:"parameters,omitempty"`
	Sequence   int        `json:"sequence"`
	Enabled    bool       `json:"enabled"`
}

// SellerSiteConfig overrides bounds for one (seller, site) pair.
// Empty CategoryIDs/BrandIDs mean the override applies to every product.
type SellerSiteConfig struct {
	ID            string           `json:"id,omitempty"`
	SellerID      string           `json:"seller_id"`
	SiteID        string           `json:"site_id"`
	MinimumPrice  *decimal.Decimal `json:"minimum_price,omitempty"`
	MaximumPrice  *decimal.Decimal `json:"maximum_price,omitempty"`
	MinimumMargin *decimal.Decimal `json:"minimum_margin,omitempty"`
	MaximumMargin *decimal.Decimal `json:"maximum_margin,omitempty"`
	CategoryIDs   []string         `json:"category_ids,omitempty"`
	BrandIDs      []string         `json:"brand_ids,omitempty"`
	Active        bool             `json:"active"`
}

// Covers reports whether the override applies to a product of the given category and brand.
func (c SellerSiteConfig) Covers(sellerID, siteID, categoryID, brandID string) bool {
	if !c.Active || c.SellerID != sellerID || c.SiteID != siteID {
		return false
	}
	return inScope(c.CategoryIDs, categoryID) && inScope(c.BrandIDs, brandID)
}

// PricingRule is the aggregate root of the rule model.
type PricingRule struct {
	ID          RuleID     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Type        RuleType   `json:"type"`
	Status      RuleStatus `json:"status"`
	Priority    int        `json:"priority"`

	SellerIDs   []string `json:"seller_ids,omitempty"`
	SiteIDs     []string `json:"site_ids,omitempty"`
	CategoryIDs []string `json:"category_ids,omitempty"`
	BrandIDs    []string `json:"brand_ids,omitempty"`

	EffectiveFrom *time.Time `json:"effective_from,omitempty"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`

	MinimumPrice  *decimal.Decimal `json:"minimum_price,omitempty"`
	MaximumPrice  *decimal.Decimal `json:"maximum_price,omitempty"`
	MinimumMargin *decimal.Decimal `json:"minimum_margin,omitempty"`
	MaximumMargin *decimal.Decimal `json:"maximum_margin,omitempty"`

	Conditions        []RuleCondition    `json:"conditions,omitempty"`
	Actions           []RuleAction       `json:"actions,omitempty"`
	SellerSiteConfigs []SellerSiteConfig `json:"seller_site_configs,omitempty"`

	PriceConstraints  *constraints.PriceConstraints  `json:"price_constraints,omitempty"`
	MarginConstraints *constraints.MarginConstraints `json:"margin_constraints,omitempty"`
	TimeConstraints   *constraints.TimeConstraints   `json:"time_constraints,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`
	UpdatedBy string    `json:"updated_by,omitempty"`
}

// ApplicabilityQuery identifies the pricing context a rule must match.
// Empty CategoryID/BrandID mean the product has no category or brand.
type ApplicabilityQuery struct {
	SellerID   string
	SiteID     string
	CategoryID string
	BrandID    string
	At         time.Time
}

// AppliesTo reports whether every scoping set is empty or contains the given id.
// A rule restricted to categories never matches a product without a category.
func (r *PricingRule) AppliesTo(sellerID, siteID, categoryID, brandID string) bool {
	return inScope(r.SellerIDs, sellerID) &&
		inScope(r.SiteIDs, siteID) &&
		inScope(r.CategoryIDs, categoryID) &&
		inScope(r.BrandIDs, brandID)
}

// EffectiveAt reports whether t lies inside [EffectiveFrom, EffectiveTo].
// Both ends are inclusive; a nil end is open.
func (r *PricingRule) EffectiveAt(t time.Time) bool {
	if r.EffectiveFrom != nil && t.Before(*r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && t.After(*r.EffectiveTo) {
		return false
	}
	return true
}

// Clone returns a deep copy; slices and pointers are not shared with r.
func (r *PricingRule) Clone() *PricingRule {
	if r == nil {
		return nil
	}
	c := *r
	c.SellerIDs = append([]string(nil), r.SellerIDs...)
	c.SiteIDs = append([]string(nil), r.SiteIDs...)
	c.CategoryIDs = append([]string(nil), r.CategoryIDs...)
	c.BrandIDs = append([]string(nil), r.BrandIDs...)
	c.EffectiveFrom = cloneTime(r.EffectiveFrom)
	c.EffectiveTo = cloneTime(r.EffectiveTo)
	c.MinimumPrice = cloneDecimal(r.MinimumPrice)
	c.MaximumPrice = cloneDecimal(r.MaximumPrice)
	c.MinimumMargin = cloneDecimal(r.MinimumMargin)
	c.MaximumMargin = cloneDecimal(r.MaximumMargin)

	c.Conditions = make([]RuleCondition, len(r.Conditions))
	for i, cond := range r.Conditions {
		cond.Value = append(RawParams(nil), cond.Value...)
		c.Conditions[i] = cond
	}
	c.Actions = make([]RuleAction, len(r.Actions))
	for i, act := range r.Actions {
		act.Parameters = append(RawParams(nil), act.Parameters...)
		c.Actions[i] = act
	}
	c.SellerSiteConfigs = make([]SellerSiteConfig, len(r.SellerSiteConfigs))
	for i, cfg := range r.SellerSiteConfigs {
		cfg.MinimumPrice = cloneDecimal(cfg.MinimumPrice)
		cfg.MaximumPrice = cloneDecimal(cfg.MaximumPrice)
		cfg.MinimumMargin = cloneDecimal(cfg.MinimumMargin)
		cfg.MaximumMargin = cloneDecimal(cfg.MaximumMargin)
		cfg.CategoryIDs = append([]string(nil), cfg.CategoryIDs...)
		cfg.BrandIDs = append([]string(nil), cfg.BrandIDs...)
		c.SellerSiteConfigs[i] = cfg
	}
	c.PriceConstraints = r.PriceConstraints.Clone()
	c.MarginConstraints = r.MarginConstraints.Clone()
	c.TimeConstraints = r.TimeConstraints.Clone()
	return &c
}

// inScope implements wildcard scoping: an empty set matches everything.
func inScope(set []string, id string) bool {
	if len(set) == 0 {
		return true
	}
	if id == "" {
		return false
	}
	for _, s := range set {
		if s == id {
			return true
		}
	}
	return false
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
