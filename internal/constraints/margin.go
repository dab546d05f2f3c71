// internal/constraints/margin.go
package constraints

import (
	"github.com/shopspring/decimal"
)

/*
 * Margin bounds and calculation bases.
 *
 * A margin percentage m relates price p, cost c and MRP r by basis:
 *   COST_BASED:          m = (p - c) / c * 100      p = c * (1 + m/100)
 *   SELLING_PRICE_BASED: m = (p - c) / p * 100      p = c / (1 - m/100)
 *   MRP_BASED:           m = (p - c) / r * 100      p = c + r * m/100
 *   CUSTOM:              treated as SELLING_PRICE_BASED
 *
 * The rule-level margin floor uses SELLING_PRICE_BASED unless MarginConstraints
 * names another basis, so cost 80 with a 20% floor yields exactly 100.
 *
 * Overrides resolve in order: rule bounds, then the first tier covering the
 * price, then the category override, then the seller override. Each later
 * level replaces only the ends it sets.
 */

// MarginBasis selects the margin formula.
type MarginBasis string

const (
	BasisCost         MarginBasis = "COST_BASED"
	BasisSellingPrice MarginBasis = "SELLING_PRICE_BASED"
	BasisMRP          MarginBasis = "MRP_BASED"
	BasisCustom       MarginBasis = "CUSTOM"
)

// DefaultBasis is used when no MarginConstraints are configured.
const DefaultBasis = BasisSellingPrice

// CostMargin is the cost-based margin percentage used by margin conditions.
// ok is false when cost is not positive.
func CostMargin(price, cost decimal.Decimal) (decimal.Decimal, bool) {
	return Margin(price, cost, decimal.Zero, BasisCost)
}

// Margin computes the margin percentage of price under basis.
// ok is false when the denominator is not positive.
func Margin(price, cost, mrp decimal.Decimal, basis MarginBasis) (decimal.Decimal, bool) {
	var denom decimal.Decimal
	switch basis {
	case BasisCost:
		denom = cost
	case BasisMRP:
		denom = mrp
	default:
		denom = price
	}
	if denom.Sign() <= 0 {
		return decimal.Zero, false
	}
	return price.Sub(cost).Div(denom).Mul(hundred), true
}

// PriceForMargin returns the price at which margin equals m under basis.
// ok is false when no such price exists (e.g. m >= 100 on a selling price basis).
func PriceForMargin(cost, mrp, m decimal.Decimal, basis MarginBasis) (decimal.Decimal, bool) {
	if cost.Sign() <= 0 {
		return decimal.Zero, false
	}
	switch basis {
	case BasisCost:
		return cost.Add(cost.Mul(m).Div(hundred)), true
	case BasisMRP:
		if mrp.Sign() <= 0 {
			return decimal.Zero, false
		}
		return cost.Add(mrp.Mul(m).Div(hundred)), true
	default:
		if !m.LessThan(hundred) {
			return decimal.Zero, false
		}
		return cost.Div(decimal.NewFromInt(1).Sub(m.Div(hundred))), true
	}
}

// ApplyMargin raises price to the margin floor and lowers it to the margin ceiling.
// The floor wins when both cannot hold. Without a positive cost price is returned unchanged.
func ApplyMargin(price, cost, mrp decimal.Decimal, bounds Bounds, basis MarginBasis) decimal.Decimal {
	if cost.Sign() <= 0 {
		return price
	}
	if bounds.Max != nil {
		if ceiling, ok := PriceForMargin(cost, mrp, *bounds.Max, basis); ok && price.GreaterThan(ceiling) {
			price = ceiling
		}
	}
	if bounds.Min != nil {
		if floor, ok := PriceForMargin(cost, mrp, *bounds.Min, basis); ok && price.LessThan(floor) {
			price = floor
		}
	}
	return price
}

// MarginTier sets margin bounds for prices in [MinPrice, MaxPrice).
type MarginTier struct {
	MinPrice *decimal.Decimal `json:"min_price,omitempty"`
	MaxPrice *decimal.Decimal `json:"max_price,omitempty"`
	Bounds   Bounds           `json:"bounds"`
}

func (t MarginTier) covers(p decimal.Decimal) bool {
	if t.MinPrice != nil && p.LessThan(*t.MinPrice) {
		return false
	}
	if t.MaxPrice != nil && !p.LessThan(*t.MaxPrice) {
		return false
	}
	return true
}

// MarginConstraints carries rule-level margin policy.
type MarginConstraints struct {
	Basis             MarginBasis       `json:"basis,omitempty"`
	CategoryOverrides map[string]Bounds `json:"category_overrides,omitempty"`
	SellerOverrides   map[string]Bounds `json:"seller_overrides,omitempty"`
	Tiers             []MarginTier      `json:"tiers,omitempty"`
}

// EffectiveBasis returns the configured basis or DefaultBasis.
func (m *MarginConstraints) EffectiveBasis() MarginBasis {
	if m == nil || m.Basis == "" {
		return DefaultBasis
	}
	return m.Basis
}

// Resolve layers tier, category and seller overrides over base for a price.
func (m *MarginConstraints) Resolve(base Bounds, sellerID, categoryID string, price decimal.Decimal) Bounds {
	if m == nil {
		return base
	}
	out := base
	for _, t := range m.Tiers {
		if t.covers(price) {
			out = overlay(out, t.Bounds)
			break
		}
	}
	if b, ok := m.CategoryOverrides[categoryID]; ok && categoryID != "" {
		out = overlay(out, b)
	}
	if b, ok := m.SellerOverrides[sellerID]; ok && sellerID != "" {
		out = overlay(out, b)
	}
	return out
}

func overlay(base, o Bounds) Bounds {
	if o.Min != nil {
		base.Min = o.Min
	}
	if o.Max != nil {
		base.Max = o.Max
	}
	return base
}

// ValidateMarginBounds checks b as a margin range for basis.
func ValidateMarginBounds(b Bounds, basis MarginBasis) ValidationErrors {
	errs := b.Validate()
	if basis == BasisCost || basis == BasisMRP {
		return errs
	}
	if b.Min != nil && !b.Min.LessThan(hundred) {
		errs.Add("min", "must be below 100 for %s margins, got %s", basis, b.Min.String())
	}
	if b.Max != nil && !b.Max.LessThan(hundred) {
		errs.Add("max", "must be below 100 for %s margins, got %s", basis, b.Max.String())
	}
	return errs
}

// Validate checks the basis and every override.
func (m *MarginConstraints) Validate() ValidationErrors {
	var errs ValidationErrors
	if m == nil {
		return errs
	}
	switch m.Basis {
	case "", BasisCost, BasisSellingPrice, BasisMRP, BasisCustom:
	default:
		errs.Add("basis", "unknown margin basis %q", m.Basis)
	}
	basis := m.EffectiveBasis()
	for k, b := range m.CategoryOverrides {
		errs.Merge("category_overrides."+k, ValidateMarginBounds(b, basis))
	}
	for k, b := range m.SellerOverrides {
		errs.Merge("seller_overrides."+k, ValidateMarginBounds(b, basis))
	}
	for i, t := range m.Tiers {
		prefix := "tiers[" + itoa(i) + "]"
		errs.Merge(prefix+".bounds", ValidateMarginBounds(t.Bounds, basis))
		errs.Merge(prefix, Bounds{Min: t.MinPrice, Max: t.MaxPrice}.Validate())
	}
	return errs
}

// Clone returns a deep copy.
func (m *MarginConstraints) Clone() *MarginConstraints {
	if m == nil {
		return nil
	}
	out := *m
	out.CategoryOverrides = cloneBoundsMap(m.CategoryOverrides)
	out.SellerOverrides = cloneBoundsMap(m.SellerOverrides)
	out.Tiers = append([]MarginTier(nil), m.Tiers...)
	return &out
}

func cloneBoundsMap(in map[string]Bounds) map[string]Bounds {
	if in == nil {
		return nil
	}
	out := make(map[string]Bounds, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
