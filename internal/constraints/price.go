// internal/constraints/price.go
package constraints

import (
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
)

/*
 * Price bounds, change limits, regional adjustments and rounding.
 *
 * Runtime path (after a rule's actions ran):
 *   Bounds.Clamp -> PriceConstraints.LimitChange -> PriceConstraints.ApplyRegion
 *   -> PriceConstraints.Round
 *
 * Clamp never rejects: a price outside [Min, Max] is moved to the nearest end.
 * Authoring validation (Validate) rejects negative values and Min > Max.
 */

var (
	hundred             = decimal.NewFromInt(100)
	defaultDenomination = decimal.New(1, -2)
)

// Bounds is an optional closed interval. Nil ends are unbounded.
type Bounds struct {
	Min *decimal.Decimal `json:"min,omitempty"`
	Max *decimal.Decimal `json:"max,omitempty"`
}

// IsZero reports whether neither end is set.
func (b Bounds) IsZero() bool {
	return b.Min == nil && b.Max == nil
}

// Clamp moves p into [Min, Max]. In-bounds prices are returned unchanged.
// When Min > Max (never accepted at authoring) Max wins.
func (b Bounds) Clamp(p decimal.Decimal) decimal.Decimal {
	if b.Min != nil && p.LessThan(*b.Min) {
		p = *b.Min
	}
	if b.Max != nil && p.GreaterThan(*b.Max) {
		p = *b.Max
	}
	return p
}

// Contains reports whether p lies inside the interval, ends inclusive.
func (b Bounds) Contains(p decimal.Decimal) bool {
	if b.Min != nil && p.LessThan(*b.Min) {
		return false
	}
	if b.Max != nil && p.GreaterThan(*b.Max) {
		return false
	}
	return true
}

// Intersect returns the tightest interval satisfying both b and o.
func (b Bounds) Intersect(o Bounds) Bounds {
	out := Bounds{Min: b.Min, Max: b.Max}
	if o.Min != nil && (out.Min == nil || o.Min.GreaterThan(*out.Min)) {
		out.Min = o.Min
	}
	if o.Max != nil && (out.Max == nil || o.Max.LessThan(*out.Max)) {
		out.Max = o.Max
	}
	return out
}

// Validate rejects negative ends and Min > Max.
func (b Bounds) Validate() ValidationErrors {
	var errs ValidationErrors
	if b.Min != nil && b.Min.IsNegative() {
		errs.Add("min", "must not be negative, got %s", b.Min.String())
	}
	if b.Max != nil && b.Max.IsNegative() {
		errs.Add("max", "must not be negative, got %s", b.Max.String())
	}
	if b.Min != nil && b.Max != nil && b.Min.GreaterThan(*b.Max) {
		errs.Add("min", "must not exceed max (%s > %s)", b.Min.String(), b.Max.String())
	}
	return errs
}

// RoundingStrategy selects how a final price is rounded.
type RoundingStrategy string

const (
	RoundingNone    RoundingStrategy = "NONE"
	RoundingUp      RoundingStrategy = "ROUND_UP"
	RoundingDown    RoundingStrategy = "ROUND_DOWN"
	RoundingNearest RoundingStrategy = "ROUND_TO_NEAREST"
	RoundingCustom  RoundingStrategy = "CUSTOM"
)

// Round applies strategy to p using denomination (zero means 0.01).
// CUSTOM picks the nearest price ending in `ending` (e.g. 0.99), ties to the lower one.
func Round(p decimal.Decimal, strategy RoundingStrategy, denomination decimal.Decimal, ending *decimal.Decimal) decimal.Decimal {
	if denomination.Sign() <= 0 {
		denomination = defaultDenomination
	}
	switch strategy {
	case RoundingUp:
		return p.Div(denomination).Ceil().Mul(denomination)
	case RoundingDown:
		return p.Div(denomination).Floor().Mul(denomination)
	case RoundingNearest:
		return p.Div(denomination).Round(0).Mul(denomination)
	case RoundingCustom:
		if ending == nil {
			return p.Div(denomination).Round(0).Mul(denomination)
		}
		return roundToEnding(p, *ending)
	default:
		return p
	}
}

// roundToEnding chooses between floor(p)-1+ending and floor(p)+ending.
func roundToEnding(p, ending decimal.Decimal) decimal.Decimal {
	base := p.Floor()
	upper := base.Add(ending)
	lower := upper.Sub(decimal.NewFromInt(1))
	if lower.IsNegative() {
		return upper
	}
	if p.Sub(lower).Cmp(upper.Sub(p).Abs()) <= 0 {
		return lower
	}
	return upper
}

// PriceBand limits price movement for prices inside [From, To).
type PriceBand struct {
	From             *decimal.Decimal `json:"from,omitempty"`
	To               *decimal.Decimal `json:"to,omitempty"`
	MaxChangePercent decimal.Decimal  `json:"max_change_percent"`
}

func (b PriceBand) contains(p decimal.Decimal) bool {
	if b.From != nil && p.LessThan(*b.From) {
		return false
	}
	if b.To != nil && !p.LessThan(*b.To) {
		return false
	}
	return true
}

// PriceConstraints carries rule-level price shaping policy.
type PriceConstraints struct {
	Rounding            RoundingStrategy           `json:"rounding,omitempty"`
	Denomination        *decimal.Decimal           `json:"denomination,omitempty"`
	PriceEnding         *decimal.Decimal           `json:"price_ending,omitempty"`
	MaxChangePercent    *decimal.Decimal           `json:"max_change_percent,omitempty"`
	Bands               []PriceBand                `json:"bands,omitempty"`
	RegionalAdjustments map[string]decimal.Decimal `json:"regional_adjustments,omitempty"`
}

// maxChangeFor returns the change limit for the reference price, band first.
func (c *PriceConstraints) maxChangeFor(reference decimal.Decimal) *decimal.Decimal {
	for i := range c.Bands {
		if c.Bands[i].contains(reference) {
			return &c.Bands[i].MaxChangePercent
		}
	}
	return c.MaxChangePercent
}

// LimitChange bounds |proposed - reference| to the configured percentage of reference.
func (c *PriceConstraints) LimitChange(reference, proposed decimal.Decimal) decimal.Decimal {
	if c == nil || reference.Sign() <= 0 {
		return proposed
	}
	limit := c.maxChangeFor(reference)
	if limit == nil {
		return proposed
	}
	delta := reference.Mul(*limit).Div(hundred)
	return Bounds{Min: ptr(reference.Sub(delta)), Max: ptr(reference.Add(delta))}.Clamp(proposed)
}

// ApplyRegion scales price by the region's percentage adjustment (e.g. 5 = +5%).
func (c *PriceConstraints) ApplyRegion(price decimal.Decimal, region string) decimal.Decimal {
	if c == nil || region == "" {
		return price
	}
	adj, ok := c.RegionalAdjustments[region]
	if !ok || adj.IsZero() {
		return price
	}
	return price.Add(price.Mul(adj).Div(hundred))
}

// Round applies the configured rounding; nil constraints leave the price untouched.
func (c *PriceConstraints) Round(price decimal.Decimal) decimal.Decimal {
	if c == nil || c.Rounding == "" || c.Rounding == RoundingNone {
		return price
	}
	denom := defaultDenomination
	if c.Denomination != nil {
		denom = *c.Denomination
	}
	return Round(price, c.Rounding, denom, c.PriceEnding)
}

// Validate checks rounding configuration, percentages and band ordering.
func (c *PriceConstraints) Validate() ValidationErrors {
	var errs ValidationErrors
	if c == nil {
		return errs
	}
	switch c.Rounding {
	case "", RoundingNone, RoundingUp, RoundingDown, RoundingNearest, RoundingCustom:
	default:
		errs.Add("rounding", "unknown strategy %q", c.Rounding)
	}
	if c.Denomination != nil && c.Denomination.Sign() <= 0 {
		errs.Add("denomination", "must be positive, got %s", c.Denomination.String())
	}
	if c.PriceEnding != nil && (c.PriceEnding.IsNegative() || !c.PriceEnding.LessThan(decimal.NewFromInt(1))) {
		errs.Add("price_ending", "must be in [0, 1), got %s", c.PriceEnding.String())
	}
	if c.Rounding == RoundingCustom && c.PriceEnding == nil && c.Denomination == nil {
		errs.Add("price_ending", "required for CUSTOM rounding without a denomination")
	}
	if c.MaxChangePercent != nil && c.MaxChangePercent.IsNegative() {
		errs.Add("max_change_percent", "must not be negative, got %s", c.MaxChangePercent.String())
	}
	for i, b := range c.Bands {
		if b.MaxChangePercent.IsNegative() {
			errs.Add(bandField(i, "max_change_percent"), "must not be negative")
		}
		if b.From != nil && b.To != nil && !b.From.LessThan(*b.To) {
			errs.Add(bandField(i, "from"), "must be below to")
		}
	}
	sorted := append([]PriceBand(nil), c.Bands...)
	sort.SliceStable(sorted, func(i, j int) bool { return lowerEdge(sorted[i]).LessThan(lowerEdge(sorted[j])) })
	for i := 1; i < len(sorted); i++ {
		prev := sorted[i-1]
		if prev.To == nil || lowerEdge(sorted[i]).LessThan(*prev.To) {
			errs.Add("bands", "bands must not overlap")
			break
		}
	}
	for region, adj := range c.RegionalAdjustments {
		if adj.LessThanOrEqual(hundred.Neg()) {
			errs.Add("regional_adjustments."+region, "must be above -100, got %s", adj.String())
		}
	}
	return errs
}

// Clone returns a deep copy.
func (c *PriceConstraints) Clone() *PriceConstraints {
	if c == nil {
		return nil
	}
	out := *c
	out.Bands = append([]PriceBand(nil), c.Bands...)
	if c.RegionalAdjustments != nil {
		out.RegionalAdjustments = make(map[string]decimal.Decimal, len(c.RegionalAdjustments))
		for k, v := range c.RegionalAdjustments {
			out.RegionalAdjustments[k] = v
		}
	}
	return &out
}

func lowerEdge(b PriceBand) decimal.Decimal {
	if b.From == nil {
		return decimal.Zero
	}
	return *b.From
}

func bandField(i int, name string) string {
	return "bands[" + itoa(i) + "]." + name
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

func ptr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
