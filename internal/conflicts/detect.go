// internal/conflicts/detect.go
package conflicts

import (
	"fmt"
	"sort"
	"time"

	"github.com/solatis/pricekeeper/internal/types"
)

/*
 * Pairwise rule conflict detection.
 *
 * Two rules are candidates when they have the same priority, their seller
 * and site scopes overlap (an empty set is a wildcard) and their effective
 * windows overlap (nil ends are open). Rules with different priorities are
 * never reported: the resolver orders them unambiguously.
 *
 * Classification of a candidate pair:
 *
 *   same type, identical scope              -> PRIORITY_CONFLICT
 *   incompatible types, or same type with
 *   only partially overlapping scope        -> TYPE_CONFLICT
 *   anything else                           -> DATE_OVERLAP
 *
 * Only PRIORITY_CONFLICT blocks activation (see Gate). Detection is O(n^2)
 * over a candidate set of tens of rules per seller and site.
 */

// Kind classifies a conflict.
type Kind string

const (
	PriorityConflict Kind = "PRIORITY_CONFLICT"
	TypeConflict     Kind = "TYPE_CONFLICT"
	DateOverlap      Kind = "DATE_OVERLAP"
)

// Conflict describes one conflicting pair. RuleA sorts before RuleB.
type Conflict struct {
	Kind    Kind
	RuleA   types.RuleID
	RuleB   types.RuleID
	Message string
}

// Blocking reports whether the conflict prevents activation.
func (c Conflict) Blocking() bool {
	return c.Kind == PriorityConflict
}

// Detectable lists the statuses whose rules take part in detection.
var Detectable = []types.RuleStatus{types.StatusActive, types.StatusApproved, types.StatusScheduled}

func detectable(s types.RuleStatus) bool {
	for _, d := range Detectable {
		if d == s {
			return true
		}
	}
	return false
}

// Detect returns every conflict among rules in a detectable status,
// ordered by (RuleA, RuleB).
func Detect(rules []*types.PricingRule) []Conflict {
	var out []Conflict
	for i := 0; i < len(rules); i++ {
		if !detectable(rules[i].Status) {
			continue
		}
		for j := i + 1; j < len(rules); j++ {
			if !detectable(rules[j].Status) || rules[i].ID == rules[j].ID {
				continue
			}
			if c, ok := Between(rules[i], rules[j]); ok {
				out = append(out, c)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RuleA != out[j].RuleA {
			return out[i].RuleA < out[j].RuleA
		}
		return out[i].RuleB < out[j].RuleB
	})
	return out
}

// Between classifies a single pair regardless of status.
func Between(a, b *types.PricingRule) (Conflict, bool) {
	if a.Priority != b.Priority {
		return Conflict{}, false
	}
	if !overlaps(a.SellerIDs, b.SellerIDs) || !overlaps(a.SiteIDs, b.SiteIDs) {
		return Conflict{}, false
	}
	if !windowsOverlap(a.EffectiveFrom, a.EffectiveTo, b.EffectiveFrom, b.EffectiveTo) {
		return Conflict{}, false
	}

	if b.ID < a.ID {
		a, b = b, a
	}
	c := Conflict{RuleA: a.ID, RuleB: b.ID}
	identical := sameScope(a, b)
	switch {
	case a.Type == b.Type && identical:
		c.Kind = PriorityConflict
		c.Message = fmt.Sprintf("rules %s and %s share priority %d, type %s and scope", a.ID, b.ID, a.Priority, a.Type)
	case a.Type == b.Type:
		c.Kind = TypeConflict
		c.Message = fmt.Sprintf("rules %s and %s share priority %d and type %s with partially overlapping scope", a.ID, b.ID, a.Priority, a.Type)
	case Incompatible(a.Type, b.Type):
		c.Kind = TypeConflict
		c.Message = fmt.Sprintf("rules %s (%s) and %s (%s) share priority %d with incompatible types", a.ID, a.Type, b.ID, b.Type, a.Priority)
	default:
		c.Kind = DateOverlap
		c.Message = fmt.Sprintf("rules %s and %s share priority %d in overlapping windows", a.ID, b.ID, a.Priority)
	}
	return c, true
}

type direction int

const (
	setsPrice direction = iota
	lowersPrice
	raisesPrice
)

func directionOf(t types.RuleType) direction {
	switch t {
	case types.RuleTypeDiscount, types.RuleTypePromotional, types.RuleTypeClearance,
		types.RuleTypeBundle, types.RuleTypeQuantity:
		return lowersPrice
	case types.RuleTypeMarkup:
		return raisesPrice
	default:
		// PRICE, MARGIN, COMPETITIVE, DYNAMIC
		return setsPrice
	}
}

// Incompatible reports whether two rule types fight over the same price:
// two different price-setting types, or a lowering type against a raising one.
func Incompatible(a, b types.RuleType) bool {
	da, db := directionOf(a), directionOf(b)
	switch {
	case da == setsPrice && db == setsPrice:
		return a != b
	case da == lowersPrice && db == raisesPrice, da == raisesPrice && db == lowersPrice:
		return true
	}
	return false
}

func overlaps(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[s]; ok {
			return true
		}
	}
	return false
}

func sameScope(a, b *types.PricingRule) bool {
	return sameSet(a.SellerIDs, b.SellerIDs) &&
		sameSet(a.SiteIDs, b.SiteIDs) &&
		sameSet(a.CategoryIDs, b.CategoryIDs) &&
		sameSet(a.BrandIDs, b.BrandIDs)
}

func sameSet(a, b []string) bool {
	as, bs := toSet(a), toSet(b)
	if len(as) != len(bs) {
		return false
	}
	for s := range as {
		if _, ok := bs[s]; !ok {
			return false
		}
	}
	return true
}

func toSet(list []string) map[string]struct{} {
	set := make(map[string]struct{}, len(list))
	for _, s := range list {
		set[s] = struct{}{}
	}
	return set
}

// windowsOverlap compares closed intervals with open (nil) ends.
func windowsOverlap(aFrom, aTo, bFrom, bTo *time.Time) bool {
	if aTo != nil && bFrom != nil && aTo.Before(*bFrom) {
		return false
	}
	if bTo != nil && aFrom != nil && bTo.Before(*aFrom) {
		return false
	}
	return true
}
