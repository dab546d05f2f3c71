// internal/rules/context.go
package rules

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/solatis/pricekeeper/internal/types"
)

// EvaluationContext is the per-request pricing input.
// It is not safe for concurrent use and must not be shared between requests:
// the lookup cache it carries memoizes external facts for one call only.
type EvaluationContext struct {
	ProductID  string
	SellerID   string
	SiteID     string
	CategoryID string
	BrandID    string
	Region     string

	BasePrice    decimal.Decimal
	CostPrice    decimal.Decimal // zero when unknown
	MRP          decimal.Decimal // zero when unknown
	CurrentPrice decimal.Decimal // working price; BasePrice when zero
	Quantity     int

	Attributes  types.Attributes
	EvaluatedAt time.Time

	cache  *LookupCache
	priced bool
}

// Validate rejects contexts that make the whole evaluation meaningless.
func (ec *EvaluationContext) Validate() error {
	switch {
	case ec == nil:
		return fmt.Errorf("%w: nil context", types.ErrInvalidContext)
	case ec.ProductID == "":
		return fmt.Errorf("%w: product id required", types.ErrInvalidContext)
	case ec.SellerID == "":
		return fmt.Errorf("%w: seller id required", types.ErrInvalidContext)
	case ec.SiteID == "":
		return fmt.Errorf("%w: site id required", types.ErrInvalidContext)
	case ec.BasePrice.Sign() <= 0:
		return fmt.Errorf("%w: base price must be positive, got %s", types.ErrInvalidContext, ec.BasePrice)
	case ec.CostPrice.IsNegative():
		return fmt.Errorf("%w: cost price must not be negative, got %s", types.ErrInvalidContext, ec.CostPrice)
	case ec.MRP.IsNegative():
		return fmt.Errorf("%w: mrp must not be negative, got %s", types.ErrInvalidContext, ec.MRP)
	case ec.Quantity <= 0:
		return fmt.Errorf("%w: quantity must be positive, got %d", types.ErrInvalidContext, ec.Quantity)
	}
	return nil
}

// Price returns the working price, falling back to BasePrice. A price set
// through WithPrice is used even when it is zero.
func (ec *EvaluationContext) Price() decimal.Decimal {
	if !ec.priced && ec.CurrentPrice.IsZero() {
		return ec.BasePrice
	}
	return ec.CurrentPrice
}

// WithPrice returns a copy with a new working price sharing the lookup cache.
func (ec *EvaluationContext) WithPrice(p decimal.Decimal) *EvaluationContext {
	ec.Cache()
	next := *ec
	next.CurrentPrice = p
	next.priced = true
	return &next
}

// Cache returns the request-scoped lookup cache, creating it on first use.
func (ec *EvaluationContext) Cache() *LookupCache {
	if ec.cache == nil {
		ec.cache = NewLookupCache()
	}
	return ec.cache
}

// LookupCache memoizes external lookups for the duration of one evaluation.
// Errors are memoized as well so a failing source is asked once per request.
type LookupCache struct {
	entries map[string]lookupEntry
	fetches int
}

type lookupEntry struct {
	value any
	err   error
}

// NewLookupCache returns an empty cache.
func NewLookupCache() *LookupCache {
	return &LookupCache{entries: make(map[string]lookupEntry)}
}

// Memo returns the cached result for key, calling fetch on the first miss.
func (c *LookupCache) Memo(key string, fetch func() (any, error)) (any, error) {
	if e, ok := c.entries[key]; ok {
		return e.value, e.err
	}
	c.fetches++
	v, err := fetch()
	c.entries[key] = lookupEntry{value: v, err: err}
	return v, err
}

// Fetches reports how many lookups actually reached a source.
func (c *LookupCache) Fetches() int {
	return c.fetches
}
