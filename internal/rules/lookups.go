// internal/rules/lookups.go
package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/solatis/pricekeeper/internal/types"
)

/*
 * External fact sources used by conditions and actions.
 *
 * Every lookup goes through the request's LookupCache (one call per source
 * and key per evaluation) and runs under the engine's lookup timeout. A
 * missing source, an error, a timeout and "no value" all collapse into
 * ErrLookupUnavailable: conditions treat it as false, actions as a no-op.
 */

// CompetitorPriceSource returns a competitor's current price for a product.
// ok is false when the competitor does not list the product.
type CompetitorPriceSource interface {
	CompetitorPrice(ctx context.Context, productID, competitorID string) (price decimal.Decimal, ok bool, err error)
}

// InventorySource returns the stock level of a product for a seller on a site.
type InventorySource interface {
	InventoryLevel(ctx context.Context, productID, sellerID, siteID string) (int, error)
}

// BundleSource returns the discount a bundle grants to a member product.
// ok is false when the product is not part of the bundle.
type BundleSource interface {
	BundleDiscountPercent(ctx context.Context, bundleID, productID string) (percent decimal.Decimal, ok bool, err error)
}

// SalesVelocitySource returns units sold per day.
type SalesVelocitySource interface {
	SalesVelocity(ctx context.Context, productID, sellerID, siteID string) (decimal.Decimal, error)
}

// CategoryAttributeSource returns the attribute document of a category.
type CategoryAttributeSource interface {
	CategoryAttributes(ctx context.Context, categoryID string) (map[string]any, error)
}

// Sources bundles the optional lookup collaborators. Nil members are unavailable.
type Sources struct {
	Competitors   CompetitorPriceSource
	Inventory     InventorySource
	Bundles       BundleSource
	SalesVelocity SalesVelocitySource
	Categories    CategoryAttributeSource
}

const (
	sourceCompetitor = "competitor_price"
	sourceInventory  = "inventory"
	sourceBundle     = "bundle"
	sourceVelocity   = "sales_velocity"
	sourceCategory   = "category_attributes"
)

func (e *Engine) lookup(ctx context.Context, ec *EvaluationContext, source, key string, fetch func(context.Context) (any, error)) (any, error) {
	return ec.Cache().Memo(source+"|"+key, func() (any, error) {
		lctx, cancel := e.lookupContext(ctx)
		defer cancel()
		v, err := fetch(lctx)
		if err != nil {
			e.observer.LookupUnavailable(source)
			return nil, fmt.Errorf("%w: %s %s: %v", types.ErrLookupUnavailable, source, key, err)
		}
		return v, nil
	})
}

var (
	errNoValue  = errors.New("no value")
	errNoSource = errors.New("no source configured")
)

func (e *Engine) competitorPrice(ctx context.Context, ec *EvaluationContext, competitorID string) (decimal.Decimal, error) {
	v, err := e.lookup(ctx, ec, sourceCompetitor, ec.ProductID+"|"+competitorID, func(ctx context.Context) (any, error) {
		if e.sources.Competitors == nil {
			return nil, errNoSource
		}
		p, ok, err := e.sources.Competitors.CompetitorPrice(ctx, ec.ProductID, competitorID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errNoValue
		}
		return p, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}

func (e *Engine) inventoryLevel(ctx context.Context, ec *EvaluationContext) (int, error) {
	v, err := e.lookup(ctx, ec, sourceInventory, ec.ProductID+"|"+ec.SellerID+"|"+ec.SiteID, func(ctx context.Context) (any, error) {
		if e.sources.Inventory == nil {
			return nil, errNoSource
		}
		return e.sources.Inventory.InventoryLevel(ctx, ec.ProductID, ec.SellerID, ec.SiteID)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (e *Engine) bundleDiscount(ctx context.Context, ec *EvaluationContext, bundleID string) (decimal.Decimal, error) {
	v, err := e.lookup(ctx, ec, sourceBundle, bundleID+"|"+ec.ProductID, func(ctx context.Context) (any, error) {
		if e.sources.Bundles == nil {
			return nil, errNoSource
		}
		pct, ok, err := e.sources.Bundles.BundleDiscountPercent(ctx, bundleID, ec.ProductID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errNoValue
		}
		return pct, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}

func (e *Engine) salesVelocity(ctx context.Context, ec *EvaluationContext) (decimal.Decimal, error) {
	v, err := e.lookup(ctx, ec, sourceVelocity, ec.ProductID+"|"+ec.SellerID+"|"+ec.SiteID, func(ctx context.Context) (any, error) {
		if e.sources.SalesVelocity == nil {
			return nil, errNoSource
		}
		return e.sources.SalesVelocity.SalesVelocity(ctx, ec.ProductID, ec.SellerID, ec.SiteID)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}

func (e *Engine) categoryAttributes(ctx context.Context, ec *EvaluationContext) (map[string]any, error) {
	if ec.CategoryID == "" {
		return nil, fmt.Errorf("%w: product has no category", types.ErrLookupUnavailable)
	}
	v, err := e.lookup(ctx, ec, sourceCategory, ec.CategoryID, func(ctx context.Context) (any, error) {
		if e.sources.Categories == nil {
			return nil, errNoSource
		}
		return e.sources.Categories.CategoryAttributes(ctx, ec.CategoryID)
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}
