// internal/core/db/sources.go
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

/*
 * SQL-backed fact sources for conditions, actions and buybox scoring.
 *
 * Missing rows are answers, not errors: an unlisted competitor or bundle
 * member is ok=false, a product without sales history sells 0 per day, a
 * category without attributes has an empty document, an unrated seller
 * rates 0. Only driver failures are returned as errors.
 */

// CompetitorPrice implements rules.CompetitorPriceSource.
func (s *Store) CompetitorPrice(ctx context.Context, productID, competitorID string) (decimal.Decimal, bool, error) {
	var price decimal.Decimal
	err := s.q.Get(ctx, "get-competitor-price", &price, productID, competitorID)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("competitor price %s/%s: %w", productID, competitorID, err)
	}
	return price, true, nil
}

// PutCompetitorPrice records the latest observed competitor price.
func (s *Store) PutCompetitorPrice(ctx context.Context, productID, competitorID string, price decimal.Decimal) error {
	_, err := s.q.Exec(ctx, "upsert-competitor-price", productID, competitorID, price, formatTime(s.now()))
	return err
}

// BundleDiscountPercent implements rules.BundleSource.
func (s *Store) BundleDiscountPercent(ctx context.Context, bundleID, productID string) (decimal.Decimal, bool, error) {
	var pct decimal.Decimal
	err := s.q.Get(ctx, "get-bundle-discount", &pct, bundleID, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("bundle %s/%s: %w", bundleID, productID, err)
	}
	return pct, true, nil
}

// PutBundleItem adds or updates a bundle member.
func (s *Store) PutBundleItem(ctx context.Context, bundleID, productID string, discountPercent decimal.Decimal) error {
	_, err := s.q.Exec(ctx, "upsert-bundle-item", bundleID, productID, discountPercent)
	return err
}

// SalesVelocity implements rules.SalesVelocitySource.
func (s *Store) SalesVelocity(ctx context.Context, productID, sellerID, siteID string) (decimal.Decimal, error) {
	var units decimal.Decimal
	err := s.q.Get(ctx, "get-sales-velocity", &units, productID, sellerID, siteID)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("sales velocity %s: %w", productID, err)
	}
	return units, nil
}

// PutSalesVelocity records units sold per day.
func (s *Store) PutSalesVelocity(ctx context.Context, productID, sellerID, siteID string, unitsPerDay decimal.Decimal) error {
	_, err := s.q.Exec(ctx, "upsert-sales-velocity", productID, sellerID, siteID, unitsPerDay)
	return err
}

// CategoryAttributes implements rules.CategoryAttributeSource.
func (s *Store) CategoryAttributes(ctx context.Context, categoryID string) (map[string]any, error) {
	var doc string
	err := s.q.Get(ctx, "get-category-attributes", &doc, categoryID)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("category attributes %s: %w", categoryID, err)
	}
	attrs := map[string]any{}
	if err := json.Unmarshal([]byte(doc), &attrs); err != nil {
		return nil, fmt.Errorf("category attributes %s: %w", categoryID, err)
	}
	return attrs, nil
}

// PutCategoryAttributes replaces a category's attribute document.
func (s *Store) PutCategoryAttributes(ctx context.Context, categoryID string, attrs map[string]any) error {
	b, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	_, err = s.q.Exec(ctx, "upsert-category-attributes", categoryID, string(b))
	return err
}

// SellerRating implements buybox.SellerScoreSource.
func (s *Store) SellerRating(ctx context.Context, sellerID string) (float64, error) {
	var rating float64
	err := s.q.Get(ctx, "get-seller-rating", &rating, sellerID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("seller rating %s: %w", sellerID, err)
	}
	return rating, nil
}

// PutSellerRating records a seller rating in [0, 1].
func (s *Store) PutSellerRating(ctx context.Context, sellerID string, rating float64) error {
	_, err := s.q.Exec(ctx, "upsert-seller-rating", sellerID, rating)
	return err
}

// SetClock overrides the store clock; used for deterministic timestamps.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}
