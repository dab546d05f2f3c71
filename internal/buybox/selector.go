// internal/buybox/selector.go
package buybox

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

/*
 * Buybox winner selection.
 *
 * Among competing offers for one product, pick the one shown by default.
 *
 *   score = 0.4*price + 0.3*rating + 0.2*fulfillment + 0.1*stock
 *
 *   price        min(discount% / 50, 1), discount% = (MRP - selling) / MRP * 100
 *   rating       seller rating from SellerScoreSource, clamped to [0, 1]
 *   fulfillment  PRIME 1.0, EXPRESS 0.8, STANDARD 0.6, anything else 0.4
 *   stock        min(stock / 100, 1)
 *
 * Scores are decimals so equal inputs always compare equal. Ties go to the
 * lowest seller id, then the lowest offer id. A rating lookup failure
 * scores that seller 0 and is logged; it never fails the selection.
 */

// ErrNoEligibleOffer is returned when no offer passes eligibility.
var ErrNoEligibleOffer = errors.New("no eligible offer")

// FulfillmentTier is the seller's delivery promise for an offer.
type FulfillmentTier string

const (
	FulfillmentPrime    FulfillmentTier = "PRIME"
	FulfillmentExpress  FulfillmentTier = "EXPRESS"
	FulfillmentStandard FulfillmentTier = "STANDARD"
)

// Offer is one seller's price for a product on a site.
type Offer struct {
	ID           string
	ProductID    string
	SellerID     string
	SiteID       string
	SellingPrice decimal.Decimal
	MRP          decimal.Decimal
	Stock        int
	Fulfillment  FulfillmentTier

	PriceActive  bool
	SellerActive bool
	SiteActive   bool
}

// Eligible reports whether the offer may compete.
func (o Offer) Eligible() bool {
	return o.PriceActive && o.SellerActive && o.SiteActive && o.SellingPrice.Sign() > 0
}

// SellerScoreSource returns a seller rating in [0, 1].
type SellerScoreSource interface {
	SellerRating(ctx context.Context, sellerID string) (float64, error)
}

// Scored is an eligible offer with its score breakdown.
type Scored struct {
	Offer       Offer
	Score       decimal.Decimal
	Price       decimal.Decimal
	Rating      decimal.Decimal
	Fulfillment decimal.Decimal
	Stock       decimal.Decimal
}

var (
	weightPrice       = decimal.RequireFromString("0.4")
	weightRating      = decimal.RequireFromString("0.3")
	weightFulfillment = decimal.RequireFromString("0.2")
	weightStock       = decimal.RequireFromString("0.1")

	one         = decimal.NewFromInt(1)
	hundred     = decimal.NewFromInt(100)
	fifty       = decimal.NewFromInt(50)
	fullStock   = decimal.NewFromInt(100)
	ratingScale = int32(4)
)

// Selector scores and ranks offers.
type Selector struct {
	ratings SellerScoreSource
	logger  *zap.Logger
}

// NewSelector creates a selector. A nil ratings source scores every seller 0.
func NewSelector(ratings SellerScoreSource, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{ratings: ratings, logger: logger}
}

// SelectWinner returns the best eligible offer.
func (s *Selector) SelectWinner(ctx context.Context, offers []Offer) (*Offer, error) {
	ranked, err := s.Rank(ctx, offers)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return nil, ErrNoEligibleOffer
	}
	winner := ranked[0].Offer
	return &winner, nil
}

// Rank scores every eligible offer, best first.
func (s *Selector) Rank(ctx context.Context, offers []Offer) ([]Scored, error) {
	ratings := make(map[string]decimal.Decimal)
	out := make([]Scored, 0, len(offers))

	for _, o := range offers {
		if !o.Eligible() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rating, ok := ratings[o.SellerID]
		if !ok {
			rating = s.rating(ctx, o.SellerID)
			ratings[o.SellerID] = rating
		}
		out = append(out, score(o, rating))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Score.Cmp(out[j].Score); c != 0 {
			return c > 0
		}
		if out[i].Offer.SellerID != out[j].Offer.SellerID {
			return out[i].Offer.SellerID < out[j].Offer.SellerID
		}
		return out[i].Offer.ID < out[j].Offer.ID
	})
	return out, nil
}

func (s *Selector) rating(ctx context.Context, sellerID string) decimal.Decimal {
	if s.ratings == nil {
		return decimal.Zero
	}
	r, err := s.ratings.SellerRating(ctx, sellerID)
	if err != nil {
		s.logger.Warn("seller rating unavailable, scoring 0",
			zap.String("seller_id", sellerID),
			zap.Error(err))
		return decimal.Zero
	}
	if math.IsNaN(r) || math.IsInf(r, 0) {
		s.logger.Warn("seller rating not a number, scoring 0",
			zap.String("seller_id", sellerID),
			zap.Float64("rating", r))
		return decimal.Zero
	}
	return clamp01(decimal.NewFromFloat(r).Round(ratingScale))
}

func score(o Offer, rating decimal.Decimal) Scored {
	sc := Scored{
		Offer:       o,
		Price:       PriceScore(o.SellingPrice, o.MRP),
		Rating:      rating,
		Fulfillment: FulfillmentScore(o.Fulfillment),
		Stock:       StockScore(o.Stock),
	}
	sc.Score = weightPrice.Mul(sc.Price).
		Add(weightRating.Mul(sc.Rating)).
		Add(weightFulfillment.Mul(sc.Fulfillment)).
		Add(weightStock.Mul(sc.Stock))
	return sc
}

// PriceScore is min(discount%/50, 1); offers at or above MRP score 0.
func PriceScore(selling, mrp decimal.Decimal) decimal.Decimal {
	if mrp.Sign() <= 0 {
		return decimal.Zero
	}
	discount := mrp.Sub(selling).Div(mrp).Mul(hundred)
	return clamp01(discount.Div(fifty))
}

// FulfillmentScore maps a tier to its fixed score.
func FulfillmentScore(t FulfillmentTier) decimal.Decimal {
	switch t {
	case FulfillmentPrime:
		return one
	case FulfillmentExpress:
		return decimal.RequireFromString("0.8")
	case FulfillmentStandard:
		return decimal.RequireFromString("0.6")
	default:
		return decimal.RequireFromString("0.4")
	}
}

// StockScore is min(stock/100, 1).
func StockScore(stock int) decimal.Decimal {
	if stock <= 0 {
		return decimal.Zero
	}
	return clamp01(decimal.NewFromInt(int64(stock)).Div(fullStock))
}

func clamp01(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(one) {
		return one
	}
	return d
}
