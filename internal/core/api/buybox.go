package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/solatis/pricekeeper/internal/buybox"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type offerMessage struct {
	ID           string          `json:"id"`
	ProductID    string          `json:"productId"`
	SellerID     string          `json:"sellerId"`
	SiteID       string          `json:"siteId"`
	SellingPrice decimal.Decimal `json:"sellingPrice"`
	MRP          decimal.Decimal `json:"mrp"`
	Stock        int             `json:"stock"`
	Fulfillment  string          `json:"fulfillment"`
	PriceActive  bool            `json:"priceActive"`
	SellerActive bool            `json:"sellerActive"`
	SiteActive   bool            `json:"siteActive"`
}

type buyboxRequest struct {
	Offers []offerMessage `json:"offers"`
	Rank   bool           `json:"rank"`
}

type scoredOffer struct {
	OfferID     string          `json:"offerId"`
	SellerID    string          `json:"sellerId"`
	Price       decimal.Decimal `json:"sellingPrice"`
	Score       decimal.Decimal `json:"score"`
	PriceScore  decimal.Decimal `json:"priceScore"`
	Rating      decimal.Decimal `json:"ratingScore"`
	Fulfillment decimal.Decimal `json:"fulfillmentScore"`
	Stock       decimal.Decimal `json:"stockScore"`
}

type buyboxResponse struct {
	Winner scoredOffer   `json:"winner"`
	Ranked []scoredOffer `json:"ranked,omitempty"`
}

func (o offerMessage) offer() buybox.Offer {
	return buybox.Offer{
		ID:           o.ID,
		ProductID:    o.ProductID,
		SellerID:     o.SellerID,
		SiteID:       o.SiteID,
		SellingPrice: o.SellingPrice,
		MRP:          o.MRP,
		Stock:        o.Stock,
		Fulfillment:  buybox.FulfillmentTier(o.Fulfillment),
		PriceActive:  o.PriceActive,
		SellerActive: o.SellerActive,
		SiteActive:   o.SiteActive,
	}
}

func toScored(s buybox.Scored) scoredOffer {
	return scoredOffer{
		OfferID:     s.Offer.ID,
		SellerID:    s.Offer.SellerID,
		Price:       s.Offer.SellingPrice,
		Score:       s.Score,
		PriceScore:  s.Price,
		Rating:      s.Rating,
		Fulfillment: s.Fulfillment,
		Stock:       s.Stock,
	}
}

// SelectBuybox picks the winning offer. With rank set, every eligible offer
// is returned in score order as well.
func (s *PricingService) SelectBuybox(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, err := principal(ctx); err != nil {
		return nil, err
	}
	var req buyboxRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	// Reject batches exceeding max size
	if len(req.Offers) > s.maxBatchSize {
		return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("batch size exceeds maximum of %d offers", s.maxBatchSize))
	}

	offers := make([]buybox.Offer, len(req.Offers))
	for i, o := range req.Offers {
		offers[i] = o.offer()
	}

	ranked, err := s.ranker.Rank(ctx, offers)
	if err == nil && len(ranked) == 0 {
		err = buybox.ErrNoEligibleOffer
	}
	if err != nil {
		if errors.Is(err, buybox.ErrNoEligibleOffer) {
			s.recorder.Buybox("no_eligible")
			return nil, status.Error(codes.NotFound, err.Error())
		}
		s.recorder.Buybox("error")
		return nil, toStatus(err)
	}
	s.recorder.Buybox("won")

	resp := buyboxResponse{Winner: toScored(ranked[0])}
	if req.Rank {
		resp.Ranked = make([]scoredOffer, len(ranked))
		for i, r := range ranked {
			resp.Ranked[i] = toScored(r)
		}
	}
	return encode(resp)
}
