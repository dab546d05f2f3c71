package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/solatis/pricekeeper/internal/core/auth"
	"github.com/solatis/pricekeeper/internal/pricing"
	"github.com/solatis/pricekeeper/internal/rules"
	"github.com/solatis/pricekeeper/internal/types"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"
)

type evaluateRequest struct {
	ProductID   string           `json:"productId"`
	SellerID    string           `json:"sellerId"`
	SiteID      string           `json:"siteId"`
	CategoryID  string           `json:"categoryId"`
	BrandID     string           `json:"brandId"`
	Region      string           `json:"region"`
	BasePrice   decimal.Decimal  `json:"basePrice"`
	CostPrice   decimal.Decimal  `json:"costPrice"`
	MRP         decimal.Decimal  `json:"mrp"`
	Quantity    int              `json:"quantity"`
	Attributes  types.Attributes `json:"attributes"`
	EvaluatedAt *time.Time       `json:"evaluatedAt"`
}

type appliedRule struct {
	RuleID           string           `json:"ruleId"`
	RuleName         string           `json:"ruleName"`
	RuleType         string           `json:"ruleType"`
	OriginalPrice    decimal.Decimal  `json:"originalPrice"`
	AdjustedPrice    decimal.Decimal  `json:"adjustedPrice"`
	DiscountAmount   decimal.Decimal  `json:"discountAmount"`
	MarginPercentage *decimal.Decimal `json:"marginPercentage,omitempty"`
	Metadata         map[string]any   `json:"metadata,omitempty"`
}

type evaluateResponse struct {
	ProductID     string          `json:"productId"`
	OriginalPrice decimal.Decimal `json:"originalPrice"`
	FinalPrice    decimal.Decimal `json:"finalPrice"`
	EvaluatedAt   time.Time       `json:"evaluatedAt"`
	AppliedRules  []appliedRule   `json:"appliedRules"`
}

func (r evaluateRequest) context() *rules.EvaluationContext {
	quantity := r.Quantity
	if quantity == 0 {
		quantity = 1
	}
	ec := &rules.EvaluationContext{
		ProductID:  r.ProductID,
		SellerID:   r.SellerID,
		SiteID:     r.SiteID,
		CategoryID: r.CategoryID,
		BrandID:    r.BrandID,
		Region:     r.Region,
		BasePrice:  r.BasePrice,
		CostPrice:  r.CostPrice,
		MRP:        r.MRP,
		Quantity:   quantity,
		Attributes: r.Attributes,
	}
	if r.EvaluatedAt != nil {
		ec.EvaluatedAt = r.EvaluatedAt.UTC()
	}
	return ec
}

// EvaluatePrice prices one product for one seller on one site.
// Seller-scoped keys may only price their own seller.
func (s *PricingService) EvaluatePrice(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	var req evaluateRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if !p.MaySell(req.SellerID) {
		return nil, toStatus(fmt.Errorf("%w: %s", auth.ErrSellerScope, req.SellerID))
	}

	start := s.now()
	eval, err := s.pricer.Evaluate(ctx, req.context())
	took := s.now().Sub(start)
	if err != nil {
		outcome := "error"
		if errors.Is(err, types.ErrInvalidContext) {
			outcome = "invalid"
		} else {
			s.logger.Error("evaluation failed",
				zap.String("product_id", req.ProductID),
				zap.String("seller_id", req.SellerID),
				zap.Error(err))
		}
		s.recorder.Evaluation(outcome, took, 0)
		return nil, toStatus(err)
	}

	outcome := "unchanged"
	if len(eval.Applied) > 0 {
		outcome = "priced"
	}
	s.recorder.Evaluation(outcome, took, len(eval.Applied))

	return encode(evaluationResponse(eval))
}

func evaluationResponse(eval *pricing.Evaluation) evaluateResponse {
	resp := evaluateResponse{
		ProductID:     eval.ProductID,
		OriginalPrice: eval.OriginalPrice,
		FinalPrice:    eval.FinalPrice,
		EvaluatedAt:   eval.EvaluatedAt,
		AppliedRules:  make([]appliedRule, 0, len(eval.Applied)),
	}
	for _, r := range eval.Applied {
		resp.AppliedRules = append(resp.AppliedRules, appliedRule{
			RuleID:           string(r.RuleID),
			RuleName:         r.RuleName,
			RuleType:         string(r.RuleType),
			OriginalPrice:    r.OriginalPrice,
			AdjustedPrice:    r.AdjustedPrice,
			DiscountAmount:   r.DiscountAmount,
			MarginPercentage: r.MarginPercentage,
			Metadata:         r.Metadata,
		})
	}
	return resp
}
