// internal/pricing/service.go
package pricing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/solatis/pricekeeper/internal/constraints"
	"github.com/solatis/pricekeeper/internal/rules"
	"github.com/solatis/pricekeeper/internal/types"
	"go.uber.org/zap"
)

/*
 * Rule evaluation orchestration.
 *
 * Evaluate composes the pipeline for one pricing request:
 *
 *   resolve -> for each rule (priority order):
 *                conditions -> actions -> constraints -> fold
 *
 * The price each rule starts from is the previous rule's constrained output.
 * A rule whose conditions fail, whose actions error, or whose time slot is
 * exhausted contributes nothing and the fold continues. Only a malformed
 * request or a store failure aborts the call; there is no partial result.
 *
 * Constraints run per rule in a fixed order:
 *
 *   0. blackout suppression or adjustment
 *   1. clamp to the tightest of rule and seller/site price bounds
 *   2. margin floor and ceiling (tier, category and seller overrides)
 *   3. maximum change relative to the rule's starting price
 *   4. regional adjustment
 *   5. rounding
 */

// Evaluation is the outcome of one pricing request.
type Evaluation struct {
	ProductID     string          `json:"product_id"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	FinalPrice    decimal.Decimal `json:"final_price"`
	Applied       []rules.Result  `json:"applied_rules"`
	EvaluatedAt   time.Time       `json:"evaluated_at"`
}

// Service evaluates pricing requests.
type Service struct {
	resolver *Resolver
	engine   *rules.Engine
	slots    *constraints.SlotCounter
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used when a request carries no timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSlotCounter shares a slot counter between services.
func WithSlotCounter(c *constraints.SlotCounter) Option {
	return func(s *Service) {
		if c != nil {
			s.slots = c
		}
	}
}

// NewService wires the resolver and engine into an evaluation service.
func NewService(resolver *Resolver, engine *rules.Engine, opts ...Option) *Service {
	s := &Service{
		resolver: resolver,
		engine:   engine,
		slots:    constraints.NewSlotCounter(),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate prices one product for one seller on one site.
// ec is not retained; its lookup cache serves this call only.
func (s *Service) Evaluate(ctx context.Context, ec *rules.EvaluationContext) (*Evaluation, error) {
	if err := ec.Validate(); err != nil {
		return nil, err
	}
	at := ec.EvaluatedAt
	if at.IsZero() {
		at = s.now()
		ec.EvaluatedAt = at
	}

	applicable, err := s.resolver.Applicable(ctx, types.ApplicabilityQuery{
		SellerID:   ec.SellerID,
		SiteID:     ec.SiteID,
		CategoryID: ec.CategoryID,
		BrandID:    ec.BrandID,
		At:         at,
	})
	if err != nil {
		return nil, err
	}

	original := ec.Price()
	price := original
	applied := make([]rules.Result, 0, len(applicable))

	for _, rule := range applicable {
		res, ok, err := s.engine.Apply(ctx, rule, ec, price)
		if err != nil || !ok {
			// failures were logged and counted by the engine
			continue
		}
		if !s.acquireSlot(rule, at) {
			s.logger.Debug("slot capacity exhausted, rule skipped",
				zap.String("rule_id", string(rule.ID())))
			continue
		}

		final := ApplyConstraints(rule.Rule, ec, price, res.AdjustedPrice)
		res = res.WithAdjustedPrice(final, ec.CostPrice)
		applied = append(applied, res)

		s.logger.Debug("rule applied",
			zap.String("rule_id", string(rule.ID())),
			zap.String("product_id", ec.ProductID),
			zap.Stringer("from", price),
			zap.Stringer("to", final))
		price = final
	}

	return &Evaluation{
		ProductID:     ec.ProductID,
		OriginalPrice: original,
		FinalPrice:    price,
		Applied:       applied,
		EvaluatedAt:   at,
	}, nil
}

// acquireSlot consumes slot capacity for rules that declare slots.
// Special windows bypass slots entirely.
func (s *Service) acquireSlot(rule *rules.CompiledRule, at time.Time) bool {
	tc := rule.Rule.TimeConstraints
	if tc == nil || len(tc.Slots) == 0 || tc.InSpecialWindow(at) != nil {
		return true
	}
	slot := tc.SlotAt(at)
	if slot == nil {
		return false
	}
	return s.slots.Acquire(string(rule.ID()), *slot, tc.Local(at))
}

// ApplyConstraints shapes a rule's action output into its final price.
// start is the price the rule began with; proposed is what its actions produced.
func ApplyConstraints(r *types.PricingRule, ec *rules.EvaluationContext, start, proposed decimal.Decimal) decimal.Decimal {
	p := proposed

	if bo := r.TimeConstraints.ActiveBlackout(ec.EvaluatedAt); bo != nil {
		p = bo.Suppress(start, p)
	}

	priceBounds, marginBounds := effectiveBounds(r, ec)
	p = priceBounds.Clamp(p)

	mc := r.MarginConstraints
	resolved := mc.Resolve(marginBounds, ec.SellerID, ec.CategoryID, p)
	p = constraints.ApplyMargin(p, ec.CostPrice, ec.MRP, resolved, mc.EffectiveBasis())

	pc := r.PriceConstraints
	p = pc.LimitChange(start, p)
	p = pc.ApplyRegion(p, ec.Region)
	p = pc.Round(p)

	if p.IsNegative() {
		return decimal.Zero
	}
	return p
}

// effectiveBounds intersects rule-level bounds with every covering
// seller/site override, so the tightest limit on each side wins.
func effectiveBounds(r *types.PricingRule, ec *rules.EvaluationContext) (price, margin constraints.Bounds) {
	price = constraints.Bounds{Min: r.MinimumPrice, Max: r.MaximumPrice}
	margin = constraints.Bounds{Min: r.MinimumMargin, Max: r.MaximumMargin}
	for _, cfg := range r.SellerSiteConfigs {
		if !cfg.Covers(ec.SellerID, ec.SiteID, ec.CategoryID, ec.BrandID) {
			continue
		}
		price = price.Intersect(constraints.Bounds{Min: cfg.MinimumPrice, Max: cfg.MaximumPrice})
		margin = margin.Intersect(constraints.Bounds{Min: cfg.MinimumMargin, Max: cfg.MaximumMargin})
	}
	return price, margin
}
