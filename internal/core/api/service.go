// Package api provides the gRPC PricingAPI service for PriceKeeper.
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/solatis/pricekeeper/internal/buybox"
	"github.com/solatis/pricekeeper/internal/lifecycle"
	"github.com/solatis/pricekeeper/internal/pricing"
	"github.com/solatis/pricekeeper/internal/rules"
	"github.com/solatis/pricekeeper/internal/types"
	"go.uber.org/zap"
)

// DefaultMaxBatchSize bounds the offers accepted by one SelectBuybox call.
const DefaultMaxBatchSize = 1000

// Pricer evaluates one pricing request.
type Pricer interface {
	Evaluate(ctx context.Context, ec *rules.EvaluationContext) (*pricing.Evaluation, error)
}

// Ranker scores buybox offers, best first.
type Ranker interface {
	Rank(ctx context.Context, offers []buybox.Offer) ([]buybox.Scored, error)
}

// Transitioner applies rule status changes.
type Transitioner interface {
	Transition(ctx context.Context, req lifecycle.Request) (*types.PricingRule, error)
}

// RuleReader loads rules for conflict reports.
type RuleReader interface {
	GetRule(ctx context.Context, id types.RuleID) (*types.PricingRule, error)
	ListByStatus(ctx context.Context, statuses ...types.RuleStatus) ([]*types.PricingRule, error)
}

// Recorder receives per-call outcomes for metrics.
type Recorder interface {
	Evaluation(outcome string, took time.Duration, applied int)
	Transition(to string)
	Buybox(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) Evaluation(string, time.Duration, int) {}
func (nopRecorder) Transition(string)                     {}
func (nopRecorder) Buybox(string)                         {}

// PricingService implements PricingAPIServer.
// Thin orchestration layer delegating to pricing, buybox, lifecycle and conflicts.
type PricingService struct {
	pricer       Pricer
	ranker       Ranker
	machine      Transitioner
	rules        RuleReader
	recorder     Recorder
	logger       *zap.Logger
	maxBatchSize int
	now          func() time.Time
}

// Option configures a PricingService.
type Option func(*PricingService)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *PricingService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *PricingService) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithMaxBatchSize overrides DefaultMaxBatchSize. Non-positive values are ignored.
func WithMaxBatchSize(n int) Option {
	return func(s *PricingService) {
		if n > 0 {
			s.maxBatchSize = n
		}
	}
}

// NewPricingService creates service instance with dependencies.
func NewPricingService(pricer Pricer, ranker Ranker, machine Transitioner, reader RuleReader, opts ...Option) (*PricingService, error) {
	if pricer == nil {
		return nil, fmt.Errorf("pricer cannot be nil")
	}
	if ranker == nil {
		return nil, fmt.Errorf("ranker cannot be nil")
	}
	if machine == nil {
		return nil, fmt.Errorf("machine cannot be nil")
	}
	if reader == nil {
		return nil, fmt.Errorf("rule reader cannot be nil")
	}

	s := &PricingService{
		pricer:       pricer,
		ranker:       ranker,
		machine:      machine,
		rules:        reader,
		recorder:     nopRecorder{},
		logger:       zap.NewNop(),
		maxBatchSize: DefaultMaxBatchSize,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}
