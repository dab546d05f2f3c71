package rules

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultLookupTimeout bounds a single external lookup.
const DefaultLookupTimeout = 200 * time.Millisecond

// Observer receives evaluation soft-failure events for metrics.
type Observer interface {
	ConditionFailed(conditionType string)
	ActionFailed(actionType string)
	LookupUnavailable(source string)
}

type nopObserver struct{}

func (nopObserver) ConditionFailed(string)   {}
func (nopObserver) ActionFailed(string)      {}
func (nopObserver) LookupUnavailable(string) {}

// Engine evaluates compiled rules against evaluation contexts.
// Safe for concurrent use; all per-request state lives in EvaluationContext.
type Engine struct {
	sources       Sources
	logger        *zap.Logger
	observer      Observer
	lookupTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for soft failures.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver sets the soft-failure observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithLookupTimeout overrides DefaultLookupTimeout. Non-positive values are ignored.
func WithLookupTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.lookupTimeout = d
		}
	}
}

// NewEngine creates a rules engine over the given lookup sources.
func NewEngine(sources Sources, opts ...Option) *Engine {
	e := &Engine{
		sources:       sources,
		logger:        zap.NewNop(),
		observer:      nopObserver{},
		lookupTimeout: DefaultLookupTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) lookupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.lookupTimeout)
}
