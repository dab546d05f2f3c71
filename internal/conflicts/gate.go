// internal/conflicts/gate.go
package conflicts

import (
	"context"
	"fmt"
	"strings"

	"github.com/solatis/pricekeeper/internal/types"
	"go.uber.org/zap"
)

// RuleLister returns rules in any of the given statuses.
type RuleLister interface {
	ListByStatus(ctx context.Context, statuses ...types.RuleStatus) ([]*types.PricingRule, error)
}

// Gate checks a rule about to be activated against the rules already live.
type Gate struct {
	store  RuleLister
	logger *zap.Logger
}

// NewGate creates an activation gate over store.
func NewGate(store RuleLister, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{store: store, logger: logger}
}

// Conflicts returns every conflict between candidate and the detectable rules.
func (g *Gate) Conflicts(ctx context.Context, candidate *types.PricingRule) ([]Conflict, error) {
	live, err := g.store.ListByStatus(ctx, Detectable...)
	if err != nil {
		return nil, fmt.Errorf("list rules for conflict check: %w", err)
	}
	var out []Conflict
	for _, other := range live {
		if other.ID == candidate.ID {
			continue
		}
		if c, ok := Between(candidate, other); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// Check fails with ErrRuleConflict when a blocking conflict exists.
// Non-blocking conflicts are logged and allowed.
func (g *Gate) Check(ctx context.Context, candidate *types.PricingRule) error {
	found, err := g.Conflicts(ctx, candidate)
	if err != nil {
		return err
	}
	var blocking []string
	for _, c := range found {
		if c.Blocking() {
			blocking = append(blocking, c.Message)
			continue
		}
		g.logger.Warn("rule conflict allowed",
			zap.String("rule_id", string(candidate.ID)),
			zap.String("kind", string(c.Kind)),
			zap.String("rule_a", string(c.RuleA)),
			zap.String("rule_b", string(c.RuleB)))
	}
	if len(blocking) > 0 {
		return fmt.Errorf("%w: %s", types.ErrRuleConflict, strings.Join(blocking, "; "))
	}
	return nil
}
