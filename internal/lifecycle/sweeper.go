// internal/lifecycle/sweeper.go
package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/solatis/pricekeeper/internal/types"
	"go.uber.org/zap"
)

/*
 * Effective-window sweeper.
 *
 * Moves SCHEDULED rules to ACTIVE once EffectiveFrom is reached and ACTIVE
 * rules to EXPIRED once EffectiveTo has passed. Every move goes through
 * Machine.Transition, so activation checks, audit and notifications apply
 * exactly as for a manual change. One failing rule does not stop the sweep.
 */

// RuleLister returns rules in any of the given statuses.
type RuleLister interface {
	ListByStatus(ctx context.Context, statuses ...types.RuleStatus) ([]*types.PricingRule, error)
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	Activated []types.RuleID
	Expired   []types.RuleID
	Failed    map[types.RuleID]error
}

// Sweeper applies time-driven transitions.
type Sweeper struct {
	machine *Machine
	rules   RuleLister
	logger  *zap.Logger
}

// NewSweeper creates a sweeper driving machine.
func NewSweeper(machine *Machine, rules RuleLister, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{machine: machine, rules: rules, logger: logger}
}

// Sweep runs one pass at now.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (SweepReport, error) {
	report := SweepReport{Failed: map[types.RuleID]error{}}

	candidates, err := s.rules.ListByStatus(ctx, types.StatusScheduled, types.StatusActive)
	if err != nil {
		return report, err
	}

	for _, r := range candidates {
		var to types.RuleStatus
		switch {
		case r.Status == types.StatusActive && r.EffectiveTo != nil && now.After(*r.EffectiveTo):
			to = types.StatusExpired
		case r.Status == types.StatusScheduled && r.EffectiveFrom != nil && !now.Before(*r.EffectiveFrom) &&
			(r.EffectiveTo == nil || !now.After(*r.EffectiveTo)):
			to = types.StatusActive
		default:
			continue
		}

		_, err := s.machine.Transition(ctx, Request{
			RuleID: r.ID,
			To:     to,
			Actor:  "sweeper",
			Reason: "effective window",
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return report, err
			}
			s.logger.Warn("sweep transition failed",
				zap.String("rule_id", string(r.ID)),
				zap.String("to", string(to)),
				zap.Error(err))
			report.Failed[r.ID] = err
			continue
		}
		if to == types.StatusExpired {
			report.Expired = append(report.Expired, r.ID)
		} else {
			report.Activated = append(report.Activated, r.ID)
		}
	}
	return report, nil
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-ticker.C:
			report, err := s.Sweep(ctx, t)
			if err != nil {
				s.logger.Error("sweep failed", zap.Error(err))
				continue
			}
			if len(report.Activated)+len(report.Expired)+len(report.Failed) > 0 {
				s.logger.Info("sweep complete",
					zap.Int("activated", len(report.Activated)),
					zap.Int("expired", len(report.Expired)),
					zap.Int("failed", len(report.Failed)))
			}
		}
	}
}
