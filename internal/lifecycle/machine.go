// internal/lifecycle/machine.go
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/solatis/pricekeeper/internal/types"
	"go.uber.org/zap"
)

/*
 * Rule status state machine.
 *
 * Transition validates the edge, checks activation requirements, then in
 * one transaction:
 *
 *   1. compare-and-swap (rule id, expected status) -> new status
 *   2. append the audit record
 *
 * Either failing rolls the whole change back; a lost CAS race surfaces as
 * ErrConcurrentModification. The notification goes out only after commit
 * and its failure is logged, never returned.
 */

// AuditSink records status changes. Implementations participating in a
// transaction must make the record visible only on commit.
type AuditSink interface {
	RecordStatusChange(ctx context.Context, change types.StatusChange) error
}

// StatusTx is the transactional view used for one transition.
type StatusTx interface {
	AuditSink
	// CompareAndSwapStatus moves id from expected to next, bumping the rule
	// version. It returns ErrConcurrentModification when the stored status
	// is no longer expected.
	CompareAndSwapStatus(ctx context.Context, id types.RuleID, expected, next types.RuleStatus, actor string, at time.Time) error
}

// Store is the persistence the machine needs.
type Store interface {
	GetRule(ctx context.Context, id types.RuleID) (*types.PricingRule, error)
	// WithinTx runs fn in a transaction, committing when fn returns nil.
	WithinTx(ctx context.Context, fn func(tx StatusTx) error) error
}

// ActivationGate vetoes activation, e.g. on a blocking rule conflict.
type ActivationGate interface {
	Check(ctx context.Context, candidate *types.PricingRule) error
}

// Request asks for one status change.
type Request struct {
	RuleID types.RuleID
	To     types.RuleStatus
	Actor  string
	Reason string
}

// Machine applies status transitions.
type Machine struct {
	store    Store
	gate     ActivationGate
	notifier NotificationSink
	logger   *zap.Logger
	now      func() time.Time
	onChange func(types.RuleID)
}

// Option configures a Machine.
type Option func(*Machine)

// WithGate installs an activation gate.
func WithGate(g ActivationGate) Option {
	return func(m *Machine) { m.gate = g }
}

// WithNotifier sets the post-commit notification sink.
func WithNotifier(n NotificationSink) Option {
	return func(m *Machine) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithLogger sets the machine logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the time source for audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// OnChange registers a callback run after each committed transition,
// typically compiled-cache invalidation.
func OnChange(fn func(types.RuleID)) Option {
	return func(m *Machine) { m.onChange = fn }
}

// NewMachine creates a state machine over store.
func NewMachine(store Store, opts ...Option) *Machine {
	m := &Machine{
		store:    store,
		notifier: NopNotifier{},
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Transition moves a rule to req.To and returns the updated rule.
// Requesting the current status is a successful no-op.
func (m *Machine) Transition(ctx context.Context, req Request) (*types.PricingRule, error) {
	rule, err := m.store.GetRule(ctx, req.RuleID)
	if err != nil {
		return nil, err
	}
	if rule.Status == req.To {
		return rule, nil
	}
	if err := CheckTransition(rule.Status, req.To); err != nil {
		return nil, err
	}
	if req.To == types.StatusActive {
		if err := m.checkActivation(ctx, rule); err != nil {
			return nil, err
		}
	}

	at := m.now().UTC()
	change := types.StatusChange{
		ID:        types.NewID(),
		RuleID:    rule.ID,
		OldStatus: rule.Status,
		NewStatus: req.To,
		Reason:    req.Reason,
		Actor:     req.Actor,
		ChangedAt: at,
	}

	err = m.store.WithinTx(ctx, func(tx StatusTx) error {
		if err := tx.CompareAndSwapStatus(ctx, rule.ID, rule.Status, req.To, req.Actor, at); err != nil {
			return err
		}
		if err := tx.RecordStatusChange(ctx, change); err != nil {
			return fmt.Errorf("record status change: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	updated := rule.Clone()
	updated.Status = req.To
	updated.Version++
	updated.UpdatedAt = at
	updated.UpdatedBy = req.Actor

	m.logger.Info("rule status changed",
		zap.String("rule_id", string(rule.ID)),
		zap.String("from", string(change.OldStatus)),
		zap.String("to", string(change.NewStatus)),
		zap.String("actor", req.Actor))

	if m.onChange != nil {
		m.onChange(rule.ID)
	}
	m.notify(ctx, updated, change)
	return updated, nil
}

// checkActivation enforces the minimum rule shape and the conflict gate.
func (m *Machine) checkActivation(ctx context.Context, rule *types.PricingRule) error {
	var conds, acts int
	for _, c := range rule.Conditions {
		if c.Enabled {
			conds++
		}
	}
	for _, a := range rule.Actions {
		if a.Enabled {
			acts++
		}
	}
	if conds == 0 || acts == 0 {
		return fmt.Errorf("%w: rule %s has %d enabled conditions and %d enabled actions, need at least one of each",
			types.ErrActivationRequirements, rule.ID, conds, acts)
	}
	if m.gate != nil {
		return m.gate.Check(ctx, rule)
	}
	return nil
}

func (m *Machine) notify(ctx context.Context, rule *types.PricingRule, change types.StatusChange) {
	kind, ok := NotificationFor(change.NewStatus)
	if !ok {
		return
	}
	n := Notification{
		Kind:     kind,
		RuleID:   rule.ID,
		RuleName: rule.Name,
		From:     change.OldStatus,
		To:       change.NewStatus,
		Actor:    change.Actor,
		Reason:   change.Reason,
		At:       change.ChangedAt,
	}
	if err := m.notifier.Notify(ctx, n); err != nil {
		m.logger.Warn("status notification failed",
			zap.String("rule_id", string(rule.ID)),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}
