// internal/core/db/status.go
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/solatis/pricekeeper/internal/lifecycle"
	"github.com/solatis/pricekeeper/internal/types"
)

// statusChangeRow mirrors rule_status_changes.
type statusChangeRow struct {
	ID        string `db:"change_id"`
	RuleID    string `db:"rule_id"`
	OldStatus string `db:"old_status"`
	NewStatus string `db:"new_status"`
	Reason    string `db:"reason"`
	Actor     string `db:"actor"`
	ChangedAt string `db:"changed_at"`
}

// statusTx is the lifecycle.StatusTx view of one open transaction.
type statusTx struct {
	q *Queries
}

// WithinTx runs fn in a transaction for a status transition. The CAS and the
// audit insert commit together; any error from fn rolls both back.
func (s *Store) WithinTx(ctx context.Context, fn func(tx lifecycle.StatusTx) error) error {
	return s.inTx(ctx, func(q *Queries) error {
		return fn(&statusTx{q: q})
	})
}

func (t *statusTx) CompareAndSwapStatus(ctx context.Context, id types.RuleID, expected, next types.RuleStatus, actor string, at time.Time) error {
	res, err := t.q.Exec(ctx, "compare-and-swap-status",
		string(next), formatTime(at), actor, string(id), string(expected))
	if err != nil {
		return fmt.Errorf("update status of %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var count int
	if err := t.q.Get(ctx, "count-rule", &count, string(id)); err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", types.ErrRuleNotFound, id)
	}
	return fmt.Errorf("%w: %s is no longer %s", types.ErrConcurrentModification, id, expected)
}

func (t *statusTx) RecordStatusChange(ctx context.Context, c types.StatusChange) error {
	return recordStatusChange(ctx, t.q, c)
}

// RecordStatusChange appends an audit record outside any transition.
func (s *Store) RecordStatusChange(ctx context.Context, c types.StatusChange) error {
	return recordStatusChange(ctx, s.q, c)
}

func recordStatusChange(ctx context.Context, q *Queries, c types.StatusChange) error {
	if c.ID == "" {
		c.ID = types.NewID()
	}
	_, err := q.Exec(ctx, "insert-status-change",
		c.ID, string(c.RuleID), string(c.OldStatus), string(c.NewStatus), c.Reason, c.Actor, formatTime(c.ChangedAt))
	if err != nil {
		return fmt.Errorf("record status change of %s: %w", c.RuleID, err)
	}
	return nil
}

// StatusHistory returns the audit trail of a rule, oldest first.
func (s *Store) StatusHistory(ctx context.Context, id types.RuleID) ([]types.StatusChange, error) {
	var rows []statusChangeRow
	if err := s.q.Select(ctx, "list-status-changes", &rows, string(id)); err != nil {
		return nil, fmt.Errorf("status history of %s: %w", id, err)
	}
	out := make([]types.StatusChange, 0, len(rows))
	for _, row := range rows {
		at, err := parseTime(row.ChangedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, types.StatusChange{
			ID:        row.ID,
			RuleID:    types.RuleID(row.RuleID),
			OldStatus: types.RuleStatus(row.OldStatus),
			NewStatus: types.RuleStatus(row.NewStatus),
			Reason:    row.Reason,
			Actor:     row.Actor,
			ChangedAt: at,
		})
	}
	return out, nil
}

// inTx wraps fn in a transaction bound to a Queries copy.
func (s *Store) inTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(s.q.Tx(tx)); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
