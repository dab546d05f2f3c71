// internal/lifecycle/transitions.go
package lifecycle

import (
	"fmt"

	"github.com/solatis/pricekeeper/internal/types"
)

/*
 * Status adjacency.
 *
 * The table is fixed at compile time and never mutated; Targets hands out
 * copies. ARCHIVED has no outgoing edges. A same-state request is not an
 * edge: callers treat it as a successful no-op before consulting the table.
 */

var adjacency = map[types.RuleStatus][]types.RuleStatus{
	types.StatusDraft:           {types.StatusPendingApproval, types.StatusArchived},
	types.StatusPendingApproval: {types.StatusApproved, types.StatusRejected, types.StatusDraft},
	types.StatusApproved:        {types.StatusActive, types.StatusScheduled, types.StatusInactive},
	types.StatusActive:          {types.StatusInactive, types.StatusSuspended, types.StatusExpired},
	types.StatusInactive:        {types.StatusActive, types.StatusArchived},
	types.StatusSuspended:       {types.StatusActive, types.StatusInactive, types.StatusArchived},
	types.StatusScheduled:       {types.StatusActive, types.StatusInactive, types.StatusDraft},
	types.StatusRejected:        {types.StatusDraft, types.StatusArchived},
	types.StatusExpired:         {types.StatusArchived},
	types.StatusArchived:        {},
}

// Allowed reports whether from -> to is an edge of the lifecycle graph.
func Allowed(from, to types.RuleStatus) bool {
	for _, s := range adjacency[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Targets returns the statuses reachable from from in one step.
func Targets(from types.RuleStatus) []types.RuleStatus {
	return append([]types.RuleStatus(nil), adjacency[from]...)
}

// CheckTransition returns nil for adjacent or same-state pairs and an
// ErrInvalidTransition naming both states otherwise.
func CheckTransition(from, to types.RuleStatus) error {
	if from == to || Allowed(from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", types.ErrInvalidTransition, from, to)
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s types.RuleStatus) bool {
	return len(adjacency[s]) == 0
}
