package types

import (
	"fmt"
	"strings"
	"time"
)

// RuleStatus is the lifecycle state of a pricing rule.
type RuleStatus string

const (
	StatusDraft           RuleStatus = "DRAFT"
	StatusPendingApproval RuleStatus = "PENDING_APPROVAL"
	StatusApproved        RuleStatus = "APPROVED"
	StatusActive          RuleStatus = "ACTIVE"
	StatusScheduled       RuleStatus = "SCHEDULED"
	StatusInactive        RuleStatus = "INACTIVE"
	StatusSuspended       RuleStatus = "SUSPENDED"
	StatusExpired         RuleStatus = "EXPIRED"
	StatusRejected        RuleStatus = "REJECTED"
	StatusArchived        RuleStatus = "ARCHIVED"
)

// AllStatuses lists every lifecycle state in declaration order.
var AllStatuses = []RuleStatus{
	StatusDraft,
	StatusPendingApproval,
	StatusApproved,
	StatusActive,
	StatusScheduled,
	StatusInactive,
	StatusSuspended,
	StatusExpired,
	StatusRejected,
	StatusArchived,
}

// ParseRuleStatus accepts any casing ("active", "Active", "ACTIVE").
func ParseRuleStatus(s string) (RuleStatus, error) {
	candidate := RuleStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range AllStatuses {
		if st == candidate {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
}

// StatusChange is the audit record of one lifecycle transition.
type StatusChange struct {
	ID        string
	RuleID    RuleID
	OldStatus RuleStatus
	NewStatus RuleStatus
	Reason    string
	Actor     string
	ChangedAt time.Time
}
