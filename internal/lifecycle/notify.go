// internal/lifecycle/notify.go
package lifecycle

import (
	"context"
	"time"

	"github.com/solatis/pricekeeper/internal/types"
)

// NotificationKind names the event a transition announces.
type NotificationKind string

const (
	NotifyApprovalRequired NotificationKind = "APPROVAL_REQUIRED"
	NotifyApproved         NotificationKind = "APPROVED"
	NotifyRejected         NotificationKind = "REJECTED"
	NotifyActivated        NotificationKind = "ACTIVATED"
	NotifySuspended        NotificationKind = "SUSPENDED"
	NotifyExpired          NotificationKind = "EXPIRED"
)

// Notification is published after a committed transition.
type Notification struct {
	Kind     NotificationKind `json:"kind"`
	RuleID   types.RuleID     `json:"rule_id"`
	RuleName string           `json:"rule_name"`
	From     types.RuleStatus `json:"from"`
	To       types.RuleStatus `json:"to"`
	Actor    string           `json:"actor,omitempty"`
	Reason   string           `json:"reason,omitempty"`
	At       time.Time        `json:"at"`
}

// NotificationSink delivers notifications. Delivery is best effort.
type NotificationSink interface {
	Notify(ctx context.Context, n Notification) error
}

// NopNotifier drops every notification.
type NopNotifier struct{}

// Notify implements NotificationSink.
func (NopNotifier) Notify(context.Context, Notification) error { return nil }

// NotificationFor maps a target status to its notification, if any.
func NotificationFor(to types.RuleStatus) (NotificationKind, bool) {
	switch to {
	case types.StatusPendingApproval:
		return NotifyApprovalRequired, true
	case types.StatusApproved:
		return NotifyApproved, true
	case types.StatusRejected:
		return NotifyRejected, true
	case types.StatusActive:
		return NotifyActivated, true
	case types.StatusSuspended:
		return NotifySuspended, true
	case types.StatusExpired:
		return NotifyExpired, true
	}
	return "", false
}
