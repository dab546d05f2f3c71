// internal/lifecycle/machine_test.go
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/solatis/pricekeeper/internal/types"
)

var fixedNow = time.Date(2026, 10, 12, 9, 30, 0, 0, time.UTC)

// fakeStore stages writes per transaction and applies them on commit.
type fakeStore struct {
	rules     map[types.RuleID]*types.PricingRule
	audits    []types.StatusChange
	auditErr  error
	casErr    error
	commits   int
	rollbacks int
}

func newFakeStore(rules ...*types.PricingRule) *fakeStore {
	s := &fakeStore{rules: map[types.RuleID]*types.PricingRule{}}
	for _, r := range rules {
		s.rules[r.ID] = r
	}
	return s
}

func (s *fakeStore) GetRule(ctx context.Context, id types.RuleID) (*types.PricingRule, error) {
	r, ok := s.rules[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrRuleNotFound, id)
	}
	return r.Clone(), nil
}

func (s *fakeStore) ListByStatus(ctx context.Context, statuses ...types.RuleStatus) ([]*types.PricingRule, error) {
	var out []*types.PricingRule
	for _, r := range s.rules {
		for _, st := range statuses {
			if r.Status == st {
				out = append(out, r.Clone())
			}
		}
	}
	return out, nil
}

type fakeTx struct {
	store  *fakeStore
	status map[types.RuleID]types.RuleStatus
	audits []types.StatusChange
}

func (tx *fakeTx) CompareAndSwapStatus(ctx context.Context, id types.RuleID, expected, next types.RuleStatus, actor string, at time.Time) error {
	if tx.store.casErr != nil {
		return tx.store.casErr
	}
	r, ok := tx.store.rules[id]
	if !ok || r.Status != expected {
		return types.ErrConcurrentModification
	}
	tx.status[id] = next
	return nil
}

func (tx *fakeTx) RecordStatusChange(ctx context.Context, change types.StatusChange) error {
	if tx.store.auditErr != nil {
		return tx.store.auditErr
	}
	tx.audits = append(tx.audits, change)
	return nil
}

func (s *fakeStore) WithinTx(ctx context.Context, fn func(StatusTx) error) error {
	tx := &fakeTx{store: s, status: map[types.RuleID]types.RuleStatus{}}
	if err := fn(tx); err != nil {
		s.rollbacks++
		return err
	}
	for id, st := range tx.status {
		s.rules[id].Status = st
		s.rules[id].Version++
	}
	s.audits = append(s.audits, tx.audits...)
	s.commits++
	return nil
}

type recordingNotifier struct {
	sent []Notification
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, note Notification) error {
	n.sent = append(n.sent, note)
	return n.err
}

type stubGate struct{ err error }

func (g stubGate) Check(context.Context, *types.PricingRule) error { return g.err }

func draftRule(id string) *types.PricingRule {
	return &types.PricingRule{
		ID:       types.RuleID(id),
		Name:     "rule " + id,
		Type:     types.RuleTypeDiscount,
		Status:   types.StatusDraft,
		Priority: 1,
		Version:  1,
		Conditions: []types.RuleCondition{
			{Type: types.ConditionCustom, Sequence: 1, Enabled: true},
		},
		Actions: []types.RuleAction{
			{Type: types.ActionCustom, Sequence: 1, Enabled: true},
		},
	}
}

func newMachine(store *fakeStore, opts ...Option) *Machine {
	return NewMachine(store, append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)...)
}

func TestTransition_HappyPath(t *testing.T) {
	store := newFakeStore(draftRule("r1"))
	notifier := &recordingNotifier{}
	var invalidated []types.RuleID
	m := newMachine(store, WithNotifier(notifier), OnChange(func(id types.RuleID) { invalidated = append(invalidated, id) }))

	steps := []types.RuleStatus{types.StatusPendingApproval, types.StatusApproved, types.StatusActive}
	for _, to := range steps {
		got, err := m.Transition(context.Background(), Request{RuleID: "r1", To: to, Actor: "alice"})
		if err != nil {
			t.Fatalf("Transition(%s) error = %v", to, err)
		}
		if got.Status != to {
			t.Errorf("Transition(%s) status = %s", to, got.Status)
		}
	}

	if store.rules["r1"].Status != types.StatusActive {
		t.Errorf("stored status = %s, want ACTIVE", store.rules["r1"].Status)
	}
	if store.rules["r1"].Version != 4 {
		t.Errorf("stored version = %d, want 4", store.rules["r1"].Version)
	}
	if len(store.audits) != 3 {
		t.Fatalf("audits = %d, want 3", len(store.audits))
	}
	last := store.audits[2]
	if last.OldStatus != types.StatusApproved || last.NewStatus != types.StatusActive || last.Actor != "alice" || !last.ChangedAt.Equal(fixedNow) {
		t.Errorf("last audit = %+v", last)
	}

	wantKinds := []NotificationKind{NotifyApprovalRequired, NotifyApproved, NotifyActivated}
	if len(notifier.sent) != len(wantKinds) {
		t.Fatalf("notifications = %d, want %d", len(notifier.sent), len(wantKinds))
	}
	for i, k := range wantKinds {
		if notifier.sent[i].Kind != k {
			t.Errorf("notification[%d] = %s, want %s", i, notifier.sent[i].Kind, k)
		}
	}
	if len(invalidated) != 3 {
		t.Errorf("OnChange calls = %d, want 3", len(invalidated))
	}
}

func TestTransition_SameStateIsNoop(t *testing.T) {
	r := draftRule("r1")
	r.Status = types.StatusActive
	store := newFakeStore(r)
	notifier := &recordingNotifier{}
	m := newMachine(store, WithNotifier(notifier))

	got, err := m.Transition(context.Background(), Request{RuleID: "r1", To: types.StatusActive})
	if err != nil {
		t.Fatalf("Transition(ACTIVE->ACTIVE) error = %v, want nil", err)
	}
	if got.Status != types.StatusActive {
		t.Errorf("status = %s, want ACTIVE", got.Status)
	}
	if store.commits != 0 || len(store.audits) != 0 || len(notifier.sent) != 0 {
		t.Errorf("no-op wrote: commits=%d audits=%d notifications=%d", store.commits, len(store.audits), len(notifier.sent))
	}
}

func TestTransition_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		from    types.RuleStatus
		to      types.RuleStatus
		wantErr error
	}{
		{"active to draft", types.StatusActive, types.StatusDraft, types.ErrInvalidTransition},
		{"archived is terminal", types.StatusArchived, types.StatusDraft, types.ErrInvalidTransition},
		{"draft straight to active", types.StatusDraft, types.StatusActive, types.ErrInvalidTransition},
		{"expired to active", types.StatusExpired, types.StatusActive, types.ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := draftRule("r1")
			r.Status = tt.from
			store := newFakeStore(r)
			_, err := newMachine(store).Transition(context.Background(), Request{RuleID: "r1", To: tt.to})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Transition() error = %v, want %v", err, tt.wantErr)
			}
			msg := err.Error()
			if !strings.Contains(msg, string(tt.from)) || !strings.Contains(msg, string(tt.to)) {
				t.Errorf("error %q does not name both states", msg)
			}
			if store.rules["r1"].Status != tt.from {
				t.Errorf("status changed to %s", store.rules["r1"].Status)
			}
		})
	}
}

func TestTransition_ActivationRequirements(t *testing.T) {
	r := draftRule("r1")
	r.Status = types.StatusApproved
	r.Conditions[0].Enabled = false
	store := newFakeStore(r)

	_, err := newMachine(store).Transition(context.Background(), Request{RuleID: "r1", To: types.StatusActive})
	if !errors.Is(err, types.ErrActivationRequirements) {
		t.Fatalf("Transition() error = %v, want ErrActivationRequirements", err)
	}
	if store.commits != 0 {
		t.Errorf("commits = %d, want 0", store.commits)
	}

	// suspending does not need the activation shape
	r2 := draftRule("r2")
	r2.Status = types.StatusActive
	r2.Actions = nil
	store = newFakeStore(r2)
	if _, err := newMachine(store).Transition(context.Background(), Request{RuleID: "r2", To: types.StatusSuspended}); err != nil {
		t.Errorf("Transition(ACTIVE->SUSPENDED) error = %v, want nil", err)
	}
}

func TestTransition_ConflictGateBlocks(t *testing.T) {
	r := draftRule("r1")
	r.Status = types.StatusApproved
	store := newFakeStore(r)
	gateErr := fmt.Errorf("%w: clash", types.ErrRuleConflict)

	_, err := newMachine(store, WithGate(stubGate{err: gateErr})).Transition(context.Background(), Request{RuleID: "r1", To: types.StatusActive})
	if !errors.Is(err, types.ErrRuleConflict) {
		t.Fatalf("Transition() error = %v, want ErrRuleConflict", err)
	}
	if store.rules["r1"].Status != types.StatusApproved {
		t.Errorf("status = %s, want APPROVED", store.rules["r1"].Status)
	}

	// the gate only guards activation
	if _, err := newMachine(store, WithGate(stubGate{err: gateErr})).Transition(context.Background(), Request{RuleID: "r1", To: types.StatusInactive}); err != nil {
		t.Errorf("Transition(APPROVED->INACTIVE) error = %v, want nil", err)
	}
}

func TestTransition_AuditFailureRollsBack(t *testing.T) {
	store := newFakeStore(draftRule("r1"))
	store.auditErr = errors.New("audit table locked")
	notifier := &recordingNotifier{}

	_, err := newMachine(store, WithNotifier(notifier)).Transition(context.Background(), Request{RuleID: "r1", To: types.StatusPendingApproval})
	if err == nil {
		t.Fatalf("Transition() error = nil, want audit failure")
	}
	if store.rules["r1"].Status != types.StatusDraft {
		t.Errorf("status = %s, want DRAFT after rollback", store.rules["r1"].Status)
	}
	if store.rollbacks != 1 || store.commits != 0 {
		t.Errorf("rollbacks=%d commits=%d, want 1/0", store.rollbacks, store.commits)
	}
	if len(notifier.sent) != 0 {
		t.Errorf("notifications = %d, want 0", len(notifier.sent))
	}
}

func TestTransition_NotificationFailureIsNonFatal(t *testing.T) {
	store := newFakeStore(draftRule("r1"))
	notifier := &recordingNotifier{err: errors.New("broker unreachable")}

	got, err := newMachine(store, WithNotifier(notifier)).Transition(context.Background(), Request{RuleID: "r1", To: types.StatusPendingApproval})
	if err != nil {
		t.Fatalf("Transition() error = %v, want nil", err)
	}
	if got.Status != types.StatusPendingApproval || store.rules["r1"].Status != types.StatusPendingApproval {
		t.Errorf("status = %s / stored %s, want PENDING_APPROVAL", got.Status, store.rules["r1"].Status)
	}
	if len(notifier.sent) != 1 {
		t.Errorf("notifications attempted = %d, want 1", len(notifier.sent))
	}
}

func TestTransition_ConcurrentModification(t *testing.T) {
	store := newFakeStore(draftRule("r1"))
	store.casErr = types.ErrConcurrentModification

	_, err := newMachine(store).Transition(context.Background(), Request{RuleID: "r1", To: types.StatusPendingApproval})
	if !errors.Is(err, types.ErrConcurrentModification) {
		t.Errorf("Transition() error = %v, want ErrConcurrentModification", err)
	}
	if len(store.audits) != 0 {
		t.Errorf("audits = %d, want 0", len(store.audits))
	}
}

func TestTransition_NotFound(t *testing.T) {
	_, err := newMachine(newFakeStore()).Transition(context.Background(), Request{RuleID: "missing", To: types.StatusArchived})
	if !errors.Is(err, types.ErrRuleNotFound) {
		t.Errorf("Transition() error = %v, want ErrRuleNotFound", err)
	}
}

func TestAdjacency(t *testing.T) {
	for _, from := range types.AllStatuses {
		for _, to := range Targets(from) {
			if from == to {
				t.Errorf("%s lists itself as a target", from)
			}
			if err := CheckTransition(from, to); err != nil {
				t.Errorf("CheckTransition(%s, %s) error = %v", from, to, err)
			}
		}
		if err := CheckTransition(from, from); err != nil {
			t.Errorf("CheckTransition(%s, %s) same state error = %v", from, from, err)
		}
	}
	if !IsTerminal(types.StatusArchived) {
		t.Errorf("IsTerminal(ARCHIVED) = false, want true")
	}

	targets := Targets(types.StatusDraft)
	targets[0] = types.StatusActive
	if Allowed(types.StatusDraft, types.StatusActive) {
		t.Errorf("Targets() exposed the adjacency table")
	}
}
