package api

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/solatis/pricekeeper/internal/conflicts"
	"github.com/solatis/pricekeeper/internal/lifecycle"
	"github.com/solatis/pricekeeper/internal/types"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type transitionRequest struct {
	RuleID string `json:"ruleId"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

type ruleSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}

type conflictsRequest struct {
	RuleID string `json:"ruleId"`
}

type conflictMessage struct {
	Kind     string `json:"kind"`
	RuleA    string `json:"ruleA"`
	RuleB    string `json:"ruleB"`
	Message  string `json:"message"`
	Blocking bool   `json:"blocking"`
}

type conflictsResponse struct {
	Conflicts []conflictMessage `json:"conflicts"`
}

// actorOf names the caller in the status audit trail.
func actorOf(keyID string) string {
	return "api-key:" + keyID
}

// TransitionRule moves a rule through its lifecycle. Operator keys only.
func (s *PricingService) TransitionRule(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := requireOperator(ctx)
	if err != nil {
		return nil, err
	}
	var req transitionRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.RuleID == "" {
		return nil, status.Error(codes.InvalidArgument, "ruleId required")
	}
	to, err := types.ParseRuleStatus(req.To)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	rule, err := s.machine.Transition(ctx, lifecycle.Request{
		RuleID: types.RuleID(req.RuleID),
		To:     to,
		Actor:  actorOf(p.KeyID),
		Reason: req.Reason,
	})
	if err != nil {
		s.logger.Info("transition rejected",
			zap.String("rule_id", req.RuleID),
			zap.String("to", string(to)),
			zap.Error(err))
		return nil, toStatus(err)
	}
	s.recorder.Transition(string(rule.Status))

	return encode(ruleSummary{
		ID:        string(rule.ID),
		Name:      rule.Name,
		Status:    string(rule.Status),
		Version:   rule.Version,
		UpdatedAt: rule.UpdatedAt,
		UpdatedBy: rule.UpdatedBy,
	})
}

// DetectConflicts reports conflicts among live rules, or between one rule
// and the live rules when ruleId is given. Operator keys only.
func (s *PricingService) DetectConflicts(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, err := requireOperator(ctx); err != nil {
		return nil, err
	}
	var req conflictsRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	var found []conflicts.Conflict
	if req.RuleID == "" {
		live, err := s.rules.ListByStatus(ctx, conflicts.Detectable...)
		if err != nil {
			return nil, toStatus(fmt.Errorf("list rules: %w", err))
		}
		found = conflicts.Detect(live)
	} else {
		candidate, err := s.rules.GetRule(ctx, types.RuleID(req.RuleID))
		if err != nil {
			return nil, toStatus(err)
		}
		found, err = conflicts.NewGate(s.rules, s.logger).Conflicts(ctx, candidate)
		if err != nil {
			return nil, toStatus(err)
		}
		sort.Slice(found, func(i, j int) bool {
			if found[i].RuleA != found[j].RuleA {
				return found[i].RuleA < found[j].RuleA
			}
			return found[i].RuleB < found[j].RuleB
		})
	}

	resp := conflictsResponse{Conflicts: make([]conflictMessage, 0, len(found))}
	for _, c := range found {
		resp.Conflicts = append(resp.Conflicts, conflictMessage{
			Kind:     string(c.Kind),
			RuleA:    string(c.RuleA),
			RuleB:    string(c.RuleB),
			Message:  c.Message,
			Blocking: c.Blocking(),
		})
	}
	return encode(resp)
}
