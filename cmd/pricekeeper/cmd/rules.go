package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/solatis/pricekeeper/internal/conflicts"
	"github.com/solatis/pricekeeper/internal/lifecycle"
	"github.com/solatis/pricekeeper/internal/rules"
	"github.com/solatis/pricekeeper/internal/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Author and operate pricing rules",
}

var rulesImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Validate and save rules from a JSON file (one rule or an array)",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesImport,
}

var rulesTransitionCmd = &cobra.Command{
	Use:   "transition RULE_ID STATUS",
	Short: "Move a rule to another lifecycle status",
	Args:  cobra.ExactArgs(2),
	RunE:  runRulesTransition,
}

var rulesConflictsCmd = &cobra.Command{
	Use:   "conflicts [RULE_ID]",
	Short: "Report conflicts among live rules, or against one rule",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRulesConflicts,
}

var rulesSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Activate scheduled rules and expire ended ones once",
	Args:  cobra.NoArgs,
	RunE:  runRulesSweep,
}

var rulesHistoryCmd = &cobra.Command{
	Use:   "history RULE_ID",
	Short: "Print the status audit trail of a rule",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesHistory,
}

func init() {
	rulesCmd.PersistentFlags().String("actor", "cli", "actor recorded in the audit trail")
	rulesTransitionCmd.Flags().String("reason", "", "reason recorded in the audit trail")
	rulesCmd.AddCommand(rulesImportCmd, rulesTransitionCmd, rulesConflictsCmd, rulesSweepCmd, rulesHistoryCmd)
	rootCmd.AddCommand(rulesCmd)
}

// decodeRules accepts a single rule object or an array of rules.
func decodeRules(data []byte) ([]*types.PricingRule, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var list []*types.PricingRule
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("decode rules: %w", err)
		}
		return list, nil
	}
	var one types.PricingRule
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, fmt.Errorf("decode rule: %w", err)
	}
	return []*types.PricingRule{&one}, nil
}

func runRulesImport(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()
	actor, _ := cmd.Flags().GetString("actor")

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	list, err := decodeRules(data)
	if err != nil {
		return err
	}

	// validate everything before writing anything
	for i, r := range list {
		if err := types.Validate(r); err != nil {
			return fmt.Errorf("rule %d (%s): %w", i, r.Name, err)
		}
		if _, err := rules.Compile(r); err != nil {
			return fmt.Errorf("rule %d (%s): %w", i, r.Name, err)
		}
	}

	database, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := cmd.Context()
	for _, r := range list {
		if err := store.SaveRule(ctx, r, actor); err != nil {
			return fmt.Errorf("save %s: %w", r.Name, err)
		}
		logger.Info("rule saved",
			zap.String("rule_id", string(r.ID)),
			zap.String("name", r.Name),
			zap.String("status", string(r.Status)),
			zap.Int64("version", r.Version))
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tv%d\n", r.ID, r.Name, r.Version)
	}
	return nil
}

func runRulesTransition(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()
	actor, _ := cmd.Flags().GetString("actor")
	reason, _ := cmd.Flags().GetString("reason")

	to, err := types.ParseRuleStatus(args[1])
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	rule, err := a.machine.Transition(cmd.Context(), lifecycle.Request{
		RuleID: types.RuleID(args[0]),
		To:     to,
		Actor:  actor,
		Reason: reason,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tv%d\n", rule.ID, rule.Status, rule.Version)
	return nil
}

func runRulesConflicts(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	database, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := cmd.Context()
	var found []conflicts.Conflict
	if len(args) == 1 {
		candidate, err := store.GetRule(ctx, types.RuleID(args[0]))
		if err != nil {
			return err
		}
		found, err = conflicts.NewGate(store, logger).Conflicts(ctx, candidate)
		if err != nil {
			return err
		}
	} else {
		live, err := store.ListByStatus(ctx, conflicts.Detectable...)
		if err != nil {
			return err
		}
		found = conflicts.Detect(live)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tRULE A\tRULE B\tBLOCKING\tMESSAGE")
	for _, c := range found {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", c.Kind, c.RuleA, c.RuleB, c.Blocking(), c.Message)
	}
	return w.Flush()
}

func runRulesSweep(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.sweeper.Sweep(cmd.Context(), time.Now().UTC())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, id := range report.Activated {
		fmt.Fprintf(out, "activated\t%s\n", id)
	}
	for _, id := range report.Expired {
		fmt.Fprintf(out, "expired\t%s\n", id)
	}
	for id, err := range report.Failed {
		fmt.Fprintf(out, "failed\t%s\t%v\n", id, err)
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d rules failed to transition", len(report.Failed))
	}
	return nil
}

func runRulesHistory(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	database, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	history, err := store.StatusHistory(cmd.Context(), types.RuleID(args[0]))
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "AT\tFROM\tTO\tACTOR\tREASON")
	for _, c := range history {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ChangedAt.Format(time.RFC3339), c.OldStatus, c.NewStatus, c.Actor, c.Reason)
	}
	return w.Flush()
}
