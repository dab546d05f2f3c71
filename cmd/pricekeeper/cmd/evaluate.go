package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/solatis/pricekeeper/internal/rules"
	"github.com/solatis/pricekeeper/internal/types"
	"github.com/spf13/cobra"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Price one product against the stored rules and print the result as JSON",
	Args:  cobra.NoArgs,
	RunE:  runEvaluate,
}

func init() {
	f := evaluateCmd.Flags()
	f.String("product", "", "product id (required)")
	f.String("seller", "", "seller id (required)")
	f.String("site", "", "site id (required)")
	f.String("category", "", "category id")
	f.String("brand", "", "brand id")
	f.String("region", "", "region code")
	f.String("base-price", "", "base price (required)")
	f.String("cost", "", "cost price")
	f.String("mrp", "", "maximum retail price")
	f.Int("quantity", 1, "quantity")
	f.String("attributes", "", "product attributes as a JSON object")
	f.String("at", "", "evaluation time (RFC 3339, default now)")
	for _, name := range []string{"product", "seller", "site", "base-price"} {
		_ = evaluateCmd.MarkFlagRequired(name)
	}
	rootCmd.AddCommand(evaluateCmd)
}

func optionalDecimal(cmd *cobra.Command, name string) (decimal.Decimal, error) {
	s, _ := cmd.Flags().GetString(name)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("--%s: %w", name, err)
	}
	return d, nil
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	flags := cmd.Flags()
	ec := &rules.EvaluationContext{}
	ec.ProductID, _ = flags.GetString("product")
	ec.SellerID, _ = flags.GetString("seller")
	ec.SiteID, _ = flags.GetString("site")
	ec.CategoryID, _ = flags.GetString("category")
	ec.BrandID, _ = flags.GetString("brand")
	ec.Region, _ = flags.GetString("region")
	ec.Quantity, _ = flags.GetInt("quantity")
	if ec.BasePrice, err = optionalDecimal(cmd, "base-price"); err != nil {
		return err
	}
	if ec.CostPrice, err = optionalDecimal(cmd, "cost"); err != nil {
		return err
	}
	if ec.MRP, err = optionalDecimal(cmd, "mrp"); err != nil {
		return err
	}
	if raw, _ := flags.GetString("attributes"); raw != "" {
		attrs := types.Attributes{}
		if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
			return fmt.Errorf("--attributes: %w", err)
		}
		ec.Attributes = attrs
	}
	if at, _ := flags.GetString("at"); at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return fmt.Errorf("--at: %w", err)
		}
		ec.EvaluatedAt = t.UTC()
	}

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	eval, err := a.pricing.Evaluate(cmd.Context(), ec)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(eval)
}
