package cmd

import (
	"fmt"

	"github.com/solatis/pricekeeper/internal/core/config"
	"github.com/solatis/pricekeeper/internal/core/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is the build version reported at startup.
const Version = "0.1.0"

var (
	configFile string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "pricekeeper",
	Short: "PriceKeeper dynamic pricing rule engine",
	Long: `PriceKeeper evaluates seller pricing rules, enforces price, margin and time
constraints, manages the rule lifecycle and selects buybox winners.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().String("db-url", "", "database connection URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (json, text)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// setup loads configuration with cmd's flags layered on top and builds the logger.
func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	logger, err := logging.New(logLevel, logFormat)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.LoadConfig(configFile, cmd.Flags())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, logger, nil
}
