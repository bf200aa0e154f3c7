package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/trust-router/internal/config"
)

var (
	cfg *config.Config

	policyPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "trust-router",
	Short: "Trust-aware model routing for financial documents",
	Long:  "Scores document sections for complexity, routes them to a single model or an ensemble, validates extracted claims and adjusts predictions for risk before they are shown.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		applyFlagOverrides(cmd, cfg)

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// applyFlagOverrides lets persistent flags take precedence over config
// files and environment.
func applyFlagOverrides(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Root().PersistentFlags()
	if flags.Changed("policy") {
		c.Policy.Path = policyPath
	}
	if flags.Changed("log-level") {
		c.Log.Level = logLevel
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "", "policy YAML file (overrides policy.path)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides log.level)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
