// redress repairs Kubernetes deployment manifests that violate policy,
// security, resource, or schema checks, using counterexample-guided
// synthesis over patch templates with a persistent repair bank.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"redress/internal/config"
)

var (
	verbose    bool
	configPath string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "redress",
	Short: "redress - CEGIS-based Kubernetes manifest repair",
	Long: `redress repairs deployment manifests that fail declarative checks.

Given a manifest and a set of oracles (policy, security, resources,
schema), it searches a space of patch templates with holes until every
oracle passes, learning constraints from oracle evidence along the way.
Successful repairs are remembered in a signature-indexed bank so the same
failure pattern is fixed instantly next time.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		zcfg := zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if cfg.Logging.Level != "" {
			var lvl zapcore.Level
			if err := lvl.Set(cfg.Logging.Level); err == nil {
				zcfg.Level = zap.NewAtomicLevelAt(lvl)
			}
		}
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "redress.yaml", "path to config file")

	rootCmd.AddCommand(repairCmd)
	rootCmd.AddCommand(bankCmd)
	rootCmd.AddCommand(demoCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
