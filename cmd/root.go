package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tc-outcome/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "tc-outcome",
	Short: "Tree canopy change indicator pipeline",
	Long: `Cross-tabulates land-use change rasters against zone schemes, one unit at a
time, then aggregates the tables into a per-cell net tree canopy change
indicator in acres.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
