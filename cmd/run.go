package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Tabulate every unit, then aggregate the indicator",
	Long: `Runs both stages. Failed units are reported and excluded from the
indicator; aggregation only stops the command when the batch itself fails
(run log unwritable or interrupted).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		tabOpts := parseTabulateOpts(cmd)
		aggOpts := parseAggregateOpts(cmd)
		if len(aggOpts.Outputs) > 0 {
			cfg.Outputs = aggOpts.Outputs
		}
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		eng, stager, err := newEngine(cfg)
		if err != nil {
			return err
		}

		rep, err := runTabulate(ctx, tabOpts, eng, stager)
		if rep != nil {
			printBatchReport(os.Stdout, rep)
		}
		if err != nil {
			return err
		}

		if n := len(rep.FailedUnits()); n > 0 {
			commandLogger("run").Warn("run: aggregating without failed units", zap.Int("failed_units", n))
		}

		_, err = runAggregate(ctx, aggOpts)
		return err
	},
}

func init() {
	addTabulateFlags(runCmd)
	addAggregateFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}
