package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tc-outcome/internal/engine"
	"github.com/sells-group/tc-outcome/internal/runlog"
	"github.com/sells-group/tc-outcome/internal/tabulate"
	"github.com/sells-group/tc-outcome/internal/unit"
)

// tabulateOpts are the stage 1 command-line selections.
type tabulateOpts struct {
	Units       []string
	Schemes     []string
	Concurrency int // 0 uses the configured value
}

var tabulateCmd = &cobra.Command{
	Use:   "tabulate",
	Short: "Cross-tabulate change rasters against zone schemes",
	Long: `Runs the zonal cross-tabulation for every (unit, scheme) pair.

Pairs whose table already exists are skipped, so an interrupted batch can be
re-run. Each attempt appends a row to the run log; a failed unit never stops
the batch. Failed unit ids are printed when the batch completes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("tabulate"); err != nil {
			return err
		}
		opts := parseTabulateOpts(cmd)

		eng, stager, err := newEngine(cfg)
		if err != nil {
			return err
		}

		rep, err := runTabulate(ctx, opts, eng, stager)
		if rep != nil {
			printBatchReport(os.Stdout, rep)
		}
		return err
	},
}

func init() {
	addTabulateFlags(tabulateCmd)
	rootCmd.AddCommand(tabulateCmd)
}

func addTabulateFlags(cmd *cobra.Command) {
	cmd.Flags().String("units", "", "comma-separated unit ids (default: configured or discovered units)")
	cmd.Flags().String("schemes", "", "comma-separated zone scheme names (default: all)")
	cmd.Flags().Int("concurrency", 0, "parallel units (default: tabulate.concurrency)")
}

// parseTabulateOpts extracts tabulateOpts from the cobra command flags.
func parseTabulateOpts(cmd *cobra.Command) tabulateOpts {
	unitsStr, _ := cmd.Flags().GetString("units")
	schemesStr, _ := cmd.Flags().GetString("schemes")
	conc, _ := cmd.Flags().GetInt("concurrency")

	opts := tabulateOpts{Concurrency: conc}
	if unitsStr != "" {
		opts.Units = splitAndTrim(unitsStr)
	}
	if schemesStr != "" {
		opts.Schemes = splitAndTrim(schemesStr)
	}
	return opts
}

// runTabulate runs stage 1 with the global config. The batch report is
// written to the reports dir and returned even when the batch stops on a
// fatal error.
func runTabulate(ctx context.Context, opts tabulateOpts, eng engine.Engine, stager engine.Stager) (*tabulate.Report, error) {
	log := commandLogger("tabulate")

	schemes, err := selectSchemes(cfg, opts.Schemes)
	if err != nil {
		return nil, err
	}
	units, err := selectUnits(cfg, opts.Units)
	if err != nil {
		return nil, err
	}

	ref, err := unit.LoadReference(cfg.Paths.ReferenceTable, unit.ReferenceColumns{
		Key:    cfg.Reference.KeyColumn,
		Before: cfg.Reference.BeforeColumn,
		After:  cfg.Reference.AfterColumn,
	})
	if err != nil {
		return nil, err
	}

	rl, err := runlog.Open(cfg.Paths.RunLogPath())
	if err != nil {
		return nil, err
	}

	exec := tabulate.NewExecutor(newLayout(cfg), ref, eng, stager, rl, tabulate.Options{
		ZoneField:  cfg.Zones.CellField,
		ValueField: cfg.Tabulate.ValueField,
		CellSize:   cfg.Tabulate.CellSize,
	})

	conc := opts.Concurrency
	if conc <= 0 {
		conc = cfg.Tabulate.Concurrency
	}

	log.Info("starting tabulation",
		zap.Int("units", len(units)),
		zap.Int("schemes", len(schemes)),
		zap.Int("concurrency", conc),
		zap.String("run_log", rl.Path()),
	)

	rep, runErr := tabulate.NewBatch(exec, conc).Run(ctx, units, schemes)
	if rep == nil {
		return nil, runErr
	}

	path := reportPath(cfg, "tabulate_"+rep.BatchID)
	if err := rep.WriteYAML(path); err != nil {
		log.Warn("tabulate: batch report not written", zap.Error(err))
	}

	if runErr != nil {
		return rep, eris.Wrap(runErr, "tabulate")
	}
	return rep, nil
}
