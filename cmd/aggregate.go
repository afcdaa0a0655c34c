package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tc-outcome/internal/crosswalk"
	"github.com/sells-group/tc-outcome/internal/indicator"
	"github.com/sells-group/tc-outcome/internal/output"
	"github.com/sells-group/tc-outcome/internal/zone"
)

// aggregateOpts are the stage 2 command-line selections.
type aggregateOpts struct {
	Schemes []string
	Outputs []string // empty uses the configured outputs
}

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Aggregate tabulation tables into the canopy change indicator",
	Long: `Sums every unit table of each zone scheme into net tree canopy change
per cell, (gain - loss) / 4046.86 acres, and writes the flat table plus the
cells joined to zone geometry to the configured outputs.

A malformed unit table is reported and excluded; the other tables still
contribute.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		opts := parseAggregateOpts(cmd)
		if len(opts.Outputs) > 0 {
			cfg.Outputs = opts.Outputs
		}
		if err := cfg.Validate("aggregate"); err != nil {
			return err
		}

		_, err := runAggregate(ctx, opts)
		return err
	},
}

func init() {
	addAggregateFlags(aggregateCmd)
	rootCmd.AddCommand(aggregateCmd)
}

func addAggregateFlags(cmd *cobra.Command) {
	if cmd.Flags().Lookup("schemes") == nil {
		cmd.Flags().String("schemes", "", "comma-separated zone scheme names (default: all)")
	}
	cmd.Flags().String("outputs", "", "comma-separated outputs: csv, shapefile, geojson, xlsx, sqlite, postgis")
}

// parseAggregateOpts extracts aggregateOpts from the cobra command flags.
func parseAggregateOpts(cmd *cobra.Command) aggregateOpts {
	schemesStr, _ := cmd.Flags().GetString("schemes")
	outputsStr, _ := cmd.Flags().GetString("outputs")

	var opts aggregateOpts
	if schemesStr != "" {
		opts.Schemes = splitAndTrim(schemesStr)
	}
	if outputsStr != "" {
		opts.Outputs = splitAndTrim(outputsStr)
	}
	return opts
}

// runAggregate runs stage 2 with the global config. A scheme that fails is
// logged and the remaining schemes still run; the error reports how many
// failed.
func runAggregate(ctx context.Context, opts aggregateOpts) ([]indicator.Report, error) {
	log := commandLogger("aggregate")

	schemes, err := selectSchemes(cfg, opts.Schemes)
	if err != nil {
		return nil, err
	}

	tr, err := crosswalk.Load(cfg.Paths.CrosswalkTable,
		crosswalk.Columns{
			Label:    cfg.Crosswalk.LabelColumn,
			Category: cfg.Crosswalk.CategoryColumn,
			Value:    cfg.Crosswalk.ValueColumn,
		},
		crosswalk.Categories{
			Canopy:    cfg.Crosswalk.Canopy,
			Developed: cfg.Crosswalk.Developed,
			Width:     cfg.Crosswalk.CodeWidth,
			Strict:    cfg.Crosswalk.Strict,
		})
	if err != nil {
		return nil, err
	}

	l := newLayout(cfg)
	fileSinks, dbNames, err := output.FileSinks(cfg.Outputs, l.OutputPath)
	if err != nil {
		return nil, err
	}
	dbSinks, closeStores, err := newStoreSinks(ctx, cfg, dbNames)
	if err != nil {
		return nil, err
	}
	defer closeStores()
	sinks := append(fileSinks, dbSinks...)

	agg := indicator.NewAggregator(l, tr, indicator.Options{
		CellField:   cfg.Zones.CellField,
		AreaPerUnit: cfg.Indicator.AreaPerUnit,
		TableExts:   cfg.Indicator.TableExts,
	})

	var (
		reports []indicator.Report
		failed  int
	)
	for _, s := range schemes {
		rep, err := aggregateScheme(ctx, agg, s, sinks)
		if err != nil {
			if ctx.Err() != nil {
				return reports, eris.Wrap(err, "aggregate")
			}
			failed++
			log.Error("aggregate: scheme failed", zap.String("scheme", s.Name), zap.Error(err))
			continue
		}
		reports = append(reports, *rep)

		if err := rep.WriteYAML(reportPath(cfg, "aggregate_"+s.Name)); err != nil {
			log.Warn("aggregate: report not written", zap.String("scheme", s.Name), zap.Error(err))
		}
	}

	if failed > 0 {
		return reports, eris.Errorf("aggregate: %d of %d schemes failed", failed, len(schemes))
	}
	return reports, nil
}

// aggregateScheme aggregates one scheme, joins it to the scheme's geometry
// and writes every sink.
func aggregateScheme(ctx context.Context, agg *indicator.Aggregator, s zone.Scheme, sinks []output.Sink) (*indicator.Report, error) {
	log := commandLogger("aggregate").With(zap.String("scheme", s.Name))

	res, err := agg.Aggregate(ctx, s.Name)
	if err != nil {
		return nil, err
	}

	cells, err := zone.Load(s.Path, cfg.Zones.CellField)
	if err != nil {
		return nil, err
	}
	features, unmatched := zone.Join(cells, res.Values)
	if unmatched > 0 {
		log.Warn("aggregate: cells missing from zone geometry",
			zap.Int("unmatched", unmatched),
			zap.String("zones", s.Path),
		)
	}

	ind := output.Indicator{
		Scheme:   s.Name,
		Fields:   zone.Fields{ID: cfg.Zones.CanonicalField, Value: cfg.Indicator.Field},
		Cells:    res.Cells(),
		Features: features,
		ZonePath: s.Path,
		SRID:     cfg.Zones.SRID,
	}
	if err := output.WriteAll(ctx, sinks, ind); err != nil {
		return nil, err
	}

	rep := res.Report(len(features), unmatched)
	log.Info("aggregate: scheme complete",
		zap.Int("tables", rep.Tables),
		zap.Int("excluded", len(rep.Failures)),
		zap.Int("cells", rep.Cells),
		zap.Int("joined", rep.Joined),
		zap.Float64("total", rep.Total),
	)
	return &rep, nil
}
