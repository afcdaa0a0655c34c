package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tc-outcome/internal/config"
	"github.com/sells-group/tc-outcome/internal/db"
	"github.com/sells-group/tc-outcome/internal/engine"
	"github.com/sells-group/tc-outcome/internal/layout"
	"github.com/sells-group/tc-outcome/internal/output"
	"github.com/sells-group/tc-outcome/internal/store"
	"github.com/sells-group/tc-outcome/internal/tabulate"
	"github.com/sells-group/tc-outcome/internal/unit"
	"github.com/sells-group/tc-outcome/internal/zone"
)

// newLayout maps the configured paths onto a Layout.
func newLayout(c *config.Config) layout.Layout {
	return layout.Layout{
		SourceDir:     c.Paths.SourceDir,
		StagingDir:    c.Paths.StagingDir,
		TablesDir:     c.Paths.TablesDir,
		OutputDir:     c.Paths.OutputDir,
		RasterPattern: c.Raster.Pattern,
		TableExt:      c.Tabulate.TableExt,
		OutputPrefix:  c.Indicator.Prefix,
	}
}

// selectSchemes returns the configured schemes named in names, or all of
// them when names is empty.
func selectSchemes(c *config.Config, names []string) ([]zone.Scheme, error) {
	if len(names) == 0 {
		out := make([]zone.Scheme, 0, len(c.Zones.Schemes))
		for _, s := range c.Zones.Schemes {
			out = append(out, zone.Scheme{Name: s.Name, Path: s.Path})
		}
		return out, nil
	}

	out := make([]zone.Scheme, 0, len(names))
	for _, n := range names {
		s, ok := c.Zones.Scheme(n)
		if !ok {
			return nil, eris.Errorf("unknown zone scheme %q", n)
		}
		out = append(out, zone.Scheme{Name: s.Name, Path: s.Path})
	}
	return out, nil
}

// selectUnits resolves the units to process: the flag list, then the
// configured list, then the unit folders found under the source dir.
func selectUnits(c *config.Config, flagUnits []string) ([]string, error) {
	if len(flagUnits) > 0 {
		return flagUnits, nil
	}
	if len(c.Tabulate.Units) > 0 {
		return c.Tabulate.Units, nil
	}
	units, err := unit.Discover(c.Paths.SourceDir)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, eris.Errorf("no unit folders found in %s", c.Paths.SourceDir)
	}
	return units, nil
}

// newEngine builds the external tabulation engine and raster stager.
func newEngine(c *config.Config) (engine.Engine, engine.Stager, error) {
	eng, err := engine.NewCommandEngine(c.Engine.Command)
	if err != nil {
		return nil, nil, err
	}
	if len(c.Staging.Command) == 0 {
		return eng, engine.FileStager{}, nil
	}
	stager, err := engine.NewCommandStager(c.Staging.Command)
	if err != nil {
		return nil, nil, err
	}
	return eng, stager, nil
}

// newStoreSinks opens the database sinks named in names. The returned close
// func releases every opened store.
func newStoreSinks(ctx context.Context, c *config.Config, names []string) ([]output.Sink, func(), error) {
	var (
		sinks  []output.Sink
		stores []store.Store
	)
	closeAll := func() {
		for _, st := range stores {
			_ = st.Close()
		}
	}

	for _, n := range names {
		var (
			st  store.Store
			err error
		)
		switch strings.ToLower(strings.TrimSpace(n)) {
		case output.SinkSQLite:
			path := c.SQLite.Path
			if path == "" {
				path = filepath.Join(c.Paths.OutputDir, c.Indicator.Prefix+".db")
			}
			if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
				closeAll()
				return nil, nil, eris.Wrapf(mkErr, "create dir for %s", path)
			}
			st, err = store.NewSQLite(path, c.SQLite.Table)
		case output.SinkPostGIS:
			st, err = store.NewPostgres(ctx, c.PostGIS.DatabaseURL,
				db.PoolConfig{MaxConns: c.PostGIS.MaxConns},
				store.PostgresConfig{
					Schema: c.PostGIS.Schema,
					Table:  c.PostGIS.Table,
					SRID:   c.Zones.SRID,
					Mode:   c.PostGIS.Mode,
				})
		default:
			closeAll()
			return nil, nil, eris.Errorf("unknown output %q", n)
		}
		if err != nil {
			closeAll()
			return nil, nil, eris.Wrapf(err, "open %s output", n)
		}
		stores = append(stores, st)

		if err := st.Migrate(ctx); err != nil {
			closeAll()
			return nil, nil, eris.Wrapf(err, "migrate %s output", n)
		}
		sinks = append(sinks, output.NewStoreSink(strings.ToLower(strings.TrimSpace(n)), st))
	}
	return sinks, closeAll, nil
}

// printBatchReport writes a short batch summary and the failed unit ids.
func printBatchReport(w io.Writer, rep *tabulate.Report) {
	_, _ = fmt.Fprintf(w, "Batch %s: %d attempted, %d skipped, %d completed, %d failed\n",
		rep.BatchID, rep.Attempted, rep.Skipped, rep.Completed, len(rep.Failures))
	failed := rep.FailedUnits()
	if len(failed) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "Failed units: %s\n", strings.Join(failed, ", "))
}

// reportPath returns where a run report named name is written.
func reportPath(c *config.Config, name string) string {
	return filepath.Join(c.Paths.OutputDir, "reports", name+".yaml")
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

func commandLogger(name string) *zap.Logger {
	return zap.L().With(zap.String("command", name))
}
