// Package tabulate runs the per-unit zonal cross-tabulation of change
// rasters against zone schemes, recording every attempt in the run log.
package tabulate

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tc-outcome/internal/engine"
	"github.com/sells-group/tc-outcome/internal/faults"
	"github.com/sells-group/tc-outcome/internal/layout"
	"github.com/sells-group/tc-outcome/internal/runlog"
	"github.com/sells-group/tc-outcome/internal/unit"
	"github.com/sells-group/tc-outcome/internal/zone"
)

// Options are per-executor tabulation settings.
type Options struct {
	ZoneField  string  // cell id field in zone geometries; default gridcode
	ValueField string  // raster value field; default VALUE
	CellSize   float64 // processing cell size; default 1
}

// Outcome is the result of one (unit, scheme) attempt.
type Outcome struct {
	Unit    string
	Scheme  string
	Status  runlog.Status
	Err     error // the per-unit fault when Status is failed
	Started time.Time
	Ended   time.Time
}

// Failed reports whether the attempt failed.
func (o Outcome) Failed() bool { return o.Status == runlog.StatusFailed }

// Executor tabulates one unit against one zone scheme at a time. It holds no
// per-unit state, so one Executor may serve concurrent units whose staging
// paths differ.
type Executor struct {
	layout layout.Layout
	ref    *unit.Reference
	eng    engine.Engine
	stager engine.Stager
	runlog *runlog.Log
	opts   Options
	now    func() time.Time
	log    *zap.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(l layout.Layout, ref *unit.Reference, eng engine.Engine, stager engine.Stager, rl *runlog.Log, opts Options) *Executor {
	if opts.ZoneField == "" {
		opts.ZoneField = "gridcode"
	}
	if opts.ValueField == "" {
		opts.ValueField = "VALUE"
	}
	if opts.CellSize == 0 {
		opts.CellSize = 1
	}
	return &Executor{
		layout: l,
		ref:    ref,
		eng:    eng,
		stager: stager,
		runlog: rl,
		opts:   opts,
		now:    time.Now,
		log:    zap.L().With(zap.String("component", "tabulate")),
	}
}

// IsAlreadyDone reports whether the table for (u, scheme) exists. A
// zero-byte table is left over from an interrupted write and does not count.
func (e *Executor) IsAlreadyDone(u string, scheme zone.Scheme) bool {
	fi, err := os.Stat(e.layout.TablePath(u, scheme.Name))
	return err == nil && fi.Mode().IsRegular() && fi.Size() > 0
}

// Run tabulates u against scheme. Per-unit failures (lookup, staging,
// tabulation) are recorded in the run log and returned in the Outcome with a
// nil error; the staged raster is released on every path. The error is
// non-nil only when the run log cannot be written or ctx ended the attempt.
// An interrupted attempt is not logged, so the next run retries the unit.
func (e *Executor) Run(ctx context.Context, u string, scheme zone.Scheme) (Outcome, error) {
	out := Outcome{Unit: u, Scheme: scheme.Name, Started: e.now()}
	log := e.log.With(zap.String("unit", u), zap.String("scheme", scheme.Name))
	log.Info("tabulate: starting unit")

	err := e.tabulate(ctx, u, scheme, log)
	out.Ended = e.now()
	minutes := out.Ended.Sub(out.Started).Minutes()

	if err != nil && ctx.Err() != nil {
		out.Err = err
		log.Warn("tabulate: unit interrupted",
			zap.Float64("minutes", minutes),
			zap.Error(err),
		)
		return out, eris.Wrap(ctx.Err(), "tabulate: interrupted")
	}

	if err != nil {
		out.Status = runlog.StatusFailed
		out.Err = err
		log.Error("tabulate: unit failed",
			zap.String("kind", faults.KindOf(err).String()),
			zap.Float64("minutes", minutes),
			zap.Error(err),
		)
		if logErr := e.runlog.Fail(u, faults.Note(err), out.Started, out.Ended); logErr != nil {
			return out, eris.Wrap(logErr, "tabulate: write run log")
		}
		return out, nil
	}

	out.Status = runlog.StatusComplete
	if logErr := e.runlog.Complete(u, out.Started, out.Ended); logErr != nil {
		return out, eris.Wrap(logErr, "tabulate: write run log")
	}
	log.Info("tabulate: unit complete", zap.Float64("minutes", minutes))
	return out, nil
}

func (e *Executor) tabulate(ctx context.Context, u string, scheme zone.Scheme, log *zap.Logger) error {
	years, err := e.ref.Lookup(u)
	if err != nil {
		return err
	}

	outPath := e.layout.TablePath(u, scheme.Name)
	if err := removeStale(outPath); err != nil {
		return faults.Tabulation(u, err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return faults.Tabulation(u, eris.Wrapf(err, "create tables dir for %s", outPath))
	}

	staged, release, err := e.stage(ctx, u, years, log)
	if err != nil {
		return err
	}
	defer release()

	req := engine.TabulateRequest{
		ZonePath:   scheme.Path,
		ZoneField:  e.opts.ZoneField,
		RasterPath: staged,
		ValueField: e.opts.ValueField,
		OutPath:    outPath,
		CellSize:   e.opts.CellSize,
	}
	if err := e.eng.MaskBy(staged).Tabulate(ctx, req); err != nil {
		removePartial(outPath, log)
		return faults.Tabulation(u, eris.Wrapf(err, "tabulate %s against %s", staged, scheme.Name))
	}

	fi, err := os.Stat(outPath)
	if err != nil || fi.Size() == 0 {
		removePartial(outPath, log)
		return faults.Tabulation(u, eris.Errorf("engine produced no table at %s", outPath))
	}
	return nil
}

// stage copies the unit's change raster locally. The returned release func
// deletes the staged copy and must be called on every path once stage
// returns without error.
func (e *Executor) stage(ctx context.Context, u string, years unit.Years, log *zap.Logger) (string, func(), error) {
	src := e.layout.RasterPath(u, years)
	dst := e.layout.StagedPath(u, years)

	release := func() {
		// Cleanup must run even when ctx was canceled mid-tabulation.
		err := e.eng.DeleteArtifact(context.WithoutCancel(ctx), dst)
		if err == nil {
			return
		}
		log.Warn("tabulate: release staged raster",
			zap.String("path", dst),
			zap.Error(faults.Cleanup(u, err)),
		)
		if rmErr := engine.RemoveRaster(dst); rmErr != nil {
			log.Warn("tabulate: remove staged raster", zap.String("path", dst), zap.Error(rmErr))
		}
	}

	if err := os.MkdirAll(e.layout.StagingDir, 0o755); err != nil {
		return "", nil, faults.Staging(u, eris.Wrapf(err, "create staging dir %s", e.layout.StagingDir))
	}
	if err := e.stager.CopyFile(ctx, src, dst); err != nil {
		release()
		return "", nil, faults.Staging(u, eris.Wrapf(err, "copy %s", src))
	}
	return dst, release, nil
}

// removeStale deletes a zero-byte table left by an interrupted run.
func removeStale(path string) error {
	fi, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return eris.Wrapf(err, "stat %s", path)
	}
	if fi.Size() > 0 {
		return nil
	}
	if err := os.Remove(path); err != nil {
		return eris.Wrapf(err, "remove empty table %s", path)
	}
	return nil
}

func removePartial(path string, log *zap.Logger) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("tabulate: remove partial table", zap.String("path", path), zap.Error(err))
	}
}
