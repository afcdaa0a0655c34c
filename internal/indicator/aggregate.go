// Package indicator sums per-unit cross-tabulation tables into the per-cell
// net canopy indicator: (gain area − loss area) / area-per-unit.
package indicator

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tc-outcome/internal/crosswalk"
	"github.com/sells-group/tc-outcome/internal/faults"
	"github.com/sells-group/tc-outcome/internal/layout"
	"github.com/sells-group/tc-outcome/internal/tabular"
)

// Options configures an Aggregator.
type Options struct {
	CellField   string   // cell id column in unit tables; default GRIDCODE
	AreaPerUnit float64  // default DefaultAreaPerUnit
	TableExts   []string // table extensions to discover; default csv, txt, xlsx
}

// CellValue is the indicator for one zone cell.
type CellValue struct {
	ID    int64
	Value float64
}

// UnitTable records a unit table that contributed to the result.
type UnitTable struct {
	Unit  string
	Path  string
	Rows  int
	Gain  int // transition columns found
	Loss  int
	Cells int
}

// Failure is a unit table excluded from the result.
type Failure struct {
	Unit string
	Path string
	Err  error
}

// Result is the aggregated indicator for one zone scheme.
type Result struct {
	Scheme   string
	Values   map[int64]float64
	Tables   []UnitTable
	Failures []Failure
	Started  time.Time
	Ended    time.Time
}

// Cells returns the indicator values sorted by cell id.
func (r *Result) Cells() []CellValue {
	out := make([]CellValue, 0, len(r.Values))
	for id, v := range r.Values {
		out = append(out, CellValue{ID: id, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Add folds one unit's per-cell values into the result. Order of Add calls
// does not affect the totals beyond floating-point rounding.
func (r *Result) Add(values map[int64]float64) {
	if r.Values == nil {
		r.Values = make(map[int64]float64, len(values))
	}
	for id, v := range values {
		r.Values[id] += v
	}
}

// Aggregator discovers unit tables for a scheme and sums them.
type Aggregator struct {
	layout layout.Layout
	tr     *crosswalk.Transitions
	opts   Options
	log    *zap.Logger
}

// NewAggregator creates an Aggregator over the tables dir of l.
func NewAggregator(l layout.Layout, tr *crosswalk.Transitions, opts Options) *Aggregator {
	if opts.CellField == "" {
		opts.CellField = "GRIDCODE"
	}
	if opts.AreaPerUnit == 0 {
		opts.AreaPerUnit = DefaultAreaPerUnit
	}
	if len(opts.TableExts) == 0 {
		opts.TableExts = []string{"csv", "txt", "xlsx"}
	}
	return &Aggregator{
		layout: l,
		tr:     tr,
		opts:   opts,
		log:    zap.L().With(zap.String("component", "indicator")),
	}
}

// Aggregate sums every discovered table for scheme. A missing or malformed
// table is recorded as an AggregationError in Result.Failures and excluded;
// the remaining tables still contribute. It fails outright only when the
// tables dir cannot be listed, no table exists for scheme, or ctx is done.
func (a *Aggregator) Aggregate(ctx context.Context, scheme string) (*Result, error) {
	res := &Result{Scheme: scheme, Values: make(map[int64]float64), Started: time.Now()}

	tables, err := a.layout.DiscoverTables(scheme, a.opts.TableExts...)
	if err != nil {
		return nil, faults.Aggregation("", err)
	}
	if len(tables) == 0 {
		return nil, faults.Aggregation("", eris.Errorf("indicator: no tables found for scheme %q in %s", scheme, a.layout.TablesDir))
	}

	for _, tf := range tables {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "indicator: aggregate canceled")
		}

		values, ut, err := a.unit(tf)
		if err != nil {
			fe := faults.Aggregation(tf.Unit, err)
			a.log.Warn("indicator: excluding unit table",
				zap.String("scheme", scheme),
				zap.String("unit", tf.Unit),
				zap.String("path", tf.Path),
				zap.Error(err),
			)
			res.Failures = append(res.Failures, Failure{Unit: tf.Unit, Path: tf.Path, Err: fe})
			continue
		}
		res.Add(values)
		res.Tables = append(res.Tables, ut)
	}

	res.Ended = time.Now()
	a.log.Info("indicator: aggregated scheme",
		zap.String("scheme", scheme),
		zap.Int("tables", len(res.Tables)),
		zap.Int("failed", len(res.Failures)),
		zap.Int("cells", len(res.Values)),
	)
	return res, nil
}

func (a *Aggregator) unit(tf layout.TableFile) (map[int64]float64, UnitTable, error) {
	ut := UnitTable{Unit: tf.Unit, Path: tf.Path}

	tbl, err := tabular.Read(tf.Path)
	if err != nil {
		return nil, ut, err
	}
	values, stats, err := TableIndicator(tbl, a.tr, a.opts.CellField, a.opts.AreaPerUnit)
	if err != nil {
		return nil, ut, eris.Wrapf(err, "indicator: %s", tf.Path)
	}
	if len(stats.OddWidth) > 0 {
		a.log.Warn("indicator: ignoring transition columns with unexpected code width",
			zap.String("unit", tf.Unit),
			zap.Int("width", a.tr.Width),
			zap.Strings("columns", stats.OddWidth),
		)
	}

	ut.Rows = stats.Rows
	ut.Gain = len(stats.GainColumns)
	ut.Loss = len(stats.LossColumns)
	ut.Cells = len(values)
	return values, ut, nil
}
