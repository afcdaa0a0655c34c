package crosswalk

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tc-outcome/internal/faults"
	"github.com/sells-group/tc-outcome/internal/tabular"
)

// Columns names the crosswalk table columns.
type Columns struct {
	Label    string // optional
	Category string
	Value    string
}

// ReadClasses extracts classes from a crosswalk table. Rows with an empty
// category or value are skipped; a value that is not a non-negative integer
// is a ConfigError.
func ReadClasses(tbl *tabular.Table, cols Columns) ([]Class, error) {
	idxs, err := tbl.MustCols(cols.Category, cols.Value)
	if err != nil {
		return nil, faults.Config(eris.Wrap(err, "crosswalk: class table"))
	}
	catIdx, valIdx := idxs[0], idxs[1]
	labelIdx := -1
	if cols.Label != "" {
		labelIdx = tbl.Col(cols.Label)
	}

	classes := make([]Class, 0, tbl.Len())
	for i, row := range tbl.Rows {
		cat := tabular.Value(row, catIdx)
		raw := tabular.Value(row, valIdx)
		if cat == "" || raw == "" {
			continue
		}
		v, err := parseClassValue(raw)
		if err != nil {
			return nil, faults.Config(eris.Wrapf(err, "crosswalk: row %d", i+2))
		}
		classes = append(classes, Class{
			Label:    tabular.Value(row, labelIdx),
			Category: cat,
			Value:    v,
		})
	}
	return classes, nil
}

// Load reads the crosswalk table at path and classifies it. Missing category
// labels are logged as warnings (or fail when cats.Strict is set).
func Load(path string, cols Columns, cats Categories) (*Transitions, error) {
	tbl, err := tabular.Read(path)
	if err != nil {
		return nil, faults.Config(eris.Wrap(err, "crosswalk: read class table"))
	}

	classes, err := ReadClasses(tbl, cols)
	if err != nil {
		return nil, err
	}

	t, err := Classify(classes, cats)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("component", "crosswalk"), zap.String("path", path))
	if len(t.Missing) > 0 {
		log.Warn("category labels missing from class table, treating as empty",
			zap.Strings("missing", t.Missing),
		)
	}
	log.Info("crosswalk classified",
		zap.Ints("canopy_values", t.Canopy),
		zap.Ints("developed_values", t.Developed),
		zap.Int("gain_codes", len(t.Gain)),
		zap.Int("loss_codes", len(t.Loss)),
	)

	return t, nil
}

// parseClassValue accepts "3" as well as spreadsheet renderings like "3.0".
func parseClassValue(s string) (int, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.Atoi(s); err == nil {
		if v < 0 {
			return 0, eris.Errorf("class value %d is negative", v)
		}
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f != math.Trunc(f) {
		return 0, eris.Errorf("class value %q is not a non-negative integer", s)
	}
	return int(f), nil
}
