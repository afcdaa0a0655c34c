package indicator

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tc-outcome/internal/crosswalk"
	"github.com/sells-group/tc-outcome/internal/tabular"
	"github.com/sells-group/tc-outcome/internal/zone"
)

// DefaultAreaPerUnit converts square meters to acres.
const DefaultAreaPerUnit = 4046.86

// artifactColumns are geometry or row-id columns some engines add to
// tabulation outputs; they never carry transition areas.
var artifactColumns = map[string]bool{
	"geometry": true,
	"shape":    true,
	"oid":      true,
	"objectid": true,
	"fid":      true,
}

// TableStats describes how one unit table was interpreted.
type TableStats struct {
	Rows        int
	GainColumns []string
	LossColumns []string
	// OddWidth lists VALUE_ columns whose code length does not match the
	// crosswalk code width; they are ignored.
	OddWidth []string
}

// TableIndicator computes the per-cell indicator for one unit table:
// (Σ gain columns − Σ loss columns) / areaPerUnit, summed per cell id.
// Transition columns absent from the table contribute nothing.
func TableIndicator(tbl *tabular.Table, tr *crosswalk.Transitions, cellField string, areaPerUnit float64) (map[int64]float64, TableStats, error) {
	var stats TableStats
	if areaPerUnit == 0 {
		return nil, stats, eris.New("indicator: area conversion constant must be non-zero")
	}

	cellIdx := tbl.Col(cellField)
	if cellIdx < 0 {
		return nil, stats, eris.Errorf("indicator: cell id column %q not found", cellField)
	}

	var gain, loss []int
	for i, col := range tbl.Header {
		if i == cellIdx || artifactColumns[strings.ToLower(col)] {
			continue
		}
		code, ok := crosswalk.CodeFromColumn(col)
		if !ok {
			continue
		}
		switch {
		case tr.IsGain(code):
			gain = append(gain, i)
			stats.GainColumns = append(stats.GainColumns, col)
		case tr.IsLoss(code):
			loss = append(loss, i)
			stats.LossColumns = append(stats.LossColumns, col)
		case len(code) != 2*tr.Width:
			stats.OddWidth = append(stats.OddWidth, col)
		}
	}

	values := make(map[int64]float64, tbl.Len())
	for r, row := range tbl.Rows {
		raw := tabular.Value(row, cellIdx)
		if raw == "" {
			return nil, stats, eris.Errorf("indicator: row %d has an empty %s", r+2, cellField)
		}
		id, err := zone.ParseCellID(raw)
		if err != nil {
			return nil, stats, eris.Wrapf(err, "indicator: row %d", r+2)
		}

		g, err := sumColumns(row, gain)
		if err != nil {
			return nil, stats, eris.Wrapf(err, "indicator: row %d", r+2)
		}
		l, err := sumColumns(row, loss)
		if err != nil {
			return nil, stats, eris.Wrapf(err, "indicator: row %d", r+2)
		}
		values[id] += (g - l) / areaPerUnit
		stats.Rows++
	}

	return values, stats, nil
}

// sumColumns adds the numeric cells at idxs; empty cells count as zero.
func sumColumns(row []string, idxs []int) (float64, error) {
	var sum float64
	for _, i := range idxs {
		s := tabular.Value(row, i)
		if s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, eris.Errorf("non-numeric area %q", s)
		}
		sum += v
	}
	return sum, nil
}
