package indicator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/tc-outcome/internal/crosswalk"
	"github.com/sells-group/tc-outcome/internal/faults"
	"github.com/sells-group/tc-outcome/internal/layout"
	"github.com/sells-group/tc-outcome/internal/tabular"
)

// oneByOne classifies canopy class 1 and developed class 2, so 0201 is a gain
// and 0102 a loss.
func oneByOne(t *testing.T) *crosswalk.Transitions {
	t.Helper()
	tr, err := crosswalk.Classify([]crosswalk.Class{
		{Label: "Forest", Category: "FORE", Value: 1},
		{Label: "Roads", Category: "ROAD", Value: 2},
		{Label: "Water", Category: "WATR", Value: 3},
	}, crosswalk.Categories{Canopy: []string{"FORE"}, Developed: []string{"ROAD"}})
	require.NoError(t, err)
	return tr
}

func writeTable(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestTableIndicator_GainAndLossCancel(t *testing.T) {
	tbl := tabular.NewTable(
		[]string{"GRIDCODE", "VALUE_0102", "VALUE_0201"},
		[][]string{{"7", "4046.86", "4046.86"}},
	)
	values, stats, err := TableIndicator(tbl, oneByOne(t), "GRIDCODE", DefaultAreaPerUnit)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, values[7], 1e-9)
	assert.Equal(t, []string{"VALUE_0201"}, stats.GainColumns)
	assert.Equal(t, []string{"VALUE_0102"}, stats.LossColumns)
}

func TestTableIndicator_NetGain(t *testing.T) {
	tbl := tabular.NewTable(
		[]string{"gridcode", "VALUE_0102", "VALUE_0201", "VALUE_0303"},
		[][]string{
			{"1", "4046.86", "12140.58", "99999"},
			{"2", "8093.72", "", "0"},
		},
	)
	values, stats, err := TableIndicator(tbl, oneByOne(t), "GRIDCODE", DefaultAreaPerUnit)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Rows)
	assert.InDelta(t, 2.0, values[1], 1e-9)
	assert.InDelta(t, -2.0, values[2], 1e-9)
}

func TestTableIndicator_MissingTransitionColumns(t *testing.T) {
	tbl := tabular.NewTable(
		[]string{"GRIDCODE", "VALUE_0201"},
		[][]string{{"4", "4046.86"}},
	)
	values, _, err := TableIndicator(tbl, oneByOne(t), "GRIDCODE", DefaultAreaPerUnit)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, values[4], 1e-9)
}

func TestTableIndicator_ArtifactColumnsIgnored(t *testing.T) {
	tbl := tabular.NewTable(
		[]string{"OID", "GRIDCODE", "VALUE_0201", "Shape", "geometry"},
		[][]string{{"0", "5", "4046.86", "POLYGON", "not-a-number"}},
	)
	values, _, err := TableIndicator(tbl, oneByOne(t), "GRIDCODE", DefaultAreaPerUnit)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, values[5], 1e-9)
}

func TestTableIndicator_OddWidthColumns(t *testing.T) {
	tbl := tabular.NewTable(
		[]string{"GRIDCODE", "VALUE_12", "VALUE_0201"},
		[][]string{{"5", "100", "4046.86"}},
	)
	_, stats, err := TableIndicator(tbl, oneByOne(t), "GRIDCODE", DefaultAreaPerUnit)
	require.NoError(t, err)
	assert.Equal(t, []string{"VALUE_12"}, stats.OddWidth)
}

func TestTableIndicator_Malformed(t *testing.T) {
	tr := oneByOne(t)

	_, _, err := TableIndicator(tabular.NewTable([]string{"id", "VALUE_0201"}, nil), tr, "GRIDCODE", DefaultAreaPerUnit)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GRIDCODE")

	_, _, err = TableIndicator(tabular.NewTable(
		[]string{"GRIDCODE", "VALUE_0201"},
		[][]string{{"1", "lots"}},
	), tr, "GRIDCODE", DefaultAreaPerUnit)
	require.Error(t, err)

	_, _, err = TableIndicator(tabular.NewTable(
		[]string{"GRIDCODE", "VALUE_0201"},
		[][]string{{"", "1"}},
	), tr, "GRIDCODE", DefaultAreaPerUnit)
	require.Error(t, err)

	_, _, err = TableIndicator(tabular.NewTable([]string{"GRIDCODE"}, nil), tr, "GRIDCODE", 0)
	require.Error(t, err)
}

func TestResult_AddIsOrderIndependent(t *testing.T) {
	a := map[int64]float64{1: 3.0, 2: 0.25}
	b := map[int64]float64{1: -1.5, 3: 4}

	var ab, ba Result
	ab.Add(a)
	ab.Add(b)
	ba.Add(b)
	ba.Add(a)

	assert.InDelta(t, 1.5, ab.Values[1], 1e-9)
	require.Len(t, ab.Values, 3)
	for id, v := range ab.Values {
		assert.InDelta(t, v, ba.Values[id], 1e-9)
	}

	cells := ab.Cells()
	require.Len(t, cells, 3)
	assert.Equal(t, int64(1), cells[0].ID)
	assert.Equal(t, int64(3), cells[2].ID)
}

func newAggregator(t *testing.T) (*Aggregator, string) {
	t.Helper()
	dir := t.TempDir()
	l := layout.Layout{TablesDir: dir}
	return NewAggregator(l, oneByOne(t), Options{}), dir
}

func TestAggregate_SumsAcrossUnits(t *testing.T) {
	agg, dir := newAggregator(t)
	writeTable(t, dir, "anne_24003_1mihex_ta.csv",
		"GRIDCODE,VALUE_0201\n1,12140.58\n2,4046.86\n")
	writeTable(t, dir, "balt_24005_1mihex_ta.csv",
		"GRIDCODE,VALUE_0102\n1,6070.29\n")
	// different scheme, must not be read
	writeTable(t, dir, "anne_24003_100acrehex_ta.csv",
		"GRIDCODE,VALUE_0201\n1,99999\n")

	res, err := agg.Aggregate(context.Background(), "1mihex")
	require.NoError(t, err)
	assert.Empty(t, res.Failures)
	require.Len(t, res.Tables, 2)
	assert.Equal(t, "anne_24003", res.Tables[0].Unit)

	assert.InDelta(t, 1.5, res.Values[1], 1e-9)
	assert.InDelta(t, 1.0, res.Values[2], 1e-9)
	_, present := res.Values[3]
	assert.False(t, present)
}

func TestAggregate_MalformedTableExcluded(t *testing.T) {
	agg, dir := newAggregator(t)
	writeTable(t, dir, "anne_24003_1mihex_ta.csv", "GRIDCODE,VALUE_0201\n1,4046.86\n")
	bad := writeTable(t, dir, "balt_24005_1mihex_ta.csv", "cell,VALUE_0201\n1,4046.86\n")

	res, err := agg.Aggregate(context.Background(), "1mihex")
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "balt_24005", res.Failures[0].Unit)
	assert.Equal(t, bad, res.Failures[0].Path)
	assert.True(t, faults.Is(res.Failures[0].Err, faults.KindAggregation))
	assert.InDelta(t, 1.0, res.Values[1], 1e-9)
}

func TestAggregate_NoTables(t *testing.T) {
	agg, _ := newAggregator(t)
	_, err := agg.Aggregate(context.Background(), "1mihex")
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.KindAggregation))
}

func TestAggregate_MissingDir(t *testing.T) {
	agg := NewAggregator(layout.Layout{TablesDir: filepath.Join(t.TempDir(), "none")}, oneByOne(t), Options{})
	_, err := agg.Aggregate(context.Background(), "1mihex")
	require.Error(t, err)
}

func TestAggregate_Canceled(t *testing.T) {
	agg, dir := newAggregator(t)
	writeTable(t, dir, "anne_24003_1mihex_ta.csv", "GRIDCODE,VALUE_0201\n1,4046.86\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := agg.Aggregate(ctx, "1mihex")
	require.Error(t, err)
}

func TestReport_WriteYAML(t *testing.T) {
	agg, dir := newAggregator(t)
	writeTable(t, dir, "anne_24003_1mihex_ta.csv", "GRIDCODE,VALUE_0201\n1,4046.86\n2,4046.86\n")
	writeTable(t, dir, "balt_24005_1mihex_ta.csv", "GRIDCODE,VALUE_0201\n1,oops\n")

	res, err := agg.Aggregate(context.Background(), "1mihex")
	require.NoError(t, err)

	rep := res.Report(1, 1)
	assert.InDelta(t, 2.0, rep.Total, 1e-9)
	assert.Equal(t, []string{"anne_24003"}, rep.Contributing)

	path := filepath.Join(dir, "out", "TC_Outcome_1mihex_report.yaml")
	require.NoError(t, rep.WriteYAML(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got Report
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, "1mihex", got.Scheme)
	assert.Equal(t, 2, got.Cells)
	assert.Equal(t, 1, got.Unmatched)
	require.Len(t, got.Failures, 1)
	assert.Equal(t, "AggregationError", got.Failures[0].Kind)
	assert.Equal(t, "balt_24005", got.Failures[0].Unit)
}
