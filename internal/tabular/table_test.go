package tabular

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func TestReadCSV_Basic(t *testing.T) {
	in := "co_fips,T1,T2\nanne_24003,2013,2018\nkent_24029,2013,2017\n"
	tbl, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, []string{"co_fips", "T1", "T2"}, tbl.Header)
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, "2018", Value(tbl.Rows[0], tbl.Col("t2")))
}

func TestReadCSV_StripsBOM(t *testing.T) {
	in := "\ufeffGRIDCODE,VALUE_0102\n1,10.5\n"
	tbl, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, 0, tbl.Col("GRIDCODE"))
	assert.Equal(t, "GRIDCODE", tbl.Header[0])
}

func TestReadCSV_RaggedRows(t *testing.T) {
	in := "a,b,c\n1,2\n3,4,5,6\n"
	tbl, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, "", Value(tbl.Rows[0], tbl.Col("c")))
	assert.Equal(t, "5", Value(tbl.Rows[1], tbl.Col("c")))
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty table")
}

func TestNewTable_TrimsNulPadding(t *testing.T) {
	tbl := NewTable([]string{"GRIDCODE\x00\x00", " Value "}, nil)
	assert.Equal(t, 0, tbl.Col("gridcode"))
	assert.Equal(t, 1, tbl.Col("VALUE"))
	assert.Equal(t, -1, tbl.Col("missing"))
	assert.False(t, tbl.HasCol("missing"))
}

func TestMustCols(t *testing.T) {
	tbl := NewTable([]string{"Class", "GenAbbrev", "Value"}, nil)

	idxs, err := tbl.MustCols("genabbrev", "value")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, idxs)

	_, err = tbl.MustCols("Value", "Color", "Alpha")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Color, Alpha")
}

func TestRead_DispatchesOnExtension(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "dates.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("co_fips,T1,T2\nx_1,2013,2018\n"), 0o644))
	tbl, err := Read(csvPath)
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.Len())

	_, err = Read(filepath.Join(dir, "table.dbf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported table format")
}

func TestReadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crosswalk.xlsx")

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("classes")
	require.NoError(t, err)
	for _, rec := range [][]string{
		{"Class", "GenAbbrev", "Value"},
		{"Forest", "FORE", "1"},
		{"Roads", "ROAD", "2"},
	} {
		row := sheet.AddRow()
		for _, v := range rec {
			row.AddCell().SetString(v)
		}
	}
	require.NoError(t, f.Save(path))

	tbl, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Class", "GenAbbrev", "Value"}, tbl.Header)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "ROAD", Value(tbl.Rows[1], tbl.Col("GenAbbrev")))

	_, err = ReadXLSX(path, XLSXOptions{SheetName: "nope"})
	require.Error(t, err)
	_, err = ReadXLSX(path, XLSXOptions{SheetIndex: 3})
	require.Error(t, err)
}
