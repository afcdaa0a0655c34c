// Package tabular reads the reference, crosswalk and cross-tabulation tables
// from CSV and XLSX files into memory.
package tabular

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Table is an in-memory table with a header row. Column lookups are
// case-insensitive.
type Table struct {
	Header []string
	Rows   [][]string

	index map[string]int
}

// NewTable builds a Table, normalizing header names (whitespace and DBF NUL
// padding are trimmed).
func NewTable(header []string, rows [][]string) *Table {
	t := &Table{
		Header: make([]string, len(header)),
		Rows:   rows,
		index:  make(map[string]int, len(header)),
	}
	for i, h := range header {
		name := cleanField(h)
		t.Header[i] = name
		key := strings.ToLower(name)
		if _, dup := t.index[key]; !dup {
			t.index[key] = i
		}
	}
	return t
}

// Col returns the index of the named column, or -1 if absent.
func (t *Table) Col(name string) int {
	idx, ok := t.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return -1
	}
	return idx
}

// HasCol reports whether the named column exists.
func (t *Table) HasCol(name string) bool {
	return t.Col(name) >= 0
}

// MustCols resolves every named column, failing with the list of missing ones.
func (t *Table) MustCols(names ...string) ([]int, error) {
	idxs := make([]int, len(names))
	var missing []string
	for i, n := range names {
		idxs[i] = t.Col(n)
		if idxs[i] < 0 {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("tabular: missing columns %s", strings.Join(missing, ", "))
	}
	return idxs, nil
}

// Value returns the trimmed cell at col for row, or "" when the row is short.
func Value(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return cleanField(row[col])
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Read loads a table from path, choosing the parser by file extension.
func Read(path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return ReadCSVFile(path)
	case ".xlsx":
		return ReadXLSX(path, XLSXOptions{})
	default:
		return nil, eris.Errorf("tabular: unsupported table format %q", filepath.Ext(path))
	}
}

func cleanField(s string) string {
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}
