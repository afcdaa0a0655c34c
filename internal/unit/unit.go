// Package unit loads administrative units (counties) and their land-cover
// observation years.
package unit

import (
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tc-outcome/internal/faults"
	"github.com/sells-group/tc-outcome/internal/tabular"
)

// Years holds the before/after observation years of a unit's change raster.
type Years struct {
	Before int
	After  int
}

// ReferenceColumns names the reference table columns.
type ReferenceColumns struct {
	Key    string // unit identifier, e.g. co_fips
	Before string // e.g. T1
	After  string // e.g. T2
}

// Reference maps unit identifiers to observation years. It is read-only once
// built.
type Reference struct {
	years map[string]Years
}

// NewReference builds a Reference from an explicit map (copied).
func NewReference(m map[string]Years) *Reference {
	r := &Reference{years: make(map[string]Years, len(m))}
	for k, v := range m {
		r.years[k] = v
	}
	return r
}

// ReadReference builds a Reference from a table.
func ReadReference(tbl *tabular.Table, cols ReferenceColumns) (*Reference, error) {
	idxs, err := tbl.MustCols(cols.Key, cols.Before, cols.After)
	if err != nil {
		return nil, faults.Config(eris.Wrap(err, "unit: reference table"))
	}

	r := &Reference{years: make(map[string]Years, tbl.Len())}
	for i, row := range tbl.Rows {
		key := tabular.Value(row, idxs[0])
		if key == "" {
			continue
		}
		before, err := parseYear(tabular.Value(row, idxs[1]))
		if err != nil {
			return nil, faults.Config(eris.Wrapf(err, "unit: reference row %d (%s) %s", i+2, key, cols.Before))
		}
		after, err := parseYear(tabular.Value(row, idxs[2]))
		if err != nil {
			return nil, faults.Config(eris.Wrapf(err, "unit: reference row %d (%s) %s", i+2, key, cols.After))
		}
		r.years[key] = Years{Before: before, After: after}
	}
	return r, nil
}

// LoadReference reads the reference table at path.
func LoadReference(path string, cols ReferenceColumns) (*Reference, error) {
	tbl, err := tabular.Read(path)
	if err != nil {
		return nil, faults.Config(eris.Wrap(err, "unit: read reference table"))
	}
	return ReadReference(tbl, cols)
}

// Lookup returns the years for unit, or a LookupError if it is absent.
func (r *Reference) Lookup(unit string) (Years, error) {
	y, ok := r.years[unit]
	if !ok {
		return Years{}, faults.Lookup(unit, eris.Errorf("unit: %q not found in reference table", unit))
	}
	return y, nil
}

// Units returns all unit identifiers in the reference, sorted.
func (r *Reference) Units() []string {
	out := make([]string, 0, len(r.years))
	for k := range r.years {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Discover lists unit folders under sourceDir: sub-directories whose names
// contain an underscore (e.g. anne_24003), sorted.
func Discover(sourceDir string) ([]string, error) {
	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return nil, eris.Wrapf(err, "unit: list %s", sourceDir)
	}
	var units []string
	for _, e := range entries {
		if e.IsDir() && strings.Contains(e.Name(), "_") {
			units = append(units, e.Name())
		}
	}
	sort.Strings(units)
	return units, nil
}

// FIPS returns the trailing FIPS component of a unit identifier
// ("anne_24003" → "24003"), or the identifier itself if it has no underscore.
func FIPS(unit string) string {
	if i := strings.LastIndex(unit, "_"); i >= 0 {
		return unit[i+1:]
	}
	return unit
}

func parseYear(s string) (int, error) {
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Errorf("invalid year %q", s)
	}
	return int(f), nil
}
