// Package zone reads zone scheme geometries (hexagon grids keyed by an
// integer cell id) and joins indicator values onto them.
package zone

import (
	"math"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Scheme is a named zone tiling backed by a geometry file.
type Scheme struct {
	Name string `yaml:"name" mapstructure:"name"`
	Path string `yaml:"path" mapstructure:"path"`
}

// Cell is one zone feature.
type Cell struct {
	ID    int64
	Shape shp.Shape
}

// Feature is a cell joined with its indicator value.
type Feature struct {
	ID    int64
	Value float64
	Shape shp.Shape
}

// Load reads every feature of the shapefile at path, keyed by cellField
// (matched case-insensitively). Features with a null shape or an empty id
// are skipped.
func Load(path, cellField string) ([]Cell, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "zone: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	idx := fieldIndex(reader.Fields(), cellField)
	if idx < 0 {
		return nil, eris.Errorf("zone: field %q not found in %s", cellField, path)
	}

	var cells []Cell
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		if shape == nil {
			skipped++
			continue
		}
		if _, isNull := shape.(*shp.Null); isNull {
			skipped++
			continue
		}

		raw := strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
		if raw == "" {
			skipped++
			continue
		}
		id, err := ParseCellID(raw)
		if err != nil {
			return nil, eris.Wrapf(err, "zone: %s", path)
		}
		cells = append(cells, Cell{ID: id, Shape: shape})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "zone: read %s", path)
	}

	if skipped > 0 {
		zap.L().Debug("zone: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return cells, nil
}

// ParseCellID parses an integer cell id; DBF numeric renderings such as
// "42.000" are accepted when integral.
func ParseCellID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, eris.Errorf("invalid cell id %q", s)
	}
	return int64(f), nil
}

// Join inner-joins cells with values. Cells without a value are dropped;
// values whose cell is not in the scheme are counted in unmatched.
func Join(cells []Cell, values map[int64]float64) (features []Feature, unmatched int) {
	seen := make(map[int64]bool, len(cells))
	features = make([]Feature, 0, len(values))
	for _, c := range cells {
		seen[c.ID] = true
		v, ok := values[c.ID]
		if !ok {
			continue
		}
		features = append(features, Feature{ID: c.ID, Value: v, Shape: c.Shape})
	}
	for id := range values {
		if !seen[id] {
			unmatched++
		}
	}
	return features, unmatched
}

// IDs returns the set of cell ids.
func IDs(cells []Cell) map[int64]struct{} {
	m := make(map[int64]struct{}, len(cells))
	for _, c := range cells {
		m[c.ID] = struct{}{}
	}
	return m
}

func fieldIndex(fields []shp.Field, name string) int {
	for i, f := range fields {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}
