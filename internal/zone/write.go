package zone

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Fields names the attribute columns of joined outputs.
type Fields struct {
	ID    string // e.g. GRIDCODE
	Value string // e.g. TCD
}

// WriteShapefile writes features as a polygon shapefile (.shp/.shx/.dbf).
// When srcPath has a sibling .prj it is copied so the output keeps the zone
// scheme's projection.
func WriteShapefile(path string, features []Feature, fields Fields, srcPath string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "zone: create dir for %s", path)
	}

	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "zone: create shapefile %s", path)
	}

	if err := w.SetFields([]shp.Field{
		shp.NumberField(dbfName(fields.ID), 10),
		shp.FloatField(dbfName(fields.Value), 19, 11),
	}); err != nil {
		w.Close()
		return eris.Wrapf(err, "zone: set fields on %s", path)
	}

	for _, f := range features {
		row := int(w.Write(f.Shape))
		if err := w.WriteAttribute(row, 0, int(f.ID)); err != nil {
			w.Close()
			return eris.Wrapf(err, "zone: write %s for cell %d", fields.ID, f.ID)
		}
		if err := w.WriteAttribute(row, 1, f.Value); err != nil {
			w.Close()
			return eris.Wrapf(err, "zone: write %s for cell %d", fields.Value, f.ID)
		}
	}
	w.Close()

	if srcPath != "" {
		if err := copyProjection(srcPath, path); err != nil {
			return err
		}
	}
	return nil
}

// WriteGeoJSON writes features as a GeoJSON FeatureCollection.
func WriteGeoJSON(path string, features []Feature, fields Fields, srid int) error {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(features))}
	for _, f := range features {
		g := ToGeom(f.Shape, srid)
		if g == nil {
			continue
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       strconv.FormatInt(f.ID, 10),
			Geometry: g,
			Properties: map[string]interface{}{
				fields.ID:    f.ID,
				fields.Value: f.Value,
			},
		})
	}

	data, err := json.Marshal(&fc)
	if err != nil {
		return eris.Wrap(err, "zone: encode GeoJSON")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "zone: create dir for %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "zone: write %s", path)
	}
	return nil
}

// dbfName truncates a field name to the 10 characters DBF allows.
func dbfName(name string) string {
	if len(name) > 10 {
		return name[:10]
	}
	return name
}

func copyProjection(srcShp, dstShp string) error {
	src := strings.TrimSuffix(srcShp, filepath.Ext(srcShp)) + ".prj"
	data, err := os.ReadFile(src)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return eris.Wrapf(err, "zone: read %s", src)
	}
	dst := strings.TrimSuffix(dstShp, filepath.Ext(dstShp)) + ".prj"
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return eris.Wrapf(err, "zone: write %s", dst)
	}
	return nil
}
