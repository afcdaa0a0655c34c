package output

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/tc-outcome/internal/zone"
)

// CSVSink writes the flat indicator table: every aggregated cell, including
// cells absent from the zone geometry.
type CSVSink struct{ Path PathFunc }

func (CSVSink) Name() string { return SinkCSV }

func (s CSVSink) Write(_ context.Context, ind Indicator) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{ind.Fields.ID, ind.Fields.Value}); err != nil {
		return eris.Wrap(err, "output: encode csv header")
	}
	for _, c := range ind.Cells {
		if err := w.Write([]string{strconv.FormatInt(c.ID, 10), formatValue(c.Value)}); err != nil {
			return eris.Wrapf(err, "output: encode cell %d", c.ID)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "output: encode csv")
	}
	return writeFile(s.Path(ind.Scheme, "csv"), buf.Bytes())
}

// ShapefileSink writes the joined geometry as a shapefile with the zone
// scheme's projection.
type ShapefileSink struct{ Path PathFunc }

func (ShapefileSink) Name() string { return SinkShapefile }

func (s ShapefileSink) Write(_ context.Context, ind Indicator) error {
	return zone.WriteShapefile(s.Path(ind.Scheme, "shp"), ind.Features, ind.Fields, ind.ZonePath)
}

// GeoJSONSink writes the joined geometry as a GeoJSON FeatureCollection.
type GeoJSONSink struct{ Path PathFunc }

func (GeoJSONSink) Name() string { return SinkGeoJSON }

func (s GeoJSONSink) Write(_ context.Context, ind Indicator) error {
	return zone.WriteGeoJSON(s.Path(ind.Scheme, "geojson"), ind.Features, ind.Fields, ind.SRID)
}

// XLSXSink writes the flat indicator table as an Excel workbook.
type XLSXSink struct{ Path PathFunc }

func (XLSXSink) Name() string { return SinkXLSX }

func (s XLSXSink) Write(_ context.Context, ind Indicator) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName(ind.Scheme))
	if err != nil {
		return eris.Wrapf(err, "output: add sheet for %s", ind.Scheme)
	}

	header := sheet.AddRow()
	header.AddCell().SetString(ind.Fields.ID)
	header.AddCell().SetString(ind.Fields.Value)
	for _, c := range ind.Cells {
		row := sheet.AddRow()
		row.AddCell().SetInt64(c.ID)
		row.AddCell().SetFloat(c.Value)
	}

	path := s.Path(ind.Scheme, "xlsx")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "output: create dir for %s", path)
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "output: save %s", path)
	}
	return nil
}

// sheetName fits Excel's 31-character sheet name limit.
func sheetName(scheme string) string {
	if len(scheme) > 31 {
		return scheme[:31]
	}
	if scheme == "" {
		return "indicator"
	}
	return scheme
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "output: create dir for %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "output: write %s", path)
	}
	return nil
}
