// Package output writes a scheme's indicator to its configured sinks: the
// flat table, joined geometry files and databases.
package output

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tc-outcome/internal/indicator"
	"github.com/sells-group/tc-outcome/internal/zone"
)

// Indicator is everything a sink may need about one scheme's result.
type Indicator struct {
	Scheme   string
	Fields   zone.Fields           // output column names, e.g. GRIDCODE and TCD
	Cells    []indicator.CellValue // every aggregated cell, sorted by id
	Features []zone.Feature        // cells inner-joined with zone geometry
	ZonePath string                // source geometry, for projection carry-over
	SRID     int
}

// Sink writes an Indicator somewhere.
type Sink interface {
	Name() string
	Write(ctx context.Context, ind Indicator) error
}

// WriteAll writes ind to every sink in order. It stops at the first error.
func WriteAll(ctx context.Context, sinks []Sink, ind Indicator) error {
	log := zap.L().With(zap.String("component", "output"), zap.String("scheme", ind.Scheme))
	for _, s := range sinks {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "output: canceled")
		}
		if err := s.Write(ctx, ind); err != nil {
			return eris.Wrapf(err, "output: %s sink", s.Name())
		}
		log.Info("output: wrote sink",
			zap.String("sink", s.Name()),
			zap.Int("cells", len(ind.Cells)),
			zap.Int("features", len(ind.Features)),
		)
	}
	return nil
}

// Names of the file sinks.
const (
	SinkCSV       = "csv"
	SinkShapefile = "shapefile"
	SinkGeoJSON   = "geojson"
	SinkXLSX      = "xlsx"
	SinkSQLite    = "sqlite"
	SinkPostGIS   = "postgis"
)

// PathFunc returns the output path for a scheme and file extension.
type PathFunc func(scheme, ext string) string

// FileSinks builds the file-based sinks named in names. Database sink names
// are skipped and returned in rest for the caller to build.
func FileSinks(names []string, path PathFunc) (sinks []Sink, rest []string, err error) {
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case SinkCSV:
			sinks = append(sinks, CSVSink{Path: path})
		case SinkShapefile, "shp":
			sinks = append(sinks, ShapefileSink{Path: path})
		case SinkGeoJSON:
			sinks = append(sinks, GeoJSONSink{Path: path})
		case SinkXLSX:
			sinks = append(sinks, XLSXSink{Path: path})
		case SinkSQLite, SinkPostGIS:
			rest = append(rest, strings.ToLower(strings.TrimSpace(n)))
		case "":
		default:
			return nil, nil, eris.Errorf("output: unknown sink %q", n)
		}
	}
	return sinks, rest, nil
}
