// Package engine binds the external geoprocessing capabilities the pipeline
// consumes: staging copies of change rasters, zonal tabulation, and deletion
// of raster artifacts.
package engine

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strconv"
)

// TabulateRequest describes one zonal cross-tabulation of a change raster
// against a zone scheme.
type TabulateRequest struct {
	ZonePath   string  // zone geometry file
	ZoneField  string  // cell identifier field in the zone geometry
	RasterPath string  // staged change raster
	ValueField string  // raster value field, usually VALUE
	OutPath    string  // cross-tabulation table to write
	CellSize   float64 // processing cell size
}

// Engine is the external tabulation capability. Implementations must be safe
// for concurrent use; MaskBy returns a derived Engine rather than mutating the
// receiver.
type Engine interface {
	// MaskBy returns an Engine whose tabulations are restricted to the extent
	// of the raster at maskPath.
	MaskBy(maskPath string) Engine

	// Tabulate runs the cross-tabulation and writes req.OutPath. It blocks
	// until the external call returns.
	Tabulate(ctx context.Context, req TabulateRequest) error

	// DeleteArtifact removes a raster and its sidecar files.
	DeleteArtifact(ctx context.Context, path string) error
}

// Stager copies a change raster to local storage.
type Stager interface {
	CopyFile(ctx context.Context, src, dst string) error
}

// rasterSidecars are auxiliary files GIS engines write next to a raster.
var rasterSidecars = []string{".aux.xml", ".ovr", ".tfw", ".xml", ".vat.dbf", ".vat.cpg"}

// RemoveRaster deletes path and its sidecar files. Missing files are ignored.
func RemoveRaster(path string) error {
	var errs []error
	for _, p := range append([]string{path}, sidecarPaths(path)...) {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func sidecarPaths(path string) []string {
	out := make([]string, len(rasterSidecars))
	for i, s := range rasterSidecars {
		out[i] = path + s
	}
	return out
}

func formatCellSize(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
