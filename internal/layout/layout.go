// Package layout defines where change rasters, staged copies,
// cross-tabulation tables and indicator outputs live on disk. Both pipeline
// stages use it so they can run independently against the same directories.
package layout

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tc-outcome/internal/unit"
)

// DefaultRasterPattern locates a unit's change raster under the source dir.
const DefaultRasterPattern = "{unit}/output/{unit}_landusechange_{t1}{t2}.tif"

// DefaultOutputPrefix prefixes indicator output file names.
const DefaultOutputPrefix = "TC_Outcome"

const tableSuffix = "_ta"

// Layout holds the pipeline directories and naming conventions.
type Layout struct {
	SourceDir     string // per-unit land-use folders
	StagingDir    string // local copies of change rasters
	TablesDir     string // cross-tabulation tables
	OutputDir     string // indicator outputs
	RasterPattern string // relative to SourceDir; {unit} {fips} {t1} {t2}
	TableExt      string // extension of tables written by the engine, without dot
	OutputPrefix  string
}

// RasterPath returns the change raster for u.
func (l Layout) RasterPath(u string, y unit.Years) string {
	pattern := l.RasterPattern
	if pattern == "" {
		pattern = DefaultRasterPattern
	}
	r := strings.NewReplacer(
		"{unit}", u,
		"{fips}", unit.FIPS(u),
		"{t1}", strconv.Itoa(y.Before),
		"{t2}", strconv.Itoa(y.After),
	)
	return filepath.Join(l.SourceDir, filepath.FromSlash(r.Replace(pattern)))
}

// StagedPath returns the unit-scoped local copy of the change raster. The
// raster's base name is kept when it already names u; otherwise it is
// prefixed with u so no two units share a staged file.
func (l Layout) StagedPath(u string, y unit.Years) string {
	base := filepath.Base(l.RasterPath(u, y))
	if !strings.Contains(base, u) {
		base = u + "_" + base
	}
	return filepath.Join(l.StagingDir, base)
}

// TablePath returns the cross-tabulation table for (u, scheme).
func (l Layout) TablePath(u, scheme string) string {
	return filepath.Join(l.TablesDir, TableName(u, scheme, l.tableExt()))
}

// OutputPath returns the indicator output for scheme with the given
// extension (e.g. "csv", "shp").
func (l Layout) OutputPath(scheme, ext string) string {
	prefix := l.OutputPrefix
	if prefix == "" {
		prefix = DefaultOutputPrefix
	}
	return filepath.Join(l.OutputDir, prefix+"_"+scheme+"."+ext)
}

// RunLogPath returns the default run log location.
func (l Layout) RunLogPath() string {
	return filepath.Join(l.OutputDir, "chg_ta_log.csv")
}

func (l Layout) tableExt() string {
	if l.TableExt == "" {
		return "csv"
	}
	return strings.TrimPrefix(l.TableExt, ".")
}

// TableName builds "<unit>_<scheme>_ta.<ext>".
func TableName(u, scheme, ext string) string {
	return u + "_" + scheme + tableSuffix + "." + ext
}

// ParseTableName returns the unit encoded in a table file name for scheme.
// Names for other schemes (including ones that merely contain scheme as a
// substring) do not match.
func ParseTableName(name, scheme string) (string, bool) {
	ext := filepath.Ext(name)
	if ext == "" {
		return "", false
	}
	base := strings.TrimSuffix(name, ext)
	suffix := "_" + scheme + tableSuffix
	if !strings.HasSuffix(base, suffix) {
		return "", false
	}
	u := strings.TrimSuffix(base, suffix)
	if u == "" {
		return "", false
	}
	return u, true
}

// TableFile is a discovered cross-tabulation table.
type TableFile struct {
	Unit string
	Path string
}

// DiscoverTables lists the tables for scheme in the tables dir, sorted by
// unit. Only extensions in exts are considered (all when empty).
func (l Layout) DiscoverTables(scheme string, exts ...string) ([]TableFile, error) {
	entries, err := os.ReadDir(l.TablesDir)
	if err != nil {
		return nil, eris.Wrapf(err, "layout: list %s", l.TablesDir)
	}

	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		allowed[strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}

	var out []TableFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(e.Name()), "."))
		if len(allowed) > 0 && !allowed[ext] {
			continue
		}
		u, ok := ParseTableName(e.Name(), scheme)
		if !ok {
			continue
		}
		out = append(out, TableFile{Unit: u, Path: filepath.Join(l.TablesDir, e.Name())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Unit < out[j].Unit })
	return out, nil
}
