package engine

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRemoveRaster_RemovesSidecars(t *testing.T) {
	dir := t.TempDir()
	raster := filepath.Join(dir, "anne_24003_landusechange_20132018.tif")
	for _, p := range []string{raster, raster + ".aux.xml", raster + ".ovr"} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}

	require.NoError(t, RemoveRaster(raster))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRemoveRaster_MissingIsOK(t *testing.T) {
	assert.NoError(t, RemoveRaster(filepath.Join(t.TempDir(), "none.tif")))
}

func TestFileStager_CopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.tif")
	dst := filepath.Join(dir, "staging", "dst.tif")
	require.NoError(t, os.WriteFile(src, []byte("raster-bytes"), 0o644))

	require.NoError(t, FileStager{}.CopyFile(context.Background(), src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "raster-bytes", string(data))
	assert.NoFileExists(t, dst+".partial")
}

func TestFileStager_MissingSource(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "dst.tif")

	err := FileStager{}.CopyFile(context.Background(), filepath.Join(dir, "missing.tif"), dst)
	require.Error(t, err)
	assert.NoFileExists(t, dst)
}

func TestFileStager_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := FileStager{}.CopyFile(ctx, "a", "b")
	require.Error(t, err)
}

func TestNewCommandEngine_Empty(t *testing.T) {
	_, err := NewCommandEngine(nil)
	require.Error(t, err)
	_, err = NewCommandStager([]string{" "})
	require.Error(t, err)
}

func TestExpand(t *testing.T) {
	got := expand(
		[]string{"tabulate", "--zones={zones}", "{out}", "{cell_size}"},
		map[string]string{"{zones}": "hex.shp", "{out}": "t.csv", "{cell_size}": "1"},
	)
	assert.Equal(t, []string{"tabulate", "--zones=hex.shp", "t.csv", "1"}, got)
}

func TestFormatCellSize(t *testing.T) {
	assert.Equal(t, "1", formatCellSize(1))
	assert.Equal(t, "0.5", formatCellSize(0.5))
}

func TestCommandEngine_Tabulate(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "anne_24003_1mihex_ta.csv")

	eng, err := NewCommandEngine([]string{
		"sh", "-c", `printf 'GRIDCODE,VALUE_0102\n1,%s\n' "$1" > "$0"`, "{out}", "{cell_size}",
	})
	require.NoError(t, err)

	masked := eng.MaskBy(filepath.Join(dir, "mask.tif"))
	require.NoError(t, masked.Tabulate(context.Background(), TabulateRequest{
		ZonePath:   "hex.shp",
		ZoneField:  "gridcode",
		RasterPath: "r.tif",
		ValueField: "VALUE",
		OutPath:    out,
		CellSize:   1,
	}))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "GRIDCODE,VALUE_0102\n1,1\n", string(data))
}

func TestCommandEngine_MaskPlaceholder(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "mask.txt")

	eng, err := NewCommandEngine([]string{"sh", "-c", `printf '%s' "$1" > "$0"`, "{out}", "{mask}"})
	require.NoError(t, err)

	require.NoError(t, eng.MaskBy("staged.tif").Tabulate(context.Background(), TabulateRequest{OutPath: out}))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "staged.tif", string(data))

	// The unmasked engine is unaffected.
	require.NoError(t, eng.Tabulate(context.Background(), TabulateRequest{OutPath: out}))
	data, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.Empty(t, string(data))
}

func TestCommandEngine_FailureCarriesStderr(t *testing.T) {
	requireShell(t)
	eng, err := NewCommandEngine([]string{"sh", "-c", "echo 'ERROR 999999: license unavailable' >&2; exit 3"})
	require.NoError(t, err)

	err = eng.Tabulate(context.Background(), TabulateRequest{RasterPath: "r.tif"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "license unavailable")
	assert.Contains(t, err.Error(), "r.tif")
}

func TestCommandStager_CopyFile(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "src.tif")
	dst := filepath.Join(dir, "dst.tif")
	require.NoError(t, os.WriteFile(src, []byte("abc"), 0o644))

	st, err := NewCommandStager([]string{"cp", "{src}", "{dst}"})
	require.NoError(t, err)
	require.NoError(t, st.CopyFile(context.Background(), src, dst))
	assert.FileExists(t, dst)

	err = st.CopyFile(context.Background(), filepath.Join(dir, "missing.tif"), dst)
	require.Error(t, err)
}

func TestCommandEngine_DeleteArtifact(t *testing.T) {
	dir := t.TempDir()
	raster := filepath.Join(dir, "r.tif")
	require.NoError(t, os.WriteFile(raster, []byte("x"), 0o644))

	eng, err := NewCommandEngine([]string{"true"})
	require.NoError(t, err)
	require.NoError(t, eng.DeleteArtifact(context.Background(), raster))
	assert.NoFileExists(t, raster)
}
