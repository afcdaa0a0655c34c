package engine

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// FileStager copies rasters in-process. The copy is written to a temporary
// name and renamed into place, so dst never holds a partial raster.
type FileStager struct{}

// CopyFile copies src to dst, creating dst's directory.
func (FileStager) CopyFile(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "engine: stage cancelled")
	}

	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "engine: open %s", src)
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return eris.Wrapf(err, "engine: create staging dir for %s", dst)
	}

	tmp := dst + ".partial"
	out, err := os.Create(tmp)
	if err != nil {
		return eris.Wrapf(err, "engine: create %s", tmp)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "engine: copy %s", src)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "engine: close %s", tmp)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "engine: rename %s", tmp)
	}
	return nil
}
