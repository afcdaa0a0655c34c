package engine

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"
)

// maxStderr bounds how much engine stderr is carried into error messages.
const maxStderr = 2000

// CommandEngine runs tabulations through an external program, such as a
// geoprocessing script wrapping the desktop GIS engine. Argv entries may use
// the placeholders {zones}, {zone_field}, {raster}, {value_field}, {out},
// {cell_size} and {mask}. The program must write {out} as a delimited text
// or XLSX table; the aggregator cannot read .dbf output.
type CommandEngine struct {
	argv []string
	mask string
}

// NewCommandEngine creates a CommandEngine from an argv template.
func NewCommandEngine(argv []string) (*CommandEngine, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, eris.New("engine: command is required")
	}
	return &CommandEngine{argv: append([]string(nil), argv...)}, nil
}

// MaskBy returns a copy of the engine that passes maskPath as {mask}.
func (c *CommandEngine) MaskBy(maskPath string) Engine {
	return &CommandEngine{argv: c.argv, mask: maskPath}
}

// Tabulate runs the configured command and waits for it to exit.
func (c *CommandEngine) Tabulate(ctx context.Context, req TabulateRequest) error {
	args := expand(c.argv, map[string]string{
		"{zones}":       req.ZonePath,
		"{zone_field}":  req.ZoneField,
		"{raster}":      req.RasterPath,
		"{value_field}": req.ValueField,
		"{out}":         req.OutPath,
		"{cell_size}":   formatCellSize(req.CellSize),
		"{mask}":        c.mask,
	})

	if err := run(ctx, args); err != nil {
		return eris.Wrapf(err, "engine: tabulate %s", req.RasterPath)
	}
	return nil
}

// DeleteArtifact removes the raster and its sidecars from disk.
func (c *CommandEngine) DeleteArtifact(_ context.Context, path string) error {
	if err := RemoveRaster(path); err != nil {
		return eris.Wrapf(err, "engine: delete %s", path)
	}
	return nil
}

// CommandStager copies rasters with an external program (e.g. a network
// share copy tool). Argv entries may use {src} and {dst}.
type CommandStager struct {
	argv []string
}

// NewCommandStager creates a CommandStager from an argv template.
func NewCommandStager(argv []string) (*CommandStager, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, eris.New("engine: staging command is required")
	}
	return &CommandStager{argv: append([]string(nil), argv...)}, nil
}

// CopyFile runs the staging command for src → dst.
func (s *CommandStager) CopyFile(ctx context.Context, src, dst string) error {
	args := expand(s.argv, map[string]string{"{src}": src, "{dst}": dst})
	if err := run(ctx, args); err != nil {
		return eris.Wrapf(err, "engine: stage %s", src)
	}
	return nil
}

func expand(argv []string, vars map[string]string) []string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, k, v)
	}
	r := strings.NewReplacer(pairs...)

	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = r.Replace(a)
	}
	return out
}

func run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderr {
			msg = msg[len(msg)-maxStderr:]
		}
		if msg == "" {
			return eris.Wrapf(err, "%s failed", args[0])
		}
		return eris.Wrapf(err, "%s failed: %s", args[0], msg)
	}
	return nil
}
