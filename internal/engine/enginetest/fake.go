// Package enginetest provides in-memory fakes of the engine capabilities.
package enginetest

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/sells-group/tc-outcome/internal/engine"
)

// DefaultTable is written when Fake.TableFor is nil.
const DefaultTable = "GRIDCODE,VALUE_0102,VALUE_0201\n1,4046.86,8093.72\n"

// Fake is an engine.Engine that writes canned cross-tabulation tables.
type Fake struct {
	// TableFor returns the CSV written for req; nil writes DefaultTable.
	TableFor func(req engine.TabulateRequest) string
	// Err, when non-nil, is called before tabulating; a non-nil result fails
	// the call without writing output.
	Err func(req engine.TabulateRequest) error
	// PartialOnErr writes a truncated output before failing, like an engine
	// that crashes mid-write.
	PartialOnErr bool
	// DeleteErr fails DeleteArtifact when non-nil.
	DeleteErr error

	mu      *sync.Mutex
	state   *fakeState
	maskArg string
}

type fakeState struct {
	calls   []Call
	deleted []string
}

// Call records one Tabulate invocation.
type Call struct {
	Request engine.TabulateRequest
	Mask    string
}

// NewFake returns a ready Fake.
func NewFake() *Fake {
	return &Fake{mu: &sync.Mutex{}, state: &fakeState{}}
}

// MaskBy returns a Fake sharing this one's call history.
func (f *Fake) MaskBy(maskPath string) engine.Engine {
	c := *f
	c.maskArg = maskPath
	return &c
}

// Tabulate records the call and writes the canned table.
func (f *Fake) Tabulate(_ context.Context, req engine.TabulateRequest) error {
	f.mu.Lock()
	f.state.calls = append(f.state.calls, Call{Request: req, Mask: f.maskArg})
	f.mu.Unlock()

	if f.Err != nil {
		if err := f.Err(req); err != nil {
			if f.PartialOnErr {
				_ = os.MkdirAll(filepath.Dir(req.OutPath), 0o755)
				_ = os.WriteFile(req.OutPath, []byte("GRIDCODE,VAL"), 0o644)
			}
			return err
		}
	}

	content := DefaultTable
	if f.TableFor != nil {
		content = f.TableFor(req)
	}
	if err := os.MkdirAll(filepath.Dir(req.OutPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(req.OutPath, []byte(content), 0o644)
}

// DeleteArtifact removes path from disk unless DeleteErr is set.
func (f *Fake) DeleteArtifact(_ context.Context, path string) error {
	f.mu.Lock()
	f.state.deleted = append(f.state.deleted, path)
	f.mu.Unlock()

	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	return engine.RemoveRaster(path)
}

// Calls returns the recorded Tabulate calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.state.calls...)
}

// Deleted returns the paths passed to DeleteArtifact.
func (f *Fake) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.state.deleted...)
}

// Stager is an engine.Stager that writes placeholder raster bytes.
type Stager struct {
	// Err, when non-nil, is called before copying; a non-nil result fails.
	Err func(src, dst string) error
	// PartialOnErr leaves a partial dst behind before failing.
	PartialOnErr bool

	mu     sync.Mutex
	copies []string
}

// CopyFile writes a small file at dst.
func (s *Stager) CopyFile(_ context.Context, src, dst string) error {
	s.mu.Lock()
	s.copies = append(s.copies, src)
	s.mu.Unlock()

	if s.Err != nil {
		if err := s.Err(src, dst); err != nil {
			if s.PartialOnErr {
				_ = os.MkdirAll(filepath.Dir(dst), 0o755)
				_ = os.WriteFile(dst, []byte("II*"), 0o644)
			}
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, []byte("II*\x00raster"), 0o644)
}

// Copies returns the source paths copied so far.
func (s *Stager) Copies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.copies...)
}
