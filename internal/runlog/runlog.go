// Package runlog implements the append-only CSV run log recording every
// tabulation attempt.
package runlog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// TimeLayout is the timestamp format of the starttime/endtime columns.
const TimeLayout = "2006-01-02 15:04:05"

// Header is the run log header row.
var Header = []string{"unit", "status", "note", "starttime", "endtime"}

// Status of an attempt.
type Status string

const (
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Entry is one run log row.
type Entry struct {
	Unit      string
	Status    Status
	Note      string
	StartedAt time.Time
	EndedAt   time.Time
}

// Log appends entries to a CSV file. Rows are never rewritten. Each row is
// written with a single write call on a file opened with O_APPEND, so
// concurrent appends do not interleave partial lines.
type Log struct {
	path string
	mu   sync.Mutex
}

// Open returns a Log at path, creating the file and its header if it does
// not exist yet. An existing file is left untouched.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, eris.Wrapf(err, "runlog: create dir for %s", path)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	switch {
	case err == nil:
		line, encErr := encode(Header)
		if encErr != nil {
			_ = f.Close()
			return nil, encErr
		}
		if _, err := f.Write(line); err != nil {
			_ = f.Close()
			return nil, eris.Wrapf(err, "runlog: write header to %s", path)
		}
		if err := f.Close(); err != nil {
			return nil, eris.Wrapf(err, "runlog: close %s", path)
		}
	case errors.Is(err, fs.ErrExist):
	default:
		return nil, eris.Wrapf(err, "runlog: create %s", path)
	}

	return &Log{path: path}, nil
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// Append writes one entry. Failure here is fatal to the caller: the run log
// is the only audit trail.
func (l *Log) Append(e Entry) error {
	line, err := encode([]string{
		e.Unit,
		string(e.Status),
		e.Note,
		formatTime(e.StartedAt),
		formatTime(e.EndedAt),
	})
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return eris.Wrapf(err, "runlog: open %s", l.path)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "runlog: append to %s", l.path)
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "runlog: close %s", l.path)
	}
	return nil
}

// Complete appends a complete entry for unit.
func (l *Log) Complete(unit string, start, end time.Time) error {
	return l.Append(Entry{Unit: unit, Status: StatusComplete, StartedAt: start, EndedAt: end})
}

// Fail appends a failed entry for unit with a note.
func (l *Log) Fail(unit, note string, start, end time.Time) error {
	return l.Append(Entry{Unit: unit, Status: StatusFailed, Note: note, StartedAt: start, EndedAt: end})
}

// Read parses every entry in the log at path.
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "runlog: open %s", path)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var entries []Entry
	first := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "runlog: read %s", path)
		}
		if first {
			first = false
			if len(rec) > 0 && rec[0] == Header[0] {
				continue
			}
		}
		entries = append(entries, decode(rec))
	}
	return entries, nil
}

func encode(fields []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fields); err != nil {
		return nil, eris.Wrap(err, "runlog: encode row")
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, eris.Wrap(err, "runlog: encode row")
	}
	return buf.Bytes(), nil
}

func decode(rec []string) Entry {
	field := func(i int) string {
		if i < len(rec) {
			return rec[i]
		}
		return ""
	}
	return Entry{
		Unit:      field(0),
		Status:    Status(field(1)),
		Note:      field(2),
		StartedAt: parseTime(field(3)),
		EndedAt:   parseTime(field(4)),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.ParseInLocation(TimeLayout, s, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}
