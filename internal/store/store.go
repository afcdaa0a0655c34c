// Package store persists indicator results in a database so they can be
// queried alongside other spatial layers.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// Record is one cell of a scheme's indicator.
type Record struct {
	Scheme   string
	GridCode int64
	Value    float64
	Geom     []byte // EWKB; nil when the cell has no geometry
}

// Store defines the persistence interface for indicator results.
type Store interface {
	// ReplaceScheme replaces every record of scheme with recs.
	ReplaceScheme(ctx context.Context, scheme string, recs []Record) (int64, error)
	// ListScheme returns the records of scheme ordered by grid code.
	ListScheme(ctx context.Context, scheme string) ([]Record, error)

	Migrate(ctx context.Context) error
	Close() error
}

// DefaultTable is the indicator table name.
const DefaultTable = "tc_outcome"

// validIdent reports whether s is a plain SQL identifier.
func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func checkTable(name string) error {
	for _, part := range strings.Split(name, ".") {
		if !validIdent(part) {
			return eris.Errorf("store: invalid table name %q", name)
		}
	}
	return nil
}
