// Package faults defines the error kinds raised while tabulating units and
// aggregating their tables.
package faults

import (
	"errors"
	"strings"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	KindUnknown     Kind = iota
	KindConfig           // missing crosswalk categories, bad code widths
	KindLookup           // unit absent from the reference table
	KindStaging          // copying the change raster locally failed
	KindTabulation       // the external tabulation call failed
	KindCleanup          // deleting a staged artifact failed (non-fatal)
	KindAggregation      // a unit table is missing or malformed
)

// String returns the error kind name used in logs and run log notes.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "ConfigError"
	case KindLookup:
		return "LookupError"
	case KindStaging:
		return "StagingError"
	case KindTabulation:
		return "TabulationError"
	case KindCleanup:
		return "CleanupError"
	case KindAggregation:
		return "AggregationError"
	default:
		return "UnknownError"
	}
}

// Error wraps an underlying error with its kind and, when known, the unit it
// belongs to.
type Error struct {
	Kind Kind
	Unit string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Unit != "" {
		b.WriteString(" [")
		b.WriteString(e.Unit)
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err as a fault of the given kind for unit (which may be empty).
func New(kind Kind, unit string, err error) *Error {
	return &Error{Kind: kind, Unit: unit, Err: err}
}

// Config wraps err as a ConfigError.
func Config(err error) *Error { return New(KindConfig, "", err) }

// Lookup wraps err as a LookupError for unit.
func Lookup(unit string, err error) *Error { return New(KindLookup, unit, err) }

// Staging wraps err as a StagingError for unit.
func Staging(unit string, err error) *Error { return New(KindStaging, unit, err) }

// Tabulation wraps err as a TabulationError for unit.
func Tabulation(unit string, err error) *Error { return New(KindTabulation, unit, err) }

// Cleanup wraps err as a CleanupError for unit.
func Cleanup(unit string, err error) *Error { return New(KindCleanup, unit, err) }

// Aggregation wraps err as an AggregationError for unit.
func Aggregation(unit string, err error) *Error { return New(KindAggregation, unit, err) }

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Is reports whether err (or any error in its chain) is a fault of kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}

// IsUnitScoped reports whether err is a per-unit failure that must be
// isolated rather than abort the run.
func IsUnitScoped(err error) bool {
	switch KindOf(err) {
	case KindConfig, KindLookup, KindStaging, KindTabulation, KindAggregation:
		return true
	default:
		return false
	}
}

// Note flattens err into a single line suitable for a CSV note column.
func Note(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	msg = strings.ReplaceAll(msg, "\r\n", " ")
	msg = strings.ReplaceAll(msg, "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	return strings.TrimSpace(msg)
}
