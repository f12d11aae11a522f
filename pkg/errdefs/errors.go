// Package errdefs defines the error taxonomy shared by the conversion core.
//
// Record-level errors (ValidationError, GeometryError, FormatError,
// ErrUnresolvedLabel) are captured per record and attached to the conversion
// report. ErrStructuralCorruption and ErrUnsupportedVersion are fatal to the
// whole batch and surface to the caller immediately.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedVersion is returned when an annotation file declares a
	// schema version this library does not know. Unknown versions fail
	// closed instead of being parsed best-effort.
	ErrUnsupportedVersion = errors.New("unsupported schema version")

	// ErrStructuralCorruption is returned when the top-level container of a
	// stream is not valid JSON (truncated file, bad token). It is fatal.
	ErrStructuralCorruption = errors.New("structurally corrupt annotation stream")

	// ErrUnresolvedLabel is returned when an annotation references a label
	// that is missing from the class label registry.
	ErrUnresolvedLabel = errors.New("unresolved label")

	// ErrDimensionMismatch is returned by mask operations whose operands
	// have different grid dimensions.
	ErrDimensionMismatch = errors.New("mask dimension mismatch")
)

// ValidationError describes a single schema violation in a raw record.
type ValidationError struct {
	// Path is a JSON pointer to the offending value.
	Path string
	// Reason describes the violated constraint.
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed at %s: %s", e.Path, e.Reason)
}

// GeometryError describes a violated geometry invariant, such as a polygon
// that degenerates to zero area.
type GeometryError struct {
	Reason string
}

func (e *GeometryError) Error() string {
	return "geometry invariant violation: " + e.Reason
}

// FormatError describes an incompatibility between an annotation and a
// target interchange format. It is a per-record error, never fatal to the
// batch.
type FormatError struct {
	Format string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("format %s: %s", e.Format, e.Reason)
}

// RecordError wraps an error that is scoped to a single record inside a
// multi-record stream. The parser reports it and moves on to the next
// record.
type RecordError struct {
	// Index is the zero-based position of the record in the stream.
	Index int
	// RecordID identifies the record when known (item name or id).
	RecordID string
	Err      error
}

func (e *RecordError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("record %d (%s): %v", e.Index, e.RecordID, e.Err)
	}
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// IsRecordError reports whether err is scoped to a single record and the
// surrounding batch may continue.
func IsRecordError(err error) bool {
	var re *RecordError
	return errors.As(err, &re)
}

// IsFatal reports whether err must abort the whole batch.
func IsFatal(err error) bool {
	return errors.Is(err, ErrStructuralCorruption) || errors.Is(err, ErrUnsupportedVersion)
}
