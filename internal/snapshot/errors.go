package snapshot

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPropertyNotFound is returned when the finalize target does not exist.
var ErrPropertyNotFound = errors.New("snapshot: property not found")

// ErrAlreadyResolved is returned when resolving a match or discrepancy
// that has already been resolved.
var ErrAlreadyResolved = errors.New("snapshot: already resolved")

// ErrNotFound is returned when a match or discrepancy does not exist.
var ErrNotFound = errors.New("snapshot: record not found")

// ValidationError aborts a finalize before any writes (fail closed). The
// offending unit numbers, when relevant, are listed so the caller can show
// an actionable message.
type ValidationError struct {
	Message     string
	UnitNumbers []string
	Fields      map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.UnitNumbers) > 0 {
		return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.UnitNumbers, ", "))
	}
	return e.Message
}
