package hydrate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound indicates that no record has the requested identity.
var ErrNotFound = errors.New("record not found")

// errNoValue marks a nullable reference whose foreign key is NULL.
// It never leaves the materializer; it becomes ir.Null in the payload.
var errNoValue = errors.New("no value")

// IntegrityError reports storage data that violates the bindings: a
// non-nullable column or reference that is NULL, a dangling reference, or an
// aggregate query that did not return exactly one row.
type IntegrityError struct {
	Type     string
	Property string
	Identity uuid.UUID // uuid.Nil if unknown
	Message  string
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation: %s%s", e.Message, describe(e.Type, e.Property, e.Identity))
}

// StoreError wraps a failure of the query engine or of the construction
// routine with the record context it happened in.
type StoreError struct {
	Type     string
	Property string
	Identity uuid.UUID // uuid.Nil if unknown
	Op       string    // "fetch", "aggregate" or "construct"
	Err      error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v%s", e.Op, e.Err, describe(e.Type, e.Property, e.Identity))
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsIntegrityError returns true if err is or wraps an IntegrityError.
func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}

// IsStoreError returns true if err is or wraps a StoreError.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// describe renders " (type=T, property=p, id=...)" omitting empty parts.
func describe(typ, prop string, id uuid.UUID) string {
	var parts []string
	if typ != "" {
		parts = append(parts, "type="+typ)
	}
	if prop != "" {
		parts = append(parts, "property="+prop)
	}
	if id != uuid.Nil {
		parts = append(parts, "id="+id.String())
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}
