package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/strata/internal/hydrate"
)

// ErrNotFound indicates that no record matched a Get or FindOne.
// It is the same sentinel as hydrate.ErrNotFound.
var ErrNotFound = hydrate.ErrNotFound

// UnknownTypeError reports a record type name missing from the registry.
type UnknownTypeError struct {
	Type string
}

// Error implements the error interface.
func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown record type %q", e.Type)
}

// IsNotFound returns true if err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
