package schema

import (
	"errors"
	"fmt"
)

// Reason categorizes an UnsupportedBindingError.
type Reason string

const (
	// ReasonAggregateFunc indicates an aggregate function other than avg.
	ReasonAggregateFunc Reason = "AGGREGATE_FUNC"

	// ReasonForeignKey indicates a foreign key that does not point at the
	// expected identity column.
	ReasonForeignKey Reason = "FOREIGN_KEY"

	// ReasonUnknownColumn indicates a binding naming a column the table lacks.
	ReasonUnknownColumn Reason = "UNKNOWN_COLUMN"

	// ReasonUnknownTarget indicates a reference to an unregistered record type.
	ReasonUnknownTarget Reason = "UNKNOWN_TARGET"

	// ReasonUnknownTable indicates a reference to an unregistered table.
	ReasonUnknownTable Reason = "UNKNOWN_TABLE"

	// ReasonColumnKind indicates a column whose kind cannot serve the binding.
	ReasonColumnKind Reason = "COLUMN_KIND"

	// ReasonDuplicate indicates a duplicate type, table, column or property name.
	ReasonDuplicate Reason = "DUPLICATE"

	// ReasonBindingKind indicates a Binding implementation this package
	// does not know.
	ReasonBindingKind Reason = "BINDING_KIND"

	// ReasonNullability indicates a column binding whose nullability
	// disagrees with its column.
	ReasonNullability Reason = "NULLABILITY"
)

// UnsupportedBindingError reports a malformed descriptor detected at
// registration time, independent of any query.
type UnsupportedBindingError struct {
	Type     string
	Property string
	Reason   Reason
	Message  string
}

// Error implements the error interface.
func (e *UnsupportedBindingError) Error() string {
	if e.Property != "" {
		return fmt.Sprintf("%s: %s (type=%s, property=%s)", e.Reason, e.Message, e.Type, e.Property)
	}
	if e.Type != "" {
		return fmt.Sprintf("%s: %s (type=%s)", e.Reason, e.Message, e.Type)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// IsUnsupportedBinding returns true if err is or wraps an UnsupportedBindingError.
func IsUnsupportedBinding(err error) bool {
	var ube *UnsupportedBindingError
	return errors.As(err, &ube)
}

func unsupported(typ, prop string, reason Reason, format string, args ...any) *UnsupportedBindingError {
	return &UnsupportedBindingError{
		Type:     typ,
		Property: prop,
		Reason:   reason,
		Message:  fmt.Sprintf(format, args...),
	}
}

// ConstructionError reports a payload the construction routine rejected.
type ConstructionError struct {
	Type     string
	Property string
	Message  string
}

// Error implements the error interface.
func (e *ConstructionError) Error() string {
	if e.Property != "" {
		return fmt.Sprintf("construct %s.%s: %s", e.Type, e.Property, e.Message)
	}
	return fmt.Sprintf("construct %s: %s", e.Type, e.Message)
}
