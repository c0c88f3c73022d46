// Package schema provides the binding model: tables, record type
// descriptors and the property bindings that map one onto the other.
//
// A Registry is built once from tables and record types (in Go, or from CUE
// with LoadDir / CompileString) and is immutable afterwards. NewRegistry
// validates every binding; malformed descriptors fail with
// *UnsupportedBindingError before any query runs.
//
// Binding is a sealed interface with five variants:
//
//	ColumnBinding       property ↔ column of the owning table
//	SingleRefBinding    property ↔ non-null foreign key to another type
//	NullableRefBinding  property ↔ nullable foreign key to another type
//	CollectionBinding   property ↔ records of another type pointing back here
//	AggregateBinding    property ↔ AVG over a related table
//
// Constructor is the default entity construction routine: it validates a
// resolved property payload and seals the record.
package schema
