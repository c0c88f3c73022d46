// Package queryir provides the query intermediate representation consumed by
// query engines.
//
// QueryIR is the boundary between plan building and the storage backend:
//
//	[record types] → [join plan] → [Query IR] → [SQL backend]
//
// The fragment is deliberately small:
//   - Select(from, columns, left joins, filter, order, limit)
//   - Aggregate(func, table, column, filter), returning one row
//   - Predicates: Equals, ColumnEquals, IsNull, And
//   - Explicit column lists (no SELECT *)
//
// Every column is qualified by a table name or alias. Result rows are keyed
// by the qualified label (ir.Label), so two aliased copies of the same table
// never collide.
//
// SEALED INTERFACES:
//
// Query and Predicate are sealed interfaces using the marker method pattern.
// Only types in this package can implement them, which enables exhaustive
// type switches in backends:
//
//	switch q := query.(type) {
//	case Select:
//	    // Handle select
//	case Aggregate:
//	    // Handle aggregate
//	}
package queryir
