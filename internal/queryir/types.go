package queryir

import "github.com/roach88/strata/internal/ir"

// Query represents an abstract query.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and enables
// exhaustive type switches in backend compilers.
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Predicate represents a filter or join condition.
//
// This is a sealed interface - only types in this package implement it.
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// TableRef names a table, optionally under an alias.
type TableRef struct {
	Name  string
	Alias string // Empty means the table is referenced by its own name
}

// Qualifier returns the name columns of this table are qualified with.
func (t TableRef) Qualifier() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.Name
}

// ColumnRef is a qualified column with its storage kind.
// The kind tells backends how to decode the raw value.
type ColumnRef struct {
	Table string // Table name or alias
	Name  string
	Kind  ir.Kind
}

// Label returns the result row label of the column ("table.column").
func (c ColumnRef) Label() string {
	return ir.Label(c.Table, c.Name)
}

// Col is a shorthand ColumnRef constructor.
// Example: Col("orders", "id", ir.KindUUID)
func Col(table, name string, kind ir.Kind) ColumnRef {
	return ColumnRef{Table: table, Name: name, Kind: kind}
}

// Select reads columns from a base table and any number of left joins.
//
// Semantics:
//
//	SELECT <columns> FROM <from> LEFT JOIN <join.table> ON <join.on> ...
//	WHERE <filter> ORDER BY <order> LIMIT <limit>
//
// Each result row carries every column in Columns, labeled by ColumnRef.Label.
// Columns of an unmatched left join are present with ir.Null.
type Select struct {
	From    TableRef
	Columns []ColumnRef
	Joins   []LeftJoin
	Filter  Predicate   // nil = no filter
	OrderBy []ColumnRef // nil = backend default (base identity)
	Limit   int         // 0 = unlimited
}

func (Select) queryNode() {}

// LeftJoin joins an (aliased) table, keeping base rows without a match.
type LeftJoin struct {
	Table TableRef
	On    Predicate
}

// Aggregate evaluates an aggregate function over one column of a filtered table.
//
// Semantics:
//
//	SELECT <func>(<column>) FROM <table> WHERE <filter>
//
// Aggregate functions return exactly one row, even over zero source rows
// (typically holding NULL). The single result is labeled Label().
type Aggregate struct {
	Func   string // "avg"
	Table  string
	Column ColumnRef
	Filter Predicate
}

func (Aggregate) queryNode() {}

// Label returns the result row label of the aggregate value.
func (a Aggregate) Label() string {
	return ir.Label(a.Table, a.Func+"_"+a.Column.Name)
}

// Equals represents a column-equals-literal predicate.
//
// Semantics:
//
//	<column> = <value>
//
// Value must be a scalar; backends pass it as a parameter, never inline.
type Equals struct {
	Column ColumnRef
	Value  ir.Value
}

func (Equals) predicateNode() {}

// ColumnEquals represents a column-equals-column predicate, used in join conditions.
type ColumnEquals struct {
	Left  ColumnRef
	Right ColumnRef
}

func (ColumnEquals) predicateNode() {}

// IsNull represents a column IS NULL predicate.
type IsNull struct {
	Column ColumnRef
}

func (IsNull) predicateNode() {}

// And represents a conjunction. An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}
