package schema

import "github.com/roach88/strata/internal/ir"

// DefaultIdentity is the identity column name used when a table declares none.
const DefaultIdentity = "id"

// Column describes one storage column.
type Column struct {
	Name     string
	Kind     ir.Kind
	Nullable bool

	// References names the table whose identity column this column points at.
	// Empty for plain columns.
	References string
}

// Table describes one storage table.
// The identity column is always present in Columns and has kind uuid.
type Table struct {
	Name     string
	Identity string
	Columns  []Column
}

// NewTable creates a table with the default identity column followed by cols.
// If cols already contains a column named "id" it is used as-is.
func NewTable(name string, cols ...Column) *Table {
	t := &Table{Name: name, Identity: DefaultIdentity}
	hasIdentity := false
	for _, c := range cols {
		if c.Name == DefaultIdentity {
			hasIdentity = true
		}
	}
	if !hasIdentity {
		t.Columns = append(t.Columns, Column{Name: DefaultIdentity, Kind: ir.KindUUID})
	}
	t.Columns = append(t.Columns, cols...)
	return t
}

// Column returns the named column.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// IdentityColumn returns the identity column.
func (t *Table) IdentityColumn() Column {
	c, _ := t.Column(t.Identity)
	return c
}

// RecordType is a record type descriptor: a named mapping from properties to
// storage. Bindings are kept in declaration order.
type RecordType struct {
	Name     string
	Table    *Table
	Bindings []Binding
}

// Binding returns the binding for a property.
func (rt *RecordType) Binding(property string) (Binding, bool) {
	for _, b := range rt.Bindings {
		if b.Property() == property {
			return b, true
		}
	}
	return nil, false
}

// Binding maps one property to storage.
//
// This is a sealed interface - only types in this package implement it.
// Consumers dispatch with an exhaustive type switch over:
//   - ColumnBinding
//   - SingleRefBinding
//   - NullableRefBinding
//   - CollectionBinding
//   - AggregateBinding
type Binding interface {
	Property() string
	binding() // Marker method - seals interface to this package
}

// ColumnBinding maps a property to a single column of the owning table.
type ColumnBinding struct {
	Prop     string
	Column   string
	Nullable bool
}

func (b ColumnBinding) Property() string { return b.Prop }
func (ColumnBinding) binding()           {}

// SingleRefBinding maps a property to another record through a non-null
// foreign key column of the owning table.
type SingleRefBinding struct {
	Prop   string
	Column string
	Target string // Record type name
}

func (b SingleRefBinding) Property() string { return b.Prop }
func (SingleRefBinding) binding()           {}

// NullableRefBinding is a SingleRefBinding whose foreign key may be NULL.
type NullableRefBinding struct {
	Prop   string
	Column string
	Target string // Record type name
}

func (b NullableRefBinding) Property() string { return b.Prop }
func (NullableRefBinding) binding()           {}

// CollectionBinding maps a property to all records of Target whose
// ForeignKey column (on Target's table) points at the owner's identity.
type CollectionBinding struct {
	Prop       string
	Target     string // Record type name
	ForeignKey string // Column on the target table
}

func (b CollectionBinding) Property() string { return b.Prop }
func (CollectionBinding) binding()           {}

// AggregateFunc names an aggregate function.
type AggregateFunc string

const (
	AggregateAvg   AggregateFunc = "avg"
	AggregateSum   AggregateFunc = "sum"
	AggregateCount AggregateFunc = "count"
	AggregateMin   AggregateFunc = "min"
	AggregateMax   AggregateFunc = "max"
)

// AggregateBinding maps a property to an aggregate over a related table,
// filtered by ForeignKey = owner identity. Only AggregateAvg is supported.
type AggregateBinding struct {
	Prop       string
	Func       AggregateFunc
	Table      string // Related table name
	Column     string // Aggregated column on Table
	ForeignKey string // Column on Table pointing at the owner identity
	Nullable   bool   // Whether an empty aggregate (NULL) is acceptable
}

func (b AggregateBinding) Property() string { return b.Prop }
func (AggregateBinding) binding()           {}

// IsSingleRef reports whether b is a SingleRefBinding or NullableRefBinding.
// Returns the foreign key column, the target type and the nullability.
func IsSingleRef(b Binding) (column, target string, nullable, ok bool) {
	switch ref := b.(type) {
	case SingleRefBinding:
		return ref.Column, ref.Target, false, true
	case NullableRefBinding:
		return ref.Column, ref.Target, true, true
	default:
		return "", "", false, false
	}
}
