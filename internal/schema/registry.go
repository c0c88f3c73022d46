package schema

import (
	"errors"

	"github.com/roach88/strata/internal/ir"
)

// Registry holds validated tables and record type descriptors.
// A Registry is immutable after NewRegistry returns and safe for concurrent use.
type Registry struct {
	tables     map[string]*Table
	types      map[string]*RecordType
	tableOrder []*Table
	typeOrder  []*RecordType
}

// NewRegistry validates and registers tables and record types.
//
// Returns all problems found (does not fail-fast), joined with errors.Join.
// Every problem is an *UnsupportedBindingError, so errors.As on the result
// yields the first one.
func NewRegistry(tables []*Table, types []*RecordType) (*Registry, error) {
	r := &Registry{
		tables: make(map[string]*Table, len(tables)),
		types:  make(map[string]*RecordType, len(types)),
	}

	var errs []error

	for _, t := range tables {
		if _, dup := r.tables[t.Name]; dup {
			errs = append(errs, unsupported("", "", ReasonDuplicate, "table %q registered twice", t.Name))
			continue
		}
		errs = append(errs, validateTable(t)...)
		r.tables[t.Name] = t
		r.tableOrder = append(r.tableOrder, t)
	}

	for _, rt := range types {
		if _, dup := r.types[rt.Name]; dup {
			errs = append(errs, unsupported(rt.Name, "", ReasonDuplicate, "record type registered twice"))
			continue
		}
		r.types[rt.Name] = rt
		r.typeOrder = append(r.typeOrder, rt)
	}

	// Tables must all be known before foreign keys can be checked
	for _, t := range r.tableOrder {
		for _, c := range t.Columns {
			if c.References == "" {
				continue
			}
			if _, ok := r.tables[c.References]; !ok {
				errs = append(errs, unsupported("", "", ReasonUnknownTable,
					"column %s.%s references unknown table %q", t.Name, c.Name, c.References))
			}
		}
	}

	// Types must all be known before reference targets can be checked
	for _, rt := range r.typeOrder {
		errs = append(errs, r.validateType(rt)...)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return r, nil
}

// Type returns a registered record type.
func (r *Registry) Type(name string) (*RecordType, bool) {
	rt, ok := r.types[name]
	return rt, ok
}

// Table returns a registered table.
func (r *Registry) Table(name string) (*Table, bool) {
	t, ok := r.tables[name]
	return t, ok
}

// Types returns record types in registration order.
func (r *Registry) Types() []*RecordType {
	return append([]*RecordType(nil), r.typeOrder...)
}

// Tables returns tables in registration order.
func (r *Registry) Tables() []*Table {
	return append([]*Table(nil), r.tableOrder...)
}

// validateTable checks the identity column and column names of one table.
func validateTable(t *Table) []error {
	var errs []error

	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if seen[c.Name] {
			errs = append(errs, unsupported("", "", ReasonDuplicate, "table %s declares column %q twice", t.Name, c.Name))
		}
		seen[c.Name] = true
		if !ir.ValidKinds[c.Kind] {
			errs = append(errs, unsupported("", "", ReasonColumnKind, "column %s.%s has unknown kind %q", t.Name, c.Name, c.Kind))
		}
		if c.References != "" && c.Kind != ir.KindUUID {
			errs = append(errs, unsupported("", "", ReasonColumnKind, "foreign key %s.%s must be uuid, got %s", t.Name, c.Name, c.Kind))
		}
	}

	id, ok := t.Column(t.Identity)
	if !ok {
		errs = append(errs, unsupported("", "", ReasonUnknownColumn, "table %s has no identity column %q", t.Name, t.Identity))
	} else if id.Kind != ir.KindUUID || id.Nullable {
		errs = append(errs, unsupported("", "", ReasonColumnKind, "identity column %s.%s must be a non-null uuid", t.Name, t.Identity))
	}

	return errs
}

// validateType checks every binding of one record type against the registry.
func (r *Registry) validateType(rt *RecordType) []error {
	var errs []error

	if rt.Table == nil {
		return []error{unsupported(rt.Name, "", ReasonUnknownTable, "record type has no table")}
	}
	if !r.hasRegisteredTable(rt) {
		return []error{unsupported(rt.Name, "", ReasonUnknownTable, "table %q is not registered", rt.Table.Name)}
	}

	seen := make(map[string]bool, len(rt.Bindings))
	for _, b := range rt.Bindings {
		prop := b.Property()
		if seen[prop] {
			errs = append(errs, unsupported(rt.Name, prop, ReasonDuplicate, "property bound twice"))
			continue
		}
		seen[prop] = true

		if err := r.validateBinding(rt, b); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

// validateBinding dispatches on the binding kind.
func (r *Registry) validateBinding(rt *RecordType, b Binding) error {
	switch bind := b.(type) {
	case ColumnBinding:
		col, ok := rt.Table.Column(bind.Column)
		if !ok {
			return unsupported(rt.Name, bind.Prop, ReasonUnknownColumn, "column %q not found on table %s", bind.Column, rt.Table.Name)
		}
		if col.Nullable != bind.Nullable {
			return unsupported(rt.Name, bind.Prop, ReasonNullability,
				"binding nullable=%t disagrees with column %s.%s nullable=%t", bind.Nullable, rt.Table.Name, col.Name, col.Nullable)
		}
		return nil

	case SingleRefBinding:
		return r.validateRef(rt, bind.Prop, bind.Column, bind.Target)

	case NullableRefBinding:
		return r.validateRef(rt, bind.Prop, bind.Column, bind.Target)

	case CollectionBinding:
		target, ok := r.types[bind.Target]
		if !ok {
			return unsupported(rt.Name, bind.Prop, ReasonUnknownTarget, "collection target %q is not registered", bind.Target)
		}
		if !r.hasRegisteredTable(target) {
			return unsupported(rt.Name, bind.Prop, ReasonUnknownTarget, "collection target %q has no registered table", bind.Target)
		}
		fk, ok := target.Table.Column(bind.ForeignKey)
		if !ok {
			return unsupported(rt.Name, bind.Prop, ReasonUnknownColumn, "foreign key %q not found on table %s", bind.ForeignKey, target.Table.Name)
		}
		if fk.References != rt.Table.Name {
			return unsupported(rt.Name, bind.Prop, ReasonForeignKey,
				"foreign key %s.%s must reference %s, references %q", target.Table.Name, fk.Name, rt.Table.Name, fk.References)
		}
		return nil

	case AggregateBinding:
		if bind.Func != AggregateAvg {
			return unsupported(rt.Name, bind.Prop, ReasonAggregateFunc, "only avg aggregates are supported, got %q", bind.Func)
		}
		table, ok := r.tables[bind.Table]
		if !ok {
			return unsupported(rt.Name, bind.Prop, ReasonUnknownTable, "aggregate table %q is not registered", bind.Table)
		}
		col, ok := table.Column(bind.Column)
		if !ok {
			return unsupported(rt.Name, bind.Prop, ReasonUnknownColumn, "column %q not found on table %s", bind.Column, table.Name)
		}
		if col.Kind != ir.KindInt && col.Kind != ir.KindFloat {
			return unsupported(rt.Name, bind.Prop, ReasonColumnKind, "cannot average %s column %s.%s", col.Kind, table.Name, col.Name)
		}
		fk, ok := table.Column(bind.ForeignKey)
		if !ok {
			return unsupported(rt.Name, bind.Prop, ReasonUnknownColumn, "foreign key %q not found on table %s", bind.ForeignKey, table.Name)
		}
		if fk.References != rt.Table.Name {
			return unsupported(rt.Name, bind.Prop, ReasonForeignKey,
				"foreign key %s.%s must reference the identity of %s", table.Name, fk.Name, rt.Table.Name)
		}
		return nil

	default:
		return unsupported(rt.Name, b.Property(), ReasonBindingKind, "unsupported binding type %T", b)
	}
}

// validateRef checks a single reference binding (nullable or not).
func (r *Registry) validateRef(rt *RecordType, prop, column, targetName string) error {
	col, ok := rt.Table.Column(column)
	if !ok {
		return unsupported(rt.Name, prop, ReasonUnknownColumn, "column %q not found on table %s", column, rt.Table.Name)
	}
	target, ok := r.types[targetName]
	if !ok {
		return unsupported(rt.Name, prop, ReasonUnknownTarget, "reference target %q is not registered", targetName)
	}
	if !r.hasRegisteredTable(target) {
		return unsupported(rt.Name, prop, ReasonUnknownTarget, "reference target %q has no registered table", targetName)
	}
	if col.References != target.Table.Name {
		return unsupported(rt.Name, prop, ReasonForeignKey,
			"column %s.%s must reference %s, references %q", rt.Table.Name, col.Name, target.Table.Name, col.References)
	}
	return nil
}

// hasRegisteredTable reports whether rt is backed by a table of this
// registry. Types failing this are reported by validateType.
func (r *Registry) hasRegisteredTable(rt *RecordType) bool {
	if rt.Table == nil {
		return false
	}
	registered, ok := r.tables[rt.Table.Name]
	return ok && registered == rt.Table
}
