package schema

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/strata/internal/ir"
)

// CompileError represents a schema compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadDir loads every CUE file of a directory and builds a Registry.
//
// The directory must contain a single CUE package (or package-less files)
// declaring top-level "table" and "type" structs:
//
//	table: orders: columns: {
//		total:       "float"
//		customer_id: {kind: "uuid", nullable: true, references: "customers"}
//	}
//	type: Order: {
//		table: "orders"
//		bindings: {
//			total:    {}
//			customer: {ref: "Customer", column: "customer_id", nullable: true}
//		}
//	}
func LoadDir(dir string) (*Registry, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("schema directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, fmt.Errorf("scan schema directory: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}

	value := ctx.BuildInstance(inst)
	return Build(value)
}

// CompileString compiles CUE source text and builds a Registry.
// Used by tests and by tooling that embeds schemas.
func CompileString(src string) (*Registry, error) {
	ctx := cuecontext.New()
	return Build(ctx.CompileString(src))
}

// Build compiles a CUE value and registers the result.
func Build(v cue.Value) (*Registry, error) {
	tables, types, err := Compile(v)
	if err != nil {
		return nil, err
	}
	return NewRegistry(tables, types)
}

// Compile parses the "table" and "type" structs of a CUE value into tables
// and record type descriptors, in declaration order. It checks structure
// only; cross references are validated by NewRegistry.
func Compile(v cue.Value) ([]*Table, []*RecordType, error) {
	if err := v.Err(); err != nil {
		return nil, nil, formatCUEError(err)
	}

	tables, err := parseTables(v)
	if err != nil {
		return nil, nil, err
	}

	byName := make(map[string]*Table, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}

	types, err := parseTypes(v, byName)
	if err != nil {
		return nil, nil, err
	}

	return tables, types, nil
}

// parseTables extracts table definitions.
func parseTables(v cue.Value) ([]*Table, error) {
	var tables []*Table

	tablesVal := v.LookupPath(cue.ParsePath("table"))
	if !tablesVal.Exists() {
		return tables, nil
	}

	iter, err := tablesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		tableName := iter.Label()
		tableVal := iter.Value()

		identity := DefaultIdentity
		if idVal := tableVal.LookupPath(cue.ParsePath("identity")); idVal.Exists() {
			identity, err = idVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
		}

		var cols []Column
		colsVal := tableVal.LookupPath(cue.ParsePath("columns"))
		if colsVal.Exists() {
			colIter, err := colsVal.Fields()
			if err != nil {
				return nil, formatCUEError(err)
			}
			for colIter.Next() {
				col, err := parseColumn(colIter.Label(), colIter.Value())
				if err != nil {
					return nil, err
				}
				cols = append(cols, col)
			}
		}

		table := &Table{Name: tableName, Identity: identity}
		if _, declared := findColumn(cols, identity); !declared {
			table.Columns = append(table.Columns, Column{Name: identity, Kind: ir.KindUUID})
		}
		table.Columns = append(table.Columns, cols...)
		tables = append(tables, table)
	}

	return tables, nil
}

// parseColumn supports the shorthand `name: "kind"` and the struct form
// `name: {kind: "uuid", nullable: true, references: "other"}`.
func parseColumn(name string, v cue.Value) (Column, error) {
	col := Column{Name: name}

	if kindName, err := v.String(); err == nil {
		kind, err := ir.ParseKind(kindName)
		if err != nil {
			return col, &CompileError{Field: "column." + name, Message: err.Error(), Pos: v.Pos()}
		}
		col.Kind = kind
		return col, nil
	}

	kindVal := v.LookupPath(cue.ParsePath("kind"))
	if !kindVal.Exists() {
		return col, &CompileError{Field: "column." + name, Message: "kind is required", Pos: v.Pos()}
	}
	kindName, err := kindVal.String()
	if err != nil {
		return col, formatCUEError(err)
	}
	kind, err := ir.ParseKind(kindName)
	if err != nil {
		return col, &CompileError{Field: "column." + name + ".kind", Message: err.Error(), Pos: kindVal.Pos()}
	}
	col.Kind = kind

	if col.Nullable, err = optionalBool(v, "nullable"); err != nil {
		return col, err
	}
	if col.References, err = optionalString(v, "references"); err != nil {
		return col, err
	}

	return col, nil
}

// parseTypes extracts record type definitions.
func parseTypes(v cue.Value, tables map[string]*Table) ([]*RecordType, error) {
	var types []*RecordType

	typesVal := v.LookupPath(cue.ParsePath("type"))
	if !typesVal.Exists() {
		return types, nil
	}

	iter, err := typesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	lower := cases.Lower(language.Und)

	for iter.Next() {
		typeName := iter.Label()
		typeVal := iter.Value()

		// Table defaults to the lower-cased type name
		tableName, err := optionalString(typeVal, "table")
		if err != nil {
			return nil, err
		}
		if tableName == "" {
			tableName = lower.String(typeName)
		}
		table, ok := tables[tableName]
		if !ok {
			return nil, &CompileError{
				Field:   "type." + typeName + ".table",
				Message: fmt.Sprintf("table %q is not declared", tableName),
				Pos:     typeVal.Pos(),
			}
		}

		rt := &RecordType{Name: typeName, Table: table}

		bindingsVal := typeVal.LookupPath(cue.ParsePath("bindings"))
		if bindingsVal.Exists() {
			bIter, err := bindingsVal.Fields()
			if err != nil {
				return nil, formatCUEError(err)
			}
			for bIter.Next() {
				b, err := parseBinding(table, bIter.Label(), bIter.Value())
				if err != nil {
					return nil, err
				}
				rt.Bindings = append(rt.Bindings, b)
			}
		}

		types = append(types, rt)
	}

	return types, nil
}

// parseBinding determines the binding kind from the keys present:
// "ref", "collection", "aggregate", otherwise a column binding.
func parseBinding(table *Table, prop string, v cue.Value) (Binding, error) {
	field := "binding." + prop

	column, err := optionalString(v, "column")
	if err != nil {
		return nil, err
	}
	nullable, err := optionalBool(v, "nullable")
	if err != nil {
		return nil, err
	}

	if target, err := optionalString(v, "ref"); err != nil {
		return nil, err
	} else if target != "" {
		if column == "" {
			return nil, &CompileError{Field: field + ".column", Message: "reference bindings require a column", Pos: v.Pos()}
		}
		if nullable {
			return NullableRefBinding{Prop: prop, Column: column, Target: target}, nil
		}
		return SingleRefBinding{Prop: prop, Column: column, Target: target}, nil
	}

	if target, err := optionalString(v, "collection"); err != nil {
		return nil, err
	} else if target != "" {
		fk, err := optionalString(v, "foreignKey")
		if err != nil {
			return nil, err
		}
		if fk == "" {
			return nil, &CompileError{Field: field + ".foreignKey", Message: "collection bindings require a foreignKey", Pos: v.Pos()}
		}
		return CollectionBinding{Prop: prop, Target: target, ForeignKey: fk}, nil
	}

	if fn, err := optionalString(v, "aggregate"); err != nil {
		return nil, err
	} else if fn != "" {
		agg := AggregateBinding{Prop: prop, Func: AggregateFunc(fn), Column: column, Nullable: nullable}
		if agg.Table, err = optionalString(v, "table"); err != nil {
			return nil, err
		}
		if agg.ForeignKey, err = optionalString(v, "foreignKey"); err != nil {
			return nil, err
		}
		if agg.Table == "" || agg.Column == "" || agg.ForeignKey == "" {
			return nil, &CompileError{Field: field, Message: "aggregate bindings require table, column and foreignKey", Pos: v.Pos()}
		}
		return agg, nil
	}

	// Column binding: column defaults to the property name, nullability to the column's
	if column == "" {
		column = prop
	}
	if !hasField(v, "nullable") {
		if col, ok := table.Column(column); ok {
			nullable = col.Nullable
		}
	}
	return ColumnBinding{Prop: prop, Column: column, Nullable: nullable}, nil
}

func findColumn(cols []Column, name string) (Column, bool) {
	for _, c := range cols {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func hasField(v cue.Value, name string) bool {
	return v.LookupPath(cue.ParsePath(name)).Exists()
}

func optionalString(v cue.Value, name string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, name string) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
