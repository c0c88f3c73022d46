// Package fixture loads seed data from YAML files.
//
// A fixture lists rows per table, in insertion order (so referenced rows come
// first):
//
//	name: shop
//	description: two orders, one without customer
//	tables:
//	  - table: customers
//	    rows:
//	      - {id: 00000000-0000-7000-8000-000000000001, name: Ada}
//	  - table: orders
//	    rows:
//	      - {id: 00000000-0000-7000-8000-000000000010, total: 42, customer_id: null}
//
// Values are converted to the declared kind of their column.
package fixture

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/schema"
)

// Fixture is a named set of seed rows.
type Fixture struct {
	// Name identifies this fixture.
	Name string `yaml:"name"`

	// Description explains what data the fixture provides.
	Description string `yaml:"description,omitempty"`

	// Tables lists rows per table, applied in order.
	Tables []TableData `yaml:"tables"`
}

// TableData holds the rows of one table.
type TableData struct {
	Table string           `yaml:"table"`
	Rows  []map[string]any `yaml:"rows"`
}

// Inserter writes one row. *store.Tx implements it.
type Inserter interface {
	Insert(ctx context.Context, table *schema.Table, values map[string]ir.Value) error
}

// Load reads and parses a fixture YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	return Parse(data)
}

// Parse parses fixture YAML.
func Parse(data []byte) (*Fixture, error) {
	// Strict field validation catches typos like "row:" vs "rows:"
	var f Fixture
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validate(&f); err != nil {
		return nil, fmt.Errorf("invalid fixture: %w", err)
	}
	return &f, nil
}

// validate checks that required fields are present.
func validate(f *Fixture) error {
	if f.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(f.Tables) == 0 {
		return fmt.Errorf("tables list is required and must be non-empty")
	}
	for i, t := range f.Tables {
		if t.Table == "" {
			return fmt.Errorf("tables[%d]: table is required", i)
		}
	}
	return nil
}

// Rows converts the fixture into typed rows per table, checking table and
// column names against reg.
func (f *Fixture) Rows(reg *schema.Registry) ([]TypedRow, error) {
	var out []TypedRow
	for _, td := range f.Tables {
		table, ok := reg.Table(td.Table)
		if !ok {
			return nil, fmt.Errorf("fixture %s: unknown table %q", f.Name, td.Table)
		}
		for i, raw := range td.Rows {
			values, err := convertRow(table, raw)
			if err != nil {
				return nil, fmt.Errorf("fixture %s: %s[%d]: %w", f.Name, td.Table, i, err)
			}
			out = append(out, TypedRow{Table: table, Values: values})
		}
	}
	return out, nil
}

// TypedRow is one fixture row converted to column kinds.
type TypedRow struct {
	Table  *schema.Table
	Values map[string]ir.Value
}

// Apply inserts all rows of the fixture in order. Returns the number of
// rows inserted.
func (f *Fixture) Apply(ctx context.Context, into Inserter, reg *schema.Registry) (int, error) {
	rows, err := f.Rows(reg)
	if err != nil {
		return 0, err
	}
	for i, row := range rows {
		if err := into.Insert(ctx, row.Table, row.Values); err != nil {
			return i, fmt.Errorf("fixture %s: %w", f.Name, err)
		}
	}
	return len(rows), nil
}

func convertRow(table *schema.Table, raw map[string]any) (map[string]ir.Value, error) {
	// Sorted for deterministic error messages
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	values := make(map[string]ir.Value, len(raw))
	for _, name := range names {
		col, ok := table.Column(name)
		if !ok {
			return nil, fmt.Errorf("unknown column %q", name)
		}
		v, err := ir.Coerce(col.Kind, raw[name])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		values[name] = v
	}
	return values, nil
}
