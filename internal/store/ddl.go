package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/schema"
)

// sqlTypes maps column kinds to SQLite column types.
// Booleans are stored as 0/1, UUIDs in hyphenated text form.
var sqlTypes = map[ir.Kind]string{
	ir.KindString: "TEXT",
	ir.KindInt:    "INTEGER",
	ir.KindFloat:  "REAL",
	ir.KindBool:   "INTEGER",
	ir.KindUUID:   "TEXT",
}

// DDL returns the CREATE statements for every table of reg, in registration
// order: one CREATE TABLE per table and one index per foreign key column.
// All statements are idempotent (IF NOT EXISTS).
func DDL(reg *schema.Registry) []string {
	var stmts []string
	for _, t := range reg.Tables() {
		stmts = append(stmts, createTable(reg, t))
		for _, c := range t.Columns {
			if c.References == "" {
				continue
			}
			stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
				quote("idx_"+t.Name+"_"+c.Name), quote(t.Name), quote(c.Name)))
		}
	}
	return stmts
}

func createTable(reg *schema.Registry, t *schema.Table) string {
	defs := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		def := quote(c.Name) + " " + sqlTypes[c.Kind]
		switch {
		case c.Name == t.Identity:
			def += " NOT NULL PRIMARY KEY"
		case !c.Nullable:
			def += " NOT NULL"
		}
		if c.References != "" {
			identity := schema.DefaultIdentity
			if target, ok := reg.Table(c.References); ok {
				identity = target.Identity
			}
			def += fmt.Sprintf(" REFERENCES %s (%s)", quote(c.References), quote(identity))
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(t.Name), strings.Join(defs, ", "))
}

// ApplySchema creates the tables of reg if they don't exist.
// This function is idempotent.
func (s *Store) ApplySchema(ctx context.Context, reg *schema.Registry) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		for _, stmt := range DDL(reg) {
			if _, err := tx.tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
		}
		return nil
	})
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
