package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/queryir"
	"github.com/roach88/strata/internal/querysql"
	"github.com/roach88/strata/internal/schema"
)

// Tx is one SQLite transaction. It implements hydrate.QueryEngine.
//
// Thread-safety: Tx is safe for concurrent use. Statements are serialized on
// the transaction's connection and result sets are read completely before
// the next statement runs.
type Tx struct {
	mu       sync.Mutex
	tx       *sql.Tx
	compiler *querysql.SQLCompiler
	logger   *zap.Logger
}

// Fetch runs a select and decodes every column by its declared kind.
// Returns an empty slice (not nil) if no rows match.
func (t *Tx) Fetch(ctx context.Context, q queryir.Select) ([]ir.Row, error) {
	query, params, err := t.compiler.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("compile select: %w", err)
	}
	return t.query(ctx, query, params, q.Columns)
}

// Aggregate runs an aggregate query. The result row holds one value labeled
// q.Label(): a float for avg, an int for count, the column kind otherwise.
func (t *Tx) Aggregate(ctx context.Context, q queryir.Aggregate) ([]ir.Row, error) {
	query, params, err := t.compiler.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("compile aggregate: %w", err)
	}

	kind := q.Column.Kind
	switch q.Func {
	case "avg":
		kind = ir.KindFloat
	case "count":
		kind = ir.KindInt
	}

	// Aggregate rows are labeled by the aggregate itself, not the column
	result := queryir.ColumnRef{Table: q.Table, Name: q.Func + "_" + q.Column.Name, Kind: kind}
	return t.query(ctx, query, params, []queryir.ColumnRef{result})
}

func (t *Tx) query(ctx context.Context, query string, params []any, cols []queryir.ColumnRef) ([]ir.Row, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.logger.Debug("query", zap.String("sql", query), zap.Int("params", len(params)))

	rows, err := t.tx.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	result := []ir.Row{}
	raw := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range raw {
		dest[i] = &raw[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(ir.Row, len(cols))
		for i, c := range cols {
			v, err := ir.Coerce(c.Kind, raw[i])
			if err != nil {
				return nil, fmt.Errorf("decode %s: %w", c.Label(), err)
			}
			row[c.Label()] = v
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

// Insert writes one row into table. Columns absent from values are NULL.
// Fails on values naming unknown columns or of the wrong kind.
func (t *Tx) Insert(ctx context.Context, table *schema.Table, values map[string]ir.Value) error {
	for name := range values {
		if _, ok := table.Column(name); !ok {
			return fmt.Errorf("insert into %s: unknown column %q", table.Name, name)
		}
	}

	var names []string
	var params []any
	for _, c := range table.Columns {
		v, ok := values[c.Name]
		if !ok {
			continue
		}
		if kind, scalar := ir.KindOf(v); scalar && kind != c.Kind {
			return fmt.Errorf("insert into %s: column %s expects %s, got %s", table.Name, c.Name, c.Kind, kind)
		}
		native, err := ir.Native(v)
		if err != nil {
			return fmt.Errorf("insert into %s: column %s: %w", table.Name, c.Name, err)
		}
		names = append(names, quote(c.Name))
		params = append(params, native)
	}
	if len(names) == 0 {
		return fmt.Errorf("insert into %s: no values", table.Name)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(table.Name), strings.Join(names, ", "), placeholders)

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.tx.ExecContext(ctx, stmt, params...); err != nil {
		return fmt.Errorf("insert into %s: %w", table.Name, err)
	}
	return nil
}

// Count returns the number of rows of table.
func (t *Tx) Count(ctx context.Context, table string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var n int
	if err := t.tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quote(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// Tables lists the user tables of the database in name order.
func (t *Tx) Tables(ctx context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows, err := t.tx.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'")
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	sort.Strings(names)
	return names, nil
}
