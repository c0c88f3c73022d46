package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/queryir"
)

// aggregateFuncs maps IR aggregate names to SQL functions.
var aggregateFuncs = map[string]string{
	"avg":   "AVG",
	"sum":   "SUM",
	"count": "COUNT",
	"min":   "MIN",
	"max":   "MAX",
}

// SQLCompiler compiles QueryIR to parameterized SQL for SQLite.
//
// All identifiers are double-quoted, so aliases such as "Order->customer"
// are safe. All values are parameterized (never interpolated). Every Select
// carries an ORDER BY for deterministic results.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile converts a QueryIR query to parameterized SQL.
// Returns (sql, params, error) tuple. The query is validated first.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}
	if err := queryir.Validate(q).Err(); err != nil {
		return "", nil, err
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	case queryir.Aggregate:
		return c.compileAggregate(query)
	case *queryir.Aggregate:
		return c.compileAggregate(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

// compileSelect compiles a queryir.Select to SQL.
// Without an explicit OrderBy the first selected column orders the result;
// plan builders list the base identity column first.
func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	var b strings.Builder
	var params []any

	b.WriteString("SELECT ")
	for i, col := range q.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(columnSQL(col))
		b.WriteString(" AS ")
		b.WriteString(quoteIdent(col.Label()))
	}

	b.WriteString(" FROM ")
	b.WriteString(tableSQL(q.From))

	for _, j := range q.Joins {
		onSQL, onParams, err := c.compilePredicate(j.On)
		if err != nil {
			return "", nil, fmt.Errorf("compile join ON: %w", err)
		}
		b.WriteString(" LEFT JOIN ")
		b.WriteString(tableSQL(j.Table))
		b.WriteString(" ON ")
		b.WriteString(onSQL)
		params = append(params, onParams...)
	}

	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" WHERE ")
		b.WriteString(filterSQL)
		params = append(params, filterParams...)
	}

	order := q.OrderBy
	if len(order) == 0 {
		order = q.Columns[:1]
	}
	b.WriteString(" ORDER BY ")
	for i, col := range order {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(columnSQL(col))
		b.WriteString(" ASC")
	}

	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		params = append(params, int64(q.Limit))
	}

	return b.String(), params, nil
}

// compileAggregate compiles a queryir.Aggregate to SQL.
func (c *SQLCompiler) compileAggregate(q queryir.Aggregate) (string, []any, error) {
	fn, ok := aggregateFuncs[q.Func]
	if !ok {
		return "", nil, fmt.Errorf("unsupported aggregate function %q", q.Func)
	}

	sql := fmt.Sprintf("SELECT %s(%s) AS %s FROM %s",
		fn,
		columnSQL(q.Column),
		quoteIdent(q.Label()),
		quoteIdent(q.Table))

	var params []any
	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		sql += " WHERE " + filterSQL
		params = filterParams
	}

	return sql, params, nil
}

// compilePredicate compiles a queryir.Predicate to a SQL fragment.
// Values are NEVER interpolated - always ? placeholders.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	if p == nil {
		return "1 = 1", nil, nil // Always true
	}

	switch pred := p.(type) {
	case queryir.Equals:
		return c.compileEquals(pred)
	case queryir.ColumnEquals:
		return fmt.Sprintf("%s = %s", columnSQL(pred.Left), columnSQL(pred.Right)), nil, nil
	case queryir.IsNull:
		return fmt.Sprintf("%s IS NULL", columnSQL(pred.Column)), nil, nil
	case queryir.And:
		return c.compileAnd(pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileEquals compiles an Equals predicate to "column = ?".
// Equality with Null compiles to IS NULL, since NULL never equals anything.
func (c *SQLCompiler) compileEquals(eq queryir.Equals) (string, []any, error) {
	if ir.IsNull(eq.Value) {
		return fmt.Sprintf("%s IS NULL", columnSQL(eq.Column)), nil, nil
	}

	param, err := ir.Native(eq.Value)
	if err != nil {
		return "", nil, fmt.Errorf("convert value: %w", err)
	}

	return fmt.Sprintf("%s = ?", columnSQL(eq.Column)), []any{param}, nil
}

// compileAnd compiles an And predicate to conjunction with AND.
func (c *SQLCompiler) compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil // Always true (vacuous truth)
	}

	var sqlParts []string
	var allParams []any

	for _, pred := range and.Predicates {
		sql, params, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		sqlParts = append(sqlParts, sql)
		allParams = append(allParams, params...)
	}

	return strings.Join(sqlParts, " AND "), allParams, nil
}

// tableSQL renders a table reference with its alias.
func tableSQL(t queryir.TableRef) string {
	if t.Alias == "" || t.Alias == t.Name {
		return quoteIdent(t.Name)
	}
	return quoteIdent(t.Name) + " AS " + quoteIdent(t.Alias)
}

// columnSQL renders a qualified column.
func columnSQL(c queryir.ColumnRef) string {
	return quoteIdent(c.Table) + "." + quoteIdent(c.Name)
}

// quoteIdent double-quotes an identifier, doubling embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
