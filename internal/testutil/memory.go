package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/queryir"
)

// MemoryEngine is an in-memory query engine for materializer tests.
//
// It evaluates Select (with left joins) and Aggregate queries over rows
// inserted with Insert, and counts the queries it receives per table.
// Errors can be injected per table with FailOn; BeforeFetch runs before
// every fetch, which lets tests block or observe concurrent fetches.
//
// Thread-safety: MemoryEngine is safe for concurrent use.
type MemoryEngine struct {
	// BeforeFetch, if set, runs before every Fetch. A non-nil error is returned.
	BeforeFetch func(ctx context.Context, q queryir.Select) error

	mu         sync.Mutex
	tables     map[string][]map[string]ir.Value
	failures   map[string]error
	fetches    map[string]int
	aggregates map[string]int
}

// NewMemoryEngine creates an empty engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		tables:     make(map[string][]map[string]ir.Value),
		failures:   make(map[string]error),
		fetches:    make(map[string]int),
		aggregates: make(map[string]int),
	}
}

// Insert appends a row to a table. Columns absent from row read as NULL.
func (m *MemoryEngine) Insert(table string, row map[string]ir.Value) {
	copied := make(map[string]ir.Value, len(row))
	for k, v := range row {
		copied[k] = v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = append(m.tables[table], copied)
}

// FailOn makes every query whose base table is table fail with err.
func (m *MemoryEngine) FailOn(table string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[table] = err
}

// Fetches returns the number of selects issued against a base table.
func (m *MemoryEngine) Fetches(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches[table]
}

// Aggregates returns the number of aggregate queries issued against a table.
func (m *MemoryEngine) Aggregates(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aggregates[table]
}

// scope maps a table qualifier to the row bound to it (nil for an unmatched join).
type scope map[string]map[string]ir.Value

func (s scope) value(c queryir.ColumnRef) ir.Value {
	row := s[c.Table]
	if row == nil {
		return ir.Null{}
	}
	v, ok := row[c.Name]
	if !ok || v == nil {
		return ir.Null{}
	}
	return v
}

// Fetch implements hydrate.QueryEngine.
func (m *MemoryEngine) Fetch(ctx context.Context, q queryir.Select) ([]ir.Row, error) {
	if m.BeforeFetch != nil {
		if err := m.BeforeFetch(ctx, q); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.fetches[q.From.Name]++
	if err := m.failures[q.From.Name]; err != nil {
		return nil, err
	}

	var scopes []scope
	for _, base := range m.tables[q.From.Name] {
		s := scope{q.From.Qualifier(): base}
		for _, j := range q.Joins {
			s[j.Table.Qualifier()] = nil
			for _, candidate := range m.tables[j.Table.Name] {
				s[j.Table.Qualifier()] = candidate
				if eval(j.On, s) {
					break
				}
				s[j.Table.Qualifier()] = nil
			}
		}
		if q.Filter == nil || eval(q.Filter, s) {
			scopes = append(scopes, s)
		}
	}

	order := q.OrderBy
	if len(order) == 0 && len(q.Columns) > 0 {
		order = q.Columns[:1]
	}
	sort.SliceStable(scopes, func(i, j int) bool {
		for _, c := range order {
			a, b := sortKey(scopes[i].value(c)), sortKey(scopes[j].value(c))
			if a != b {
				return a < b
			}
		}
		return false
	})
	if q.Limit > 0 && len(scopes) > q.Limit {
		scopes = scopes[:q.Limit]
	}

	rows := make([]ir.Row, len(scopes))
	for i, s := range scopes {
		row := make(ir.Row, len(q.Columns))
		for _, c := range q.Columns {
			row[c.Label()] = s.value(c)
		}
		rows[i] = row
	}
	return rows, nil
}

// Aggregate implements hydrate.QueryEngine. Only avg is supported.
func (m *MemoryEngine) Aggregate(ctx context.Context, q queryir.Aggregate) ([]ir.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.aggregates[q.Table]++
	if err := m.failures[q.Table]; err != nil {
		return nil, err
	}
	if q.Func != "avg" {
		return nil, fmt.Errorf("memory engine: unsupported aggregate %q", q.Func)
	}

	var sum float64
	var n int
	for _, row := range m.tables[q.Table] {
		s := scope{q.Table: row}
		if q.Filter != nil && !eval(q.Filter, s) {
			continue
		}
		switch v := s.value(q.Column).(type) {
		case ir.Int:
			sum += float64(v)
			n++
		case ir.Float:
			sum += float64(v)
			n++
		}
	}

	var result ir.Value = ir.Null{}
	if n > 0 {
		result = ir.Float(sum / float64(n))
	}
	return []ir.Row{{q.Label(): result}}, nil
}

// eval evaluates a predicate with SQL NULL semantics for equality.
func eval(p queryir.Predicate, s scope) bool {
	switch pred := p.(type) {
	case queryir.Equals:
		v := s.value(pred.Column)
		if ir.IsNull(pred.Value) {
			return ir.IsNull(v)
		}
		return !ir.IsNull(v) && v == pred.Value
	case queryir.ColumnEquals:
		l, r := s.value(pred.Left), s.value(pred.Right)
		return !ir.IsNull(l) && !ir.IsNull(r) && l == r
	case queryir.IsNull:
		return ir.IsNull(s.value(pred.Column))
	case queryir.And:
		for _, inner := range pred.Predicates {
			if !eval(inner, s) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// sortKey orders NULL first, then by rendered value.
func sortKey(v ir.Value) string {
	if ir.IsNull(v) {
		return ""
	}
	var b strings.Builder
	b.WriteByte(1)
	fmt.Fprint(&b, v)
	return b.String()
}
