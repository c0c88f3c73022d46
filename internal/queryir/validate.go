package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/strata/internal/ir"
)

// ValidationResult contains the structural problems found in a query.
type ValidationResult struct {
	// Problems lists every violation. Empty means the query is well formed.
	Problems []string
}

// Valid reports whether no problems were found.
func (r ValidationResult) Valid() bool {
	return len(r.Problems) == 0
}

// Err returns the problems as one error, or nil.
func (r ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}
	return fmt.Errorf("invalid query: %s", strings.Join(r.Problems, "; "))
}

// Validate checks that a query is well formed:
//  1. Select lists at least one column
//  2. Every table qualifier is unique (base table and join aliases)
//  3. Every column reference is qualified by a table in scope
//  4. Every literal is a scalar value (no Ref or Collection)
//  5. Aggregate names a function, a table and a column
//
// Validate is a pure function with no side effects.
func Validate(query Query) ValidationResult {
	v := &validator{problems: []string{}}
	v.validateQuery(query)
	return ValidationResult{Problems: v.problems}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
	scope    map[string]bool
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	if q == nil {
		v.addProblem("nil query")
		return
	}

	switch query := q.(type) {
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	case Aggregate:
		v.validateAggregate(query)
	case *Aggregate:
		v.validateAggregate(*query)
	default:
		v.addProblem("unknown query type: %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	if len(sel.Columns) == 0 {
		v.addProblem("select lists no columns")
	}

	v.scope = map[string]bool{sel.From.Qualifier(): true}
	for _, j := range sel.Joins {
		q := j.Table.Qualifier()
		if v.scope[q] {
			v.addProblem("table qualifier %q used twice", q)
		}
		v.scope[q] = true
	}

	for _, c := range sel.Columns {
		v.validateColumn(c)
	}
	for _, j := range sel.Joins {
		if j.On == nil {
			v.addProblem("join of %q has no condition", j.Table.Qualifier())
			continue
		}
		v.validatePredicate(j.On)
	}
	v.validatePredicate(sel.Filter)
	for _, c := range sel.OrderBy {
		v.validateColumn(c)
	}
	if sel.Limit < 0 {
		v.addProblem("negative limit %d", sel.Limit)
	}
}

func (v *validator) validateAggregate(agg Aggregate) {
	if agg.Func == "" {
		v.addProblem("aggregate has no function")
	}
	if agg.Table == "" {
		v.addProblem("aggregate has no table")
	}
	v.scope = map[string]bool{agg.Table: true}
	v.validateColumn(agg.Column)
	v.validatePredicate(agg.Filter)
}

func (v *validator) validateColumn(c ColumnRef) {
	if c.Name == "" {
		v.addProblem("column with empty name")
	}
	if !v.scope[c.Table] {
		v.addProblem("column %s is not qualified by a table in scope", c.Label())
	}
}

// validatePredicate recursively validates a predicate node.
func (v *validator) validatePredicate(p Predicate) {
	if p == nil {
		return // nil predicates are valid (no filter)
	}

	switch pred := p.(type) {
	case Equals:
		v.validateColumn(pred.Column)
		if _, ok := ir.KindOf(pred.Value); !ok && !ir.IsNull(pred.Value) {
			v.addProblem("literal for %s must be a scalar, got %T", pred.Column.Label(), pred.Value)
		}
	case ColumnEquals:
		v.validateColumn(pred.Left)
		v.validateColumn(pred.Right)
	case IsNull:
		v.validateColumn(pred.Column)
	case And:
		for _, inner := range pred.Predicates {
			v.validatePredicate(inner)
		}
	default:
		v.addProblem("unknown predicate type: %T", p)
	}
}
