package plan

import (
	"fmt"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/queryir"
	"github.com/roach88/strata/internal/schema"
)

// Alias returns the join alias of a single reference property.
// Example: Alias("Order", "customer") → "Order->customer"
func Alias(owner, property string) string {
	return owner + "->" + property
}

// Join describes one aliased LEFT JOIN of a join plan.
type Join struct {
	Property string
	Target   *schema.RecordType
	Column   string // Foreign key column on the base table
	Nullable bool
	Alias    string
}

// JoinPlan is the precomputed column and join set of one record type.
type JoinPlan struct {
	Type    *schema.RecordType
	Base    queryir.TableRef
	Columns []queryir.ColumnRef
	Joins   []Join
}

// Build constructs the join plan of rt.
//
// The base table contributes all of its columns, identity first. Each single
// reference binding, in declaration order, adds a LEFT JOIN of the target's
// table under Alias(rt.Name, property) on base.fk = alias.identity, and
// contributes all of the target table's columns under that alias.
//
// Fails with *schema.UnsupportedBindingError if a reference target is not
// registered or its foreign key column is missing.
func Build(reg *schema.Registry, rt *schema.RecordType) (*JoinPlan, error) {
	if rt == nil || rt.Table == nil {
		return nil, fmt.Errorf("build plan: record type has no table")
	}

	base := queryir.TableRef{Name: rt.Table.Name}
	p := &JoinPlan{
		Type:    rt,
		Base:    base,
		Columns: tableColumns(rt.Table, base.Qualifier()),
	}

	for _, b := range rt.Bindings {
		column, targetName, nullable, ok := schema.IsSingleRef(b)
		if !ok {
			continue // Collections and aggregates are fetched separately
		}

		target, ok := reg.Type(targetName)
		if !ok {
			return nil, &schema.UnsupportedBindingError{
				Type:     rt.Name,
				Property: b.Property(),
				Reason:   schema.ReasonUnknownTarget,
				Message:  fmt.Sprintf("reference target %q is not registered", targetName),
			}
		}
		fk, ok := rt.Table.Column(column)
		if !ok {
			return nil, &schema.UnsupportedBindingError{
				Type:     rt.Name,
				Property: b.Property(),
				Reason:   schema.ReasonUnknownColumn,
				Message:  fmt.Sprintf("column %q not found on table %s", column, rt.Table.Name),
			}
		}

		alias := Alias(rt.Name, b.Property())
		p.Joins = append(p.Joins, Join{
			Property: b.Property(),
			Target:   target,
			Column:   fk.Name,
			Nullable: nullable,
			Alias:    alias,
		})
		p.Columns = append(p.Columns, tableColumns(target.Table, alias)...)
	}

	return p, nil
}

// tableColumns lists the columns of t qualified by qualifier, identity first.
func tableColumns(t *schema.Table, qualifier string) []queryir.ColumnRef {
	id := t.IdentityColumn()
	cols := []queryir.ColumnRef{queryir.Col(qualifier, id.Name, id.Kind)}
	for _, c := range t.Columns {
		if c.Name == t.Identity {
			continue
		}
		cols = append(cols, queryir.Col(qualifier, c.Name, c.Kind))
	}
	return cols
}

// Join returns the join of a single reference property.
func (p *JoinPlan) Join(property string) (Join, bool) {
	for _, j := range p.Joins {
		if j.Property == property {
			return j, true
		}
	}
	return Join{}, false
}

// Aliases returns the join aliases in declaration order.
func (p *JoinPlan) Aliases() []string {
	aliases := make([]string, len(p.Joins))
	for i, j := range p.Joins {
		aliases[i] = j.Alias
	}
	return aliases
}

// Column returns a base table column reference.
func (p *JoinPlan) Column(name string) (queryir.ColumnRef, bool) {
	col, ok := p.Type.Table.Column(name)
	if !ok {
		return queryir.ColumnRef{}, false
	}
	return queryir.Col(p.Base.Qualifier(), col.Name, col.Kind), true
}

// Identity returns the base identity column reference.
func (p *JoinPlan) Identity() queryir.ColumnRef {
	id := p.Type.Table.IdentityColumn()
	return queryir.Col(p.Base.Qualifier(), id.Name, id.Kind)
}

// IdentityEquals returns the condition selecting one record by identity.
func (p *JoinPlan) IdentityEquals(id ir.Value) queryir.Predicate {
	return queryir.Equals{Column: p.Identity(), Value: id}
}

// Select returns the plan's query restricted by cond (nil selects all rows).
// The returned Select owns its slices; callers may modify it.
func (p *JoinPlan) Select(cond queryir.Predicate) queryir.Select {
	joins := make([]queryir.LeftJoin, len(p.Joins))
	for i, j := range p.Joins {
		targetID := j.Target.Table.IdentityColumn()
		joins[i] = queryir.LeftJoin{
			Table: queryir.TableRef{Name: j.Target.Table.Name, Alias: j.Alias},
			On: queryir.ColumnEquals{
				Left:  queryir.Col(p.Base.Qualifier(), j.Column, ir.KindUUID),
				Right: queryir.Col(j.Alias, targetID.Name, targetID.Kind),
			},
		}
	}

	return queryir.Select{
		From:    p.Base,
		Columns: append([]queryir.ColumnRef(nil), p.Columns...),
		Joins:   joins,
		Filter:  cond,
		OrderBy: []queryir.ColumnRef{p.Identity()},
	}
}
