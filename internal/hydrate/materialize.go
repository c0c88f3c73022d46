package hydrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/plan"
	"github.com/roach88/strata/internal/queryir"
	"github.com/roach88/strata/internal/schema"
)

// DefaultMaxConcurrency bounds the rows of one batch materialized in parallel.
const DefaultMaxConcurrency = 8

// Materializer converts fetched rows into constructed records.
//
// Thread-safety: Materializer is immutable after NewMaterializer and safe for
// concurrent use; per-request state lives in the RequestContext.
type Materializer struct {
	plans          *plan.Cache
	registry       *schema.Registry
	constructor    Constructor
	logger         *zap.Logger
	maxConcurrency int
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithConstructor replaces the default schema.Constructor.
func WithConstructor(c Constructor) Option {
	return func(m *Materializer) {
		m.constructor = c
	}
}

// WithLogger sets the logger for materialization events.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Materializer) {
		m.logger = logger
	}
}

// WithMaxConcurrency bounds the rows of one batch materialized in parallel.
// Values below 1 remove the bound.
func WithMaxConcurrency(n int) Option {
	return func(m *Materializer) {
		m.maxConcurrency = n
	}
}

// NewMaterializer creates a materializer sharing the given plan cache.
func NewMaterializer(plans *plan.Cache, opts ...Option) *Materializer {
	m := &Materializer{
		plans:          plans,
		registry:       plans.Registry(),
		constructor:    schema.Constructor{},
		logger:         zap.NewNop(),
		maxConcurrency: DefaultMaxConcurrency,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// rowView is the part of a row describing one record: the columns under
// qualifier, plus the joined references of p when p is non-nil.
type rowView struct {
	row       ir.Row
	qualifier string
	plan      *plan.JoinPlan
}

// outcome is the resolution result of one binding.
type outcome struct {
	value ir.Value
	err   error
}

// MaterializeAll materializes rows fetched with rt's join plan.
//
// Returns records in row order. Rows are processed concurrently; if any row
// fails the whole batch fails with the error of the first failing row.
func (m *Materializer) MaterializeAll(ctx context.Context, rc *RequestContext, rt *schema.RecordType, rows []ir.Row) ([]*ir.Record, error) {
	p, err := m.plans.Get(rt)
	if err != nil {
		return nil, err
	}

	records := make([]*ir.Record, len(rows))
	errs := make([]error, len(rows))

	var g errgroup.Group
	g.SetLimit(m.limit())
	for i, row := range rows {
		g.Go(func() error {
			records[i], errs[i] = m.materializeRow(ctx, rc, rt, rowView{
				row:       row,
				qualifier: p.Base.Qualifier(),
				plan:      p,
			})
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return records, nil
}

// Find fetches the records of rt matching cond through rt's join plan.
// A limit of 0 fetches all matches.
func (m *Materializer) Find(ctx context.Context, rc *RequestContext, rt *schema.RecordType, cond queryir.Predicate, limit int) ([]*ir.Record, error) {
	sel, err := plan.Optimize(m.plans, rt, cond)
	if err != nil {
		return nil, err
	}
	sel.Limit = limit

	rows, err := rc.Engine().Fetch(ctx, sel)
	if err != nil {
		return nil, &StoreError{Type: rt.Name, Op: "fetch", Err: err}
	}
	rc.Logger().Debug("fetched rows",
		zap.String("type", rt.Name),
		zap.Int("rows", len(rows)))

	return m.MaterializeAll(ctx, rc, rt, rows)
}

// Load returns the record of rt with the given identity, fetching it through
// rt's join plan unless the request already holds it.
// Fails with an error wrapping ErrNotFound if no row has the identity.
func (m *Materializer) Load(ctx context.Context, rc *RequestContext, rt *schema.RecordType, id uuid.UUID) (*ir.Record, error) {
	key := ir.Key{Type: rt.Name, ID: id}
	return rc.Cache().GetOrMaterialize(ctx, key, func(ctx context.Context, shell *ir.Record) error {
		p, err := m.plans.Get(rt)
		if err != nil {
			return err
		}

		rows, err := rc.Engine().Fetch(ctx, p.Select(p.IdentityEquals(ir.UUID(id))))
		if err != nil {
			return &StoreError{Type: rt.Name, Identity: id, Op: "fetch", Err: err}
		}
		switch len(rows) {
		case 0:
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		case 1:
		default:
			return &IntegrityError{Type: rt.Name, Identity: id, Message: fmt.Sprintf("identity matched %d rows", len(rows))}
		}

		return m.construct(ctx, rc, rt, id, rowView{row: rows[0], qualifier: p.Base.Qualifier(), plan: p}, shell)
	})
}

// materializeRow constructs the record a row view describes, via the cache.
func (m *Materializer) materializeRow(ctx context.Context, rc *RequestContext, rt *schema.RecordType, view rowView) (*ir.Record, error) {
	v, _ := view.row.Lookup(view.qualifier, rt.Table.Identity)
	id, ok := v.(ir.UUID)
	if !ok {
		return nil, &IntegrityError{Type: rt.Name, Message: fmt.Sprintf("row has no identity in %s.%s", view.qualifier, rt.Table.Identity)}
	}

	key := ir.Key{Type: rt.Name, ID: uuid.UUID(id)}
	return rc.Cache().GetOrMaterialize(ctx, key, func(ctx context.Context, shell *ir.Record) error {
		return m.construct(ctx, rc, rt, key.ID, view, shell)
	})
}

// construct resolves every binding and hands the payload to the constructor.
func (m *Materializer) construct(ctx context.Context, rc *RequestContext, rt *schema.RecordType, id uuid.UUID, view rowView, shell *ir.Record) error {
	payload, err := m.resolve(ctx, rc, rt, id, view)
	if err != nil {
		return err
	}
	if err := m.constructor.Construct(rt, shell, payload); err != nil {
		return &StoreError{Type: rt.Name, Identity: id, Op: "construct", Err: err}
	}
	return nil
}

// resolve resolves all bindings of rt. Columns and single references are
// resolved in place; collections and aggregates concurrently. Every binding
// is attempted before the first failure in declaration order is returned.
func (m *Materializer) resolve(ctx context.Context, rc *RequestContext, rt *schema.RecordType, id uuid.UUID, view rowView) (map[string]ir.Value, error) {
	results := make([]outcome, len(rt.Bindings))

	var g errgroup.Group
	for i, b := range rt.Bindings {
		switch bind := b.(type) {
		case schema.ColumnBinding:
			results[i].value, results[i].err = m.resolveColumn(rt, id, bind, view)
		case schema.SingleRefBinding:
			results[i].value, results[i].err = m.resolveRef(ctx, rc, rt, id, view, bind.Prop, bind.Column, bind.Target, false)
		case schema.NullableRefBinding:
			results[i].value, results[i].err = m.resolveRef(ctx, rc, rt, id, view, bind.Prop, bind.Column, bind.Target, true)
		case schema.CollectionBinding:
			g.Go(func() error {
				results[i].value, results[i].err = m.resolveCollection(ctx, rc, rt, id, bind)
				return nil
			})
		case schema.AggregateBinding:
			g.Go(func() error {
				results[i].value, results[i].err = m.resolveAggregate(ctx, rc, rt, id, bind)
				return nil
			})
		default:
			results[i].err = &schema.UnsupportedBindingError{
				Type:     rt.Name,
				Property: b.Property(),
				Reason:   schema.ReasonBindingKind,
				Message:  fmt.Sprintf("unsupported binding type %T", b),
			}
		}
	}
	_ = g.Wait()

	payload := make(map[string]ir.Value, len(results))
	for i, r := range results {
		prop := rt.Bindings[i].Property()
		switch {
		case errors.Is(r.err, errNoValue):
			payload[prop] = ir.Null{}
		case r.err != nil:
			return nil, r.err
		default:
			payload[prop] = r.value
		}
	}
	return payload, nil
}

func (m *Materializer) resolveColumn(rt *schema.RecordType, id uuid.UUID, bind schema.ColumnBinding, view rowView) (ir.Value, error) {
	v, ok := view.row.Lookup(view.qualifier, bind.Column)
	if ok && !ir.IsNull(v) {
		return v, nil
	}
	if bind.Nullable {
		return ir.Null{}, nil
	}

	msg := fmt.Sprintf("column %s is NULL", bind.Column)
	if !ok {
		msg = fmt.Sprintf("column %s was not fetched", bind.Column)
	}
	return nil, &IntegrityError{Type: rt.Name, Property: bind.Prop, Identity: id, Message: msg}
}

// resolveRef resolves a single reference. A joined reference is
// materialized from the aliased columns of the same row; otherwise it is
// loaded by identity. For nullable bindings a NULL foreign key, or a key
// whose target row is missing, yields errNoValue; for non-nullable ones
// both are integrity errors.
func (m *Materializer) resolveRef(ctx context.Context, rc *RequestContext, rt *schema.RecordType, id uuid.UUID, view rowView, prop, column, targetName string, nullable bool) (ir.Value, error) {
	fk, _ := view.row.Lookup(view.qualifier, column)
	if ir.IsNull(fk) {
		if nullable {
			return nil, errNoValue
		}
		return nil, &IntegrityError{Type: rt.Name, Property: prop, Identity: id, Message: fmt.Sprintf("reference column %s is NULL", column)}
	}
	fkID, ok := fk.(ir.UUID)
	if !ok {
		return nil, &IntegrityError{Type: rt.Name, Property: prop, Identity: id, Message: fmt.Sprintf("reference column %s holds %T", column, fk)}
	}

	target, ok := m.registry.Type(targetName)
	if !ok {
		return nil, &schema.UnsupportedBindingError{
			Type:     rt.Name,
			Property: prop,
			Reason:   schema.ReasonUnknownTarget,
			Message:  fmt.Sprintf("reference target %q is not registered", targetName),
		}
	}

	dangling := &IntegrityError{
		Type:     rt.Name,
		Property: prop,
		Identity: id,
		Message:  fmt.Sprintf("dangling reference to %s %s", targetName, uuid.UUID(fkID)),
	}

	if view.plan != nil {
		if join, ok := view.plan.Join(prop); ok && view.row.HasAlias(join.Alias) {
			if aliasID, _ := view.row.Lookup(join.Alias, target.Table.Identity); ir.IsNull(aliasID) {
				if nullable {
					return nil, errNoValue
				}
				return nil, dangling
			}
			rec, err := m.materializeRow(ctx, rc, target, rowView{row: view.row, qualifier: join.Alias})
			if err != nil {
				return nil, err
			}
			return ir.Ref{Record: rec}, nil
		}
	}

	// Not joined into this row: a reference two or more levels deep
	rc.Logger().Debug("loading reference by identity",
		zap.String("type", rt.Name),
		zap.String("property", prop),
		zap.Stringer("target", fkID))
	rec, err := m.Load(ctx, rc, target, uuid.UUID(fkID))
	if errors.Is(err, ErrNotFound) {
		if nullable {
			return nil, errNoValue
		}
		return nil, dangling
	}
	if err != nil {
		return nil, err
	}
	return ir.Ref{Record: rec}, nil
}

// resolveCollection fetches the target records whose foreign key points at
// the owner, through the target's own join plan.
func (m *Materializer) resolveCollection(ctx context.Context, rc *RequestContext, rt *schema.RecordType, id uuid.UUID, bind schema.CollectionBinding) (ir.Value, error) {
	target, ok := m.registry.Type(bind.Target)
	if !ok {
		return nil, &schema.UnsupportedBindingError{
			Type:     rt.Name,
			Property: bind.Prop,
			Reason:   schema.ReasonUnknownTarget,
			Message:  fmt.Sprintf("collection target %q is not registered", bind.Target),
		}
	}
	p, err := m.plans.Get(target)
	if err != nil {
		return nil, err
	}
	fk, ok := p.Column(bind.ForeignKey)
	if !ok {
		return nil, &schema.UnsupportedBindingError{
			Type:     rt.Name,
			Property: bind.Prop,
			Reason:   schema.ReasonUnknownColumn,
			Message:  fmt.Sprintf("foreign key %q not found on table %s", bind.ForeignKey, target.Table.Name),
		}
	}

	rows, err := rc.Engine().Fetch(ctx, p.Select(queryir.Equals{Column: fk, Value: ir.UUID(id)}))
	if err != nil {
		return nil, &StoreError{Type: rt.Name, Property: bind.Prop, Identity: id, Op: "fetch", Err: err}
	}
	rc.Logger().Debug("fetched collection",
		zap.String("type", rt.Name),
		zap.String("property", bind.Prop),
		zap.Stringer("owner", id),
		zap.Int("rows", len(rows)))

	records, err := m.MaterializeAll(ctx, rc, target, rows)
	if err != nil {
		return nil, err
	}
	return ir.Collection(records), nil
}

// resolveAggregate evaluates AVG(table.column) over the rows pointing at the owner.
func (m *Materializer) resolveAggregate(ctx context.Context, rc *RequestContext, rt *schema.RecordType, id uuid.UUID, bind schema.AggregateBinding) (ir.Value, error) {
	fail := func(format string, args ...any) (ir.Value, error) {
		return nil, &IntegrityError{Type: rt.Name, Property: bind.Prop, Identity: id, Message: fmt.Sprintf(format, args...)}
	}

	table, ok := m.registry.Table(bind.Table)
	if !ok {
		return fail("aggregate table %s is not registered", bind.Table)
	}
	col, _ := table.Column(bind.Column)
	fk, _ := table.Column(bind.ForeignKey)

	q := queryir.Aggregate{
		Func:   string(bind.Func),
		Table:  table.Name,
		Column: queryir.Col(table.Name, col.Name, col.Kind),
		Filter: queryir.Equals{Column: queryir.Col(table.Name, fk.Name, fk.Kind), Value: ir.UUID(id)},
	}
	rows, err := rc.Engine().Aggregate(ctx, q)
	if err != nil {
		return nil, &StoreError{Type: rt.Name, Property: bind.Prop, Identity: id, Op: "aggregate", Err: err}
	}
	if len(rows) != 1 {
		return fail("aggregate returned %d rows, expected 1", len(rows))
	}

	v, ok := rows[0][q.Label()]
	if !ok {
		return fail("aggregate row has no %s", q.Label())
	}
	switch val := v.(type) {
	case ir.Float:
		return val, nil
	case ir.Int:
		return ir.Float(val), nil
	case ir.Null, nil:
		if bind.Nullable {
			return ir.Null{}, nil
		}
		return fail("aggregate over no rows")
	default:
		return fail("aggregate returned %T", v)
	}
}

func (m *Materializer) limit() int {
	if m.maxConcurrency < 1 {
		return -1
	}
	return m.maxConcurrency
}
