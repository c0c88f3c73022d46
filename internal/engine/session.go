package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/strata/internal/hydrate"
	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/queryir"
	"github.com/roach88/strata/internal/store"
)

// Session is the handle of one request. It is only valid inside the
// Request callback that received it.
type Session struct {
	engine *Engine
	rc     *hydrate.RequestContext
	tx     *store.Tx
}

// RequestID returns the id of the request, used in log fields.
func (s *Session) RequestID() uuid.UUID {
	return s.rc.ID()
}

// Stats returns the entity cache counters of the request.
func (s *Session) Stats() hydrate.CacheStats {
	return s.rc.Cache().Stats()
}

// Get returns the record of typeName with the given identity.
// Returns an error wrapping ErrNotFound if it does not exist.
func (s *Session) Get(ctx context.Context, typeName string, id uuid.UUID) (*ir.Record, error) {
	rt, err := s.engine.recordType(typeName)
	if err != nil {
		return nil, err
	}
	return s.engine.materializer.Load(ctx, s.rc, rt, id)
}

// Find returns all records of typeName matching cond, ordered by identity.
// A nil cond matches every record.
func (s *Session) Find(ctx context.Context, typeName string, cond queryir.Predicate) ([]*ir.Record, error) {
	rt, err := s.engine.recordType(typeName)
	if err != nil {
		return nil, err
	}
	return s.engine.materializer.Find(ctx, s.rc, rt, cond, 0)
}

// FindOne returns the first record of typeName matching cond.
// Returns an error wrapping ErrNotFound if none matches.
func (s *Session) FindOne(ctx context.Context, typeName string, cond queryir.Predicate) (*ir.Record, error) {
	rt, err := s.engine.recordType(typeName)
	if err != nil {
		return nil, err
	}
	records, err := s.engine.materializer.Find(ctx, s.rc, rt, cond, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: %w", typeName, ErrNotFound)
	}
	return records[0], nil
}

// All returns up to limit records of typeName, ordered by identity.
// A limit of 0 returns every record.
func (s *Session) All(ctx context.Context, typeName string, limit int) ([]*ir.Record, error) {
	if limit < 0 {
		return nil, fmt.Errorf("negative limit %d", limit)
	}
	rt, err := s.engine.recordType(typeName)
	if err != nil {
		return nil, err
	}
	return s.engine.materializer.Find(ctx, s.rc, rt, nil, limit)
}

// Where returns the condition column = value on the base table of typeName,
// for use with Find and FindOne.
func (s *Session) Where(typeName, column string, value ir.Value) (queryir.Predicate, error) {
	rt, err := s.engine.recordType(typeName)
	if err != nil {
		return nil, err
	}
	p, err := s.engine.plans.Get(rt)
	if err != nil {
		return nil, err
	}
	col, ok := p.Column(column)
	if !ok {
		return nil, fmt.Errorf("type %s: table %s has no column %q", typeName, rt.Table.Name, column)
	}
	return queryir.Equals{Column: col, Value: value}, nil
}

// Insert writes one row into a table within the request's transaction.
func (s *Session) Insert(ctx context.Context, table string, values map[string]ir.Value) error {
	t, ok := s.engine.registry.Table(table)
	if !ok {
		return fmt.Errorf("unknown table %q", table)
	}
	return s.tx.Insert(ctx, t, values)
}
