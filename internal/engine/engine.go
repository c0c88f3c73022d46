package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/strata/internal/fixture"
	"github.com/roach88/strata/internal/hydrate"
	"github.com/roach88/strata/internal/plan"
	"github.com/roach88/strata/internal/schema"
	"github.com/roach88/strata/internal/store"
)

// Engine executes requests against one store and registry.
//
// Thread-safety: Engine is safe for concurrent use. Concurrent requests share
// the plan cache; SQLite serializes their transactions.
type Engine struct {
	store        *store.Store
	registry     *schema.Registry
	plans        *plan.Cache
	materializer *hydrate.Materializer
	ids          hydrate.RequestIDGenerator
	logger       *zap.Logger

	maxConcurrency int
	constructor    hydrate.Constructor
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the logger. Default: zap.NewNop().
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMaxConcurrency bounds the rows of one batch materialized in parallel.
//
// Default: hydrate.DefaultMaxConcurrency
// Use WithMaxConcurrency(1) for strictly sequential materialization.
func WithMaxConcurrency(n int) EngineOption {
	return func(e *Engine) {
		e.maxConcurrency = n
	}
}

// WithConstructor replaces the default schema.Constructor.
func WithConstructor(c hydrate.Constructor) EngineOption {
	return func(e *Engine) {
		e.constructor = c
	}
}

// WithRequestIDGenerator replaces the UUIDv7 request id generator.
// Used by tests for deterministic request ids.
func WithRequestIDGenerator(gen hydrate.RequestIDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = gen
	}
}

// New creates an Engine for the given store and registry.
//
// Options can be passed to configure the engine (e.g., WithMaxConcurrency).
func New(s *store.Store, reg *schema.Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		store:          s,
		registry:       reg,
		ids:            hydrate.UUIDv7Generator{},
		logger:         zap.NewNop(),
		maxConcurrency: hydrate.DefaultMaxConcurrency,
		constructor:    schema.Constructor{},
	}

	// Apply options
	for _, opt := range opts {
		opt(e)
	}

	e.plans = plan.NewCache(reg, plan.WithLogger(e.logger))
	e.materializer = hydrate.NewMaterializer(e.plans,
		hydrate.WithConstructor(e.constructor),
		hydrate.WithLogger(e.logger),
		hydrate.WithMaxConcurrency(e.maxConcurrency),
	)
	return e
}

// Registry returns the registry of the engine.
func (e *Engine) Registry() *schema.Registry {
	return e.registry
}

// Plans returns the shared join plan cache.
func (e *Engine) Plans() *plan.Cache {
	return e.plans
}

// Request runs fn in a transaction with a fresh request context.
//
// The transaction commits if fn returns nil and rolls back otherwise; the
// error of fn is returned unchanged.
func (e *Engine) Request(ctx context.Context, fn func(ctx context.Context, s *Session) error) error {
	return e.store.WithTx(ctx, func(tx *store.Tx) error {
		rc := hydrate.NewRequestContext(e.ids.Generate(), tx, e.logger)
		s := &Session{engine: e, rc: rc, tx: tx}

		start := time.Now()
		err := fn(ctx, s)

		stats := rc.Cache().Stats()
		fields := []zap.Field{
			zap.Duration("elapsed", time.Since(start)),
			zap.Int("materialized", stats.Misses),
			zap.Int("cache_hits", stats.Hits),
		}
		if err != nil {
			rc.Logger().Debug("request failed", append(fields, zap.Error(err))...)
			return err
		}
		rc.Logger().Debug("request completed", fields...)
		return nil
	})
}

// ApplySchema creates the tables of the registry in the store.
func (e *Engine) ApplySchema(ctx context.Context) error {
	return e.store.ApplySchema(ctx, e.registry)
}

// Seed inserts the rows of f in one transaction. Returns the number of rows
// inserted; on error nothing is committed.
func (e *Engine) Seed(ctx context.Context, f *fixture.Fixture) (int, error) {
	var n int
	err := e.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		n, err = f.Apply(ctx, tx, e.registry)
		return err
	})
	if err != nil {
		return 0, err
	}
	e.logger.Info("fixture applied", zap.String("fixture", f.Name), zap.Int("rows", n))
	return n, nil
}

// recordType resolves a record type by name.
func (e *Engine) recordType(name string) (*schema.RecordType, error) {
	rt, ok := e.registry.Type(name)
	if !ok {
		return nil, &UnknownTypeError{Type: name}
	}
	return rt, nil
}
