package plan

import (
	"sync"

	"go.uber.org/zap"

	"github.com/roach88/strata/internal/queryir"
	"github.com/roach88/strata/internal/schema"
)

// BuildFunc builds the plan of one record type.
type BuildFunc func(*schema.Registry, *schema.RecordType) (*JoinPlan, error)

// Cache memoizes join plans per record type of one registry.
//
// The first caller for a type builds the plan; concurrent callers block
// until it is ready and all callers observe the same *JoinPlan. Build
// failures are memoized as well. There is no eviction.
//
// Thread-safety: Cache is safe for concurrent use.
type Cache struct {
	registry *schema.Registry
	build    BuildFunc
	logger   *zap.Logger

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	once sync.Once
	plan *JoinPlan
	err  error
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithBuildFunc replaces Build. Used by tests to count constructions.
func WithBuildFunc(fn BuildFunc) CacheOption {
	return func(c *Cache) {
		c.build = fn
	}
}

// WithLogger sets the logger used to report plan builds.
func WithLogger(logger *zap.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger
	}
}

// NewCache creates an empty plan cache for reg.
func NewCache(reg *schema.Registry, opts ...CacheOption) *Cache {
	c := &Cache{
		registry: reg,
		build:    Build,
		logger:   zap.NewNop(),
		entries:  make(map[string]*cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the registry plans are built from.
func (c *Cache) Registry() *schema.Registry {
	return c.registry
}

// Get returns the plan of rt, building it on first use.
func (c *Cache) Get(rt *schema.RecordType) (*JoinPlan, error) {
	c.mu.Lock()
	e, ok := c.entries[rt.Name]
	if !ok {
		e = &cacheEntry{}
		c.entries[rt.Name] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.plan, e.err = c.build(c.registry, rt)
		if e.err != nil {
			c.logger.Warn("join plan build failed",
				zap.String("type", rt.Name),
				zap.Error(e.err))
			return
		}
		c.logger.Debug("join plan built",
			zap.String("type", rt.Name),
			zap.Strings("joins", e.plan.Aliases()),
			zap.Int("columns", len(e.plan.Columns)))
	})

	return e.plan, e.err
}

// Len returns the number of record types with a plan entry.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Optimize returns the one-shot fetch query of rt restricted by cond.
func Optimize(c *Cache, rt *schema.RecordType, cond queryir.Predicate) (queryir.Select, error) {
	p, err := c.Get(rt)
	if err != nil {
		return queryir.Select{}, err
	}
	return p.Select(cond), nil
}
