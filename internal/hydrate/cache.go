package hydrate

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/roach88/strata/internal/ir"
)

// MaterializeFunc fetches and constructs one record into shell.
// It must seal shell on success.
type MaterializeFunc func(ctx context.Context, shell *ir.Record) error

// CacheStats counts entity cache outcomes.
type CacheStats struct {
	Hits     int // Finished entry returned
	Misses   int // MaterializeFunc invoked
	Waits    int // Waited for another resolver's in-flight entry
	Borrows  int // In-flight shell returned to break a cycle
	Failures int // Entries evicted after a failure
}

// EntityCache deduplicates record materialization by key within one request.
//
// On a miss an in-flight entry holding a record shell is inserted before the
// MaterializeFunc runs, so every later lookup of the same key observes it:
//   - a lookup from within the entry's own resolution (a reference cycle)
//     returns the unsealed shell, which is sealed when the owner finishes;
//   - a lookup from another goroutine waits for the shared outcome, unless
//     waiting would close a wait-for cycle between resolvers, in which case
//     it returns the shell as well.
//
// A failed entry is removed, so a later lookup retries. Entries that depend
// on a failed entry (they hold its shell or an evicted record) fail or are
// evicted with it.
//
// Thread-safety: EntityCache is safe for concurrent use. Bookkeeping is
// serialized under one mutex; MaterializeFuncs run without it.
type EntityCache struct {
	logger *zap.Logger

	mu      sync.Mutex
	entries map[ir.Key]*entry
	stats   CacheStats
}

type entry struct {
	key      ir.Key
	shell    *ir.Record
	done     chan struct{} // Closed when finished
	finished bool
	err      error // Written before done is closed
	poison   error // Failure of a dependency observed while in flight

	// waitsOn counts resolvers of this entry blocked on another entry.
	waitsOn map[*entry]int

	// dependents are entries whose outcome includes this entry's record.
	dependents map[*entry]struct{}
}

func newEntry(key ir.Key) *entry {
	return &entry{
		key:        key,
		shell:      ir.NewShell(key),
		done:       make(chan struct{}),
		waitsOn:    make(map[*entry]int),
		dependents: make(map[*entry]struct{}),
	}
}

// NewEntityCache creates an empty cache. A nil logger disables logging.
func NewEntityCache(logger *zap.Logger) *EntityCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntityCache{
		logger:  logger,
		entries: make(map[ir.Key]*entry),
	}
}

// resolution path: the in-flight entries the current goroutine is resolving,
// outermost first.
type pathKey struct{}

func pathFrom(ctx context.Context) []*entry {
	path, _ := ctx.Value(pathKey{}).([]*entry)
	return path
}

func withPath(ctx context.Context, path []*entry, e *entry) context.Context {
	next := make([]*entry, len(path)+1)
	copy(next, path)
	next[len(path)] = e
	return context.WithValue(ctx, pathKey{}, next)
}

// GetOrMaterialize returns the record for key, invoking fn only if no entry
// exists for it. fn runs at most once per key while it keeps succeeding.
//
// The returned record may be an unsealed shell when key is part of a
// reference cycle with the caller; it is sealed before the outermost
// resolution of the cycle returns.
func (c *EntityCache) GetOrMaterialize(ctx context.Context, key ir.Key, fn MaterializeFunc) (*ir.Record, error) {
	path := pathFrom(ctx)
	var parent *entry
	if len(path) > 0 {
		parent = path[len(path)-1]
	}

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = newEntry(key)
		c.entries[key] = e
		c.depend(parent, e)
		c.stats.Misses++
		c.mu.Unlock()

		c.logger.Debug("entity cache miss", zap.Stringer("key", key))
		return c.run(ctx, path, e, fn)
	}

	c.depend(parent, e)

	// Entries left in the map after finishing are successes
	if e.finished {
		c.stats.Hits++
		c.mu.Unlock()
		return e.shell, nil
	}

	if c.reaches(e, path) {
		c.stats.Borrows++
		c.mu.Unlock()
		c.logger.Debug("entity cache cycle", zap.Stringer("key", key))
		return e.shell, nil
	}

	for _, p := range path {
		p.waitsOn[e]++
	}
	c.stats.Waits++
	c.mu.Unlock()

	select {
	case <-e.done:
	case <-ctx.Done():
	}

	c.mu.Lock()
	for _, p := range path {
		p.waitsOn[e]--
		if p.waitsOn[e] <= 0 {
			delete(p.waitsOn, e)
		}
	}
	c.mu.Unlock()

	select {
	case <-e.done:
	default:
		return nil, ctx.Err()
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.shell, nil
}

// run invokes fn for a fresh entry and publishes the outcome.
func (c *EntityCache) run(ctx context.Context, path []*entry, e *entry, fn MaterializeFunc) (*ir.Record, error) {
	err := fn(withPath(ctx, path, e), e.shell)

	c.mu.Lock()
	if err == nil && e.poison != nil {
		err = e.poison
	}
	if err == nil && !e.shell.Sealed() {
		err = fmt.Errorf("materialize %s: record was not constructed", e.key)
	}
	e.finished = true
	if err != nil {
		e.err = err
		c.evict(e, err)
	}
	close(e.done)
	c.mu.Unlock()

	if err != nil {
		c.logger.Debug("entity cache failure", zap.Stringer("key", e.key), zap.Error(err))
		return nil, err
	}
	return e.shell, nil
}

// depend records that parent's outcome includes e's record.
// Must be called with c.mu held.
func (c *EntityCache) depend(parent, e *entry) {
	if parent == nil || parent == e {
		return
	}
	e.dependents[parent] = struct{}{}
}

// reaches reports whether waiting on from could deadlock: from, or an entry
// it transitively waits on, is being resolved by the caller.
// Must be called with c.mu held.
func (c *EntityCache) reaches(from *entry, path []*entry) bool {
	if len(path) == 0 {
		return false
	}
	onPath := make(map[*entry]bool, len(path))
	for _, p := range path {
		onPath[p] = true
	}

	seen := make(map[*entry]bool)
	stack := []*entry{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if onPath[n] {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		for next := range n.waitsOn {
			stack = append(stack, next)
		}
	}
	return false
}

// evict removes a failed entry and invalidates its dependents: in-flight
// dependents are poisoned and fail when they finish, finished dependents are
// removed from the cache (and their own dependents invalidated).
// Must be called with c.mu held.
func (c *EntityCache) evict(failed *entry, cause error) {
	if c.entries[failed.key] != failed {
		return
	}
	delete(c.entries, failed.key)
	c.stats.Failures++

	for d := range failed.dependents {
		if !d.finished {
			if d.poison == nil {
				d.poison = fmt.Errorf("%s depends on %s: %w", d.key, failed.key, cause)
			}
			continue
		}
		c.evict(d, cause)
	}
}

// Len returns the number of cached and in-flight entries.
func (c *EntityCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *EntityCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
