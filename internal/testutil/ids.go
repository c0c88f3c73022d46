package testutil

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ID returns a deterministic UUIDv7-shaped identity for n.
//
// Example: ID(1) → "00000000-0000-7000-8000-000000000001"
func ID(n int) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("00000000-0000-7000-8000-%012d", n))
}

// FixedRequestIDGenerator returns predetermined request ids for testing.
//
// Once the sequence is exhausted the last id is repeated. With no ids it
// always returns ID(0).
//
// Thread-safety: FixedRequestIDGenerator is safe for concurrent use.
type FixedRequestIDGenerator struct {
	mu  sync.Mutex
	ids []uuid.UUID
	idx int
}

// NewFixedRequestIDGenerator creates a generator returning ids in order.
func NewFixedRequestIDGenerator(ids ...uuid.UUID) *FixedRequestIDGenerator {
	if len(ids) == 0 {
		ids = []uuid.UUID{ID(0)}
	}
	return &FixedRequestIDGenerator{ids: ids}
}

// Generate returns the next predetermined id.
//
// Implements hydrate.RequestIDGenerator.
func (g *FixedRequestIDGenerator) Generate() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.ids[g.idx]
	if g.idx < len(g.ids)-1 {
		g.idx++
	}
	return id
}
