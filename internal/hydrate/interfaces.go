package hydrate

import (
	"context"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/queryir"
	"github.com/roach88/strata/internal/schema"
)

// QueryEngine executes queries for the materializer.
//
// Implementations are scoped to one unit of work (typically a transaction)
// and must be safe for concurrent use: collection and aggregate sub-fetches
// are issued from several goroutines.
type QueryEngine interface {
	// Fetch runs a select and returns its rows labeled by ColumnRef.Label.
	Fetch(ctx context.Context, q queryir.Select) ([]ir.Row, error)

	// Aggregate runs an aggregate query, labeled by Aggregate.Label.
	Aggregate(ctx context.Context, q queryir.Aggregate) ([]ir.Row, error)
}

// Constructor validates a resolved payload and seals the record shell.
// schema.Constructor is the default implementation.
type Constructor interface {
	Construct(rt *schema.RecordType, into *ir.Record, payload map[string]ir.Value) error
}
