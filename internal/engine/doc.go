// Package engine is the entry point of strata.
//
// An Engine binds a Store and a schema Registry together with a shared join
// plan cache and materializer. Work happens in requests:
//
//	err := eng.Request(ctx, func(ctx context.Context, s *engine.Session) error {
//		order, err := s.Get(ctx, "Order", id)
//		...
//	})
//
// Each request runs in one SQLite transaction with a fresh request context,
// so a record is materialized at most once per request and an error anywhere
// rolls back all work of the request (all-or-nothing).
//
// The plan cache is shared by all requests of an Engine: each record type's
// join plan is built once.
package engine
