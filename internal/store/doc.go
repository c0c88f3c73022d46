// Package store is the SQLite query engine of strata.
//
// A Store owns one SQLite database configured for a single writer:
//   - WAL mode for concurrent reads during writes
//   - synchronous=NORMAL (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - foreign key enforcement
//
// ApplySchema creates the tables of a schema.Registry. All reads and writes
// of one request run in a Tx, which implements hydrate.QueryEngine by
// compiling query IR with querysql and decoding columns with ir.Coerce.
//
// Every Select carries an ORDER BY, so results are deterministic.
package store
