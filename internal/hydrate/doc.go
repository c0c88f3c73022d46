// Package hydrate turns fetched rows into constructed records.
//
// A Materializer resolves every property binding of a record type against a
// row: columns are read directly, single references are resolved from the
// aliased columns of the same row (or fetched by identity when the reference
// was not joined), collections and aggregates are fetched with secondary
// queries. The resolved payload is handed to a Constructor, which validates it
// and seals the record.
//
// All construction goes through the EntityCache of a RequestContext, so each
// identity is materialized at most once per request, including reference
// cycles and diamond-shaped graphs.
//
// Error taxonomy:
//   - IntegrityError: storage returned NULL or nothing where a value is required
//   - StoreError: a query engine or construction failure, with record context
//   - ErrNotFound: no record has the requested identity
package hydrate
