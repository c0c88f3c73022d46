// Package plan builds and caches join plans.
//
// A JoinPlan fetches a record type together with all of its direct single
// references in one query: the base table is selected with every column, and
// each single reference property (nullable or not) adds a LEFT JOIN against
// an aliased copy of the referenced table. The alias is "Owner->property",
// so two properties referencing the same type never collide.
//
// Only one level is joined. References of a referenced type are resolved by
// the materializer later, by identity.
//
// Plans are immutable. Cache builds each type's plan at most once and shares
// it across goroutines.
package plan
