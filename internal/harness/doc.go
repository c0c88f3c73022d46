// Package harness runs materialization scenarios against a fresh database.
//
// A scenario names a CUE schema, seeds fixtures and issues record lookups,
// each in its own request, checking the rendered record trees.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: order_lookup
//	description: "Order with customer, line items and rating"
//	schema: ../schema            # CUE package directory
//	fixtures:
//	  - ../fixtures/shop.yaml
//	steps:
//	  - get: Order
//	    id: 00000000-0000-7000-8000-000000000010
//	    expect:
//	      record: { total: 42, customer: { name: Ada } }
//	  - get: Order
//	    id: 00000000-0000-7000-8000-000000000099
//	    expect:
//	      error: not_found
//	assertions:
//	  - type: materialized
//	    step: 0
//	    count: 4
//	  - type: row_count
//	    table: orders
//	    count: 2
//
// Paths are relative to the scenario file. A step without id loads all
// records of the type (up to limit). Record expectations use subset
// semantics: only the listed properties are compared, recursively.
//
// # Assertion Types
//
//   - materialized: the number of records constructed by one step's request
//   - row_count: the number of rows of a table after all steps
//
// # Deterministic Testing
//
// Each scenario runs on an in-memory SQLite database with fixed request ids,
// so snapshots of the record trees can be compared against golden files.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/order_lookup.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
