// Package harness runs scripted DAO scenarios for conformance testing.
//
// # Scenario Format
//
//	name: order_lifecycle
//	description: "Create, update and delete an order"
//	model: ../model          # or an inline `schema: |` CUE source
//	clock: 2024-03-01T12:00:00Z
//	system: {region: eu}
//	steps:
//	  - op: create
//	    type: Customer
//	    payload: {name: Alice}
//	    as: alice
//	  - op: create
//	    type: Order
//	    payload: {customer: {__identifier: $alice}, total: 12.345}
//	    as: o
//	    expect:
//	      result: {status: OPEN, total: 12.35, __version: 1}
//	  - op: update
//	    type: Order
//	    id: $o
//	    payload: {__version: 0, note: late}
//	    expect: {error: CONFLICT, rule: version}
//	assertions:
//	  - {type: count, of: Order, count: 1}
//	  - {type: field, of: Order, id: $o, field: note, value: null}
//
// # Execution
//
// Each scenario runs against a fresh in-memory SQLite database. Each step
// runs in its own transaction, so a failing step leaves no trace in the
// store. Identifiers come from a sequential provider ("id-1", "id-2", ...)
// and the clock advances one second per step, so traces are reproducible
// and can be compared with golden files byte for byte.
package harness
