// Package harness runs YAML scenarios against a compiled program and
// records a deterministic trace.
//
// # Scenario Format
//
//	name: cart_checkout
//	description: "What this scenario validates"
//	program: ../cart          # program directory, relative to the scenario file
//	observe:
//	  - total                 # a named getter
//	  - [taxPercent]          # a keypath
//	steps:
//	  - dispatch: addItem
//	    payload: {name: "item 1", price: 10}
//	  - batch:
//	      - dispatch: setTax
//	        payload: 5
//	  - expect: {getter: total, value: 10.5}
//	  - reset: true
//	  - serialize_roundtrip: true
//	  - dispatch: ""
//	    error: CONTRACT_VIOLATION
//	assertions:
//	  - type: trace_count
//	    getter: total
//	    count: 2
//
// # Assertion Types
//
//   - trace_contains: a dispatch of action with a payload that matches (subset)
//   - trace_order: the first dispatches of actions appear in this order
//   - trace_count: exactly count dispatches of action, or notifications of getter
//   - final_state: the value at keypath matches expect (subset for maps)
//
// # Trace
//
// The trace interleaves what the harness did with what the reactor
// reported: dispatch, batch, reset and serialize_roundtrip events come
// from steps; commit events come from the reactor's commit hook and notify
// events from the observers. Every event carries a sequence number from
// testutil.Sequence, so the same scenario always produces the same trace,
// which golden files pin down.
package harness
