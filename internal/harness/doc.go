// Package harness runs scripted conversations with the loop as
// conformance tests.
//
// A scenario supplies the synthesizer's answers up front, sends a
// sequence of requests through a fresh loop and checks each report and
// the final registry, world and store.
//
// # Scenario Format
//
//	name: drift_right
//	description: "Movers drift right after one synthesis round"
//	synthesis:
//	  - components:
//	      - name: Position
//	        properties: [{name: x, type: number}]
//	    systems:
//	      - name: Move
//	        requires: [Position]
//	        logic: |
//	          for _, e := range entities {
//	              w.Set(e, "Position", "x", w.Num(e, "Position", "x")+1)
//	          }
//	  - error: "model unavailable"
//	flow:
//	  - request:
//	      intent: "entities drift right"
//	      commands:
//	        - {op: create, as: mover, components: {Position: {x: 0}}}
//	      ticks: [{system: Move, count: 3}]
//	    expect:
//	      failed: false
//	      registered: [Position, Move]
//	assertions:
//	  - {type: entity_value, entity: mover, component: Position, property: x, value: 3}
//	  - {type: run_count, system: Move, count: 3}
//
// Synthesis steps are consumed in order by both synthesis and repair
// calls. A step is a set of definitions, a raw payload, an error or
// "block: true", which hangs until the synthesis timeout.
//
// # Assertion Types
//
//   - entity_value: a property of an aliased or numbered entity
//   - entity_count: number of live entities
//   - registered, unregistered: a component or system name
//   - run_count: successful ticks recorded on a system
//   - broken: a system diagnoses as broken, optionally with exact missing components
//   - healthy: no system diagnoses as broken
//   - synthesis_count: synthesizer calls made, repairs included
//   - stored_reports: reports persisted for the scenario's workspace
//
// # Deterministic Testing
//
// Each run uses an in-memory SQLite store, a fresh registry and world,
// and request ids "req-1", "req-2", ... The trace keeps only stable fields
// of each report, so it can be compared against golden files with
// RunWithGolden.
package harness
