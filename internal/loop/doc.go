// Package loop orchestrates the per-request state machine:
//
//	RECEIVE_INTENT → SYNTHESIZE → REGISTER → EXECUTE → DIAGNOSE → REPAIR → REPORT
//
// A request carries an intent (or a plan whose next step supplies one),
// world commands, tick batches and a diagnose flag. Synthesis proposals are
// committed entry by entry. A faulting tick batch is diagnosed, the broken
// system is re-synthesized with its last error and current logic, and the
// remaining ticks are retried. Repair is bounded by an explicit counter;
// when it runs out the unresolved fault is returned with the report.
//
// All mutation of the registry and world is serialized through the loop.
// Handle runs a request synchronously; Submit queues it for a single Run
// goroutine. After each request the loop publishes an immutable View for
// read-only consumers.
package loop
