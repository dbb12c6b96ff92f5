// Package engine runs registered systems against a world one tick at a time.
//
// A tick resolves the system from the registry, compiles its logic (cached
// per logic hash), selects every entity holding all required components in
// ascending id order and runs the logic inside a world journal. On success
// the journal is committed and the registry records the run. On any failure
// (compile error, panic, primitive misuse, op budget, timeout, returned
// error) the journal is rolled back so the tick leaves no partial writes,
// the fault is recorded as the system's lastError and a *RuntimeError is
// returned. A faulting tick never takes the host down.
//
// Limits:
//
// Each tick runs under a wall-clock timeout and a primitive op budget. When
// the timeout fires the tick's context is revoked before the world is
// touched again, and the cached program is discarded.
//
// The engine does not serialize callers. Mutation of a world is expected to
// come from one goroutine (the cognitive loop).
package engine
