// Package sandbox compiles system logic and runs it against a world.
//
// Logic is Go source interpreted by yaegi. The interpreter sees no standard
// library except math; the only other importable package is "sim", which
// exposes the world primitives through *sim.Ctx:
//
//	Query(comps ...string) []Entity
//	Has(e, comp) bool
//	Num/Str/Bool/Ref(e, comp, prop)
//	Set(e, comp, prop, value)
//	Attach(e, comp, values) / Detach(e, comp)
//	Spawn() Entity / Destroy(e)
//	Relate(kind, src, dst) / Unrelate(kind, src, dst) bool
//	Targets(kind, src) / Sources(kind, dst)
//	Tick() int64 / Log(msg) / Error(msg) error
//
// Logic is either a statement body, wrapped into
//
//	func Tick(w *sim.Ctx, entities []sim.Entity) error
//
// or a full file that defines Tick itself along with any helpers.
//
// Every primitive counts against the tick's op budget. Misuse (reading a
// component the entity lacks, a type mismatch, a dead entity) panics inside
// the interpreter and surfaces from Program.Run as a *Fault carrying the
// logic line where it happened.
package sandbox
