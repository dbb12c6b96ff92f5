package sandbox

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/roach88/simloom/internal/ir"
	"github.com/roach88/simloom/internal/world"
)

// Entity is the entity id type seen by logic as sim.Entity.
type Entity = world.Entity

// Primitives lists the Ctx methods logic is expected to call.
var Primitives = []string{
	"Query", "Has", "Num", "Str", "Bool", "Ref", "Set", "Attach", "Detach",
	"Spawn", "Destroy", "Relate", "Unrelate", "Targets", "Sources",
	"Tick", "Log", "Error",
}

// errRevoked is raised by any primitive called after the tick ended.
var errRevoked = errors.New("tick context revoked")

// primitiveFault carries a world error out of the interpreter as a panic.
type primitiveFault struct {
	err error
}

// Ctx is the handle logic uses to reach the world during one tick.
//
// Every method is a primitive: it is counted against the op budget and
// panics on misuse. Revoke cuts the handle off so an abandoned goroutine can
// no longer touch the world.
type Ctx struct {
	mu      sync.Mutex
	w       *world.World
	system  string
	tick    int64
	budget  *OpBudget
	revoked bool
	logs    []string
}

// NewCtx creates a handle over w for one tick of system.
// maxOps bounds the primitive calls; zero means unbounded.
func NewCtx(w *world.World, system string, tick int64, maxOps int) *Ctx {
	return &Ctx{
		w:      w,
		system: system,
		tick:   tick,
		budget: NewOpBudget(maxOps),
	}
}

// Revoke ends the handle. Primitives called afterwards panic.
func (c *Ctx) Revoke() {
	c.mu.Lock()
	c.revoked = true
	c.mu.Unlock()
}

// Ops returns the number of primitive calls made.
func (c *Ctx) Ops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.budget.Current()
}

// Logs returns the messages passed to Log.
func (c *Ctx) Logs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.logs...)
}

// enter locks the handle for one primitive. Callers defer c.mu.Unlock.
func (c *Ctx) enter() {
	c.mu.Lock()
	if c.revoked {
		c.mu.Unlock()
		panic(errRevoked)
	}
	if err := c.budget.Check(c.system); err != nil {
		c.mu.Unlock()
		panic(err)
	}
}

func (c *Ctx) fail(err error) {
	panic(primitiveFault{err: err})
}

// Query returns the entities holding every named component, ascending.
func (c *Ctx) Query(comps ...string) []Entity {
	c.enter()
	defer c.mu.Unlock()
	return c.w.Query(comps...)
}

// Has reports whether e holds comp.
func (c *Ctx) Has(e Entity, comp string) bool {
	c.enter()
	defer c.mu.Unlock()
	return c.w.HasComponent(e, comp)
}

func (c *Ctx) get(e Entity, comp, prop string, want ir.PropertyType) ir.Value {
	v, err := c.w.GetComponentValue(e, comp, prop)
	if err != nil {
		c.fail(err)
	}
	if v.Type() != want {
		c.fail(ir.SchemaErrorf(comp, "property %q is %s, not %s", prop, v.Type(), want))
	}
	return v
}

// Num reads a number property.
func (c *Ctx) Num(e Entity, comp, prop string) float64 {
	c.enter()
	defer c.mu.Unlock()
	return c.get(e, comp, prop, ir.TypeNumber).Float()
}

// Str reads a string property.
func (c *Ctx) Str(e Entity, comp, prop string) string {
	c.enter()
	defer c.mu.Unlock()
	return c.get(e, comp, prop, ir.TypeString).Text()
}

// Bool reads a boolean property.
func (c *Ctx) Bool(e Entity, comp, prop string) bool {
	c.enter()
	defer c.mu.Unlock()
	return c.get(e, comp, prop, ir.TypeBoolean).Truth()
}

// Ref reads an entity property.
func (c *Ctx) Ref(e Entity, comp, prop string) Entity {
	c.enter()
	defer c.mu.Unlock()
	return Entity(c.get(e, comp, prop, ir.TypeEntity).Entity())
}

// Set writes one property.
func (c *Ctx) Set(e Entity, comp, prop string, v any) {
	c.enter()
	defer c.mu.Unlock()
	if err := c.w.SetComponentValue(e, comp, prop, v); err != nil {
		c.fail(err)
	}
}

// Attach attaches comp to e, overwriting any previous values.
func (c *Ctx) Attach(e Entity, comp string, values map[string]any) {
	c.enter()
	defer c.mu.Unlock()
	if err := c.w.AttachComponent(e, comp, values); err != nil {
		c.fail(err)
	}
}

// Detach removes comp from e.
func (c *Ctx) Detach(e Entity, comp string) {
	c.enter()
	defer c.mu.Unlock()
	if err := c.w.DetachComponent(e, comp); err != nil {
		c.fail(err)
	}
}

// Spawn creates an entity.
func (c *Ctx) Spawn() Entity {
	c.enter()
	defer c.mu.Unlock()
	return c.w.CreateEntity()
}

// Destroy removes e with its components and relations.
func (c *Ctx) Destroy(e Entity) {
	c.enter()
	defer c.mu.Unlock()
	if err := c.w.DestroyEntity(e); err != nil {
		c.fail(err)
	}
}

// Relate adds the triple (kind, src, dst).
func (c *Ctx) Relate(kind string, src, dst Entity) {
	c.enter()
	defer c.mu.Unlock()
	if err := c.w.AddRelation(kind, src, dst); err != nil {
		c.fail(err)
	}
}

// Unrelate removes the triple and reports whether it existed.
func (c *Ctx) Unrelate(kind string, src, dst Entity) bool {
	c.enter()
	defer c.mu.Unlock()
	ok, err := c.w.RemoveRelation(kind, src, dst)
	if err != nil {
		c.fail(err)
	}
	return ok
}

// Targets lists the targets of src under kind.
func (c *Ctx) Targets(kind string, src Entity) []Entity {
	c.enter()
	defer c.mu.Unlock()
	return c.w.Targets(kind, src)
}

// Sources lists the sources pointing at dst under kind.
func (c *Ctx) Sources(kind string, dst Entity) []Entity {
	c.enter()
	defer c.mu.Unlock()
	return c.w.Sources(kind, dst)
}

// Tick returns the current tick number.
func (c *Ctx) Tick() int64 {
	c.enter()
	defer c.mu.Unlock()
	return c.tick
}

// Log records a message for the tick report.
func (c *Ctx) Log(msg string) {
	c.enter()
	defer c.mu.Unlock()
	c.logs = append(c.logs, msg)
	slog.Debug("system log", "system", c.system, "tick", c.tick, "msg", msg)
}

// Error builds an error for Tick to return.
func (c *Ctx) Error(msg string) error {
	return errors.New(msg)
}
