package world

import (
	"iter"
	"maps"
	"slices"
	"strconv"

	"github.com/roach88/simloom/internal/ir"
)

// Entity is an opaque entity id. Ids start at 1 and are never reused while
// the world lives; 0 is the "no entity" reference.
type Entity uint64

// None is the null entity reference.
const None Entity = 0

// String implements fmt.Stringer.
func (e Entity) String() string {
	return "#" + strconv.FormatUint(uint64(e), 10)
}

// Schemas resolves component definitions by name.
type Schemas interface {
	Component(name string) (ir.ComponentDef, bool)
}

// column stores one component: one cell map per property, in declaration order.
type column struct {
	def     ir.ComponentDef
	index   map[string]int
	members map[Entity]struct{}
	cells   []map[Entity]ir.Value
}

func newColumn(def ir.ComponentDef) *column {
	c := &column{
		def:     def.Clone(),
		index:   make(map[string]int, len(def.Properties)),
		members: make(map[Entity]struct{}),
		cells:   make([]map[Entity]ir.Value, len(def.Properties)),
	}
	for i, p := range def.Properties {
		if _, dup := c.index[p.Name]; !dup {
			c.index[p.Name] = i
		}
		c.cells[i] = make(map[Entity]ir.Value)
	}
	return c
}

// row returns the entity's values keyed by property name.
func (c *column) row(id Entity) map[string]ir.Value {
	out := make(map[string]ir.Value, len(c.index))
	for name, i := range c.index {
		out[name] = c.cells[i][id]
	}
	return out
}

// World is the entity/component/relation store.
type World struct {
	schemas   Schemas
	next      Entity
	alive     map[Entity]struct{}
	columns   map[string]*column
	relations map[string]*relationKind

	undo  []func()
	depth int
}

// New creates an empty world resolving schemas through s.
func New(s Schemas) *World {
	return &World{
		schemas:   s,
		next:      1,
		alive:     make(map[Entity]struct{}),
		columns:   make(map[string]*column),
		relations: make(map[string]*relationKind),
	}
}

// CreateEntity allocates a fresh entity id.
func (w *World) CreateEntity() Entity {
	id := w.next
	w.next++
	w.alive[id] = struct{}{}
	w.record(func() {
		delete(w.alive, id)
		w.next = id
	})
	return id
}

// Alive reports whether id names a live entity.
func (w *World) Alive(id Entity) bool {
	_, ok := w.alive[id]
	return ok
}

// Len returns the number of live entities.
func (w *World) Len() int {
	return len(w.alive)
}

// Entities returns every live entity in ascending order.
func (w *World) Entities() []Entity {
	return slices.Sorted(maps.Keys(w.alive))
}

// DestroyEntity frees every column slot held by id and removes all relation
// triples naming it as source or target.
func (w *World) DestroyEntity(id Entity) error {
	if !w.Alive(id) {
		return deadEntity(id)
	}
	for _, name := range slices.Sorted(maps.Keys(w.columns)) {
		if w.columns[name].has(id) {
			w.detach(id, name)
		}
	}
	for _, kind := range slices.Sorted(maps.Keys(w.relations)) {
		w.unlinkAll(kind, id)
	}
	delete(w.alive, id)
	w.record(func() { w.alive[id] = struct{}{} })
	return nil
}

func (c *column) has(id Entity) bool {
	_, ok := c.members[id]
	return ok
}

// AttachComponent attaches (or overwrites) component name on id.
// Properties absent from values take their declared default.
func (w *World) AttachComponent(id Entity, name string, values map[string]any) error {
	if !w.Alive(id) {
		return deadEntity(id)
	}
	col, err := w.column(name)
	if err != nil {
		return err
	}

	for _, prop := range slices.Sorted(maps.Keys(values)) {
		if _, ok := col.index[prop]; !ok {
			return ir.SchemaErrorf(name, "unknown property %q", prop)
		}
	}

	row := make([]ir.Value, len(col.cells))
	for i, p := range col.def.Properties {
		if col.index[p.Name] != i {
			continue
		}
		prop := p.Name
		var (
			v   ir.Value
			err error
		)
		if raw, ok := values[prop]; ok {
			v, err = ir.Coerce(p.Type, normalize(raw))
		} else {
			v, err = ir.DefaultFor(p)
		}
		if err != nil {
			return ir.SchemaErrorf(name, "property %q: %v", prop, err)
		}
		row[i] = v
	}

	if col.has(id) {
		prev := col.row(id)
		w.record(func() {
			for prop, v := range prev {
				col.cells[col.index[prop]][id] = v
			}
		})
	} else {
		col.members[id] = struct{}{}
		w.record(func() {
			delete(col.members, id)
			for _, cells := range col.cells {
				delete(cells, id)
			}
		})
	}
	for _, i := range col.index {
		col.cells[i][id] = row[i]
	}
	return nil
}

// DetachComponent removes component name from id. Detaching a component the
// entity does not hold is an AccessError wrapping ir.ErrAbsent.
func (w *World) DetachComponent(id Entity, name string) error {
	if !w.Alive(id) {
		return deadEntity(id)
	}
	col, ok := w.columns[name]
	if !ok || !col.has(id) {
		return ir.Absent(uint64(id), name)
	}
	w.detach(id, name)
	return nil
}

func (w *World) detach(id Entity, name string) {
	col := w.columns[name]
	prev := col.row(id)
	delete(col.members, id)
	for _, cells := range col.cells {
		delete(cells, id)
	}
	w.record(func() {
		col.members[id] = struct{}{}
		for prop, v := range prev {
			col.cells[col.index[prop]][id] = v
		}
	})
}

// HasComponent reports whether id currently holds component name.
func (w *World) HasComponent(id Entity, name string) bool {
	col, ok := w.columns[name]
	return ok && col.has(id)
}

// Components returns the names of the components id holds, sorted.
func (w *World) Components(id Entity) []string {
	var names []string
	for name, col := range w.columns {
		if col.has(id) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// GetComponentValue reads one property. Reading a component the entity never
// had returns an AccessError that matches ir.ErrAbsent.
func (w *World) GetComponentValue(id Entity, comp, prop string) (ir.Value, error) {
	if !w.Alive(id) {
		return ir.Value{}, deadEntity(id)
	}
	col, ok := w.columns[comp]
	if !ok || !col.has(id) {
		return ir.Value{}, ir.Absent(uint64(id), comp)
	}
	i, ok := col.index[prop]
	if !ok {
		return ir.Value{}, ir.SchemaErrorf(comp, "unknown property %q", prop)
	}
	return col.cells[i][id], nil
}

// ComponentValues returns every property of comp on id.
func (w *World) ComponentValues(id Entity, comp string) (map[string]ir.Value, error) {
	if !w.Alive(id) {
		return nil, deadEntity(id)
	}
	col, ok := w.columns[comp]
	if !ok || !col.has(id) {
		return nil, ir.Absent(uint64(id), comp)
	}
	return col.row(id), nil
}

// SetComponentValue writes one property, type-checked against the schema.
func (w *World) SetComponentValue(id Entity, comp, prop string, v any) error {
	if !w.Alive(id) {
		return deadEntity(id)
	}
	col, ok := w.columns[comp]
	if !ok || !col.has(id) {
		return ir.Absent(uint64(id), comp)
	}
	i, ok := col.index[prop]
	if !ok {
		return ir.SchemaErrorf(comp, "unknown property %q", prop)
	}
	val, err := ir.Coerce(col.def.Properties[i].Type, normalize(v))
	if err != nil {
		return ir.SchemaErrorf(comp, "property %q: %v", prop, err)
	}
	prev := col.cells[i][id]
	col.cells[i][id] = val
	w.record(func() { col.cells[i][id] = prev })
	return nil
}

// QueryEntities yields, in ascending id order, every entity holding all of
// the required components. Each iteration performs a fresh scan. With no
// arguments every live entity is yielded.
func (w *World) QueryEntities(required ...string) iter.Seq[Entity] {
	required = slices.Clone(required)
	return func(yield func(Entity) bool) {
		for _, id := range w.match(required) {
			if !yield(id) {
				return
			}
		}
	}
}

// Query is QueryEntities collected into a slice.
func (w *World) Query(required ...string) []Entity {
	return w.match(required)
}

func (w *World) match(required []string) []Entity {
	if len(required) == 0 {
		return w.Entities()
	}

	cols := make([]*column, 0, len(required))
	for _, name := range required {
		col, ok := w.columns[name]
		if !ok {
			return nil
		}
		cols = append(cols, col)
	}
	smallest := slices.MinFunc(cols, func(a, b *column) int {
		return len(a.members) - len(b.members)
	})

	var out []Entity
	for id := range smallest.members {
		if !w.Alive(id) {
			continue
		}
		all := true
		for _, col := range cols {
			if !col.has(id) {
				all = false
				break
			}
		}
		if all {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// DropComponent removes the column for name and every slot in it.
// Dropping a component with no column is a no-op.
func (w *World) DropComponent(name string) {
	col, ok := w.columns[name]
	if !ok {
		return
	}
	delete(w.columns, name)
	w.record(func() { w.columns[name] = col })
}

// column returns the column for name, creating it from the schema on first use.
// The schema is consulted on every call, so a component unregistered without
// DropComponent can no longer be attached.
func (w *World) column(name string) (*column, error) {
	var (
		def ir.ComponentDef
		ok  bool
	)
	if w.schemas != nil {
		def, ok = w.schemas.Component(name)
	}
	if !ok {
		return nil, ir.SchemaErrorf(name, "component is not registered")
	}
	if col, ok := w.columns[name]; ok {
		return col, nil
	}
	col := newColumn(def)
	w.columns[name] = col
	w.record(func() { delete(w.columns, name) })
	return col, nil
}

// normalize maps world-level types onto the scalars ir.Coerce understands.
func normalize(v any) any {
	switch x := v.(type) {
	case Entity:
		return uint64(x)
	default:
		return v
	}
}

func deadEntity(id Entity) error {
	return &ir.Error{
		Code:    ir.CodeAccess,
		Subject: id.String(),
		Message: "entity is not alive",
	}
}
