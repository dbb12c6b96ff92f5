package world

import (
	"maps"
	"slices"

	"github.com/roach88/simloom/internal/ir"
)

// relationKind holds the triples of one relation type, indexed both ways.
type relationKind struct {
	exclusive bool
	bySource  map[Entity]map[Entity]struct{}
	byTarget  map[Entity]map[Entity]struct{}
}

func newRelationKind(exclusive bool) *relationKind {
	return &relationKind{
		exclusive: exclusive,
		bySource:  make(map[Entity]map[Entity]struct{}),
		byTarget:  make(map[Entity]map[Entity]struct{}),
	}
}

func (k *relationKind) has(source, target Entity) bool {
	_, ok := k.bySource[source][target]
	return ok
}

func (k *relationKind) link(source, target Entity) {
	if k.bySource[source] == nil {
		k.bySource[source] = make(map[Entity]struct{})
	}
	if k.byTarget[target] == nil {
		k.byTarget[target] = make(map[Entity]struct{})
	}
	k.bySource[source][target] = struct{}{}
	k.byTarget[target][source] = struct{}{}
}

func (k *relationKind) unlink(source, target Entity) {
	delete(k.bySource[source], target)
	if len(k.bySource[source]) == 0 {
		delete(k.bySource, source)
	}
	delete(k.byTarget[target], source)
	if len(k.byTarget[target]) == 0 {
		delete(k.byTarget, target)
	}
}

func (k *relationKind) size() int {
	n := 0
	for _, targets := range k.bySource {
		n += len(targets)
	}
	return n
}

// DefineRelation declares a relation type. Redeclaring with a different
// exclusivity is a SchemaError while triples of that type exist.
func (w *World) DefineRelation(kind string, exclusive bool) error {
	if kind == "" {
		return ir.SchemaErrorf("relation", "relation type must not be empty")
	}
	rk, ok := w.relations[kind]
	if !ok {
		w.relations[kind] = newRelationKind(exclusive)
		w.record(func() { delete(w.relations, kind) })
		return nil
	}
	if rk.exclusive == exclusive {
		return nil
	}
	if rk.size() > 0 {
		return ir.SchemaErrorf(kind, "relation already holds triples; cannot change exclusivity")
	}
	prev := rk.exclusive
	rk.exclusive = exclusive
	w.record(func() { rk.exclusive = prev })
	return nil
}

// RelationExclusive reports whether kind is declared and exclusive.
func (w *World) RelationExclusive(kind string) (exclusive, declared bool) {
	rk, ok := w.relations[kind]
	if !ok {
		return false, false
	}
	return rk.exclusive, true
}

// AddRelation stores (kind, source, target). For an exclusive kind any
// existing target of source is replaced. Adding an existing triple is a no-op.
func (w *World) AddRelation(kind string, source, target Entity) error {
	if err := w.checkRelation(kind, source, target); err != nil {
		return err
	}
	rk, ok := w.relations[kind]
	if !ok {
		if err := w.DefineRelation(kind, false); err != nil {
			return err
		}
		rk = w.relations[kind]
	}
	if rk.has(source, target) {
		return nil
	}
	if rk.exclusive {
		for _, old := range slices.Sorted(maps.Keys(rk.bySource[source])) {
			w.unlink(rk, source, old)
		}
	}
	rk.link(source, target)
	w.record(func() { rk.unlink(source, target) })
	return nil
}

// RemoveRelation deletes (kind, source, target) and reports whether it existed.
func (w *World) RemoveRelation(kind string, source, target Entity) (bool, error) {
	if err := w.checkRelation(kind, source, target); err != nil {
		return false, err
	}
	rk, ok := w.relations[kind]
	if !ok || !rk.has(source, target) {
		return false, nil
	}
	w.unlink(rk, source, target)
	return true, nil
}

// Targets returns the targets of source under kind, ascending.
func (w *World) Targets(kind string, source Entity) []Entity {
	rk, ok := w.relations[kind]
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(rk.bySource[source]))
}

// Sources returns the sources pointing at target under kind, ascending.
func (w *World) Sources(kind string, target Entity) []Entity {
	rk, ok := w.relations[kind]
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(rk.byTarget[target]))
}

// RelationKinds returns the declared relation types, sorted.
func (w *World) RelationKinds() []string {
	return slices.Sorted(maps.Keys(w.relations))
}

func (w *World) checkRelation(kind string, source, target Entity) error {
	if kind == "" {
		return ir.SchemaErrorf("relation", "relation type must not be empty")
	}
	if !w.Alive(source) {
		return deadEntity(source)
	}
	if !w.Alive(target) {
		return deadEntity(target)
	}
	return nil
}

func (w *World) unlink(rk *relationKind, source, target Entity) {
	rk.unlink(source, target)
	w.record(func() { rk.link(source, target) })
}

// unlinkAll removes every triple of kind naming id as source or target.
func (w *World) unlinkAll(kind string, id Entity) {
	rk := w.relations[kind]
	for _, target := range slices.Sorted(maps.Keys(rk.bySource[id])) {
		w.unlink(rk, id, target)
	}
	for _, source := range slices.Sorted(maps.Keys(rk.byTarget[id])) {
		w.unlink(rk, source, id)
	}
}
