package world

import (
	"fmt"
	"maps"
	"slices"
)

// Snapshot is a serializable copy of a world's contents.
type Snapshot struct {
	NextID    Entity           `json:"next_id" yaml:"next_id"`
	Entities  []EntityRecord   `json:"entities" yaml:"entities"`
	Kinds     []RelationKind   `json:"relation_kinds,omitempty" yaml:"relation_kinds,omitempty"`
	Relations []RelationRecord `json:"relations,omitempty" yaml:"relations,omitempty"`
}

// EntityRecord is one entity and its component values.
type EntityRecord struct {
	ID         Entity                    `json:"id" yaml:"id"`
	Components map[string]map[string]any `json:"components,omitempty" yaml:"components,omitempty"`
}

// RelationKind is a declared relation type.
type RelationKind struct {
	Kind      string `json:"kind" yaml:"kind"`
	Exclusive bool   `json:"exclusive" yaml:"exclusive"`
}

// RelationRecord is one relation triple.
type RelationRecord struct {
	Kind   string `json:"kind" yaml:"kind"`
	Source Entity `json:"source" yaml:"source"`
	Target Entity `json:"target" yaml:"target"`
}

// Snapshot copies the world. Entities, kinds and triples are sorted so equal
// worlds produce equal snapshots.
func (w *World) Snapshot() Snapshot {
	snap := Snapshot{NextID: w.next, Entities: []EntityRecord{}}
	for _, id := range w.Entities() {
		rec := EntityRecord{ID: id}
		for _, name := range w.Components(id) {
			if rec.Components == nil {
				rec.Components = make(map[string]map[string]any)
			}
			row := w.columns[name].row(id)
			vals := make(map[string]any, len(row))
			for prop, v := range row {
				vals[prop] = v.Interface()
			}
			rec.Components[name] = vals
		}
		snap.Entities = append(snap.Entities, rec)
	}
	for _, kind := range w.RelationKinds() {
		rk := w.relations[kind]
		snap.Kinds = append(snap.Kinds, RelationKind{Kind: kind, Exclusive: rk.exclusive})
		for _, src := range slices.Sorted(maps.Keys(rk.bySource)) {
			for _, dst := range slices.Sorted(maps.Keys(rk.bySource[src])) {
				snap.Relations = append(snap.Relations, RelationRecord{Kind: kind, Source: src, Target: dst})
			}
		}
	}
	return snap
}

// Restore replaces the world's contents with snap. Component values are
// re-validated against the current schemas. On error the world is unchanged.
// Restore must not be called while a Txn is open.
func (w *World) Restore(snap Snapshot) error {
	fresh := New(w.schemas)
	for _, rec := range snap.Entities {
		if rec.ID == None {
			return fmt.Errorf("restore: entity id 0 is reserved")
		}
		if fresh.Alive(rec.ID) {
			return fmt.Errorf("restore: duplicate entity %s", rec.ID)
		}
		fresh.alive[rec.ID] = struct{}{}
		if rec.ID >= fresh.next {
			fresh.next = rec.ID + 1
		}
		for _, name := range slices.Sorted(maps.Keys(rec.Components)) {
			if err := fresh.AttachComponent(rec.ID, name, rec.Components[name]); err != nil {
				return fmt.Errorf("restore entity %s: %w", rec.ID, err)
			}
		}
	}
	if snap.NextID > fresh.next {
		fresh.next = snap.NextID
	}
	for _, k := range snap.Kinds {
		if err := fresh.DefineRelation(k.Kind, k.Exclusive); err != nil {
			return fmt.Errorf("restore relation kind: %w", err)
		}
	}
	for _, r := range snap.Relations {
		if err := fresh.AddRelation(r.Kind, r.Source, r.Target); err != nil {
			return fmt.Errorf("restore relation %s: %w", r.Kind, err)
		}
	}

	w.next = fresh.next
	w.alive = fresh.alive
	w.columns = fresh.columns
	w.relations = fresh.relations
	w.undo = nil
	w.depth = 0
	return nil
}
