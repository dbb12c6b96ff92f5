package store

import (
	"context"
	"fmt"

	"github.com/roach88/simloom/internal/ir"
	"github.com/roach88/simloom/internal/loop"
)

// FromView converts a published loop view into a workspace.
func FromView(id string, v *loop.View) Workspace {
	ws := Workspace{
		ID:       id,
		Registry: v.Registry,
		World:    v.World,
		Aliases:  v.Aliases,
		Tick:     v.Tick,
	}
	if h, err := ir.RegistryHash(v.Registry); err == nil {
		ws.RegistryHash = h
	}
	return ws
}

// Sink returns a loop.Sink that saves the workspace and logs the report
// after every request.
func (s *Store) Sink(id string) loop.Sink {
	return &sink{store: s, id: id}
}

type sink struct {
	store *Store
	id    string
}

func (k *sink) Save(ctx context.Context, rep *loop.Report, view *loop.View) error {
	if err := k.store.SaveWorkspace(ctx, k.id, FromView(k.id, view)); err != nil {
		return err
	}
	raw, err := ir.MarshalCanonical(rep)
	if err != nil {
		return fmt.Errorf("marshal report %s: %w", rep.RequestID, err)
	}
	return k.store.AppendReport(ctx, k.id, rep.RequestID, raw)
}
