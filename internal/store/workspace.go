package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/simloom/internal/ir"
	"github.com/roach88/simloom/internal/world"
)

// Workspace is the persisted state of one loop session.
type Workspace struct {
	ID           string                  `json:"id"`
	Registry     ir.RegistrySnapshot     `json:"registry"`
	World        world.Snapshot          `json:"world"`
	Aliases      map[string]world.Entity `json:"aliases"`
	Tick         int64                   `json:"tick"`
	RegistryHash string                  `json:"registry_hash"`
	SavedAt      time.Time               `json:"saved_at"`
}

// WorkspaceInfo summarizes a stored workspace for listings.
type WorkspaceInfo struct {
	ID           string    `json:"id"`
	Tick         int64     `json:"tick"`
	RegistryHash string    `json:"registry_hash"`
	Reports      int       `json:"reports"`
	SavedAt      time.Time `json:"saved_at"`
}

// SaveWorkspace writes ws under id, replacing any previous copy.
// Reports already logged for id are kept.
func (s *Store) SaveWorkspace(ctx context.Context, id string, ws Workspace) error {
	if id == "" {
		return ir.SchemaErrorf("workspace", "id is required")
	}
	registryJSON, err := marshalCanonical("registry", ws.Registry)
	if err != nil {
		return fmt.Errorf("save workspace %s: %w", id, err)
	}
	worldJSON, err := marshalCanonical("world", ws.World)
	if err != nil {
		return fmt.Errorf("save workspace %s: %w", id, err)
	}
	aliases := ws.Aliases
	if aliases == nil {
		aliases = map[string]world.Entity{}
	}
	aliasJSON, err := marshalCanonical("aliases", aliases)
	if err != nil {
		return fmt.Errorf("save workspace %s: %w", id, err)
	}
	hash := ws.RegistryHash
	if hash == "" {
		if hash, err = ir.RegistryHash(ws.Registry); err != nil {
			return fmt.Errorf("save workspace %s: %w", id, err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workspaces
		(id, registry, world, aliases, tick, registry_hash, ir_version, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			registry = excluded.registry,
			world = excluded.world,
			aliases = excluded.aliases,
			tick = excluded.tick,
			registry_hash = excluded.registry_hash,
			ir_version = excluded.ir_version,
			saved_at = excluded.saved_at
	`,
		id,
		registryJSON,
		worldJSON,
		aliasJSON,
		ws.Tick,
		hash,
		ir.SnapshotVersion,
		s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("save workspace %s: %w", id, err)
	}
	return nil
}

// LoadWorkspace reads the workspace stored under id. A missing id yields a
// NotFoundError.
func (s *Store) LoadWorkspace(ctx context.Context, id string) (*Workspace, error) {
	var (
		registryJSON, worldJSON, aliasJSON string
		version, savedAt                   string
		ws                                 = Workspace{ID: id}
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT registry, world, aliases, tick, registry_hash, ir_version, saved_at
		FROM workspaces
		WHERE id = ?
	`, id).Scan(&registryJSON, &worldJSON, &aliasJSON, &ws.Tick, &ws.RegistryHash, &version, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ir.NotFound("workspace", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load workspace %s: %w", id, err)
	}
	if version != ir.SnapshotVersion {
		return nil, ir.SchemaErrorf(id, "workspace snapshot version %q, want %q", version, ir.SnapshotVersion)
	}

	if ws.Registry, err = unmarshalRegistry(registryJSON); err != nil {
		return nil, fmt.Errorf("load workspace %s: %w", id, err)
	}
	if ws.World, err = unmarshalWorld(worldJSON); err != nil {
		return nil, fmt.Errorf("load workspace %s: %w", id, err)
	}
	if ws.Aliases, err = unmarshalAliases(aliasJSON); err != nil {
		return nil, fmt.Errorf("load workspace %s: %w", id, err)
	}
	if ws.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt); err != nil {
		return nil, fmt.Errorf("load workspace %s: saved_at: %w", id, err)
	}
	return &ws, nil
}

// ListWorkspaces returns every stored workspace ordered by id.
// Returns an empty slice (not nil) when the store is empty.
func (s *Store) ListWorkspaces(ctx context.Context) ([]WorkspaceInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.tick, w.registry_hash, w.saved_at, COUNT(r.seq)
		FROM workspaces w
		LEFT JOIN reports r ON r.workspace_id = w.id
		GROUP BY w.id
		ORDER BY w.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query workspaces: %w", err)
	}
	defer rows.Close()

	infos := []WorkspaceInfo{}
	for rows.Next() {
		var (
			info    WorkspaceInfo
			savedAt string
		)
		if err := rows.Scan(&info.ID, &info.Tick, &info.RegistryHash, &savedAt, &info.Reports); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		if info.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt); err != nil {
			return nil, fmt.Errorf("scan workspace %s: saved_at: %w", info.ID, err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workspaces: %w", err)
	}
	return infos, nil
}

// DeleteWorkspace removes a workspace and its reports.
func (s *Store) DeleteWorkspace(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workspaces WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete workspace %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ir.NotFound("workspace", id)
	}
	return nil
}
