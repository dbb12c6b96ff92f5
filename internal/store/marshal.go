package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/simloom/internal/ir"
	"github.com/roach88/simloom/internal/world"
)

// marshalCanonical converts v to canonical JSON TEXT for storage.
func marshalCanonical(what string, v any) (string, error) {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", what, err)
	}
	return string(data), nil
}

// unmarshalRegistry parses a stored registry snapshot.
func unmarshalRegistry(data string) (ir.RegistrySnapshot, error) {
	var snap ir.RegistrySnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return ir.RegistrySnapshot{}, fmt.Errorf("unmarshal registry: %w", err)
	}
	return snap, nil
}

// unmarshalWorld parses a stored world snapshot.
func unmarshalWorld(data string) (world.Snapshot, error) {
	var snap world.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return world.Snapshot{}, fmt.Errorf("unmarshal world: %w", err)
	}
	if snap.Entities == nil {
		snap.Entities = []world.EntityRecord{}
	}
	return snap, nil
}

// unmarshalAliases parses stored entity aliases.
func unmarshalAliases(data string) (map[string]world.Entity, error) {
	aliases := map[string]world.Entity{}
	if data == "" || data == "{}" {
		return aliases, nil
	}
	if err := json.Unmarshal([]byte(data), &aliases); err != nil {
		return nil, fmt.Errorf("unmarshal aliases: %w", err)
	}
	return aliases, nil
}
