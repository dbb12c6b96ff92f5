package ir

// Version constants for persisted snapshots and the engine.
const (
	// SnapshotVersion is the workspace snapshot schema version.
	SnapshotVersion = "1"

	// EngineVersion is the simloom engine version.
	EngineVersion = "0.1.0"
)
