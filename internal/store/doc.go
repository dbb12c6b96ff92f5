// Package store provides SQLite-backed persistence for simloom workspaces.
//
// A workspace is the durable form of one loop session: the registry
// snapshot, the world snapshot, entity aliases and the tick clock. Saving a
// workspace replaces the previous copy; reports are an append-only log per
// workspace.
//
// # Storage Rules
//
//   - Snapshots are stored as canonical JSON (ir.MarshalCanonical), so equal
//     state produces byte-identical rows.
//   - Report order is the insertion sequence, never a timestamp.
//   - A request id appears at most once per workspace; re-appending the same
//     report is a no-op.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Reports are deleted with their workspace
package store
