// Package persist provides SQLite-backed durable storage for reactor
// sessions.
//
// A session is one reactor run. Its journal holds every committed
// transaction that changed state, keyed by the reactor's dispatch id, and
// any number of snapshots of the serialized app state. Only the reactor's
// serialization hooks are used: the journal stores action payloads and
// Serialize output, never live state.
//
// # Ordering
//
// All ordering uses the dispatch id (a logical clock), never timestamps.
// Queries order by seq so replays read records in commit order. Journal
// reads are built as queryir queries and compiled by querysql.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Payloads and snapshots are stored as canonical JSON (sorted keys, NFC
// strings). Snapshot hashes come from immutable.ContentHash.
package persist
