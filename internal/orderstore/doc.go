// Package orderstore persists the authoritative order board in SQLite.
//
// Store owns every server-side rule the clients treat as opaque: the dense
// 1..N queue ranks, the preparation state machine and the control check
// before loading. Each mutation runs in one transaction, repacks ranks in
// the same step and returns the changed order together with every other
// order whose rank moved, so the server can broadcast each of them.
//
// Timestamps are stored as RFC3339 with nanoseconds; an order's updated_at
// strictly increases with every write.
//
// The schema is built from embedded migrations recorded in
// schema_migrations. A database carrying migrations this binary does not
// know is refused with ErrSchemaMismatch.
package orderstore
