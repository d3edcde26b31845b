// Package store provides the SQLite Statement Executor and transaction
// manager used by the DAO.
//
// # Layout
//
//   - instances: one row per instance (seq, id, most specific type,
//     version, created/updated timestamps, attributes as JSON)
//   - links: one row per relation edge, keyed by relation storage key,
//     source and target, with a per-source position
//   - sequences: persisted SEQUENCE counters
//
// # Critical Patterns
//
// Deterministic results: every query orders by insertion (seq) as the last
// tiebreaker, so reads are reproducible.
//
// Optimistic locking: Update is a conditional UPDATE ... RETURNING version.
// A lost precondition surfaces as *ir.StaleVersionError and an unknown row
// as ir.ErrRowNotFound.
//
// Timestamps: created_at/updated_at are fixed-width UTC text and
// updated_at = MAX(updated_at, ?) never moves backwards.
//
// Savepoints: Tx.Savepoint scopes one DAO call so a failure rolls back that
// call only.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Links cannot outlive their instances
package store
