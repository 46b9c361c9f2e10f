// Package store provides the SQLite commit journal.
//
// Every transaction committed by an engine context is appended as one
// transactions row plus one events row per event. The journal is an audit and
// history log; the XML document stays the source of truth.
//
// # Critical Patterns
//
// Logical time:
//   - Entries are ordered by seq (the engine's logical clock), never by
//     timestamps. Queries use ORDER BY seq ASC, tx_id COLLATE BINARY ASC.
//
// Content addressing:
//   - Each entry stores ir.EntryHash of its canonical JSON form, so a
//     tampered or truncated journal is detected by Verify.
//
// Idempotency:
//   - Appending the same tx_id twice is a no-op.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
