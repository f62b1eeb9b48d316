// Package store is the SQLite-backed intent journal.
//
// The journal is append-only. Each session's intents are keyed by
// (session, seq) where seq is the sequencer's logical clock; wall-clock
// time is never stored or used for ordering. Writes are idempotent
// (ON CONFLICT DO NOTHING), so re-delivering an intent is harmless, and all
// reads are ORDER BY seq so a replay sees exactly the delivered order.
//
// Database configuration:
//   - WAL mode: readers (replay, render) run beside the sequencer
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - a single open connection: SQLite has one writer anyway
package store
