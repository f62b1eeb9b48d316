// Package engine runs one replica of a music box session.
//
// # Single-writer loop
//
// Intents arrive from the broadcast transport on arbitrary goroutines and are
// handed to Replica.Deliver, which only enqueues. Replica.Run drains the
// queue on one goroutine and is the only code that mutates the model. That
// gives every replica the same sequence of handler calls:
//
//  1. Intents are ordered by their sequencer seq, never by arrival time.
//  2. A seq at or below the last applied one is a duplicate and is dropped.
//  3. A seq past the next expected one is held until the gap is filled.
//  4. Each applied intent is journaled (log and continue on failure: a
//     retry could reorder the journal relative to the model).
//
// Readers (view, audio, terminal UI) take snapshots under a read lock.
//
// # Logical time
//
// Seq numbers come from the sequencer's Clock. Wrap ticks are ordinary
// intents in the same stream, so every replica agrees on wrapTime no matter
// how far its local wall clock drifts.
package engine
