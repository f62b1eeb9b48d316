package engine

import (
	"sync"

	"github.com/roach88/musicbox/internal/ir"
)

// eventKind distinguishes queue entries.
type eventKind int

const (
	eventIntent eventKind = iota + 1
	eventSynced
)

// event is one entry in the replica's inbox.
type event struct {
	kind   eventKind
	intent ir.Intent
	head   int64 // eventSynced: seq the replica must reach
}

// eventQueue is an unbounded FIFO with a coalescing wake-up channel, so the
// Run loop can wait on it together with ctx.Done().
type eventQueue struct {
	mu     sync.Mutex
	events []event
	closed bool
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// push appends e. Returns false once the queue is closed.
func (q *eventQueue) push(e event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.events = append(q.events, e)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// pop removes the front entry without blocking.
func (q *eventQueue) pop() (event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return event{}, false
	}
	e := q.events[0]
	q.events[0] = event{} // drop the Args reference
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

// wait fires when entries may be available, and stays ready after close.
func (q *eventQueue) wait() <-chan struct{} {
	return q.signal
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

func (q *eventQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
