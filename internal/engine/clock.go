package engine

import "sync/atomic"

// Clock is the sequencer's logical clock. Every intent in a session is
// stamped with the next value; the stream is 1, 2, 3... with no gaps.
//
// Safe for concurrent use, though the sequencer calls it from one goroutine.
type Clock struct {
	seq atomic.Int64
}

// NewClock starts at 0; the first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt resumes after start, typically the journal's last seq.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
