package testutil

import (
	"sync"
	"time"
)

// Epoch is the start time of every ManualClock created with NewManualClock.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// ManualClock is a wall clock that only moves when a test says so.
//
// Unlike the real clock, two runs of the same test observe identical
// timestamps, so playhead sweeps and rendered audio are reproducible.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock stopped at Epoch.
func NewManualClock() *ManualClock {
	return &ManualClock{now: Epoch}
}

// Now returns the current time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
// Negative durations are ignored: the clock never runs backwards.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return c.now
}

// Reset stops the clock at Epoch again.
func (c *ManualClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = Epoch
}
