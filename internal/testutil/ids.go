package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs hands out participant ids "p1", "p2", ... in order.
//
// The relay assigns UUIDv7 ids in production. Tests and golden traces need
// ids that are the same on every run.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. An empty prefix means "p".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "p"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s%d", g.prefix, g.n)
}
