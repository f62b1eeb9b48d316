package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/roach88/musicbox/internal/ir"
)

// Memory is a journal that lives only as long as the process. It has the
// same read and write semantics as Store, for relays run without a database
// and for tests.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]Session
	intents  map[string][]ir.Intent // per session, ascending seq
}

// NewMemory creates an empty journal.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]Session),
		intents:  make(map[string][]ir.Intent),
	}
}

// WriteSession records a session unless one with that name exists.
func (m *Memory) WriteSession(_ context.Context, sess Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sess.Name]; !ok {
		m.sessions[sess.Name] = sess
	}
	return nil
}

// ReadSession returns a session by name.
func (m *Memory) ReadSession(_ context.Context, name string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[name]
	if !ok {
		return Session{}, fmt.Errorf("session %s: %w", name, ErrNotFound)
	}
	return sess, nil
}

// ListSessions returns all session names in lexical order.
func (m *Memory) ListSessions(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for name := range m.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// WriteIntent appends an intent; a duplicate seq is ignored.
func (m *Memory) WriteIntent(_ context.Context, in ir.Intent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[in.Session]; !ok {
		return fmt.Errorf("write intent %d: session %s: %w", in.Seq, in.Session, ErrNotFound)
	}
	in.Args = argsOrEmpty(in.Args)

	list := m.intents[in.Session]
	i := sort.Search(len(list), func(i int) bool { return list[i].Seq >= in.Seq })
	if i < len(list) && list[i].Seq == in.Seq {
		return nil
	}
	m.intents[in.Session] = slices.Insert(list, i, in)
	return nil
}

// ReadIntents returns the session's intents with seq > afterSeq, in seq
// order. Never returns nil.
func (m *Memory) ReadIntents(_ context.Context, session string, afterSeq int64) ([]ir.Intent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.intents[session]
	i := sort.Search(len(list), func(i int) bool { return list[i].Seq > afterSeq })
	out := make([]ir.Intent, len(list)-i)
	copy(out, list[i:])
	return out, nil
}

// LastSeq returns the highest journaled seq for a session, or 0.
func (m *Memory) LastSeq(_ context.Context, session string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.intents[session]
	if len(list) == 0 {
		return 0, nil
	}
	return list[len(list)-1].Seq, nil
}
