package testutil

import (
	"context"
	"sync"

	"github.com/roach88/musicbox/internal/ir"
)

// Published is one intent captured by RecordingPublisher.
type Published struct {
	Kind ir.Kind
	Args ir.Object
}

// RecordingPublisher implements engine.Publisher by remembering every
// intent instead of sending it anywhere.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type RecordingPublisher struct {
	mu   sync.Mutex
	sent []Published
	err  error
}

// NewRecordingPublisher creates an empty recorder.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

// Publish records the intent, or returns the error set by FailWith.
func (p *RecordingPublisher) Publish(_ context.Context, kind ir.Kind, args ir.Object) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, Published{Kind: kind, Args: args})
	return nil
}

// FailWith makes every later Publish return err. nil restores success.
func (p *RecordingPublisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Sent returns a copy of everything published so far.
func (p *RecordingPublisher) Sent() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Published, len(p.sent))
	copy(out, p.sent)
	return out
}

// Kinds returns the kinds published so far, in order.
func (p *RecordingPublisher) Kinds() []ir.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ir.Kind, len(p.sent))
	for i, s := range p.sent {
		out[i] = s.Kind
	}
	return out
}

// Reset forgets everything published so far.
func (p *RecordingPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = nil
}
