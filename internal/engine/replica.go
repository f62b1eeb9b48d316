package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/musicbox/internal/geom"
	"github.com/roach88/musicbox/internal/ir"
	"github.com/roach88/musicbox/internal/model"
)

// Observer is told about every applied intent, on the Run goroutine, after
// the model has been updated. Observers must not block.
type Observer func(in ir.Intent, outcome model.Outcome)

// Replica owns one participant's copy of the session model.
//
// Thread-safety:
//   - Deliver, MarkSynced, Snapshot, LastSeq: any goroutine
//   - Run, Drain: exactly one goroutine, never both
type Replica struct {
	session string
	journal Journal
	queue   *eventQueue

	mu      sync.RWMutex
	model   *model.Model
	lastSeq int64

	// Run goroutine only
	pending    map[int64]ir.Intent
	observers  []Observer
	syncTarget int64
	syncWanted bool
	synced     chan struct{}
	logger     *slog.Logger
}

// ReplicaOption configures a Replica.
type ReplicaOption func(*Replica)

// WithJournal records every applied intent.
func WithJournal(j Journal) ReplicaOption {
	return func(r *Replica) {
		r.journal = j
	}
}

// WithObserver registers an observer. Observers run in registration order.
func WithObserver(o Observer) ReplicaOption {
	return func(r *Replica) {
		r.observers = append(r.observers, o)
	}
}

// WithLogger overrides slog.Default.
func WithLogger(l *slog.Logger) ReplicaOption {
	return func(r *Replica) {
		r.logger = l
	}
}

// NewReplica starts a replica from an empty model.
func NewReplica(session string, field geom.Field, leaseTicks int64, opts ...ReplicaOption) *Replica {
	return newReplica(session, model.New(field, model.WithGrabLease(leaseTicks)), 0, opts)
}

// NewReplicaFromSnapshot starts a replica from a snapshot taken after seq.
func NewReplicaFromSnapshot(session string, state model.State, seq int64, opts ...ReplicaOption) (*Replica, error) {
	m, err := model.Restore(state)
	if err != nil {
		return nil, err
	}
	return newReplica(session, m, seq, opts), nil
}

func newReplica(session string, m *model.Model, seq int64, opts []ReplicaOption) *Replica {
	r := &Replica{
		session: session,
		queue:   newEventQueue(),
		model:   m,
		lastSeq: seq,
		pending: make(map[int64]ir.Intent),
		synced:  make(chan struct{}),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Session returns the session name.
func (r *Replica) Session() string {
	return r.session
}

// Deliver hands an intent from the broadcast transport to the replica.
// Returns false once the replica has stopped.
func (r *Replica) Deliver(in ir.Intent) bool {
	return r.queue.push(event{kind: eventIntent, intent: in})
}

// MarkSynced tells the replica that the session head was at seq when it
// joined. Synced() closes once every intent up to head has been applied.
func (r *Replica) MarkSynced(head int64) bool {
	return r.queue.push(event{kind: eventSynced, head: head})
}

// Synced closes when the replica has caught up with the head announced by
// MarkSynced.
func (r *Replica) Synced() <-chan struct{} {
	return r.synced
}

// Snapshot returns a copy of the current state.
func (r *Replica) Snapshot() model.State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.model.Snapshot()
}

// Field returns the fixed field dimensions.
func (r *Replica) Field() geom.Field {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.model.Field()
}

// WrapTime returns the current wrap tick count.
func (r *Replica) WrapTime() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.model.WrapTime()
}

// LastSeq returns the seq of the last applied intent.
func (r *Replica) LastSeq() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastSeq
}

// Pending returns how many out-of-order intents are waiting for a gap to
// fill. Run goroutine only; used by tests through Drain.
func (r *Replica) Pending() int {
	return len(r.pending)
}

// Run applies delivered intents until ctx is cancelled or Stop is called.
func (r *Replica) Run(ctx context.Context) error {
	r.logger.Info("replica starting", "session", r.session, "seq", r.LastSeq())
	for {
		if e, ok := r.queue.pop(); ok {
			r.process(ctx, e)
			continue
		}

		select {
		case <-ctx.Done():
			r.queue.close()
			r.logger.Info("replica stopping: context cancelled", "session", r.session)
			return ctx.Err()
		case <-r.queue.wait():
			if r.queue.isClosed() && r.queue.len() == 0 {
				r.logger.Info("replica stopping: queue closed", "session", r.session)
				return nil
			}
		}
	}
}

// Drain applies everything queued so far and returns how many entries it
// processed. For callers that drive the replica synchronously (scenario
// harness, replay, tests) instead of running Run.
func (r *Replica) Drain(ctx context.Context) int {
	n := 0
	for {
		e, ok := r.queue.pop()
		if !ok {
			return n
		}
		r.process(ctx, e)
		n++
	}
}

// Stop closes the inbox. Run returns once it is empty.
func (r *Replica) Stop() {
	r.queue.close()
}

func (r *Replica) process(ctx context.Context, e event) {
	switch e.kind {
	case eventIntent:
		r.receive(ctx, e.intent)
	case eventSynced:
		r.syncTarget = e.head
		r.syncWanted = true
		r.checkSynced()
	}
}

func (r *Replica) receive(ctx context.Context, in ir.Intent) {
	last := r.LastSeq()
	switch {
	case in.Seq <= last:
		r.logger.Debug("duplicate intent dropped", "session", r.session, "seq", in.Seq, "kind", in.Kind)
		return
	case in.Seq > last+1:
		if _, held := r.pending[in.Seq]; !held {
			r.pending[in.Seq] = in
			r.logger.Debug("intent held for gap", "session", r.session, "seq", in.Seq, "want", last+1)
		}
		return
	}

	r.apply(ctx, in)
	for {
		next, ok := r.pending[r.LastSeq()+1]
		if !ok {
			break
		}
		delete(r.pending, next.Seq)
		r.apply(ctx, next)
	}
	r.checkSynced()
}

func (r *Replica) apply(ctx context.Context, in ir.Intent) {
	r.mu.Lock()
	outcome := r.model.Apply(in)
	r.lastSeq = in.Seq
	r.mu.Unlock()

	r.logger.Debug("intent applied",
		"session", r.session,
		"seq", in.Seq,
		"kind", in.Kind,
		"view_id", in.ViewID(),
		"outcome", outcome,
	)

	if r.journal != nil {
		if err := r.journal.WriteIntent(ctx, in); err != nil {
			logIntentError(r.logger, in, err)
		}
	}
	for _, o := range r.observers {
		o(in, outcome)
	}
}

func (r *Replica) checkSynced() {
	if !r.syncWanted || r.LastSeq() < r.syncTarget {
		return
	}
	r.syncWanted = false
	select {
	case <-r.synced:
	default:
		close(r.synced)
		r.logger.Info("replica synced", "session", r.session, "seq", r.LastSeq())
	}
}

// logIntentError keeps enough of the intent to journal it by hand later.
func logIntentError(l *slog.Logger, in ir.Intent, err error) {
	l.Error("journal write failed",
		"session", in.Session,
		"seq", in.Seq,
		"id", in.ID,
		"kind", in.Kind,
		"error", err,
	)
}

// View runs fn with read access to the live model. fn must not retain the
// pointer or call back into the replica.
func (r *Replica) View(fn func(m *model.Model)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn(r.model)
}
