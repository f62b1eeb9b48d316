package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/musicbox/internal/geom"
	"github.com/roach88/musicbox/internal/ir"
	"github.com/roach88/musicbox/internal/model"
	"github.com/roach88/musicbox/internal/store"
)

var testField = geom.Field{Width: 1024, Height: 600}

func setupTestStore(t *testing.T, session string) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.WriteSession(context.Background(), store.Session{
		Name:   session,
		Width:  testField.Width,
		Height: testField.Height,
	}))
	return st
}

// sequence stamps intents with consecutive seqs starting at 1.
func sequence(t *testing.T, session string, specs ...ir.Intent) []ir.Intent {
	t.Helper()
	out := make([]ir.Intent, len(specs))
	for i, in := range specs {
		in.Session = session
		require.NoError(t, in.Stamp(int64(i+1)))
		out[i] = in
	}
	return out
}

func scenario(t *testing.T) []ir.Intent {
	return sequence(t, "box",
		ir.Intent{Kind: model.KindAddBall, Args: model.AddBallArgs(40, 40)},
		ir.Intent{Kind: model.KindGrab, Args: model.GrabArgs("p1", 1)},
		ir.Intent{Kind: model.KindGrab, Args: model.GrabArgs("p2", 1)},
		ir.Intent{Kind: model.KindMove, Args: model.MoveArgs("p1", 1, 200, 150)},
		ir.Intent{Kind: model.KindRelease, Args: model.ReleaseArgs("p1", 1)},
		ir.Intent{Kind: model.KindTick},
	)
}

func TestReplica_AppliesInOrder(t *testing.T) {
	r := NewReplica("box", testField, 0)
	var outcomes []model.Outcome
	r.observers = append(r.observers, func(_ ir.Intent, o model.Outcome) {
		outcomes = append(outcomes, o)
	})

	for _, in := range scenario(t) {
		require.True(t, r.Deliver(in))
	}
	assert.Equal(t, 6, r.Drain(context.Background()))

	assert.Equal(t, int64(6), r.LastSeq())
	assert.Equal(t, int64(1), r.WrapTime())
	b, ok := r.Snapshot().Lookup(1)
	require.True(t, ok)
	assert.Equal(t, model.Ball{ID: 1, X: 200, Y: 150}, b)
	assert.Equal(t, []model.Outcome{
		model.OutcomeApplied, model.OutcomeApplied, model.OutcomeIgnored,
		model.OutcomeApplied, model.OutcomeApplied, model.OutcomeApplied,
	}, outcomes)
}

func TestReplica_DropsDuplicates(t *testing.T) {
	r := NewReplica("box", testField, 0)
	in := scenario(t)

	r.Deliver(in[0])
	r.Deliver(in[0])
	r.Drain(context.Background())

	assert.Len(t, r.Snapshot().Balls, 1)
	assert.Equal(t, int64(1), r.LastSeq())
}

func TestReplica_BuffersGaps(t *testing.T) {
	r := NewReplica("box", testField, 0)
	in := scenario(t)
	ctx := context.Background()

	r.Deliver(in[2])
	r.Deliver(in[1])
	r.Drain(ctx)
	assert.Equal(t, int64(0), r.LastSeq())
	assert.Equal(t, 2, r.Pending())

	r.Deliver(in[0])
	r.Drain(ctx)
	assert.Equal(t, int64(3), r.LastSeq())
	assert.Equal(t, 0, r.Pending())

	b, _ := r.Snapshot().Lookup(1)
	assert.Equal(t, model.ParticipantID("p1"), b.GrabbedBy, "p1's grab had the lower seq")
}

func TestReplica_AllReplicasConverge(t *testing.T) {
	stream := scenario(t)
	orders := [][]int{
		{0, 1, 2, 3, 4, 5},
		{5, 4, 3, 2, 1, 0},
		{2, 0, 4, 1, 5, 3},
	}

	var digests []string
	for _, order := range orders {
		r := NewReplica("box", testField, 0)
		for _, i := range order {
			r.Deliver(stream[i])
		}
		r.Drain(context.Background())
		digests = append(digests, r.Snapshot().Digest())
	}
	assert.Equal(t, digests[0], digests[1])
	assert.Equal(t, digests[0], digests[2])
}

func TestReplica_Synced(t *testing.T) {
	r := NewReplica("box", testField, 0)
	in := scenario(t)
	ctx := context.Background()

	r.MarkSynced(2)
	r.Deliver(in[0])
	r.Drain(ctx)
	select {
	case <-r.Synced():
		t.Fatal("synced before reaching head")
	default:
	}

	r.Deliver(in[1])
	r.Drain(ctx)
	select {
	case <-r.Synced():
	default:
		t.Fatal("not synced at head")
	}
}

func TestReplica_SyncedAtEmptyHead(t *testing.T) {
	r := NewReplica("box", testField, 0)
	r.MarkSynced(0)
	r.Drain(context.Background())

	select {
	case <-r.Synced():
	default:
		t.Fatal("empty session should be synced at once")
	}
}

func TestReplica_Journal(t *testing.T) {
	st := setupTestStore(t, "box")
	r := NewReplica("box", testField, 0, WithJournal(st))
	ctx := context.Background()

	for _, in := range scenario(t) {
		r.Deliver(in)
	}
	r.Drain(ctx)

	got, err := st.ReadIntents(ctx, "box", 0)
	require.NoError(t, err)
	assert.Len(t, got, 6)
}

type failingJournal struct{}

func (failingJournal) WriteIntent(context.Context, ir.Intent) error {
	return errors.New("disk full")
}

func TestReplica_JournalFailureDoesNotStopApply(t *testing.T) {
	r := NewReplica("box", testField, 0, WithJournal(failingJournal{}))
	for _, in := range scenario(t) {
		r.Deliver(in)
	}
	r.Drain(context.Background())
	assert.Equal(t, int64(6), r.LastSeq())
}

func TestReplica_Run(t *testing.T) {
	var mu sync.Mutex
	var seen []int64
	r := NewReplica("box", testField, 0, WithObserver(func(in ir.Intent, _ model.Outcome) {
		mu.Lock()
		seen = append(seen, in.Seq)
		mu.Unlock()
	}))

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	for _, in := range scenario(t) {
		r.Deliver(in)
	}
	r.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, seen)
	assert.False(t, r.Deliver(scenario(t)[0]), "closed replica refuses intents")
}

func TestReplica_RunCancelled(t *testing.T) {
	r := NewReplica("box", testField, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestReplica_FromSnapshot(t *testing.T) {
	stream := scenario(t)
	src := NewReplica("box", testField, 0)
	for _, in := range stream[:4] {
		src.Deliver(in)
	}
	src.Drain(context.Background())

	late, err := NewReplicaFromSnapshot("box", src.Snapshot(), src.LastSeq())
	require.NoError(t, err)
	for _, in := range stream {
		late.Deliver(in)
		src.Deliver(in)
	}
	late.Drain(context.Background())
	src.Drain(context.Background())

	assert.Equal(t, src.Snapshot().Digest(), late.Snapshot().Digest())
	assert.Equal(t, int64(6), late.LastSeq())
}

func TestClock(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())

	c = NewClockAt(41)
	assert.Equal(t, int64(42), c.Next())
	assert.Equal(t, int64(42), c.Current())
}

func TestEventQueue(t *testing.T) {
	q := newEventQueue()
	assert.True(t, q.push(event{kind: eventSynced, head: 1}))
	assert.True(t, q.push(event{kind: eventSynced, head: 2}))
	assert.Equal(t, 2, q.len())

	e, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, int64(1), e.head)

	q.close()
	assert.False(t, q.push(event{kind: eventSynced}))
	e, ok = q.pop()
	require.True(t, ok, "entries queued before close are kept")
	assert.Equal(t, int64(2), e.head)
	_, ok = q.pop()
	assert.False(t, ok)
}

func TestReplica_View(t *testing.T) {
	r := NewReplica("box", testField, 0)
	for _, in := range scenario(t) {
		r.Deliver(in)
	}
	r.Drain(context.Background())

	var (
		balls    int
		wrapTime int64
	)
	r.View(func(m *model.Model) {
		balls = m.Len()
		wrapTime = m.WrapTime()
		assert.NoError(t, m.CheckInvariants())
	})
	assert.Equal(t, 1, balls)
	assert.Equal(t, int64(1), wrapTime)
}
