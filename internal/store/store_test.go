package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/musicbox/internal/ir"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func stamped(t *testing.T, session string, seq int64, kind ir.Kind, args ir.Object) ir.Intent {
	t.Helper()
	in := ir.Intent{Session: session, Kind: kind, Args: args}
	require.NoError(t, in.Stamp(seq))
	return in
}

func TestOpen_AppliesSchemaVersion(t *testing.T) {
	s := createTestStore(t)

	v, err := s.schemaVersion()
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, v)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.WriteSession(ctx, Session{Name: "a", Width: 10, Height: 20}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	sess, err := s.ReadSession(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, Session{Name: "a", Width: 10, Height: 20}, sess)
}

func TestSession_ImmutableOnceWritten(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteSession(ctx, Session{Name: "box", Width: 800, Height: 400, LeaseTicks: 3}))
	require.NoError(t, s.WriteSession(ctx, Session{Name: "box", Width: 1, Height: 1}))

	sess, err := s.ReadSession(ctx, "box")
	require.NoError(t, err)
	assert.Equal(t, int64(800), sess.Width)
	assert.Equal(t, int64(3), sess.LeaseTicks)
}

func TestReadSession_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadSession(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListSessions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	names, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	for _, n := range []string{"zeta", "alpha", "Mid"} {
		require.NoError(t, s.WriteSession(ctx, Session{Name: n, Width: 1, Height: 1}))
	}
	names, err = s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Mid", "alpha", "zeta"}, names)
}

func TestIntents_WriteReadInOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.WriteSession(ctx, Session{Name: "box", Width: 800, Height: 400}))

	in3 := stamped(t, "box", 3, "tick", nil)
	in1 := stamped(t, "box", 1, "addBall", ir.Object{"x": ir.Int(40), "y": ir.Int(40)})
	in2 := stamped(t, "box", 2, "grab", ir.Object{"viewId": ir.String("p1"), "id": ir.Int(1)})
	for _, in := range []ir.Intent{in3, in1, in2} {
		require.NoError(t, s.WriteIntent(ctx, in))
	}

	got, err := s.ReadIntents(ctx, "box", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, in1, got[0])
	assert.Equal(t, in2, got[1])
	assert.Equal(t, int64(3), got[2].Seq)
	assert.Equal(t, ir.Object{}, got[2].Args)

	tail, err := s.ReadIntents(ctx, "box", 2)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, in3.ID, tail[0].ID)

	last, err := s.LastSeq(ctx, "box")
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)
}

func TestIntents_DuplicateIgnored(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.WriteSession(ctx, Session{Name: "box", Width: 800, Height: 400}))

	in := stamped(t, "box", 1, "tick", nil)
	require.NoError(t, s.WriteIntent(ctx, in))
	require.NoError(t, s.WriteIntent(ctx, in))

	got, err := s.ReadIntents(ctx, "box", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestIntents_RequireSession(t *testing.T) {
	s := createTestStore(t)
	err := s.WriteIntent(context.Background(), stamped(t, "ghost", 1, "tick", nil))
	assert.Error(t, err)
}

func TestIntents_SessionsIsolated(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	for _, n := range []string{"a", "b"} {
		require.NoError(t, s.WriteSession(ctx, Session{Name: n, Width: 1, Height: 1}))
	}
	require.NoError(t, s.WriteIntent(ctx, stamped(t, "a", 1, "tick", nil)))
	require.NoError(t, s.WriteIntent(ctx, stamped(t, "b", 1, "tick", nil)))
	require.NoError(t, s.WriteIntent(ctx, stamped(t, "b", 2, "tick", nil)))

	a, err := s.ReadIntents(ctx, "a", 0)
	require.NoError(t, err)
	assert.Len(t, a, 1)

	last, err := s.LastSeq(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(2), last)

	empty, err := s.LastSeq(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty)
}

func TestKindCounts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.WriteSession(ctx, Session{Name: "box", Width: 1, Height: 1}))
	require.NoError(t, s.WriteIntent(ctx, stamped(t, "box", 1, "tick", nil)))
	require.NoError(t, s.WriteIntent(ctx, stamped(t, "box", 2, "tick", nil)))
	require.NoError(t, s.WriteIntent(ctx, stamped(t, "box", 3, "addBall", ir.Object{"x": ir.Int(1), "y": ir.Int(1)})))

	counts, err := s.KindCounts(ctx, "box")
	require.NoError(t, err)
	assert.Equal(t, map[ir.Kind]int{"tick": 2, "addBall": 1}, counts)
}
