package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/musicbox/internal/model"
	"github.com/roach88/musicbox/internal/store"
)

func TestReplay_MatchesLiveReplica(t *testing.T) {
	st := setupTestStore(t, "box")
	ctx := context.Background()

	live := NewReplica("box", testField, 0, WithJournal(st))
	for _, in := range scenario(t) {
		live.Deliver(in)
	}
	live.Drain(ctx)

	res, err := VerifyReplay(ctx, st, "box")
	require.NoError(t, err)
	assert.Equal(t, live.Snapshot().Digest(), res.Digest)
	assert.Equal(t, int64(6), res.LastSeq)
	assert.Equal(t, 5, res.Applied)
	assert.Equal(t, 1, res.Ignored)
	assert.Equal(t, model.OutcomeIgnored, res.Outcomes[2])
}

func TestReplay_EmptySession(t *testing.T) {
	st := setupTestStore(t, "box")
	res, err := Replay(context.Background(), st, "box")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Model.Len())
	assert.Equal(t, int64(0), res.LastSeq)
}

func TestReplay_UnknownSession(t *testing.T) {
	st := setupTestStore(t, "box")
	_, err := Replay(context.Background(), st, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReplay_Gap(t *testing.T) {
	st := setupTestStore(t, "box")
	ctx := context.Background()
	stream := scenario(t)
	require.NoError(t, st.WriteIntent(ctx, stream[0]))
	require.NoError(t, st.WriteIntent(ctx, stream[2]))

	_, err := Replay(ctx, st, "box")
	assert.ErrorContains(t, err, "gap")
}
