package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/musicbox/internal/ir"
)

// journal is the surface both implementations share.
type journal interface {
	WriteSession(ctx context.Context, sess Session) error
	ReadSession(ctx context.Context, name string) (Session, error)
	ListSessions(ctx context.Context) ([]string, error)
	WriteIntent(ctx context.Context, in ir.Intent) error
	ReadIntents(ctx context.Context, session string, afterSeq int64) ([]ir.Intent, error)
	LastSeq(ctx context.Context, session string) (int64, error)
}

func TestJournals_Agree(t *testing.T) {
	impls := map[string]journal{
		"sqlite": createTestStore(t),
		"memory": NewMemory(),
	}
	for name, j := range impls {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, j.WriteSession(ctx, Session{Name: "box", Width: 800, Height: 400}))
			require.NoError(t, j.WriteSession(ctx, Session{Name: "box", Width: 1, Height: 1}))
			require.NoError(t, j.WriteSession(ctx, Session{Name: "Alpha", Width: 1, Height: 1}))

			sess, err := j.ReadSession(ctx, "box")
			require.NoError(t, err)
			assert.Equal(t, int64(800), sess.Width)

			_, err = j.ReadSession(ctx, "ghost")
			assert.ErrorIs(t, err, ErrNotFound)

			names, err := j.ListSessions(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"Alpha", "box"}, names)

			for _, seq := range []int64{2, 1, 3, 2} {
				require.NoError(t, j.WriteIntent(ctx, stamped(t, "box", seq, "tick", nil)))
			}
			assert.Error(t, j.WriteIntent(ctx, stamped(t, "ghost", 1, "tick", nil)))

			all, err := j.ReadIntents(ctx, "box", 0)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, []int64{1, 2, 3}, []int64{all[0].Seq, all[1].Seq, all[2].Seq})
			assert.Equal(t, ir.Object{}, all[0].Args)

			tail, err := j.ReadIntents(ctx, "box", 2)
			require.NoError(t, err)
			assert.Len(t, tail, 1)

			none, err := j.ReadIntents(ctx, "Alpha", 0)
			require.NoError(t, err)
			assert.NotNil(t, none)
			assert.Empty(t, none)

			last, err := j.LastSeq(ctx, "box")
			require.NoError(t, err)
			assert.Equal(t, int64(3), last)
		})
	}
}
