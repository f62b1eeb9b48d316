package engine

import (
	"context"
	"fmt"

	"github.com/roach88/musicbox/internal/geom"
	"github.com/roach88/musicbox/internal/ir"
	"github.com/roach88/musicbox/internal/model"
	"github.com/roach88/musicbox/internal/store"
)

// Source is the read side of a journal. *store.Store implements it.
type Source interface {
	ReadSession(ctx context.Context, name string) (store.Session, error)
	ReadIntents(ctx context.Context, session string, afterSeq int64) ([]ir.Intent, error)
}

// ReplayResult is the state rebuilt from a journal.
type ReplayResult struct {
	Session  store.Session
	Model    *model.Model
	LastSeq  int64
	Applied  int
	Ignored  int
	Digest   string
	Outcomes []model.Outcome
}

// Replay rebuilds a session's model from its journal, applying every intent
// in seq order. A gap in the journal is an error: the stream the live
// replicas saw cannot be reconstructed.
func Replay(ctx context.Context, src Source, session string) (*ReplayResult, error) {
	sess, err := src.ReadSession(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("read session %q: %w", session, err)
	}
	intents, err := src.ReadIntents(ctx, session, 0)
	if err != nil {
		return nil, fmt.Errorf("read intents for %q: %w", session, err)
	}

	res := &ReplayResult{
		Session: sess,
		Model: model.New(
			geom.Field{Width: sess.Width, Height: sess.Height},
			model.WithGrabLease(sess.LeaseTicks),
		),
		Outcomes: make([]model.Outcome, 0, len(intents)),
	}
	for _, in := range intents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if in.Seq != res.LastSeq+1 {
			return nil, fmt.Errorf("journal gap in %q: seq %d follows %d", session, in.Seq, res.LastSeq)
		}
		o := res.Model.Apply(in)
		res.Outcomes = append(res.Outcomes, o)
		if o == model.OutcomeApplied {
			res.Applied++
		} else {
			res.Ignored++
		}
		res.LastSeq = in.Seq
	}
	res.Digest = res.Model.Digest()
	return res, nil
}

// VerifyReplay replays the journal twice and fails if the two runs disagree.
// The model is deterministic, so a mismatch means a handler reads something
// outside (state, payload).
func VerifyReplay(ctx context.Context, src Source, session string) (*ReplayResult, error) {
	first, err := Replay(ctx, src, session)
	if err != nil {
		return nil, err
	}
	second, err := Replay(ctx, src, session)
	if err != nil {
		return nil, err
	}
	if first.Digest != second.Digest {
		return nil, fmt.Errorf("replay of %q is not deterministic: %s != %s", session, first.Digest, second.Digest)
	}
	return first, nil
}
