package store

import (
	"context"
	"fmt"

	"github.com/roach88/musicbox/internal/ir"
)

// Session is the fixed configuration a journal needs to rebuild a model.
type Session struct {
	Name       string
	Width      int64
	Height     int64
	LeaseTicks int64
}

// WriteSession records a session. An existing session with the same name is
// left unchanged: the field is immutable once intents have been applied.
func (s *Store) WriteSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (name, width, height, lease_ticks)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, sess.Name, sess.Width, sess.Height, sess.LeaseTicks)
	if err != nil {
		return fmt.Errorf("write session %s: %w", sess.Name, err)
	}
	return nil
}

// WriteIntent appends an intent. A duplicate (same session and seq) is
// silently ignored, so at-least-once delivery is safe to journal.
func (s *Store) WriteIntent(ctx context.Context, in ir.Intent) error {
	args, err := ir.MarshalCanonical(argsOrEmpty(in.Args))
	if err != nil {
		return fmt.Errorf("write intent %d: %w", in.Seq, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO intents (session, seq, id, kind, args, view_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, in.Session, in.Seq, in.ID, string(in.Kind), string(args), in.ViewID())
	if err != nil {
		return fmt.Errorf("write intent %d: %w", in.Seq, err)
	}
	return nil
}

func argsOrEmpty(args ir.Object) ir.Object {
	if args == nil {
		return ir.Object{}
	}
	return args
}
