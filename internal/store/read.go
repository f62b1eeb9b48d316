package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/musicbox/internal/ir"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("not found")

// ReadSession returns a session by name.
func (s *Store) ReadSession(ctx context.Context, name string) (Session, error) {
	sess := Session{Name: name}
	err := s.db.QueryRowContext(ctx, `
		SELECT width, height, lease_ticks FROM sessions WHERE name = ?
	`, name).Scan(&sess.Width, &sess.Height, &sess.LeaseTicks)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("session %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("read session %s: %w", name, err)
	}
	return sess, nil
}

// ListSessions returns all session names in lexical order.
func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM sessions ORDER BY name COLLATE BINARY`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return names, nil
}

// ReadIntents returns the session's intents with seq > afterSeq, in seq
// order. Never returns nil.
func (s *Store) ReadIntents(ctx context.Context, session string, afterSeq int64) ([]ir.Intent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, kind, args
		FROM intents
		WHERE session = ? AND seq > ?
		ORDER BY seq ASC
	`, session, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("read intents: %w", err)
	}
	defer rows.Close()

	out := []ir.Intent{}
	for rows.Next() {
		in := ir.Intent{Session: session}
		var kind, args string
		if err := rows.Scan(&in.Seq, &in.ID, &kind, &args); err != nil {
			return nil, fmt.Errorf("scan intent: %w", err)
		}
		in.Kind = ir.Kind(kind)
		if err := in.Args.UnmarshalJSON([]byte(args)); err != nil {
			return nil, fmt.Errorf("intent %d args: %w", in.Seq, err)
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate intents: %w", err)
	}
	return out, nil
}

// LastSeq returns the highest journaled seq for a session, or 0.
func (s *Store) LastSeq(ctx context.Context, session string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM intents WHERE session = ?
	`, session).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

// KindCounts returns how many intents of each kind a session holds.
func (s *Store) KindCounts(ctx context.Context, session string) (map[ir.Kind]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*) FROM intents WHERE session = ? GROUP BY kind ORDER BY kind
	`, session)
	if err != nil {
		return nil, fmt.Errorf("kind counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[ir.Kind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan kind count: %w", err)
		}
		counts[ir.Kind(kind)] = n
	}
	return counts, rows.Err()
}
