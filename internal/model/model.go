// Package model is the authoritative replicated state of a music box session.
//
// Every replica holds one Model and applies the same totally ordered intent
// stream to it. Handlers are pure functions of (state, payload): they never
// block, never consult a wall clock, and never report rule violations.
// A grab on a ball someone else holds, a move by a non-owner, a release of a
// ball that does not exist: all of these leave the state untouched. Replicas
// that "lost" a race and replicas that "won" it must end in the same state,
// so there is nothing to surface.
//
// Model is not safe for concurrent use. The engine owns it and serializes
// access; other components read through snapshots.
package model

import (
	"fmt"
	"slices"

	"github.com/roach88/musicbox/internal/geom"
)

// ParticipantID identifies one connected view. The empty string means nobody.
type ParticipantID string

// BallID identifies a ball. Ids start at 1 and are never reused.
type BallID int64

// Ball is one piece on the field.
type Ball struct {
	ID        BallID        `json:"id"`
	X         int64         `json:"x"`
	Y         int64         `json:"y"`
	GrabbedBy ParticipantID `json:"grabbedBy,omitempty"`

	// GrabbedAt is the wrap time of the owner's last grab or move. Only the
	// grab lease reads it.
	GrabbedAt int64 `json:"grabbedAt,omitempty"`
}

// Pos returns the ball's position.
func (b Ball) Pos() geom.Point {
	return geom.Point{X: b.X, Y: b.Y}
}

// Grabbed reports whether anyone holds the ball.
func (b Ball) Grabbed() bool {
	return b.GrabbedBy != ""
}

// Model is the replicated aggregate.
type Model struct {
	field      geom.Field
	balls      map[BallID]*Ball
	order      []BallID // listing order; later entries are drawn on top
	nextID     BallID
	wrapTime   int64
	leaseTicks int64
}

// Option configures a Model.
type Option func(*Model)

// WithGrabLease expires a grab after the owner has been idle for the given
// number of wrap ticks. Zero disables the lease. Every replica must use the
// same value.
func WithGrabLease(ticks int64) Option {
	return func(m *Model) {
		if ticks > 0 {
			m.leaseTicks = ticks
		}
	}
}

// New creates an empty model over a fixed field.
func New(field geom.Field, opts ...Option) *Model {
	m := &Model{
		field:  field,
		balls:  make(map[BallID]*Ball),
		nextID: 1,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Field returns the field dimensions.
func (m *Model) Field() geom.Field {
	return m.field
}

// WrapTime returns the number of wrap ticks applied so far.
func (m *Model) WrapTime() int64 {
	return m.wrapTime
}

// Len returns the number of balls.
func (m *Model) Len() int {
	return len(m.balls)
}

// Ball returns a copy of the ball with the given id.
func (m *Model) Ball(id BallID) (Ball, bool) {
	b, ok := m.balls[id]
	if !ok {
		return Ball{}, false
	}
	return *b, true
}

// Balls returns copies of all balls in listing order.
func (m *Model) Balls() []Ball {
	out := make([]Ball, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.balls[id])
	}
	return out
}

// AddBall creates a ball at (x, y). It always succeeds.
func (m *Model) AddBall(x, y int64) BallID {
	id := m.nextID
	m.nextID++
	m.balls[id] = &Ball{ID: id, X: x, Y: y}
	m.order = append(m.order, id)
	return id
}

// Grab gives p exclusive ownership of an unowned ball. A grab of a ball held
// by someone else is dropped; a re-grab by the owner changes nothing.
func (m *Model) Grab(p ParticipantID, id BallID) bool {
	b, ok := m.balls[id]
	if !ok || p == "" || b.GrabbedBy != "" {
		return false
	}
	b.GrabbedBy = p
	b.GrabbedAt = m.wrapTime
	return true
}

// Move repositions a ball held by p. Coordinates are taken as given: the
// sender's view has already clamped and quantized them.
func (m *Model) Move(p ParticipantID, id BallID, x, y int64) bool {
	b, ok := m.balls[id]
	if !ok || p == "" || b.GrabbedBy != p {
		return false
	}
	b.X, b.Y = x, y
	b.GrabbedAt = m.wrapTime
	return true
}

// Release clears p's ownership of a ball.
func (m *Model) Release(p ParticipantID, id BallID) bool {
	b, ok := m.balls[id]
	if !ok || p == "" || b.GrabbedBy != p {
		return false
	}
	b.GrabbedBy = ""
	b.GrabbedAt = 0
	return true
}

// RemoveBall deletes a ball. Ownership is not re-checked here; the sending
// view only issues a removal for a ball it holds.
func (m *Model) RemoveBall(p ParticipantID, id BallID) bool {
	if _, ok := m.balls[id]; !ok {
		return false
	}
	delete(m.balls, id)
	m.order = slices.DeleteFunc(m.order, func(o BallID) bool { return o == id })
	return true
}

// Leave releases every ball held by p.
func (m *Model) Leave(p ParticipantID) bool {
	if p == "" {
		return false
	}
	changed := false
	for _, id := range m.order {
		if b := m.balls[id]; b.GrabbedBy == p {
			b.GrabbedBy = ""
			b.GrabbedAt = 0
			changed = true
		}
	}
	return changed
}

// Tick advances the wrap timer by one and expires idle grabs when a lease is
// configured. Always applied.
func (m *Model) Tick() bool {
	m.wrapTime++
	if m.leaseTicks == 0 {
		return true
	}
	for _, id := range m.order {
		b := m.balls[id]
		if b.GrabbedBy != "" && m.wrapTime-b.GrabbedAt > m.leaseTicks {
			b.GrabbedBy = ""
			b.GrabbedAt = 0
		}
	}
	return true
}

// CheckInvariants verifies the internal bookkeeping. It is cheap enough to
// run after every intent in tests.
func (m *Model) CheckInvariants() error {
	if len(m.order) != len(m.balls) {
		return fmt.Errorf("order has %d entries, balls has %d", len(m.order), len(m.balls))
	}
	seen := make(map[BallID]bool, len(m.order))
	var prev BallID
	for _, id := range m.order {
		b, ok := m.balls[id]
		if !ok {
			return fmt.Errorf("ball %d listed but missing", id)
		}
		if seen[id] {
			return fmt.Errorf("ball %d listed twice", id)
		}
		seen[id] = true
		if b.ID != id {
			return fmt.Errorf("ball %d stored under id %d", b.ID, id)
		}
		if id <= prev {
			return fmt.Errorf("ball %d listed after %d", id, prev)
		}
		if id >= m.nextID {
			return fmt.Errorf("ball %d not below next id %d", id, m.nextID)
		}
		prev = id
	}
	return nil
}
