package model

import (
	"fmt"

	"github.com/roach88/musicbox/internal/geom"
	"github.com/roach88/musicbox/internal/ir"
)

// State is a deep copy of a Model, safe to hand to other goroutines and to
// send to a late joiner.
type State struct {
	Field      geom.Field `json:"field"`
	WrapTime   int64      `json:"wrapTime"`
	NextID     BallID     `json:"nextId"`
	LeaseTicks int64      `json:"leaseTicks,omitempty"`
	Balls      []Ball     `json:"balls"`
}

// Snapshot copies the model.
func (m *Model) Snapshot() State {
	return State{
		Field:      m.field,
		WrapTime:   m.wrapTime,
		NextID:     m.nextID,
		LeaseTicks: m.leaseTicks,
		Balls:      m.Balls(),
	}
}

// Restore rebuilds a model from a snapshot.
func Restore(s State) (*Model, error) {
	m := New(s.Field, WithGrabLease(s.LeaseTicks))
	m.wrapTime = s.WrapTime
	m.nextID = s.NextID
	if m.nextID < 1 {
		m.nextID = 1
	}
	for _, b := range s.Balls {
		if _, dup := m.balls[b.ID]; dup {
			return nil, fmt.Errorf("restore: duplicate ball %d", b.ID)
		}
		ball := b
		m.balls[b.ID] = &ball
		m.order = append(m.order, b.ID)
	}
	if err := m.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	return m, nil
}

// Find returns the top-most ball under (x, y). Later balls in listing order
// are drawn over earlier ones, so the search runs back to front.
func (s State) Find(x, y int64) (Ball, bool) {
	for i := len(s.Balls) - 1; i >= 0; i-- {
		if geom.Hit(s.Balls[i].Pos(), x, y) {
			return s.Balls[i], true
		}
	}
	return Ball{}, false
}

// Lookup returns the ball with the given id.
func (s State) Lookup(id BallID) (Ball, bool) {
	for _, b := range s.Balls {
		if b.ID == id {
			return b, true
		}
	}
	return Ball{}, false
}

// Canonical encodes the state as an ir.Object.
func (s State) Canonical() ir.Object {
	balls := make(ir.Array, len(s.Balls))
	for i, b := range s.Balls {
		balls[i] = ir.Object{
			"id":        ir.Int(b.ID),
			"x":         ir.Int(b.X),
			"y":         ir.Int(b.Y),
			"grabbedBy": ir.String(b.GrabbedBy),
			"grabbedAt": ir.Int(b.GrabbedAt),
		}
	}
	return ir.Object{
		"width":      ir.Int(s.Field.Width),
		"height":     ir.Int(s.Field.Height),
		"wrapTime":   ir.Int(s.WrapTime),
		"nextId":     ir.Int(s.NextID),
		"leaseTicks": ir.Int(s.LeaseTicks),
		"balls":      balls,
	}
}

// Digest hashes the canonical encoding. Two replicas agree exactly when their
// digests match.
func (s State) Digest() string {
	data, err := ir.MarshalCanonical(s.Canonical())
	if err != nil {
		// Canonical only produces ints and strings.
		panic(fmt.Sprintf("snapshot digest: %v", err))
	}
	return ir.HashWithDomain(ir.DomainSnapshot, data)
}

// Digest hashes the current state.
func (m *Model) Digest() string {
	return m.Snapshot().Digest()
}
