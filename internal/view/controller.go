package view

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/musicbox/internal/engine"
	"github.com/roach88/musicbox/internal/geom"
	"github.com/roach88/musicbox/internal/ir"
	"github.com/roach88/musicbox/internal/model"
)

// PointerID identifies one input pointer (mouse, finger, pen).
type PointerID int

// StateReader gives the controller a consistent copy of the replica.
// *engine.Replica implements it.
type StateReader interface {
	Snapshot() model.State
}

// Capture is the presentation's pointer-capture hook. Release is called on
// every pointer-up, whether or not a drag was in progress.
type Capture interface {
	Release(pid PointerID)
}

// CaptureFunc adapts a function to Capture.
type CaptureFunc func(pid PointerID)

// Release calls f.
func (f CaptureFunc) Release(pid PointerID) { f(pid) }

// GrabSession is one in-progress drag.
type GrabSession struct {
	BallID model.BallID
	// GrabPoint is where the pointer was when the drag started.
	GrabPoint geom.Point
	// Translation is where the ball was when the drag started.
	Translation geom.Point
	// Last is the most recent position published for the ball, which the
	// snapshot lags while the move is in flight. Moved is false until then.
	Last  geom.Point
	Moved bool
}

// Position returns the ball position for a pointer at (x, y), before
// clamping.
func (g GrabSession) Position(x, y int64) geom.Point {
	return geom.FromComponents(x, y).Sub(g.GrabPoint).Add(g.Translation)
}

// Controller is the per-participant pointer state machine. A pointer is
// idle when it has no GrabSession and dragging when it has one.
//
// Not safe for concurrent use; the presentation loop owns it.
type Controller struct {
	self     model.ParticipantID
	state    StateReader
	pub      engine.Publisher
	capture  Capture
	sessions map[PointerID]GrabSession
	logger   *slog.Logger
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithCapture installs a pointer-capture hook.
func WithCapture(c Capture) ControllerOption {
	return func(ctl *Controller) {
		ctl.capture = c
	}
}

// WithControllerLogger overrides slog.Default.
func WithControllerLogger(l *slog.Logger) ControllerOption {
	return func(ctl *Controller) {
		ctl.logger = l
	}
}

// NewController creates a controller acting for participant self.
func NewController(self model.ParticipantID, state StateReader, pub engine.Publisher, opts ...ControllerOption) *Controller {
	c := &Controller{
		self:     self,
		state:    state,
		pub:      pub,
		capture:  CaptureFunc(func(PointerID) {}),
		sessions: make(map[PointerID]GrabSession),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Self returns the participant the controller acts for.
func (c *Controller) Self() model.ParticipantID {
	return c.self
}

// Session returns the drag in progress for pid, if any.
func (c *Controller) Session(pid PointerID) (GrabSession, bool) {
	g, ok := c.sessions[pid]
	return g, ok
}

// Dragging returns the number of active drags.
func (c *Controller) Dragging() int {
	return len(c.sessions)
}

// PointerDown starts a drag on the top-most ball under (x, y). Nothing
// happens if the pointer already drags something, if it hit nothing, or if
// the ball is held by another participant.
func (c *Controller) PointerDown(ctx context.Context, pid PointerID, x, y int64) error {
	if _, busy := c.sessions[pid]; busy {
		return nil
	}
	ball, ok := c.state.Snapshot().Find(x, y)
	if !ok {
		return nil
	}
	if ball.Grabbed() && ball.GrabbedBy != c.self {
		c.logger.Debug("grab skipped: held by another participant",
			"ball", ball.ID, "owner", ball.GrabbedBy)
		return nil
	}

	c.sessions[pid] = GrabSession{
		BallID:      ball.ID,
		GrabPoint:   geom.FromComponents(x, y),
		Translation: ball.Pos(),
	}
	return c.publish(ctx, model.KindGrab, model.GrabArgs(c.self, ball.ID))
}

// PointerMove drags the ball held by pid. buttons is the pressed-button mask;
// zero means the pointer is hovering and the event is ignored.
func (c *Controller) PointerMove(ctx context.Context, pid PointerID, x, y int64, buttons uint) error {
	if buttons == 0 {
		return nil
	}
	g, ok := c.sessions[pid]
	if !ok {
		return nil
	}
	field := c.state.Snapshot().Field
	p := field.Clamp(g.Position(x, y))
	if err := c.publish(ctx, model.KindMove, model.MoveArgs(c.self, g.BallID, p.X, p.Y)); err != nil {
		return err
	}
	g.Last, g.Moved = p, true
	c.sessions[pid] = g
	return nil
}

// PointerUp ends the drag for pid. The ball is released unless another
// participant holds it; if it was dragged past the right edge it is removed
// first. A grab still in flight is assumed to succeed: the model ignores
// the remove and release if it did not.
func (c *Controller) PointerUp(ctx context.Context, pid PointerID) error {
	c.capture.Release(pid)

	g, ok := c.sessions[pid]
	if !ok {
		return nil
	}
	delete(c.sessions, pid)

	s := c.state.Snapshot()
	ball, ok := s.Lookup(g.BallID)
	if !ok || (ball.Grabbed() && ball.GrabbedBy != c.self) {
		return nil
	}
	x := ball.X
	if g.Moved {
		x = g.Last.X
	}
	if x > s.Field.Width {
		if err := c.publish(ctx, model.KindRemoveBall, model.RemoveBallArgs(c.self, ball.ID)); err != nil {
			return err
		}
	}
	return c.publish(ctx, model.KindRelease, model.ReleaseArgs(c.self, ball.ID))
}

// AddBall drops a new ball at the tray position near the top-left corner.
func (c *Controller) AddBall(ctx context.Context) error {
	return c.AddBallAt(ctx, TrayX, TrayY)
}

// AddBallAt drops a new ball at (x, y), clamped onto the field's rows.
func (c *Controller) AddBallAt(ctx context.Context, x, y int64) error {
	p := c.state.Snapshot().Field.Clamp(geom.FromComponents(x, y))
	return c.publish(ctx, model.KindAddBall, model.AddBallArgs(p.X, p.Y))
}

// Tray position for new balls.
const (
	TrayX = 2 * geom.BallDiameter
	TrayY = 2 * geom.BallDiameter
)

func (c *Controller) publish(ctx context.Context, kind ir.Kind, args ir.Object) error {
	if err := c.pub.Publish(ctx, kind, args); err != nil {
		return fmt.Errorf("publish %s: %w", kind, err)
	}
	c.logger.Debug("intent published", "kind", kind, "view_id", c.self)
	return nil
}
