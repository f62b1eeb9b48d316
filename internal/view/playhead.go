package view

import (
	"time"

	"github.com/roach88/musicbox/internal/geom"
	"github.com/roach88/musicbox/internal/model"
)

// Clock reads wall time. The playhead is the only component that does.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock is the real wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// Note is one ball crossed by the playhead.
type Note struct {
	Ball      model.BallID
	X, Y      int64
	Ratio     float64 // 1 at the top of the field, 0 at the bottom
	Frequency float64
}

// Playhead is the local bar sweeping the field. It restarts from the left
// edge whenever the replicated wrap counter changes, and otherwise moves at
// width/period pixels per second. Between a wrap tick arriving late and the
// next one it may run past the right edge; balls parked there never sound.
type Playhead struct {
	clock  Clock
	period time.Duration

	lastWrapTime int64
	lastWrapAt   time.Time
	pos          float64
}

// NewPlayhead creates a playhead that crosses the field once per period.
// The first Advance anchors it at the replica's current wrap time.
func NewPlayhead(period time.Duration, clock Clock) *Playhead {
	if clock == nil {
		clock = SystemClock
	}
	return &Playhead{
		clock:        clock,
		period:       period,
		lastWrapTime: -1,
	}
}

// PeriodForTPS returns the sweep period for a tick rate in Hz.
func PeriodForTPS(tps float64) time.Duration {
	if tps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / tps)
}

// Position returns the bar's x coordinate after the last Advance.
func (p *Playhead) Position() float64 {
	return p.pos
}

// Advance moves the bar to the current time and returns the balls it crossed
// since the previous call, in listing order.
func (p *Playhead) Advance(s model.State) []Note {
	now := p.clock.Now()
	if s.WrapTime != p.lastWrapTime {
		first := p.lastWrapTime < 0
		p.lastWrapTime = s.WrapTime
		p.lastWrapAt = now
		if first {
			p.pos = 0
			return nil
		}
	}

	prev := p.pos
	next := p.position(now, s.Field.Width)
	p.pos = next
	return swept(s, prev, next)
}

func (p *Playhead) position(now time.Time, width int64) float64 {
	if p.period <= 0 {
		return 0
	}
	elapsed := now.Sub(p.lastWrapAt)
	if elapsed < 0 {
		elapsed = 0
	}
	return float64(elapsed) / float64(p.period) * float64(width)
}

// Swept reports whether x lies in the interval the bar covered moving from
// prev to next. When next < prev the bar wrapped, and the interval is
// [prev, width) plus [0, next). Positions outside [0, width) are never swept.
func Swept(x int64, prev, next float64, width int64) bool {
	if x < 0 || x >= width {
		return false
	}
	fx := float64(x)
	if prev <= next {
		return prev <= fx && fx < next
	}
	return fx >= prev || fx < next
}

func swept(s model.State, prev, next float64) []Note {
	var notes []Note
	for _, b := range s.Balls {
		if !Swept(b.X, prev, next, s.Field.Width) {
			continue
		}
		ratio := s.Field.Ratio(b.Y)
		notes = append(notes, Note{
			Ball:      b.ID,
			X:         b.X,
			Y:         b.Y,
			Ratio:     ratio,
			Frequency: geom.Frequency(ratio),
		})
	}
	return notes
}
