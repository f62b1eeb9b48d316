// Package geom maps field coordinates onto pitch rows and frequencies.
//
// All replicated coordinates are integer pixels. Floats appear only on the
// presentation side (pitch ratios and frequencies), which never feeds back
// into replicated state.
package geom

import "math"

const (
	// BallDiameter is the hit radius of a ball, in pixels. A ball's visual
	// footprint is a circle of radius BallDiameter centred at (X+D, Y+D).
	BallDiameter int64 = 20

	// Rows is the number of discrete pitch bands on the vertical axis.
	Rows = 12

	// BaseFrequency is the pitch of the lowest row (C4).
	BaseFrequency = 261.63

	// Semitones is the range covered by ratios 0..1.
	Semitones = 24
)

// Point is a position in field pixels.
type Point struct {
	X int64 `json:"x"`
	Y int64 `json:"y"`
}

// FromComponents builds a Point.
func FromComponents(x, y int64) Point {
	return Point{X: x, Y: y}
}

// Components splits a Point into its coordinates.
func (p Point) Components() (int64, int64) {
	return p.X, p.Y
}

// Add returns p+q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p-q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Field is the fixed playing area. It never changes after a session starts.
type Field struct {
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

// Span is the vertical travel available to a ball's top-left corner.
func (f Field) Span() int64 {
	s := f.Height - 2*BallDiameter
	if s < 0 {
		return 0
	}
	return s
}

// RowY returns the top coordinate of row r.
func (f Field) RowY(r int) int64 {
	if r < 0 {
		r = 0
	}
	if r >= Rows {
		r = Rows - 1
	}
	return int64(r) * f.Span() / Rows
}

// Row returns the band containing y. Values outside [0, Span] are clamped
// first, so the result is always in [0, Rows-1].
func (f Field) Row(y int64) int {
	y = f.clampY(y)
	row := 0
	for r := 1; r < Rows; r++ {
		if f.RowY(r) <= y {
			row = r
		}
	}
	return row
}

// Quantize snaps y to the top of its row.
func (f Field) Quantize(y int64) int64 {
	return f.RowY(f.Row(y))
}

// Clamp applies the drag constraints: x is never negative, y is clamped to
// the span and snapped to a row. x may exceed Width; that is how a ball is
// dragged off the field for removal.
func (f Field) Clamp(p Point) Point {
	if p.X < 0 {
		p.X = 0
	}
	p.Y = f.Quantize(p.Y)
	return p
}

func (f Field) clampY(y int64) int64 {
	if y < 0 {
		return 0
	}
	if max := f.Span(); y > max {
		return max
	}
	return y
}

// Ratio is the normalized height of y: 1 at the top edge, 0 at the bottom.
func (f Field) Ratio(y int64) float64 {
	if f.Height <= 0 {
		return 0
	}
	return 1 - float64(y)/float64(f.Height)
}

// Hit reports whether the point (x, y) lies on a ball whose top-left corner
// is at p.
func Hit(p Point, x, y int64) bool {
	dx, ok := centreOffset(p.X, x)
	if !ok {
		return false
	}
	dy, ok := centreOffset(p.Y, y)
	if !ok {
		return false
	}
	return dx*dx+dy*dy <= BallDiameter*BallDiameter
}

// centreOffset returns v's offset from the centre of a ball whose box starts at
// corner. It reports false when v is outside the ball's bounding box, which
// includes any coordinate far enough away to overflow the subtraction.
func centreOffset(corner, v int64) (int64, bool) {
	if v < corner {
		return 0, false
	}
	d := v - corner
	if d < 0 || d > 2*BallDiameter {
		return 0, false
	}
	return d - BallDiameter, true
}

// Frequency maps a ratio in [0, 1] to an equal-tempered pitch, in Hz.
// Ratios are snapped to the nearest semitone.
func Frequency(ratio float64) float64 {
	if ratio < 0 || math.IsNaN(ratio) {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	step := math.Round(ratio * Semitones)
	return BaseFrequency * math.Pow(2, step/12)
}
