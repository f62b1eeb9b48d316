package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testField() Field {
	return Field{Width: 1024, Height: 600}
}

func TestField_RowCount(t *testing.T) {
	f := testField()

	seen := map[int]bool{}
	for y := int64(-50); y <= f.Height+50; y++ {
		seen[f.Row(y)] = true
	}

	assert.Len(t, seen, Rows)
	for r := 0; r < Rows; r++ {
		assert.True(t, seen[r], "row %d never produced", r)
	}
}

func TestField_BottomEdgeSharesLastRow(t *testing.T) {
	f := testField()
	step := f.Span() / Rows

	assert.Equal(t, Rows-1, f.Row(f.Height-1))
	assert.Equal(t, f.Row(f.Height-1), f.Row(f.Height-step/2))
	assert.Equal(t, f.Quantize(f.Height-1), f.Quantize(f.Height-step/2))
}

func TestField_QuantizeIsIdempotent(t *testing.T) {
	f := Field{Width: 300, Height: 173} // span not divisible by Rows

	for y := int64(0); y < f.Height; y++ {
		q := f.Quantize(y)
		assert.Equal(t, q, f.Quantize(q), "y=%d", y)
		assert.LessOrEqual(t, q, y)
	}
}

func TestField_Clamp(t *testing.T) {
	f := testField()

	tests := []struct {
		name string
		in   Point
		want Point
	}{
		{"negative x", Point{X: -10, Y: 0}, Point{X: 0, Y: 0}},
		{"negative y", Point{X: 5, Y: -40}, Point{X: 5, Y: 0}},
		{"past bottom", Point{X: 5, Y: 9999}, Point{X: 5, Y: f.RowY(Rows - 1)}},
		{"past right edge kept", Point{X: 2000, Y: 0}, Point{X: 2000, Y: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Clamp(tt.in))
		})
	}
}

func TestHit(t *testing.T) {
	p := Point{X: 100, Y: 100}
	c := BallDiameter

	assert.True(t, Hit(p, 100+c, 100+c), "centre")
	assert.True(t, Hit(p, 100, 100+c), "left rim")
	assert.False(t, Hit(p, 100, 100), "corner lies outside the circle")
	assert.False(t, Hit(p, 100+3*c, 100+c))
}

func TestHit_ExtremeCoordinates(t *testing.T) {
	far := []Point{
		{X: math.MaxInt64, Y: 0},
		{X: math.MinInt64, Y: 0},
		{X: 0, Y: math.MaxInt64},
		{X: math.MaxInt64 - BallDiameter, Y: math.MinInt64},
	}
	for _, p := range far {
		assert.False(t, Hit(p, 20, 20), "ball at %+v", p)
		assert.False(t, Hit(Point{}, p.X, p.Y), "pointer at %+v", p)
	}

	edge := Point{X: math.MaxInt64 - 2*BallDiameter, Y: 0}
	assert.True(t, Hit(edge, math.MaxInt64-BallDiameter, BallDiameter))
}

func TestFrequency(t *testing.T) {
	assert.InDelta(t, BaseFrequency, Frequency(0), 1e-9)
	assert.InDelta(t, BaseFrequency*4, Frequency(1), 1e-9)
	assert.InDelta(t, BaseFrequency*2, Frequency(0.5), 1e-9)
	assert.InDelta(t, Frequency(0), Frequency(-3), 1e-9)
	assert.InDelta(t, Frequency(1), Frequency(7), 1e-9)
	assert.False(t, math.IsNaN(Frequency(math.NaN())))
}

func TestField_Ratio(t *testing.T) {
	f := testField()
	assert.InDelta(t, 1.0, f.Ratio(0), 1e-9)
	assert.InDelta(t, 0.5, f.Ratio(300), 1e-9)
	assert.Equal(t, 0.0, Field{}.Ratio(10))
}

func TestPoint_Components(t *testing.T) {
	p := FromComponents(3, 4)
	x, y := p.Components()
	assert.Equal(t, int64(3), x)
	assert.Equal(t, int64(4), y)
	assert.Equal(t, Point{X: 4, Y: 6}, p.Add(Point{X: 1, Y: 2}))
	assert.Equal(t, Point{X: 2, Y: 2}, p.Sub(Point{X: 1, Y: 2}))
}
