package graph

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{name: "identical", a: []float64{1, 2, 3}, b: []float64{1, 2, 3}, want: 1},
		{name: "opposite", a: []float64{1, 0}, b: []float64{-1, 0}, want: -1},
		{name: "orthogonal", a: []float64{1, 0}, b: []float64{0, 1}, want: 0},
		{name: "zero vector", a: []float64{0, 0}, b: []float64{1, 1}, want: 0},
		{name: "both zero", a: []float64{0, 0}, b: []float64{0, 0}, want: 0},
		{name: "dimension mismatch", a: []float64{1, 2}, b: []float64{1, 2, 3}, want: 0},
		{name: "empty", a: nil, b: nil, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-12)
		})
	}
}

func TestCosine_Clamped(t *testing.T) {
	// Scaled copies of the same direction can overshoot 1 through float
	// rounding; the result must stay inside [-1, 1].
	a := []float64{0.1, 0.2, 0.3, 0.4}
	b := []float64{1e7 * 0.1, 1e7 * 0.2, 1e7 * 0.3, 1e7 * 0.4}
	got := Cosine(a, b)
	assert.LessOrEqual(t, got, 1.0)
	assert.GreaterOrEqual(t, got, -1.0)
	assert.InDelta(t, 1.0, got, 1e-9)
}

func TestCosine_Symmetric(t *testing.T) {
	a := []float64{0.3, -0.7, 0.2}
	b := []float64{-0.1, 0.5, 0.9}
	assert.Equal(t, Cosine(a, b), Cosine(b, a))
	assert.False(t, math.IsNaN(Cosine(a, b)))
}
