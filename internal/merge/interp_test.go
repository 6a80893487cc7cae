package merge

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sasmerge/internal/curve"
)

func TestInterpolatorAt(t *testing.T) {
	ref := curve.Curve{Name: "ref", Q: []float64{2, 0, 1}, I: []float64{40, 0, 10}}
	ip, err := NewInterpolator(ref, false)
	require.NoError(t, err)

	assert.Equal(t, 0.0, ip.lo)
	assert.Equal(t, 2.0, ip.hi)

	got, err := ip.At([]float64{0, 0.5, 1.5, 2})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 5, 25, 40}, got, 1e-12)
}

func TestInterpolatorAt_OutsideRange(t *testing.T) {
	ip, err := NewInterpolator(curve.Curve{Q: []float64{0, 1}, I: []float64{0, 1}}, false)
	require.NoError(t, err)

	_, err = ip.At([]float64{0.5, 1.01})
	assert.ErrorIs(t, err, ErrOutsideReference)
}

func TestInterpolator_EdgeWithinTolerance(t *testing.T) {
	q0, q1 := 0.01, 0.2
	ref := curve.Curve{
		Q: []float64{math.Nextafter(q0, 1), math.Nextafter(q1, 0)},
		I: []float64{10, 2},
	}
	ip, err := NewInterpolator(ref, false)
	require.NoError(t, err)

	c := curve.Curve{Q: []float64{q0, 0.1, q1}, I: []float64{1, 1, 1}, Sigma: []float64{1, 1, 1}}
	assert.Equal(t, c.Q, ip.Overlap(c).Q)

	got, err := ip.At(c.Q)
	require.NoError(t, err)
	assert.Equal(t, 10.0, got[0])
	assert.Equal(t, 2.0, got[2])
}

func TestInterpolator_DuplicateQ(t *testing.T) {
	ref := curve.Curve{Q: []float64{0, 1, 1, 2}, I: []float64{0, 10, 20, 40}}
	ip, err := NewInterpolator(ref, false)
	require.NoError(t, err)

	got, err := ip.At([]float64{1})
	require.NoError(t, err)
	assert.InDelta(t, 15.0, got[0], 1e-12)
}

func TestInterpolator_TooShort(t *testing.T) {
	tests := []struct {
		name string
		ref  curve.Curve
	}{
		{"empty", curve.Curve{}},
		{"single point", curve.Curve{Q: []float64{1}, I: []float64{1}}},
		{"single distinct q", curve.Curve{Q: []float64{1, 1}, I: []float64{1, 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewInterpolator(tt.ref, false)
			assert.ErrorIs(t, err, ErrReferenceTooShort)
		})
	}
}

func TestInterpolatorOverlap(t *testing.T) {
	ip, err := NewInterpolator(curve.Curve{Q: []float64{0.1, 0.3}, I: []float64{1, 2}}, false)
	require.NoError(t, err)

	c := curve.Curve{
		Q:     []float64{0.05, 0.1, 0.2, 0.3, 0.4},
		I:     []float64{1, 2, 3, 4, 5},
		Sigma: []float64{1, 1, 1, 1, 1},
	}
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, ip.Overlap(c).Q)
}

func TestSmoothingWindow(t *testing.T) {
	tests := []struct{ n, want int }{
		{0, 1}, {1, 1}, {50, 1}, {51, 2}, {100, 2}, {101, 3},
	}
	for _, tt := range tests {
		if got := SmoothingWindow(tt.n); got != tt.want {
			t.Errorf("SmoothingWindow(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestSmooth(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	tests := []struct {
		window int
		want   []float64
	}{
		{1, []float64{1, 2, 3, 4, 5}},
		{2, []float64{1.5, 2.5, 3.5, 4.5, 5}},
		{3, []float64{1.5, 2, 3, 4, 4.5}},
	}
	for _, tt := range tests {
		assert.InDeltaSlice(t, tt.want, Smooth(values, tt.window), 1e-12, "window %d", tt.window)
	}
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, values, "input must not change")
}

func TestNewInterpolator_Smooth(t *testing.T) {
	q := linearQ(0.01, 0.01, 100)
	ref := curve.Curve{Q: q, I: make([]float64, len(q))}
	for k := range ref.I {
		ref.I[k] = float64(k % 2) // alternating 0, 1
	}
	ip, err := NewInterpolator(ref, true)
	require.NoError(t, err)

	// a window of 2 averages neighbours to 0.5 everywhere but the last point
	got, err := ip.At(q[:98])
	require.NoError(t, err)
	for k, v := range got {
		assert.InDelta(t, 0.5, v, 1e-12, "point %d", k)
	}
}
