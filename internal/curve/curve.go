// Package curve holds the 1-D scattering curve type shared by the merge core,
// the loader and the reporting layer.
package curve

import (
	"fmt"
	"math"
	"sort"
)

// Curve is an ordered sequence of (q, I, σ) samples. Sigma is nil only for a
// reference read from a two-column file. Curves are treated as immutable once
// loaded: every helper below returns a fresh Curve.
type Curve struct {
	Name  string
	Q     []float64
	I     []float64
	Sigma []float64
}

// Point is a single (q, I, σ) sample.
type Point struct {
	Q     float64 `json:"q"`
	I     float64 `json:"i"`
	Sigma float64 `json:"sigma"`
}

// Len returns the number of samples.
func (c Curve) Len() int { return len(c.Q) }

// HasSigma reports whether uncertainties are present.
func (c Curve) HasSigma() bool { return c.Sigma != nil }

// Range returns the smallest and largest q. An empty curve returns NaN, NaN.
func (c Curve) Range() (float64, float64) {
	if len(c.Q) == 0 {
		return math.NaN(), math.NaN()
	}
	lo, hi := c.Q[0], c.Q[0]
	for _, q := range c.Q[1:] {
		if q < lo {
			lo = q
		}
		if q > hi {
			hi = q
		}
	}
	return lo, hi
}

// Validate checks that the columns line up and hold finite values. When
// requireSigma is set every σ must be strictly positive.
func (c Curve) Validate(requireSigma bool) error {
	n := len(c.Q)
	if n == 0 {
		return fmt.Errorf("%s: %w", c.label(), ErrEmptyCurve)
	}
	if len(c.I) != n {
		return fmt.Errorf("%s: %w: q has %d values, I has %d", c.label(), ErrLengthMismatch, n, len(c.I))
	}
	if c.Sigma != nil && len(c.Sigma) != n {
		return fmt.Errorf("%s: %w: q has %d values, sigma has %d", c.label(), ErrLengthMismatch, n, len(c.Sigma))
	}
	if requireSigma && c.Sigma == nil {
		return fmt.Errorf("%s: %w", c.label(), ErrMissingSigma)
	}
	for i := 0; i < n; i++ {
		if !finite(c.Q[i]) || !finite(c.I[i]) {
			return fmt.Errorf("%s: %w at point %d", c.label(), ErrNonFinite, i)
		}
		if c.Sigma != nil && requireSigma && !(c.Sigma[i] > 0 && finite(c.Sigma[i])) {
			return fmt.Errorf("%s: %w at point %d (sigma=%g)", c.label(), ErrNonPositiveSigma, i, c.Sigma[i])
		}
	}
	return nil
}

// Filter returns the samples whose q satisfies keep, preserving order.
func (c Curve) Filter(keep func(q float64) bool) Curve {
	out := Curve{Name: c.Name}
	for i, q := range c.Q {
		if !keep(q) {
			continue
		}
		out.Q = append(out.Q, q)
		out.I = append(out.I, c.I[i])
		if c.Sigma != nil {
			out.Sigma = append(out.Sigma, c.Sigma[i])
		}
	}
	if c.Sigma != nil && out.Sigma == nil {
		out.Sigma = []float64{}
	}
	return out
}

// Window returns the samples with lo <= q <= hi.
func (c Curve) Window(lo, hi float64) Curve {
	return c.Filter(func(q float64) bool { return q >= lo && q <= hi })
}

// Clone returns a deep copy.
func (c Curve) Clone() Curve {
	out := Curve{
		Name: c.Name,
		Q:    append([]float64(nil), c.Q...),
		I:    append([]float64(nil), c.I...),
	}
	if c.Sigma != nil {
		out.Sigma = append([]float64(nil), c.Sigma...)
	}
	return out
}

// Sorted returns a copy ordered by ascending q. The sort is stable so equal
// q values keep their file order.
func (c Curve) Sorted() Curve {
	idx := make([]int, len(c.Q))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return c.Q[idx[a]] < c.Q[idx[b]] })

	out := Curve{Name: c.Name, Q: make([]float64, len(idx)), I: make([]float64, len(idx))}
	if c.Sigma != nil {
		out.Sigma = make([]float64, len(idx))
	}
	for k, i := range idx {
		out.Q[k] = c.Q[i]
		out.I[k] = c.I[i]
		if c.Sigma != nil {
			out.Sigma[k] = c.Sigma[i]
		}
	}
	return out
}

// Points returns the samples as a slice of Point. Missing σ is reported as 0.
func (c Curve) Points() []Point {
	pts := make([]Point, len(c.Q))
	for i := range c.Q {
		pts[i] = Point{Q: c.Q[i], I: c.I[i]}
		if c.Sigma != nil {
			pts[i].Sigma = c.Sigma[i]
		}
	}
	return pts
}

// FromPoints builds a curve from a slice of Point.
func FromPoints(name string, pts []Point) Curve {
	c := Curve{
		Name:  name,
		Q:     make([]float64, len(pts)),
		I:     make([]float64, len(pts)),
		Sigma: make([]float64, len(pts)),
	}
	for i, p := range pts {
		c.Q[i], c.I[i], c.Sigma[i] = p.Q, p.I, p.Sigma
	}
	return c
}

func (c Curve) label() string {
	if c.Name == "" {
		return "curve"
	}
	return c.Name
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
