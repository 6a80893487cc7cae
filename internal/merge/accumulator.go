package merge

import (
	"fmt"
	"math"

	"github.com/banshee-data/sasmerge/internal/curve"
)

// Accumulator collects inverse-variance weighted sums per grid bin. It lives
// for a single pass: zeroed at the start, filled by Add, read once by Merge.
// It is not safe for concurrent use; parallel producers fill their own
// Accumulator and fold it in with AddAccumulator.
type Accumulator struct {
	grid Grid
	sumI []float64
	sumQ []float64
	sumW []float64
}

// NewAccumulator returns an empty accumulator over g.
func NewAccumulator(g Grid) *Accumulator {
	n := g.Bins()
	return &Accumulator{
		grid: g,
		sumI: make([]float64, n),
		sumQ: make([]float64, n),
		sumW: make([]float64, n),
	}
}

// Add bins every point of a rescaled dataset with weight 1/σ². Points
// outside the grid are dropped. It returns the number of points binned.
func (a *Accumulator) Add(c curve.Curve) int {
	added := 0
	for k, q := range c.Q {
		bin, ok := a.grid.Bin(q)
		if !ok {
			continue
		}
		w := 1 / (c.Sigma[k] * c.Sigma[k])
		if math.IsInf(w, 0) || math.IsNaN(w) {
			continue
		}
		a.sumI[bin] += w * c.I[k]
		a.sumQ[bin] += w * q
		a.sumW[bin] += w
		added++
	}
	return added
}

// AddAccumulator folds the sums of o into a. Both must share the grid size.
func (a *Accumulator) AddAccumulator(o *Accumulator) error {
	if len(o.sumW) != len(a.sumW) {
		return fmt.Errorf("%w: accumulator sizes differ (%d vs %d)", ErrInvalidGrid, len(o.sumW), len(a.sumW))
	}
	for i := range a.sumW {
		a.sumI[i] += o.sumI[i]
		a.sumQ[i] += o.sumQ[i]
		a.sumW[i] += o.sumW[i]
	}
	return nil
}

// Weight returns the summed weight of bin i.
func (a *Accumulator) Weight(i int) float64 { return a.sumW[i] }

// Reset zeroes all sums.
func (a *Accumulator) Reset() {
	for i := range a.sumW {
		a.sumI[i], a.sumQ[i], a.sumW[i] = 0, 0, 0
	}
}

// Merge turns the sums into a curve: q and I are the weighted means of the
// bin and σ = (Σw)^(-1/2). Bins without weight are left out.
func (a *Accumulator) Merge(name string) curve.Curve {
	out := curve.Curve{Name: name, Q: []float64{}, I: []float64{}, Sigma: []float64{}}
	for i, w := range a.sumW {
		if !(w > 0) {
			continue
		}
		out.Q = append(out.Q, a.sumQ[i]/w)
		out.I = append(out.I, a.sumI[i]/w)
		out.Sigma = append(out.Sigma, 1/math.Sqrt(w))
	}
	return out
}
