package merge

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Grid is the fixed set of N+1 bin edges every pass bins onto. Bin i holds
// Edges[i] <= q < Edges[i+1]; the last bin is closed at both ends.
type Grid struct {
	Edges []float64
	Log   bool
}

// NewGrid spans [qmin, qmax] with n bins, log-spaced or linear. The outer
// edges are pinned to qmin and qmax exactly so the extreme data points are
// never lost to rounding in the span.
func NewGrid(qmin, qmax float64, n int, logSpaced bool) (Grid, error) {
	switch {
	case n < 1:
		return Grid{}, fmt.Errorf("%w: need at least 1 bin, got %d", ErrInvalidGrid, n)
	case math.IsNaN(qmin) || math.IsNaN(qmax) || math.IsInf(qmin, 0) || math.IsInf(qmax, 0):
		return Grid{}, fmt.Errorf("%w: non-finite bounds [%g, %g]", ErrInvalidGrid, qmin, qmax)
	case !(qmin < qmax):
		return Grid{}, fmt.Errorf("%w: qmin %g must be below qmax %g", ErrInvalidGrid, qmin, qmax)
	case logSpaced && qmin <= 0:
		return Grid{}, fmt.Errorf("%w: log spacing needs qmin > 0, got %g", ErrInvalidGrid, qmin)
	}

	edges := make([]float64, n+1)
	if logSpaced {
		floats.LogSpan(edges, qmin, qmax)
	} else {
		floats.Span(edges, qmin, qmax)
	}
	edges[0], edges[n] = qmin, qmax
	return Grid{Edges: edges, Log: logSpaced}, nil
}

// Bins returns the number of bins.
func (g Grid) Bins() int {
	if len(g.Edges) == 0 {
		return 0
	}
	return len(g.Edges) - 1
}

// Min and Max return the outer edges.
func (g Grid) Min() float64 { return g.Edges[0] }
func (g Grid) Max() float64 { return g.Edges[len(g.Edges)-1] }

// Bin returns the bin holding q, or false when q is outside the grid.
func (g Grid) Bin(q float64) (int, bool) {
	n := g.Bins()
	if n == 0 || math.IsNaN(q) || q < g.Min() || q > g.Max() {
		return 0, false
	}
	if q == g.Edges[n] {
		return n - 1, true
	}
	// first edge >= q
	i := sort.SearchFloat64s(g.Edges, q)
	if g.Edges[i] == q {
		return i, true
	}
	return i - 1, true
}
