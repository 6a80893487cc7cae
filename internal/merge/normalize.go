package merge

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/sasmerge/internal/curve"
)

const (
	// NormalizeEpsilon is the value the minimum intensity is shifted to.
	NormalizeEpsilon = 1e-5

	// NormalizePoints is the number of leading points averaged for I0.
	NormalizePoints = 4
)

// Normalize shifts the intensity so its minimum becomes NormalizeEpsilon and
// divides intensity and σ by the mean of the first NormalizePoints shifted
// intensities. The curve is expected in ascending q order.
func Normalize(c curve.Curve) (curve.Curve, error) {
	if c.Len() < NormalizePoints {
		return curve.Curve{}, fmt.Errorf("%w: normalisation needs %d points, got %d", ErrTooFewPoints, NormalizePoints, c.Len())
	}
	shifted := make([]float64, c.Len())
	copy(shifted, c.I)
	floats.AddConst(NormalizeEpsilon-floats.Min(c.I), shifted)

	i0 := stat.Mean(shifted[:NormalizePoints], nil)

	out := c.Clone()
	for k := range shifted {
		out.I[k] = shifted[k] / i0
	}
	for k := range out.Sigma {
		out.Sigma[k] /= i0
	}
	return out, nil
}
