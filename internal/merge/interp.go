package merge

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"

	"github.com/banshee-data/sasmerge/internal/curve"
)

// rangeTolerance is the relative slack on the reference q-range. A merged
// reference carries weighted-mean q values that may sit an ulp or two off
// the measured q they came from.
const rangeTolerance = 1e-12

// Interpolator evaluates a reference curve at arbitrary q by piecewise-linear
// interpolation. Queries must lie inside the reference q-range, widened by
// rangeTolerance.
type Interpolator struct {
	q, i   []float64
	lo, hi float64
	tol    float64
	pl     interp.PiecewiseLinear
}

// NewInterpolator prepares ref for interpolation. The reference is sorted by
// q and repeated q values are collapsed to their mean intensity. With smooth
// set, intensities are first replaced by a moving average over
// SmoothingWindow(len) points; only the reference is ever smoothed.
func NewInterpolator(ref curve.Curve, smooth bool) (*Interpolator, error) {
	if len(ref.Q) != len(ref.I) {
		return nil, fmt.Errorf("%w: reference q/I lengths differ", curve.ErrLengthMismatch)
	}
	sorted := ref.Sorted()
	intensity := sorted.I
	if smooth {
		intensity = Smooth(intensity, SmoothingWindow(len(intensity)))
	}

	q, i := collapseDuplicates(sorted.Q, intensity)
	if len(q) < 2 {
		return nil, ErrReferenceTooShort
	}

	lo, hi := q[0], q[len(q)-1]
	ip := &Interpolator{
		q: q, i: i, lo: lo, hi: hi,
		tol: rangeTolerance * math.Max(math.Abs(lo), math.Abs(hi)),
	}
	if err := ip.pl.Fit(q, i); err != nil {
		return nil, fmt.Errorf("fit interpolant: %w", err)
	}
	return ip, nil
}

// Overlap restricts c to the reference q-range, the subset usable for fitting.
func (ip *Interpolator) Overlap(c curve.Curve) curve.Curve {
	return c.Window(ip.lo-ip.tol, ip.hi+ip.tol)
}

// At returns the interpolated reference intensity at each q. Queries within
// the tolerance band outside the range take the end value.
func (ip *Interpolator) At(q []float64) ([]float64, error) {
	out := make([]float64, len(q))
	for k, x := range q {
		if x < ip.lo-ip.tol || x > ip.hi+ip.tol || math.IsNaN(x) {
			return nil, fmt.Errorf("%w: q=%g not in [%g, %g]", ErrOutsideReference, x, ip.lo, ip.hi)
		}
		out[k] = ip.pl.Predict(math.Min(math.Max(x, ip.lo), ip.hi))
	}
	return out, nil
}

// SmoothingWindow is the boxcar width used for reference smoothing:
// ceil(n/50), at least 1.
func SmoothingWindow(n int) int {
	w := int(math.Ceil(float64(n) / 50))
	if w < 1 {
		return 1
	}
	return w
}

// Smooth returns the centred moving average of values over window points.
// Near the ends the window shrinks to the points that exist.
func Smooth(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 1 {
		copy(out, values)
		return out
	}
	left, right := (window-1)/2, window/2
	for k := range values {
		lo, hi := k-left, k+right
		if lo < 0 {
			lo = 0
		}
		if hi > len(values)-1 {
			hi = len(values) - 1
		}
		var sum float64
		for j := lo; j <= hi; j++ {
			sum += values[j]
		}
		out[k] = sum / float64(hi-lo+1)
	}
	return out
}

// collapseDuplicates merges runs of equal q (input sorted) into one point
// carrying the mean intensity, so the interpolant sees strictly increasing q.
func collapseDuplicates(q, i []float64) ([]float64, []float64) {
	outQ := make([]float64, 0, len(q))
	outI := make([]float64, 0, len(i))
	for k := 0; k < len(q); {
		j := k
		var sum float64
		for j < len(q) && q[j] == q[k] {
			sum += i[j]
			j++
		}
		outQ = append(outQ, q[k])
		outI = append(outI, sum/float64(j-k))
		k = j
	}
	return outQ, outI
}
