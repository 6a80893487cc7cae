package merge

import (
	"fmt"
	"sort"

	"github.com/banshee-data/sasmerge/internal/curve"
)

// TrimRange is the q interval covered by at least two datasets.
type TrimRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// NewTrimRange takes the per-dataset (min q, max q) ranges and returns the
// second-smallest minimum and the second-largest maximum. With exactly two
// datasets this is their full overlap.
func NewTrimRange(ranges [][2]float64) (TrimRange, error) {
	if len(ranges) < 2 {
		return TrimRange{}, fmt.Errorf("%w: trimming needs 2 datasets, got %d", ErrTooFewDatasets, len(ranges))
	}
	mins := make([]float64, len(ranges))
	maxs := make([]float64, len(ranges))
	for k, r := range ranges {
		mins[k], maxs[k] = r[0], r[1]
	}
	sort.Float64s(mins)
	sort.Float64s(maxs)
	return TrimRange{Min: mins[1], Max: maxs[len(maxs)-2]}, nil
}

// Apply drops points of c outside [Min, Max].
func (t TrimRange) Apply(c curve.Curve) curve.Curve {
	return c.Filter(t.Contains)
}

// Contains reports whether q lies inside the range.
func (t TrimRange) Contains(q float64) bool { return q >= t.Min && q <= t.Max }
