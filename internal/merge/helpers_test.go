package merge

import (
	"math"
	"math/rand/v2"

	"github.com/banshee-data/sasmerge/internal/curve"
)

// profile is a smooth, strictly decreasing test intensity.
func profile(q float64) float64 {
	return 100/(1+(q/0.05)*(q/0.05)) + 2
}

// linearQ returns n points spaced h apart starting at q0.
func linearQ(q0, h float64, n int) []float64 {
	q := make([]float64, n)
	for k := range q {
		q[k] = q0 + float64(k)*h
	}
	return q
}

// synthetic builds scale·profile(q) + offset with 1% relative uncertainty.
// A nil rng gives noise-free intensities.
func synthetic(name string, q []float64, scale, offset float64, rng *rand.Rand) curve.Curve {
	c := curve.Curve{
		Name:  name,
		Q:     append([]float64(nil), q...),
		I:     make([]float64, len(q)),
		Sigma: make([]float64, len(q)),
	}
	for k, x := range q {
		v := scale*profile(x) + offset
		s := 0.01 * math.Abs(v)
		if rng != nil {
			v += s * rng.NormFloat64()
		}
		c.I[k] = v
		c.Sigma[k] = s
	}
	return c
}

// pointGrid returns a linear grid with one bin centred on each q.
func pointGrid(q []float64) Grid {
	h := q[1] - q[0]
	g, err := NewGrid(q[0]-h/2, q[len(q)-1]+h/2, len(q), false)
	if err != nil {
		panic(err)
	}
	return g
}
