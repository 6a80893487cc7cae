package merge

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/sasmerge/internal/curve"
)

const (
	// fitParams is the number of fitted parameters (scale and offset).
	fitParams = 2

	// MinOverlapPoints is the smallest overlap leaving a positive dof.
	MinOverlapPoints = fitParams + 1

	// singularTolerance bounds det(A)/(A00·A11) of the normal matrix. By
	// Cauchy-Schwarz the ratio is 0 exactly when the reference is constant
	// over the overlap, and it does not depend on the intensity units.
	singularTolerance = 1e-12

	// scaleTolerance bounds |a|·max|I_ref| relative to max|I|.
	scaleTolerance = 1e-12
)

// FitResult is the outcome of aligning one dataset with the reference.
type FitResult struct {
	// Scale and Offset map the reference onto the dataset: I ≈ Scale·I_ref + Offset.
	Scale  float64
	Offset float64

	// Covariance of (Scale, Offset), scaled by Chi2r.
	Covariance [2][2]float64

	// OverlapQ holds the q values used in the fit, Fitted the model at those q
	// and Residuals the standardised residuals (I − fit)/σ.
	OverlapQ  []float64
	Fitted    []float64
	Residuals []float64

	DOF    int
	Chi2r  float64
	PValue float64
}

// Overlap returns the number of points used in the fit.
func (f FitResult) Overlap() int { return len(f.OverlapQ) }

// ScaleFactor is the multiplicative correction applied to the dataset, 1/Scale.
func (f FitResult) ScaleFactor() float64 { return 1 / f.Scale }

// Background is the additive correction applied after scaling, −Offset/Scale.
func (f FitResult) Background() float64 { return -f.Offset / f.Scale }

// ScaleError is the one-sigma uncertainty of Scale.
func (f FitResult) ScaleError() float64 { return math.Sqrt(f.Covariance[0][0]) }

// OffsetError is the one-sigma uncertainty of Offset.
func (f FitResult) OffsetError() float64 { return math.Sqrt(f.Covariance[1][1]) }

// Incompatible reports a p-value below IncompatibilityThreshold.
func (f FitResult) Incompatible() bool { return f.PValue < IncompatibilityThreshold }

// FitScale fits I = a·ref + b to the overlap part of a dataset by weighted
// least squares with weights 1/σ². ref holds the reference intensity
// interpolated at overlap.Q.
func FitScale(overlap curve.Curve, ref []float64) (FitResult, error) {
	m := len(overlap.Q)
	if len(ref) != m || len(overlap.I) != m || len(overlap.Sigma) != m {
		return FitResult{}, fmt.Errorf("%w: overlap has %d points, reference %d", curve.ErrLengthMismatch, m, len(ref))
	}
	if m < MinOverlapPoints {
		return FitResult{}, fmt.Errorf("%w: %d overlapping points", ErrInsufficientOverlap, m)
	}

	var s, sx, sxx, sy, sxy float64
	var maxX, maxY float64
	for k := 0; k < m; k++ {
		sigma := overlap.Sigma[k]
		if !(sigma > 0) || math.IsInf(sigma, 0) {
			return FitResult{}, fmt.Errorf("%w: sigma=%g at q=%g", ErrInvalidSigma, sigma, overlap.Q[k])
		}
		w := 1 / (sigma * sigma)
		x, y := ref[k], overlap.I[k]
		s += w
		sx += w * x
		sxx += w * x * x
		sy += w * y
		sxy += w * x * y
		maxX = math.Max(maxX, math.Abs(x))
		maxY = math.Max(maxY, math.Abs(y))
	}

	if det := sxx*s - sx*sx; !(det > singularTolerance*sxx*s) {
		return FitResult{}, ErrSingularFit
	}

	normal := mat.NewSymDense(fitParams, []float64{sxx, sx, sx, s})
	var chol mat.Cholesky
	if ok := chol.Factorize(normal); !ok {
		return FitResult{}, ErrSingularFit
	}
	var sol mat.VecDense
	if err := chol.SolveVecTo(&sol, mat.NewVecDense(fitParams, []float64{sxy, sy})); err != nil {
		return FitResult{}, fmt.Errorf("%w: %v", ErrSingularFit, err)
	}
	a, b := sol.AtVec(0), sol.AtVec(1)
	if math.IsNaN(a) || math.IsInf(a, 0) || math.Abs(a)*maxX <= scaleTolerance*maxY {
		return FitResult{}, fmt.Errorf("%w: a=%g", ErrDegenerateScale, a)
	}

	res := FitResult{
		Scale:     a,
		Offset:    b,
		OverlapQ:  append([]float64(nil), overlap.Q...),
		Fitted:    make([]float64, m),
		Residuals: make([]float64, m),
		DOF:       m - fitParams,
	}
	for k := 0; k < m; k++ {
		res.Fitted[k] = a*ref[k] + b
		res.Residuals[k] = (overlap.I[k] - res.Fitted[k]) / overlap.Sigma[k]
	}

	chi2r, p, err := GoodnessOfFit(res.Residuals, res.DOF)
	if err != nil {
		return FitResult{}, err
	}
	res.Chi2r, res.PValue = chi2r, p

	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return FitResult{}, fmt.Errorf("%w: %v", ErrSingularFit, err)
	}
	for r := 0; r < fitParams; r++ {
		for c := 0; c < fitParams; c++ {
			res.Covariance[r][c] = inv.At(r, c) * chi2r
		}
	}
	return res, nil
}

// Rescale applies a fit to every point of c, not just the overlap used to
// obtain it: I' = (I − b)/a and σ' = σ/a. Points outside the overlap are
// therefore extrapolated with the same (a, b).
func Rescale(c curve.Curve, fit FitResult) curve.Curve {
	out := curve.Curve{
		Name:  c.Name,
		Q:     append([]float64(nil), c.Q...),
		I:     make([]float64, len(c.I)),
		Sigma: make([]float64, len(c.Sigma)),
	}
	for k := range c.I {
		out.I[k] = (c.I[k] - fit.Offset) / fit.Scale
	}
	for k := range c.Sigma {
		out.Sigma[k] = c.Sigma[k] / fit.Scale
	}
	return out
}
