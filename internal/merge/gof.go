package merge

import (
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"
)

// IncompatibilityThreshold is the p-value below which a dataset is flagged
// as probably incompatible with the reference.
const IncompatibilityThreshold = 1e-4

// GoodnessOfFit returns the reduced chi-square Σ R²/dof of standardised
// residuals and the upper-tail probability P(χ²_dof > dof·chi2r).
func GoodnessOfFit(residuals []float64, dof int) (chi2r, p float64, err error) {
	if dof <= 0 {
		return 0, 0, fmt.Errorf("%w: dof=%d", ErrInsufficientOverlap, dof)
	}
	var chi2 float64
	for _, r := range residuals {
		chi2 += r * r
	}
	chi2r = chi2 / float64(dof)
	p = distuv.ChiSquared{K: float64(dof)}.Survival(chi2)
	// guard against rounding just outside [0, 1]
	if p < 0 {
		p = 0
	} else if p > 1 {
		p = 1
	}
	return chi2r, p, nil
}
