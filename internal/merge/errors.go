package merge

import (
	"errors"
	"fmt"
)

// Fit and merge failures. Per-dataset failures are wrapped in DatasetError.
var (
	// ErrNoDatasets indicates a merge was requested without any input.
	ErrNoDatasets = errors.New("no datasets to merge")

	// ErrInsufficientOverlap indicates fewer than 3 dataset points inside the
	// reference q-range, leaving no degrees of freedom for the 2-parameter fit.
	ErrInsufficientOverlap = errors.New("insufficient overlap with reference (dof <= 0)")

	// ErrInvalidSigma indicates a zero, negative or non-finite uncertainty in a fit.
	ErrInvalidSigma = errors.New("sigma must be strictly positive")

	// ErrSingularFit indicates a normal matrix that is not positive definite,
	// e.g. a reference that is constant over the overlap.
	ErrSingularFit = errors.New("singular normal equations")

	// ErrDegenerateScale indicates a fitted scale factor at or near zero.
	ErrDegenerateScale = errors.New("scale factor degenerate")

	// ErrReferenceTooShort indicates a reference with fewer than 2 distinct q values.
	ErrReferenceTooShort = errors.New("reference needs at least 2 distinct q values")

	// ErrOutsideReference indicates an interpolation query outside the reference q-range.
	ErrOutsideReference = errors.New("query outside reference q-range")

	// ErrInvalidGrid indicates unusable merge grid bounds or point count.
	ErrInvalidGrid = errors.New("invalid merge grid")

	// ErrTooFewDatasets indicates range trimming with fewer than 2 datasets.
	ErrTooFewDatasets = errors.New("range trimming needs at least 2 datasets")

	// ErrTrimEmpty indicates a trim range holding none of the merged points.
	ErrTrimEmpty = errors.New("range trimming would remove every merged point")

	// ErrTooFewPoints indicates normalisation with fewer than 4 merged points.
	ErrTooFewPoints = errors.New("normalisation needs at least 4 merged points")

	// ErrNoMergedPoints indicates a pass in which no bin received any weight.
	ErrNoMergedPoints = errors.New("merged curve is empty")
)

// DatasetError records a failure while processing one dataset of a pass.
type DatasetError struct {
	// Dataset is the dataset name (file name or label).
	Dataset string

	// Op names the failed step, e.g. "fit" or "interpolate".
	Op string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *DatasetError) Error() string {
	return fmt.Sprintf("dataset %s: %s: %v", e.Dataset, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *DatasetError) Unwrap() error { return e.Err }
