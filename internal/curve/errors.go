package curve

import "errors"

var (
	// ErrEmptyCurve indicates a curve without samples.
	ErrEmptyCurve = errors.New("curve has no data points")

	// ErrLengthMismatch indicates q, I and sigma columns of different length.
	ErrLengthMismatch = errors.New("column length mismatch")

	// ErrMissingSigma indicates a curve without the uncertainty column where one is required.
	ErrMissingSigma = errors.New("missing sigma column")

	// ErrNonFinite indicates a NaN or infinite q or intensity.
	ErrNonFinite = errors.New("non-finite value")

	// ErrNonPositiveSigma indicates a zero, negative or non-finite uncertainty.
	ErrNonPositiveSigma = errors.New("sigma must be strictly positive")

	// ErrNoDataLines indicates a file where no numeric rows were found.
	ErrNoDataLines = errors.New("no numeric data lines found")

	// ErrTooFewColumns indicates rows with fewer columns than required.
	ErrTooFewColumns = errors.New("too few columns")
)
