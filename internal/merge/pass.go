// Package merge aligns scattering curves against a reference, bins them onto
// a common q grid and iterates until the per-dataset fit quality settles.
package merge

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/sasmerge/internal/curve"
	"github.com/banshee-data/sasmerge/internal/monitoring"
)

// MergedName is the name given to the merged curve of a pass.
const MergedName = "merged"

// PassOptions configures one merge pass.
type PassOptions struct {
	// Grid is the common binning grid.
	Grid Grid

	// QMax cuts every dataset to q <= QMax before fitting. Zero disables the cut.
	QMax float64

	// RefQMin and RefQMax restrict the reference to the window used for
	// interpolation and fitting. Zero leaves that side open.
	RefQMin float64
	RefQMax float64

	// Smooth applies the moving-average pre-pass to the reference.
	Smooth bool

	// Trim removes merged points outside the range covered by two datasets.
	Trim bool

	// Normalize rescales the merged curve to unit intensity at low q.
	Normalize bool

	// Strict aborts the pass on the first dataset failure instead of skipping it.
	Strict bool

	// Workers bounds concurrent dataset fits. Zero picks
	// min(len(datasets), GOMAXPROCS).
	Workers int
}

func (o PassOptions) workers(n int) int {
	if o.Workers > 0 {
		return o.Workers
	}
	w := runtime.GOMAXPROCS(0)
	if n < w {
		w = n
	}
	if w < 1 {
		w = 1
	}
	return w
}

// referenceWindow applies RefQMin/RefQMax to a reference candidate.
func (o PassOptions) referenceWindow(ref curve.Curve) curve.Curve {
	if o.RefQMin == 0 && o.RefQMax == 0 {
		return ref
	}
	lo, hi := math.Inf(-1), math.Inf(1)
	if o.RefQMin != 0 {
		lo = o.RefQMin
	}
	if o.RefQMax != 0 {
		hi = o.RefQMax
	}
	return ref.Window(lo, hi)
}

// DatasetResult is the per-dataset outcome of a pass. Err is set when the
// dataset was skipped; Fit and Scaled are then zero.
type DatasetResult struct {
	Index int
	Name  string

	// QMin and QMax are the dataset's full q-range, before the QMax cut.
	QMin float64
	QMax float64

	// Raw is the dataset after the QMax cut, Scaled the same points rescaled.
	Raw    curve.Curve
	Scaled curve.Curve
	Fit    FitResult
	Err    error
}

// Skipped reports whether the dataset did not contribute to the merge.
func (d DatasetResult) Skipped() bool { return d.Err != nil }

// PassResult is everything one merge pass produced.
type PassResult struct {
	Kind      CandidateKind
	Reference curve.Curve
	Datasets  []DatasetResult
	Merged    curve.Curve

	// Trim is set when range trimming was applied.
	Trim *TrimRange

	// Normalized reports whether normalisation was applied.
	Normalized bool

	// Errors collects every per-dataset failure and skipped post-processing step.
	Errors []error
}

// Chi2r returns the per-dataset reduced chi-square vector in dataset order.
// Skipped datasets carry NaN.
func (p PassResult) Chi2r() []float64 {
	out := make([]float64, len(p.Datasets))
	for k, d := range p.Datasets {
		if d.Skipped() {
			out[k] = math.NaN()
			continue
		}
		out[k] = d.Fit.Chi2r
	}
	return out
}

// Contributing returns the number of datasets that were merged.
func (p PassResult) Contributing() int {
	n := 0
	for _, d := range p.Datasets {
		if !d.Skipped() {
			n++
		}
	}
	return n
}

// RunPass aligns every dataset with ref, bins the rescaled datasets onto the
// grid and returns the merged curve. Dataset fits run concurrently; binning
// happens afterwards in dataset order, so the result does not depend on
// scheduling.
func RunPass(datasets []curve.Curve, ref curve.Curve, kind CandidateKind, opts PassOptions) (PassResult, error) {
	if len(datasets) == 0 {
		return PassResult{}, ErrNoDatasets
	}
	if opts.Grid.Bins() == 0 {
		return PassResult{}, fmt.Errorf("%w: empty grid", ErrInvalidGrid)
	}

	windowed := opts.referenceWindow(ref)
	ip, err := NewInterpolator(windowed, opts.Smooth)
	if err != nil {
		return PassResult{}, fmt.Errorf("reference %s: %w", ref.Name, err)
	}

	res := PassResult{
		Kind:      kind,
		Reference: windowed,
		Datasets:  make([]DatasetResult, len(datasets)),
	}

	var g errgroup.Group
	g.SetLimit(opts.workers(len(datasets)))
	for k := range datasets {
		g.Go(func() error {
			res.Datasets[k] = fitDataset(k, datasets[k], ip, opts.QMax)
			return nil
		})
	}
	_ = g.Wait()

	acc := NewAccumulator(opts.Grid)
	var ranges [][2]float64
	for _, d := range res.Datasets {
		if d.Skipped() {
			if opts.Strict {
				return PassResult{}, d.Err
			}
			monitoring.Warnf("skipping %s: %v", d.Name, d.Err)
			res.Errors = append(res.Errors, d.Err)
			continue
		}
		if d.Fit.Scale < 0 {
			monitoring.Warnf("%s has a negative scale factor (a=%g)", d.Name, d.Fit.Scale)
		}
		acc.Add(d.Scaled)
		ranges = append(ranges, [2]float64{d.QMin, d.QMax})
	}
	if len(ranges) == 0 {
		return PassResult{}, fmt.Errorf("%w: every dataset failed: %w", ErrNoMergedPoints, errors.Join(res.Errors...))
	}

	merged := acc.Merge(MergedName)

	if opts.Trim {
		tr, err := NewTrimRange(ranges)
		if err != nil {
			monitoring.Warnf("range trimming skipped: %v", err)
			res.Errors = append(res.Errors, err)
		} else if trimmed := tr.Apply(merged); trimmed.Len() == 0 {
			err = fmt.Errorf("%w: no merged point in [%g, %g]", ErrTrimEmpty, tr.Min, tr.Max)
			monitoring.Warnf("range trimming skipped: %v", err)
			res.Errors = append(res.Errors, err)
		} else {
			merged = trimmed
			res.Trim = &tr
		}
	}
	if merged.Len() == 0 {
		return PassResult{}, ErrNoMergedPoints
	}

	if opts.Normalize {
		norm, err := Normalize(merged)
		if err != nil {
			monitoring.Warnf("normalisation skipped: %v", err)
			res.Errors = append(res.Errors, err)
		} else {
			merged = norm
			res.Normalized = true
		}
	}

	res.Merged = merged
	return res, nil
}

// fitDataset runs cut, overlap, interpolation, fit and rescale for one
// dataset. Failures are returned inside the result as a *DatasetError.
func fitDataset(index int, d curve.Curve, ip *Interpolator, qmax float64) DatasetResult {
	lo, hi := d.Range()
	out := DatasetResult{Index: index, Name: d.Name, QMin: lo, QMax: hi}

	raw := d
	if qmax > 0 {
		raw = d.Filter(func(q float64) bool { return q <= qmax })
	}
	out.Raw = raw

	overlap := ip.Overlap(raw)
	refI, err := ip.At(overlap.Q)
	if err != nil {
		out.Err = &DatasetError{Dataset: d.Name, Op: "interpolate", Err: err}
		return out
	}
	fit, err := FitScale(overlap, refI)
	if err != nil {
		out.Err = &DatasetError{Dataset: d.Name, Op: "fit", Err: err}
		return out
	}
	out.Fit = fit
	out.Scaled = Rescale(raw, fit)
	return out
}
