package merge

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/sasmerge/internal/curve"
	"github.com/banshee-data/sasmerge/internal/monitoring"
)

func quietLogs(t *testing.T) {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = original })
}

func TestRunPass_SelfMerge(t *testing.T) {
	rng := rand.New(rand.NewPCG(4, 4))
	q := linearQ(0.01, 0.005, 99)
	d := synthetic("d", q, 1, 0, rng)
	g, err := NewGrid(0.01, 0.5, 40, true)
	require.NoError(t, err)

	res, err := RunPass([]curve.Curve{d}, d, InitialDataset, PassOptions{Grid: g})
	require.NoError(t, err)

	fit := res.Datasets[0].Fit
	assert.InDelta(t, 1.0, fit.Scale, 1e-9)
	assert.InDelta(t, 0.0, fit.Offset, 1e-7)
	assert.Less(t, fit.Chi2r, 1e-12)

	want := NewAccumulator(g)
	want.Add(d)
	if diff := cmp.Diff(want.Merge(MergedName), res.Merged, cmpopts.EquateApprox(1e-9, 1e-12)); diff != "" {
		t.Errorf("self merge differs from binned input (-want +got):\n%s", diff)
	}
}

func TestRunPass_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewPCG(8, 1))
	q := linearQ(0.01, 0.005, 99)
	datasets := []curve.Curve{
		synthetic("a", q, 1, 0, rng),
		synthetic("b", q, 2, 1, rng),
		synthetic("c", q[10:], 0.5, -0.2, rng),
		synthetic("d", q[:60], 3, 0, rng),
	}
	g, err := NewGrid(0.01, 0.5, 50, true)
	require.NoError(t, err)

	serial, err := RunPass(datasets, datasets[0], InitialDataset, PassOptions{Grid: g, Workers: 1, Trim: true})
	require.NoError(t, err)
	for run := 0; run < 5; run++ {
		parallel, err := RunPass(datasets, datasets[0], InitialDataset, PassOptions{Grid: g, Workers: 4, Trim: true})
		require.NoError(t, err)
		if diff := cmp.Diff(serial, parallel); diff != "" {
			t.Fatalf("parallel pass differs from serial (-serial +parallel):\n%s", diff)
		}
	}
}

func TestRunPass_MergedReferenceKeepsEdgePoints(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	q := linearQ(0.01, 0.005, 99)
	datasets := []curve.Curve{
		synthetic("a", q, 1, 0, rng),
		synthetic("b", q, 2, 1, rng),
	}
	opts := PassOptions{Grid: pointGrid(q)}

	res, err := RunPass(datasets, datasets[0], InitialDataset, opts)
	require.NoError(t, err)
	for pass := 0; pass < 6; pass++ {
		res, err = RunPass(datasets, res.Merged, PreviousMerge, opts)
		require.NoError(t, err)
		for _, d := range res.Datasets {
			require.Equal(t, len(q), d.Fit.Overlap(), "pass %d, dataset %s", pass, d.Name)
		}
	}
}

func TestRunPass_SkipAndStrict(t *testing.T) {
	quietLogs(t)
	q := linearQ(0.01, 0.005, 99)
	good := synthetic("good", q, 1, 0, nil)
	far := synthetic("far", linearQ(1, 0.1, 10), 1, 0, nil)
	g, err := NewGrid(0.01, 2, 30, true)
	require.NoError(t, err)

	res, err := RunPass([]curve.Curve{good, far}, good, InitialDataset, PassOptions{Grid: g})
	require.NoError(t, err)

	require.Len(t, res.Errors, 1)
	var dsErr *DatasetError
	require.True(t, errors.As(res.Errors[0], &dsErr))
	assert.Equal(t, "far", dsErr.Dataset)
	assert.ErrorIs(t, dsErr, ErrInsufficientOverlap)
	assert.True(t, res.Datasets[1].Skipped())
	assert.Equal(t, 1, res.Contributing())

	chi2r := res.Chi2r()
	assert.False(t, math.IsNaN(chi2r[0]))
	assert.True(t, math.IsNaN(chi2r[1]))

	_, err = RunPass([]curve.Curve{good, far}, good, InitialDataset, PassOptions{Grid: g, Strict: true})
	assert.True(t, errors.As(err, &dsErr))
}

func TestRunPass_AllFail(t *testing.T) {
	quietLogs(t)
	q := linearQ(0.01, 0.005, 20)
	d := synthetic("d", q, 1, 0, nil)
	ref := synthetic("ref", linearQ(5, 1, 5), 1, 0, nil)
	g, _ := NewGrid(0.01, 0.2, 10, true)

	_, err := RunPass([]curve.Curve{d}, ref, InitialDataset, PassOptions{Grid: g})
	assert.ErrorIs(t, err, ErrNoMergedPoints)
	assert.ErrorIs(t, err, ErrInsufficientOverlap)
}

func TestRunPass_TrimAndNormalize(t *testing.T) {
	q := linearQ(0.01, 0.005, 99)
	a := synthetic("a", q[:60], 1, 0, nil)   // 0.01 .. 0.305
	b := synthetic("b", q[20:], 2, 1, nil)   // 0.11 .. 0.5
	c := synthetic("c", q[10:80], 1, 0, nil) // 0.06 .. 0.405
	g, err := NewGrid(0.01, 0.5, 40, false)
	require.NoError(t, err)

	res, err := RunPass([]curve.Curve{a, b, c}, c, InitialDataset, PassOptions{Grid: g, Trim: true, Normalize: true})
	require.NoError(t, err)

	require.NotNil(t, res.Trim)
	assert.InDelta(t, q[10], res.Trim.Min, 1e-12)
	assert.InDelta(t, q[79], res.Trim.Max, 1e-12)
	lo, hi := res.Merged.Range()
	assert.GreaterOrEqual(t, lo, res.Trim.Min)
	assert.LessOrEqual(t, hi, res.Trim.Max)

	assert.True(t, res.Normalized)
	assert.InDelta(t, 1.0, stat.Mean(res.Merged.I[:NormalizePoints], nil), 1e-9)
	assert.Empty(t, res.Errors)
}

func TestRunPass_TrimSkippedForOneDataset(t *testing.T) {
	quietLogs(t)
	q := linearQ(0.01, 0.005, 99)
	d := synthetic("d", q, 1, 0, nil)
	g, _ := NewGrid(0.01, 0.5, 20, false)

	res, err := RunPass([]curve.Curve{d}, d, InitialDataset, PassOptions{Grid: g, Trim: true})
	require.NoError(t, err)
	assert.Nil(t, res.Trim)
	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0], ErrTooFewDatasets)
	assert.Equal(t, 20, res.Merged.Len())
}

func TestRunPass_TrimSkippedWhenNothingLeft(t *testing.T) {
	quietLogs(t)
	q := linearQ(0.01, 0.005, 67)
	a := synthetic("a", q[:10], 1, 0, nil) // 0.01 .. 0.055
	b := synthetic("b", q[7:], 1, 0, nil)  // 0.045 .. 0.34
	g, err := NewGrid(q[0], q[len(q)-1], 2, false)
	require.NoError(t, err)

	// both bin means sit well above the shared range [0.045, 0.055]
	res, err := RunPass([]curve.Curve{a, b}, a, InitialDataset, PassOptions{Grid: g, Trim: true})
	require.NoError(t, err)
	assert.Nil(t, res.Trim)
	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0], ErrTrimEmpty)
	assert.Equal(t, 2, res.Merged.Len())
}

func TestRunPass_ReferenceWindowAndQMax(t *testing.T) {
	q := linearQ(0.01, 0.005, 99)
	a := synthetic("a", q, 1, 0, nil)
	b := synthetic("b", q, 2, 1, nil)
	g, _ := NewGrid(0.01, 0.5, 20, true)

	res, err := RunPass([]curve.Curve{a, b}, a, InitialDataset, PassOptions{
		Grid:    g,
		QMax:    0.3,
		RefQMin: 0.05,
		RefQMax: 0.2,
	})
	require.NoError(t, err)

	lo, hi := res.Reference.Range()
	assert.GreaterOrEqual(t, lo, 0.05)
	assert.LessOrEqual(t, hi, 0.2)
	for _, d := range res.Datasets {
		_, rawHi := d.Raw.Range()
		assert.LessOrEqual(t, rawHi, 0.3)
		assert.InDelta(t, 0.5, d.QMax, 1e-12, "full range is kept")
		assert.Less(t, d.Fit.Overlap(), len(q))
	}
	assert.InDelta(t, 2.0, res.Datasets[1].Fit.Scale, 1e-9)
	_, mergedHi := res.Merged.Range()
	assert.LessOrEqual(t, mergedHi, 0.3)
}

func TestRunPass_InvalidInput(t *testing.T) {
	g, _ := NewGrid(0.01, 0.5, 20, true)
	_, err := RunPass(nil, curve.Curve{}, InitialDataset, PassOptions{Grid: g})
	assert.ErrorIs(t, err, ErrNoDatasets)

	d := synthetic("d", linearQ(0.01, 0.01, 10), 1, 0, nil)
	_, err = RunPass([]curve.Curve{d}, curve.Curve{Q: []float64{1}, I: []float64{1}}, InitialDataset, PassOptions{Grid: g})
	assert.ErrorIs(t, err, ErrReferenceTooShort)

	_, err = RunPass([]curve.Curve{d}, d, InitialDataset, PassOptions{})
	assert.ErrorIs(t, err, ErrInvalidGrid)
}
