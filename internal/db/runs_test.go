package db

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sasmerge/internal/curve"
	"github.com/banshee-data/sasmerge/internal/merge"
	"github.com/banshee-data/sasmerge/internal/timeutil"
)

func sampleRunResult() merge.RunResult {
	return merge.RunResult{
		Final: merge.PassResult{
			Kind: merge.PreviousMerge,
			Datasets: []merge.DatasetResult{
				{
					Index: 0,
					Name:  "low.dat",
					Fit: merge.FitResult{
						Scale:      2,
						Offset:     0.5,
						Covariance: [2][2]float64{{0.04, 0}, {0, 0.01}},
						OverlapQ:   []float64{0.1, 0.2, 0.3, 0.4},
						DOF:        2,
						Chi2r:      1.1,
						PValue:     0.33,
					},
				},
				{
					Index: 1,
					Name:  "high.dat",
					Err:   &merge.DatasetError{Dataset: "high.dat", Op: "fit", Err: merge.ErrInsufficientOverlap},
				},
			},
			Merged: curve.Curve{
				Name:  merge.MergedName,
				Q:     []float64{0.1, 0.2, 0.3},
				I:     []float64{10, 5, 2},
				Sigma: []float64{0.1, 0.05, 0.02},
			},
			Trim:       &merge.TrimRange{Min: 0.1, Max: 0.3},
			Normalized: true,
		},
		State:  merge.ConvergenceState{Phase: merge.PhaseDone, Status: merge.StatusConverged, Iterations: 3},
		Passes: 5,
	}
}

func TestNewRunRecord(t *testing.T) {
	rec := NewRunRecord("Sample", sampleRunResult(), `{"title":"Sample"}`, "1.2.3", 1500*time.Millisecond)

	assert.Equal(t, "Sample", rec.Title)
	assert.Equal(t, "converged", rec.Status)
	assert.Equal(t, 3, rec.Iterations)
	assert.Equal(t, 5, rec.Passes)
	assert.Equal(t, 2, rec.DatasetCount)
	assert.Equal(t, 3, rec.MergedPoints)
	assert.True(t, rec.Normalized)
	assert.Equal(t, int64(1500), rec.DurationMs)
	require.NotNil(t, rec.TrimMin)
	assert.Equal(t, 0.1, *rec.TrimMin)

	require.Len(t, rec.Fits, 2)
	ok, skipped := rec.Fits[0], rec.Fits[1]
	require.NotNil(t, ok.Chi2r)
	assert.Equal(t, 1.1, *ok.Chi2r)
	assert.InDelta(t, 0.2, *ok.ScaleErr, 1e-12)
	assert.InDelta(t, 0.1, *ok.OffsetErr, 1e-12)
	assert.Equal(t, 4, ok.Overlap)
	assert.Empty(t, ok.Error)

	assert.Nil(t, skipped.Chi2r)
	assert.Nil(t, skipped.Scale)
	assert.Contains(t, skipped.Error, "high.dat")
}

func TestNewRunRecord_NonFiniteBecomesNil(t *testing.T) {
	res := sampleRunResult()
	res.Final.Datasets[0].Fit.PValue = math.NaN()
	res.Final.Trim = nil

	rec := NewRunRecord("t", res, "", "", 0)
	assert.Nil(t, rec.Fits[0].PValue)
	assert.Nil(t, rec.TrimMin)
	assert.Nil(t, rec.TrimMax)
}

func TestRecordAndGetRun(t *testing.T) {
	db := newTestDB(t)
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	db.SetClock(clock)

	res := sampleRunResult()
	rec := NewRunRecord("Sample", res, `{"title":"Sample"}`, "1.2.3", time.Second)
	points := res.Final.Merged.Points()
	require.NoError(t, db.RecordRun(&rec, points))
	require.NotEmpty(t, rec.RunID)

	got, err := db.GetRun(rec.RunID)
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(clock.Now()))
	got.CreatedAt = rec.CreatedAt
	if diff := cmp.Diff(rec, *got); diff != "" {
		t.Errorf("GetRun mismatch (-want +got):\n%s", diff)
	}

	gotPoints, err := db.GetRunPoints(rec.RunID)
	require.NoError(t, err)
	if diff := cmp.Diff(points, gotPoints); diff != "" {
		t.Errorf("GetRunPoints mismatch (-want +got):\n%s", diff)
	}
}

func TestListRuns_NewestFirst(t *testing.T) {
	db := newTestDB(t)
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	db.SetClock(clock)

	var ids []string
	for _, title := range []string{"first", "second", "third"} {
		rec := RunRecord{Title: title, Status: "single_pass"}
		require.NoError(t, db.RecordRun(&rec, nil))
		ids = append(ids, rec.RunID)
		clock.Advance(time.Minute)
	}

	runs, err := db.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"third", "second", "first"}, []string{runs[0].Title, runs[1].Title, runs[2].Title})
	assert.Equal(t, ids[2], runs[0].RunID)
	assert.Empty(t, runs[0].Fits)

	runs, err = db.ListRuns(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRunNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetRun("nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
	_, err = db.GetRunPoints("nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, db.DeleteRun("nope"), ErrRunNotFound)
}

func TestDeleteRun_Cascades(t *testing.T) {
	db := newTestDB(t)
	res := sampleRunResult()
	rec := NewRunRecord("Sample", res, "", "", 0)
	require.NoError(t, db.RecordRun(&rec, res.Final.Merged.Points()))

	require.NoError(t, db.DeleteRun(rec.RunID))

	for _, table := range []string{"merge_dataset_fits", "merge_points"} {
		var n int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE run_id = ?`, rec.RunID).Scan(&n))
		assert.Zero(t, n, table)
	}
}

func TestRecordRun_DuplicateIDRollsBack(t *testing.T) {
	db := newTestDB(t)
	rec := RunRecord{RunID: "fixed", Title: "a", Status: "single_pass"}
	require.NoError(t, db.RecordRun(&rec, nil))

	dup := RunRecord{RunID: "fixed", Title: "b", Status: "single_pass"}
	err := db.RecordRun(&dup, []curve.Point{{Q: 1, I: 1, Sigma: 1}})
	require.Error(t, err)

	got, err := db.GetRun("fixed")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Title)
	points, err := db.GetRunPoints("fixed")
	require.NoError(t, err)
	assert.Empty(t, points)
	assert.False(t, errors.Is(err, ErrRunNotFound))
}
