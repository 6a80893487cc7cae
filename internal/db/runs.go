package db

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/sasmerge/internal/curve"
	"github.com/banshee-data/sasmerge/internal/merge"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one stored merge run.
type RunRecord struct {
	RunID        string       `json:"run_id"`
	Title        string       `json:"title"`
	Status       string       `json:"status"`
	Iterations   int          `json:"iterations"`
	Passes       int          `json:"passes"`
	DatasetCount int          `json:"dataset_count"`
	MergedPoints int          `json:"merged_points"`
	TrimMin      *float64     `json:"trim_min,omitempty"`
	TrimMax      *float64     `json:"trim_max,omitempty"`
	Normalized   bool         `json:"normalized"`
	ConfigJSON   string       `json:"config_json,omitempty"`
	Version      string       `json:"version"`
	CreatedAt    time.Time    `json:"created_at"`
	DurationMs   int64        `json:"duration_ms"`
	Fits         []DatasetFit `json:"fits,omitempty"`
}

// DatasetFit holds the final-pass diagnostics of one dataset. The numeric
// fields are nil for a skipped dataset.
type DatasetFit struct {
	Index     int      `json:"index"`
	Name      string   `json:"name"`
	Chi2r     *float64 `json:"chi2r"`
	DOF       int      `json:"dof"`
	PValue    *float64 `json:"p_value"`
	Scale     *float64 `json:"scale"`
	Offset    *float64 `json:"offset"`
	ScaleErr  *float64 `json:"scale_err"`
	OffsetErr *float64 `json:"offset_err"`
	Overlap   int      `json:"overlap"`
	Error     string   `json:"error,omitempty"`
}

// NewRunRecord summarises a finished run for storage.
func NewRunRecord(title string, res merge.RunResult, configJSON, version string, duration time.Duration) RunRecord {
	final := res.Final
	rec := RunRecord{
		Title:        title,
		Status:       res.State.Status.String(),
		Iterations:   res.State.Iterations,
		Passes:       res.Passes,
		DatasetCount: len(final.Datasets),
		MergedPoints: final.Merged.Len(),
		Normalized:   final.Normalized,
		ConfigJSON:   configJSON,
		Version:      version,
		DurationMs:   duration.Milliseconds(),
	}
	if final.Trim != nil {
		rec.TrimMin = floatPtr(final.Trim.Min)
		rec.TrimMax = floatPtr(final.Trim.Max)
	}
	for _, d := range final.Datasets {
		fit := DatasetFit{Index: d.Index, Name: d.Name}
		if d.Skipped() {
			fit.Error = d.Err.Error()
		} else {
			fit.Chi2r = finitePtr(d.Fit.Chi2r)
			fit.DOF = d.Fit.DOF
			fit.PValue = finitePtr(d.Fit.PValue)
			fit.Scale = finitePtr(d.Fit.Scale)
			fit.Offset = finitePtr(d.Fit.Offset)
			fit.ScaleErr = finitePtr(d.Fit.ScaleError())
			fit.OffsetErr = finitePtr(d.Fit.OffsetError())
			fit.Overlap = d.Fit.Overlap()
		}
		rec.Fits = append(rec.Fits, fit)
	}
	return rec
}

// RecordRun stores rec with its fits and the merged points in a single
// transaction. A missing RunID or CreatedAt is filled in.
func (db *DB) RecordRun(rec *RunRecord, points []curve.Point) error {
	if rec.RunID == "" {
		rec.RunID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = db.clock.Now()
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO merge_runs (
			run_id, title, status, iterations, passes, dataset_count, merged_points,
			trim_min, trim_max, normalized, config_json, version, created_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Title, rec.Status, rec.Iterations, rec.Passes, rec.DatasetCount, rec.MergedPoints,
		rec.TrimMin, rec.TrimMax, rec.Normalized, rec.ConfigJSON, rec.Version,
		rec.CreatedAt.UnixNano(), rec.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	fitStmt, err := tx.Prepare(`
		INSERT INTO merge_dataset_fits (
			run_id, dataset_index, name, chi2r, dof, p_value, scale_a, offset_b,
			scale_err, offset_err, overlap, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare fit insert: %w", err)
	}
	defer fitStmt.Close()
	for _, f := range rec.Fits {
		if _, err := fitStmt.Exec(rec.RunID, f.Index, f.Name, f.Chi2r, f.DOF, f.PValue,
			f.Scale, f.Offset, f.ScaleErr, f.OffsetErr, f.Overlap, nullString(f.Error)); err != nil {
			return fmt.Errorf("failed to insert fit for %s: %w", f.Name, err)
		}
	}

	pointStmt, err := tx.Prepare(`
		INSERT INTO merge_points (run_id, point_index, q, intensity, sigma)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare point insert: %w", err)
	}
	defer pointStmt.Close()
	for k, p := range points {
		if _, err := pointStmt.Exec(rec.RunID, k, p.Q, p.I, p.Sigma); err != nil {
			return fmt.Errorf("failed to insert point %d: %w", k, err)
		}
	}

	return tx.Commit()
}

const runColumns = `run_id, title, status, iterations, passes, dataset_count, merged_points,
	trim_min, trim_max, normalized, config_json, version, created_at, duration_ms`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var (
		rec              RunRecord
		trimMin, trimMax sql.NullFloat64
		configJSON, ver  sql.NullString
		createdAt        int64
	)
	err := row.Scan(&rec.RunID, &rec.Title, &rec.Status, &rec.Iterations, &rec.Passes,
		&rec.DatasetCount, &rec.MergedPoints, &trimMin, &trimMax, &rec.Normalized,
		&configJSON, &ver, &createdAt, &rec.DurationMs)
	if err != nil {
		return RunRecord{}, err
	}
	if trimMin.Valid {
		rec.TrimMin = floatPtr(trimMin.Float64)
	}
	if trimMax.Valid {
		rec.TrimMax = floatPtr(trimMax.Float64)
	}
	rec.ConfigJSON = configJSON.String
	rec.Version = ver.String
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	return rec, nil
}

// ListRuns returns up to limit runs, newest first, without fits.
func (db *DB) ListRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`SELECT `+runColumns+` FROM merge_runs ORDER BY created_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// GetRun returns one run with its dataset fits.
func (db *DB) GetRun(runID string) (*RunRecord, error) {
	rec, err := scanRun(db.QueryRow(`SELECT `+runColumns+` FROM merge_runs WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	rows, err := db.Query(`
		SELECT dataset_index, name, chi2r, dof, p_value, scale_a, offset_b,
			scale_err, offset_err, overlap, error
		FROM merge_dataset_fits WHERE run_id = ? ORDER BY dataset_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get fits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			f                                   DatasetFit
			chi2r, p, scale, offset, sErr, oErr sql.NullFloat64
			dof, overlap                        sql.NullInt64
			errText                             sql.NullString
		)
		if err := rows.Scan(&f.Index, &f.Name, &chi2r, &dof, &p, &scale, &offset,
			&sErr, &oErr, &overlap, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan fit: %w", err)
		}
		f.Chi2r, f.PValue = nullFloatPtr(chi2r), nullFloatPtr(p)
		f.Scale, f.Offset = nullFloatPtr(scale), nullFloatPtr(offset)
		f.ScaleErr, f.OffsetErr = nullFloatPtr(sErr), nullFloatPtr(oErr)
		f.DOF, f.Overlap = int(dof.Int64), int(overlap.Int64)
		f.Error = errText.String
		rec.Fits = append(rec.Fits, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetRunPoints returns the merged curve of a run in q order.
func (db *DB) GetRunPoints(runID string) ([]curve.Point, error) {
	var exists bool
	if err := db.QueryRow(`SELECT COUNT(*) > 0 FROM merge_runs WHERE run_id = ?`, runID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to look up run: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	rows, err := db.Query(`SELECT q, intensity, sigma FROM merge_points WHERE run_id = ? ORDER BY point_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get points: %w", err)
	}
	defer rows.Close()

	points := []curve.Point{}
	for rows.Next() {
		var p curve.Point
		if err := rows.Scan(&p.Q, &p.I, &p.Sigma); err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// DeleteRun removes a run; fits and points go with it.
func (db *DB) DeleteRun(runID string) error {
	res, err := db.Exec(`DELETE FROM merge_runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

func floatPtr(f float64) *float64 {
	return &f
}

// finitePtr maps NaN and ±Inf to nil; SQLite and JSON have no room for them.
func finitePtr(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func nullFloatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	return floatPtr(n.Float64)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
