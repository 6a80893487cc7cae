// Package api serves the run-history store over HTTP: JSON listings of stored
// merge runs, run deletion and a chart page of each merged curve.
package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/sasmerge/internal/curve"
	"github.com/banshee-data/sasmerge/internal/db"
	"github.com/banshee-data/sasmerge/internal/httputil"
	"github.com/banshee-data/sasmerge/internal/monitoring"
	"github.com/banshee-data/sasmerge/internal/report"
)

// ANSI escape codes for the request log
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// RunStore is the run-history store as the API sees it.
type RunStore interface {
	ListRuns(limit int) ([]db.RunRecord, error)
	GetRun(runID string) (*db.RunRecord, error)
	GetRunPoints(runID string) ([]curve.Point, error)
	DeleteRun(runID string) error
}

type Server struct {
	store RunStore
}

func NewServer(store RunStore) *Server {
	return &Server{store: store}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/runs", s.listRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.showRun)
	mux.HandleFunc("DELETE /api/runs/{id}", s.deleteRun)
	mux.HandleFunc("GET /api/runs/{id}/points", s.showRunPoints)
	mux.HandleFunc("GET /runs/{id}/chart", s.showRunChart)
	return mux
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			httputil.BadRequest(w, fmt.Sprintf("limit must be between 1 and %d", maxListLimit))
			return
		}
		limit = n
	}

	runs, err := s.store.ListRuns(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to list runs: %v", err))
		return
	}
	httputil.WriteJSONOK(w, runs)
}

func (s *Server) showRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteJSONOK(w, run)
}

// deleteRun removes a run together with its fits and merged points.
func (s *Server) deleteRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteRun(id); err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"status": "ok", "run_id": id})
}

func (s *Server) showRunPoints(w http.ResponseWriter, r *http.Request) {
	points, err := s.store.GetRunPoints(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteJSONOK(w, points)
}

func (s *Server) showRunChart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := s.store.GetRun(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	points, err := s.store.GetRunPoints(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	merged := curve.FromPoints(run.Title, points)
	subtitle := fmt.Sprintf("%s, %d points, %s", run.Status, len(points), run.CreatedAt.Format(time.RFC3339))
	var buf bytes.Buffer
	if err := report.RenderPage(&buf, run.Title, report.CurveChart(run.Title, subtitle, []curve.Curve{merged}, true)); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	httputil.WriteHTML(w, http.StatusOK, buf.Bytes())
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, db.ErrRunNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.InternalServerError(w, err.Error())
}
