package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/banshee-data/sasmerge/internal/config"
	"github.com/banshee-data/sasmerge/internal/curve"
	"github.com/banshee-data/sasmerge/internal/db"
	"github.com/banshee-data/sasmerge/internal/fsutil"
	"github.com/banshee-data/sasmerge/internal/merge"
	"github.com/banshee-data/sasmerge/internal/monitoring"
	"github.com/banshee-data/sasmerge/internal/report"
	"github.com/banshee-data/sasmerge/internal/version"
)

// mergeInputs are the loaded datasets and initial references of a run.
type mergeInputs struct {
	paths      []string
	datasets   []curve.Curve
	candidates []curve.Curve
	refLabel   string
}

// loadInputs resolves and reads every dataset and the reference candidates.
// Any failure here is an input error.
func loadInputs(cfg *config.Config, fs fsutil.FileSystem) (*mergeInputs, error) {
	resolved, err := cfg.ResolveDatasets(fs)
	if err != nil {
		return nil, err
	}
	sel, err := config.ParseReference(cfg.GetReference())
	if err != nil {
		return nil, err
	}

	loader := curve.NewLoader(fs)
	in := &mergeInputs{}
	for _, d := range resolved {
		c, err := loader.Load(d.Path)
		if err != nil {
			return nil, err
		}
		c.Name = d.Label
		in.paths = append(in.paths, d.Path)
		in.datasets = append(in.datasets, c)
	}

	indices, refPath := config.ReferenceCandidates(sel, len(in.datasets))
	if refPath != "" {
		ref, err := loader.LoadReference(refPath)
		if err != nil {
			return nil, fmt.Errorf("reference: %w", err)
		}
		in.candidates = []curve.Curve{ref}
		in.refLabel = refPath
		return in, nil
	}
	var names []string
	for _, k := range indices {
		in.candidates = append(in.candidates, in.datasets[k])
		names = append(names, in.datasets[k].Name)
	}
	in.refLabel = strings.Join(names, ", ")
	return in, nil
}

// runOptions maps the configuration onto the merge engine.
func runOptions(cfg *config.Config, grid merge.Grid, candidates []curve.Curve) merge.RunOptions {
	refMin, refMax := cfg.GetRefWindow()
	var qmax float64
	if cfg.QMax != nil {
		qmax = *cfg.QMax
	}
	return merge.RunOptions{
		Pass: merge.PassOptions{
			Grid:      grid,
			QMax:      qmax,
			RefQMin:   refMin,
			RefQMax:   refMax,
			Smooth:    cfg.GetRefSmooth(),
			Trim:      cfg.GetRange(),
			Normalize: cfg.GetNormalize(),
			Strict:    cfg.GetStrict(),
			Workers:   cfg.GetWorkers(),
		},
		Converge: cfg.GetConverge(),
		Convergence: merge.ConvergenceOptions{
			Threshold:     cfg.GetThreshold(),
			MaxIterations: cfg.GetMaxIterations(),
		},
		Candidates: candidates,
	}
}

func reportOptions(cfg *config.Config, sources []string) report.Options {
	refMin, refMax := cfg.GetRefWindow()
	return report.Options{
		Title:      cfg.GetTitle(),
		OutputDir:  cfg.OutputDir(),
		Sources:    sources,
		Converge:   cfg.GetConverge(),
		Export:     cfg.GetExport(),
		ScaleTable: cfg.GetOutputScale(),
		RefWindow:  refMin > 0 || refMax > 0,
		PlotAll:    cfg.GetPlotAll(),
		PlotNone:   cfg.GetPlotNone(),
		PlotMerge:  cfg.GetPlotMerge(),
		ErrorBars:  cfg.GetErrorBars(),
		PlotLinear: cfg.GetPlotLinear(),
		SavePlot:   cfg.GetSavePlot(),
		HTML:       cfg.GetHTML(),
	}
}

// runMerge performs a full merge run: load, merge, report and, with -db,
// record the run.
func runMerge(cfg *config.Config, fs fsutil.FileSystem, out io.Writer) (merge.RunResult, error) {
	start := time.Now()

	in, err := loadInputs(cfg, fs)
	if err != nil {
		return merge.RunResult{}, err
	}
	qmin, qmax, err := cfg.GridRange(in.datasets)
	if err != nil {
		return merge.RunResult{}, err
	}
	grid, err := merge.NewGrid(qmin, qmax, cfg.GetPoints(), cfg.GetLogQ())
	if err != nil {
		return merge.RunResult{}, err
	}

	r := report.New(fs, out, reportOptions(cfg, in.paths))
	if err := r.Prepare(); err != nil {
		return merge.RunResult{}, err
	}
	names := make([]string, len(in.datasets))
	for k, d := range in.datasets {
		names[k] = d.Name
	}
	r.Banner(names, qmin, qmax, cfg.GetPoints(), in.refLabel)

	res, err := merge.Run(in.datasets, runOptions(cfg, grid, in.candidates), r.Observe)
	if err != nil {
		return res, err
	}
	if err := r.Finish(res, in.paths); err != nil {
		return res, err
	}

	if path := cfg.GetDBPath(); path != "" {
		if err := recordRun(path, cfg, res, time.Since(start)); err != nil {
			// The merged file is already written; a history failure is not fatal.
			monitoring.Warnf("failed to record run in %s: %v", path, err)
		}
	}
	return res, nil
}

func recordRun(path string, cfg *config.Config, res merge.RunResult, elapsed time.Duration) error {
	database, err := db.NewDB(path)
	if err != nil {
		return err
	}
	defer database.Close()

	rec := db.NewRunRecord(cfg.GetTitle(), res, cfg.JSON(), version.Version, elapsed)
	if err := database.RecordRun(&rec, res.Final.Merged.Points()); err != nil {
		return err
	}
	monitoring.Logf("recorded run %s in %s", rec.RunID, path)
	return nil
}
