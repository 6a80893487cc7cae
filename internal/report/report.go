// Package report turns merge passes into files and text: the merged and
// scaled data files, the per-dataset compatibility blocks, the final summary,
// PNG plots and an HTML chart page. Nothing here feeds back into the numbers.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/banshee-data/sasmerge/internal/curve"
	"github.com/banshee-data/sasmerge/internal/fsutil"
	"github.com/banshee-data/sasmerge/internal/merge"
	"github.com/banshee-data/sasmerge/internal/monitoring"
	"github.com/banshee-data/sasmerge/internal/security"
)

const (
	exportDirName = "scaled_data"
	rule          = "#########################################"
	thinRule      = "------------------------------------------------------------"
)

// Options selects what a Reporter produces.
type Options struct {
	Title     string
	OutputDir string

	// Sources are the input file paths in dataset order, used in export
	// headers and file names.
	Sources []string

	Converge bool

	// Export writes every rescaled dataset to scaled_data/.
	Export bool
	// ScaleTable adds a' = 1/a and b' = -b/a to the ranking.
	ScaleTable bool
	// RefWindow notes that chi2r was computed inside -qmin_ref/-qmax_ref.
	RefWindow bool

	PlotAll    bool
	PlotNone   bool
	PlotMerge  bool
	ErrorBars  bool
	PlotLinear bool
	SavePlot   bool
	HTML       bool
}

// Reporter writes run output through fs and prints text to out.
type Reporter struct {
	fs   fsutil.FileSystem
	out  io.Writer
	opts Options
}

// New returns a Reporter.
func New(fs fsutil.FileSystem, out io.Writer, opts Options) *Reporter {
	return &Reporter{fs: fs, out: out, opts: opts}
}

// MergedFile is the path of the merged data file.
func (r *Reporter) MergedFile() string {
	return filepath.Join(r.opts.OutputDir, "merge_"+r.opts.Title+".dat")
}

// ExportDir is the directory holding the scaled datasets.
func (r *Reporter) ExportDir() string {
	return filepath.Join(r.opts.OutputDir, exportDirName)
}

// Prepare recreates the output directory, and the export directory when
// exporting.
func (r *Reporter) Prepare() error {
	if err := recreateDir(r.fs, r.opts.OutputDir); err != nil {
		return err
	}
	if r.opts.Export {
		return recreateDir(r.fs, r.ExportDir())
	}
	return nil
}

func recreateDir(fs fsutil.FileSystem, dir string) error {
	if fs.Exists(dir) {
		if err := fs.RemoveAll(dir); err != nil {
			return fmt.Errorf("remove old output directory: %w", err)
		}
		monitoring.Logf("Output directory %s already existed - deleted old directory and created new", dir)
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	return nil
}

// Banner prints the run inputs.
func (r *Reporter) Banner(names []string, qmin, qmax float64, points int, ref string) {
	fmt.Fprintf(r.out, "%s\nRUNNING sasmerge\nfor instructions: sasmerge -h\n%s\n", rule, rule)
	fmt.Fprintln(r.out, "data :")
	for _, n := range names {
		fmt.Fprintf(r.out, "       %s\n", n)
	}
	fmt.Fprintf(r.out, "qmin : %f\nqmax : %f\nN_max: %d\nref  : %s\n", qmin, qmax, points, ref)
	if r.opts.Converge {
		fmt.Fprintln(r.out, "The results are independent of the choice of reference curve, unless -no_conv is used")
	}
}

// Observe is a merge.PassObserver. Diagnostic passes get the per-dataset
// blocks, exports, plots and HTML; other passes are ignored.
func (r *Reporter) Observe(pass merge.PassResult, _ merge.ConvergenceState, diagnostic bool) error {
	if !diagnostic {
		return nil
	}
	ref := r.referenceName(pass)

	for _, d := range pass.Datasets {
		exported := ""
		if r.opts.Export && !d.Skipped() {
			path, err := r.exportScaled(d, ref)
			if err != nil {
				return err
			}
			exported = path
		}
		r.writeDatasetBlock(d, ref, exported)
	}

	if err := r.writePlots(pass); err != nil {
		return err
	}
	if r.opts.HTML {
		if err := r.writeHTML(pass); err != nil {
			return err
		}
	}
	return nil
}

// Finish writes the merged file of the final pass and prints the summary.
func (r *Reporter) Finish(res merge.RunResult, inputs []string) error {
	path := r.MergedFile()
	if err := curve.WriteMerged(r.fs, path, r.opts.Title, inputs, res.Final.Merged); err != nil {
		return err
	}
	WriteSummary(r.out, res, SummaryOptions{
		Converge:   r.opts.Converge,
		ScaleTable: r.opts.ScaleTable,
		RefWindow:  r.opts.RefWindow,
		MergedFile: path,
		Reference:  r.referenceName(res.Final),
	})
	return nil
}

// referenceName is what a pass was aligned to: the merged file for a
// feedback pass, otherwise the reference curve's own name.
func (r *Reporter) referenceName(pass merge.PassResult) string {
	if pass.Kind == merge.PreviousMerge {
		return r.MergedFile()
	}
	return pass.Reference.Name
}

func (r *Reporter) source(d merge.DatasetResult) string {
	if d.Index < len(r.opts.Sources) {
		return r.opts.Sources[d.Index]
	}
	return d.Name
}

func (r *Reporter) exportScaled(d merge.DatasetResult, ref string) (string, error) {
	src := r.source(d)
	name := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src)) + "_scaled.dat"
	path, err := security.JoinWithin(r.ExportDir(), name)
	if err != nil {
		return "", fmt.Errorf("export %s: %w", d.Name, err)
	}
	if err := curve.WriteScaled(r.fs, path, src, ref, d.Scaled); err != nil {
		return "", err
	}
	return path, nil
}

func (r *Reporter) writeDatasetBlock(d merge.DatasetResult, ref, exported string) {
	fmt.Fprintf(r.out, "%s\ncompare %s with %s\n%s\n", thinRule, d.Name, ref, thinRule)
	fmt.Fprintf(r.out, "N of %s: %d\n", d.Name, d.Raw.Len())
	if d.Skipped() {
		fmt.Fprintf(r.out, "skipped: %v\n", d.Err)
		return
	}
	fmt.Fprintf(r.out, "chi2r = %1.1f (dof=%d, p=%1.6f)\n", d.Fit.Chi2r, d.Fit.DOF, d.Fit.PValue)
	if d.Fit.Incompatible() {
		monitoring.Warnf("%s may be incompatible with %s (p<%g). Rerun with -plot_all for visual comparison and residuals",
			d.Name, ref, merge.IncompatibilityThreshold)
	}
	if exported != "" {
		fmt.Fprintf(r.out, "Scaled and subtracted data written to file: %s\n", exported)
	}
}
