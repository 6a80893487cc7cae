package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/banshee-data/sasmerge/internal/config"
)

// cliOptions is the parsed command line of a merge run.
type cliOptions struct {
	configPath string
	version    bool

	// overrides holds only the flags given on the command line.
	overrides *config.Config
}

type flagValues struct {
	data, path, ext, label string
	qmin, qmax             float64
	points                 int
	title, ref             string
	qminRef, qmaxRef       float64

	rangeOnly, refSmooth, noConv, noNormalize bool
	outputScale, noLogQ, export               bool
	plotAll, plotNone, noPlotMerge            bool
	errorBars, plotLin, savePlot              bool

	html, strict bool
	db           string
	workers      int
	maxIter      int
	threshold    float64
}

// newFlagSet registers every merge flag on a fresh FlagSet. Short and long
// names share one variable.
func newFlagSet(v *flagValues, opts *cliOptions, errOut io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("sasmerge", flag.ContinueOnError)
	fs.SetOutput(errOut)

	str := func(p *string, usage string, names ...string) {
		for _, n := range names {
			fs.StringVar(p, n, "", usage)
		}
	}
	num := func(p *float64, usage string, names ...string) {
		for _, n := range names {
			fs.Float64Var(p, n, 0, usage)
		}
	}
	boolean := func(p *bool, usage string, names ...string) {
		for _, n := range names {
			fs.BoolVar(p, n, false, usage)
		}
	}

	str(&v.data, "datafiles separated by space; combined with -path and -ext", "d", "data")
	str(&v.path, "path prepended to every datafile (default ./)", "p", "path")
	str(&v.ext, "extension appended to every datafile; without -d every file with it in -path is used", "ext")
	str(&v.label, "labels for each datafile, separated by space", "l", "label")
	num(&v.qmin, "minimum q in merged data", "qmin")
	num(&v.qmax, "maximum q in merged data", "qmax")
	fs.IntVar(&v.points, "N", config.DefaultPoints, "maximum number of points in merged data")
	str(&v.title, "title, also used for output names (default Merged)", "t", "title")
	str(&v.ref, "reference: dataset number (from 1), all, or a file path", "ref")
	num(&v.qminRef, "minimum q of the reference used for alignment", "qmin_ref")
	num(&v.qmaxRef, "maximum q of the reference used for alignment (0 for none)", "qmax_ref")
	boolean(&v.rangeOnly, "only keep the q range covered by at least 2 datasets", "r", "range")
	boolean(&v.refSmooth, "smooth the reference before alignment", "rs", "ref_smooth")
	boolean(&v.noConv, "do not iterate until convergence", "nc", "no_conv")
	boolean(&v.noNormalize, "do not normalize merged data", "nn", "no_normalize")
	boolean(&v.outputScale, "print scale factors and constant adjustments", "sc", "output_scale")
	boolean(&v.noLogQ, "space merged data linearly in q", "nl", "no_log_q")
	boolean(&v.export, "export scaled and subtracted datasets", "exp", "export")
	boolean(&v.plotAll, "plot every pairwise fit with residuals", "pa", "plot_all")
	boolean(&v.plotNone, "plot nothing", "pn", "plot_none")
	boolean(&v.noPlotMerge, "leave the merged data out of the overview plot", "pm", "no_plot_merge")
	boolean(&v.errorBars, "draw error bars", "err", "error_bars")
	boolean(&v.plotLin, "plot on lin-log axes", "lin", "plot_lin")
	boolean(&v.savePlot, "save the overview plot as PNG", "sp", "save_plot")

	boolean(&v.html, "write an HTML chart page", "html")
	boolean(&v.strict, "abort on the first dataset that cannot be fitted", "strict")
	str(&v.db, "record the run in this SQLite database", "db")
	fs.IntVar(&v.workers, "workers", 0, "concurrent dataset fits (0 for automatic)")
	fs.IntVar(&v.maxIter, "imax", config.DefaultMaxIterations, "maximum number of iterations")
	num(&v.threshold, "convergence threshold on chi2r changes", "threshold")

	fs.StringVar(&opts.configPath, "config", "", "JSON or YAML config file; flags override its values")
	fs.BoolVar(&opts.version, "version", false, "print version and exit")

	fs.Usage = func() {
		fmt.Fprintf(errOut, "Usage: sasmerge [options]\n       sasmerge serve [-listen addr] -db file\n       sasmerge migrate -db file <action>\n\nOptions:\n")
		fs.PrintDefaults()
	}
	return fs
}

// parseFlags parses a merge command line.
func parseFlags(args []string, errOut io.Writer) (*cliOptions, error) {
	var v flagValues
	opts := &cliOptions{}
	fs := newFlagSet(&v, opts, errOut)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}

	o := config.EmptyConfig()
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "d", "data":
			o.Data = config.SplitList(v.data)
		case "p", "path":
			o.Path = &v.path
		case "ext":
			o.Ext = &v.ext
		case "l", "label":
			o.Labels = config.SplitList(v.label)
		case "qmin":
			o.QMin = &v.qmin
		case "qmax":
			o.QMax = &v.qmax
		case "N":
			o.Points = &v.points
		case "t", "title":
			o.Title = &v.title
		case "ref":
			o.Reference = &v.ref
		case "qmin_ref":
			o.RefQMin = &v.qminRef
		case "qmax_ref":
			o.RefQMax = &v.qmaxRef
		case "r", "range":
			o.Range = &v.rangeOnly
		case "rs", "ref_smooth":
			o.RefSmooth = &v.refSmooth
		case "nc", "no_conv":
			o.Converge = negate(v.noConv)
		case "nn", "no_normalize":
			o.Normalize = negate(v.noNormalize)
		case "sc", "output_scale":
			o.OutputScale = &v.outputScale
		case "nl", "no_log_q":
			o.LogQ = negate(v.noLogQ)
		case "exp", "export":
			o.Export = &v.export
		case "pa", "plot_all":
			o.PlotAll = &v.plotAll
		case "pn", "plot_none":
			o.PlotNone = &v.plotNone
		case "pm", "no_plot_merge":
			o.PlotMerge = negate(v.noPlotMerge)
		case "err", "error_bars":
			o.ErrorBars = &v.errorBars
		case "lin", "plot_lin":
			o.PlotLinear = &v.plotLin
		case "sp", "save_plot":
			o.SavePlot = &v.savePlot
		case "html":
			o.HTML = &v.html
		case "strict":
			o.Strict = &v.strict
		case "db":
			o.DBPath = &v.db
		case "workers":
			o.Workers = &v.workers
		case "imax":
			o.MaxIterations = &v.maxIter
		case "threshold":
			o.Threshold = &v.threshold
		}
	})
	opts.overrides = o
	return opts, nil
}

func negate(b bool) *bool {
	n := !b
	return &n
}

// loadConfig layers the flag overrides over the config file, if any.
func loadConfig(opts *cliOptions) (*config.Config, error) {
	cfg := config.EmptyConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(opts.configPath); err != nil {
			return nil, err
		}
	}
	cfg.Override(opts.overrides)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
