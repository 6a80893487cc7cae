package report

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/sasmerge/internal/curve"
	"github.com/banshee-data/sasmerge/internal/fsutil"
	"github.com/banshee-data/sasmerge/internal/merge"
	"github.com/banshee-data/sasmerge/internal/monitoring"
	"github.com/banshee-data/sasmerge/internal/security"
)

const (
	plotSize    = 10 * vg.Inch
	markerSize  = vg.Length(2)
	residualCut = 3.0
)

// PlotStyle selects axis scaling and layers. The intensity axis is always
// logarithmic.
type PlotStyle struct {
	LogX      bool
	ErrorBars bool
	Merged    bool
}

// errPoints pairs points with their vertical error bars.
type errPoints struct {
	plotter.XYs
	plotter.YErrors
}

// points returns the samples of c drawable on the chosen axes. On a log
// intensity axis the lower whisker is kept above zero.
func points(c curve.Curve, logX bool) errPoints {
	var ep errPoints
	for i := range c.Q {
		q, v := c.Q[i], c.I[i]
		if v <= 0 || (logX && q <= 0) || math.IsNaN(v) {
			continue
		}
		s := 0.0
		if c.HasSigma() {
			s = c.Sigma[i]
		}
		low := s
		if low >= v {
			low = v / 2
		}
		ep.XYs = append(ep.XYs, plotter.XY{X: q, Y: v})
		ep.YErrors = append(ep.YErrors, struct{ Low, High float64 }{low, s})
	}
	return ep
}

func newCurvePlot(title string, logX bool) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "q"
	p.Y.Label.Text = "Intensity"
	if logX {
		p.X.Scale = plot.LogScale{}
		p.X.Tick.Marker = plot.LogTicks{Prec: -1}
	}
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p
}

// addSeries draws ep as markers, with error bars when asked. It reports
// whether anything was drawn.
func addSeries(p *plot.Plot, label string, ep errPoints, c color.Color, errorBars bool) (bool, error) {
	if len(ep.XYs) == 0 {
		return false, nil
	}
	s, err := plotter.NewScatter(ep.XYs)
	if err != nil {
		return false, err
	}
	s.GlyphStyle.Color = c
	s.GlyphStyle.Radius = markerSize
	s.GlyphStyle.Shape = draw.CircleGlyph{}
	if errorBars {
		eb, err := plotter.NewYErrorBars(ep)
		if err != nil {
			return false, err
		}
		eb.LineStyle.Color = c
		p.Add(eb)
	}
	p.Add(s)
	p.Legend.Add(label, s)
	return true, nil
}

// OverviewPlot shows every rescaled dataset and, optionally, the merged
// curve on top in black.
func OverviewPlot(pass merge.PassResult, title string, st PlotStyle) (*plot.Plot, bool, error) {
	p := newCurvePlot(title, st.LogX)
	colors := generateColors(len(pass.Datasets))
	drawn := false
	for k, d := range pass.Datasets {
		if d.Skipped() {
			continue
		}
		ok, err := addSeries(p, d.Name, points(d.Scaled, st.LogX), colors[k], st.ErrorBars)
		if err != nil {
			return nil, false, fmt.Errorf("plot %s: %w", d.Name, err)
		}
		drawn = drawn || ok
	}
	if st.Merged {
		ok, err := addSeries(p, "Merged", points(pass.Merged, st.LogX), color.Black, st.ErrorBars)
		if err != nil {
			return nil, false, fmt.Errorf("plot merged curve: %w", err)
		}
		drawn = drawn || ok
	}
	return p, drawn, nil
}

// FitPlots returns the fit panel (raw dataset and the fitted reference) and
// the residual panel for one dataset, sharing the q axis.
func FitPlots(d merge.DatasetResult, st PlotStyle) (fit, resid *plot.Plot, ok bool, err error) {
	fit = newCurvePlot(d.Name, st.LogX)
	drawn, err := addSeries(fit, d.Name, points(d.Raw, st.LogX), generateColors(1)[0], true)
	if err != nil || !drawn {
		return nil, nil, false, err
	}

	var model plotter.XYs
	for k, q := range d.Fit.OverlapQ {
		if d.Fit.Fitted[k] > 0 && (!st.LogX || q > 0) {
			model = append(model, plotter.XY{X: q, Y: d.Fit.Fitted[k]})
		}
	}
	if len(model) > 0 {
		l, err := plotter.NewLine(model)
		if err != nil {
			return nil, nil, false, err
		}
		l.LineStyle.Color = color.Black
		l.LineStyle.Width = vg.Points(1)
		fit.Add(l)
		fit.Legend.Add(fmt.Sprintf("fit with reference, chi2r %1.1f", d.Fit.Chi2r), l)
	}

	resid = plot.New()
	resid.X.Label.Text = "q"
	resid.Y.Label.Text = "residual"
	resid.X.Scale = fit.X.Scale
	resid.X.Tick.Marker = fit.X.Tick.Marker

	var rs plotter.XYs
	rmax := 0.0
	for k, q := range d.Fit.OverlapQ {
		if st.LogX && q <= 0 {
			continue
		}
		rs = append(rs, plotter.XY{X: q, Y: d.Fit.Residuals[k]})
		rmax = math.Max(rmax, math.Abs(d.Fit.Residuals[k]))
	}
	rmax = math.Max(math.Ceil(rmax), 1)

	if len(rs) > 0 {
		s, err := plotter.NewScatter(rs)
		if err != nil {
			return nil, nil, false, err
		}
		s.GlyphStyle.Radius = markerSize
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		resid.Add(s)
	}
	lo, hi := fit.X.Min, fit.X.Max
	if err := addHLine(resid, lo, hi, 0, color.Black, nil); err != nil {
		return nil, nil, false, err
	}
	if rmax >= residualCut+1 {
		dash := []vg.Length{vg.Points(4), vg.Points(4)}
		grey := color.Gray{Y: 128}
		for _, y := range []float64{-residualCut, residualCut} {
			if err := addHLine(resid, lo, hi, y, grey, dash); err != nil {
				return nil, nil, false, err
			}
		}
	}
	resid.X.Min, resid.X.Max = lo, hi
	resid.Y.Min, resid.Y.Max = -rmax, rmax
	return fit, resid, true, nil
}

func addHLine(p *plot.Plot, x0, x1, y float64, c color.Color, dashes []vg.Length) error {
	l, err := plotter.NewLine(plotter.XYs{{X: x0, Y: y}, {X: x1, Y: y}})
	if err != nil {
		return err
	}
	l.LineStyle.Color = c
	l.LineStyle.Dashes = dashes
	p.Add(l)
	return nil
}

// savePNG renders onto a plotSize square canvas and writes it through fs.
func savePNG(fs fsutil.FileSystem, path string, render func(draw.Canvas)) error {
	img := vgimg.New(plotSize, plotSize)
	render(draw.New(img))

	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// writePlots saves the per-dataset fit plots with -plot_all, otherwise the
// overview with -save_plot.
func (r *Reporter) writePlots(pass merge.PassResult) error {
	if r.opts.PlotNone {
		return nil
	}
	st := PlotStyle{LogX: !r.opts.PlotLinear, ErrorBars: r.opts.ErrorBars, Merged: r.opts.PlotMerge}

	if r.opts.PlotAll {
		for _, d := range pass.Datasets {
			if d.Skipped() {
				continue
			}
			fit, resid, ok, err := FitPlots(d, st)
			if err != nil {
				return fmt.Errorf("plot %s: %w", d.Name, err)
			}
			if !ok {
				monitoring.Warnf("nothing to plot for %s", d.Name)
				continue
			}
			path, err := security.JoinWithin(r.opts.OutputDir, "fit_"+d.Name+".png")
			if err != nil {
				return err
			}
			err = savePNG(r.fs, path, func(dc draw.Canvas) {
				h := dc.Max.Y - dc.Min.Y
				fit.Draw(draw.Crop(dc, 0, 0, h/5, 0))
				resid.Draw(draw.Crop(dc, 0, 0, 0, -4*h/5))
			})
			if err != nil {
				return err
			}
		}
		return nil
	}

	if !r.opts.SavePlot {
		return nil
	}
	p, ok, err := OverviewPlot(pass, r.opts.Title, st)
	if err != nil {
		return err
	}
	if !ok {
		monitoring.Warnf("nothing to plot for %s", r.opts.Title)
		return nil
	}
	path, err := security.JoinWithin(r.opts.OutputDir, "merge_"+r.opts.Title+".png")
	if err != nil {
		return err
	}
	return savePNG(r.fs, path, p.Draw)
}

// generateColors spreads n hues evenly around the colour wheel.
func generateColors(n int) []color.Color {
	colors := make([]color.Color, n)
	for i := range colors {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
