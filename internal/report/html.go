package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/sasmerge/internal/curve"
	"github.com/banshee-data/sasmerge/internal/merge"
	"github.com/banshee-data/sasmerge/internal/security"
)

// CurveChart plots curves as scatter series on a log intensity axis.
func CurveChart(title, subtitle string, curves []curve.Curve, logX bool) *charts.Scatter {
	xType := "value"
	if logX {
		xType = "log"
	}
	sc := charts.NewScatter()
	sc.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1000px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "5%"}),
		charts.WithXAxisOpts(opts.XAxis{Type: xType, Name: "q", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "log", Name: "Intensity", NameLocation: "middle", NameGap: 40}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}),
	)
	for _, c := range curves {
		ep := points(c, logX)
		data := make([]opts.ScatterData, len(ep.XYs))
		for k, p := range ep.XYs {
			data[k] = opts.ScatterData{Value: []interface{}{p.X, p.Y}}
		}
		sc.AddSeries(c.Name, data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	}
	return sc
}

// Chi2rChart is a bar chart of the per-dataset chi2r of a pass. Skipped
// datasets are left out.
func Chi2rChart(pass merge.PassResult) *charts.Bar {
	var names []string
	var values []opts.BarData
	for _, d := range pass.Datasets {
		if d.Skipped() {
			continue
		}
		names = append(names, d.Name)
		values = append(values, opts.BarData{Value: d.Fit.Chi2r})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1000px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Compatibility", Subtitle: "reduced chi-square per dataset"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(names).
		AddSeries("chi2r", values,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

// RenderPage writes the charts as one HTML page.
func RenderPage(w io.Writer, title string, chs ...components.Charter) error {
	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(chs...)
	return page.Render(w)
}

func (r *Reporter) writeHTML(pass merge.PassResult) error {
	var curves []curve.Curve
	for _, d := range pass.Datasets {
		if !d.Skipped() {
			curves = append(curves, d.Scaled)
		}
	}
	curves = append(curves, pass.Merged)

	path, err := security.JoinWithin(r.opts.OutputDir, "merge_"+r.opts.Title+".html")
	if err != nil {
		return err
	}
	f, err := r.fs.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	subtitle := fmt.Sprintf("%d datasets, %d merged points", pass.Contributing(), pass.Merged.Len())
	if err := RenderPage(f, r.opts.Title,
		CurveChart(r.opts.Title, subtitle, curves, !r.opts.PlotLinear),
		Chi2rChart(pass),
	); err != nil {
		f.Close()
		return fmt.Errorf("render %s: %w", path, err)
	}
	return f.Close()
}
