package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/banshee-data/sasmerge/internal/merge"
)

// SummaryOptions controls WriteSummary.
type SummaryOptions struct {
	Converge   bool
	ScaleTable bool
	RefWindow  bool
	MergedFile string
	Reference  string
}

// Rank orders datasets by ascending chi2r. Skipped datasets go last in input
// order.
func Rank(datasets []merge.DatasetResult) []merge.DatasetResult {
	out := make([]merge.DatasetResult, len(datasets))
	copy(out, datasets)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Skipped() || b.Skipped() {
			return !a.Skipped() && b.Skipped()
		}
		return a.Fit.Chi2r < b.Fit.Chi2r
	})
	return out
}

// WriteSummary prints how the run ended and the compatibility ranking of the
// final pass.
func WriteSummary(w io.Writer, res merge.RunResult, opts SummaryOptions) {
	final := res.Final

	fmt.Fprintln(w, rule)
	switch res.State.Status {
	case merge.StatusConverged:
		fmt.Fprintf(w, "Converged after %d iterations\n", res.State.Iterations)
	case merge.StatusMaxIterations:
		fmt.Fprintf(w, "Max number of iterations reached (imax = %d)\n", res.State.Iterations)
	}
	fmt.Fprintf(w, "N in merged data: %d\n", final.Merged.Len())
	if final.Trim != nil {
		fmt.Fprintf(w, "q range with at least 2 overlapping data curves: [%1.4f,%1.2f]\n", final.Trim.Min, final.Trim.Max)
	}
	if opts.MergedFile != "" {
		fmt.Fprintf(w, "Merged data written to file: %s\n", opts.MergedFile)
	}

	against := "merged consensus curve"
	if !opts.Converge {
		against = "reference " + opts.Reference
	}
	if opts.RefWindow {
		fmt.Fprintf(w, "Data sorted after compatibility with %s, in selected q-range (-qmin_ref and -qmax_ref):\n", against)
	} else {
		fmt.Fprintf(w, "Data sorted after compatibility with %s:\n", against)
	}
	fmt.Fprintln(w, RankingTable(final.Datasets, opts.ScaleTable))

	fmt.Fprintf(w, "%s\nsasmerge finished successfully\n%s\n", rule, rule)
}

// RankingTable renders the chi2r ranking, with the output-scale columns when
// scale is set.
func RankingTable(datasets []merge.DatasetResult, scale bool) string {
	headers := []string{"dataset", "chi2r"}
	if scale {
		headers = append(headers, "a", "b")
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))).
		StyleFunc(func(_, col int) lipgloss.Style {
			s := lipgloss.NewStyle().Padding(0, 1)
			if col > 0 {
				s = s.Align(lipgloss.Right)
			}
			return s
		}).
		Headers(headers...)

	for _, d := range Rank(datasets) {
		if d.Skipped() {
			row := []string{d.Name, "skipped"}
			if scale {
				row = append(row, "-", "-")
			}
			t.Row(row...)
			continue
		}
		row := []string{d.Name, fmt.Sprintf("%1.2f", d.Fit.Chi2r)}
		if scale {
			row = append(row,
				fmt.Sprintf("%1.3f", d.Fit.ScaleFactor()),
				fmt.Sprintf("%1.6f", d.Fit.Background()))
		}
		t.Row(row...)
	}
	return t.String()
}
