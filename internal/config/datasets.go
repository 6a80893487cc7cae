package config

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/sasmerge/internal/curve"
	"github.com/banshee-data/sasmerge/internal/fsutil"
	"github.com/banshee-data/sasmerge/internal/monitoring"
)

var (
	// ErrNoData indicates that neither -d nor the -path/-ext scan found input.
	ErrNoData = errors.New("could not find data, try -d \"data1.dat data2.dat\"")

	// ErrLabelCount indicates a label list whose length differs from the dataset list.
	ErrLabelCount = errors.New("number of labels does not match number of datasets")
)

// RefKind selects how the initial reference is chosen.
type RefKind int

const (
	RefFirst RefKind = iota // first dataset
	RefAll                  // every dataset in turn
	RefIndex                // 1-based dataset index
	RefPath                 // explicit file, merged only if listed
)

// RefSelector is a parsed -ref value.
type RefSelector struct {
	Kind  RefKind
	Index int
	Path  string
}

// ParseReference parses "", "none", "all", a positive 1-based index or a path.
func ParseReference(s string) (RefSelector, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || s == "none":
		return RefSelector{Kind: RefFirst}, nil
	case s == "all":
		return RefSelector{Kind: RefAll}, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 {
			return RefSelector{}, fmt.Errorf("reference index must be 1 or more, got %d", n)
		}
		return RefSelector{Kind: RefIndex, Index: n}, nil
	}
	return RefSelector{Kind: RefPath, Path: s}, nil
}

// Dataset is one resolved input file.
type Dataset struct {
	Path  string
	Label string
}

// SplitList splits a space-separated flag value, dropping empty entries.
func SplitList(s string) []string {
	return strings.Fields(s)
}

// ResolveDatasets turns Data/Path/Ext into file paths. With Data set each
// entry becomes Path+entry+Ext; otherwise every file in Path ending with Ext
// is used. Labels default to the entry names.
func (c *Config) ResolveDatasets(fs fsutil.FileSystem) ([]Dataset, error) {
	dir, ext := c.GetPath(), c.GetExt()

	var names []string
	if len(c.Data) > 0 {
		for _, d := range c.Data {
			names = append(names, d+ext)
		}
	} else {
		files, err := fs.ListFiles(dir)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoData, err)
		}
		for _, f := range files {
			if strings.HasSuffix(f, ext) {
				names = append(names, f)
			}
		}
	}
	if len(names) == 0 {
		return nil, ErrNoData
	}

	labels := c.Labels
	if len(labels) == 0 {
		labels = c.Data
		if len(labels) == 0 {
			labels = names
		}
	}
	if len(labels) != len(names) {
		return nil, fmt.Errorf("%w: %d labels for %d datasets", ErrLabelCount, len(labels), len(names))
	}

	out := make([]Dataset, len(names))
	for k, n := range names {
		out[k] = Dataset{Path: filepath.Join(dir, n), Label: labels[k]}
	}
	return out, nil
}

// ReferenceCandidates returns the indices into datasets used as initial
// references, or an external path when the selector names a file. An index
// beyond the list falls back to the first dataset with a warning.
func ReferenceCandidates(sel RefSelector, n int) (indices []int, path string) {
	switch sel.Kind {
	case RefAll:
		indices = make([]int, n)
		for k := range indices {
			indices[k] = k
		}
		return indices, ""
	case RefIndex:
		if sel.Index > n {
			monitoring.Warnf("no dataset number %d (indexing starts at 1), using the first dataset as reference", sel.Index)
			return []int{0}, ""
		}
		return []int{sel.Index - 1}, ""
	case RefPath:
		return nil, sel.Path
	}
	return []int{0}, ""
}

// GridRange returns the merge grid bounds: the data q-range across all
// datasets, narrowed by QMin/QMax when they lie inside it. For a log grid the
// lower bound is the smallest positive q.
func (c *Config) GridRange(datasets []curve.Curve) (float64, float64, error) {
	logQ := c.GetLogQ()
	qmin, qmax := math.Inf(1), math.Inf(-1)
	for _, d := range datasets {
		for _, q := range d.Q {
			if logQ && q <= 0 {
				continue
			}
			qmin = math.Min(qmin, q)
			qmax = math.Max(qmax, q)
		}
	}
	if math.IsInf(qmin, 1) || math.IsInf(qmax, -1) {
		return 0, 0, fmt.Errorf("%w: no usable q values", ErrNoData)
	}
	if c.QMin != nil && *c.QMin > qmin {
		qmin = *c.QMin
	}
	if c.QMax != nil && *c.QMax < qmax {
		qmax = *c.QMax
	}
	if qmin >= qmax {
		return 0, 0, fmt.Errorf("empty q-range [%g, %g]", qmin, qmax)
	}
	return qmin, qmax, nil
}
