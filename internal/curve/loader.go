package curve

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/sasmerge/internal/fsutil"
)

// Loader reads column files of (q, I, σ) through a FileSystem. Header and
// footer lines (anything that is not at least two numeric columns) are
// detected and skipped automatically, so instrument files with free-text
// preambles or trailers load without configuration.
type Loader struct {
	FS fsutil.FileSystem
}

// NewLoader returns a Loader backed by fs, or by the OS filesystem when fs is nil.
func NewLoader(fs fsutil.FileSystem) *Loader {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	return &Loader{FS: fs}
}

// Load reads a three-column dataset and validates that every σ is positive.
func (l *Loader) Load(path string) (Curve, error) {
	c, err := l.read(path, 3)
	if err != nil {
		return Curve{}, err
	}
	if err := c.Validate(true); err != nil {
		return Curve{}, err
	}
	return c, nil
}

// LoadReference reads a curve used only as an alignment target. Two columns
// are enough; σ is kept when present but never required.
func (l *Loader) LoadReference(path string) (Curve, error) {
	c, err := l.read(path, 2)
	if err != nil {
		return Curve{}, err
	}
	if err := c.Validate(false); err != nil {
		return Curve{}, err
	}
	return c, nil
}

func (l *Loader) read(path string, minCols int) (Curve, error) {
	data, err := l.FS.ReadFile(path)
	if err != nil {
		return Curve{}, fmt.Errorf("read %s: %w", path, err)
	}

	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	header, footer := DetectHeaderFooter(lines)
	if header+footer >= len(lines) {
		return Curve{}, fmt.Errorf("%s: %w", path, ErrNoDataLines)
	}

	c := Curve{Name: filepath.Base(path)}
	withSigma := minCols >= 3
	for n := header; n < len(lines)-footer; n++ {
		fields := splitFields(lines[n])
		if len(fields) == 0 {
			continue
		}
		vals, ok := parseLeading(fields)
		if !ok || vals < 2 {
			return Curve{}, fmt.Errorf("%s line %d: non-numeric row %q", path, n+1, strings.TrimSpace(lines[n]))
		}
		if vals < minCols {
			return Curve{}, fmt.Errorf("%s line %d: %w (need %d, got %d)", path, n+1, ErrTooFewColumns, minCols, vals)
		}
		if n == header && vals >= 3 {
			withSigma = true
		}
		q, _ := strconv.ParseFloat(fields[0], 64)
		i, _ := strconv.ParseFloat(fields[1], 64)
		c.Q = append(c.Q, q)
		c.I = append(c.I, i)
		if withSigma {
			if vals < 3 {
				return Curve{}, fmt.Errorf("%s line %d: %w (need 3, got %d)", path, n+1, ErrTooFewColumns, vals)
			}
			s, _ := strconv.ParseFloat(fields[2], 64)
			c.Sigma = append(c.Sigma, s)
		}
	}
	if len(c.Q) == 0 {
		return Curve{}, fmt.Errorf("%s: %w", path, ErrNoDataLines)
	}
	return c, nil
}

// DetectHeaderFooter returns how many leading and trailing lines of a file
// are not data rows. A data row has at least two numeric columns; blank
// lines count towards the header or footer only at the edges.
func DetectHeaderFooter(lines []string) (header, footer int) {
	for header < len(lines) && !isDataLine(lines[header]) {
		header++
	}
	for footer < len(lines)-header && !isDataLine(lines[len(lines)-1-footer]) {
		footer++
	}
	return header, footer
}

func isDataLine(line string) bool {
	fields := splitFields(line)
	if len(fields) < 2 {
		return false
	}
	n, _ := parseLeading(fields)
	return n >= 2
}

// parseLeading counts how many leading fields parse as floats. ok is false
// when the first field is not numeric.
func parseLeading(fields []string) (n int, ok bool) {
	for _, f := range fields {
		if _, err := strconv.ParseFloat(f, 64); err != nil {
			break
		}
		n++
	}
	return n, n > 0
}

func splitFields(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ',' || r == ';'
	})
}
