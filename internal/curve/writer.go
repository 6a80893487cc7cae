package curve

import (
	"bufio"
	"fmt"
	"io"

	"github.com/banshee-data/sasmerge/internal/fsutil"
)

// WriteMerged writes a merged curve with its provenance header: the sample
// title and the list of input datasets, followed by one "q I sigma" row per
// point.
func WriteMerged(fs fsutil.FileSystem, path, title string, inputs []string, c Curve) error {
	return writeFile(fs, path, func(w io.Writer) error {
		if _, err := fmt.Fprintf(w, "#sample: %s\n# data\n", title); err != nil {
			return err
		}
		for _, name := range inputs {
			if _, err := fmt.Fprintf(w, "# %s\n", name); err != nil {
				return err
			}
		}
		return writeRows(w, c)
	})
}

// WriteScaled writes a rescaled dataset, noting the source file and the
// reference it was aligned to.
func WriteScaled(fs fsutil.FileSystem, path, source, reference string, c Curve) error {
	return writeFile(fs, path, func(w io.Writer) error {
		if _, err := fmt.Fprintf(w, "# scaled and subtracted version of %s\n# scaled to align with %s\n", source, reference); err != nil {
			return err
		}
		return writeRows(w, c)
	})
}

func writeRows(w io.Writer, c Curve) error {
	if _, err := io.WriteString(w, "# q  I  sigma\n"); err != nil {
		return err
	}
	for i := range c.Q {
		s := 0.0
		if c.HasSigma() {
			s = c.Sigma[i]
		}
		if _, err := fmt.Fprintf(w, "%e %e %e\n", c.Q[i], c.I[i], s); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(fs fsutil.FileSystem, path string, body func(io.Writer) error) error {
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	bw := bufio.NewWriter(f)
	if err := body(bw); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}
