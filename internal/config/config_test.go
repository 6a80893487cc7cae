package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyConfig()

	if cfg.GetPath() != "./" {
		t.Errorf("GetPath() = %q, want ./", cfg.GetPath())
	}
	if cfg.GetPoints() != 500 {
		t.Errorf("GetPoints() = %d, want 500", cfg.GetPoints())
	}
	if cfg.GetTitle() != "Merged" {
		t.Errorf("GetTitle() = %q, want Merged", cfg.GetTitle())
	}
	if !cfg.GetLogQ() || !cfg.GetConverge() || !cfg.GetNormalize() || !cfg.GetPlotMerge() {
		t.Error("log_q, converge, normalize and plot_merge should default to true")
	}
	if cfg.GetRange() || cfg.GetExport() || cfg.GetPlotAll() || cfg.GetStrict() {
		t.Error("range, export, plot_all and strict should default to false")
	}
	if cfg.GetMaxIterations() != 20 || cfg.GetThreshold() != 1e-4 {
		t.Errorf("convergence defaults = (%d, %g), want (20, 1e-4)", cfg.GetMaxIterations(), cfg.GetThreshold())
	}
	if lo, hi := cfg.GetRefWindow(); lo != 0 || hi != 0 {
		t.Errorf("GetRefWindow() = (%g, %g), want open window", lo, hi)
	}
	if got := cfg.OutputDir(); got != "output_Merged" {
		t.Errorf("OutputDir() = %q, want output_Merged", got)
	}
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{
			name: "json",
			file: "merge.json",
			body: `{"data": ["a.dat", "b.dat"], "points": 200, "log_q": false, "title": "lyz", "qmin_ref": 0.02, "converge": false}`,
		},
		{
			name: "yaml",
			file: "merge.yaml",
			body: "data: [a.dat, b.dat]\npoints: 200\nlog_q: false\ntitle: lyz\nqmin_ref: 0.02\nconverge: false\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.body), 0644); err != nil {
				t.Fatalf("Failed to write test config: %v", err)
			}

			cfg, err := LoadConfig(path)
			if err != nil {
				t.Fatalf("LoadConfig() error = %v", err)
			}
			if len(cfg.Data) != 2 || cfg.Data[1] != "b.dat" {
				t.Errorf("Data = %v, want [a.dat b.dat]", cfg.Data)
			}
			if cfg.GetPoints() != 200 {
				t.Errorf("GetPoints() = %d, want 200", cfg.GetPoints())
			}
			if cfg.GetLogQ() {
				t.Error("GetLogQ() = true, want false")
			}
			if cfg.GetConverge() {
				t.Error("GetConverge() = true, want false")
			}
			if cfg.GetTitle() != "lyz" {
				t.Errorf("GetTitle() = %q, want lyz", cfg.GetTitle())
			}
			if lo, _ := cfg.GetRefWindow(); lo != 0.02 {
				t.Errorf("qmin_ref = %g, want 0.02", lo)
			}
			// unset fields keep their defaults
			if !cfg.GetNormalize() {
				t.Error("GetNormalize() should default to true")
			}
		})
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
		return path
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"wrong extension", write("merge.toml", "points = 3"), "extension"},
		{"missing file", filepath.Join(dir, "absent.json"), "stat"},
		{"bad json", write("bad.json", "{"), "parse config JSON"},
		{"bad yaml", write("bad.yaml", "points: [1"), "parse config YAML"},
		{"zero points", write("zero.json", `{"points": 0}`), "invalid configuration"},
		{"qmin above qmax", write("q.json", `{"qmin": 0.5, "qmax": 0.1}`), "qmin"},
		{"plot conflict", write("plot.json", `{"plot_all": true, "plot_none": true}`), "plot_all"},
		{"bad reference", write("ref.json", `{"reference": "0"}`), "reference index"},
		{"title with slash", write("title.json", `{"title": "a/b"}`), "invalid configuration"},
		{"too large", write("big.json", `{"title": "`+strings.Repeat("x", maxConfigFileSize)+`"}`), "too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(tt.path)
			if err == nil {
				t.Fatal("LoadConfig() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadConfig() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestOverride(t *testing.T) {
	base := &Config{
		Data:   []string{"a.dat"},
		Points: ptrInt(100),
		Title:  ptrString("file"),
		LogQ:   ptrBool(true),
	}
	flags := &Config{
		Title: ptrString("flag"),
		LogQ:  ptrBool(false),
		QMax:  ptrFloat64(0.3),
	}
	base.Override(flags)

	if base.GetTitle() != "flag" {
		t.Errorf("Title = %q, want flag", base.GetTitle())
	}
	if base.GetLogQ() {
		t.Error("LogQ should be overridden to false")
	}
	if base.GetPoints() != 100 {
		t.Errorf("Points = %d, want 100 (not overridden)", base.GetPoints())
	}
	if base.QMax == nil || *base.QMax != 0.3 {
		t.Errorf("QMax = %v, want 0.3", base.QMax)
	}
	if len(base.Data) != 1 {
		t.Errorf("Data = %v, want to keep file value", base.Data)
	}

	base.Override(nil)
	if base.GetTitle() != "flag" {
		t.Error("Override(nil) must not change anything")
	}
}

func TestConfigJSON(t *testing.T) {
	cfg := &Config{Points: ptrInt(42)}
	if got := cfg.JSON(); got != `{"points":42}` {
		t.Errorf("JSON() = %s", got)
	}
}
