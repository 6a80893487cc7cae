// Package config holds the run configuration for a merge: which datasets to
// read, how to build the grid, which reference to start from and what output
// to produce. Values come from an optional JSON or YAML file and are then
// overridden by command-line flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Defaults applied by the Get* accessors when a field is unset.
const (
	DefaultPath          = "./"
	DefaultPoints        = 500
	DefaultTitle         = "Merged"
	DefaultMaxIterations = 20
	DefaultThreshold     = 1e-4
)

const maxConfigFileSize = 1 * 1024 * 1024 // 1MB

// Config is the merge run configuration. Pointer fields distinguish "unset"
// from the zero value so file values and flags can be layered.
type Config struct {
	// Inputs
	Data   []string `json:"data,omitempty" yaml:"data,omitempty" validate:"omitempty,dive,required"`
	Path   *string  `json:"path,omitempty" yaml:"path,omitempty"`
	Ext    *string  `json:"ext,omitempty" yaml:"ext,omitempty"`
	Labels []string `json:"labels,omitempty" yaml:"labels,omitempty" validate:"omitempty,dive,required"`

	// Grid
	QMin   *float64 `json:"qmin,omitempty" yaml:"qmin,omitempty" validate:"omitempty,gte=0"`
	QMax   *float64 `json:"qmax,omitempty" yaml:"qmax,omitempty" validate:"omitempty,gt=0"`
	Points *int     `json:"points,omitempty" yaml:"points,omitempty" validate:"omitempty,min=1"`
	LogQ   *bool    `json:"log_q,omitempty" yaml:"log_q,omitempty"`

	// Reference
	Reference *string  `json:"reference,omitempty" yaml:"reference,omitempty"`
	RefQMin   *float64 `json:"qmin_ref,omitempty" yaml:"qmin_ref,omitempty" validate:"omitempty,gte=0"`
	RefQMax   *float64 `json:"qmax_ref,omitempty" yaml:"qmax_ref,omitempty" validate:"omitempty,gte=0"`
	RefSmooth *bool    `json:"ref_smooth,omitempty" yaml:"ref_smooth,omitempty"`

	// Merge
	Range         *bool    `json:"range,omitempty" yaml:"range,omitempty"`
	Converge      *bool    `json:"converge,omitempty" yaml:"converge,omitempty"`
	Normalize     *bool    `json:"normalize,omitempty" yaml:"normalize,omitempty"`
	MaxIterations *int     `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty" validate:"omitempty,min=1"`
	Threshold     *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty" validate:"omitempty,gt=0"`
	Strict        *bool    `json:"strict,omitempty" yaml:"strict,omitempty"`
	Workers       *int     `json:"workers,omitempty" yaml:"workers,omitempty" validate:"omitempty,min=0"`

	// Output
	Title       *string `json:"title,omitempty" yaml:"title,omitempty" validate:"omitempty,min=1,excludesall=/"`
	OutputScale *bool   `json:"output_scale,omitempty" yaml:"output_scale,omitempty"`
	Export      *bool   `json:"export,omitempty" yaml:"export,omitempty"`
	PlotAll     *bool   `json:"plot_all,omitempty" yaml:"plot_all,omitempty"`
	PlotNone    *bool   `json:"plot_none,omitempty" yaml:"plot_none,omitempty"`
	PlotMerge   *bool   `json:"plot_merge,omitempty" yaml:"plot_merge,omitempty"`
	ErrorBars   *bool   `json:"error_bars,omitempty" yaml:"error_bars,omitempty"`
	PlotLinear  *bool   `json:"plot_lin,omitempty" yaml:"plot_lin,omitempty"`
	SavePlot    *bool   `json:"save_plot,omitempty" yaml:"save_plot,omitempty"`
	HTML        *bool   `json:"html,omitempty" yaml:"html,omitempty"`
	DBPath      *string `json:"db,omitempty" yaml:"db,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyConfig returns a Config with every field unset.
func EmptyConfig() *Config {
	return &Config{}
}

// LoadConfig reads a JSON (.json) or YAML (.yaml, .yml) config file. Omitted
// fields stay unset and fall back to the Get* defaults.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and the relations between fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.QMin != nil && c.QMax != nil && *c.QMin >= *c.QMax {
		return fmt.Errorf("qmin (%g) must be below qmax (%g)", *c.QMin, *c.QMax)
	}
	if c.RefQMin != nil && c.RefQMax != nil && *c.RefQMax != 0 && *c.RefQMin >= *c.RefQMax {
		return fmt.Errorf("qmin_ref (%g) must be below qmax_ref (%g)", *c.RefQMin, *c.RefQMax)
	}
	if c.GetPlotAll() && c.GetPlotNone() {
		return fmt.Errorf("plot_all and plot_none cannot both be set")
	}
	if c.Reference != nil {
		if _, err := ParseReference(*c.Reference); err != nil {
			return err
		}
	}
	return nil
}

// Override copies every field set in o over c.
func (c *Config) Override(o *Config) {
	if o == nil {
		return
	}
	if o.Data != nil {
		c.Data = o.Data
	}
	if o.Labels != nil {
		c.Labels = o.Labels
	}
	overridePtr(&c.Path, o.Path)
	overridePtr(&c.Ext, o.Ext)
	overridePtr(&c.QMin, o.QMin)
	overridePtr(&c.QMax, o.QMax)
	overridePtr(&c.Points, o.Points)
	overridePtr(&c.LogQ, o.LogQ)
	overridePtr(&c.Reference, o.Reference)
	overridePtr(&c.RefQMin, o.RefQMin)
	overridePtr(&c.RefQMax, o.RefQMax)
	overridePtr(&c.RefSmooth, o.RefSmooth)
	overridePtr(&c.Range, o.Range)
	overridePtr(&c.Converge, o.Converge)
	overridePtr(&c.Normalize, o.Normalize)
	overridePtr(&c.MaxIterations, o.MaxIterations)
	overridePtr(&c.Threshold, o.Threshold)
	overridePtr(&c.Strict, o.Strict)
	overridePtr(&c.Workers, o.Workers)
	overridePtr(&c.Title, o.Title)
	overridePtr(&c.OutputScale, o.OutputScale)
	overridePtr(&c.Export, o.Export)
	overridePtr(&c.PlotAll, o.PlotAll)
	overridePtr(&c.PlotNone, o.PlotNone)
	overridePtr(&c.PlotMerge, o.PlotMerge)
	overridePtr(&c.ErrorBars, o.ErrorBars)
	overridePtr(&c.PlotLinear, o.PlotLinear)
	overridePtr(&c.SavePlot, o.SavePlot)
	overridePtr(&c.HTML, o.HTML)
	overridePtr(&c.DBPath, o.DBPath)
}

func overridePtr[T any](dst **T, src *T) {
	if src != nil {
		*dst = src
	}
}

// JSON returns the configuration as JSON, as stored with each recorded run.
func (c *Config) JSON() string {
	b, err := json.Marshal(c)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func (c *Config) GetPath() string {
	if c.Path == nil {
		return DefaultPath
	}
	return *c.Path
}

func (c *Config) GetExt() string {
	if c.Ext == nil {
		return ""
	}
	return *c.Ext
}

// GetPoints returns the number of merge bins, N.
func (c *Config) GetPoints() int {
	if c.Points == nil {
		return DefaultPoints
	}
	return *c.Points
}

// GetLogQ reports whether the grid is log-spaced (default true).
func (c *Config) GetLogQ() bool {
	if c.LogQ == nil {
		return true
	}
	return *c.LogQ
}

func (c *Config) GetReference() string {
	if c.Reference == nil {
		return ""
	}
	return *c.Reference
}

// GetRefWindow returns qmin_ref and qmax_ref; zero means that side is open.
func (c *Config) GetRefWindow() (float64, float64) {
	var lo, hi float64
	if c.RefQMin != nil {
		lo = *c.RefQMin
	}
	if c.RefQMax != nil {
		hi = *c.RefQMax
	}
	return lo, hi
}

func (c *Config) GetRefSmooth() bool { return c.RefSmooth != nil && *c.RefSmooth }
func (c *Config) GetRange() bool     { return c.Range != nil && *c.Range }

// GetConverge reports whether to iterate until convergence (default true).
func (c *Config) GetConverge() bool {
	if c.Converge == nil {
		return true
	}
	return *c.Converge
}

// GetNormalize reports whether to normalise the merged curve (default true).
func (c *Config) GetNormalize() bool {
	if c.Normalize == nil {
		return true
	}
	return *c.Normalize
}

func (c *Config) GetMaxIterations() int {
	if c.MaxIterations == nil {
		return DefaultMaxIterations
	}
	return *c.MaxIterations
}

func (c *Config) GetThreshold() float64 {
	if c.Threshold == nil {
		return DefaultThreshold
	}
	return *c.Threshold
}

func (c *Config) GetStrict() bool { return c.Strict != nil && *c.Strict }

// GetWorkers returns the fit concurrency; 0 lets the merge pass decide.
func (c *Config) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

func (c *Config) GetTitle() string {
	if c.Title == nil || *c.Title == "" {
		return DefaultTitle
	}
	return *c.Title
}

func (c *Config) GetOutputScale() bool { return c.OutputScale != nil && *c.OutputScale }
func (c *Config) GetExport() bool      { return c.Export != nil && *c.Export }
func (c *Config) GetPlotAll() bool     { return c.PlotAll != nil && *c.PlotAll }
func (c *Config) GetPlotNone() bool    { return c.PlotNone != nil && *c.PlotNone }

// GetPlotMerge reports whether the merged curve is drawn (default true).
func (c *Config) GetPlotMerge() bool {
	if c.PlotMerge == nil {
		return true
	}
	return *c.PlotMerge
}

func (c *Config) GetErrorBars() bool  { return c.ErrorBars != nil && *c.ErrorBars }
func (c *Config) GetPlotLinear() bool { return c.PlotLinear != nil && *c.PlotLinear }
func (c *Config) GetSavePlot() bool   { return c.SavePlot != nil && *c.SavePlot }
func (c *Config) GetHTML() bool       { return c.HTML != nil && *c.HTML }

func (c *Config) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

// OutputDir is the per-title output directory, output_<title>.
func (c *Config) OutputDir() string {
	return "output_" + c.GetTitle()
}
