package config

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sasmerge/internal/curve"
	"github.com/banshee-data/sasmerge/internal/fsutil"
	"github.com/banshee-data/sasmerge/internal/monitoring"
)

func TestParseReference(t *testing.T) {
	tests := []struct {
		in      string
		want    RefSelector
		wantErr bool
	}{
		{"", RefSelector{Kind: RefFirst}, false},
		{"none", RefSelector{Kind: RefFirst}, false},
		{"all", RefSelector{Kind: RefAll}, false},
		{"3", RefSelector{Kind: RefIndex, Index: 3}, false},
		{"/data/ref.dat", RefSelector{Kind: RefPath, Path: "/data/ref.dat"}, false},
		{"0", RefSelector{}, true},
		{"-2", RefSelector{}, true},
	}

	for _, tt := range tests {
		got, err := ParseReference(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseReference(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseReference(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestReferenceCandidates(t *testing.T) {
	original := monitoring.Logf
	var warned bool
	monitoring.SetLogger(func(string, ...interface{}) { warned = true })
	defer func() { monitoring.Logf = original }()

	idx, path := ReferenceCandidates(RefSelector{Kind: RefAll}, 3)
	assert.Equal(t, []int{0, 1, 2}, idx)
	assert.Empty(t, path)

	idx, _ = ReferenceCandidates(RefSelector{Kind: RefIndex, Index: 2}, 3)
	assert.Equal(t, []int{1}, idx)
	assert.False(t, warned)

	idx, _ = ReferenceCandidates(RefSelector{Kind: RefIndex, Index: 7}, 3)
	assert.Equal(t, []int{0}, idx)
	assert.True(t, warned)

	idx, path = ReferenceCandidates(RefSelector{Kind: RefPath, Path: "ref.dat"}, 3)
	assert.Nil(t, idx)
	assert.Equal(t, "ref.dat", path)

	idx, _ = ReferenceCandidates(RefSelector{}, 3)
	assert.Equal(t, []int{0}, idx)
}

func TestResolveDatasets_FromList(t *testing.T) {
	cfg := &Config{
		Data: SplitList("  lyz_01  lyz_02 "),
		Path: ptrString("/data"),
		Ext:  ptrString(".dat"),
	}
	got, err := cfg.ResolveDatasets(fsutil.NewMemoryFileSystem())
	require.NoError(t, err)

	assert.Equal(t, []Dataset{
		{Path: filepath.Join("/data", "lyz_01.dat"), Label: "lyz_01"},
		{Path: filepath.Join("/data", "lyz_02.dat"), Label: "lyz_02"},
	}, got)
}

func TestResolveDatasets_FromDirectory(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	mfs.AddFile("/data/b.dat", "")
	mfs.AddFile("/data/a.dat", "")
	mfs.AddFile("/data/notes.txt", "")

	cfg := &Config{Path: ptrString("/data"), Ext: ptrString(".dat"), Labels: []string{"first", "second"}}
	got, err := cfg.ResolveDatasets(mfs)
	require.NoError(t, err)

	assert.Equal(t, []Dataset{
		{Path: "/data/a.dat", Label: "first"},
		{Path: "/data/b.dat", Label: "second"},
	}, got)
}

func TestResolveDatasets_Errors(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	mfs.AddFile("/empty/readme.txt", "")

	_, err := (&Config{Path: ptrString("/empty"), Ext: ptrString(".dat")}).ResolveDatasets(mfs)
	assert.True(t, errors.Is(err, ErrNoData))

	_, err = (&Config{Data: []string{"a", "b"}, Labels: []string{"only"}}).ResolveDatasets(mfs)
	assert.True(t, errors.Is(err, ErrLabelCount))
}

func TestGridRange(t *testing.T) {
	datasets := []curve.Curve{
		{Q: []float64{0, 0.01, 0.2}},
		{Q: []float64{0.005, 0.4}},
	}

	tests := []struct {
		name   string
		cfg    *Config
		lo, hi float64
	}{
		{"log skips non-positive q", &Config{}, 0.005, 0.4},
		{"linear keeps zero", &Config{LogQ: ptrBool(false)}, 0, 0.4},
		{"user bounds narrow", &Config{QMin: ptrFloat64(0.01), QMax: ptrFloat64(0.3)}, 0.01, 0.3},
		{"user bounds never widen", &Config{QMin: ptrFloat64(0.001), QMax: ptrFloat64(2)}, 0.005, 0.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi, err := tt.cfg.GridRange(datasets)
			require.NoError(t, err)
			assert.Equal(t, tt.lo, lo)
			assert.Equal(t, tt.hi, hi)
		})
	}

	_, _, err := (&Config{}).GridRange([]curve.Curve{{Q: []float64{0, -1}}})
	assert.ErrorIs(t, err, ErrNoData)

	_, _, err = (&Config{QMin: ptrFloat64(0.5)}).GridRange(datasets)
	assert.Error(t, err)
}
