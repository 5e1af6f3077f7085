package config

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, 32, c.MaxTraversalDepth)
	assert.Equal(t, 8, c.MinBufferElements)
	assert.Equal(t, 2048, c.TextureWidth)
	assert.Equal(t, 2048, c.TextureHeight)
	assert.GreaterOrEqual(t, c.BuildWorkers, 1)
	assert.Equal(t, 0.5, c.RebuildRatio)
	assert.Equal(t, slog.LevelInfo, c.Level())
}

func TestParsePartialFillsDefaults(t *testing.T) {
	c, err := Parse([]byte(`
max_traversal_depth = 64
texture_width = 256
log_level = "debug"
`))
	require.NoError(t, err)
	assert.Equal(t, 64, c.MaxTraversalDepth)
	assert.Equal(t, 256, c.TextureWidth)
	assert.Equal(t, 2048, c.TextureHeight)
	assert.Equal(t, 8, c.MinBufferElements)
	assert.Equal(t, slog.LevelDebug, c.Level())

	empty, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), empty)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "unknown key", doc: `max_depth = 3`},
		{name: "wrong type", doc: `tick_rate = "fast"`},
		{name: "negative depth", doc: `max_traversal_depth = -1`},
		{name: "oversized texture", doc: `texture_height = 100000`},
		{name: "negative workers", doc: `build_workers = -2`},
		{name: "bad level", doc: `log_level = "loud"`},
		{name: "syntax", doc: `tick_rate = `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestNegativeRebuildRatioIsKept(t *testing.T) {
	c, err := Parse([]byte(`rebuild_ratio = -1.0`))
	require.NoError(t, err)
	assert.Equal(t, -1.0, c.RebuildRatio)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rt.toml")
	want := Default()
	want.MaxTraversalDepth = 48
	want.LogLevel = "warn"
	require.NoError(t, want.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
