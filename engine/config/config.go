package config

import (
	"bytes"
	"log/slog"
	"math"
	"os"
	"runtime"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultMaxTraversalDepth = 32
	DefaultMinBufferElements = 8
	DefaultTextureWidth      = 2048
	DefaultTextureHeight     = 2048
	DefaultRebuildRatio      = 0.5
	DefaultTickRate          = 60
	DefaultLogLevel          = "info"

	// MaxTextureSize bounds texture-array layer dimensions.
	MaxTextureSize = 8192
)

// Config holds the tunables shared by scenes and the engine loop.
// Zero-valued fields are replaced by their defaults when decoded, so a partial file is valid.
type Config struct {
	// MaxTraversalDepth is the explicit-stack limit of BVH traversal; deeper subtrees are dropped.
	MaxTraversalDepth int `toml:"max_traversal_depth"`
	// MinBufferElements is the minimum element count of a linear GPU mirror.
	MinBufferElements int `toml:"min_buffer_elements"`
	// TextureWidth and TextureHeight size each layer of a texture-array mirror, in texels.
	TextureWidth  int `toml:"texture_width"`
	TextureHeight int `toml:"texture_height"`
	// BuildWorkers is the worker count used to build triangle BVHs in batches.
	BuildWorkers int `toml:"build_workers"`
	// RebuildRatio is the fraction of the live instance count that incremental instance BVH
	// edits may reach before a full rebuild. A negative ratio disables automatic rebuilds; zero
	// is replaced by DefaultRebuildRatio.
	RebuildRatio float64 `toml:"rebuild_ratio"`
	// TickRate is the number of frames per second the engine loop targets.
	TickRate int `toml:"tick_rate"`
	// LogLevel is one of "debug", "info", "warn" or "error". engine.WithLogOutput applies it; callers
	// installing their own logger through common.SetLogger pass Level to their handler.
	LogLevel string `toml:"log_level"`
}

// Default returns the default configuration.
//
// Returns:
//   - Config: the defaults
func Default() Config {
	return Config{
		MaxTraversalDepth: DefaultMaxTraversalDepth,
		MinBufferElements: DefaultMinBufferElements,
		TextureWidth:      DefaultTextureWidth,
		TextureHeight:     DefaultTextureHeight,
		BuildWorkers:      defaultBuildWorkers(),
		RebuildRatio:      DefaultRebuildRatio,
		TickRate:          DefaultTickRate,
		LogLevel:          DefaultLogLevel,
	}
}

func defaultBuildWorkers() int {
	return max(1, runtime.NumCPU()-1)
}

// WithDefaults returns c with every zero-valued field replaced by its default.
func (c Config) WithDefaults() Config {
	d := Default()
	c.MaxTraversalDepth = common.Coalesce(c.MaxTraversalDepth, d.MaxTraversalDepth)
	c.MinBufferElements = common.Coalesce(c.MinBufferElements, d.MinBufferElements)
	c.TextureWidth = common.Coalesce(c.TextureWidth, d.TextureWidth)
	c.TextureHeight = common.Coalesce(c.TextureHeight, d.TextureHeight)
	c.BuildWorkers = common.Coalesce(c.BuildWorkers, d.BuildWorkers)
	c.RebuildRatio = common.Coalesce(c.RebuildRatio, d.RebuildRatio)
	c.TickRate = common.Coalesce(c.TickRate, d.TickRate)
	c.LogLevel = common.Coalesce(c.LogLevel, d.LogLevel)
	return c
}

// Validate checks that every field is in range.
//
// Returns:
//   - error: ErrInvalidConfig describing the first bad field, or nil
func (c Config) Validate() error {
	switch {
	case c.MaxTraversalDepth < 1:
		return errors.Wrapf(ErrInvalidConfig, "max_traversal_depth must be at least 1, got %d", c.MaxTraversalDepth)
	case c.MinBufferElements < 1:
		return errors.Wrapf(ErrInvalidConfig, "min_buffer_elements must be at least 1, got %d", c.MinBufferElements)
	case c.TextureWidth < 1 || c.TextureWidth > MaxTextureSize:
		return errors.Wrapf(ErrInvalidConfig, "texture_width must be in [1, %d], got %d", MaxTextureSize, c.TextureWidth)
	case c.TextureHeight < 1 || c.TextureHeight > MaxTextureSize:
		return errors.Wrapf(ErrInvalidConfig, "texture_height must be in [1, %d], got %d", MaxTextureSize, c.TextureHeight)
	case c.BuildWorkers < 1:
		return errors.Wrapf(ErrInvalidConfig, "build_workers must be at least 1, got %d", c.BuildWorkers)
	case math.IsNaN(c.RebuildRatio) || math.IsInf(c.RebuildRatio, 0):
		return errors.Wrapf(ErrInvalidConfig, "rebuild_ratio must be finite, got %v", c.RebuildRatio)
	case c.TickRate < 1:
		return errors.Wrapf(ErrInvalidConfig, "tick_rate must be at least 1, got %d", c.TickRate)
	}
	if _, ok := common.ParseLogLevel(c.LogLevel); !ok {
		return errors.Wrapf(ErrInvalidConfig, "unknown log_level %q", c.LogLevel)
	}
	return nil
}

// Level returns LogLevel as a slog.Level, slog.LevelInfo if it is unknown.
func (c Config) Level() slog.Level {
	l, _ := common.ParseLogLevel(c.LogLevel)
	return l
}

// Parse decodes a TOML document, fills defaults and validates the result.
// Unknown keys are rejected.
//
// Parameters:
//   - data: the TOML document
//
// Returns:
//   - Config: the decoded configuration
//   - error: ErrInvalidConfig if decoding or validation fails
func Parse(data []byte) (Config, error) {
	var c Config
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Config{}, errors.Mark(errors.Wrap(err, "config: decode"), ErrInvalidConfig)
	}
	c = c.WithDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Load reads and parses a TOML file.
//
// Parameters:
//   - path: the file path
//
// Returns:
//   - Config: the decoded configuration
//   - error: a wrapped read error, or ErrInvalidConfig
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config: read %s", path)
	}
	return Parse(data)
}

// Save encodes c as TOML to path.
//
// Parameters:
//   - path: the file path
//
// Returns:
//   - error: an encode or write error
func (c Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "config: encode")
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "config: write %s", path)
}
