package engine

import (
	"io"

	"github.com/Carmen-Shannon/oxy-rt/engine/config"
	"github.com/Carmen-Shannon/oxy-rt/engine/scene"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithConfig sets the configuration; its tick rate becomes the default rate of Run.
// Zero-valued fields are filled with defaults.
//
// Parameters:
//   - cfg: the configuration
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithConfig(cfg config.Config) EngineBuilderOption {
	return func(e *engine) {
		e.cfg = cfg.WithDefaults()
	}
}

// WithLogOutput installs a text logger writing to w as the shared engine logger, filtered at the
// configured LogLevel. Without it the engine leaves the logger installed by common.SetLogger alone.
//
// Parameters:
//   - w: the log destination
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithLogOutput(w io.Writer) EngineBuilderOption {
	return func(e *engine) {
		e.logOutput = w
	}
}

// WithProfiling enables or disables performance profiling output.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled.Store(enabled)
	}
}

// WithTickRate sets the engine tick rate in frames per second, overriding the configured rate.
// Values <= 0 keep the configured rate.
//
// Parameters:
//   - fps: target ticks per second
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps > 0 {
			e.engineTickRate = tickInterval(fps, e.cfg)
		}
	}
}

// WithScene registers a scene at the given key during engine construction.
// Scenes are committed in ascending key order.
//
// Parameters:
//   - key: the render-order key (lower commits first)
//   - s: the Scene to register
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithScene(key int, s scene.Scene) EngineBuilderOption {
	return func(e *engine) {
		e.scenes[key] = s
	}
}
