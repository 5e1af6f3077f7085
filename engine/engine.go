package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/config"
	"github.com/Carmen-Shannon/oxy-rt/engine/profiler"
	"github.com/Carmen-Shannon/oxy-rt/engine/scene"
	"github.com/cockroachdb/errors"
)

// Frame is one committed scene handed to the render callback.
type Frame struct {
	// Key is the scene's render-order key.
	Key   int
	Scene scene.Scene
	Data  scene.FrameData
}

type engine struct {
	mu *sync.RWMutex

	cfg config.Config

	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates
	running         atomic.Bool

	quitChannel chan struct{} // created by each Run, closed and cleared by Quit
	logOutput   io.Writer

	profiler         *profiler.Profiler
	profilingEnabled atomic.Bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32, frames []Frame)

	scenes map[int]scene.Scene
}

// Engine drives the frame loop: each frame runs the tick callback, commits every active scene in
// ascending key order and passes the committed frames to the render callback.
// Thread-safe for concurrent access.
type Engine interface {
	// Config returns the configuration the engine was built with.
	Config() config.Config

	// EnableProfiler turns on periodic performance reports at info level.
	EnableProfiler()

	// DisableProfiler turns off performance reports.
	DisableProfiler()

	// LastProfile returns the most recent profiler report.
	//
	// Returns:
	//   - profiler.Report: the report, zero until the first interval completed with profiling enabled
	LastProfile() profiler.Report

	// SetTickRate sets the target frames per second of Run. Takes effect immediately while running.
	//
	// Parameters:
	//   - fps: the target rate; values <= 0 use the configured tick rate
	SetTickRate(fps float64)

	// SetTickCallback sets the function run at the start of every frame, before scenes are committed.
	//
	// Parameters:
	//   - callback: receives the seconds since the previous frame
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback sets the function that consumes the committed frames.
	//
	// Parameters:
	//   - callback: receives the seconds since the previous frame and one Frame per active scene in key order
	SetRenderCallback(callback func(deltaTime float32, frames []Frame))

	// AddScene registers a scene at the given key, replacing any scene already there.
	//
	// Parameters:
	//   - key: the render-order key; lower keys are committed and rendered first
	//   - s: the scene
	AddScene(key int, s scene.Scene)

	// RemoveScene unregisters the scene at key.
	RemoveScene(key int)

	// Scene returns the scene at key, or nil.
	Scene(key int) scene.Scene

	// Scenes returns a copy of the registered scenes.
	Scenes() map[int]scene.Scene

	// Frame runs one frame synchronously. Run calls it on every tick.
	//
	// Parameters:
	//   - deltaTime: the seconds since the previous frame
	//
	// Returns:
	//   - error: the first scene commit error, wrapped with the scene key; the render callback is skipped
	Frame(deltaTime float32) error

	// Run calls Frame at the tick rate until Quit is called, ctx is done, or a frame fails.
	// A panic in a callback stops the loop and is returned as an error.
	//
	// Parameters:
	//   - ctx: stops the loop when done
	//
	// Returns:
	//   - error: nil after Quit, the context's error, or the failing frame's error
	Run(ctx context.Context) error

	// Running reports whether Run is executing.
	Running() bool

	// Quit stops the current Run, after which Run may be called again. It has no effect while the
	// engine is not running. Safe to call more than once and from any goroutine.
	Quit()
}

// Ensure engine implements Engine interface.
var _ Engine = &engine{}

func (e *engine) logger() *slog.Logger {
	return common.ComponentLogger("engine")
}

// NewEngine creates an engine with the default configuration unless WithConfig is given.
//
// Parameters:
//   - options: functional options to configure the engine
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		mu:              &sync.RWMutex{},
		cfg:             config.Default(),
		tickRateChannel: make(chan time.Duration, 1),
		scenes:          make(map[int]scene.Scene),
	}

	for _, opt := range options {
		opt(e)
	}
	if e.engineTickRate <= 0 {
		e.engineTickRate = tickInterval(float64(e.cfg.TickRate), e.cfg)
	}
	if e.logOutput != nil {
		common.SetLogger(slog.New(slog.NewTextHandler(e.logOutput, &slog.HandlerOptions{Level: e.cfg.Level()})))
	}
	e.profiler = profiler.NewProfiler()
	return e
}

// tickInterval converts a rate to a ticker period, falling back to the configured rate for fps <= 0.
func tickInterval(fps float64, cfg config.Config) time.Duration {
	if fps <= 0 {
		fps = float64(cfg.WithDefaults().TickRate)
	}
	return time.Duration(float64(time.Second) / fps)
}

func (e *engine) Config() config.Config {
	return e.cfg
}

func (e *engine) EnableProfiler() {
	if !e.profilingEnabled.Swap(true) {
		e.mu.Lock()
		e.profiler.Reset(time.Now())
		e.mu.Unlock()
	}
}

func (e *engine) DisableProfiler() {
	e.profilingEnabled.Store(false)
}

func (e *engine) LastProfile() profiler.Report {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.profiler.Last()
}

func (e *engine) SetTickRate(fps float64) {
	newRate := tickInterval(fps, e.cfg)

	if e.running.Load() {
		select {
		case e.tickRateChannel <- newRate:
		default:
			select {
			case <-e.tickRateChannel:
			default:
			}
			e.tickRateChannel <- newRate
		}
		return
	}
	e.mu.Lock()
	e.engineTickRate = newRate
	e.mu.Unlock()
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickCallback = callback
}

func (e *engine) SetRenderCallback(callback func(deltaTime float32, frames []Frame)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.renderCallback = callback
}

func (e *engine) AddScene(key int, s scene.Scene) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scenes[key] = s
}

func (e *engine) RemoveScene(key int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.scenes, key)
}

func (e *engine) Scene(key int) scene.Scene {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scenes[key]
}

func (e *engine) Scenes() map[int]scene.Scene {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return maps.Clone(e.scenes)
}

// activeScenes returns the active scenes and their keys in ascending key order.
func (e *engine) activeScenes() ([]int, []scene.Scene) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	keys := slices.Sorted(maps.Keys(e.scenes))
	active := keys[:0]
	var scenes []scene.Scene
	for _, k := range keys {
		if s := e.scenes[k]; s.Active() {
			active = append(active, k)
			scenes = append(scenes, s)
		}
	}
	return active, scenes
}

func (e *engine) Frame(deltaTime float32) error {
	e.mu.RLock()
	tick, render := e.tickCallback, e.renderCallback
	e.mu.RUnlock()

	if tick != nil {
		tick(deltaTime)
	}

	keys, scenes := e.activeScenes()
	frames := make([]Frame, 0, len(scenes))
	var sample profiler.Sample
	for i, s := range scenes {
		data, err := s.Commit()
		if err != nil {
			return errors.Wrapf(err, "engine: commit scene %d (%s)", keys[i], s.Name())
		}
		frames = append(frames, Frame{Key: keys[i], Scene: s, Data: data})
		if e.profilingEnabled.Load() {
			sample = addStats(sample, s.Stats())
		}
	}

	if render != nil {
		render(deltaTime, frames)
	}

	if e.profilingEnabled.Load() {
		e.mu.Lock()
		e.profiler.Tick(time.Now(), sample)
		e.mu.Unlock()
	}
	return nil
}

// addStats folds one scene's counters into a profiler sample.
func addStats(sample profiler.Sample, st scene.Stats) profiler.Sample {
	sample.Scenes++
	sample.Prototypes += st.Prototypes
	sample.Instances += st.Instances
	sample.Triangles += st.Triangles
	sample.BVHRebuilds += st.BVHRebuilds
	sample.Reallocations += st.Reallocations
	sample.TruncatedTraversals += st.TruncatedTraversals
	sample.BytesUploaded += st.GPU.BytesUploaded
	return sample
}

func (e *engine) Running() bool {
	return e.running.Load()
}

func (e *engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running.Load() {
		e.mu.Unlock()
		return errors.New("engine: already running")
	}
	e.running.Store(true)
	quit := make(chan struct{})
	e.quitChannel = quit
	rate := e.engineTickRate
	e.mu.Unlock()
	defer e.running.Store(false)

	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	e.logger().Info("engine started", slog.Duration("tick", rate))
	lastTick := time.Now()

	for {
		select {
		case <-quit:
			e.logger().Info("engine stopped")
			return nil
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "engine: run")
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.mu.Lock()
			e.engineTickRate = newRate
			e.mu.Unlock()
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if err := e.safeFrame(dt); err != nil {
				e.logger().Error("frame failed", slog.Any("error", err))
				return err
			}
		}
	}
}

// safeFrame runs Frame and converts a callback panic into an error.
func (e *engine) safeFrame(dt float32) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("engine: frame panicked: %s", fmt.Sprint(r))
		}
	}()
	return e.Frame(dt)
}

func (e *engine) Quit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.quitChannel != nil {
		close(e.quitChannel)
		e.quitChannel = nil
	}
}
