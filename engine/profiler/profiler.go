package profiler

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-rt/common"
)

// Sample is the scene workload of one frame, summed over every committed scene.
type Sample struct {
	Scenes              int
	Prototypes          int
	Instances           int
	Triangles           int
	BVHRebuilds         int
	Reallocations       int
	TruncatedTraversals int64
	BytesUploaded       int
}

// Report summarizes one profiling interval.
type Report struct {
	Elapsed time.Duration
	Frames  int
	FPS     float64

	// HeapMB is live heap memory, SysMB the memory obtained from the OS, AllocRateMB the heap churn per second.
	HeapMB      float64
	SysMB       float64
	AllocRateMB float64

	GCCount     uint32
	LastPauseUs uint64
	MaxPauseUs  uint64

	// Workload is the latest sample; UploadRateMB is the GPU upload volume per second over the interval.
	Workload     Sample
	UploadRateMB float64
}

// Profiler tracks frame rate, memory statistics and scene workload for performance monitoring.
// Outputs a report to the engine logger at a configurable interval. Not safe for concurrent use.
type Profiler struct {
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	lastUploaded   int
	last           Report
}

// NewProfiler creates a new Profiler. Update interval defaults to 1 second.
//
// Parameters:
//   - options: functional options to configure the profiler
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		lastTime:       time.Now(),
		updateInterval: time.Second,
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// Reset starts a new interval at now and forgets the frames counted so far.
//
// Parameters:
//   - now: the start of the interval
func (p *Profiler) Reset(now time.Time) {
	p.frameCount = 0
	p.lastTime = now
}

// Last returns the most recent report, or the zero Report before the first interval elapsed.
func (p *Profiler) Last() Report {
	return p.last
}

// Tick should be called once per frame. When the update interval has elapsed it builds a report,
// logs it at info level and starts a new interval.
// Statistics include: FPS, heap usage, allocation rate, GC count/pause times, total memory, scene workload.
//
// Parameters:
//   - now: the frame time
//   - sample: the frame's scene workload
//
// Returns:
//   - Report: the interval report, valid only when the bool is true
//   - bool: true if an interval completed this tick
func (p *Profiler) Tick(now time.Time, sample Sample) (Report, bool) {
	p.frameCount++
	elapsed := now.Sub(p.lastTime)
	if elapsed < p.updateInterval || elapsed <= 0 {
		return Report{}, false
	}
	seconds := elapsed.Seconds()

	runtime.ReadMemStats(&p.memStats)
	r := Report{
		Elapsed:      elapsed,
		Frames:       p.frameCount,
		FPS:          float64(p.frameCount) / seconds,
		HeapMB:       bytesToMB(p.memStats.Alloc),
		SysMB:        bytesToMB(p.memStats.Sys),
		AllocRateMB:  bytesToMB(p.memStats.TotalAlloc-p.lastTotalAlloc) / seconds,
		GCCount:      p.memStats.NumGC,
		Workload:     sample,
		UploadRateMB: bytesToMB(uint64(max(sample.BytesUploaded-p.lastUploaded, 0))) / seconds,
	}

	if gcCount := p.memStats.NumGC; gcCount > 0 {
		// PauseNs is a circular buffer of the last 256 GC pauses.
		r.LastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000
		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			r.MaxPauseUs = max(r.MaxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	common.ComponentLogger("profiler").Info("profile",
		slog.Float64("fps", r.FPS),
		slog.Float64("heap_mb", r.HeapMB),
		slog.Float64("alloc_rate_mb", r.AllocRateMB),
		slog.Uint64("gc", uint64(r.GCCount)),
		slog.Uint64("gc_last_pause_us", r.LastPauseUs),
		slog.Uint64("gc_max_pause_us", r.MaxPauseUs),
		slog.Float64("sys_mb", r.SysMB),
		slog.Int("scenes", sample.Scenes),
		slog.Int("instances", sample.Instances),
		slog.Int("triangles", sample.Triangles),
		slog.Int("bvh_rebuilds", sample.BVHRebuilds),
		slog.Int64("truncated_traversals", sample.TruncatedTraversals),
		slog.Float64("upload_rate_mb", r.UploadRateMB),
	)

	p.frameCount = 0
	p.lastTime = now
	p.lastGCCount = p.memStats.NumGC
	p.lastTotalAlloc = p.memStats.TotalAlloc
	p.lastUploaded = sample.BytesUploaded
	p.last = r
	return r, true
}

func bytesToMB(b uint64) float64 {
	return float64(b) / 1024 / 1024
}
