package profiler

import "time"

// ProfilerBuilderOption is a functional option for configuring a Profiler.
type ProfilerBuilderOption func(*Profiler)

// WithInterval sets how often Tick produces a report. Non-positive values keep the 1 second default.
//
// Parameters:
//   - d: the report interval
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithInterval(d time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		if d > 0 {
			p.updateInterval = d
		}
	}
}

// WithStart sets the start of the first interval instead of the construction time.
//
// Parameters:
//   - t: the start time
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithStart(t time.Time) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.lastTime = t
	}
}
