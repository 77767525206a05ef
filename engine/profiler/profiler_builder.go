package profiler

import "time"

// ProfilerBuilderOption is a functional option for configuring a Profiler.
type ProfilerBuilderOption func(*Profiler)

// WithInterval sets how often statistics are computed and logged.
//
// Parameters:
//   - interval: the interval between reports
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithInterval(interval time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.updateInterval = interval
	}
}

// WithGPUSource adds GPU block timings and pipeline statistics to each report.
//
// Parameters:
//   - src: the source, normally the renderer
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithGPUSource(src GPUSource) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.gpu = src
	}
}

// WithClock replaces the monotonic clock. The function returns the time elapsed since an arbitrary origin.
//
// Parameters:
//   - clock: the clock function
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithClock(clock func() time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.clock = clock
	}
}

// WithQuiet computes the frame rate without logging.
//
// Parameters:
//   - quiet: true to suppress reports
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithQuiet(quiet bool) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.quiet = quiet
	}
}
