package profiler

import (
	"fmt"
	"log"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-vk/engine/renderer"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/frame"
	"github.com/loov/hrtime"
)

// GPUSource provides the latest GPU block timings and pipeline statistics. renderer.Renderer satisfies it.
type GPUSource interface {
	Timings() []renderer.Timing
	PipelineStatistics() renderer.Statistics
}

// Profiler tracks frame rate and memory statistics for performance monitoring, and the GPU timings of an
// optional GPUSource. Outputs stats to the log at a configurable interval.
type Profiler struct {
	mu *sync.Mutex

	clock          func() time.Duration
	frameCount     int
	lastTime       time.Duration
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	fps            float64
	gpu            GPUSource
	quiet          bool
}

// NewProfiler creates a new Profiler. Update interval defaults to 1 second and the clock to hrtime.Now.
//
// Parameters:
//   - options: functional options to configure the profiler
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		mu:             &sync.Mutex{},
		clock:          hrtime.Now,
		updateInterval: time.Second,
	}
	for _, opt := range options {
		opt(p)
	}
	p.lastTime = p.clock()
	return p
}

// FPS returns the frame rate measured over the last completed interval.
//
// Returns:
//   - float64: frames per second, 0 before the first interval completes
func (p *Profiler) FPS() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fps
}

// Tick should be called once per frame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: FPS, heap usage, allocation rate, GC count/pause times, total memory, and the GPU block
// timings and fragment invocations when a GPUSource is set.
//
// Returns:
//   - bool: true if an interval completed this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.frameCount++
	currentTime := p.clock()
	elapsed := currentTime - p.lastTime
	if elapsed < p.updateInterval {
		return false
	}

	p.fps = float64(p.frameCount) / elapsed.Seconds()
	p.frameCount = 0
	p.lastTime = currentTime
	if p.quiet {
		return true
	}

	runtime.ReadMemStats(&p.memStats)
	// Alloc: Bytes of allocated heap objects (live memory)
	// Sys: Total bytes of memory obtained from the OS (actual process footprint)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024

	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	gcCount := p.memStats.NumGC
	lastPauseUs, maxPauseUs := gcPauses(&p.memStats, p.lastGCCount)

	log.Printf("[Profiler] FPS: %.2f | Heap: %.2f MB | Alloc Rate: %.2f MB/s | GC: %d (last: %d µs, max: %d µs) | Sys: %.2f MB",
		p.fps, allocMB, allocRateMB, gcCount, lastPauseUs, maxPauseUs, sysMB)
	if p.gpu != nil {
		log.Printf("[Profiler] GPU: %s", FormatGPU(p.gpu.Timings(), p.gpu.PipelineStatistics()))
	}

	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}

// gcPauses returns the latest GC pause and the longest pause since GC number since, in microseconds.
func gcPauses(m *runtime.MemStats, since uint32) (last, longest uint64) {
	gcCount := m.NumGC
	if gcCount == 0 {
		return 0, 0
	}
	// PauseNs is a circular buffer of last 256 GC pauses
	last = m.PauseNs[(gcCount-1)%256] / 1000
	startIdx := since
	if gcCount-startIdx > 256 {
		startIdx = gcCount - 256
	}
	for i := startIdx; i < gcCount; i++ {
		longest = max(longest, m.PauseNs[i%256]/1000)
	}
	return last, longest
}

// FormatGPU renders block timings and pipeline statistics as one log line.
//
// Parameters:
//   - timings: named blocks then the frame total
//   - stats: counters in frame.StatisticNames order
//
// Returns:
//   - string: the formatted line, or "no timings yet" before the first results
func FormatGPU(timings []renderer.Timing, stats renderer.Statistics) string {
	if len(timings) == 0 {
		return "no timings yet"
	}
	parts := make([]string, 0, len(timings)+len(stats))
	for _, t := range timings {
		parts = append(parts, fmt.Sprintf("%s %.3f ms", t.Name, t.Milliseconds))
	}
	for i, v := range stats {
		parts = append(parts, fmt.Sprintf("%s %d", frame.StatisticNames[i], v))
	}
	return strings.Join(parts, " | ")
}
