package renderer

import (
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/frame"
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode = frame.PresentMode

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync = frame.PresentModeVSync

	// PresentModeUncapped presents frames without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped = frame.PresentModeUncapped
)

// timestampCapacity is the number of timestamps one frame may write.
const timestampCapacity = 16

// Timing is the GPU time spent in one named block of a frame.
type Timing struct {
	Name         string
	Milliseconds float64
}

// Statistics are the pipeline statistics counters of one frame, in frame.StatisticNames order.
type Statistics [frame.StatisticsCount]uint64

// frameQueries holds one frame slot's timestamp and statistics pools and the block names written into them.
type frameQueries struct {
	timestamps *frame.QueryPool
	stats      *frame.QueryPool

	// labels[i] names the block that ends at timestamp i+1. An empty label is an unnamed gap.
	labels       []string
	issuedLabels []string
}

func newFrameQueries(create func(kind frame.QueryKind, capacity uint32) (*frame.QueryPool, error)) (*frameQueries, error) {
	ts, err := create(frame.QueryTimestamp, timestampCapacity)
	if err != nil {
		return nil, errors.Wrap(err, "timestamp query pool")
	}
	stats, err := create(frame.QueryPipelineStatistics, 1)
	if err != nil {
		ts.Destroy()
		return nil, errors.Wrap(err, "statistics query pool")
	}
	return &frameQueries{timestamps: ts, stats: stats}, nil
}

// fetch reads the slot's previous results. It must only run after the slot's fence has been waited on.
func (q *frameQueries) fetch(period float32) (timings []Timing, stats *Statistics, err error) {
	ok, err := q.timestamps.Fetch()
	if err != nil {
		return nil, nil, err
	}
	if ok {
		timings = blockTimings(q.issuedLabels, q.timestamps.Results(), period)
	}
	ok, err = q.stats.Fetch()
	if err != nil {
		return nil, nil, err
	}
	if ok {
		if r := q.stats.Results(); len(r) == frame.StatisticsCount {
			var s Statistics
			copy(s[:], r)
			stats = &s
		}
	}
	return timings, stats, nil
}

func (q *frameQueries) reset(cb vk.CommandBuffer) {
	q.timestamps.Reset(cb)
	q.stats.Reset(cb)
	if q.timestamps.State() == frame.QueryReset {
		q.labels = q.labels[:0]
	}
}

// mark writes a timestamp closing the block name. The first timestamp of a frame opens the first block.
func (q *frameQueries) mark(cb vk.CommandBuffer, stage vk.PipelineStageFlagBits, name string, first bool) {
	if _, ok := q.timestamps.WriteTimestamp(cb, stage); !ok || first {
		return
	}
	q.labels = append(q.labels, name)
}

func (q *frameQueries) issue() {
	if q.timestamps.State() == frame.QueryReset {
		q.issuedLabels = append(q.issuedLabels[:0], q.labels...)
	}
	q.timestamps.Issue()
	q.stats.Issue()
}

func (q *frameQueries) destroy() {
	q.timestamps.Destroy()
	q.stats.Destroy()
}

// blockTimings converts raw timestamps into named block durations followed by a "frame" total covering the
// first to the last timestamp. Unnamed blocks only count toward the total.
func blockTimings(labels []string, stamps []uint64, period float32) []Timing {
	if len(stamps) < 2 {
		return nil
	}
	toMs := func(ticks uint64) float64 {
		return float64(ticks) * float64(period) / 1e6
	}
	var out []Timing
	for i := 1; i < len(stamps) && i-1 < len(labels); i++ {
		if labels[i-1] == "" || stamps[i] < stamps[i-1] {
			continue
		}
		out = append(out, Timing{Name: labels[i-1], Milliseconds: toMs(stamps[i] - stamps[i-1])})
	}
	last := stamps[len(stamps)-1]
	if last >= stamps[0] {
		out = append(out, Timing{Name: "frame", Milliseconds: toMs(last - stamps[0])})
	}
	return out
}
