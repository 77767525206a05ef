package frame

import (
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-vk/common"
	vk "github.com/goki/vulkan"
)

func expectPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	fn()
}

func TestSlotTransitions(t *testing.T) {
	states := []SlotState{SlotIdle, SlotAcquiring, SlotRecording, SlotSubmitted}
	legal := map[[2]SlotState]bool{
		{SlotIdle, SlotAcquiring}:      true,
		{SlotAcquiring, SlotRecording}: true,
		{SlotAcquiring, SlotIdle}:      true,
		{SlotRecording, SlotSubmitted}: true,
		{SlotSubmitted, SlotIdle}:      true,
	}
	for _, from := range states {
		for _, to := range states {
			if got := validTransition(from, to); got != legal[[2]SlotState{from, to}] {
				t.Errorf("validTransition(%s, %s) = %v", from, to, got)
			}
		}
	}
}

func TestSlotMachineCycle(t *testing.T) {
	m := &slotMachine{}
	for range 3 {
		m.transition(SlotAcquiring)
		m.transition(SlotRecording)
		m.transition(SlotSubmitted)
		m.transition(SlotIdle)
	}
	expectPanic(t, "idle to submitted", func() { m.transition(SlotSubmitted) })
	if m.state != SlotIdle {
		t.Fatalf("state after rejected transition = %s", m.state)
	}
}

type fakeQueryBackend struct {
	resets     int
	timestamps []uint32
	begun      []uint32
	ended      []uint32
	ready      bool
	values     []uint64
	destroyed  bool
}

func (f *fakeQueryBackend) reset(cb vk.CommandBuffer, count uint32) { f.resets++ }
func (f *fakeQueryBackend) writeTimestamp(cb vk.CommandBuffer, stage vk.PipelineStageFlagBits, index uint32) {
	f.timestamps = append(f.timestamps, index)
}
func (f *fakeQueryBackend) begin(cb vk.CommandBuffer, index uint32) { f.begun = append(f.begun, index) }
func (f *fakeQueryBackend) end(cb vk.CommandBuffer, index uint32)   { f.ended = append(f.ended, index) }
func (f *fakeQueryBackend) results(count uint32, out []uint64) (bool, error) {
	if !f.ready {
		return false, nil
	}
	copy(out, f.values)
	return true, nil
}
func (f *fakeQueryBackend) destroy() { f.destroyed = true }

func TestQueryPoolTimestampCycle(t *testing.T) {
	b := &fakeQueryBackend{}
	q := newQueryPool(b, QueryTimestamp, 4)
	stage := vk.PipelineStageTopOfPipeBit

	if q.State() != QueryAvailable {
		t.Fatalf("new pool state = %v, want available", q.State())
	}
	if _, ok := q.WriteTimestamp(nil, stage); ok {
		t.Fatal("timestamp written before reset")
	}

	q.Reset(nil)
	if q.State() != QueryReset || b.resets != 1 {
		t.Fatalf("after reset: state %v, resets %d", q.State(), b.resets)
	}
	for want := uint32(0); want < 3; want++ {
		i, ok := q.WriteTimestamp(nil, stage)
		if !ok || i != want {
			t.Fatalf("WriteTimestamp = %d, %v; want %d", i, ok, want)
		}
	}
	q.Issue()
	if q.State() != QueryIssued || q.Issued() != 3 {
		t.Fatalf("after issue: state %v, issued %d", q.State(), q.Issued())
	}

	// Issued pools ignore resets and writes until their results are read.
	q.Reset(nil)
	if q.State() != QueryIssued || b.resets != 1 {
		t.Fatal("reset of an issued pool must be skipped")
	}
	if _, ok := q.WriteTimestamp(nil, stage); ok {
		t.Fatal("timestamp written into an issued pool")
	}

	if ok, err := q.Fetch(); ok || err != nil {
		t.Fatalf("Fetch not ready = %v, %v", ok, err)
	}
	if q.State() != QueryIssued || q.Results() != nil {
		t.Fatal("not-ready fetch must change nothing")
	}

	b.ready = true
	b.values = []uint64{100, 250, 900}
	if ok, err := q.Fetch(); !ok || err != nil {
		t.Fatalf("Fetch ready = %v, %v", ok, err)
	}
	if q.State() != QueryAvailable {
		t.Fatalf("state after fetch = %v", q.State())
	}
	if got := q.Results(); len(got) != 3 || got[2] != 900 {
		t.Fatalf("results = %v", got)
	}

	q.Reset(nil)
	if q.State() != QueryReset || b.resets != 2 {
		t.Fatal("available pool must reset")
	}
	if got := q.Results(); len(got) != 3 {
		t.Fatal("reset must keep the previous results")
	}
}

func TestQueryPoolFetchFromReset(t *testing.T) {
	b := &fakeQueryBackend{ready: true, values: []uint64{10, 40}}
	q := newQueryPool(b, QueryTimestamp, 4)
	stage := vk.PipelineStageBottomOfPipeBit

	q.Reset(nil)
	q.WriteTimestamp(nil, stage)
	q.WriteTimestamp(nil, stage)
	ok, err := q.Fetch()
	if !ok || err != nil {
		t.Fatalf("Fetch = %v, %v; want true, nil", ok, err)
	}
	if q.State() != QueryAvailable {
		t.Fatalf("state = %v, want available", q.State())
	}
	if got := q.Results(); len(got) != 2 || got[1] != 40 {
		t.Fatalf("results = %v", got)
	}

	b.ready = false
	q.Reset(nil)
	q.WriteTimestamp(nil, stage)
	if ok, _ := q.Fetch(); ok || q.State() != QueryReset {
		t.Fatal("not-ready fetch of a reset pool must change nothing")
	}
}

func TestQueryPoolOverAllocationPanics(t *testing.T) {
	q := newQueryPool(&fakeQueryBackend{}, QueryTimestamp, 2)
	q.Reset(nil)
	q.WriteTimestamp(nil, vk.PipelineStageTopOfPipeBit)
	q.WriteTimestamp(nil, vk.PipelineStageTopOfPipeBit)
	expectPanic(t, "third timestamp", func() { q.WriteTimestamp(nil, vk.PipelineStageTopOfPipeBit) })
	expectPanic(t, "zero capacity", func() { newQueryPool(&fakeQueryBackend{}, QueryTimestamp, 0) })
}

func TestQueryPoolStatistics(t *testing.T) {
	b := &fakeQueryBackend{ready: true}
	q := newQueryPool(b, QueryPipelineStatistics, 1)

	q.Begin(nil)
	q.End(nil)
	if len(b.begun) != 0 {
		t.Fatal("statistics begun before reset")
	}

	q.Reset(nil)
	q.Begin(nil)
	expectPanic(t, "nested begin", func() { q.Begin(nil) })
	q.End(nil)
	if len(b.begun) != 1 || len(b.ended) != 1 || b.ended[0] != 0 {
		t.Fatalf("begun %v ended %v", b.begun, b.ended)
	}
	q.Issue()

	b.values = []uint64{1, 2, 3, 4, 5, 6, 7}
	if ok, _ := q.Fetch(); !ok {
		t.Fatal("fetch failed")
	}
	if got := q.Results(); len(got) != StatisticsCount || got[6] != 7 {
		t.Fatalf("results = %v", got)
	}
	expectPanic(t, "timestamp on statistics pool", func() { q.WriteTimestamp(nil, vk.PipelineStageTopOfPipeBit) })
}

func TestQueryPoolEmptyIssue(t *testing.T) {
	q := newQueryPool(&fakeQueryBackend{}, QueryTimestamp, 2)
	q.Reset(nil)
	q.Issue()
	if ok, err := q.Fetch(); !ok || err != nil {
		t.Fatalf("empty fetch = %v, %v", ok, err)
	}
	if len(q.Results()) != 0 {
		t.Fatal("empty batch produced results")
	}
}

func TestChoosePresentMode(t *testing.T) {
	tests := []struct {
		name      string
		available []vk.PresentMode
		mode      PresentMode
		want      vk.PresentMode
	}{
		{"vsync", []vk.PresentMode{vk.PresentModeMailbox, vk.PresentModeFifo}, PresentModeVSync, vk.PresentModeFifo},
		{"mailbox", []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeImmediate, vk.PresentModeMailbox}, PresentModeUncapped, vk.PresentModeMailbox},
		{"immediate", []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeImmediate}, PresentModeUncapped, vk.PresentModeImmediate},
		{"fifo only", []vk.PresentMode{vk.PresentModeFifo}, PresentModeUncapped, vk.PresentModeFifo},
	}
	for _, tt := range tests {
		if got := choosePresentMode(tt.available, tt.mode); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestChooseSurfaceFormat(t *testing.T) {
	srgb := vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear}
	unorm := vk.SurfaceFormat{Format: vk.FormatR8g8b8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}

	if got := chooseSurfaceFormat([]vk.SurfaceFormat{unorm, srgb}); got.Format != srgb.Format {
		t.Errorf("got %v, want B8G8R8A8 sRGB", got.Format)
	}
	if got := chooseSurfaceFormat([]vk.SurfaceFormat{unorm}); got.Format != unorm.Format {
		t.Errorf("got %v, want the first format", got.Format)
	}
}

func TestChooseExtent(t *testing.T) {
	caps := vk.SurfaceCapabilities{
		CurrentExtent:  vk.Extent2D{Width: 800, Height: 600},
		MinImageExtent: vk.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: vk.Extent2D{Width: 4096, Height: 4096},
	}
	if got := chooseExtent(caps, common.Extent2D{Width: 1, Height: 1}); got != (common.Extent2D{Width: 800, Height: 600}) {
		t.Errorf("fixed extent = %+v", got)
	}
	caps.CurrentExtent = vk.Extent2D{Width: math.MaxUint32, Height: math.MaxUint32}
	if got := chooseExtent(caps, common.Extent2D{Width: 8000, Height: 720}); got != (common.Extent2D{Width: 4096, Height: 720}) {
		t.Errorf("clamped extent = %+v", got)
	}
}
