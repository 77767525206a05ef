package renderer

import (
	"log"
	"sync"

	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/frame"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/resource"
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	pipelineCache map[string]pipeline.Pipeline
	pending       []pipeline.Pipeline
	nativeCache   vk.PipelineCache

	dev       device.Device
	swapchain frame.Swapchain
	pacer     *frame.Pacer
	executor  *pass.Executor
	queries   [frame.MaxFramesInFlight]*frameQueries

	timings []Timing
	stats   Statistics

	// Pre-creation config collected from builder options
	presentMode   PresentMode
	deviceOptions []device.DeviceBuilderOption
}

// Renderer defines the interface for the rendering system.
//
// This is a high-level API over the device, the swapchain, the frame slots and the per-slot query pools. The
// engine drives it once per frame with BeginFrame and EndFrame; everything recorded in between goes through the
// pass Executor. The Renderer also keeps a cache of built pipelines by key.
type Renderer interface {
	// Device returns the device context.
	Device() device.Device

	// Swapchain returns the presentable image chain.
	Swapchain() frame.Swapchain

	// Executor returns the render pass executor bound to the device.
	Executor() *pass.Executor

	// Pipeline retrieves the cached Pipeline associated with the given key.
	// If the Pipeline does not exist, this will return nil.
	//
	// Parameters:
	//   - key: the unique identifier for the Pipeline to retrieve
	//
	// Returns:
	//   - pipeline.Pipeline: the Pipeline associated with the key, or nil if not found
	Pipeline(key string) pipeline.Pipeline

	// Pipelines retrieves the entire cache of Pipelines.
	//
	// Returns:
	//   - map[string]pipeline.Pipeline: a map of pipeline keys to their corresponding Pipeline objects
	Pipelines() map[string]pipeline.Pipeline

	// RegisterPipelines builds one or more pipelines against the device and caches them by PipelineKey.
	// Pipelines whose keys are already registered are skipped to avoid duplicate GPU object creation.
	//
	// Parameters:
	//   - pipelines: the Pipelines to register
	//
	// Returns:
	//   - error: an error if pipeline creation fails
	RegisterPipelines(pipelines ...pipeline.Pipeline) error

	// BeginFrame waits for the next frame slot, acquires a swapchain image and opens the slot's command buffer.
	// The swapchain is recreated first when the window size no longer matches it. The slot's query results from
	// its previous use are read, its pools reset and the frame-start timestamp written. On return the color image
	// is in color-attachment layout and the depth image in depth-attachment layout.
	//
	// Returns:
	//   - *frame.Frame: the frame to record into
	//   - error: frame.ErrZeroExtent while the window is minimized (skip the frame), or a device failure
	BeginFrame() (*frame.Frame, error)

	// MarkBlock writes a timestamp that closes the GPU block name. The block started at the previous mark, or at
	// the frame start.
	//
	// Parameters:
	//   - f: the frame being recorded
	//   - name: the block name reported by Timings
	MarkBlock(f *frame.Frame, name string)

	// BeginStatistics opens the frame's pipeline-statistics query. At most one query per frame.
	//
	// Parameters:
	//   - f: the frame being recorded
	BeginStatistics(f *frame.Frame)

	// EndStatistics closes the query opened by BeginStatistics.
	//
	// Parameters:
	//   - f: the frame being recorded
	EndStatistics(f *frame.Frame)

	// EndFrame transitions the color image for presentation, writes the end timestamp, issues the slot's
	// queries, then submits and presents.
	//
	// Parameters:
	//   - f: the frame returned by BeginFrame
	//
	// Returns:
	//   - error: when submission or presentation fails
	EndFrame(f *frame.Frame) error

	// Timings returns the most recent GPU block timings that were available.
	//
	// Returns:
	//   - []Timing: named blocks in recording order, then the whole-frame total
	Timings() []Timing

	// PipelineStatistics returns the most recent pipeline statistics that were available.
	//
	// Returns:
	//   - Statistics: counters in frame.StatisticNames order
	PipelineStatistics() Statistics

	// WaitIdle blocks until the GPU has finished all submitted work.
	WaitIdle()

	// Destroy waits for the GPU and releases every pipeline, the swapchain, the frame slots and the device.
	Destroy()
}

var _ Renderer = &renderer{}

// NewRenderer creates the device for the given window, then the swapchain, the frame slots, the query pools and
// the pipeline cache. Pipelines passed with WithPipeline are built before it returns.
//
// Failures here are unrecoverable setup errors and panic, including when no suitable GPU is present.
//
// Parameters:
//   - window: the surface source, normally the engine window
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: a new Renderer ready to record frames
func NewRenderer(window device.SurfaceSource, options ...RendererBuilderOption) Renderer {
	r := &renderer{
		mu:            &sync.Mutex{},
		pipelineCache: make(map[string]pipeline.Pipeline),
		presentMode:   PresentModeVSync,
	}

	// Apply options first so device options are collected before the adapter is chosen.
	for _, opt := range options {
		opt(r)
	}

	dev, err := device.New(window, r.deviceOptions...)
	if err != nil {
		panic(errors.Wrap(err, "create device"))
	}
	r.dev = dev

	if err := r.init(); err != nil {
		r.Destroy()
		panic(err)
	}
	return r
}

func (r *renderer) init() error {
	sc, err := frame.NewSwapchain(r.dev, r.presentMode)
	if err != nil {
		return errors.Wrap(err, "create swapchain")
	}
	r.swapchain = sc

	pacer, err := frame.NewPacer(r.dev)
	if err != nil {
		return errors.Wrap(err, "create frame slots")
	}
	r.pacer = pacer

	for i := range r.queries {
		q, err := newFrameQueries(func(kind frame.QueryKind, capacity uint32) (*frame.QueryPool, error) {
			return frame.NewQueryPool(r.dev, kind, capacity)
		})
		if err != nil {
			return errors.Wrapf(err, "frame slot %d", i)
		}
		r.queries[i] = q
	}

	var cache vk.PipelineCache
	if err := vk.Error(vk.CreatePipelineCache(r.dev.Handle(), &vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}, nil, &cache)); err != nil {
		return errors.Wrap(err, "create pipeline cache")
	}
	r.nativeCache = cache

	r.executor = pass.NewExecutor(r.dev)

	pending := r.pending
	r.pending = nil
	if err := r.RegisterPipelines(pending...); err != nil {
		return err
	}

	log.Printf("[Renderer] %s: %dx%d, %d images, format %d", r.dev.Name(), sc.Extent().Width, sc.Extent().Height, sc.ImageCount(), sc.Format())
	return nil
}

func (r *renderer) Device() device.Device {
	return r.dev
}

func (r *renderer) Swapchain() frame.Swapchain {
	return r.swapchain
}

func (r *renderer) Executor() *pass.Executor {
	return r.executor
}

func (r *renderer) Pipeline(key string) pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelineCache[key]
}

func (r *renderer) Pipelines() map[string]pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelineCache
}

func (r *renderer) RegisterPipelines(pipelines ...pipeline.Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range pipelines {
		key := p.PipelineKey()
		if _, exists := r.pipelineCache[key]; exists {
			continue
		}
		if err := p.Build(r.dev, r.nativeCache); err != nil {
			return errors.Wrapf(err, "register pipeline %q", key)
		}
		r.pipelineCache[key] = p
	}
	return nil
}

func (r *renderer) BeginFrame() (*frame.Frame, error) {
	size := r.dev.SurfaceSource().FramebufferExtent()
	if size.IsZero() {
		return nil, frame.ErrZeroExtent
	}
	if r.swapchain.NeedsRecreate(size.Width, size.Height) {
		if err := r.swapchain.Recreate(); err != nil {
			return nil, err
		}
	}

	f, err := r.pacer.Begin(r.swapchain)
	if err != nil {
		return nil, err
	}
	cb := f.CommandBuffer

	// The slot's fence was waited on inside Begin, so its earlier queries have landed or never will.
	q := r.queries[f.Slot]
	timings, stats, err := q.fetch(r.dev.TimestampPeriod())
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	if timings != nil {
		r.timings = timings
	}
	if stats != nil {
		r.stats = *stats
	}
	r.mu.Unlock()

	q.reset(cb)
	q.mark(cb, vk.PipelineStageTopOfPipeBit, "", true)

	resource.TextureBarrier(cb, f.Color,
		vk.ImageLayoutUndefined, vk.ImageLayoutColorAttachmentOptimal,
		0, vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
		vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit))
	resource.TextureBarrier(cb, f.Depth,
		vk.ImageLayoutUndefined, vk.ImageLayoutDepthStencilAttachmentOptimal,
		0, vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit|vk.AccessDepthStencilAttachmentWriteBit),
		vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit|vk.PipelineStageLateFragmentTestsBit),
		vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit|vk.PipelineStageLateFragmentTestsBit))
	return f, nil
}

func (r *renderer) MarkBlock(f *frame.Frame, name string) {
	r.queries[f.Slot].mark(f.CommandBuffer, vk.PipelineStageBottomOfPipeBit, name, false)
}

func (r *renderer) BeginStatistics(f *frame.Frame) {
	r.queries[f.Slot].stats.Begin(f.CommandBuffer)
}

func (r *renderer) EndStatistics(f *frame.Frame) {
	r.queries[f.Slot].stats.End(f.CommandBuffer)
}

func (r *renderer) EndFrame(f *frame.Frame) error {
	cb := f.CommandBuffer
	resource.TextureBarrier(cb, f.Color,
		vk.ImageLayoutColorAttachmentOptimal, vk.ImageLayoutPresentSrc,
		vk.AccessFlags(vk.AccessColorAttachmentWriteBit), 0,
		vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit))

	q := r.queries[f.Slot]
	q.mark(cb, vk.PipelineStageBottomOfPipeBit, "", false)
	q.issue()

	return r.pacer.End(f, r.swapchain)
}

func (r *renderer) Timings() []Timing {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Timing(nil), r.timings...)
}

func (r *renderer) PipelineStatistics() Statistics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *renderer) WaitIdle() {
	r.dev.WaitIdle()
}

func (r *renderer) Destroy() {
	if r.dev == nil {
		return
	}
	r.dev.WaitIdle()

	r.mu.Lock()
	for key, p := range r.pipelineCache {
		p.Destroy()
		delete(r.pipelineCache, key)
	}
	r.mu.Unlock()

	if r.nativeCache != nil {
		vk.DestroyPipelineCache(r.dev.Handle(), r.nativeCache, nil)
		r.nativeCache = nil
	}
	for i, q := range r.queries {
		if q != nil {
			q.destroy()
			r.queries[i] = nil
		}
	}
	if r.pacer != nil {
		r.pacer.Destroy()
		r.pacer = nil
	}
	if r.swapchain != nil {
		r.swapchain.Destroy()
		r.swapchain = nil
	}
	r.dev.Destroy()
	r.dev = nil
}
