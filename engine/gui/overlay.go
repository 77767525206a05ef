package gui

import (
	"image"
	"sync"

	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/frame"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/resource"
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"golang.org/x/image/draw"
	"golang.org/x/image/font/basicfont"
)

// PipelineOverlay is the renderer key of the overlay pipeline. It reads the vertices as a storage buffer at binding
// 0 and the glyph atlas at binding 1, with the target size in pixels as push constants.
const PipelineOverlay = "overlay"

// minBufferBytes is the smallest overlay buffer allocation.
const minBufferBytes = 16 << 10

// slotBuffers are one frame slot's host-visible geometry buffers.
type slotBuffers struct {
	vertices resource.Buffer
	indices  resource.Buffer
}

// Overlay draws the statistics and toggles panel over the swapchain image.
type Overlay struct {
	mu *sync.Mutex

	r        renderer.Renderer
	pipeline pipeline.Pipeline
	atlas    resource.Texture
	slots    [frame.MaxFramesInFlight]slotBuffers

	scale   int
	visible bool
	info    Info
}

// NewOverlay uploads the glyph atlas. The overlay pipeline must already be registered on r under PipelineOverlay.
//
// Parameters:
//   - r: the renderer the overlay records through
//   - options: functional options to configure the overlay
//
// Returns:
//   - *Overlay: the overlay, visible unless WithVisible(false) was given
//   - error: when the pipeline is missing or the atlas cannot be created
func NewOverlay(r renderer.Renderer, options ...OverlayBuilderOption) (*Overlay, error) {
	o := &Overlay{
		mu:      &sync.Mutex{},
		r:       r,
		scale:   1,
		visible: true,
	}
	for _, opt := range options {
		opt(o)
	}

	o.pipeline = r.Pipeline(PipelineOverlay)
	if o.pipeline == nil {
		return nil, errors.Newf("overlay pipeline %q is not registered", PipelineOverlay)
	}

	dev := r.Device()
	o.info.DeviceName = dev.Name()
	atlas, err := newAtlas(dev)
	if err != nil {
		return nil, err
	}
	o.atlas = atlas
	return o, nil
}

// newAtlas uploads the 7x13 face's glyph strip as a single-channel texture.
func newAtlas(dev device.Device) (resource.Texture, error) {
	mask := basicfont.Face7x13.Mask
	bounds := mask.Bounds()
	alpha := image.NewAlpha(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(alpha, alpha.Bounds(), mask, bounds.Min, draw.Src)

	sampler := device.SamplerDescriptor{
		MagFilter:   vk.FilterNearest,
		MinFilter:   vk.FilterNearest,
		MipmapMode:  vk.SamplerMipmapModeNearest,
		AddressMode: vk.SamplerAddressModeClampToEdge,
	}
	atlas, err := resource.NewTexture(dev, resource.TextureDescriptor{
		Label:   "overlay glyphs",
		Width:   uint32(bounds.Dx()),
		Height:  uint32(bounds.Dy()),
		Format:  vk.FormatR8Unorm,
		Usage:   vk.ImageUsageFlags(vk.ImageUsageSampledBit),
		Sampler: &sampler,
		Pixels:  alpha.Pix,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create overlay atlas")
	}
	return atlas, nil
}

// Visible reports whether Draw records anything.
func (o *Overlay) Visible() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.visible
}

// SetVisible shows or hides the overlay.
func (o *Overlay) SetVisible(visible bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.visible = visible
}

// SetFrameStats sets the CPU frame rate and draw count shown on the next Build.
//
// Parameters:
//   - fps: frames per second
//   - draws: the scene's draw count
func (o *Overlay) SetFrameStats(fps float64, draws int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.info.FPS = fps
	o.info.Draws = draws
}

// Build lays out the panel from the toggles and the renderer's latest timings and statistics.
//
// Parameters:
//   - settings: the current toggles
//   - width, height: the target size in pixels
//
// Returns:
//   - DrawData: the panel geometry; empty while hidden
func (o *Overlay) Build(settings Settings, width, height uint32) DrawData {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.visible || width == 0 || height == 0 {
		return DrawData{}
	}
	info := o.info
	info.Timings = o.r.Timings()
	info.Statistics = o.r.PipelineStatistics()
	return Layout(Lines(settings, info), height, o.scale)
}

// Draw copies data into the frame slot's buffers, growing them when needed, and records an alpha-blended pass that
// loads the existing color.
//
// Parameters:
//   - f: the frame being recorded
//   - data: the output of Build
//
// Returns:
//   - error: when a buffer cannot be grown
func (o *Overlay) Draw(f *frame.Frame, data DrawData) error {
	if len(data.Indices) == 0 {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	slot := &o.slots[f.Slot]
	dev := o.r.Device()
	vertexBytes := common.SliceToBytes(data.Vertices)
	indexBytes := common.SliceToBytes(data.Indices)
	if err := ensureBuffer(dev, &slot.vertices, "overlay vertices", uint64(len(vertexBytes)), vk.BufferUsageStorageBufferBit); err != nil {
		return err
	}
	if err := ensureBuffer(dev, &slot.indices, "overlay indices", uint64(len(indexBytes)), vk.BufferUsageIndexBufferBit); err != nil {
		return err
	}
	slot.vertices.Write(0, vertexBytes)
	slot.indices.Write(0, indexBytes)

	w, h := f.Color.Width(), f.Color.Height()
	screen := [2]float32{float32(w), float32(h)}
	viewport := pass.Rect{Width: w, Height: h}
	count := uint32(len(data.Indices))
	o.r.Executor().Execute(f.CommandBuffer, pass.PassDescriptor{
		Pipeline: o.pipeline,
		Viewport: viewport,
		Scissor:  viewport,
		ColorAttachments: []pass.Attachment{
			{Texture: f.Color, LoadOp: vk.AttachmentLoadOpLoad},
		},
		Bindings: []pipeline.ResourceBinding{
			pipeline.BufferBinding(slot.vertices.Handle(), 0, 0),
			pipeline.ImageBinding(o.atlas.View(), o.atlas.Sampler(), vk.ImageLayoutShaderReadOnlyOptimal),
		},
		PushConstants: common.StructToBytes(&screen),
	}, func(cb vk.CommandBuffer) {
		vk.CmdBindIndexBuffer(cb, slot.indices.Handle(), 0, vk.IndexTypeUint32)
		vk.CmdDrawIndexed(cb, count, 1, 0, 0, 0)
	})
	o.r.MarkBlock(f, "overlay")
	return nil
}

// ensureBuffer replaces *buf with a larger host buffer when it cannot hold size bytes. The slot's previous
// submission has completed by the time its frame is recorded again, so the old buffer can be destroyed at once.
func ensureBuffer(dev device.Device, buf *resource.Buffer, label string, size uint64, usage vk.BufferUsageFlagBits) error {
	current := uint64(0)
	if *buf != nil {
		current = (*buf).Size()
	}
	capacity := growCapacity(current, size)
	if capacity == current {
		return nil
	}
	next, err := resource.NewBuffer(dev, resource.BufferDescriptor{
		Label:  label,
		Size:   capacity,
		Access: device.AccessHost,
		Usage:  vk.BufferUsageFlags(usage),
	})
	if err != nil {
		return errors.Wrapf(err, "grow %s to %d bytes", label, capacity)
	}
	if *buf != nil {
		(*buf).Destroy()
	}
	*buf = next
	return nil
}

// growCapacity returns current when it holds needed, else the larger of double current, needed and
// minBufferBytes, rounded up to 256 bytes.
func growCapacity(current, needed uint64) uint64 {
	if needed <= current {
		return current
	}
	return common.AlignUp(max(current*2, needed, minBufferBytes), 256)
}

// Destroy releases the atlas and every slot buffer. The GPU must be idle.
func (o *Overlay) Destroy() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.slots {
		for _, buf := range []*resource.Buffer{&o.slots[i].vertices, &o.slots[i].indices} {
			if *buf != nil {
				(*buf).Destroy()
				*buf = nil
			}
		}
	}
	if o.atlas != nil {
		o.atlas.Destroy()
		o.atlas = nil
	}
}
