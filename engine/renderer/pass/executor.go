package pass

import (
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/resource"
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// Rect is a pixel rectangle. A rectangle with zero width or height is treated as unset.
type Rect struct {
	X, Y          int32
	Width, Height uint32
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.Width == 0 || r.Height == 0
}

// Attachment is one render target of a graphics pass. The store op is always store.
type Attachment struct {
	// Texture is the target image; it must already be in the attachment layout.
	Texture resource.Texture
	// LoadOp selects clear, load, or don't-care.
	LoadOp vk.AttachmentLoadOp
	// Clear is the RGBA clear color, or the depth value in Clear[0] for depth attachments.
	Clear [4]float32
}

// PassDescriptor describes one compute or graphics pass.
type PassDescriptor struct {
	// Pipeline is the built pipeline the pass binds.
	Pipeline pipeline.Pipeline
	// Viewport is flipped on Y so +Y is up. Left unset, no viewport is recorded.
	Viewport Rect
	// Scissor left unset records no scissor.
	Scissor Rect
	// ColorAttachments are the graphics targets in location order.
	ColorAttachments []Attachment
	// DepthAttachment is the optional depth target.
	DepthAttachment *Attachment
	// Bindings holds one resource per pipeline binding, in binding order.
	Bindings []pipeline.ResourceBinding
	// PushConstants is the raw push-constant block, sized to the pipeline's range.
	PushConstants []byte
}

// Executor records passes: it opens the rendering scope, applies dynamic state, pushes constants and
// descriptors, binds the pipeline, and hands the command buffer to the caller's draw or dispatch callback.
type Executor struct {
	rec recorder
}

// NewExecutor creates an executor that records through dev's command and extension entry points.
//
// Parameters:
//   - dev: the device context
//
// Returns:
//   - *Executor: the executor
func NewExecutor(dev device.Device) *Executor {
	return &Executor{rec: vkRecorder{ext: dev.Extensions()}}
}

// Execute records one pass into cb. record is called exactly once, after the pipeline and its resources are bound,
// to issue the pass's draws or dispatches.
//
// A binding count or push-constant size that does not match the pipeline is a programming error and panics.
//
// Parameters:
//   - cb: the command buffer being recorded
//   - desc: the pass description
//   - record: the callback that issues draws or dispatches
func (e *Executor) Execute(cb vk.CommandBuffer, desc PassDescriptor, record func(cb vk.CommandBuffer)) {
	p := desc.Pipeline
	if p == nil {
		panic(errors.AssertionFailedf("pass without a pipeline"))
	}
	e.validate(desc)

	graphics := p.Type() == pipeline.PipelineTypeGraphics
	if graphics {
		colors := make([]device.RenderingAttachment, len(desc.ColorAttachments))
		for i, a := range desc.ColorAttachments {
			colors[i] = renderingAttachment(a, vk.ImageLayoutColorAttachmentOptimal)
		}
		var depth *device.RenderingAttachment
		if desc.DepthAttachment != nil {
			d := renderingAttachment(*desc.DepthAttachment, vk.ImageLayoutDepthStencilAttachmentOptimal)
			depth = &d
		}
		e.rec.beginRendering(cb, renderArea(desc), colors, depth)

		if !desc.Viewport.Empty() {
			v := desc.Viewport
			e.rec.setViewport(cb, vk.Viewport{
				X:        float32(v.X),
				Y:        float32(v.Y) + float32(v.Height),
				Width:    float32(v.Width),
				Height:   -float32(v.Height),
				MinDepth: 0,
				MaxDepth: 1,
			})
		}
		if !desc.Scissor.Empty() {
			s := desc.Scissor
			e.rec.setScissor(cb, vk.Rect2D{
				Offset: vk.Offset2D{X: s.X, Y: s.Y},
				Extent: vk.Extent2D{Width: s.Width, Height: s.Height},
			})
		}
	}

	if len(desc.PushConstants) > 0 {
		pc := p.PushConstants()
		e.rec.pushConstants(cb, p.Layout(), pc.Stages, pc.Offset, desc.PushConstants)
	}
	if len(desc.Bindings) > 0 {
		e.rec.pushDescriptors(cb, p.Template(), p.Layout(), pipeline.EncodeBindings(desc.Bindings))
	}
	e.rec.bindPipeline(cb, p.BindPoint(), p.Handle())

	record(cb)

	if graphics {
		e.rec.endRendering(cb)
	}
}

func (e *Executor) validate(desc PassDescriptor) {
	p := desc.Pipeline
	if len(desc.Bindings) > 0 && len(desc.Bindings) != len(p.Bindings()) {
		panic(errors.AssertionFailedf("pass %s: %d bindings for a pipeline with %d", p.PipelineKey(), len(desc.Bindings), len(p.Bindings())))
	}
	if len(desc.PushConstants) > 0 {
		pc := p.PushConstants()
		if pc == nil {
			panic(errors.AssertionFailedf("pass %s: push constants for a pipeline without a push constant range", p.PipelineKey()))
		}
		if uint32(len(desc.PushConstants)) != pc.Size {
			panic(errors.AssertionFailedf("pass %s: %d push constant bytes, pipeline declares %d", p.PipelineKey(), len(desc.PushConstants), pc.Size))
		}
	}
	if p.Type() == pipeline.PipelineTypeGraphics && len(desc.ColorAttachments) == 0 && desc.DepthAttachment == nil {
		panic(errors.AssertionFailedf("pass %s: graphics pass without attachments", p.PipelineKey()))
	}
}

func renderingAttachment(a Attachment, layout vk.ImageLayout) device.RenderingAttachment {
	return device.RenderingAttachment{
		View:    a.Texture.View(),
		Layout:  layout,
		LoadOp:  a.LoadOp,
		StoreOp: vk.AttachmentStoreOpStore,
		Clear:   a.Clear,
	}
}

// renderArea covers the first attachment's full extent.
func renderArea(desc PassDescriptor) device.RenderArea {
	var tex resource.Texture
	if len(desc.ColorAttachments) > 0 {
		tex = desc.ColorAttachments[0].Texture
	} else {
		tex = desc.DepthAttachment.Texture
	}
	return device.RenderArea{Width: tex.Width(), Height: tex.Height()}
}
