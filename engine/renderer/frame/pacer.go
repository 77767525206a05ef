package frame

import (
	"math"

	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/resource"
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// maxAcquireAttempts bounds recreate-and-retry when the swapchain keeps reporting out of date.
const maxAcquireAttempts = 3

// Frame is one frame being recorded.
type Frame struct {
	// Slot is the frame slot index in [0, MaxFramesInFlight).
	Slot int
	// ImageIndex is the acquired swapchain image.
	ImageIndex uint32
	// CommandBuffer is the slot's primary command buffer, open for recording.
	CommandBuffer vk.CommandBuffer
	// Color is the acquired swapchain image.
	Color resource.Texture
	// Depth is the swapchain's depth texture.
	Depth resource.Texture
}

type slot struct {
	slotMachine
	imageAvailable vk.Semaphore
	renderFinished vk.Semaphore
	fence          vk.Fence
	commandBuffer  vk.CommandBuffer
}

// Pacer cycles MaxFramesInFlight frame slots, each with its own semaphores, fence, and command buffer.
type Pacer struct {
	dev     device.Device
	slots   [MaxFramesInFlight]*slot
	current int
}

// NewPacer creates the frame slots. Fences start signaled so the first wait on each slot returns at once.
//
// Parameters:
//   - dev: the device context
//
// Returns:
//   - *Pacer: the pacer
//   - error: when a synchronization object or command buffer cannot be created
func NewPacer(dev device.Device) (*Pacer, error) {
	p := &Pacer{dev: dev}
	handle := dev.Handle()

	cbs := make([]vk.CommandBuffer, MaxFramesInFlight)
	if err := vk.Error(vk.AllocateCommandBuffers(handle, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        dev.CommandPool(),
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: MaxFramesInFlight,
	}, cbs)); err != nil {
		return nil, errors.Wrap(err, "allocate frame command buffers")
	}

	for i := range p.slots {
		s := &slot{slotMachine: slotMachine{index: i}, commandBuffer: cbs[i]}
		p.slots[i] = s

		semInfo := &vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
		if err := vk.Error(vk.CreateSemaphore(handle, semInfo, nil, &s.imageAvailable)); err != nil {
			p.Destroy()
			return nil, errors.Wrapf(err, "frame slot %d: image-available semaphore", i)
		}
		if err := vk.Error(vk.CreateSemaphore(handle, semInfo, nil, &s.renderFinished)); err != nil {
			p.Destroy()
			return nil, errors.Wrapf(err, "frame slot %d: render-finished semaphore", i)
		}
		if err := vk.Error(vk.CreateFence(handle, &vk.FenceCreateInfo{
			SType: vk.StructureTypeFenceCreateInfo,
			Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit),
		}, nil, &s.fence)); err != nil {
			p.Destroy()
			return nil, errors.Wrapf(err, "frame slot %d: fence", i)
		}
	}
	return p, nil
}

// Current returns the index of the slot the next Begin uses.
func (p *Pacer) Current() int {
	return p.current
}

// State returns a slot's lifecycle state.
func (p *Pacer) State(i int) SlotState {
	return p.slots[i].state
}

// Wait blocks until slot i's last submission completes. It is the only blocking point inside a frame.
func (p *Pacer) Wait(i int) {
	s := p.slots[i]
	if s.state != SlotSubmitted {
		return
	}
	vk.WaitForFences(p.dev.Handle(), 1, []vk.Fence{s.fence}, vk.True, math.MaxUint64)
	s.transition(SlotIdle)
}

// Begin waits for the current slot, acquires a swapchain image, and opens the slot's command buffer. An
// out-of-date swapchain is recreated and the acquire retried.
//
// Parameters:
//   - sc: the swapchain to acquire from
//
// Returns:
//   - *Frame: the frame to record
//   - error: ErrZeroExtent when the window is minimized, or an acquire or recording failure
func (p *Pacer) Begin(sc Swapchain) (*Frame, error) {
	p.Wait(p.current)
	s := p.slots[p.current]
	s.transition(SlotAcquiring)

	index, err := p.acquire(sc, s)
	if err != nil {
		s.transition(SlotIdle)
		return nil, err
	}

	// The fence is reset only once an image is in hand, so a failed acquire leaves it signaled.
	vk.ResetFences(p.dev.Handle(), 1, []vk.Fence{s.fence})

	vk.ResetCommandBuffer(s.commandBuffer, 0)
	if err := vk.Error(vk.BeginCommandBuffer(s.commandBuffer, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	})); err != nil {
		s.transition(SlotIdle)
		return nil, errors.Wrap(err, "begin frame command buffer")
	}
	s.transition(SlotRecording)

	return &Frame{
		Slot:          p.current,
		ImageIndex:    index,
		CommandBuffer: s.commandBuffer,
		Color:         sc.Image(index),
		Depth:         sc.Depth(),
	}, nil
}

func (p *Pacer) acquire(sc Swapchain, s *slot) (uint32, error) {
	for range maxAcquireAttempts {
		index, outOfDate, err := sc.Acquire(s.imageAvailable)
		if err != nil {
			return 0, err
		}
		if !outOfDate {
			return index, nil
		}
		if err := sc.Recreate(); err != nil {
			return 0, err
		}
	}
	return 0, errors.Newf("swapchain still out of date after %d recreations", maxAcquireAttempts)
}

// End closes and submits the frame's command buffer, presents the image, and advances to the next slot. An
// out-of-date or suboptimal present recreates the swapchain.
//
// Parameters:
//   - f: the frame returned by Begin
//   - sc: the swapchain the frame was acquired from
//
// Returns:
//   - error: when submission, presentation, or recreation fails
func (p *Pacer) End(f *Frame, sc Swapchain) error {
	s := p.slots[f.Slot]
	if err := vk.Error(vk.EndCommandBuffer(s.commandBuffer)); err != nil {
		return errors.Wrap(err, "end frame command buffer")
	}

	if err := vk.Error(vk.QueueSubmit(p.dev.Queue(), 1, []vk.SubmitInfo{{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{s.imageAvailable},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{s.commandBuffer},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{s.renderFinished},
	}}, s.fence)); err != nil {
		return errors.Wrap(err, "submit frame")
	}
	s.transition(SlotSubmitted)
	p.current = (p.current + 1) % MaxFramesInFlight

	recreate, err := sc.Present(f.ImageIndex, s.renderFinished)
	if err != nil {
		return err
	}
	if recreate {
		if err := sc.Recreate(); err != nil && !errors.Is(err, ErrZeroExtent) {
			return err
		}
	}
	return nil
}

// Destroy waits for every slot and releases the synchronization objects and command buffers.
func (p *Pacer) Destroy() {
	handle := p.dev.Handle()
	var cbs []vk.CommandBuffer
	for i, s := range p.slots {
		if s == nil {
			continue
		}
		p.Wait(i)
		if s.fence != nil {
			vk.DestroyFence(handle, s.fence, nil)
		}
		if s.renderFinished != nil {
			vk.DestroySemaphore(handle, s.renderFinished, nil)
		}
		if s.imageAvailable != nil {
			vk.DestroySemaphore(handle, s.imageAvailable, nil)
		}
		cbs = append(cbs, s.commandBuffer)
		p.slots[i] = nil
	}
	if len(cbs) > 0 {
		vk.FreeCommandBuffers(handle, p.dev.CommandPool(), uint32(len(cbs)), cbs)
	}
}
