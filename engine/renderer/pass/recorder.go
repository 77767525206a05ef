package pass

import (
	"unsafe"

	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/device"
	vk "github.com/goki/vulkan"
)

// recorder is the set of commands the executor issues.
type recorder interface {
	beginRendering(cb vk.CommandBuffer, area device.RenderArea, colors []device.RenderingAttachment, depth *device.RenderingAttachment)
	endRendering(cb vk.CommandBuffer)
	setViewport(cb vk.CommandBuffer, viewport vk.Viewport)
	setScissor(cb vk.CommandBuffer, scissor vk.Rect2D)
	pushConstants(cb vk.CommandBuffer, layout vk.PipelineLayout, stages vk.ShaderStageFlagBits, offset uint32, data []byte)
	pushDescriptors(cb vk.CommandBuffer, template device.DescriptorUpdateTemplate, layout vk.PipelineLayout, data []byte)
	bindPipeline(cb vk.CommandBuffer, bindPoint vk.PipelineBindPoint, p vk.Pipeline)
}

// vkRecorder records into real command buffers.
type vkRecorder struct {
	ext *device.Extensions
}

var _ recorder = vkRecorder{}

func (r vkRecorder) beginRendering(cb vk.CommandBuffer, area device.RenderArea, colors []device.RenderingAttachment, depth *device.RenderingAttachment) {
	r.ext.CmdBeginRendering(cb, area, colors, depth)
}

func (r vkRecorder) endRendering(cb vk.CommandBuffer) {
	r.ext.CmdEndRendering(cb)
}

func (r vkRecorder) setViewport(cb vk.CommandBuffer, viewport vk.Viewport) {
	vk.CmdSetViewport(cb, 0, 1, []vk.Viewport{viewport})
}

func (r vkRecorder) setScissor(cb vk.CommandBuffer, scissor vk.Rect2D) {
	vk.CmdSetScissor(cb, 0, 1, []vk.Rect2D{scissor})
}

func (r vkRecorder) pushConstants(cb vk.CommandBuffer, layout vk.PipelineLayout, stages vk.ShaderStageFlagBits, offset uint32, data []byte) {
	vk.CmdPushConstants(cb, layout, vk.ShaderStageFlags(stages), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (r vkRecorder) pushDescriptors(cb vk.CommandBuffer, template device.DescriptorUpdateTemplate, layout vk.PipelineLayout, data []byte) {
	r.ext.CmdPushDescriptorSetWithTemplate(cb, template, layout, data)
}

func (r vkRecorder) bindPipeline(cb vk.CommandBuffer, bindPoint vk.PipelineBindPoint, p vk.Pipeline) {
	vk.CmdBindPipeline(cb, bindPoint, p)
}
