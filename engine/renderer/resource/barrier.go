package resource

import (
	vk "github.com/goki/vulkan"
)

// BufferBarrier records a memory barrier covering the whole buffer. The access and stage masks are used exactly as
// given; nothing is inferred.
//
// Parameters:
//   - cb: the command buffer being recorded
//   - buf: the buffer the barrier applies to
//   - srcAccess, dstAccess: the access masks before and after the barrier
//   - srcStage, dstStage: the pipeline stages before and after the barrier
func BufferBarrier(cb vk.CommandBuffer, buf Buffer, srcAccess, dstAccess vk.AccessFlags, srcStage, dstStage vk.PipelineStageFlags) {
	barrier := vk.BufferMemoryBarrier{
		SType:               vk.StructureTypeBufferMemoryBarrier,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Buffer:              buf.Handle(),
		Offset:              0,
		Size:                vk.DeviceSize(vk.WholeSize),
	}
	vk.CmdPipelineBarrier(cb, srcStage, dstStage, 0, 0, nil, 1, []vk.BufferMemoryBarrier{barrier}, 0, nil)
}

// TextureBarrier records a layout transition over the texture's mip range.
//
// Parameters:
//   - cb: the command buffer being recorded
//   - tex: the texture or texture view the barrier applies to
//   - oldLayout, newLayout: the layout before and after the barrier
//   - srcAccess, dstAccess: the access masks before and after the barrier
//   - srcStage, dstStage: the pipeline stages before and after the barrier
func TextureBarrier(cb vk.CommandBuffer, tex Texture, oldLayout, newLayout vk.ImageLayout, srcAccess, dstAccess vk.AccessFlags, srcStage, dstStage vk.PipelineStageFlags) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               tex.Image(),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     tex.Aspect(),
			BaseMipLevel:   tex.MipLevel(),
			LevelCount:     tex.MipCount(),
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	vk.CmdPipelineBarrier(cb, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

// FillBuffer clears a buffer to a repeated 32-bit value. It waits for any prior access, performs a transfer
// fill, then makes the result visible to dstAccess at dstStage.
//
// Parameters:
//   - cb: the command buffer being recorded
//   - buf: the buffer to fill; it needs transfer destination usage
//   - value: the 32-bit pattern to write
//   - dstAccess, dstStage: how the buffer is used after the fill
func FillBuffer(cb vk.CommandBuffer, buf Buffer, value uint32, dstAccess vk.AccessFlags, dstStage vk.PipelineStageFlags) {
	BufferBarrier(cb, buf,
		vk.AccessFlags(vk.AccessShaderReadBit|vk.AccessShaderWriteBit|vk.AccessIndirectCommandReadBit|vk.AccessTransferReadBit|vk.AccessTransferWriteBit),
		vk.AccessFlags(vk.AccessTransferWriteBit),
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		vk.PipelineStageFlags(vk.PipelineStageTransferBit))

	vk.CmdFillBuffer(cb, buf.Handle(), 0, vk.DeviceSize(vk.WholeSize), value)

	BufferBarrier(cb, buf,
		vk.AccessFlags(vk.AccessTransferWriteBit), dstAccess,
		vk.PipelineStageFlags(vk.PipelineStageTransferBit), dstStage)
}
