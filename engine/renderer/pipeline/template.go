package pipeline

import (
	"encoding/binary"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/shader"
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// DescriptorStride is the byte size of one slot of push-descriptor data: the larger of VkDescriptorBufferInfo and
// VkDescriptorImageInfo, both 24 bytes on 64-bit targets.
const DescriptorStride = 24

// BindingKind tags which member of a ResourceBinding is set.
type BindingKind uint8

const (
	// BindingKindBuffer is a storage or uniform buffer range.
	BindingKindBuffer BindingKind = iota + 1

	// BindingKindImage is an image view with an optional sampler.
	BindingKindImage
)

// ResourceBinding is the resource bound to one slot of a pipeline's descriptor set. Build one with
// BufferBinding or ImageBinding.
type ResourceBinding struct {
	kind BindingKind

	buffer vk.Buffer
	offset uint64
	size   uint64

	view    vk.ImageView
	sampler vk.Sampler
	layout  vk.ImageLayout
}

// BufferBinding binds a range of a buffer. A size of zero binds the whole remaining buffer.
//
// Parameters:
//   - buf: the buffer
//   - offset: byte offset of the range
//   - size: byte size of the range, or 0 for the rest of the buffer
//
// Returns:
//   - ResourceBinding: the tagged binding
func BufferBinding(buf vk.Buffer, offset, size uint64) ResourceBinding {
	if size == 0 {
		size = vk.WholeSize
	}
	return ResourceBinding{kind: BindingKindBuffer, buffer: buf, offset: offset, size: size}
}

// ImageBinding binds an image view, with a sampler for combined image-samplers or nil for storage images.
//
// Parameters:
//   - view: the image view
//   - sampler: the sampler, or nil
//   - layout: the layout the image is in when the shader accesses it
//
// Returns:
//   - ResourceBinding: the tagged binding
func ImageBinding(view vk.ImageView, sampler vk.Sampler, layout vk.ImageLayout) ResourceBinding {
	return ResourceBinding{kind: BindingKindImage, view: view, sampler: sampler, layout: layout}
}

// Kind reports which member of the binding is set.
func (r ResourceBinding) Kind() BindingKind {
	return r.kind
}

// EncodeBindings lays bindings out in the memory format the push-descriptor update template reads: slot i at byte
// i*DescriptorStride holds a VkDescriptorBufferInfo or a VkDescriptorImageInfo.
//
// Parameters:
//   - bindings: one binding per merged pipeline binding, in binding order
//
// Returns:
//   - []byte: len(bindings)*DescriptorStride bytes
func EncodeBindings(bindings []ResourceBinding) []byte {
	out := make([]byte, len(bindings)*DescriptorStride)
	for i, b := range bindings {
		slot := out[i*DescriptorStride : (i+1)*DescriptorStride]
		switch b.kind {
		case BindingKindBuffer:
			binary.NativeEndian.PutUint64(slot[0:], handleBits(unsafe.Pointer(b.buffer)))
			binary.NativeEndian.PutUint64(slot[8:], b.offset)
			binary.NativeEndian.PutUint64(slot[16:], b.size)
		case BindingKindImage:
			binary.NativeEndian.PutUint64(slot[0:], handleBits(unsafe.Pointer(b.sampler)))
			binary.NativeEndian.PutUint64(slot[8:], handleBits(unsafe.Pointer(b.view)))
			binary.NativeEndian.PutUint32(slot[16:], uint32(b.layout))
		default:
			panic(errors.AssertionFailedf("binding slot %d is empty", i))
		}
	}
	return out
}

// templateEntries describes one update-template entry per merged binding, slot i at offset i*DescriptorStride.
func templateEntries(bindings []shader.Binding) []device.DescriptorUpdateTemplateEntry {
	entries := make([]device.DescriptorUpdateTemplateEntry, len(bindings))
	for i, b := range bindings {
		entries[i] = device.DescriptorUpdateTemplateEntry{
			Binding: b.Binding,
			Type:    b.Type,
			Offset:  uintptr(i * DescriptorStride),
			Stride:  DescriptorStride,
		}
	}
	return entries
}

func handleBits(p unsafe.Pointer) uint64 {
	return uint64(uintptr(p))
}
