package scene

import (
	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/geometry"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/resource"
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// drawBuffers are the device buffers of the draw population. Visibility, meshlet visibility and the count start
// zeroed; commands and count are rewritten by the culling pass every frame.
type drawBuffers struct {
	draws             resource.Buffer
	visibility        resource.Buffer
	meshletVisibility resource.Buffer
	commands          resource.Buffer
	count             resource.Buffer
}

// newDrawBuffers uploads the draws and creates the culling outputs. The zero fills run in one immediate
// submission before it returns.
//
// Parameters:
//   - dev: the device context
//   - draws: the generated draws
//   - meshes: the meshes the draws index
//   - maxCommands: the command capacity
//
// Returns:
//   - *drawBuffers: the created buffers
//   - error: when a buffer cannot be created or the fill submission fails
func newDrawBuffers(dev device.Device, draws []PerDrawData, meshes []geometry.Mesh, maxCommands uint32) (*drawBuffers, error) {
	storage := vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)
	indirect := storage | vk.BufferUsageFlags(vk.BufferUsageIndirectBufferBit)
	n := uint64(max(len(draws), 1))

	b := &drawBuffers{}
	type entry struct {
		dst      *resource.Buffer
		label    string
		size     uint64
		usage    vk.BufferUsageFlags
		contents []byte
	}
	entries := []entry{
		{&b.draws, "draws", n * perDrawSize, storage, common.SliceToBytes(draws)},
		{&b.visibility, "draw visibility", n * 4, storage, nil},
		{&b.commands, "draw commands", uint64(max(maxCommands, 1)) * uint64(drawCommandStride), indirect, nil},
		{&b.count, "draw count", 4, indirect, nil},
	}
	if dev.MeshShadingEnabled() {
		words := max(meshletVisibilityWords(draws, meshes), 1)
		entries = append(entries, entry{&b.meshletVisibility, "meshlet visibility", words * 4, storage, nil})
	}

	for _, e := range entries {
		buf, err := resource.NewBuffer(dev, resource.BufferDescriptor{
			Label:    e.label,
			Size:     e.size,
			Access:   device.AccessDevice,
			Usage:    e.usage,
			Contents: e.contents,
		})
		if err != nil {
			b.Destroy()
			return nil, errors.Wrapf(err, "create %s buffer", e.label)
		}
		*e.dst = buf
	}

	dstAccess := vk.AccessFlags(vk.AccessShaderReadBit | vk.AccessShaderWriteBit)
	dstStage := vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)
	err := dev.ImmediateSubmit(func(cb vk.CommandBuffer) {
		resource.FillBuffer(cb, b.visibility, 0, dstAccess, dstStage)
		resource.FillBuffer(cb, b.count, 0, dstAccess, dstStage)
		if b.meshletVisibility != nil {
			resource.FillBuffer(cb, b.meshletVisibility, 0, dstAccess, dstStage)
		}
	})
	if err != nil {
		b.Destroy()
		return nil, errors.Wrap(err, "clear draw buffers")
	}
	return b, nil
}

// Destroy releases every buffer that was created.
func (b *drawBuffers) Destroy() {
	for _, buf := range []*resource.Buffer{&b.draws, &b.visibility, &b.meshletVisibility, &b.commands, &b.count} {
		if *buf != nil {
			(*buf).Destroy()
			*buf = nil
		}
	}
}
