package geometry

import (
	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/resource"
	vk "github.com/goki/vulkan"
)

// minBufferSize keeps buffers for empty arrays bindable.
const minBufferSize = 16

// GeometryBuffers are the device-local copies of a Geometry. The meshlet buffers exist only on devices with
// mesh shading.
type GeometryBuffers struct {
	Vertices         resource.Buffer
	Indices          resource.Buffer
	Meshes           resource.Buffer
	Meshlets         resource.Buffer
	MeshletVertices  resource.Buffer
	MeshletTriangles resource.Buffer
}

// CreateBuffers uploads the geometry into device-local storage buffers through staging copies.
//
// Parameters:
//   - dev: the device context
//
// Returns:
//   - *GeometryBuffers: the uploaded buffers
//   - error: when a buffer cannot be created or filled
func (g *Geometry) CreateBuffers(dev device.Device) (*GeometryBuffers, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := &GeometryBuffers{}
	storage := vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)

	type upload struct {
		dst   *resource.Buffer
		label string
		data  []byte
		usage vk.BufferUsageFlags
	}
	uploads := []upload{
		{&out.Vertices, "vertices", common.SliceToBytes(g.Vertices), storage},
		{&out.Indices, "indices", common.SliceToBytes(g.Indices), storage | vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)},
		{&out.Meshes, "meshes", common.SliceToBytes(g.Meshes), storage},
	}
	if dev.MeshShadingEnabled() {
		uploads = append(uploads,
			upload{&out.Meshlets, "meshlets", common.SliceToBytes(g.Meshlets), storage},
			upload{&out.MeshletVertices, "meshlet vertices", common.SliceToBytes(g.MeshletVertices), storage},
			upload{&out.MeshletTriangles, "meshlet triangles", common.SliceToBytes(g.MeshletTriangles), storage},
		)
	}

	for _, u := range uploads {
		size := max(uint64(len(u.data)), minBufferSize)
		buf, err := resource.NewBuffer(dev, resource.BufferDescriptor{
			Label:    u.label,
			Size:     common.AlignUp(size, 4),
			Access:   device.AccessDevice,
			Usage:    u.usage,
			Contents: u.data,
		})
		if err != nil {
			out.Destroy()
			return nil, err
		}
		*u.dst = buf
	}
	return out, nil
}

// Destroy releases every buffer that was created.
func (b *GeometryBuffers) Destroy() {
	for _, buf := range []*resource.Buffer{&b.Vertices, &b.Indices, &b.Meshes, &b.Meshlets, &b.MeshletVertices, &b.MeshletTriangles} {
		if *buf != nil {
			(*buf).Destroy()
			*buf = nil
		}
	}
}
