package scene

import (
	"unsafe"

	"github.com/Carmen-Shannon/oxy-vk/common"
)

// Pipeline keys the scene looks up on the renderer. The application registers pipelines under these keys.
const (
	PipelineCull     = "cull"
	PipelineDraw     = "draw"
	PipelineDrawMesh = "draw_mesh"
)

// PerDrawData is one draw instance, laid out for std430 (48 bytes).
type PerDrawData struct {
	Position    [3]float32
	Scale       float32
	Orientation [4]float32
	MeshIndex   uint32
	// VertexOffset is the mesh's first vertex in the shared vertex buffer.
	VertexOffset uint32
	// MeshletVisibilityOffset is the first bit of this draw in the meshlet visibility buffer.
	MeshletVisibilityOffset uint32
	_                       uint32
}

// DrawCommand is one culling-pass output, laid out for std430 (36 bytes). The indexed draw arguments start at
// byte 4 and the task dispatch at byte 24. On the mesh shading path FirstIndex holds the level's first meshlet
// and IndexCount its meshlet count.
type DrawCommand struct {
	DrawID        uint32
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	VertexOffset  int32
	FirstInstance uint32
	TaskX         uint32
	TaskY         uint32
	TaskZ         uint32
}

const (
	// perDrawSize is the byte size of one PerDrawData.
	perDrawSize = uint64(unsafe.Sizeof(PerDrawData{}))
	// drawCommandStride is the byte distance between consecutive commands.
	drawCommandStride = uint32(unsafe.Sizeof(DrawCommand{}))
	// indexedCommandOffset is where the indexed draw arguments start inside a command.
	indexedCommandOffset = uint64(unsafe.Offsetof(DrawCommand{}.IndexCount))
	// taskCommandOffset is where the task dispatch starts inside a command.
	taskCommandOffset = uint64(unsafe.Offsetof(DrawCommand{}.TaskX))
)

// CullData is the culling pass push-constant block (112 bytes).
type CullData struct {
	View [16]float32
	// Frustum is the side-plane pair from camera.Camera.FrustumPlanes.
	Frustum [4]float32
	Near    float32
	// LodTarget is the world-space error one pixel covers at distance 1.
	LodTarget      float32
	DrawCount      uint32
	CullingEnabled uint32
	LodEnabled     uint32
	// ForcedLod is a level index, or -1 for automatic selection.
	ForcedLod   int32
	MeshShading uint32
	_           uint32
}

// Bytes returns the push-constant bytes.
func (c *CullData) Bytes() []byte {
	return common.StructToBytes(c)
}

func boolToUint(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
