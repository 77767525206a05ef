package scene

import (
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-vk/engine/camera"
	"github.com/Carmen-Shannon/oxy-vk/engine/geometry"
	"github.com/Carmen-Shannon/oxy-vk/engine/gui"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/frame"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/resource"
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// Scene owns a fixed population of draw instances over a loaded geometry and records the per-frame culling and
// indirect draw passes for it. The draws are generated once; the command list and draw count are re-derived by
// the culling pass every frame.
// Thread-safe for concurrent access.
type Scene interface {
	// Name returns the scene's identifier.
	Name() string

	// Active returns whether this scene is currently recorded.
	Active() bool

	// SetActive sets whether this scene is recorded.
	SetActive(active bool)

	// Camera returns the scene's camera.
	Camera() camera.Camera

	// Renderer returns the scene's renderer.
	Renderer() renderer.Renderer

	// Draws returns the generated draw instances. The slice must not be modified.
	Draws() []PerDrawData

	// DrawCount returns the number of draw instances.
	DrawCount() int

	// Record records the culling pass followed by the draw pass into the frame's command buffer. The draw pass
	// clears the color and depth targets.
	//
	// Parameters:
	//   - f: the frame being recorded
	//   - settings: the culling, LOD and draw path toggles
	Record(f *frame.Frame, settings gui.Settings)

	// Destroy releases the scene's device buffers. The GPU must be idle.
	Destroy()
}

type scene struct {
	mu *sync.Mutex

	name   string
	active bool

	cam      camera.Camera
	r        renderer.Renderer
	geometry *geometry.Geometry
	gpu      *geometry.GeometryBuffers

	drawCount      int
	seed           int64
	radius         float32
	lodPixelError  float32
	clearColor     [4]float32
	computeWorkers int
	computePool    worker.DynamicWorkerPool

	draws       []PerDrawData
	maxCommands uint32
	buffers     *drawBuffers

	cull     pipeline.Pipeline
	draw     pipeline.Pipeline
	drawMesh pipeline.Pipeline
}

var _ Scene = &scene{}

// NewScene generates the draw population over geo and creates its device buffers. The culling and indexed draw
// pipelines must already be registered on r under PipelineCull and PipelineDraw; PipelineDrawMesh is used when the
// device has mesh shading and the pipeline is registered.
//
// Parameters:
//   - r: the renderer the scene records through
//   - geo: the loaded geometry
//   - gpu: the geometry's device buffers
//   - cam: the camera
//   - options: functional options to configure the scene
//
// Returns:
//   - Scene: the scene, active unless WithActive(false) was given
//   - error: when a required pipeline is missing or a buffer cannot be created
func NewScene(r renderer.Renderer, geo *geometry.Geometry, gpu *geometry.GeometryBuffers, cam camera.Camera, options ...SceneBuilderOption) (Scene, error) {
	if r == nil || geo == nil || gpu == nil || cam == nil {
		panic("scene: NewScene requires a renderer, geometry, geometry buffers and camera")
	}

	s := &scene{
		mu:             &sync.Mutex{},
		name:           "scene",
		active:         true,
		cam:            cam,
		r:              r,
		geometry:       geo,
		gpu:            gpu,
		drawCount:      1000,
		seed:           42,
		lodPixelError:  1,
		clearColor:     [4]float32{0.05, 0.05, 0.08, 1},
		computeWorkers: max(runtime.NumCPU()-1, 1),
	}
	for _, option := range options {
		option(s)
	}
	if s.radius <= 0 {
		s.radius = DefaultSceneRadius(s.drawCount)
	}

	s.cull = r.Pipeline(PipelineCull)
	s.draw = r.Pipeline(PipelineDraw)
	if s.cull == nil || s.draw == nil {
		return nil, errors.Newf("scene %q: pipelines %q and %q must be registered", s.name, PipelineCull, PipelineDraw)
	}
	if r.Device().MeshShadingEnabled() {
		s.drawMesh = r.Pipeline(PipelineDrawMesh)
	}

	// Initialize the compute pool after options so WithComputeWorkers can override the default.
	s.computePool = worker.NewDynamicWorkerPool(s.computeWorkers, 256, time.Second)

	meshes := geo.Meshes
	if s.drawCount > 0 && len(meshes) == 0 {
		return nil, errors.Newf("scene %q: %d draws requested without loaded meshes", s.name, s.drawCount)
	}

	start := time.Now()
	s.draws = GenerateDraws(s.computePool, s.drawCount, meshes, s.seed, s.radius)
	for _, d := range s.draws {
		s.maxCommands += meshes[d.MeshIndex].SubsetCount
	}
	log.Printf("[Scene] %s: generated %d draws (%d commands max) in %s", s.name, len(s.draws), s.maxCommands, time.Since(start))

	buffers, err := newDrawBuffers(r.Device(), s.draws, meshes, s.maxCommands)
	if err != nil {
		return nil, errors.Wrapf(err, "scene %q", s.name)
	}
	s.buffers = buffers
	return s, nil
}

func (s *scene) Name() string {
	return s.name
}

func (s *scene) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *scene) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

func (s *scene) Camera() camera.Camera {
	return s.cam
}

func (s *scene) Renderer() renderer.Renderer {
	return s.r
}

func (s *scene) Draws() []PerDrawData {
	return s.draws
}

func (s *scene) DrawCount() int {
	return len(s.draws)
}

func (s *scene) Record(f *frame.Frame, settings gui.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || s.buffers == nil {
		return
	}

	cb := f.CommandBuffer
	b := s.buffers
	meshPath := settings.MeshShading && s.drawMesh != nil
	extent := s.r.Swapchain().Extent()

	// Last frame's draw read the commands as indirect arguments.
	drawStages := vk.PipelineStageFlags(vk.PipelineStageDrawIndirectBit | vk.PipelineStageVertexShaderBit)
	if s.drawMesh != nil {
		drawStages |= device.PipelineStageTaskShaderBit | device.PipelineStageMeshShaderBit
	}
	computeAccess := vk.AccessFlags(vk.AccessShaderReadBit | vk.AccessShaderWriteBit)
	computeStage := vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)
	indirectAccess := vk.AccessFlags(vk.AccessIndirectCommandReadBit | vk.AccessShaderReadBit)

	resource.FillBuffer(cb, b.count, 0, computeAccess, computeStage)
	resource.BufferBarrier(cb, b.commands, indirectAccess, vk.AccessFlags(vk.AccessShaderWriteBit), drawStages, computeStage)

	cull := s.cullData(settings, meshPath, extent.Height)
	exec := s.r.Executor()
	exec.Execute(cb, pass.PassDescriptor{
		Pipeline: s.cull,
		Bindings: []pipeline.ResourceBinding{
			pipeline.BufferBinding(b.draws.Handle(), 0, 0),
			pipeline.BufferBinding(s.gpu.Meshes.Handle(), 0, 0),
			pipeline.BufferBinding(b.commands.Handle(), 0, 0),
			pipeline.BufferBinding(b.count.Handle(), 0, 0),
			pipeline.BufferBinding(b.visibility.Handle(), 0, 0),
		},
		PushConstants: cull.Bytes(),
	}, func(cb vk.CommandBuffer) {
		local := max(s.cull.Shader(vk.ShaderStageComputeBit).LocalSize()[0], 1)
		vk.CmdDispatch(cb, (uint32(len(s.draws))+local-1)/local, 1, 1)
	})
	s.r.MarkBlock(f, "cull")

	for _, buf := range []resource.Buffer{b.commands, b.count} {
		resource.BufferBarrier(cb, buf, vk.AccessFlags(vk.AccessShaderWriteBit), indirectAccess, computeStage, drawStages)
	}

	viewport := pass.Rect{Width: extent.Width, Height: extent.Height}
	desc := pass.PassDescriptor{
		Viewport: viewport,
		Scissor:  viewport,
		ColorAttachments: []pass.Attachment{
			{Texture: f.Color, LoadOp: vk.AttachmentLoadOpClear, Clear: s.clearColor},
		},
		// Reverse-Z clears depth to 0, the far end.
		DepthAttachment: &pass.Attachment{Texture: f.Depth, LoadOp: vk.AttachmentLoadOpClear},
	}
	uniform := s.cam.Uniform()
	desc.PushConstants = uniform.Marshal()

	ext := s.r.Device().Extensions()
	s.r.BeginStatistics(f)
	if meshPath {
		desc.Pipeline = s.drawMesh
		desc.Bindings = []pipeline.ResourceBinding{
			pipeline.BufferBinding(b.commands.Handle(), 0, 0),
			pipeline.BufferBinding(b.draws.Handle(), 0, 0),
			pipeline.BufferBinding(s.gpu.Meshlets.Handle(), 0, 0),
			pipeline.BufferBinding(s.gpu.MeshletVertices.Handle(), 0, 0),
			pipeline.BufferBinding(s.gpu.MeshletTriangles.Handle(), 0, 0),
			pipeline.BufferBinding(s.gpu.Vertices.Handle(), 0, 0),
			pipeline.BufferBinding(b.meshletVisibility.Handle(), 0, 0),
		}
		exec.Execute(cb, desc, func(cb vk.CommandBuffer) {
			ext.CmdDrawMeshTasksIndirectCount(cb, b.commands.Handle(), vk.DeviceSize(taskCommandOffset),
				b.count.Handle(), 0, s.maxCommands, drawCommandStride)
		})
	} else {
		desc.Pipeline = s.draw
		desc.Bindings = []pipeline.ResourceBinding{
			pipeline.BufferBinding(b.draws.Handle(), 0, 0),
			pipeline.BufferBinding(s.gpu.Vertices.Handle(), 0, 0),
		}
		exec.Execute(cb, desc, func(cb vk.CommandBuffer) {
			vk.CmdBindIndexBuffer(cb, s.gpu.Indices.Handle(), 0, vk.IndexTypeUint32)
			ext.CmdDrawIndexedIndirectCount(cb, b.commands.Handle(), vk.DeviceSize(indexedCommandOffset),
				b.count.Handle(), 0, s.maxCommands, drawCommandStride)
		})
	}
	s.r.EndStatistics(f)
	s.r.MarkBlock(f, "draw")
}

// cullData packs the culling push constants for the current camera and toggles.
func (s *scene) cullData(settings gui.Settings, meshPath bool, height uint32) CullData {
	proj := s.cam.ProjectionMatrix()
	c := CullData{
		View:           s.cam.ViewMatrix(),
		Frustum:        s.cam.FrustumPlanes(),
		Near:           s.cam.Near(),
		LodTarget:      lodTarget(proj[5], height, s.lodPixelError),
		DrawCount:      uint32(len(s.draws)),
		CullingEnabled: boolToUint(settings.Culling),
		LodEnabled:     boolToUint(settings.Lod),
		ForcedLod:      int32(settings.ForcedLod),
		MeshShading:    boolToUint(meshPath),
	}
	if !settings.Lod {
		c.ForcedLod = 0
	}
	return c
}

// lodTarget converts a pixel error into the world-space error it covers at distance 1.
//
// Parameters:
//   - projY: the projection's Y scale, 1 / tan(fov / 2)
//   - height: the target height in pixels
//   - pixels: the tolerated error in pixels
//
// Returns:
//   - float32: the error threshold at distance 1, or 0 for an empty target
func lodTarget(projY float32, height uint32, pixels float32) float32 {
	if height == 0 || projY == 0 {
		return 0
	}
	return (2 / projY) / float32(height) * pixels
}

func (s *scene) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buffers != nil {
		s.buffers.Destroy()
		s.buffers = nil
	}
}
