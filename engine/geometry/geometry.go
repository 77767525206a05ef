package geometry

import (
	"log"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/loader"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// MaxMeshSubsets is the number of face groups one mesh may carry.
	MaxMeshSubsets = 4
	// MaxMeshLods is the length cap of a subset's LOD chain.
	MaxMeshLods = 8
	// MaxMeshletVertices is the vertex limit of one meshlet.
	MaxMeshletVertices = 64
	// MaxMeshletTriangles is the triangle limit of one meshlet.
	MaxMeshletTriangles = 124
	// VertexCacheSize is the post-transform cache size the optimizers model.
	VertexCacheSize = 32
	// OverdrawThreshold is how much vertex cache efficiency the overdraw optimizer may give up.
	OverdrawThreshold = 1.05
)

// Vertex is the 16-byte GPU vertex: half-float position, unorm8 normal and half-float texture coordinates.
type Vertex struct {
	Position [4]uint16
	Normal   [4]uint8
	UV       [2]uint16
}

// Meshlet is a small cluster of triangles with its culling bounds, laid out for std430 (32 bytes).
type Meshlet struct {
	Center     [3]float32
	Radius     float32
	ConeAxis   [3]int8
	ConeCutoff int8
	// VertexOffset indexes MeshletVertices; the entries are relative to the mesh's vertex offset.
	VertexOffset uint32
	// TriangleOffset is the byte offset of the first local index triple in MeshletTriangles.
	TriangleOffset uint32
	VertexCount    uint8
	TriangleCount  uint8
	_              [2]uint8
}

// Lod is one level of detail of a subset.
type Lod struct {
	IndexOffset   uint32
	IndexCount    uint32
	MeshletOffset uint32
	MeshletCount  uint32
	// Error is the simplification error in mesh units, never smaller than the previous level's.
	Error float32
}

// Subset is one face group with its LOD chain.
type Subset struct {
	LodCount uint32
	Lods     [MaxMeshLods]Lod
}

// Mesh is the GPU description of one loaded mesh. Indices in every LOD are relative to VertexOffset.
type Mesh struct {
	Center       [3]float32
	Radius       float32
	VertexOffset uint32
	VertexCount  uint32
	SubsetCount  uint32
	_            uint32
	Subsets      [MaxMeshSubsets]Subset
}

// Geometry aggregates every loaded mesh into shared vertex, index and meshlet arrays.
type Geometry struct {
	mu *sync.Mutex

	Vertices         []Vertex
	Indices          []uint32
	Meshlets         []Meshlet
	MeshletVertices  []uint32
	MeshletTriangles []uint8
	Meshes           []Mesh

	loader       loader.Loader
	pool         worker.DynamicWorkerPool
	workers      int
	maxLods      int
	lodReduction float32
	lodError     float32
	coneWeight   float32
}

// NewGeometry creates an empty geometry aggregate.
//
// Parameters:
//   - options: functional options to configure mesh processing
//
// Returns:
//   - *Geometry: the empty aggregate
func NewGeometry(options ...GeometryBuilderOption) *Geometry {
	g := &Geometry{
		mu:           &sync.Mutex{},
		workers:      runtime.NumCPU(),
		maxLods:      MaxMeshLods,
		lodReduction: 0.6,
		lodError:     1e-1,
		coneWeight:   0.25,
	}
	for _, opt := range options {
		opt(g)
	}
	if g.loader == nil {
		g.loader = loader.NewLoader(loader.BackendTypeOBJ)
	}
	g.pool = worker.NewDynamicWorkerPool(max(g.workers, 1), 256, time.Second)
	return g
}

// LoadMesh parses a mesh file and appends it.
//
// Parameters:
//   - path: the model file
//   - meshShading: true to build meshlets for every LOD
//
// Returns:
//   - error: a read or parse failure, or a mesh with more than one object or more than MaxMeshSubsets groups
func (g *Geometry) LoadMesh(path string, meshShading bool) error {
	imported, err := g.loader.Load(path)
	if err != nil {
		return err
	}
	return g.AddMesh(imported, meshShading)
}

// subsetResult is one processed subset with indices relative to the subset's own vertices.
type subsetResult struct {
	vertices  []Vertex
	lods      []lodResult
	positions [][3]float32
}

type lodResult struct {
	indices   []uint32
	err       float32
	meshlets  []Meshlet
	vertices  []uint32
	triangles []uint8
}

// AddMesh runs the processing pipeline on already parsed data and appends the result. Subsets are processed
// in parallel and merged in subset order, so the output does not depend on scheduling.
//
// Parameters:
//   - imported: the parsed mesh
//   - meshShading: true to build meshlets for every LOD
//
// Returns:
//   - error: when the mesh has more than one object, no faces, or more than MaxMeshSubsets groups
func (g *Geometry) AddMesh(imported *loader.ImportedMesh, meshShading bool) error {
	if imported.Objects > 1 {
		return errors.Newf("mesh %q: %d objects, only one is supported", imported.Name, imported.Objects)
	}
	if len(imported.Subsets) == 0 {
		return errors.Newf("mesh %q: no faces", imported.Name)
	}
	if len(imported.Subsets) > MaxMeshSubsets {
		return errors.Newf("mesh %q: %d groups exceed the limit of %d", imported.Name, len(imported.Subsets), MaxMeshSubsets)
	}

	normals := smoothNormals(imported)
	results := make([]subsetResult, len(imported.Subsets))
	errs := make([]error, len(imported.Subsets))

	var wg sync.WaitGroup
	for i := range imported.Subsets {
		wg.Add(1)
		id := i
		g.pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				results[id], errs[id] = g.processSubset(imported, imported.Subsets[id], normals, meshShading)
				return nil, errs[id]
			},
		})
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return errors.Wrapf(err, "mesh %q subset %d", imported.Name, i)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.merge(imported.Name, results)
	return nil
}

func (g *Geometry) processSubset(m *loader.ImportedMesh, s loader.ImportedSubset, normals [][3]float32, meshShading bool) (subsetResult, error) {
	corners := expandCorners(m, s, normals)

	remap, unique := GenerateVertexRemap(nil, corners)
	indices := RemapIndexBuffer(nil, len(corners), remap)
	verts := RemapVertexBuffer(corners, unique, remap)

	positions := make([][3]float32, len(verts))
	for i, v := range verts {
		positions[i] = v.Position
	}
	indices = OptimizeVertexCache(indices, len(verts), VertexCacheSize)
	indices = OptimizeOverdraw(indices, positions, VertexCacheSize, OverdrawThreshold)
	indices, verts = OptimizeVertexFetch(indices, verts)

	res := subsetResult{vertices: make([]Vertex, len(verts)), positions: make([][3]float32, len(verts))}
	for i, v := range verts {
		res.vertices[i] = quantize(v)
		res.positions[i] = v.Position
	}

	lodIndices := indices
	var lodErr float32
	for len(res.lods) < g.maxLods {
		lod := lodResult{indices: lodIndices, err: lodErr}
		if meshShading {
			lod.meshlets, lod.vertices, lod.triangles = BuildMeshlets(lodIndices, res.positions, MaxMeshletVertices, MaxMeshletTriangles, g.coneWeight)
		}
		res.lods = append(res.lods, lod)

		target := int(float32(len(lodIndices))*g.lodReduction) / 3 * 3
		next, e := Simplify(lodIndices, res.positions, target, g.lodError)
		if len(next) == 0 || len(next) >= len(lodIndices) {
			break
		}
		lodIndices = OptimizeVertexCache(next, len(res.positions), VertexCacheSize)
		lodErr = max(lodErr, e)
	}
	return res, nil
}

// merge appends processed subsets as one mesh. Callers hold g.mu.
func (g *Geometry) merge(name string, results []subsetResult) {
	mesh := Mesh{VertexOffset: uint32(len(g.Vertices)), SubsetCount: uint32(len(results))}

	var all [][3]float32
	lodTriangles := make([]int, 0, MaxMeshLods)
	meshlets := 0
	for si, r := range results {
		base := uint32(len(g.Vertices)) - mesh.VertexOffset
		g.Vertices = append(g.Vertices, r.vertices...)
		all = append(all, r.positions...)

		sub := &mesh.Subsets[si]
		sub.LodCount = uint32(len(r.lods))
		for li, lod := range r.lods {
			out := &sub.Lods[li]
			out.IndexOffset = uint32(len(g.Indices))
			out.IndexCount = uint32(len(lod.indices))
			out.Error = lod.err
			for _, idx := range lod.indices {
				g.Indices = append(g.Indices, idx+base)
			}

			out.MeshletOffset = uint32(len(g.Meshlets))
			out.MeshletCount = uint32(len(lod.meshlets))
			vertexBase := uint32(len(g.MeshletVertices))
			triangleBase := uint32(len(g.MeshletTriangles))
			for _, ml := range lod.meshlets {
				ml.VertexOffset += vertexBase
				ml.TriangleOffset += triangleBase
				g.Meshlets = append(g.Meshlets, ml)
			}
			for _, v := range lod.vertices {
				g.MeshletVertices = append(g.MeshletVertices, v+base)
			}
			g.MeshletTriangles = append(g.MeshletTriangles, lod.triangles...)
			meshlets += len(lod.meshlets)

			if li >= len(lodTriangles) {
				lodTriangles = append(lodTriangles, 0)
			}
			lodTriangles[li] += len(lod.indices) / 3
		}
	}
	mesh.VertexCount = uint32(len(g.Vertices)) - mesh.VertexOffset

	bounds := MeshBounds(all)
	mesh.Center = bounds.Center
	mesh.Radius = bounds.Radius
	g.Meshes = append(g.Meshes, mesh)

	log.Printf("[Geometry] %s: %d vertices, %d subsets, LOD triangles %v, %d meshlets", name, mesh.VertexCount, len(results), lodTriangles, meshlets)
}

// sourceVertex is an unquantized vertex used while optimizing. It is compared byte for byte when welding.
type sourceVertex struct {
	Position [3]float32
	Normal   [3]float32
	UV       [2]float32
}

// expandCorners produces one vertex per triangle corner. Corners without a normal take the smoothed normal of
// their position, so shared positions still weld.
func expandCorners(m *loader.ImportedMesh, s loader.ImportedSubset, normals [][3]float32) []sourceVertex {
	out := make([]sourceVertex, len(s.Corners))
	for i, c := range s.Corners {
		v := sourceVertex{Position: m.Positions[c.Position]}
		if c.Normal >= 0 {
			v.Normal = m.Normals[c.Normal]
		} else {
			v.Normal = normals[c.Position]
		}
		if c.UV >= 0 {
			v.UV = m.UVs[c.UV]
		}
		out[i] = v
	}
	return out
}

// smoothNormals computes area-weighted normals per position across every subset.
func smoothNormals(m *loader.ImportedMesh) [][3]float32 {
	acc := make([]mgl32.Vec3, len(m.Positions))
	for _, s := range m.Subsets {
		for t := 0; t+2 < len(s.Corners); t += 3 {
			a := mgl32.Vec3(m.Positions[s.Corners[t].Position])
			b := mgl32.Vec3(m.Positions[s.Corners[t+1].Position])
			c := mgl32.Vec3(m.Positions[s.Corners[t+2].Position])
			n := b.Sub(a).Cross(c.Sub(a))
			for k := 0; k < 3; k++ {
				p := s.Corners[t+k].Position
				acc[p] = acc[p].Add(n)
			}
		}
	}
	out := make([][3]float32, len(acc))
	for i, n := range acc {
		if n.Len() > 0 {
			out[i] = n.Normalize()
		}
	}
	return out
}

func quantize(v sourceVertex) Vertex {
	n := common.QuantizeNormal(v.Normal)
	return Vertex{
		Position: [4]uint16{common.QuantizeHalf(v.Position[0]), common.QuantizeHalf(v.Position[1]), common.QuantizeHalf(v.Position[2]), 0},
		Normal:   [4]uint8{n[0], n[1], n[2], 0},
		UV:       [2]uint16{common.QuantizeHalf(v.UV[0]), common.QuantizeHalf(v.UV[1])},
	}
}

// MeshBounds returns the sphere centered on the vertex centroid that contains every vertex. It is not the
// minimal sphere.
//
// Parameters:
//   - positions: the vertex positions
//
// Returns:
//   - common.Sphere: the bounding sphere
func MeshBounds(positions [][3]float32) common.Sphere {
	if len(positions) == 0 {
		return common.Sphere{}
	}
	var c mgl32.Vec3
	for _, p := range positions {
		c = c.Add(mgl32.Vec3(p))
	}
	c = c.Mul(1 / float32(len(positions)))

	var r float32
	for _, p := range positions {
		r = max(r, mgl32.Vec3(p).Sub(c).Len())
	}
	if math.IsNaN(float64(r)) {
		r = 0
	}
	return common.Sphere{Center: c, Radius: r}
}
