package geometry

import (
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/loader"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/device"
)

// grid builds an n by n quad sheet in the z=0 plane, two counter-clockwise triangles per cell.
func grid(n int) ([][3]float32, []uint32) {
	var pos [][3]float32
	for y := 0; y <= n; y++ {
		for x := 0; x <= n; x++ {
			pos = append(pos, [3]float32{float32(x), float32(y), 0})
		}
	}
	var idx []uint32
	row := uint32(n + 1)
	for y := uint32(0); y < uint32(n); y++ {
		for x := uint32(0); x < uint32(n); x++ {
			a := y*row + x
			idx = append(idx, a, a+1, a+row+1, a, a+row+1, a+row)
		}
	}
	return pos, idx
}

// triangleSet returns each triangle rotated so its smallest index leads, preserving winding, sorted.
func triangleSet(indices []uint32) [][3]uint32 {
	var out [][3]uint32
	for t := 0; t+2 < len(indices); t += 3 {
		tri := [3]uint32{indices[t], indices[t+1], indices[t+2]}
		for tri[0] > tri[1] || tri[0] > tri[2] {
			tri = [3]uint32{tri[1], tri[2], tri[0]}
		}
		out = append(out, tri)
	}
	slices.SortFunc(out, func(a, b [3]uint32) int {
		for i := range a {
			if a[i] != b[i] {
				return int(a[i]) - int(b[i])
			}
		}
		return 0
	})
	return out
}

func sameTriangles(t *testing.T, name string, want, got []uint32) {
	t.Helper()
	if !slices.Equal(triangleSet(want), triangleSet(got)) {
		t.Errorf("%s: triangle set changed (%d -> %d indices)", name, len(want), len(got))
	}
}

func shuffledTriangles(indices []uint32, seed int64) []uint32 {
	r := rand.New(rand.NewSource(seed))
	tris := len(indices) / 3
	order := r.Perm(tris)
	out := make([]uint32, 0, len(indices))
	for _, t := range order {
		out = append(out, indices[t*3:t*3+3]...)
	}
	return out
}

func TestGenerateVertexRemap(t *testing.T) {
	verts := []sourceVertex{
		{Position: [3]float32{0, 0, 0}},
		{Position: [3]float32{1, 0, 0}},
		{Position: [3]float32{0, 0, 0}},
		{Position: [3]float32{1, 0, 0}, UV: [2]float32{1, 0}},
		{Position: [3]float32{1, 0, 0}},
	}
	remap, unique := GenerateVertexRemap(nil, verts)
	if unique != 3 {
		t.Fatalf("unique = %d, want 3", unique)
	}
	if want := []uint32{0, 1, 0, 2, 1}; !slices.Equal(remap, want) {
		t.Fatalf("remap = %v, want %v", remap, want)
	}
	indices := RemapIndexBuffer(nil, len(verts), remap)
	welded := RemapVertexBuffer(verts, unique, remap)
	for i, idx := range indices {
		if welded[idx] != verts[i] {
			t.Errorf("corner %d resolves to a different vertex", i)
		}
	}

	// Vertices no index touches stay unused.
	remap, unique = GenerateVertexRemap([]uint32{4, 1, 4}, verts)
	if unique != 1 || remap[1] != 0 || remap[4] != 0 || remap[0] != Unused {
		t.Errorf("indexed remap = %v (%d unique)", remap, unique)
	}
}

func TestOptimizeVertexCachePreservesTriangles(t *testing.T) {
	pos, idx := grid(24)
	shuffled := shuffledTriangles(idx, 7)
	opt := OptimizeVertexCache(shuffled, len(pos), VertexCacheSize)
	sameTriangles(t, "tipsify", shuffled, opt)

	before := ACMR(shuffled, len(pos), VertexCacheSize)
	after := ACMR(opt, len(pos), VertexCacheSize)
	if after >= before {
		t.Errorf("ACMR %v did not improve on shuffled %v", after, before)
	}
	if after > 1.0 {
		t.Errorf("ACMR %v on a regular grid, want at most 1", after)
	}
}

func TestOptimizeOverdrawPreservesTriangles(t *testing.T) {
	pos, idx := grid(16)
	in := OptimizeVertexCache(shuffledTriangles(idx, 3), len(pos), VertexCacheSize)
	out := OptimizeOverdraw(in, pos, VertexCacheSize, OverdrawThreshold)
	sameTriangles(t, "overdraw", in, out)

	single := []uint32{0, 1, 2}
	if got := OptimizeOverdraw(single, pos, VertexCacheSize, OverdrawThreshold); !slices.Equal(got, single) {
		t.Errorf("single triangle = %v", got)
	}
}

func TestOptimizeVertexFetch(t *testing.T) {
	verts := []string{"a", "b", "c", "d", "unused"}
	idx := []uint32{3, 1, 0, 0, 2, 3}
	out, reordered := OptimizeVertexFetch(idx, verts)
	if want := []string{"d", "b", "a", "c"}; !slices.Equal(reordered, want) {
		t.Fatalf("vertices = %v, want %v", reordered, want)
	}
	if want := []uint32{0, 1, 2, 2, 3, 0}; !slices.Equal(out, want) {
		t.Fatalf("indices = %v, want %v", out, want)
	}
	for i := range idx {
		if reordered[out[i]] != verts[idx[i]] {
			t.Errorf("index %d resolves to %s, want %s", i, reordered[out[i]], verts[idx[i]])
		}
	}
}

func TestSimplifyReducesPlanarGrid(t *testing.T) {
	pos, idx := grid(16)
	target := len(idx) / 2 / 3 * 3
	out, err := Simplify(idx, pos, target, 1e-3)
	if len(out) >= len(idx) {
		t.Fatalf("no reduction: %d indices", len(out))
	}
	if err > 1e-3 {
		t.Errorf("error %v on a planar grid", err)
	}
	if len(out)%3 != 0 {
		t.Fatalf("index count %d is not a multiple of 3", len(out))
	}
	// Border vertices are locked, so every border vertex is still referenced.
	seen := map[uint32]bool{}
	for _, i := range out {
		seen[i] = true
	}
	for i, p := range pos {
		border := p[0] == 0 || p[1] == 0 || p[0] == 16 || p[1] == 16
		if border && !seen[uint32(i)] {
			t.Fatalf("border vertex %d was collapsed", i)
		}
	}
}

func TestSimplifyRespectsErrorBound(t *testing.T) {
	pos, idx := grid(8)
	// Lift the interior into a ridge so collapses across it cost more than the bound.
	for i := range pos {
		if pos[i][0] == 4 && pos[i][1] > 0 && pos[i][1] < 8 {
			pos[i][2] = 3
		}
	}
	out, err := Simplify(idx, pos, 3, 1e-4)
	if err > 1e-4 {
		t.Errorf("error %v exceeds bound", err)
	}
	if len(out) > len(idx) {
		t.Errorf("grew from %d to %d indices", len(idx), len(out))
	}
}

func TestMeshletPartition(t *testing.T) {
	pos, idx := grid(32)
	idx = OptimizeVertexCache(idx, len(pos), VertexCacheSize)
	meshlets, verts, tris := BuildMeshlets(idx, pos, MaxMeshletVertices, MaxMeshletTriangles, 0.25)

	var rebuilt []uint32
	for i, m := range meshlets {
		if m.VertexCount == 0 || int(m.VertexCount) > MaxMeshletVertices {
			t.Fatalf("meshlet %d has %d vertices", i, m.VertexCount)
		}
		if m.TriangleCount == 0 || int(m.TriangleCount) > MaxMeshletTriangles {
			t.Fatalf("meshlet %d has %d triangles", i, m.TriangleCount)
		}
		if m.TriangleOffset%4 != 0 {
			t.Fatalf("meshlet %d triangles start at unaligned offset %d", i, m.TriangleOffset)
		}
		for k := 0; k < int(m.TriangleCount)*3; k++ {
			local := tris[int(m.TriangleOffset)+k]
			if local >= m.VertexCount {
				t.Fatalf("meshlet %d local index %d out of range", i, local)
			}
			rebuilt = append(rebuilt, verts[m.VertexOffset+uint32(local)])
		}
	}
	sameTriangles(t, "meshlets", idx, rebuilt)
	if len(tris)%4 != 0 {
		t.Errorf("triangle stream length %d is not padded", len(tris))
	}
}

func TestMeshletBounds(t *testing.T) {
	pos, idx := grid(12)
	meshlets, verts, _ := BuildMeshlets(idx, pos, MaxMeshletVertices, MaxMeshletTriangles, 0.25)
	for i, m := range meshlets {
		s := common.Sphere{Center: m.Center, Radius: m.Radius}
		for _, v := range verts[m.VertexOffset : m.VertexOffset+uint32(m.VertexCount)] {
			if !s.Contains(pos[v]) {
				t.Fatalf("meshlet %d sphere misses vertex %d", i, v)
			}
		}
		// A flat sheet facing +Z has a tight cone along +Z.
		if m.ConeAxis[2] < 120 || m.ConeCutoff > 2 {
			t.Errorf("meshlet %d cone = %v / %d", i, m.ConeAxis, m.ConeCutoff)
		}
	}
}

func TestMeshletConeTooWideNeverCulls(t *testing.T) {
	pos := [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	idx := []uint32{0, 1, 2, 0, 2, 1}
	meshlets, _, _ := BuildMeshlets(idx, pos, MaxMeshletVertices, MaxMeshletTriangles, 0)
	if len(meshlets) != 1 || meshlets[0].ConeCutoff != 127 {
		t.Fatalf("meshlets = %+v", meshlets)
	}
}

func cubeMesh() *loader.ImportedMesh {
	m := &loader.ImportedMesh{Name: "cube", Objects: 1}
	for i := 0; i < 8; i++ {
		m.Positions = append(m.Positions, [3]float32{float32(i&1)*2 - 1, float32(i>>1&1)*2 - 1, float32(i>>2&1)*2 - 1})
	}
	faces := [][4]int32{{0, 2, 3, 1}, {4, 5, 7, 6}, {0, 4, 6, 2}, {1, 3, 7, 5}, {0, 1, 5, 4}, {2, 6, 7, 3}}
	var corners []loader.Corner
	for _, f := range faces {
		for _, k := range []int{0, 1, 2, 0, 2, 3} {
			corners = append(corners, loader.Corner{Position: f[k], UV: -1, Normal: -1})
		}
	}
	m.Subsets = []loader.ImportedSubset{{Name: "default", Corners: corners}}
	return m
}

func TestCubeEndToEnd(t *testing.T) {
	g := NewGeometry(WithWorkers(2))
	if err := g.AddMesh(cubeMesh(), true); err != nil {
		t.Fatalf("AddMesh: %v", err)
	}
	if len(g.Vertices) != 8 || len(g.Indices) != 36 {
		t.Fatalf("%d vertices, %d indices; want 8 and 36", len(g.Vertices), len(g.Indices))
	}
	if len(g.Meshes) != 1 {
		t.Fatalf("meshes = %d", len(g.Meshes))
	}
	m := g.Meshes[0]
	if m.SubsetCount != 1 || m.Subsets[0].LodCount != 1 {
		t.Fatalf("subsets %d, lods %d", m.SubsetCount, m.Subsets[0].LodCount)
	}
	lod := m.Subsets[0].Lods[0]
	if lod.IndexCount != 36 || lod.MeshletCount != 1 || len(g.Meshlets) != 1 {
		t.Fatalf("lod = %+v, meshlets %d", lod, len(g.Meshlets))
	}
	if g.Meshlets[0].TriangleCount != 12 || g.Meshlets[0].VertexCount != 8 {
		t.Errorf("meshlet = %+v", g.Meshlets[0])
	}
	if m.Radius < 1.73 || m.Radius > 1.74 {
		t.Errorf("radius = %v, want sqrt(3)", m.Radius)
	}
}

func TestLodChainMonotonic(t *testing.T) {
	pos, idx := grid(24)
	m := &loader.ImportedMesh{Name: "sheet", Objects: 1, Positions: pos}
	var corners []loader.Corner
	for _, i := range idx {
		corners = append(corners, loader.Corner{Position: int32(i), UV: -1, Normal: -1})
	}
	m.Subsets = []loader.ImportedSubset{{Name: "default", Corners: corners}}

	g := NewGeometry(WithLodErrorBound(1e-2))
	if err := g.AddMesh(m, false); err != nil {
		t.Fatalf("AddMesh: %v", err)
	}
	sub := g.Meshes[0].Subsets[0]
	if sub.LodCount < 2 {
		t.Fatalf("lod count = %d, want a chain", sub.LodCount)
	}
	if sub.Lods[0].IndexCount != uint32(len(idx)) {
		t.Errorf("LOD 0 has %d indices, want the full %d", sub.Lods[0].IndexCount, len(idx))
	}
	for i := uint32(1); i < sub.LodCount; i++ {
		if sub.Lods[i].IndexCount > sub.Lods[i-1].IndexCount {
			t.Errorf("LOD %d grew: %d > %d", i, sub.Lods[i].IndexCount, sub.Lods[i-1].IndexCount)
		}
		if sub.Lods[i].Error < sub.Lods[i-1].Error {
			t.Errorf("LOD %d error shrank", i)
		}
	}
	if sub.Lods[0].MeshletCount != 0 || len(g.Meshlets) != 0 {
		t.Error("meshlets built without mesh shading")
	}
}

func TestAddMeshLimits(t *testing.T) {
	g := NewGeometry()
	m := cubeMesh()
	for len(m.Subsets) <= MaxMeshSubsets {
		m.Subsets = append(m.Subsets, m.Subsets[0])
	}
	if err := g.AddMesh(m, false); err == nil {
		t.Error("five subsets accepted")
	}

	m = cubeMesh()
	m.Objects = 2
	if err := g.AddMesh(m, false); err == nil {
		t.Error("two objects accepted")
	}
	if len(g.Meshes) != 0 || len(g.Vertices) != 0 {
		t.Error("rejected meshes left data behind")
	}
}

func TestMultipleSubsetsShareMeshVertices(t *testing.T) {
	g := NewGeometry()
	if err := g.AddMesh(cubeMesh(), false); err != nil {
		t.Fatal(err)
	}
	m := cubeMesh()
	m.Subsets = append(m.Subsets, m.Subsets[0])
	if err := g.AddMesh(m, false); err != nil {
		t.Fatal(err)
	}
	second := g.Meshes[1]
	if second.VertexOffset != 8 || second.VertexCount != 16 || second.SubsetCount != 2 {
		t.Fatalf("second mesh = offset %d count %d subsets %d", second.VertexOffset, second.VertexCount, second.SubsetCount)
	}
	lod := second.Subsets[1].Lods[0]
	for _, i := range g.Indices[lod.IndexOffset : lod.IndexOffset+lod.IndexCount] {
		if i < 8 || i >= 16 {
			t.Fatalf("subset 1 index %d outside its vertex range", i)
		}
	}
}

func TestLoadMesh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tri.obj")
	if err := os.WriteFile(path, []byte("v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	g := NewGeometry()
	if err := g.LoadMesh(path, false); err != nil {
		t.Fatalf("LoadMesh: %v", err)
	}
	if len(g.Vertices) != 3 || len(g.Indices) != 3 {
		t.Errorf("%d vertices, %d indices", len(g.Vertices), len(g.Indices))
	}
	if err := g.LoadMesh(filepath.Join(t.TempDir(), "missing.obj"), false); err == nil {
		t.Error("missing file accepted")
	}
}

func TestVertexLayout(t *testing.T) {
	v := quantize(sourceVertex{Position: [3]float32{1, -2, 0.5}, Normal: [3]float32{0, 0, 1}, UV: [2]float32{0.25, 1}})
	if common.DequantizeHalf(v.Position[1]) != -2 || common.DequantizeHalf(v.UV[0]) != 0.25 {
		t.Errorf("quantized vertex = %+v", v)
	}
	if v.Normal[2] != 255 || v.Normal[0] != 128 {
		t.Errorf("normal = %v", v.Normal)
	}
	if n := len(common.StructToBytes(&v)); n != 16 {
		t.Errorf("vertex size = %d, want 16", n)
	}
	var m Meshlet
	if n := len(common.StructToBytes(&m)); n != 32 {
		t.Errorf("meshlet size = %d, want 32", n)
	}
}

func TestCreateBuffers(t *testing.T) {
	dev, err := device.New(nil, device.WithMeshShading(true))
	if err != nil {
		t.Skipf("no Vulkan device: %v", err)
	}
	defer dev.Destroy()

	g := NewGeometry()
	if err := g.AddMesh(cubeMesh(), dev.MeshShadingEnabled()); err != nil {
		t.Fatal(err)
	}
	bufs, err := g.CreateBuffers(dev)
	if err != nil {
		t.Fatalf("CreateBuffers: %v", err)
	}
	defer bufs.Destroy()

	if bufs.Vertices.Size() != 8*16 || bufs.Indices.Size() != 36*4 {
		t.Errorf("sizes: vertices %d, indices %d", bufs.Vertices.Size(), bufs.Indices.Size())
	}
	if dev.MeshShadingEnabled() != (bufs.Meshlets != nil) {
		t.Error("meshlet buffers do not follow mesh shading support")
	}
}

func TestBuilderOptions(t *testing.T) {
	g := NewGeometry(WithMaxLods(20), WithLodReduction(0.5), WithConeWeight(0.75), WithWorkers(2))
	if g.maxLods != MaxMeshLods || g.lodReduction != 0.5 || g.coneWeight != 0.75 || g.workers != 2 {
		t.Fatalf("options not applied: lods %d reduction %v cone %v workers %d", g.maxLods, g.lodReduction, g.coneWeight, g.workers)
	}
	if NewGeometry(WithLodReduction(2)).lodReduction != 0.99 {
		t.Error("reduction above 1 must clamp")
	}

	pos, idx := grid(24)
	m := &loader.ImportedMesh{Name: "sheet", Objects: 1, Positions: pos}
	var corners []loader.Corner
	for _, i := range idx {
		corners = append(corners, loader.Corner{Position: int32(i), UV: -1, Normal: -1})
	}
	m.Subsets = []loader.ImportedSubset{{Name: "default", Corners: corners}}

	single := NewGeometry(WithMaxLods(1), WithLodErrorBound(1e-2))
	if err := single.AddMesh(m, false); err != nil {
		t.Fatalf("AddMesh: %v", err)
	}
	if n := single.Meshes[0].Subsets[0].LodCount; n != 1 {
		t.Errorf("lod count = %d with WithMaxLods(1)", n)
	}
}
