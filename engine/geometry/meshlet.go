package geometry

import (
	"math"

	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/go-gl/mathgl/mgl32"
)

// meshletBuilder is the meshlet being filled.
type meshletBuilder struct {
	local     map[uint32]uint8
	vertices  []uint32
	triangles []uint8
	normal    mgl32.Vec3
}

func (b *meshletBuilder) reset() {
	clear(b.local)
	b.vertices = b.vertices[:0]
	b.triangles = b.triangles[:0]
	b.normal = mgl32.Vec3{}
}

// newVertices counts how many of a triangle's vertices the meshlet does not hold yet.
func (b *meshletBuilder) newVertices(a, c, d uint32) int {
	n := 0
	for _, v := range [3]uint32{a, c, d} {
		if _, ok := b.local[v]; !ok {
			n++
		}
	}
	return n
}

// BuildMeshlets partitions triangles into meshlets of at most maxVertices vertices and maxTriangles triangles.
// Each meshlet grows greedily through triangles that share vertices with it, preferring ones that add the fewest
// vertices and, weighted by coneWeight, ones facing along the meshlet's average normal. When nothing adjacent
// remains, the next unused triangle in index order seeds further growth. Every triangle lands in exactly one
// meshlet.
//
// Parameters:
//   - indices: the index buffer
//   - positions: vertex positions, used for normals and bounds
//   - maxVertices, maxTriangles: per-meshlet limits
//   - coneWeight: how strongly normal agreement influences the choice, 0 to ignore it
//
// Returns:
//   - []Meshlet: meshlets with bounds; offsets index the two returned arrays
//   - []uint32: meshlet vertex lists, indices into positions
//   - []uint8: local index triples, each meshlet's run padded to a multiple of 4 bytes
func BuildMeshlets(indices []uint32, positions [][3]float32, maxVertices, maxTriangles int, coneWeight float32) ([]Meshlet, []uint32, []uint8) {
	triCount := len(indices) / 3
	if triCount == 0 {
		return nil, nil, nil
	}
	adj := buildAdjacency(indices, len(positions))
	used := make([]bool, triCount)
	normals := make([]mgl32.Vec3, triCount)
	for t := range normals {
		n := triangleNormal(positions[indices[t*3]], positions[indices[t*3+1]], positions[indices[t*3+2]])
		if n.Len() > 0 {
			normals[t] = n.Normalize()
		}
	}

	var (
		meshlets  []Meshlet
		vertices  []uint32
		triangles []uint8
	)
	b := &meshletBuilder{local: make(map[uint32]uint8, maxVertices)}

	flush := func() {
		if len(b.triangles) == 0 {
			return
		}
		m := Meshlet{
			VertexOffset:   uint32(len(vertices)),
			TriangleOffset: uint32(len(triangles)),
			VertexCount:    uint8(len(b.vertices)),
			TriangleCount:  uint8(len(b.triangles) / 3),
		}
		setMeshletBounds(&m, b.vertices, b.triangles, positions)
		meshlets = append(meshlets, m)
		vertices = append(vertices, b.vertices...)
		triangles = append(triangles, b.triangles...)
		for len(triangles)%4 != 0 {
			triangles = append(triangles, 0)
		}
		b.reset()
	}

	add := func(t int) {
		used[t] = true
		for k := 0; k < 3; k++ {
			v := indices[t*3+k]
			l, ok := b.local[v]
			if !ok {
				l = uint8(len(b.vertices))
				b.local[v] = l
				b.vertices = append(b.vertices, v)
			}
			b.triangles = append(b.triangles, l)
		}
		b.normal = b.normal.Add(normals[t])
	}

	cursor := 0
	for {
		best := -1
		var bestScore float32
		if len(b.vertices) > 0 {
			axis := b.normal
			if axis.Len() > 0 {
				axis = axis.Normalize()
			}
			for _, v := range b.vertices {
				for _, t32 := range adj.triangles(v) {
					t := int(t32)
					if used[t] {
						continue
					}
					extra := b.newVertices(indices[t*3], indices[t*3+1], indices[t*3+2])
					if len(b.vertices)+extra > maxVertices {
						continue
					}
					score := float32(extra) + coneWeight*(1-axis.Dot(normals[t]))
					if best < 0 || score < bestScore || (score == bestScore && t < best) {
						best, bestScore = t, score
					}
				}
			}
		}

		if best < 0 {
			for cursor < triCount && used[cursor] {
				cursor++
			}
			if cursor == triCount {
				break
			}
			best = cursor
			if len(b.vertices)+b.newVertices(indices[best*3], indices[best*3+1], indices[best*3+2]) > maxVertices {
				flush()
			}
		}

		add(best)
		if len(b.triangles)/3 >= maxTriangles || len(b.vertices) >= maxVertices {
			flush()
		}
	}
	flush()
	return meshlets, vertices, triangles
}

// setMeshletBounds fills the bounding sphere and normal cone. The sphere is centered on the vertex centroid and
// contains every vertex. A cone wider than a hemisphere is stored as axis 0 with cutoff 127, which never culls.
func setMeshletBounds(m *Meshlet, vertices []uint32, local []uint8, positions [][3]float32) {
	pts := make([][3]float32, len(vertices))
	for i, v := range vertices {
		pts[i] = positions[v]
	}
	sphere := MeshBounds(pts)
	m.Center = sphere.Center
	m.Radius = sphere.Radius

	var axis mgl32.Vec3
	normals := make([]mgl32.Vec3, 0, len(local)/3)
	for t := 0; t+2 < len(local); t += 3 {
		n := triangleNormal(pts[local[t]], pts[local[t+1]], pts[local[t+2]])
		if n.Len() == 0 {
			continue
		}
		n = n.Normalize()
		normals = append(normals, n)
		axis = axis.Add(n)
	}
	if len(normals) == 0 || axis.Len() == 0 {
		m.ConeCutoff = 127
		return
	}
	axis = axis.Normalize()

	minDot := float32(1)
	for _, n := range normals {
		minDot = min(minDot, n.Dot(axis))
	}
	if minDot <= 0 {
		m.ConeCutoff = 127
		return
	}

	// Cutoff is the sine of the cone's half-angle, rounded up after quantization so culling stays conservative.
	cutoff := float32(math.Sqrt(float64(1 - minDot*minDot)))
	m.ConeAxis = [3]int8{common.QuantizeSnorm8(axis[0]), common.QuantizeSnorm8(axis[1]), common.QuantizeSnorm8(axis[2])}
	m.ConeCutoff = int8(common.Clamp(int(cutoff*127)+1, -127, 127))
}
