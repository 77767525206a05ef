package geometry

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

// OptimizeOverdraw reorders clusters of a cache-optimized index buffer so outward-facing, outlying clusters draw
// first, while keeping vertex cache efficiency within threshold of the input's. Clusters split where the cache
// restarts and again wherever the running miss ratio drops to threshold times the cluster's own ratio.
//
// Parameters:
//   - indices: a cache-optimized index buffer
//   - positions: vertex positions
//   - cacheSize: the modeled cache size
//   - threshold: the allowed cache efficiency loss, such as 1.05
//
// Returns:
//   - []uint32: the reordered indices, with the same triangles and windings
func OptimizeOverdraw(indices []uint32, positions [][3]float32, cacheSize int, threshold float32) []uint32 {
	triCount := len(indices) / 3
	if triCount < 2 {
		return append([]uint32(nil), indices...)
	}

	sim := newCacheSim(len(positions), cacheSize)
	hard := hardBoundaries(indices, sim)
	clusters := softBoundaries(indices, hard, sim, threshold)

	keys := clusterKeys(indices, positions, clusters)
	order := make([]int, len(clusters))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return keys[order[a]] > keys[order[b]]
	})

	out := make([]uint32, 0, len(indices))
	for _, c := range order {
		start := clusters[c]
		end := triCount
		if c+1 < len(clusters) {
			end = clusters[c+1]
		}
		out = append(out, indices[start*3:end*3]...)
	}
	return out
}

// hardBoundaries returns the triangles that start a cluster: the first, and any whose three vertices all miss.
func hardBoundaries(indices []uint32, sim *cacheSim) []int {
	bounds := []int{0}
	sim.flush()
	for t := 0; t < len(indices)/3; t++ {
		misses := sim.triangle(indices[t*3], indices[t*3+1], indices[t*3+2])
		if t > 0 && misses == 3 {
			bounds = append(bounds, t)
		}
	}
	return bounds
}

func softBoundaries(indices []uint32, hard []int, sim *cacheSim, threshold float32) []int {
	triCount := len(indices) / 3
	var out []int
	for h, start := range hard {
		end := triCount
		if h+1 < len(hard) {
			end = hard[h+1]
		}

		sim.flush()
		misses := 0
		for t := start; t < end; t++ {
			misses += sim.triangle(indices[t*3], indices[t*3+1], indices[t*3+2])
		}
		target := threshold * float32(misses) / float32(end-start)

		out = append(out, start)
		clusterStart := len(out) - 1
		sim.flush()
		running, faces := 0, 0
		for t := start; t < end; t++ {
			running += sim.triangle(indices[t*3], indices[t*3+1], indices[t*3+2])
			faces++
			if float32(running)/float32(faces) <= target && t+1 < end {
				out = append(out, t+1)
				sim.flush()
				running, faces = 0, 0
			}
		}
		// The tail never reached the target; fold it into the previous split of this hard cluster.
		if faces > 0 && len(out)-1 > clusterStart {
			out = out[:len(out)-1]
		}
	}
	return out
}

// clusterKeys scores each cluster by how far its area-weighted centroid lies along its average normal, measured
// from the mesh centroid.
func clusterKeys(indices []uint32, positions [][3]float32, clusters []int) []float32 {
	triCount := len(indices) / 3
	var meshCenter mgl32.Vec3
	var meshArea float32

	type acc struct {
		center mgl32.Vec3
		normal mgl32.Vec3
		area   float32
	}
	accs := make([]acc, len(clusters))
	for c, start := range clusters {
		end := triCount
		if c+1 < len(clusters) {
			end = clusters[c+1]
		}
		for t := start; t < end; t++ {
			a := mgl32.Vec3(positions[indices[t*3]])
			b := mgl32.Vec3(positions[indices[t*3+1]])
			d := mgl32.Vec3(positions[indices[t*3+2]])
			n := b.Sub(a).Cross(d.Sub(a))
			area := n.Len()
			centroid := a.Add(b).Add(d).Mul(1.0 / 3.0)

			accs[c].center = accs[c].center.Add(centroid.Mul(area))
			accs[c].normal = accs[c].normal.Add(n)
			accs[c].area += area
			meshCenter = meshCenter.Add(centroid.Mul(area))
			meshArea += area
		}
	}
	if meshArea > 0 {
		meshCenter = meshCenter.Mul(1 / meshArea)
	}

	keys := make([]float32, len(clusters))
	for c, a := range accs {
		if a.area == 0 || a.normal.Len() == 0 {
			continue
		}
		center := a.center.Mul(1 / a.area)
		keys[c] = center.Sub(meshCenter).Dot(a.normal.Normalize())
	}
	return keys
}
