package geometry

// OptimizeVertexCache reorders triangles for a post-transform vertex cache of the given size using Tipsify
// (Sander, Nehab and Barczak, 2007). The triangle set and each triangle's winding are preserved.
//
// Parameters:
//   - indices: the index buffer, three per triangle
//   - vertexCount: the number of vertices indices refer to
//   - cacheSize: the modeled cache size
//
// Returns:
//   - []uint32: the reordered indices
func OptimizeVertexCache(indices []uint32, vertexCount int, cacheSize int) []uint32 {
	triCount := len(indices) / 3
	out := make([]uint32, 0, triCount*3)
	if triCount == 0 {
		return out
	}

	adj := buildAdjacency(indices, vertexCount)
	live := make([]int, vertexCount)
	for v := range live {
		live[v] = int(adj.offsets[v+1] - adj.offsets[v])
	}
	stamp := make([]int, vertexCount)
	emitted := make([]bool, triCount)
	deadEnd := make([]uint32, 0, len(indices))

	clock := cacheSize + 1
	cursor := 0
	f := int(indices[0])
	candidates := make([]uint32, 0, 64)

	for f >= 0 {
		candidates = candidates[:0]
		for _, t := range adj.triangles(uint32(f)) {
			if emitted[t] {
				continue
			}
			emitted[t] = true
			for k := 0; k < 3; k++ {
				v := indices[t*3+uint32(k)]
				out = append(out, v)
				deadEnd = append(deadEnd, v)
				candidates = append(candidates, v)
				live[v]--
				if clock-stamp[v] > cacheSize {
					stamp[v] = clock
					clock++
				}
			}
		}

		f = -1
		best := -1
		for _, v := range candidates {
			if live[v] <= 0 {
				continue
			}
			p := 0
			if clock-stamp[v]+2*live[v] <= cacheSize {
				p = clock - stamp[v]
			}
			if p > best {
				best = p
				f = int(v)
			}
		}
		if f >= 0 {
			continue
		}

		// Dead end: try recently used vertices first, then scan forward for any with live triangles.
		for len(deadEnd) > 0 {
			v := deadEnd[len(deadEnd)-1]
			deadEnd = deadEnd[:len(deadEnd)-1]
			if live[v] > 0 {
				f = int(v)
				break
			}
		}
		if f >= 0 {
			continue
		}
		for cursor < vertexCount {
			if live[cursor] > 0 {
				f = cursor
				break
			}
			cursor++
		}
	}
	return out
}

// adjacency lists the triangles incident to each vertex in CSR form.
type adjacency struct {
	offsets []uint32
	data    []uint32
}

func buildAdjacency(indices []uint32, vertexCount int) adjacency {
	counts := make([]uint32, vertexCount+1)
	for _, v := range indices {
		counts[v+1]++
	}
	for i := 1; i <= vertexCount; i++ {
		counts[i] += counts[i-1]
	}
	data := make([]uint32, len(indices))
	fill := append([]uint32(nil), counts[:vertexCount]...)
	for i, v := range indices {
		data[fill[v]] = uint32(i / 3)
		fill[v]++
	}
	return adjacency{offsets: counts, data: data}
}

func (a adjacency) triangles(v uint32) []uint32 {
	return a.data[a.offsets[v]:a.offsets[v+1]]
}

// cacheSim models a FIFO post-transform cache with timestamps.
type cacheSim struct {
	stamp []int
	time  int
	size  int
}

func newCacheSim(vertexCount, size int) *cacheSim {
	return &cacheSim{stamp: make([]int, vertexCount), time: size + 1, size: size}
}

// flush empties the cache.
func (c *cacheSim) flush() {
	c.time += c.size + 1
}

// triangle feeds one triangle through the cache and returns its miss count.
func (c *cacheSim) triangle(a, b, d uint32) int {
	misses := 0
	for _, v := range [3]uint32{a, b, d} {
		if c.time-c.stamp[v] > c.size {
			c.stamp[v] = c.time
			c.time++
			misses++
		}
	}
	return misses
}

// ACMR returns the average cache miss ratio (transformed vertices per triangle) of an index buffer.
//
// Parameters:
//   - indices: the index buffer
//   - vertexCount: the number of vertices indices refer to
//   - cacheSize: the modeled cache size
//
// Returns:
//   - float32: misses per triangle, between 0.5 for ideal grids and 3
func ACMR(indices []uint32, vertexCount, cacheSize int) float32 {
	if len(indices) < 3 {
		return 0
	}
	sim := newCacheSim(vertexCount, cacheSize)
	misses := 0
	for t := 0; t+2 < len(indices); t += 3 {
		misses += sim.triangle(indices[t], indices[t+1], indices[t+2])
	}
	return float32(misses) / float32(len(indices)/3)
}
