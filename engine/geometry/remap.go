package geometry

import (
	"github.com/Carmen-Shannon/oxy-vk/common"
)

// Unused marks a vertex that no index references in a remap table.
const Unused = ^uint32(0)

// GenerateVertexRemap welds vertices whose bytes are identical. New indices are assigned in order of first
// reference.
//
// Parameters:
//   - indices: the index buffer, or nil when every vertex is referenced once in order
//   - vertices: the vertex buffer; V must not contain pointers or padding with undefined contents
//
// Returns:
//   - []uint32: for each input vertex its new index, or Unused when no index references it
//   - int: the number of unique vertices
func GenerateVertexRemap[V any](indices []uint32, vertices []V) ([]uint32, int) {
	remap := make([]uint32, len(vertices))
	for i := range remap {
		remap[i] = Unused
	}
	seen := make(map[string]uint32, len(vertices))
	next := uint32(0)

	visit := func(v uint32) {
		if remap[v] != Unused {
			return
		}
		key := string(common.StructToBytes(&vertices[v]))
		if idx, ok := seen[key]; ok {
			remap[v] = idx
			return
		}
		seen[key] = next
		remap[v] = next
		next++
	}

	if indices == nil {
		for i := range vertices {
			visit(uint32(i))
		}
	} else {
		for _, i := range indices {
			visit(i)
		}
	}
	return remap, int(next)
}

// RemapIndexBuffer rewrites an index buffer through a remap table.
//
// Parameters:
//   - indices: the index buffer, or nil for the identity sequence of length count
//   - count: the index count used when indices is nil
//   - remap: the table from GenerateVertexRemap
//
// Returns:
//   - []uint32: the rewritten indices
func RemapIndexBuffer(indices []uint32, count int, remap []uint32) []uint32 {
	if indices == nil {
		out := make([]uint32, count)
		for i := range out {
			out[i] = remap[i]
		}
		return out
	}
	out := make([]uint32, len(indices))
	for i, idx := range indices {
		out[i] = remap[idx]
	}
	return out
}

// RemapVertexBuffer builds the welded vertex buffer.
//
// Parameters:
//   - vertices: the original vertices
//   - unique: the unique count from GenerateVertexRemap
//   - remap: the table from GenerateVertexRemap
//
// Returns:
//   - []V: unique vertices in their new order
func RemapVertexBuffer[V any](vertices []V, unique int, remap []uint32) []V {
	out := make([]V, unique)
	for i, r := range remap {
		if r != Unused {
			out[r] = vertices[i]
		}
	}
	return out
}

// OptimizeVertexFetch reorders vertices into first-use order so the vertex fetch walks memory forward.
// Unreferenced vertices are dropped.
//
// Parameters:
//   - indices: the index buffer
//   - vertices: the vertex buffer
//
// Returns:
//   - []uint32: the rewritten indices
//   - []V: the reordered vertices
func OptimizeVertexFetch[V any](indices []uint32, vertices []V) ([]uint32, []V) {
	remap := make([]uint32, len(vertices))
	for i := range remap {
		remap[i] = Unused
	}
	out := make([]V, 0, len(vertices))
	newIndices := make([]uint32, len(indices))
	for i, idx := range indices {
		if remap[idx] == Unused {
			remap[idx] = uint32(len(out))
			out = append(out, vertices[idx])
		}
		newIndices[i] = remap[idx]
	}
	return newIndices, out
}
