package scene

import (
	"math"
	"math/rand"
	"sync"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/geometry"
)

// drawChunkSize is the number of draws one task generates. Chunks are seeded by index, so the output does not
// depend on how many workers run them.
const drawChunkSize = 1024

// DefaultSceneRadius returns the half extent of the cube draws are scattered in, growing with the draw count so
// density stays roughly constant.
//
// Parameters:
//   - n: the draw count
//
// Returns:
//   - float32: the half extent in world units
func DefaultSceneRadius(n int) float32 {
	return float32(math.Cbrt(float64(max(n, 1)))) * 4
}

// GenerateDraws creates n draw instances scattered in a cube of half extent radius, with a random uniform scale in
// [1, 2) and a random orientation. Draw i uses mesh i % len(meshes).
//
// Parameters:
//   - pool: the worker pool the chunks run on
//   - n: the draw count
//   - meshes: the loaded meshes; must not be empty when n > 0
//   - seed: the random seed; equal seeds give equal output
//   - radius: the half extent of the placement cube
//
// Returns:
//   - []PerDrawData: the draws in index order
func GenerateDraws(pool worker.DynamicWorkerPool, n int, meshes []geometry.Mesh, seed int64, radius float32) []PerDrawData {
	if n <= 0 {
		return nil
	}
	if len(meshes) == 0 {
		panic("scene: draws requested without meshes")
	}

	draws := make([]PerDrawData, n)
	var wg sync.WaitGroup
	for start := 0; start < n; start += drawChunkSize {
		wg.Add(1)
		chunk := start / drawChunkSize
		lo, hi := start, min(start+drawChunkSize, n)
		pool.SubmitTask(worker.Task{
			ID: chunk,
			Do: func() (any, error) {
				defer wg.Done()
				rng := rand.New(rand.NewSource(seed + int64(chunk)))
				for i := lo; i < hi; i++ {
					draws[i] = randomDraw(rng, radius)
					mi := i % len(meshes)
					draws[i].MeshIndex = uint32(mi)
					draws[i].VertexOffset = meshes[mi].VertexOffset
				}
				return nil, nil
			},
		})
	}
	wg.Wait()

	// Meshlet visibility is a prefix sum, so it runs after every chunk is done.
	var offset uint32
	for i := range draws {
		draws[i].MeshletVisibilityOffset = offset
		offset += meshletCapacity(&meshes[draws[i].MeshIndex])
	}
	return draws
}

func randomDraw(rng *rand.Rand, radius float32) PerDrawData {
	d := PerDrawData{
		Position: [3]float32{
			(rng.Float32()*2 - 1) * radius,
			(rng.Float32()*2 - 1) * radius,
			(rng.Float32()*2 - 1) * radius,
		},
		Scale: 1 + rng.Float32(),
	}
	axis := [3]float32{rng.Float32()*2 - 1, rng.Float32()*2 - 1, rng.Float32()*2 - 1}
	d.Orientation = common.QuatFromAxisAngle(axis, rng.Float32()*2*math.Pi)
	return d
}

// meshletCapacity is the number of meshlet visibility bits one draw of m needs: the level 0 meshlets of every subset.
func meshletCapacity(m *geometry.Mesh) uint32 {
	var n uint32
	for s := range m.SubsetCount {
		n += m.Subsets[s].Lods[0].MeshletCount
	}
	return n
}

// meshletVisibilityWords returns the uint32 words the meshlet visibility bits of draws need.
func meshletVisibilityWords(draws []PerDrawData, meshes []geometry.Mesh) uint64 {
	if len(draws) == 0 {
		return 0
	}
	last := draws[len(draws)-1]
	bits := uint64(last.MeshletVisibilityOffset) + uint64(meshletCapacity(&meshes[last.MeshIndex]))
	return (bits + 31) / 32
}
