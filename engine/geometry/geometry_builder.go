package geometry

import (
	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/loader"
)

// GeometryBuilderOption is a functional option applied to a Geometry during construction via NewGeometry.
type GeometryBuilderOption func(*Geometry)

// WithMaxLods caps the LOD chain length. Values are clamped to [1, MaxMeshLods].
//
// Parameters:
//   - n: the maximum number of LODs per subset
//
// Returns:
//   - GeometryBuilderOption: a function that applies the LOD cap to a Geometry
func WithMaxLods(n int) GeometryBuilderOption {
	return func(g *Geometry) {
		g.maxLods = common.Clamp(n, 1, MaxMeshLods)
	}
}

// WithLodReduction sets the index count ratio each LOD aims for relative to the previous one.
//
// Parameters:
//   - ratio: a value in (0, 1); the default is 0.6
//
// Returns:
//   - GeometryBuilderOption: a function that applies the reduction ratio to a Geometry
func WithLodReduction(ratio float32) GeometryBuilderOption {
	return func(g *Geometry) {
		g.lodReduction = common.Clamp(ratio, 0.01, 0.99)
	}
}

// WithLodErrorBound sets the largest deviation, in mesh units, a LOD may introduce.
//
// Parameters:
//   - bound: the absolute error bound
//
// Returns:
//   - GeometryBuilderOption: a function that applies the error bound to a Geometry
func WithLodErrorBound(bound float32) GeometryBuilderOption {
	return func(g *Geometry) {
		g.lodError = bound
	}
}

// WithConeWeight sets how strongly meshlet building favors triangles facing the same way.
//
// Parameters:
//   - weight: 0 ignores normals; the default is 0.25
//
// Returns:
//   - GeometryBuilderOption: a function that applies the cone weight to a Geometry
func WithConeWeight(weight float32) GeometryBuilderOption {
	return func(g *Geometry) {
		g.coneWeight = weight
	}
}

// WithWorkers sets how many subsets are processed in parallel.
//
// Parameters:
//   - n: the worker count; the default is the number of CPUs
//
// Returns:
//   - GeometryBuilderOption: a function that applies the worker count to a Geometry
func WithWorkers(n int) GeometryBuilderOption {
	return func(g *Geometry) {
		g.workers = n
	}
}

// WithLoader shares a mesh loader and its cache.
//
// Parameters:
//   - l: the loader LoadMesh reads through
//
// Returns:
//   - GeometryBuilderOption: a function that applies the loader to a Geometry
func WithLoader(l loader.Loader) GeometryBuilderOption {
	return func(g *Geometry) {
		g.loader = l
	}
}
