package common

// SidePlanes derives the symmetric view-space side planes used by GPU culling from a projection matrix.
// The result packs the normalized X plane as (x, z) followed by the normalized Y plane as (y, z), so a
// view-space sphere is visible when center.z*p[1] - |center.x|*p[0] > -radius and likewise for Y.
//
// Parameters:
//   - proj: 16 float32 values representing the projection matrix (column-major)
//
// Returns:
//   - [4]float32: frustum X plane (x, z) and Y plane (y, z)
func SidePlanes(proj []float32) [4]float32 {
	// Row 3 + row 0 and row 3 + row 1 of the projection, in column-major layout.
	x := [3]float32{proj[3] + proj[0], proj[7] + proj[4], proj[11] + proj[8]}
	y := [3]float32{proj[3] + proj[1], proj[7] + proj[5], proj[11] + proj[9]}
	x = Normalize3(x)
	y = Normalize3(y)
	return [4]float32{x[0], x[2], y[1], y[2]}
}
