// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import "math"

// Extent2D is a width/height pair in pixels, used for surfaces, swapchains, and render areas.
type Extent2D struct {
	Width  uint32
	Height uint32
}

// IsZero reports whether either dimension is zero, as happens while a window is minimized.
func (e Extent2D) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

// Aspect returns Width/Height, or 1 for a zero extent.
func (e Extent2D) Aspect() float32 {
	if e.IsZero() {
		return 1
	}
	return float32(e.Width) / float32(e.Height)
}

// Sphere is a bounding sphere.
type Sphere struct {
	Center [3]float32
	Radius float32
}

// Contains reports whether point p lies inside the sphere, allowing a small relative tolerance for float error.
func (s Sphere) Contains(p [3]float32) bool {
	dx := p[0] - s.Center[0]
	dy := p[1] - s.Center[1]
	dz := p[2] - s.Center[2]
	d := float32(math.Sqrt(float64(dx*dx + dy*dy + dz*dz)))
	return d <= s.Radius*(1+1e-4)+1e-6
}
