package gui

import (
	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/geometry"
)

// AutoLod is the ForcedLod value that lets the culling shader pick the level from screen-space error.
const AutoLod = -1

// Settings are the runtime toggles shown by the overlay and read by the scene each frame.
type Settings struct {
	// Culling enables frustum and cone culling in the culling pass.
	Culling bool
	// Lod enables error-driven level selection. When off, every draw uses level 0.
	Lod bool
	// ForcedLod pins every draw to one level, or AutoLod.
	ForcedLod int
	// MeshShading selects the task/mesh draw path.
	MeshShading bool
	// MeshShadingAvailable is whether the device supports mesh shading. MeshShading is never set without it.
	MeshShadingAvailable bool
}

// DefaultSettings returns culling and LOD enabled, automatic level selection, and mesh shading when available.
//
// Parameters:
//   - meshShadingAvailable: whether the device supports mesh shading
//
// Returns:
//   - Settings: the initial toggles
func DefaultSettings(meshShadingAvailable bool) Settings {
	return Settings{
		Culling:              true,
		Lod:                  true,
		ForcedLod:            AutoLod,
		MeshShading:          meshShadingAvailable,
		MeshShadingAvailable: meshShadingAvailable,
	}
}

// HandleKey applies the function-key toggles: F1 culling, F2 LOD, F3 cycles the forced level, F4 mesh shading.
//
// Parameters:
//   - key: the pressed key code
//
// Returns:
//   - bool: true when the key changed a setting
func (s *Settings) HandleKey(key uint32) bool {
	switch key {
	case common.KeyF1:
		s.Culling = !s.Culling
	case common.KeyF2:
		s.Lod = !s.Lod
	case common.KeyF3:
		s.ForcedLod++
		if s.ForcedLod >= geometry.MaxMeshLods {
			s.ForcedLod = AutoLod
		}
	case common.KeyF4:
		if !s.MeshShadingAvailable {
			return false
		}
		s.MeshShading = !s.MeshShading
	default:
		return false
	}
	return true
}
