package device

// DeviceBuilderOption is a functional option applied to a device during construction via New.
type DeviceBuilderOption func(*device)

// WithValidationLayers enables or disables the Khronos validation layer and the debug report callback.
// When not specified, the default follows the debug build tag (DefaultValidation).
//
// Parameters:
//   - enabled: true to request validation
//
// Returns:
//   - DeviceBuilderOption: a function that applies the validation option to a device
func WithValidationLayers(enabled bool) DeviceBuilderOption {
	return func(d *device) {
		d.validation = enabled
	}
}

// WithMeshShading requests task/mesh shader support. The request is honored only when the selected adapter
// exposes VK_EXT_mesh_shader; check MeshShadingEnabled after construction.
//
// Parameters:
//   - enabled: true to request mesh shading
//
// Returns:
//   - DeviceBuilderOption: a function that applies the mesh shading option to a device
func WithMeshShading(enabled bool) DeviceBuilderOption {
	return func(d *device) {
		d.meshShadingRequested = enabled
	}
}

// WithApplicationName sets the application name reported to the driver.
//
// Parameters:
//   - name: the application name
//
// Returns:
//   - DeviceBuilderOption: a function that applies the name option to a device
func WithApplicationName(name string) DeviceBuilderOption {
	return func(d *device) {
		d.appName = name
	}
}

// WithMemoryBlockSize overrides the size of the memory blocks the allocator sub-allocates from.
//
// Parameters:
//   - size: block size in bytes
//
// Returns:
//   - DeviceBuilderOption: a function that applies the block size option to a device
func WithMemoryBlockSize(size uint64) DeviceBuilderOption {
	return func(d *device) {
		d.blockSize = size
	}
}
