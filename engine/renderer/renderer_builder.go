package renderer

import (
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/pipeline"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithPipeline queues a single Pipeline to be built and cached under its key once the device exists.
//
// Parameters:
//   - p: the Pipeline to build and cache
//
// Returns:
//   - RendererBuilderOption: a function that applies the pipeline option to a renderer
func WithPipeline(p pipeline.Pipeline) RendererBuilderOption {
	return func(r *renderer) {
		r.pending = append(r.pending, p)
	}
}

// WithPipelines queues several Pipelines to be built and cached once the device exists.
//
// Parameters:
//   - pipelines: the Pipelines to build and cache
//
// Returns:
//   - RendererBuilderOption: a function that applies the pipelines option to a renderer
func WithPipelines(pipelines ...pipeline.Pipeline) RendererBuilderOption {
	return func(r *renderer) {
		r.pending = append(r.pending, pipelines...)
	}
}

// WithPresentMode sets the surface present mode which controls how frames are delivered to the display.
//
// Parameters:
//   - mode: the PresentMode to use (VSync or Uncapped)
//
// Returns:
//   - RendererBuilderOption: a function that applies the present mode option to a renderer
func WithPresentMode(mode PresentMode) RendererBuilderOption {
	return func(r *renderer) {
		r.presentMode = mode
	}
}

// WithValidationLayers enables or disables the validation layer on the device.
// When not specified, validation follows the debug build tag.
//
// Parameters:
//   - enabled: true to request validation
//
// Returns:
//   - RendererBuilderOption: a function that applies the validation option to a renderer
func WithValidationLayers(enabled bool) RendererBuilderOption {
	return func(r *renderer) {
		r.deviceOptions = append(r.deviceOptions, device.WithValidationLayers(enabled))
	}
}

// WithMeshShading requests task/mesh shading. The device enables it only when the adapter supports it.
//
// Parameters:
//   - enabled: true to request mesh shading
//
// Returns:
//   - RendererBuilderOption: a function that applies the mesh shading option to a renderer
func WithMeshShading(enabled bool) RendererBuilderOption {
	return func(r *renderer) {
		r.deviceOptions = append(r.deviceOptions, device.WithMeshShading(enabled))
	}
}

// WithDeviceOptions forwards arbitrary device options, such as the application name or memory block size.
//
// Parameters:
//   - opts: the device options to apply
//
// Returns:
//   - RendererBuilderOption: a function that applies the device options to a renderer
func WithDeviceOptions(opts ...device.DeviceBuilderOption) RendererBuilderOption {
	return func(r *renderer) {
		r.deviceOptions = append(r.deviceOptions, opts...)
	}
}
