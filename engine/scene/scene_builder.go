package scene

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithName sets the scene's identifier used in logs.
//
// Parameters:
//   - name: the scene name
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithName(name string) SceneBuilderOption {
	return func(s *scene) {
		s.name = name
	}
}

// WithActive sets whether the scene is recorded.
//
// Parameters:
//   - active: whether the scene is active
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithActive(active bool) SceneBuilderOption {
	return func(s *scene) {
		s.active = active
	}
}

// WithDrawCount sets the number of draw instances. Defaults to 1000.
//
// Parameters:
//   - n: the draw count
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithDrawCount(n int) SceneBuilderOption {
	return func(s *scene) {
		s.drawCount = max(n, 0)
	}
}

// WithSeed sets the random seed of draw generation.
//
// Parameters:
//   - seed: the seed
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithSeed(seed int64) SceneBuilderOption {
	return func(s *scene) {
		s.seed = seed
	}
}

// WithSceneRadius sets the half extent of the cube draws are placed in. Defaults to DefaultSceneRadius.
//
// Parameters:
//   - radius: the half extent in world units
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithSceneRadius(radius float32) SceneBuilderOption {
	return func(s *scene) {
		s.radius = radius
	}
}

// WithLodPixelError sets how many pixels of simplification error automatic LOD selection tolerates.
//
// Parameters:
//   - pixels: the error in pixels
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithLodPixelError(pixels float32) SceneBuilderOption {
	return func(s *scene) {
		s.lodPixelError = pixels
	}
}

// WithClearColor sets the color the draw pass clears to.
//
// Parameters:
//   - r, g, b, a: the clear color
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithClearColor(r, g, b, a float32) SceneBuilderOption {
	return func(s *scene) {
		s.clearColor = [4]float32{r, g, b, a}
	}
}

// WithComputeWorkers sets the number of worker goroutines draw generation runs on.
// Defaults to runtime.NumCPU()-1.
//
// Parameters:
//   - n: the number of compute workers (minimum 1)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithComputeWorkers(n int) SceneBuilderOption {
	return func(s *scene) {
		if n < 1 {
			n = 1
		}
		s.computeWorkers = n
	}
}
