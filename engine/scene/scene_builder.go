package scene

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithName sets the scene's name, used in logs and as a prefix of its buffer labels.
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

// WithActive sets whether the engine commits the scene each frame.
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

// WithBuildWorkers sets the number of worker goroutines LoadPrototypes builds triangle BVHs on.
// Overrides the configuration's BuildWorkers.
//
// Parameters:
//   - n: the number of build workers (minimum 1)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithBuildWorkers(n int) SceneBuilderOption {
	return func(s *scene) {
		s.cfg.BuildWorkers = max(n, 1)
	}
}

// WithMaxTraversalDepth sets the traversal stack limit used by NearestHit and Pick.
// Overrides the configuration's MaxTraversalDepth.
//
// Parameters:
//   - depth: the stack limit (minimum 1)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithMaxTraversalDepth(depth int) SceneBuilderOption {
	return func(s *scene) {
		s.cfg.MaxTraversalDepth = max(depth, 1)
	}
}
