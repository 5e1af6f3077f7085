package scene

import "github.com/cockroachdb/errors"

var (
	// ErrUnknownInstance is returned when an instance id or handle does not belong to a live instance of the scene.
	ErrUnknownInstance = errors.New("scene: unknown instance")

	// ErrUnknownPrototype is returned when a prototype was released or belongs to another scene.
	ErrUnknownPrototype = errors.New("scene: unknown prototype")

	// ErrInvalidMesh is returned when mesh arrays are empty or their lengths do not agree.
	ErrInvalidMesh = errors.New("scene: invalid mesh")

	// ErrGPUAttached is returned by AttachGPU when the scene is already mirrored to a backend.
	ErrGPUAttached = errors.New("scene: GPU already attached")
)
