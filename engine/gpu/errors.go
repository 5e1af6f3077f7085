package gpu

import "github.com/cockroachdb/errors"

var (
	// ErrResourceCreation is returned when the backend fails to create a buffer or texture.
	ErrResourceCreation = errors.New("gpu: resource creation failed")
	// ErrUnsupportedFormat is returned when a texture-array mirror is created over a non 16-bit element type.
	ErrUnsupportedFormat = errors.New("gpu: unsupported element format")
	// ErrReleased is returned when a destroyed mirror or resource is used.
	ErrReleased = errors.New("gpu: resource released")
	// ErrForeignResource is returned when a resource is passed to a backend that did not create it.
	ErrForeignResource = errors.New("gpu: resource belongs to another backend")
)
