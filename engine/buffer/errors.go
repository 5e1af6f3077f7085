package buffer

import "github.com/cockroachdb/errors"

var (
	// ErrUnknownView is returned when a view is not registered with the manager it is used against.
	ErrUnknownView = errors.New("buffer: unknown view")
	// ErrTypeMismatch is returned when dynamically typed data does not match the manager's element type.
	ErrTypeMismatch = errors.New("buffer: type mismatch")
	// ErrCapacity is returned when a size computation overflows or exceeds the configured maximum.
	ErrCapacity = errors.New("buffer: capacity exceeded")
	// ErrIndexOutOfRange is returned by view accessors for indices outside the view.
	ErrIndexOutOfRange = errors.New("buffer: index out of range")
	// ErrMirrorBound is returned when binding a mirror to a manager that already has one.
	ErrMirrorBound = errors.New("buffer: mirror already bound")
)
