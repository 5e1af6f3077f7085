package bvh

import "github.com/cockroachdb/errors"

var (
	// ErrDegenerateGeometry is returned when build input contains non-finite coordinates.
	ErrDegenerateGeometry = errors.New("bvh: degenerate geometry")
	// ErrUnknownID is returned when an id is not present in a dynamic tree.
	ErrUnknownID = errors.New("bvh: unknown id")
	// ErrDuplicateID is returned when an id is inserted twice into a dynamic tree.
	ErrDuplicateID = errors.New("bvh: duplicate id")
)
