package buffer

import (
	"slices"

	"github.com/cockroachdb/errors"
)

// View is a handle onto a sub-range of a BufferManager's backing store.
// The manager rebases live views in place when earlier views are freed or the store is reallocated,
// so holders of a *View always address their own elements. Views cannot be moved or resized from outside the manager.
type View[T Element] struct {
	manager *bufferManager[T]
	offset  int
	length  int
}

// Live reports whether the view is still registered with its manager.
func (v *View[T]) Live() bool {
	return v != nil && v.manager != nil
}

// Len returns the number of elements in the view.
func (v *View[T]) Len() int {
	return v.length
}

// Offset returns the element offset of the view within the backing store.
// This is the value GPU-side tables store to address the view.
func (v *View[T]) Offset() int {
	return v.offset
}

// ByteOffset returns the byte offset of the view within the backing store.
func (v *View[T]) ByteOffset() int {
	return v.offset * elementSize[T]()
}

// ByteLength returns the length of the view in bytes.
func (v *View[T]) ByteLength() int {
	return v.length * elementSize[T]()
}

// At returns the element at index i.
//
// Parameters:
//   - i: index relative to the start of the view
//
// Returns:
//   - T: the element
//   - error: ErrUnknownView if the view was freed, ErrIndexOutOfRange if i is outside the view
func (v *View[T]) At(i int) (T, error) {
	var zero T
	if err := v.check(i, i+1); err != nil {
		return zero, err
	}
	return v.manager.data[v.offset+i], nil
}

// Set writes the element at index i. Call BufferManager.Flush to push the change to a bound mirror.
//
// Parameters:
//   - i: index relative to the start of the view
//   - value: the element to store
//
// Returns:
//   - error: ErrUnknownView if the view was freed, ErrIndexOutOfRange if i is outside the view
func (v *View[T]) Set(i int, value T) error {
	if err := v.check(i, i+1); err != nil {
		return err
	}
	v.manager.data[v.offset+i] = value
	return nil
}

// Write copies src into the view starting at index start.
//
// Parameters:
//   - start: first index to write
//   - src: the elements to write
//
// Returns:
//   - error: ErrUnknownView if the view was freed, ErrIndexOutOfRange if src does not fit
func (v *View[T]) Write(start int, src []T) error {
	if err := v.check(start, start+len(src)); err != nil {
		return err
	}
	copy(v.manager.data[v.offset+start:], src)
	return nil
}

// Range returns the elements [start, end) of the view, aliasing the backing store.
// The returned slice is invalidated by the next mutation of the manager.
//
// Parameters:
//   - start: first index, inclusive
//   - end: last index, exclusive
//
// Returns:
//   - []T: the aliased elements
//   - error: ErrUnknownView if the view was freed, ErrIndexOutOfRange if the range is invalid
func (v *View[T]) Range(start, end int) ([]T, error) {
	if err := v.check(start, end); err != nil {
		return nil, err
	}
	return v.manager.data[v.offset+start : v.offset+end : v.offset+end], nil
}

// Slice returns all elements of the view, aliasing the backing store, or nil if the view was freed.
func (v *View[T]) Slice() []T {
	if !v.Live() {
		return nil
	}
	end := v.offset + v.length
	return v.manager.data[v.offset:end:end]
}

// Copy returns a copy of the view's elements, or nil if the view was freed.
func (v *View[T]) Copy() []T {
	return slices.Clone(v.Slice())
}

// shift re-targets the view. Only the manager calls it, so views stay ordered and packed.
func (v *View[T]) shift(offset, length int) {
	v.offset = offset
	v.length = length
}

func (v *View[T]) check(start, end int) error {
	if !v.Live() {
		return ErrUnknownView
	}
	if start < 0 || end > v.length || start > end {
		return errors.Wrapf(ErrIndexOutOfRange, "range [%d, %d) in view of length %d", start, end, v.length)
	}
	return nil
}
