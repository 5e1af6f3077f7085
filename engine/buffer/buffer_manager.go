package buffer

import (
	"log/slog"
	"math"
	"slices"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/cockroachdb/errors"
)

// BufferManager owns one contiguous, growable backing store of T and hands out View handles onto it.
// Allocations append; frees compact the store and rebase every later view; capacity grows by
// power-of-two reallocation. Every operation is all-or-nothing, including the bound mirror's upload.
//
// A BufferManager is not safe for concurrent mutation; callers serialize Allocate, Free, OverwriteAll and FreeAll.
type BufferManager[T Element] interface {
	Source

	// Allocate appends data to the end of the backing store and returns a view over it.
	// Crossing the current capacity triggers exactly one reallocation to the next power of two in bytes.
	//
	// Parameters:
	//   - data: the elements to append
	//
	// Returns:
	//   - *View[T]: the view over the appended range
	//   - error: ErrCapacity on overflow, or the mirror's error; the manager is unchanged on error
	Allocate(data []T) (*View[T], error)

	// AllocateAny is Allocate for dynamically typed data. data must be a []T or a T.
	//
	// Parameters:
	//   - data: the elements to append
	//
	// Returns:
	//   - *View[T]: the view over the appended range
	//   - error: ErrTypeMismatch if data is not of the element type, otherwise as Allocate
	AllocateAny(data any) (*View[T], error)

	// Free removes the view's elements, shifting all later bytes left and rebasing later views.
	//
	// Parameters:
	//   - v: the view to free
	//
	// Returns:
	//   - error: ErrUnknownView if v is not live in this manager, or the mirror's error
	Free(v *View[T]) error

	// OverwriteAll replaces the whole backing store with data. Every previously returned view is invalidated.
	//
	// Parameters:
	//   - data: the new content
	//
	// Returns:
	//   - *View[T]: a view over the whole buffer
	//   - error: ErrCapacity on overflow, or the mirror's error; the manager is unchanged on error
	OverwriteAll(data []T) (*View[T], error)

	// OverwriteAllAny is OverwriteAll for dynamically typed data. data must be a []T.
	//
	// Parameters:
	//   - data: the new content
	//
	// Returns:
	//   - *View[T]: a view over the whole buffer
	//   - error: ErrTypeMismatch if data is not a []T, otherwise as OverwriteAll
	OverwriteAllAny(data any) (*View[T], error)

	// FreeAll empties the buffer, releases its capacity and discards all views.
	//
	// Returns:
	//   - error: the mirror's error, if any
	FreeAll() error

	// Flush pushes the view's range to the bound mirror after element writes through the view.
	// It is a no-op without a mirror.
	//
	// Parameters:
	//   - v: the view whose range changed
	//
	// Returns:
	//   - error: ErrUnknownView if v is not live in this manager, or the mirror's error
	Flush(v *View[T]) error

	// Len returns the used length in elements.
	Len() int

	// Cap returns the allocated capacity in elements.
	Cap() int

	// Data returns the used region of the backing store. It aliases the store and is only valid until the next mutation.
	Data() []T

	// Views returns the live views ordered by offset.
	Views() []*View[T]

	// Reallocations returns how many times the backing store has been reallocated to grow.
	Reallocations() int

	// Mirror returns the bound mirror, or nil.
	Mirror() Mirror

	// ReleaseMirror destroys the bound mirror, if any, leaving the manager mirror-less.
	//
	// Returns:
	//   - error: the mirror's Destroy error
	ReleaseMirror() error
}

type bufferManager[T Element] struct {
	label           string
	data            []T
	views           []*View[T]
	mirror          Mirror
	reallocations   int
	maxByteCapacity int
}

var _ BufferManager[float32] = &bufferManager[float32]{}

// NewBufferManager creates an empty BufferManager.
//
// Parameters:
//   - label: a debug label, also used to name mirrored GPU resources
//   - options: functional options such as WithInitialCapacity
//
// Returns:
//   - BufferManager[T]: the new manager
func NewBufferManager[T Element](label string, options ...BufferManagerBuilderOption) BufferManager[T] {
	opts := &bufferManagerOptions{maxByteCapacity: math.MaxInt}
	for _, opt := range options {
		opt(opts)
	}

	b := &bufferManager[T]{
		label:           label,
		maxByteCapacity: opts.maxByteCapacity,
	}
	if opts.initialCapacity > 0 {
		if capBytes, ok := common.NextPowerOfTwo(opts.initialCapacity * elementSize[T]()); ok && capBytes <= b.maxByteCapacity {
			b.data = make([]T, 0, capBytes/elementSize[T]())
		}
	}
	return b
}

func (b *bufferManager[T]) logger() *slog.Logger {
	return common.ComponentLogger("buffer").With(slog.String("label", b.label))
}

func elementSize[T Element]() int {
	return common.SizeOf[T]()
}

func (b *bufferManager[T]) Label() string { return b.label }

func (b *bufferManager[T]) Len() int { return len(b.data) }

func (b *bufferManager[T]) Cap() int { return cap(b.data) }

func (b *bufferManager[T]) ElementSize() int { return elementSize[T]() }

func (b *bufferManager[T]) ElementFormat() ElementFormat { return FormatOf[T]() }

func (b *bufferManager[T]) ByteLength() int { return len(b.data) * elementSize[T]() }

func (b *bufferManager[T]) ByteCapacity() int { return cap(b.data) * elementSize[T]() }

func (b *bufferManager[T]) Data() []T { return b.data[:len(b.data):len(b.data)] }

func (b *bufferManager[T]) Bytes() []byte { return common.SliceToBytes(b.data) }

func (b *bufferManager[T]) CapacityBytes() []byte { return common.SliceToBytes(b.data[:cap(b.data)]) }

func (b *bufferManager[T]) Views() []*View[T] { return slices.Clone(b.views) }

func (b *bufferManager[T]) Reallocations() int { return b.reallocations }

func (b *bufferManager[T]) Mirror() Mirror { return b.mirror }

func (b *bufferManager[T]) Allocate(data []T) (*View[T], error) {
	offset := len(b.data)
	cp := b.checkpoint(offset)

	if err := b.reserve(offset + len(data)); err != nil {
		return nil, err
	}
	b.data = b.data[:offset+len(data)]
	copy(b.data[offset:], data)

	v := &View[T]{manager: b, offset: offset, length: len(data)}
	b.views = append(b.views, v)

	size := elementSize[T]()
	if err := b.sync(cp.capacity, offset*size, len(data)*size); err != nil {
		b.restore(cp)
		v.manager = nil
		return nil, errors.Wrapf(err, "allocate %d elements in %q", len(data), b.label)
	}
	return v, nil
}

func (b *bufferManager[T]) AllocateAny(data any) (*View[T], error) {
	switch d := data.(type) {
	case []T:
		return b.Allocate(d)
	case T:
		return b.Allocate([]T{d})
	default:
		var zero T
		return nil, errors.Wrapf(ErrTypeMismatch, "%q holds %T, got %T", b.label, zero, data)
	}
}

func (b *bufferManager[T]) Free(v *View[T]) error {
	idx := b.indexOf(v)
	if idx < 0 {
		return ErrUnknownView
	}
	offset, length := v.offset, v.length
	cp := b.checkpoint(offset)

	copy(b.data[offset:], b.data[offset+length:])
	b.data = b.data[:len(b.data)-length]

	b.views = slices.Delete(b.views, idx, idx+1)
	for _, other := range b.views[idx:] {
		if other.offset > offset {
			other.shift(other.offset-length, other.length)
		}
	}
	v.manager = nil

	size := elementSize[T]()
	if err := b.sync(cp.capacity, offset*size, (len(b.data)-offset)*size); err != nil {
		b.restore(cp)
		return errors.Wrapf(err, "free %d elements in %q", length, b.label)
	}
	return nil
}

func (b *bufferManager[T]) OverwriteAll(data []T) (*View[T], error) {
	cp := b.checkpoint(0)

	if err := b.reserve(len(data)); err != nil {
		return nil, err
	}
	b.data = b.data[:len(data)]
	copy(b.data, data)

	for _, old := range b.views {
		old.manager = nil
	}
	v := &View[T]{manager: b, offset: 0, length: len(data)}
	b.views = []*View[T]{v}

	if err := b.sync(cp.capacity, 0, len(data)*elementSize[T]()); err != nil {
		b.restore(cp)
		v.manager = nil
		return nil, errors.Wrapf(err, "overwrite %q with %d elements", b.label, len(data))
	}
	return v, nil
}

func (b *bufferManager[T]) OverwriteAllAny(data any) (*View[T], error) {
	d, ok := data.([]T)
	if !ok {
		var zero T
		return nil, errors.Wrapf(ErrTypeMismatch, "%q holds %T, got %T", b.label, zero, data)
	}
	return b.OverwriteAll(d)
}

func (b *bufferManager[T]) FreeAll() error {
	for _, v := range b.views {
		v.manager = nil
	}
	b.views = nil
	hadCapacity := cap(b.data) > 0
	b.data = nil

	if b.mirror != nil && hadCapacity {
		return errors.Wrapf(b.mirror.Reconstruct(), "free all in %q", b.label)
	}
	return nil
}

func (b *bufferManager[T]) Flush(v *View[T]) error {
	if b.indexOf(v) < 0 {
		return ErrUnknownView
	}
	if b.mirror == nil || v.length == 0 {
		return nil
	}
	return b.mirror.Update(v.ByteOffset(), v.ByteLength())
}

func (b *bufferManager[T]) BindMirror(m Mirror) error {
	if b.mirror != nil {
		return errors.Wrapf(ErrMirrorBound, "%q", b.label)
	}
	b.mirror = m
	return nil
}

func (b *bufferManager[T]) DetachMirror(m Mirror) {
	if b.mirror == m {
		b.mirror = nil
	}
}

func (b *bufferManager[T]) ReleaseMirror() error {
	if b.mirror == nil {
		return nil
	}
	m := b.mirror
	b.mirror = nil
	return m.Destroy()
}

// reserve grows the backing store so it can hold n elements, reallocating to the next power of two in bytes.
func (b *bufferManager[T]) reserve(n int) error {
	if n <= cap(b.data) {
		return nil
	}
	size := elementSize[T]()
	if n > math.MaxInt/size {
		return errors.Wrapf(ErrCapacity, "%d elements of %d bytes in %q", n, size, b.label)
	}
	capBytes, ok := common.NextPowerOfTwo(n * size)
	if !ok || capBytes > b.maxByteCapacity {
		return errors.Wrapf(ErrCapacity, "%d bytes requested in %q, limit %d", n*size, b.label, b.maxByteCapacity)
	}

	grown := make([]T, len(b.data), capBytes/size)
	copy(grown, b.data)
	b.logger().Debug("buffer grown", slog.Int("from_bytes", b.ByteCapacity()), slog.Int("to_bytes", capBytes))
	b.data = grown
	b.reallocations++
	return nil
}

// sync tells the bound mirror about a completed mutation: a reconstruct if the capacity changed,
// otherwise an update of the mutated byte range.
func (b *bufferManager[T]) sync(prevCapacity, byteOffset, byteLength int) error {
	if b.mirror == nil {
		return nil
	}
	if cap(b.data) != prevCapacity {
		return b.mirror.Reconstruct()
	}
	if byteLength <= 0 {
		return nil
	}
	return b.mirror.Update(byteOffset, byteLength)
}

func (b *bufferManager[T]) indexOf(v *View[T]) int {
	if v == nil || v.manager != b {
		return -1
	}
	// views are ordered by offset; zero-length views may share an offset with their successor
	i, _ := slices.BinarySearchFunc(b.views, v.offset, func(e *View[T], off int) int { return e.offset - off })
	for ; i < len(b.views) && b.views[i].offset == v.offset; i++ {
		if b.views[i] == v {
			return i
		}
	}
	return -1
}

// checkpoint records everything a failed mirror sync has to undo.
// Elements before from are never touched by the pending mutation.
type checkpoint[T Element] struct {
	data          []T
	capacity      int
	from          int
	tail          []T
	views         []*View[T]
	offsets       []int
	lengths       []int
	reallocations int
}

func (b *bufferManager[T]) checkpoint(from int) checkpoint[T] {
	cp := checkpoint[T]{
		data:          b.data,
		capacity:      cap(b.data),
		from:          from,
		views:         slices.Clone(b.views),
		offsets:       make([]int, len(b.views)),
		lengths:       make([]int, len(b.views)),
		reallocations: b.reallocations,
	}
	if b.mirror != nil {
		cp.tail = slices.Clone(b.data[from:])
	}
	for i, v := range b.views {
		cp.offsets[i], cp.lengths[i] = v.offset, v.length
	}
	return cp
}

func (b *bufferManager[T]) restore(cp checkpoint[T]) {
	b.data = cp.data
	copy(b.data[cp.from:], cp.tail)
	b.views = cp.views
	for i, v := range b.views {
		v.manager = b
		v.shift(cp.offsets[i], cp.lengths[i])
	}
	b.reallocations = cp.reallocations
	b.logger().Debug("mutation rolled back after mirror failure")
}
