package buffer

// Mirror keeps a GPU-visible copy of a manager's backing store.
// After Reconstruct or Update returns nil, the addressed range on the GPU equals the CPU bytes.
type Mirror interface {
	// Reconstruct resizes the GPU resource if the manager's size class changed and uploads the full content.
	//
	// Returns:
	//   - error: an error if the resource could not be created or written
	Reconstruct() error

	// Update uploads only the given byte range of the backing store.
	//
	// Parameters:
	//   - byteOffset: start of the range in bytes
	//   - byteLength: length of the range in bytes
	//
	// Returns:
	//   - error: an error if the write failed
	Update(byteOffset, byteLength int) error

	// Destroy releases the GPU resource and detaches the mirror from its manager.
	//
	// Returns:
	//   - error: an error if the resource could not be released
	Destroy() error
}

// Source is the element-type independent view of a BufferManager that mirrors read from.
type Source interface {
	// Label returns the manager's debug label.
	Label() string

	// Bytes returns the used region of the backing store as raw bytes.
	// The slice aliases the backing store and is only valid until the next mutation.
	Bytes() []byte

	// CapacityBytes returns the whole allocated backing store, including unused capacity, as raw bytes.
	// The slice aliases the backing store and is only valid until the next mutation.
	CapacityBytes() []byte

	// ByteLength returns the used length in bytes.
	ByteLength() int

	// ByteCapacity returns the allocated capacity in bytes.
	ByteCapacity() int

	// ElementSize returns the size of one element in bytes.
	ElementSize() int

	// ElementFormat returns how the element type should be interpreted by GPU resources.
	ElementFormat() ElementFormat

	// BindMirror attaches m. Only one mirror may be bound at a time.
	//
	// Parameters:
	//   - m: the mirror to bind
	//
	// Returns:
	//   - error: ErrMirrorBound if another mirror is bound
	BindMirror(m Mirror) error

	// DetachMirror unbinds m without destroying it. Detaching a mirror that is not bound is a no-op.
	//
	// Parameters:
	//   - m: the mirror to unbind
	DetachMirror(m Mirror)
}
