package buffer

type bufferManagerOptions struct {
	initialCapacity int
	maxByteCapacity int
}

// BufferManagerBuilderOption is a functional option for configuring a BufferManager.
type BufferManagerBuilderOption func(*bufferManagerOptions)

// WithInitialCapacity pre-allocates room for n elements, rounded up to a power of two in bytes.
//
// Parameters:
//   - n: the number of elements to reserve
//
// Returns:
//   - BufferManagerBuilderOption: a function that applies the initial capacity
func WithInitialCapacity(n int) BufferManagerBuilderOption {
	return func(o *bufferManagerOptions) {
		o.initialCapacity = n
	}
}

// WithMaxByteCapacity caps the backing store's capacity. Growth beyond it fails with ErrCapacity.
//
// Parameters:
//   - n: the maximum capacity in bytes
//
// Returns:
//   - BufferManagerBuilderOption: a function that applies the limit
func WithMaxByteCapacity(n int) BufferManagerBuilderOption {
	return func(o *bufferManagerOptions) {
		if n > 0 {
			o.maxByteCapacity = n
		}
	}
}
