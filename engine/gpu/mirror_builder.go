package gpu

// Default mirror sizing.
const (
	DefaultMinElements   = 8
	DefaultTextureWidth  = 2048
	DefaultTextureHeight = 2048
)

type mirrorOptions struct {
	label         string
	minElements   int
	textureWidth  uint32
	textureHeight uint32
}

func newMirrorOptions(label string, options []MirrorBuilderOption) *mirrorOptions {
	o := &mirrorOptions{
		label:         label,
		minElements:   DefaultMinElements,
		textureWidth:  DefaultTextureWidth,
		textureHeight: DefaultTextureHeight,
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// MirrorBuilderOption is a functional option for configuring a mirror.
type MirrorBuilderOption func(*mirrorOptions)

// WithLabel overrides the GPU resource label, which defaults to the buffer manager's label.
//
// Parameters:
//   - label: the resource label
//
// Returns:
//   - MirrorBuilderOption: a function that applies the label
func WithLabel(label string) MirrorBuilderOption {
	return func(o *mirrorOptions) {
		if label != "" {
			o.label = label
		}
	}
}

// WithMinElements sets the minimum length, in elements, of a linear mirror's buffer.
//
// Parameters:
//   - n: the minimum number of elements
//
// Returns:
//   - MirrorBuilderOption: a function that applies the minimum
func WithMinElements(n int) MirrorBuilderOption {
	return func(o *mirrorOptions) {
		if n > 0 {
			o.minElements = n
		}
	}
}

// WithTextureSize sets the fixed layer size of a texture-array mirror.
//
// Parameters:
//   - width: layer width in texels
//   - height: layer height in texels
//
// Returns:
//   - MirrorBuilderOption: a function that applies the size
func WithTextureSize(width, height uint32) MirrorBuilderOption {
	return func(o *mirrorOptions) {
		if width > 0 && height > 0 {
			o.textureWidth = width
			o.textureHeight = height
		}
	}
}

// Stats counts the work a mirror has done.
type Stats struct {
	// Reconstructs counts Reconstruct calls.
	Reconstructs int
	// Recreations counts how many times the GPU resource was replaced by a larger or smaller one.
	Recreations int
	// Updates counts partial uploads.
	Updates int
	// BytesUploaded sums every byte written to the GPU.
	BytesUploaded int
}

// Add returns the field-wise sum of s and o.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		Reconstructs:  s.Reconstructs + o.Reconstructs,
		Recreations:   s.Recreations + o.Recreations,
		Updates:       s.Updates + o.Updates,
		BytesUploaded: s.BytesUploaded + o.BytesUploaded,
	}
}

// alignedBytes returns raw[start:end] zero-extended to end-start bytes. It copies only when raw is too short.
func alignedBytes(raw []byte, start, end int) []byte {
	if end <= len(raw) {
		return raw[start:end]
	}
	out := make([]byte, end-start)
	if start < len(raw) {
		copy(out, raw[start:])
	}
	return out
}

func roundUp4(n int) int {
	return (n + 3) &^ 3
}
