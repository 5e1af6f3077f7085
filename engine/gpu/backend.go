package gpu

// TextureFormat is the texel format of a texture-array mirror. All formats pack four 16-bit channels per texel.
type TextureFormat int

const (
	TextureFormatRGBA16Float TextureFormat = iota
	TextureFormatRGBA16Uint
	TextureFormatRGBA16Sint
)

// TexelSize is the size in bytes of one RGBA16 texel.
const TexelSize = 8

func (f TextureFormat) String() string {
	switch f {
	case TextureFormatRGBA16Float:
		return "rgba16float"
	case TextureFormatRGBA16Uint:
		return "rgba16uint"
	case TextureFormatRGBA16Sint:
		return "rgba16sint"
	default:
		return "unknown"
	}
}

// TextureDescriptor describes a 2D texture array.
type TextureDescriptor struct {
	Label  string
	Width  uint32
	Height uint32
	Layers uint32
	Format TextureFormat
}

// LayerSize returns the size in bytes of one layer.
func (d TextureDescriptor) LayerSize() int {
	return int(d.Width) * int(d.Height) * TexelSize
}

// Buffer is a linear GPU buffer created by a Backend.
type Buffer interface {
	// Label returns the debug label the buffer was created with.
	Label() string
	// Size returns the buffer size in bytes.
	Size() uint64
	// Destroy releases the GPU memory. Further writes fail with ErrReleased.
	Destroy()
}

// Texture is a 2D texture array created by a Backend.
type Texture interface {
	// Descriptor returns the descriptor the texture was created with.
	Descriptor() TextureDescriptor
	// Destroy releases the GPU memory. Further writes fail with ErrReleased.
	Destroy()
}

// Backend is the GPU API boundary consumed by mirrors: buffer and texture creation, writes, and resource destruction.
type Backend interface {
	// CreateBuffer creates a storage buffer of size bytes.
	//
	// Parameters:
	//   - label: a debug label
	//   - size: the size in bytes, a multiple of 4
	//
	// Returns:
	//   - Buffer: the new buffer
	//   - error: ErrResourceCreation if the backend failed
	CreateBuffer(label string, size uint64) (Buffer, error)

	// WriteBuffer copies data into buf at offset.
	//
	// Parameters:
	//   - buf: a buffer created by this backend
	//   - offset: byte offset, a multiple of 4
	//   - data: the bytes to write, a multiple of 4 in length
	//
	// Returns:
	//   - error: an error if buf is released, foreign or too small
	WriteBuffer(buf Buffer, offset uint64, data []byte) error

	// CreateTexture creates a 2D texture array.
	//
	// Parameters:
	//   - desc: the texture descriptor
	//
	// Returns:
	//   - Texture: the new texture
	//   - error: ErrResourceCreation if the backend failed
	CreateTexture(desc TextureDescriptor) (Texture, error)

	// WriteTexture uploads whole layers starting at firstLayer. len(data) must be a multiple of the layer size.
	//
	// Parameters:
	//   - tex: a texture created by this backend
	//   - firstLayer: the first array layer to write
	//   - data: tightly packed texel rows for one or more layers
	//
	// Returns:
	//   - error: an error if tex is released, foreign or the layer range is out of bounds
	WriteTexture(tex Texture, firstLayer uint32, data []byte) error

	// Release tears down the backend itself. Resources must be destroyed first.
	Release()
}
