package gpu

import (
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
)

type memoryBuffer struct {
	label string
	data  []byte
}

func (b *memoryBuffer) Label() string { return b.label }

func (b *memoryBuffer) Size() uint64 { return uint64(len(b.data)) }

func (b *memoryBuffer) Destroy() { b.data = nil }

type memoryTexture struct {
	desc TextureDescriptor
	data []byte
}

func (t *memoryTexture) Descriptor() TextureDescriptor { return t.desc }

func (t *memoryTexture) Destroy() { t.data = nil }

// BackendStats counts the traffic a backend has seen.
type BackendStats struct {
	BuffersCreated  int
	TexturesCreated int
	BufferWrites    int
	TextureWrites   int
	BytesWritten    int
}

// MemoryBackend is a Backend that keeps resources in host memory and supports readback.
// It stands in for a device in tests and in headless tools without a GPU.
type MemoryBackend struct {
	mu    *sync.Mutex
	stats BackendStats

	// FailCreate makes every subsequent CreateBuffer and CreateTexture fail.
	FailCreate bool
	// FailWrite makes every subsequent WriteBuffer and WriteTexture fail.
	FailWrite bool
}

var _ Backend = &MemoryBackend{}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{mu: &sync.Mutex{}}
}

func (m *MemoryBackend) CreateBuffer(label string, size uint64) (Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailCreate {
		return nil, errors.Wrapf(ErrResourceCreation, "buffer %q", label)
	}
	m.stats.BuffersCreated++
	return &memoryBuffer{label: label, data: make([]byte, size)}, nil
}

func (m *MemoryBackend) WriteBuffer(buf Buffer, offset uint64, data []byte) error {
	mb, ok := buf.(*memoryBuffer)
	if !ok {
		return errors.Wrapf(ErrForeignResource, "%T", buf)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if mb.data == nil {
		return errors.Wrapf(ErrReleased, "buffer %q", mb.label)
	}
	if m.FailWrite {
		return errors.Newf("gpu: write to %q failed", mb.label)
	}
	if offset%4 != 0 || len(data)%4 != 0 {
		return errors.Newf("gpu: unaligned write of %d bytes at %d to %q", len(data), offset, mb.label)
	}
	if offset+uint64(len(data)) > uint64(len(mb.data)) {
		return errors.Newf("gpu: write of %d bytes at %d overruns %q of %d bytes", len(data), offset, mb.label, len(mb.data))
	}
	copy(mb.data[offset:], data)
	m.stats.BufferWrites++
	m.stats.BytesWritten += len(data)
	return nil
}

func (m *MemoryBackend) CreateTexture(desc TextureDescriptor) (Texture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailCreate {
		return nil, errors.Wrapf(ErrResourceCreation, "texture %q", desc.Label)
	}
	if _, ok := textureFormats[desc.Format]; !ok {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "texture format %d", desc.Format)
	}
	m.stats.TexturesCreated++
	return &memoryTexture{desc: desc, data: make([]byte, desc.LayerSize()*int(desc.Layers))}, nil
}

func (m *MemoryBackend) WriteTexture(tex Texture, firstLayer uint32, data []byte) error {
	mt, ok := tex.(*memoryTexture)
	if !ok {
		return errors.Wrapf(ErrForeignResource, "%T", tex)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if mt.data == nil {
		return errors.Wrapf(ErrReleased, "texture %q", mt.desc.Label)
	}
	if m.FailWrite {
		return errors.Newf("gpu: write to %q failed", mt.desc.Label)
	}
	if _, err := layerCount(mt.desc, firstLayer, data); err != nil {
		return err
	}
	copy(mt.data[int(firstLayer)*mt.desc.LayerSize():], data)
	m.stats.TextureWrites++
	m.stats.BytesWritten += len(data)
	return nil
}

func (m *MemoryBackend) Release() {}

// ReadBuffer returns a copy of buf's content.
//
// Parameters:
//   - buf: a buffer created by this backend
//
// Returns:
//   - []byte: the buffer content
//   - error: ErrForeignResource or ErrReleased
func (m *MemoryBackend) ReadBuffer(buf Buffer) ([]byte, error) {
	mb, ok := buf.(*memoryBuffer)
	if !ok {
		return nil, errors.Wrapf(ErrForeignResource, "%T", buf)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if mb.data == nil {
		return nil, errors.Wrapf(ErrReleased, "buffer %q", mb.label)
	}
	return slices.Clone(mb.data), nil
}

// ReadTexture returns a copy of every layer of tex, layers packed back to back.
//
// Parameters:
//   - tex: a texture created by this backend
//
// Returns:
//   - []byte: the texture content
//   - error: ErrForeignResource or ErrReleased
func (m *MemoryBackend) ReadTexture(tex Texture) ([]byte, error) {
	mt, ok := tex.(*memoryTexture)
	if !ok {
		return nil, errors.Wrapf(ErrForeignResource, "%T", tex)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if mt.data == nil {
		return nil, errors.Wrapf(ErrReleased, "texture %q", mt.desc.Label)
	}
	return slices.Clone(mt.data), nil
}

// Stats returns the traffic counters.
func (m *MemoryBackend) Stats() BackendStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// ResetStats zeroes the traffic counters.
func (m *MemoryBackend) ResetStats() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = BackendStats{}
}
