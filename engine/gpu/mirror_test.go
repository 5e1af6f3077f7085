package gpu

import (
	"slices"
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/buffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLinear(t *testing.T, backend *MemoryBackend, m LinearMirror, n int) []byte {
	t.Helper()
	data, err := backend.ReadBuffer(m.Buffer())
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(data), n)
	return data[:n]
}

func TestLinearMirrorConsistency(t *testing.T) {
	backend := NewMemoryBackend()
	bm := buffer.NewBufferManager[float32]("transforms")

	m, err := NewLinearMirror(bm, backend)
	require.NoError(t, err)
	assert.Equal(t, uint64(32), m.Buffer().Size(), "empty managers get the minimum length")
	assert.Equal(t, m, bm.Mirror())

	a, err := bm.Allocate([]float32{1, 2, 3})
	require.NoError(t, err)
	b, err := bm.Allocate([]float32{4, 5, 6, 7, 8})
	require.NoError(t, err)
	_, err = bm.Allocate([]float32{9, 10})
	require.NoError(t, err)
	assert.Equal(t, bm.Bytes(), readLinear(t, backend, m, bm.ByteLength()))

	require.NoError(t, bm.Free(b))
	assert.Equal(t, bm.Bytes(), readLinear(t, backend, m, bm.ByteLength()))
	assert.Equal(t, []float32{1, 2, 3}, a.Copy())

	_, err = bm.OverwriteAll([]float32{11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27})
	require.NoError(t, err)
	assert.Equal(t, bm.Bytes(), readLinear(t, backend, m, bm.ByteLength()))
	assert.Equal(t, uint64(bm.ByteCapacity()), m.Buffer().Size())
}

func TestLinearMirrorRecreatesOnlyOnSizeChange(t *testing.T) {
	backend := NewMemoryBackend()
	bm := buffer.NewBufferManager[uint32]("instances", buffer.WithInitialCapacity(16))
	m, err := NewLinearMirror(bm, backend)
	require.NoError(t, err)
	first := m.Buffer()

	for i := range 16 {
		_, err := bm.Allocate([]uint32{uint32(i)})
		require.NoError(t, err)
	}
	assert.Same(t, first, m.Buffer())
	assert.Equal(t, 0, m.Stats().Recreations)

	_, err = bm.Allocate([]uint32{99})
	require.NoError(t, err)
	assert.NotSame(t, first, m.Buffer())
	assert.Equal(t, 1, m.Stats().Recreations)
	assert.Equal(t, bm.Bytes(), readLinear(t, backend, m, bm.ByteLength()))

	_, err = backend.ReadBuffer(first)
	assert.ErrorIs(t, err, ErrReleased)
}

func TestLinearMirrorUpdateUploadsSubRange(t *testing.T) {
	backend := NewMemoryBackend()
	bm := buffer.NewBufferManager[float32]("positions")
	views := make([]*buffer.View[float32], 64)
	for i := range views {
		v, err := bm.Allocate([]float32{float32(i), float32(i), float32(i), float32(i)})
		require.NoError(t, err)
		views[i] = v
	}
	m, err := NewLinearMirror(bm, backend)
	require.NoError(t, err)

	backend.ResetStats()
	require.NoError(t, views[10].Write(0, []float32{-1, -2, -3, -4}))
	require.NoError(t, bm.Flush(views[10]))

	stats := backend.Stats()
	assert.Equal(t, 1, stats.BufferWrites)
	assert.Equal(t, 16, stats.BytesWritten)
	assert.Equal(t, 0, stats.BuffersCreated)
	assert.Equal(t, bm.Bytes(), readLinear(t, backend, m, bm.ByteLength()))
}

func TestLinearMirrorAlignsHalfWidthElements(t *testing.T) {
	backend := NewMemoryBackend()
	bm := buffer.NewBufferManager[uint16]("indices")
	m, err := NewLinearMirror(bm, backend)
	require.NoError(t, err)

	_, err = bm.Allocate([]uint16{1, 2, 3})
	require.NoError(t, err)
	v, err := bm.Allocate([]uint16{4})
	require.NoError(t, err)
	require.NoError(t, v.Set(0, 40))
	require.NoError(t, bm.Flush(v))

	assert.Equal(t, bm.Bytes(), readLinear(t, backend, m, bm.ByteLength()))
}

func TestMirrorCreationFailureRollsBackManager(t *testing.T) {
	backend := NewMemoryBackend()
	bm := buffer.NewBufferManager[float32]("fragile")
	m, err := NewLinearMirror(bm, backend)
	require.NoError(t, err)

	v, err := bm.Allocate([]float32{1, 2})
	require.NoError(t, err)

	backend.FailCreate = true
	_, err = bm.Allocate(make([]float32, 100))
	require.ErrorIs(t, err, ErrResourceCreation)
	assert.Equal(t, 2, bm.Len())
	assert.Equal(t, []float32{1, 2}, v.Copy())
	assert.Equal(t, bm.Bytes(), readLinear(t, backend, m, bm.ByteLength()))
}

func TestMirrorDestroyUnbinds(t *testing.T) {
	backend := NewMemoryBackend()
	bm := buffer.NewBufferManager[float32]("detach")
	m, err := NewLinearMirror(bm, backend)
	require.NoError(t, err)

	_, err = NewLinearMirror(bm, backend)
	require.ErrorIs(t, err, buffer.ErrMirrorBound)

	buf := m.Buffer()
	require.NoError(t, m.Destroy())
	assert.Nil(t, bm.Mirror())
	assert.ErrorIs(t, m.Update(0, 4), ErrReleased)
	_, err = backend.ReadBuffer(buf)
	assert.ErrorIs(t, err, ErrReleased)

	_, err = bm.Allocate([]float32{1})
	require.NoError(t, err, "managers operate mirror-less after destroy")

	again, err := NewLinearMirror(bm, backend)
	require.NoError(t, err)
	assert.Equal(t, bm.Bytes(), readLinear(t, backend, again, bm.ByteLength()))
}

func readTexture(t *testing.T, backend *MemoryBackend, m TextureArrayMirror, n int) []byte {
	t.Helper()
	data, err := backend.ReadTexture(m.Texture())
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(data), n)
	return data[:n]
}

func TestTextureArrayMirror(t *testing.T) {
	backend := NewMemoryBackend()
	bm := buffer.NewBufferManager[buffer.Float16]("normals")

	// 4x4 texels of 8 bytes: 128 bytes, 64 half floats per layer
	m, err := NewTextureArrayMirror(bm, backend, WithTextureSize(4, 4))
	require.NoError(t, err)
	assert.Equal(t, 1, m.Layers())
	assert.Equal(t, TextureFormatRGBA16Float, m.Texture().Descriptor().Format)

	values := make([]float32, 150)
	for i := range values {
		values[i] = float32(i) / 8
	}
	_, err = bm.Allocate(buffer.ToFloat16s(values))
	require.NoError(t, err)
	assert.Equal(t, 3, m.Layers())
	assert.Equal(t, bm.Bytes(), readTexture(t, backend, m, bm.ByteLength()))

	v, err := bm.Allocate(buffer.ToFloat16s([]float32{1, 2}))
	require.NoError(t, err)
	assert.Equal(t, 3, m.Layers())

	backend.ResetStats()
	require.NoError(t, v.Set(1, buffer.NewFloat16(-7)))
	require.NoError(t, bm.Flush(v))
	assert.Equal(t, 1, backend.Stats().TextureWrites)
	assert.Equal(t, 128, backend.Stats().BytesWritten, "only the affected layer is uploaded")
	assert.Equal(t, bm.Bytes(), readTexture(t, backend, m, bm.ByteLength()))

	require.NoError(t, bm.Free(v))
	_, err = bm.OverwriteAll(buffer.ToFloat16s([]float32{3}))
	require.NoError(t, err)
	assert.Equal(t, 3, m.Layers(), "layer count never shrinks")
	assert.Equal(t, bm.Bytes(), readTexture(t, backend, m, bm.ByteLength()))
}

func TestTextureWriteFailureRollsBackManager(t *testing.T) {
	backend := NewMemoryBackend()
	bm := buffer.NewBufferManager[buffer.Float16]("tangents")
	m, err := NewTextureArrayMirror(bm, backend, WithTextureSize(4, 4))
	require.NoError(t, err)

	a, err := bm.Allocate(buffer.ToFloat16s([]float32{1, 2, 3}))
	require.NoError(t, err)
	b, err := bm.Allocate(buffer.ToFloat16s([]float32{4, 5}))
	require.NoError(t, err)
	before := slices.Clone(bm.Bytes())

	backend.FailWrite = true
	err = bm.Free(a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tangents")
	assert.Equal(t, 5, bm.Len())
	assert.Equal(t, before, bm.Bytes())
	assert.Equal(t, buffer.ToFloat16s([]float32{4, 5}), b.Copy())

	_, err = bm.Allocate(buffer.ToFloat16s([]float32{6}))
	require.Error(t, err)
	assert.Equal(t, 5, bm.Len())

	backend.FailWrite = false
	assert.Equal(t, bm.Bytes(), readTexture(t, backend, m, bm.ByteLength()))
	require.NoError(t, bm.Free(a), "the rolled back view is still live")
	assert.Equal(t, bm.Bytes(), readTexture(t, backend, m, bm.ByteLength()))
}

func TestTextureArrayMirrorFormats(t *testing.T) {
	backend := NewMemoryBackend()

	u, err := NewTextureArrayMirror(buffer.NewBufferManager[uint16]("u"), backend, WithTextureSize(2, 2))
	require.NoError(t, err)
	assert.Equal(t, TextureFormatRGBA16Uint, u.Texture().Descriptor().Format)

	s, err := NewTextureArrayMirror(buffer.NewBufferManager[int16]("s"), backend, WithTextureSize(2, 2))
	require.NoError(t, err)
	assert.Equal(t, TextureFormatRGBA16Sint, s.Texture().Descriptor().Format)

	_, err = NewTextureArrayMirror(buffer.NewBufferManager[float32]("f"), backend)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestStatsAdd(t *testing.T) {
	sum := Stats{Reconstructs: 1, Updates: 2, BytesUploaded: 3}.Add(Stats{Recreations: 4, BytesUploaded: 5})
	assert.Equal(t, Stats{Reconstructs: 1, Recreations: 4, Updates: 2, BytesUploaded: 8}, sum)
	assert.Equal(t, 3, common.CeilDiv(9, 4))
}
