package buffer

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewAccessors(t *testing.T) {
	bm := NewBufferManager[float32]("accessors")
	_, err := bm.Allocate(seq(0, 2))
	require.NoError(t, err)
	v, err := bm.Allocate(seq(10, 4))
	require.NoError(t, err)

	got, err := v.At(3)
	require.NoError(t, err)
	assert.Equal(t, float32(13), got)

	require.NoError(t, v.Set(0, 99))
	require.NoError(t, v.Write(2, []float32{7, 8}))
	assert.Equal(t, []float32{99, 11, 7, 8}, v.Copy())

	r, err := v.Range(1, 3)
	require.NoError(t, err)
	assert.Equal(t, []float32{11, 7}, r)

	assert.Equal(t, 2, v.Offset())
	assert.Equal(t, 8, v.ByteOffset())
	assert.Equal(t, 16, v.ByteLength())
}

func TestViewBoundsChecks(t *testing.T) {
	bm := NewBufferManager[int16]("bounds")
	v, err := bm.Allocate([]int16{1, 2, 3})
	require.NoError(t, err)

	_, err = v.At(3)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = v.At(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.ErrorIs(t, v.Set(5, 1), ErrIndexOutOfRange)
	assert.ErrorIs(t, v.Write(2, []int16{1, 2}), ErrIndexOutOfRange)
	_, err = v.Range(2, 1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	assert.Equal(t, []int16{1, 2, 3}, bm.Data(), "failed writes must not touch memory")

	require.NoError(t, bm.Free(v))
	_, err = v.At(0)
	assert.ErrorIs(t, err, ErrUnknownView)
	assert.Nil(t, v.Slice())
}

func TestViewRebasedByFree(t *testing.T) {
	bm := NewBufferManager[uint32]("rebase")
	a, err := bm.Allocate([]uint32{1, 2, 3, 4})
	require.NoError(t, err)
	b, err := bm.Allocate([]uint32{5, 6})
	require.NoError(t, err)
	c, err := bm.Allocate([]uint32{7, 8, 9})
	require.NoError(t, err)

	require.NoError(t, bm.Free(a))
	assert.Equal(t, 0, b.Offset())
	assert.Equal(t, 2, c.Offset())
	assert.Equal(t, []uint32{5, 6}, b.Copy())
	assert.Equal(t, []uint32{7, 8, 9}, c.Copy())
	assert.Equal(t, b.Len()+c.Len(), bm.Len())

	require.NoError(t, bm.Free(c))
	assert.Equal(t, []uint32{5, 6}, bm.Data())
	assert.Equal(t, b.Len(), bm.Len())

	_, ok := reflect.TypeFor[*View[uint32]]().MethodByName("Shift")
	assert.False(t, ok, "views are only re-targeted by their manager")
}

func TestFloat16(t *testing.T) {
	halves := ToFloat16s([]float32{0, 1, -2.5, 0.5})
	assert.Equal(t, Float16(0x3C00), halves[1])
	for i, want := range []float32{0, 1, -2.5, 0.5} {
		assert.Equal(t, want, halves[i].Float32())
	}

	assert.Equal(t, FormatHalf, FormatOf[Float16]())
	assert.Equal(t, FormatUint, FormatOf[uint16]())
	assert.Equal(t, FormatSint, FormatOf[int16]())
	assert.Equal(t, FormatFloat, FormatOf[float32]())

	bm := NewBufferManager[Float16]("normals")
	assert.Equal(t, 2, bm.ElementSize())
	assert.Equal(t, FormatHalf, bm.ElementFormat())
}
