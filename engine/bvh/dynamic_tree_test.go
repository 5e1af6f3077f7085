package bvh

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBox(rng *rand.Rand) AABB {
	c := mgl32.Vec3{rng.Float32()*100 - 50, rng.Float32()*100 - 50, rng.Float32()*100 - 50}
	h := mgl32.Vec3{0.5 + rng.Float32()*1.5, 0.5 + rng.Float32()*1.5, 0.5 + rng.Float32()*1.5}
	return NewAABB(c.Sub(h), c.Add(h))
}

func boxAt(x, y, z float32) AABB {
	return NewAABB(mgl32.Vec3{x - 1, y - 1, z - 1}, mgl32.Vec3{x + 1, y + 1, z + 1})
}

func nearestBox(entries []Entry[string], r Ray) float32 {
	best := math32.Inf(1)
	for _, e := range entries {
		if d, ok := e.Bounds.IntersectRay(r, best); ok {
			best = d
		}
	}
	return best
}

func TestDynamicTreeRandomEdits(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	d := NewDynamicTree[string](WithRebuildRatio(-1))
	live := map[uint32]bool{}
	next := uint32(0)

	for step := range 600 {
		ids := make([]uint32, 0, len(live))
		for id := range live {
			ids = append(ids, id)
		}
		slices.Sort(ids)

		switch op := rng.Intn(3); {
		case op == 0 || len(ids) == 0:
			require.NoError(t, d.Insert(next, "item", randomBox(rng)), "step %d", step)
			live[next] = true
			next++
		case op == 1:
			id := ids[rng.Intn(len(ids))]
			require.NoError(t, d.Remove(id), "step %d", step)
			delete(live, id)
		default:
			id := ids[rng.Intn(len(ids))]
			require.NoError(t, d.Update(id, randomBox(rng)), "step %d", step)
		}

		require.NoError(t, d.Tree().Validate(), "step %d", step)
		require.Equal(t, len(live), d.Len())
		require.Equal(t, len(live), d.Tree().Len())
		for _, e := range d.Entries() {
			require.True(t, d.Tree().Bounds().Contains(e.Bounds), "step %d id %d", step, e.ID)
		}
	}
	assert.Equal(t, 0, d.Rebuilds())

	entries := d.Entries()
	for i := range 50 {
		r := Ray{
			Origin:    mgl32.Vec3{rng.Float32()*200 - 100, rng.Float32()*200 - 100, rng.Float32()*200 - 100},
			Direction: mgl32.Vec3{rng.Float32()*2 - 1, rng.Float32()*2 - 1, rng.Float32()*2 - 1},
		}
		res := d.Traverse(r, math32.Inf(1), 64, func(id uint32, tMax float32) (float32, bool) {
			b, _ := d.BoundsOf(id)
			return b.IntersectRay(r, tMax)
		})
		assert.Equal(t, nearestBox(entries, r), res.Distance, "ray %d", i)
	}
}

func TestDynamicTreeLookups(t *testing.T) {
	d := NewDynamicTree[string]()
	require.NoError(t, d.Insert(4, "four", boxAt(0, 0, 0)))
	require.NoError(t, d.Insert(2, "two", boxAt(5, 0, 0)))

	item, ok := d.Get(4)
	require.True(t, ok)
	assert.Equal(t, "four", item)
	b, ok := d.BoundsOf(2)
	require.True(t, ok)
	assert.Equal(t, boxAt(5, 0, 0), b)

	_, ok = d.Get(9)
	assert.False(t, ok)

	ids := []uint32{}
	for _, e := range d.Entries() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []uint32{2, 4}, ids)

	assert.ErrorIs(t, d.Insert(4, "again", boxAt(1, 1, 1)), ErrDuplicateID)
	assert.ErrorIs(t, d.Insert(NullIndex, "reserved", boxAt(1, 1, 1)), ErrUnknownID)
	assert.ErrorIs(t, d.Remove(9), ErrUnknownID)
	assert.ErrorIs(t, d.Update(9, boxAt(0, 0, 0)), ErrUnknownID)
	assert.ErrorIs(t, d.Update(4, AABB{Min: mgl32.Vec3{math32.NaN(), 0, 0}, Max: mgl32.Vec3{1, 1, 1}}), ErrDegenerateGeometry)

	require.NoError(t, d.Remove(4))
	require.NoError(t, d.Remove(2))
	assert.Equal(t, 0, d.Len())
	assert.True(t, d.Tree().Bounds().IsEmpty())
	require.NoError(t, d.Tree().Validate())

	res := d.Traverse(Ray{Direction: mgl32.Vec3{1, 0, 0}}, math32.Inf(1), 0, func(uint32, float32) (float32, bool) {
		t.Fatal("empty tree has no payloads")
		return 0, false
	})
	assert.False(t, res.Hit())
}

func TestDynamicTreeRebuild(t *testing.T) {
	d := NewDynamicTree[int]()
	entries := make([]Entry[int], 100)
	rng := rand.New(rand.NewSource(2))
	for i := range entries {
		entries[i] = Entry[int]{ID: uint32(i * 3), Item: i, Bounds: randomBox(rng)}
	}
	require.NoError(t, d.Rebuild(entries))
	require.NoError(t, d.Tree().Validate())
	assert.Equal(t, 100, d.Len())
	assert.Equal(t, 1, d.Rebuilds())

	// the edit budget is half the payload count
	for i := range 50 {
		require.NoError(t, d.Update(uint32(i*3), randomBox(rng)))
	}
	assert.Equal(t, 1, d.Rebuilds())
	require.NoError(t, d.Update(0, randomBox(rng)))
	assert.Equal(t, 2, d.Rebuilds())
	require.NoError(t, d.Tree().Validate())
	item, ok := d.Get(297)
	require.True(t, ok)
	assert.Equal(t, 99, item)

	dup := []Entry[int]{{ID: 1, Bounds: boxAt(0, 0, 0)}, {ID: 1, Bounds: boxAt(1, 0, 0)}}
	assert.ErrorIs(t, d.Rebuild(dup), ErrDuplicateID)
	assert.Equal(t, 100, d.Len(), "a failed rebuild leaves the tree unchanged")

	bad := []Entry[int]{{ID: 1, Bounds: AABB{Min: mgl32.Vec3{0, 0, 0}, Max: mgl32.Vec3{math32.Inf(1), 1, 1}}}}
	assert.ErrorIs(t, d.Rebuild(bad), ErrDegenerateGeometry)
	assert.Equal(t, 100, d.Len())
}

func TestDynamicTreeRebuildRatioBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	entries := make([]Entry[int], 8)
	for i := range entries {
		entries[i] = Entry[int]{ID: uint32(i), Item: i, Bounds: randomBox(rng)}
	}

	eager := NewDynamicTree[int](WithRebuildRatio(0))
	require.NoError(t, eager.Rebuild(entries))
	for i := range 3 {
		require.NoError(t, eager.Update(uint32(i), randomBox(rng)))
	}
	assert.Equal(t, 4, eager.Rebuilds(), "a zero ratio rebuilds after every edit")
	require.NoError(t, eager.Tree().Validate())

	never := NewDynamicTree[int](WithRebuildRatio(-1))
	require.NoError(t, never.Rebuild(entries))
	for i := range 100 {
		require.NoError(t, never.Update(uint32(i%len(entries)), randomBox(rng)))
	}
	assert.Equal(t, 1, never.Rebuilds())
	require.NoError(t, never.Tree().Validate())
}

func TestDynamicTreeQueryFrustum(t *testing.T) {
	d := NewDynamicTree[string]()
	require.NoError(t, d.Rebuild([]Entry[string]{
		{ID: 1, Item: "ahead", Bounds: boxAt(0, 0, -10)},
		{ID: 2, Item: "behind", Bounds: boxAt(0, 0, 10)},
		{ID: 3, Item: "right", Bounds: boxAt(100, 0, -10)},
		{ID: 4, Item: "far", Bounds: boxAt(0, 0, -200)},
		{ID: 5, Item: "left edge", Bounds: boxAt(-10, 0, -10)},
	}))

	view := common.LookAt(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0})
	proj := common.Perspective(math32.Pi/2, 1, 0.1, 100)
	frustum := common.ExtractFrustumFromMatrix(proj.Mul4(view))

	assert.Equal(t, []uint32{1, 5}, d.QueryFrustum(&frustum))
}
