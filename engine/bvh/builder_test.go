package bvh

import (
	"math/rand"
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomTriangles(rng *rand.Rand, n int, spread float32) []Triangle {
	r := func(s float32) float32 { return (rng.Float32()*2 - 1) * s }
	tris := make([]Triangle, n)
	for i := range tris {
		c := mgl32.Vec3{r(spread), r(spread), r(spread)}
		for k := range 3 {
			tris[i][k] = c.Add(mgl32.Vec3{r(1), r(1), r(1)})
		}
	}
	return tris
}

// checkContainment walks every internal node and asserts its bounds are exactly the union of its children.
func checkContainment(t *testing.T, tree *Tree) {
	t.Helper()
	require.NoError(t, tree.Validate())
	tree.walk(func(idx int32, node *Node, _ int) {
		if node.Leaf {
			for k := range int(node.Count) {
				assert.True(t, node.Bounds.Contains(node.ItemBounds[k]))
			}
			return
		}
		c0, c1 := tree.Nodes[node.Children[0]].Bounds, tree.Nodes[node.Children[1]].Bounds
		assert.True(t, node.Bounds.Contains(c0), "node %d", idx)
		assert.True(t, node.Bounds.Contains(c1), "node %d", idx)
		assert.Equal(t, c0.Union(c1), node.Bounds, "node %d", idx)
	})
}

func TestBuildBoundContainment(t *testing.T) {
	for _, n := range []int{1, 2, 100, 10_000} {
		rng := rand.New(rand.NewSource(int64(n)))
		tris := randomTriangles(rng, n, 50)

		tree, err := BuildTriangleBVH(tris)
		require.NoError(t, err)
		checkContainment(t, tree)
		assert.Equal(t, n, tree.Len())

		for i, tri := range tris {
			assert.True(t, tree.Bounds().Contains(tri.Bounds()), "n=%d triangle %d", n, i)
		}
	}
}

func TestBuildLeafPairing(t *testing.T) {
	tree, err := BuildTriangleBVH(randomTriangles(rand.New(rand.NewSource(3)), 64, 10))
	require.NoError(t, err)

	seen := map[uint32]bool{}
	tree.walk(func(_ int32, node *Node, _ int) {
		if !node.Leaf {
			assert.Equal(t, [2]uint32{NullIndex, NullIndex}, node.Items)
			return
		}
		assert.GreaterOrEqual(t, node.Count, uint8(1))
		assert.LessOrEqual(t, node.Count, uint8(2))
		for k := range int(node.Count) {
			assert.False(t, seen[node.Items[k]])
			seen[node.Items[k]] = true
		}
	})
	assert.Len(t, seen, 64)
}

func TestBuildIsDeterministic(t *testing.T) {
	tris := randomTriangles(rand.New(rand.NewSource(11)), 1000, 20)

	a, err := BuildTriangleBVH(tris)
	require.NoError(t, err)
	b, err := BuildTriangleBVH(tris)
	require.NoError(t, err)

	assert.Equal(t, a.Nodes, b.Nodes)
	assert.Equal(t, a.Flatten(), b.Flatten())
}

func TestBuildSmallInputs(t *testing.T) {
	empty, err := BuildTriangleBVH(nil)
	require.NoError(t, err)
	require.Len(t, empty.Nodes, 1)
	assert.True(t, empty.Nodes[0].Leaf)
	assert.Equal(t, uint8(0), empty.Nodes[0].Count)
	assert.True(t, empty.Bounds().IsEmpty())
	assert.Equal(t, 0, empty.Len())

	tri := Triangle{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	single, err := BuildTriangleBVH([]Triangle{tri})
	require.NoError(t, err)
	require.Len(t, single.Nodes, 1)
	assert.Equal(t, [2]uint32{0, NullIndex}, single.Nodes[0].Items)
	assert.Equal(t, tri.Bounds(), single.Bounds())
	require.NoError(t, single.Validate())
}

func TestBuildRejectsNonFinite(t *testing.T) {
	tests := []struct {
		name string
		bad  float32
	}{
		{name: "nan", bad: math32.NaN()},
		{name: "inf", bad: math32.Inf(1)},
		{name: "negative inf", bad: math32.Inf(-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tris := randomTriangles(rand.New(rand.NewSource(1)), 10, 5)
			tris[7][2][1] = tt.bad
			_, err := BuildTriangleBVH(tris)
			assert.ErrorIs(t, err, ErrDegenerateGeometry)
		})
	}
}

func TestBuildCoincidentCentroids(t *testing.T) {
	tri := Triangle{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	tris := make([]Triangle, 33)
	for i := range tris {
		tris[i] = tri
	}
	tree, err := BuildTriangleBVH(tris)
	require.NoError(t, err)
	checkContainment(t, tree)
	assert.Equal(t, 33, tree.Len())
	assert.LessOrEqual(t, tree.Depth(), 7, "centroid-median fallback keeps the tree balanced")
}

func TestFlattenLayout(t *testing.T) {
	tris := randomTriangles(rand.New(rand.NewSource(5)), 9, 10)
	tree, err := BuildTriangleBVH(tris)
	require.NoError(t, err)

	flat := tree.Flatten()
	require.Equal(t, tree.NodeCount(), flat.Len())
	require.Len(t, flat.Bounds, flat.Len()*12)

	payloads := 0
	for i := range flat.Len() {
		s := flat.slots(uint32(i))
		for k := range 2 {
			if s.ids[k] == NullIndex {
				assert.True(t, s.leaf, "only leaves have null slots")
				assert.True(t, s.boxes[k].IsEmpty())
				continue
			}
			if s.leaf {
				payloads++
				assert.Equal(t, tris[s.ids[k]].Bounds(), s.boxes[k])
			} else {
				assert.Greater(t, s.ids[k], uint32(i), "children follow their parent in preorder")
			}
		}
	}
	assert.Equal(t, 9, payloads)

	emptyFlat := (&Tree{Root: noNode}).Flatten()
	assert.Equal(t, []uint32{0, NullIndex, NullIndex}, emptyFlat.Nodes)
}

func TestAABB(t *testing.T) {
	b := NewAABB(mgl32.Vec3{1, 2, 3}, mgl32.Vec3{-1, 0, 5})
	assert.Equal(t, mgl32.Vec3{-1, 0, 3}, b.Min)
	assert.Equal(t, mgl32.Vec3{1, 2, 5}, b.Max)
	assert.Equal(t, mgl32.Vec3{0, 1, 4}, b.Centroid())
	assert.Equal(t, float32(24), b.SurfaceArea())

	assert.Equal(t, 0, NewAABB(mgl32.Vec3{}, mgl32.Vec3{1, 1, 1}).LongestAxis(), "ties pick x")
	assert.Equal(t, 1, NewAABB(mgl32.Vec3{}, mgl32.Vec3{1, 2, 2}).LongestAxis(), "ties pick y over z")
	assert.Equal(t, 2, NewAABB(mgl32.Vec3{}, mgl32.Vec3{1, 2, 3}).LongestAxis())

	assert.True(t, EmptyAABB().IsEmpty())
	assert.Equal(t, b, EmptyAABB().Union(b))
	assert.True(t, b.Contains(EmptyAABB()))

	rot := mgl32.Rotate3DZ(math32.Pi / 2)
	moved := NewAABB(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{2, 1, 1}).Transform(rot, mgl32.Vec3{10, 0, 0})
	assert.InDelta(t, 9, moved.Min[0], 1e-5)
	assert.InDelta(t, 10, moved.Max[0], 1e-5)
	assert.InDelta(t, 0, moved.Min[1], 1e-5)
	assert.InDelta(t, 2, moved.Max[1], 1e-5)
}
