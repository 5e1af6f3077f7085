package bvh

import (
	"math/rand"
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quadTriangle returns an axis-aligned triangle in the plane z = z covering [-1, 1] in x and y around (x, y).
func quadTriangle(x, y, z float32) Triangle {
	return Triangle{{x - 1, y - 1, z}, {x + 1, y - 1, z}, {x - 1, y + 1, z}}
}

func TestNearestHitTwoTriangles(t *testing.T) {
	// the far triangle comes first so insertion order cannot explain the result
	tris := []Triangle{
		quadTriangle(0, 0, -9),
		quadTriangle(0, 0, -4),
	}
	tree, err := BuildTriangleBVH(tris)
	require.NoError(t, err)

	ray := Ray{Origin: mgl32.Vec3{-0.5, -0.5, 1}, Direction: mgl32.Vec3{0, 0, -1}}
	hit := tree.NearestTriangle(tris, ray, 0)
	require.True(t, hit.Ok())
	assert.Equal(t, uint32(1), hit.TriangleID)
	assert.InDelta(t, 5, hit.Distance, 1e-5)

	miss := tree.NearestTriangle(tris, Ray{Origin: mgl32.Vec3{5, 5, 1}, Direction: mgl32.Vec3{0, 0, -1}}, 0)
	assert.False(t, miss.Ok())
	assert.True(t, math32.IsInf(miss.Distance, 1))
	assert.Equal(t, uint32(NullIndex), miss.TriangleID)

	away := tree.NearestTriangle(tris, Ray{Origin: mgl32.Vec3{-0.5, -0.5, 1}, Direction: mgl32.Vec3{0, 0, 1}}, 0)
	assert.False(t, away.Ok())
}

func TestZeroAreaTriangleNeverHit(t *testing.T) {
	tris := []Triangle{
		{{-1, 0, -2}, {0, 0, -2}, {1, 0, -2}},
		quadTriangle(0, 0, -6),
	}
	tree, err := BuildTriangleBVH(tris)
	require.NoError(t, err)

	hit := tree.NearestTriangle(tris, Ray{Origin: mgl32.Vec3{-0.5, 0, 0}, Direction: mgl32.Vec3{0, 0, -1}}, 0)
	require.True(t, hit.Ok())
	assert.Equal(t, uint32(1), hit.TriangleID)
	assert.InDelta(t, 6, hit.Distance, 1e-6)
}

func bruteForce(tris []Triangle, r Ray) Hit {
	best := NoHit()
	for i, tri := range tris {
		if d, _, _, ok := IntersectTriangle(r, tri, best.Distance); ok {
			best.Distance, best.TriangleID = d, uint32(i)
		}
	}
	return best
}

func TestTraversalMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tris := randomTriangles(rng, 2000, 30)
	tree, err := BuildTriangleBVH(tris)
	require.NoError(t, err)
	flat := tree.Flatten()

	for i := range 200 {
		target := tris[rng.Intn(len(tris))]
		aim := target[0].Add(target[1]).Add(target[2]).Mul(1.0 / 3)
		origin := mgl32.Vec3{rng.Float32()*200 - 100, rng.Float32()*200 - 100, rng.Float32()*200 - 100}
		r := Ray{Origin: origin, Direction: aim.Sub(origin)}

		want := bruteForce(tris, r)
		got := tree.NearestTriangle(tris, r, 64)
		require.True(t, want.Ok(), "ray %d aims at a triangle centroid", i)
		require.True(t, got.Ok(), "ray %d", i)
		assert.InDelta(t, want.Distance, got.Distance, 1e-5, "ray %d", i)
		assert.False(t, got.Truncated)

		flatRes := flat.Traverse(r, math32.Inf(1), 64, func(id uint32, tMax float32) (float32, bool) {
			d, _, _, ok := IntersectTriangle(r, tris[id], tMax)
			return d, ok
		})
		assert.Equal(t, got.Distance, flatRes.Distance, "ray %d", i)
		assert.Equal(t, got.TriangleID, flatRes.ID, "ray %d", i)
	}
}

func TestTraversalTruncation(t *testing.T) {
	// a row of triangles along -z, all crossed by one ray
	tris := make([]Triangle, 256)
	for i := range tris {
		tris[i] = quadTriangle(0, 0, -float32(i+1))
	}
	tree, err := BuildTriangleBVH(tris)
	require.NoError(t, err)
	ray := Ray{Origin: mgl32.Vec3{-0.5, -0.5, 0}, Direction: mgl32.Vec3{0, 0, -1}}

	full := tree.NearestTriangle(tris, ray, 64)
	require.True(t, full.Ok())
	assert.Equal(t, uint32(0), full.TriangleID)
	assert.InDelta(t, 1, full.Distance, 1e-6)

	limited := tree.NearestTriangle(tris, ray, 1)
	assert.True(t, limited.Truncated, "a depth of one cannot hold both children")
	if limited.Ok() {
		assert.GreaterOrEqual(t, limited.Distance, full.Distance)
	}
}

func TestTraversalEmptyTree(t *testing.T) {
	tree, err := BuildTriangleBVH(nil)
	require.NoError(t, err)
	hit := tree.NearestTriangle(nil, Ray{Direction: mgl32.Vec3{0, 0, 1}}, 0)
	assert.False(t, hit.Ok())

	res := tree.Flatten().Traverse(Ray{Direction: mgl32.Vec3{0, 0, 1}}, 10, 0, func(uint32, float32) (float32, bool) {
		t.Fatal("no payload to test")
		return 0, false
	})
	assert.False(t, res.Hit())
	assert.Equal(t, float32(10), res.Distance)
}

func TestIntersectRay(t *testing.T) {
	box := NewAABB(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1})

	d, ok := box.IntersectRay(Ray{Origin: mgl32.Vec3{0, 0, 5}, Direction: mgl32.Vec3{0, 0, -1}}, math32.Inf(1))
	require.True(t, ok)
	assert.Equal(t, float32(4), d)

	d, ok = box.IntersectRay(Ray{Origin: mgl32.Vec3{0, 0, 0}, Direction: mgl32.Vec3{1, 0, 0}}, math32.Inf(1))
	require.True(t, ok, "origin inside")
	assert.Equal(t, float32(0), d)

	_, ok = box.IntersectRay(Ray{Origin: mgl32.Vec3{0, 0, 5}, Direction: mgl32.Vec3{0, 0, -1}}, 3)
	assert.False(t, ok, "beyond tMax")

	_, ok = box.IntersectRay(Ray{Origin: mgl32.Vec3{2, 0, 5}, Direction: mgl32.Vec3{0, 0, -1}}, math32.Inf(1))
	assert.False(t, ok, "parallel and outside")

	plane := NewAABB(mgl32.Vec3{-1, -1, 0}, mgl32.Vec3{1, 1, 0})
	d, ok = plane.IntersectRay(Ray{Origin: mgl32.Vec3{0, 0, 3}, Direction: mgl32.Vec3{0, 0, -1}}, math32.Inf(1))
	require.True(t, ok, "flat boxes are legal")
	assert.Equal(t, float32(3), d)

	nan := AABB{Min: mgl32.Vec3{math32.NaN(), 0, 0}, Max: mgl32.Vec3{1, 1, 1}}
	_, ok = nan.IntersectRay(Ray{Origin: mgl32.Vec3{0.5, 0.5, 3}, Direction: mgl32.Vec3{0, 0, -1}}, math32.Inf(1))
	assert.False(t, ok, "degenerate boxes are never hit")

	_, ok = EmptyAABB().IntersectRay(Ray{Direction: mgl32.Vec3{1, 1, 1}}, math32.Inf(1))
	assert.False(t, ok)
}
