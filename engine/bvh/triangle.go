package bvh

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// Bias is the smallest determinant accepted by the triangle test; flatter configurations count as parallel.
	Bias = 1e-10
	// Epsilon is the minimum hit distance, keeping secondary rays from re-hitting their origin surface.
	Epsilon = 1.0 / 4096
)

// Ray is a half-line. Direction need not be normalized; hit distances are in units of Direction.
type Ray struct {
	Origin    mgl32.Vec3
	Direction mgl32.Vec3
}

// At returns the point at distance t along the ray.
func (r Ray) At(t float32) mgl32.Vec3 {
	return r.Origin.Add(r.Direction.Mul(t))
}

// Hit is the result of a nearest-hit query.
type Hit struct {
	// Distance is +Inf when nothing was hit.
	Distance   float32
	InstanceID uint32
	TriangleID uint32
	// U and V are the barycentric coordinates of the hit on the triangle.
	U, V float32
	// Truncated is set when the traversal stack limit dropped subtrees, so a nearer hit may have been missed.
	Truncated bool
}

// NoHit returns the no-hit sentinel.
func NoHit() Hit {
	return Hit{Distance: math32.Inf(1), InstanceID: NullIndex, TriangleID: NullIndex}
}

// Ok reports whether the hit is a real intersection.
func (h Hit) Ok() bool {
	return !math32.IsInf(h.Distance, 1)
}

// Triangle is three vertex positions.
type Triangle [3]mgl32.Vec3

// Bounds returns the triangle's bounding box.
func (t Triangle) Bounds() AABB {
	return NewAABB(t[0], t[1], t[2])
}

// IsFinite reports whether all coordinates are finite.
func (t Triangle) IsFinite() bool {
	for _, v := range t {
		for _, c := range v {
			if !finite(c) {
				return false
			}
		}
	}
	return true
}

// TrianglesFromPositions groups a flat x,y,z sequence, nine floats per triangle, into triangles.
// Trailing floats that do not form a whole triangle are ignored.
func TrianglesFromPositions(positions []float32) []Triangle {
	tris := make([]Triangle, len(positions)/9)
	for i := range tris {
		p := positions[i*9:]
		tris[i] = Triangle{
			{p[0], p[1], p[2]},
			{p[3], p[4], p[5]},
			{p[6], p[7], p[8]},
		}
	}
	return tris
}

// IntersectTriangle runs the Möller–Trumbore test. Zero-area triangles are never hit.
//
// Parameters:
//   - r: the ray
//   - tri: the triangle
//   - tMax: hits at or beyond this distance are ignored
//
// Returns:
//   - t: the hit distance
//   - u, v: barycentric coordinates of the hit
//   - ok: true if the ray hits the triangle in (Epsilon, tMax)
func IntersectTriangle(r Ray, tri Triangle, tMax float32) (t, u, v float32, ok bool) {
	e1 := tri[1].Sub(tri[0])
	e2 := tri[2].Sub(tri[0])
	p := r.Direction.Cross(e2)
	det := e1.Dot(p)
	if !(math32.Abs(det) >= Bias) {
		return 0, 0, 0, false
	}
	invDet := 1 / det

	s := r.Origin.Sub(tri[0])
	u = s.Dot(p) * invDet
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}
	q := s.Cross(e1)
	v = r.Direction.Dot(q) * invDet
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}
	t = e2.Dot(q) * invDet
	if !(t > Epsilon && t < tMax) {
		return 0, 0, 0, false
	}
	return t, u, v, true
}
