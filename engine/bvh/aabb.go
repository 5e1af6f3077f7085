package bvh

import (
	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// AABB is an axis-aligned bounding box. Point and plane boxes are legal.
// The empty box has Min at +Inf and Max at -Inf so that it is the identity of Union and is never hit.
type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// EmptyAABB returns the empty box.
func EmptyAABB() AABB {
	inf := math32.Inf(1)
	return AABB{
		Min: mgl32.Vec3{inf, inf, inf},
		Max: mgl32.Vec3{-inf, -inf, -inf},
	}
}

// NewAABB returns the smallest box containing all points.
func NewAABB(points ...mgl32.Vec3) AABB {
	b := EmptyAABB()
	for _, p := range points {
		b = b.Grow(p)
	}
	return b
}

// IsEmpty reports whether the box contains no points.
func (b AABB) IsEmpty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

// IsFinite reports whether every coordinate is a finite number.
func (b AABB) IsFinite() bool {
	for i := range 3 {
		if !finite(b.Min[i]) || !finite(b.Max[i]) {
			return false
		}
	}
	return true
}

func finite(f float32) bool {
	return !math32.IsNaN(f) && !math32.IsInf(f, 0)
}

// Grow returns the box extended to contain p.
func (b AABB) Grow(p mgl32.Vec3) AABB {
	for i := range 3 {
		b.Min[i] = math32.Min(b.Min[i], p[i])
		b.Max[i] = math32.Max(b.Max[i], p[i])
	}
	return b
}

// Union returns the smallest box containing b and o.
func (b AABB) Union(o AABB) AABB {
	for i := range 3 {
		b.Min[i] = math32.Min(b.Min[i], o.Min[i])
		b.Max[i] = math32.Max(b.Max[i], o.Max[i])
	}
	return b
}

// Contains reports whether o lies entirely inside b. The empty box is contained in every box.
func (b AABB) Contains(o AABB) bool {
	if o.IsEmpty() {
		return true
	}
	for i := range 3 {
		if o.Min[i] < b.Min[i] || o.Max[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// Extent returns Max - Min, or zero for the empty box.
func (b AABB) Extent() mgl32.Vec3 {
	if b.IsEmpty() {
		return mgl32.Vec3{}
	}
	return b.Max.Sub(b.Min)
}

// Centroid returns the center of the box.
func (b AABB) Centroid() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// SurfaceArea returns the area of the box surface.
func (b AABB) SurfaceArea() float32 {
	e := b.Extent()
	return 2 * (e[0]*e[1] + e[1]*e[2] + e[2]*e[0])
}

// LongestAxis returns the axis with the largest extent. Ties pick the lowest axis, x before y before z.
func (b AABB) LongestAxis() int {
	e := b.Extent()
	axis := 0
	for i := 1; i < 3; i++ {
		if e[i] > e[axis] {
			axis = i
		}
	}
	return axis
}

// Transform returns the bounds of the box's eight corners after m*p + t.
//
// Parameters:
//   - m: the linear part of the transform
//   - t: the translation
//
// Returns:
//   - AABB: the transformed bounds, still empty if b is empty
func (b AABB) Transform(m mgl32.Mat3, t mgl32.Vec3) AABB {
	if b.IsEmpty() {
		return b
	}
	out := EmptyAABB()
	for corner := range 8 {
		p := b.Min
		for i := range 3 {
			if corner&(1<<i) != 0 {
				p[i] = b.Max[i]
			}
		}
		out = out.Grow(m.Mul3x1(p).Add(t))
	}
	return out
}

// IntersectRay runs the slab test and returns the entry distance, clamped to zero for origins inside the box.
// Empty and NaN boxes are never hit.
//
// Parameters:
//   - r: the ray
//   - tMax: hits at or beyond this distance are ignored
//
// Returns:
//   - float32: the entry distance
//   - bool: true if the ray enters the box before tMax
func (b AABB) IntersectRay(r Ray, tMax float32) (float32, bool) {
	return b.intersect(r.Origin, r.Direction, invert(r.Direction), tMax)
}

func invert(d mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{1 / d[0], 1 / d[1], 1 / d[2]}
}

func (b AABB) intersect(origin, dir, inv mgl32.Vec3, tMax float32) (float32, bool) {
	tNear, tFar := float32(0), tMax
	for i := range 3 {
		if !(b.Min[i] <= b.Max[i]) {
			return 0, false
		}
		if dir[i] == 0 {
			if origin[i] < b.Min[i] || origin[i] > b.Max[i] {
				return 0, false
			}
			continue
		}
		t0 := (b.Min[i] - origin[i]) * inv[i]
		t1 := (b.Max[i] - origin[i]) * inv[i]
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		if t0 > tNear {
			tNear = t0
		}
		if t1 < tFar {
			tFar = t1
		}
		if !(tNear <= tFar) {
			return 0, false
		}
	}
	return tNear, tNear < tMax
}

// IntersectFrustum reports whether the box is at least partially inside f.
func (b AABB) IntersectFrustum(f *common.Frustum) bool {
	if b.IsEmpty() {
		return false
	}
	return f.IntersectsBox(b.Min, b.Max)
}
