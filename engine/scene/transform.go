package scene

import (
	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// TransformStride is the number of float32 values one packed transform occupies:
// the three rows of the scaled rotation each padded with a zero, the position,
// the three rows of its pseudoinverse, and the negated position.
const TransformStride = 32

// Transform places a prototype in the world as position + rotation * scale.
// The zero value is not usable; start from NewTransform.
type Transform struct {
	position mgl32.Vec3
	rotation mgl32.Mat3
	scale    mgl32.Vec3
}

// NewTransform returns the identity transform.
func NewTransform() Transform {
	return Transform{rotation: mgl32.Ident3(), scale: mgl32.Vec3{1, 1, 1}}
}

func (t Transform) Position() mgl32.Vec3 { return t.position }

func (t Transform) Rotation() mgl32.Mat3 { return t.rotation }

func (t Transform) Scale() mgl32.Vec3 { return t.scale }

// SetPosition moves the transform to p.
func (t *Transform) SetPosition(p mgl32.Vec3) {
	t.position = p
}

// SetRotation replaces the rotation. m is expected to be orthonormal.
func (t *Transform) SetRotation(m mgl32.Mat3) {
	t.rotation = m
}

// RotateAxis replaces the rotation with theta radians around axis.
//
// Parameters:
//   - axis: the rotation axis, need not be normalized
//   - theta: the angle in radians
func (t *Transform) RotateAxis(axis mgl32.Vec3, theta float32) {
	t.rotation = common.RotationAxis(axis, theta)
}

// RotateSpherical replaces the rotation with a yaw of theta followed by a pitch of psi, both in radians.
//
// Parameters:
//   - theta: rotation around the y axis
//   - psi: rotation around the resulting x axis
func (t *Transform) RotateSpherical(theta, psi float32) {
	sT, cT := math32.Sincos(theta)
	sP, cP := math32.Sincos(psi)
	// rows: (cT, 0, sT), (-sT*sP, cP, cT*sP), (-sT*cP, -sP, cT*cP)
	t.rotation = mgl32.Mat3FromRows(
		mgl32.Vec3{cT, 0, sT},
		mgl32.Vec3{-sT * sP, cP, cT * sP},
		mgl32.Vec3{-sT * cP, -sP, cT * cP},
	)
}

// SetScale sets the per-axis scale. Zero components flatten the prototype along that axis.
func (t *Transform) SetScale(s mgl32.Vec3) {
	t.scale = s
}

// SetUniformScale sets the same scale on every axis.
func (t *Transform) SetUniformScale(s float32) {
	t.scale = mgl32.Vec3{s, s, s}
}

// Linear returns the scaled rotation, rotation * diag(scale).
func (t Transform) Linear() mgl32.Mat3 {
	return t.rotation.Mul3(mgl32.Diag3(t.scale))
}

// Matrix returns the full object-to-world matrix.
func (t Transform) Matrix() mgl32.Mat4 {
	m := t.Linear().Mat4()
	m.SetCol(3, t.position.Vec4(1))
	return m
}

// Inverse returns the Moore-Penrose pseudoinverse of Linear, which maps world directions back to object space
// even when a scale component is zero.
func (t Transform) Inverse() mgl32.Mat3 {
	return common.PseudoInverse(t.rotation, t.scale)
}

// ToObject maps a world-space point into object space.
func (t Transform) ToObject(p mgl32.Vec3) mgl32.Vec3 {
	return t.Inverse().Mul3x1(p.Sub(t.position))
}

// ToWorld maps an object-space point into world space.
func (t Transform) ToWorld(p mgl32.Vec3) mgl32.Vec3 {
	return t.Linear().Mul3x1(p).Add(t.position)
}

// Pack writes the GPU layout of the transform into dst, which must hold TransformStride values.
func (t Transform) Pack(dst []float32) {
	_ = dst[TransformStride-1]
	m, inv := t.Linear(), t.Inverse()
	for r := range 3 {
		row, irow := m.Row(r), inv.Row(r)
		copy(dst[r*4:], []float32{row[0], row[1], row[2], 0})
		copy(dst[16+r*4:], []float32{irow[0], irow[1], irow[2], 0})
	}
	p := t.position
	copy(dst[12:], []float32{p[0], p[1], p[2], 0})
	copy(dst[28:], []float32{-p[0], -p[1], -p[2], 0})
}
