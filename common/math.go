package common

import (
	"unsafe"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// SliceToBytes converts any slice to a byte slice for GPU buffer uploads.
// Uses unsafe pointer operations to create a view into the original data.
// WARNING: The returned slice shares memory with the input - do not modify.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	totalBytes := int(size) * len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), totalBytes)
}

// SizeOf returns the in-memory size in bytes of one value of T.
func SizeOf[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// Perspective creates a perspective projection matrix for WebGPU clip space, where depth maps to [0, 1].
//
// Parameters:
//   - fovY: vertical field of view in radians
//   - aspect: viewport aspect ratio (width/height)
//   - near: near clipping plane distance (must be > 0)
//   - far: far clipping plane distance (must be > near)
//
// Returns:
//   - mgl32.Mat4: the column-major projection matrix
func Perspective(fovY, aspect, near, far float32) mgl32.Mat4 {
	f := 1.0 / math32.Tan(fovY/2.0)

	var out mgl32.Mat4
	out[0] = f / aspect
	out[5] = f
	out[10] = far / (near - far)
	out[11] = -1.0
	out[14] = (near * far) / (near - far)
	return out
}

// LookAt creates a view matrix that transforms world coordinates into camera space.
// Degenerate inputs (eye == center, up parallel to the view direction) fall back to unit lengths
// instead of producing NaNs.
//
// Parameters:
//   - eye: camera position in world space
//   - center: target point the camera looks at
//   - up: up vector defining camera orientation (typically 0,1,0)
//
// Returns:
//   - mgl32.Mat4: the column-major view matrix
func LookAt(eye, center, up mgl32.Vec3) mgl32.Mat4 {
	z := eye.Sub(center)
	if l := z.Len(); l > 0 {
		z = z.Mul(1 / l)
	}
	x := up.Cross(z)
	if l := x.Len(); l > 0 {
		x = x.Mul(1 / l)
	}
	y := z.Cross(x)

	return mgl32.Mat4{
		x[0], y[0], z[0], 0,
		x[1], y[1], z[1], 0,
		x[2], y[2], z[2], 0,
		-x.Dot(eye), -y.Dot(eye), -z.Dot(eye), 1,
	}
}

// RotationAxis returns the 3x3 rotation of theta radians around axis.
// A zero-length axis yields the identity.
//
// Parameters:
//   - axis: rotation axis, need not be normalized
//   - theta: angle in radians
//
// Returns:
//   - mgl32.Mat3: the rotation matrix
func RotationAxis(axis mgl32.Vec3, theta float32) mgl32.Mat3 {
	if axis.Len() == 0 {
		return mgl32.Ident3()
	}
	return mgl32.HomogRotate3D(theta, axis.Normalize()).Mat3()
}

// PseudoInverse returns the Moore-Penrose pseudoinverse of rotation*diag(scale).
// Invertible matrices use the exact inverse. Singular ones (a zero scale axis) invert
// only the non-zero scale components against the transposed rotation, which is exact
// whenever rotation is orthonormal.
//
// Parameters:
//   - rotation: the 3x3 rotation part
//   - scale: per-axis scale applied before the rotation
//
// Returns:
//   - mgl32.Mat3: the pseudoinverse
func PseudoInverse(rotation mgl32.Mat3, scale mgl32.Vec3) mgl32.Mat3 {
	m := rotation.Mul3(mgl32.Diag3(scale))
	if det := m.Det(); det != 0 && !math32.IsInf(det, 0) && !math32.IsNaN(det) {
		return m.Inv()
	}

	var inv mgl32.Vec3
	for i := range 3 {
		if scale[i] != 0 {
			inv[i] = 1 / scale[i]
		}
	}
	return mgl32.Diag3(inv).Mul3(rotation.Transpose())
}
