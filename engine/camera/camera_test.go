package camera

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertVec(t *testing.T, want, got mgl32.Vec3, msgAndArgs ...any) {
	t.Helper()
	for i := range 3 {
		assert.InDelta(t, want[i], got[i], 1e-4, msgAndArgs...)
	}
}

func TestScreenRay(t *testing.T) {
	cam := NewCamera(
		WithPosition(mgl32.Vec3{0, 0, 5}),
		WithTarget(mgl32.Vec3{0, 0, 0}),
		WithFov(math32.Pi/2),
		WithAspect(2),
	)

	center := cam.ScreenRay(100, 50, 200, 100)
	assert.Equal(t, mgl32.Vec3{0, 0, 5}, center.Origin)
	assertVec(t, mgl32.Vec3{0, 0, -1}, center.Direction, "center")

	tests := []struct {
		name string
		x, y float32
		want mgl32.Vec3
	}{
		{name: "right edge", x: 200, y: 50, want: mgl32.Vec3{2, 0, -1}.Normalize()},
		{name: "left edge", x: 0, y: 50, want: mgl32.Vec3{-2, 0, -1}.Normalize()},
		{name: "top edge", x: 100, y: 0, want: mgl32.Vec3{0, 1, -1}.Normalize()},
		{name: "bottom edge", x: 100, y: 100, want: mgl32.Vec3{0, -1, -1}.Normalize()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := cam.ScreenRay(tt.x, tt.y, 200, 100)
			assertVec(t, tt.want, r.Direction)
			assert.InDelta(t, 1, r.Direction.Len(), 1e-5)
		})
	}
}

func TestFrustum(t *testing.T) {
	cam := NewCamera(WithPosition(mgl32.Vec3{0, 0, 5}), WithFar(50))
	f := cam.Frustum()

	assert.True(t, f.IntersectsBox(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1}), "target")
	assert.False(t, f.IntersectsBox(mgl32.Vec3{-1, -1, 9}, mgl32.Vec3{1, 1, 11}), "behind the eye")
	assert.False(t, f.IntersectsBox(mgl32.Vec3{-1, -1, -100}, mgl32.Vec3{1, 1, -98}), "beyond far")
	assert.False(t, f.IntersectsBox(mgl32.Vec3{50, -1, -1}, mgl32.Vec3{52, 1, 1}), "off to the side")
}

func TestMatricesFollowSetters(t *testing.T) {
	cam := NewCamera()
	before := cam.ViewProjection()

	cam.SetPosition(mgl32.Vec3{3, 0, 0})
	assert.NotEqual(t, before, cam.ViewProjection())
	assert.Equal(t, cam.ProjectionMatrix().Mul4(cam.ViewMatrix()), cam.ViewProjection())

	cam.SetFov(1)
	cam.SetAspect(1.5)
	cam.SetNear(0.5)
	cam.SetFar(20)
	cam.SetUp(mgl32.Vec3{0, 0, 1})
	cam.SetTarget(mgl32.Vec3{0, 1, 0})
	assert.Equal(t, float32(1), cam.Fov())
	assert.Equal(t, float32(1.5), cam.Aspect())
	assert.Equal(t, float32(0.5), cam.Near())
	assert.Equal(t, float32(20), cam.Far())
	assert.Equal(t, mgl32.Vec3{0, 0, 1}, cam.Up())
	assert.Equal(t, mgl32.Vec3{0, 1, 0}, cam.Target())

	eye := cam.ViewMatrix().Mul4x1(mgl32.Vec4{3, 0, 0, 1})
	assertVec(t, mgl32.Vec3{}, eye.Vec3(), "the eye maps to the view-space origin")
}

func TestOrbitController(t *testing.T) {
	ctrl := NewOrbitController(WithRadius(10))
	assertVec(t, mgl32.Vec3{0, 0, 10}, ctrl.Position())

	ctrl.Orbit(math32.Pi/2, 0)
	assertVec(t, mgl32.Vec3{10, 0, 0}, ctrl.Position())
	assert.InDelta(t, math32.Pi/2, ctrl.Azimuth(), 1e-6)

	ctrl.Orbit(0, 10)
	assert.Equal(t, float32(math32.Pi/2-0.01), ctrl.Elevation())

	ctrl = NewOrbitController(WithRadius(10), WithRadiusBounds(2, 20), WithZoomSpeed(2))
	ctrl.Zoom(3)
	assert.Equal(t, float32(4), ctrl.Radius())
	ctrl.Zoom(100)
	assert.Equal(t, float32(2), ctrl.Radius())
	ctrl.Zoom(-100)
	assert.Equal(t, float32(20), ctrl.Radius())
}

func TestOrbitControllerPan(t *testing.T) {
	ctrl := NewOrbitController(WithRadius(10), WithPanSpeed(1))
	ctrl.Pan(2, 3, 4)
	assertVec(t, mgl32.Vec3{2, 3, -4}, ctrl.Target())
	assertVec(t, mgl32.Vec3{2, 3, 6}, ctrl.Position())
	assert.InDelta(t, 10, ctrl.Position().Sub(ctrl.Target()).Len(), 1e-4)

	ctrl.SetTarget(mgl32.Vec3{1, 1, 1})
	assertVec(t, mgl32.Vec3{1, 1, 11}, ctrl.Position())
}

func TestCameraFollowsController(t *testing.T) {
	ctrl := NewOrbitController(WithRadius(8), WithPivot(mgl32.Vec3{1, 0, 0}))
	cam := NewCamera(WithController(ctrl))
	require.NotNil(t, cam.Controller())
	assertVec(t, mgl32.Vec3{1, 0, 8}, cam.Position())
	assertVec(t, mgl32.Vec3{1, 0, 0}, cam.Target())

	ctrl.Zoom(3)
	assertVec(t, mgl32.Vec3{1, 0, 8}, cam.Position(), "stale until Update")
	cam.Update()
	assertVec(t, mgl32.Vec3{1, 0, 5}, cam.Position())

	r := cam.ScreenRay(0.5, 0.5, 1, 1)
	assertVec(t, mgl32.Vec3{0, 0, -1}, r.Direction)

	cam.SetController(nil)
	cam.SetPosition(mgl32.Vec3{0, 0, 2})
	cam.Update()
	assert.Equal(t, mgl32.Vec3{0, 0, 2}, cam.Position())
}
