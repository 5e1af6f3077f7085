package camera

import "github.com/go-gl/mathgl/mgl32"

// ControllerOption is a functional option for configuring a Controller.
type ControllerOption func(*orbitController)

// WithRadius sets the initial orbit radius (distance from target).
//
// Parameters:
//   - radius: distance from the orbit target
//
// Returns:
//   - ControllerOption: functional option to set the radius
func WithRadius(radius float32) ControllerOption {
	return func(cc *orbitController) {
		cc.radius = radius
	}
}

// WithAzimuth sets the initial horizontal angle around the Y axis.
//
// Parameters:
//   - azimuth: horizontal angle in radians (0 = +Z axis)
//
// Returns:
//   - ControllerOption: functional option to set the azimuth
func WithAzimuth(azimuth float32) ControllerOption {
	return func(cc *orbitController) {
		cc.azimuth = azimuth
	}
}

// WithElevation sets the initial vertical angle from the horizontal plane.
//
// Parameters:
//   - elevation: vertical angle in radians (0 = horizontal)
//
// Returns:
//   - ControllerOption: functional option to set the elevation
func WithElevation(elevation float32) ControllerOption {
	return func(cc *orbitController) {
		cc.elevation = elevation
	}
}

// WithPivot sets the initial orbit target.
//
// Parameters:
//   - target: world-space pivot
//
// Returns:
//   - ControllerOption: functional option to set the pivot
func WithPivot(target mgl32.Vec3) ControllerOption {
	return func(cc *orbitController) {
		cc.target = target
	}
}

// WithRadiusBounds limits how far Zoom can move the eye.
//
// Parameters:
//   - minRadius: closest allowed distance
//   - maxRadius: farthest allowed distance
//
// Returns:
//   - ControllerOption: functional option to set the radius bounds
func WithRadiusBounds(minRadius, maxRadius float32) ControllerOption {
	return func(cc *orbitController) {
		cc.minRadius = minRadius
		cc.maxRadius = maxRadius
	}
}

// WithElevationBounds limits how far Orbit can tilt the eye.
//
// Parameters:
//   - minElevation: lowest allowed angle in radians
//   - maxElevation: highest allowed angle in radians
//
// Returns:
//   - ControllerOption: functional option to set the elevation bounds
func WithElevationBounds(minElevation, maxElevation float32) ControllerOption {
	return func(cc *orbitController) {
		cc.minElevation = minElevation
		cc.maxElevation = maxElevation
	}
}

// WithZoomSpeed scales Zoom deltas.
//
// Parameters:
//   - speed: world units per zoom step
//
// Returns:
//   - ControllerOption: functional option to set the zoom speed
func WithZoomSpeed(speed float32) ControllerOption {
	return func(cc *orbitController) {
		cc.zoomSpeed = speed
	}
}

// WithPanSpeed scales Pan distances.
//
// Parameters:
//   - speed: world units per pan step
//
// Returns:
//   - ControllerOption: functional option to set the pan speed
func WithPanSpeed(speed float32) ControllerOption {
	return func(cc *orbitController) {
		cc.panSpeed = speed
	}
}
