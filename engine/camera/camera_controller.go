package camera

import "github.com/go-gl/mathgl/mgl32"

// Controller owns an eye position and a target. The camera reads both on Update.
// The single implementation orbits the target on spherical coordinates and pans both points along the view axes.
type Controller interface {
	// Position returns the world-space eye position.
	//
	// Returns:
	//   - mgl32.Vec3: the eye position
	Position() mgl32.Vec3

	// Target returns the orbit pivot.
	//
	// Returns:
	//   - mgl32.Vec3: the look-at point
	Target() mgl32.Vec3

	// SetTarget moves the pivot and recomputes the eye from the spherical coordinates.
	//
	// Parameters:
	//   - target: world-space pivot
	SetTarget(target mgl32.Vec3)

	// Orbit rotates the eye around the target. Elevation is clamped to the controller's bounds.
	//
	// Parameters:
	//   - dAzimuth: change of the horizontal angle in radians
	//   - dElevation: change of the vertical angle in radians
	Orbit(dAzimuth, dElevation float32)

	// Zoom moves the eye toward the target. Positive delta zooms in; the radius is clamped to the controller's bounds.
	//
	// Parameters:
	//   - delta: zoom amount scaled by the zoom speed
	Zoom(delta float32)

	// Pan translates eye and target together along the camera's right, up and forward axes.
	//
	// Parameters:
	//   - right, up, forward: distances scaled by the pan speed
	Pan(right, up, forward float32)

	// Radius returns the distance from the target.
	//
	// Returns:
	//   - float32: the orbit radius
	Radius() float32

	// Azimuth returns the horizontal angle around +Y, 0 facing +Z.
	//
	// Returns:
	//   - float32: the azimuth in radians
	Azimuth() float32

	// Elevation returns the vertical angle above the horizontal plane.
	//
	// Returns:
	//   - float32: the elevation in radians
	Elevation() float32
}
