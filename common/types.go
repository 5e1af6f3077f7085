// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

// FloatsPerTriangle is the number of float32 values one triangle occupies in a position or normal array.
const FloatsPerTriangle = 9

// MeshData is an unindexed triangle list as produced by a model loader, ready to become a scene prototype.
type MeshData struct {
	// Label names the mesh in logs and GPU resource labels.
	Label string

	// Positions holds three xyz vertices per triangle.
	Positions []float32

	// Normals holds one xyz normal per vertex, laid out like Positions. Empty means flat face normals are derived.
	Normals []float32

	// Materials holds one material index per triangle. Empty means every triangle uses material 0.
	Materials []uint32
}

// TriangleCount returns the number of whole triangles in Positions.
func (m MeshData) TriangleCount() int {
	return len(m.Positions) / FloatsPerTriangle
}

// MaterialData represents surface properties shared by a loader and the per-instance material table.
type MaterialData struct {
	// Name is the material identifier.
	Name string

	// Color is the linear RGB albedo in [0, 1].
	Color [3]float32

	// Emissive is the linear RGB emitted radiance.
	Emissive [3]float32

	// Roughness factor (0.0 = mirror, 1.0 = fully diffuse).
	Roughness float32

	// Metallic factor (0.0 = dielectric, 1.0 = metal).
	Metallic float32

	// Transmission factor (0.0 = opaque, 1.0 = fully transmissive).
	Transmission float32

	// IOR is the index of refraction used for transmission.
	IOR float32
}

// DefaultMaterialData returns a white, half-rough dielectric with an index of refraction of 1.5.
func DefaultMaterialData() MaterialData {
	return MaterialData{
		Name:      "default",
		Color:     [3]float32{1, 1, 1},
		Roughness: 0.5,
		IOR:       1.5,
	}
}
