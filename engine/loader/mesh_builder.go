package loader

import (
	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/go-gl/mathgl/mgl32"
)

// meshBuilder accumulates an unindexed triangle list. Triangles without vertex normals get their face normal;
// when no triangle had vertex normals the mesh is emitted without any, and the scene derives them.
type meshBuilder struct {
	label      string
	positions  []float32
	normals    []float32
	materials  []uint32
	hasNormals bool
}

func newMeshBuilder(label string) *meshBuilder {
	return &meshBuilder{label: label}
}

func (b *meshBuilder) empty() bool {
	return len(b.materials) == 0
}

// addTriangle appends one triangle. n may be nil.
func (b *meshBuilder) addTriangle(p [3]mgl32.Vec3, n *[3]mgl32.Vec3, material uint32) {
	for _, v := range p {
		b.positions = append(b.positions, v[0], v[1], v[2])
	}

	var normals [3]mgl32.Vec3
	if n != nil {
		normals = *n
		b.hasNormals = true
	} else {
		face := p[1].Sub(p[0]).Cross(p[2].Sub(p[0]))
		if l := face.Len(); l > 0 {
			face = face.Mul(1 / l)
		}
		normals = [3]mgl32.Vec3{face, face, face}
	}
	for _, v := range normals {
		b.normals = append(b.normals, v[0], v[1], v[2])
	}
	b.materials = append(b.materials, material)
}

func (b *meshBuilder) build() common.MeshData {
	mesh := common.MeshData{
		Label:     b.label,
		Positions: b.positions,
		Materials: b.materials,
	}
	if b.hasNormals {
		mesh.Normals = b.normals
	}
	return mesh
}
