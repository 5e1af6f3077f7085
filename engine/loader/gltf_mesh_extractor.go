package loader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

// gltfMeshExtractorImpl is the implementation of the gltfMeshExtractor interface.
type gltfMeshExtractorImpl struct {
	parser gltfParser
}

// gltfMeshExtractor turns glTF meshes into unindexed triangle lists.
type gltfMeshExtractor interface {
	// ExtractMesh concatenates every primitive of a mesh into one triangle list.
	// Triangle strips and fans are expanded to lists; point and line primitives are rejected.
	//
	// Parameters:
	//   - meshIndex: the index of the mesh in the document
	//   - fallbackMaterial: the material index of primitives that name none
	//
	// Returns:
	//   - common.MeshData: the triangle list, material indices referring to the document's materials
	//   - error: an ErrMalformedModel error
	ExtractMesh(meshIndex int, fallbackMaterial uint32) (common.MeshData, error)
}

var _ gltfMeshExtractor = &gltfMeshExtractorImpl{}

// newGLTFMeshExtractor creates a mesh extractor over an already parsed document.
func newGLTFMeshExtractor(parser gltfParser) gltfMeshExtractor {
	return &gltfMeshExtractorImpl{parser: parser}
}

func (e *gltfMeshExtractorImpl) ExtractMesh(meshIndex int, fallbackMaterial uint32) (common.MeshData, error) {
	doc := e.parser.Document()
	if meshIndex < 0 || meshIndex >= len(doc.Meshes) {
		return common.MeshData{}, malformedf("gltf: mesh %d out of range", meshIndex)
	}
	mesh := &doc.Meshes[meshIndex]

	label := mesh.Name
	if label == "" {
		label = fmt.Sprintf("mesh_%d", meshIndex)
	}
	b := newMeshBuilder(label)

	for primIdx := range mesh.Primitives {
		prim := &mesh.Primitives[primIdx]
		material := fallbackMaterial
		if prim.Material != nil {
			if *prim.Material < 0 || *prim.Material >= len(doc.Materials) {
				return common.MeshData{}, malformedf("gltf: mesh %q primitive %d references material %d", label, primIdx, *prim.Material)
			}
			material = uint32(*prim.Material)
		}
		if err := e.extractPrimitive(b, prim, material); err != nil {
			return common.MeshData{}, errors.Wrapf(err, "mesh %q primitive %d", label, primIdx)
		}
	}

	if b.empty() {
		return common.MeshData{}, malformedf("gltf: mesh %q has no triangles", label)
	}
	return b.build(), nil
}

// extractPrimitive appends the triangles of one primitive to b.
func (e *gltfMeshExtractorImpl) extractPrimitive(b *meshBuilder, prim *gltfPrimitive, material uint32) error {
	mode := gltfPrimitiveModeTriangles
	if prim.Mode != nil {
		mode = *prim.Mode
	}
	if mode != gltfPrimitiveModeTriangles && mode != gltfPrimitiveModeTriangleStrip && mode != gltfPrimitiveModeTriangleFan {
		return malformedf("gltf: primitive mode %d is not a triangle topology", mode)
	}

	posAccessor, ok := prim.Attributes["POSITION"]
	if !ok {
		return malformedf("gltf: primitive has no POSITION attribute")
	}
	positions, err := e.parser.ReadVec3Accessor(posAccessor)
	if err != nil {
		return err
	}

	var normals [][3]float32
	if normalAccessor, ok := prim.Attributes["NORMAL"]; ok {
		normals, err = e.parser.ReadVec3Accessor(normalAccessor)
		if err != nil {
			return err
		}
		if len(normals) != len(positions) {
			return malformedf("gltf: %d normals for %d positions", len(normals), len(positions))
		}
	}

	var indices []uint32
	if prim.Indices != nil {
		indices, err = e.parser.ReadIndicesAccessor(*prim.Indices)
		if err != nil {
			return err
		}
	} else {
		indices = make([]uint32, len(positions))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}

	for _, tri := range gltfTriangulate(mode, indices) {
		var p, n [3]mgl32.Vec3
		for k, idx := range tri {
			if int(idx) >= len(positions) {
				return malformedf("gltf: index %d out of range for %d vertices", idx, len(positions))
			}
			p[k] = positions[idx]
			if normals != nil {
				n[k] = normals[idx]
			}
		}
		if normals != nil {
			b.addTriangle(p, &n, material)
		} else {
			b.addTriangle(p, nil, material)
		}
	}
	return nil
}

// gltfTriangulate expands an index stream of the given topology into triangles.
// Strips alternate winding so every triangle keeps the orientation of the first.
func gltfTriangulate(mode int, indices []uint32) [][3]uint32 {
	var out [][3]uint32
	switch mode {
	case gltfPrimitiveModeTriangleStrip:
		for i := 0; i+2 < len(indices); i++ {
			if i%2 == 0 {
				out = append(out, [3]uint32{indices[i], indices[i+1], indices[i+2]})
			} else {
				out = append(out, [3]uint32{indices[i+1], indices[i], indices[i+2]})
			}
		}
	case gltfPrimitiveModeTriangleFan:
		for i := 1; i+1 < len(indices); i++ {
			out = append(out, [3]uint32{indices[0], indices[i], indices[i+1]})
		}
	default:
		for i := 0; i+2 < len(indices); i += 3 {
			out = append(out, [3]uint32{indices[i], indices[i+1], indices[i+2]})
		}
	}
	return out
}
