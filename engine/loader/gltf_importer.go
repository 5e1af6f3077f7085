package loader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

// gltfImporterImpl is the implementation of the gltfImporter interface.
type gltfImporterImpl struct {
	parser gltfParser
}

// gltfImporter assembles a Model from a parsed glTF document.
type gltfImporter interface {
	// Import extracts every mesh and material and walks the default scene's node hierarchy into placements.
	//
	// Parameters:
	//   - fallbackName: the model name used when the default scene is unnamed
	//
	// Returns:
	//   - *Model: the model
	//   - error: an ErrMalformedModel error
	Import(fallbackName string) (*Model, error)
}

var _ gltfImporter = &gltfImporterImpl{}

// newGLTFImporter creates an importer over an already parsed document.
func newGLTFImporter(parser gltfParser) gltfImporter {
	return &gltfImporterImpl{parser: parser}
}

func (imp *gltfImporterImpl) Import(fallbackName string) (*Model, error) {
	doc := imp.parser.Document()
	if doc == nil {
		return nil, errors.New("gltf: no document after parsing")
	}

	materials := newGLTFMaterialExtractor(imp.parser).ExtractAllMaterials()
	fallbackMaterial := uint32(len(materials))
	if gltfNeedsFallbackMaterial(doc) {
		materials = append(materials, common.DefaultMaterialData())
	}

	meshExtractor := newGLTFMeshExtractor(imp.parser)
	meshes := make([]common.MeshData, len(doc.Meshes))
	for i := range doc.Meshes {
		mesh, err := meshExtractor.ExtractMesh(i, fallbackMaterial)
		if err != nil {
			return nil, err
		}
		meshes[i] = mesh
	}

	placements, err := gltfPlacements(doc)
	if err != nil {
		return nil, err
	}

	return &Model{
		Name:       gltfExtractModelName(doc, fallbackName),
		Meshes:     meshes,
		Materials:  materials,
		Placements: placements,
	}, nil
}

// gltfNeedsFallbackMaterial reports whether any primitive names no material.
func gltfNeedsFallbackMaterial(doc *gltfDocument) bool {
	for _, mesh := range doc.Meshes {
		for _, prim := range mesh.Primitives {
			if prim.Material == nil {
				return true
			}
		}
	}
	return false
}

// gltfRootNodes returns the roots of the default scene, falling back to scene 0 and then to every
// node that is nobody's child.
func gltfRootNodes(doc *gltfDocument) ([]int, error) {
	if len(doc.Scenes) > 0 {
		sceneIdx := 0
		if doc.Scene != nil {
			sceneIdx = *doc.Scene
		}
		if sceneIdx < 0 || sceneIdx >= len(doc.Scenes) {
			return nil, malformedf("gltf: default scene %d out of range", sceneIdx)
		}
		return doc.Scenes[sceneIdx].Nodes, nil
	}

	isChild := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			if c >= 0 && c < len(isChild) {
				isChild[c] = true
			}
		}
	}
	var roots []int
	for i, child := range isChild {
		if !child {
			roots = append(roots, i)
		}
	}
	return roots, nil
}

// gltfPlacements composes node transforms depth-first and emits one placement per node with a mesh.
// A document without nodes places every mesh once at the origin.
func gltfPlacements(doc *gltfDocument) ([]Placement, error) {
	if len(doc.Nodes) == 0 {
		placements := make([]Placement, len(doc.Meshes))
		for i, mesh := range doc.Meshes {
			placements[i] = Placement{Name: mesh.Name, Mesh: i, Matrix: mgl32.Ident4()}
		}
		return placements, nil
	}

	roots, err := gltfRootNodes(doc)
	if err != nil {
		return nil, err
	}

	var placements []Placement
	onPath := make([]bool, len(doc.Nodes))
	var visit func(nodeIdx int, parent mgl32.Mat4) error
	visit = func(nodeIdx int, parent mgl32.Mat4) error {
		if nodeIdx < 0 || nodeIdx >= len(doc.Nodes) {
			return malformedf("gltf: node %d out of range", nodeIdx)
		}
		if onPath[nodeIdx] {
			return malformedf("gltf: node %d is its own ancestor", nodeIdx)
		}
		onPath[nodeIdx] = true
		defer func() { onPath[nodeIdx] = false }()

		node := &doc.Nodes[nodeIdx]
		world := parent.Mul4(gltfLocalMatrix(node))
		if node.Mesh != nil {
			if *node.Mesh < 0 || *node.Mesh >= len(doc.Meshes) {
				return malformedf("gltf: node %d references mesh %d", nodeIdx, *node.Mesh)
			}
			name := node.Name
			if name == "" {
				name = fmt.Sprintf("node_%d", nodeIdx)
			}
			placements = append(placements, Placement{Name: name, Mesh: *node.Mesh, Matrix: world})
		}
		for _, child := range node.Children {
			if err := visit(child, world); err != nil {
				return err
			}
		}
		return nil
	}

	for _, root := range roots {
		if err := visit(root, mgl32.Ident4()); err != nil {
			return nil, err
		}
	}
	return placements, nil
}

// gltfLocalMatrix returns the node's matrix, or T * R * S from its translation, rotation and scale.
func gltfLocalMatrix(node *gltfNode) mgl32.Mat4 {
	if node.Matrix != nil {
		return mgl32.Mat4(*node.Matrix)
	}
	m := mgl32.Ident4()
	if t := node.Translation; t != nil {
		m = mgl32.Translate3D(t[0], t[1], t[2])
	}
	if r := node.Rotation; r != nil {
		q := mgl32.Quat{W: r[3], V: mgl32.Vec3{r[0], r[1], r[2]}}
		m = m.Mul4(q.Normalize().Mat4())
	}
	if s := node.Scale; s != nil {
		m = m.Mul4(mgl32.Scale3D(s[0], s[1], s[2]))
	}
	return m
}

// gltfExtractModelName prefers the default scene's name over the fallback.
func gltfExtractModelName(doc *gltfDocument, fallbackName string) string {
	sceneIdx := 0
	if doc.Scene != nil {
		sceneIdx = *doc.Scene
	}
	if sceneIdx >= 0 && sceneIdx < len(doc.Scenes) && doc.Scenes[sceneIdx].Name != "" {
		return doc.Scenes[sceneIdx].Name
	}
	if fallbackName != "" {
		return fallbackName
	}
	return "unnamed_model"
}
