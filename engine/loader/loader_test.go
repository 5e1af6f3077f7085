package loader

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/chewxy/math32"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sceneMTL = `# materials
newmtl red
Ka 0.1 0.1 0.1
Kd 1 0 0
Ns 98

newmtl lamp
Ka 0.2 0.4 0.6
Ke 5 5 5
d 0.25
Ni 1.45
Pm 1
`

const sceneOBJ = `mtllib tri.mtl
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vn 0 0 1
o floor
usemtl red
f 1//1 2//1 3//1 4//1
o light
usemtl lamp
f -4 -3 -2
usemtl missing
f 1 3 4
`

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"a/b/model.obj", FormatOBJ},
		{"MODEL.OBJ", FormatOBJ},
		{"scene.gltf", FormatGLTF},
		{"scene.glb", FormatGLB},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatFromPath(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := FormatFromPath("scene.fbx")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestLoadOBJ(t *testing.T) {
	fsys := fstest.MapFS{
		"assets/scene.obj": {Data: []byte(sceneOBJ)},
		"assets/tri.mtl":   {Data: []byte(sceneMTL)},
	}
	l := NewLoader(WithFileSystem(fsys))

	m, err := l.Load("assets/scene.obj")
	require.NoError(t, err)
	assert.Equal(t, "scene", m.Name)
	require.Len(t, m.Meshes, 2)
	assert.Equal(t, 4, m.TriangleCount())

	floor := m.Meshes[0]
	assert.Equal(t, "floor", floor.Label)
	assert.Equal(t, []float32{
		0, 0, 0, 1, 0, 0, 1, 1, 0,
		0, 0, 0, 1, 1, 0, 0, 1, 0,
	}, floor.Positions)
	require.Len(t, floor.Normals, 18)
	for i := 0; i < len(floor.Normals); i += 3 {
		assert.Equal(t, []float32{0, 0, 1}, floor.Normals[i:i+3])
	}
	assert.Equal(t, []uint32{0, 0}, floor.Materials)

	light := m.Meshes[1]
	assert.Equal(t, "light", light.Label)
	assert.Equal(t, []float32{
		0, 0, 0, 1, 0, 0, 1, 1, 0,
		0, 0, 0, 1, 1, 0, 0, 1, 0,
	}, light.Positions)
	assert.Empty(t, light.Normals, "faces without vertex normals leave derivation to the scene")
	assert.Equal(t, []uint32{1, 1}, light.Materials, "an unknown usemtl keeps the active material")

	require.Len(t, m.Materials, 2)
	red, lamp := m.Materials[0], m.Materials[1]
	assert.Equal(t, "red", red.Name)
	assert.Equal(t, [3]float32{1, 0, 0}, red.Color)
	assert.InDelta(t, math32.Sqrt(0.02), red.Roughness, 1e-6)
	assert.Equal(t, float32(1.5), red.IOR)

	assert.Equal(t, "lamp", lamp.Name)
	assert.Equal(t, [3]float32{0.2, 0.4, 0.6}, lamp.Color, "Ka is used without Kd")
	assert.Equal(t, [3]float32{5, 5, 5}, lamp.Emissive)
	assert.InDelta(t, 0.75, lamp.Transmission, 1e-6)
	assert.Equal(t, float32(1.45), lamp.IOR)
	assert.Equal(t, float32(1), lamp.Metallic)
	assert.Equal(t, lamp, m.PrimaryMaterial(1))

	require.Len(t, m.Placements, 2)
	assert.Equal(t, Placement{Name: "floor", Mesh: 0, Matrix: mgl32.Ident4()}, m.Placements[0])
	assert.Equal(t, Placement{Name: "light", Mesh: 1, Matrix: mgl32.Ident4()}, m.Placements[1])
}

func TestLoaderCache(t *testing.T) {
	fsys := fstest.MapFS{
		"plain.obj": {Data: []byte("v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n")},
	}
	l := NewLoader(WithFileSystem(fsys))

	first, err := l.Load("plain.obj")
	require.NoError(t, err)
	assert.Equal(t, "plain", first.Meshes[0].Label)
	assert.Equal(t, []common.MaterialData{common.DefaultMaterialData()}, first.Materials)
	assert.Equal(t, []uint32{0}, first.Meshes[0].Materials)

	delete(fsys, "plain.obj")
	second, err := l.Load("plain.obj")
	require.NoError(t, err)
	assert.Same(t, first, second, "cached models are not read again")
	assert.Same(t, first, l.Get("plain.obj"))
	assert.Contains(t, l.Models(), "plain.obj")

	l.Evict("plain.obj")
	assert.Nil(t, l.Get("plain.obj"))
	_, err = l.Load("plain.obj")
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	preloaded := &Model{Name: "stub"}
	l = NewLoader(WithModel("stub", preloaded))
	assert.Same(t, preloaded, l.Get("stub"))
}

func TestLoadOBJErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		target error
	}{
		{name: "no vertices", source: "f 1 2 3", target: ErrMalformedModel},
		{name: "two corners", source: "v 0 0 0\nv 1 0 0\nf 1 2", target: ErrMalformedModel},
		{name: "zero index", source: "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 0 1 2", target: ErrMalformedModel},
		{name: "normal out of range", source: "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1//1 2//1 3//1", target: ErrMalformedModel},
		{name: "bad number", source: "v a b c", target: ErrMalformedModel},
		{name: "no faces", source: "v 0 0 0\n", target: ErrMalformedModel},
		{name: "missing library", source: "mtllib nope.mtl", target: fs.ErrNotExist},
		{name: "property before newmtl", source: "mtllib early.mtl", target: ErrMalformedModel},
		{name: "duplicate material", source: "mtllib dup.mtl", target: ErrMalformedModel},
	}

	fsys := fstest.MapFS{
		"early.mtl": {Data: []byte("Kd 1 1 1\n")},
		"dup.mtl":   {Data: []byte("newmtl a\nnewmtl a\n")},
	}
	l := NewLoader(WithFileSystem(fsys))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.LoadReader(tt.name, FormatOBJ, strings.NewReader(tt.source))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
			assert.Nil(t, l.Get(tt.name))
		})
	}

	_, err := l.Load("model.fbx")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
	_, err = l.LoadReader("x", Format(42), strings.NewReader(""))
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

// gltfTriangleBuffer holds three VEC3 FLOAT positions followed by three UNSIGNED_SHORT indices, padded to 44 bytes.
func gltfTriangleBuffer() []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}})
	_ = binary.Write(&buf, binary.LittleEndian, []uint16{0, 1, 2})
	buf.Write([]byte{0, 0})
	return buf.Bytes()
}

// gltfTestDocument returns a two-node scene placing a two-primitive mesh. bufferURI may be empty for GLB.
func gltfTestDocument(t *testing.T, bufferURI string) []byte {
	t.Helper()
	buffer := map[string]any{"byteLength": 44}
	if bufferURI != "" {
		buffer["uri"] = bufferURI
	}
	doc := map[string]any{
		"asset":  map[string]any{"version": "2.0"},
		"scene":  0,
		"scenes": []any{map[string]any{"name": "yard", "nodes": []int{0}}},
		"nodes": []any{
			map[string]any{"name": "root", "translation": []float32{1, 0, 0}, "children": []int{1}},
			map[string]any{"name": "leaf", "mesh": 0, "scale": []float32{2, 2, 2}},
		},
		"meshes": []any{map[string]any{
			"name": "tri",
			"primitives": []any{
				map[string]any{"attributes": map[string]int{"POSITION": 0}, "indices": 1, "material": 0},
				map[string]any{"attributes": map[string]int{"POSITION": 0}},
			},
		}},
		"accessors": []any{
			map[string]any{"bufferView": 0, "componentType": gltfComponentTypeFloat, "count": 3, "type": "VEC3"},
			map[string]any{"bufferView": 1, "componentType": gltfComponentTypeUnsignedShort, "count": 3, "type": "SCALAR"},
		},
		"bufferViews": []any{
			map[string]any{"buffer": 0, "byteOffset": 0, "byteLength": 36},
			map[string]any{"buffer": 0, "byteOffset": 36, "byteLength": 6},
		},
		"buffers": []any{buffer},
		"materials": []any{map[string]any{
			"name": "glass",
			"pbrMetallicRoughness": map[string]any{
				"baseColorFactor": []float32{0.5, 0.25, 1, 1},
				"metallicFactor":  0,
				"roughnessFactor": 0.1,
			},
			"emissiveFactor": []float32{1, 0, 0},
			"extensions": map[string]any{
				"KHR_materials_transmission":      map[string]any{"transmissionFactor": 0.9},
				"KHR_materials_ior":               map[string]any{"ior": 1.33},
				"KHR_materials_emissive_strength": map[string]any{"emissiveStrength": 4},
			},
		}},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return data
}

func glbContainer(jsonData, bin []byte) []byte {
	pad := func(b []byte, c byte) []byte {
		for len(b)%4 != 0 {
			b = append(b, c)
		}
		return b
	}
	jsonData = pad(jsonData, ' ')
	bin = pad(bin, 0)

	var out bytes.Buffer
	total := 12 + 8 + len(jsonData) + 8 + len(bin)
	_ = binary.Write(&out, binary.LittleEndian, gltfGLBHeader{Magic: gltfGLBMagic, Version: gltfGLBVersion, Length: uint32(total)})
	_ = binary.Write(&out, binary.LittleEndian, gltfGLBChunkHeader{ChunkLength: uint32(len(jsonData)), ChunkType: gltfGLBChunkJSON})
	out.Write(jsonData)
	_ = binary.Write(&out, binary.LittleEndian, gltfGLBChunkHeader{ChunkLength: uint32(len(bin)), ChunkType: gltfGLBChunkBIN})
	out.Write(bin)
	return out.Bytes()
}

func assertGLTFModel(t *testing.T, m *Model) {
	t.Helper()
	assert.Equal(t, "yard", m.Name)

	require.Len(t, m.Meshes, 1)
	mesh := m.Meshes[0]
	assert.Equal(t, "tri", mesh.Label)
	tri := []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}
	assert.Equal(t, append(append([]float32{}, tri...), tri...), mesh.Positions)
	assert.Empty(t, mesh.Normals)
	assert.Equal(t, []uint32{0, 1}, mesh.Materials, "the primitive without a material gets the appended default")

	require.Len(t, m.Materials, 2)
	glass := m.Materials[0]
	assert.Equal(t, "glass", glass.Name)
	assert.Equal(t, [3]float32{0.5, 0.25, 1}, glass.Color)
	assert.Equal(t, float32(0), glass.Metallic)
	assert.Equal(t, float32(0.1), glass.Roughness)
	assert.Equal(t, [3]float32{4, 0, 0}, glass.Emissive)
	assert.Equal(t, float32(0.9), glass.Transmission)
	assert.Equal(t, float32(1.33), glass.IOR)
	assert.Equal(t, common.DefaultMaterialData(), m.Materials[1])

	require.Len(t, m.Placements, 1)
	pl := m.Placements[0]
	assert.Equal(t, "leaf", pl.Name)
	assert.Equal(t, 0, pl.Mesh)
	pos, rot, scale := pl.Decompose()
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, pos)
	assert.Equal(t, mgl32.Ident3(), rot)
	assert.Equal(t, mgl32.Vec3{2, 2, 2}, scale)
}

func TestLoadGLTF(t *testing.T) {
	bin := gltfTriangleBuffer()

	t.Run("external buffer", func(t *testing.T) {
		fsys := fstest.MapFS{
			"scenes/yard.gltf": {Data: gltfTestDocument(t, "yard.bin")},
			"scenes/yard.bin":  {Data: bin},
		}
		m, err := NewLoader(WithFileSystem(fsys)).Load("scenes/yard.gltf")
		require.NoError(t, err)
		assertGLTFModel(t, m)
	})

	t.Run("data uri", func(t *testing.T) {
		uri := "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(bin)
		m, err := NewLoader().LoadReader("inline", FormatGLTF, bytes.NewReader(gltfTestDocument(t, uri)))
		require.NoError(t, err)
		assertGLTFModel(t, m)
	})

	t.Run("glb", func(t *testing.T) {
		data := glbContainer(gltfTestDocument(t, ""), bin)
		m, err := NewLoader().LoadReader("binary", FormatGLB, bytes.NewReader(data))
		require.NoError(t, err)
		assertGLTFModel(t, m)
	})
}

func TestLoadGLTFErrors(t *testing.T) {
	bin := gltfTriangleBuffer()
	uri := "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(bin)

	mutate := func(edit func(doc map[string]any)) []byte {
		var doc map[string]any
		require.NoError(t, json.Unmarshal(gltfTestDocument(t, uri), &doc))
		edit(doc)
		data, err := json.Marshal(doc)
		require.NoError(t, err)
		return data
	}

	tests := []struct {
		name string
		data []byte
	}{
		{name: "not json", data: []byte("{")},
		{name: "version 1", data: mutate(func(doc map[string]any) {
			doc["asset"] = map[string]any{"version": "1.0"}
		})},
		{name: "short buffer", data: mutate(func(doc map[string]any) {
			doc["buffers"] = []any{map[string]any{"uri": uri, "byteLength": 400}}
		})},
		{name: "accessor past view", data: mutate(func(doc map[string]any) {
			doc["accessors"].([]any)[0].(map[string]any)["count"] = 4
		})},
		{name: "negative count", data: mutate(func(doc map[string]any) {
			doc["accessors"].([]any)[0].(map[string]any)["count"] = -1
		})},
		{name: "overflowing count", data: mutate(func(doc map[string]any) {
			doc["accessors"].([]any)[0].(map[string]any)["count"] = json.RawMessage("4611686018427387904")
		})},
		{name: "negative accessor offset", data: mutate(func(doc map[string]any) {
			doc["accessors"].([]any)[0].(map[string]any)["byteOffset"] = -12
		})},
		{name: "negative stride", data: mutate(func(doc map[string]any) {
			doc["bufferViews"].([]any)[0].(map[string]any)["byteStride"] = -4
		})},
		{name: "stride below element size", data: mutate(func(doc map[string]any) {
			doc["bufferViews"].([]any)[0].(map[string]any)["byteStride"] = 4
		})},
		{name: "view past buffer", data: mutate(func(doc map[string]any) {
			doc["bufferViews"].([]any)[1].(map[string]any)["byteLength"] = json.RawMessage("9223372036854775807")
		})},
		{name: "lines", data: mutate(func(doc map[string]any) {
			prims := doc["meshes"].([]any)[0].(map[string]any)["primitives"].([]any)
			prims[0].(map[string]any)["mode"] = 1
		})},
		{name: "node cycle", data: mutate(func(doc map[string]any) {
			doc["nodes"].([]any)[1].(map[string]any)["children"] = []int{0}
		})},
		{name: "glb without json", data: glbContainer(nil, bin)[:12]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().LoadReader(tt.name, FormatGLTF, bytes.NewReader(tt.data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedModel), "got %v", err)
		})
	}
}

func TestGLTFTriangulate(t *testing.T) {
	idx := []uint32{0, 1, 2, 3, 4}
	assert.Equal(t, [][3]uint32{{0, 1, 2}}, gltfTriangulate(gltfPrimitiveModeTriangles, idx))
	assert.Equal(t, [][3]uint32{{0, 1, 2}, {2, 1, 3}, {2, 3, 4}}, gltfTriangulate(gltfPrimitiveModeTriangleStrip, idx))
	assert.Equal(t, [][3]uint32{{0, 1, 2}, {0, 2, 3}, {0, 3, 4}}, gltfTriangulate(gltfPrimitiveModeTriangleFan, idx))
}

func TestPlacementDecompose(t *testing.T) {
	rot := mgl32.HomogRotate3DY(math32.Pi / 2)
	m := mgl32.Translate3D(1, 2, 3).Mul4(rot).Mul4(mgl32.Scale3D(1, 2, 3))
	pos, r, scale := Placement{Matrix: m}.Decompose()

	assert.Equal(t, mgl32.Vec3{1, 2, 3}, pos)
	assert.InDeltaSlice(t, []float32{1, 2, 3}, scale[:], 1e-5)
	assert.True(t, r.ApproxEqualThreshold(rot.Mat3(), 1e-5))

	_, r, scale = Placement{Matrix: mgl32.Scale3D(-2, 1, 1)}.Decompose()
	assert.Equal(t, mgl32.Vec3{-2, 1, 1}, scale)
	assert.Equal(t, mgl32.Ident3(), r)
}
