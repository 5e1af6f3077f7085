package loader

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/chewxy/math32"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

// objMaxLineLength bounds a single OBJ or MTL line.
const objMaxLineLength = 1 << 20

// objLoaderBackendImpl is the implementation of objLoaderBackend.
type objLoaderBackendImpl struct{}

// objLoaderBackend is a loaderBackend implementation for Wavefront OBJ files and their MTL libraries.
// Each o or g statement starts a new mesh, polygons are fan-triangulated, and texture coordinates are ignored.
type objLoaderBackend interface {
	loaderBackend
}

var _ objLoaderBackend = &objLoaderBackendImpl{}

// newOBJLoaderBackend creates a new OBJ loader backend.
//
// Returns:
//   - objLoaderBackend: the loader backend for OBJ files
func newOBJLoaderBackend() objLoaderBackend {
	return &objLoaderBackendImpl{}
}

func (b *objLoaderBackendImpl) Load(name string, r io.Reader, src source) (*Model, error) {
	dec := &objDecoder{
		src:             src,
		name:            name,
		matIndex:        make(map[string]int),
		curMaterial:     -1,
		defaultMaterial: -1,
	}
	if err := dec.scan(name, r, dec.parseObjLine); err != nil {
		return nil, err
	}
	dec.finishMesh()
	if len(dec.meshes) == 0 {
		return nil, malformedf("obj: %s has no faces", name)
	}

	placements := make([]Placement, len(dec.meshes))
	for i, mesh := range dec.meshes {
		placements[i] = Placement{Name: mesh.Label, Mesh: i, Matrix: mgl32.Ident4()}
	}
	return &Model{
		Name:       name,
		Meshes:     dec.meshes,
		Materials:  dec.materials,
		Placements: placements,
	}, nil
}

// objDecoder holds the parse state of one OBJ file and the material libraries it pulls in.
type objDecoder struct {
	src  source
	name string

	// file and line locate the statement being parsed, for error messages.
	file string
	line int

	vertices []mgl32.Vec3
	normals  []mgl32.Vec3

	materials       []common.MaterialData
	matIndex        map[string]int
	curMaterial     int
	defaultMaterial int

	// mtl state; kdSet tracks whether the current material has a diffuse color, which takes precedence over Ka.
	mtlCurrent *common.MaterialData
	kdSet      bool

	meshes  []common.MeshData
	current *meshBuilder
}

// scan feeds every non-empty, non-comment line of r to parseLine, split into fields.
func (dec *objDecoder) scan(file string, r io.Reader, parseLine func(fields []string) error) error {
	prevFile, prevLine := dec.file, dec.line
	dec.file, dec.line = file, 0
	defer func() { dec.file, dec.line = prevFile, prevLine }()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), objMaxLineLength)
	for scanner.Scan() {
		dec.line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if err := parseLine(fields); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "%s", file)
	}
	return nil
}

// formatError locates msg at the current file and line.
func (dec *objDecoder) formatError(format string, args ...any) error {
	return malformedf("%s:%d: %s", dec.file, dec.line, fmt.Sprintf(format, args...))
}

func (dec *objDecoder) parseObjLine(fields []string) error {
	switch fields[0] {
	case "v":
		v, err := dec.parseVec3(fields)
		if err != nil {
			return err
		}
		dec.vertices = append(dec.vertices, v)
	case "vn":
		v, err := dec.parseVec3(fields)
		if err != nil {
			return err
		}
		dec.normals = append(dec.normals, v)
	case "f":
		return dec.parseFace(fields[1:])
	case "o", "g":
		name := ""
		if len(fields) > 1 {
			name = strings.Join(fields[1:], " ")
		}
		dec.startMesh(name)
	case "usemtl":
		return dec.parseUsemtl(fields[1:])
	case "mtllib":
		return dec.parseMatlib(fields[1:])
	}
	return nil
}

// startMesh finishes the current mesh and opens a new one. An empty current mesh is renamed instead.
func (dec *objDecoder) startMesh(name string) {
	if name == "" {
		name = dec.name
	}
	if dec.current != nil && dec.current.empty() {
		dec.current.label = name
		return
	}
	dec.finishMesh()
	dec.current = newMeshBuilder(name)
}

func (dec *objDecoder) finishMesh() {
	if dec.current == nil || dec.current.empty() {
		return
	}
	dec.meshes = append(dec.meshes, dec.current.build())
	dec.current = nil
}

// parseFace fan-triangulates a polygon of three or more corners. Vertex normals are used only when every
// corner names one; otherwise the face normal is used.
func (dec *objDecoder) parseFace(corners []string) error {
	if len(corners) < 3 {
		return dec.formatError("face with %d corners", len(corners))
	}
	if dec.current == nil {
		dec.startMesh("")
	}

	positions := make([]mgl32.Vec3, len(corners))
	normals := make([]mgl32.Vec3, len(corners))
	allNormals := true
	for i, corner := range corners {
		parts := strings.Split(corner, "/")
		vi, err := dec.resolveIndex(parts[0], len(dec.vertices), "vertex")
		if err != nil {
			return err
		}
		positions[i] = dec.vertices[vi]

		if len(parts) >= 3 && parts[2] != "" {
			ni, err := dec.resolveIndex(parts[2], len(dec.normals), "normal")
			if err != nil {
				return err
			}
			normals[i] = dec.normals[ni]
		} else {
			allNormals = false
		}
	}

	material := dec.faceMaterial()
	for i := 1; i+1 < len(corners); i++ {
		p := [3]mgl32.Vec3{positions[0], positions[i], positions[i+1]}
		if allNormals {
			n := [3]mgl32.Vec3{normals[0], normals[i], normals[i+1]}
			dec.current.addTriangle(p, &n, material)
		} else {
			dec.current.addTriangle(p, nil, material)
		}
	}
	return nil
}

// resolveIndex maps a 1-based or negative (relative to the end) OBJ index to a 0-based one.
func (dec *objDecoder) resolveIndex(token string, count int, kind string) (int, error) {
	idx, err := strconv.Atoi(token)
	if err != nil {
		return 0, dec.formatError("%s index %q", kind, token)
	}
	switch {
	case idx > 0:
		idx--
	case idx < 0:
		idx += count
	default:
		return 0, dec.formatError("%s index 0", kind)
	}
	if idx < 0 || idx >= count {
		return 0, dec.formatError("%s index %s out of range for %d entries", kind, token, count)
	}
	return idx, nil
}

// faceMaterial returns the active material, appending the default material the first time a face has none.
func (dec *objDecoder) faceMaterial() uint32 {
	if dec.curMaterial >= 0 {
		return uint32(dec.curMaterial)
	}
	if dec.defaultMaterial < 0 {
		dec.defaultMaterial = len(dec.materials)
		dec.materials = append(dec.materials, common.DefaultMaterialData())
	}
	return uint32(dec.defaultMaterial)
}

// parseUsemtl switches the active material. Unknown names are logged and leave the active material unchanged.
func (dec *objDecoder) parseUsemtl(fields []string) error {
	if len(fields) != 1 {
		return dec.formatError("usemtl expects 1 argument, got %d", len(fields))
	}
	idx, ok := dec.matIndex[fields[0]]
	if !ok {
		common.ComponentLogger("loader").Warn("unknown material", slog.String("format", "obj"), slog.String("material", fields[0]), slog.String("file", dec.file), slog.Int("line", dec.line))
		return nil
	}
	dec.curMaterial = idx
	return nil
}

func (dec *objDecoder) parseMatlib(fields []string) error {
	if len(fields) == 0 {
		return dec.formatError("mtllib without a file")
	}
	for _, lib := range fields {
		data, err := dec.src.open(lib)
		if err != nil {
			return errors.Wrapf(err, "%s:%d: mtllib", dec.file, dec.line)
		}
		if err := dec.scan(lib, bytes.NewReader(data), dec.parseMtlLine); err != nil {
			return err
		}
		dec.mtlCurrent = nil
	}
	return nil
}

func (dec *objDecoder) parseMtlLine(fields []string) error {
	if fields[0] == "newmtl" {
		return dec.parseNewmtl(fields[1:])
	}
	if dec.mtlCurrent == nil {
		return dec.formatError("%q before newmtl", fields[0])
	}

	m := dec.mtlCurrent
	switch fields[0] {
	case "Kd", "Ka", "Ke":
		v, err := dec.parseVec3(fields)
		if err != nil {
			return err
		}
		switch {
		case fields[0] == "Ke":
			m.Emissive = v
		case fields[0] == "Kd":
			m.Color = v
			dec.kdSet = true
		case !dec.kdSet:
			m.Color = v
		}
	case "Ns":
		ns, err := dec.parseScalar(fields)
		if err != nil {
			return err
		}
		m.Roughness = math32.Sqrt(2 / (max(ns, 0) + 2))
	case "Pr":
		return dec.parseInto(fields, &m.Roughness)
	case "Pm":
		return dec.parseInto(fields, &m.Metallic)
	case "Ni":
		return dec.parseInto(fields, &m.IOR)
	case "d":
		d, err := dec.parseScalar(fields)
		if err != nil {
			return err
		}
		m.Transmission = mgl32.Clamp(1-d, 0, 1)
	case "Tr":
		tr, err := dec.parseScalar(fields)
		if err != nil {
			return err
		}
		m.Transmission = mgl32.Clamp(tr, 0, 1)
	}
	return nil
}

func (dec *objDecoder) parseNewmtl(fields []string) error {
	if len(fields) != 1 {
		return dec.formatError("newmtl expects 1 argument, got %d", len(fields))
	}
	name := fields[0]
	if _, exists := dec.matIndex[name]; exists {
		return dec.formatError("material %q already defined", name)
	}
	mat := common.DefaultMaterialData()
	mat.Name = name
	dec.materials = append(dec.materials, mat)
	dec.matIndex[name] = len(dec.materials) - 1
	dec.mtlCurrent = &dec.materials[len(dec.materials)-1]
	dec.kdSet = false
	return nil
}

// parseVec3 reads the three numbers after the keyword; extra fields such as a w coordinate are ignored.
func (dec *objDecoder) parseVec3(fields []string) (mgl32.Vec3, error) {
	if len(fields) < 4 {
		return mgl32.Vec3{}, dec.formatError("%s expects 3 arguments, got %d", fields[0], len(fields)-1)
	}
	var v mgl32.Vec3
	for i := range 3 {
		f, err := strconv.ParseFloat(fields[i+1], 32)
		if err != nil {
			return mgl32.Vec3{}, dec.formatError("%s: %q is not a number", fields[0], fields[i+1])
		}
		v[i] = float32(f)
	}
	return v, nil
}

func (dec *objDecoder) parseScalar(fields []string) (float32, error) {
	if len(fields) < 2 {
		return 0, dec.formatError("%s expects 1 argument", fields[0])
	}
	f, err := strconv.ParseFloat(fields[1], 32)
	if err != nil {
		return 0, dec.formatError("%s: %q is not a number", fields[0], fields[1])
	}
	return float32(f), nil
}

func (dec *objDecoder) parseInto(fields []string, dst *float32) error {
	f, err := dec.parseScalar(fields)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}
