package loader

import (
	"bytes"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

// Format identifies the model file format and therefore the backend that parses it.
type Format int

const (
	// FormatOBJ selects the Wavefront OBJ backend; mtllib references are resolved next to the file.
	FormatOBJ Format = iota
	// FormatGLTF selects the glTF backend for JSON documents.
	FormatGLTF
	// FormatGLB selects the glTF backend for binary containers.
	FormatGLB
)

func (f Format) String() string {
	switch f {
	case FormatOBJ:
		return "obj"
	case FormatGLTF:
		return "gltf"
	case FormatGLB:
		return "glb"
	default:
		return "unknown"
	}
}

// FormatFromPath picks the format from a file extension, ignoring case.
//
// Parameters:
//   - p: the file path
//
// Returns:
//   - Format: the format
//   - error: ErrUnsupportedFormat for any other extension
func FormatFromPath(p string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(p)); ext {
	case ".obj":
		return FormatOBJ, nil
	case ".gltf":
		return FormatGLTF, nil
	case ".glb":
		return FormatGLB, nil
	default:
		return 0, errors.Wrapf(ErrUnsupportedFormat, "extension %q", ext)
	}
}

// Model is a parsed model file. Mesh material indices refer to Materials.
// Cached models are shared between callers and must not be modified.
type Model struct {
	// Name is the scene name stored in the file, or the file name without its extension.
	Name string

	// Meshes holds one unindexed triangle list per mesh of the file.
	Meshes []common.MeshData

	// Materials holds every material the meshes reference.
	Materials []common.MaterialData

	// Placements lists where the file puts each mesh. A mesh may be placed more than once.
	Placements []Placement
}

// TriangleCount sums the triangles of every mesh.
func (m *Model) TriangleCount() int {
	n := 0
	for _, mesh := range m.Meshes {
		n += mesh.TriangleCount()
	}
	return n
}

// PrimaryMaterial returns the material of the first triangle of a mesh, or the default material
// when the mesh has no material indices.
//
// Parameters:
//   - mesh: index into Meshes
//
// Returns:
//   - common.MaterialData: the material
func (m *Model) PrimaryMaterial(mesh int) common.MaterialData {
	if mesh < 0 || mesh >= len(m.Meshes) {
		return common.DefaultMaterialData()
	}
	idx := m.Meshes[mesh].Materials
	if len(idx) == 0 || int(idx[0]) >= len(m.Materials) {
		return common.DefaultMaterialData()
	}
	return m.Materials[idx[0]]
}

// Placement puts one mesh of a model into the world.
type Placement struct {
	// Name is the node or object name.
	Name string

	// Mesh indexes Model.Meshes.
	Mesh int

	// Matrix is the object-to-world transform, composed through the node hierarchy.
	Matrix mgl32.Mat4
}

// Decompose splits Matrix into a position, an orthonormal rotation and a per-axis scale.
// Shear cannot be represented and is lost; a mirroring matrix yields a negative x scale.
//
// Returns:
//   - mgl32.Vec3: the position
//   - mgl32.Mat3: the rotation
//   - mgl32.Vec3: the scale
func (p Placement) Decompose() (position mgl32.Vec3, rotation mgl32.Mat3, scale mgl32.Vec3) {
	position = p.Matrix.Col(3).Vec3()
	linear := p.Matrix.Mat3()

	var cols [3]mgl32.Vec3
	ident := mgl32.Ident3()
	for i := range 3 {
		c := linear.Col(i)
		scale[i] = c.Len()
		if scale[i] < 1e-12 {
			cols[i] = ident.Col(i)
			continue
		}
		cols[i] = c.Mul(1 / scale[i])
	}
	if linear.Det() < 0 {
		scale[0] = -scale[0]
		cols[0] = cols[0].Mul(-1)
	}
	return position, mgl32.Mat3FromCols(cols[0], cols[1], cols[2]), scale
}

// source resolves the files a model references relative to the model's own directory.
type source struct {
	dir  string
	read func(name string) ([]byte, error)
	join func(elem ...string) string
}

func (s source) open(rel string) ([]byte, error) {
	return s.read(s.join(s.dir, rel))
}

// loader is the implementation of the Loader interface.
type loader struct {
	mu sync.RWMutex

	fsys       fs.FS
	modelCache map[string]*Model
	backends   map[Format]loaderBackend
}

// Loader parses model files into triangle lists and caches the results by path or name.
// Thread-safe for concurrent access.
type Loader interface {
	// Load parses a model file and caches it by path. A cached model is returned without reading the file.
	// The backend is selected by extension (.obj, .gltf, .glb).
	//
	// Parameters:
	//   - path: the file path, relative to the loader's file system when one is configured
	//
	// Returns:
	//   - *Model: the loaded model
	//   - error: ErrUnsupportedFormat, ErrMalformedModel, or a file system error
	Load(path string) (*Model, error)

	// LoadReader parses a model from a stream and caches it by name. Files the model references
	// are resolved relative to the root of the loader's file system.
	//
	// Parameters:
	//   - name: the cache key and fallback model name
	//   - format: the stream's format
	//   - r: the model data
	//
	// Returns:
	//   - *Model: the loaded model
	//   - error: ErrUnsupportedFormat, ErrMalformedModel, or a read error
	LoadReader(name string, format Format, r io.Reader) (*Model, error)

	// Get retrieves a cached model by key. Returns nil if not found.
	Get(name string) *Model

	// Models returns a copy of the cache.
	//
	// Returns:
	//   - map[string]*Model: all cached models keyed by path or name
	Models() map[string]*Model

	// Evict drops a model from the cache so the next Load parses the file again.
	Evict(name string)
}

var _ Loader = &loader{}

// NewLoader creates a Loader that reads from the operating system unless WithFileSystem is given.
//
// Parameters:
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: a new Loader
func NewLoader(options ...LoaderBuilderOption) Loader {
	l := &loader{
		modelCache: make(map[string]*Model),
		backends: map[Format]loaderBackend{
			FormatOBJ:  newOBJLoaderBackend(),
			FormatGLTF: newGLTFLoaderBackend(),
			FormatGLB:  newGLTFLoaderBackend(),
		},
	}
	for _, option := range options {
		option(l)
	}
	return l
}

// sourceFor returns a source rooted at dir of the configured file system.
func (l *loader) sourceFor(dir string) source {
	if l.fsys == nil {
		return source{dir: dir, read: os.ReadFile, join: filepath.Join}
	}
	fsys := l.fsys
	return source{
		dir:  dir,
		read: func(name string) ([]byte, error) { return fs.ReadFile(fsys, name) },
		join: path.Join,
	}
}

func (l *loader) Load(p string) (*Model, error) {
	if m := l.Get(p); m != nil {
		return m, nil
	}

	format, err := FormatFromPath(p)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(p)
	if l.fsys != nil {
		dir = path.Dir(p)
	}
	src := l.sourceFor(dir)
	data, err := src.read(p)
	if err != nil {
		return nil, errors.Wrapf(err, "loader: read %s", p)
	}

	base := filepath.Base(p)
	return l.parse(p, strings.TrimSuffix(base, filepath.Ext(base)), format, data, src)
}

func (l *loader) LoadReader(name string, format Format, r io.Reader) (*Model, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "loader: read %s", name)
	}
	return l.parse(name, name, format, data, l.sourceFor("."))
}

// parse runs the backend for format and caches the result under key.
func (l *loader) parse(key, fallbackName string, format Format, data []byte, src source) (*Model, error) {
	backend, ok := l.backends[format]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "format %d", int(format))
	}

	m, err := backend.Load(fallbackName, bytes.NewReader(data), src)
	if err != nil {
		return nil, errors.Wrapf(err, "loader: %s", key)
	}

	l.mu.Lock()
	l.modelCache[key] = m
	l.mu.Unlock()

	common.ComponentLogger("loader").Debug("model loaded",
		slog.String("key", key),
		slog.String("format", format.String()),
		slog.Int("meshes", len(m.Meshes)),
		slog.Int("triangles", m.TriangleCount()),
		slog.Int("placements", len(m.Placements)),
	)
	return m, nil
}

func (l *loader) Get(name string) *Model {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.modelCache[name]
}

func (l *loader) Models() map[string]*Model {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return maps.Clone(l.modelCache)
}

func (l *loader) Evict(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.modelCache, name)
}
