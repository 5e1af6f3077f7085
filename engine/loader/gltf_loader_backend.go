package loader

import (
	"io"

	"github.com/cockroachdb/errors"
)

// gltfLoaderBackendImpl is the implementation of gltfLoaderBackend.
type gltfLoaderBackendImpl struct{}

// gltfLoaderBackend is a loaderBackend implementation for glTF and GLB files.
// It parses the document, then hands it to the importer for extraction.
type gltfLoaderBackend interface {
	loaderBackend
}

var _ gltfLoaderBackend = &gltfLoaderBackendImpl{}

// newGLTFLoaderBackend creates a new glTF loader backend.
//
// Returns:
//   - gltfLoaderBackend: the loader backend for glTF/GLB files
func newGLTFLoaderBackend() gltfLoaderBackend {
	return &gltfLoaderBackendImpl{}
}

func (b *gltfLoaderBackendImpl) Load(name string, r io.Reader, src source) (*Model, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "gltf: read")
	}
	parser := newGLTFParser(src)
	if err := parser.Parse(data); err != nil {
		return nil, err
	}
	return newGLTFImporter(parser).Import(name)
}
