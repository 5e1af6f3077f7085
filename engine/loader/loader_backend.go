package loader

import "io"

// loaderBackend parses one family of model formats.
// Concrete implementations (objLoaderBackend, gltfLoaderBackend) handle format-specific details.
type loaderBackend interface {
	// Load parses a model.
	//
	// Parameters:
	//   - name: the model name used when the file does not carry one
	//   - r: the model data
	//   - src: resolves files the model references, such as material libraries and external buffers
	//
	// Returns:
	//   - *Model: the parsed model
	//   - error: an ErrMalformedModel error, or the error of reading a referenced file
	Load(name string, r io.Reader, src source) (*Model, error)
}
