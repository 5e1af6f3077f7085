package loader

import "io/fs"

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithFileSystem makes the Loader read model files and everything they reference from fsys.
// Paths are then slash-separated and relative to the root of fsys.
//
// Parameters:
//   - fsys: the file system, e.g. an embed.FS or os.DirFS
//
// Returns:
//   - LoaderBuilderOption: a function that applies the file system option to a loader
func WithFileSystem(fsys fs.FS) LoaderBuilderOption {
	return func(l *loader) {
		l.fsys = fsys
	}
}

// WithModel is an option builder that pre-populates the model cache with a model.
//
// Parameters:
//   - key: the cache key for the model
//   - model: the model to cache
//
// Returns:
//   - LoaderBuilderOption: a function that applies the model option to a loader
func WithModel(key string, model *Model) LoaderBuilderOption {
	return func(l *loader) {
		l.modelCache[key] = model
	}
}
