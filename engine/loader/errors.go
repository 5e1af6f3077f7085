package loader

import "github.com/cockroachdb/errors"

var (
	// ErrUnsupportedFormat is returned when a file extension or format has no backend.
	ErrUnsupportedFormat = errors.New("loader: unsupported model format")

	// ErrMalformedModel marks every parse and validation failure of a model file.
	ErrMalformedModel = errors.New("loader: malformed model")
)

// malformedf builds an error marked with ErrMalformedModel.
func malformedf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrMalformedModel)
}
