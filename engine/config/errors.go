package config

import "github.com/cockroachdb/errors"

// ErrInvalidConfig is returned when a configuration cannot be decoded or holds out-of-range values.
var ErrInvalidConfig = errors.New("config: invalid configuration")
