package config

import "errors"

// ErrLoadConfig wraps failures reading the YAML file or the environment.
// ErrInvalidConfig wraps a loaded value that Validate rejects.
var (
	ErrLoadConfig    = errors.New("cannot load pickle config")
	ErrInvalidConfig = errors.New("invalid pickle config")
)
