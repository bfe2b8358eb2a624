package config

import "errors"

// Sentinel error kinds returned by Load and Validate.
var (
	// ErrInvalidConfig marks a setting that failed validation.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig marks a file, environment or decode failure.
	ErrLoadConfig = errors.New("load config failed")
)
