package config

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package. These allow errors.Is from callers.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

func wrapInvalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func wrapLoad(err error) error {
	return fmt.Errorf("%w: %w", ErrLoadConfig, err)
}
