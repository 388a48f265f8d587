package config

import (
	"errors"
	"fmt"
)

// ErrConfig is the sentinel wrapped by every configuration validation error.
var ErrConfig = errors.New("config: invalid configuration")

func errConfig(msg string) error {
	return fmt.Errorf("%w: %s", ErrConfig, msg)
}
