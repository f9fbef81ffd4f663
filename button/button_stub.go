//go:build !linux

package button

import "errors"

var ErrNotSupported = errors.New("gpio button not supported on this platform")

// Button is a stub for non-linux platforms.
type Button struct{}

// Config holds configuration for the button input.
type Config struct {
	Chip string `yaml:"chip"`
	Pin  int    `yaml:"pin"`
}

// New returns an error on non-linux platforms.
func New(cfg Config, onPress func()) (*Button, error) {
	if cfg.Pin == 0 {
		return nil, nil
	}
	return nil, ErrNotSupported
}

func (b *Button) Release() error { return nil }
