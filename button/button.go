//go:build linux

// Package button watches the recessed recalibrate button on the lock
// housing. Pressing it is the external reset: it triggers a calibration
// pass, which is the only way out of a faulted state.
package button

import (
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// Button handles a single debounced GPIO push button.
type Button struct {
	line    *gpiocdev.Line
	onPress func()
}

// Config holds configuration for the button input.
type Config struct {
	Chip string `yaml:"chip"`
	Pin  int    `yaml:"pin"`
}

// New creates a button watcher. Returns nil if no pin is configured.
func New(cfg Config, onPress func()) (*Button, error) {
	if cfg.Pin == 0 {
		return nil, nil
	}

	if cfg.Chip == "" {
		cfg.Chip = "gpiochip0"
	}

	b := &Button{onPress: onPress}

	debounce := 20 * time.Millisecond

	var err error
	b.line, err = gpiocdev.RequestLine(cfg.Chip, cfg.Pin,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithDebounce(debounce),
		gpiocdev.WithEventHandler(b.handleEvent))
	if err != nil {
		return nil, err
	}

	return b, nil
}

func (b *Button) handleEvent(evt gpiocdev.LineEvent) {
	if evt.Type != gpiocdev.LineEventFallingEdge {
		return
	}
	if b.onPress != nil {
		b.onPress()
	}
}

// Release closes the GPIO line.
func (b *Button) Release() error {
	if b.line != nil {
		b.line.Close()
	}
	return nil
}
