// Package indicator signals the lock's condition on local hardware so
// someone standing at the door can see what the controller thinks.
package indicator

// Indicator is the interface for status indicator implementations.
type Indicator interface {
	// Locked signals the bolt is at the lock position.
	Locked()

	// Unlocked signals the bolt is at the unlock position.
	Unlocked()

	// Busy signals an in-flight move, manual disturbance, or running
	// calibration.
	Busy()

	// Fault signals a watchdog fault requiring recalibration.
	Fault()

	// ConnectionLost signals that the broker connection dropped.
	ConnectionLost()

	// Shutdown sets the indicator to shutdown state.
	Shutdown()

	// Release releases any hardware resources.
	Release() error
}

// Config holds configuration for indicator implementations.
type Config struct {
	// GPIO LED pins (nil = not configured)
	GreenPin  *uint8 `yaml:"green_pin"`
	YellowPin *uint8 `yaml:"yellow_pin"`
	RedPin    *uint8 `yaml:"red_pin"`
}

// New creates an Indicator based on the provided configuration.
func New(cfg Config) (Indicator, error) {
	var indicators []Indicator

	if cfg.GreenPin != nil || cfg.YellowPin != nil || cfg.RedPin != nil {
		gpio, err := NewGPIO(cfg.GreenPin, cfg.YellowPin, cfg.RedPin)
		if err != nil {
			return nil, err
		}
		indicators = append(indicators, gpio)
	}

	if len(indicators) == 0 {
		return &Noop{}, nil
	}
	if len(indicators) == 1 {
		return indicators[0], nil
	}
	return &Multi{indicators: indicators}, nil
}
