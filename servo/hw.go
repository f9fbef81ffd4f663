package servo

import (
	"fmt"

	"github.com/hjkoskel/govattu"
)

// Standard hobby-servo pulse range at 50Hz.
const (
	pulseMinUs = 500.0
	pulseMaxUs = 2500.0
	degMin     = 0.0
	degMax     = 180.0
)

// gpioDrive implements Drive on the Pi's hardware PWM (servo control
// signal) plus a plain GPIO pin switching the power transistor.
type gpioDrive struct {
	hw       govattu.Vattu
	servoPin uint8
	powerPin uint8
}

func newGPIODrive(servoPin, powerPin uint8) (*gpioDrive, error) {
	hw, err := govattu.Open()
	if err != nil {
		return nil, fmt.Errorf("open gpio: %w", err)
	}

	hw.PinMode(servoPin, govattu.ALT5) // ALT5 for PWM0
	hw.PwmSetMode(true, true, false, false)
	hw.PwmSetClock(19)      // 50Hz
	hw.Pwm0SetRange(20000)  // range units are microseconds at this clock
	hw.PinMode(powerPin, govattu.ALToutput)
	hw.PinClear(powerPin)

	return &gpioDrive{hw: hw, servoPin: servoPin, powerPin: powerPin}, nil
}

// Power implements Drive.Power.
func (g *gpioDrive) Power(on bool) {
	if on {
		g.hw.PinSet(g.powerPin)
	} else {
		g.hw.PinClear(g.powerPin)
	}
}

// Set implements Drive.Set by converting degrees to a pulse width.
func (g *gpioDrive) Set(deg float64) {
	if deg < degMin {
		deg = degMin
	}
	if deg > degMax {
		deg = degMax
	}
	us := pulseMinUs + (deg-degMin)*(pulseMaxUs-pulseMinUs)/(degMax-degMin)
	g.hw.Pwm0Set(uint32(us))
}

// Stop implements Drive.Stop.
func (g *gpioDrive) Stop() {
	g.hw.Pwm0Set(0)
}

// Close implements Drive.Close.
func (g *gpioDrive) Close() error {
	return g.hw.Close()
}
