// Package servo drives a feedback servo whose power rail can be cut by a
// transistor. It exposes the attach/release lifecycle, position commands,
// and a calibrated position reading that works whether or not the servo
// is powered.
package servo

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"servolock/analog"
)

var (
	// ErrNotAttached is returned when a move is requested while the servo
	// power rail is off. Callers must Attach first.
	ErrNotAttached = errors.New("servo: not attached")

	// ErrNotCalibrated is returned when a position is read before a
	// calibration has recorded the feedback maps.
	ErrNotCalibrated = errors.New("servo: not calibrated")

	// ErrFlatFeedback is returned by Calibrate when the feedback reading
	// does not change between the two endpoints, e.g. a disconnected
	// feedback wire. The recorded curves would divide by zero.
	ErrFlatFeedback = errors.New("servo: feedback did not change between endpoints")
)

// Drive abstracts the hardware half of the servo: a PWM output for the
// control signal and a transistor pin gating the power rail.
type Drive interface {
	// Power switches the servo's power rail.
	Power(on bool)

	// Set outputs the control pulse for the given angle in degrees.
	Set(deg float64)

	// Stop drops the control pulse entirely.
	Stop()

	// Close releases the underlying hardware.
	Close() error
}

// Config holds servo hardware and timing settings.
type Config struct {
	ServoPin uint8 `yaml:"servo_pin"` // hardware PWM pin (12, 13, 18 or 19)
	PowerPin uint8 `yaml:"power_pin"` // transistor base pin

	// SettleMove is how long to wait after a commanded move before
	// sampling feedback during calibration.
	SettleMove time.Duration `yaml:"settle_move"`

	// SettleRelease is how long to wait after cutting power before
	// sampling the unpowered feedback during calibration.
	SettleRelease time.Duration `yaml:"settle_release"`
}

// linearMap interpolates feedback values to degrees through two recorded
// points. Values outside the recorded span extrapolate rather than clamp:
// transient overshoot legitimately exceeds the calibrated range.
type linearMap struct {
	fbLo, fbHi   float64
	degLo, degHi float64
}

func (m linearMap) degrees(feedback int) float64 {
	return m.degLo + (float64(feedback)-m.fbLo)*(m.degHi-m.degLo)/(m.fbHi-m.fbLo)
}

// Servo is a position-calibrated servo with a switchable power rail.
// The feedback voltage differs depending on whether the rail is powered
// (power injects into the feedback divider), so two independent maps are
// kept and the one matching the current rail state is used.
type Servo struct {
	drive    Drive
	feedback analog.Source
	logger   *zap.SugaredLogger

	settleMove    time.Duration
	settleRelease time.Duration

	attached   bool
	calibrated bool
	powered    linearMap
	unpowered  linearMap
}

// New creates a Servo on the configured hardware pins.
func New(cfg Config, feedback analog.Source, logger *zap.SugaredLogger) (*Servo, error) {
	drive, err := newGPIODrive(cfg.ServoPin, cfg.PowerPin)
	if err != nil {
		return nil, err
	}
	return NewWithDrive(cfg, drive, feedback, logger), nil
}

// NewWithDrive creates a Servo on an arbitrary Drive implementation.
func NewWithDrive(cfg Config, drive Drive, feedback analog.Source, logger *zap.SugaredLogger) *Servo {
	settleMove := cfg.SettleMove
	if settleMove == 0 {
		settleMove = 2 * time.Second
	}
	settleRelease := cfg.SettleRelease
	if settleRelease == 0 {
		settleRelease = 500 * time.Millisecond
	}

	return &Servo{
		drive:         drive,
		feedback:      feedback,
		logger:        logger,
		settleMove:    settleMove,
		settleRelease: settleRelease,
	}
}

// Attach powers the servo rail. Attaching an already-attached servo is a
// no-op.
func (s *Servo) Attach() {
	if s.attached {
		return
	}
	s.drive.Power(true)
	s.attached = true
}

// Release cuts the servo power. Once released the joint turns freely by
// hand. Releasing an already-released servo is a no-op.
func (s *Servo) Release() {
	if !s.attached {
		return
	}
	s.drive.Stop()
	s.drive.Power(false)
	s.attached = false
}

// IsAttached reports whether the servo currently holds the joint.
func (s *Servo) IsAttached() bool {
	return s.attached
}

// MoveTo issues a move to the given angle. It returns once the request is
// on the wire: there is no completion guarantee, the caller polls Angle to
// detect arrival.
func (s *Servo) MoveTo(deg float64) error {
	if !s.attached {
		return ErrNotAttached
	}
	s.drive.Set(deg)
	return nil
}

// MoveToAttached attaches the servo if needed, then moves.
func (s *Servo) MoveToAttached(deg float64) error {
	s.Attach()
	return s.MoveTo(deg)
}

// Angle returns the servo's current physical position in degrees, powered
// or not.
func (s *Servo) Angle() (float64, error) {
	if !s.calibrated {
		return 0, ErrNotCalibrated
	}

	fb, err := analog.Stable(s.feedback)
	if err != nil {
		return 0, err
	}

	if s.attached {
		return s.powered.degrees(fb), nil
	}
	return s.unpowered.degrees(fb), nil
}

// Calibrate records the feedback maps by driving the servo to two known
// endpoints and sampling the feedback at each, once powered and once with
// the rail cut. The joint does not move when power is cut, but the
// feedback voltage shifts, hence the second sample.
//
// Calibration is idempotent and restores the prior attach state, so it can
// be re-run whenever the system is stationary.
func (s *Servo) Calibrate(minPos, maxPos float64) error {
	s.logger.Infof("calibrating with minPos=%.1f maxPos=%.1f", minPos, maxPos)

	prevAttached := s.attached

	minFb, minPoFb, err := s.calibratePoint(minPos)
	if err != nil {
		return err
	}
	maxFb, maxPoFb, err := s.calibratePoint(maxPos)
	if err != nil {
		return err
	}

	if minFb == maxFb || minPoFb == maxPoFb {
		return fmt.Errorf("%w (powered %d..%d unpowered %d..%d)",
			ErrFlatFeedback, minFb, maxFb, minPoFb, maxPoFb)
	}

	s.powered = linearMap{fbLo: float64(minFb), fbHi: float64(maxFb), degLo: minPos, degHi: maxPos}
	s.unpowered = linearMap{fbLo: float64(minPoFb), fbHi: float64(maxPoFb), degLo: minPos, degHi: maxPos}
	s.calibrated = true

	if prevAttached {
		s.Attach()
	}

	s.logger.Infof("calibrated: powered %d..%d unpowered %d..%d", minFb, maxFb, minPoFb, maxPoFb)
	return nil
}

// calibratePoint moves to pos, settles, and returns the powered and
// unpowered feedback readings there. The servo is left released.
func (s *Servo) calibratePoint(pos float64) (powered, unpowered int, err error) {
	if err := s.MoveToAttached(pos); err != nil {
		return 0, 0, err
	}
	time.Sleep(s.settleMove) // give it time to get there and settle

	powered, err = analog.Stable(s.feedback)
	if err != nil {
		return 0, 0, err
	}

	s.Release()
	time.Sleep(s.settleRelease)

	unpowered, err = analog.Stable(s.feedback)
	if err != nil {
		return 0, 0, err
	}
	return powered, unpowered, nil
}

// Close releases the servo and the underlying hardware.
func (s *Servo) Close() error {
	s.Release()
	return s.drive.Close()
}
