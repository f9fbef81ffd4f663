package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrBusy is returned when a calibration is requested while a commanded
// move is in flight or another calibration is running.
var ErrBusy = errors.New("lock: busy")

// Gate is the actuation surface the controller drives. *servo.Servo
// satisfies it.
type Gate interface {
	// Angle returns the current measured position in degrees.
	Angle() (float64, error)

	// MoveToAttached powers the servo if needed and issues a move.
	MoveToAttached(deg float64) error

	// Release cuts servo power.
	Release()

	// Calibrate records the feedback maps between the two endpoints.
	Calibrate(minPos, maxPos float64) error
}

// Config holds the controller's angles, thresholds and tick rate.
type Config struct {
	LockAngle    float64       `yaml:"lock_angle"`
	UnlockAngle  float64       `yaml:"unlock_angle"`
	AngleTol     float64       `yaml:"angle_tol"`
	MoveTimeout  time.Duration `yaml:"move_timeout"`
	TickInterval time.Duration `yaml:"tick_interval"`
}

// Controller owns the control record and runs the tick loop. The record is
// the single piece of mutable shared state; every read and write goes
// through the mutex so the HTTP and MQTT façades can submit commands from
// their own goroutines.
type Controller struct {
	gate     Gate
	tun      Tuning
	interval time.Duration
	logger   *zap.SugaredLogger
	onChange func(State)

	mu      sync.Mutex
	rec     Record
	pending Command
}

// New creates a Controller in the boot (uncalibrated) state. Run will not
// make progress until Calibrate has completed once.
func New(cfg Config, gate Gate, logger *zap.SugaredLogger) *Controller {
	tun := Tuning{AngleTol: cfg.AngleTol, MoveTimeout: cfg.MoveTimeout}
	if tun.AngleTol == 0 {
		tun.AngleTol = DefaultTuning.AngleTol
	}
	if tun.MoveTimeout == 0 {
		tun.MoveTimeout = DefaultTuning.MoveTimeout
	}
	interval := cfg.TickInterval
	if interval == 0 {
		interval = 250 * time.Millisecond
	}

	return &Controller{
		gate:     gate,
		tun:      tun,
		interval: interval,
		logger:   logger,
		rec: Record{
			State:       CalibratingLock,
			LockAngle:   cfg.LockAngle,
			UnlockAngle: cfg.UnlockAngle,
		},
	}
}

// OnChange registers a hook called after every state change. Set it before
// Run starts; the hook runs outside the controller lock.
func (c *Controller) OnChange(fn func(State)) {
	c.onChange = fn
}

// Submit queues an authenticated command for the next tick. Only one
// command is pending at a time; the latest wins.
func (c *Controller) Submit(cmd Command) {
	c.mu.Lock()
	c.pending = cmd
	c.mu.Unlock()
	c.logger.Infof("command queued: %s", cmd)
}

// Status returns the current state rendered as its status token.
func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec.State.Token()
}

// Snapshot returns a copy of the control record.
func (c *Controller) Snapshot() Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec
}

// Tick performs one control cycle: read the angle, take any pending
// command, compute the transition, and apply the resulting actuation.
func (c *Controller) Tick(now time.Time) error {
	c.mu.Lock()

	if c.rec.State == CalibratingLock || c.rec.State == CalibratingUnlock {
		// The calibration procedure owns the hardware.
		c.mu.Unlock()
		return nil
	}

	angle, err := c.gate.Angle()
	if err != nil {
		// A pending command is consumed only by a tick that actually
		// observes the angle; a failed read leaves it queued.
		c.mu.Unlock()
		return err
	}

	cmd := c.pending
	c.pending = CmdNone

	next, action := Next(c.rec, Inputs{Angle: angle, Now: now, Command: cmd}, c.tun)

	var actErr error
	switch action {
	case ActionMoveToLock:
		actErr = c.gate.MoveToAttached(c.rec.LockAngle)
	case ActionMoveToUnlock:
		actErr = c.gate.MoveToAttached(c.rec.UnlockAngle)
	case ActionRelease:
		c.gate.Release()
	}

	from := c.rec.State
	changed := next.State != from
	c.rec = next
	hook := c.onChange
	c.mu.Unlock()

	if changed {
		if next.State == Faulted {
			c.logger.Warnw("move timed out, lock faulted",
				"command", next.ActiveCommand.String(), "angle", angle)
		} else {
			c.logger.Infow("state change",
				"from", from.Token(), "to", next.State.Token(), "angle", angle)
		}
		if hook != nil {
			hook(next.State)
		}
	}
	return actErr
}

// Run drives Tick on the configured interval until the context is
// cancelled.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Tick(time.Now()); err != nil {
				c.logger.Warnf("tick: %v", err)
			}
		}
	}
}

// Calibrate runs the calibration procedure and is the only way out of
// Faulted. It refuses to run while a commanded move is in flight; any
// other state is fair game since the bolt is stationary.
func (c *Controller) Calibrate() error {
	c.mu.Lock()
	switch c.rec.State {
	case Moving, CalibratingUnlock:
		c.mu.Unlock()
		return ErrBusy
	}
	c.rec.State = CalibratingUnlock
	c.pending = CmdNone
	hook := c.onChange
	unlockAngle, lockAngle := c.rec.UnlockAngle, c.rec.LockAngle
	c.mu.Unlock()

	if hook != nil {
		hook(CalibratingUnlock)
	}

	err := c.gate.Calibrate(unlockAngle, lockAngle)

	c.mu.Lock()
	if err != nil {
		// Curves are in an unknown condition; position reads cannot be
		// trusted until a calibration succeeds.
		c.rec.State = Faulted
		c.mu.Unlock()
		if hook != nil {
			hook(Faulted)
		}
		return err
	}

	state := Disturbed
	if angle, aerr := c.gate.Angle(); aerr == nil {
		switch {
		case c.tun.atLock(c.rec, angle):
			state = Locked
		case c.tun.atUnlock(c.rec, angle):
			state = Unlocked
		}
	}
	c.rec.State = state
	c.rec.ActiveCommand = CmdNone
	c.mu.Unlock()

	c.logger.Infof("calibration complete, state %s", state.Token())
	if hook != nil {
		hook(state)
	}
	return nil
}
