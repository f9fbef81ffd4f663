// Package lock implements the door lock control state machine: a pure
// transition function fed once per control tick with the measured servo
// angle, the current time, and any pending authenticated command.
package lock

import (
	"math"
	"time"
)

// State is the logical condition of the lock.
type State int

const (
	// CalibratingLock is the boot state: the lock endpoint has no
	// recorded feedback map yet. Entered only via an explicit
	// calibration trigger (or power-up), never by the transition table.
	CalibratingLock State = iota

	// CalibratingUnlock is held while a calibration pass is measuring
	// the endpoints.
	CalibratingUnlock

	// Unlocked means the bolt rests at the unlock angle.
	Unlocked

	// Locked means the bolt rests at the lock angle.
	Locked

	// Disturbed means the bolt sits at an intermediate angle with no
	// command active: somebody turned it by hand.
	Disturbed

	// Moving means a commanded move is in flight.
	Moving

	// Faulted means the watchdog expired during a move. Terminal until
	// an external recalibration.
	Faulted
)

// Token returns the fixed status literal reported to remote callers.
func (s State) Token() string {
	switch s {
	case Locked:
		return "LOCK"
	case Unlocked:
		return "UNLOCK"
	case Moving:
		return "BUSY_MOVE"
	case Disturbed:
		return "BUSY_WAIT"
	case Faulted:
		return "BAD"
	case CalibratingLock, CalibratingUnlock:
		return "CALIBRATING"
	default:
		return "UNKNOWN"
	}
}

func (s State) String() string { return s.Token() }

// Command is a remote request admitted to the machine. Commands are
// produced only by a successfully authenticated request; passive polling
// ticks carry CmdNone.
type Command int

const (
	CmdNone Command = iota
	CmdLock
	CmdUnlock
)

func (c Command) String() string {
	switch c {
	case CmdLock:
		return "lock"
	case CmdUnlock:
		return "unlock"
	default:
		return "none"
	}
}

// Action is the physical actuation the driver loop should apply after a
// transition. The transition function itself never touches hardware.
type Action int

const (
	// ActionNone leaves the servo as it is.
	ActionNone Action = iota

	// ActionMoveToLock attaches the servo and drives toward the lock
	// angle.
	ActionMoveToLock

	// ActionMoveToUnlock attaches the servo and drives toward the
	// unlock angle.
	ActionMoveToUnlock

	// ActionRelease cuts servo power so the bolt turns freely by hand.
	ActionRelease
)

// Record is the machine's persistent state. LockAngle and UnlockAngle are
// fixed by calibration and never mutated by normal operation.
// MoveStartedAt is meaningful only while State == Moving; it is set once
// per move and preserved, not cleared, into Faulted. ActiveCommand is
// CmdNone everywhere except Moving, and carries unchanged into Faulted.
type Record struct {
	State         State
	LockAngle     float64
	UnlockAngle   float64
	MoveStartedAt time.Time
	ActiveCommand Command
}

// Inputs is one tick's worth of observations.
type Inputs struct {
	Angle   float64
	Now     time.Time
	Command Command
}

// Tuning holds the two thresholds the machine classifies against.
type Tuning struct {
	// AngleTol is the angular tolerance in degrees. A reading within
	// AngleTol of an endpoint, boundary inclusive, counts as at that
	// endpoint.
	AngleTol float64

	// MoveTimeout bounds how long a commanded move may run before the
	// watchdog declares a fault. The boundary is exclusive: elapsed time
	// exactly equal to MoveTimeout does not fault.
	MoveTimeout time.Duration
}

// DefaultTuning matches the deployed hardware: a 3 degree window and a
// five second watchdog.
var DefaultTuning = Tuning{
	AngleTol:    3,
	MoveTimeout: 5 * time.Second,
}

func (t Tuning) atLock(r Record, angle float64) bool {
	return math.Abs(angle-r.LockAngle) <= t.AngleTol
}

func (t Tuning) atUnlock(r Record, angle float64) bool {
	return math.Abs(angle-r.UnlockAngle) <= t.AngleTol
}

// Next computes one transition. It is pure: the returned record and action
// are derived solely from the prior record and the tick's inputs, and the
// caller applies the action to hardware afterward.
//
// Commands are honored only from the two stable endpoint states, so a
// command can neither interrupt an in-flight move nor override an
// unresolved manual disturbance. In Moving the watchdog is checked before
// arrival; arrival is considered only when not timed out.
func Next(prior Record, in Inputs, tun Tuning) (Record, Action) {
	next := prior

	switch prior.State {
	case Unlocked:
		switch {
		case in.Command == CmdLock:
			next.State = Moving
			next.ActiveCommand = CmdLock
			next.MoveStartedAt = in.Now
			return next, ActionMoveToLock
		case tun.atLock(prior, in.Angle):
			// Manual motion landed exactly on the lock position.
			next.State = Locked
			return next, ActionNone
		case tun.atUnlock(prior, in.Angle):
			return next, ActionNone
		default:
			next.State = Disturbed
			return next, ActionNone
		}

	case Locked:
		switch {
		case in.Command == CmdUnlock:
			next.State = Moving
			next.ActiveCommand = CmdUnlock
			next.MoveStartedAt = in.Now
			return next, ActionMoveToUnlock
		case tun.atUnlock(prior, in.Angle):
			next.State = Unlocked
			return next, ActionNone
		case tun.atLock(prior, in.Angle):
			return next, ActionNone
		default:
			next.State = Disturbed
			return next, ActionNone
		}

	case Disturbed:
		switch {
		case tun.atLock(prior, in.Angle):
			next.State = Locked
			return next, ActionNone
		case tun.atUnlock(prior, in.Angle):
			next.State = Unlocked
			return next, ActionNone
		default:
			// Still settling.
			return next, ActionNone
		}

	case Moving:
		if in.Now.Sub(prior.MoveStartedAt) > tun.MoveTimeout {
			// ActiveCommand and MoveStartedAt are preserved for
			// post-mortem inspection.
			next.State = Faulted
			return next, ActionNone
		}
		switch {
		case prior.ActiveCommand == CmdLock && tun.atLock(prior, in.Angle):
			next.State = Locked
			next.ActiveCommand = CmdNone
			return next, ActionRelease
		case prior.ActiveCommand == CmdUnlock && tun.atUnlock(prior, in.Angle):
			next.State = Unlocked
			next.ActiveCommand = CmdNone
			return next, ActionRelease
		default:
			// Still en route, within timeout.
			return next, ActionNone
		}

	default:
		// Faulted is terminal until an external recalibration; the
		// calibrating states accept no commands and transition only
		// when the calibration procedure completes.
		return next, ActionNone
	}
}
