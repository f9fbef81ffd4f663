package lock

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeGate records actuation calls and serves a scripted angle.
type fakeGate struct {
	angle      float64
	angleErr   error
	angleReads int
	moves      []float64
	releases   int
	calMin     float64
	calMax     float64
	calCalls   int
	calErr     error
}

func (g *fakeGate) Angle() (float64, error) {
	g.angleReads++
	return g.angle, g.angleErr
}

func (g *fakeGate) MoveToAttached(deg float64) error {
	g.moves = append(g.moves, deg)
	return nil
}

func (g *fakeGate) Release() { g.releases++ }

func (g *fakeGate) Calibrate(minPos, maxPos float64) error {
	g.calCalls++
	g.calMin, g.calMax = minPos, maxPos
	return g.calErr
}

func testConfig() Config {
	return Config{LockAngle: 120, UnlockAngle: 50}
}

func newTestController(g *fakeGate) *Controller {
	return New(testConfig(), g, zap.NewNop().Sugar())
}

// TestBootState verifies the machine starts uncalibrated and that ticks
// are inert until a calibration completes.
func TestBootState(t *testing.T) {
	t.Parallel()

	g := &fakeGate{}
	c := newTestController(g)

	require.Equal(t, "CALIBRATING", c.Status())

	require.NoError(t, c.Tick(time.Now()))
	require.Zero(t, g.angleReads)
	require.Empty(t, g.moves)
}

// TestCalibrateExitsToEndpointState verifies a completed calibration
// classifies the resting angle.
func TestCalibrateExitsToEndpointState(t *testing.T) {
	t.Parallel()

	g := &fakeGate{angle: 120}
	c := newTestController(g)

	require.NoError(t, c.Calibrate())
	require.Equal(t, 1, g.calCalls)
	require.Equal(t, 50.0, g.calMin)
	require.Equal(t, 120.0, g.calMax)
	require.Equal(t, "LOCK", c.Status())

	// Re-running while stationary is allowed.
	g.angle = 50
	require.NoError(t, c.Calibrate())
	require.Equal(t, "UNLOCK", c.Status())
}

// TestCommandDrivesMoveToArrival walks a full lock command: queue, move
// issued, arrival detected, servo released.
func TestCommandDrivesMoveToArrival(t *testing.T) {
	t.Parallel()

	g := &fakeGate{angle: 50}
	c := newTestController(g)
	require.NoError(t, c.Calibrate())
	require.Equal(t, "UNLOCK", c.Status())

	t0 := time.Now()

	c.Submit(CmdLock)
	require.NoError(t, c.Tick(t0))
	require.Equal(t, "BUSY_MOVE", c.Status())
	require.Equal(t, []float64{120}, g.moves)

	// En route: no new actuation, command already consumed.
	g.angle = 80
	require.NoError(t, c.Tick(t0.Add(time.Second)))
	require.Equal(t, "BUSY_MOVE", c.Status())
	require.Equal(t, []float64{120}, g.moves)

	// Arrival releases the servo and clears the active command.
	g.angle = 120
	require.NoError(t, c.Tick(t0.Add(2*time.Second)))
	require.Equal(t, "LOCK", c.Status())
	require.Equal(t, 1, g.releases)

	snap := c.Snapshot()
	require.Equal(t, CmdNone, snap.ActiveCommand)
	require.Equal(t, t0, snap.MoveStartedAt)
}

// TestWatchdogFaultAndRecovery verifies the fault path and that a
// recalibration is the way back out.
func TestWatchdogFaultAndRecovery(t *testing.T) {
	t.Parallel()

	g := &fakeGate{angle: 50}
	c := newTestController(g)
	require.NoError(t, c.Calibrate())

	t0 := time.Now()
	c.Submit(CmdLock)
	require.NoError(t, c.Tick(t0))
	require.Equal(t, "BUSY_MOVE", c.Status())

	// Calibration refused mid-move.
	require.ErrorIs(t, c.Calibrate(), ErrBusy)

	// Bolt never arrives; strictly past the watchdog it faults.
	g.angle = 75
	require.NoError(t, c.Tick(t0.Add(DefaultTuning.MoveTimeout)))
	require.Equal(t, "BUSY_MOVE", c.Status())
	require.NoError(t, c.Tick(t0.Add(DefaultTuning.MoveTimeout+time.Millisecond)))
	require.Equal(t, "BAD", c.Status())

	// Faulted ignores commands.
	c.Submit(CmdUnlock)
	require.NoError(t, c.Tick(t0.Add(10*time.Second)))
	require.Equal(t, "BAD", c.Status())

	// External recalibration recovers.
	g.angle = 120
	require.NoError(t, c.Calibrate())
	require.Equal(t, "LOCK", c.Status())
	require.Equal(t, CmdNone, c.Snapshot().ActiveCommand)
}

// TestPendingCommandSurvivesReadFailure verifies a queued command is not
// discarded by a tick whose angle read fails; the next healthy tick still
// acts on it.
func TestPendingCommandSurvivesReadFailure(t *testing.T) {
	t.Parallel()

	g := &fakeGate{angle: 50}
	c := newTestController(g)
	require.NoError(t, c.Calibrate())
	require.Equal(t, "UNLOCK", c.Status())

	c.Submit(CmdLock)

	g.angleErr = errors.New("no frame from ADC bridge")
	require.Error(t, c.Tick(time.Now()))
	require.Equal(t, "UNLOCK", c.Status())
	require.Empty(t, g.moves)

	g.angleErr = nil
	require.NoError(t, c.Tick(time.Now()))
	require.Equal(t, "BUSY_MOVE", c.Status())
	require.Equal(t, []float64{120}, g.moves)
}

// TestCalibrateFailureFaults verifies a failed calibration leaves the
// machine faulted rather than trusting unknown curves.
func TestCalibrateFailureFaults(t *testing.T) {
	t.Parallel()

	g := &fakeGate{calErr: ErrBusy}
	c := newTestController(g)

	require.Error(t, c.Calibrate())
	require.Equal(t, "BAD", c.Status())
}

// TestManualDisturbance verifies the disturbed path settles back without
// any actuation.
func TestManualDisturbance(t *testing.T) {
	t.Parallel()

	g := &fakeGate{angle: 120}
	c := newTestController(g)
	require.NoError(t, c.Calibrate())
	require.Equal(t, "LOCK", c.Status())

	t0 := time.Now()

	g.angle = 80
	require.NoError(t, c.Tick(t0))
	require.Equal(t, "BUSY_WAIT", c.Status())

	// Commands are ignored while disturbed.
	c.Submit(CmdUnlock)
	g.angle = 82
	require.NoError(t, c.Tick(t0.Add(time.Second)))
	require.Equal(t, "BUSY_WAIT", c.Status())
	require.Empty(t, g.moves)

	g.angle = 50
	require.NoError(t, c.Tick(t0.Add(2*time.Second)))
	require.Equal(t, "UNLOCK", c.Status())
	require.Empty(t, g.moves)
	require.Zero(t, g.releases)
}

// TestOnChangeHook verifies state changes fan out exactly once each.
func TestOnChangeHook(t *testing.T) {
	t.Parallel()

	g := &fakeGate{angle: 50}
	c := newTestController(g)

	var seen []State
	c.OnChange(func(s State) { seen = append(seen, s) })

	require.NoError(t, c.Calibrate())

	t0 := time.Now()
	c.Submit(CmdLock)
	require.NoError(t, c.Tick(t0))
	g.angle = 120
	require.NoError(t, c.Tick(t0.Add(time.Second)))

	// Self-transitions do not fire the hook.
	require.NoError(t, c.Tick(t0.Add(2*time.Second)))

	require.Equal(t, []State{CalibratingUnlock, Unlocked, Moving, Locked}, seen)
}
