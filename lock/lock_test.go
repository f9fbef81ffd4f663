package lock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testLockAngle   = 120.0
	testUnlockAngle = 50.0
)

func ms(v int64) time.Time { return time.UnixMilli(v) }

// rec builds a Record with the test calibration angles.
func rec(state State, startedAt int64, cmd Command) Record {
	return Record{
		State:         state,
		LockAngle:     testLockAngle,
		UnlockAngle:   testUnlockAngle,
		MoveStartedAt: ms(startedAt),
		ActiveCommand: cmd,
	}
}

// TestTransitions runs the full transition table: every state, every rule,
// including the tolerance and watchdog boundaries.
func TestTransitions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		start      Record
		angle      float64
		cmd        Command
		clock      int64
		want       Record
		wantAction Action
	}{
		{
			name:  "unlocked manual turn to intermediate",
			start: rec(Unlocked, 0, CmdNone), angle: 75, cmd: CmdNone, clock: 1000,
			want: rec(Disturbed, 0, CmdNone), wantAction: ActionNone,
		},
		{
			name:  "unlocked lock command starts move",
			start: rec(Unlocked, 0, CmdNone), angle: 50, cmd: CmdLock, clock: 2000,
			want: rec(Moving, 2000, CmdLock), wantAction: ActionMoveToLock,
		},
		{
			name:  "unlocked manual turn lands on lock",
			start: rec(Unlocked, 0, CmdNone), angle: 120, cmd: CmdNone, clock: 1000,
			want: rec(Locked, 0, CmdNone), wantAction: ActionNone,
		},
		{
			name:  "unlocked self transition",
			start: rec(Unlocked, 0, CmdNone), angle: 48, cmd: CmdNone, clock: 1000,
			want: rec(Unlocked, 0, CmdNone), wantAction: ActionNone,
		},
		{
			name:  "unlocked at inclusive lock boundary",
			start: rec(Unlocked, 0, CmdNone), angle: 123, cmd: CmdNone, clock: 1000,
			want: rec(Locked, 0, CmdNone), wantAction: ActionNone,
		},
		{
			name:  "unlocked at inclusive unlock boundary",
			start: rec(Unlocked, 0, CmdNone), angle: 47, cmd: CmdNone, clock: 1000,
			want: rec(Unlocked, 0, CmdNone), wantAction: ActionNone,
		},
		{
			name:  "unlocked just outside tolerance",
			start: rec(Unlocked, 0, CmdNone), angle: 60, cmd: CmdNone, clock: 1000,
			want: rec(Disturbed, 0, CmdNone), wantAction: ActionNone,
		},
		{
			name:  "disturbed settles at lock",
			start: rec(Disturbed, 0, CmdNone), angle: 120, cmd: CmdNone, clock: 1000,
			want: rec(Locked, 0, CmdNone), wantAction: ActionNone,
		},
		{
			name:  "disturbed settles at unlock",
			start: rec(Disturbed, 0, CmdNone), angle: 50, cmd: CmdNone, clock: 1000,
			want: rec(Unlocked, 0, CmdNone), wantAction: ActionNone,
		},
		{
			name:  "disturbed still settling",
			start: rec(Disturbed, 0, CmdNone), angle: 80, cmd: CmdNone, clock: 1000,
			want: rec(Disturbed, 0, CmdNone), wantAction: ActionNone,
		},
		{
			name:  "moving arrives at lock",
			start: rec(Moving, 1000, CmdLock), angle: 120, cmd: CmdNone, clock: 2000,
			want: rec(Locked, 1000, CmdNone), wantAction: ActionRelease,
		},
		{
			name:  "moving arrives at unlock",
			start: rec(Moving, 1000, CmdUnlock), angle: 50, cmd: CmdNone, clock: 2000,
			want: rec(Unlocked, 1000, CmdNone), wantAction: ActionRelease,
		},
		{
			name:  "moving arrives at lock tolerance boundary",
			start: rec(Moving, 1000, CmdLock), angle: 117, cmd: CmdNone, clock: 2000,
			want: rec(Locked, 1000, CmdNone), wantAction: ActionRelease,
		},
		{
			name:  "moving arrives at unlock tolerance boundary",
			start: rec(Moving, 1000, CmdUnlock), angle: 53, cmd: CmdNone, clock: 2000,
			want: rec(Unlocked, 1000, CmdNone), wantAction: ActionRelease,
		},
		{
			name:  "moving still en route",
			start: rec(Moving, 1000, CmdLock), angle: 75, cmd: CmdNone, clock: 3000,
			want: rec(Moving, 1000, CmdLock), wantAction: ActionNone,
		},
		{
			name:  "moving just under timeout",
			start: rec(Moving, 1000, CmdLock), angle: 75, cmd: CmdNone, clock: 5999,
			want: rec(Moving, 1000, CmdLock), wantAction: ActionNone,
		},
		{
			name:  "moving exactly at timeout does not fault",
			start: rec(Moving, 1000, CmdLock), angle: 75, cmd: CmdNone, clock: 6000,
			want: rec(Moving, 1000, CmdLock), wantAction: ActionNone,
		},
		{
			name:  "moving just over timeout faults",
			start: rec(Moving, 1000, CmdLock), angle: 75, cmd: CmdNone, clock: 6001,
			want: rec(Faulted, 1000, CmdLock), wantAction: ActionNone,
		},
		{
			name:  "moving well past timeout faults",
			start: rec(Moving, 1000, CmdLock), angle: 75, cmd: CmdNone, clock: 7000,
			want: rec(Faulted, 1000, CmdLock), wantAction: ActionNone,
		},
		{
			name:  "locked unlock command starts move",
			start: rec(Locked, 0, CmdNone), angle: 120, cmd: CmdUnlock, clock: 2000,
			want: rec(Moving, 2000, CmdUnlock), wantAction: ActionMoveToUnlock,
		},
		{
			name:  "locked manual turn lands on unlock",
			start: rec(Locked, 0, CmdNone), angle: 50, cmd: CmdNone, clock: 1000,
			want: rec(Unlocked, 0, CmdNone), wantAction: ActionNone,
		},
		{
			name:  "locked manual turn to intermediate",
			start: rec(Locked, 0, CmdNone), angle: 85, cmd: CmdNone, clock: 1000,
			want: rec(Disturbed, 0, CmdNone), wantAction: ActionNone,
		},
		{
			name:  "locked self transition",
			start: rec(Locked, 0, CmdNone), angle: 122, cmd: CmdNone, clock: 1000,
			want: rec(Locked, 0, CmdNone), wantAction: ActionNone,
		},
		{
			name:  "faulted is terminal",
			start: rec(Faulted, 1000, CmdLock), angle: 120, cmd: CmdUnlock, clock: 9000,
			want: rec(Faulted, 1000, CmdLock), wantAction: ActionNone,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, action := Next(tc.start, Inputs{Angle: tc.angle, Now: ms(tc.clock), Command: tc.cmd}, DefaultTuning)
			require.Equal(t, tc.want, got)
			require.Equal(t, tc.wantAction, action)
		})
	}
}

// TestCommandsIgnoredOutsideStableStates verifies that a command submitted
// in any state other than Locked/Unlocked has no effect on the outcome.
func TestCommandsIgnoredOutsideStableStates(t *testing.T) {
	t.Parallel()

	starts := []Record{
		rec(Disturbed, 0, CmdNone),
		rec(Moving, 1000, CmdLock),
		rec(Faulted, 1000, CmdLock),
		rec(CalibratingLock, 0, CmdNone),
		rec(CalibratingUnlock, 0, CmdNone),
	}

	for _, start := range starts {
		for _, cmd := range []Command{CmdLock, CmdUnlock} {
			in := Inputs{Angle: 75, Now: ms(2000), Command: cmd}
			base := Inputs{Angle: 75, Now: ms(2000), Command: CmdNone}

			got, gotAction := Next(start, in, DefaultTuning)
			want, wantAction := Next(start, base, DefaultTuning)

			require.Equal(t, want, got,
				"state %s with command %s", start.State, cmd)
			require.Equal(t, wantAction, gotAction)
		}
	}
}

// TestMirroredCommandIgnoredInStableStates verifies that a Lock command in
// Locked (and Unlock in Unlocked) falls through to position classification.
func TestMirroredCommandIgnoredInStableStates(t *testing.T) {
	t.Parallel()

	got, action := Next(rec(Locked, 0, CmdNone), Inputs{Angle: 120, Now: ms(1000), Command: CmdLock}, DefaultTuning)
	require.Equal(t, rec(Locked, 0, CmdNone), got)
	require.Equal(t, ActionNone, action)

	got, action = Next(rec(Unlocked, 0, CmdNone), Inputs{Angle: 50, Now: ms(1000), Command: CmdUnlock}, DefaultTuning)
	require.Equal(t, rec(Unlocked, 0, CmdNone), got)
	require.Equal(t, ActionNone, action)
}

// TestIdempotentTicks verifies that repeated ticks with unchanged inputs
// leave the record unchanged in every state.
func TestIdempotentTicks(t *testing.T) {
	t.Parallel()

	cases := []struct {
		start Record
		angle float64
	}{
		{rec(Unlocked, 0, CmdNone), 50},
		{rec(Locked, 0, CmdNone), 120},
		{rec(Disturbed, 0, CmdNone), 80},
		{rec(Moving, 1000, CmdLock), 75},
		{rec(Faulted, 1000, CmdLock), 75},
	}

	for _, tc := range cases {
		got := tc.start
		for i := 0; i < 5; i++ {
			var action Action
			got, action = Next(got, Inputs{Angle: tc.angle, Now: ms(2000), Command: CmdNone}, DefaultTuning)
			require.Equal(t, tc.start, got, "state %s", tc.start.State)
			require.Equal(t, ActionNone, action)
		}
	}
}

// TestStatusTokens checks the fixed literals reported to remote callers.
func TestStatusTokens(t *testing.T) {
	t.Parallel()

	require.Equal(t, "LOCK", Locked.Token())
	require.Equal(t, "UNLOCK", Unlocked.Token())
	require.Equal(t, "BUSY_MOVE", Moving.Token())
	require.Equal(t, "BUSY_WAIT", Disturbed.Token())
	require.Equal(t, "BAD", Faulted.Token())
	require.Equal(t, "CALIBRATING", CalibratingLock.Token())
	require.Equal(t, "CALIBRATING", CalibratingUnlock.Token())
}
