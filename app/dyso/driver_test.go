package dyso_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dyso-testbed/dyso/app/drift"
	"github.com/dyso-testbed/dyso/app/dyso"
	"github.com/dyso-testbed/dyso/bfrt"
	"github.com/dyso-testbed/dyso/collab"
	"github.com/dyso-testbed/dyso/collab/collabtest"
	"github.com/dyso-testbed/dyso/pktgen/pktgendef"
)

func TestRun(t *testing.T) {
	assert, require := makeAR(t)
	f := newFixture(t)

	f.Sleep.Hook = func(i int, d time.Duration) error {
		switch i {
		case 0:
			assert.Equal([]string{"clean-shm", "control-plane"}, f.Launcher.EventsWithPrefix("start "))
		case 3:
			assert.Equal([]pktgendef.AppID{1, 2}, f.Switch.EnabledApps())
			assert.Empty(f.Switch.Writes())
		}
		return nil
	}

	d := f.Driver()
	var phases []dyso.Phase
	d.OnPhase(func(phase dyso.Phase) { phases = append(phases, phase) })
	var ticks []drift.OffsetState
	closer := d.OnTick(func(st drift.OffsetState) { ticks = append(ticks, st) })
	defer closer.Close()

	run, e := d.Run(context.Background())
	require.NoError(e)
	assert.Equal(dyso.PhaseDone, run.Phase)
	assert.Equal(dyso.PhaseIdle, run.FailedPhase)
	assert.Equal(205*time.Second, run.Budget)
	assert.Equal(drift.OffsetState{Offset: 20000, Round: 20}, run.Offset)
	assert.Equal([]dyso.Phase{dyso.PhaseBringUp, dyso.PhaseSteadyState, dyso.PhaseWindDown, dyso.PhaseDone}, phases)
	assert.Len(ticks, 20)
	assert.EqualValues(20, run.WriteLatency.Count)

	waits := f.Sleep.Waits()
	require.Len(waits, 24)
	assert.Equal([]time.Duration{40 * time.Second, 20 * time.Second, 40 * time.Second}, waits[:3])
	assert.Equal(5*time.Second, waits[23])
	assert.Equal(run.Budget, f.Sleep.Total())

	writes := f.Switch.Writes()
	require.Len(writes, 20)
	for i, w := range writes {
		assert.EqualValues(1000*(i+1), w.Value)
	}
	assert.EqualValues(20000, f.Switch.Register(bfrt.OffsetRegister))

	assert.Equal([]string{"EnableApp 2", "EnableApp 1", "DisableApp 2", "DisableApp 1"}, f.AppOps())
	assert.Empty(f.Switch.EnabledApps())
	assert.Equal(64, f.Switch.App(pktgendef.AppControl).Config.BufferOffset)

	assert.Equal(append(append([]string{"clean-shm"}, collaboratorNames...), "setup", "load-data"),
		f.Launcher.EventsWithPrefix("start "))
	assert.Equal([]string{"sudo", "-n", "./control/dyso/pcpp/dyso_multicore.o", "2"}, f.Launcher.Proc("worker-2").Argv)
	assert.Equal(reversed(collaboratorNames), f.Launcher.EventsWithPrefix("SIGTERM "))
	assert.Empty(f.Launcher.Running())
	assert.NoFileExists(f.Config.PidFile)
}

func TestRunConnectFailure(t *testing.T) {
	assert, _ := makeAR(t)
	f := newFixture(t)
	f.Options.Connect = func(ctx context.Context, endpoint string, opts bfrt.Options) (dyso.Session, error) {
		return nil, fmt.Errorf("%w: refused", bfrt.ErrConnection)
	}

	run, e := f.Driver().Run(context.Background())
	assert.ErrorIs(e, bfrt.ErrConnection)
	var pe *dyso.PhaseError
	assert.ErrorAs(e, &pe)
	assert.Equal(dyso.PhaseBringUp, pe.Phase)
	assert.Equal(dyso.PhaseFailed, run.Phase)
	assert.Equal(dyso.PhaseBringUp, run.FailedPhase)

	assert.Len(f.Sleep.Waits(), 3)
	assert.Equal(reversed(collaboratorNames), f.Launcher.EventsWithPrefix("SIGTERM "))
	assert.Empty(f.Launcher.Running())
	assert.Empty(f.Switch.Ops())
}

func TestRunLaunchFailure(t *testing.T) {
	assert, _ := makeAR(t)
	f := newFixture(t)
	f.Launcher.Behaviors["engine"] = collabtest.Behavior{StartError: errors.New("no such file")}

	run, e := f.Driver().Run(context.Background())
	assert.ErrorIs(e, collab.ErrProcessLaunch)
	assert.Equal(dyso.PhaseBringUp, run.FailedPhase)
	assert.Equal(reversed(collaboratorNames[:5]), f.Launcher.EventsWithPrefix("SIGTERM "))
	assert.Empty(f.Launcher.Running())
	assert.Empty(f.Launcher.EventsWithPrefix("start setup"))
	assert.Empty(f.Switch.Ops())
	assert.NoFileExists(f.Config.PidFile)
}

func TestRunWriteFailure(t *testing.T) {
	assert, _ := makeAR(t)
	f := newFixture(t)
	f.Switch.OnRegisterWrite(func(n int, args bfrt.RegisterArgs) error {
		if n == 4 {
			return errors.New("pipeline reset")
		}
		return nil
	})

	run, e := f.Driver().Run(context.Background())
	assert.ErrorIs(e, bfrt.ErrRemote)
	assert.Equal(dyso.PhaseSteadyState, run.FailedPhase)
	assert.Equal(drift.OffsetState{Offset: 4000, Round: 4}, run.Offset)

	assert.Len(f.Sleep.Waits(), 3+5)
	assert.Equal([]string{"EnableApp 2", "EnableApp 1", "DisableApp 2", "DisableApp 1"}, f.AppOps())
	assert.Empty(f.Switch.EnabledApps())
	assert.Equal(reversed(collaboratorNames), f.Launcher.EventsWithPrefix("SIGTERM "))
	assert.Empty(f.Launcher.Running())
}

func TestRunCancel(t *testing.T) {
	assert, _ := makeAR(t)
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Sleep.Hook = func(i int, d time.Duration) error {
		if i == 5 {
			cancel()
		}
		return nil
	}

	run, e := f.Driver().Run(ctx)
	assert.ErrorIs(e, context.Canceled)
	assert.Equal(dyso.PhaseFailed, run.Phase)
	assert.Equal(dyso.PhaseSteadyState, run.FailedPhase)
	assert.Equal(2, run.Offset.Round)

	assert.Len(f.Sleep.Waits(), 6)
	assert.Equal([]string{"EnableApp 2", "EnableApp 1", "DisableApp 2", "DisableApp 1"}, f.AppOps())
	assert.Empty(f.Switch.EnabledApps())
	assert.Empty(f.Launcher.Running())
	assert.NoFileExists(f.Config.PidFile)
}

func TestRunCancelDuringBringUp(t *testing.T) {
	assert, _ := makeAR(t)
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Sleep.Hook = func(i int, d time.Duration) error {
		if i == 1 {
			cancel()
		}
		return nil
	}

	run, e := f.Driver().Run(ctx)
	assert.ErrorIs(e, context.Canceled)
	assert.Equal(dyso.PhaseBringUp, run.FailedPhase)
	assert.Nil(f.Launcher.Proc("engine"))
	assert.Equal(reversed(collaboratorNames[:5]), f.Launcher.EventsWithPrefix("SIGTERM "))
	assert.Empty(f.Switch.Ops())
}

type failingCloseSession struct {
	*bfrt.Session
}

func (failingCloseSession) Close() error {
	return errors.New("close failed")
}

func TestRunWindDownFailure(t *testing.T) {
	assert, _ := makeAR(t)
	f := newFixture(t)
	f.Options.Connect = func(ctx context.Context, endpoint string, opts bfrt.Options) (dyso.Session, error) {
		s, e := bfrt.Connect(ctx, endpoint, opts)
		if e != nil {
			return nil, e
		}
		t.Cleanup(func() { s.Close() })
		return failingCloseSession{s}, nil
	}

	run, e := f.Driver().Run(context.Background())
	assert.Error(e)
	assert.Equal(dyso.PhaseFailed, run.Phase)
	assert.Equal(dyso.PhaseWindDown, run.FailedPhase)
	assert.Equal(drift.OffsetState{Offset: 20000, Round: 20}, run.Offset)
	assert.Empty(f.Switch.EnabledApps())
	assert.Equal(reversed(collaboratorNames), f.Launcher.EventsWithPrefix("SIGTERM "))
	assert.Empty(f.Launcher.Running())
}

func TestRunConfirm(t *testing.T) {
	assert, require := makeAR(t)
	f := newFixture(t)
	f.Config.ConfirmTraffic = true
	nConfirm := 0
	f.Options.Confirm = func(ctx context.Context) error {
		nConfirm++
		assert.NotNil(f.Switch.App(pktgendef.AppQuery))
		assert.NotNil(f.Switch.App(pktgendef.AppControl))
		assert.Empty(f.Switch.EnabledApps())
		assert.Equal([]string{"setup", "load-data"}, f.Launcher.EventsWithPrefix("start ")[7:])
		return nil
	}

	run, e := f.Driver().Run(context.Background())
	require.NoError(e)
	assert.Equal(dyso.PhaseDone, run.Phase)
	assert.Equal(1, nConfirm)
	assert.Equal([]string{"EnableApp 2", "EnableApp 1", "DisableApp 2", "DisableApp 1"}, f.AppOps())
}

func TestRunNotConfirmed(t *testing.T) {
	assert, _ := makeAR(t)
	f := newFixture(t)
	f.Config.ConfirmTraffic = true
	f.Options.Confirm = dyso.PromptConfirm(strings.NewReader(""), io.Discard)

	run, e := f.Driver().Run(context.Background())
	assert.ErrorIs(e, dyso.ErrNotConfirmed)
	assert.Equal(dyso.PhaseBringUp, run.FailedPhase)
	assert.Empty(f.AppOps())
	assert.Len(f.Sleep.Waits(), 3)
	assert.Equal(reversed(collaboratorNames), f.Launcher.EventsWithPrefix("SIGTERM "))
	assert.Empty(f.Launcher.Running())
}

func TestPromptConfirm(t *testing.T) {
	assert, _ := makeAR(t)

	var prompt bytes.Buffer
	assert.NoError(dyso.PromptConfirm(strings.NewReader("\n"), &prompt)(context.Background()))
	assert.Contains(prompt.String(), "Enter")

	assert.ErrorIs(dyso.PromptConfirm(strings.NewReader(""), io.Discard)(context.Background()), dyso.ErrNotConfirmed)

	pr, pw := io.Pipe()
	defer pw.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(dyso.PromptConfirm(pr, io.Discard)(ctx), context.DeadlineExceeded)
}
