package collab_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dyso-testbed/dyso/collab"
	"github.com/dyso-testbed/dyso/collab/collabtest"
	"github.com/dyso-testbed/dyso/core/nnduration"
	"github.com/dyso-testbed/dyso/core/sleep"
	"github.com/dyso-testbed/dyso/core/testenv"
)

func makeSteps() []collab.Step {
	return []collab.Step{
		{
			Name:       "cp",
			Command:    "./control/dyso/cpp/dyso",
			Settle:     nnduration.Seconds(40),
			Privileged: true,
		},
		{
			Name:       "workers",
			Command:    "./control/dyso/pcpp/dyso_multicore.o",
			Instances:  4,
			IndexArg:   true,
			Settle:     nnduration.Seconds(20),
			Privileged: true,
		},
		{
			Name:       "pcpp",
			Command:    "./control/dyso/pcpp/pcpp_dyso.o",
			Settle:     nnduration.Seconds(40),
			Privileged: true,
		},
	}
}

func TestLaunchSequence(t *testing.T) {
	assert, require := makeAR(t)
	pidFile := filepath.Join(testenv.TempDir(t), "dyso.pid.json")

	var launcher collabtest.Launcher
	var rec sleep.Recorder
	rec.Hook = func(i int, d time.Duration) error {
		switch i {
		case 0:
			assert.Equal([]string{"cp"}, launcher.EventsWithPrefix("start "))
		case 1:
			assert.Len(launcher.Procs(), 5)
		}
		return nil
	}
	sup := collab.New(&launcher, collab.Options{
		Sleep:     rec.Sleep,
		Privilege: "sudo -n",
		PidFile:   pidFile,
	})

	require.NoError(sup.LaunchSequence(context.Background(), makeSteps()))
	assert.Equal([]time.Duration{40 * time.Second, 20 * time.Second, 40 * time.Second}, rec.Waits())
	assert.Equal([]string{"cp", "workers-0", "workers-1", "workers-2", "workers-3", "pcpp"},
		launcher.EventsWithPrefix("start "))
	assert.Equal([]string{"sudo", "-n", "./control/dyso/pcpp/dyso_multicore.o", "2"}, launcher.Proc("workers-2").Argv)

	procs := sup.Processes()
	require.Len(procs, 6)
	assert.Equal(0, procs[0].Rank)
	assert.Equal(1, procs[4].Rank)
	assert.Equal(2, procs[5].Rank)
	assert.Equal(launcher.Proc("pcpp").Pid(), procs[5].Pid)

	recorded, e := collab.ReadPidFile(pidFile)
	require.NoError(e)
	require.Len(recorded, len(procs))
	for i, p := range procs {
		assert.Equal(p.Name, recorded[i].Name)
		assert.Equal(p.Pid, recorded[i].Pid)
		assert.Equal(p.Argv, recorded[i].Argv)
		assert.True(p.Started.Equal(recorded[i].Started))
	}

	require.NoError(sup.TerminateAll(context.Background()))
	assert.Equal([]string{"pcpp", "workers-3", "workers-2", "workers-1", "workers-0", "cp"},
		launcher.EventsWithPrefix("SIGTERM "))
	assert.Empty(launcher.Running())
	assert.NoFileExists(pidFile)

	nEvents := len(launcher.Events())
	assert.NoError(sup.TerminateAll(context.Background()))
	assert.Len(launcher.Events(), nEvents)
}

func TestLaunchPidFile(t *testing.T) {
	assert, require := makeAR(t)
	dir := testenv.TempDir(t)

	var launcher collabtest.Launcher
	var rec sleep.Recorder
	pidFile := filepath.Join(dir, "run", "dyso", "collaborators.json")
	sup := collab.New(&launcher, collab.Options{Sleep: rec.Sleep, PidFile: pidFile})
	require.NoError(sup.LaunchSequence(context.Background(), makeSteps()))
	recorded, e := collab.ReadPidFile(pidFile)
	require.NoError(e)
	assert.Len(recorded, 6)
	require.NoError(sup.TerminateAll(context.Background()))
	assert.NoFileExists(pidFile)

	blocker := filepath.Join(dir, "blocker")
	require.NoError(os.WriteFile(blocker, nil, 0o644))
	var launcher2 collabtest.Launcher
	var rec2 sleep.Recorder
	sup = collab.New(&launcher2, collab.Options{Sleep: rec2.Sleep, PidFile: filepath.Join(blocker, "collaborators.json")})
	e = sup.LaunchSequence(context.Background(), makeSteps())
	require.ErrorIs(e, collab.ErrProcessLaunch)
	assert.Contains(e.Error(), "record PID")
	assert.Empty(rec2.Waits())
	assert.Len(sup.Processes(), 1)

	assert.NoError(sup.TerminateAll(context.Background()))
	assert.Equal([]string{"cp"}, launcher2.EventsWithPrefix("SIGTERM "))
	assert.Empty(launcher2.Running())
}

func TestDefaultPidFile(t *testing.T) {
	assert, _ := makeAR(t)

	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	assert.Equal("/run/user/1000/dyso/collaborators.json", collab.DefaultPidFile())

	t.Setenv("XDG_RUNTIME_DIR", "")
	assert.Equal(filepath.Join(os.TempDir(), fmt.Sprintf("dyso-%d", os.Getuid()), "collaborators.json"), collab.DefaultPidFile())
}

func TestLaunchEarlyExit(t *testing.T) {
	assert, require := makeAR(t)

	launcher := collabtest.Launcher{
		Behaviors: map[string]collabtest.Behavior{
			"workers-2": {Exit: true, ExitError: errors.New("exit status 1")},
		},
	}
	var rec sleep.Recorder
	sup := collab.New(&launcher, collab.Options{Sleep: rec.Sleep})

	e := sup.LaunchSequence(context.Background(), makeSteps())
	require.ErrorIs(e, collab.ErrProcessLaunch)
	assert.Contains(e.Error(), "workers-2")
	assert.Nil(launcher.Proc("pcpp"))
	assert.Len(sup.Processes(), 5)

	assert.NoError(sup.TerminateAll(context.Background()))
	assert.Equal([]string{"workers-3", "workers-1", "workers-0", "cp"}, launcher.EventsWithPrefix("SIGTERM "))
	assert.Empty(launcher.Running())
}

func TestLaunchStartFailure(t *testing.T) {
	assert, require := makeAR(t)

	launcher := collabtest.Launcher{
		Behaviors: map[string]collabtest.Behavior{
			"pcpp": {StartError: errors.New("permission denied")},
		},
	}
	var rec sleep.Recorder
	sup := collab.New(&launcher, collab.Options{Sleep: rec.Sleep})

	e := sup.LaunchSequence(context.Background(), makeSteps())
	require.ErrorIs(e, collab.ErrProcessLaunch)
	assert.Len(rec.Waits(), 2)
	assert.Equal([]string{"pcpp"}, launcher.EventsWithPrefix("fail "))
	assert.Len(sup.Processes(), 5)
	assert.NoError(sup.TerminateAll(context.Background()))
}

func TestLaunchCancel(t *testing.T) {
	assert, require := makeAR(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var launcher collabtest.Launcher
	var rec sleep.Recorder
	rec.Hook = func(i int, d time.Duration) error {
		cancel()
		return nil
	}
	sup := collab.New(&launcher, collab.Options{Sleep: rec.Sleep})

	e := sup.LaunchSequence(ctx, makeSteps())
	require.ErrorIs(e, context.Canceled)
	assert.Equal([]string{"cp"}, launcher.EventsWithPrefix("start "))

	assert.NoError(sup.TerminateAll(context.Background()))
	assert.Equal([]string{"cp"}, launcher.EventsWithPrefix("SIGTERM "))
}

func TestTerminateKill(t *testing.T) {
	assert, require := makeAR(t)

	launcher := collabtest.Launcher{
		Behaviors: map[string]collabtest.Behavior{
			"cp": {IgnoreTerm: true},
		},
	}
	var rec sleep.Recorder
	sup := collab.New(&launcher, collab.Options{
		Sleep:     rec.Sleep,
		KillGrace: 10 * time.Millisecond,
	})
	require.NoError(sup.LaunchSequence(context.Background(), makeSteps()[:2]))

	launcher.Proc("workers-1").Exit(nil)
	assert.NoError(sup.TerminateAll(context.Background()))
	assert.Equal([]string{"workers-3", "workers-2", "workers-0", "cp"}, launcher.EventsWithPrefix("SIGTERM "))
	assert.Equal([]string{"cp"}, launcher.EventsWithPrefix("SIGKILL "))
	assert.ErrorIs(launcher.Proc("cp").Err(), collabtest.ErrKilled)
	assert.Empty(launcher.Running())
}

func TestRunCommands(t *testing.T) {
	assert, _ := makeAR(t)

	launcher := collabtest.Launcher{
		Behaviors: map[string]collabtest.Behavior{
			"setup":     {Exit: true},
			"load-data": {Exit: true, ExitError: errors.New("exit status 2")},
			"never":     {Exit: true},
		},
	}
	sup := collab.New(&launcher, collab.Options{Privilege: "sudo"})

	e := sup.RunCommands(context.Background(), []collab.Command{
		{Name: "setup", Command: "bash ./scripts/dyso_setup.sh", Privileged: true},
		{Name: "load-data", Command: "bash ./scripts/dyso_load_data.sh", Privileged: true},
		{Name: "never", Command: "true"},
	})
	assert.ErrorIs(e, collab.ErrCommand)
	assert.Equal([]string{"setup", "load-data"}, launcher.EventsWithPrefix("start "))
	assert.Equal([]string{"sudo", "bash", "./scripts/dyso_setup.sh"}, launcher.Proc("setup").Argv)
	assert.Empty(sup.Processes())

	launcher.Behaviors["bad"] = collabtest.Behavior{StartError: errors.New("not found")}
	e = sup.RunCommands(context.Background(), []collab.Command{{Name: "bad", Command: "./missing"}})
	assert.ErrorIs(e, collab.ErrProcessLaunch)
}

func TestRunCommandsCancel(t *testing.T) {
	assert, _ := makeAR(t)
	ctx, cancel := context.WithCancel(context.Background())

	launcher := collabtest.Launcher{
		OnStart: func(p *collabtest.Proc) { cancel() },
	}
	sup := collab.New(&launcher, collab.Options{})

	e := sup.RunCommands(ctx, []collab.Command{{Name: "hang", Command: "sleep 1000"}})
	assert.ErrorIs(e, context.Canceled)
	assert.Equal([]string{"hang"}, launcher.EventsWithPrefix("SIGTERM "))
	assert.Empty(launcher.Running())
}
