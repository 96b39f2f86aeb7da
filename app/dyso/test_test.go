package dyso_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/dyso-testbed/dyso/app/dyso"
	"github.com/dyso-testbed/dyso/bfrt/bfrttest"
	"github.com/dyso-testbed/dyso/collab/collabtest"
	"github.com/dyso-testbed/dyso/core/sleep"
	"github.com/dyso-testbed/dyso/core/testenv"
)

var makeAR = testenv.MakeAR

// fixture contains a driver wired to fake collaborators and a fake switch.
type fixture struct {
	t        testing.TB
	Config   dyso.Config
	Switch   *bfrttest.Switch
	Launcher *collabtest.Launcher
	Sleep    *sleep.Recorder
	Options  dyso.Options
}

func newFixture(t testing.TB) *fixture {
	f := &fixture{
		t:      t,
		Config: dyso.DefaultConfig(),
		Launcher: &collabtest.Launcher{
			Behaviors: map[string]collabtest.Behavior{
				"clean-shm": {Exit: true},
				"setup":     {Exit: true},
				"load-data": {Exit: true},
			},
		},
		Sleep: &sleep.Recorder{},
	}
	f.Switch, f.Config.Endpoint = bfrttest.Start(t, "dyso")
	f.Config.PidFile = filepath.Join(testenv.TempDir(t), "collaborators.json")
	f.Config.KillGrace = 10
	f.Options = dyso.Options{
		Launcher: f.Launcher,
		Sleep:    f.Sleep.Sleep,
	}
	return f
}

func (f *fixture) Driver() *dyso.Driver {
	d, e := dyso.New(f.Config, f.Options)
	if e != nil {
		f.t.Fatal(e)
	}
	return d
}

// AppOps returns EnableApp and DisableApp operations on the fake switch.
func (f *fixture) AppOps() (list []string) {
	for _, op := range f.Switch.Ops() {
		if strings.HasPrefix(op, "EnableApp ") || strings.HasPrefix(op, "DisableApp ") {
			list = append(list, op)
		}
	}
	return list
}

var collaboratorNames = []string{"control-plane", "worker-0", "worker-1", "worker-2", "worker-3", "engine"}

func reversed(list []string) (r []string) {
	for i := len(list) - 1; i >= 0; i-- {
		r = append(r, list[i])
	}
	return r
}
