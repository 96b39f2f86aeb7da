package dyso

import (
	"errors"
	"fmt"
	"time"

	"github.com/dyso-testbed/dyso/app/drift"
	"github.com/dyso-testbed/dyso/bfrt"
	"github.com/dyso-testbed/dyso/collab"
	"github.com/dyso-testbed/dyso/core/nnduration"
	"github.com/dyso-testbed/dyso/pktgen"
	"go.uber.org/multierr"
)

// DefaultWindDownTimeout is the default time limit of the wind-down phase.
const DefaultWindDownTimeout = 60 * time.Second

// Config contains orchestration run configuration.
type Config struct {
	// Endpoint is the switch control service endpoint.
	Endpoint string `json:"endpoint"`
	// RPCTimeout bounds each control service call.
	RPCTimeout nnduration.Milliseconds `json:"rpcTimeout,omitempty"`

	// Privilege is prepended to privileged commands, such as "sudo -n".
	// It must not embed credentials.
	Privilege string `json:"privilege,omitempty"`
	// WorkDir is the working directory of collaborator processes.
	WorkDir string `json:"workDir,omitempty"`
	// LogDir receives collaborator output. If empty, output is inherited.
	LogDir string `json:"logDir,omitempty"`
	// PidFile records launched collaborators, for 'dysoctl terminate'.
	PidFile string `json:"pidFile,omitempty"`

	// Prepare commands run before collaborators are launched.
	Prepare []collab.Command `json:"prepare,omitempty"`
	// Collaborators are launch steps, in dependency order.
	Collaborators []collab.Step `json:"collaborators"`
	// Setup commands run after collaborators have settled.
	Setup []collab.Command `json:"setup,omitempty"`

	// OffsetRegister is the register updated by the drift schedule.
	OffsetRegister bfrt.RegisterHandle `json:"offsetRegister"`
	// Generators are packet generator applications, in enable order.
	Generators []pktgen.Config `json:"generators"`
	// ConfirmTraffic waits for operator confirmation after generators are configured and before they are enabled.
	ConfirmTraffic bool `json:"confirmTraffic,omitempty"`
	// Drift is the offset drift schedule.
	Drift drift.Config `json:"drift"`

	// Drain is the wait between the end of the drift schedule and disabling generators.
	Drain nnduration.Milliseconds `json:"drain"`
	// KillGrace is the wait between SIGTERM and SIGKILL.
	KillGrace nnduration.Milliseconds `json:"killGrace,omitempty"`
	// WindDownTimeout bounds the wind-down phase.
	WindDownTimeout nnduration.Seconds `json:"windDownTimeout,omitempty"`
}

// DefaultConfig returns the configuration of the DySO testbed.
func DefaultConfig() Config {
	return Config{
		Endpoint:   bfrt.DefaultEndpoint,
		RPCTimeout: nnduration.Milliseconds(bfrt.DefaultTimeout / time.Millisecond),
		Privilege:  "sudo -n",
		PidFile:    collab.DefaultPidFile(),
		Prepare: []collab.Command{
			{Name: "clean-shm", Command: `sh -c "rm -f /dev/shm/*"`, Privileged: true},
		},
		Collaborators: []collab.Step{
			{
				Name:       "control-plane",
				Command:    "./control/dyso/cpp/dyso",
				Settle:     40,
				Privileged: true,
			},
			{
				Name:       "worker",
				Command:    "./control/dyso/pcpp/dyso_multicore.o",
				Instances:  4,
				IndexArg:   true,
				Settle:     20,
				Privileged: true,
			},
			{
				Name:       "engine",
				Command:    "./control/dyso/pcpp/pcpp_dyso.o",
				Settle:     40,
				Privileged: true,
			},
		},
		Setup: []collab.Command{
			{Name: "setup", Command: "bash ./scripts/dyso_setup.sh"},
			{Name: "load-data", Command: "bash ./scripts/dyso_load_data.sh"},
		},
		OffsetRegister:  bfrt.OffsetRegister,
		Generators:      []pktgen.Config{pktgen.ControlConfig(), pktgen.QueryConfig()},
		Drift:           drift.DefaultConfig(),
		Drain:           5000,
		KillGrace:       nnduration.Milliseconds(collab.DefaultKillGrace / time.Millisecond),
		WindDownTimeout: nnduration.Seconds(DefaultWindDownTimeout / time.Second),
	}
}

// Validate checks the configuration.
func (cfg Config) Validate() error {
	errs := []error{}
	if _, _, e := bfrt.ParseEndpoint(cfg.Endpoint); e != nil {
		errs = append(errs, fmt.Errorf("endpoint: %w", e))
	}
	if cfg.OffsetRegister.Table == "" || cfg.OffsetRegister.Field == "" {
		errs = append(errs, errors.New("offsetRegister: table and field are required"))
	}
	for _, cmd := range append(append([]collab.Command{}, cfg.Prepare...), cfg.Setup...) {
		if _, e := cmd.Argv(cfg.Privilege); e != nil {
			errs = append(errs, e)
		}
	}
	for _, step := range cfg.Collaborators {
		errs = append(errs, step.Validate())
	}
	if e := pktgen.ValidateSet(cfg.Generators); e != nil {
		errs = append(errs, fmt.Errorf("generators: %w", e))
	}
	if e := cfg.Drift.Validate(); e != nil {
		errs = append(errs, fmt.Errorf("drift: %w", e))
	}
	return multierr.Combine(errs...)
}

// BringUpDuration returns the total settle time of collaborator launch steps.
func (cfg Config) BringUpDuration() (d time.Duration) {
	for _, step := range cfg.Collaborators {
		d += step.Settle.Duration()
	}
	return d
}

// Budget returns the expected duration of a run: settle times, drift schedule, and drain time.
// It excludes the time spent in one-shot commands and control service calls.
func (cfg Config) Budget() time.Duration {
	return cfg.BringUpDuration() + cfg.Drift.Duration() + cfg.Drain.Duration()
}

// BfrtOptions returns switch control session options.
func (cfg Config) BfrtOptions() bfrt.Options {
	return bfrt.Options{
		Timeout: cfg.RPCTimeout.DurationOr(nnduration.Milliseconds(bfrt.DefaultTimeout / time.Millisecond)),
	}
}

func (cfg Config) collabOptions() collab.Options {
	return collab.Options{
		Privilege: cfg.Privilege,
		KillGrace: cfg.KillGrace.Duration(),
		PidFile:   cfg.PidFile,
	}
}

func (cfg Config) windDownTimeout() time.Duration {
	return cfg.WindDownTimeout.DurationOr(nnduration.Seconds(DefaultWindDownTimeout / time.Second))
}
