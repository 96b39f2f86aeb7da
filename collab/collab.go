// Package collab supervises external collaborator processes.
//
// Collaborators are launched in steps. Each step starts one or more instances of a command, then waits
// a fixed settle time before the next step starts, because collaborators offer no readiness signal
// other than elapsed time. Processes are terminated in reverse launch order.
package collab

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dyso-testbed/dyso/core/logging"
	"github.com/dyso-testbed/dyso/core/nnduration"
	"github.com/kballard/go-shellquote"
	"github.com/pkg/math"
)

var logger = logging.New("collab")

// Error conditions.
var (
	// ErrProcessLaunch indicates a collaborator process failed to start or exited before settling.
	ErrProcessLaunch = errors.New("collaborator launch failed")
	// ErrCommand indicates a one-shot command exited with failure.
	ErrCommand = errors.New("command failed")
)

// Command is a one-shot command that must run to completion.
type Command struct {
	Name       string `json:"name"`
	Command    string `json:"command"` // shell-quoted command line
	Privileged bool   `json:"privileged,omitempty"`
}

// Step is a launch step of long-running collaborator processes.
type Step struct {
	Name    string `json:"name"`
	Command string `json:"command"` // shell-quoted command line

	// Instances is the number of processes started from Command. Minimum and default is 1.
	Instances int `json:"instances,omitempty"`
	// IndexArg appends the instance index as the last argument.
	IndexArg bool `json:"indexArg,omitempty"`

	// Settle is the wait after all instances are started.
	Settle     nnduration.Seconds `json:"settle"`
	Privileged bool               `json:"privileged,omitempty"`
}

// NInstances returns the number of instances.
func (step Step) NInstances() int {
	return math.MaxInt(1, step.Instances)
}

// Validate checks the step.
func (step Step) Validate() error {
	if step.Name == "" {
		return errors.New("step name is empty")
	}
	if _, e := splitCommand(step.Command); e != nil {
		return fmt.Errorf("step %s: %w", step.Name, e)
	}
	return nil
}

type instance struct {
	Name string
	Argv []string
}

func (step Step) instances(privilege string) (list []instance, e error) {
	argv, e := splitCommand(step.Command)
	if e != nil {
		return nil, fmt.Errorf("step %s: %w", step.Name, e)
	}
	if step.Privileged {
		if argv, e = withPrivilege(privilege, argv); e != nil {
			return nil, e
		}
	}

	n := step.NInstances()
	for i := 0; i < n; i++ {
		inst := instance{
			Name: step.Name,
			Argv: append([]string(nil), argv...),
		}
		if n > 1 || step.IndexArg {
			inst.Name += "-" + strconv.Itoa(i)
		}
		if step.IndexArg {
			inst.Argv = append(inst.Argv, strconv.Itoa(i))
		}
		list = append(list, inst)
	}
	return list, nil
}

// Argv returns the argument vectors this step would launch, for display purposes.
func (step Step) Argv(privilege string) (list [][]string, e error) {
	insts, e := step.instances(privilege)
	for _, inst := range insts {
		list = append(list, inst.Argv)
	}
	return list, e
}

// Argv returns the argument vector of the command.
func (cmd Command) Argv(privilege string) (argv []string, e error) {
	if argv, e = splitCommand(cmd.Command); e != nil {
		return nil, fmt.Errorf("command %s: %w", cmd.Name, e)
	}
	if cmd.Privileged {
		return withPrivilege(privilege, argv)
	}
	return argv, nil
}

func splitCommand(line string) (argv []string, e error) {
	if argv, e = shellquote.Split(line); e != nil {
		return nil, e
	}
	if len(argv) == 0 {
		return nil, errors.New("command is empty")
	}
	return argv, nil
}

func withPrivilege(privilege string, argv []string) ([]string, error) {
	prefix, e := shellquote.Split(privilege)
	if e != nil {
		return nil, fmt.Errorf("privilege prefix: %w", e)
	}
	return append(prefix, argv...), nil
}
