package collab

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dyso-testbed/dyso/core/sleep"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// DefaultKillGrace is the default wait between SIGTERM and SIGKILL.
const DefaultKillGrace = 5 * time.Second

// Options contains Supervisor options.
type Options struct {
	// Sleep performs settle waits. Default is sleep.Context.
	Sleep sleep.Func
	// Privilege is prepended to the argv of privileged commands, such as "sudo -n".
	Privilege string
	// KillGrace is the wait between SIGTERM and SIGKILL.
	KillGrace time.Duration
	// PidFile, if set, records launched processes for TerminateRecorded.
	// Its directory is created if missing. Failure to write it fails the launch.
	PidFile string
}

func (opts *Options) applyDefaults() {
	if opts.Sleep == nil {
		opts.Sleep = sleep.Context
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = DefaultKillGrace
	}
}

// Process describes a process launched by Supervisor.
type Process struct {
	Name    string    `json:"name"`
	Rank    int       `json:"rank"` // position of the launch step
	Pid     int       `json:"pid"`
	Argv    []string  `json:"argv"`
	Started time.Time `json:"started"`
}

type process struct {
	Process
	h          Handle
	terminated bool
}

// Supervisor launches collaborator processes and terminates them.
type Supervisor struct {
	launcher Launcher
	opts     Options

	mutex sync.Mutex
	procs []*process
}

// New creates a Supervisor.
func New(launcher Launcher, opts Options) *Supervisor {
	opts.applyDefaults()
	return &Supervisor{
		launcher: launcher,
		opts:     opts,
	}
}

// Processes returns a snapshot of launched processes, in launch order.
func (s *Supervisor) Processes() (list []Process) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, p := range s.procs {
		list = append(list, p.Process)
	}
	return list
}

// LaunchSequence launches steps in order.
// After starting all instances of a step, it waits for the step's settle time before the next step.
// If any process of the step exits during the settle window, the step fails with ErrProcessLaunch.
//
// Processes launched before a failure remain owned by the Supervisor and are stopped by TerminateAll.
func (s *Supervisor) LaunchSequence(ctx context.Context, steps []Step) error {
	for rank, step := range steps {
		if e := ctx.Err(); e != nil {
			return e
		}

		insts, e := step.instances(s.opts.Privilege)
		if e != nil {
			return e
		}

		var procs []*process
		for _, inst := range insts {
			p, e := s.start(rank, inst)
			if e != nil {
				return e
			}
			procs = append(procs, p)
		}

		if e := s.settle(ctx, step, procs); e != nil {
			return e
		}
	}
	return nil
}

func (s *Supervisor) start(rank int, inst instance) (*process, error) {
	logEntry := logger.With(zap.String("name", inst.Name), zap.Strings("argv", inst.Argv))
	h, e := s.launcher.Start(inst.Name, inst.Argv)
	if e != nil {
		logEntry.Error("start failed", zap.Error(e))
		return nil, fmt.Errorf("%w: %s: %v", ErrProcessLaunch, inst.Name, e)
	}

	p := &process{
		Process: Process{
			Name:    inst.Name,
			Rank:    rank,
			Pid:     h.Pid(),
			Argv:    inst.Argv,
			Started: time.Now(),
		},
		h: h,
	}
	logEntry.Info("started", zap.Int("pid", p.Pid))

	s.mutex.Lock()
	s.procs = append(s.procs, p)
	s.mutex.Unlock()
	if e := s.savePidFile(); e != nil {
		logger.Error("write PID file failed", zap.String("filename", s.opts.PidFile), zap.Error(e))
		return nil, fmt.Errorf("%w: %s: record PID: %v", ErrProcessLaunch, inst.Name, e)
	}
	return p, nil
}

func (s *Supervisor) settle(ctx context.Context, step Step, procs []*process) error {
	d := step.Settle.Duration()
	logger.Info("settling", zap.String("step", step.Name), zap.Duration("settle", d))

	sctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	for _, p := range procs {
		go func(p *process) {
			select {
			case <-p.h.Done():
				cancel(exitedEarly(p))
			case <-sctx.Done():
			}
		}(p)
	}

	e := s.opts.Sleep(sctx, d)
	for _, p := range procs {
		select {
		case <-p.h.Done():
			return exitedEarly(p)
		default:
		}
	}
	if e != nil {
		if cause := context.Cause(sctx); cause != nil {
			return cause
		}
		return e
	}
	return nil
}

func exitedEarly(p *process) error {
	return fmt.Errorf("%w: %s exited during settle: %v", ErrProcessLaunch, p.Name, p.h.Err())
}

// RunCommands runs one-shot commands sequentially, each to completion.
// A command that cannot start fails with ErrProcessLaunch; a command exiting with failure fails with ErrCommand.
func (s *Supervisor) RunCommands(ctx context.Context, cmds []Command) error {
	for _, cmd := range cmds {
		if e := ctx.Err(); e != nil {
			return e
		}

		argv, e := cmd.Argv(s.opts.Privilege)
		if e != nil {
			return e
		}
		logEntry := logger.With(zap.String("name", cmd.Name), zap.Strings("argv", argv))

		h, e := s.launcher.Start(cmd.Name, argv)
		if e != nil {
			logEntry.Error("start failed", zap.Error(e))
			return fmt.Errorf("%w: %s: %v", ErrProcessLaunch, cmd.Name, e)
		}

		select {
		case <-h.Done():
		case <-ctx.Done():
			logEntry.Warn("interrupted")
			s.stop(context.Background(), cmd.Name, h)
			return ctx.Err()
		}

		if e := h.Err(); e != nil {
			logEntry.Error("command failed", zap.Error(e))
			return fmt.Errorf("%w: %s: %v", ErrCommand, cmd.Name, e)
		}
		logEntry.Info("command completed")
	}
	return nil
}

// TerminateAll terminates launched processes in reverse launch order.
// Each process receives SIGTERM, and SIGKILL if it is still running after the kill grace period.
// Processes that have already exited are skipped. Failures are logged and combined.
// Calling TerminateAll again after all processes were terminated has no effect.
func (s *Supervisor) TerminateAll(ctx context.Context) error {
	s.mutex.Lock()
	procs := append([]*process(nil), s.procs...)
	s.mutex.Unlock()

	var errs []error
	for i := len(procs) - 1; i >= 0; i-- {
		p := procs[i]
		if p.terminated {
			continue
		}
		if e := s.stop(ctx, p.Name, p.h); e != nil {
			errs = append(errs, fmt.Errorf("terminate %s: %w", p.Name, e))
			continue
		}
		p.terminated = true
	}

	e := multierr.Combine(errs...)
	if e == nil && s.opts.PidFile != "" {
		if e := os.Remove(s.opts.PidFile); e != nil && !errors.Is(e, os.ErrNotExist) {
			logger.Warn("remove PID file failed", zap.Error(e))
		}
	}
	return e
}

func (s *Supervisor) stop(ctx context.Context, name string, h Handle) error {
	logEntry := logger.With(zap.String("name", name), zap.Int("pid", h.Pid()))
	select {
	case <-h.Done():
		logEntry.Debug("already exited", zap.Error(h.Err()))
		return nil
	default:
	}

	if e := signal(h, unix.SIGTERM); e != nil {
		logEntry.Warn("SIGTERM failed", zap.Error(e))
		return e
	}

	timer := time.NewTimer(s.opts.KillGrace)
	defer timer.Stop()
	select {
	case <-h.Done():
		logEntry.Info("terminated")
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	logEntry.Warn("SIGKILL")
	if e := signal(h, unix.SIGKILL); e != nil {
		logEntry.Warn("SIGKILL failed", zap.Error(e))
		return e
	}
	select {
	case <-h.Done():
		return nil
	case <-time.After(s.opts.KillGrace):
		return errors.New("process did not exit after SIGKILL")
	}
}

func signal(h Handle, sig unix.Signal) error {
	e := h.Signal(sig)
	if e == nil || errors.Is(e, os.ErrProcessDone) || errors.Is(e, unix.ESRCH) {
		return nil
	}
	return e
}
