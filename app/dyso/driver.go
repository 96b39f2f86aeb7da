// Package dyso orchestrates a DySO testbed experiment.
//
// A run brings up collaborator processes and packet generators, drifts the query key offset for the
// configured duration, then winds down. Wind-down executes even if an earlier phase fails or the run
// is interrupted, so that generators are disabled and collaborators are terminated.
package dyso

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dyso-testbed/dyso/app/drift"
	"github.com/dyso-testbed/dyso/bfrt"
	"github.com/dyso-testbed/dyso/collab"
	"github.com/dyso-testbed/dyso/core/events"
	"github.com/dyso-testbed/dyso/core/jsonhelper"
	"github.com/dyso-testbed/dyso/core/logging"
	"github.com/dyso-testbed/dyso/core/sleep"
	"github.com/dyso-testbed/dyso/pktgen"
	"github.com/dyso-testbed/dyso/pktgen/pktgendef"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var logger = logging.New("dyso")

// Event names.
const (
	// EventPhase is emitted on phase transition, with Phase argument.
	EventPhase = "phase"
	// EventTick is emitted after each offset update, with drift.OffsetState argument.
	EventTick = "tick"
)

// Session is a switch control session.
type Session interface {
	drift.RegisterWriter
	pktgendef.Device
	io.Closer
}

var _ Session = (*bfrt.Session)(nil)

// ConnectFunc establishes a switch control session.
type ConnectFunc func(ctx context.Context, endpoint string, opts bfrt.Options) (Session, error)

// ConnectBfrt is a ConnectFunc that uses bfrt.Connect.
func ConnectBfrt(ctx context.Context, endpoint string, opts bfrt.Options) (Session, error) {
	s, e := bfrt.Connect(ctx, endpoint, opts)
	if e != nil {
		return nil, e
	}
	return s, nil
}

// ConfirmFunc blocks until the operator allows packet generators to start.
type ConfirmFunc func(ctx context.Context) error

// ErrNotConfirmed indicates the operator did not confirm.
var ErrNotConfirmed = errors.New("traffic start not confirmed")

// PromptConfirm returns a ConfirmFunc that writes a prompt to w and waits for a line from r.
func PromptConfirm(r io.Reader, w io.Writer) ConfirmFunc {
	return func(ctx context.Context) error {
		fmt.Fprintln(w, "==> Press Enter to start packet generators")
		result := make(chan error, 1)
		go func() {
			_, e := bufio.NewReader(r).ReadString('\n')
			result <- e
		}()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-result:
			if e != nil {
				return fmt.Errorf("%w: %v", ErrNotConfirmed, e)
			}
			return nil
		}
	}
}

// Options contains Driver dependencies.
type Options struct {
	// Launcher starts collaborator processes.
	// Default is collab.ExecLauncher with WorkDir and LogDir from Config.
	Launcher collab.Launcher
	// Sleep performs settle, tick, and drain waits. Default is sleep.Context.
	Sleep sleep.Func
	// Connect establishes the switch control session. Default is ConnectBfrt.
	Connect ConnectFunc
	// Confirm is invoked when Config.ConfirmTraffic is set. Default prompts on stdin.
	Confirm ConfirmFunc
}

// Driver executes orchestration runs.
type Driver struct {
	cfg     Config
	opts    Options
	emitter *events.Emitter
}

// New creates a Driver.
func New(cfg Config, opts Options) (*Driver, error) {
	if e := cfg.Validate(); e != nil {
		return nil, e
	}
	// slices in cfg are shared with the caller
	var own Config
	if e := jsonhelper.Roundtrip(cfg, &own); e != nil {
		return nil, fmt.Errorf("copy config: %w", e)
	}
	cfg = own
	if opts.Launcher == nil {
		opts.Launcher = collab.ExecLauncher{Dir: cfg.WorkDir, LogDir: cfg.LogDir}
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep.Context
	}
	if opts.Connect == nil {
		opts.Connect = ConnectBfrt
	}
	if opts.Confirm == nil {
		opts.Confirm = PromptConfirm(os.Stdin, os.Stderr)
	}
	return &Driver{
		cfg:     cfg,
		opts:    opts,
		emitter: events.NewEmitter(),
	}, nil
}

// Config returns the configuration.
func (d *Driver) Config() Config {
	return d.cfg
}

// OnPhase registers a callback on phase transition.
func (d *Driver) OnPhase(cb func(phase Phase)) io.Closer {
	return d.emitter.On(EventPhase, cb)
}

// OnTick registers a callback after each offset update.
func (d *Driver) OnTick(cb func(st drift.OffsetState)) io.Closer {
	return d.emitter.On(EventTick, cb)
}

// Run executes the orchestration.
//
// Phases are BringUp, SteadyState, and WindDown. WindDown always executes; it uses a context
// detached from ctx, so that cancellation of ctx interrupts the earlier phases but not the teardown.
// The returned Run ends in PhaseDone, or PhaseFailed with FailedPhase set.
func (d *Driver) Run(ctx context.Context) (*Run, error) {
	supOpts := d.cfg.collabOptions()
	supOpts.Sleep = d.opts.Sleep
	r := &runner{
		Driver: d,
		run: &Run{
			StartTime: time.Now(),
			Budget:    d.cfg.Budget(),
		},
		sup: collab.New(d.opts.Launcher, supOpts),
	}
	logger.Info("run starting", zap.Duration("budget", r.run.Budget))

	e := r.bringUp(ctx)
	if e == nil {
		e = r.steadyState(ctx)
	}
	e = multierr.Append(e, r.windDown(ctx, e == nil))
	if e != nil {
		var pe *PhaseError
		if errors.As(e, &pe) {
			r.run.FailedPhase = pe.Phase
		}
		r.setPhase(PhaseFailed)
		logger.Error("run failed", zap.Stringer("phase", r.run.FailedPhase), zap.Error(e))
		return r.run, e
	}

	r.setPhase(PhaseDone)
	logger.Info("run completed", zap.Duration("elapsed", time.Since(r.run.StartTime)), zap.Uint64("offset", r.run.Offset.Offset))
	return r.run, nil
}

type runner struct {
	*Driver
	run     *Run
	sup     *collab.Supervisor
	session Session
	bank    *pktgen.Bank
}

func (r *runner) setPhase(phase Phase) {
	r.run.Phase = phase
	logger.Info("phase", zap.Stringer("phase", phase))
	r.emitter.Emit(EventPhase, phase)
}

func (r *runner) bringUp(ctx context.Context) (e error) {
	r.setPhase(PhaseBringUp)
	defer wrapPhaseError(PhaseBringUp, &e)

	if e = r.sup.RunCommands(ctx, r.cfg.Prepare); e != nil {
		return e
	}
	if e = r.sup.LaunchSequence(ctx, r.cfg.Collaborators); e != nil {
		return e
	}
	if e = r.sup.RunCommands(ctx, r.cfg.Setup); e != nil {
		return e
	}

	if r.session, e = r.opts.Connect(ctx, r.cfg.Endpoint, r.cfg.BfrtOptions()); e != nil {
		return e
	}
	r.bank = pktgen.NewBank(r.session)
	for _, gen := range r.cfg.Generators {
		if _, e = r.bank.Configure(ctx, gen); e != nil {
			return e
		}
	}

	if r.cfg.ConfirmTraffic {
		logger.Info("waiting for operator confirmation")
		if e = r.opts.Confirm(ctx); e != nil {
			return e
		}
	}
	return nil
}

func (r *runner) steadyState(ctx context.Context) (e error) {
	r.setPhase(PhaseSteadyState)
	defer wrapPhaseError(PhaseSteadyState, &e)

	for _, app := range r.bank.Apps() {
		if e = ctx.Err(); e != nil {
			return e
		}
		if e = app.Enable(ctx); e != nil {
			return e
		}
	}

	sched, e := drift.New(r.cfg.Drift, r.session, r.cfg.OffsetRegister)
	if e != nil {
		return e
	}
	sched.Sleep = r.opts.Sleep
	sched.OnTick = func(st drift.OffsetState) {
		r.run.Offset = st
		r.emitter.Emit(EventTick, st)
	}
	defer func() { r.run.WriteLatency = sched.WriteLatency() }()
	return sched.Run(ctx)
}

// windDown disables generators and terminates collaborators.
// Each step is attempted regardless of failures in earlier steps.
func (r *runner) windDown(ctx context.Context, drain bool) error {
	r.setPhase(PhaseWindDown)
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.windDownTimeout())
	defer cancel()

	errs := []error{}
	step := func(name string, f func() error) {
		if e := f(); e != nil {
			logger.Error("wind-down step failed", zap.String("step", name), zap.Error(e))
			errs = append(errs, fmt.Errorf("%s: %w", name, e))
		}
	}

	if drain {
		step("drain", func() error { return r.opts.Sleep(wctx, r.cfg.Drain.Duration()) })
	}
	if r.bank != nil {
		step("disable-generators", func() error { return r.bank.DisableAll(wctx) })
	}
	if r.session != nil {
		step("close-session", r.session.Close)
	}
	step("terminate-collaborators", func() error { return r.sup.TerminateAll(wctx) })

	if e := multierr.Combine(errs...); e != nil {
		return &PhaseError{Phase: PhaseWindDown, Err: e}
	}
	return nil
}

func wrapPhaseError(phase Phase, e *error) {
	if *e != nil {
		*e = &PhaseError{Phase: phase, Err: *e}
	}
}
