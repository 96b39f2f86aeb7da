// Package drift updates the query key offset register on a fixed schedule.
//
// The offset shifts the query key index stream, so that key popularity drifts over time.
// Offsets grow deterministically: on tick k, the offset is k times the offset size.
package drift

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dyso-testbed/dyso/bfrt"
	"github.com/dyso-testbed/dyso/core/logging"
	"github.com/dyso-testbed/dyso/core/runningstat"
	"github.com/dyso-testbed/dyso/core/sleep"
	"go.uber.org/zap"
)

var logger = logging.New("drift")

// ErrState indicates Run was invoked more than once.
var ErrState = errors.New("scheduler is not idle")

// State is the scheduler state.
type State int

// State values.
const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateAborted
)

func (st State) String() string {
	switch st {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateCompleted:
		return "Completed"
	case StateAborted:
		return "Aborted"
	}
	return fmt.Sprintf("State(%d)", int(st))
}

// OffsetState is the offset most recently written and its round number.
type OffsetState struct {
	Offset uint64 `json:"offset"`
	Round  int    `json:"round"`
}

// RegisterWriter writes a register. *bfrt.Session implements this interface.
type RegisterWriter interface {
	WriteRegister(ctx context.Context, reg bfrt.RegisterHandle, value uint64) error
}

var _ RegisterWriter = (*bfrt.Session)(nil)

// Scheduler runs the offset drift schedule.
type Scheduler struct {
	cfg    Config
	writer RegisterWriter
	reg    bfrt.RegisterHandle

	mutex   sync.Mutex
	state   State
	offset  OffsetState
	latency runningstat.RunningStat

	// Sleep waits between ticks. Default is sleep.Context.
	Sleep sleep.Func
	// OnTick, if set, is invoked after each successful register write.
	OnTick func(st OffsetState)
}

// New creates a Scheduler.
func New(cfg Config, writer RegisterWriter, reg bfrt.RegisterHandle) (*Scheduler, error) {
	if e := cfg.Validate(); e != nil {
		return nil, e
	}
	return &Scheduler{
		cfg:    cfg,
		writer: writer,
		reg:    reg,
		Sleep:  sleep.Context,
	}, nil
}

// Config returns the schedule.
func (sched *Scheduler) Config() Config {
	return sched.cfg
}

// WriteLatency returns statistics of register write duration in nanoseconds, including failed writes.
func (sched *Scheduler) WriteLatency() runningstat.Snapshot {
	sched.mutex.Lock()
	defer sched.mutex.Unlock()
	return sched.latency.Read()
}

// State returns current state.
func (sched *Scheduler) State() State {
	sched.mutex.Lock()
	defer sched.mutex.Unlock()
	return sched.state
}

// Offset returns the offset most recently written.
func (sched *Scheduler) Offset() OffsetState {
	sched.mutex.Lock()
	defer sched.mutex.Unlock()
	return sched.offset
}

func (sched *Scheduler) setState(st State) {
	sched.mutex.Lock()
	defer sched.mutex.Unlock()
	sched.state = st
}

// Run executes the schedule to completion.
// Each tick waits IntervalSize, then synchronously writes the next offset.
// Cancellation of ctx or a failed write stops the schedule in Aborted state.
func (sched *Scheduler) Run(ctx context.Context) error {
	sched.mutex.Lock()
	if sched.state != StateIdle {
		sched.mutex.Unlock()
		return ErrState
	}
	sched.state = StateRunning
	sched.offset = OffsetState{}
	sched.mutex.Unlock()

	ticks, interval := sched.cfg.Ticks(), sched.cfg.IntervalSize.Duration()
	logEntry := logger.With(zap.Stringer("register", sched.reg), zap.Int("ticks", ticks), zap.Duration("interval", interval))
	logEntry.Info("drift started")

	for round := 1; round <= ticks; round++ {
		if e := ctx.Err(); e != nil {
			return sched.abort(logEntry, e)
		}
		if e := sched.Sleep(ctx, interval); e != nil {
			return sched.abort(logEntry, e)
		}

		st := OffsetState{
			Offset: uint64(round) * sched.cfg.OffsetSize,
			Round:  round,
		}
		if e := sched.write(ctx, st); e != nil {
			return sched.abort(logEntry, fmt.Errorf("round %d offset %d: %w", st.Round, st.Offset, e))
		}

		sched.mutex.Lock()
		sched.offset = st
		sched.mutex.Unlock()
		logEntry.Info("offset updated", zap.Int("round", st.Round), zap.Uint64("offset", st.Offset))
		if sched.OnTick != nil {
			sched.OnTick(st)
		}
	}

	sched.setState(StateCompleted)
	mean, _, max := sched.WriteLatency().Durations()
	logEntry.Info("drift completed",
		zap.Uint64("offset", sched.Offset().Offset),
		zap.Duration("write-latency-mean", mean),
		zap.Duration("write-latency-max", max),
	)
	return nil
}

func (sched *Scheduler) write(ctx context.Context, st OffsetState) error {
	wctx, cancel := context.WithTimeout(ctx, sched.cfg.writeTimeout())
	defer cancel()

	t0 := time.Now()
	e := sched.writer.WriteRegister(wctx, sched.reg, st.Offset)
	sched.mutex.Lock()
	sched.latency.PushDuration(time.Since(t0))
	sched.mutex.Unlock()
	return e
}

func (sched *Scheduler) abort(logEntry *zap.Logger, e error) error {
	sched.setState(StateAborted)
	logEntry.Warn("drift aborted", zap.Int("round", sched.Offset().Round), zap.Error(e))
	return e
}
