package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// DefaultPidFile returns the default PID file location.
// It is under $XDG_RUNTIME_DIR if set, otherwise under a per-user directory in the system temporary directory.
func DefaultPidFile() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = filepath.Join(os.TempDir(), fmt.Sprintf("dyso-%d", os.Getuid()))
	} else {
		dir = filepath.Join(dir, "dyso")
	}
	return filepath.Join(dir, "collaborators.json")
}

func (s *Supervisor) savePidFile() error {
	if s.opts.PidFile == "" {
		return nil
	}
	return WritePidFile(s.opts.PidFile, s.Processes())
}

// WritePidFile atomically replaces the PID file with a list of processes.
// The parent directory is created if it does not exist.
func WritePidFile(filename string, procs []Process) error {
	if procs == nil {
		procs = []Process{}
	}
	j, e := json.MarshalIndent(procs, "", "  ")
	if e != nil {
		return e
	}

	dir := filepath.Dir(filename)
	if e := os.MkdirAll(dir, 0o755); e != nil {
		return e
	}
	tmp := filepath.Join(dir, "."+filepath.Base(filename)+".tmp")
	if e := os.WriteFile(tmp, j, 0o644); e != nil {
		return e
	}
	return os.Rename(tmp, filename)
}

// ReadPidFile reads a PID file.
func ReadPidFile(filename string) (procs []Process, e error) {
	j, e := os.ReadFile(filename)
	if e != nil {
		return nil, e
	}
	if e := json.Unmarshal(j, &procs); e != nil {
		return nil, fmt.Errorf("PID file %s: %w", filename, e)
	}
	return procs, nil
}

// TerminateRecorded terminates processes recorded in a PID file by a previous run, in reverse launch order.
// A recorded PID is signaled only if it is alive and its command name still matches the record.
// The PID file is removed when all recorded processes are gone.
func TerminateRecorded(ctx context.Context, filename string, grace time.Duration) error {
	procs, e := ReadPidFile(filename)
	if errors.Is(e, os.ErrNotExist) {
		logger.Info("no PID file", zap.String("filename", filename))
		return nil
	} else if e != nil {
		return e
	}
	if grace <= 0 {
		grace = DefaultKillGrace
	}

	var errs []error
	for i := len(procs) - 1; i >= 0; i-- {
		if e := terminatePid(ctx, procs[i], grace); e != nil {
			errs = append(errs, fmt.Errorf("terminate %s (%d): %w", procs[i].Name, procs[i].Pid, e))
		}
	}

	if e := multierr.Combine(errs...); e != nil {
		return e
	}
	return os.Remove(filename)
}

func terminatePid(ctx context.Context, p Process, grace time.Duration) error {
	logEntry := logger.With(zap.String("name", p.Name), zap.Int("pid", p.Pid))
	if p.Pid <= 0 || !pidMatches(p) {
		logEntry.Debug("not running")
		return nil
	}

	if e := unix.Kill(p.Pid, unix.SIGTERM); e != nil {
		if errors.Is(e, unix.ESRCH) {
			return nil
		}
		return e
	}
	if waitPidGone(ctx, p.Pid, grace) {
		logEntry.Info("terminated")
		return nil
	}

	logEntry.Warn("SIGKILL")
	if e := unix.Kill(p.Pid, unix.SIGKILL); e != nil && !errors.Is(e, unix.ESRCH) {
		return e
	}
	if !waitPidGone(context.Background(), p.Pid, grace) {
		return errors.New("process did not exit after SIGKILL")
	}
	return nil
}

func waitPidGone(ctx context.Context, pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if !pidAlive(pid) {
			return true
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return false
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// pidAlive determines whether pid refers to a running process.
// A zombie has empty cmdline and is considered gone.
func pidAlive(pid int) bool {
	if e := unix.Kill(pid, 0); errors.Is(e, unix.ESRCH) {
		return false
	}
	cmdline, e := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
	if errors.Is(e, os.ErrNotExist) {
		return false
	}
	return e != nil || len(cmdline) > 0
}

// pidMatches determines whether the running pid still executes the recorded program.
// When /proc is unavailable, only liveness is checked.
func pidMatches(p Process) bool {
	if !pidAlive(p.Pid) {
		return false
	}
	cmdline, e := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", p.Pid))
	if e != nil || len(p.Argv) == 0 {
		return true
	}
	args := bytes.Split(bytes.TrimRight(cmdline, "\x00"), []byte{0})
	for _, arg := range p.Argv {
		if filepath.Base(string(args[0])) == filepath.Base(arg) {
			return true
		}
	}
	return false
}
