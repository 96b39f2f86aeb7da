package collab

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"
)

// Launcher starts processes.
type Launcher interface {
	// Start starts a process. name is used for logging and output files.
	Start(name string, argv []string) (Handle, error)
}

// Handle controls a started process.
type Handle interface {
	// Pid returns the process ID.
	Pid() int
	// Signal sends a signal to the process.
	// It returns os.ErrProcessDone if the process has exited.
	Signal(sig unix.Signal) error
	// Done returns a channel that is closed when the process has exited.
	Done() <-chan struct{}
	// Err returns the exit error, valid after Done is closed.
	Err() error
}

// ExecLauncher starts processes with os/exec.
//
// Each process is placed in its own process group, so that a terminal interrupt delivered to the
// orchestrator does not reach collaborators; they are stopped by Supervisor.TerminateAll in order.
type ExecLauncher struct {
	// Dir is the working directory. Default is the current directory.
	Dir string
	// LogDir receives <name>.log with stdout and stderr of each process.
	// If empty, output is inherited from the orchestrator.
	LogDir string
}

var _ Launcher = ExecLauncher{}

// Start implements Launcher.
func (l ExecLauncher) Start(name string, argv []string) (Handle, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty argv")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = l.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var output io.WriteCloser
	if l.LogDir == "" {
		cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	} else {
		f, e := os.OpenFile(filepath.Join(l.LogDir, name+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if e != nil {
			return nil, fmt.Errorf("open log: %w", e)
		}
		cmd.Stdout, cmd.Stderr = f, f
		output = f
	}

	if e := cmd.Start(); e != nil {
		if output != nil {
			output.Close()
		}
		return nil, e
	}

	h := &execHandle{
		cmd:  cmd,
		done: make(chan struct{}),
	}
	go func() {
		h.err = cmd.Wait()
		if output != nil {
			output.Close()
		}
		close(h.done)
	}()
	return h, nil
}

type execHandle struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (h *execHandle) Pid() int {
	return h.cmd.Process.Pid
}

func (h *execHandle) Signal(sig unix.Signal) error {
	select {
	case <-h.done:
		return os.ErrProcessDone
	default:
	}
	return h.cmd.Process.Signal(sig)
}

func (h *execHandle) Done() <-chan struct{} {
	return h.done
}

func (h *execHandle) Err() error {
	return h.err
}
