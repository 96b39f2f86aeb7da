// Package collabtest provides a scripted collab.Launcher for unit tests.
package collabtest

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/dyso-testbed/dyso/collab"
	"golang.org/x/sys/unix"
)

// ErrKilled is the exit error of a process terminated by a signal.
var ErrKilled = errors.New("signal: killed")

// Behavior describes how a started process behaves.
type Behavior struct {
	// StartError, if set, makes Start fail.
	StartError error
	// Exit makes the process exit immediately with ExitError.
	Exit      bool
	ExitError error
	// IgnoreTerm makes the process survive SIGTERM.
	IgnoreTerm bool
}

// Launcher is a collab.Launcher that creates fake processes.
type Launcher struct {
	mutex   sync.Mutex
	nextPid int
	procs   []*Proc
	events  []string

	// Behaviors maps process name to its behavior. Unlisted processes run until signaled.
	Behaviors map[string]Behavior
	// OnStart, if set, is invoked after each successful start.
	OnStart func(p *Proc)
}

var _ collab.Launcher = (*Launcher)(nil)

// Start implements collab.Launcher.
func (l *Launcher) Start(name string, argv []string) (collab.Handle, error) {
	l.mutex.Lock()
	b := l.Behaviors[name]
	if b.StartError != nil {
		l.events = append(l.events, "fail "+name)
		l.mutex.Unlock()
		return nil, b.StartError
	}

	l.nextPid++
	p := &Proc{
		l:          l,
		Name:       name,
		Argv:       append([]string(nil), argv...),
		pid:        1000 + l.nextPid,
		done:       make(chan struct{}),
		ignoreTerm: b.IgnoreTerm,
	}
	l.procs = append(l.procs, p)
	l.events = append(l.events, "start "+name)
	onStart := l.OnStart
	l.mutex.Unlock()

	if b.Exit {
		p.Exit(b.ExitError)
	}
	if onStart != nil {
		onStart(p)
	}
	return p, nil
}

// Events returns a log of "start NAME", "fail NAME", "SIGTERM NAME", "SIGKILL NAME" entries.
func (l *Launcher) Events() []string {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return append([]string(nil), l.events...)
}

// EventsWithPrefix returns events that begin with prefix, with the prefix removed.
func (l *Launcher) EventsWithPrefix(prefix string) (list []string) {
	for _, evt := range l.Events() {
		if strings.HasPrefix(evt, prefix) {
			list = append(list, strings.TrimPrefix(evt, prefix))
		}
	}
	return list
}

// Procs returns started processes.
func (l *Launcher) Procs() []*Proc {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return append([]*Proc(nil), l.procs...)
}

// Proc returns the most recent process with the given name, or nil.
func (l *Launcher) Proc(name string) *Proc {
	procs := l.Procs()
	for i := len(procs) - 1; i >= 0; i-- {
		if procs[i].Name == name {
			return procs[i]
		}
	}
	return nil
}

// Running returns names of processes that have not exited.
func (l *Launcher) Running() (list []string) {
	for _, p := range l.Procs() {
		if !p.Exited() {
			list = append(list, p.Name)
		}
	}
	return list
}

// Proc is a fake process.
type Proc struct {
	l          *Launcher
	Name       string
	Argv       []string
	pid        int
	ignoreTerm bool

	once sync.Once
	done chan struct{}
	err  error
}

var _ collab.Handle = (*Proc)(nil)

// Pid implements collab.Handle.
func (p *Proc) Pid() int {
	return p.pid
}

// Signal implements collab.Handle.
func (p *Proc) Signal(sig unix.Signal) error {
	if p.Exited() {
		return os.ErrProcessDone
	}

	p.l.mutex.Lock()
	p.l.events = append(p.l.events, fmt.Sprintf("%s %s", unix.SignalName(sig), p.Name))
	p.l.mutex.Unlock()

	switch {
	case sig == unix.SIGKILL:
		p.Exit(ErrKilled)
	case sig == unix.SIGTERM && !p.ignoreTerm:
		p.Exit(nil)
	}
	return nil
}

// Done implements collab.Handle.
func (p *Proc) Done() <-chan struct{} {
	return p.done
}

// Err implements collab.Handle.
func (p *Proc) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Exit makes the process exit. Subsequent calls have no effect.
func (p *Proc) Exit(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Exited determines whether the process has exited.
func (p *Proc) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}
