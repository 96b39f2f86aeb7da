// Package events provides a simple event emitter.
package events

import (
	"io"

	"github.com/chuckpreslar/emission"
)

// Emitter is a simple event emitter.
// This is a thin wrapper of emission.Emitter that modifies emitter.On method to return an io.Closer that cancels the callback registration.
// Emit invokes listeners synchronously in registration order.
type Emitter struct {
	e *emission.Emitter
}

// NewEmitter creates a simple event emitter.
func NewEmitter() *Emitter {
	return &Emitter{
		e: emission.NewEmitter(),
	}
}

// On registers a callback when an event occurs.
// Returns an io.Closer that cancels the callback registration.
func (emitter *Emitter) On(event, listener any) io.Closer {
	emitter.e.On(event, listener)
	return canceler{emitter.e, event, listener}
}

// Emit invokes callbacks registered for an event.
func (emitter *Emitter) Emit(event any, args ...any) {
	emitter.e.EmitSync(event, args...)
}

type canceler struct {
	emitter  *emission.Emitter
	event    any
	listener any
}

func (c canceler) Close() error {
	c.emitter.Off(c.event, c.listener)
	return nil
}
