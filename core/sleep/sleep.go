// Package sleep provides context-aware waiting.
package sleep

import (
	"context"
	"sync"
	"time"
)

// Func waits for d, or until ctx is done.
// It returns nil after a full wait, or the context error if the wait was interrupted.
type Func func(ctx context.Context, d time.Duration) error

// Context is a Func backed by a real timer.
func Context(ctx context.Context, d time.Duration) error {
	if e := ctx.Err(); e != nil {
		return e
	}
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Recorder is a Func that returns immediately and records requested durations.
// It is intended for tests that must observe waits without spending wall-clock time.
type Recorder struct {
	mutex sync.Mutex
	waits []time.Duration

	// Hook, if set, is invoked on each wait with its zero-based index.
	// A non-nil return value is returned from the wait.
	Hook func(i int, d time.Duration) error
}

// Sleep implements Func.
func (r *Recorder) Sleep(ctx context.Context, d time.Duration) error {
	if e := ctx.Err(); e != nil {
		return e
	}

	r.mutex.Lock()
	i := len(r.waits)
	r.waits = append(r.waits, d)
	hook := r.Hook
	r.mutex.Unlock()

	if hook != nil {
		if e := hook(i, d); e != nil {
			return e
		}
	}
	return ctx.Err()
}

// Waits returns recorded durations.
func (r *Recorder) Waits() []time.Duration {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

// Total returns the sum of recorded durations.
func (r *Recorder) Total() (sum time.Duration) {
	for _, d := range r.Waits() {
		sum += d
	}
	return sum
}
