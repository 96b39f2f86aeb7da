package drift_test

import (
	"context"
	"sync"

	"github.com/dyso-testbed/dyso/bfrt"
	"github.com/dyso-testbed/dyso/core/testenv"
)

var makeAR = testenv.MakeAR

// recordingWriter records register writes.
type recordingWriter struct {
	mutex  sync.Mutex
	values []uint64
	fail   func(n int) error
}

func (w *recordingWriter) WriteRegister(ctx context.Context, reg bfrt.RegisterHandle, value uint64) error {
	w.mutex.Lock()
	n := len(w.values)
	w.values = append(w.values, value)
	fail := w.fail
	w.mutex.Unlock()

	if fail != nil {
		return fail(n)
	}
	return nil
}

func (w *recordingWriter) Values() []uint64 {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return append([]uint64(nil), w.values...)
}
