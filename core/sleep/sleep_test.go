package sleep_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dyso-testbed/dyso/core/sleep"
	"github.com/dyso-testbed/dyso/core/testenv"
)

var makeAR = testenv.MakeAR

func TestContext(t *testing.T) {
	assert, _ := makeAR(t)

	t0 := time.Now()
	assert.NoError(sleep.Context(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(time.Since(t0), 20*time.Millisecond)

	assert.NoError(sleep.Context(context.Background(), 0))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	t0 = time.Now()
	assert.ErrorIs(sleep.Context(ctx, time.Minute), context.DeadlineExceeded)
	assert.Less(time.Since(t0), time.Second)

	assert.ErrorIs(sleep.Context(ctx, 0), context.DeadlineExceeded)
}

func TestRecorder(t *testing.T) {
	assert, _ := makeAR(t)

	errHook := errors.New("hook")
	var r sleep.Recorder
	r.Hook = func(i int, d time.Duration) error {
		if i == 2 {
			return errHook
		}
		return nil
	}

	var f sleep.Func = r.Sleep
	ctx := context.Background()
	assert.NoError(f(ctx, time.Second))
	assert.NoError(f(ctx, 2*time.Second))
	assert.ErrorIs(f(ctx, 3*time.Second), errHook)
	assert.Equal([]time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, r.Waits())
	assert.Equal(6*time.Second, r.Total())

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(f(cctx, time.Second), context.Canceled)
	assert.Len(r.Waits(), 3)
}
