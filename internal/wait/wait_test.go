// File: internal/wait/wait_test.go
package wait

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestUntil(t *testing.T) {
	t.Run("already true returns without sleeping", func(t *testing.T) {
		var calls int32
		start := time.Now()
		err := Until(context.Background(), "always", time.Second, 500*time.Millisecond, func(context.Context) (bool, error) {
			atomic.AddInt32(&calls, 1)
			return true, nil
		})
		require.NoError(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		assert.Less(t, time.Since(start), 250*time.Millisecond)
	})

	t.Run("becomes true after a few polls", func(t *testing.T) {
		var calls int32
		err := Until(context.Background(), "third time lucky", 2*time.Second, 10*time.Millisecond, func(context.Context) (bool, error) {
			return atomic.AddInt32(&calls, 1) >= 3, nil
		})
		require.NoError(t, err)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("timeout carries the description", func(t *testing.T) {
		timeout := 150 * time.Millisecond
		start := time.Now()
		err := Until(context.Background(), "URL contains /admin/dashboard", timeout, 20*time.Millisecond, func(context.Context) (bool, error) {
			return false, nil
		})
		elapsed := time.Since(start)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTimeout)
		var te *TimeoutError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "URL contains /admin/dashboard", te.Condition)
		assert.Equal(t, timeout, te.Timeout)
		assert.Contains(t, err.Error(), "URL contains /admin/dashboard")

		assert.GreaterOrEqual(t, elapsed, timeout-20*time.Millisecond)
		assert.Less(t, elapsed, timeout+time.Second, "must return shortly after the timeout")
	})

	t.Run("transient errors are retried and reported on timeout", func(t *testing.T) {
		boom := errors.New("node not found")
		err := Until(context.Background(), "element present", 80*time.Millisecond, 10*time.Millisecond, func(context.Context) (bool, error) {
			return false, boom
		})
		require.Error(t, err)
		var te *TimeoutError
		require.ErrorAs(t, err, &te)
		assert.ErrorIs(t, te.LastErr, boom)
		assert.ErrorIs(t, err, boom, "the last error is reachable through Unwrap")
	})

	t.Run("transient error then success", func(t *testing.T) {
		var calls int32
		err := Until(context.Background(), "flaky", time.Second, 5*time.Millisecond, func(context.Context) (bool, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				return false, errors.New("stale element")
			}
			return true, nil
		})
		assert.NoError(t, err)
	})

	t.Run("permanent error aborts immediately", func(t *testing.T) {
		var calls int32
		fatal := errors.New("server process exited")
		start := time.Now()
		err := Until(context.Background(), "server ready", 5*time.Second, 10*time.Millisecond, func(context.Context) (bool, error) {
			atomic.AddInt32(&calls, 1)
			return false, Permanent(fatal)
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, fatal)
		assert.NotErrorIs(t, err, ErrTimeout)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("parent cancellation is not a timeout", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(30 * time.Millisecond)
			cancel()
		}()
		err := Until(ctx, "never", 5*time.Second, 10*time.Millisecond, func(context.Context) (bool, error) {
			return false, nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrTimeout)
	})

	t.Run("interval is respected", func(t *testing.T) {
		var calls int32
		_ = Until(context.Background(), "count polls", 220*time.Millisecond, 50*time.Millisecond, func(context.Context) (bool, error) {
			atomic.AddInt32(&calls, 1)
			return false, nil
		})
		// Immediate evaluation plus at most one per interval.
		assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(6))
		assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
	})

	t.Run("last partial interval is still checked", func(t *testing.T) {
		start := time.Now()
		err := Until(context.Background(), "becomes true at 90ms", 100*time.Millisecond, 80*time.Millisecond, func(context.Context) (bool, error) {
			return time.Since(start) >= 90*time.Millisecond, nil
		})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	})

	t.Run("timeout shorter than interval evaluates again at the deadline", func(t *testing.T) {
		var calls int32
		start := time.Now()
		err := Until(context.Background(), "never", 50*time.Millisecond, time.Second, func(context.Context) (bool, error) {
			atomic.AddInt32(&calls, 1)
			return false, nil
		})
		assert.ErrorIs(t, err, ErrTimeout)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond, "no timeout before the deadline")
	})

	t.Run("invalid bounds", func(t *testing.T) {
		cond := func(context.Context) (bool, error) { return true, nil }
		assert.Error(t, Until(context.Background(), "x", 0, time.Millisecond, cond))
		assert.Error(t, Until(context.Background(), "x", time.Second, 0, cond))
	})
}

func TestUntilValue(t *testing.T) {
	var calls int32
	text, err := UntilValue(context.Background(), "summary text", time.Second, 5*time.Millisecond,
		func(context.Context) (string, bool, error) {
			if atomic.AddInt32(&calls, 1) < 3 {
				return "Por favor, aguarde...", false, nil
			}
			return "Temas Recorrentes e Evolução", true, nil
		})
	require.NoError(t, err)
	assert.Equal(t, "Temas Recorrentes e Evolução", text)

	_, err = UntilValue(context.Background(), "never", 30*time.Millisecond, 5*time.Millisecond,
		func(context.Context) (int, bool, error) { return 0, false, nil })
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestPermanentNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}
