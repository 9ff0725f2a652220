package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counter(n *atomic.Int64) Task {
	return func(ctx context.Context) error {
		n.Add(1)
		return nil
	}
}

func TestScheduleRunsPeriodically(t *testing.T) {
	s := New(context.Background())
	defer s.Close()

	var n atomic.Int64
	require.NoError(t, s.Schedule("status", 10*time.Millisecond, counter(&n)))

	assert.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"status"}, s.Active())
}

func TestImmediateRunsFirstTickWithoutWaiting(t *testing.T) {
	s := New(context.Background())
	defer s.Close()

	var n atomic.Int64
	require.NoError(t, s.Schedule("logs", time.Hour, counter(&n), Immediate()))

	assert.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return s.Ticks("logs") == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, s.Ticks("unknown"))
}

func TestScheduleRejectsNonPositivePeriod(t *testing.T) {
	s := New(context.Background())
	defer s.Close()

	assert.Error(t, s.Schedule("x", 0, counter(new(atomic.Int64))))
}

func TestScheduleReplacesSameName(t *testing.T) {
	s := New(context.Background())
	defer s.Close()

	var first, second atomic.Int64
	require.NoError(t, s.Schedule("status", 5*time.Millisecond, counter(&first)))
	require.Eventually(t, func() bool { return first.Load() > 0 }, time.Second, time.Millisecond)

	require.NoError(t, s.Schedule("status", 5*time.Millisecond, counter(&second)))
	assert.Equal(t, []string{"status"}, s.Active())

	// Let the replaced goroutine observe its cancellation.
	time.Sleep(20 * time.Millisecond)
	frozen := first.Load()
	require.Eventually(t, func() bool { return second.Load() >= 3 }, time.Second, time.Millisecond)
	assert.Equal(t, frozen, first.Load())
}

func TestPauseSuppressesOnlyNamedTask(t *testing.T) {
	s := New(context.Background())
	defer s.Close()

	var logs, status atomic.Int64
	require.NoError(t, s.Schedule("logs", 5*time.Millisecond, counter(&logs)))
	require.NoError(t, s.Schedule("status", 5*time.Millisecond, counter(&status)))

	require.True(t, s.Pause("logs"))
	assert.True(t, s.IsPaused("logs"))
	assert.False(t, s.IsPaused("status"))

	time.Sleep(20 * time.Millisecond)
	paused := logs.Load()
	before := status.Load()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, paused, logs.Load())
	assert.Greater(t, status.Load(), before)

	require.True(t, s.Resume("logs"))
	assert.Eventually(t, func() bool { return logs.Load() > paused }, time.Second, time.Millisecond)
}

func TestPausedOption(t *testing.T) {
	s := New(context.Background())
	defer s.Close()

	var n atomic.Int64
	require.NoError(t, s.Schedule("logs", 5*time.Millisecond, counter(&n), Immediate(), Paused()))
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, n.Load())
	assert.True(t, s.IsPaused("logs"))
}

func TestCancel(t *testing.T) {
	s := New(context.Background())
	defer s.Close()

	var n atomic.Int64
	require.NoError(t, s.Schedule("status", 5*time.Millisecond, counter(&n)))
	assert.True(t, s.Cancel("status"))
	assert.False(t, s.Cancel("status"))
	assert.Empty(t, s.Active())
	assert.False(t, s.Pause("status"))
}

func TestErrStopEndsTask(t *testing.T) {
	s := New(context.Background())
	defer s.Close()

	var n atomic.Int64
	require.NoError(t, s.Schedule("status", 5*time.Millisecond, func(ctx context.Context) error {
		if n.Add(1) == 2 {
			return ErrStop
		}
		return nil
	}))

	assert.Eventually(t, func() bool { return !s.IsActive("status") }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(2), n.Load())
}

func TestFailingTaskKeepsFixedCadence(t *testing.T) {
	s := New(context.Background())
	defer s.Close()

	var n atomic.Int64
	require.NoError(t, s.Schedule("status", 5*time.Millisecond, func(ctx context.Context) error {
		n.Add(1)
		return errors.New("connection refused")
	}))

	assert.Eventually(t, func() bool { return n.Load() >= 5 }, time.Second, time.Millisecond)
	assert.True(t, s.IsActive("status"))
}

func TestExponentialRetryBacksOff(t *testing.T) {
	s := New(context.Background(), WithRetry(RetryExponential, 200*time.Millisecond))
	defer s.Close()

	var n atomic.Int64
	require.NoError(t, s.Schedule("status", 10*time.Millisecond, func(ctx context.Context) error {
		n.Add(1)
		return errors.New("down")
	}, Immediate()))

	time.Sleep(150 * time.Millisecond)
	// A fixed 10ms cadence would have produced ~15 ticks.
	assert.Less(t, n.Load(), int64(10))
	assert.True(t, s.IsActive("status"))
}

func TestCloseCancelsEverything(t *testing.T) {
	s := New(context.Background())

	started := make(chan struct{})
	var once atomic.Bool
	require.NoError(t, s.Schedule("slow", 5*time.Millisecond, func(ctx context.Context) error {
		if once.CompareAndSwap(false, true) {
			close(started)
		}
		<-ctx.Done()
		return ctx.Err()
	}, Immediate()))
	require.NoError(t, s.Schedule("summary", time.Hour, counter(new(atomic.Int64))))

	<-started
	s.Close()

	assert.Empty(t, s.Active())
	assert.ErrorIs(t, s.Schedule("late", time.Second, counter(new(atomic.Int64))), ErrClosed)
	s.Close()
}

func TestParentContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(ctx)
	defer s.Close()

	require.NoError(t, s.Schedule("status", 5*time.Millisecond, counter(new(atomic.Int64))))
	cancel()
	assert.Eventually(t, func() bool { return len(s.Active()) == 0 }, time.Second, time.Millisecond)
}

func TestParseRetryPolicy(t *testing.T) {
	p, err := ParseRetryPolicy("")
	require.NoError(t, err)
	assert.Equal(t, RetryFixed, p)

	p, err = ParseRetryPolicy("exponential")
	require.NoError(t, err)
	assert.Equal(t, RetryExponential, p)

	_, err = ParseRetryPolicy("linear")
	assert.Error(t, err)
}
