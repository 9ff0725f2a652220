// Package scheduler runs named periodic tasks that can be paused, resumed and
// canceled independently.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// ErrStop may be returned by a task to end itself.
var ErrStop = errors.New("scheduler: stop task")

// ErrClosed is returned when scheduling on a closed scheduler.
var ErrClosed = errors.New("scheduler: closed")

// Task is one tick of a periodic job. A non-nil error other than ErrStop is
// logged and the task runs again after the retry delay.
type Task func(ctx context.Context) error

// RetryPolicy decides the delay after a failed tick.
type RetryPolicy string

const (
	// RetryFixed keeps the task's own period after failures, forever.
	RetryFixed RetryPolicy = "fixed"
	// RetryExponential backs off exponentially up to a maximum delay and
	// returns to the task period after the next success.
	RetryExponential RetryPolicy = "exponential"
)

// ParseRetryPolicy validates a policy name. Empty means RetryFixed.
func ParseRetryPolicy(s string) (RetryPolicy, error) {
	switch RetryPolicy(s) {
	case "", RetryFixed:
		return RetryFixed, nil
	case RetryExponential:
		return RetryExponential, nil
	}
	return "", fmt.Errorf("invalid retry policy %q (expected fixed or exponential)", s)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger used for task failures.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.logger = l.With().Str("component", "scheduler").Logger() }
}

// WithRetry sets the retry policy. maxDelay caps exponential backoff.
func WithRetry(policy RetryPolicy, maxDelay time.Duration) Option {
	return func(s *Scheduler) {
		s.retry = policy
		s.maxDelay = maxDelay
	}
}

// TaskOption configures a single task.
type TaskOption func(*task)

// Immediate runs the first tick right away instead of after one period.
func Immediate() TaskOption {
	return func(t *task) { t.immediate = true }
}

// Paused schedules the task in the paused state.
func Paused() TaskOption {
	return func(t *task) { t.paused.Store(true) }
}

type task struct {
	name      string
	period    time.Duration
	fn        Task
	cancel    context.CancelFunc
	immediate bool
	paused    atomic.Bool
	ticks     atomic.Int64
}

// Scheduler owns a set of named periodic tasks. Scheduling a name that is
// already active replaces the previous task.
type Scheduler struct {
	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	tasks    map[string]*task
	closed   bool
	wg       sync.WaitGroup
	logger   zerolog.Logger
	retry    RetryPolicy
	maxDelay time.Duration
}

// New creates a scheduler whose tasks stop when parent is done.
func New(parent context.Context, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(parent)
	s := &Scheduler{
		ctx:      ctx,
		cancel:   cancel,
		tasks:    make(map[string]*task),
		logger:   zerolog.Nop(),
		retry:    RetryFixed,
		maxDelay: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule starts fn every period under name.
func (s *Scheduler) Schedule(name string, period time.Duration, fn Task, opts ...TaskOption) error {
	if period <= 0 {
		return fmt.Errorf("scheduler: task %q: period must be positive", name)
	}

	t := &task{name: name, period: period, fn: fn}
	for _, opt := range opts {
		opt(t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if old, ok := s.tasks[name]; ok {
		old.cancel()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	t.cancel = cancel
	s.tasks[name] = t

	s.wg.Add(1)
	go s.run(ctx, t)
	return nil
}

// Cancel stops the named task. It reports whether the task was active.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	t, ok := s.tasks[name]
	if ok {
		delete(s.tasks, name)
	}
	s.mu.Unlock()

	if ok {
		t.cancel()
	}
	return ok
}

// Pause suppresses ticks of the named task until Resume.
func (s *Scheduler) Pause(name string) bool {
	return s.setPaused(name, true)
}

// Resume re-enables a paused task. The next tick follows the normal cadence.
func (s *Scheduler) Resume(name string) bool {
	return s.setPaused(name, false)
}

func (s *Scheduler) setPaused(name string, paused bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[name]
	if ok {
		t.paused.Store(paused)
	}
	return ok
}

// IsPaused reports whether the named task exists and is paused.
func (s *Scheduler) IsPaused(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[name]
	return ok && t.paused.Load()
}

// IsActive reports whether a task with the given name is scheduled.
func (s *Scheduler) IsActive(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[name]
	return ok
}

// Active returns the names of all scheduled tasks, sorted.
func (s *Scheduler) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ticks returns how many times the named task has executed.
func (s *Scheduler) Ticks(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[name]; ok {
		return t.ticks.Load()
	}
	return 0
}

// Close cancels every task and waits for running ticks to return.
// It must not be called from inside a task.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for name, t := range s.tasks {
		t.cancel()
		delete(s.tasks, name)
	}
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, t *task) {
	defer s.wg.Done()
	defer s.remove(t)

	bo := s.newBackOff(t.period)
	wait := t.period
	if t.immediate {
		wait = 0
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		next := t.period
		if !t.paused.Load() {
			t.ticks.Add(1)
			err := t.fn(ctx)
			switch {
			case errors.Is(err, ErrStop):
				return
			case err != nil:
				if ctx.Err() != nil {
					return
				}
				if d := bo.NextBackOff(); d != backoff.Stop {
					next = d
				}
				s.logger.Debug().Err(err).Str("task", t.name).Dur("retry_in", next).Msg("task tick failed")
			default:
				bo.Reset()
			}
		}
		timer.Reset(next)
	}
}

func (s *Scheduler) remove(t *task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.tasks[t.name]; ok && cur == t {
		delete(s.tasks, t.name)
	}
}

func (s *Scheduler) newBackOff(period time.Duration) backoff.BackOff {
	if s.retry != RetryExponential {
		return backoff.NewConstantBackOff(period)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = period
	b.MaxInterval = s.maxDelay
	if b.MaxInterval < period {
		b.MaxInterval = period
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
