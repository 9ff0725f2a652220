package logview

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iotlab-io/labwatch/internal/engine/scheduler"
	"github.com/iotlab-io/labwatch/internal/models"
)

// TaskName is the scheduler task used by a Follower.
const TaskName = "logs"

// Source fetches the current tail window of every container.
type Source interface {
	Logs(ctx context.Context, tail int, filter string) (*models.LogsResponse, error)
}

// FollowerOption configures a Follower.
type FollowerOption func(*Follower)

// WithTail sets how many lines per container are requested.
func WithTail(n int) FollowerOption {
	return func(f *Follower) {
		if n > 0 {
			f.tail = n
		}
	}
}

// WithPeriod sets the fetch cadence.
func WithPeriod(d time.Duration) FollowerOption {
	return func(f *Follower) {
		if d > 0 {
			f.period = d
		}
	}
}

// WithServerFilter passes a filter string to the backend.
func WithServerFilter(s string) FollowerOption {
	return func(f *Follower) { f.serverFilter = s }
}

// WithFollowerLogger sets the logger for fetch failures.
func WithFollowerLogger(l zerolog.Logger) FollowerOption {
	return func(f *Follower) { f.logger = l.With().Str("component", "logs").Logger() }
}

// OnUpdate registers a callback invoked after every successful ingest.
func OnUpdate(fn func()) FollowerOption {
	return func(f *Follower) { f.onUpdate = fn }
}

// Follower polls a Source on a scheduler task and feeds an Aggregator.
type Follower struct {
	src          Source
	agg          *Aggregator
	sched        *scheduler.Scheduler
	tail         int
	period       time.Duration
	serverFilter string
	logger       zerolog.Logger
	onUpdate     func()
}

// NewFollower creates a follower. Defaults are an 80-line tail every 3s.
func NewFollower(src Source, agg *Aggregator, sched *scheduler.Scheduler, opts ...FollowerOption) *Follower {
	f := &Follower{
		src:    src,
		agg:    agg,
		sched:  sched,
		tail:   80,
		period: 3 * time.Second,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Start fetches immediately and then on every period.
func (f *Follower) Start() error {
	return f.sched.Schedule(TaskName, f.period, f.tick, scheduler.Immediate())
}

func (f *Follower) tick(ctx context.Context) error {
	if err := f.Fetch(ctx); err != nil {
		f.logger.Debug().Err(err).Msg("log fetch failed")
		return err
	}
	return nil
}

// Fetch performs one fetch and ingests the result.
func (f *Follower) Fetch(ctx context.Context) error {
	resp, err := f.src.Logs(ctx, f.tail, f.serverFilter)
	if err != nil {
		return fmt.Errorf("failed to fetch logs: %w", err)
	}
	f.agg.IngestResponse(resp)
	if f.onUpdate != nil {
		f.onUpdate()
	}
	return nil
}

// Pause stops fetching. The aggregator keeps the lines it already holds.
func (f *Follower) Pause() {
	f.sched.Pause(TaskName)
}

// Resume restarts fetching at the configured cadence.
func (f *Follower) Resume() {
	f.sched.Resume(TaskName)
}

// Toggle flips the paused state and returns the new value.
func (f *Follower) Toggle() bool {
	if f.Paused() {
		f.Resume()
		return false
	}
	f.Pause()
	return true
}

// Paused reports whether fetching is paused.
func (f *Follower) Paused() bool {
	return f.sched.IsPaused(TaskName)
}

// Stop cancels the fetch task.
func (f *Follower) Stop() {
	f.sched.Cancel(TaskName)
}
