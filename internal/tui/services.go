package tui

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/iotlab-io/labwatch/internal/engine/logview"
	"github.com/iotlab-io/labwatch/internal/engine/phase"
	"github.com/iotlab-io/labwatch/internal/engine/scheduler"
	"github.com/iotlab-io/labwatch/internal/engine/session"
)

const summaryTask = "summary"

// services owns the engine objects behind the dashboard. Their callbacks run
// on scheduler goroutines and reach the model only through the program ref.
type services struct {
	ctx      context.Context
	cancel   context.CancelFunc
	backend  Backend
	sched    *scheduler.Scheduler
	tracker  *session.Tracker
	agg      *logview.Aggregator
	follower *logview.Follower
	watcher  *phase.Watcher
	logger   zerolog.Logger

	closeOnce sync.Once
}

func newServices(parent context.Context, deps Deps, program *programRef) (*services, error) {
	ctx, cancel := context.WithCancel(parent)
	logger := deps.Logger.With().Str("component", "dashboard").Logger()

	s := &services{
		ctx:     ctx,
		cancel:  cancel,
		backend: deps.Backend,
		sched:   scheduler.New(ctx, deps.SchedulerOptions...),
		logger:  logger,
	}

	trackerOpts := append([]session.Option{}, deps.TrackerOptions...)
	trackerOpts = append(trackerOpts,
		session.WithNotify(func(snap session.Snapshot) {
			program.Send(SnapshotMsg{Snapshot: snap})
		}),
		session.WithOnComplete(func(snap session.Snapshot) {
			if deps.OnFinished != nil {
				deps.OnFinished(snap)
			}
			program.Send(RunFinishedMsg{Snapshot: snap})
		}),
	)
	s.tracker = session.New(deps.Backend, s.sched, trackerOpts...)

	s.agg = logview.New(logview.WithLimits(deps.Settings.Logs.UnifiedLimit, deps.Settings.Logs.SplitLimit))
	s.follower = logview.NewFollower(deps.Backend, s.agg, s.sched,
		logview.WithTail(deps.Settings.Logs.Tail),
		logview.WithPeriod(deps.Settings.Poll.Logs),
		logview.WithFollowerLogger(deps.Logger),
		logview.OnUpdate(func() {
			program.Send(LogsUpdatedMsg{})
		}),
	)
	if err := s.follower.Start(); err != nil {
		s.close()
		return nil, err
	}

	summaryEvery := deps.Settings.Poll.Summary
	if summaryEvery <= 0 {
		summaryEvery = defaultSummaryInterval
	}
	err := s.sched.Schedule(summaryTask, summaryEvery, func(ctx context.Context) error {
		ids, err := deps.Backend.ListExperiments(ctx)
		program.Send(SummaryMsg{Experiments: len(ids), Err: err})
		return err
	}, scheduler.Immediate())
	if err != nil {
		s.close()
		return nil, err
	}

	if deps.Phases != nil && deps.PhasesPath != "" {
		s.watcher, err = phase.NewWatcher(deps.PhasesPath, deps.Phases, deps.Logger, func(c *phase.Catalog) {
			program.Send(CatalogReloadedMsg{Phases: len(c.Phases())})
		})
		if err != nil {
			logger.Warn().Err(err).Msg("phase catalog hot reload disabled")
		}
	}

	return s, nil
}

// refreshSummary fetches the summary off the regular cadence, after a run ends.
func (s *services) refreshSummary(program *programRef) {
	go func() {
		ids, err := s.backend.ListExperiments(s.ctx)
		if s.ctx.Err() != nil {
			return
		}
		program.Send(SummaryMsg{Experiments: len(ids), Err: err})
	}()
}

func (s *services) close() {
	s.closeOnce.Do(func() {
		if s.watcher != nil {
			_ = s.watcher.Close()
		}
		if s.tracker != nil {
			s.tracker.Close()
		}
		s.sched.Close()
		s.cancel()
	})
}
