package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/iotlab-io/labwatch/internal/api"
	"github.com/iotlab-io/labwatch/internal/config"
	"github.com/iotlab-io/labwatch/internal/engine/phase"
	"github.com/iotlab-io/labwatch/internal/engine/scheduler"
	"github.com/iotlab-io/labwatch/internal/engine/session"
	"github.com/iotlab-io/labwatch/internal/logging"
	"github.com/iotlab-io/labwatch/internal/models"
	"github.com/iotlab-io/labwatch/internal/telemetry"
)

// annotationFileLog marks commands that own the terminal and log to
// ~/.labwatch/labwatch.log instead of stderr.
const annotationFileLog = "labwatch/file-log"

// app holds what every command needs once configuration is loaded.
type app struct {
	cfg       *config.Manager
	settings  models.Settings
	logger    zerolog.Logger
	client    *api.Client
	telemetry *telemetry.Reporter
	phases    *phase.Store
	phasesAt  string
	closers   []io.Closer
}

var current *app

func setupApp(cmd *cobra.Command, args []string) error {
	if noColor {
		plainOutput = true
	}

	cfg, err := config.NewManager(settingsPath)
	if err != nil {
		return err
	}
	if err := cfg.Load(cmd.Flags(), flagKeys); err != nil {
		return err
	}
	s := cfg.Get()

	a := &app{cfg: cfg, settings: s}

	if cmd.Annotations[annotationFileLog] == "true" {
		logger, closer, err := logging.SetupFile(s.Log.Level)
		if err != nil {
			return err
		}
		a.logger = logger
		a.closers = append(a.closers, closer)
	} else {
		logger, err := logging.Setup(logging.Options{Level: s.Log.Level, Format: s.Log.Format, Output: cmd.ErrOrStderr()})
		if err != nil {
			return err
		}
		a.logger = logger
	}

	a.client, err = api.New(s.API.URL,
		api.WithTimeout(s.API.Timeout),
		api.WithLogger(a.logger),
		api.WithSessionID(uuid.NewString()),
	)
	if err != nil {
		return err
	}

	a.phasesAt, err = config.GlobalPhasesFile()
	if err != nil {
		return err
	}
	a.phases, err = phase.OpenStore(a.phasesAt)
	if err != nil {
		a.logger.Warn().Err(err).Msg("using built-in phase catalog")
		a.phases = phase.NewStore(nil)
	}

	a.telemetry, err = telemetry.New(s.Telemetry, a.logger)
	if err != nil {
		a.logger.Debug().Err(err).Msg("telemetry disabled")
		a.telemetry = telemetry.Disabled()
	}

	a.logger.Debug().
		Str("api", a.client.BaseURL()).
		Str("session", a.client.SessionID()).
		Str("settings", cfg.Path()).
		Msg("labwatch ready")

	current = a
	return nil
}

func teardownApp(cmd *cobra.Command, args []string) error {
	a := current
	if a == nil {
		return nil
	}
	current = nil

	var errs []error
	if err := a.telemetry.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func getApp() (*app, error) {
	if current == nil {
		return nil, fmt.Errorf("labwatch is not initialized")
	}
	return current, nil
}

// schedulerOptions returns the configured logger and retry policy.
func (a *app) schedulerOptions() []scheduler.Option {
	policy, _ := scheduler.ParseRetryPolicy(a.settings.Poll.Retry)
	return []scheduler.Option{
		scheduler.WithLogger(a.logger),
		scheduler.WithRetry(policy, a.settings.Poll.MaxBackoff),
	}
}

// newScheduler creates a scheduler bound to ctx with the configured retry policy.
func (a *app) newScheduler(ctx context.Context) *scheduler.Scheduler {
	return scheduler.New(ctx, a.schedulerOptions()...)
}

// trackerOptions returns the options shared by every tracker. A failure to
// create the launch lock is logged and launches proceed unguarded.
func (a *app) trackerOptions() []session.Option {
	opts := []session.Option{
		session.WithLogger(a.logger),
		session.WithCatalog(a.phases.Load),
		session.WithIntervals(a.settings.Poll.Status, a.settings.Poll.Batch),
	}
	if lock, err := config.NewLaunchLock(); err == nil {
		opts = append(opts, session.WithLaunchLock(lock))
	} else {
		a.logger.Warn().Err(err).Msg("launch lock unavailable")
	}
	return opts
}

// newTracker creates a tracker polling on sched.
func (a *app) newTracker(sched *scheduler.Scheduler, opts ...session.Option) *session.Tracker {
	return session.New(a.client, sched, append(a.trackerOptions(), opts...)...)
}

// onFinished saves the transcript and reports the run.
func (a *app) onFinished(snap session.Snapshot) {
	a.saveTranscript(snap)
	a.trackFinished(snap)
}

// saveTranscript records a finished run under ~/.labwatch/transcripts.
func (a *app) saveTranscript(snap session.Snapshot) {
	if snap.Output == "" && len(snap.ExperimentIDs) == 0 {
		return
	}
	t := models.Transcript{
		ExperimentID: snap.ExperimentID,
		Kind:         string(snap.Kind),
		Mode:         string(snap.Mode),
		Phase:        snap.Phase.Label,
		Status:       string(snap.State),
	}
	if snap.Kind == session.KindBatch && len(snap.ExperimentIDs) > 0 {
		t.ExperimentID = snap.ExperimentIDs[len(snap.ExperimentIDs)-1]
	}
	startedAt := snap.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	saved, err := config.WriteTranscript(t, startedAt, splitOutput(snap.Output))
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to save transcript")
		return
	}
	a.logger.Info().Str("transcript", saved.ID).Msg("transcript saved")
}

func (a *app) trackFinished(snap session.Snapshot) {
	event := telemetry.EventRunFinished
	if snap.Kind == session.KindBatch {
		event = telemetry.EventBatchFinished
	}
	a.telemetry.Track(event, map[string]any{
		"mode":     string(snap.Mode),
		"status":   string(snap.State),
		"elapsed":  snap.Elapsed.Seconds(),
		"runs":     snap.TotalRuns,
		"devices":  snap.DevicesFound,
		"attached": snap.Reattached,
	})
}
