// Package telemetry reports anonymous usage events when the user opts in.
package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/posthog/posthog-go"
	"github.com/rs/zerolog"

	"github.com/iotlab-io/labwatch/internal/buildinfo"
	"github.com/iotlab-io/labwatch/internal/config"
	"github.com/iotlab-io/labwatch/internal/models"
)

const installIDFile = "install_id"

// Event names.
const (
	EventRunStarted    = "run_started"
	EventRunFinished   = "run_finished"
	EventBatchStarted  = "batch_started"
	EventBatchFinished = "batch_finished"
	EventReattached    = "session_reattached"
	EventDashboardOpen = "dashboard_opened"
)

// sink is the subset of posthog.Client used here.
type sink interface {
	Enqueue(posthog.Message) error
	Close() error
}

// Reporter sends events. The zero value and a nil *Reporter are no-ops.
type Reporter struct {
	mu       sync.Mutex
	sink     sink
	distinct string
	logger   zerolog.Logger
}

// Disabled returns a reporter that drops every event.
func Disabled() *Reporter {
	return &Reporter{logger: zerolog.Nop()}
}

// New returns a reporter for cfg. Telemetry that is switched off yields a
// disabled reporter and no error.
func New(cfg models.TelemetryConfig, logger zerolog.Logger) (*Reporter, error) {
	if !cfg.Enabled {
		return Disabled(), nil
	}

	client, err := posthog.NewWithConfig(cfg.APIKey, posthog.Config{Endpoint: cfg.Endpoint})
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry client: %w", err)
	}

	id, err := InstallID()
	if err != nil {
		client.Close()
		return nil, err
	}
	return newWithSink(client, id, logger), nil
}

func newWithSink(s sink, distinctID string, logger zerolog.Logger) *Reporter {
	return &Reporter{sink: s, distinct: distinctID, logger: logger.With().Str("component", "telemetry").Logger()}
}

// Enabled reports whether events are sent.
func (r *Reporter) Enabled() bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sink != nil
}

// Track enqueues an event. Failures are logged and otherwise ignored.
func (r *Reporter) Track(event string, props map[string]any) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sink == nil {
		return
	}

	p := posthog.NewProperties().
		Set("version", buildinfo.Version).
		Set("os", runtime.GOOS).
		Set("arch", runtime.GOARCH)
	for k, v := range props {
		p.Set(k, v)
	}

	if err := r.sink.Enqueue(posthog.Capture{
		DistinctId: r.distinct,
		Event:      event,
		Properties: p,
	}); err != nil {
		r.logger.Debug().Err(err).Str("event", event).Msg("telemetry enqueue failed")
	}
}

// Close flushes pending events.
func (r *Reporter) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sink == nil {
		return nil
	}
	err := r.sink.Close()
	r.sink = nil
	return err
}

// InstallID returns the random identifier of this installation, creating it
// on first use.
func InstallID() (string, error) {
	dir, err := config.GlobalDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, installIDFile)

	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}

	if err := config.EnsureGlobalDir(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("failed to write install id: %w", err)
	}
	return id, nil
}
