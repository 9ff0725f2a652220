package telemetry

import (
	"errors"
	"testing"

	"github.com/posthog/posthog-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotlab-io/labwatch/internal/config"
	"github.com/iotlab-io/labwatch/internal/models"
)

type fakeSink struct {
	messages []posthog.Message
	closed   bool
	err      error
}

func (f *fakeSink) Enqueue(m posthog.Message) error {
	f.messages = append(f.messages, m)
	return f.err
}

func (f *fakeSink) Close() error {
	f.closed = true
	return nil
}

func TestDisabledDropsEvents(t *testing.T) {
	r, err := New(models.TelemetryConfig{Enabled: false}, zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, r.Enabled())

	r.Track(EventRunStarted, nil)
	assert.NoError(t, r.Close())

	var nilReporter *Reporter
	nilReporter.Track(EventRunStarted, nil)
	assert.NoError(t, nilReporter.Close())
}

func TestTrackEnqueuesCapture(t *testing.T) {
	s := &fakeSink{}
	r := newWithSink(s, "install-1", zerolog.Nop())
	require.True(t, r.Enabled())

	r.Track(EventRunFinished, map[string]any{"mode": "automl", "status": "completed"})

	require.Len(t, s.messages, 1)
	c, ok := s.messages[0].(posthog.Capture)
	require.True(t, ok)
	assert.Equal(t, "install-1", c.DistinctId)
	assert.Equal(t, EventRunFinished, c.Event)
	assert.Equal(t, "automl", c.Properties["mode"])
	assert.Contains(t, c.Properties, "version")
}

func TestTrackSwallowsErrors(t *testing.T) {
	s := &fakeSink{err: errors.New("queue full")}
	r := newWithSink(s, "id", zerolog.Nop())

	assert.NotPanics(t, func() { r.Track(EventBatchStarted, nil) })
}

func TestCloseStopsTracking(t *testing.T) {
	s := &fakeSink{}
	r := newWithSink(s, "id", zerolog.Nop())

	require.NoError(t, r.Close())
	assert.True(t, s.closed)
	assert.False(t, r.Enabled())

	r.Track(EventRunStarted, nil)
	assert.Empty(t, s.messages)
}

func TestInstallIDStable(t *testing.T) {
	t.Setenv(config.HomeEnv, t.TempDir())

	a, err := InstallID()
	require.NoError(t, err)
	b, err := InstallID()
	require.NoError(t, err)

	assert.NotEmpty(t, a)
	assert.Equal(t, a, b)
}
