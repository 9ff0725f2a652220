package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotlab-io/labwatch/internal/models"
)

func setHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(HomeEnv, dir)
	return dir
}

func TestGlobalDirHonoursEnv(t *testing.T) {
	dir := setHome(t)

	got, err := GlobalDir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	p, err := GlobalSettingsFile()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, SettingsFileName), p)
}

func TestSaveYAMLIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "s.yaml")

	require.NoError(t, SaveYAML(path, models.NewSettings()))

	var s models.Settings
	require.NoError(t, LoadYAML(path, &s))
	assert.Equal(t, 2*time.Second, s.Poll.Status)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestLoadSettingsFileDefaultWhenMissing(t *testing.T) {
	s, err := LoadSettingsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, models.NewSettings(), s)
}

func TestLoadSettingsFileRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte("poll:\n  retry: sometimes\n"), 0o644))

	_, err := LoadSettingsFile(path)
	assert.ErrorContains(t, err, "poll.retry")

	bad := models.NewSettings()
	bad.Batch.Runs = 0
	assert.Error(t, SaveSettingsFile(path, bad))
}

func TestManagerExportRoundTrips(t *testing.T) {
	setHome(t)
	t.Setenv("LABWATCH_API_URL", "http://lab:9000")

	m, err := NewManager("")
	require.NoError(t, err)
	require.NoError(t, m.Load(nil, nil))
	require.NoError(t, m.Set("poll.max_backoff", "1m"))

	// The file layer ignores the environment.
	fileLayer, err := m.FileSettings()
	require.NoError(t, err)
	assert.Equal(t, models.NewSettings().API.URL, fileLayer.API.URL)
	assert.Equal(t, time.Minute, fileLayer.Poll.MaxBackoff)

	out := filepath.Join(t.TempDir(), "exported.yaml")
	require.NoError(t, m.Export(out))

	got, err := LoadSettingsFile(out)
	require.NoError(t, err)
	assert.Equal(t, m.Get(), *got)
	assert.Equal(t, "http://lab:9000", got.API.URL)
}

func TestManagerDefaults(t *testing.T) {
	setHome(t)

	m, err := NewManager("")
	require.NoError(t, err)
	require.NoError(t, m.Load(nil, nil))

	assert.Equal(t, *models.NewSettings(), m.Get())
	assert.Equal(t, "fixed", m.Value("poll.retry"))
}

func TestManagerPrecedence(t *testing.T) {
	dir := setHome(t)
	path := filepath.Join(dir, SettingsFileName)
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  url: http://file:8000
poll:
  status: 5s
  max_backoff: 1m
run:
  mode: static
`), 0o644))

	t.Setenv("LABWATCH_POLL_MAX_BACKOFF", "45s")
	t.Setenv("LABWATCH_API_URL", "http://env:8000")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("api-url", "http://flag-default", "")
	fs.String("log-level", "info", "")
	require.NoError(t, fs.Parse([]string{"--api-url", "http://flag:8000"}))

	m, err := NewManager(path)
	require.NoError(t, err)
	require.NoError(t, m.Load(fs, map[string]string{
		"api-url":   "api.url",
		"log-level": "log.level",
	}))

	s := m.Get()
	assert.Equal(t, "http://flag:8000", s.API.URL, "flags beat env")
	assert.Equal(t, 45*time.Second, s.Poll.MaxBackoff, "env beats file")
	assert.Equal(t, 5*time.Second, s.Poll.Status, "file beats defaults")
	assert.Equal(t, "static", s.Run.Mode)
	assert.Equal(t, "info", s.Log.Level, "unchanged flags do not override")
	assert.Equal(t, 3*time.Second, s.Poll.Batch)
}

func TestManagerRejectsInvalid(t *testing.T) {
	setHome(t)
	t.Setenv("LABWATCH_POLL_RETRY", "sometimes")

	m, err := NewManager("")
	require.NoError(t, err)
	err = m.Load(nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll.retry")
}

func TestManagerSet(t *testing.T) {
	setHome(t)

	m, err := NewManager("")
	require.NoError(t, err)
	require.NoError(t, m.Load(nil, nil))

	require.NoError(t, m.Set("poll.status", "4s"))
	require.NoError(t, m.Set("batch.runs", "12"))
	require.NoError(t, m.Set("telemetry.enabled", "false"))

	s := m.Get()
	assert.Equal(t, 4*time.Second, s.Poll.Status)
	assert.Equal(t, 12, s.Batch.Runs)

	// Persisted: a fresh manager sees the same values.
	fresh, err := NewManager("")
	require.NoError(t, err)
	require.NoError(t, fresh.Load(nil, nil))
	assert.Equal(t, 4*time.Second, fresh.Get().Poll.Status)
	assert.Equal(t, 12, fresh.Get().Batch.Runs)
}

func TestManagerSetErrors(t *testing.T) {
	setHome(t)

	m, err := NewManager("")
	require.NoError(t, err)
	require.NoError(t, m.Load(nil, nil))

	assert.Error(t, m.Set("poll.nope", "1s"))
	assert.Error(t, m.Set("batch.runs", "many"))
	assert.Error(t, m.Set("batch.runs", "0"))
	assert.Error(t, m.Set("run.network", "not-a-cidr"))
	assert.False(t, FileExists(m.Path()), "rejected values are not persisted")
}

func TestManagerKeys(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "s.yaml"))
	require.NoError(t, err)

	keys := m.Keys()
	assert.Contains(t, keys, "api.url")
	assert.Contains(t, keys, "poll.max_backoff")
	assert.Contains(t, keys, "telemetry.enabled")
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "poll.max_backoff", envKey("LABWATCH_POLL_MAX_BACKOFF"))
	assert.Equal(t, "api.url", envKey("LABWATCH_API_URL"))
	assert.Equal(t, "telemetry.api_key", envKey("LABWATCH_TELEMETRY_API_KEY"))
}

func TestTranscriptRoundTrip(t *testing.T) {
	setHome(t)

	older := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	_, err := WriteTranscript(models.Transcript{
		ExperimentID: "exp/1",
		Mode:         "automl",
		Phase:        "Complete",
		Status:       "completed",
	}, older, []string{"line one", "line two"})
	require.NoError(t, err)

	second, err := WriteTranscript(models.Transcript{
		Kind:   "batch",
		Mode:   "automl",
		Status: "batch_completed",
	}, newer, nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01T11-00-00-batch", second.ID)

	list, err := ListTranscripts()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")
	assert.Equal(t, "2024-05-01T10-00-00-single-exp_1", list[1].ID)

	meta, body, err := ReadTranscript(list[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "exp/1", meta.ExperimentID)
	assert.Equal(t, "completed", meta.Status)
	assert.Equal(t, "line one\nline two\n", body)
}

func TestListTranscriptsEmpty(t *testing.T) {
	setHome(t)

	list, err := ListTranscripts()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestReadTranscriptMissing(t *testing.T) {
	setHome(t)

	_, _, err := ReadTranscript("nope")
	assert.Error(t, err)
}

func TestLaunchLockExclusive(t *testing.T) {
	setHome(t)

	a, err := NewLaunchLock()
	require.NoError(t, err)
	b, err := NewLaunchLock()
	require.NoError(t, err)

	ok, err := a.TryLock()
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.TryLock()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Unlock())
	ok, err = b.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Unlock())
}
