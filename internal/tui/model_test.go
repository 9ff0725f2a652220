package tui

import (
	"context"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotlab-io/labwatch/internal/engine/phase"
	"github.com/iotlab-io/labwatch/internal/engine/session"
	"github.com/iotlab-io/labwatch/internal/models"
)

type fakeBackend struct {
	mu       sync.Mutex
	launches int
	logs     map[string]string
}

func (f *fakeBackend) RunExperiment(ctx context.Context, p models.RunParameters) (*models.LaunchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launches++
	return &models.LaunchResponse{Status: "started", Mode: string(p.Mode), Network: p.Network}, nil
}

func (f *fakeBackend) StartBatch(ctx context.Context, req models.BatchRequest) (*models.LaunchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launches++
	return &models.LaunchResponse{Status: "started"}, nil
}

func (f *fakeBackend) ExperimentStatus(ctx context.Context) (*models.ExperimentStatus, error) {
	return &models.ExperimentStatus{Status: models.RunStatusIdle}, nil
}

func (f *fakeBackend) BatchStatus(ctx context.Context) (*models.BatchStatus, error) {
	return &models.BatchStatus{Status: models.RunStatusIdle}, nil
}

func (f *fakeBackend) Logs(ctx context.Context, tail int, filter string) (*models.LogsResponse, error) {
	logs := f.logs
	if logs == nil {
		logs = map[string]string{}
	}
	return &models.LogsResponse{Logs: logs}, nil
}

func (f *fakeBackend) ListExperiments(ctx context.Context) ([]string, error) {
	return []string{"exp_1", "exp_2"}, nil
}

func newTestModel(t *testing.T) Model {
	t.Helper()
	return newTestModelWith(t, &fakeBackend{})
}

func newTestModelWith(t *testing.T, backend *fakeBackend) Model {
	t.Helper()
	m, err := NewModel(context.Background(), Deps{
		Backend:  backend,
		Settings: *models.NewSettings(),
		Logger:   zerolog.Nop(),
		Phases:   phase.NewStore(nil),
	}, &programRef{})
	require.NoError(t, err)
	t.Cleanup(m.svc.close)

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return updated.(Model)
}

func press(m Model, keys ...string) Model {
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "ctrl+q":
			msg = tea.KeyMsg{Type: tea.KeyCtrlQ}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "tab":
			msg = tea.KeyMsg{Type: tea.KeyTab}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		updated, _ := m.Update(msg)
		m = updated.(Model)
	}
	return m
}

func TestModelStartsIdle(t *testing.T) {
	m := newTestModel(t)
	assert.Equal(t, session.StateIdle, m.snap.State)
	assert.Contains(t, m.View(), "No experiment running")
}

func TestModelTooSmall(t *testing.T) {
	m := newTestModel(t)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 60, Height: 20})
	assert.Contains(t, updated.(Model).View(), "Terminal too small")
}

func TestModelSnapshotMsg(t *testing.T) {
	m := newTestModel(t)
	updated, cmd := m.Update(SnapshotMsg{Snapshot: session.Snapshot{
		State:        session.StateRunning,
		Kind:         session.KindSingle,
		Mode:         models.ModeStatic,
		ExperimentID: "exp_9",
	}})
	m = updated.(Model)
	assert.NotNil(t, cmd, "animations start while a run is active")
	assert.True(t, m.spinnerRunning)
	assert.True(t, m.ticking)
	assert.Contains(t, m.View(), "exp_9")
}

func TestModelQuitAsksWhileRunning(t *testing.T) {
	m := newTestModel(t)
	updated, _ := m.Update(SnapshotMsg{Snapshot: session.Snapshot{State: session.StateRunning}})
	m = updated.(Model)

	m = press(m, "ctrl+q")
	assert.Equal(t, confirmQuit, m.confirmMode)
	assert.Contains(t, m.View(), "Quit")

	m = press(m, "n")
	assert.Equal(t, confirmNone, m.confirmMode)
}

func TestModelNewRunWhileBusy(t *testing.T) {
	m := newTestModel(t)
	updated, _ := m.Update(SnapshotMsg{Snapshot: session.Snapshot{State: session.StateRunning}})
	m = press(updated.(Model), "n")
	assert.Equal(t, overlayNone, m.activeOverlay)
	assert.ErrorIs(t, m.err, session.ErrBusy)
}

func TestModelOpensRunForm(t *testing.T) {
	m := newTestModel(t)
	m = press(m, "b")
	assert.Equal(t, overlayRunForm, m.activeOverlay)
	require.NotNil(t, m.runForm)
	assert.True(t, m.runForm.IsBatch())
	assert.Contains(t, m.View(), "Batch")

	// Keys go to the form, not to the tabs.
	m = press(m, "2")
	assert.Equal(t, 0, m.leftTab)

	m = press(m, "esc")
	assert.Equal(t, overlayNone, m.activeOverlay)
	assert.Nil(t, m.runForm)
}

func TestModelTabSwitching(t *testing.T) {
	m := newTestModel(t)
	m = press(m, "3")
	assert.Equal(t, 2, m.leftTab)
	assert.Contains(t, m.View(), "Backend URL")

	m = press(m, "tab", "s")
	assert.Equal(t, 1, m.focusedPanel)
	assert.Equal(t, 1, m.rightTab)
	assert.True(t, m.logsPanel.Split())

	m = press(m, "p")
	assert.True(t, m.svc.follower.Paused())
	assert.True(t, m.logsPanel.paused)
}

func TestModelContainerPicker(t *testing.T) {
	logs := map[string]string{
		"broker":  "2024-01-15T10:00:00.000Z mosquitto up",
		"scanner": "2024-01-15T10:00:01.000Z nmap started",
	}
	m := newTestModelWith(t, &fakeBackend{logs: logs})
	m.svc.agg.Ingest(logs)
	updated, _ := m.Update(LogsUpdatedMsg{})
	m = updated.(Model)

	m = press(m, "tab", "c")
	require.True(t, m.logsPanel.IsPicking())

	// Keys go to the picker while it is open.
	m = press(m, "l", " ", "s")
	assert.Equal(t, 0, m.rightTab)
	assert.Equal(t, []string{"scanner"}, m.logsPanel.Selected())

	m = press(m, "c")
	assert.False(t, m.logsPanel.IsPicking())
	assert.NotContains(t, m.View(), "mosquitto up")

	m = press(m, "x")
	assert.Empty(t, m.logsPanel.Selected())

	m = press(m, "s", "s")
	assert.Equal(t, logViewSingle, m.rightTab)
	assert.Equal(t, "broker", m.logsPanel.SingleName())
	m = press(m, "]")
	assert.Equal(t, "scanner", m.logsPanel.SingleName())
}

func TestModelSummaryAndNotices(t *testing.T) {
	m := newTestModel(t)
	updated, _ := m.Update(SummaryMsg{Experiments: 4})
	m = updated.(Model)
	assert.True(t, m.connected)
	assert.Equal(t, 4, m.experiments)

	updated, _ = m.Update(AttachedMsg{Running: false, Manual: true})
	m = updated.(Model)
	assert.Equal(t, "No experiment is running", m.notice)

	updated, _ = m.Update(ClearNoticeMsg{})
	assert.Empty(t, updated.(Model).notice)
}

func TestModelHelpOverlay(t *testing.T) {
	m := newTestModel(t)
	m = press(m, "?")
	assert.Equal(t, overlayHelp, m.activeOverlay)
	m = press(m, "esc")
	assert.Equal(t, overlayNone, m.activeOverlay)
}
