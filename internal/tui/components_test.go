package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotlab-io/labwatch/internal/engine/logview"
	"github.com/iotlab-io/labwatch/internal/engine/phase"
	"github.com/iotlab-io/labwatch/internal/engine/session"
	"github.com/iotlab-io/labwatch/internal/models"
)

func TestComputeLayout(t *testing.T) {
	l := computeLayout(101, 30, 0.5)
	assert.Equal(t, 50, l.leftWidth)
	assert.Equal(t, 50, l.rightWidth)
	assert.Equal(t, 28, l.contentHeight)
	assert.Equal(t, 50, l.dividerCol)
	assert.Equal(t, 48, l.leftInner())
	assert.Equal(t, 26, l.innerHeight())

	// Tiny terminals still get usable panels.
	l = computeLayout(12, 2, 0.1)
	assert.Equal(t, minPanelWidth, l.leftWidth)
	assert.Equal(t, minPanelWidth, l.rightWidth)
	assert.Equal(t, 1, l.innerHeight())
}

func TestClampRatio(t *testing.T) {
	assert.Equal(t, minSplitRatio, clampRatio(0.01))
	assert.Equal(t, maxSplitRatio, clampRatio(0.99))
	assert.Equal(t, 0.5, clampRatio(0.5))
}

func TestTruncateContent(t *testing.T) {
	out := truncateContent("abcdef\nxy\nthird", 4, 2)
	assert.Equal(t, "abcd\nxy", out)
}

func TestTabAt(t *testing.T) {
	tabs := []string{"Run", "History", "Settings"}
	assert.Equal(t, 0, tabAt(tabs, 10, 10))
	assert.Equal(t, 0, tabAt(tabs, 10, 12))
	assert.Equal(t, -1, tabAt(tabs, 10, 14)) // separator
	assert.Equal(t, 1, tabAt(tabs, 10, 16))
	assert.Equal(t, 2, tabAt(tabs, 10, 26))
	assert.Equal(t, -1, tabAt(tabs, 10, 5))
}

func TestRenderRunBadge(t *testing.T) {
	assert.Contains(t, renderRunBadge(session.Snapshot{State: session.StateIdle}), "Idle")
	assert.Contains(t, renderRunBadge(session.Snapshot{
		State: session.StateRunning,
		Phase: phase.Phase{Label: "Scanning"},
	}), "Running · Scanning")
	assert.Contains(t, renderRunBadge(session.Snapshot{
		State:         session.StateBatchRunning,
		CompletedRuns: 3,
		TotalRuns:     10,
	}), "Batch 3/10")
	assert.Contains(t, renderRunBadge(session.Snapshot{State: session.StateError}), "Error")
}

func TestRenderHeaderFitsWidth(t *testing.T) {
	h := renderHeader(session.Snapshot{}, 1, 0, 100)
	assert.Equal(t, 100, lipgloss.Width(h))
	assert.Contains(t, h, "labwatch")
	assert.Contains(t, h, "History")
	assert.Contains(t, h, "Unified")
}

func TestRunFormFocusSkipsFieldsThatDoNotApply(t *testing.T) {
	defaults := *models.NewSettings()

	single := NewRunForm(false, defaults, 60)
	assert.Equal(t, fieldNetwork, single.FocusIndex())
	require.NotNil(t, single.FocusedInput())
	single.FocusNext()
	assert.Equal(t, fieldOutput, single.FocusIndex())
	assert.Nil(t, single.FocusedInput())
	single.FocusNext()
	assert.Equal(t, fieldPorts, single.FocusIndex())
	single.FocusNext()
	single.FocusNext()
	single.FocusNext()
	assert.Equal(t, fieldKind, single.FocusIndex(), "runs is skipped and focus wraps")

	batch := NewRunForm(true, defaults, 60)
	batch.FocusNext()
	assert.Equal(t, fieldRuns, batch.FocusIndex())
	batch.FocusPrev()
	assert.Equal(t, fieldNetwork, batch.FocusIndex())
}

func TestRunFormToggleKind(t *testing.T) {
	rf := NewRunForm(false, *models.NewSettings(), 60)
	rf.FocusPrev()
	rf.FocusPrev()
	require.Equal(t, fieldKind, rf.FocusIndex())
	assert.True(t, rf.Toggle())
	assert.True(t, rf.IsBatch())

	rf.FocusNext()
	rf.FocusNext()
	assert.Equal(t, fieldNetwork, rf.FocusIndex())
	assert.False(t, rf.Toggle())
}

func TestRunFormParams(t *testing.T) {
	rf := NewRunForm(false, *models.NewSettings(), 60)
	p, err := rf.Params()
	require.NoError(t, err)
	assert.Equal(t, models.ModeAutoML, p.Mode)
	assert.True(t, p.AutoML)
	assert.Equal(t, "172.20.0.0/27", p.Network)
	assert.Equal(t, models.OutputHTML, p.Output)

	rf.portsInput.SetValue("22, 80,22")
	p, err = rf.Params()
	require.NoError(t, err)
	assert.Equal(t, []int{22, 80}, p.Ports)

	rf.portsInput.SetValue("70000")
	_, err = rf.Params()
	assert.Error(t, err)

	rf.portsInput.SetValue("")
	rf.networkInput.SetValue("not-a-network")
	_, err = rf.Params()
	assert.ErrorContains(t, err, "CIDR")
}

func TestRunFormBatch(t *testing.T) {
	rf := NewRunForm(true, *models.NewSettings(), 60)
	req, err := rf.Batch()
	require.NoError(t, err)
	assert.Equal(t, 30, req.Runs)

	rf.runsInput.SetValue("0")
	_, err = rf.Batch()
	assert.Error(t, err)

	rf.runsInput.SetValue("many")
	_, err = rf.Batch()
	assert.ErrorContains(t, err, "number")
}

func TestRunPanelIdleShowsPipelinePreview(t *testing.T) {
	r := NewRunPanel()
	r.SetSize(80, 30)
	r.SetCatalog(phase.Default(), false)
	r.SetSummary(7)

	v := r.View("")
	assert.Contains(t, v, "Press 'n'")
	assert.Contains(t, v, "7 on the backend")
	assert.Contains(t, v, "Pipeline (Static)")
	for _, p := range phase.Default().Active(false) {
		assert.Contains(t, v, p.Label)
	}
}

func TestRunPanelSingleRun(t *testing.T) {
	c := phase.Default()
	phases := c.Active(true)
	r := NewRunPanel()
	r.SetSize(70, 40)
	r.SetSnapshot(session.Snapshot{
		State:          session.StateRunning,
		Kind:           session.KindSingle,
		Mode:           models.ModeAutoML,
		Network:        "172.20.0.0/27",
		Phase:          phases[1],
		Phases:         phases,
		DevicesFound:   4,
		HasDeviceCount: true,
		ExperimentID:   "exp_12",
		Elapsed:        75 * time.Second,
		ScannerLines:   []string{"Nmap scan report for 172.20.0.5"},
	})

	v := r.View("*")
	assert.Contains(t, v, "Experiment exp_12")
	assert.Contains(t, v, "172.20.0.0/27")
	assert.Contains(t, v, "Nmap scan report")
	assert.Contains(t, v, phases[1].Label)
}

func TestRunPanelBatch(t *testing.T) {
	r := NewRunPanel()
	r.SetSize(70, 40)
	r.SetSnapshot(session.Snapshot{
		State:         session.StateBatchCompleted,
		Kind:          session.KindBatch,
		CompletedRuns: 2,
		TotalRuns:     2,
		ExperimentIDs: []string{"exp_1", "exp_2"},
		Elapsed:       2 * time.Minute,
	})

	v := r.View("")
	assert.Contains(t, v, "Batch of 2 runs")
	assert.Contains(t, v, "exp_2")
	assert.Contains(t, v, "Press 'r'")
}

func TestLogsPanel(t *testing.T) {
	agg := logview.New()
	lp := NewLogsPanel(agg)
	lp.SetSize(80, 20)
	assert.Contains(t, lp.View(), "Waiting for container logs")

	agg.Ingest(map[string]string{
		"scanner": "2024-01-15T10:00:01.000Z nmap started",
		"broker":  "2024-01-15T10:00:00.000Z mosquitto up",
	})
	lp.Refresh()
	v := lp.View()
	assert.Contains(t, v, "Unified · 2 containers")
	assert.Less(t, strings.Index(v, "mosquitto up"), strings.Index(v, "nmap started"))

	lp.StartFilter()
	assert.True(t, lp.IsFiltering())
	lp.FilterInput().SetValue("scan")
	lp.FinishFilter()
	v = lp.View()
	assert.Contains(t, v, "1 containers")
	assert.Contains(t, v, "nmap started")
	assert.NotContains(t, v, "mosquitto up")

	lp.FilterInput().SetValue("nothing")
	lp.FinishFilter()
	assert.Contains(t, lp.View(), `No containers match "nothing"`)

	lp.ClearFilter()
	lp.SetView(logViewSplit)
	assert.True(t, lp.Split())
	assert.Contains(t, lp.View(), "Split · 2 containers")

	lp.SetPaused(true)
	assert.Contains(t, lp.View(), "paused")
}

func TestLogsPanelPickerComposesWithNameFilter(t *testing.T) {
	agg := logview.New()
	agg.Ingest(map[string]string{
		"broker":    "2024-01-15T10:00:00.000Z mosquitto up",
		"scanner":   "2024-01-15T10:00:01.000Z nmap started",
		"scanner-2": "2024-01-15T10:00:02.000Z second scanner",
	})
	lp := NewLogsPanel(agg)
	lp.SetSize(100, 20)
	lp.Refresh()

	require.True(t, lp.StartPicker())
	assert.True(t, lp.IsPicking())
	assert.Contains(t, lp.View(), "[ ] broker")

	// Names are sorted: broker, scanner, scanner-2.
	lp.TogglePicked()
	lp.MovePicker(1)
	lp.TogglePicked()
	assert.Equal(t, []string{"broker", "scanner"}, lp.Selected())
	assert.Contains(t, lp.View(), "[x] scanner")
	lp.StopPicker()

	v := lp.View()
	assert.Contains(t, v, "2 containers")
	assert.Contains(t, v, "2 selected")
	assert.Contains(t, v, "mosquitto up")
	assert.NotContains(t, v, "second scanner")

	// Substring and selection must both match.
	lp.FilterInput().SetValue("scan")
	lp.FinishFilter()
	v = lp.View()
	assert.Contains(t, v, "1 containers")
	assert.Contains(t, v, "nmap started")
	assert.NotContains(t, v, "mosquitto up")
	assert.NotContains(t, v, "second scanner")

	// Unpicking the cursor entry removes it again.
	lp.StartPicker()
	lp.MovePicker(-1)
	lp.MovePicker(2)
	lp.TogglePicked()
	assert.Equal(t, []string{"broker"}, lp.Selected())
	lp.StopPicker()
	assert.Contains(t, lp.View(), "No containers match")

	lp.ClearFilter()
	assert.Empty(t, lp.Selected())
	assert.Contains(t, lp.View(), "3 containers")
}

func TestLogsPanelSingleView(t *testing.T) {
	agg := logview.New()
	agg.Ingest(map[string]string{
		"broker":  "2024-01-15T10:00:00.000Z mosquitto up\nclient connected",
		"scanner": "2024-01-15T10:00:01.000Z nmap started",
	})
	lp := NewLogsPanel(agg)
	lp.SetSize(80, 20)
	lp.Refresh()

	lp.SetView(logViewSingle)
	assert.Equal(t, "broker", lp.SingleName())
	v := lp.View()
	assert.Contains(t, v, "Single · broker")
	assert.Contains(t, v, "client connected")
	assert.NotContains(t, v, "nmap started")

	lp.CycleSingle(1)
	assert.Equal(t, "scanner", lp.SingleName())
	assert.Contains(t, lp.View(), "nmap started")
	lp.CycleSingle(1)
	assert.Equal(t, "broker", lp.SingleName())
	lp.CycleSingle(-1)
	assert.Equal(t, "scanner", lp.SingleName())

	// A filter that hides the shown container falls back to the first match.
	lp.FilterInput().SetValue("brok")
	lp.FinishFilter()
	assert.Equal(t, "broker", lp.SingleName())
}

func TestSettingsForm(t *testing.T) {
	values := map[string]any{
		"api.url":           "http://lab:8000",
		"poll.status":       2 * time.Second,
		"telemetry.enabled": true,
	}
	s := NewSettingsForm()
	s.SetSize(60, 30)
	s.Load(func(key string) any { return values[key] })

	assert.Equal(t, "http://lab:8000", s.fields[0].Value)
	assert.Equal(t, "2s", s.fields[2].Value)

	// Text fields do not toggle.
	changed, _, _ := s.Toggle()
	assert.False(t, changed)

	require.True(t, s.StartEdit())
	assert.True(t, s.IsEditing())
	s.InputModel().SetValue("  http://other:9000 ")
	changed, key, value := s.FinishEdit()
	assert.True(t, changed)
	assert.Equal(t, "api.url", key)
	assert.Equal(t, "http://other:9000", value)

	// Unchanged edits are not saved.
	require.True(t, s.StartEdit())
	changed, _, _ = s.FinishEdit()
	assert.False(t, changed)

	for range settingsLayout {
		s.MoveDown()
	}
	assert.False(t, s.StartEdit(), "telemetry is a toggle")
	changed, key, value = s.Toggle()
	assert.True(t, changed)
	assert.Equal(t, "telemetry.enabled", key)
	assert.Equal(t, false, value)
}

func TestTranscriptViewer(t *testing.T) {
	started := "2024-05-01T10:00:00Z"
	v := NewTranscriptViewer()
	v.SetSize(60, 20)
	assert.Nil(t, v.Selected())

	v.SetTranscripts([]*models.Transcript{
		{ID: "a", ExperimentID: "exp_1", Kind: "single", Mode: "automl", Status: "completed", StartedAt: started},
		{ID: "b", ExperimentID: "exp_2", Kind: "single", Mode: "static", Status: "error", StartedAt: started},
	})
	require.NotNil(t, v.Selected())
	assert.Equal(t, "a", v.Selected().ID)

	v.MoveDown()
	v.MoveDown()
	assert.Equal(t, "b", v.Selected().ID)
	v.MoveUp()
	assert.Equal(t, "a", v.Selected().ID)

	v.SetContent(v.Selected(), "scanner output here")
	assert.True(t, v.IsViewing())
	assert.Contains(t, v.View(), "scanner output here")
	v.GoBack()
	assert.False(t, v.IsViewing())
}
