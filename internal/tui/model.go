package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/iotlab-io/labwatch/internal/engine/session"
	"github.com/iotlab-io/labwatch/internal/models"
)

// Model is the root Bubbletea model for the dashboard.
type Model struct {
	deps Deps
	svc  *services

	// Backend and run data
	snap        session.Snapshot
	settings    models.Settings
	connected   bool
	summarized  bool
	experiments int

	// UI state
	leftTab       int     // 0=Run, 1=History, 2=Settings
	rightTab      int     // 0=Unified, 1=Split, 2=Single
	focusedPanel  int     // 0=left, 1=right
	activeOverlay int     // overlayNone, overlayHelp, overlayRunForm
	splitRatio    float64 // Default 0.45
	width         int
	height        int

	// Confirm mode
	confirmMode int

	// Status display
	err    error
	notice string

	// Child components
	runPanel     *RunPanel
	logsPanel    *LogsPanel
	transcripts  *TranscriptViewer
	settingsForm *SettingsForm
	runForm      *RunForm
	spinner      spinner.Model

	// Program reference for goroutine Send()
	program *programRef

	// Animation state
	spinnerRunning bool
	ticking        bool

	// Dragging state
	dragging bool
}

// NewModel creates the dashboard model and starts its background services.
func NewModel(ctx context.Context, deps Deps, program *programRef) (Model, error) {
	svc, err := newServices(ctx, deps, program)
	if err != nil {
		return Model{}, err
	}

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot

	m := Model{
		deps:         deps,
		svc:          svc,
		snap:         svc.tracker.Snapshot(),
		settings:     deps.Settings,
		splitRatio:   0.45,
		runPanel:     NewRunPanel(),
		logsPanel:    NewLogsPanel(svc.agg),
		transcripts:  NewTranscriptViewer(),
		settingsForm: NewSettingsForm(),
		spinner:      sp,
		program:      program,
	}
	if deps.Config != nil {
		m.settingsForm.Load(deps.Config.Value)
	}
	m.refreshCatalog()
	m.runPanel.SetSnapshot(m.snap)
	return m, nil
}

// Init returns the initial commands.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		reattachCmd(m.svc.ctx, m.svc.tracker, m.deps.Telemetry, false),
		listTranscriptsCmd(),
		tea.EnableMouseAllMotion,
	)
}

// Update processes messages and returns an updated model and commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	// ── Window resize ──────────────────────────────────────────────
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateDimensions()
		return m, nil

	// ── Key events ─────────────────────────────────────────────────
	case tea.KeyMsg:
		return m, m.handleKey(msg)

	// ── Mouse events ───────────────────────────────────────────────
	case tea.MouseMsg:
		return m, m.handleMouse(msg)

	// ── Run state ──────────────────────────────────────────────────
	case SnapshotMsg:
		m.setSnapshot(msg.Snapshot)
		return m, m.startAnimations()

	case RunFinishedMsg:
		m.setSnapshot(msg.Snapshot)
		m.notice = finishedNotice(msg.Snapshot)
		m.svc.refreshSummary(m.program)
		cmds = append(cmds, listTranscriptsCmd(), clearNoticeAfter(5*time.Second))
		return m, tea.Batch(cmds...)

	case LaunchedMsg:
		m.activeOverlay = overlayNone
		m.runForm = nil
		m.leftTab = 0
		m.setSnapshot(m.svc.tracker.Snapshot())
		m.notice = "Experiment launched"
		if msg.Kind == session.KindBatch {
			m.notice = "Batch launched"
		}
		cmds = append(cmds, m.startAnimations(), clearNoticeAfter(3*time.Second))
		return m, tea.Batch(cmds...)

	case AttachedMsg:
		if msg.Running {
			m.setSnapshot(m.svc.tracker.Snapshot())
			m.notice = "Attached to the running experiment"
			cmds = append(cmds, m.startAnimations(), clearNoticeAfter(3*time.Second))
		} else if msg.Manual {
			m.notice = "No experiment is running"
			cmds = append(cmds, clearNoticeAfter(3*time.Second))
		}
		return m, tea.Batch(cmds...)

	case ResetMsg:
		m.setSnapshot(m.svc.tracker.Snapshot())
		return m, nil

	// ── Logs ───────────────────────────────────────────────────────
	case LogsUpdatedMsg:
		m.logsPanel.Refresh()
		return m, nil

	// ── Backend summary ────────────────────────────────────────────
	case SummaryMsg:
		m.summarized = true
		m.connected = msg.Err == nil
		if msg.Err == nil {
			m.experiments = msg.Experiments
			m.runPanel.SetSummary(msg.Experiments)
		}
		return m, nil

	// ── Phase catalog ──────────────────────────────────────────────
	case CatalogReloadedMsg:
		m.refreshCatalog()
		m.notice = fmt.Sprintf("Phase catalog reloaded (%d phases)", msg.Phases)
		return m, clearNoticeAfter(3 * time.Second)

	case EditorFinishedMsg:
		if msg.Err != nil {
			err := msg.Err
			if errors.Is(err, os.ErrNotExist) {
				err = errNoEditor
			}
			m.err = err
			return m, clearErrorAfter(5 * time.Second)
		}
		return m, nil

	// ── History ────────────────────────────────────────────────────
	case TranscriptsLoadedMsg:
		m.transcripts.SetTranscripts(msg.Transcripts)
		return m, nil

	case TranscriptContentMsg:
		m.transcripts.SetContent(msg.Transcript, msg.Content)
		return m, nil

	// ── Settings ───────────────────────────────────────────────────
	case SettingsSavedMsg:
		m.settings = msg.Settings
		if m.deps.Config != nil && !m.settingsForm.IsEditing() {
			m.settingsForm.Load(m.deps.Config.Value)
		}
		m.refreshCatalog()
		m.notice = "Saved"
		return m, clearNoticeAfter(3 * time.Second)

	// ── Animation ──────────────────────────────────────────────────
	case spinner.TickMsg:
		if m.snap.State.Active() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		m.spinnerRunning = false
		return m, nil

	case TickMsg:
		if m.snap.State.Active() {
			m.setSnapshot(m.svc.tracker.Snapshot())
			return m, clockTick()
		}
		m.ticking = false
		return m, nil

	// ── Error handling ─────────────────────────────────────────────
	case ErrorMsg:
		m.err = msg.Err
		// A rejected settings write leaves the form showing the typed value.
		if m.deps.Config != nil && !m.settingsForm.IsEditing() {
			m.settingsForm.Load(m.deps.Config.Value)
		}
		return m, clearErrorAfter(5 * time.Second)

	case ClearErrorMsg:
		m.err = nil
		return m, nil

	case ClearNoticeMsg:
		m.notice = ""
		return m, nil
	}
	return m, nil
}

func (m *Model) setSnapshot(s session.Snapshot) {
	m.snap = s
	m.runPanel.SetSnapshot(s)
}

// startAnimations starts the spinner and the elapsed clock while a run is
// active. Both stop on their own once it is not.
func (m *Model) startAnimations() tea.Cmd {
	if !m.snap.State.Active() {
		return nil
	}
	var cmds []tea.Cmd
	if !m.spinnerRunning {
		m.spinnerRunning = true
		cmds = append(cmds, m.spinner.Tick)
	}
	if !m.ticking {
		m.ticking = true
		cmds = append(cmds, clockTick())
	}
	return tea.Batch(cmds...)
}

func (m *Model) refreshCatalog() {
	if m.deps.Phases == nil {
		return
	}
	m.runPanel.SetCatalog(m.deps.Phases.Load(), m.settings.Run.Mode == string(models.ModeAutoML))
}

func finishedNotice(s session.Snapshot) string {
	switch s.State {
	case session.StateError:
		return "Run failed, transcript saved"
	case session.StateBatchCompleted:
		return fmt.Sprintf("Batch completed (%d runs), transcript saved", s.CompletedRuns)
	}
	return "Experiment completed, transcript saved"
}

// handleKey processes key events.
func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	// Confirm mode captures everything
	if m.confirmMode != confirmNone {
		return m.handleConfirmKey(msg)
	}

	// Overlay captures everything
	if m.activeOverlay != overlayNone {
		return m.handleOverlayKey(msg)
	}

	// Inline inputs capture everything
	if m.focusedPanel == 1 && m.logsPanel.IsFiltering() {
		return m.handleFilterKey(msg)
	}
	if m.focusedPanel == 1 && m.logsPanel.IsPicking() {
		return m.handlePickerKey(msg)
	}
	if m.focusedPanel == 0 && m.leftTab == 2 && m.settingsForm.IsEditing() {
		return m.handleSettingsKey(msg)
	}

	// Global shortcuts
	switch {
	case key.Matches(msg, globalKeys.Quit):
		if m.snap.State.Active() {
			m.confirmMode = confirmQuit
			return nil
		}
		return m.doQuit()
	case key.Matches(msg, globalKeys.Help):
		m.activeOverlay = overlayHelp
		return nil
	case key.Matches(msg, globalKeys.Tab):
		m.focusedPanel = 1 - m.focusedPanel
		return nil
	}

	// Tab switching (only when left panel focused)
	if m.focusedPanel == 0 {
		switch {
		case key.Matches(msg, tabSwitchKeys.Tab1):
			return m.switchLeftTab(0)
		case key.Matches(msg, tabSwitchKeys.Tab2):
			return m.switchLeftTab(1)
		case key.Matches(msg, tabSwitchKeys.Tab3):
			return m.switchLeftTab(2)
		}
		return m.handleLeftPanelKey(msg)
	}
	return m.handleLogsKey(msg)
}

func (m *Model) switchLeftTab(tab int) tea.Cmd {
	m.leftTab = tab
	m.focusedPanel = 0
	if tab == 1 && !m.transcripts.IsViewing() {
		return listTranscriptsCmd()
	}
	return nil
}

func (m *Model) setRightTab(tab int) {
	m.rightTab = tab
	m.focusedPanel = 1
	m.logsPanel.SetView(tab)
}

func (m *Model) handleLeftPanelKey(msg tea.KeyMsg) tea.Cmd {
	switch m.leftTab {
	case 0: // Run
		return m.handleRunKey(msg)
	case 1: // History
		return m.handleHistoryKey(msg)
	case 2: // Settings
		return m.handleSettingsKey(msg)
	}
	return nil
}

func (m *Model) handleRunKey(msg tea.KeyMsg) tea.Cmd {
	state := m.snap.State
	switch {
	case key.Matches(msg, runKeys.New):
		return m.openRunForm(false)
	case key.Matches(msg, runKeys.Batch):
		return m.openRunForm(true)
	case key.Matches(msg, runKeys.Reset):
		if state.Terminal() {
			m.confirmMode = confirmReset
		}
	case key.Matches(msg, runKeys.Attach):
		if state == session.StateIdle {
			return reattachCmd(m.svc.ctx, m.svc.tracker, m.deps.Telemetry, true)
		}
	case key.Matches(msg, runKeys.Edit):
		if m.deps.Phases != nil && m.deps.PhasesPath != "" {
			return editCatalogCmd(m.deps.PhasesPath, m.deps.Phases.Load())
		}
	}
	return nil
}

func (m *Model) handleHistoryKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyPgUp:
		m.transcripts.PageUp()
		return nil
	case tea.KeyPgDown:
		m.transcripts.PageDown()
		return nil
	}

	switch {
	case key.Matches(msg, listKeys.Up):
		m.transcripts.MoveUp()
	case key.Matches(msg, listKeys.Down):
		m.transcripts.MoveDown()
	case key.Matches(msg, listKeys.Enter):
		if !m.transcripts.IsViewing() {
			if t := m.transcripts.Selected(); t != nil {
				return readTranscriptCmd(t.ID)
			}
		}
	case key.Matches(msg, listKeys.Back):
		if m.transcripts.IsViewing() {
			m.transcripts.GoBack()
		}
	case key.Matches(msg, listKeys.Refresh):
		return listTranscriptsCmd()
	}
	return nil
}

func (m *Model) handleSettingsKey(msg tea.KeyMsg) tea.Cmd {
	if m.settingsForm.IsEditing() {
		switch msg.Type {
		case tea.KeyEnter:
			changed, k, v := m.settingsForm.FinishEdit()
			if changed {
				return m.saveSetting(k, v)
			}
			return nil
		case tea.KeyEscape:
			m.settingsForm.CancelEdit()
			return nil
		default:
			// Forward to text input
			ti := m.settingsForm.InputModel()
			newTI, _ := ti.Update(msg)
			*ti = newTI
			return nil
		}
	}

	switch {
	case key.Matches(msg, settingsKeys.Up):
		m.settingsForm.MoveUp()
	case key.Matches(msg, settingsKeys.Down):
		m.settingsForm.MoveDown()
	case key.Matches(msg, settingsKeys.Toggle):
		if changed, k, v := m.settingsForm.Toggle(); changed {
			return m.saveSetting(k, v)
		}
	case key.Matches(msg, settingsKeys.Enter):
		if m.settingsForm.StartEdit() {
			return nil
		}
		// If it's a toggle field, toggle it
		if changed, k, v := m.settingsForm.Toggle(); changed {
			return m.saveSetting(k, v)
		}
	}
	return nil
}

func (m *Model) saveSetting(k string, value any) tea.Cmd {
	if m.deps.Config == nil {
		return nil
	}
	return saveSettingCmd(m.deps.Config, k, value)
}

func (m *Model) handleLogsKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyPgUp:
		m.logsPanel.PageUp()
		return nil
	case tea.KeyPgDown:
		m.logsPanel.PageDown()
		return nil
	}

	switch {
	case key.Matches(msg, logKeys.View):
		m.setRightTab((m.rightTab + 1) % len(rightTabNames))
	case key.Matches(msg, logKeys.Filter):
		m.logsPanel.StartFilter()
	case key.Matches(msg, logKeys.Pick):
		if !m.logsPanel.StartPicker() {
			m.notice = "No containers to pick yet"
			return clearNoticeAfter(3 * time.Second)
		}
	case key.Matches(msg, logKeys.Next):
		if m.rightTab == logViewSingle {
			m.logsPanel.CycleSingle(1)
		}
	case key.Matches(msg, logKeys.Prev):
		if m.rightTab == logViewSingle {
			m.logsPanel.CycleSingle(-1)
		}
	case key.Matches(msg, logKeys.Clear):
		m.logsPanel.ClearFilter()
	case key.Matches(msg, logKeys.Pause):
		m.logsPanel.SetPaused(m.svc.follower.Toggle())
	case key.Matches(msg, logKeys.Up):
		m.logsPanel.ScrollUp(1)
	case key.Matches(msg, logKeys.Down):
		m.logsPanel.ScrollDown(1)
	case key.Matches(msg, logKeys.Top):
		m.logsPanel.GotoTop()
	case key.Matches(msg, logKeys.Bottom):
		m.logsPanel.GotoBottom()
	}
	return nil
}

func (m *Model) handlePickerKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, pickerKeys.Left):
		m.logsPanel.MovePicker(-1)
	case key.Matches(msg, pickerKeys.Right):
		m.logsPanel.MovePicker(1)
	case key.Matches(msg, pickerKeys.Toggle):
		m.logsPanel.TogglePicked()
	case key.Matches(msg, pickerKeys.Done):
		m.logsPanel.StopPicker()
	}
	return nil
}

func (m *Model) handleFilterKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEnter:
		m.logsPanel.FinishFilter()
	case tea.KeyEscape:
		m.logsPanel.CancelFilter()
	default:
		ti := m.logsPanel.FilterInput()
		newTI, _ := ti.Update(msg)
		*ti = newTI
	}
	return nil
}

func (m *Model) handleConfirmKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, confirmKeys.Yes):
		mode := m.confirmMode
		m.confirmMode = confirmNone
		switch mode {
		case confirmQuit:
			return m.doQuit()
		case confirmReset:
			return resetCmd(m.svc.tracker)
		}
	case key.Matches(msg, confirmKeys.No), key.Matches(msg, confirmKeys.Cancel):
		m.confirmMode = confirmNone
	}
	return nil
}

func (m *Model) handleOverlayKey(msg tea.KeyMsg) tea.Cmd {
	switch m.activeOverlay {
	case overlayHelp:
		if key.Matches(msg, overlayKeys.Cancel) || key.Matches(msg, globalKeys.Help) {
			m.activeOverlay = overlayNone
		}
		return nil
	case overlayRunForm:
		return m.handleRunFormKey(msg)
	}
	return nil
}

func (m *Model) handleRunFormKey(msg tea.KeyMsg) tea.Cmd {
	if m.runForm == nil {
		return nil
	}

	switch {
	case key.Matches(msg, overlayKeys.Launch):
		return m.launchRunForm()
	case key.Matches(msg, overlayKeys.Cancel):
		m.activeOverlay = overlayNone
		m.runForm = nil
		return nil
	case key.Matches(msg, overlayKeys.Next):
		m.runForm.FocusNext()
		return nil
	case key.Matches(msg, overlayKeys.Prev):
		m.runForm.FocusPrev()
		return nil
	}

	ti := m.runForm.FocusedInput()
	if ti == nil {
		// Choice field: toggle on space/enter
		if msg.Type == tea.KeySpace || msg.Type == tea.KeyEnter {
			m.runForm.Toggle()
		}
		return nil
	}
	if msg.Type == tea.KeyEnter {
		m.runForm.FocusNext()
		return nil
	}
	newTI, _ := ti.Update(msg)
	*ti = newTI
	return nil
}

// ── Run actions ──────────────────────────────────────────────────

func (m *Model) openRunForm(batch bool) tea.Cmd {
	if !m.snap.State.Active() && !m.snap.State.Terminal() {
		formWidth := m.width - 10
		if formWidth > 70 {
			formWidth = 70
		}
		m.runForm = NewRunForm(batch, m.settings, formWidth)
		m.activeOverlay = overlayRunForm
		return nil
	}
	if m.snap.State.Terminal() {
		// A finished run is cleared before the next launch.
		m.confirmMode = confirmReset
		return nil
	}
	m.err = session.ErrBusy
	return clearErrorAfter(3 * time.Second)
}

func (m *Model) launchRunForm() tea.Cmd {
	ctx := m.svc.ctx
	if m.runForm.IsBatch() {
		req, err := m.runForm.Batch()
		if err != nil {
			m.err = err
			return clearErrorAfter(5 * time.Second)
		}
		return startBatchCmd(ctx, m.svc.tracker, m.deps.Telemetry, req)
	}
	p, err := m.runForm.Params()
	if err != nil {
		m.err = err
		return clearErrorAfter(5 * time.Second)
	}
	return startRunCmd(ctx, m.svc.tracker, m.deps.Telemetry, p)
}

// doQuit performs clean shutdown: stop polling, clear program ref, quit.
// A tracked run keeps going on the backend.
func (m *Model) doQuit() tea.Cmd {
	m.svc.close()
	m.program.Clear()
	return tea.Quit
}

// ── Mouse handling ───────────────────────────────────────────────

func (m *Model) handleMouse(msg tea.MouseMsg) tea.Cmd {
	layout := computeLayout(m.width, m.height, m.splitRatio)

	switch msg.Action {
	case tea.MouseActionPress:
		switch msg.Button {
		case tea.MouseButtonWheelUp:
			m.scroll(-3)
			return nil
		case tea.MouseButtonWheelDown:
			m.scroll(3)
			return nil
		}

		// Check if clicking on divider
		if msg.X >= layout.dividerCol-1 && msg.X <= layout.dividerCol+1 {
			m.dragging = true
			return nil
		}

		if msg.X < layout.dividerCol {
			m.focusedPanel = 0
		} else {
			m.focusedPanel = 1
		}

		// Header row switches tabs
		if msg.Y == 0 {
			return m.handleHeaderClick(msg.X, layout)
		}

	case tea.MouseActionRelease:
		m.dragging = false

	case tea.MouseActionMotion:
		if m.dragging && m.width > 0 {
			m.splitRatio = clampRatio(float64(msg.X) / float64(m.width))
			m.updateDimensions()
		}
	}
	return nil
}

func (m *Model) scroll(n int) {
	if m.focusedPanel == 1 {
		if n < 0 {
			m.logsPanel.ScrollUp(-n)
		} else {
			m.logsPanel.ScrollDown(n)
		}
		return
	}
	if m.leftTab != 1 {
		return
	}
	if n < 0 {
		m.transcripts.MoveUp()
	} else {
		m.transcripts.MoveDown()
	}
}

func (m *Model) handleHeaderClick(x int, layout panelLayout) tea.Cmd {
	if x < layout.dividerCol {
		if tab := tabAt(leftTabNames, lipgloss.Width(headerPrefix()), x); tab >= 0 {
			return m.switchLeftTab(tab)
		}
		return nil
	}

	// Right tabs sit before the badge, right-aligned.
	tail := lipgloss.Width(renderTabs(rightTabNames, m.rightTab)) + 2 + lipgloss.Width(renderRunBadge(m.snap)) + 1
	if tab := tabAt(rightTabNames, m.width-tail, x); tab >= 0 {
		m.setRightTab(tab)
	}
	return nil
}

// ── Dimension helpers ────────────────────────────────────────────

func (m *Model) updateDimensions() {
	layout := computeLayout(m.width, m.height, m.splitRatio)
	h := layout.innerHeight()
	m.runPanel.SetSize(layout.leftInner(), h)
	m.transcripts.SetSize(layout.leftInner(), h)
	m.settingsForm.SetSize(layout.leftInner(), h)
	m.logsPanel.SetSize(layout.rightInner(), h)
}

// ── View ─────────────────────────────────────────────────────────

// View renders the dashboard.
func (m Model) View() string {
	// Minimum size check
	if m.width < 80 || m.height < 24 {
		sizeStr := fmt.Sprintf("%dx%d", m.width, m.height)
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(colorYellow).
			Render(lipgloss.JoinVertical(lipgloss.Center,
				"Terminal too small",
				lipgloss.NewStyle().Foreground(colorDim).Render(
					"Need 80x24, have "+lipgloss.NewStyle().Bold(true).Render(sizeStr),
				),
			))
	}

	layout := computeLayout(m.width, m.height, m.splitRatio)

	header := renderHeader(m.snap, m.leftTab, m.rightTab, m.width)
	panels := renderPanels(m.renderLeftPanel(), m.logsPanel.View(), layout, m.focusedPanel)
	statusBar := renderStatusBar(&m, m.width)

	view := lipgloss.JoinVertical(lipgloss.Left, header, panels, statusBar)

	var overlayContent string
	switch m.activeOverlay {
	case overlayHelp:
		overlayContent = renderHelp(m.width)
	case overlayRunForm:
		if m.runForm != nil {
			overlayContent = m.runForm.View()
		}
	}
	if overlayContent != "" {
		view = renderOverlay(view, overlayContent, m.width, m.height)
	}
	return view
}

func (m Model) renderLeftPanel() string {
	switch m.leftTab {
	case 0:
		return m.runPanel.View(m.spinner.View())
	case 1:
		return m.transcripts.View()
	case 2:
		return m.settingsForm.View()
	}
	return ""
}

// sentinel errors
var errNoEditor = errString("no editor found, set $EDITOR")

type errString string

func (e errString) Error() string { return string(e) }
