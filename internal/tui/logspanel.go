package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/iotlab-io/labwatch/internal/engine/logview"
)

// Log view modes, in header tab order.
const (
	logViewUnified = iota
	logViewSplit
	logViewSingle
)

// LogsPanel shows the aggregated container logs: unified, split per
// container, or the full text of a single container.
type LogsPanel struct {
	agg          *logview.Aggregator
	viewport     viewport.Model
	filterInput  textinput.Model
	filter       logview.Filter
	filtering    bool
	picking      bool
	pickCursor   int
	view         int
	single       string // container shown in the single view
	paused       bool
	version      uint64
	hasContent   bool
	userScrolled bool // true when user has scrolled away from bottom
	width        int
	height       int
}

// NewLogsPanel creates a logs panel reading from agg.
func NewLogsPanel(agg *logview.Aggregator) *LogsPanel {
	vp := viewport.New(80, 24)
	vp.Style = lipgloss.NewStyle()

	ti := textinput.New()
	ti.Placeholder = "container name"
	ti.Prompt = "/ "
	ti.CharLimit = 64

	return &LogsPanel{
		agg:         agg,
		viewport:    vp,
		filterInput: ti,
	}
}

// SetSize updates panel dimensions.
func (l *LogsPanel) SetSize(width, height int) {
	l.width = width
	l.height = height
	l.filterInput.Width = width - 4

	// 1 line for the mode header
	vpHeight := height - 1
	if vpHeight < 1 {
		vpHeight = 1
	}
	l.viewport.Width = width
	l.viewport.Height = vpHeight
	l.render()
}

// SetView switches between the unified, split and single views.
func (l *LogsPanel) SetView(view int) {
	if l.view == view {
		return
	}
	l.view = view
	l.userScrolled = false
	l.render()
}

// Split reports whether the split view is shown.
func (l *LogsPanel) Split() bool {
	return l.view == logViewSplit
}

// SingleName returns the container the single view shows, or "" when no
// container is visible.
func (l *LogsPanel) SingleName() string {
	names := l.agg.Visible(l.filter)
	if len(names) == 0 {
		return ""
	}
	if slices.Contains(names, l.single) {
		return l.single
	}
	return names[0]
}

// CycleSingle moves the single view to the next (or previous) visible
// container.
func (l *LogsPanel) CycleSingle(delta int) {
	names := l.agg.Visible(l.filter)
	if len(names) == 0 {
		return
	}
	i := slices.Index(names, l.SingleName())
	i = (i + delta + len(names)) % len(names)
	l.single = names[i]
	l.userScrolled = false
	l.render()
}

// SetPaused records whether fetching is paused.
func (l *LogsPanel) SetPaused(paused bool) {
	l.paused = paused
}

// Refresh re-renders when the aggregator holds new data.
func (l *LogsPanel) Refresh() {
	if v := l.agg.Version(); v != l.version {
		l.version = v
		l.render()
	}
}

// StartFilter focuses the filter input.
func (l *LogsPanel) StartFilter() {
	l.filtering = true
	l.filterInput.SetValue(l.filter.Text)
	l.filterInput.CursorEnd()
	l.filterInput.Focus()
}

// FinishFilter applies the typed filter.
func (l *LogsPanel) FinishFilter() {
	l.filtering = false
	l.filterInput.Blur()
	l.setFilterText(strings.TrimSpace(l.filterInput.Value()))
}

// CancelFilter leaves the filter unchanged.
func (l *LogsPanel) CancelFilter() {
	l.filtering = false
	l.filterInput.Blur()
}

// ClearFilter removes both the name filter and the container selection.
func (l *LogsPanel) ClearFilter() {
	if l.filter.Text == "" && len(l.filter.Include) == 0 {
		return
	}
	l.filter = logview.Filter{}
	l.userScrolled = false
	l.render()
}

// StartPicker opens the container picker.
func (l *LogsPanel) StartPicker() bool {
	if len(l.agg.Names()) == 0 {
		return false
	}
	l.picking = true
	l.pickCursor = 0
	return true
}

// StopPicker closes the container picker, keeping the selection.
func (l *LogsPanel) StopPicker() {
	l.picking = false
}

// IsPicking returns whether the container picker has focus.
func (l *LogsPanel) IsPicking() bool {
	return l.picking
}

// MovePicker moves the picker cursor by delta, wrapping around.
func (l *LogsPanel) MovePicker(delta int) {
	n := len(l.agg.Names())
	if n == 0 {
		return
	}
	l.pickCursor = ((l.pickCursor+delta)%n + n) % n
}

// TogglePicked adds or removes the container under the picker cursor from
// the selection. An empty selection shows every container.
func (l *LogsPanel) TogglePicked() {
	names := l.agg.Names()
	if l.pickCursor >= len(names) {
		return
	}
	name := names[l.pickCursor]
	if i := slices.Index(l.filter.Include, name); i >= 0 {
		l.filter.Include = slices.Delete(slices.Clone(l.filter.Include), i, i+1)
	} else {
		l.filter.Include = append(slices.Clone(l.filter.Include), name)
	}
	l.userScrolled = false
	l.render()
}

// Selected returns the containers picked explicitly.
func (l *LogsPanel) Selected() []string {
	return l.filter.Include
}

func (l *LogsPanel) setFilterText(text string) {
	if text == l.filter.Text {
		return
	}
	l.filter.Text = text
	l.userScrolled = false
	l.render()
}

// IsFiltering returns whether the filter input has focus.
func (l *LogsPanel) IsFiltering() bool {
	return l.filtering
}

// FilterInput returns the filter input model for update forwarding.
func (l *LogsPanel) FilterInput() *textinput.Model {
	return &l.filterInput
}

// ScrollUp scrolls the viewport up.
func (l *LogsPanel) ScrollUp(n int) {
	l.viewport.LineUp(n)
	l.userScrolled = !l.viewport.AtBottom()
}

// ScrollDown scrolls the viewport down.
func (l *LogsPanel) ScrollDown(n int) {
	l.viewport.LineDown(n)
	l.userScrolled = !l.viewport.AtBottom()
}

// PageUp scrolls a half page up.
func (l *LogsPanel) PageUp() {
	l.viewport.HalfViewUp()
	l.userScrolled = !l.viewport.AtBottom()
}

// PageDown scrolls a half page down.
func (l *LogsPanel) PageDown() {
	l.viewport.HalfViewDown()
	l.userScrolled = !l.viewport.AtBottom()
}

// GotoTop jumps to the oldest line.
func (l *LogsPanel) GotoTop() {
	l.viewport.GotoTop()
	l.userScrolled = !l.viewport.AtBottom()
}

// GotoBottom jumps to the newest line and resumes auto-scroll.
func (l *LogsPanel) GotoBottom() {
	l.viewport.GotoBottom()
	l.userScrolled = false
}

func (l *LogsPanel) render() {
	var content string
	switch l.view {
	case logViewSplit:
		content = renderSplitLogs(l.agg.Split(l.filter), l.width)
	case logViewSingle:
		if name := l.SingleName(); name != "" {
			content = renderSingleLogs(l.agg.Single(name, 0))
		}
	default:
		content = renderUnifiedLogs(l.agg.Unified(l.filter))
	}
	l.hasContent = content != ""
	l.viewport.SetContent(content)
	if !l.userScrolled {
		l.viewport.GotoBottom()
	}
}

// View renders the panel.
func (l *LogsPanel) View() string {
	parts := []string{l.renderModeHeader()}

	if !l.hasContent {
		msg := "Waiting for container logs..."
		switch {
		case l.filter.Text != "":
			msg = fmt.Sprintf("No containers match %q. Press 'x' to clear the filter.", l.filter.Text)
		case len(l.filter.Include) > 0 && len(l.agg.Visible(l.filter)) == 0:
			msg = "No selected container has logs. Press 'x' to clear the selection."
		case l.version > 0:
			msg = "No log lines yet."
		}
		parts = append(parts, lipgloss.NewStyle().
			Foreground(colorDim).
			Width(l.width).
			Align(lipgloss.Center).
			Render(msg))
		return strings.Join(parts, "\n")
	}

	parts = append(parts, l.viewport.View())
	return strings.Join(parts, "\n")
}

func (l *LogsPanel) renderModeHeader() string {
	if l.filtering {
		return l.filterInput.View()
	}
	if l.picking {
		return l.renderPicker()
	}
	var label string
	switch l.view {
	case logViewSplit:
		label = fmt.Sprintf("Split · %d containers", len(l.agg.Visible(l.filter)))
	case logViewSingle:
		label = "Single"
		if name := l.SingleName(); name != "" {
			label += " · " + name
		}
	default:
		label = fmt.Sprintf("Unified · %d containers", len(l.agg.Visible(l.filter)))
	}
	if l.filter.Text != "" {
		label += fmt.Sprintf(" · filter %q", l.filter.Text)
	}
	if n := len(l.filter.Include); n > 0 {
		label += fmt.Sprintf(" · %d selected", n)
	}
	if l.userScrolled {
		label += " · scrolled"
	}
	st := modeHeaderStyle
	if l.paused {
		st = st.Foreground(colorYellow)
		label += " · paused"
	}
	return st.Width(l.width).Render(label)
}

// renderPicker draws the selectable container names on the header row.
func (l *LogsPanel) renderPicker() string {
	names := l.agg.Names()
	parts := make([]string, 0, len(names))
	for i, name := range names {
		mark := "[ ]"
		if slices.Contains(l.filter.Include, name) {
			mark = "[x]"
		}
		item := mark + " " + name
		if i == l.pickCursor {
			item = selectedItemStyle.Render(item)
		} else {
			item = containerStyle(name).Render(item)
		}
		parts = append(parts, item)
	}
	return truncateContent(strings.Join(parts, "  "), l.width, 1)
}

func renderUnifiedLogs(lines []logview.Line) string {
	out := make([]string, 0, len(lines))
	for _, ln := range lines {
		out = append(out, formatLogLine(ln, true))
	}
	return strings.Join(out, "\n")
}

func renderSingleLogs(lines []logview.Line) string {
	out := make([]string, 0, len(lines))
	for _, ln := range lines {
		out = append(out, formatLogLine(ln, false))
	}
	return strings.Join(out, "\n")
}

func renderSplitLogs(panels []logview.Panel, width int) string {
	var out []string
	for i, p := range panels {
		if i > 0 {
			out = append(out, "")
		}
		title := containerStyle(p.Name).Render(p.Name)
		if p.Info.Status != "" {
			st := dimStyle
			if p.Info.Status != "running" {
				st = containerOffStyle
			}
			title += " " + st.Render(p.Info.Status)
		}
		if p.Info.Image != "" {
			title += " " + dimStyle.Render(p.Info.Image)
		}
		out = append(out, title, dimStyle.Render(strings.Repeat("─", max(width, 1))))
		if len(p.Lines) == 0 {
			out = append(out, dimStyle.Render("  (no output)"))
			continue
		}
		for _, ln := range p.Lines {
			out = append(out, formatLogLine(ln, false))
		}
	}
	return strings.Join(out, "\n")
}

func formatLogLine(ln logview.Line, withContainer bool) string {
	var b strings.Builder
	if ln.HasTime() {
		b.WriteString(dimStyle.Render(ln.Clock))
		b.WriteString(" ")
	}
	if withContainer {
		b.WriteString(containerStyle(ln.Container).Render("[" + ln.Container + "]"))
		b.WriteString(" ")
	}
	b.WriteString(ln.Message)
	return b.String()
}
