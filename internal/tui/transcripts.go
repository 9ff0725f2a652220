package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/iotlab-io/labwatch/internal/models"
)

// TranscriptViewer lists saved run transcripts and shows one at a time.
type TranscriptViewer struct {
	transcripts   []*models.Transcript
	selectedIndex int
	viewing       bool // true = showing transcript content, false = showing list
	viewport      viewport.Model
	width         int
	height        int
	scrollOffset  int
	current       *models.Transcript
	loaded        bool // whether the list has been read at least once
}

// NewTranscriptViewer creates a new transcript viewer.
func NewTranscriptViewer() *TranscriptViewer {
	vp := viewport.New(80, 24)
	return &TranscriptViewer{
		viewport: vp,
	}
}

// SetSize updates dimensions.
func (v *TranscriptViewer) SetSize(width, height int) {
	v.width = width
	v.height = height
	v.viewport.Width = width
	v.viewport.Height = height
}

// SetTranscripts updates the list.
func (v *TranscriptViewer) SetTranscripts(list []*models.Transcript) {
	v.transcripts = list
	v.loaded = true
	if v.selectedIndex >= len(list) {
		v.selectedIndex = len(list) - 1
	}
	if v.selectedIndex < 0 {
		v.selectedIndex = 0
	}
}

// SetContent opens the detail view.
func (v *TranscriptViewer) SetContent(t *models.Transcript, content string) {
	v.current = t
	v.viewing = true
	v.viewport.SetContent(content)
	v.viewport.GotoTop()
}

// IsViewing returns whether we're in detail view.
func (v *TranscriptViewer) IsViewing() bool {
	return v.viewing
}

// Selected returns the highlighted transcript, or nil.
func (v *TranscriptViewer) Selected() *models.Transcript {
	if v.selectedIndex < 0 || v.selectedIndex >= len(v.transcripts) {
		return nil
	}
	return v.transcripts[v.selectedIndex]
}

// MoveUp moves the cursor, or scrolls in detail view.
func (v *TranscriptViewer) MoveUp() {
	if v.viewing {
		v.viewport.LineUp(1)
		return
	}
	if v.selectedIndex > 0 {
		v.selectedIndex--
		v.ensureVisible()
	}
}

// MoveDown moves the cursor, or scrolls in detail view.
func (v *TranscriptViewer) MoveDown() {
	if v.viewing {
		v.viewport.LineDown(1)
		return
	}
	if v.selectedIndex < len(v.transcripts)-1 {
		v.selectedIndex++
		v.ensureVisible()
	}
}

// PageUp scrolls the detail viewport up.
func (v *TranscriptViewer) PageUp() {
	if v.viewing {
		v.viewport.HalfViewUp()
	}
}

// PageDown scrolls the detail viewport down.
func (v *TranscriptViewer) PageDown() {
	if v.viewing {
		v.viewport.HalfViewDown()
	}
}

// GoBack returns to list view from detail view.
func (v *TranscriptViewer) GoBack() {
	v.viewing = false
	v.current = nil
}

// Loaded returns whether the list has been read at least once.
func (v *TranscriptViewer) Loaded() bool {
	return v.loaded
}

func (v *TranscriptViewer) ensureVisible() {
	if v.selectedIndex < v.scrollOffset {
		v.scrollOffset = v.selectedIndex
	}
	if v.selectedIndex >= v.scrollOffset+v.height {
		v.scrollOffset = v.selectedIndex - v.height + 1
	}
}

// View renders the viewer.
func (v *TranscriptViewer) View() string {
	if v.viewing {
		return v.viewDetail()
	}
	return v.viewList()
}

func (v *TranscriptViewer) viewList() string {
	if !v.loaded {
		return lipgloss.NewStyle().Foreground(colorDim).Width(v.width).Align(lipgloss.Center).
			Render("\nLoading transcripts...")
	}

	if len(v.transcripts) == 0 {
		return lipgloss.NewStyle().Foreground(colorDim).Width(v.width).Align(lipgloss.Center).
			Render("\nNo transcripts yet. Finished runs are saved here.")
	}

	var lines []string
	end := v.scrollOffset + v.height
	if end > len(v.transcripts) {
		end = len(v.transcripts)
	}

	for i := v.scrollOffset; i < end; i++ {
		line := formatTranscriptLine(v.transcripts[i])
		if i == v.selectedIndex {
			line = selectedItemStyle.Width(v.width).Render(line)
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}

	// Scroll indicators
	if v.scrollOffset > 0 {
		lines = append([]string{dimStyle.Render("  ▲ more")}, lines...)
	}
	if end < len(v.transcripts) {
		lines = append(lines, dimStyle.Render("  ▼ more"))
	}

	return strings.Join(lines, "\n")
}

// formatTranscriptLine renders "exp_12 · automl · 2024-05-01 10:00 (completed)".
func formatTranscriptLine(t *models.Transcript) string {
	label := t.ExperimentID
	if label == "" {
		label = capitalizeFirst(t.Kind)
	}

	startTime := t.StartedAt
	if len(startTime) >= 16 {
		startTime = startTime[:10] + " " + startTime[11:16]
	}

	statusStyle := dimStyle
	switch t.Status {
	case "completed", "batch_completed":
		statusStyle = lipgloss.NewStyle().Foreground(colorGreen)
	case "error":
		statusStyle = lipgloss.NewStyle().Foreground(colorRed)
	}

	return fmt.Sprintf("%s · %s · %s %s",
		lipgloss.NewStyle().Foreground(colorWhite).Bold(true).Render(label),
		dimStyle.Render(t.Mode),
		dimStyle.Render(startTime),
		statusStyle.Render("("+t.Status+")"),
	)
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (v *TranscriptViewer) viewDetail() string {
	if v.current == nil {
		return ""
	}

	header := capitalizeFirst(v.current.Kind)
	if v.current.ExperimentID != "" {
		header += " " + v.current.ExperimentID
	}
	header += " · " + v.current.Mode
	if v.current.Phase != "" {
		header += " · " + v.current.Phase
	}

	headerLine := lipgloss.NewStyle().Bold(true).Foreground(colorWhite).Render(header)
	timeLine := dimStyle.Render(fmt.Sprintf("%s → %s", v.current.StartedAt, v.current.EndedAt))
	backHint := dimStyle.Render("Esc to go back · PgUp/PgDn to scroll")

	info := headerLine + "\n" + timeLine + "\n" + backHint + "\n" +
		dimStyle.Render(strings.Repeat("─", v.width)) + "\n"

	// Viewport takes remaining space
	infoLines := 4
	vpHeight := v.height - infoLines
	if vpHeight < 1 {
		vpHeight = 1
	}
	v.viewport.Height = vpHeight
	v.viewport.Width = v.width

	return info + v.viewport.View()
}
