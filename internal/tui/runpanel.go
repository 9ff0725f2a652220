package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/iotlab-io/labwatch/internal/engine/phase"
	"github.com/iotlab-io/labwatch/internal/engine/session"
)

// RunPanel renders the tracked run: phase progress, counters and the
// scanner output tail.
type RunPanel struct {
	snap        session.Snapshot
	catalog     *phase.Catalog
	automl      bool // mode previewed while idle
	experiments int
	hasSummary  bool
	bar         progress.Model
	width       int
	height      int
}

// NewRunPanel creates a new run panel.
func NewRunPanel() *RunPanel {
	return &RunPanel{
		snap:    session.Snapshot{State: session.StateIdle},
		catalog: phase.Default(),
		automl:  true,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
}

// SetSize updates panel dimensions.
func (r *RunPanel) SetSize(width, height int) {
	r.width = width
	r.height = height
	r.bar.Width = width - 12
	if r.bar.Width < 10 {
		r.bar.Width = 10
	}
}

// SetSnapshot replaces the displayed run state.
func (r *RunPanel) SetSnapshot(s session.Snapshot) {
	r.snap = s
}

// SetCatalog sets the catalog previewed while no run is tracked.
func (r *RunPanel) SetCatalog(c *phase.Catalog, automl bool) {
	if c != nil {
		r.catalog = c
	}
	r.automl = automl
}

// SetSummary records the number of experiments known to the backend.
func (r *RunPanel) SetSummary(n int) {
	r.experiments = n
	r.hasSummary = true
}

// View renders the panel. spin is the current spinner frame.
func (r *RunPanel) View(spin string) string {
	s := r.snap
	var parts []string

	if s.State == session.StateIdle || s.State == "" {
		parts = append(parts, r.viewIdle()...)
		return strings.Join(parts, "\n")
	}

	parts = append(parts, r.viewTitle(spin), "")
	if s.Kind == session.KindBatch {
		parts = append(parts, r.viewBatch()...)
	} else {
		parts = append(parts, r.viewSingle(spin)...)
	}

	if s.Error != "" {
		parts = append(parts, "", errorStyle.Render("✗ "+s.Error))
	}
	if s.State.Terminal() {
		parts = append(parts, "", dimStyle.Render("Press 'r' to clear, 'n' for a new run."))
	}

	used := len(parts)
	if tail := r.viewScanner(r.height - used - 2); tail != "" {
		parts = append(parts, "", tail)
	}
	return strings.Join(parts, "\n")
}

func (r *RunPanel) viewIdle() []string {
	lines := []string{
		lipgloss.NewStyle().Foreground(colorDim).Width(r.width).Align(lipgloss.Center).
			Render("No experiment running. Press 'n' to launch one, 'b' for a batch."),
		"",
	}
	if r.hasSummary {
		lines = append(lines, field("Experiments", fmt.Sprintf("%d on the backend", r.experiments)), "")
	}

	mode := "Static"
	if r.automl {
		mode = "AutoML"
	}
	lines = append(lines, sectionHeaderStyle.Render("Pipeline ("+mode+")"))
	for i, p := range r.catalog.Active(r.automl) {
		lines = append(lines, phasePendingStyle.Render(fmt.Sprintf("  %d. %s", i+1, p.Label)))
	}
	return lines
}

func (r *RunPanel) viewTitle(spin string) string {
	s := r.snap
	var title string
	if s.Kind == session.KindBatch {
		title = fmt.Sprintf("Batch of %d runs", s.TotalRuns)
	} else {
		title = "Experiment"
		if s.ExperimentID != "" {
			title += " " + s.ExperimentID
		}
	}
	if s.Reattached {
		title += dimStyle.Render(" (attached)")
	}
	return stateMark(s.State, spin) + " " + sectionHeaderStyle.Render(title)
}

func (r *RunPanel) viewSingle(spin string) []string {
	s := r.snap
	lines := []string{field("Mode", modeLabel(s.Mode))}
	if s.Network != "" {
		lines = append(lines, field("Network", s.Network))
	}
	lines = append(lines, field("Elapsed", session.FormatElapsed(s.Elapsed)))
	if s.HasDeviceCount {
		lines = append(lines, field("Devices", fmt.Sprintf("%d found", s.DevicesFound)))
	}

	lines = append(lines, "",
		fmt.Sprintf("%s %s", r.bar.ViewAs(s.PhaseProgress()),
			dimStyle.Render(fmt.Sprintf("%d/%d", s.PhaseIndex()+1, len(s.Phases)))),
		"",
	)

	current := s.PhaseIndex()
	for i, p := range s.Phases {
		switch {
		case i < current || s.State == session.StateCompleted:
			lines = append(lines, phaseDoneStyle.Render("  ✓ "+p.Label))
		case i == current && s.State.Active():
			lines = append(lines, phaseActiveStyle.Render("  "+spin+" "+p.Label))
		case i == current:
			lines = append(lines, errorStyle.Render("  ✗ "+p.Label))
		default:
			lines = append(lines, phasePendingStyle.Render("  ○ "+p.Label))
		}
	}
	return lines
}

func (r *RunPanel) viewBatch() []string {
	s := r.snap
	lines := []string{
		field("Mode", modeLabel(s.Mode)),
		field("Elapsed", session.FormatElapsed(s.Elapsed)),
	}
	if avg := s.AverageRunTime(); avg > 0 {
		lines = append(lines, field("Average", session.FormatElapsed(avg)+" per run"))
	}
	lines = append(lines, "",
		fmt.Sprintf("%s %s", r.bar.ViewAs(s.BatchProgress()),
			dimStyle.Render(fmt.Sprintf("%d/%d", s.CompletedRuns, s.TotalRuns))),
	)
	if n := len(s.ExperimentIDs); n > 0 {
		ids := s.ExperimentIDs
		if n > 5 {
			ids = ids[n-5:]
		}
		label := "Experiments"
		if n > len(ids) {
			label = fmt.Sprintf("Latest of %d", n)
		}
		lines = append(lines, "", field(label, strings.Join(ids, ", ")))
	}
	return lines
}

// viewScanner renders as much of the scanner tail as fits in height lines.
func (r *RunPanel) viewScanner(height int) string {
	tail := r.snap.ScannerLines
	if len(tail) == 0 || height < 2 {
		return ""
	}
	if len(tail) > height-1 {
		tail = tail[len(tail)-(height-1):]
	}
	lines := make([]string, 0, len(tail)+1)
	lines = append(lines, sectionHeaderStyle.Render("Scanner"))
	for _, l := range tail {
		lines = append(lines, scannerStyle.Render("│ "+ansi.Truncate(l, r.width-2, "…")))
	}
	return strings.Join(lines, "\n")
}

func field(label, value string) string {
	return labelStyle.Render(fmt.Sprintf("%-12s", label)) + valueStyle.Render(value)
}

func stateMark(s session.State, spin string) string {
	switch s {
	case session.StateRunning:
		return badgeActiveStyle.Render(spin)
	case session.StateBatchRunning:
		return badgeBatchStyle.Render(spin)
	case session.StateCompleted, session.StateBatchCompleted:
		return badgeDoneStyle.Render("✓")
	case session.StateError:
		return badgeFailedStyle.Render("✗")
	}
	return badgeIdleStyle.Render("●")
}
