package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type helpSection struct {
	title string
	keys  []helpKey
}

type helpKey struct {
	key  string
	desc string
}

var helpSections = []helpSection{
	{
		title: "Global",
		keys: []helpKey{
			{"Ctrl+q", "Quit (the run keeps going)"},
			{"? / Ctrl+h", "Toggle help"},
			{"Tab", "Switch panel focus"},
			{"1/2/3", "Run / History / Settings"},
		},
	},
	{
		title: "Run",
		keys: []helpKey{
			{"n", "Launch an experiment"},
			{"b", "Launch a batch"},
			{"a", "Attach to a running experiment"},
			{"r", "Clear a finished run"},
			{"e", "Edit the phase catalog in $EDITOR"},
		},
	},
	{
		title: "Logs",
		keys: []helpKey{
			{"s", "Unified / split / single view"},
			{"/", "Filter containers by name"},
			{"c", "Pick containers to show"},
			{"[ / ]", "Previous / next container (single view)"},
			{"x", "Clear filter and selection"},
			{"p / Space", "Pause or resume fetching"},
			{"j/k PgUp/PgDn", "Scroll"},
			{"g / G", "Oldest / follow newest"},
		},
	},
	{
		title: "History",
		keys: []helpKey{
			{"j/k ↑/↓", "Navigate transcripts"},
			{"Enter", "View transcript"},
			{"Esc", "Back to list"},
			{"R", "Refresh list"},
		},
	},
	{
		title: "Settings",
		keys: []helpKey{
			{"j/k", "Navigate fields"},
			{"Enter", "Edit text field"},
			{"Space", "Toggle boolean"},
		},
	},
	{
		title: "Run form",
		keys: []helpKey{
			{"Ctrl+s", "Launch"},
			{"Tab / Shift+Tab", "Next / previous field"},
			{"Space / Enter", "Change a choice"},
			{"Esc", "Cancel"},
		},
	},
}

// renderHelp renders the help overlay content.
func renderHelp(width int) string {
	maxWidth := 60
	if width-4 < maxWidth {
		maxWidth = width - 4
	}
	if maxWidth < 30 {
		maxWidth = 30
	}

	title := overlayTitleStyle.Render("Keyboard Shortcuts")
	sections := make([]string, 0, len(helpSections)*4+3)
	sections = append(sections, title)

	for _, sec := range helpSections {
		header := lipgloss.NewStyle().Bold(true).Foreground(colorCyan).Render(sec.title)
		sections = append(sections, "", header)

		for _, k := range sec.keys {
			keyCol := lipgloss.NewStyle().
				Width(16).
				Foreground(colorWhite).
				Bold(true).
				Render(k.key)
			descCol := lipgloss.NewStyle().
				Foreground(colorDim).
				Render(k.desc)
			sections = append(sections, "  "+keyCol+descCol)
		}
	}

	sections = append(sections, "", lipgloss.NewStyle().Foreground(colorDim).Render("Press Esc or ? to close"))

	content := strings.Join(sections, "\n")
	return overlayStyle.Width(maxWidth).Render(content)
}
