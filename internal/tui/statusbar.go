package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// confirmMode values.
const (
	confirmNone  = 0
	confirmQuit  = 1
	confirmReset = 2
)

func renderStatusBar(m *Model, width int) string {
	// Handle confirm mode
	if m.confirmMode == confirmQuit {
		return renderConfirmBar(
			"Run in progress. It keeps going on the backend. Quit? (y/n)",
			width,
		)
	}
	if m.confirmMode == confirmReset {
		return renderConfirmBar(
			"Clear the finished run? (y/n)",
			width,
		)
	}

	// Error display
	if m.err != nil {
		return renderErrorBar(m.err.Error(), width)
	}

	// Transient notice
	if m.notice != "" {
		return renderNoticeBar(m.notice, width)
	}

	// Context-sensitive key hints
	hints := getKeyHints(m)
	left := " " + hints

	// Backend status
	var right string
	switch {
	case !m.summarized:
		right = lipgloss.NewStyle().Foreground(colorDim).Render("Connecting...") + " "
	case m.connected:
		right = lipgloss.NewStyle().Foreground(colorGreen).Render(
			fmt.Sprintf("Connected · %d experiments", m.experiments)) + " "
	default:
		right = lipgloss.NewStyle().Foreground(colorYellow).Bold(true).Render("⚠ Backend unreachable") + " "
	}
	if m.logsPanel.paused {
		right = badgePausedStyle.Render("⏸ Logs paused") + "  " + right
	}

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}

	return statusBarStyle.Width(width).Render(left + strings.Repeat(" ", gap) + right)
}

func getKeyHints(m *Model) string {
	if m.activeOverlay == overlayRunForm {
		return keyHint("Ctrl+s", "launch") + "  " + keyHint("Tab", "next") + "  " + keyHint("Esc", "cancel")
	}
	if m.activeOverlay != overlayNone {
		return keyHint("Esc", "close")
	}

	base := keyHint("Ctrl+q", "quit") + "  " + keyHint("?", "help") + "  " + keyHint("Tab", "switch")

	if m.focusedPanel == 0 {
		switch m.leftTab {
		case 0: // Run
			state := m.snap.State
			switch {
			case state.Active():
				return base + "  " + keyHint("e", "edit phases")
			case state.Terminal():
				return base + "  " + keyHint("r", "reset") + "  " + keyHint("n", "new run") + "  " + keyHint("b", "batch")
			}
			return base + "  " + keyHint("n", "new run") + "  " + keyHint("b", "batch") + "  " +
				keyHint("a", "attach") + "  " + keyHint("e", "edit phases")
		case 1: // History
			if m.transcripts.IsViewing() {
				return base + "  " + keyHint("PgUp/PgDn", "scroll") + "  " + keyHint("Esc", "back")
			}
			return base + "  " + keyHint("Enter", "view") + "  " + keyHint("R", "refresh")
		case 2: // Settings
			if m.settingsForm.IsEditing() {
				return keyHint("Enter", "save") + "  " + keyHint("Esc", "cancel")
			}
			return base + "  " + keyHint("j/k", "navigate") + "  " +
				keyHint("Enter", "edit") + "  " + keyHint("Space", "toggle")
		}
	} else {
		if m.logsPanel.IsFiltering() {
			return keyHint("Enter", "apply") + "  " + keyHint("Esc", "cancel")
		}
		if m.logsPanel.IsPicking() {
			return keyHint("←/→", "move") + "  " + keyHint("Space", "select") + "  " + keyHint("Enter", "done")
		}
		pause := "pause"
		if m.logsPanel.paused {
			pause = "resume"
		}
		hints := base + "  " + keyHint("s", "view") + "  " + keyHint("/", "filter") + "  " +
			keyHint("c", "pick") + "  " + keyHint("x", "clear") + "  " + keyHint("p", pause)
		if m.rightTab == logViewSingle {
			return hints + "  " + keyHint("[/]", "container")
		}
		return hints + "  " + keyHint("G", "follow")
	}

	return base
}

func keyHint(k, desc string) string {
	if k == "" {
		return hintStyle.Render(desc)
	}
	return keyStyle.Render(k) + " " + hintStyle.Render(desc)
}

func renderConfirmBar(msg string, width int) string {
	return statusBarStyle.
		Background(colorYellow).
		Foreground(lipgloss.AdaptiveColor{Light: "0", Dark: "0"}).
		Width(width).
		Render(" " + msg)
}

func renderErrorBar(msg string, width int) string {
	return statusBarStyle.
		Background(colorRed).
		Width(width).
		Render(" " + msg)
}

func renderNoticeBar(msg string, width int) string {
	return statusBarStyle.
		Width(width).
		Render(" " + lipgloss.NewStyle().Foreground(colorGreen).Render(msg))
}
