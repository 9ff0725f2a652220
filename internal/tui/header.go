package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/iotlab-io/labwatch/internal/engine/session"
)

var (
	leftTabNames  = []string{"Run", "History", "Settings"}
	rightTabNames = []string{"Unified", "Split", "Single"}
)

const brandLabel = "labwatch"

func headerPrefix() string {
	dot := lipgloss.NewStyle().Foreground(colorCyan).Render("●")
	name := lipgloss.NewStyle().Bold(true).Render(brandLabel)
	return fmt.Sprintf(" %s %s  ", dot, name)
}

func renderHeader(snap session.Snapshot, leftTab, rightTab int, width int) string {
	leftTabs := renderTabs(leftTabNames, leftTab)
	rightTabs := renderTabs(rightTabNames, rightTab)
	badge := renderRunBadge(snap)

	// Layout: dot name  leftTabs    rightTabs  badge
	left := headerPrefix() + leftTabs
	right := fmt.Sprintf("%s  %s ", rightTabs, badge)

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}

	return headerStyle.Width(width).Render(left + strings.Repeat(" ", gap) + right)
}

func renderTabs(tabs []string, active int) string {
	var parts []string
	for i, tab := range tabs {
		if i == active {
			parts = append(parts, activeTabStyle.Render(tab))
		} else {
			parts = append(parts, inactiveTabStyle.Render(tab))
		}
	}
	return strings.Join(parts, tabSepStyle.Render(" | "))
}

// tabAt returns the index of the tab under column x, where the tab row
// starts at column start, or -1.
func tabAt(tabs []string, start, x int) int {
	col := start
	for i, tab := range tabs {
		w := lipgloss.Width(tab)
		if x >= col && x < col+w {
			return i
		}
		col += w + 3 // " | "
	}
	return -1
}

func renderRunBadge(s session.Snapshot) string {
	switch s.State {
	case session.StateRunning:
		label := "● Running"
		if s.Phase.Label != "" {
			label += " · " + s.Phase.Label
		}
		return badgeActiveStyle.Render(label)
	case session.StateBatchRunning:
		return badgeBatchStyle.Render(fmt.Sprintf("● Batch %d/%d", s.CompletedRuns, s.TotalRuns))
	case session.StateCompleted:
		return badgeDoneStyle.Render("✓ Completed")
	case session.StateBatchCompleted:
		return badgeDoneStyle.Render("✓ Batch completed")
	case session.StateError:
		return badgeFailedStyle.Render("✗ Error")
	}
	return badgeIdleStyle.Render("● Idle")
}
