package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Overlay constants.
const (
	overlayNone    = 0
	overlayHelp    = 1
	overlayRunForm = 2
)

// renderOverlay draws box centered over a dimmed copy of base. Boxes taller
// than the screen are cut at the bottom edge.
func renderOverlay(base, box string, width, height int) string {
	rows := strings.Split(base, "\n")
	for i, row := range rows {
		rows[i] = overlayDimStyle.Render(row)
	}

	boxRows := strings.Split(box, "\n")
	boxWidth := 0
	for _, r := range boxRows {
		boxWidth = max(boxWidth, lipgloss.Width(r))
	}

	top := max((height-len(boxRows))/2, 1)
	left := max((width-boxWidth)/2, 1)

	for i, r := range boxRows {
		y := top + i
		if y >= len(rows) {
			break
		}
		bg := rows[y]
		bgWidth := lipgloss.Width(bg)

		// Keep the dimmed background on both sides of the box, ANSI-aware.
		before := ansi.Truncate(bg, left, "")
		after := ""
		if end := left + lipgloss.Width(r); end < bgWidth {
			after = ansi.Cut(bg, end, bgWidth)
		}
		rows[y] = before + "\033[0m" + r + "\033[0m" + after
	}

	return strings.Join(rows, "\n")
}
