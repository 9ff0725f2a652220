package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

const (
	minPanelWidth = 10
	minSplitRatio = 0.2
	maxSplitRatio = 0.8
)

// panelLayout holds computed dimensions for the two-panel layout.
type panelLayout struct {
	leftWidth     int
	rightWidth    int
	contentHeight int
	dividerCol    int // x position of the divider for mouse hit testing
}

// Inner sizes exclude the rounded border on each side.
func (l panelLayout) leftInner() int   { return max(l.leftWidth-2, 1) }
func (l panelLayout) rightInner() int  { return max(l.rightWidth-2, 1) }
func (l panelLayout) innerHeight() int { return max(l.contentHeight-2, 1) }

func computeLayout(width, height int, splitRatio float64) panelLayout {
	// 1 line header, 1 line status bar
	contentHeight := max(height-2, 1)

	// The divider takes 1 column
	usable := width - 1
	leftWidth := max(int(float64(usable)*splitRatio), minPanelWidth)
	rightWidth := max(usable-leftWidth, minPanelWidth)

	return panelLayout{
		leftWidth:     leftWidth,
		rightWidth:    rightWidth,
		contentHeight: contentHeight,
		dividerCol:    leftWidth,
	}
}

// clampRatio keeps a dragged divider inside the usable range.
func clampRatio(r float64) float64 {
	return min(max(r, minSplitRatio), maxSplitRatio)
}

func renderPanels(leftContent, rightContent string, layout panelLayout, focusedPanel int) string {
	leftStyle, rightStyle := unfocusedBorderStyle, unfocusedBorderStyle
	if focusedPanel == 0 {
		leftStyle = focusedBorderStyle
	} else {
		rightStyle = focusedBorderStyle
	}

	h := layout.innerHeight()
	left := leftStyle.
		Width(layout.leftInner()).
		Height(h).
		Render(truncateContent(leftContent, layout.leftInner(), h))
	right := rightStyle.
		Width(layout.rightInner()).
		Height(h).
		Render(truncateContent(rightContent, layout.rightInner(), h))

	divider := lipgloss.NewStyle().
		Foreground(colorDim).
		Render(strings.TrimSuffix(strings.Repeat("│\n", lipgloss.Height(left)), "\n"))

	return lipgloss.JoinHorizontal(lipgloss.Top, left, divider, right)
}

// truncateContent ensures content fits within the given dimensions.
func truncateContent(content string, width, height int) string {
	lines := strings.Split(content, "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	for i, line := range lines {
		if lipgloss.Width(line) > width {
			lines[i] = ansi.Truncate(line, width, "")
		}
	}
	return strings.Join(lines, "\n")
}
