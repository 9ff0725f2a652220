package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/iotlab-io/labwatch/internal/engine/logview"
)

// Colors using AdaptiveColor for light/dark terminal support.
var (
	colorWhite   = lipgloss.AdaptiveColor{Light: "0", Dark: "15"}
	colorDim     = lipgloss.AdaptiveColor{Light: "242", Dark: "240"}
	colorGreen   = lipgloss.AdaptiveColor{Light: "28", Dark: "40"}
	colorRed     = lipgloss.AdaptiveColor{Light: "160", Dark: "196"}
	colorYellow  = lipgloss.AdaptiveColor{Light: "136", Dark: "220"}
	colorOrange  = lipgloss.AdaptiveColor{Light: "166", Dark: "208"}
	colorCyan    = lipgloss.AdaptiveColor{Light: "30", Dark: "45"}
	colorMagenta = lipgloss.AdaptiveColor{Light: "127", Dark: "170"}
	colorBlue    = lipgloss.AdaptiveColor{Light: "25", Dark: "75"}
)

// Layout styles.
var (
	headerStyle = lipgloss.NewStyle().
			Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorWhite).
			Background(lipgloss.AdaptiveColor{Light: "235", Dark: "236"})

	focusedBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorWhite)

	unfocusedBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorDim)
)

// Tab styles.
var (
	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Underline(true).
			Foreground(colorWhite)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(colorDim)

	tabSepStyle = lipgloss.NewStyle().
			Foreground(colorDim)
)

// Run panel styles.
var (
	phaseDoneStyle    = lipgloss.NewStyle().Foreground(colorGreen)
	phaseActiveStyle  = lipgloss.NewStyle().Foreground(colorOrange).Bold(true)
	phasePendingStyle = lipgloss.NewStyle().Foreground(colorDim)

	sectionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorWhite)

	selectedItemStyle = lipgloss.NewStyle().
				Background(lipgloss.AdaptiveColor{Light: "254", Dark: "237"})

	labelStyle   = lipgloss.NewStyle().Foreground(colorDim)
	valueStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	scannerStyle = lipgloss.NewStyle().Foreground(colorDim)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)
	errorStyle   = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
)

// Run badge styles.
var (
	badgeIdleStyle    = lipgloss.NewStyle().Foreground(colorDim)
	badgeActiveStyle  = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	badgeBatchStyle   = lipgloss.NewStyle().Foreground(colorOrange).Bold(true)
	badgeDoneStyle    = lipgloss.NewStyle().Foreground(colorGreen)
	badgeFailedStyle  = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	badgePausedStyle  = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	containerOffStyle = lipgloss.NewStyle().Foreground(colorRed)
)

// Overlay styles.
var (
	overlayStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorWhite).
			Padding(1, 2)

	overlayTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorWhite).
				MarginBottom(1)

	overlayDimStyle = lipgloss.NewStyle().
			Foreground(colorDim)
)

// Mode header style (logs panel).
var modeHeaderStyle = lipgloss.NewStyle().
	Background(lipgloss.AdaptiveColor{Light: "237", Dark: "237"}).
	Foreground(colorGreen).
	Bold(true).
	Padding(0, 1)

// Key hint styles for status bar.
var (
	keyStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorWhite)
	hintStyle = lipgloss.NewStyle().Foreground(colorDim)
)

// Settings form styles.
var (
	settingsLabelStyle = lipgloss.NewStyle().
				Width(20).
				Foreground(colorDim)

	settingsValueStyle = lipgloss.NewStyle().
				Foreground(colorWhite)

	settingsToggleOn = lipgloss.NewStyle().
				Foreground(colorGreen).
				Bold(true)

	settingsToggleOff = lipgloss.NewStyle().
				Foreground(colorRed)

	settingsCursorStyle = lipgloss.NewStyle().
				Background(lipgloss.AdaptiveColor{Light: "254", Dark: "237"})
)

// Container family colors for log prefixes.
var familyColors = map[string]lipgloss.AdaptiveColor{
	"scanner":   colorCyan,
	"http":      colorGreen,
	"ftp":       colorYellow,
	"ssh":       colorMagenta,
	"telnet":    colorOrange,
	"mqtt":      colorBlue,
	"modbus":    colorRed,
	"coap":      colorGreen,
	"dashboard": colorWhite,
	"other":     colorDim,
}

func containerStyle(name string) lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(familyColors[logview.Family(name)])
}
