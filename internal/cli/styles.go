package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/iotlab-io/labwatch/internal/engine/logview"
	"github.com/iotlab-io/labwatch/internal/engine/session"
)

// Adaptive colors matching the TUI palette.
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

// Semantic styles for CLI output.
var (
	styleBrand   = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	styleVersion = lipgloss.NewStyle().Foreground(colorGreen)
	styleLabel   = lipgloss.NewStyle().Foreground(colorDim)
	styleValue   = lipgloss.NewStyle().Foreground(colorWhite)
	styleSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleWarning = lipgloss.NewStyle().Bold(true).Foreground(colorYellow)
	styleError   = lipgloss.NewStyle().Bold(true).Foreground(colorRed)
	styleHint    = lipgloss.NewStyle().Foreground(colorDim)
	styleCommand = lipgloss.NewStyle().Bold(true).Foreground(colorWhite)
	stylePhase   = lipgloss.NewStyle().Bold(true).Foreground(colorOrange)
)

// Run state badge styles.
var (
	badgeIdle    = lipgloss.NewStyle().Foreground(colorDim)
	badgeRunning = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	badgeDone    = lipgloss.NewStyle().Foreground(colorGreen)
	badgeFailed  = lipgloss.NewStyle().Bold(true).Foreground(colorRed)
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

// plainOutput disables styling when stdout is not a terminal, NO_COLOR is
// set, or --no-color is passed.
var plainOutput = !term.IsTerminal(int(os.Stdout.Fd())) || os.Getenv("NO_COLOR") != ""

func paint(st lipgloss.Style, s string) string {
	if plainOutput {
		return s
	}
	return st.Render(s)
}

func stateBadge(s session.State) string {
	label := "[" + s.Label() + "]"
	switch s {
	case session.StateRunning, session.StateBatchRunning:
		return paint(badgeRunning, label)
	case session.StateCompleted, session.StateBatchCompleted:
		return paint(badgeDone, label)
	case session.StateError:
		return paint(badgeFailed, label)
	}
	return paint(badgeIdle, label)
}

func containerPrefix(name string) string {
	st := lipgloss.NewStyle().Bold(true).Foreground(familyColors[logview.Family(name)])
	return paint(st, "["+name+"]")
}

func printError(w io.Writer, err error) {
	fmt.Fprintln(w, paint(styleError, "Error:")+" "+err.Error())
}

func printField(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %s %s\n", paint(styleLabel, fmt.Sprintf("%-13s", label+":")), paint(styleValue, value))
}
