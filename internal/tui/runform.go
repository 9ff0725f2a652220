package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"

	"github.com/iotlab-io/labwatch/internal/models"
)

// Run form fields in display order.
const (
	fieldKind = iota
	fieldMode
	fieldNetwork
	fieldOutput
	fieldPorts
	fieldVerbose
	fieldTest
	fieldRuns
	fieldCount
)

var outputFormats = []models.OutputFormat{models.OutputHTML, models.OutputJSON, models.OutputCSV}

// RunForm is the launch overlay for single runs and batches.
type RunForm struct {
	batch   bool
	mode    models.Mode
	output  int // index into outputFormats
	verbose bool
	test    bool

	networkInput textinput.Model
	portsInput   textinput.Model
	runsInput    textinput.Model

	focusIndex int
	width      int
}

// NewRunForm creates a run form pre-filled from the configured defaults.
func NewRunForm(batch bool, defaults models.Settings, width int) *RunForm {
	ni := textinput.New()
	ni.Placeholder = "172.20.0.0/27"
	ni.CharLimit = 43
	ni.Width = width - 8
	ni.SetValue(defaults.Run.Network)

	pi := textinput.New()
	pi.Placeholder = "scanner defaults (e.g. 22,80,1883)"
	pi.CharLimit = 200
	pi.Width = width - 8

	ri := textinput.New()
	ri.Placeholder = "30"
	ri.CharLimit = 4
	ri.Width = 8
	ri.SetValue(strconv.Itoa(defaults.Batch.Runs))

	mode, err := models.ParseMode(defaults.Run.Mode)
	if err != nil {
		mode = models.ModeAutoML
	}

	rf := &RunForm{
		batch:        batch,
		mode:         mode,
		networkInput: ni,
		portsInput:   pi,
		runsInput:    ri,
		width:        width,
	}
	for i, f := range outputFormats {
		if string(f) == defaults.Run.Output {
			rf.output = i
		}
	}

	// Start on the network, the field most often changed
	rf.focusIndex = fieldNetwork
	rf.focusCurrent()

	return rf
}

// applies reports whether a field is shown for the current kind.
func (rf *RunForm) applies(field int) bool {
	switch field {
	case fieldOutput, fieldPorts, fieldVerbose, fieldTest:
		return !rf.batch
	case fieldRuns:
		return rf.batch
	}
	return true
}

// FocusNext moves to the next applicable field.
func (rf *RunForm) FocusNext() {
	rf.moveFocus(1)
}

// FocusPrev moves to the previous applicable field.
func (rf *RunForm) FocusPrev() {
	rf.moveFocus(-1)
}

func (rf *RunForm) moveFocus(step int) {
	rf.blurAll()
	for i := 0; i < fieldCount; i++ {
		rf.focusIndex = (rf.focusIndex + step + fieldCount) % fieldCount
		if rf.applies(rf.focusIndex) {
			break
		}
	}
	rf.focusCurrent()
}

func (rf *RunForm) blurAll() {
	rf.networkInput.Blur()
	rf.portsInput.Blur()
	rf.runsInput.Blur()
}

func (rf *RunForm) focusCurrent() {
	switch rf.focusIndex {
	case fieldNetwork:
		rf.networkInput.Focus()
	case fieldPorts:
		rf.portsInput.Focus()
	case fieldRuns:
		rf.runsInput.Focus()
	}
}

// Toggle flips or cycles the focused choice field. It returns false for
// text fields.
func (rf *RunForm) Toggle() bool {
	switch rf.focusIndex {
	case fieldKind:
		rf.batch = !rf.batch
	case fieldMode:
		if rf.mode == models.ModeAutoML {
			rf.mode = models.ModeStatic
		} else {
			rf.mode = models.ModeAutoML
		}
	case fieldOutput:
		rf.output = (rf.output + 1) % len(outputFormats)
	case fieldVerbose:
		rf.verbose = !rf.verbose
	case fieldTest:
		rf.test = !rf.test
	default:
		return false
	}
	return true
}

// IsBatch reports whether the form launches a batch.
func (rf *RunForm) IsBatch() bool {
	return rf.batch
}

// FocusIndex returns the currently focused field index.
func (rf *RunForm) FocusIndex() int {
	return rf.focusIndex
}

// FocusedInput returns the text input under focus, or nil for choice fields.
func (rf *RunForm) FocusedInput() *textinput.Model {
	switch rf.focusIndex {
	case fieldNetwork:
		return &rf.networkInput
	case fieldPorts:
		return &rf.portsInput
	case fieldRuns:
		return &rf.runsInput
	}
	return nil
}

// Params validates the form as single run parameters.
func (rf *RunForm) Params() (models.RunParameters, error) {
	ports, err := models.ParsePorts(rf.portsInput.Value())
	if err != nil {
		return models.RunParameters{}, err
	}
	p := models.RunParameters{
		Mode:    rf.mode,
		Network: strings.TrimSpace(rf.networkInput.Value()),
		Output:  outputFormats[rf.output],
		Ports:   ports,
		Verbose: rf.verbose,
		Test:    rf.test,
	}.Normalize()
	if err := p.Validate(); err != nil {
		return models.RunParameters{}, err
	}
	return p, nil
}

// Batch validates the form as a batch request.
func (rf *RunForm) Batch() (models.BatchRequest, error) {
	runs, err := strconv.Atoi(strings.TrimSpace(rf.runsInput.Value()))
	if err != nil {
		return models.BatchRequest{}, fmt.Errorf("runs must be a number")
	}
	req := models.BatchRequest{
		Mode:    rf.mode,
		Network: strings.TrimSpace(rf.networkInput.Value()),
		Runs:    runs,
	}
	if err := req.Validate(); err != nil {
		return models.BatchRequest{}, err
	}
	return req, nil
}

// View renders the run form.
func (rf *RunForm) View() string {
	title := "New Experiment"
	if rf.batch {
		title = "New Batch"
	}

	formWidth := rf.width
	if formWidth > 70 {
		formWidth = 70
	}
	if formWidth < 30 {
		formWidth = 30
	}

	parts := make([]string, 0, 20)
	parts = append(parts, overlayTitleStyle.Render(title))

	kind := "Single run"
	if rf.batch {
		kind = "Batch"
	}
	parts = append(parts,
		rf.choice(fieldKind, "Launch:", kind),
		rf.choice(fieldMode, "Mode:", modeLabel(rf.mode)),
		"",
		rf.label(fieldNetwork, "Network (CIDR):"),
		rf.networkInput.View(),
		"",
	)

	if rf.batch {
		parts = append(parts, rf.label(fieldRuns, "Runs:"), rf.runsInput.View(), "")
	} else {
		parts = append(parts,
			rf.choice(fieldOutput, "Report format:", strings.ToUpper(string(outputFormats[rf.output]))),
			"",
			rf.label(fieldPorts, "Ports:"),
			rf.portsInput.View(),
			"",
			rf.choice(fieldVerbose, "Verbose:", onOff(rf.verbose)),
			rf.choice(fieldTest, "Test mode:", onOff(rf.test)),
			"",
		)
	}

	footer := lipgloss.NewStyle().Foreground(colorDim).Render("Ctrl+s launch  |  Tab next field  |  Space toggle  |  Esc cancel")
	parts = append(parts, footer)

	content := strings.Join(parts, "\n")
	return overlayStyle.Width(formWidth).Render(content)
}

func (rf *RunForm) label(field int, text string) string {
	st := lipgloss.NewStyle().Bold(true)
	if rf.focusIndex == field {
		st = st.Foreground(colorCyan)
	}
	return st.Render(text)
}

func (rf *RunForm) choice(field int, label, value string) string {
	line := rf.label(field, label) + " " + valueStyle.Render(value)
	if rf.focusIndex == field {
		line += lipgloss.NewStyle().Foreground(colorDim).Render("  (Space to change)")
	}
	return line
}

func modeLabel(m models.Mode) string {
	if m == models.ModeAutoML {
		return "AutoML"
	}
	return "Static"
}

func onOff(b bool) string {
	if b {
		return settingsToggleOn.Render("[ON]")
	}
	return settingsToggleOff.Render("[OFF]")
}
