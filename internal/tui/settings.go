package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cast"
)

// FieldType defines the type of a settings field.
type FieldType int

const (
	fieldText FieldType = iota
	fieldToggle
)

// SettingsField is a single field in the settings form.
type SettingsField struct {
	Label     string
	Key       string // configuration key, e.g. "poll.status"
	Value     string
	BoolValue bool
	Type      FieldType
}

// settingsLayout lists the keys editable from the dashboard.
var settingsLayout = []SettingsField{
	{Label: "Backend URL", Key: "api.url"},
	{Label: "Request timeout", Key: "api.timeout"},
	{Label: "Status poll", Key: "poll.status"},
	{Label: "Batch poll", Key: "poll.batch"},
	{Label: "Logs poll", Key: "poll.logs"},
	{Label: "Summary poll", Key: "poll.summary"},
	{Label: "Retry policy", Key: "poll.retry"},
	{Label: "Log tail", Key: "logs.tail"},
	{Label: "Default mode", Key: "run.mode"},
	{Label: "Default network", Key: "run.network"},
	{Label: "Report format", Key: "run.output"},
	{Label: "Batch runs", Key: "batch.runs"},
	{Label: "Log level", Key: "log.level"},
	{Label: "Telemetry", Key: "telemetry.enabled", Type: fieldToggle},
}

// SettingsForm manages the settings tab.
type SettingsForm struct {
	fields  []SettingsField
	cursor  int
	editing bool
	input   textinput.Model
	width   int
	height  int
}

// NewSettingsForm creates a new settings form.
func NewSettingsForm() *SettingsForm {
	ti := textinput.New()
	ti.CharLimit = 100
	fields := make([]SettingsField, len(settingsLayout))
	copy(fields, settingsLayout)
	return &SettingsForm{
		fields: fields,
		input:  ti,
	}
}

// Load populates fields from a key lookup, such as config.Manager.Value.
func (s *SettingsForm) Load(value func(key string) any) {
	fields := make([]SettingsField, len(settingsLayout))
	copy(fields, settingsLayout)
	for i := range fields {
		v := value(fields[i].Key)
		if fields[i].Type == fieldToggle {
			fields[i].BoolValue = cast.ToBool(v)
		} else {
			fields[i].Value = cast.ToString(v)
		}
	}
	s.fields = fields
}

// SetSize updates dimensions.
func (s *SettingsForm) SetSize(width, height int) {
	s.width = width
	s.height = height
	s.input.Width = width - 24
}

// MoveUp moves cursor up.
func (s *SettingsForm) MoveUp() {
	if !s.editing && s.cursor > 0 {
		s.cursor--
	}
}

// MoveDown moves cursor down.
func (s *SettingsForm) MoveDown() {
	if !s.editing && s.cursor < len(s.fields)-1 {
		s.cursor++
	}
}

// Toggle toggles a boolean field.
func (s *SettingsForm) Toggle() (changed bool, key string, value any) {
	if s.cursor < 0 || s.cursor >= len(s.fields) {
		return false, "", nil
	}
	f := &s.fields[s.cursor]
	if f.Type == fieldToggle {
		f.BoolValue = !f.BoolValue
		return true, f.Key, f.BoolValue
	}
	return false, "", nil
}

// StartEdit begins inline editing of the current text field.
func (s *SettingsForm) StartEdit() bool {
	if s.cursor < 0 || s.cursor >= len(s.fields) {
		return false
	}
	f := s.fields[s.cursor]
	if f.Type != fieldText {
		return false
	}
	s.editing = true
	s.input.SetValue(f.Value)
	s.input.CursorEnd()
	s.input.Focus()
	return true
}

// FinishEdit confirms the current edit. The form shows the new value right
// away; a failed save reloads the stored one.
func (s *SettingsForm) FinishEdit() (changed bool, key string, value any) {
	if !s.editing {
		return false, "", nil
	}
	s.editing = false
	s.input.Blur()

	f := &s.fields[s.cursor]
	newVal := strings.TrimSpace(s.input.Value())
	if newVal != f.Value {
		f.Value = newVal
		return true, f.Key, newVal
	}
	return false, "", nil
}

// CancelEdit cancels the current edit.
func (s *SettingsForm) CancelEdit() {
	s.editing = false
	s.input.Blur()
}

// IsEditing returns whether a field is being edited.
func (s *SettingsForm) IsEditing() bool {
	return s.editing
}

// InputModel returns the text input model for Update forwarding.
func (s *SettingsForm) InputModel() *textinput.Model {
	return &s.input
}

// View renders the settings form.
func (s *SettingsForm) View() string {
	if len(s.fields) == 0 {
		return lipgloss.NewStyle().Foreground(colorDim).Render("Loading settings...")
	}

	var lines []string
	for i, f := range s.fields {
		var line string
		label := settingsLabelStyle.Render(f.Label + ":")

		switch {
		case f.Type == fieldToggle:
			line = label + " " + onOff(f.BoolValue)
		case s.editing && i == s.cursor:
			line = label + " " + s.input.View()
		default:
			val := f.Value
			if val == "" {
				val = dimStyle.Render("(empty)")
			} else {
				val = settingsValueStyle.Render(val)
			}
			line = label + " " + val
		}

		if i == s.cursor {
			line = settingsCursorStyle.Width(s.width).Render(line)
		}
		lines = append(lines, line)
	}

	lines = append(lines, "", dimStyle.Render("Polling changes apply to the next dashboard start."))
	return strings.Join(lines, "\n")
}
