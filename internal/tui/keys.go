package tui

import "github.com/charmbracelet/bubbles/key"

// GlobalKeys are always active.
type GlobalKeys struct {
	Quit key.Binding
	Help key.Binding
	Tab  key.Binding
}

var globalKeys = GlobalKeys{
	Quit: key.NewBinding(
		key.WithKeys("ctrl+q", "ctrl+c"),
		key.WithHelp("Ctrl+q", "quit"),
	),
	Help: key.NewBinding(
		key.WithKeys("ctrl+h", "?"),
		key.WithHelp("?", "help"),
	),
	Tab: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("Tab", "switch panel"),
	),
}

// RunKeys are active when the run tab is focused.
type RunKeys struct {
	New    key.Binding
	Batch  key.Binding
	Reset  key.Binding
	Attach key.Binding
	Edit   key.Binding
}

var runKeys = RunKeys{
	New: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "new run"),
	),
	Batch: key.NewBinding(
		key.WithKeys("b"),
		key.WithHelp("b", "new batch"),
	),
	Reset: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "reset"),
	),
	Attach: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "attach"),
	),
	Edit: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "edit phases"),
	),
}

// TabSwitchKeys switch panel tabs.
type TabSwitchKeys struct {
	Tab1 key.Binding
	Tab2 key.Binding
	Tab3 key.Binding
}

var tabSwitchKeys = TabSwitchKeys{
	Tab1: key.NewBinding(
		key.WithKeys("1"),
		key.WithHelp("1", "Run"),
	),
	Tab2: key.NewBinding(
		key.WithKeys("2"),
		key.WithHelp("2", "History"),
	),
	Tab3: key.NewBinding(
		key.WithKeys("3"),
		key.WithHelp("3", "Settings"),
	),
}

// LogKeys are active when the logs panel is focused.
type LogKeys struct {
	View   key.Binding
	Filter key.Binding
	Pick   key.Binding
	Clear  key.Binding
	Next   key.Binding
	Prev   key.Binding
	Pause  key.Binding
	Up     key.Binding
	Down   key.Binding
	Top    key.Binding
	Bottom key.Binding
}

var logKeys = LogKeys{
	View: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "unified/split/single"),
	),
	Filter: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "filter"),
	),
	Pick: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "pick containers"),
	),
	Clear: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "clear filter"),
	),
	Next: key.NewBinding(
		key.WithKeys("]"),
		key.WithHelp("]", "next container"),
	),
	Prev: key.NewBinding(
		key.WithKeys("["),
		key.WithHelp("[", "previous container"),
	),
	Pause: key.NewBinding(
		key.WithKeys("p", " "),
		key.WithHelp("p", "pause"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
	),
	Top: key.NewBinding(
		key.WithKeys("g", "home"),
	),
	Bottom: key.NewBinding(
		key.WithKeys("G", "end"),
	),
}

// PickerKeys are active while the container picker is open.
type PickerKeys struct {
	Left   key.Binding
	Right  key.Binding
	Toggle key.Binding
	Done   key.Binding
}

var pickerKeys = PickerKeys{
	Left: key.NewBinding(
		key.WithKeys("left", "h"),
	),
	Right: key.NewBinding(
		key.WithKeys("right", "l"),
	),
	Toggle: key.NewBinding(
		key.WithKeys(" "),
		key.WithHelp("Space", "select"),
	),
	Done: key.NewBinding(
		key.WithKeys("enter", "esc", "c"),
		key.WithHelp("Enter", "done"),
	),
}

// ListKeys navigate the history list.
type ListKeys struct {
	Up      key.Binding
	Down    key.Binding
	Enter   key.Binding
	Back    key.Binding
	Refresh key.Binding
}

var listKeys = ListKeys{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("j/k", "navigate"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("j/k", "navigate"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("Enter", "view"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("Esc", "back"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("R"),
		key.WithHelp("R", "refresh"),
	),
}

// SettingsKeys are active when settings form is focused.
type SettingsKeys struct {
	Up     key.Binding
	Down   key.Binding
	Toggle key.Binding
	Enter  key.Binding
}

var settingsKeys = SettingsKeys{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("j/k", "navigate"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("j/k", "navigate"),
	),
	Toggle: key.NewBinding(
		key.WithKeys(" "),
		key.WithHelp("Space", "toggle"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("Enter", "edit"),
	),
}

// OverlayKeys are active when an overlay is shown.
type OverlayKeys struct {
	Launch key.Binding
	Cancel key.Binding
	Next   key.Binding
	Prev   key.Binding
}

var overlayKeys = OverlayKeys{
	Launch: key.NewBinding(
		key.WithKeys("ctrl+s"),
		key.WithHelp("Ctrl+s", "launch"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("Esc", "cancel"),
	),
	Next: key.NewBinding(
		key.WithKeys("tab", "down"),
		key.WithHelp("Tab", "next field"),
	),
	Prev: key.NewBinding(
		key.WithKeys("shift+tab", "up"),
	),
}

// ConfirmKeys for inline confirmation prompts.
type ConfirmKeys struct {
	Yes    key.Binding
	No     key.Binding
	Cancel key.Binding
}

var confirmKeys = ConfirmKeys{
	Yes: key.NewBinding(
		key.WithKeys("y"),
		key.WithHelp("y", "confirm"),
	),
	No: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "cancel"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("Esc", "cancel"),
	),
}
