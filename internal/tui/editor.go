package tui

import (
	"os"
	"os/exec"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/iotlab-io/labwatch/internal/engine/phase"
)

// EditorFinishedMsg carries the result of an external editor session.
type EditorFinishedMsg struct {
	Err error
}

// editCatalogCmd returns a tea.Cmd that suspends bubbletea and opens the
// phase catalog in $EDITOR. A missing file is seeded with the current
// catalog first. The file watcher picks up the saved result.
func editCatalogCmd(path string, current *phase.Catalog) tea.Cmd {
	editor := findEditorPath()
	if editor == "" {
		return func() tea.Msg {
			return EditorFinishedMsg{Err: os.ErrNotExist}
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := phase.WriteFile(path, current); err != nil {
			return func() tea.Msg {
				return EditorFinishedMsg{Err: err}
			}
		}
	}

	c := exec.Command(editor, path) //nolint:noctx // tea.ExecProcess requires *exec.Cmd, not CommandContext
	return tea.ExecProcess(c, func(err error) tea.Msg {
		return EditorFinishedMsg{Err: err}
	})
}

// findEditorPath locates the user's preferred editor.
func findEditorPath() string {
	if editor := os.Getenv("EDITOR"); editor != "" {
		return editor
	}
	if editor := os.Getenv("VISUAL"); editor != "" {
		return editor
	}
	for _, name := range []string{"vim", "vi", "nano"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}
