package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"lawggle-ai/internal/adapter/tui/theme"
)

// KeyHint is a single keybinding hint shown in the status bar.
type KeyHint struct {
	Key  string // e.g. "Enter"
	Desc string // e.g. "Send"
}

// StatusBarModel renders a bottom bar with key hints on the left and the
// thread and activity on the right.
type StatusBarModel struct {
	Hints    []KeyHint
	ThreadID string
	Extra    string // activity text, e.g. "Thinking..."
	width    int
}

// NewStatusBar creates a status bar with the given hints.
func NewStatusBar(hints []KeyHint) StatusBarModel {
	return StatusBarModel{Hints: hints}
}

// SetWidth updates the available width.
func (m *StatusBarModel) SetWidth(w int) {
	m.width = w
}

// View renders the status bar as a single line.
func (m StatusBarModel) View() string {
	hints := make([]string, 0, len(m.Hints))
	for _, h := range m.Hints {
		hints = append(hints, theme.StatusKey.Render(h.Key)+": "+h.Desc)
	}
	left := strings.Join(hints, "  "+theme.Dim.Render("|")+"  ")

	var parts []string
	if m.Extra != "" {
		parts = append(parts, theme.TextInfo.Render(m.Extra))
	}
	if m.ThreadID != "" {
		parts = append(parts, theme.TextMuted.Render(m.ThreadID))
	}
	right := strings.Join(parts, " "+theme.SymbolBullet+" ")

	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right)-2, 1)
	return theme.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}
