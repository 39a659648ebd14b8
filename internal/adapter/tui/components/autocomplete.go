package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"lawggle-ai/internal/adapter/tui/theme"
)

// CommandDef describes a slash command offered by the autocomplete popup.
type CommandDef struct {
	Name        string // e.g. "/thread"
	Description string
}

// AutocompleteModel is a filtered popup of slash commands.
type AutocompleteModel struct {
	Commands []CommandDef
	Filtered []CommandDef
	Selected int
	Visible  bool
	width    int
}

// NewAutocomplete creates a popup over commands.
func NewAutocomplete(commands []CommandDef) AutocompleteModel {
	return AutocompleteModel{Commands: commands}
}

// SetWidth updates the popup width.
func (m *AutocompleteModel) SetWidth(w int) {
	m.width = w
}

// SetPrefix filters the commands by prefix. An exact match hides the popup.
func (m *AutocompleteModel) SetPrefix(prefix string) {
	prefix = strings.ToLower(prefix)
	m.Filtered = nil
	for _, cmd := range m.Commands {
		if strings.HasPrefix(cmd.Name, prefix) && cmd.Name != prefix {
			m.Filtered = append(m.Filtered, cmd)
		}
	}
	m.Visible = prefix != "" && len(m.Filtered) > 0
	if m.Selected >= len(m.Filtered) {
		m.Selected = 0
	}
}

// Hide closes the popup.
func (m *AutocompleteModel) Hide() {
	m.Visible = false
	m.Filtered = nil
	m.Selected = 0
}

// SelectNext moves the selection down, wrapping around.
func (m *AutocompleteModel) SelectNext() {
	if n := len(m.Filtered); n > 0 {
		m.Selected = (m.Selected + 1) % n
	}
}

// SelectPrev moves the selection up, wrapping around.
func (m *AutocompleteModel) SelectPrev() {
	if n := len(m.Filtered); n > 0 {
		m.Selected = (m.Selected - 1 + n) % n
	}
}

// Accept returns the selected command name and closes the popup.
func (m *AutocompleteModel) Accept() string {
	if len(m.Filtered) == 0 {
		return ""
	}
	name := m.Filtered[m.Selected].Name
	m.Hide()
	return name
}

// Height returns the lines the popup occupies.
func (m AutocompleteModel) Height() int {
	if !m.Visible {
		return 0
	}
	return len(m.Filtered) + 2 // border
}

// View renders the popup.
func (m AutocompleteModel) View() string {
	if !m.Visible {
		return ""
	}

	const nameW = 10
	lines := make([]string, 0, len(m.Filtered))
	for i, cmd := range m.Filtered {
		line := cmd.Name + strings.Repeat(" ", max(nameW-len(cmd.Name), 1)) +
			theme.TextMuted.Render(cmd.Description)
		if i == m.Selected {
			line = theme.TextInfo.Render(theme.SymbolArrowR+" ") + line
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorderActive).
		Padding(0, 1).
		Render(strings.Join(lines, "\n"))
}
