package components

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lawggle-ai/internal/domain"
)

var testCommands = []CommandDef{
	{Name: "/help", Description: "Show available commands"},
	{Name: "/quit", Description: "Exit"},
	{Name: "/thread", Description: "Show the thread id"},
}

func TestNumberLines(t *testing.T) {
	lines := make([]string, 10)
	for i := range lines {
		lines[i] = "x = 1"
	}
	out := NumberLines(strings.Join(lines, "\n") + "\n")

	rows := strings.Split(out, "\n")
	require.Len(t, rows, 10)
	assert.Contains(t, rows[0], " 1 │ x = 1")
	assert.Contains(t, rows[9], "10 │ x = 1")
}

func TestFromTranscript(t *testing.T) {
	got := FromTranscript([]domain.Message{
		{Role: domain.RoleAssistant, Text: "hi"},
		{Role: domain.RoleCode, Text: "print(1)"},
	})
	assert.Equal(t, []ChatMessage{
		{Role: RoleAssistant, Content: "hi"},
		{Role: RoleCode, Content: "print(1)"},
	}, got)
}

func TestSetTranscriptKeepsUnchangedRenders(t *testing.T) {
	list := NewMessageList()
	list.SetWidth(80)
	list.SetTranscript([]ChatMessage{
		{Role: RoleUser, Content: "question"},
		{Role: RoleCode, Content: "a"},
	})
	_ = list.View()
	cached := list.Transcript[0].Rendered
	require.NotEmpty(t, cached)

	list.SetTranscript([]ChatMessage{
		{Role: RoleUser, Content: "question"},
		{Role: RoleCode, Content: "ab"},
	})
	assert.Equal(t, cached, list.Transcript[0].Rendered)
	assert.Empty(t, list.Transcript[1].Rendered)
}

func TestUserMessagesAreRightAligned(t *testing.T) {
	list := NewMessageList()
	list.SetWidth(84)
	list.SetTranscript([]ChatMessage{{Role: RoleUser, Content: "hello"}})

	for _, line := range strings.Split(list.View(), "\n") {
		assert.Equal(t, ContentWidth(84), lipgloss.Width(line))
		assert.True(t, strings.HasPrefix(line, "    "), "line %q should be padded on the left", line)
	}
}

func TestNotesFollowTranscript(t *testing.T) {
	list := NewMessageList()
	list.SetWidth(80)
	assert.Contains(t, list.View(), "No messages yet")

	list.SetTranscript([]ChatMessage{{Role: RoleCode, Content: "first"}})
	list.AddNote(ChatMessage{Role: RoleSystem, Content: "note"})
	view := list.View()
	assert.Less(t, strings.Index(view, "first"), strings.Index(view, "note"))

	list.ClearNotes()
	assert.NotContains(t, list.View(), "note")
}

func TestAutocomplete(t *testing.T) {
	ac := NewAutocomplete(testCommands)

	ac.SetPrefix("/")
	assert.True(t, ac.Visible)
	assert.Len(t, ac.Filtered, 3)

	ac.SetPrefix("/t")
	require.Len(t, ac.Filtered, 1)
	assert.Equal(t, "/thread", ac.Accept())
	assert.False(t, ac.Visible)

	ac.SetPrefix("/quit")
	assert.False(t, ac.Visible, "exact match needs no popup")

	ac.SetPrefix("/")
	ac.SelectPrev()
	assert.Equal(t, 2, ac.Selected)
	ac.SelectNext()
	assert.Equal(t, 0, ac.Selected)
}

func TestParseSlashCommand(t *testing.T) {
	tests := []struct {
		input string
		cmd   string
		args  []string
		ok    bool
	}{
		{"/help", "/help", []string{}, true},
		{"  /THREAD  now ", "/thread", []string{"now"}, true},
		{"hello", "", nil, false},
	}
	for _, tt := range tests {
		cmd, args, ok := ParseSlashCommand(tt.input)
		assert.Equal(t, tt.ok, ok, tt.input)
		assert.Equal(t, tt.cmd, cmd, tt.input)
		assert.Equal(t, tt.args, args, tt.input)
	}
}

func TestInputSubmit(t *testing.T) {
	in := NewInputArea(testCommands)
	in.SetWidth(80)
	in.Textarea.SetValue("  what is a tort?  ")

	in, cmd := in.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, InputSubmitMsg{Value: "what is a tort?"}, cmd())
	assert.Empty(t, in.Value())
}

func TestInputBlankIsIgnored(t *testing.T) {
	in := NewInputArea(testCommands)
	in.Textarea.SetValue("   ")

	_, cmd := in.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
}

func TestInputDisabledIgnoresKeys(t *testing.T) {
	in := NewInputArea(testCommands)
	in.Textarea.SetValue("draft")
	in.SetEnabled(false)

	in, cmd := in.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Equal(t, "draft", in.Value())
	assert.Equal(t, placeholderDisabled, in.Textarea.Placeholder)

	in.SetEnabled(true)
	assert.True(t, in.Textarea.Focused())
}

func TestStatusBar(t *testing.T) {
	sb := NewStatusBar([]KeyHint{{Key: "Enter", Desc: "Send"}})
	sb.SetWidth(80)
	sb.ThreadID = "thread_1"
	sb.Extra = "Thinking..."

	view := sb.View()
	assert.Contains(t, view, "Send")
	assert.Contains(t, view, "thread_1")
	assert.Contains(t, view, "Thinking...")
}
