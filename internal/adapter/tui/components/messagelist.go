package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"lawggle-ai/internal/adapter/tui/theme"
	"lawggle-ai/internal/domain"
)

// MessageRole identifies how a chat message is rendered.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleCode      MessageRole = "code"
	RoleSystem    MessageRole = "system"
	RoleError     MessageRole = "error"
)

// ChatMessage is a single rendered entry.
type ChatMessage struct {
	Role     MessageRole
	Content  string
	Rendered string // cached body; empty means not yet rendered
}

// FromTranscript converts transcript messages into chat messages.
func FromTranscript(msgs []domain.Message) []ChatMessage {
	out := make([]ChatMessage, len(msgs))
	for i, m := range msgs {
		out[i] = ChatMessage{Role: MessageRole(m.Role), Content: m.Text}
	}
	return out
}

// MessageListModel renders the transcript followed by local notes. The
// transcript is replaced wholesale on every snapshot; notes are UI-only
// messages such as command output.
type MessageListModel struct {
	Transcript []ChatMessage
	Notes      []ChatMessage
	width      int
	mdRenderer *glamour.TermRenderer
}

// NewMessageList creates an empty message list.
func NewMessageList() MessageListModel {
	return MessageListModel{}
}

// SetWidth updates the rendering width and clears cached renders.
func (m *MessageListModel) SetWidth(w int) {
	if w == m.width {
		return
	}
	m.width = w
	m.mdRenderer = nil
	for i := range m.Transcript {
		m.Transcript[i].Rendered = ""
	}
	for i := range m.Notes {
		m.Notes[i].Rendered = ""
	}
}

// SetTranscript replaces the transcript. Cached renders are kept for
// messages whose role and content did not change, so a streaming delta only
// re-renders the tail.
func (m *MessageListModel) SetTranscript(msgs []ChatMessage) {
	for i := range msgs {
		if i >= len(m.Transcript) {
			break
		}
		old := m.Transcript[i]
		if old.Role == msgs[i].Role && old.Content == msgs[i].Content {
			msgs[i].Rendered = old.Rendered
		}
	}
	m.Transcript = msgs
}

// AddNote appends a UI-only message after the transcript.
func (m *MessageListModel) AddNote(msg ChatMessage) {
	m.Notes = append(m.Notes, msg)
}

// ClearNotes drops all UI-only messages.
func (m *MessageListModel) ClearNotes() {
	m.Notes = nil
}

// Last returns the newest transcript message.
func (m *MessageListModel) Last() (ChatMessage, bool) {
	if len(m.Transcript) == 0 {
		return ChatMessage{}, false
	}
	return m.Transcript[len(m.Transcript)-1], true
}

// View renders all messages as a single string.
func (m *MessageListModel) View() string {
	if len(m.Transcript) == 0 && len(m.Notes) == 0 {
		return theme.TextMuted.Render("  No messages yet. Start a conversation!")
	}

	width := ContentWidth(m.width)
	var sb strings.Builder
	first := true
	for _, list := range [][]ChatMessage{m.Transcript, m.Notes} {
		for i := range list {
			if !first {
				sb.WriteString("\n\n")
			}
			first = false
			sb.WriteString(m.renderMessage(&list[i], width))
		}
	}
	return sb.String()
}

func (m *MessageListModel) renderMessage(msg *ChatMessage, width int) string {
	if msg.Rendered != "" {
		return msg.Rendered
	}

	var out string
	switch msg.Role {
	case RoleUser:
		bubbleW := width * 3 / 4
		label := theme.UserLabel.Render(theme.SymbolUser)
		body := theme.UserBubble.Render(wrapText(msg.Content, bubbleW-2))
		block := lipgloss.JoinVertical(lipgloss.Right, label, body)
		out = lipgloss.PlaceHorizontal(width, lipgloss.Right, block)
	case RoleAssistant:
		body := strings.TrimSpace(m.renderMarkdown(msg.Content, width))
		out = theme.BotLabel.Render(theme.SymbolBot) + "\n" + body
	case RoleCode:
		panel := theme.CodePanel.Width(width - 2).Render(NumberLines(msg.Content))
		out = theme.CodeLabel.Render(theme.SymbolCode) + "\n" + panel
	case RoleError:
		out = theme.ErrorLabel.Render(theme.SymbolError+" Error") + "\n  " +
			theme.TextError.Render(wrapText(msg.Content, width-2))
	default:
		out = theme.SystemLabel.Render("System") + "\n  " + wrapText(msg.Content, width-2)
	}
	msg.Rendered = out
	return out
}

func (m *MessageListModel) renderMarkdown(content string, width int) string {
	if m.mdRenderer == nil {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return "  " + content
		}
		m.mdRenderer = r
	}
	rendered, err := m.mdRenderer.Render(content)
	if err != nil {
		return "  " + content
	}
	return rendered
}

// NumberLines prefixes every line of code with a right-aligned line number.
func NumberLines(code string) string {
	lines := strings.Split(strings.TrimRight(code, "\n"), "\n")
	digits := len(fmt.Sprint(len(lines)))
	var sb strings.Builder
	for i, line := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(theme.LineNumber.Render(fmt.Sprintf("%*d", digits, i+1)))
		sb.WriteString(" │ ")
		sb.WriteString(line)
	}
	return sb.String()
}

// wrapText wraps text to the given width with a 2-space indent on continuation lines.
// Uses rune-based indexing to safely handle multibyte UTF-8.
func wrapText(s string, width int) string {
	var out []string
	for _, para := range strings.Split(s, "\n") {
		out = append(out, wrapLine(para, width))
	}
	return strings.Join(out, "\n  ")
}

func wrapLine(s string, width int) string {
	runes := []rune(s)
	if width <= 0 || len(runes) <= width {
		return s
	}
	var lines []string
	for len(runes) > width {
		idx := -1
		for i := width - 1; i > 0; i-- {
			if runes[i] == ' ' {
				idx = i
				break
			}
		}
		if idx <= 0 {
			idx = width
		}
		lines = append(lines, string(runes[:idx]))
		runes = runes[idx:]
		for len(runes) > 0 && runes[0] == ' ' {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		lines = append(lines, string(runes))
	}
	return strings.Join(lines, "\n  ")
}

// ContentWidth calculates the content width respecting MaxContentWidth.
func ContentWidth(termWidth int) int {
	return theme.Clamp(termWidth-4, 40, theme.MaxContentWidth)
}

// Divider renders a horizontal line at the given width.
func Divider(width int) string {
	return lipgloss.NewStyle().
		Foreground(theme.ColorBorder).
		Render(strings.Repeat("─", width))
}
