package components

import (
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// ChatViewModel wraps a viewport with smart auto-scroll behavior.
// Auto-scroll is active while the user is at the bottom. Scrolling up
// pauses it until the user scrolls back down.
type ChatViewModel struct {
	Viewport viewport.Model
	Messages MessageListModel
	ready    bool
	atBottom bool
}

// NewChatView creates a chat view. The viewport is initialized lazily on the first WindowSizeMsg.
func NewChatView() ChatViewModel {
	return ChatViewModel{
		Messages: NewMessageList(),
		atBottom: true,
	}
}

// SetSize sets the viewport dimensions and triggers content re-render.
func (m *ChatViewModel) SetSize(w, h int) {
	m.Messages.SetWidth(w)
	if !m.ready {
		m.Viewport = viewport.New(w, h)
		m.Viewport.MouseWheelEnabled = true
		m.Viewport.MouseWheelDelta = 3
		m.ready = true
	} else {
		m.Viewport.Width = w
		m.Viewport.Height = h
	}
	m.refreshContent()
}

// SetTranscript replaces the transcript and follows it if auto-scroll is active.
func (m *ChatViewModel) SetTranscript(msgs []ChatMessage) {
	m.Messages.SetTranscript(msgs)
	m.refreshContent()
	m.follow()
}

// AddNote appends a UI-only message.
func (m *ChatViewModel) AddNote(msg ChatMessage) {
	m.Messages.AddNote(msg)
	m.refreshContent()
	m.follow()
}

// ClearNotes drops all UI-only messages.
func (m *ChatViewModel) ClearNotes() {
	if len(m.Messages.Notes) == 0 {
		return
	}
	m.Messages.ClearNotes()
	m.refreshContent()
}

// Update handles viewport scrolling and tracks auto-scroll state.
func (m ChatViewModel) Update(msg tea.Msg) (ChatViewModel, tea.Cmd) {
	if !m.ready {
		return m, nil
	}

	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	m.atBottom = m.Viewport.AtBottom()
	return m, cmd
}

// View renders the chat viewport.
func (m ChatViewModel) View() string {
	if !m.ready {
		return "  Initializing..."
	}
	return m.Viewport.View()
}

func (m *ChatViewModel) follow() {
	if m.ready && m.atBottom {
		m.Viewport.GotoBottom()
	}
}

func (m *ChatViewModel) refreshContent() {
	if !m.ready {
		return
	}
	m.Viewport.SetContent(m.Messages.View())
}
