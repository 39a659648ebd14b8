package chat

import (
	"context"
	"errors"
	"log/slog"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"lawggle-ai/internal/adapter/tui/components"
	"lawggle-ai/internal/adapter/tui/theme"
	"lawggle-ai/internal/adapter/tui/uxerror"
	"lawggle-ai/internal/domain"
	session "lawggle-ai/internal/usecase/chat"
)

// Conversation is the session the widget drives.
type Conversation interface {
	ID() string
	Start(ctx context.Context) error
	Send(ctx context.Context, text string) error
	Snapshot() session.Snapshot
}

const helpText = `Available commands:
  /help      - Show this help
  /thread    - Show the conversation thread id
  /quit      - Exit

Keybindings:
  Enter      - Send message
  Alt+Enter  - New line
  PgUp/PgDn  - Scroll chat
  Ctrl+C     - Quit`

var slashCommands = []components.CommandDef{
	{Name: "/help", Description: "Show available commands"},
	{Name: "/thread", Description: "Show the thread id"},
	{Name: "/quit", Description: "Exit"},
}

// ChatModel is the root Bubble Tea model. It renders whatever the latest
// snapshot says; it never edits the transcript itself.
type ChatModel struct {
	ctx    context.Context
	conv   Conversation
	logger *slog.Logger

	chatView  components.ChatViewModel
	input     components.InputAreaModel
	statusBar components.StatusBarModel
	spinner   spinner.Model

	snap     session.Snapshot
	width    int
	height   int
	inputH   int
	quitting bool
}

// NewChatModel creates the root model over conv. ctx bounds every call the
// model makes into the conversation.
func NewChatModel(ctx context.Context, conv Conversation, logger *slog.Logger) ChatModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(theme.ColorInfo)

	m := ChatModel{
		ctx:       ctx,
		conv:      conv,
		logger:    logger,
		chatView:  components.NewChatView(),
		input:     components.NewInputArea(slashCommands),
		statusBar: components.NewStatusBar(defaultHints()),
		spinner:   s,
	}
	m.applySnapshot(conv.Snapshot())
	return m
}

// Init starts the spinner and bootstraps the thread.
func (m ChatModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, startCmd(m.ctx, m.conv))
}

// Update handles all incoming messages.
func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.chatView, cmd = m.chatView.Update(msg)
		return m, cmd

	case components.InputSubmitMsg:
		return m.handleSubmit(msg.Value)

	case SnapshotMsg:
		if msg.Snapshot.Seq > m.snap.Seq {
			m.applySnapshot(msg.Snapshot)
		}
		return m, nil

	case StartDoneMsg:
		return m.handleDone("start", msg.Err)

	case SendDoneMsg:
		return m.handleDone("send", msg.Err)

	case StalledMsg:
		m.chatView.AddNote(components.ChatMessage{
			Role:    components.RoleSystem,
			Content: "The answer stopped arriving. You can send a new message.",
		})
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the entire widget.
func (m ChatModel) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if m.width == 0 {
		return "  Initializing..."
	}

	header := theme.HeaderBar.Width(m.width).Render(
		theme.HeaderTitle.Render(theme.Title) + theme.HeaderSubtitle.Render(" / "+theme.Subtitle))

	activity := ""
	if m.thinking() {
		activity = m.spinner.View() + " " + theme.TextMuted.Render("Thinking...")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.chatView.View(),
		activity,
		components.Divider(m.width),
		m.input.View(),
		m.statusBar.View(),
	)
}

// thinking reports whether a reply is awaited but has not started yet.
func (m ChatModel) thinking() bool {
	if !m.snap.Loading {
		return false
	}
	n := len(m.snap.Messages)
	return n == 0 || m.snap.Messages[n-1].Role != domain.RoleAssistant
}

// applySnapshot makes snap the rendered state.
func (m *ChatModel) applySnapshot(snap session.Snapshot) {
	m.snap = snap

	msgs := components.FromTranscript(snap.Messages)
	if snap.Err != "" {
		msgs = append(msgs, components.ChatMessage{
			Role:    components.RoleError,
			Content: uxerror.HumanizeText(snap.Err).Render(),
		})
	}
	m.chatView.SetTranscript(msgs)
	m.input.SetEnabled(!snap.InputDisabled)

	m.statusBar.ThreadID = snap.ThreadID
	switch {
	case snap.ThreadID == "" && snap.Loading:
		m.statusBar.Extra = "Connecting..."
	case m.thinking():
		m.statusBar.Extra = "Thinking..."
	case snap.InputDisabled:
		m.statusBar.Extra = "Answering..."
	default:
		m.statusBar.Extra = ""
	}
}

// handleDone reconciles with the session after a background call returns.
// Conversation failures already show through the snapshot; rejections of
// the user's input do not, so they become notes.
func (m ChatModel) handleDone(op string, err error) (tea.Model, tea.Cmd) {
	if snap := m.conv.Snapshot(); snap.Seq > m.snap.Seq {
		m.applySnapshot(snap)
	}
	if err == nil || errors.Is(err, context.Canceled) {
		return m, nil
	}
	m.logger.Debug("conversation call failed", "op", op, "error", err)
	if session.IsUserError(err) {
		m.chatView.AddNote(components.ChatMessage{
			Role:    components.RoleError,
			Content: uxerror.Humanize(err).Render(),
		})
	}
	return m, nil
}

// handleKey processes keyboard input.
func (m ChatModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.quitting = true
		return m, tea.Quit
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.chatView, cmd = m.chatView.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if h := m.input.Height(); h != m.inputH {
		m.layout()
	}
	return m, cmd
}

// handleSubmit runs a slash command or sends the message.
func (m ChatModel) handleSubmit(value string) (tea.Model, tea.Cmd) {
	if cmd, _, ok := components.ParseSlashCommand(value); ok {
		return m.handleSlashCommand(cmd)
	}
	m.chatView.ClearNotes()
	return m, sendMessageCmd(m.ctx, m.conv, value)
}

func (m ChatModel) handleSlashCommand(cmd string) (tea.Model, tea.Cmd) {
	switch cmd {
	case "/help":
		m.chatView.AddNote(components.ChatMessage{Role: components.RoleSystem, Content: helpText})
	case "/quit", "/exit":
		m.quitting = true
		return m, tea.Quit
	case "/thread":
		content := "No thread yet."
		if m.snap.ThreadID != "" {
			content = "Thread: " + m.snap.ThreadID
		}
		m.chatView.AddNote(components.ChatMessage{Role: components.RoleSystem, Content: content})
	default:
		m.chatView.AddNote(components.ChatMessage{
			Role:    components.RoleSystem,
			Content: "Unknown command: " + cmd + ". Type /help for available commands.",
		})
	}
	return m, nil
}

// layout recalculates sizes for all sub-models.
func (m *ChatModel) layout() {
	const (
		headerH   = 2 // title and its border
		activityH = 1
		dividerH  = 1
		statusH   = 1
	)
	m.input.SetWidth(m.width)
	m.statusBar.SetWidth(m.width)
	m.inputH = m.input.Height()

	contentH := max(m.height-headerH-activityH-dividerH-m.inputH-statusH, 3)
	m.chatView.SetSize(m.width, contentH)
}

func defaultHints() []components.KeyHint {
	return []components.KeyHint{
		{Key: "Enter", Desc: "Send"},
		{Key: "Alt+Enter", Desc: "Newline"},
		{Key: "/help", Desc: "Commands"},
		{Key: "Ctrl+C", Desc: "Quit"},
	}
}
