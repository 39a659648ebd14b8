package chat

import (
	"context"
	"encoding/json"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"lawggle-ai/internal/domain"
	session "lawggle-ai/internal/usecase/chat"
)

// Widget runs the terminal widget for one conversation.
type Widget struct {
	conv    Conversation
	bus     domain.EventBus
	logger  *slog.Logger
	options []tea.ProgramOption
}

// NewWidget creates a widget. Snapshots are taken from bus, which should be
// the bus conv publishes to. Options replace the default full-screen setup.
func NewWidget(conv Conversation, bus domain.EventBus, logger *slog.Logger, options ...tea.ProgramOption) *Widget {
	if len(options) == 0 {
		options = []tea.ProgramOption{tea.WithAltScreen(), tea.WithMouseCellMotion()}
	}
	return &Widget{conv: conv, bus: bus, logger: logger, options: options}
}

// Run blocks until the user quits or ctx is cancelled.
func (w *Widget) Run(ctx context.Context) error {
	program := tea.NewProgram(NewChatModel(ctx, w.conv, w.logger), w.options...)

	for _, unsub := range w.forward(program) {
		defer unsub()
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			program.Send(QuitMsg{})
		case <-done:
		}
	}()

	_, err := program.Run()
	return err
}

// forward relays this conversation's bus events into the program.
func (w *Widget) forward(program *tea.Program) []func() {
	id := w.conv.ID()
	return []func(){
		w.bus.Subscribe(domain.EventTranscriptUpdated, func(_ context.Context, ev domain.Event) {
			if ev.SessionID != id {
				return
			}
			var snap session.Snapshot
			if err := json.Unmarshal(ev.Payload, &snap); err != nil {
				w.logger.Warn("dropping undecodable snapshot", "error", err)
				return
			}
			program.Send(SnapshotMsg{Snapshot: snap})
		}),
		w.bus.Subscribe(domain.EventStreamStalled, func(_ context.Context, ev domain.Event) {
			if ev.SessionID != id {
				return
			}
			var payload struct {
				Reason string `json:"reason"`
			}
			_ = json.Unmarshal(ev.Payload, &payload)
			program.Send(StalledMsg{Reason: payload.Reason})
		}),
	}
}
