package chat

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// startCmd bootstraps the thread in a background goroutine.
func startCmd(ctx context.Context, conv Conversation) tea.Cmd {
	return func() tea.Msg {
		return StartDoneMsg{Err: conv.Start(ctx)}
	}
}

// sendMessageCmd follows one message's run chain in a background goroutine.
// Progress arrives separately as snapshots.
func sendMessageCmd(ctx context.Context, conv Conversation, text string) tea.Cmd {
	return func() tea.Msg {
		return SendDoneMsg{Err: conv.Send(ctx, text)}
	}
}
