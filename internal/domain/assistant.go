package domain

import (
	"context"
	"io"
)

// File is a hosted file streamed back to a caller. Body must be closed.
type File struct {
	ID   string
	Name string
	Size int64
	Body io.ReadCloser
}

// AssistantService is the hosted assistant as seen by the gateway.
type AssistantService interface {
	// CreateThread opens a new conversation and returns its identifier.
	CreateThread(ctx context.Context) (string, error)
	// StreamMessage adds a user message to the thread and starts a run.
	// The returned channel is closed when the run stream ends.
	StreamMessage(ctx context.Context, threadID, content string) (<-chan StreamEvent, error)
	// SubmitToolOutputs resumes a paused run with the given outputs.
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (<-chan StreamEvent, error)
	// File fetches a hosted file and its metadata.
	File(ctx context.Context, fileID string) (*File, error)
}
