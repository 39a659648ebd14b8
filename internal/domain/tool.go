package domain

import "context"

// Tool call types reported by the hosted assistant.
const (
	ToolTypeCodeInterpreter = "code_interpreter"
	ToolTypeFunction        = "function"
	ToolTypeFileSearch      = "file_search"
)

// FunctionCall names a function and carries its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is a request from the assistant to run an external capability.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// ToolOutput is the result of one tool call, submitted back to the run.
type ToolOutput struct {
	Output     string `json:"output"`
	ToolCallID string `json:"tool_call_id"`
}

// PendingAction is a run paused on tool calls that the client must answer.
// It exists only between a RequiresAction event and the batch submission.
type PendingAction struct {
	RunID     string
	ToolCalls []ToolCall
}

// FunctionHandler resolves a single tool call into its output string.
type FunctionHandler func(ctx context.Context, call ToolCall) (string, error)
