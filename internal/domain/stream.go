package domain

import (
	"encoding/json"
	"fmt"
)

// StreamEventKind is the wire label of a run stream event.
type StreamEventKind string

const (
	KindTextCreated     StreamEventKind = "textCreated"
	KindTextDelta       StreamEventKind = "textDelta"
	KindImageFileDone   StreamEventKind = "imageFileDone"
	KindToolCallCreated StreamEventKind = "toolCallCreated"
	KindToolCallDelta   StreamEventKind = "toolCallDelta"
	KindRequiresAction  StreamEventKind = "requiresAction"
	KindRunCompleted    StreamEventKind = "runCompleted"
)

// StreamEvent is one event of an assistant run stream. The set of
// implementations is closed: only the types in this file satisfy it.
type StreamEvent interface {
	Kind() StreamEventKind
	streamEvent()
}

// AnnotationTypeFilePath marks an annotation that points at a generated file.
const AnnotationTypeFilePath = "file_path"

// FilePathRef identifies the file an annotation refers to.
type FilePathRef struct {
	FileID string `json:"file_id"`
}

// Annotation is a citation attached to streamed text. For file_path
// annotations, Text is the placeholder to be rewritten into a file URL.
type Annotation struct {
	Type       string       `json:"type"`
	Text       string       `json:"text"`
	StartIndex int          `json:"start_index,omitempty"`
	EndIndex   int          `json:"end_index,omitempty"`
	FilePath   *FilePathRef `json:"file_path,omitempty"`
}

// TextCreated opens a new assistant text message.
type TextCreated struct{}

// TextDelta carries incremental text and/or annotations for the open message.
type TextDelta struct {
	Value       string       `json:"value,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// ImageFileDone reports a generated image that is ready to be served.
type ImageFileDone struct {
	FileID string `json:"file_id"`
}

// ToolCallCreated reports that the run started a tool call.
type ToolCallCreated struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type"`
}

// ToolCallDelta carries incremental tool input, e.g. code interpreter source.
type ToolCallDelta struct {
	Type  string `json:"type"`
	Input string `json:"input,omitempty"`
}

// RequiresAction pauses the run until outputs for ToolCalls are submitted.
type RequiresAction struct {
	RunID     string     `json:"runId"`
	ToolCalls []ToolCall `json:"toolCalls"`
}

// RunCompleted is the terminal event of a successful run.
type RunCompleted struct{}

func (TextCreated) Kind() StreamEventKind     { return KindTextCreated }
func (TextDelta) Kind() StreamEventKind       { return KindTextDelta }
func (ImageFileDone) Kind() StreamEventKind   { return KindImageFileDone }
func (ToolCallCreated) Kind() StreamEventKind { return KindToolCallCreated }
func (ToolCallDelta) Kind() StreamEventKind   { return KindToolCallDelta }
func (RequiresAction) Kind() StreamEventKind  { return KindRequiresAction }
func (RunCompleted) Kind() StreamEventKind    { return KindRunCompleted }

func (TextCreated) streamEvent()     {}
func (TextDelta) streamEvent()       {}
func (ImageFileDone) streamEvent()   {}
func (ToolCallCreated) streamEvent() {}
func (ToolCallDelta) streamEvent()   {}
func (RequiresAction) streamEvent()  {}
func (RunCompleted) streamEvent()    {}

// DecodeStreamEvent rebuilds a StreamEvent from its wire label and JSON payload.
// An empty payload is accepted for events that carry no fields.
func DecodeStreamEvent(kind string, data []byte) (StreamEvent, error) {
	var ev StreamEvent
	switch StreamEventKind(kind) {
	case KindTextCreated:
		return TextCreated{}, nil
	case KindRunCompleted:
		return RunCompleted{}, nil
	case KindTextDelta:
		var e TextDelta
		if err := unmarshalPayload(data, &e); err != nil {
			return nil, err
		}
		ev = e
	case KindImageFileDone:
		var e ImageFileDone
		if err := unmarshalPayload(data, &e); err != nil {
			return nil, err
		}
		ev = e
	case KindToolCallCreated:
		var e ToolCallCreated
		if err := unmarshalPayload(data, &e); err != nil {
			return nil, err
		}
		ev = e
	case KindToolCallDelta:
		var e ToolCallDelta
		if err := unmarshalPayload(data, &e); err != nil {
			return nil, err
		}
		ev = e
	case KindRequiresAction:
		var e RequiresAction
		if err := unmarshalPayload(data, &e); err != nil {
			return nil, err
		}
		ev = e
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, kind)
	}
	return ev, nil
}

func unmarshalPayload(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decode stream event: %v", ErrInvalidInput, err)
	}
	return nil
}
