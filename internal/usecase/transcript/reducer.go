package transcript

import (
	"fmt"
	"strings"

	"lawggle-ai/internal/domain"
)

// State is everything the chat widget renders.
type State struct {
	Messages Transcript
	// InputDisabled blocks new submissions while a run is in flight.
	InputDisabled bool
	// Loading drives the "thinking" indicator.
	Loading bool
}

// NewState returns the idle state, optionally seeded with a greeting.
func NewState(greeting string) State {
	if greeting == "" {
		return State{}
	}
	return State{Messages: New(domain.Message{Role: domain.RoleAssistant, Text: greeting})}
}

// Submit records a user message and moves to awaiting-response.
func Submit(s State, text string) State {
	s.Messages = s.Messages.Append(domain.Message{Role: domain.RoleUser, Text: text})
	s.InputDisabled = true
	s.Loading = true
	return s
}

// Stall force-resets s to idle after a stream ended without a terminal event.
// Apply never does this on its own.
func Stall(s State) State {
	s.InputDisabled = false
	s.Loading = false
	return s
}

// Apply folds one stream event into s. A non-nil PendingAction is returned
// for RequiresAction; the caller owns dispatching it. Errors leave s unchanged.
func Apply(s State, ev domain.StreamEvent) (State, *domain.PendingAction, error) {
	var err error
	switch e := ev.(type) {
	case domain.TextCreated:
		s.Messages = s.Messages.Append(domain.Message{Role: domain.RoleAssistant})

	case domain.TextDelta:
		s.Messages, err = applyTextDelta(s.Messages, e)

	case domain.ImageFileDone:
		s.Messages, err = s.Messages.AmendLast(appendText(imageMarkdown(e.FileID)))

	case domain.ToolCallCreated:
		if e.Type == domain.ToolTypeCodeInterpreter {
			s.Messages = s.Messages.Append(domain.Message{Role: domain.RoleCode})
		}

	case domain.ToolCallDelta:
		if e.Type == domain.ToolTypeCodeInterpreter && e.Input != "" {
			s.Messages, err = s.Messages.AmendLast(appendText(e.Input))
		}

	case domain.RequiresAction:
		s.InputDisabled = true
		calls := make([]domain.ToolCall, len(e.ToolCalls))
		copy(calls, e.ToolCalls)
		return s, &domain.PendingAction{RunID: e.RunID, ToolCalls: calls}, nil

	case domain.RunCompleted:
		s.InputDisabled = false
		s.Loading = false

	default:
		return s, nil, fmt.Errorf("%w: %T", domain.ErrUnknownEvent, ev)
	}
	if err != nil {
		return s, nil, domain.NewDomainError("transcript.Apply", err, string(ev.Kind()))
	}
	return s, nil, nil
}

// applyTextDelta appends the delta text first, then rewrites file_path
// placeholders in the updated text.
func applyTextDelta(t Transcript, d domain.TextDelta) (Transcript, error) {
	var err error
	if d.Value != "" {
		if t, err = t.AmendLast(appendText(d.Value)); err != nil {
			return t, err
		}
	}
	if len(d.Annotations) == 0 {
		return t, nil
	}
	return t.AmendLast(func(text string) string {
		for _, a := range d.Annotations {
			if a.Type != domain.AnnotationTypeFilePath || a.FilePath == nil || a.Text == "" {
				continue
			}
			// Every literal occurrence is replaced, including ones the model
			// wrote itself.
			text = strings.ReplaceAll(text, a.Text, domain.FileURL(a.FilePath.FileID))
		}
		return text
	})
}

func appendText(suffix string) func(string) string {
	return func(text string) string { return text + suffix }
}

func imageMarkdown(fileID string) string {
	return "\n![" + fileID + "](" + domain.FileURL(fileID) + ")\n"
}

// Replay folds evs into s in order, collecting pending actions. It stops at
// the first error.
func Replay(s State, evs ...domain.StreamEvent) (State, []domain.PendingAction, error) {
	var actions []domain.PendingAction
	for _, ev := range evs {
		next, action, err := Apply(s, ev)
		if err != nil {
			return s, actions, err
		}
		s = next
		if action != nil {
			actions = append(actions, *action)
		}
	}
	return s, actions, nil
}
