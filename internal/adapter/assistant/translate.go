package assistant

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/tidwall/gjson"

	"lawggle-ai/internal/adapter/sse"
	"lawggle-ai/internal/domain"
)

// Upstream event names of the hosted run stream that are acted on.
const (
	upMessageDelta   = "thread.message.delta"
	upRunStepDelta   = "thread.run.step.delta"
	upRequiresAction = "thread.run.requires_action"
	upRunCompleted   = "thread.run.completed"
	upRunFailed      = "thread.run.failed"
	upRunCancelled   = "thread.run.cancelled"
	upRunExpired     = "thread.run.expired"
	upError          = "error"
)

// translator turns hosted run-stream events into widget stream events. It
// remembers which content parts and tool calls it has already opened, so a
// "created" event precedes the first delta of each.
type translator struct {
	logger    *slog.Logger
	parts     map[string]bool
	toolTypes map[string]string
}

func newTranslator(logger *slog.Logger) *translator {
	return &translator{
		logger:    logger,
		parts:     make(map[string]bool),
		toolTypes: make(map[string]string),
	}
}

// translate maps one upstream event to zero or more widget events.
func (t *translator) translate(name string, data []byte) []domain.StreamEvent {
	if !gjson.ValidBytes(data) {
		t.logger.Debug("assistant stream: skipping non-json event", "event", name)
		return nil
	}

	switch name {
	case upMessageDelta:
		return t.messageDelta(gjson.ParseBytes(data))
	case upRunStepDelta:
		return t.runStepDelta(gjson.ParseBytes(data))
	case upRequiresAction:
		return t.requiresAction(gjson.ParseBytes(data))
	case upRunCompleted:
		return []domain.StreamEvent{domain.RunCompleted{}}
	case upRunFailed, upRunCancelled, upRunExpired:
		run := gjson.ParseBytes(data)
		t.logger.Warn("assistant run ended without completing",
			"event", name,
			"run_id", run.Get("id").String(),
			"error", run.Get("last_error.message").String(),
		)
	case upError:
		t.logger.Warn("assistant stream error", "error", gjson.GetBytes(data, "message").String())
	}
	return nil
}

func (t *translator) messageDelta(msg gjson.Result) []domain.StreamEvent {
	msgID := msg.Get("id").String()
	var out []domain.StreamEvent

	msg.Get("delta.content").ForEach(func(_, part gjson.Result) bool {
		key := msgID + "/" + strconv.FormatInt(part.Get("index").Int(), 10)
		opened := t.parts[key]
		t.parts[key] = true

		switch part.Get("type").String() {
		case "text":
			if !opened {
				out = append(out, domain.TextCreated{})
			}
			out = append(out, domain.TextDelta{
				Value:       part.Get("text.value").String(),
				Annotations: annotations(part.Get("text.annotations")),
			})
		case "image_file":
			if !opened {
				out = append(out, domain.ImageFileDone{FileID: part.Get("image_file.file_id").String()})
			}
		}
		return true
	})
	return out
}

func annotations(arr gjson.Result) []domain.Annotation {
	if !arr.IsArray() {
		return nil
	}
	var out []domain.Annotation
	arr.ForEach(func(_, a gjson.Result) bool {
		ann := domain.Annotation{
			Type:       a.Get("type").String(),
			Text:       a.Get("text").String(),
			StartIndex: int(a.Get("start_index").Int()),
			EndIndex:   int(a.Get("end_index").Int()),
		}
		if id := a.Get("file_path.file_id"); id.Exists() {
			ann.FilePath = &domain.FilePathRef{FileID: id.String()}
		}
		out = append(out, ann)
		return true
	})
	return out
}

func (t *translator) runStepDelta(step gjson.Result) []domain.StreamEvent {
	stepID := step.Get("id").String()
	var out []domain.StreamEvent

	step.Get("delta.step_details.tool_calls").ForEach(func(_, call gjson.Result) bool {
		key := stepID + "/" + strconv.FormatInt(call.Get("index").Int(), 10)
		typ, opened := t.toolTypes[key]
		if v := call.Get("type").String(); v != "" {
			typ = v
		}
		t.toolTypes[key] = typ

		if !opened {
			out = append(out, domain.ToolCallCreated{ID: call.Get("id").String(), Type: typ})
		}
		if input := call.Get("code_interpreter.input").String(); input != "" {
			out = append(out, domain.ToolCallDelta{Type: typ, Input: input})
		}
		return true
	})
	return out
}

func (t *translator) requiresAction(run gjson.Result) []domain.StreamEvent {
	raw := run.Get("required_action.submit_tool_outputs.tool_calls").Raw
	var calls []domain.ToolCall
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &calls); err != nil {
			t.logger.Warn("assistant stream: bad tool_calls payload", "error", err)
			return nil
		}
	}
	return []domain.StreamEvent{domain.RequiresAction{
		RunID:     run.Get("id").String(),
		ToolCalls: calls,
	}}
}

// pump translates events until the upstream ends or ctx is cancelled. The
// returned channel is closed when translation stops.
func pump(ctx context.Context, events <-chan sse.Event, logger *slog.Logger) <-chan domain.StreamEvent {
	out := make(chan domain.StreamEvent, 16)
	go func() {
		defer close(out)
		t := newTranslator(logger)
		for ev := range events {
			if ev.Err != nil {
				logger.Warn("assistant stream interrupted", "error", ev.Err)
				return
			}
			for _, se := range t.translate(ev.Name, ev.Data) {
				select {
				case out <- se:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
