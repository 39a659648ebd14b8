package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"lawggle-ai/internal/domain"
)

// FrameType identifies the kind of frame exchanged over the websocket.
type FrameType string

const (
	// Client to server.
	FrameTypeMessage FrameType = "message"
	FrameTypeActions FrameType = "actions"

	// Server to client.
	FrameTypeEvent FrameType = "event"
	FrameTypeEnd   FrameType = "end"
	FrameTypeError FrameType = "error"
)

// Frame is the envelope exchanged over the websocket transport. Each client
// frame starts one run stream, answered by event frames and a closing end
// or error frame.
type Frame struct {
	Type FrameType `json:"type"`

	Content         string              `json:"content,omitempty"`         // message
	RunID           string              `json:"runId,omitempty"`           // actions
	ToolCallOutputs []domain.ToolOutput `json:"toolCallOutputs,omitempty"` // actions

	Kind  domain.StreamEventKind `json:"kind,omitempty"` // event
	Data  json.RawMessage        `json:"data,omitempty"` // event
	Error string                 `json:"error,omitempty"`
	Code  domain.ErrorCode       `json:"code,omitempty"`
}

// EventFrame wraps a stream event for the wire.
func EventFrame(ev domain.StreamEvent) (Frame, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s: %w", ev.Kind(), err)
	}
	return Frame{Type: FrameTypeEvent, Kind: ev.Kind(), Data: data}, nil
}

const wsWriteTimeout = 5 * time.Second

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	threadID := mux.Vars(r)["threadId"]

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: append([]string{
			"localhost",
			"localhost:*",
			"127.0.0.1",
			"127.0.0.1:*",
			"[::1]",
			"[::1]:*",
		}, s.cfg.AllowedOrigins...),
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	if s.cfg.MaxBodyBytes > 0 {
		ws.SetReadLimit(s.cfg.MaxBodyBytes)
	}
	defer ws.CloseNow()

	s.logger.Debug("websocket connected", "thread_id", threadID)
	ctx := r.Context()
	for {
		var frame Frame
		if err := wsjson.Read(ctx, ws, &frame); err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && !errors.Is(err, context.Canceled) {
				s.logger.Debug("websocket read ended", "thread_id", threadID, "error", err)
			}
			ws.Close(websocket.StatusNormalClosure, "")
			return
		}
		if err := s.serveFrame(ctx, ws, threadID, frame); err != nil {
			s.logger.Debug("websocket write failed", "thread_id", threadID, "error", err)
			return
		}
	}
}

// serveFrame runs one client request to completion. Only write failures
// are returned; request failures are reported to the client as error frames.
func (s *Server) serveFrame(ctx context.Context, ws *websocket.Conn, threadID string, frame Frame) error {
	sctx, cancel := s.streamContext(ctx)
	defer cancel()

	start := time.Now()
	var (
		events <-chan domain.StreamEvent
		err    error
	)
	switch frame.Type {
	case FrameTypeMessage:
		if frame.Content == "" {
			err = fmt.Errorf("%w: content is required", domain.ErrInvalidInput)
			break
		}
		events, err = s.svc.StreamMessage(sctx, threadID, frame.Content)
	case FrameTypeActions:
		if frame.RunID == "" {
			err = fmt.Errorf("%w: runId is required", domain.ErrInvalidInput)
			break
		}
		events, err = s.svc.SubmitToolOutputs(sctx, threadID, frame.RunID, frame.ToolCallOutputs)
		if err == nil {
			s.publish(sctx, domain.EventActionsSubmitted, threadID, actionsPayload{
				RunID: frame.RunID, Outputs: len(frame.ToolCallOutputs),
			})
		}
	default:
		err = fmt.Errorf("%w: unknown frame type %q", domain.ErrInvalidInput, frame.Type)
	}
	if err != nil {
		s.metrics.Errors.Add(1)
		s.logger.Warn("websocket request failed", "thread_id", threadID, "frame", string(frame.Type), "error", err)
		msg := err.Error()
		if statusFor(err) >= http.StatusInternalServerError {
			msg = http.StatusText(statusFor(err))
		}
		return s.writeFrame(ctx, ws, Frame{Type: FrameTypeError, Error: msg, Code: domain.ErrorCodeOf(err)})
	}

	sent := 0
	for ev := range events {
		out, err := EventFrame(ev)
		if err != nil {
			s.logger.Error("drop stream event", "error", err)
			continue
		}
		if err := s.writeFrame(ctx, ws, out); err != nil {
			cancel()
			for range events {
			}
			return err
		}
		sent++
	}
	s.publish(sctx, domain.EventRunStreamed, threadID, runPayload{
		RunID: frame.RunID, Transport: "websocket", Events: sent, Duration: time.Since(start).String(),
	})

	if sctx.Err() != nil && ctx.Err() == nil {
		return s.writeFrame(ctx, ws, Frame{Type: FrameTypeError, Error: "stream timed out", Code: domain.CodeTimeout})
	}
	return s.writeFrame(ctx, ws, Frame{Type: FrameTypeEnd})
}

func (s *Server) writeFrame(ctx context.Context, ws *websocket.Conn, f Frame) error {
	wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(wctx, ws, f)
}
