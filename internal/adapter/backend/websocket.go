package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"lawggle-ai/internal/adapter/gateway"
	"lawggle-ai/internal/domain"
	"lawggle-ai/internal/infra/config"
)

// WebSocketClient streams runs over the gateway's websocket route. Thread
// creation and file downloads still use plain HTTP.
type WebSocketClient struct {
	*Client
	wsBase string
}

// NewWebSocketClient builds a websocket client for cfg.BaseURL.
func NewWebSocketClient(cfg config.ClientConfig, logger *slog.Logger) *WebSocketClient {
	c := NewClient(cfg, logger)
	base := c.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return &WebSocketClient{Client: c, wsBase: base}
}

// StreamMessage implements domain.AssistantService.
func (c *WebSocketClient) StreamMessage(ctx context.Context, threadID, content string) (<-chan domain.StreamEvent, error) {
	return c.stream(ctx, "backend.StreamMessage", threadID, gateway.Frame{
		Type:    gateway.FrameTypeMessage,
		Content: content,
	})
}

// SubmitToolOutputs implements domain.AssistantService.
func (c *WebSocketClient) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []domain.ToolOutput) (<-chan domain.StreamEvent, error) {
	return c.stream(ctx, "backend.SubmitToolOutputs", threadID, gateway.Frame{
		Type:            gateway.FrameTypeActions,
		RunID:           runID,
		ToolCallOutputs: outputs,
	})
}

// stream dials a connection for one request. The first frame is read before
// returning so that a rejected request surfaces as an error rather than an
// empty stream.
func (c *WebSocketClient) stream(ctx context.Context, op, threadID string, req gateway.Frame) (<-chan domain.StreamEvent, error) {
	u := c.wsBase + "/api/assistants/threads/" + url.PathEscape(threadID) + "/ws"
	if c.token != "" {
		u += "?token=" + url.QueryEscape(c.token)
	}

	ws, resp, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		if resp != nil {
			return nil, remoteError(op, resp.StatusCode, "", err.Error())
		}
		return nil, domain.NewDomainError(op, fmt.Errorf("%w: dial: %v", domain.ErrProviderError, err), "")
	}
	if err := wsjson.Write(ctx, ws, req); err != nil {
		ws.CloseNow()
		return nil, domain.NewDomainError(op, fmt.Errorf("%w: write: %v", domain.ErrStreamFailed, err), "")
	}

	var first gateway.Frame
	if err := wsjson.Read(ctx, ws, &first); err != nil {
		ws.CloseNow()
		return nil, domain.NewDomainError(op, fmt.Errorf("%w: read: %v", domain.ErrStreamFailed, err), "")
	}
	if first.Type == gateway.FrameTypeError {
		ws.Close(websocket.StatusNormalClosure, "")
		return nil, remoteError(op, 0, first.Code, first.Error)
	}

	out := make(chan domain.StreamEvent)
	go func() {
		defer close(out)
		defer ws.CloseNow()

		frame := first
		for {
			switch frame.Type {
			case gateway.FrameTypeEnd:
				ws.Close(websocket.StatusNormalClosure, "")
				return
			case gateway.FrameTypeError:
				c.logger.Warn("stream ended with error", "op", op, "code", string(frame.Code), "error", frame.Error)
				return
			case gateway.FrameTypeEvent:
				if ev, ok := decode(c.logger, string(frame.Kind), frame.Data); ok {
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
			default:
				c.logger.Debug("skipping unexpected frame", "type", string(frame.Type))
			}

			frame = gateway.Frame{}
			if err := wsjson.Read(ctx, ws, &frame); err != nil {
				c.logger.Warn("stream ended early", "op", op, "error", err)
				return
			}
		}
	}()
	return out, nil
}

var _ domain.AssistantService = (*WebSocketClient)(nil)
