// Package backend is the widget's client for the gateway API. Threads and
// files go over plain HTTP; run streams arrive as server-sent events or,
// with the websocket transport, as JSON frames.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"lawggle-ai/internal/adapter/assistant"
	"lawggle-ai/internal/adapter/sse"
	"lawggle-ai/internal/domain"
	"lawggle-ai/internal/infra/config"
)

const maxErrorBody = 8 << 10

// Client talks to the gateway over HTTP with event-stream responses.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	logger  *slog.Logger
}

// NewClient builds an SSE client for cfg.BaseURL.
func NewClient(cfg config.ClientConfig, logger *slog.Logger) *Client {
	return &Client{
		http:    &http.Client{Transport: assistant.NewPooledTransport(0, 0, config.PoolConfig{})},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		logger:  logger,
	}
}

// New returns the client for the configured transport.
func New(cfg config.ClientConfig, logger *slog.Logger) (domain.AssistantService, error) {
	switch cfg.Transport {
	case "", config.TransportSSE:
		return NewClient(cfg, logger), nil
	case config.TransportWebSocket:
		return NewWebSocketClient(cfg, logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", domain.ErrInvalidInput, cfg.Transport)
	}
}

// CreateThread implements domain.AssistantService.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, "backend.CreateThread", http.MethodPost, "/api/assistants/threads", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		ThreadID string `json:"threadId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", domain.NewDomainError("backend.CreateThread", fmt.Errorf("%w: decode: %v", domain.ErrProviderError, err), "")
	}
	if out.ThreadID == "" {
		return "", domain.NewDomainError("backend.CreateThread", fmt.Errorf("%w: empty thread id", domain.ErrProviderError), "")
	}
	return out.ThreadID, nil
}

// StreamMessage implements domain.AssistantService.
func (c *Client) StreamMessage(ctx context.Context, threadID, content string) (<-chan domain.StreamEvent, error) {
	return c.stream(ctx, "backend.StreamMessage",
		"/api/assistants/threads/"+url.PathEscape(threadID)+"/messages",
		map[string]string{"content": content})
}

// SubmitToolOutputs implements domain.AssistantService.
func (c *Client) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []domain.ToolOutput) (<-chan domain.StreamEvent, error) {
	if outputs == nil {
		outputs = []domain.ToolOutput{}
	}
	return c.stream(ctx, "backend.SubmitToolOutputs",
		"/api/assistants/threads/"+url.PathEscape(threadID)+"/actions",
		map[string]any{"runId": runID, "toolCallOutputs": outputs})
}

// File implements domain.AssistantService. The name comes from the
// response's Content-Disposition header.
func (c *Client) File(ctx context.Context, fileID string) (*domain.File, error) {
	resp, err := c.do(ctx, "backend.File", http.MethodGet, "/api/files/"+url.PathEscape(fileID), nil)
	if err != nil {
		return nil, err
	}
	f := &domain.File{ID: fileID, Size: resp.ContentLength, Body: resp.Body}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		f.Name = params["filename"]
	}
	return f, nil
}

func (c *Client) stream(ctx context.Context, op, path string, body any) (<-chan domain.StreamEvent, error) {
	resp, err := c.do(ctx, op, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	out := make(chan domain.StreamEvent)
	go func() {
		defer close(out)
		for ev := range sse.Read(ctx, resp.Body) {
			if ev.Err != nil {
				c.logger.Warn("stream ended early", "op", op, "error", ev.Err)
				return
			}
			se, ok := decode(c.logger, ev.Name, ev.Data)
			if !ok {
				continue
			}
			select {
			case out <- se:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// do sends one request and returns the response when it is 2xx. Any other
// status is read and turned into a domain error.
func (c *Client) do(ctx context.Context, op, method, path string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, domain.NewDomainError(op, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err), "")
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, domain.NewDomainError(op, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err), "")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.NewDomainError(op, fmt.Errorf("%w: %v", domain.ErrTimeout, err), "")
		}
		return nil, domain.NewDomainError(op, fmt.Errorf("%w: %v", domain.ErrProviderError, err), "")
	}
	if resp.StatusCode/100 == 2 {
		return resp, nil
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := gjson.GetBytes(raw, "error").String()
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	return nil, remoteError(op, resp.StatusCode, domain.ErrorCode(gjson.GetBytes(raw, "code").String()), msg)
}

// decode rebuilds a stream event, skipping kinds this build does not know.
func decode(logger *slog.Logger, kind string, data []byte) (domain.StreamEvent, bool) {
	ev, err := domain.DecodeStreamEvent(kind, data)
	switch {
	case errors.Is(err, domain.ErrUnknownEvent):
		logger.Debug("skipping unknown stream event", "kind", kind)
		return nil, false
	case err != nil:
		logger.Warn("skipping malformed stream event", "kind", kind, "error", err)
		return nil, false
	}
	return ev, true
}

var _ domain.AssistantService = (*Client)(nil)
