// Package assistant adapts the hosted assistants API to domain.AssistantService.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/trace"

	"lawggle-ai/internal/adapter/sse"
	"lawggle-ai/internal/domain"
	"lawggle-ai/internal/infra/config"
	"lawggle-ai/internal/infra/tracer"
)

const betaHeader = "assistants=v2"

// Client talks to the hosted assistants API. Thread, message and file calls
// go through the go-openai SDK; run streams are raw event-stream requests on
// the same pooled HTTP client.
type Client struct {
	api         *openai.Client
	http        *http.Client
	baseURL     string
	apiKey      string
	assistantID string
	breaker     *breaker
	logger      *slog.Logger
}

// New builds a Client from cfg.
func New(cfg config.AssistantConfig, logger *slog.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	httpClient := NewHTTPClient(cfg)

	sdkCfg := openai.DefaultConfig(cfg.APIKey)
	sdkCfg.BaseURL = baseURL
	sdkCfg.HTTPClient = httpClient

	return &Client{
		api:         openai.NewClientWithConfig(sdkCfg),
		http:        httpClient,
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		assistantID: cfg.AssistantID,
		breaker:     newBreaker(cfg.CircuitBreaker, logger),
		logger:      logger,
	}
}

// CreateThread implements domain.AssistantService.
func (c *Client) CreateThread(ctx context.Context) (id string, err error) {
	ctx, span := tracer.StartSpan(ctx, "assistant.create_thread")
	defer func() { tracer.End(span, err) }()

	err = c.breaker.do(func() error {
		thread, err := c.api.CreateThread(ctx, openai.ThreadRequest{})
		if err != nil {
			return mapSDKError(err)
		}
		id = thread.ID
		return nil
	})
	if err != nil {
		return "", domain.NewSubSystemError("thread", "assistant.CreateThread", err, "")
	}
	span.SetAttributes(tracer.StringAttr("thread.id", id))
	c.logger.Debug("thread created", "thread_id", id)
	return id, nil
}

// StreamMessage implements domain.AssistantService. It appends content to
// the thread as a user message and starts a streamed run.
func (c *Client) StreamMessage(ctx context.Context, threadID, content string) (<-chan domain.StreamEvent, error) {
	spanCtx, span := tracer.StartSpan(ctx, "assistant.stream_message",
		trace.WithAttributes(tracer.StringAttr("thread.id", threadID)))
	var err error
	defer func() { tracer.End(span, err) }()

	err = c.breaker.do(func() error {
		_, err := c.api.CreateMessage(spanCtx, threadID, openai.MessageRequest{
			Role:    "user",
			Content: content,
		})
		return mapSDKError(err)
	})
	if err != nil {
		err = domain.NewSubSystemError("thread", "assistant.StreamMessage", err, threadID)
		return nil, err
	}

	body := map[string]any{"assistant_id": c.assistantID, "stream": true}
	var events <-chan domain.StreamEvent
	events, err = c.stream(ctx, "/threads/"+url.PathEscape(threadID)+"/runs", body)
	if err != nil {
		err = domain.NewSubSystemError("thread", "assistant.StreamMessage", err, threadID)
		return nil, err
	}
	return events, nil
}

// SubmitToolOutputs implements domain.AssistantService.
func (c *Client) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []domain.ToolOutput) (<-chan domain.StreamEvent, error) {
	_, span := tracer.StartSpan(ctx, "assistant.submit_tool_outputs",
		trace.WithAttributes(
			tracer.StringAttr("thread.id", threadID),
			tracer.StringAttr("run.id", runID),
			tracer.IntAttr("tool_outputs", len(outputs)),
		))
	var err error
	defer func() { tracer.End(span, err) }()

	if outputs == nil {
		outputs = []domain.ToolOutput{}
	}
	body := map[string]any{"tool_outputs": outputs, "stream": true}
	path := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID) + "/submit_tool_outputs"

	var events <-chan domain.StreamEvent
	events, err = c.stream(ctx, path, body)
	if err != nil {
		err = domain.NewSubSystemError("run", "assistant.SubmitToolOutputs", err, runID)
		return nil, err
	}
	return events, nil
}

// File implements domain.AssistantService. The caller must close File.Body.
func (c *Client) File(ctx context.Context, fileID string) (f *domain.File, err error) {
	ctx, span := tracer.StartSpan(ctx, "assistant.file",
		trace.WithAttributes(tracer.StringAttr("file.id", fileID)))
	defer func() { tracer.End(span, err) }()

	err = c.breaker.do(func() error {
		meta, err := c.api.GetFile(ctx, fileID)
		if err != nil {
			return mapSDKError(err)
		}
		content, err := c.api.GetFileContent(ctx, fileID)
		if err != nil {
			return mapSDKError(err)
		}
		f = &domain.File{ID: fileID, Name: meta.FileName, Size: int64(meta.Bytes), Body: content}
		return nil
	})
	if err != nil {
		return nil, domain.NewSubSystemError("file", "assistant.File", err, fileID)
	}
	return f, nil
}

// stream opens a run event-stream. The body stream is read with the caller's
// ctx, not the span's, so it outlives this call.
func (c *Client) stream(ctx context.Context, path string, body any) (<-chan domain.StreamEvent, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	headers := map[string]string{"OpenAI-Beta": betaHeader}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	var resp *http.Response
	err = c.breaker.do(func() error {
		var err error
		resp, err = doStreamRequest(ctx, c.http, c.baseURL+path, payload, headers)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pump(ctx, sse.Read(ctx, resp.Body), c.logger), nil
}

// mapSDKError classifies go-openai errors by HTTP status.
func mapSDKError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return mapHTTPError(apiErr.HTTPStatusCode, []byte(apiErr.Message))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return mapHTTPError(reqErr.HTTPStatusCode, []byte(reqErr.Error()))
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrProviderError, err)
}

var _ domain.AssistantService = (*Client)(nil)
