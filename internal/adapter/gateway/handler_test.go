package gateway

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
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lawggle-ai/internal/adapter/sse"
	"lawggle-ai/internal/domain"
	"lawggle-ai/internal/infra/config"
)

// --- test doubles ---

type fakeAssistant struct {
	createThread      func(ctx context.Context) (string, error)
	streamMessage     func(ctx context.Context, threadID, content string) (<-chan domain.StreamEvent, error)
	submitToolOutputs func(ctx context.Context, threadID, runID string, outputs []domain.ToolOutput) (<-chan domain.StreamEvent, error)
	file              func(ctx context.Context, fileID string) (*domain.File, error)
}

func (f *fakeAssistant) CreateThread(ctx context.Context) (string, error) {
	return f.createThread(ctx)
}

func (f *fakeAssistant) StreamMessage(ctx context.Context, threadID, content string) (<-chan domain.StreamEvent, error) {
	return f.streamMessage(ctx, threadID, content)
}

func (f *fakeAssistant) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []domain.ToolOutput) (<-chan domain.StreamEvent, error) {
	return f.submitToolOutputs(ctx, threadID, runID, outputs)
}

func (f *fakeAssistant) File(ctx context.Context, fileID string) (*domain.File, error) {
	return f.file(ctx, fileID)
}

// recordingBus delivers nothing and remembers every published event.
type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, e domain.Event) {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}

func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(domain.EventHandler) func()                { return func() {} }
func (b *recordingBus) Close()                                                 {}

func (b *recordingBus) types() []domain.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.EventType, len(b.events))
	for i, e := range b.events {
		out[i] = e.Type
	}
	return out
}

func streamOf(events ...domain.StreamEvent) <-chan domain.StreamEvent {
	ch := make(chan domain.StreamEvent, len(events))
	for _, e := range events {
		ch <- e
	}
	close(ch)
	return ch
}

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		Addr:          "127.0.0.1:0",
		StreamTimeout: 5 * time.Second,
		MaxBodyBytes:  1 << 20,
	}
}

func newTestHandler(t *testing.T, svc *fakeAssistant, cfg config.ServerConfig) (http.Handler, *recordingBus) {
	t.Helper()
	bus := &recordingBus{}
	srv := NewServer(svc, bus, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return srv.Handler(ctx), bus
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error, body.Code
}

// readSSE parses a recorded event-stream body back into stream events.
func readSSE(t *testing.T, body []byte) []domain.StreamEvent {
	t.Helper()
	var out []domain.StreamEvent
	for ev := range sse.Read(context.Background(), io.NopCloser(bytes.NewReader(body))) {
		require.NoError(t, ev.Err)
		se, err := domain.DecodeStreamEvent(ev.Name, ev.Data)
		require.NoError(t, err)
		out = append(out, se)
	}
	return out
}

// --- tests ---

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t, &fakeAssistant{}, testServerConfig())

	rec := do(h, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCreateThread(t *testing.T) {
	svc := &fakeAssistant{createThread: func(context.Context) (string, error) { return "thread_abc", nil }}
	h, bus := newTestHandler(t, svc, testServerConfig())

	rec := do(h, http.MethodPost, "/api/assistants/threads", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"threadId":"thread_abc"}`, rec.Body.String())
	assert.Equal(t, []domain.EventType{domain.EventThreadCreated}, bus.types())
}

func TestCreateThreadErrorStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		code     domain.ErrorCode
		exposeIt bool
	}{
		{"invalid", fmt.Errorf("%w: bad", domain.ErrInvalidInput), http.StatusBadRequest, domain.CodeInvalidInput, true},
		{"not found", domain.NewSubSystemError("thread", "op", domain.ErrNotFound, "t1"), http.StatusNotFound, domain.CodeThreadNotFound, true},
		{"auth", domain.ErrAuthInvalid, http.StatusUnauthorized, domain.CodeAuthInvalid, true},
		{"rate limit", domain.ErrRateLimit, http.StatusTooManyRequests, domain.CodeRateLimit, true},
		{"circuit open", domain.ErrCircuitOpen, http.StatusServiceUnavailable, domain.CodeCircuitOpen, false},
		{"provider", fmt.Errorf("%w: upstream said no", domain.ErrProviderError), http.StatusBadGateway, domain.CodeProviderError, false},
		{"unclassified", errors.New("boom"), http.StatusBadGateway, domain.CodeUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeAssistant{createThread: func(context.Context) (string, error) { return "", tt.err }}
			h, bus := newTestHandler(t, svc, testServerConfig())

			rec := do(h, http.MethodPost, "/api/assistants/threads", "")
			assert.Equal(t, tt.status, rec.Code)
			msg, code := decodeError(t, rec)
			assert.Equal(t, string(tt.code), code)
			if tt.exposeIt {
				assert.Equal(t, tt.err.Error(), msg)
			} else {
				assert.Equal(t, http.StatusText(tt.status), msg)
			}
			assert.Empty(t, bus.types())
		})
	}
}

func TestMessagesStreamsEvents(t *testing.T) {
	var gotThread, gotContent string
	svc := &fakeAssistant{
		streamMessage: func(_ context.Context, threadID, content string) (<-chan domain.StreamEvent, error) {
			gotThread, gotContent = threadID, content
			return streamOf(
				domain.TextCreated{},
				domain.TextDelta{Value: "Hi"},
				domain.TextDelta{Value: " there"},
				domain.RunCompleted{},
			), nil
		},
	}
	h, bus := newTestHandler(t, svc, testServerConfig())

	rec := do(h, http.MethodPost, "/api/assistants/threads/t1/messages", `{"content":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "event: textDelta\ndata: {\"value\":\"Hi\"}\n\n")

	assert.Equal(t, "t1", gotThread)
	assert.Equal(t, "hello", gotContent)
	assert.Equal(t, []domain.StreamEvent{
		domain.TextCreated{},
		domain.TextDelta{Value: "Hi"},
		domain.TextDelta{Value: " there"},
		domain.RunCompleted{},
	}, readSSE(t, rec.Body.Bytes()))
	assert.Equal(t, []domain.EventType{domain.EventRunStreamed}, bus.types())
}

func TestMessagesValidation(t *testing.T) {
	svc := &fakeAssistant{
		streamMessage: func(context.Context, string, string) (<-chan domain.StreamEvent, error) {
			t.Fatal("upstream must not be called")
			return nil, nil
		},
	}
	cfg := testServerConfig()
	cfg.MaxBodyBytes = 32
	h, _ := newTestHandler(t, svc, cfg)

	tests := []struct {
		name   string
		body   string
		status int
		code   domain.ErrorCode
	}{
		{"empty content", `{"content":""}`, http.StatusBadRequest, domain.CodeInvalidInput},
		{"malformed", `{"content":`, http.StatusBadRequest, domain.CodeInvalidInput},
		{"too large", `{"content":"` + strings.Repeat("x", 64) + `"}`, http.StatusRequestEntityTooLarge, domain.CodePayloadTooBig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, http.MethodPost, "/api/assistants/threads/t1/messages", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			_, code := decodeError(t, rec)
			assert.Equal(t, string(tt.code), code)
		})
	}
}

func TestMessagesUnknownThread(t *testing.T) {
	svc := &fakeAssistant{
		streamMessage: func(_ context.Context, threadID, _ string) (<-chan domain.StreamEvent, error) {
			return nil, domain.NewSubSystemError("thread", "assistant.StreamMessage", domain.ErrNotFound, threadID)
		},
	}
	h, _ := newTestHandler(t, svc, testServerConfig())

	rec := do(h, http.MethodPost, "/api/assistants/threads/missing/messages", `{"content":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	_, code := decodeError(t, rec)
	assert.Equal(t, string(domain.CodeThreadNotFound), code)
}

func TestStreamTimeoutCutsStream(t *testing.T) {
	svc := &fakeAssistant{
		streamMessage: func(ctx context.Context, _, _ string) (<-chan domain.StreamEvent, error) {
			ch := make(chan domain.StreamEvent)
			go func() {
				defer close(ch)
				ch <- domain.TextCreated{}
				<-ctx.Done()
			}()
			return ch, nil
		},
	}
	cfg := testServerConfig()
	cfg.StreamTimeout = 50 * time.Millisecond
	h, _ := newTestHandler(t, svc, cfg)

	start := time.Now()
	rec := do(h, http.MethodPost, "/api/assistants/threads/t1/messages", `{"content":"hi"}`)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, []domain.StreamEvent{domain.TextCreated{}}, readSSE(t, rec.Body.Bytes()))
}

func TestActionsForwardsOutputs(t *testing.T) {
	var (
		gotRun     string
		gotOutputs []domain.ToolOutput
	)
	svc := &fakeAssistant{
		submitToolOutputs: func(_ context.Context, threadID, runID string, outputs []domain.ToolOutput) (<-chan domain.StreamEvent, error) {
			assert.Equal(t, "t1", threadID)
			gotRun, gotOutputs = runID, outputs
			return streamOf(domain.TextCreated{}, domain.TextDelta{Value: "done"}, domain.RunCompleted{}), nil
		},
	}
	h, bus := newTestHandler(t, svc, testServerConfig())

	body := `{"runId":"run_1","toolCallOutputs":[{"output":"42","tool_call_id":"call_a"},{"output":"","tool_call_id":"call_b"}]}`
	rec := do(h, http.MethodPost, "/api/assistants/threads/t1/actions", body)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "run_1", gotRun)
	assert.Equal(t, []domain.ToolOutput{
		{Output: "42", ToolCallID: "call_a"},
		{Output: "", ToolCallID: "call_b"},
	}, gotOutputs)
	assert.Len(t, readSSE(t, rec.Body.Bytes()), 3)
	assert.Equal(t, []domain.EventType{domain.EventActionsSubmitted, domain.EventRunStreamed}, bus.types())
}

func TestActionsRequiresRunID(t *testing.T) {
	h, _ := newTestHandler(t, &fakeAssistant{}, testServerConfig())

	rec := do(h, http.MethodPost, "/api/assistants/threads/t1/actions", `{"toolCallOutputs":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFileServed(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 600)...)
	svc := &fakeAssistant{
		file: func(_ context.Context, fileID string) (*domain.File, error) {
			assert.Equal(t, "file-1", fileID)
			return &domain.File{
				ID:   fileID,
				Name: "chart output.png",
				Size: int64(len(png)),
				Body: io.NopCloser(bytes.NewReader(png)),
			}, nil
		},
	}
	h, bus := newTestHandler(t, svc, testServerConfig())

	rec := do(h, http.MethodGet, "/api/files/file-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, png, rec.Body.Bytes())

	disposition, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "attachment", disposition)
	assert.Equal(t, "chart output.png", params["filename"])
	assert.Equal(t, []domain.EventType{domain.EventFileServed}, bus.types())
}

func TestFileNotFound(t *testing.T) {
	svc := &fakeAssistant{
		file: func(_ context.Context, fileID string) (*domain.File, error) {
			return nil, domain.NewSubSystemError("file", "assistant.File", domain.ErrNotFound, fileID)
		},
	}
	h, _ := newTestHandler(t, svc, testServerConfig())

	rec := do(h, http.MethodGet, "/api/files/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	_, code := decodeError(t, rec)
	assert.Equal(t, string(domain.CodeFileNotFound), code)
}

func TestBearerTokenGuardsAPI(t *testing.T) {
	svc := &fakeAssistant{createThread: func(context.Context) (string, error) { return "t1", nil }}
	cfg := testServerConfig()
	cfg.AuthTokens = []config.TokenConfig{{Name: "widget", Token: "s3cret"}}
	h, _ := newTestHandler(t, svc, cfg)

	rec := do(h, http.MethodPost, "/api/assistants/threads", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	_, code := decodeError(t, rec)
	assert.Equal(t, string(domain.CodeGatewayAuth), code)

	req := httptest.NewRequest(http.MethodPost, "/api/assistants/threads", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	ok := httptest.NewRecorder()
	h.ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)

	// Health stays open for load balancers.
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/health", "").Code)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	h, _ := newTestHandler(t, &fakeAssistant{}, testServerConfig())

	rec := do(h, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	_, code := decodeError(t, rec)
	assert.Equal(t, string(domain.CodeNotFound), code)

	rec = do(h, http.MethodGet, "/api/assistants/threads", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	_, code = decodeError(t, rec)
	assert.Equal(t, string(domain.CodeInvalidInput), code)

	rec = do(h, http.MethodDelete, "/api/files/file_1", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
