package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"lawggle-ai/internal/domain"
	"lawggle-ai/internal/infra/config"
	"lawggle-ai/internal/usecase/eventbus"
)

func startTestServer(t *testing.T, svc *fakeAssistant, cfg config.ServerConfig) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := eventbus.New(logger)
	t.Cleanup(bus.Close)

	srv := NewServer(svc, bus, cfg, logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	require.Eventually(t, func() bool { return srv.BoundAddr() != "" }, 3*time.Second, 5*time.Millisecond,
		"server did not start in time")

	t.Cleanup(func() {
		srv.Stop(context.Background())
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Error("server did not stop")
		}
	})
	return srv
}

func dialWS(t *testing.T, srv *Server, path string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, "ws://"+srv.BoundAddr()+path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close(websocket.StatusNormalClosure, "") })
	return ws
}

// readUntilEnd collects frames up to and including the closing end or error frame.
func readUntilEnd(t *testing.T, ws *websocket.Conn) []Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var frames []Frame
	for {
		var f Frame
		require.NoError(t, wsjson.Read(ctx, ws, &f))
		frames = append(frames, f)
		if f.Type == FrameTypeEnd || f.Type == FrameTypeError {
			return frames
		}
	}
}

func TestServerLifecycle(t *testing.T) {
	srv := startTestServer(t, &fakeAssistant{}, testServerConfig())

	resp, err := http.Get("http://" + srv.BoundAddr() + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerMetricsFollowBus(t *testing.T) {
	svc := &fakeAssistant{createThread: func(context.Context) (string, error) { return "t1", nil }}
	srv := startTestServer(t, svc, testServerConfig())
	base := "http://" + srv.BoundAddr()

	resp, err := http.Post(base+"/api/assistants/threads", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Eventually(t, func() bool {
		resp, err := http.Get(base + "/api/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return strings.Contains(string(body), "lawggle_threads_created_total 1\n")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketMessageStream(t *testing.T) {
	svc := &fakeAssistant{
		streamMessage: func(_ context.Context, threadID, content string) (<-chan domain.StreamEvent, error) {
			assert.Equal(t, "t1", threadID)
			assert.Equal(t, "hello", content)
			return streamOf(
				domain.TextCreated{},
				domain.TextDelta{Value: "Hi"},
				domain.RunCompleted{},
			), nil
		},
	}
	srv := startTestServer(t, svc, testServerConfig())
	ws := dialWS(t, srv, "/api/assistants/threads/t1/ws")

	require.NoError(t, wsjson.Write(context.Background(), ws, Frame{Type: FrameTypeMessage, Content: "hello"}))
	frames := readUntilEnd(t, ws)

	require.Len(t, frames, 4)
	var events []domain.StreamEvent
	for _, f := range frames[:3] {
		require.Equal(t, FrameTypeEvent, f.Type)
		ev, err := domain.DecodeStreamEvent(string(f.Kind), f.Data)
		require.NoError(t, err)
		events = append(events, ev)
	}
	assert.Equal(t, []domain.StreamEvent{
		domain.TextCreated{},
		domain.TextDelta{Value: "Hi"},
		domain.RunCompleted{},
	}, events)
	assert.Equal(t, FrameTypeEnd, frames[3].Type)
}

func TestWebSocketActions(t *testing.T) {
	svc := &fakeAssistant{
		submitToolOutputs: func(_ context.Context, _, runID string, outputs []domain.ToolOutput) (<-chan domain.StreamEvent, error) {
			assert.Equal(t, "run_1", runID)
			assert.Equal(t, []domain.ToolOutput{{Output: "ok", ToolCallID: "call_1"}}, outputs)
			return streamOf(domain.RunCompleted{}), nil
		},
	}
	srv := startTestServer(t, svc, testServerConfig())
	ws := dialWS(t, srv, "/api/assistants/threads/t1/ws")

	require.NoError(t, wsjson.Write(context.Background(), ws, Frame{
		Type:            FrameTypeActions,
		RunID:           "run_1",
		ToolCallOutputs: []domain.ToolOutput{{Output: "ok", ToolCallID: "call_1"}},
	}))
	frames := readUntilEnd(t, ws)
	require.Len(t, frames, 2)
	assert.Equal(t, domain.KindRunCompleted, frames[0].Kind)
	assert.Equal(t, FrameTypeEnd, frames[1].Type)
}

func TestWebSocketErrorFrameKeepsConnection(t *testing.T) {
	calls := 0
	svc := &fakeAssistant{
		streamMessage: func(_ context.Context, threadID, _ string) (<-chan domain.StreamEvent, error) {
			calls++
			if calls == 1 {
				return nil, domain.NewSubSystemError("thread", "assistant.StreamMessage", domain.ErrNotFound, threadID)
			}
			return streamOf(domain.RunCompleted{}), nil
		},
	}
	srv := startTestServer(t, svc, testServerConfig())
	ws := dialWS(t, srv, "/api/assistants/threads/gone/ws")
	ctx := context.Background()

	require.NoError(t, wsjson.Write(ctx, ws, Frame{Type: "bogus"}))
	frames := readUntilEnd(t, ws)
	require.Len(t, frames, 1)
	assert.Equal(t, domain.CodeInvalidInput, frames[0].Code)

	require.NoError(t, wsjson.Write(ctx, ws, Frame{Type: FrameTypeMessage, Content: "hi"}))
	frames = readUntilEnd(t, ws)
	require.Len(t, frames, 1)
	assert.Equal(t, FrameTypeError, frames[0].Type)
	assert.Equal(t, domain.CodeThreadNotFound, frames[0].Code)

	require.NoError(t, wsjson.Write(ctx, ws, Frame{Type: FrameTypeMessage, Content: "hi"}))
	frames = readUntilEnd(t, ws)
	assert.Equal(t, FrameTypeEnd, frames[len(frames)-1].Type)
}

func TestWebSocketRequiresToken(t *testing.T) {
	cfg := testServerConfig()
	cfg.AuthTokens = []config.TokenConfig{{Name: "widget", Token: "s3cret"}}
	srv := startTestServer(t, &fakeAssistant{}, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, "ws://"+srv.BoundAddr()+"/api/assistants/threads/t1/ws", nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	dialWS(t, srv, "/api/assistants/threads/t1/ws?token=s3cret")
}
