// Package integration runs the widget client against a real gateway over a
// loopback listener. The hosted assistant is replaced by a scripted service.
package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"lawggle-ai/internal/adapter/gateway"
	"lawggle-ai/internal/domain"
	"lawggle-ai/internal/infra/config"
	"lawggle-ai/internal/usecase/eventbus"
)

// Config holds integration test configuration from environment
type Config struct {
	TestTimeout time.Duration
	Verbose     bool
}

// LoadConfig loads integration test configuration from environment
func LoadConfig() *Config {
	return &Config{
		TestTimeout: 10 * time.Second,
		Verbose:     os.Getenv("LAWGGLE_TEST_VERBOSE") == "1",
	}
}

// SkipIfShort skips integration tests in short mode
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// NewTestContext creates a context with timeout for integration tests
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// Logger discards output unless LAWGGLE_TEST_VERBOSE=1.
func (c *Config) Logger() *slog.Logger {
	if c.Verbose {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Reply is the scripted run stream answering one message or submission.
type Reply []domain.StreamEvent

// ScriptedAssistant implements domain.AssistantService from canned replies.
// Messages are matched by exact content, submissions by run id.
type ScriptedAssistant struct {
	ThreadID  string
	Messages  map[string]Reply
	Actions   map[string]Reply
	Files     map[string]string
	mu        sync.Mutex
	submitted map[string][]domain.ToolOutput
}

// CreateThread implements domain.AssistantService.
func (s *ScriptedAssistant) CreateThread(context.Context) (string, error) {
	return s.ThreadID, nil
}

// StreamMessage implements domain.AssistantService.
func (s *ScriptedAssistant) StreamMessage(ctx context.Context, threadID, content string) (<-chan domain.StreamEvent, error) {
	if threadID != s.ThreadID {
		return nil, domain.ErrNotFound
	}
	reply, ok := s.Messages[content]
	if !ok {
		return nil, fmt.Errorf("%w: no scripted reply for %q", domain.ErrInvalidInput, content)
	}
	return emit(ctx, reply), nil
}

// SubmitToolOutputs implements domain.AssistantService.
func (s *ScriptedAssistant) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []domain.ToolOutput) (<-chan domain.StreamEvent, error) {
	if threadID != s.ThreadID {
		return nil, domain.ErrNotFound
	}
	reply, ok := s.Actions[runID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown run %q", domain.ErrInvalidInput, runID)
	}
	s.mu.Lock()
	if s.submitted == nil {
		s.submitted = make(map[string][]domain.ToolOutput)
	}
	s.submitted[runID] = append(s.submitted[runID], outputs...)
	s.mu.Unlock()
	return emit(ctx, reply), nil
}

// File implements domain.AssistantService.
func (s *ScriptedAssistant) File(_ context.Context, fileID string) (*domain.File, error) {
	body, ok := s.Files[fileID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &domain.File{
		ID:   fileID,
		Name: fileID + ".txt",
		Size: int64(len(body)),
		Body: io.NopCloser(strings.NewReader(body)),
	}, nil
}

// Submitted returns the outputs received for runID.
func (s *ScriptedAssistant) Submitted(runID string) []domain.ToolOutput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ToolOutput(nil), s.submitted[runID]...)
}

func emit(ctx context.Context, reply Reply) <-chan domain.StreamEvent {
	ch := make(chan domain.StreamEvent)
	go func() {
		defer close(ch)
		for _, ev := range reply {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// StartGateway serves the gateway for svc on a loopback listener and
// returns its base URL. The bus is closed when the test ends.
func (c *Config) StartGateway(t *testing.T, svc domain.AssistantService, cfg config.ServerConfig) (string, domain.EventBus) {
	t.Helper()
	logger := c.Logger()
	bus := eventbus.New(logger)
	t.Cleanup(bus.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv := httptest.NewServer(gateway.NewServer(svc, bus, cfg, logger).Handler(ctx))
	t.Cleanup(srv.Close)
	return srv.URL, bus
}
