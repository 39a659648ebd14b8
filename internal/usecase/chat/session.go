// Package chat drives one widget conversation: it bootstraps the thread,
// streams runs into the transcript and answers tool calls.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"lawggle-ai/internal/domain"
	"lawggle-ai/internal/usecase/dispatch"
	"lawggle-ai/internal/usecase/transcript"
)

// Backend is the part of the assistant the session talks to.
type Backend interface {
	CreateThread(ctx context.Context) (string, error)
	StreamMessage(ctx context.Context, threadID, content string) (<-chan domain.StreamEvent, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []domain.ToolOutput) (<-chan domain.StreamEvent, error)
}

// Config holds session settings.
type Config struct {
	Greeting string
	// StallTimeout arms the watchdog. Zero leaves a stalled stream's input
	// disabled, the same as a stream that ends without completing.
	StallTimeout time.Duration
	// MaxConcurrency caps concurrent function handlers. Zero means no cap.
	MaxConcurrency int
}

// Snapshot is the renderable state published after every change. Seq grows
// by one per snapshot so subscribers can drop stale deliveries.
type Snapshot struct {
	Seq           uint64           `json:"seq"`
	ThreadID      string           `json:"thread_id,omitempty"`
	Messages      []domain.Message `json:"messages"`
	InputDisabled bool             `json:"input_disabled"`
	Loading       bool             `json:"loading"`
	Err           string           `json:"error,omitempty"`
}

// Session owns one transcript and its thread.
type Session struct {
	id      string
	backend Backend
	handler domain.FunctionHandler
	bus     domain.EventBus
	cfg     Config
	logger  *slog.Logger

	mu       sync.Mutex
	state    transcript.State
	threadID string
	err      error
	seq      uint64
}

// NewSession creates an idle session seeded with cfg.Greeting. bus may be nil.
func NewSession(backend Backend, handler domain.FunctionHandler, bus domain.EventBus, cfg Config, logger *slog.Logger) *Session {
	id := ulid.Make().String()
	return &Session{
		id:      id,
		backend: backend,
		handler: handler,
		bus:     bus,
		cfg:     cfg,
		logger:  logger.With("session_id", id),
		state:   transcript.NewState(cfg.Greeting),
	}
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// ThreadID returns the thread identifier, empty until Start succeeds.
func (s *Session) ThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadID
}

// Snapshot returns the current state without publishing it.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Start creates the thread. It is attempted exactly once; on failure
// Loading stays set and the error is kept for display.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	s.state.Loading = true
	snap := s.nextSnapshotLocked()
	s.mu.Unlock()
	s.publish(ctx, domain.EventTranscriptUpdated, snap)

	id, err := s.backend.CreateThread(ctx)
	if err != nil {
		err = domain.WrapOp("chat.Start", err)
		s.logger.Error("thread bootstrap failed", "error", err)
		s.fail(ctx, err)
		return err
	}

	s.mu.Lock()
	s.threadID = id
	s.state.Loading = false
	snap = s.nextSnapshotLocked()
	s.mu.Unlock()

	s.logger.Info("thread ready", "thread_id", id)
	s.publish(ctx, domain.EventThreadReady, map[string]string{"thread_id": id})
	s.publish(ctx, domain.EventTranscriptUpdated, snap)
	return nil
}

// Send submits text and follows the run until the chain of streams ends.
// Blank text is ignored. It fails with domain.ErrInputDisabled while a run
// is in flight and domain.ErrThreadNotReady before Start succeeds.
func (s *Session) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	s.mu.Lock()
	switch {
	case s.threadID == "":
		s.mu.Unlock()
		return domain.ErrThreadNotReady
	case s.state.InputDisabled:
		s.mu.Unlock()
		return domain.ErrInputDisabled
	}
	s.state = transcript.Submit(s.state, text)
	s.err = nil
	threadID := s.threadID
	snap := s.nextSnapshotLocked()
	s.mu.Unlock()
	s.publish(ctx, domain.EventTranscriptUpdated, snap)

	// Cancelling chainCtx abandons whichever stream is open.
	chainCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := s.backend.StreamMessage(chainCtx, threadID, text)
	if err != nil {
		err = domain.WrapOp("chat.Send", err)
		s.logger.Error("message stream failed to open", "thread_id", threadID, "error", err)
		s.fail(ctx, err)
		s.stallIfEnabled(ctx, "open failed")
		return err
	}
	return s.follow(chainCtx, threadID, events)
}

// follow consumes streams in order. A pending action queues the stream
// returned by its submission, which is read after the current one drains.
func (s *Session) follow(ctx context.Context, threadID string, events <-chan domain.StreamEvent) error {
	queue := []<-chan domain.StreamEvent{events}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		pending, stalled := s.drain(ctx, current)
		if stalled {
			s.stallIfEnabled(ctx, "no event within stall timeout")
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		for _, pa := range pending {
			next, err := s.resolve(ctx, threadID, pa)
			if err != nil {
				s.fail(ctx, err)
				return err
			}
			queue = append(queue, next)
		}
	}

	if s.Snapshot().InputDisabled {
		s.logger.Warn("stream chain ended without completing", "thread_id", threadID)
		s.stallIfEnabled(ctx, "stream ended without completing")
	}
	return nil
}

// drain applies every event of one stream and returns the pending actions
// it raised. stalled reports that the watchdog gave up on the stream.
func (s *Session) drain(ctx context.Context, events <-chan domain.StreamEvent) (pending []domain.PendingAction, stalled bool) {
	wd := newWatchdog(s.cfg.StallTimeout)
	defer wd.stop()

	for {
		ev, res := wd.recv(ctx, events)
		switch res {
		case recvClosed, recvCancelled:
			return pending, false
		case recvStalled:
			return pending, true
		}

		s.mu.Lock()
		next, pa, err := transcript.Apply(s.state, ev)
		if err != nil {
			s.err = err
		} else {
			s.state = next
		}
		snap := s.nextSnapshotLocked()
		s.mu.Unlock()

		if err != nil {
			s.logger.Warn("stream event rejected", "kind", kindOf(ev), "error", err)
		}
		if pa != nil {
			pending = append(pending, *pa)
		}
		s.publish(ctx, domain.EventTranscriptUpdated, snap)
	}
}

// resolve answers one pending action and opens the resumed stream.
func (s *Session) resolve(ctx context.Context, threadID string, pa domain.PendingAction) (<-chan domain.StreamEvent, error) {
	start := time.Now()
	outputs, err := dispatch.Run(ctx, pa.ToolCalls, s.handler, dispatch.WithLimit(s.cfg.MaxConcurrency))
	if err != nil {
		s.logger.Error("tool calls failed", "run_id", pa.RunID, "calls", len(pa.ToolCalls), "error", err)
		return nil, domain.WrapOp("chat.resolve", err)
	}
	s.logger.Debug("tool calls resolved", "run_id", pa.RunID, "calls", len(pa.ToolCalls), "duration", time.Since(start))
	s.publish(ctx, domain.EventActionDispatched, map[string]any{
		"run_id": pa.RunID,
		"calls":  len(pa.ToolCalls),
	})

	next, err := s.backend.SubmitToolOutputs(ctx, threadID, pa.RunID, outputs)
	if err != nil {
		return nil, domain.WrapOp("chat.resolve", fmt.Errorf("submit tool outputs: %w", err))
	}
	return next, nil
}

// stallIfEnabled force-resets the input when the watchdog is armed.
func (s *Session) stallIfEnabled(ctx context.Context, reason string) {
	if s.cfg.StallTimeout <= 0 {
		return
	}
	s.mu.Lock()
	s.state = transcript.Stall(s.state)
	threadID := s.threadID
	snap := s.nextSnapshotLocked()
	s.mu.Unlock()

	s.logger.Warn("stream stalled, input re-enabled", "thread_id", threadID, "reason", reason)
	s.publish(ctx, domain.EventStreamStalled, map[string]string{"thread_id": threadID, "reason": reason})
	s.publish(ctx, domain.EventTranscriptUpdated, snap)
}

// fail records err for display and publishes it.
func (s *Session) fail(ctx context.Context, err error) {
	s.mu.Lock()
	s.err = err
	snap := s.nextSnapshotLocked()
	s.mu.Unlock()

	s.publish(ctx, domain.EventSessionError, map[string]string{
		"error": err.Error(),
		"code":  string(domain.ErrorCodeOf(err)),
	})
	s.publish(ctx, domain.EventTranscriptUpdated, snap)
}

func (s *Session) nextSnapshotLocked() Snapshot {
	s.seq++
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		Seq:           s.seq,
		ThreadID:      s.threadID,
		Messages:      s.state.Messages.Messages(),
		InputDisabled: s.state.InputDisabled,
		Loading:       s.state.Loading,
	}
	if s.err != nil {
		snap.Err = s.err.Error()
	}
	return snap
}

func (s *Session) publish(ctx context.Context, t domain.EventType, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, domain.NewEvent(t, s.id, payload))
}

// IsUserError reports whether err is a rejection of the user's input rather
// than a failure of the conversation.
func IsUserError(err error) bool {
	return errors.Is(err, domain.ErrInputDisabled) || errors.Is(err, domain.ErrThreadNotReady)
}

func kindOf(ev domain.StreamEvent) string {
	if ev == nil {
		return "<nil>"
	}
	return string(ev.Kind())
}
