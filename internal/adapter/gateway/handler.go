package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"lawggle-ai/internal/adapter/sse"
	"lawggle-ai/internal/domain"
	"lawggle-ai/internal/infra/middleware"
)

type createThreadResponse struct {
	ThreadID string `json:"threadId"`
}

type messageRequest struct {
	Content string `json:"content"`
}

type actionsRequest struct {
	RunID           string              `json:"runId"`
	ToolCallOutputs []domain.ToolOutput `json:"toolCallOutputs"`
}

// Lifecycle payloads published on the bus.
type (
	runPayload struct {
		RunID     string `json:"run_id,omitempty"`
		Transport string `json:"transport"`
		Events    int    `json:"events"`
		Duration  string `json:"duration"`
	}
	actionsPayload struct {
		RunID   string `json:"run_id"`
		Outputs int    `json:"outputs"`
	}
	filePayload struct {
		FileID string `json:"file_id"`
		Name   string `json:"name"`
		Bytes  int64  `json:"bytes"`
	}
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	id, err := s.svc.CreateThread(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.publish(r.Context(), domain.EventThreadCreated, id, nil)
	writeJSON(w, http.StatusOK, createThreadResponse{ThreadID: id})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	threadID := mux.Vars(r)["threadId"]
	var req messageRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Content == "" {
		s.writeError(w, r, fmt.Errorf("%w: content is required", domain.ErrInvalidInput))
		return
	}

	ctx, cancel := s.streamContext(r.Context())
	defer cancel()

	start := time.Now()
	events, err := s.svc.StreamMessage(ctx, threadID, req.Content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	n := s.relaySSE(ctx, w, events)
	s.publish(ctx, domain.EventRunStreamed, threadID, runPayload{
		Transport: "sse", Events: n, Duration: time.Since(start).String(),
	})
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	threadID := mux.Vars(r)["threadId"]
	var req actionsRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.RunID == "" {
		s.writeError(w, r, fmt.Errorf("%w: runId is required", domain.ErrInvalidInput))
		return
	}

	ctx, cancel := s.streamContext(r.Context())
	defer cancel()

	start := time.Now()
	events, err := s.svc.SubmitToolOutputs(ctx, threadID, req.RunID, req.ToolCallOutputs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.publish(ctx, domain.EventActionsSubmitted, threadID, actionsPayload{
		RunID: req.RunID, Outputs: len(req.ToolCallOutputs),
	})
	n := s.relaySSE(ctx, w, events)
	s.publish(ctx, domain.EventRunStreamed, threadID, runPayload{
		RunID: req.RunID, Transport: "sse", Events: n, Duration: time.Since(start).String(),
	})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["fileId"]
	file, err := s.svc.File(r.Context(), fileID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer file.Body.Close()

	// Sniff from the leading bytes without consuming them.
	br := bufio.NewReaderSize(file.Body, 512)
	head, _ := br.Peek(512)

	h := w.Header()
	h.Set("Content-Type", http.DetectContentType(head))
	if file.Name != "" {
		h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Name}))
	}
	if file.Size > 0 {
		h.Set("Content-Length", strconv.FormatInt(file.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, br)
	if err != nil {
		s.logger.Warn("file copy interrupted", "file_id", fileID, "bytes", n, "error", err)
		return
	}
	s.publish(r.Context(), domain.EventFileServed, fileID, filePayload{FileID: fileID, Name: file.Name, Bytes: n})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	s.metrics.write(w, time.Since(s.started))
}

// relaySSE writes every event of the run stream to w and returns how many
// were sent. It stops early when ctx ends or the client goes away.
func (s *Server) relaySSE(ctx context.Context, w http.ResponseWriter, events <-chan domain.StreamEvent) int {
	sw, err := sse.NewWriter(w)
	if err != nil {
		s.logger.Error("sse unavailable", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported", domain.CodeStreamFailed)
		return 0
	}

	sent := 0
	for {
		select {
		case <-ctx.Done():
			s.logger.Warn("stream cut", "reason", ctx.Err(), "events", sent,
				"request_id", middleware.RequestIDFrom(ctx))
			return sent
		case ev, ok := <-events:
			if !ok {
				return sent
			}
			if err := sw.SendEvent(ev); err != nil {
				s.logger.Debug("client left stream", "error", err, "events", sent)
				return sent
			}
			sent++
		}
	}
}

// streamContext bounds one streamed request by the configured ceiling.
func (s *Server) streamContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.StreamTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.StreamTimeout)
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body := r.Body
	if s.cfg.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	}
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return fmt.Errorf("%w: limit is %d bytes", domain.ErrPayloadTooBig, tooBig.Limit)
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// statusFor maps an error onto the HTTP status the widget sees.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrPayloadTooBig):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAuthInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrRateLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	code := domain.ErrorCodeOf(err)
	level := s.logger.Warn
	if status >= http.StatusInternalServerError {
		level = s.logger.Error
	}
	level("request failed",
		"path", r.URL.Path,
		"status", status,
		"code", string(code),
		"error", err,
		"request_id", middleware.RequestIDFrom(r.Context()),
	)
	s.metrics.Errors.Add(1)

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		// Upstream detail stays in the log.
		msg = http.StatusText(status)
	}
	writeJSONError(w, status, msg, code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string, code domain.ErrorCode) {
	writeJSON(w, status, map[string]string{"error": msg, "code": string(code)})
}
