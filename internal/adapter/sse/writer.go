package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"lawggle-ai/internal/domain"
)

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("sse: response writer does not support flushing")

// Writer frames events onto an HTTP response and flushes after each one.
type Writer struct {
	w http.ResponseWriter
	f http.Flusher
}

// NewWriter prepares w for streaming and writes the response headers.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &Writer{w: w, f: f}, nil
}

// Send writes one named event. Data containing newlines is split across
// several data lines.
func (w *Writer) Send(event string, data []byte) error {
	var buf bytes.Buffer
	if event != "" {
		fmt.Fprintf(&buf, "event: %s\n", event)
	}
	for _, line := range bytes.Split(data, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')

	if _, err := w.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("sse write: %w", err)
	}
	w.f.Flush()
	return nil
}

// SendEvent writes ev under its wire kind with a JSON payload.
func (w *Writer) SendEvent(ev domain.StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("sse marshal %s: %w", ev.Kind(), err)
	}
	return w.Send(string(ev.Kind()), data)
}

// Comment writes a keep-alive comment line.
func (w *Writer) Comment(text string) error {
	if _, err := fmt.Fprintf(w.w, ": %s\n\n", text); err != nil {
		return fmt.Errorf("sse write: %w", err)
	}
	w.f.Flush()
	return nil
}
