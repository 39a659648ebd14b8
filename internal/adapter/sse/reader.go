// Package sse reads and writes text/event-stream bodies.
package sse

import (
	"bufio"
	"bytes"
	"context"
	"io"
)

// maxLineSize bounds a single SSE line. Upstream deltas carrying annotations
// can exceed bufio's 64 KiB default.
const maxLineSize = 1 << 20

var doneSentinel = []byte("[DONE]")

// Event is one dispatched server-sent event. Name is empty for unnamed
// events. A non-nil Err is always the last value on the channel and means the
// body failed mid-stream.
type Event struct {
	Name string
	Data []byte
	Err  error
}

// Read parses body in the background and delivers events on the returned
// channel. The channel closes on EOF, on a "[DONE]" data line, or when ctx is
// cancelled. body is always closed.
func Read(ctx context.Context, body io.ReadCloser) <-chan Event {
	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		defer body.Close()

		send := func(ev Event) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

		var (
			name    string
			data    bytes.Buffer
			hasData bool
		)
		dispatch := func() bool {
			if !hasData {
				name = ""
				return true
			}
			ev := Event{Name: name, Data: bytes.Clone(data.Bytes())}
			name, hasData = "", false
			data.Reset()
			return send(ev)
		}

		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}
			line := scanner.Bytes()

			if len(line) == 0 {
				if !dispatch() {
					return
				}
				continue
			}
			// Comment / keep-alive.
			if line[0] == ':' {
				continue
			}

			field, value := splitField(line)
			switch field {
			case "event":
				name = string(value)
			case "data":
				if bytes.Equal(value, doneSentinel) {
					return
				}
				if hasData {
					data.WriteByte('\n')
				}
				data.Write(value)
				hasData = true
			}
			// id and retry are not used by any consumer.
		}

		if err := scanner.Err(); err != nil {
			send(Event{Err: err})
			return
		}
		// Flush a final event that was not followed by a blank line.
		dispatch()
	}()
	return ch
}

func splitField(line []byte) (string, []byte) {
	field, value, found := bytes.Cut(line, []byte(":"))
	if !found {
		return string(line), nil
	}
	value = bytes.TrimPrefix(value, []byte(" "))
	return string(field), value
}
