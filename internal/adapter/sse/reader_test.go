package sse

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("reader did not close")
		}
	}
}

func TestReadEvents(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []Event
	}{
		{
			name: "named events",
			body: "event: textCreated\ndata: {}\n\nevent: textDelta\ndata: {\"value\":\"hi\"}\n\n",
			want: []Event{
				{Name: "textCreated", Data: []byte("{}")},
				{Name: "textDelta", Data: []byte(`{"value":"hi"}`)},
			},
		},
		{
			name: "unnamed event without space",
			body: "data:{\"a\":1}\n\n",
			want: []Event{{Data: []byte(`{"a":1}`)}},
		},
		{
			name: "multi-line data joined with newline",
			body: "event: note\ndata: line one\ndata: line two\n\n",
			want: []Event{{Name: "note", Data: []byte("line one\nline two")}},
		},
		{
			name: "comments and unknown fields ignored",
			body: ": keep-alive\nid: 7\nretry: 100\ndata: x\n\n",
			want: []Event{{Data: []byte("x")}},
		},
		{
			name: "event without data is dropped",
			body: "event: lonely\n\ndata: y\n\n",
			want: []Event{{Data: []byte("y")}},
		},
		{
			name: "done sentinel ends stream",
			body: "data: a\n\ndata: [DONE]\n\ndata: never\n\n",
			want: []Event{{Data: []byte("a")}},
		},
		{
			name: "trailing event without blank line",
			body: "event: runCompleted\ndata: {}",
			want: []Event{{Name: "runCompleted", Data: []byte("{}")}},
		},
		{
			name: "empty body",
			body: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collect(t, Read(context.Background(), io.NopCloser(strings.NewReader(tt.body))))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadLargeLine(t *testing.T) {
	big := strings.Repeat("x", 200*1024)
	got := collect(t, Read(context.Background(), io.NopCloser(strings.NewReader("data: "+big+"\n\n"))))
	require.Len(t, got, 1)
	assert.Len(t, got[0].Data, len(big))
}

type failingReader struct{ sent bool }

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, "data: first\n\n"), nil
	}
	return 0, errors.New("connection reset")
}

func (r *failingReader) Close() error { return nil }

func TestReadSurfacesTransportError(t *testing.T) {
	got := collect(t, Read(context.Background(), &failingReader{}))
	require.Len(t, got, 2)
	assert.Equal(t, []byte("first"), got[0].Data)
	require.Error(t, got[1].Err)
	assert.Contains(t, got[1].Err.Error(), "connection reset")
}

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

func TestReadStopsOnCancelAndClosesBody(t *testing.T) {
	pr, pw := io.Pipe()
	body := &trackingBody{Reader: pr}
	ctx, cancel := context.WithCancel(context.Background())

	ch := Read(ctx, body)
	go func() {
		pw.Write([]byte("data: one\n\n"))
	}()

	ev := <-ch
	assert.Equal(t, []byte("one"), ev.Data)

	cancel()
	// Unblock the scanner so the goroutine observes cancellation.
	go pw.Write([]byte("data: two\n\n"))
	collect(t, ch)
	assert.True(t, body.closed)
	pw.Close()
}
