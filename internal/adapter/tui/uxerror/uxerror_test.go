package uxerror

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"lawggle-ai/internal/domain"
)

func TestHumanize(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		title string
	}{
		{"thread not ready", domain.ErrThreadNotReady, "Not Connected Yet"},
		{"wrapped tool failure", domain.WrapOp("chat.resolve", fmt.Errorf("%w: boom", domain.ErrToolCallFailure)), "Action Failed"},
		{"gateway auth", domain.ErrGatewayAuth, "Authentication Failed"},
		{"rate limit", domain.NewDomainError("backend.CreateThread", domain.ErrRateLimit, ""), "Rate Limited"},
		{"circuit open", domain.ErrCircuitOpen, "Service Unavailable"},
		{"not found", domain.ErrNotFound, "Conversation Not Found"},
		{"stream failed", domain.ErrStreamFailed, "Answer Interrupted"},
		{"dial", errors.New("dial tcp 127.0.0.1:8080: connect: connection refused"), "Connection Failed"},
		{"deadline", errors.New("context deadline exceeded"), "Request Timed Out"},
		{"unknown", errors.New("something odd"), "Unexpected Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := Humanize(tt.err)
			if fe.Title != tt.title {
				t.Errorf("Title = %q, want %q", fe.Title, tt.title)
			}
			if fe.Raw != tt.err.Error() {
				t.Errorf("Raw = %q", fe.Raw)
			}
		})
	}
}

func TestHumanizeText(t *testing.T) {
	// Flattened sentinels still match by text.
	if got := HumanizeText(domain.ErrRateLimit.Error()).Title; got != "Rate Limited" {
		t.Errorf("Title = %q", got)
	}
	if got := HumanizeText("chat.Start: gateway: authentication failed").Title; got != "Authentication Failed" {
		t.Errorf("Title = %q", got)
	}
}

func TestRender(t *testing.T) {
	out := FriendlyError{Title: "T", Message: "M", Hints: []string{"h1", "h2"}}.Render()
	if !strings.HasPrefix(out, "T\nM") || !strings.Contains(out, "h1") || !strings.Contains(out, "h2") {
		t.Errorf("Render() = %q", out)
	}
	if Humanize(nil).Title != "Unknown Error" {
		t.Error("nil error should be Unknown Error")
	}
}
