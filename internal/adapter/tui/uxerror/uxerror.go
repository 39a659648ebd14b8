// Package uxerror translates raw errors into user-friendly messages with
// recovery hints for the terminal widget.
package uxerror

import (
	"errors"
	"fmt"
	"strings"

	"lawggle-ai/internal/adapter/tui/theme"
	"lawggle-ai/internal/domain"
)

// FriendlyError is a user-facing error with suggestions for recovery.
type FriendlyError struct {
	Title   string   // short heading, e.g. "Connection Failed"
	Message string   // one-liner explanation
	Hints   []string // actionable recovery suggestions
	Raw     string   // original error text
}

// Render formats the FriendlyError for display in the message list.
func (fe FriendlyError) Render() string {
	var sb strings.Builder
	sb.WriteString(fe.Title)
	if fe.Message != "" {
		sb.WriteString("\n")
		sb.WriteString(fe.Message)
	}
	for _, h := range fe.Hints {
		sb.WriteString(fmt.Sprintf("\n%s %s", theme.SymbolBullet, h))
	}
	return sb.String()
}

type errorPattern struct {
	match   func(err error) bool
	produce func(err error) FriendlyError
}

var patterns = []errorPattern{
	// Sentinels first so errors.Is works through wrapping.
	{
		match:   isAny(domain.ErrThreadNotReady),
		produce: constantError("Not Connected Yet", "The conversation is still being set up.", []string{"Wait a moment and send again", "Restart the widget if this persists"}),
	},
	{
		match:   isAny(domain.ErrInputDisabled),
		produce: constantError("Still Answering", "Wait for the current answer to finish.", nil),
	},
	{
		match:   isAny(domain.ErrToolCallFailure),
		produce: constantError("Action Failed", "The assistant asked for an action that could not be completed.", []string{"Send your question again", "Check the function configuration"}),
	},
	{
		match:   isAny(domain.ErrGatewayAuth, domain.ErrAuthInvalid),
		produce: constantError("Authentication Failed", "The gateway or the assistant service rejected the credentials.", []string{"Check client.token against the gateway's auth tokens", "Check the assistant API key"}),
	},
	{
		match:   isAny(domain.ErrRateLimit),
		produce: constantError("Rate Limited", "Too many requests were sent.", []string{"Wait a moment before retrying"}),
	},
	{
		match:   isAny(domain.ErrCircuitOpen),
		produce: constantError("Service Unavailable", "The assistant service is failing and requests are paused.", []string{"Try again in a minute"}),
	},
	{
		match:   isAny(domain.ErrNotFound),
		produce: constantError("Conversation Not Found", "The assistant no longer knows this thread.", []string{"Restart the widget to open a new thread"}),
	},
	{
		match:   isAny(domain.ErrTimeout, domain.ErrStreamFailed),
		produce: constantError("Answer Interrupted", "The response stream stopped before it finished.", []string{"Send your question again", "Check your network connection"}),
	},

	// Text patterns for errors that only survive as strings.
	{
		match:   containsAny("connection refused", "dial tcp", "no such host"),
		produce: constantError("Connection Failed", "Could not reach the gateway.", []string{"Check that the gateway is running", "Verify client.base_url in config"}),
	},
	{
		match:   containsAny("deadline exceeded", "timed out", "timeout"),
		produce: constantError("Request Timed Out", "The request took too long to complete.", []string{"Send your question again", "Check your network connection"}),
	},
	{
		match:   containsAny("401", "unauthorized", "authentication failed"),
		produce: constantError("Authentication Failed", "The gateway or the assistant service rejected the credentials.", []string{"Check client.token against the gateway's auth tokens", "Check the assistant API key"}),
	},
	{
		match:   containsAny("429", "rate limit", "too many requests"),
		produce: constantError("Rate Limited", "Too many requests were sent.", []string{"Wait a moment before retrying"}),
	},
	{
		match:   containsAny("circuit open", "503"),
		produce: constantError("Service Unavailable", "The assistant service is failing and requests are paused.", []string{"Try again in a minute"}),
	},
}

// Humanize converts a raw error into a FriendlyError with recovery hints.
func Humanize(err error) FriendlyError {
	if err == nil {
		return FriendlyError{Title: "Unknown Error", Raw: "nil"}
	}

	for _, p := range patterns {
		if p.match(err) {
			return p.produce(err)
		}
	}

	return FriendlyError{
		Title:   "Unexpected Error",
		Message: err.Error(),
		Hints:   []string{"Try again", "Run with logger.level: debug for more details"},
		Raw:     err.Error(),
	}
}

// HumanizeText humanizes an error that was flattened to its message.
func HumanizeText(msg string) FriendlyError {
	return Humanize(errors.New(msg))
}

func isAny(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	}
}

// containsAny returns a match func that checks if the error string contains
// any of the given substrings (case-insensitive).
func containsAny(substrs ...string) func(error) bool {
	return func(err error) bool {
		lower := strings.ToLower(err.Error())
		for _, s := range substrs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}
}

// constantError returns a produce func that always returns the same FriendlyError.
func constantError(title, message string, hints []string) func(error) FriendlyError {
	return func(err error) FriendlyError {
		return FriendlyError{
			Title:   title,
			Message: message,
			Hints:   hints,
			Raw:     err.Error(),
		}
	}
}
