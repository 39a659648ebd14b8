// Package transcript folds an assistant run stream into chat transcript state.
package transcript

import (
	"sync"

	"lawggle-ai/internal/domain"
)

// Transcript is an ordered, append-only message sequence. Only the last
// message may change after it is appended.
//
// The sealed prefix and the tail are held apart, so amending the tail is O(1)
// and never copies or writes through the prefix. A Transcript value is
// immutable: every operation returns a new value and leaves the receiver
// untouched.
//
// Append is amortized O(1): values along one line of history share a single
// backing array and only the newest of them may extend it. Appending to an
// older value copies its prefix once and starts a new line.
type Transcript struct {
	head   []domain.Message
	tail   *domain.Message
	sealed *prefix
}

// prefix is the backing array shared by one line of history. msgs only
// grows; entries below len(msgs) are never rewritten.
type prefix struct {
	mu   sync.Mutex
	msgs []domain.Message
}

// New returns a transcript holding msgs in order.
func New(msgs ...domain.Message) Transcript {
	var t Transcript
	for _, m := range msgs {
		t = t.Append(m)
	}
	return t
}

// Len returns the number of messages.
func (t Transcript) Len() int {
	if t.tail == nil {
		return 0
	}
	return len(t.head) + 1
}

// First returns the oldest message.
func (t Transcript) First() (domain.Message, bool) {
	switch {
	case t.tail == nil:
		return domain.Message{}, false
	case len(t.head) == 0:
		return *t.tail, true
	default:
		return t.head[0], true
	}
}

// Last returns the newest message.
func (t Transcript) Last() (domain.Message, bool) {
	if t.tail == nil {
		return domain.Message{}, false
	}
	return *t.tail, true
}

// Append adds m as the new last message.
func (t Transcript) Append(m domain.Message) Transcript {
	if t.tail == nil {
		return Transcript{head: t.head, tail: &m, sealed: t.sealed}
	}
	n := len(t.head)
	if p := t.sealed; p != nil {
		p.mu.Lock()
		defer p.mu.Unlock()
		if len(p.msgs) == n {
			p.msgs = append(p.msgs, *t.tail)
			return Transcript{head: p.msgs[: n+1 : n+1], tail: &m, sealed: p}
		}
	}
	// A sibling already extended the shared line.
	p := &prefix{msgs: make([]domain.Message, n+1, 2*n+2)}
	copy(p.msgs, t.head)
	p.msgs[n] = *t.tail
	return Transcript{head: p.msgs[: n+1 : n+1], tail: &m, sealed: p}
}

// AmendLast replaces the last message's text with fn(text). It fails with
// domain.ErrNoLastMessage when the transcript is empty.
func (t Transcript) AmendLast(fn func(text string) string) (Transcript, error) {
	if t.tail == nil {
		return t, domain.ErrNoLastMessage
	}
	last := *t.tail
	last.Text = fn(last.Text)
	return Transcript{head: t.head, tail: &last, sealed: t.sealed}, nil
}

// Messages returns a copy of the sequence, oldest first.
func (t Transcript) Messages() []domain.Message {
	out := make([]domain.Message, 0, t.Len())
	out = append(out, t.head...)
	if t.tail != nil {
		out = append(out, *t.tail)
	}
	return out
}
