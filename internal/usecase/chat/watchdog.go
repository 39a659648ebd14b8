package chat

import (
	"context"
	"time"

	"lawggle-ai/internal/domain"
)

type recvResult int

const (
	recvEvent recvResult = iota
	recvClosed
	recvCancelled
	recvStalled
)

// watchdog bounds the gap between two events of one stream. A zero
// timeout never fires.
type watchdog struct {
	timeout time.Duration
	timer   *time.Timer
}

func newWatchdog(timeout time.Duration) *watchdog {
	w := &watchdog{timeout: timeout}
	if timeout > 0 {
		w.timer = time.NewTimer(timeout)
	}
	return w
}

func (w *watchdog) recv(ctx context.Context, events <-chan domain.StreamEvent) (domain.StreamEvent, recvResult) {
	var fire <-chan time.Time
	if w.timer != nil {
		fire = w.timer.C
	}
	select {
	case ev, ok := <-events:
		if !ok {
			return nil, recvClosed
		}
		if w.timer != nil {
			w.timer.Reset(w.timeout)
		}
		return ev, recvEvent
	case <-ctx.Done():
		return nil, recvCancelled
	case <-fire:
		return nil, recvStalled
	}
}

func (w *watchdog) stop() {
	if w.timer != nil {
		w.timer.Stop()
	}
}
