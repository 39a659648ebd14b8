// Package eventbus is the in-process publish/subscribe bus behind
// domain.EventBus.
package eventbus

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"lawggle-ai/internal/domain"
)

type subscription struct {
	id      uint64
	handler domain.EventHandler
}

// Bus delivers each event to every matching subscriber on its own goroutine.
// Delivery order between events is therefore not guaranteed; payloads that
// need ordering carry their own sequence numbers.
type Bus struct {
	mu     sync.RWMutex
	typed  map[domain.EventType][]subscription
	all    []subscription
	closed bool

	nextID atomic.Uint64
	wg     sync.WaitGroup
	logger *slog.Logger
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		typed:  make(map[domain.EventType][]subscription),
		logger: logger,
	}
}

// Publish fans event out to typed and catch-all subscribers. Handlers get a
// context that keeps ctx's values but not its cancellation, so an event
// published at the end of a request is still handled after it returns.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	hctx := context.WithoutCancel(ctx)
	for _, sub := range b.typed[event.Type] {
		b.dispatch(hctx, event, sub)
	}
	for _, sub := range b.all {
		b.dispatch(hctx, event, sub)
	}
}

// dispatch must be called with b.mu held so Close cannot start waiting
// between the closed check and wg.Add.
func (b *Bus) dispatch(ctx context.Context, event domain.Event, sub subscription) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("event handler panicked",
					"event", string(event.Type),
					"subscription", sub.id,
					"panic", r,
				)
			}
		}()
		sub.handler(ctx, event)
	}()
}

// Subscribe registers handler for one event type and returns its
// unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	sub := subscription{id: b.nextID.Add(1), handler: handler}

	b.mu.Lock()
	b.typed[eventType] = append(b.typed[eventType], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.typed[eventType] = slices.DeleteFunc(b.typed[eventType], func(s subscription) bool {
			return s.id == sub.id
		})
	}
}

// SubscribeAll registers handler for every event and returns its
// unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	sub := subscription{id: b.nextID.Add(1), handler: handler}

	b.mu.Lock()
	b.all = append(b.all, sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.all = slices.DeleteFunc(b.all, func(s subscription) bool { return s.id == sub.id })
	}
}

// Close rejects further publishes and waits for in-flight handlers.
// It is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}

var _ domain.EventBus = (*Bus)(nil)
