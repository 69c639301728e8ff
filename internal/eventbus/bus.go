// Package eventbus is a synchronous, in-process publish/subscribe bus keyed
// by event name.
package eventbus

import (
	"log/slog"
	"sync"

	"github.com/petrijr/flowgate/pkg/api"
)

type subscription struct {
	id      api.SubscriptionID
	handler api.Handler
}

// Bus delivers events to handlers on the publishing goroutine. Handlers of
// the same event fire in registration order, followed by wildcard handlers.
// Delivery is best-effort: a panicking handler is logged and skipped.
type Bus struct {
	mu       sync.RWMutex
	nextID   api.SubscriptionID
	handlers map[api.EventType][]subscription
	all      []subscription
	logger   *slog.Logger
}

// New creates a Bus. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[api.EventType][]subscription),
		logger:   logger,
	}
}

// Subscribe registers h for events of type event.
func (b *Bus) Subscribe(event api.EventType, h api.Handler) api.SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.handlers[event] = append(b.handlers[event], subscription{id: b.nextID, handler: h})
	return b.nextID
}

// SubscribeAll registers h for every event type.
func (b *Bus) SubscribeAll(h api.Handler) api.SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.all = append(b.all, subscription{id: b.nextID, handler: h})
	return b.nextID
}

// Unsubscribe removes a handler registered for event, or a wildcard handler
// when event is empty. It reports whether anything was removed.
func (b *Bus) Unsubscribe(event api.EventType, id api.SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if event == "" {
		var removed bool
		b.all, removed = without(b.all, id)
		return removed
	}

	subs, removed := without(b.handlers[event], id)
	if len(subs) == 0 {
		delete(b.handlers, event)
	} else {
		b.handlers[event] = subs
	}
	return removed
}

// Publish delivers ev to its subscribers and returns how many handlers ran
// without panicking.
func (b *Bus) Publish(ev api.Event) int {
	b.mu.RLock()
	subs := make([]subscription, 0, len(b.handlers[ev.Type])+len(b.all))
	subs = append(subs, b.handlers[ev.Type]...)
	subs = append(subs, b.all...)
	b.mu.RUnlock()

	delivered := 0
	for _, s := range subs {
		if b.deliver(s, ev) {
			delivered++
		}
	}
	return delivered
}

func (b *Bus) deliver(s subscription, ev api.Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event_handler_panic",
				slog.String("event", string(ev.Type)),
				slog.Uint64("subscription", uint64(s.id)),
				slog.Any("panic", r),
			)
			ok = false
		}
	}()
	s.handler(ev)
	return true
}

func without(subs []subscription, id api.SubscriptionID) ([]subscription, bool) {
	for i, s := range subs {
		if s.id == id {
			out := make([]subscription, 0, len(subs)-1)
			out = append(out, subs[:i]...)
			return append(out, subs[i+1:]...), true
		}
	}
	return subs, false
}
