// Package events provides the in-process publish/subscribe bus used to fan
// out postcard sightings and feeder updates to interested components.
package events

import (
	"log/slog"
	"sync"

	"github.com/jhansche/ha-birdbuddy/internal/logging"
)

// Handler receives every payload published to the topic it subscribed to.
type Handler func(payload any)

// Token identifies a single subscription so it can be removed later.
type Token struct {
	topic string
	id    uint64
}

type subscription struct {
	id      uint64
	handler Handler
}

// Bus delivers published payloads to subscribers synchronously, in
// registration order, on the publishing goroutine. A panicking handler is
// isolated so the remaining handlers still receive the payload.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]subscription
	nextID      uint64
	logger      *slog.Logger

	stats BusStats
}

// BusStats tracks delivery counters for diagnostics.
type BusStats struct {
	Published      uint64
	Delivered      uint64
	HandlerPanics  uint64
	DroppedNoSubs  uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string][]subscription),
		logger:      logging.ForService("events"),
	}
}

// Subscribe registers a handler for a topic and returns a token that removes
// the subscription when passed to Unsubscribe.
func (b *Bus) Subscribe(topic string, handler Handler) Token {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	tok := Token{topic: topic, id: b.nextID}
	b.subscribers[topic] = append(b.subscribers[topic], subscription{id: tok.id, handler: handler})

	b.logger.Debug("subscribed", "topic", topic, "subscribers", len(b.subscribers[topic]))
	return tok
}

// Unsubscribe removes a previously registered handler. Unknown tokens are
// ignored.
func (b *Bus) Unsubscribe(tok Token) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[tok.topic]
	for i := range subs {
		if subs[i].id == tok.id {
			b.subscribers[tok.topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscribers[tok.topic]) == 0 {
		delete(b.subscribers, tok.topic)
	}
}

// HasSubscribers reports whether any handler is registered for the topic.
// Callers use this to skip expensive payload construction when nothing is
// listening.
func (b *Bus) HasSubscribers(topic string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic]) > 0
}

// Publish delivers the payload to all handlers of the topic and returns the
// number of handlers invoked. Delivery is synchronous and in registration
// order; handlers observe the snapshot of subscriptions present when Publish
// was called.
func (b *Bus) Publish(topic string, payload any) int {
	b.mu.RLock()
	subs := make([]subscription, len(b.subscribers[topic]))
	copy(subs, b.subscribers[topic])
	b.mu.RUnlock()

	b.mu.Lock()
	b.stats.Published++
	if len(subs) == 0 {
		b.stats.DroppedNoSubs++
	}
	b.mu.Unlock()

	for i := range subs {
		b.deliver(topic, subs[i], payload)
	}
	return len(subs)
}

// deliver invokes one handler inside a recovery wrapper so a panicking
// subscriber cannot prevent delivery to the ones registered after it.
func (b *Bus) deliver(topic string, sub subscription, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.mu.Lock()
			b.stats.HandlerPanics++
			b.mu.Unlock()
			b.logger.Error("subscriber panicked",
				"topic", topic,
				"panic", r,
			)
		}
	}()

	sub.handler(payload)

	b.mu.Lock()
	b.stats.Delivered++
	b.mu.Unlock()
}

// Stats returns a copy of the delivery counters.
func (b *Bus) Stats() BusStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats
}
