// Package eventbus is the typed in-process publish/subscribe channel
// through which components learn of state changes they did not initiate.
// Delivery to a subscriber never blocks the publisher: each subscriber
// owns a bounded buffer, and a subscriber whose buffer overflows is
// dropped and must resynchronize by re-fetching projections.
package eventbus

import (
	"fmt"
	"sync"

	"bus-ops/internal/domain"
	"bus-ops/pkg/logger"
)

// DefaultBuffer is the per-subscriber outbound buffer size.
const DefaultBuffer = 64

type Bus struct {
	mu     sync.Mutex
	subs   map[string]*Subscription
	buffer int
	log    logger.Logger
}

// Subscription is a registered consumer endpoint. Its channel is closed
// when the subscription is torn down or the subscriber is dropped for
// falling behind; consumers treat closure as a signal to resync.
type Subscription struct {
	id   string
	ch   chan domain.Event
	bus  *Bus
	once sync.Once
}

func New(log logger.Logger) *Bus {
	return NewWithBuffer(log, DefaultBuffer)
}

func NewWithBuffer(log logger.Logger, buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{
		subs:   make(map[string]*Subscription),
		buffer: buffer,
		log:    log,
	}
}

// Subscribe registers a consumer under id. An existing subscription with
// the same id is closed and replaced, mirroring a dashboard reconnect.
func (b *Bus) Subscribe(id string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.subs[id]; ok {
		old.closeChannel()
	}

	sub := &Subscription{
		id:  id,
		ch:  make(chan domain.Event, b.buffer),
		bus: b,
	}
	b.subs[id] = sub
	return sub
}

// Unsubscribe removes the registration immediately. In-flight events
// already buffered remain readable until the closed channel drains.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		sub.closeChannel()
	}
}

// Send delivers ev to one subscriber without blocking. If the
// subscriber's buffer is full it is dropped from the bus so writer
// throughput is never held hostage by a slow consumer. The return value
// reports whether the event was buffered.
func (b *Bus) Send(id string, ev domain.Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return false
	}

	select {
	case sub.ch <- ev:
		return true
	default:
		delete(b.subs, id)
		sub.closeChannel()
		b.log.Error("subscriber_dropped", fmt.Errorf("subscriber %s overflowed its buffer, dropping", id))
		return false
	}
}

// Events is the consumer side of the subscription.
func (s *Subscription) Events() <-chan domain.Event { return s.ch }

// Close tears the subscription down. Closing a subscription that was
// already replaced by a newer one under the same id does not disturb
// the replacement.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if cur, ok := s.bus.subs[s.id]; ok && cur == s {
		delete(s.bus.subs, s.id)
	}
	s.closeChannel()
}

func (s *Subscription) closeChannel() {
	s.once.Do(func() { close(s.ch) })
}
