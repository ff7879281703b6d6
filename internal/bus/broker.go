// Package bus is the typed broadcast channel between the interceptors and the monitor.
package bus

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dgnsrekt/authtap/internal/types"
)

const subscriberBufSize = 256

type subscriber struct {
	ch      chan types.Envelope
	sources map[types.Source]bool
}

func (s subscriber) wants(src types.Source) bool {
	return s.sources == nil || s.sources[src]
}

// Broker fans out envelopes to all subscribers. Delivery is at-most-once: a subscriber
// whose buffer is full misses the event.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]subscriber
	nextID      atomic.Int64
	dropped     atomic.Int64
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int64]subscriber),
	}
}

// Subscribe registers a new client for the given sources, or for all sources when none
// are given. Returns the subscriber ID and a channel to receive envelopes on.
func (b *Broker) Subscribe(sources ...types.Source) (int64, <-chan types.Envelope) {
	id := b.nextID.Add(1)
	sub := subscriber{ch: make(chan types.Envelope, subscriberBufSize)}
	if len(sources) > 0 {
		sub.sources = make(map[types.Source]bool, len(sources))
		for _, s := range sources {
			sub.sources[s] = true
		}
	}
	b.mu.Lock()
	b.subscribers[id] = sub
	b.mu.Unlock()
	return id, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	sub, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(sub.ch)
	}
	b.mu.Unlock()
}

// Publish sends an envelope to all interested subscribers. Never blocks.
func (b *Broker) Publish(env types.Envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, sub := range b.subscribers {
		if !sub.wants(env.Source) {
			continue
		}
		select {
		case sub.ch <- env:
		default:
			b.dropped.Add(1)
			slog.Debug("Dropped event for slow subscriber", "subscriber_id", id, "source", env.Source)
		}
	}
}

// ClientCount returns the number of active subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns how many deliveries were skipped because a buffer was full.
func (b *Broker) Dropped() int64 {
	return b.dropped.Load()
}
