// Package events delivers user-visible workflow notifications to whoever
// is rendering them (CLI printer, HTTP status surface). Stale completions
// and invalid transitions never reach this bus.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/hbanerjee74/skill-builder/internal/core"
)

// subscriber is one notification consumer.
type subscriber struct {
	ch chan core.Notification
}

// Bus is a small pub/sub fanout for notifications. Slow subscribers drop
// rather than block the coordinator.
type Bus struct {
	mu           sync.RWMutex
	subscribers  []*subscriber
	history      []core.Notification
	bufferSize   int
	maxHistory   int
	droppedCount int64
	closed       bool
}

// New creates a bus with the given per-subscriber buffer size.
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{
		bufferSize: bufferSize,
		maxHistory: 200,
	}
}

// Notify implements core.Notifier.
func (b *Bus) Notify(n core.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.history = append(b.history, n)
	if len(b.history) > b.maxHistory {
		b.history = b.history[len(b.history)-b.maxHistory:]
	}
	for _, sub := range b.subscribers {
		select {
		case sub.ch <- n:
		default:
			atomic.AddInt64(&b.droppedCount, 1)
		}
	}
}

// Subscribe returns a channel receiving every future notification.
func (b *Bus) Subscribe() <-chan core.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &subscriber{ch: make(chan core.Notification, b.bufferSize)}
	b.subscribers = append(b.subscribers, sub)
	return sub.ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(ch <-chan core.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := make([]*subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		if sub.ch != ch {
			kept = append(kept, sub)
		} else {
			close(sub.ch)
		}
	}
	b.subscribers = kept
}

// History returns a copy of the retained notification log.
func (b *Bus) History() []core.Notification {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]core.Notification, len(b.history))
	copy(out, b.history)
	return out
}

// Dropped returns the number of notifications dropped on slow subscribers.
func (b *Bus) Dropped() int64 {
	return atomic.LoadInt64(&b.droppedCount)
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subscribers {
		close(sub.ch)
	}
	b.subscribers = nil
}

var _ core.Notifier = (*Bus)(nil)
