// Package event provides an in-process bus of named channels carrying bare
// "something changed" signals. Messages are never inspected by subscribers;
// arrival is the entire payload.
package event

import (
	"sync"

	"github.com/google/uuid"
)

// Signal is the empty message delivered on every channel.
type Signal struct{}

type subscriber struct {
	id string
	ch chan Signal
}

// Bus fans out signals published on named channels. Publishing never blocks:
// a subscriber that has an undelivered signal pending simply coalesces the
// new one into it.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]subscriber
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]subscriber)}
}

// Subscribe registers interest in a named channel. The returned ID is used to
// unsubscribe; the returned channel has a one-signal buffer and coalesces
// bursts.
func (b *Bus) Subscribe(channel string) (string, <-chan Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := subscriber{id: uuid.NewString(), ch: make(chan Signal, 1)}
	b.subs[channel] = append(b.subs[channel], sub)
	return sub.id, sub.ch
}

// Unsubscribe removes a subscription. Unknown IDs are ignored.
func (b *Bus) Unsubscribe(channel, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[channel]
	for i, sub := range subs {
		if sub.id == id {
			b.subs[channel] = append(subs[:i:i], subs[i+1:]...)
			close(sub.ch)
			return
		}
	}
}

// Publish delivers a signal to every subscriber of the channel without
// blocking. Subscribers with a signal already pending are skipped; they will
// observe the pending one.
func (b *Bus) Publish(channel string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[channel] {
		select {
		case sub.ch <- Signal{}:
		default:
		}
	}
}

// Channels returns the names of channels with at least one subscriber.
func (b *Bus) Channels() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var names []string
	for name, subs := range b.subs {
		if len(subs) > 0 {
			names = append(names, name)
		}
	}
	return names
}
