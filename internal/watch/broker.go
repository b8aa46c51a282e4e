// Package watch fans committed snapshots out to subscribers.
package watch

import (
	"context"
	"log/slog"
	"sync"

	"berth/internal/observed"
)

const subscriberBufferCap = 16

// Update is published after every refresh cycle, including degraded ones.
type Update struct {
	Snapshot *observed.Snapshot
	Events   []observed.Event
	// Err is set when the cycle could not reach the daemon. Snapshot is then
	// the last good one.
	Err error
}

// Broker delivers updates to subscribers without blocking the publisher. A
// subscriber that falls behind loses its oldest queued updates, so a drained
// channel always ends at the latest one; each update carries a full
// snapshot, only the dropped updates' events are lost.
type Broker struct {
	mu     sync.Mutex
	subs   map[uint64]chan Update
	nextID uint64
	last   Update
	closed bool
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[uint64]chan Update)}
}

// Subscribe returns the most recent update and a channel of subsequent ones.
// The channel is closed when ctx is cancelled or the broker is closed.
func (b *Broker) Subscribe(ctx context.Context) (Update, <-chan Update) {
	b.mu.Lock()
	ch := make(chan Update, subscriberBufferCap)
	last := b.last
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return last, ch
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.unsubscribe(id)
	}()
	return last, ch
}

// Publish records u as the latest update and offers it to every subscriber.
func (b *Broker) Publish(u Update) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.last = u
	for id, sub := range b.subs {
		select {
		case sub <- u:
			continue
		default:
		}
		// Publish is the only sender and holds b.mu, so after one receive
		// there is room.
		select {
		case <-sub:
			slog.Debug("watch subscriber full, dropping oldest update", "component", "watch", "subscriber", id)
		default:
		}
		sub <- u
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

func (b *Broker) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}
