package kv

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

const defaultWatchBuffer = 64

// Broadcaster fans Events out to in-process watchers. A watcher that falls
// behind loses events rather than blocking the writer.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[uint64]chan Event
	next   uint64
	closed bool
	done   chan struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[uint64]chan Event),
		done: make(chan struct{}),
	}
}

// Subscribe registers a watcher that is removed when ctx is done.
func (b *Broadcaster) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, defaultWatchBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch
	}
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			b.remove(id)
		case <-b.done:
		}
	}()
	return ch
}

func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			log.Warn().Str("key", ev.Key).Msg("kv watcher full, dropping event")
		}
	}
}

// Close closes every watcher channel. Later subscriptions receive a closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
	close(b.done)
}

func (b *Broadcaster) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}
