// Package activity turns user interaction signals into session touches and
// periodically re-checks the open app's session.
package activity

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Kind is a user interaction signal.
type Kind string

const (
	PointerDown Kind = "pointerdown"
	PointerMove Kind = "pointermove"
	KeyDown     Kind = "keydown"
	Scroll      Kind = "scroll"
	Touch       Kind = "touchstart"
	Click       Kind = "click"
)

var AllKinds = []Kind{PointerDown, PointerMove, KeyDown, Scroll, Touch, Click}

const subscriptionBuffer = 16

// Subscription delivers signals until cancelled.
type Subscription interface {
	C() <-chan Kind
	Cancel()
}

// Source produces interaction signals.
type Source interface {
	Subscribe(kinds ...Kind) Subscription
}

var _ Source = (*Bus)(nil)

// Bus is an in-process Source. The host publishes signals into it.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]*busSubscription
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]*busSubscription)}
}

// Subscribe listens for kinds, or for every kind when none are given.
func (b *Bus) Subscribe(kinds ...Kind) Subscription {
	if len(kinds) == 0 {
		kinds = AllKinds
	}
	sub := &busSubscription{
		id:    uuid.NewString(),
		bus:   b,
		kinds: make(map[Kind]struct{}, len(kinds)),
		ch:    make(chan Kind, subscriptionBuffer),
	}
	for _, k := range kinds {
		sub.kinds[k] = struct{}{}
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()
	return sub
}

// Publish delivers kind to every interested subscriber without blocking.
// Subscribers with a full buffer miss the signal.
func (b *Bus) Publish(kind Kind) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if _, ok := sub.kinds[kind]; !ok {
			continue
		}
		select {
		case sub.ch <- kind:
		default:
			log.Trace().Str("subscription", sub.id).Str("kind", string(kind)).Msg("activity signal dropped")
		}
	}
}

// Subscribers is the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

type busSubscription struct {
	id    string
	bus   *Bus
	kinds map[Kind]struct{}
	ch    chan Kind
	once  sync.Once
}

func (s *busSubscription) C() <-chan Kind {
	return s.ch
}

func (s *busSubscription) Cancel() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
		close(s.ch)
	})
}
