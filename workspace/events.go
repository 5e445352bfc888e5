package workspace

import (
	"slices"
	"sync"

	"github.com/jrsteele09/go-app-lock/lock"
	"github.com/rs/zerolog/log"
)

type EventKind string

const (
	StateChanged   EventKind = "state"
	TaskbarChanged EventKind = "taskbar"
)

// Event tells the host what to render. StateChanged events carry AppID,
// State, Reason and an optional user-facing Message. TaskbarChanged events
// carry Active.
type Event struct {
	Kind    EventKind
	AppID   int
	State   lock.State
	Reason  lock.Reason
	Message string
	Active  []int
}

const eventBuffer = 32

type eventHub struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int

	lastActive []int
	published  bool
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[int]chan Event)}
}

func (h *eventHub) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, eventBuffer)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *eventHub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			log.Warn().Int("subscriber", id).Str("kind", string(ev.Kind)).Msg("workspace event dropped")
		}
	}
}

// publishTaskbar publishes active only when it differs from the last list.
func (h *eventHub) publishTaskbar(active []int) {
	h.mu.Lock()
	if h.published && slices.Equal(h.lastActive, active) {
		h.mu.Unlock()
		return
	}
	h.lastActive = slices.Clone(active)
	h.published = true
	h.mu.Unlock()

	h.publish(Event{Kind: TaskbarChanged, Active: slices.Clone(active)})
}

// resetTaskbar makes the next publishTaskbar publish unconditionally.
func (h *eventHub) resetTaskbar() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.published = false
}
