package activity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-app-lock/lock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultCheckInterval    = 5 * time.Minute
	DefaultCoalesceInterval = time.Second
)

var ErrAlreadyStarted = errors.New("tracker already started")

// SessionStore is the part of appsession.Store the tracker drives.
type SessionStore interface {
	Touch(ctx context.Context, appID int) (bool, error)
	Get(ctx context.Context, appID int) (string, bool)
}

// ExpiredFunc is called at most once, after the tracker has stopped.
type ExpiredFunc func(appID int, reason lock.Reason)

// Ticker abstracts time.Ticker.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type stdTicker struct {
	*time.Ticker
}

func (t stdTicker) C() <-chan time.Time {
	return t.Ticker.C
}

func newStdTicker(d time.Duration) Ticker {
	return stdTicker{time.NewTicker(d)}
}

// Tracker keeps one app's session alive while the user interacts with it
// and reports when the session lapses.
type Tracker struct {
	appID         int
	store         SessionStore
	source        Source
	onExpired     ExpiredFunc
	checkInterval time.Duration
	coalesce      time.Duration
	nowTime       func() time.Time
	newTicker     func(time.Duration) Ticker

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	fired   atomic.Bool
}

type TrackerOption func(*Tracker)

func WithCheckInterval(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		t.checkInterval = d
	}
}

// WithCoalesceInterval limits store writes to one per interval during bursts.
func WithCoalesceInterval(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		t.coalesce = d
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.nowTime = nowFunc
	}
}

// WithTicker replaces the periodic check ticker (primarily for testing)
func WithTicker(newTicker func(time.Duration) Ticker) TrackerOption {
	return func(t *Tracker) {
		t.newTicker = newTicker
	}
}

func NewTracker(appID int, store SessionStore, source Source, onExpired ExpiredFunc, options ...TrackerOption) *Tracker {
	t := &Tracker{
		appID:         appID,
		store:         store,
		source:        source,
		onExpired:     onExpired,
		checkInterval: DefaultCheckInterval,
		coalesce:      DefaultCoalesceInterval,
		nowTime:       time.Now,
		newTicker:     newStdTicker,
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

func (t *Tracker) AppID() int {
	return t.appID
}

// Start subscribes to the source and runs until Stop, ctx cancellation, or
// session expiry. A tracker runs once.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return ErrAlreadyStarted
	}
	t.started = true

	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	sub := t.source.Subscribe(AllKinds...)
	ticker := t.newTicker(t.checkInterval)

	go func() {
		reason := t.run(ctx, sub, ticker)
		sub.Cancel()
		ticker.Stop()
		close(t.done)

		if reason != "" && t.fired.CompareAndSwap(false, true) && t.onExpired != nil {
			t.onExpired(t.appID, reason)
		}
	}()

	log.Debug().Int("app_id", t.appID).Dur("check_interval", t.checkInterval).Msg("activity tracker started")
	return nil
}

// Stop releases the subscription and ticker and suppresses any pending
// expiry callback. It is safe to call more than once and from the callback.
func (t *Tracker) Stop() {
	t.fired.Store(true)

	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (t *Tracker) run(ctx context.Context, sub Subscription, ticker Ticker) lock.Reason {
	var lastTouch time.Time
	for {
		select {
		case <-ctx.Done():
			return ""

		case _, ok := <-sub.C():
			if !ok {
				log.Warn().Int("app_id", t.appID).Msg("activity source closed")
				return lock.ReasonTrackerFailure
			}
			now := t.nowTime()
			if !lastTouch.IsZero() && now.Sub(lastTouch) < t.coalesce {
				continue
			}
			touched, err := t.store.Touch(ctx, t.appID)
			if err != nil {
				if ctx.Err() != nil {
					return ""
				}
				log.Err(err).Int("app_id", t.appID).Msg("[Tracker] touch failed")
				return lock.ReasonTrackerFailure
			}
			if !touched {
				return lock.ReasonExpired
			}
			lastTouch = now

		case <-ticker.C():
			if _, ok := t.store.Get(ctx, t.appID); !ok {
				if ctx.Err() != nil {
					return ""
				}
				return lock.ReasonExpired
			}
		}
	}
}
