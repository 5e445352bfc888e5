// Package workspace hosts many independently locked apps inside one parent
// session. Each app unlocks through re-authentication, re-locks after its
// own inactivity window, and stays consistent with other contexts sharing
// the same session store.
package workspace

import (
	"context"
	"sort"
	"sync"

	"github.com/jrsteele09/go-app-lock/activity"
	"github.com/jrsteele09/go-app-lock/appsession"
	"github.com/jrsteele09/go-app-lock/internal/metrics"
	"github.com/jrsteele09/go-app-lock/lock"
	"github.com/jrsteele09/go-app-lock/reauth"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotFocused = errors.New("app is not open")

	// ErrAbandoned reports a re-authentication whose result was discarded
	// because the user moved on before it completed.
	ErrAbandoned = errors.New("re-authentication abandoned")
)

type Config struct {
	Store  *appsession.Store
	Flow   reauth.Flow
	Source activity.Source

	// Headers is created when nil.
	Headers        *Headers
	TrackerOptions []activity.TrackerOption
}

type Workspace struct {
	store       *appsession.Store
	flow        reauth.Flow
	source      activity.Source
	headers     *Headers
	trackerOpts []activity.TrackerOption
	events      *eventHub

	mu       sync.Mutex
	machines map[int]*lock.Machine
	focused  int
	hasFocus bool
	tracker  *activity.Tracker
}

func New(cfg Config) (*Workspace, error) {
	if cfg.Store == nil {
		return nil, errors.New("[workspace.New] session store is required")
	}
	if cfg.Source == nil {
		return nil, errors.New("[workspace.New] activity source is required")
	}
	if cfg.Headers == nil {
		cfg.Headers = NewHeaders()
	}
	return &Workspace{
		store:       cfg.Store,
		flow:        cfg.Flow,
		source:      cfg.Source,
		headers:     cfg.Headers,
		trackerOpts: cfg.TrackerOptions,
		events:      newEventHub(),
		machines:    make(map[int]*lock.Machine),
	}, nil
}

func (w *Workspace) Headers() *Headers {
	return w.headers
}

// Events streams state and taskbar changes until cancel is called.
func (w *Workspace) Events() (<-chan Event, func()) {
	return w.events.subscribe()
}

// Open focuses appID and returns its state. Leaving another app stops that
// app's tracker and abandons any re-authentication in flight for it.
func (w *Workspace) Open(ctx context.Context, appID int) lock.State {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.hasFocus && w.focused != appID {
		prev := w.machine(w.focused)
		if prev.State() == lock.Authenticating {
			prev.Lock(lock.ReasonAbandoned)
			w.publishState(w.focused, prev, "")
		}
	}
	w.stopTrackerLocked()
	w.focused, w.hasFocus = appID, true

	m := w.machine(appID)
	if m.State() == lock.Authenticating {
		return lock.Authenticating
	}

	tok, ok := w.store.Get(ctx, appID)
	if !ok {
		w.headers.Clear(appID)
		if m.State() == lock.Unlocked && m.Lock(lock.ReasonExpired) {
			metrics.AppLocks.WithLabelValues(string(lock.ReasonExpired)).Inc()
		}
		w.publishState(appID, m, "")
		w.publishTaskbar(ctx)
		return lock.Locked
	}

	if m.State() != lock.Unlocked {
		if err := m.Unlock(); err != nil {
			log.Err(err).Int("app_id", appID).Msg("[Open] unlock")
			return m.State()
		}
		metrics.AppUnlocks.Inc()
	}
	w.headers.Set(appID, tok)
	w.startTrackerLocked(ctx, appID)
	w.publishState(appID, m, "")
	return lock.Unlocked
}

// Submit re-authenticates the focused app. On failure the app returns to
// Locked and the error's reauth.UserMessage is safe to display.
func (w *Workspace) Submit(ctx context.Context, appID int, creds reauth.Credentials) error {
	w.mu.Lock()
	if !w.hasFocus || w.focused != appID {
		w.mu.Unlock()
		return ErrNotFocused
	}
	m := w.machine(appID)
	attempt, err := m.Begin()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.publishState(appID, m, "")
	w.mu.Unlock()

	tok, flowErr := w.flow.Run(ctx, appID, creds)

	w.mu.Lock()
	defer w.mu.Unlock()

	if !m.Current(attempt) || !w.hasFocus || w.focused != appID {
		log.Debug().Int("app_id", appID).Msg("discarding abandoned re-authentication")
		return ErrAbandoned
	}
	if flowErr != nil {
		_ = m.Fail(attempt)
		w.publishState(appID, m, reauth.UserMessage(flowErr))
		return flowErr
	}
	if err := w.store.Put(ctx, appID, tok); err != nil {
		_ = m.Fail(attempt)
		rerr := &reauth.Error{Message: reauth.GenericMessage, Err: err}
		w.publishState(appID, m, rerr.Message)
		return rerr
	}
	if err := m.Succeed(attempt); err != nil {
		return err
	}

	metrics.AppUnlocks.Inc()
	w.headers.Set(appID, tok)
	w.startTrackerLocked(ctx, appID)
	w.publishState(appID, m, "")
	w.publishTaskbar(ctx)
	log.Info().Int("app_id", appID).Str("mode", string(creds.Mode())).Msg("app unlocked")
	return nil
}

// Close ends the app's session and locks it.
func (w *Workspace) Close(ctx context.Context, appID int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.store.Remove(ctx, appID); err != nil {
		return errors.Wrapf(err, "[Close] app %d", appID)
	}
	if w.hasFocus && w.focused == appID {
		w.stopTrackerLocked()
		w.hasFocus = false
	}
	w.lockLocked(appID, lock.ReasonClosed)
	w.publishTaskbar(ctx)
	return nil
}

// Logout removes every app session and locks every app.
func (w *Workspace) Logout(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopTrackerLocked()
	w.hasFocus = false
	removeErr := w.store.RemoveAll(ctx)

	ids := make([]int, 0, len(w.machines))
	for id := range w.machines {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		w.lockLocked(id, lock.ReasonLogout)
	}
	w.headers.ClearAll()
	w.publishTaskbar(ctx)

	if removeErr != nil {
		return errors.Wrap(removeErr, "[Logout]")
	}
	log.Info().Int("apps", len(ids)).Msg("workspace logged out")
	return nil
}

func (w *Workspace) ActiveAppIDs(ctx context.Context) []int {
	return w.store.ActiveAppIDs(ctx)
}

// State is Locked for apps never opened.
func (w *Workspace) State(appID int) lock.State {
	w.mu.Lock()
	defer w.mu.Unlock()

	m, ok := w.machines[appID]
	if !ok {
		return lock.Locked
	}
	return m.State()
}

func (w *Workspace) Focused() (int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.focused, w.hasFocus
}

// Run applies session changes made by other contexts until ctx is done:
// apps whose session vanished or lapsed are locked, and a focused locked app
// whose session appeared elsewhere is unlocked.
func (w *Workspace) Run(ctx context.Context) error {
	changes, err := w.store.Watch(ctx)
	if err != nil {
		return errors.Wrap(err, "[Workspace.Run]")
	}
	w.events.resetTaskbar()
	w.publishTaskbar(ctx)

	for change := range changes {
		// A put's activity write follows its session write; reconciling on
		// the session alone would see a record still being created.
		if change.Shared || change.Kind == appsession.SessionSet {
			continue
		}
		w.reconcile(ctx, change.AppID)
		w.publishTaskbar(ctx)
	}
	return ctx.Err()
}

func (w *Workspace) reconcile(ctx context.Context, appID int) {
	tok, valid := w.store.Get(ctx, appID)

	w.mu.Lock()
	defer w.mu.Unlock()

	m, ok := w.machines[appID]
	if !ok {
		return
	}
	switch m.State() {
	case lock.Unlocked:
		if !valid {
			if w.hasFocus && w.focused == appID {
				w.stopTrackerLocked()
			}
			w.lockLocked(appID, lock.ReasonExternal)
			return
		}
		w.headers.Set(appID, tok)

	case lock.Locked:
		if !valid || !w.hasFocus || w.focused != appID {
			return
		}
		if err := m.Unlock(); err != nil {
			return
		}
		metrics.AppUnlocks.Inc()
		w.headers.Set(appID, tok)
		w.startTrackerLocked(ctx, appID)
		w.publishState(appID, m, "")
	}
}

// onExpired runs on the tracker's goroutine after it has stopped. Callbacks
// from a tracker that has since been replaced are ignored.
func (w *Workspace) onExpired(t *activity.Tracker, reason lock.Reason) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.tracker != t {
		return
	}
	w.tracker = nil
	appID := t.AppID()
	if reason == lock.ReasonTrackerFailure {
		if err := w.store.Remove(context.Background(), appID); err != nil {
			log.Err(err).Int("app_id", appID).Msg("[onExpired] remove session")
		}
	}
	w.lockLocked(appID, reason)
	w.publishTaskbar(context.Background())
}

func (w *Workspace) machine(appID int) *lock.Machine {
	m, ok := w.machines[appID]
	if !ok {
		m = lock.New()
		w.machines[appID] = m
	}
	return m
}

func (w *Workspace) lockLocked(appID int, reason lock.Reason) {
	w.headers.Clear(appID)
	m := w.machine(appID)
	if m.Lock(reason) {
		metrics.AppLocks.WithLabelValues(string(reason)).Inc()
		log.Info().Int("app_id", appID).Str("reason", string(reason)).Msg("app locked")
		w.publishState(appID, m, "")
	}
}

func (w *Workspace) startTrackerLocked(ctx context.Context, appID int) {
	w.stopTrackerLocked()

	var t *activity.Tracker
	t = activity.NewTracker(appID, w.store, w.source, func(_ int, reason lock.Reason) {
		w.onExpired(t, reason)
	}, w.trackerOpts...)
	if err := t.Start(context.WithoutCancel(ctx)); err != nil {
		log.Err(err).Int("app_id", appID).Msg("[startTracker]")
		return
	}
	w.tracker = t
}

func (w *Workspace) stopTrackerLocked() {
	if w.tracker != nil {
		w.tracker.Stop()
		w.tracker = nil
	}
}

func (w *Workspace) publishState(appID int, m *lock.Machine, message string) {
	w.events.publish(Event{
		Kind:    StateChanged,
		AppID:   appID,
		State:   m.State(),
		Reason:  m.LastReason(),
		Message: message,
	})
}

func (w *Workspace) publishTaskbar(ctx context.Context) {
	w.events.publishTaskbar(w.store.ActiveAppIDs(ctx))
}
