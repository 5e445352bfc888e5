package workspace_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-app-lock/activity"
	"github.com/jrsteele09/go-app-lock/appsession"
	"github.com/jrsteele09/go-app-lock/kv/memkv"
	"github.com/jrsteele09/go-app-lock/lock"
	"github.com/jrsteele09/go-app-lock/reauth"
	"github.com/jrsteele09/go-app-lock/token"
	"github.com/jrsteele09/go-app-lock/workspace"
	"github.com/stretchr/testify/require"
)

const (
	testPassword = "correct horse"
	testMFACode  = "123456"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type manualTicker struct {
	ch chan time.Time
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               {}

type tickers struct {
	mu  sync.Mutex
	all []*manualTicker
}

func (ts *tickers) factory(time.Duration) activity.Ticker {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t := &manualTicker{ch: make(chan time.Time)}
	ts.all = append(ts.all, t)
	return t
}

func (ts *tickers) last() *manualTicker {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.all[len(ts.all)-1]
}

// fakeAuthenticator accepts testPassword and testMFACode. When gate is set
// each exchange waits for a value on it.
type fakeAuthenticator struct {
	t       *testing.T
	gate    chan struct{}
	started chan struct{}
}

func (f *fakeAuthenticator) Exchange(ctx context.Context, appID int, creds reauth.Credentials) (string, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if creds.Password != testPassword && creds.MFACode != testMFACode {
		return "", &reauth.Error{Message: "Incorrect password or code"}
	}
	return newToken(f.t, appID), nil
}

func newToken(t *testing.T, appID int) string {
	raw, err := token.NewHMACSigner("test-secret").Sign(jwt.MapClaims{"sub": "user-1", "app_id": appID})
	require.NoError(t, err)
	return raw
}

type fixture struct {
	kv      *memkv.Store
	clock   *clock
	store   *appsession.Store
	bus     *activity.Bus
	tickers *tickers
	auth    *fakeAuthenticator
	ws      *workspace.Workspace
}

func setupWorkspace(t *testing.T) *fixture {
	t.Helper()

	backing := memkv.New()
	t.Cleanup(func() { _ = backing.Close() })
	return newFixture(t, backing, &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)})
}

// newFixture builds a second context over the same backing and clock.
func newFixture(t *testing.T, backing *memkv.Store, c *clock) *fixture {
	t.Helper()

	store, err := appsession.New(backing, appsession.WithNowTime(c.Now))
	require.NoError(t, err)

	f := &fixture{
		kv:      backing,
		clock:   c,
		store:   store,
		bus:     activity.NewBus(),
		tickers: &tickers{},
		auth:    &fakeAuthenticator{t: t},
	}
	f.ws, err = workspace.New(workspace.Config{
		Store:  store,
		Flow:   reauth.Flow{Authenticator: f.auth, MFAEnabled: true},
		Source: f.bus,
		TrackerOptions: []activity.TrackerOption{
			activity.WithTicker(f.tickers.factory),
			activity.WithNowTime(c.Now),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.ws.Logout(context.Background()) })
	return f
}

func waitForEvent(t *testing.T, events <-chan workspace.Event, match func(workspace.Event) bool) workspace.Event {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "event stream closed")
			if match(ev) {
				return ev
			}
		case <-timeout:
			require.FailNow(t, "timed out waiting for workspace event")
		}
	}
}

func stateIs(appID int, state lock.State) func(workspace.Event) bool {
	return func(ev workspace.Event) bool {
		return ev.Kind == workspace.StateChanged && ev.AppID == appID && ev.State == state
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := workspace.New(workspace.Config{Source: activity.NewBus()})
	require.Error(t, err)

	store, err := appsession.New(memkv.New())
	require.NoError(t, err)
	_, err = workspace.New(workspace.Config{Store: store})
	require.Error(t, err)
}

func TestWorkspace_UnlockWithPassword(t *testing.T) {
	ctx := context.Background()
	f := setupWorkspace(t)
	events, cancel := f.ws.Events()
	defer cancel()

	require.Equal(t, lock.Locked, f.ws.Open(ctx, 1))
	focused, ok := f.ws.Focused()
	require.True(t, ok)
	require.Equal(t, 1, focused)

	require.NoError(t, f.ws.Submit(ctx, 1, reauth.Password(testPassword)))
	require.Equal(t, lock.Unlocked, f.ws.State(1))

	waitForEvent(t, events, stateIs(1, lock.Authenticating))
	waitForEvent(t, events, stateIs(1, lock.Unlocked))
	ev := waitForEvent(t, events, func(ev workspace.Event) bool {
		return ev.Kind == workspace.TaskbarChanged && len(ev.Active) == 1
	})
	require.Equal(t, []int{1}, ev.Active)

	tok, ok := f.store.Get(ctx, 1)
	require.True(t, ok)
	header, ok := f.ws.Headers().Token(1)
	require.True(t, ok)
	require.Equal(t, tok, header)
	require.Equal(t, []int{1}, f.ws.ActiveAppIDs(ctx))
}

func TestWorkspace_UnlockWithMFA(t *testing.T) {
	ctx := context.Background()
	f := setupWorkspace(t)

	f.ws.Open(ctx, 3)
	require.NoError(t, f.ws.Submit(ctx, 3, reauth.MFA("123 456")))
	require.Equal(t, lock.Unlocked, f.ws.State(3))
}

func TestWorkspace_FailedSubmit(t *testing.T) {
	ctx := context.Background()
	f := setupWorkspace(t)
	events, cancel := f.ws.Events()
	defer cancel()

	f.ws.Open(ctx, 1)
	err := f.ws.Submit(ctx, 1, reauth.Password("wrong"))
	require.Error(t, err)
	require.Equal(t, "Incorrect password or code", reauth.UserMessage(err))
	require.Equal(t, lock.Locked, f.ws.State(1))

	ev := waitForEvent(t, events, func(ev workspace.Event) bool {
		return ev.Kind == workspace.StateChanged && ev.State == lock.Locked && ev.Message != ""
	})
	require.Equal(t, "Incorrect password or code", ev.Message)

	_, ok := f.store.Get(ctx, 1)
	require.False(t, ok)

	require.NoError(t, f.ws.Submit(ctx, 1, reauth.Password(testPassword)), "retry after failure")
}

func TestWorkspace_InvalidMFAIsRejectedLocally(t *testing.T) {
	ctx := context.Background()
	f := setupWorkspace(t)
	f.auth.started = make(chan struct{}, 1)

	f.ws.Open(ctx, 1)
	err := f.ws.Submit(ctx, 1, reauth.MFA("12345"))
	require.ErrorIs(t, err, reauth.ErrInvalidMFACode)
	require.Empty(t, f.auth.started)
	require.Equal(t, lock.Locked, f.ws.State(1))
}

func TestWorkspace_SubmitRequiresFocus(t *testing.T) {
	f := setupWorkspace(t)
	require.ErrorIs(t, f.ws.Submit(context.Background(), 1, reauth.Password(testPassword)), workspace.ErrNotFocused)
}

func TestWorkspace_AbandonedReauthNeverStores(t *testing.T) {
	ctx := context.Background()
	f := setupWorkspace(t)
	f.auth.gate = make(chan struct{})
	f.auth.started = make(chan struct{}, 1)

	f.ws.Open(ctx, 1)
	result := make(chan error, 1)
	go func() {
		result <- f.ws.Submit(ctx, 1, reauth.Password(testPassword))
	}()
	<-f.auth.started
	require.Equal(t, lock.Authenticating, f.ws.State(1))

	f.ws.Open(ctx, 2)
	require.Equal(t, lock.Locked, f.ws.State(1))

	close(f.auth.gate)
	require.ErrorIs(t, <-result, workspace.ErrAbandoned)

	_, ok := f.store.Get(ctx, 1)
	require.False(t, ok)
	require.Equal(t, lock.Locked, f.ws.State(1))
	_, ok = f.ws.Headers().Token(1)
	require.False(t, ok)
}

func TestWorkspace_OpenWithStoredSession(t *testing.T) {
	ctx := context.Background()
	f := setupWorkspace(t)
	require.NoError(t, f.store.Put(ctx, 5, newToken(t, 5)))

	require.Equal(t, lock.Unlocked, f.ws.Open(ctx, 5))
	_, ok := f.ws.Headers().Token(5)
	require.True(t, ok)
}

func TestWorkspace_OpenAfterTimeoutIsLocked(t *testing.T) {
	ctx := context.Background()
	f := setupWorkspace(t)

	f.ws.Open(ctx, 1)
	require.NoError(t, f.ws.Submit(ctx, 1, reauth.Password(testPassword)))
	f.ws.Open(ctx, 2)

	f.clock.Advance(16 * time.Minute)
	require.Equal(t, lock.Locked, f.ws.Open(ctx, 1))
	_, ok := f.ws.Headers().Token(1)
	require.False(t, ok)
}

func TestWorkspace_IdleTrackerLocks(t *testing.T) {
	ctx := context.Background()
	f := setupWorkspace(t)

	f.ws.Open(ctx, 1)
	require.NoError(t, f.ws.Submit(ctx, 1, reauth.Password(testPassword)))
	events, cancel := f.ws.Events()
	defer cancel()

	f.clock.Advance(5 * time.Minute)
	f.tickers.last().ch <- f.clock.Now()
	require.Equal(t, lock.Unlocked, f.ws.State(1))

	f.clock.Advance(11 * time.Minute)
	f.tickers.last().ch <- f.clock.Now()

	ev := waitForEvent(t, events, stateIs(1, lock.Locked))
	require.Equal(t, lock.ReasonExpired, ev.Reason)
	require.Equal(t, lock.Locked, f.ws.State(1))
	_, ok := f.ws.Headers().Token(1)
	require.False(t, ok)
}

func TestWorkspace_ActivityKeepsAppUnlocked(t *testing.T) {
	ctx := context.Background()
	f := setupWorkspace(t)

	f.ws.Open(ctx, 1)
	require.NoError(t, f.ws.Submit(ctx, 1, reauth.Password(testPassword)))

	for i := 0; i < 6; i++ {
		f.clock.Advance(5 * time.Minute)
		f.bus.Publish(activity.KeyDown)
		want := f.clock.Now()
		require.Eventually(t, func() bool {
			rec, err := f.store.Record(ctx, 1)
			return err == nil && rec.LastActivity.Equal(want)
		}, time.Second, 5*time.Millisecond)
		f.tickers.last().ch <- f.clock.Now()
	}
	require.Equal(t, lock.Unlocked, f.ws.State(1))
}

func TestWorkspace_Close(t *testing.T) {
	ctx := context.Background()
	f := setupWorkspace(t)

	f.ws.Open(ctx, 1)
	require.NoError(t, f.ws.Submit(ctx, 1, reauth.Password(testPassword)))

	require.NoError(t, f.ws.Close(ctx, 1))
	require.NoError(t, f.ws.Close(ctx, 1))
	require.Equal(t, lock.Locked, f.ws.State(1))
	_, focused := f.ws.Focused()
	require.False(t, focused)
	require.Empty(t, f.ws.ActiveAppIDs(ctx))
}

func TestWorkspace_Logout(t *testing.T) {
	ctx := context.Background()
	f := setupWorkspace(t)

	for _, id := range []int{1, 2} {
		f.ws.Open(ctx, id)
		require.NoError(t, f.ws.Submit(ctx, id, reauth.Password(testPassword)))
	}
	require.Equal(t, []int{1, 2}, f.ws.ActiveAppIDs(ctx))

	require.NoError(t, f.ws.Logout(ctx))
	require.Empty(t, f.ws.ActiveAppIDs(ctx))
	require.Equal(t, lock.Locked, f.ws.State(1))
	require.Equal(t, lock.Locked, f.ws.State(2))
	_, ok := f.ws.Headers().Token(2)
	require.False(t, ok)
}

func startRun(t *testing.T, f *fixture) <-chan workspace.Event {
	t.Helper()

	events, cancelEvents := f.ws.Events()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.ws.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.ErrorIs(t, <-done, context.Canceled)
		cancelEvents()
	})

	waitForEvent(t, events, func(ev workspace.Event) bool { return ev.Kind == workspace.TaskbarChanged })
	return events
}

func TestWorkspace_LockedByOtherContext(t *testing.T) {
	ctx := context.Background()
	first := setupWorkspace(t)
	second := newFixture(t, first.kv, first.clock)

	first.ws.Open(ctx, 1)
	require.NoError(t, first.ws.Submit(ctx, 1, reauth.Password(testPassword)))
	events := startRun(t, first)

	require.NoError(t, second.ws.Close(ctx, 1))

	ev := waitForEvent(t, events, stateIs(1, lock.Locked))
	require.Equal(t, lock.ReasonExternal, ev.Reason)
	_, ok := first.ws.Headers().Token(1)
	require.False(t, ok)
}

func TestWorkspace_UnlockedByOtherContext(t *testing.T) {
	ctx := context.Background()
	first := setupWorkspace(t)
	second := newFixture(t, first.kv, first.clock)

	require.Equal(t, lock.Locked, first.ws.Open(ctx, 1))
	events := startRun(t, first)

	second.ws.Open(ctx, 1)
	require.NoError(t, second.ws.Submit(ctx, 1, reauth.Password(testPassword)))

	waitForEvent(t, events, stateIs(1, lock.Unlocked))
	require.Equal(t, lock.Unlocked, first.ws.State(1))
}

func TestWorkspace_ReauthElsewhereKeepsAppUnlocked(t *testing.T) {
	ctx := context.Background()
	first := setupWorkspace(t)
	second := newFixture(t, first.kv, first.clock)

	first.ws.Open(ctx, 1)
	require.NoError(t, first.ws.Submit(ctx, 1, reauth.Password(testPassword)))
	events := startRun(t, first)

	fresh, err := token.NewHMACSigner("test-secret").Sign(jwt.MapClaims{"sub": "user-1", "app_id": 1, "jti": "second"})
	require.NoError(t, err)
	require.NoError(t, second.store.Put(ctx, 1, fresh))

	require.Eventually(t, func() bool {
		tok, ok := first.ws.Headers().Token(1)
		return ok && tok == fresh
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, lock.Unlocked, first.ws.State(1))

	for len(events) > 0 {
		require.False(t, stateIs(1, lock.Locked)(<-events), "app locked by a re-authentication elsewhere")
	}
}

func TestWorkspace_LogoutElsewhereLocksEverything(t *testing.T) {
	ctx := context.Background()
	first := setupWorkspace(t)
	second := newFixture(t, first.kv, first.clock)

	for _, id := range []int{1, 2} {
		first.ws.Open(ctx, id)
		require.NoError(t, first.ws.Submit(ctx, id, reauth.Password(testPassword)))
	}
	events := startRun(t, first)

	require.NoError(t, second.ws.Logout(ctx))
	waitForEvent(t, events, func(ev workspace.Event) bool {
		return ev.Kind == workspace.TaskbarChanged && len(ev.Active) == 0
	})
	require.Eventually(t, func() bool {
		return first.ws.State(1) == lock.Locked && first.ws.State(2) == lock.Locked
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTransport_AttachesAppToken(t *testing.T) {
	ctx := context.Background()
	f := setupWorkspace(t)

	seen := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get("Authorization")
	}))
	defer srv.Close()

	f.ws.Open(ctx, 1)
	require.NoError(t, f.ws.Submit(ctx, 1, reauth.Password(testPassword)))
	tok, _ := f.ws.Headers().Token(1)

	client := f.ws.Headers().Client()
	do := func(ctx context.Context) string {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		require.NoError(t, err)
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return <-seen
	}

	require.Equal(t, "Bearer "+tok, do(workspace.WithApp(ctx, 1)))
	require.Empty(t, do(workspace.WithApp(ctx, 2)))
	require.Empty(t, do(ctx))

	require.NoError(t, f.ws.Close(ctx, 1))
	require.Empty(t, do(workspace.WithApp(ctx, 1)))
}

func TestAppFromContext(t *testing.T) {
	_, ok := workspace.AppFromContext(context.Background())
	require.False(t, ok)

	id, ok := workspace.AppFromContext(workspace.WithApp(context.Background(), 9))
	require.True(t, ok)
	require.Equal(t, 9, id)
}
