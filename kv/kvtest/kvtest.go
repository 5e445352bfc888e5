// Package kvtest is a conformance suite every kv.Store backing must pass.
package kvtest

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/go-app-lock/kv"
	"github.com/stretchr/testify/require"
)

const eventTimeout = 2 * time.Second

// Run exercises store. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) kv.Store) {
	t.Run("get missing key", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "session:1")
		require.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("set then get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, "session:1", `{"token":"a"}`))

		value, err := s.Get(ctx, "session:1")
		require.NoError(t, err)
		require.Equal(t, `{"token":"a"}`, value)
	})

	t.Run("set overwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, "activity:1", "100"))
		require.NoError(t, s.Set(ctx, "activity:1", "200"))

		value, err := s.Get(ctx, "activity:1")
		require.NoError(t, err)
		require.Equal(t, "200", value)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, "session:1", "x"))
		require.NoError(t, s.Delete(ctx, "session:1", "activity:1"))
		require.NoError(t, s.Delete(ctx, "session:1"))

		_, err := s.Get(ctx, "session:1")
		require.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("delete if value matches", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, "session:1", "old"))
		require.NoError(t, s.Set(ctx, "session:1", "new"))

		deleted, err := s.DeleteIf(ctx, "session:1", "old")
		require.NoError(t, err)
		require.False(t, deleted)
		value, err := s.Get(ctx, "session:1")
		require.NoError(t, err)
		require.Equal(t, "new", value)

		deleted, err = s.DeleteIf(ctx, "session:1", "new")
		require.NoError(t, err)
		require.True(t, deleted)
		_, err = s.Get(ctx, "session:1")
		require.ErrorIs(t, err, kv.ErrNotFound)

		deleted, err = s.DeleteIf(ctx, "session:1", "new")
		require.NoError(t, err)
		require.False(t, deleted)
	})

	t.Run("keys by prefix", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, "session:2", "b"))
		require.NoError(t, s.Set(ctx, "session:1", "a"))
		require.NoError(t, s.Set(ctx, "activity:1", "1"))

		keys, err := s.Keys(ctx, "session:")
		require.NoError(t, err)
		require.Equal(t, []string{"session:1", "session:2"}, keys)

		keys, err = s.Keys(ctx, "nothing:")
		require.NoError(t, err)
		require.Empty(t, keys)
	})

	t.Run("watch reports set and delete", func(t *testing.T) {
		s := newStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		events, err := s.Watch(ctx)
		require.NoError(t, err)

		require.NoError(t, s.Set(ctx, "session:7", "x"))
		WaitForEvent(t, events, kv.Event{Key: "session:7", Op: kv.OpSet})

		require.NoError(t, s.Delete(ctx, "session:7"))
		WaitForEvent(t, events, kv.Event{Key: "session:7", Op: kv.OpDelete})

		require.NoError(t, s.Set(ctx, "activity:7", "1"))
		WaitForEvent(t, events, kv.Event{Key: "activity:7", Op: kv.OpSet})
		deleted, err := s.DeleteIf(ctx, "activity:7", "1")
		require.NoError(t, err)
		require.True(t, deleted)
		WaitForEvent(t, events, kv.Event{Key: "activity:7", Op: kv.OpDelete})
	})

	t.Run("watch closes when context is done", func(t *testing.T) {
		s := newStore(t)
		ctx, cancel := context.WithCancel(context.Background())

		events, err := s.Watch(ctx)
		require.NoError(t, err)
		cancel()

		require.Eventually(t, func() bool {
			select {
			case _, ok := <-events:
				return !ok
			default:
				return false
			}
		}, eventTimeout, 10*time.Millisecond)
	})
}

// WaitForEvent drains events until want arrives or the timeout passes.
func WaitForEvent(t *testing.T, events <-chan kv.Event, want kv.Event) {
	t.Helper()

	timeout := time.After(eventTimeout)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "event channel closed waiting for %+v", want)
			if ev == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for event %+v", want)
		}
	}
}
