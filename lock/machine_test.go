package lock_test

import (
	"testing"

	"github.com/jrsteele09/go-app-lock/lock"
	"github.com/stretchr/testify/require"
)

func TestMachine_HappyPath(t *testing.T) {
	m := lock.New()
	require.Equal(t, lock.Locked, m.State())

	attempt, err := m.Begin()
	require.NoError(t, err)
	require.Equal(t, lock.Authenticating, m.State())
	require.True(t, m.Current(attempt))

	require.NoError(t, m.Succeed(attempt))
	require.Equal(t, lock.Unlocked, m.State())
	require.False(t, m.Current(attempt))

	require.True(t, m.Lock(lock.ReasonExpired))
	require.Equal(t, lock.Locked, m.State())
	require.Equal(t, lock.ReasonExpired, m.LastReason())
}

func TestMachine_FailReturnsToLocked(t *testing.T) {
	m := lock.New()
	attempt, err := m.Begin()
	require.NoError(t, err)

	require.NoError(t, m.Fail(attempt))
	require.Equal(t, lock.Locked, m.State())

	_, err = m.Begin()
	require.NoError(t, err, "a failed attempt can be retried")
}

func TestMachine_InvalidTransitions(t *testing.T) {
	t.Run("begin while authenticating", func(t *testing.T) {
		m := lock.New()
		_, err := m.Begin()
		require.NoError(t, err)
		_, err = m.Begin()
		require.ErrorIs(t, err, lock.ErrInvalidTransition)
	})

	t.Run("begin while unlocked", func(t *testing.T) {
		m := lock.New()
		require.NoError(t, m.Unlock())
		_, err := m.Begin()
		require.ErrorIs(t, err, lock.ErrInvalidTransition)
	})

	t.Run("succeed twice", func(t *testing.T) {
		m := lock.New()
		attempt, err := m.Begin()
		require.NoError(t, err)
		require.NoError(t, m.Succeed(attempt))
		require.ErrorIs(t, m.Succeed(attempt), lock.ErrInvalidTransition)
	})

	t.Run("unlock while authenticating", func(t *testing.T) {
		m := lock.New()
		_, err := m.Begin()
		require.NoError(t, err)
		require.ErrorIs(t, m.Unlock(), lock.ErrInvalidTransition)
	})
}

func TestMachine_LockAbandonsAttempt(t *testing.T) {
	m := lock.New()
	attempt, err := m.Begin()
	require.NoError(t, err)

	require.True(t, m.Lock(lock.ReasonAbandoned))
	require.False(t, m.Current(attempt))
	require.ErrorIs(t, m.Succeed(attempt), lock.ErrStale)
	require.Equal(t, lock.Locked, m.State())

	next, err := m.Begin()
	require.NoError(t, err)
	require.ErrorIs(t, m.Fail(attempt), lock.ErrStale)
	require.NoError(t, m.Succeed(next))
}

func TestMachine_LockWhenLocked(t *testing.T) {
	m := lock.New()
	require.False(t, m.Lock(lock.ReasonClosed))
	require.Equal(t, lock.ReasonClosed, m.LastReason())
}

func TestState_String(t *testing.T) {
	require.Equal(t, "locked", lock.Locked.String())
	require.Equal(t, "authenticating", lock.Authenticating.String())
	require.Equal(t, "unlocked", lock.Unlocked.String())
	require.Equal(t, "state(9)", lock.State(9).String())
}
