package parentsession_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-app-lock/server/parentsession"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRepo(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	repo := parentsession.NewInMemoryRepo(parentsession.WithNowTime(func() time.Time { return now }))

	require.Error(t, repo.Upsert("", parentsession.Session{}))
	require.NoError(t, repo.Upsert("tok", parentsession.Session{UserID: "user-1", ExpiresAt: now.Add(time.Hour)}))

	s, err := repo.Get("tok")
	require.NoError(t, err)
	require.Equal(t, "user-1", s.UserID)

	now = now.Add(time.Hour)
	_, err = repo.Get("tok")
	require.ErrorIs(t, err, parentsession.ErrNotFound)

	require.NoError(t, repo.Upsert("forever", parentsession.Session{UserID: "user-2"}))
	_, err = repo.Get("forever")
	require.NoError(t, err)

	require.NoError(t, repo.Delete("forever"))
	_, err = repo.Get("forever")
	require.ErrorIs(t, err, parentsession.ErrNotFound)
}
