package sqlitekv_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-app-lock/kv"
	"github.com/jrsteele09/go-app-lock/kv/kvtest"
	"github.com/jrsteele09/go-app-lock/kv/sqlitekv"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Store {
		s, err := sqlitekv.Open(context.Background(), filepath.Join(t.TempDir(), "kv.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	ctx := context.Background()

	s, err := sqlitekv.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "session:5", "tok"))
	require.NoError(t, s.Close())

	reopened, err := sqlitekv.Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	value, err := reopened.Get(ctx, "session:5")
	require.NoError(t, err)
	require.Equal(t, "tok", value)
}
