package filekv_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-app-lock/kv"
	"github.com/jrsteele09/go-app-lock/kv/filekv"
	"github.com/jrsteele09/go-app-lock/kv/kvtest"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Store {
		s, err := filekv.New(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestStore_SecondInstanceSeesWrites(t *testing.T) {
	dir := t.TempDir()
	writer, err := filekv.New(dir)
	require.NoError(t, err)
	reader, err := filekv.New(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := reader.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, writer.Set(ctx, "session:3", "tok"))
	kvtest.WaitForEvent(t, events, kv.Event{Key: "session:3", Op: kv.OpSet})

	value, err := reader.Get(ctx, "session:3")
	require.NoError(t, err)
	require.Equal(t, "tok", value)
}

func TestStore_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := filekv.New(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("hi"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "!!!.kv"), []byte("hi"), 0o600))
	require.NoError(t, s.Set(context.Background(), "session:1", "a"))

	keys, err := s.Keys(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, []string{"session:1"}, keys)
}
