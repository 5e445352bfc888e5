// Package filekv stores each key as a file in a directory. Writes go through a
// temporary file and a rename so readers in other processes never observe a
// partial value, and Watch uses fsnotify so those processes see each other's
// changes.
package filekv

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/jrsteele09/go-app-lock/kv"
	"github.com/rs/zerolog/log"
)

const (
	fileSuffix = ".kv"
	tempPrefix = ".tmp-"
)

var _ kv.Store = (*Store)(nil)

type Store struct {
	dir  string
	lock sync.Mutex
}

// New creates dir if needed and returns a store rooted there.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("[filekv.New] create %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return "", kv.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("[filekv.Get] %s: %w", key, err)
	}
	return string(data), nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	tmp, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("[filekv.Set] create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		return fmt.Errorf("[filekv.Set] write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("[filekv.Set] close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return fmt.Errorf("[filekv.Set] rename %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, key := range keys {
		if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("[filekv.Delete] %s: %w", key, err)
		}
	}
	return nil
}

// DeleteIf compares and removes under the store's lock. Writers in other
// processes are not excluded between the compare and the remove.
func (s *Store) DeleteIf(_ context.Context, key, value string) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("[filekv.DeleteIf] read %s: %w", key, err)
	}
	if string(data) != value {
		return false, nil
	}
	if err := os.Remove(s.path(key)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("[filekv.DeleteIf] %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("[filekv.Keys] read dir: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		key, ok := keyFromFile(entry.Name())
		if ok && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Watch reports changes made by any process writing to the directory.
func (s *Store) Watch(ctx context.Context) (<-chan kv.Event, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("[filekv.Watch] new watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("[filekv.Watch] watch %s: %w", s.dir, err)
	}

	out := make(chan kv.Event, 64)
	go func() {
		defer close(out)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				ev, ok := toEvent(event)
				if !ok {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Err(err).Str("dir", s.dir).Msg("filekv watcher error")
			}
		}
	}()
	return out, nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, fileName(key))
}

func toEvent(event fsnotify.Event) (kv.Event, bool) {
	key, ok := keyFromFile(filepath.Base(event.Name))
	if !ok {
		return kv.Event{}, false
	}
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return kv.Event{Key: key, Op: kv.OpDelete}, true
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		return kv.Event{Key: key, Op: kv.OpSet}, true
	}
	return kv.Event{}, false
}

// fileName encodes the key so any key maps to a portable file name.
func fileName(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key)) + fileSuffix
}

func keyFromFile(name string) (string, bool) {
	if strings.HasPrefix(name, tempPrefix) || !strings.HasSuffix(name, fileSuffix) {
		return "", false
	}
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, fileSuffix))
	if err != nil {
		return "", false
	}
	return string(decoded), true
}
