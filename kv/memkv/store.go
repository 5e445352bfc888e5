package memkv

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/jrsteele09/go-app-lock/kv"
)

var _ kv.Store = (*Store)(nil)

// Store keeps every key in a map. Stores sharing one instance observe each
// other's writes, which is how tests model several tabs on one durable store.
type Store struct {
	data   map[string]string
	events *kv.Broadcaster
	lock   sync.RWMutex
}

func New() *Store {
	return &Store{
		data:   make(map[string]string),
		events: kv.NewBroadcaster(),
	}
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	value, ok := s.data[key]
	if !ok {
		return "", kv.ErrNotFound
	}
	return value, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.lock.Lock()
	s.data[key] = value
	s.lock.Unlock()

	s.events.Publish(kv.Event{Key: key, Op: kv.OpSet})
	return nil
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	removed := make([]string, 0, len(keys))

	s.lock.Lock()
	for _, key := range keys {
		if _, ok := s.data[key]; ok {
			delete(s.data, key)
			removed = append(removed, key)
		}
	}
	s.lock.Unlock()

	for _, key := range removed {
		s.events.Publish(kv.Event{Key: key, Op: kv.OpDelete})
	}
	return nil
}

func (s *Store) DeleteIf(_ context.Context, key, value string) (bool, error) {
	s.lock.Lock()
	current, ok := s.data[key]
	if !ok || current != value {
		s.lock.Unlock()
		return false, nil
	}
	delete(s.data, key)
	s.lock.Unlock()

	s.events.Publish(kv.Event{Key: key, Op: kv.OpDelete})
	return true, nil
}

func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	keys := make([]string, 0)
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Watch(ctx context.Context) (<-chan kv.Event, error) {
	return s.events.Subscribe(ctx), nil
}

func (s *Store) Close() error {
	s.events.Close()
	return nil
}
