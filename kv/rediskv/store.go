// Package rediskv keeps keys in Redis under a namespace. Each mutation is
// published on a channel in the same transaction, so watchers on any host
// sharing the Redis instance observe it.
package rediskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jrsteele09/go-app-lock/kv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const defaultNamespace = "applock"

// deleteIfScript deletes KEYS[1] and publishes ARGV[3] on ARGV[2] when the
// key holds ARGV[1].
var deleteIfScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	redis.call('DEL', KEYS[1])
	redis.call('PUBLISH', ARGV[2], ARGV[3])
	return 1
end
return 0
`)

var _ kv.Store = (*Store)(nil)

type Store struct {
	client    *redis.Client
	namespace string
	channel   string
}

type Option func(*Store)

// WithNamespace prefixes every key and the event channel.
func WithNamespace(namespace string) Option {
	return func(s *Store) {
		s.namespace = namespace
	}
}

// New wraps client. The store owns the client and closes it on Close.
func New(client *redis.Client, options ...Option) *Store {
	s := &Store{
		client:    client,
		namespace: defaultNamespace,
	}
	for _, opt := range options {
		opt(s)
	}
	s.channel = s.namespace + ":events"
	return s
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", kv.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("[rediskv.Get] %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	payload, err := json.Marshal(kv.Event{Key: key, Op: kv.OpSet})
	if err != nil {
		return fmt.Errorf("[rediskv.Set] marshal event: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(key), value, 0)
		pipe.Publish(ctx, s.channel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("[rediskv.Set] %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			payload, err := json.Marshal(kv.Event{Key: key, Op: kv.OpDelete})
			if err != nil {
				return err
			}
			pipe.Del(ctx, s.key(key))
			pipe.Publish(ctx, s.channel, payload)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("[rediskv.Delete] %w", err)
	}
	return nil
}

func (s *Store) DeleteIf(ctx context.Context, key, value string) (bool, error) {
	payload, err := json.Marshal(kv.Event{Key: key, Op: kv.OpDelete})
	if err != nil {
		return false, fmt.Errorf("[rediskv.DeleteIf] marshal event: %w", err)
	}

	deleted, err := deleteIfScript.Run(ctx, s.client, []string{s.key(key)}, value, s.channel, string(payload)).Int()
	if err != nil {
		return false, fmt.Errorf("[rediskv.DeleteIf] %s: %w", key, err)
	}
	return deleted == 1, nil
}

func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)
	iter := s.client.Scan(ctx, 0, s.key(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.namespace+":"))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("[rediskv.Keys] scan %s: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Watch(ctx context.Context) (<-chan kv.Event, error) {
	sub := s.client.Subscribe(ctx, s.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("[rediskv.Watch] subscribe %s: %w", s.channel, err)
	}

	messages := sub.Channel()
	out := make(chan kv.Event, 64)
	go func() {
		defer close(out)
		defer sub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var ev kv.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Err(err).Str("channel", msg.Channel).Msg("rediskv ignoring malformed event")
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(key string) string {
	return s.namespace + ":" + key
}
