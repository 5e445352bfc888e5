// Package kv defines the durable key/value store app sessions are persisted in.
//
// Every backing publishes an Event for each mutation so that observers in other
// execution contexts (another process, another host sharing the same backing)
// can react without polling.
package kv

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("key not found")
	ErrClosed   = errors.New("store closed")
)

// Op is the kind of mutation an Event reports.
type Op string

const (
	OpSet    Op = "set"
	OpDelete Op = "delete"
)

// Event describes a single key mutation.
type Event struct {
	Key string `json:"key"`
	Op  Op     `json:"op"`
}

// Store is a persistent key/value store with change notification.
type Store interface {
	// Get returns the value for key, or ErrNotFound
	Get(ctx context.Context, key string) (string, error)

	// Set writes or overwrites key
	Set(ctx context.Context, key, value string) error

	// Delete removes keys. Deleting an absent key is not an error.
	Delete(ctx context.Context, keys ...string) error

	// DeleteIf removes key only while it still holds value, and reports
	// whether it did
	DeleteIf(ctx context.Context, key, value string) (bool, error)

	// Keys lists every key starting with prefix, sorted
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Watch streams mutation events until ctx is done, then closes the channel
	Watch(ctx context.Context) (<-chan Event, error)

	// Close releases the backing resources
	Close() error
}
