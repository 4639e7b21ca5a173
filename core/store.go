package core

import (
	"context"
	"errors"
)

var ErrKeyNotFound = errors.New("key not found")

// KVStore is a durable key-value store.
// It is fallible: callers must never assume a Set was durable.
type KVStore interface {
	// Get returns ErrKeyNotFound when key is absent.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Delete is a noop when key is absent.
	Delete(ctx context.Context, key string) error
	Close() error
}
