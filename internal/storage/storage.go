// Package storage defines the local persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("not found")

// Storage is opaque key-value storage partitioned by scope (one scope per chat).
type Storage interface {
	Get(ctx context.Context, scope, key string) (string, error)
	Set(ctx context.Context, scope, key, value string) error
	Delete(ctx context.Context, scope, key string) error
	// ScopesWithKey lists every scope holding a value for key.
	ScopesWithKey(ctx context.Context, key string) ([]string, error)

	Close() error
}
