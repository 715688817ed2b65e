package session

import (
	"context"
	"errors"
)

// ErrNotFound keeps store-specific misses consistent across the in-memory and
// Redis implementations so services can translate them into domain errors.
var ErrNotFound = errors.New("session not found")

// Store is the key-value capability this service requires: string payloads,
// blind overwrites, single logical database. Implementations must return
// ErrNotFound from Get when the key is absent.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}
