// Package cache declares the bounded, expiring cache collaborators are
// built on. Implementations live in internal/infrastructure/cache.
package cache

import "time"

// Cache is a size-bounded key/value store with per-entry expiry.
// Implementations must be safe for concurrent use.
type Cache[T any] interface {
	// Fetch returns the live entry for key or stores the result of load.
	// Errors from load are returned and nothing is stored.
	Fetch(key string, ttl time.Duration, load func() (T, error)) (T, error)
	Delete(key string)
	// DeletePrefix drops every entry whose key starts with prefix and
	// returns how many were removed.
	DeletePrefix(prefix string) int
}

// Passthrough is a Cache that never stores anything.
type Passthrough[T any] struct{}

func (Passthrough[T]) Fetch(_ string, _ time.Duration, load func() (T, error)) (T, error) {
	return load()
}

func (Passthrough[T]) Delete(string) {}

func (Passthrough[T]) DeletePrefix(string) int { return 0 }
