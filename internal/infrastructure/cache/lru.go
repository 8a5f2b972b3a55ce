// Package cache provides the ccache-backed implementation of the bounded
// caches used by the eligibility and schema collaborators.
package cache

import (
	"sync"
	"time"

	"github.com/karlseguin/ccache/v3"

	"docgate/internal/infrastructure/metrics"
)

// LRU is a size-bounded cache with per-entry TTL.
type LRU[T any] struct {
	name      string
	c         *ccache.Cache[T]
	closeOnce sync.Once
}

// NewLRU creates a cache holding at most maxSize entries. name labels the
// hit/miss metrics.
func NewLRU[T any](name string, maxSize int64) *LRU[T] {
	if maxSize <= 0 {
		maxSize = 1024
	}
	prune := maxSize / 16
	if prune < 1 {
		prune = 1
	}
	return &LRU[T]{
		name: name,
		c:    ccache.New(ccache.Configure[T]().MaxSize(maxSize).ItemsToPrune(uint32(prune))),
	}
}

// Fetch returns the cached value or loads, stores and returns a fresh one.
// Concurrent misses on the same key may each call load.
func (l *LRU[T]) Fetch(key string, ttl time.Duration, load func() (T, error)) (T, error) {
	if item := l.c.Get(key); item != nil && !item.Expired() {
		metrics.CacheResult(l.name, true)
		return item.Value(), nil
	}
	metrics.CacheResult(l.name, false)

	v, err := load()
	if err != nil {
		var zero T
		return zero, err
	}
	l.c.Set(key, v, ttl)
	return v, nil
}

func (l *LRU[T]) Delete(key string) {
	l.c.Delete(key)
}

func (l *LRU[T]) DeletePrefix(prefix string) int {
	return l.c.DeletePrefix(prefix)
}

// Clear drops every entry.
func (l *LRU[T]) Clear() {
	l.c.Clear()
}

// Stop releases the cache's background goroutine. Safe to call twice.
func (l *LRU[T]) Stop() {
	l.closeOnce.Do(func() {
		l.c.Stop()
	})
}
