// Package cache provides generic, thread-safe caches used for Telegram
// entity lookups (chat titles, user records).
//
// Two implementations are offered: a SimpleCache with no eviction, and an
// LRUCache bounded by entry count. Both keep statistics (always enabled for
// observability) and can optionally expose them as Prometheus metrics via
// functional options.
package cache

import (
	"github.com/ammarfaizi2/green-tea-bot/errors"
)

// Cache is the interface both implementations satisfy. Keys are any
// comparable type; entity caches key by int64 Telegram ids.
type Cache[K comparable, V any] interface {
	// Get retrieves a value by key. Returns the zero value and false when
	// the key is absent.
	Get(key K) (V, bool)

	// Set stores a value. Returns true if a new entry was created, false
	// if an existing one was updated.
	Set(key K, value V) bool

	// Delete removes an entry. Returns true if the key existed.
	Delete(key K) bool

	// Clear removes all entries.
	Clear()

	// Size returns the current number of entries.
	Size() int

	// Stats returns the cache's statistics tracker.
	Stats() *Statistics
}

// EvictCallback is invoked with each entry removed by eviction, Delete, or
// Clear.
type EvictCallback[K comparable, V any] func(key K, value V)

// NewSimple creates a cache with no eviction policy.
func NewSimple[K comparable, V any](opts ...Option[K, V]) (Cache[K, V], error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, errors.WrapTransient(err, "cache", "NewSimple", "metrics registration")
	}
	return newSimpleCache(o), nil
}

// NewLRU creates a cache that evicts the least recently used entry once
// maxEntries is exceeded.
func NewLRU[K comparable, V any](maxEntries int, opts ...Option[K, V]) (Cache[K, V], error) {
	if maxEntries <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "NewLRU", "maxEntries must be > 0")
	}
	o, err := buildOptions(opts)
	if err != nil {
		return nil, errors.WrapTransient(err, "cache", "NewLRU", "metrics registration")
	}
	return newLRUCache(maxEntries, o), nil
}
