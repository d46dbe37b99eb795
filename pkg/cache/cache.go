// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache implements a small generic expiring cache. Entries carry
// the time they were established and a TTL; expired entries are evicted
// lazily on read, never by a background sweeper.
package cache

import (
	"sync"
	"time"
)

// Entry is a cached value with its establishment time.
type Entry[V any] struct {
	Value       V
	Established time.Time
}

// Cache is a concurrency-safe TTL cache keyed by K.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[K]Entry[V]
	now     func() time.Time
}

// New creates a cache whose entries expire ttl after being set.
// A non-positive ttl means entries never expire.
func New[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		ttl:     ttl,
		entries: make(map[K]Entry[V]),
		now:     time.Now,
	}
}

// Get returns the fresh value for key. Expired entries are treated as
// absent and removed.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if c.expired(entry) {
		c.mu.Lock()
		// Re-check under the write lock; the entry may have been refreshed.
		if current, still := c.entries[key]; still && c.expired(current) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return entry.Value, true
}

// Set stores value under key, stamping it with the current time.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	c.entries[key] = Entry[V]{Value: value, Established: c.now()}
	c.mu.Unlock()
}

// Delete removes key if present.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len counts entries that are still fresh.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, entry := range c.entries {
		if !c.expired(entry) {
			n++
		}
	}
	return n
}

func (c *Cache[K, V]) expired(entry Entry[V]) bool {
	if c.ttl <= 0 {
		return false
	}
	return c.now().Sub(entry.Established) > c.ttl
}
