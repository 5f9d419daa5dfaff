// Package cache memoises read-only backend responses for short periods.
package cache

import (
	"encoding/json"
	"sync"
	"time"
)

// Clock interface for testing time-dependent behavior.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// entry is one cached value. It is never returned once now is past
// createdAt+ttl.
type entry struct {
	value     any
	createdAt time.Time
	ttl       time.Duration
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.createdAt.Add(e.ttl))
}

// Cache is a process-wide key to value store with per-entry expiry.
// Expired entries are dropped lazily on read; there is no background sweep.
type Cache struct {
	clock   Clock
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty cache. A nil clock uses the system time.
func New(clock Clock) *Cache {
	if clock == nil {
		clock = realClock{}
	}
	return &Cache{
		clock:   clock,
		entries: make(map[string]*entry),
	}
}

// GenerateKey builds a deterministic key from an operation name and its
// parameters. Parameters are JSON encoded, so map keys are sorted and struct
// fields keep declaration order.
func GenerateKey(name string, params any) string {
	if params == nil {
		return name
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		// Unencodable params must never collide with a real entry.
		return name + ":!" + err.Error()
	}
	return name + ":" + string(encoded)
}

// Get returns the cached value and true, or nil and false on a miss.
// A stored nil value is reported as (nil, true).
func (c *Cache) Get(key string) (any, bool) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(now) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key for ttl, replacing any existing entry.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	now := c.clock.Now()

	c.mu.Lock()
	c.entries[key] = &entry{value: value, createdAt: now, ttl: ttl}
	c.mu.Unlock()
}

// Len reports the number of stored entries, including expired ones that have
// not been read since they expired.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Lookup is a typed Get. A value of another type is treated as a miss.
func Lookup[T any](c *Cache, key string) (T, bool) {
	var zero T
	raw, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	value, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return value, true
}
