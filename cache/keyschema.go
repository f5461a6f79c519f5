// Package cache holds the two server-assisted metadata caches: table key
// schemas (TTL-bounded) and attribute-name lists (LRU-bounded).
package cache

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// KeySchemaElement names one key attribute of a table.
type KeySchemaElement struct {
	AttributeName string
	AttributeType string
}

// KeySchema is the hash key and optional range key of a table.
type KeySchema struct {
	HashKey  KeySchemaElement
	RangeKey *KeySchemaElement
}

// KeyNames returns the attribute names of the schema, hash key first.
func (s *KeySchema) KeyNames() []string {
	names := []string{s.HashKey.AttributeName}
	if s.RangeKey != nil {
		names = append(names, s.RangeKey.AttributeName)
	}
	return names
}

// ErrInvalidCacheKey rejects empty table names and names containing any of
// the reserved characters {}()/@: in cache keys.
var ErrInvalidCacheKey = errors.New("cache: invalid cache key")

const reservedKeyChars = "{}()/@:"

func validateKey(key string) error {
	if key == "" || strings.ContainsAny(key, reservedKeyChars) {
		return ErrInvalidCacheKey
	}
	return nil
}

// KeySchemaStats is a point-in-time snapshot of cache behaviour.
type KeySchemaStats struct {
	Size      int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

type schemaEntry struct {
	schema     *KeySchema
	insertedAt time.Time
}

// KeySchemaCache maps table names to key schemas. Entries expire a fixed TTL
// after insertion; when full, inserting a new table evicts the entry with
// the oldest insertion time. Safe for concurrent use.
type KeySchemaCache struct {
	mu      sync.RWMutex
	entries map[string]*schemaEntry

	capacity int
	ttl      time.Duration
	now      func() time.Time

	hits      uint64
	misses    uint64
	evictions uint64
}

// NewKeySchemaCache creates a cache bounded to capacity entries with the
// given per-entry TTL.
func NewKeySchemaCache(capacity int, ttl time.Duration) *KeySchemaCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &KeySchemaCache{
		entries:  make(map[string]*schemaEntry, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns the cached schema for table. An expired entry is removed and
// reported as a miss.
func (c *KeySchemaCache) Get(table string) (*KeySchema, bool) {
	if validateKey(table) != nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[table]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.now().Sub(entry.insertedAt) >= c.ttl {
		delete(c.entries, table)
		c.misses++
		return nil, false
	}
	c.hits++
	return entry.schema, true
}

// Put stores the schema under table, evicting the oldest entry when the
// cache is at capacity.
func (c *KeySchemaCache) Put(table string, schema *KeySchema) error {
	if err := validateKey(table); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[table]; !exists && len(c.entries) >= c.capacity {
		c.evictOldest()
	}
	c.entries[table] = &schemaEntry{schema: schema, insertedAt: c.now()}
	return nil
}

// evictOldest removes the entry with the minimum insertion timestamp.
// Caller holds the lock.
func (c *KeySchemaCache) evictOldest() {
	var (
		oldestKey string
		oldestAt  time.Time
		first     = true
	)
	for key, entry := range c.entries {
		if first || entry.insertedAt.Before(oldestAt) {
			oldestKey, oldestAt, first = key, entry.insertedAt, false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
		c.evictions++
	}
}

// Delete removes the entry for table, if present.
func (c *KeySchemaCache) Delete(table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, table)
}

// Clear removes every entry.
func (c *KeySchemaCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*schemaEntry, c.capacity)
}

// Names returns the table names currently cached, expired entries included.
func (c *KeySchemaCache) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	return names
}

// Stats returns a snapshot of the cache counters.
func (c *KeySchemaCache) Stats() KeySchemaStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return KeySchemaStats{
		Size:      len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
