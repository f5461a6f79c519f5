package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock steps time manually for TTL tests.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestSchemaCache(capacity int, ttl time.Duration) (*KeySchemaCache, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	c := NewKeySchemaCache(capacity, ttl)
	c.now = clock.Now
	return c, clock
}

func schemaFor(hash string) *KeySchema {
	return &KeySchema{HashKey: KeySchemaElement{AttributeName: hash, AttributeType: "S"}}
}

func TestKeySchemaCacheGetPut(t *testing.T) {
	c, _ := newTestSchemaCache(10, time.Minute)

	_, ok := c.Get("music")
	assert.False(t, ok)

	require.NoError(t, c.Put("music", schemaFor("artist")))
	got, ok := c.Get("music")
	require.True(t, ok)
	assert.Equal(t, "artist", got.HashKey.AttributeName)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestKeySchemaCacheTTL(t *testing.T) {
	c, clock := newTestSchemaCache(10, time.Minute)
	require.NoError(t, c.Put("music", schemaFor("artist")))

	clock.advance(59 * time.Second)
	_, ok := c.Get("music")
	assert.True(t, ok)

	clock.advance(2 * time.Second)
	_, ok = c.Get("music")
	assert.False(t, ok, "expired entry must miss")
	assert.Empty(t, c.Names(), "expired entry is removed on get")

	// Re-inserting restarts the TTL.
	require.NoError(t, c.Put("music", schemaFor("artist")))
	clock.advance(59 * time.Second)
	_, ok = c.Get("music")
	assert.True(t, ok)
}

func TestKeySchemaCacheEvictsOldest(t *testing.T) {
	c, clock := newTestSchemaCache(3, time.Hour)
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Put(fmt.Sprintf("table%d", i), schemaFor("id")))
		clock.advance(time.Second)
	}
	require.NoError(t, c.Put("table3", schemaFor("id")))

	_, ok := c.Get("table0")
	assert.False(t, ok, "earliest-inserted entry is evicted")
	for i := 1; i <= 3; i++ {
		_, ok := c.Get(fmt.Sprintf("table%d", i))
		assert.True(t, ok, "table%d", i)
	}
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestKeySchemaCacheReplaceDoesNotEvict(t *testing.T) {
	c, clock := newTestSchemaCache(2, time.Hour)
	require.NoError(t, c.Put("a", schemaFor("id")))
	clock.advance(time.Second)
	require.NoError(t, c.Put("b", schemaFor("id")))
	clock.advance(time.Second)
	require.NoError(t, c.Put("a", schemaFor("other")))

	_, ok := c.Get("b")
	assert.True(t, ok)
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "other", got.HashKey.AttributeName)
}

func TestKeySchemaCacheKeyValidation(t *testing.T) {
	c, _ := newTestSchemaCache(10, time.Minute)
	for _, key := range []string{"", "a{b", "a}b", "a(b", "a)b", "a/b", "a@b", "a:b"} {
		assert.ErrorIs(t, c.Put(key, schemaFor("id")), ErrInvalidCacheKey, "key %q", key)
	}
	assert.NoError(t, c.Put("plain-table_name.01", schemaFor("id")))
}

func TestKeySchemaCacheDeleteClear(t *testing.T) {
	c, _ := newTestSchemaCache(10, time.Minute)
	require.NoError(t, c.Put("a", schemaFor("id")))
	require.NoError(t, c.Put("b", schemaFor("id")))

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.ElementsMatch(t, []string{"b"}, c.Names())

	c.Clear()
	assert.Empty(t, c.Names())
}

func TestKeySchemaKeyNames(t *testing.T) {
	s := &KeySchema{
		HashKey:  KeySchemaElement{AttributeName: "artist", AttributeType: "S"},
		RangeKey: &KeySchemaElement{AttributeName: "title", AttributeType: "S"},
	}
	assert.Equal(t, []string{"artist", "title"}, s.KeyNames())
	s.RangeKey = nil
	assert.Equal(t, []string{"artist"}, s.KeyNames())
}

func TestAttributeListIDsMonotone(t *testing.T) {
	c := NewAttributeListCache(10)
	id1 := c.PutNames([]string{"a", "b"})
	id2 := c.PutNames([]string{"c"})
	assert.Equal(t, uint64(1), id1)
	assert.Equal(t, uint64(2), id2)

	// Same content (order-insensitive hash) keeps its id.
	assert.Equal(t, id1, c.PutNames([]string{"b", "a"}))
}

func TestAttributeListLookups(t *testing.T) {
	c := NewAttributeListCache(10)
	id := c.PutNames([]string{"x", "y"})

	list, ok := c.Get(id)
	require.True(t, ok)
	assert.Equal(t, []string{"x", "y"}, list.Names)

	byHash, ok := c.IDByHash(HashNames([]string{"x", "y"}))
	require.True(t, ok)
	assert.Equal(t, id, byHash)

	_, ok = c.Get(999)
	assert.False(t, ok)
	_, ok = c.IDByHash("missing")
	assert.False(t, ok)
}

func TestAttributeListLRUEviction(t *testing.T) {
	c := NewAttributeListCache(3)
	id1 := c.PutNames([]string{"one"})
	id2 := c.PutNames([]string{"two"})
	id3 := c.PutNames([]string{"three"})

	// Touch 1 and 3; 2 is now least recently used.
	c.Get(id1)
	c.Get(id3)
	id4 := c.PutNames([]string{"four"})

	_, ok := c.Get(id2)
	assert.False(t, ok, "least-recently-used entry is evicted")
	for _, id := range []uint64{id1, id3, id4} {
		_, ok := c.Get(id)
		assert.True(t, ok, "id %d", id)
	}

	// The inverse index followed the eviction.
	_, ok = c.IDByHash(HashNames([]string{"two"}))
	assert.False(t, ok)
	assert.Equal(t, 3, c.Len())

	// An evicted list re-inserted gets a fresh id.
	assert.Greater(t, c.PutNames([]string{"two"}), id4)
}

func TestHashNames(t *testing.T) {
	assert.Equal(t, HashNames([]string{"b", "a"}), HashNames([]string{"a", "b"}))
	assert.NotEqual(t, HashNames([]string{"a"}), HashNames([]string{"b"}))
	assert.Len(t, HashNames([]string{"a"}), 64)
}
