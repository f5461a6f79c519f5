package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/golang-lru/simplelru"
)

// AttributeList is an ordered set of attribute names the server can refer to
// by integer id to compress repeated item shapes.
type AttributeList struct {
	ID    uint64
	Names []string
	Hash  string
}

// HashNames computes the content hash of a name list: hex sha-256 over the
// sorted names joined by '|'. The input slice is not modified.
func HashNames(names []string) string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "|")))
	return hex.EncodeToString(sum[:])
}

// AttributeListCache maps list ids to attribute-name lists with an inverse
// index on content hash. Ids are monotone, assigned on first insertion.
// Eviction is least-recently-used; recency is bumped on every hit and
// insertion. Safe for concurrent use.
type AttributeListCache struct {
	mu     sync.Mutex
	lru    *simplelru.LRU
	byHash map[string]uint64
	nextID uint64
}

// NewAttributeListCache creates a cache bounded to capacity entries.
func NewAttributeListCache(capacity int) *AttributeListCache {
	if capacity <= 0 {
		capacity = 1
	}
	c := &AttributeListCache{
		byHash: make(map[string]uint64),
		nextID: 1,
	}
	// The callback keeps the inverse index consistent under eviction.
	c.lru, _ = simplelru.NewLRU(capacity, func(key, value interface{}) {
		delete(c.byHash, value.(*AttributeList).Hash)
	})
	return c
}

// PutNames interns a name list. A list whose content hash is already cached
// keeps its id (and is marked recently used); otherwise a fresh monotone id
// is assigned.
func (c *AttributeListCache) PutNames(names []string) uint64 {
	hash := HashNames(names)
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.byHash[hash]; ok {
		c.lru.Get(id)
		return id
	}
	id := c.nextID
	c.nextID++
	list := &AttributeList{ID: id, Names: append([]string(nil), names...), Hash: hash}
	c.byHash[hash] = id
	c.lru.Add(id, list)
	return id
}

// Put stores a name list under a server-assigned id. Locally assigned ids
// never collide with it: the monotone counter is advanced past id.
func (c *AttributeListCache) Put(id uint64, names []string) {
	hash := HashNames(names)
	c.mu.Lock()
	defer c.mu.Unlock()

	if id >= c.nextID {
		c.nextID = id + 1
	}
	list := &AttributeList{ID: id, Names: append([]string(nil), names...), Hash: hash}
	c.byHash[hash] = id
	c.lru.Add(id, list)
}

// Get returns the list stored under id and marks it recently used.
func (c *AttributeListCache) Get(id uint64) (*AttributeList, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.lru.Get(id)
	if !ok {
		return nil, false
	}
	return value.(*AttributeList), true
}

// IDByHash resolves a content hash to its id, marking the entry recently
// used.
func (c *AttributeListCache) IDByHash(hash string) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.byHash[hash]
	if !ok {
		return 0, false
	}
	c.lru.Get(id)
	return id, true
}

// Len returns the number of cached lists.
func (c *AttributeListCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
