// Package cache holds the in-process completion cache and the on-disk
// checkpoint store.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity is the cache size used when none is configured.
const DefaultCapacity = 100

// Entry is one cached completion.
type Entry struct {
	Key         string    `json:"key"`
	AssetID     string    `json:"asset_id"`
	AssetType   string    `json:"asset_type"`
	DreadLevel  int       `json:"dread_level"`
	Description string    `json:"description"`
	Result      []byte    `json:"result"`
	TokensUsed  int       `json:"tokens_used"`
	Timestamp   time.Time `json:"timestamp"`
}

type keyMaterial struct {
	AssetType    string         `json:"asset_type"`
	DreadLevel   int            `json:"dread_level"`
	Description  string         `json:"description"`
	Context      map[string]any `json:"context"`
	Requirements map[string]any `json:"requirements"`
}

// Key returns the content hash identifying a request. Maps are encoded with
// sorted keys, so equal inputs always hash equally.
func Key(assetType string, dreadLevel int, description string, context, requirements map[string]any) string {
	if context == nil {
		context = map[string]any{}
	}
	if requirements == nil {
		requirements = map[string]any{}
	}
	data, err := json.Marshal(keyMaterial{
		AssetType:    assetType,
		DreadLevel:   dreadLevel,
		Description:  description,
		Context:      context,
		Requirements: requirements,
	})
	if err != nil {
		// Unencodable values still get a stable, if coarser, key.
		data = []byte(assetType + "\x00" + description)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Cache is a bounded completion cache with least-recently-used eviction.
type Cache struct {
	mu       sync.Mutex // serializes stores so the evicted entry can be reported
	capacity int
	entries  *lru.Cache[string, Entry]
}

// New creates a cache. A non-positive capacity selects DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	// lru.New only fails for a non-positive size.
	entries, _ := lru.New[string, Entry](capacity)
	return &Cache{capacity: capacity, entries: entries}
}

// Lookup returns the entry stored under key and marks it most recently used.
func (c *Cache) Lookup(key string) (Entry, bool) {
	return c.entries.Get(key)
}

// Contains reports whether key is cached without touching recency.
func (c *Cache) Contains(key string) bool {
	return c.entries.Contains(key)
}

// Store inserts or replaces entry. At capacity the least recently used
// entry is evicted and returned.
func (c *Cache) Store(entry Entry) (evicted *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.entries.Contains(entry.Key) && c.entries.Len() >= c.capacity {
		if _, old, ok := c.entries.RemoveOldest(); ok {
			evicted = &old
		}
	}
	c.entries.Add(entry.Key, entry)
	return evicted
}

// Len returns the number of cached entries
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Capacity returns the configured capacity
func (c *Cache) Capacity() int {
	return c.capacity
}
