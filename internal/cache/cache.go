package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/danielrs/building-forecast-service/internal/observability"
)

// Cache stores raw upstream payloads keyed by rounded coordinates, each with
// the expiry deadline taken from the upstream Expires header. Get returns the
// payload only while the deadline has not passed.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, expiresAt time.Time) error
}

// LRUCache is a bounded in-memory Cache. Entries expire at their recorded
// deadline and the least recently used entry is evicted when the bound is
// exceeded, so the cache cannot grow without limit across long runs.
// Safe for concurrent use.
type LRUCache struct {
	mu         sync.Mutex
	maxEntries int
	order      *list.List // front = most recently used
	entries    map[string]*list.Element
}

type lruEntry struct {
	key       string
	payload   []byte
	expiresAt time.Time
}

// NewLRUCache creates an LRUCache holding at most maxEntries payloads.
// maxEntries <= 0 falls back to 128.
func NewLRUCache(maxEntries int) *LRUCache {
	if maxEntries <= 0 {
		maxEntries = 128
	}
	return &LRUCache{
		maxEntries: maxEntries,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

// Get returns the cached payload if present and not past its expiry deadline.
// Expired entries are removed on access. A hit refreshes recency.
func (c *LRUCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	entry := elem.Value.(*lruEntry)
	if !time.Now().Before(entry.expiresAt) {
		c.removeLocked(elem)
		return nil, false, nil
	}
	c.order.MoveToFront(elem)
	return entry.payload, true, nil
}

// Set stores the payload under key with the given expiry deadline, overwriting
// any previous entry. The least recently used entry is evicted if the cache
// would exceed its bound.
func (c *LRUCache) Set(ctx context.Context, key string, payload []byte, expiresAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*lruEntry)
		entry.payload = payload
		entry.expiresAt = expiresAt
		c.order.MoveToFront(elem)
		return nil
	}

	elem := c.order.PushFront(&lruEntry{key: key, payload: payload, expiresAt: expiresAt})
	c.entries[key] = elem

	for c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
		observability.CacheEvictionsTotal.Inc()
	}
	return nil
}

// Len returns the number of live entries, including any that have expired but
// not yet been removed on access.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *LRUCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*lruEntry)
	delete(c.entries, entry.key)
	c.order.Remove(elem)
}
