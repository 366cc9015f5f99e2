package knowledge

import (
	"container/list"
	"sync"

	"chatvri/internal/domain"
)

// queryCache is a bounded LRU keyed by the raw user query. Results are
// copied on both Put and Get so callers cannot mutate cached entries.
type queryCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
}

type cacheEntry struct {
	key  string
	k    int // the k the entry was computed for
	docs []domain.ScoredDocument
}

func newQueryCache(capacity int) *queryCache {
	if capacity < 1 {
		capacity = 1
	}
	return &queryCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// Get returns the cached results when the entry can satisfy a request
// for k results. An entry computed for a smaller k is a miss: a fresh
// search with the larger k could return more.
func (c *queryCache) Get(key string, k int) ([]domain.ScoredDocument, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if entry.k < k {
		return nil, false
	}
	c.order.MoveToFront(el)
	docs := entry.docs
	if len(docs) > k {
		docs = docs[:k]
	}
	out := make([]domain.ScoredDocument, len(docs))
	copy(out, docs)
	return out, true
}

func (c *queryCache) Put(key string, k int, docs []domain.ScoredDocument) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := make([]domain.ScoredDocument, len(docs))
	copy(stored, docs)

	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.k = k
		entry.docs = stored
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, k: k, docs: stored})
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

func (c *queryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
