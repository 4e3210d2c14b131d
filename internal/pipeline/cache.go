package pipeline

import (
	"sync"

	"github.com/fakebuster/fakebuster/internal/model"
)

// ResultCache keeps the verdict for every key scored during a page
// lifetime, so elements that reappear can be marked again without a new
// detection call.
type ResultCache struct {
	mu      sync.RWMutex
	results map[model.DedupKey]model.ScoreResult
}

// NewResultCache creates an empty cache.
func NewResultCache() *ResultCache {
	return &ResultCache{results: make(map[model.DedupKey]model.ScoreResult)}
}

// Put stores the result for key.
func (c *ResultCache) Put(key model.DedupKey, r model.ScoreResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[key] = r
}

// Get returns the result for key.
func (c *ResultCache) Get(key model.DedupKey) (model.ScoreResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.results[key]
	return r, ok
}

// Len returns the number of cached results.
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.results)
}

// Reset empties the cache.
func (c *ResultCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = make(map[model.DedupKey]model.ScoreResult)
}
