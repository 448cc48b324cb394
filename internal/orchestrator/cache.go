package orchestrator

import "sync"

// SuggestionCache remembers the last suggestion remediated per ticket so an
// identical suggestion is not pushed again. It lives in memory only and is
// empty after a restart.
type SuggestionCache struct {
	mu   sync.Mutex
	last map[string]string
}

// NewSuggestionCache returns an empty cache.
func NewSuggestionCache() *SuggestionCache {
	return &SuggestionCache{last: make(map[string]string)}
}

// Unchanged reports whether suggestion equals the one last recorded for key.
func (c *SuggestionCache) Unchanged(key, suggestion string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.last[key]
	return ok && prev == suggestion
}

// Record stores suggestion as the latest for key.
func (c *SuggestionCache) Record(key, suggestion string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[key] = suggestion
}

// Len returns the number of tickets in the cache.
func (c *SuggestionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last)
}

// Reset empties the cache.
func (c *SuggestionCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = make(map[string]string)
}
