package cache

import (
	"context"
	"sync"
)

// MemoryCache is the in-process cache used when Redis is not configured and
// by tests.
type MemoryCache struct {
	mu      sync.Mutex
	entries []Entry
	byURL   map[string]bool
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{byURL: make(map[string]bool)}
}

func (c *MemoryCache) Save(_ context.Context, topic string, entries []Entry) (int, error) {
	topic = normalizeTopic(topic)
	c.mu.Lock()
	defer c.mu.Unlock()
	added := 0
	for _, e := range entries {
		if e.URL == "" || c.byURL[e.URL] {
			continue
		}
		e.Topic = topic
		c.byURL[e.URL] = true
		c.entries = append(c.entries, e)
		added++
	}
	return added, nil
}

func (c *MemoryCache) Lookup(_ context.Context, topic string) ([]Entry, error) {
	topic = normalizeTopic(topic)
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Entry
	for _, e := range c.entries {
		if topicMatches(e.Topic, topic) {
			out = append(out, e)
		}
	}
	return out, nil
}
