// Package cache implements the append-only offline document store used as
// the last-resort search fallback. Entries are keyed by URL and never
// overwritten; lookups match on lower-cased topic substrings.
package cache

import (
	"context"
	"strings"
)

// Entry is one cached document.
type Entry struct {
	Topic string `json:"topic"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Text  string `json:"text"`
}

// Cache is the offline document store.
type Cache interface {
	// Save appends entries whose URL is not already present and returns the
	// number actually added. Existing URLs are never overwritten.
	Save(ctx context.Context, topic string, entries []Entry) (int, error)
	// Lookup returns every entry whose stored topic contains the lower-cased
	// query topic as a substring.
	Lookup(ctx context.Context, topic string) ([]Entry, error)
}

func normalizeTopic(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}

func topicMatches(stored, query string) bool {
	return strings.Contains(strings.ToLower(stored), query)
}
