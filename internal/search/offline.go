package search

import (
	"context"

	"github.com/sira-labs/sira/internal/cache"
	"github.com/sira-labs/sira/internal/search/models"
)

// OfflineProvider is the conventional name for the cache-backed backend.
const OfflineProvider = "offline"

// OfflineFetcher serves previously cached documents. It is the terminal
// fallback in the failover chain: it cannot fail, only come back empty.
type OfflineFetcher struct {
	Cache cache.Cache
}

func (f OfflineFetcher) Fetch(ctx context.Context, topic string, k int) ([]models.Result, error) {
	entries, err := f.Cache.Lookup(ctx, topic)
	if err != nil {
		return nil, nil
	}
	if k > 0 && len(entries) > k {
		entries = entries[:k]
	}
	out := make([]models.Result, 0, len(entries))
	for _, e := range entries {
		out = append(out, models.Result{
			Title:    e.Title,
			URL:      e.URL,
			Snippet:  e.Text,
			Provider: OfflineProvider,
		})
	}
	return out, nil
}
