package search

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/sira-labs/sira/internal/cache"
	"github.com/sira-labs/sira/internal/runtime"
	"github.com/sira-labs/sira/internal/search/models"
)

// Fetcher is one external search backend.
type Fetcher interface {
	Fetch(ctx context.Context, topic string, k int) ([]models.Result, error)
}

// ErrUnsupportedProvider is returned when a router is built with a provider
// name that has no fetcher.
var ErrUnsupportedProvider = errors.New("unsupported search provider")

var errEmptyResults = errors.New("empty results from provider")

// Router routes search queries across providers with weight-based selection,
// quota tracking, rate limiting and failover, falling back to the offline
// cache when every live backend is down.
type Router struct {
	registry    *Registry
	fetchers    map[string]Fetcher
	cache       cache.Cache
	resultCount int
	maxAttempts int
	metrics     *runtime.Metrics
	logger      *log.Logger
}

// NewRouter wires a router. fetchers must contain an entry for the registry's
// fallback provider.
func NewRouter(registry *Registry, fetchers map[string]Fetcher, store cache.Cache, resultCount, maxAttempts int, metrics *runtime.Metrics, logger *log.Logger) (*Router, error) {
	if _, ok := fetchers[registry.Fallback()]; !ok {
		return nil, fmt.Errorf("%w: no fetcher for fallback %q", ErrUnsupportedProvider, registry.Fallback())
	}
	if resultCount <= 0 {
		resultCount = 5
	}
	if maxAttempts <= 0 {
		maxAttempts = len(fetchers) + 1
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[ROUTER] ", log.LstdFlags)
	}
	return &Router{
		registry:    registry,
		fetchers:    fetchers,
		cache:       store,
		resultCount: resultCount,
		maxAttempts: maxAttempts,
		metrics:     metrics,
		logger:      logger,
	}, nil
}

// SearchAndExtract is the unified search entrypoint. It walks the provider
// set in weight order, marking failures as it goes, and terminates on the
// offline fallback, which never fails (an empty list at worst). Successful
// results are normalized, deduplicated and written through to the offline
// cache so future outages still have something to serve.
func (r *Router) SearchAndExtract(ctx context.Context, topic string) ([]models.Result, error) {
	tried := make(map[string]bool)

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		name := r.registry.Pick(tried)
		tried[name] = true
		isFallback := name == r.registry.Fallback()

		fetcher, ok := r.fetchers[name]
		if !ok {
			r.logger.Printf("no fetcher registered for provider %q, skipping", name)
			continue
		}

		r.registry.ApplyRateLimit(name)

		results, err := fetcher.Fetch(ctx, topic, r.resultCount)
		if err == nil && len(results) == 0 && !isFallback {
			err = errEmptyResults
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Printf("provider %q failed for %q: %v", name, topic, err)
			r.registry.MarkFailure(name)
			if r.metrics != nil {
				r.metrics.ProviderCalls.WithLabelValues(name, "failure").Inc()
			}
			if isFallback {
				// The cache is the terminal case; nothing left to try.
				return nil, nil
			}
			continue
		}

		r.registry.MarkSuccess(name)
		if r.metrics != nil {
			r.metrics.ProviderCalls.WithLabelValues(name, "success").Inc()
		}

		normalized := normalize(results, name)
		if !isFallback {
			if added, err := r.cache.Save(ctx, topic, toEntries(topic, normalized)); err != nil {
				r.logger.Printf("cache save failed for %q: %v", topic, err)
			} else if added > 0 {
				r.logger.Printf("cached %d new entries for %q", added, topic)
			}
		}
		r.logger.Printf("provider %q returned %d results for %q", name, len(normalized), topic)
		return normalized, nil
	}

	// Attempt cap reached without touching the fallback; serve the cache
	// directly rather than surfacing a failure.
	r.logger.Printf("attempt cap reached for %q, serving offline cache", topic)
	fallback := r.fetchers[r.registry.Fallback()]
	results, err := fallback.Fetch(ctx, topic, r.resultCount)
	if err != nil {
		return nil, nil
	}
	return normalize(results, r.registry.Fallback()), nil
}

// normalize fills defaults and attaches the provider, then dedupes by
// (url, title) within the batch.
func normalize(results []models.Result, provider string) []models.Result {
	out := make([]models.Result, 0, len(results))
	seen := make(map[[2]string]bool, len(results))
	for _, res := range results {
		if res.Title == "" {
			res.Title = "Untitled"
		}
		if res.Provider == "" {
			res.Provider = provider
		}
		key := [2]string{res.URL, res.Title}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, res)
	}
	return out
}

func toEntries(topic string, results []models.Result) []cache.Entry {
	entries := make([]cache.Entry, 0, len(results))
	for _, res := range results {
		entries = append(entries, cache.Entry{
			Topic: topic,
			Title: res.Title,
			URL:   res.URL,
			Text:  res.Snippet,
		})
	}
	return entries
}
