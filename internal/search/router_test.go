package search

import (
	"context"
	"errors"
	"testing"

	"github.com/sira-labs/sira/internal/cache"
	"github.com/sira-labs/sira/internal/search/models"
)

type stubFetcher struct {
	results []models.Result
	err     error
	calls   int
}

func (f *stubFetcher) Fetch(ctx context.Context, topic string, k int) ([]models.Result, error) {
	f.calls++
	return f.results, f.err
}

func newRouterForTest(t *testing.T, fetchers map[string]Fetcher, states []ProviderState, store cache.Cache) (*Router, *Registry) {
	t.Helper()
	reg := NewRegistry(states, OfflineProvider)
	if _, ok := fetchers[OfflineProvider]; !ok {
		fetchers[OfflineProvider] = OfflineFetcher{Cache: store}
	}
	r, err := NewRouter(reg, fetchers, store, 5, 6, nil, nil)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return r, reg
}

func TestFailoverMovesWeightsAndCaches(t *testing.T) {
	t.Parallel()
	failing := &stubFetcher{err: errors.New("boom")}
	working := &stubFetcher{results: []models.Result{
		{Title: "A", URL: "https://a.example", Snippet: "alpha"},
		{Title: "B", URL: "https://b.example", Snippet: "beta"},
		{Title: "C", URL: "https://c.example", Snippet: "gamma"},
	}}
	store := cache.NewMemoryCache()

	router, reg := newRouterForTest(t, map[string]Fetcher{
		"serpapi": failing,
		"brave":   working,
	}, []ProviderState{
		{Name: "serpapi", Weight: 1.0},
		{Name: "brave", Weight: 0.8},
	}, store)

	results, err := router.SearchAndExtract(context.Background(), "quantum computing")
	if err != nil {
		t.Fatalf("SearchAndExtract: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Provider != "brave" {
		t.Fatalf("provider = %q, want brave", results[0].Provider)
	}

	if st, _ := reg.Snapshot("serpapi"); st.Weight != 0.9 || st.Healthy {
		t.Fatalf("serpapi state = %+v, want weight 0.9 unhealthy", st)
	}
	if st, _ := reg.Snapshot("brave"); st.Weight != 0.85 {
		t.Fatalf("brave weight = %v, want 0.85", st.Weight)
	}

	cached, _ := store.Lookup(context.Background(), "quantum computing")
	if len(cached) != 3 {
		t.Fatalf("cache has %d entries, want 3", len(cached))
	}
}

func TestEmptyResultsCountAsFailure(t *testing.T) {
	t.Parallel()
	empty := &stubFetcher{}
	working := &stubFetcher{results: []models.Result{{Title: "A", URL: "https://a.example"}}}

	router, reg := newRouterForTest(t, map[string]Fetcher{
		"serpapi": empty,
		"brave":   working,
	}, []ProviderState{
		{Name: "serpapi", Weight: 1.0},
		{Name: "brave", Weight: 0.8},
	}, cache.NewMemoryCache())

	results, err := router.SearchAndExtract(context.Background(), "topic")
	if err != nil {
		t.Fatalf("SearchAndExtract: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if st, _ := reg.Snapshot("serpapi"); st.Healthy {
		t.Fatalf("empty provider should be marked unhealthy")
	}
}

func TestAllProvidersDownServesOfflineCache(t *testing.T) {
	t.Parallel()
	store := cache.NewMemoryCache()
	if _, err := store.Save(context.Background(), "climate policy", []cache.Entry{
		{Title: "Old article", URL: "https://old.example", Text: "archived"},
	}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	failing := &stubFetcher{err: errors.New("down")}
	router, _ := newRouterForTest(t, map[string]Fetcher{
		"serpapi": failing,
		"brave":   failing,
	}, []ProviderState{
		{Name: "serpapi", Weight: 1.0},
		{Name: "brave", Weight: 0.8},
	}, store)

	results, err := router.SearchAndExtract(context.Background(), "climate policy")
	if err != nil {
		t.Fatalf("SearchAndExtract: %v", err)
	}
	if len(results) != 1 || results[0].Provider != OfflineProvider {
		t.Fatalf("results = %+v, want one offline entry", results)
	}
}

func TestEmptyCacheYieldsEmptyNotError(t *testing.T) {
	t.Parallel()
	failing := &stubFetcher{err: errors.New("down")}
	router, _ := newRouterForTest(t, map[string]Fetcher{
		"serpapi": failing,
	}, []ProviderState{
		{Name: "serpapi", Weight: 1.0},
	}, cache.NewMemoryCache())

	results, err := router.SearchAndExtract(context.Background(), "nothing cached")
	if err != nil {
		t.Fatalf("SearchAndExtract: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("got %d results, want 0", len(results))
	}
}

func TestNormalizeDefaultsAndDedupes(t *testing.T) {
	t.Parallel()
	in := []models.Result{
		{URL: "https://a.example", Snippet: "x"},
		{Title: "Untitled", URL: "https://a.example", Snippet: "dup"},
		{Title: "B", URL: "https://b.example"},
	}
	out := normalize(in, "brave")
	if len(out) != 2 {
		t.Fatalf("got %d results, want 2", len(out))
	}
	if out[0].Title != "Untitled" || out[0].Provider != "brave" {
		t.Fatalf("normalize defaults wrong: %+v", out[0])
	}
}
