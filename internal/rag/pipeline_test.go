package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/sira-labs/sira/config"
	"github.com/sira-labs/sira/internal/memory"
	"github.com/sira-labs/sira/internal/search/models"
)

type stubLLM struct {
	completion string
	err        error
}

func (s stubLLM) Complete(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	return s.completion, s.err
}

func (s stubLLM) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

type stubMemory struct {
	hits []memory.Hit
}

func (s stubMemory) Search(ctx context.Context, userID, query string, topK int) ([]memory.Hit, error) {
	return s.hits, nil
}

type stubWeb struct {
	results []models.Result
	calls   int
}

func (s *stubWeb) SearchAndExtract(ctx context.Context, topic string) ([]models.Result, error) {
	s.calls++
	return s.results, nil
}

type stubRealtime struct {
	results []models.Result
}

func (s stubRealtime) Fetch(ctx context.Context, topic string) []models.Result {
	return s.results
}

func testRetrievalConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		ThresholdHigh:    0.82,
		ThresholdMedium:  0.70,
		ThresholdMinimum: 0.40,
		TopK:             8,
		MaxResults:       5,
		MaxCachedSources: 2,
	}
}

func webResults(n int) []models.Result {
	out := make([]models.Result, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.Result{Title: "W", URL: "https://w.example", Snippet: "web"})
	}
	for i := range out {
		out[i].URL = out[i].URL + string(rune('a'+i))
	}
	return out
}

func TestHighScoreUsesCachedOnly(t *testing.T) {
	t.Parallel()
	web := &stubWeb{results: webResults(5)}
	p := NewPipeline(testRetrievalConfig(), stubLLM{}, stubMemory{hits: []memory.Hit{
		{Title: "Cached", URL: "https://c.example", Text: "from memory", Score: 0.90},
	}}, web, nil, nil)

	res, err := p.Retrieve(context.Background(), "query", "u1", nil, 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res.RetrievalStrategy != StrategyCached {
		t.Fatalf("strategy = %q, want cached", res.RetrievalStrategy)
	}
	if web.calls != 0 {
		t.Fatalf("web called %d times, want 0", web.calls)
	}
	if len(res.Sources) != 1 || res.Sources[0].Source != SourceCached {
		t.Fatalf("sources = %+v", res.Sources)
	}
	if res.Sources[0].Score != 0.90 {
		t.Fatalf("cached score = %v, want 0.90", res.Sources[0].Score)
	}
}

func TestNoHitsUsesWebStrategy(t *testing.T) {
	t.Parallel()
	web := &stubWeb{results: webResults(5)}
	p := NewPipeline(testRetrievalConfig(), stubLLM{}, stubMemory{}, web, nil, nil)

	res, err := p.Retrieve(context.Background(), "fresh topic", "u1", nil, 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res.RetrievalStrategy != StrategyWeb {
		t.Fatalf("strategy = %q, want web", res.RetrievalStrategy)
	}
	for _, s := range res.Sources {
		if s.Source == SourceCached {
			t.Fatalf("web strategy produced cached source: %+v", s)
		}
	}
}

func TestMediumScoreUsesHybridWithCachedCap(t *testing.T) {
	t.Parallel()
	hits := []memory.Hit{
		{Title: "C1", URL: "https://c1.example", Score: 0.75},
		{Title: "C2", URL: "https://c2.example", Score: 0.72},
		{Title: "C3", URL: "https://c3.example", Score: 0.71},
	}
	web := &stubWeb{results: webResults(5)}
	p := NewPipeline(testRetrievalConfig(), stubLLM{}, stubMemory{hits: hits}, web, nil, nil)

	res, err := p.Retrieve(context.Background(), "query", "u1", nil, 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res.RetrievalStrategy != StrategyHybrid {
		t.Fatalf("strategy = %q, want hybrid", res.RetrievalStrategy)
	}
	cached := 0
	for _, s := range res.Sources {
		if s.Source == SourceCached {
			cached++
		}
	}
	if cached != 2 {
		t.Fatalf("cached sources = %d, want cap 2", cached)
	}
	if len(res.Sources) != 5 {
		t.Fatalf("total sources = %d, want 5", len(res.Sources))
	}
}

func TestMinimumThresholdFiltersHits(t *testing.T) {
	t.Parallel()
	web := &stubWeb{results: webResults(2)}
	p := NewPipeline(testRetrievalConfig(), stubLLM{}, stubMemory{hits: []memory.Hit{
		{Title: "Stale", URL: "https://stale.example", Score: 0.30},
	}}, web, nil, nil)

	res, err := p.Retrieve(context.Background(), "query", "u1", nil, 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res.RetrievalStrategy != StrategyWeb {
		t.Fatalf("strategy = %q, want web after filtering", res.RetrievalStrategy)
	}
}

func TestRealtimeFillsBeforeWeb(t *testing.T) {
	t.Parallel()
	rt := stubRealtime{results: []models.Result{
		{Title: "BTC", URL: "https://live.example", Snippet: "price"},
	}}
	web := &stubWeb{results: webResults(5)}
	p := NewPipeline(testRetrievalConfig(), stubLLM{}, stubMemory{}, web, rt, nil)

	res, err := p.Retrieve(context.Background(), "btc price", "u1", nil, 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Sources) != 3 {
		t.Fatalf("sources = %d, want 3", len(res.Sources))
	}
	if res.Sources[0].Source != SourceRealtime {
		t.Fatalf("first source = %q, want realtime", res.Sources[0].Source)
	}
}

func TestRewriteSkippedWithoutHistory(t *testing.T) {
	t.Parallel()
	p := NewPipeline(testRetrievalConfig(), stubLLM{completion: "should not be used"}, stubMemory{}, &stubWeb{}, nil, nil)
	res, err := p.Retrieve(context.Background(), "plain query", "u1", nil, 1)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res.ContextUsed {
		t.Fatalf("ContextUsed = true without history")
	}
}

func TestRewriteUsedWithHistory(t *testing.T) {
	t.Parallel()
	history := []Turn{
		{Role: "user", Content: "tell me about kubernetes"},
		{Role: "assistant", Content: "kubernetes is an orchestrator"},
	}
	p := NewPipeline(testRetrievalConfig(), stubLLM{completion: `"kubernetes networking model"`}, stubMemory{}, &stubWeb{}, nil, nil)
	res, err := p.Retrieve(context.Background(), "what about its networking?", "u1", history, 1)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !res.ContextUsed {
		t.Fatalf("ContextUsed = false, want rewrite applied")
	}
}
