// Package rag implements the retrieval-strategy engine: it rewrites a query
// against conversation context, consults vector memory, and blends cached
// and live sources according to similarity thresholds.
package rag

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/sira-labs/sira/config"
	"github.com/sira-labs/sira/internal/memory"
	"github.com/sira-labs/sira/internal/search/models"
	"github.com/sira-labs/sira/provider"
)

// Strategies a single retrieval request can resolve to.
const (
	StrategyCached = "cached"
	StrategyHybrid = "hybrid"
	StrategyWeb    = "web"
)

// Source kinds attached to formatted results.
const (
	SourceCached   = "cached"
	SourceWeb      = "web"
	SourceRealtime = "realtime"
)

// Turn is one prior message of the conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Source is the uniform shape every strategy produces.
type Source struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Summary string  `json:"summary"`
	Score   float64 `json:"score"`
	Source  string  `json:"source"`
}

// Result is the outcome of one retrieval request.
type Result struct {
	Sources           []Source `json:"sources"`
	RetrievalStrategy string   `json:"retrieval_strategy"`
	ContextUsed       bool     `json:"context_used"`
}

// MemorySearcher is the vector-memory slice the pipeline consumes.
type MemorySearcher interface {
	Search(ctx context.Context, userID, query string, topK int) ([]memory.Hit, error)
}

// WebSearcher is the provider-router slice the pipeline consumes.
type WebSearcher interface {
	SearchAndExtract(ctx context.Context, topic string) ([]models.Result, error)
}

// RealtimeFetcher is the live-feed dispatcher slice the pipeline consumes.
type RealtimeFetcher interface {
	Fetch(ctx context.Context, topic string) []models.Result
}

// Pipeline decides, per request, how much to trust cached knowledge.
type Pipeline struct {
	cfg      config.RetrievalConfig
	llm      provider.Provider
	memory   MemorySearcher
	web      WebSearcher
	realtime RealtimeFetcher
	logger   *log.Logger
}

func NewPipeline(cfg config.RetrievalConfig, llm provider.Provider, mem MemorySearcher, web WebSearcher, rt RealtimeFetcher, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(log.Writer(), "[RAG] ", log.LstdFlags)
	}
	return &Pipeline{cfg: cfg, llm: llm, memory: mem, web: web, realtime: rt, logger: logger}
}

// Retrieve runs the full decision: rewrite, vector search, minimum-score
// filter, strategy selection.
func (p *Pipeline) Retrieve(ctx context.Context, query, userID string, history []Turn, maxResults int) (Result, error) {
	if maxResults <= 0 {
		maxResults = p.cfg.MaxResults
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	enhanced := p.rewriteQuery(ctx, query, history)

	hits, err := p.memory.Search(ctx, userID, enhanced, p.cfg.TopK)
	if err != nil {
		p.logger.Printf("vector search failed: %v", err)
		hits = nil
	}

	// Drop low-score candidates so stale memory cannot contaminate
	// unrelated queries.
	valid := hits[:0:0]
	for _, h := range hits {
		if h.Score > p.cfg.ThresholdMinimum {
			valid = append(valid, h)
		}
	}

	strategy, sources := p.decideStrategy(ctx, enhanced, valid, maxResults)
	return Result{
		Sources:           sources,
		RetrievalStrategy: strategy,
		ContextUsed:       enhanced != query,
	}, nil
}

// rewriteQuery asks the LLM for a standalone form of the query when enough
// conversation context exists. Failures fall back to the raw query.
func (p *Pipeline) rewriteQuery(ctx context.Context, query string, history []Turn) string {
	if len(history) < 2 {
		return query
	}
	recent := history
	if len(recent) > 4 {
		recent = recent[len(recent)-4:]
	}
	var b strings.Builder
	for _, t := range recent {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
	}
	prompt := fmt.Sprintf(`Rewrite the user's latest query to be standalone and self-contained.
Only rewrite. Do NOT answer the question.

History:
%s
Query: %s

Standalone Query:`, b.String(), query)

	rewritten, err := p.llm.Complete(ctx, prompt, false)
	if err != nil || rewritten == "" {
		return query
	}
	cleaned := strings.ReplaceAll(strings.TrimSpace(rewritten), `"`, "")
	if cleaned == "" {
		return query
	}
	p.logger.Printf("query rewritten to: %s", cleaned)
	return cleaned
}

func (p *Pipeline) decideStrategy(ctx context.Context, query string, hits []memory.Hit, maxResults int) (string, []Source) {
	if len(hits) == 0 {
		return StrategyWeb, p.webStrategy(ctx, query, maxResults)
	}
	if hits[0].Score >= p.cfg.ThresholdHigh {
		return StrategyCached, formatHits(truncateHits(hits, maxResults))
	}
	// Medium and low relevance both resolve to the hybrid blend.
	return StrategyHybrid, p.hybridStrategy(ctx, query, hits, maxResults)
}

// hybridStrategy takes a bounded number of cached hits and fills the rest
// from provider search.
func (p *Pipeline) hybridStrategy(ctx context.Context, query string, hits []memory.Hit, maxResults int) []Source {
	maxCached := p.cfg.MaxCachedSources
	if maxCached <= 0 {
		maxCached = 2
	}
	sources := formatHits(truncateHits(hits, maxCached))
	if needed := maxResults - len(sources); needed > 0 {
		web, err := p.web.SearchAndExtract(ctx, query)
		if err != nil {
			p.logger.Printf("web fill failed: %v", err)
		}
		sources = append(sources, formatResults(truncateResults(web, needed), SourceWeb)...)
	}
	return sources
}

// webStrategy tries the realtime dispatcher first, then fills remaining
// slots from provider search.
func (p *Pipeline) webStrategy(ctx context.Context, query string, maxResults int) []Source {
	var sources []Source
	if p.realtime != nil {
		live := p.realtime.Fetch(ctx, query)
		sources = append(sources, formatResults(truncateResults(live, maxResults), SourceRealtime)...)
	}
	if needed := maxResults - len(sources); needed > 0 {
		web, err := p.web.SearchAndExtract(ctx, query)
		if err != nil {
			p.logger.Printf("web search failed: %v", err)
		}
		sources = append(sources, formatResults(truncateResults(web, needed), SourceWeb)...)
	}
	return sources
}

func truncateHits(hits []memory.Hit, n int) []memory.Hit {
	if len(hits) > n {
		return hits[:n]
	}
	return hits
}

func truncateResults(results []models.Result, n int) []models.Result {
	if len(results) > n {
		return results[:n]
	}
	return results
}

func formatHits(hits []memory.Hit) []Source {
	out := make([]Source, 0, len(hits))
	for _, h := range hits {
		title := h.Title
		if title == "" {
			title = "Untitled"
		}
		out = append(out, Source{Title: title, URL: h.URL, Summary: h.Text, Score: h.Score, Source: SourceCached})
	}
	return out
}

func formatResults(results []models.Result, kind string) []Source {
	out := make([]Source, 0, len(results))
	for _, r := range results {
		title := r.Title
		if title == "" {
			title = "Untitled"
		}
		out = append(out, Source{Title: title, URL: r.URL, Summary: r.Snippet, Score: 0, Source: kind})
	}
	return out
}
