// Package research executes topic-research runs: search, per-article
// summarization and credibility scoring, knowledge-graph extraction, memory
// writes, and the immutable history row that records each run.
package research

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sira-labs/sira/internal/kgraph"
	"github.com/sira-labs/sira/internal/runtime"
	"github.com/sira-labs/sira/internal/search/models"
	"github.com/sira-labs/sira/internal/store"
	"github.com/sira-labs/sira/provider"
)

// Searcher is the provider-router slice the runner consumes.
type Searcher interface {
	SearchAndExtract(ctx context.Context, topic string) ([]models.Result, error)
}

// MemoryWriter persists per-document summaries to vector memory.
type MemoryWriter interface {
	UpsertText(ctx context.Context, userID, text, url, title string) error
}

// HistoryStore is the persistence slice the runner needs.
type HistoryStore interface {
	InsertHistory(ctx context.Context, rec store.HistoryRecord) error
	TouchJobRun(ctx context.Context, jobID string, lastRunAt, nextRunAt time.Time) error
}

// RunOutcome summarizes one completed execution.
type RunOutcome struct {
	Status      string
	ResultCount int
	KGNodes     int
	KGEdges     int
	FullSummary string
	Error       string
}

// Runner performs one research execution end to end.
type Runner struct {
	search    Searcher
	llm       provider.Provider
	memory    MemoryWriter
	extractor kgraph.Extractor
	history   HistoryStore
	metrics   *runtime.Metrics
	logger    *log.Logger
	now       func() time.Time
}

func NewRunner(search Searcher, llm provider.Provider, mem MemoryWriter, history HistoryStore, metrics *runtime.Metrics, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(log.Writer(), "[RUNNER] ", log.LstdFlags)
	}
	return &Runner{
		search:    search,
		llm:       llm,
		memory:    mem,
		extractor: kgraph.Extractor{LLM: llm},
		history:   history,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Run executes one research pass for a job. It never returns an error to the
// caller: every failure mode, panics included, terminates in a history row
// with status "error" so the job's timeline stays complete. A run that finds
// zero results is still a success.
func (r *Runner) Run(ctx context.Context, job store.Job) RunOutcome {
	started := r.now()
	outcome := RunOutcome{Status: store.RunStatusSuccess}

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				outcome.Status = store.RunStatusError
				outcome.Error = fmt.Sprintf("panic: %v", rec)
				r.logger.Printf("run for job %s panicked: %v", job.ID, rec)
			}
		}()
		outcome = r.Execute(ctx, job)
	}()

	finished := r.now()
	r.record(job, outcome, started, finished)
	if r.metrics != nil {
		r.metrics.RunDuration.WithLabelValues(outcome.Status).Observe(finished.Sub(started).Seconds())
	}
	return outcome
}

// Execute performs the research pass without touching history; one-shot
// callers use it directly for ad-hoc topics that have no job row.
func (r *Runner) Execute(ctx context.Context, job store.Job) RunOutcome {
	results, err := r.search.SearchAndExtract(ctx, job.Topic)
	if err != nil {
		return RunOutcome{Status: store.RunStatusError, Error: fmt.Sprintf("search failed: %v", err)}
	}

	var (
		summaries []string
		kgTexts   []string
		processed int
	)
	for _, res := range results {
		text := res.Snippet
		if strings.TrimSpace(text) == "" {
			continue
		}
		processed++

		summary := provider.Summarize(ctx, r.llm, text, r.logger)
		if summary == "" {
			continue
		}
		// Graph extraction works on the condensed summaries, not the raw
		// document text.
		kgTexts = append(kgTexts, summary)
		score := provider.EvaluateCredibility(ctx, r.llm, res.URL, text, r.logger)
		summaries = append(summaries, fmt.Sprintf("%s (credibility %.2f): %s", res.Title, score, summary))

		if r.memory != nil {
			if err := r.memory.UpsertText(ctx, job.UserID, summary, res.URL, res.Title); err != nil {
				r.logger.Printf("memory write failed for %s: %v", res.URL, err)
			}
		}
	}

	graph := r.extractor.ExtractFromTexts(ctx, kgTexts)

	return RunOutcome{
		Status:      store.RunStatusSuccess,
		ResultCount: processed,
		KGNodes:     graph.Counts.Nodes,
		KGEdges:     graph.Counts.Edges,
		FullSummary: strings.Join(summaries, "\n\n"),
	}
}

// record writes the history row and stamps the job's run bookkeeping.
// Persistence failures are logged, not propagated; a broken database must
// not crash the scheduler loop.
func (r *Runner) record(job store.Job, outcome RunOutcome, started, finished time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rec := store.HistoryRecord{
		JobID:         job.ID,
		UserID:        job.UserID,
		Topic:         job.Topic,
		Status:        outcome.Status,
		ResultCount:   outcome.ResultCount,
		KGNodes:       outcome.KGNodes,
		KGEdges:       outcome.KGEdges,
		RunStartedAt:  started,
		RunFinishedAt: finished,
		FullSummary:   outcome.FullSummary,
	}
	if outcome.Error != "" {
		msg := outcome.Error
		rec.ErrorMessage = &msg
	}
	if err := r.history.InsertHistory(ctx, rec); err != nil {
		r.logger.Printf("history insert failed for job %s: %v", job.ID, err)
	}

	next := finished.Add(time.Duration(job.IntervalSeconds) * time.Second)
	if err := r.history.TouchJobRun(ctx, job.ID, finished, next); err != nil {
		r.logger.Printf("job run stamp failed for %s: %v", job.ID, err)
	}
}
