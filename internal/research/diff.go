package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sira-labs/sira/internal/store"
	"github.com/sira-labs/sira/provider"
)

// ErrInsufficientHistory is returned when a job has fewer than two completed
// runs to compare.
var ErrInsufficientHistory = errors.New("insufficient history for diff")

// NumericDiff compares countable fields between two consecutive runs.
type NumericDiff struct {
	ResultCountChange int       `json:"result_count_change"`
	KGNodeChange      int       `json:"kg_node_change"`
	KGEdgeChange      int       `json:"kg_edge_change"`
	LatestStatus      string    `json:"latest_status"`
	PreviousStatus    string    `json:"previous_status"`
	LatestFinishedAt  time.Time `json:"latest_finished_at"`
	PreviousFinished  time.Time `json:"previous_finished_at"`
}

// DiffReport is the full comparison between the two most recent runs. The
// compared records themselves ride along so callers can render them without
// a second history read.
type DiffReport struct {
	JobID        string              `json:"job_id"`
	Topic        string              `json:"topic"`
	Latest       store.HistoryRecord `json:"latest"`
	Previous     store.HistoryRecord `json:"previous"`
	Numeric      NumericDiff         `json:"numeric"`
	SemanticDiff string              `json:"semantic_diff,omitempty"`
}

// RunHistory is the read slice Diff needs.
type RunHistory interface {
	LatestRuns(ctx context.Context, jobID string, limit int) ([]store.HistoryRecord, error)
}

const semanticDiffFallback = "LLM diff unavailable due to backend error."

// Diff compares the two most recent runs of a job. The numeric comparison is
// always produced; the semantic comparison runs only when both runs carry a
// full summary, and degrades to a fixed placeholder on provider failure.
func Diff(ctx context.Context, history RunHistory, llm provider.Provider, jobID string) (DiffReport, error) {
	runs, err := history.LatestRuns(ctx, jobID, 2)
	if err != nil {
		return DiffReport{}, fmt.Errorf("load runs: %w", err)
	}
	if len(runs) < 2 {
		return DiffReport{}, ErrInsufficientHistory
	}
	latest, previous := runs[0], runs[1]

	report := DiffReport{
		JobID:    jobID,
		Topic:    latest.Topic,
		Latest:   latest,
		Previous: previous,
		Numeric: NumericDiff{
			ResultCountChange: latest.ResultCount - previous.ResultCount,
			KGNodeChange:      latest.KGNodes - previous.KGNodes,
			KGEdgeChange:      latest.KGEdges - previous.KGEdges,
			LatestStatus:      latest.Status,
			PreviousStatus:    previous.Status,
			LatestFinishedAt:  latest.RunFinishedAt,
			PreviousFinished:  previous.RunFinishedAt,
		},
	}

	if llm != nil && strings.TrimSpace(latest.FullSummary) != "" && strings.TrimSpace(previous.FullSummary) != "" {
		report.SemanticDiff = semanticDiff(ctx, llm, previous.FullSummary, latest.FullSummary)
	}
	return report, nil
}

func semanticDiff(ctx context.Context, llm provider.Provider, older, newer string) string {
	prompt := fmt.Sprintf(`Compare these two research snapshots of the same topic.
List what is NEW, what CHANGED, and what DISAPPEARED, as short bullet points.
If nothing meaningful changed, say "No significant changes."

PREVIOUS:
%s

LATEST:
%s`, older, newer)

	out, err := llm.Complete(ctx, prompt, false)
	if err != nil || strings.TrimSpace(out) == "" {
		return semanticDiffFallback
	}
	return strings.TrimSpace(out)
}
