package research

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sira-labs/sira/internal/store"
)

type fakeRunHistory struct {
	runs []store.HistoryRecord
	err  error
}

func (f fakeRunHistory) LatestRuns(ctx context.Context, jobID string, limit int) ([]store.HistoryRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.runs) > limit {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func historyPair() []store.HistoryRecord {
	finish := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	return []store.HistoryRecord{
		{
			JobID: "job-1", Topic: "go releases", Status: store.RunStatusSuccess,
			ResultCount: 7, KGNodes: 12, KGEdges: 20,
			RunFinishedAt: finish, FullSummary: "latest snapshot",
		},
		{
			JobID: "job-1", Topic: "go releases", Status: store.RunStatusSuccess,
			ResultCount: 5, KGNodes: 10, KGEdges: 25,
			RunFinishedAt: finish.Add(-time.Hour), FullSummary: "previous snapshot",
		},
	}
}

func TestDiffInsufficientHistory(t *testing.T) {
	t.Parallel()
	_, err := Diff(context.Background(), fakeRunHistory{runs: historyPair()[:1]}, nil, "job-1")
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("err = %v, want ErrInsufficientHistory", err)
	}
}

func TestDiffNumericChanges(t *testing.T) {
	t.Parallel()
	report, err := Diff(context.Background(), fakeRunHistory{runs: historyPair()}, nil, "job-1")
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	n := report.Numeric
	if n.ResultCountChange != 2 || n.KGNodeChange != 2 || n.KGEdgeChange != -5 {
		t.Fatalf("numeric = %+v", n)
	}
	if report.Latest.FullSummary != "latest snapshot" || report.Previous.FullSummary != "previous snapshot" {
		t.Fatalf("records not carried: latest=%q previous=%q", report.Latest.FullSummary, report.Previous.FullSummary)
	}
	if report.SemanticDiff != "" {
		t.Fatalf("semantic diff produced without llm: %q", report.SemanticDiff)
	}
}

func TestDiffSemanticComparison(t *testing.T) {
	t.Parallel()
	report, err := Diff(context.Background(), fakeRunHistory{runs: historyPair()}, stubLLM{completion: "- new release cut"}, "job-1")
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if report.SemanticDiff != "- new release cut" {
		t.Fatalf("semantic = %q", report.SemanticDiff)
	}
}

func TestDiffSemanticFallbackOnProviderError(t *testing.T) {
	t.Parallel()
	report, err := Diff(context.Background(), fakeRunHistory{runs: historyPair()}, stubLLM{err: errors.New("backend down")}, "job-1")
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if report.SemanticDiff != semanticDiffFallback {
		t.Fatalf("semantic = %q, want fallback", report.SemanticDiff)
	}
}

func TestDiffSkipsSemanticWhenSummaryMissing(t *testing.T) {
	t.Parallel()
	runs := historyPair()
	runs[1].FullSummary = ""
	report, err := Diff(context.Background(), fakeRunHistory{runs: runs}, stubLLM{completion: "unused"}, "job-1")
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if report.SemanticDiff != "" {
		t.Fatalf("semantic = %q, want empty", report.SemanticDiff)
	}
}
