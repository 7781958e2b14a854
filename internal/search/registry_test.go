package search

import (
	"testing"
	"time"
)

func newTestRegistry() *Registry {
	return NewRegistry([]ProviderState{
		{Name: "serpapi", Weight: 1.0, Quota: 100},
		{Name: "brave", Weight: 0.8, Quota: 2000},
		{Name: "duckduckgo", Weight: 0.5},
	}, OfflineProvider)
}

func TestPickPrefersHighestWeight(t *testing.T) {
	t.Parallel()
	r := newTestRegistry()
	if got := r.Pick(nil); got != "serpapi" {
		t.Fatalf("Pick() = %q, want serpapi", got)
	}
}

func TestPickSkipsExcludedAndUnhealthy(t *testing.T) {
	t.Parallel()
	r := newTestRegistry()
	r.MarkFailure("brave")
	got := r.Pick(map[string]bool{"serpapi": true})
	if got != "duckduckgo" {
		t.Fatalf("Pick() = %q, want duckduckgo", got)
	}
}

func TestPickFallsBackWhenNothingHealthy(t *testing.T) {
	t.Parallel()
	r := newTestRegistry()
	r.MarkFailure("serpapi")
	r.MarkFailure("brave")
	r.MarkFailure("duckduckgo")
	if got := r.Pick(nil); got != OfflineProvider {
		t.Fatalf("Pick() = %q, want %q", got, OfflineProvider)
	}
}

func TestWeightClampedAtMax(t *testing.T) {
	t.Parallel()
	r := newTestRegistry()
	for i := 0; i < 10; i++ {
		r.MarkSuccess("serpapi")
	}
	st, _ := r.Snapshot("serpapi")
	if st.Weight != 1.0 {
		t.Fatalf("weight = %v, want 1.0", st.Weight)
	}
}

func TestWeightClampedAtMin(t *testing.T) {
	t.Parallel()
	r := newTestRegistry()
	for i := 0; i < 20; i++ {
		r.MarkFailure("duckduckgo")
	}
	st, _ := r.Snapshot("duckduckgo")
	if st.Weight != 0.1 {
		t.Fatalf("weight = %v, want 0.1", st.Weight)
	}
}

func TestSuccessRestoresHealth(t *testing.T) {
	t.Parallel()
	r := newTestRegistry()
	r.MarkFailure("brave")
	r.MarkSuccess("brave")
	st, _ := r.Snapshot("brave")
	if !st.Healthy {
		t.Fatalf("expected brave healthy after success")
	}
}

func TestQuotaExhaustionRemovesProvider(t *testing.T) {
	t.Parallel()
	r := NewRegistry([]ProviderState{
		{Name: "serpapi", Weight: 1.0, Quota: 2},
		{Name: "brave", Weight: 0.8},
	}, OfflineProvider)
	r.MarkSuccess("serpapi")
	r.MarkSuccess("serpapi")
	st, _ := r.Snapshot("serpapi")
	if st.Healthy {
		t.Fatalf("expected serpapi unhealthy after quota exhaustion")
	}
	if got := r.Pick(nil); got != "brave" {
		t.Fatalf("Pick() = %q, want brave", got)
	}
}

func TestUnlimitedQuotaNeverExhausts(t *testing.T) {
	t.Parallel()
	r := newTestRegistry()
	for i := 0; i < 50; i++ {
		r.MarkSuccess("duckduckgo")
	}
	st, _ := r.Snapshot("duckduckgo")
	if !st.Healthy || st.Quota != 0 {
		t.Fatalf("unlimited provider changed state: healthy=%v quota=%d", st.Healthy, st.Quota)
	}
}

func TestApplyRateLimitWaitsForInterval(t *testing.T) {
	t.Parallel()
	r := NewRegistry([]ProviderState{
		{Name: "serpapi", Weight: 1.0, MinCallInterval: time.Second},
	}, OfflineProvider)

	current := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var slept time.Duration
	r.now = func() time.Time { return current }
	r.sleep = func(d time.Duration) { slept += d; current = current.Add(d) }

	r.ApplyRateLimit("serpapi")
	if slept != 0 {
		t.Fatalf("first call slept %v, want 0", slept)
	}

	current = current.Add(300 * time.Millisecond)
	r.ApplyRateLimit("serpapi")
	if slept != 700*time.Millisecond {
		t.Fatalf("second call slept %v, want 700ms", slept)
	}
}
