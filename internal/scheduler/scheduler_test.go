package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sira-labs/sira/internal/store"
)

type runRecorder struct {
	mu   sync.Mutex
	runs []string
	ch   chan string
}

func newRunRecorder() *runRecorder {
	return &runRecorder{ch: make(chan string, 16)}
}

func (r *runRecorder) handler(ctx context.Context, job store.Job) {
	r.mu.Lock()
	r.runs = append(r.runs, job.ID)
	r.mu.Unlock()
	r.ch <- job.ID
}

func (r *runRecorder) waitForRun(t *testing.T) string {
	t.Helper()
	select {
	case id := <-r.ch:
		return id
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a run")
		return ""
	}
}

func (r *runRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func testScheduler(rec *runRecorder) *Scheduler {
	return New(rec.handler, Options{TickInterval: time.Hour})
}

func TestFirstRunFiresAfterOneInterval(t *testing.T) {
	t.Parallel()
	rec := newRunRecorder()
	s := testScheduler(rec)
	base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	current := base
	s.now = func() time.Time { return current }

	s.Register(store.Job{ID: "job-1", Topic: "go", IntervalSeconds: 3600})

	s.Tick(context.Background())
	if rec.count() != 0 {
		t.Fatalf("job fired immediately, want one-interval delay")
	}

	current = base.Add(time.Hour)
	s.Tick(context.Background())
	if got := rec.waitForRun(t); got != "job-1" {
		t.Fatalf("ran %q, want job-1", got)
	}
}

func TestTickReschedulesNextInterval(t *testing.T) {
	t.Parallel()
	rec := newRunRecorder()
	s := testScheduler(rec)
	base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	current := base
	s.now = func() time.Time { return current }

	s.Register(store.Job{ID: "job-1", IntervalSeconds: 60})

	current = base.Add(time.Minute)
	s.Tick(context.Background())
	rec.waitForRun(t)

	// Same instant again must not double-fire.
	s.Tick(context.Background())
	if rec.count() != 1 {
		t.Fatalf("runs = %d, want 1", rec.count())
	}

	current = current.Add(time.Minute)
	s.Tick(context.Background())
	rec.waitForRun(t)
	if rec.count() != 2 {
		t.Fatalf("runs = %d, want 2", rec.count())
	}
}

func TestUnregisterStopsFiring(t *testing.T) {
	t.Parallel()
	rec := newRunRecorder()
	s := testScheduler(rec)
	base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	current := base
	s.now = func() time.Time { return current }

	s.Register(store.Job{ID: "job-1", IntervalSeconds: 60})
	s.Unregister("job-1")
	s.Unregister("job-1") // absent removal is fine

	current = base.Add(time.Minute)
	s.Tick(context.Background())
	if rec.count() != 0 {
		t.Fatalf("unregistered job still fired")
	}
}

func TestRegisterHonorsPersistedNextRun(t *testing.T) {
	t.Parallel()
	rec := newRunRecorder()
	s := testScheduler(rec)
	base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	current := base
	s.now = func() time.Time { return current }

	next := base.Add(10 * time.Minute)
	s.Register(store.Job{ID: "job-1", IntervalSeconds: 3600, NextRunAt: &next})

	current = base.Add(10 * time.Minute)
	s.Tick(context.Background())
	if rec.waitForRun(t) != "job-1" {
		t.Fatalf("job did not fire at persisted next_run_at")
	}
}

func TestCronHourlyDue(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	if !cronDue("@hourly", time.Time{}, base) {
		t.Fatalf("fresh @hourly must be due")
	}
	if cronDue("@hourly", base, base.Add(30*time.Minute)) {
		t.Fatalf("@hourly due after 30m")
	}
	if !cronDue("@hourly", base, base.Add(time.Hour)) {
		t.Fatalf("@hourly not due after 1h")
	}
}

func TestCronFiveFieldDue(t *testing.T) {
	t.Parallel()
	last := time.Date(2026, 8, 23, 10, 30, 0, 0, time.UTC)
	// "0 * * * *" fires at the top of each hour.
	if cronDue("0 * * * *", last, last.Add(10*time.Minute)) {
		t.Fatalf("due before the hour mark")
	}
	if !cronDue("0 * * * *", last, last.Add(30*time.Minute)) {
		t.Fatalf("not due at the hour mark")
	}
}

func TestSyncReconcilesEntries(t *testing.T) {
	t.Parallel()
	rec := newRunRecorder()
	s := testScheduler(rec)

	s.Register(store.Job{ID: "stale", IntervalSeconds: 60})
	s.Sync([]store.Job{
		{ID: "kept", IntervalSeconds: 60},
		{ID: "new", IntervalSeconds: 60},
	})

	if s.Registered("stale") {
		t.Fatalf("stale entry survived sync")
	}
	if !s.Registered("kept") || !s.Registered("new") {
		t.Fatalf("sync did not register listed jobs")
	}
}

func TestRestoreRegistersAll(t *testing.T) {
	t.Parallel()
	rec := newRunRecorder()
	s := testScheduler(rec)
	s.Restore([]store.Job{{ID: "a", IntervalSeconds: 60}, {ID: "b", IntervalSeconds: 60}})
	if !s.Registered("a") || !s.Registered("b") {
		t.Fatalf("restore missed entries")
	}
}
