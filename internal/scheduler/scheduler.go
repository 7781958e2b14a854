// Package scheduler drives recurring job execution. A single loop ticks over
// the registered entries, fires due jobs on their own goroutines, and uses a
// Redis lock so two workers never execute the same due job twice. Timer
// state is in-memory only; Restore rebuilds it from the store at startup.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/sira-labs/sira/internal/store"
)

// Handler executes one run of a due job. Implementations must not panic and
// must record their own outcome; the scheduler only sequences them.
type Handler func(ctx context.Context, job store.Job)

type entry struct {
	job     store.Job
	nextRun time.Time
	lastRun time.Time
}

// Scheduler owns the recurring-job timer state.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*entry

	handler      Handler
	tickInterval time.Duration
	lockTTL      time.Duration
	rdb          *redis.Client
	instanceID   string
	logger       *log.Logger
	now          func() time.Time

	// onRegistered reports the active entry count after every change; wired
	// to the active-jobs gauge.
	onCount func(int)
}

// Options configures a scheduler.
type Options struct {
	TickInterval time.Duration
	LockTTL      time.Duration
	// Rdb enables cross-process run locks; nil disables locking.
	Rdb     *redis.Client
	Logger  *log.Logger
	OnCount func(int)
}

func New(handler Handler, opts Options) *Scheduler {
	tick := opts.TickInterval
	if tick <= 0 {
		tick = 5 * time.Second
	}
	ttl := opts.LockTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[SCHED] ", log.LstdFlags)
	}
	return &Scheduler{
		entries:      make(map[string]*entry),
		handler:      handler,
		tickInterval: tick,
		lockTTL:      ttl,
		rdb:          opts.Rdb,
		instanceID:   uuid.NewString(),
		logger:       logger,
		now:          time.Now,
		onCount:      opts.OnCount,
	}
}

// Register adds or replaces the timer for a job. The first run fires one
// full interval after registration, never immediately.
func (s *Scheduler) Register(job store.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &entry{job: job}
	if job.NextRunAt != nil {
		e.nextRun = *job.NextRunAt
	} else {
		e.nextRun = s.now().Add(time.Duration(job.IntervalSeconds) * time.Second)
	}
	if job.LastRunAt != nil {
		e.lastRun = *job.LastRunAt
	}
	s.entries[job.ID] = e
	s.reportCount()
	s.logger.Printf("registered job %s (%s) every %ds", job.ID, job.Topic, job.IntervalSeconds)
}

// Unregister removes a job's timer. Removing an absent timer is not an
// error; an in-flight run is allowed to complete.
func (s *Scheduler) Unregister(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[jobID]; !ok {
		return
	}
	delete(s.entries, jobID)
	s.reportCount()
	s.logger.Printf("unregistered job %s", jobID)
}

// Registered reports whether a timer exists for the job.
func (s *Scheduler) Registered(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[jobID]
	return ok
}

// Restore registers timers for every active job. Required after restart:
// job definitions survive in the store, timers do not.
func (s *Scheduler) Restore(jobs []store.Job) {
	for _, j := range jobs {
		s.Register(j)
	}
	s.logger.Printf("restored %d jobs", len(jobs))
}

// Sync reconciles timer state against the authoritative active-job list:
// unlisted entries lose their timers, new jobs gain one. Existing timers
// are left untouched so in-progress intervals do not reset.
func (s *Scheduler) Sync(jobs []store.Job) {
	active := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		active[j.ID] = true
	}

	s.mu.Lock()
	for id := range s.entries {
		if !active[id] {
			delete(s.entries, id)
			s.logger.Printf("unregistered job %s (no longer active)", id)
		}
	}
	s.mu.Unlock()

	for _, j := range jobs {
		if !s.Registered(j.ID) {
			s.Register(j)
		}
	}

	s.mu.Lock()
	s.reportCount()
	s.mu.Unlock()
}

// Start runs the tick loop until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick fires every due job. Exported so tests can drive the loop manually.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []store.Job
	for _, e := range s.entries {
		if !s.isDue(e, now) {
			continue
		}
		due = append(due, e.job)
		e.lastRun = now
		e.nextRun = nextAfter(e.job, now)
	}
	s.mu.Unlock()

	for _, job := range due {
		if !s.acquireLock(ctx, job.ID) {
			continue
		}
		go s.handler(ctx, job)
	}
}

func (s *Scheduler) isDue(e *entry, now time.Time) bool {
	if spec := e.job.ScheduleCron; spec != "" {
		return cronDue(spec, e.lastRun, now)
	}
	return !e.nextRun.After(now)
}

// acquireLock claims the per-job run lock when Redis is configured. The
// value identifies the owning worker; lock loss on crash self-heals via
// the TTL.
func (s *Scheduler) acquireLock(ctx context.Context, jobID string) bool {
	if s.rdb == nil {
		return true
	}
	ok, err := s.rdb.SetNX(ctx, "sched:lock:"+jobID, s.instanceID, s.lockTTL).Result()
	if err != nil {
		// Degraded Redis should not stall research entirely.
		s.logger.Printf("lock acquire failed for %s: %v", jobID, err)
		return true
	}
	return ok
}

func (s *Scheduler) reportCount() {
	if s.onCount != nil {
		s.onCount(len(s.entries))
	}
}

func nextAfter(job store.Job, now time.Time) time.Time {
	if job.ScheduleCron != "" {
		if expr, err := cronexpr.Parse(normalizeCron(job.ScheduleCron)); err == nil {
			return expr.Next(now)
		}
	}
	return now.Add(time.Duration(job.IntervalSeconds) * time.Second)
}

// cronDue mirrors interval semantics for the shorthand specs and defers to
// the parsed expression otherwise. Invalid expressions degrade to @daily.
func cronDue(spec string, last, now time.Time) bool {
	switch spec {
	case "@hourly":
		return last.IsZero() || now.Sub(last) >= time.Hour
	case "@daily":
		return last.IsZero() || now.Sub(last) >= 24*time.Hour
	}
	expr, err := cronexpr.Parse(spec)
	if err != nil {
		return last.IsZero() || now.Sub(last) >= 24*time.Hour
	}
	if last.IsZero() {
		return true
	}
	return !expr.Next(last).After(now)
}

func normalizeCron(spec string) string {
	switch spec {
	case "@hourly":
		return "0 * * * *"
	case "@daily":
		return "0 0 * * *"
	}
	return spec
}
