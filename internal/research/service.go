package research

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sira-labs/sira/internal/store"
)

// JobStore is the job-persistence slice the service consumes.
type JobStore interface {
	CreateJob(ctx context.Context, userID, topic string, intervalSeconds int, scheduleCron string, nextRunAt time.Time) (string, []string, error)
	DeactivateJob(ctx context.Context, jobID string) (bool, error)
	GetJob(ctx context.Context, jobID string) (store.Job, error)
	ListActiveJobs(ctx context.Context) ([]store.Job, error)
	ListJobsByUser(ctx context.Context, userID string) ([]store.Job, error)
}

// Timers is the scheduler slice the service consumes.
type Timers interface {
	Register(job store.Job)
	Unregister(jobID string)
	Restore(jobs []store.Job)
}

// Service coordinates job persistence with scheduler timer state so the two
// never drift: every active row has exactly one timer.
type Service struct {
	jobs   JobStore
	timers Timers
	logger *log.Logger
	now    func() time.Time
}

func NewService(jobs JobStore, timers Timers, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(log.Writer(), "[JOBS] ", log.LstdFlags)
	}
	return &Service{jobs: jobs, timers: timers, logger: logger, now: time.Now}
}

const minIntervalSeconds = 60

// Schedule creates a recurring job. Re-scheduling an existing (user, topic)
// pair replaces the previous job: the old row is deactivated and its timer
// dropped, so exactly one timer per pair survives. The first run fires one
// full interval from now.
func (s *Service) Schedule(ctx context.Context, userID, topic string, intervalSeconds int, scheduleCron string) (store.Job, error) {
	if topic == "" {
		return store.Job{}, errors.New("topic must not be empty")
	}
	if userID == "" {
		return store.Job{}, errors.New("user id must not be empty")
	}
	if intervalSeconds < minIntervalSeconds {
		return store.Job{}, fmt.Errorf("interval must be at least %d seconds", minIntervalSeconds)
	}

	nextRun := s.now().Add(time.Duration(intervalSeconds) * time.Second)
	id, replaced, err := s.jobs.CreateJob(ctx, userID, topic, intervalSeconds, scheduleCron, nextRun)
	if err != nil {
		return store.Job{}, fmt.Errorf("create job: %w", err)
	}
	for _, old := range replaced {
		s.timers.Unregister(old)
		s.logger.Printf("job %s replaced by %s for topic %q", old, id, topic)
	}

	job := store.Job{
		ID:              id,
		UserID:          userID,
		Topic:           topic,
		IntervalSeconds: intervalSeconds,
		ScheduleCron:    scheduleCron,
		IsActive:        true,
		NextRunAt:       &nextRun,
	}
	s.timers.Register(job)
	return job, nil
}

// Cancel deactivates a job and drops its timer. Cancelling an already
// cancelled or unknown job succeeds silently; an in-flight run completes.
func (s *Service) Cancel(ctx context.Context, jobID string) error {
	deactivated, err := s.jobs.DeactivateJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("deactivate job: %w", err)
	}
	s.timers.Unregister(jobID)
	if deactivated {
		s.logger.Printf("job %s cancelled", jobID)
	}
	return nil
}

// List returns the user's active jobs.
func (s *Service) List(ctx context.Context, userID string) ([]store.Job, error) {
	return s.jobs.ListJobsByUser(ctx, userID)
}

// Restore reloads every active job from the store and rebuilds timer state.
// Called once at startup; missed runs are not backfilled, the next cycle
// simply starts from restore time.
func (s *Service) Restore(ctx context.Context) (int, error) {
	jobs, err := s.jobs.ListActiveJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active jobs: %w", err)
	}
	s.timers.Restore(jobs)
	return len(jobs), nil
}
