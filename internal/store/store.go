// Package store persists recurring research jobs, their run history, and
// vector memory rows in Postgres.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/sira-labs/sira/config"
)

type Store struct {
	DB *sql.DB
}

// Run statuses recorded in history rows.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusError   = "error"
)

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{DB: db}, nil
}

// Job is a persisted recurring research task bound to a (user, topic) pair.
type Job struct {
	ID              string
	UserID          string
	Topic           string
	IntervalSeconds int
	ScheduleCron    string
	IsActive        bool
	LastRunAt       *time.Time
	NextRunAt       *time.Time
	CreatedAt       time.Time
}

// CreateJob deactivates any existing active job for the same (user, topic)
// pair and inserts a new active row, atomically. Exactly one active job per
// pair survives. The ids of replaced jobs are returned so the caller can
// drop their timers.
func (s *Store) CreateJob(ctx context.Context, userID, topic string, intervalSeconds int, scheduleCron string, nextRunAt time.Time) (string, []string, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `UPDATE research_jobs SET is_active=FALSE WHERE user_id=$1 AND topic=$2 AND is_active=TRUE RETURNING id`, userID, topic)
	if err != nil {
		return "", nil, err
	}
	var replaced []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return "", nil, err
		}
		replaced = append(replaced, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return "", nil, err
	}
	rows.Close()

	var id string
	err = tx.QueryRowContext(ctx, `INSERT INTO research_jobs (user_id, topic, interval_seconds, schedule_cron, is_active, next_run_at) VALUES ($1,$2,$3,$4,TRUE,$5) RETURNING id`,
		userID, topic, intervalSeconds, scheduleCron, nextRunAt).Scan(&id)
	if err != nil {
		return "", nil, err
	}
	return id, replaced, tx.Commit()
}

// DeactivateJob soft-deletes a job. Jobs are never physically removed so
// past history rows stay attributable.
func (s *Store) DeactivateJob(ctx context.Context, jobID string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `UPDATE research_jobs SET is_active=FALSE WHERE id=$1 AND is_active=TRUE`, jobID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (Job, error) {
	var j Job
	err := s.DB.QueryRowContext(ctx, `SELECT id, user_id, topic, interval_seconds, schedule_cron, is_active, last_run_at, next_run_at, created_at FROM research_jobs WHERE id=$1`, jobID).
		Scan(&j.ID, &j.UserID, &j.Topic, &j.IntervalSeconds, &j.ScheduleCron, &j.IsActive, &j.LastRunAt, &j.NextRunAt, &j.CreatedAt)
	return j, err
}

// ListActiveJobs returns every active job; used by restore at startup and by
// the scheduler tick.
func (s *Store) ListActiveJobs(ctx context.Context) ([]Job, error) {
	return s.listJobs(ctx, `SELECT id, user_id, topic, interval_seconds, schedule_cron, is_active, last_run_at, next_run_at, created_at FROM research_jobs WHERE is_active=TRUE ORDER BY created_at`)
}

// ListJobsByUser returns the user's active jobs.
func (s *Store) ListJobsByUser(ctx context.Context, userID string) ([]Job, error) {
	return s.listJobs(ctx, `SELECT id, user_id, topic, interval_seconds, schedule_cron, is_active, last_run_at, next_run_at, created_at FROM research_jobs WHERE user_id=$1 AND is_active=TRUE ORDER BY created_at`, userID)
}

func (s *Store) listJobs(ctx context.Context, query string, args ...interface{}) ([]Job, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.UserID, &j.Topic, &j.IntervalSeconds, &j.ScheduleCron, &j.IsActive, &j.LastRunAt, &j.NextRunAt, &j.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// TouchJobRun stamps run bookkeeping after an execution completes.
func (s *Store) TouchJobRun(ctx context.Context, jobID string, lastRunAt, nextRunAt time.Time) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE research_jobs SET last_run_at=$2, next_run_at=$3 WHERE id=$1`, jobID, lastRunAt, nextRunAt)
	return err
}

// HistoryRecord is the immutable log entry for one job execution.
type HistoryRecord struct {
	ID            string
	JobID         string
	UserID        string
	Topic         string
	Status        string
	ResultCount   int
	KGNodes       int
	KGEdges       int
	ErrorMessage  *string
	RunStartedAt  time.Time
	RunFinishedAt time.Time
	FullSummary   string
}

// InsertHistory appends one history row. Rows are never updated afterwards.
func (s *Store) InsertHistory(ctx context.Context, rec HistoryRecord) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO research_history (job_id, user_id, topic, status, result_count, kg_nodes, kg_edges, error_message, run_started_at, run_finished_at, full_summary_text) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		rec.JobID, rec.UserID, rec.Topic, rec.Status, rec.ResultCount, rec.KGNodes, rec.KGEdges, rec.ErrorMessage, rec.RunStartedAt, rec.RunFinishedAt, rec.FullSummary)
	return err
}

// LatestRuns returns up to limit history rows for a job ordered by finish
// time descending; the first element is the most recent run.
func (s *Store) LatestRuns(ctx context.Context, jobID string, limit int) ([]HistoryRecord, error) {
	if limit <= 0 {
		limit = 2
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT id, job_id, user_id, topic, status, result_count, kg_nodes, kg_edges, error_message, run_started_at, run_finished_at, full_summary_text FROM research_history WHERE job_id=$1 ORDER BY run_finished_at DESC LIMIT $2`, jobID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HistoryRecord
	for rows.Next() {
		var r HistoryRecord
		if err := rows.Scan(&r.ID, &r.JobID, &r.UserID, &r.Topic, &r.Status, &r.ResultCount, &r.KGNodes, &r.KGEdges, &r.ErrorMessage, &r.RunStartedAt, &r.RunFinishedAt, &r.FullSummary); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MemoryEntry is one vector-memory row scoped to a user.
type MemoryEntry struct {
	ID     string
	UserID string
	Title  string
	URL    string
	Text   string
	Vector []float32
}

// MemoryHit is a search result with cosine similarity score.
type MemoryHit struct {
	Title string
	URL   string
	Text  string
	Score float64
}

// UpsertMemoryEntry stores or refreshes a vector row.
func (s *Store) UpsertMemoryEntry(ctx context.Context, rec MemoryEntry) error {
	if len(rec.Vector) == 0 {
		return fmt.Errorf("embedding vector required")
	}
	vectorLiteral, err := encodeVectorLiteral(rec.Vector)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO memory_entries (id, user_id, title, url, content, embedding, created_at)
VALUES ($1,$2,$3,$4,$5,$6::vector,NOW())
ON CONFLICT (id) DO UPDATE SET
  title = EXCLUDED.title,
  content = EXCLUDED.content,
  embedding = EXCLUDED.embedding,
  created_at = NOW();
`, rec.ID, rec.UserID, rec.Title, rec.URL, rec.Text, vectorLiteral)
	return err
}

// SearchMemory returns the closest memory rows for the supplied vector,
// restricted to one user. Score is cosine similarity (1 - distance).
func (s *Store) SearchMemory(ctx context.Context, userID string, vector []float32, topK int) ([]MemoryHit, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector must not be empty")
	}
	if topK <= 0 {
		topK = 5
	}
	vecLiteral, err := encodeVectorLiteral(vector)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT title, url, content, embedding <=> $1::vector AS distance
FROM memory_entries
WHERE user_id = $2
ORDER BY embedding <=> $1::vector
LIMIT $3
`, vecLiteral, userID, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var hits []MemoryHit
	for rows.Next() {
		var (
			h        MemoryHit
			distance float64
		)
		if err := rows.Scan(&h.Title, &h.URL, &h.Text, &distance); err != nil {
			return nil, err
		}
		h.Score = 1 - distance
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func encodeVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("vector must not be empty")
	}
	var builder strings.Builder
	builder.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}
