package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/convoflow/convoflow/internal/domain"
	"github.com/convoflow/convoflow/internal/queue"
)

// JobRepository is the durable queue backend. Claiming uses
// FOR UPDATE SKIP LOCKED so concurrent workers never double-claim.
type JobRepository struct {
	db dbtx
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{db: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO jobs (id, topic, name, payload, priority, status, attempts, max_attempts, last_error, run_at, created_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		job.ID, job.Topic, job.Name, job.Payload, job.Priority, job.Status,
		job.Attempts, job.MaxAttempts, nullableString(job.LastError), job.RunAt, job.CreatedAt, job.FinishedAt,
	)
	return err
}

// Claim atomically moves due jobs of one topic from queued to active,
// highest priority first, oldest first within a priority. Each claim
// counts as an attempt.
func (r *JobRepository) Claim(ctx context.Context, topic domain.JobTopic, limit int) ([]*domain.Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx,
		`WITH due AS (
			 SELECT id
			 FROM jobs
			 WHERE topic = $1 AND status = $2 AND run_at <= now()
			 ORDER BY priority DESC, run_at ASC
			 FOR UPDATE SKIP LOCKED
			 LIMIT $3
		 )
		 UPDATE jobs
		 SET status = $4,
		     attempts = attempts + 1
		 FROM due
		 WHERE jobs.id = due.id
		 RETURNING jobs.id, jobs.topic, jobs.name, jobs.payload, jobs.priority, jobs.status,
		           jobs.attempts, jobs.max_attempts, jobs.last_error, jobs.run_at, jobs.created_at, jobs.finished_at`,
		topic, domain.JobStatusQueued, limit, domain.JobStatusActive,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *JobRepository) MarkCompleted(ctx context.Context, id string) error {
	return r.finish(ctx, id, domain.JobStatusCompleted, "")
}

func (r *JobRepository) MarkDead(ctx context.Context, id, lastError string) error {
	return r.finish(ctx, id, domain.JobStatusDead, lastError)
}

func (r *JobRepository) finish(ctx context.Context, id string, status domain.JobStatus, lastError string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE jobs
		 SET status = $1, last_error = COALESCE($2, last_error), finished_at = now()
		 WHERE id = $3`,
		status, nullableString(lastError), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (r *JobRepository) Requeue(ctx context.Context, id string, runAt time.Time, lastError string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE jobs
		 SET status = $1, run_at = $2, last_error = $3
		 WHERE id = $4`,
		domain.JobStatusQueued, runAt, nullableString(lastError), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// DeleteQueued removes a job only while it is still waiting. Active jobs
// are left alone.
func (r *JobRepository) DeleteQueued(ctx context.Context, topic domain.JobTopic, id string) (bool, error) {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM jobs WHERE id = $1 AND topic = $2 AND status = $3`,
		id, topic, domain.JobStatusQueued,
	)
	if err != nil {
		return false, err
	}
	return cmdTag.RowsAffected() > 0, nil
}

func (r *JobRepository) GetJob(ctx context.Context, topic domain.JobTopic, id string) (*domain.Job, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, topic, name, payload, priority, status, attempts, max_attempts, last_error, run_at, created_at, finished_at
		 FROM jobs WHERE id = $1 AND topic = $2`,
		id, topic,
	)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

func (r *JobRepository) Stats(ctx context.Context) (map[domain.JobTopic]queue.TopicStats, error) {
	rows, err := r.db.Query(ctx,
		`SELECT topic, status, COUNT(*) FROM jobs GROUP BY topic, status`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[domain.JobTopic]queue.TopicStats)
	for rows.Next() {
		var topic domain.JobTopic
		var status domain.JobStatus
		var count int
		if err := rows.Scan(&topic, &status, &count); err != nil {
			return nil, err
		}
		entry := stats[topic]
		switch status {
		case domain.JobStatusQueued:
			entry.Queued = count
		case domain.JobStatusActive:
			entry.Active = count
		case domain.JobStatusCompleted:
			entry.Completed = count
		case domain.JobStatusDead:
			entry.Dead = count
		}
		stats[topic] = entry
	}
	return stats, rows.Err()
}

// Prune deletes finished jobs past their retention windows.
func (r *JobRepository) Prune(ctx context.Context, completedBefore, deadBefore time.Time) (int, error) {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM jobs
		 WHERE (status = $1 AND finished_at < $2)
		    OR (status = $3 AND finished_at < $4)`,
		domain.JobStatusCompleted, completedBefore, domain.JobStatusDead, deadBefore,
	)
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var lastError *string
	err := row.Scan(&job.ID, &job.Topic, &job.Name, &job.Payload, &job.Priority, &job.Status,
		&job.Attempts, &job.MaxAttempts, &lastError, &job.RunAt, &job.CreatedAt, &job.FinishedAt)
	if err != nil {
		return nil, err
	}
	if lastError != nil {
		job.LastError = *lastError
	}
	return &job, nil
}
