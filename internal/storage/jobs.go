package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// JobState is the lifecycle state of a durable scheduler job.
type JobState string

const (
	JobQueued  JobState = "queued"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
	JobFailed  JobState = "failed"
)

// Job is one durable unit of scheduler work (hourly note, daily note,
// embedding backfill, ...), deduplicated on (job_type, target_key) so a
// crash-and-restart never double-enqueues the same unit of work.
type Job struct {
	JobID      string
	JobType    string
	TargetKey  string
	State      JobState
	Attempts   int
	EnqueuedAt time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	LastError  string
}

// EnqueueJob inserts a queued job, no-op if (job_type, target_key) is
// already present regardless of its current state.
func (d *DB) EnqueueJob(ctx context.Context, jobID, jobType, targetKey string, enqueuedAt time.Time) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO jobs (job_id, job_type, target_key, state, enqueued_at)
		VALUES (?, ?, ?, 'queued', ?)
	`, jobID, jobType, targetKey, enqueuedAt)
	return err
}

// ClaimNextJob atomically claims the oldest queued job of the given
// type, marking it running, or returns ErrNotFound if none are queued.
func (d *DB) ClaimNextJob(ctx context.Context, jobType string, now time.Time) (*Job, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	j := &Job{}
	err = tx.QueryRowContext(ctx, `
		SELECT job_id, job_type, target_key, state, attempts, enqueued_at
		FROM jobs WHERE job_type = ? AND state = 'queued'
		ORDER BY enqueued_at LIMIT 1
	`, jobType).Scan(&j.JobID, &j.JobType, &j.TargetKey, &j.State, &j.Attempts, &j.EnqueuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE jobs SET state = 'running', started_at = ?, attempts = attempts + 1 WHERE job_id = ?
	`, now, j.JobID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	j.State = JobRunning
	j.Attempts++
	j.StartedAt = &now
	return j, nil
}

// FinishJob marks a job done or failed.
func (d *DB) FinishJob(ctx context.Context, jobID string, finishedAt time.Time, jobErr error) error {
	state := JobDone
	var lastError string
	if jobErr != nil {
		state = JobFailed
		lastError = jobErr.Error()
	}
	_, err := d.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, finished_at = ?, last_error = ? WHERE job_id = ?
	`, state, finishedAt, lastError, jobID)
	return err
}

// RequeueStuckJobs resets any job still "running" with a started_at
// older than cutoff back to "queued" (a crash left it orphaned).
func (d *DB) RequeueStuckJobs(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := d.db.ExecContext(ctx, `
		UPDATE jobs SET state = 'queued', started_at = NULL WHERE state = 'running' AND started_at < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
