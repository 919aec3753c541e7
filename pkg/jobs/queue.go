// Package jobs is the cross-wiki auto-close job queue. Jobs are rows in a
// shared postgres table; each wiki's worker claims only rows addressed to
// it. Delivery is at-least-once, so job handling must be idempotent.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/casewatch/casewatch-engine/pkg/database"
)

// JobStatus is the queue-side state of an auto-close job.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// AutoCloseJob asks the target wiki to re-evaluate open cases mentioning
// the named user, because that user became indefinitely blocked elsewhere.
type AutoCloseJob struct {
	ID        int64     `json:"id"`
	Reference uuid.UUID `json:"reference"`
	WikiID    string    `json:"wiki_id"`
	Username  string    `json:"username"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}

// Queue accepts auto-close jobs addressed to a wiki.
type Queue interface {
	EnqueueAutoClose(ctx context.Context, wikiID, username string) error
}

// Store is the full queue contract used by workers: enqueue plus claim and
// completion bookkeeping.
type Store interface {
	Queue
	// ClaimPending atomically claims up to limit pending jobs for the given
	// wiki, marking them running. Concurrent workers never claim the same
	// job (FOR UPDATE SKIP LOCKED).
	ClaimPending(ctx context.Context, wikiID string, limit int) ([]AutoCloseJob, error)
	MarkDone(ctx context.Context, jobID int64) error
	// MarkFailed records the failure; the job goes back to pending until
	// maxAttempts is reached, then to failed.
	MarkFailed(ctx context.Context, jobID int64, jobErr error, maxAttempts int) error
}

type postgresQueue struct {
	db *database.DB
}

// NewPostgresQueue creates a postgres-backed job queue store.
func NewPostgresQueue(db *database.DB) Store {
	return &postgresQueue{db: db}
}

var _ Store = (*postgresQueue)(nil)

func (q *postgresQueue) EnqueueAutoClose(ctx context.Context, wikiID, username string) error {
	query := `
		INSERT INTO autoclose_jobs (reference, wiki_id, username, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, NOW(), NOW())`

	_, err := q.db.Exec(ctx, query, uuid.New(), wikiID, username, JobStatusPending)
	if err != nil {
		return fmt.Errorf("failed to enqueue auto-close job for %q on %s: %w", username, wikiID, err)
	}
	return nil
}

func (q *postgresQueue) ClaimPending(ctx context.Context, wikiID string, limit int) ([]AutoCloseJob, error) {
	query := `
		UPDATE autoclose_jobs
		SET status = $1, attempts = attempts + 1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM autoclose_jobs
			WHERE wiki_id = $2 AND status = $3
			ORDER BY id ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, reference, wiki_id, username, attempts, created_at`

	rows, err := q.db.Query(ctx, query, JobStatusRunning, wikiID, JobStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim auto-close jobs: %w", err)
	}
	defer rows.Close()

	var jobs []AutoCloseJob
	for rows.Next() {
		var j AutoCloseJob
		if err := rows.Scan(&j.ID, &j.Reference, &j.WikiID, &j.Username, &j.Attempts, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan auto-close job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auto-close job rows: %w", err)
	}
	return jobs, nil
}

func (q *postgresQueue) MarkDone(ctx context.Context, jobID int64) error {
	_, err := q.db.Exec(ctx,
		`UPDATE autoclose_jobs SET status = $1, last_error = '', updated_at = NOW() WHERE id = $2`,
		JobStatusDone, jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job %d done: %w", jobID, err)
	}
	return nil
}

func (q *postgresQueue) MarkFailed(ctx context.Context, jobID int64, jobErr error, maxAttempts int) error {
	query := `
		UPDATE autoclose_jobs
		SET status = CASE WHEN attempts >= $2 THEN $3::text ELSE $4::text END,
		    last_error = $5,
		    updated_at = NOW()
		WHERE id = $1`

	_, err := q.db.Exec(ctx, query, jobID, maxAttempts, JobStatusFailed, JobStatusPending, jobErr.Error())
	if err != nil {
		return fmt.Errorf("failed to mark job %d failed: %w", jobID, err)
	}
	return nil
}
