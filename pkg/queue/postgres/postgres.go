// Package postgres provides the PostgreSQL queue backend. Claim uses
// FOR UPDATE SKIP LOCKED so concurrent claimers never select the same row;
// every lease-holder operation is a single conditional UPDATE.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/conveyor-automation/conveyor/pkg/models"
	"github.com/conveyor-automation/conveyor/pkg/queue"
)

const jobColumns = `id, workflow_id, trigger_id, status, priority, capabilities,
	payload, result, error, lease_owner, lease_expiry, retry_count, created_at, updated_at`

type Queue struct {
	db     *sql.DB
	opts   queue.Options
	logger *slog.Logger
}

// NewQueue connects to PostgreSQL, runs migrations, and returns the backend.
func NewQueue(ctx context.Context, logger *slog.Logger, databaseURL string, opts queue.Options) (*Queue, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log := logger.With("module", "postgres_queue")

	err = newMigrationManager(log, db).run(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run queue migrations: %w", err)
	}

	if opts.LeaseDuration <= 0 {
		opts.LeaseDuration = queue.DefaultLeaseDuration
	}

	if opts.MaxRetries <= 0 {
		opts.MaxRetries = queue.DefaultMaxRetries
	}

	return &Queue{db: db, opts: opts, logger: log}, nil
}

func (q *Queue) Enqueue(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		job.ID = "job-" + uuid.New().String()[:8]
	}

	payload, err := json.Marshal(job.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal job variables: %w", err)
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO jobs (id, workflow_id, trigger_id, status, priority, capabilities, payload, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0)
	`, job.ID, job.WorkflowID, job.TriggerID, models.JobStatusPending, job.Priority,
		pq.Array(job.Capabilities), payload)
	if err != nil {
		return q.storageError("Enqueue", job.ID, err)
	}

	job.Status = models.JobStatusPending

	return nil
}

// Claim selects and transitions in one statement. SKIP LOCKED makes the
// row selection lock-free across concurrent claimers.
func (q *Queue) Claim(ctx context.Context, robotID string, capabilities []string) (*models.Job, error) {
	row := q.db.QueryRowContext(ctx, `
		UPDATE jobs SET
			status = $1,
			lease_owner = $2,
			lease_expiry = now() + $3 * interval '1 second',
			updated_at = now()
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = $4 AND capabilities <@ $5
			ORDER BY priority DESC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+jobColumns,
		models.JobStatusRunning, robotID, int(q.opts.LeaseDuration.Seconds()),
		models.JobStatusPending, pq.Array(capabilities))

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, q.storageError("Claim", "", err)
	}

	return job, nil
}

func (q *Queue) ExtendLease(ctx context.Context, jobID, robotID string) error {
	result, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET
			lease_expiry = now() + $1 * interval '1 second',
			updated_at = now()
		WHERE id = $2 AND status = $3 AND lease_owner = $4 AND lease_expiry > now()
	`, int(q.opts.LeaseDuration.Seconds()), jobID, models.JobStatusRunning, robotID)
	if err != nil {
		return q.storageError("ExtendLease", jobID, err)
	}

	return q.requireLeaseHit(ctx, result, "ExtendLease", jobID, robotID)
}

func (q *Queue) Complete(ctx context.Context, jobID, robotID string, resultData map[string]any) error {
	encoded, err := json.Marshal(resultData)
	if err != nil {
		return fmt.Errorf("failed to marshal job result: %w", err)
	}

	result, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET
			status = $1, result = $2, lease_owner = '', lease_expiry = NULL, updated_at = now()
		WHERE id = $3 AND status = $4 AND lease_owner = $5
	`, models.JobStatusCompleted, encoded, jobID, models.JobStatusRunning, robotID)
	if err != nil {
		return q.storageError("Complete", jobID, err)
	}

	return q.requireLeaseHit(ctx, result, "Complete", jobID, robotID)
}

func (q *Queue) Fail(ctx context.Context, jobID, robotID string, jobErr string) error {
	result, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET
			status = $1, error = $2, lease_owner = '', lease_expiry = NULL, updated_at = now()
		WHERE id = $3 AND status = $4 AND lease_owner = $5
	`, models.JobStatusFailed, jobErr, jobID, models.JobStatusRunning, robotID)
	if err != nil {
		return q.storageError("Fail", jobID, err)
	}

	return q.requireLeaseHit(ctx, result, "Fail", jobID, robotID)
}

func (q *Queue) Release(ctx context.Context, jobID, robotID string) error {
	result, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET
			status = $1, lease_owner = '', lease_expiry = NULL, updated_at = now()
		WHERE id = $2 AND status = $3 AND lease_owner = $4
	`, models.JobStatusPending, jobID, models.JobStatusRunning, robotID)
	if err != nil {
		return q.storageError("Release", jobID, err)
	}

	return q.requireLeaseHit(ctx, result, "Release", jobID, robotID)
}

func (q *Queue) Cancel(ctx context.Context, jobID string) error {
	result, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, models.JobStatusCancelled, jobID, models.JobStatusPending)
	if err != nil {
		return q.storageError("Cancel", jobID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return q.storageError("Cancel", jobID, err)
	}

	if affected == 0 {
		_, getErr := q.Get(ctx, jobID)
		if getErr != nil {
			return getErr
		}

		return queue.NewJobError("Cancel", jobID, "", queue.ErrNotClaimable)
	}

	return nil
}

func (q *Queue) Get(ctx context.Context, jobID string) (*models.Job, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, queue.NewJobError("Get", jobID, "", queue.ErrJobNotFound)
	}

	if err != nil {
		return nil, q.storageError("Get", jobID, err)
	}

	return job, nil
}

func (q *Queue) List(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at ASC`
	args := []any{}

	if status != "" {
		query = `SELECT ` + jobColumns + ` FROM jobs WHERE status = $1 ORDER BY created_at ASC`
		args = append(args, status)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, q.storageError("List", "", err)
	}
	defer rows.Close()

	var jobs []*models.Job

	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, q.storageError("List", "", err)
		}

		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

func (q *Queue) ReapExpired(ctx context.Context, now time.Time) ([]*models.Job, error) {
	rows, err := q.db.QueryContext(ctx, `
		UPDATE jobs SET
			status      = CASE WHEN retry_count + 1 > $1 THEN $2 ELSE $3 END,
			error       = CASE WHEN retry_count + 1 > $1 THEN 'retry limit exceeded after lease expiry' ELSE error END,
			retry_count = retry_count + 1,
			lease_owner = '',
			lease_expiry = NULL,
			updated_at  = now()
		WHERE status = $4 AND lease_expiry <= $5
		RETURNING `+jobColumns,
		q.opts.MaxRetries, models.JobStatusFailed, models.JobStatusPending,
		models.JobStatusRunning, now)
	if err != nil {
		return nil, q.storageError("ReapExpired", "", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

func (q *Queue) ReapOwned(ctx context.Context, robotID string) ([]*models.Job, error) {
	rows, err := q.db.QueryContext(ctx, `
		UPDATE jobs SET
			status = $1, retry_count = retry_count + 1,
			lease_owner = '', lease_expiry = NULL, updated_at = now()
		WHERE status = $2 AND lease_owner = $3
		RETURNING `+jobColumns,
		models.JobStatusPending, models.JobStatusRunning, robotID)
	if err != nil {
		return nil, q.storageError("ReapOwned", "", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

func (q *Queue) Close(_ context.Context) error {
	if q.db != nil {
		err := q.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// requireLeaseHit distinguishes a stale lease from a missing job after a
// conditional UPDATE matched zero rows.
func (q *Queue) requireLeaseHit(ctx context.Context, result sql.Result, op, jobID, robotID string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return q.storageError(op, jobID, err)
	}

	if affected > 0 {
		return nil
	}

	job, err := q.Get(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Status == models.JobStatusRunning && job.LeaseOwner == robotID {
		return queue.NewJobError(op, jobID, robotID, queue.ErrLeaseExpired)
	}

	return queue.NewJobError(op, jobID, robotID, queue.ErrStaleLease)
}

func (q *Queue) storageError(op, jobID string, err error) error {
	return queue.NewJobError(op, jobID, "", fmt.Errorf("%w: %v", queue.ErrStorageUnavailable, err))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		job          models.Job
		capabilities pq.StringArray
		payload      []byte
		result       []byte
		leaseExpiry  sql.NullTime
	)

	err := row.Scan(
		&job.ID, &job.WorkflowID, &job.TriggerID, &job.Status, &job.Priority,
		&capabilities, &payload, &result, &job.Error, &job.LeaseOwner,
		&leaseExpiry, &job.RetryCount, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Capabilities = capabilities

	if leaseExpiry.Valid {
		job.LeaseExpiry = leaseExpiry.Time
	}

	if len(payload) > 0 {
		err = json.Unmarshal(payload, &job.Variables)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal job variables: %w", err)
		}
	}

	if len(result) > 0 {
		err = json.Unmarshal(result, &job.Result)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal job result: %w", err)
		}
	}

	return &job, nil
}

func collectJobs(rows *sql.Rows) ([]*models.Job, error) {
	var jobs []*models.Job

	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}

		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}
