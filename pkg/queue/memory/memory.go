// Package memory provides the in-memory queue backend used by tests and
// single-process deployments. Claim selection and transition happen under
// one lock, giving the same atomicity the postgres backend gets from
// FOR UPDATE SKIP LOCKED.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conveyor-automation/conveyor/pkg/models"
	"github.com/conveyor-automation/conveyor/pkg/queue"
)

type Queue struct {
	opts queue.Options

	mu   sync.Mutex
	jobs map[string]*models.Job

	now func() time.Time // overridable in tests
}

// NewQueue creates an empty in-memory queue.
func NewQueue(opts queue.Options) *Queue {
	return &Queue{
		opts: optsWithDefaults(opts),
		jobs: make(map[string]*models.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func optsWithDefaults(o queue.Options) queue.Options {
	if o.LeaseDuration <= 0 {
		o.LeaseDuration = queue.DefaultLeaseDuration
	}

	if o.MaxRetries <= 0 {
		o.MaxRetries = queue.DefaultMaxRetries
	}

	return o
}

func (q *Queue) Enqueue(_ context.Context, job *models.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	stored := cloneJob(job)

	if stored.ID == "" {
		stored.ID = "job-" + uuid.New().String()[:8]
	}

	stored.Status = models.JobStatusPending
	stored.LeaseOwner = ""
	stored.LeaseExpiry = time.Time{}

	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = q.now()
	}

	stored.UpdatedAt = q.now()

	q.jobs[stored.ID] = stored
	job.ID = stored.ID
	job.Status = stored.Status
	job.CreatedAt = stored.CreatedAt

	return nil
}

func (q *Queue) Claim(_ context.Context, robotID string, capabilities []string) (*models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var candidates []*models.Job

	for _, job := range q.jobs {
		if job.Status == models.JobStatusPending && job.Matches(capabilities) {
			candidates = append(candidates, job)
		}
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	// Highest priority first, then FIFO by creation time.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}

		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	job := candidates[0]
	job.Status = models.JobStatusRunning
	job.LeaseOwner = robotID
	job.LeaseExpiry = q.now().Add(q.opts.LeaseDuration)
	job.UpdatedAt = q.now()

	return cloneJob(job), nil
}

func (q *Queue) ExtendLease(_ context.Context, jobID, robotID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.leased(jobID, robotID, "ExtendLease")
	if err != nil {
		return err
	}

	// Extension only makes sense while the lease is live; an expired lease
	// must go back through Claim.
	if !job.LeaseExpiry.After(q.now()) {
		return queue.NewJobError("ExtendLease", jobID, robotID, queue.ErrLeaseExpired)
	}

	job.LeaseExpiry = q.now().Add(q.opts.LeaseDuration)
	job.UpdatedAt = q.now()

	return nil
}

func (q *Queue) Complete(_ context.Context, jobID, robotID string, result map[string]any) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.leased(jobID, robotID, "Complete")
	if err != nil {
		return err
	}

	job.Status = models.JobStatusCompleted
	job.Result = result
	job.LeaseOwner = ""
	job.LeaseExpiry = time.Time{}
	job.UpdatedAt = q.now()

	return nil
}

func (q *Queue) Fail(_ context.Context, jobID, robotID string, jobErr string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.leased(jobID, robotID, "Fail")
	if err != nil {
		return err
	}

	job.Status = models.JobStatusFailed
	job.Error = jobErr
	job.LeaseOwner = ""
	job.LeaseExpiry = time.Time{}
	job.UpdatedAt = q.now()

	return nil
}

func (q *Queue) Release(_ context.Context, jobID, robotID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.leased(jobID, robotID, "Release")
	if err != nil {
		return err
	}

	q.toPending(job)

	return nil
}

func (q *Queue) Cancel(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return queue.NewJobError("Cancel", jobID, "", queue.ErrJobNotFound)
	}

	if job.Status != models.JobStatusPending {
		return queue.NewJobError("Cancel", jobID, "", queue.ErrNotClaimable)
	}

	job.Status = models.JobStatusCancelled
	job.UpdatedAt = q.now()

	return nil
}

func (q *Queue) Get(_ context.Context, jobID string) (*models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return nil, queue.NewJobError("Get", jobID, "", queue.ErrJobNotFound)
	}

	return cloneJob(job), nil
}

func (q *Queue) List(_ context.Context, status models.JobStatus) ([]*models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*models.Job

	for _, job := range q.jobs {
		if status == "" || job.Status == status {
			out = append(out, cloneJob(job))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out, nil
}

func (q *Queue) ReapExpired(_ context.Context, now time.Time) ([]*models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var reaped []*models.Job

	for _, job := range q.jobs {
		if job.Status != models.JobStatusRunning || job.LeaseExpiry.After(now) {
			continue
		}

		job.RetryCount++

		if job.RetryCount > q.opts.MaxRetries {
			job.Status = models.JobStatusFailed
			job.Error = "retry limit exceeded after lease expiry"
			job.LeaseOwner = ""
			job.LeaseExpiry = time.Time{}
			job.UpdatedAt = q.now()
		} else {
			q.toPending(job)
		}

		reaped = append(reaped, cloneJob(job))
	}

	return reaped, nil
}

func (q *Queue) ReapOwned(_ context.Context, robotID string) ([]*models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var reaped []*models.Job

	for _, job := range q.jobs {
		if job.Status != models.JobStatusRunning || job.LeaseOwner != robotID {
			continue
		}

		job.RetryCount++
		q.toPending(job)
		reaped = append(reaped, cloneJob(job))
	}

	return reaped, nil
}

func (q *Queue) Close(_ context.Context) error {
	return nil
}

// leased looks up a running job and verifies lease ownership. Callers hold q.mu.
// Expiry is deliberately not checked here: a robot that finishes a job after
// its lease lapsed may still settle it as long as the reaper has not requeued
// the job and handed the lease to someone else.
func (q *Queue) leased(jobID, robotID, op string) (*models.Job, error) {
	job, ok := q.jobs[jobID]
	if !ok {
		return nil, queue.NewJobError(op, jobID, robotID, queue.ErrJobNotFound)
	}

	if job.Status != models.JobStatusRunning || job.LeaseOwner != robotID {
		return nil, queue.NewJobError(op, jobID, robotID, queue.ErrStaleLease)
	}

	return job, nil
}

func (q *Queue) toPending(job *models.Job) {
	job.Status = models.JobStatusPending
	job.LeaseOwner = ""
	job.LeaseExpiry = time.Time{}
	job.UpdatedAt = q.now()
}

func cloneJob(job *models.Job) *models.Job {
	dup := *job

	if job.Variables != nil {
		dup.Variables = make(map[string]any, len(job.Variables))
		for k, v := range job.Variables {
			dup.Variables[k] = v
		}
	}

	if job.Result != nil {
		dup.Result = make(map[string]any, len(job.Result))
		for k, v := range job.Result {
			dup.Result[k] = v
		}
	}

	dup.Capabilities = append([]string(nil), job.Capabilities...)

	return &dup
}
