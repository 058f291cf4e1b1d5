// Package queue defines the distributed job queue: a persistent,
// multi-claimer work queue with time-bounded leases and at-least-once
// delivery. Backends must make Claim a single atomic conditional operation
// at the storage layer so two concurrent claimers never receive the same job.
package queue

import (
	"context"
	"time"

	"github.com/conveyor-automation/conveyor/pkg/models"
)

// DefaultLeaseDuration is applied when Options.LeaseDuration is zero.
const DefaultLeaseDuration = 2 * time.Minute

// DefaultMaxRetries bounds lease-expiry redeliveries before a job is failed.
const DefaultMaxRetries = 3

// Options tune a queue backend.
type Options struct {
	LeaseDuration time.Duration
	MaxRetries    int
}

func (o Options) withDefaults() Options {
	if o.LeaseDuration <= 0 {
		o.LeaseDuration = DefaultLeaseDuration
	}

	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}

	return o
}

// Queue is the storage-backed job queue. All transitions are atomic at the
// storage layer; mutating operations verify lease ownership and return
// ErrStaleLease when the caller no longer holds the lease.
type Queue interface {
	// Enqueue inserts a job in pending status.
	Enqueue(ctx context.Context, job *models.Job) error

	// Claim atomically selects the highest-priority pending job whose
	// capability requirements are a subset of the given capabilities,
	// transitions it to running, and sets the lease. Returns (nil, nil)
	// when no job matches.
	Claim(ctx context.Context, robotID string, capabilities []string) (*models.Job, error)

	// ExtendLease renews the lease expiry for the current owner.
	ExtendLease(ctx context.Context, jobID, robotID string) error

	// Complete transitions a running job to completed with its result.
	Complete(ctx context.Context, jobID, robotID string, result map[string]any) error

	// Fail transitions a running job to failed with an error message.
	Fail(ctx context.Context, jobID, robotID string, jobErr string) error

	// Release returns a running job to pending without counting a retry.
	Release(ctx context.Context, jobID, robotID string) error

	// Cancel marks a pending job cancelled. Running jobs are cancelled
	// cooperatively by the executing robot, not by the queue.
	Cancel(ctx context.Context, jobID string) error

	// Get returns a job by ID.
	Get(ctx context.Context, jobID string) (*models.Job, error)

	// List returns jobs filtered by status; an empty status lists all.
	List(ctx context.Context, status models.JobStatus) ([]*models.Job, error)

	// ReapExpired returns expired-lease jobs to pending (incrementing
	// retry_count) and fails jobs past the retry ceiling. It reports the
	// jobs it touched.
	ReapExpired(ctx context.Context, now time.Time) ([]*models.Job, error)

	// ReapOwned proactively releases every lease held by the given robot,
	// used when a robot misses its heartbeat deadline.
	ReapOwned(ctx context.Context, robotID string) ([]*models.Job, error)

	Close(ctx context.Context) error
}
