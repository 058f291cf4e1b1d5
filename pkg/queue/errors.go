package queue

import (
	"errors"
	"fmt"
)

// Standard queue error types shared by every backend.
var (
	// ErrJobNotFound indicates no job exists with the given identifier.
	ErrJobNotFound = errors.New("job not found")

	// ErrStaleLease indicates the caller is not the job's current lease owner.
	ErrStaleLease = errors.New("stale lease")

	// ErrLeaseExpired indicates the lease exists but its expiry has passed.
	ErrLeaseExpired = errors.New("lease expired")

	// ErrNotClaimable indicates the job is not in a claimable status.
	ErrNotClaimable = errors.New("job not claimable")

	// ErrStorageUnavailable indicates the backing store could not be reached
	// after bounded retries. Fatal for the operation.
	ErrStorageUnavailable = errors.New("queue storage unavailable")
)

// JobError wraps job-related queue errors with operation context.
type JobError struct {
	Op      string // operation being performed ("Claim", "Complete", ...)
	JobID   string
	RobotID string
	Err     error
}

func (e *JobError) Error() string {
	if e.RobotID != "" {
		return fmt.Sprintf("%s failed for job %s (robot %s): %v", e.Op, e.JobID, e.RobotID, e.Err)
	}

	return fmt.Sprintf("%s failed for job %s: %v", e.Op, e.JobID, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

func (e *JobError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewJobError creates a job error with operation context.
func NewJobError(op, jobID, robotID string, err error) *JobError {
	return &JobError{Op: op, JobID: jobID, RobotID: robotID, Err: err}
}

// IsStaleLease reports whether the error indicates a lease ownership
// violation; the caller must re-claim.
func IsStaleLease(err error) bool {
	return errors.Is(err, ErrStaleLease) || errors.Is(err, ErrLeaseExpired)
}
