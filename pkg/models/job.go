package models

import "time"

// JobStatus is the lifecycle state of a queued job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job is a unit of queued work referencing a workflow. It is created by the
// dispatcher's job builder and mutated only through queue operations.
type Job struct {
	ID           string         `json:"id"`
	WorkflowID   string         `json:"workflow_id"`
	TriggerID    string         `json:"trigger_id,omitempty"`
	Variables    map[string]any `json:"variables,omitempty"`
	Priority     int            `json:"priority"`
	Capabilities []string       `json:"capabilities,omitempty"` // required robot capabilities
	Status       JobStatus      `json:"status"`
	LeaseOwner   string         `json:"lease_owner,omitempty"`
	LeaseExpiry  time.Time      `json:"lease_expiry,omitempty"`
	RetryCount   int            `json:"retry_count"`
	Result       map[string]any `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Terminal reports whether the job has reached a final status.
func (j *Job) Terminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}

	return false
}

// Matches reports whether the job's capability requirements are a subset of
// the given robot capabilities.
func (j *Job) Matches(robotCapabilities []string) bool {
	if len(j.Capabilities) == 0 {
		return true
	}

	have := make(map[string]struct{}, len(robotCapabilities))
	for _, c := range robotCapabilities {
		have[c] = struct{}{}
	}

	for _, required := range j.Capabilities {
		if _, ok := have[required]; !ok {
			return false
		}
	}

	return true
}
