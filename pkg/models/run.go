package models

import "time"

// RunStatus is the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// NodeResult captures the outcome of a single node execution.
type NodeResult struct {
	NodeID     string    `json:"node_id"`
	State      NodeState `json:"state"`
	Output     any       `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	Attempts   int       `json:"attempts,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// WorkflowRun is the aggregate result of one workflow execution. It is
// created when a job is claimed and reaches a terminal status exactly once.
type WorkflowRun struct {
	ID         string                `json:"id"`
	WorkflowID string                `json:"workflow_id"`
	JobID      string                `json:"job_id,omitempty"`
	RobotID    string                `json:"robot_id,omitempty"`
	Status     RunStatus             `json:"status"`
	NodeStates map[string]NodeState  `json:"node_states"`
	Results    map[string]NodeResult `json:"results,omitempty"`
	Variables  map[string]any        `json:"variables,omitempty"`
	Error      string                `json:"error,omitempty"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at,omitempty"`
}

// Terminal reports whether the run has reached a final status.
func (r *WorkflowRun) Terminal() bool {
	switch r.Status {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}

	return false
}
