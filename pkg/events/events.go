// Package events defines the typed lifecycle events published on the event
// bus as runs and jobs move through the system.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/conveyor-automation/conveyor/pkg/models"
)

type EventType string

// Topic is the single bus topic all lifecycle events share.
const Topic = "conveyor.events"

const EventKeyMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	TriggerFiredEvent EventType = "trigger.fired"
	JobEnqueuedEvent  EventType = "job.enqueued"
	JobClaimedEvent   EventType = "job.claimed"
	JobReapedEvent    EventType = "job.reaped"

	RunStartedEvent   EventType = "run.started"
	NodeFinishedEvent EventType = "run.node.finished"
	RunCompletedEvent EventType = "run.completed"
	RunFailedEvent    EventType = "run.failed"
	RunCancelledEvent EventType = "run.cancelled"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id,omitempty"`
	RobotID    string    `json:"robot_id,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

type TriggerFired struct {
	BaseEvent

	TriggerID string         `json:"trigger_id"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func (e TriggerFired) GetType() EventType { return TriggerFiredEvent }

type JobEnqueued struct {
	BaseEvent

	JobID     string `json:"job_id"`
	TriggerID string `json:"trigger_id,omitempty"`
	Priority  int    `json:"priority"`
}

func (e JobEnqueued) GetType() EventType { return JobEnqueuedEvent }

type JobClaimed struct {
	BaseEvent

	JobID       string    `json:"job_id"`
	LeaseExpiry time.Time `json:"lease_expiry"`
}

func (e JobClaimed) GetType() EventType { return JobClaimedEvent }

type JobReaped struct {
	BaseEvent

	JobID      string `json:"job_id"`
	LeaseOwner string `json:"lease_owner"`
	RetryCount int    `json:"retry_count"`
}

func (e JobReaped) GetType() EventType { return JobReapedEvent }

type RunStarted struct {
	BaseEvent

	RunID string `json:"run_id"`
	JobID string `json:"job_id,omitempty"`
}

func (e RunStarted) GetType() EventType { return RunStartedEvent }

type NodeFinished struct {
	BaseEvent

	RunID      string           `json:"run_id"`
	NodeID     string           `json:"node_id"`
	State      models.NodeState `json:"state"`
	Error      string           `json:"error,omitempty"`
	DurationMs int64            `json:"duration_ms"`
}

func (e NodeFinished) GetType() EventType { return NodeFinishedEvent }

type RunCompleted struct {
	BaseEvent

	RunID    string         `json:"run_id"`
	Result   map[string]any `json:"result,omitempty"`
	Duration time.Duration  `json:"duration"`
}

func (e RunCompleted) GetType() EventType { return RunCompletedEvent }

type RunFailed struct {
	BaseEvent

	RunID    string        `json:"run_id"`
	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

func (e RunFailed) GetType() EventType { return RunFailedEvent }

type RunCancelled struct {
	BaseEvent

	RunID string `json:"run_id"`
}

func (e RunCancelled) GetType() EventType { return RunCancelledEvent }
