package models

import "time"

// TriggerStatus is the lifecycle state of a registered trigger.
type TriggerStatus string

const (
	TriggerStatusInactive TriggerStatus = "inactive"
	TriggerStatusStarting TriggerStatus = "starting"
	TriggerStatusActive   TriggerStatus = "active"
	TriggerStatusPaused   TriggerStatus = "paused"
	TriggerStatusStopping TriggerStatus = "stopping"
	TriggerStatusError    TriggerStatus = "error"
)

// TriggerStats are the per-trigger fire counters. Mutated only by the
// trigger's owning runner.
type TriggerStats struct {
	FireCount    int64 `json:"fire_count"`
	SuccessCount int64 `json:"success_count"`
	ErrorCount   int64 `json:"error_count"`
	DroppedCount int64 `json:"dropped_count"`
}

// TriggerConfig is the registration request for a trigger instance.
type TriggerConfig struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"        validate:"required"`
	Name       string         `json:"name"`
	WorkflowID string         `json:"workflow_id" validate:"required"`
	Settings   map[string]any `json:"settings,omitempty"`

	// CooldownMs suppresses fires inside the window after an accepted fire.
	CooldownMs int `json:"cooldown_ms,omitempty" validate:"gte=0"`
	// MaxRuns auto-stops the trigger once FireCount reaches it. Zero means unlimited.
	MaxRuns int `json:"max_runs,omitempty" validate:"gte=0"`
	// AllowOverlap opts out of the default drop-while-busy policy.
	AllowOverlap bool `json:"allow_overlap,omitempty"`

	Priority     int      `json:"priority,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// TriggerInfo is the externally visible view of a trigger instance.
type TriggerInfo struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"`
	Status    TriggerStatus `json:"status"`
	Config    TriggerConfig `json:"config"`
	Stats     TriggerStats  `json:"stats"`
	LastError string        `json:"last_error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// TriggerEvent is the immutable value a firing trigger hands to the
// dispatcher, exactly once per accepted fire.
type TriggerEvent struct {
	TriggerID string         `json:"trigger_id"`
	Payload   map[string]any `json:"payload,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
