package triggers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/conveyor-automation/conveyor/pkg/models"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from models.TriggerStatus
		to   models.TriggerStatus
		want bool
	}{
		{name: "inactive to starting", from: models.TriggerStatusInactive, to: models.TriggerStatusStarting, want: true},
		{name: "starting to active", from: models.TriggerStatusStarting, to: models.TriggerStatusActive, want: true},
		{name: "active to paused", from: models.TriggerStatusActive, to: models.TriggerStatusPaused, want: true},
		{name: "paused to active", from: models.TriggerStatusPaused, to: models.TriggerStatusActive, want: true},
		{name: "active to stopping", from: models.TriggerStatusActive, to: models.TriggerStatusStopping, want: true},
		{name: "stopping to inactive", from: models.TriggerStatusStopping, to: models.TriggerStatusInactive, want: true},
		{name: "error recovers through starting", from: models.TriggerStatusError, to: models.TriggerStatusStarting, want: true},

		{name: "inactive cannot pause", from: models.TriggerStatusInactive, to: models.TriggerStatusPaused, want: false},
		{name: "inactive cannot go active directly", from: models.TriggerStatusInactive, to: models.TriggerStatusActive, want: false},
		{name: "active cannot restart", from: models.TriggerStatusActive, to: models.TriggerStatusStarting, want: false},
		{name: "stopping cannot resume", from: models.TriggerStatusStopping, to: models.TriggerStatusActive, want: false},
		{name: "error cannot go active directly", from: models.TriggerStatusError, to: models.TriggerStatusActive, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestErrorReachableFromEveryNonTerminalState(t *testing.T) {
	for _, from := range []models.TriggerStatus{
		models.TriggerStatusStarting,
		models.TriggerStatusActive,
		models.TriggerStatusPaused,
		models.TriggerStatusStopping,
	} {
		assert.True(t, CanTransition(from, models.TriggerStatusError), "error should be reachable from %s", from)
	}
}
