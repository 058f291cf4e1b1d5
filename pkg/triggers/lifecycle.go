package triggers

import (
	"fmt"

	"github.com/conveyor-automation/conveyor/pkg/models"
)

// transitions is the trigger lifecycle state machine. ERROR is reachable from
// every non-terminal state; recovery from ERROR goes back through STARTING.
var transitions = map[models.TriggerStatus][]models.TriggerStatus{
	models.TriggerStatusInactive: {models.TriggerStatusStarting},
	models.TriggerStatusStarting: {models.TriggerStatusActive, models.TriggerStatusStopping, models.TriggerStatusError},
	models.TriggerStatusActive:   {models.TriggerStatusPaused, models.TriggerStatusStopping, models.TriggerStatusError},
	models.TriggerStatusPaused:   {models.TriggerStatusActive, models.TriggerStatusStopping, models.TriggerStatusError},
	models.TriggerStatusStopping: {models.TriggerStatusInactive, models.TriggerStatusError},
	models.TriggerStatusError:    {models.TriggerStatusStarting},
}

// CanTransition reports whether the lifecycle permits moving from one status
// to another.
func CanTransition(from, to models.TriggerStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}

	return false
}

// transition moves the runner's status, failing with a BadTransition error
// and leaving the status unchanged when the lifecycle forbids the move.
// Callers hold the runner mutex.
func (r *runner) transition(to models.TriggerStatus) error {
	if !CanTransition(r.status, to) {
		return newTriggerError(r.config.ID, KindBadTransition,
			fmt.Errorf("cannot transition from %s to %s", r.status, to))
	}

	r.status = to

	return nil
}
