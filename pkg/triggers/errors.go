package triggers

import (
	"errors"
	"fmt"
)

// ErrorKind classifies trigger manager failures.
type ErrorKind string

const (
	// KindBadConfiguration covers schema and semantic config rejection.
	KindBadConfiguration ErrorKind = "bad_configuration"
	// KindBadTransition covers lifecycle operations invalid in the current state.
	KindBadTransition ErrorKind = "bad_transition"
	// KindEventCapture covers detection loop start/stop failures.
	KindEventCapture ErrorKind = "event_capture"
	// KindNotFound covers operations on unknown trigger IDs.
	KindNotFound ErrorKind = "not_found"
)

// TriggerError carries the trigger ID and failure kind alongside the cause.
type TriggerError struct {
	TriggerID string
	Kind      ErrorKind
	Err       error
}

func (e *TriggerError) Error() string {
	return fmt.Sprintf("trigger %s: %s: %v", e.TriggerID, e.Kind, e.Err)
}

func (e *TriggerError) Unwrap() error {
	return e.Err
}

// Is matches on the failure kind, letting callers test with a prototype.
func (e *TriggerError) Is(target error) bool {
	var other *TriggerError
	if !errors.As(target, &other) {
		return false
	}

	return other.Kind == e.Kind && (other.TriggerID == "" || other.TriggerID == e.TriggerID)
}

func newTriggerError(triggerID string, kind ErrorKind, err error) *TriggerError {
	return &TriggerError{TriggerID: triggerID, Kind: kind, Err: err}
}

// IsKind reports whether err is a TriggerError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var triggerErr *TriggerError
	if !errors.As(err, &triggerErr) {
		return false
	}

	return triggerErr.Kind == kind
}
