package protocol

import (
	"context"
	"log/slog"
)

// FireFunc is handed to a detector by its owning runner. The runner applies
// the lifecycle policy (paused, cooldown, max_runs, drop-while-busy) before
// the event reaches the dispatcher; the detector just reports occurrences.
type FireFunc func(ctx context.Context, payload map[string]any) error

// Detector is one trigger type's detection loop (timer, file watcher,
// listener). Start must not return until the loop is installed; Stop must
// release every resource the loop holds before returning.
type Detector interface {
	Start(ctx context.Context, fire FireFunc) error
	Stop(ctx context.Context) error
	Validate() error
}

// DetectorFactory creates detectors for one trigger type.
type DetectorFactory interface {
	Create(settings map[string]any, logger *slog.Logger) (Detector, error)
	ID() string

	// Schema returns the JSON schema used to validate trigger settings
	// before instantiation.
	Schema() map[string]any
}
