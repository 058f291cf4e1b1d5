package triggers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/conveyor-automation/conveyor/pkg/dispatcher"
	"github.com/conveyor-automation/conveyor/pkg/metrics"
	"github.com/conveyor-automation/conveyor/pkg/models"
	"github.com/conveyor-automation/conveyor/pkg/protocol"
)

// FireSink receives one TriggerEvent per accepted fire. The dispatcher's
// Offer is the production sink.
type FireSink func(ctx context.Context, event models.TriggerEvent) error

// runner owns one trigger instance: its detector, lifecycle status, and fire
// counters. Uniform policy (pause, cooldown, max runs, overlap) lives here so
// detector implementations stay policy-free.
type runner struct {
	config   models.TriggerConfig
	detector protocol.Detector
	sink     FireSink
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu        sync.Mutex
	status    models.TriggerStatus
	stats     models.TriggerStats
	lastError string
	lastFire  time.Time
	busy      bool
	createdAt time.Time
	cancel    context.CancelFunc
}

func newRunner(config models.TriggerConfig, detector protocol.Detector, sink FireSink, m *metrics.Metrics, logger *slog.Logger) *runner {
	return &runner{
		config:   config,
		detector: detector,
		sink:     sink,
		metrics:  m,
		logger: logger.With(
			"module", "trigger_runner",
			"trigger_id", config.ID,
			"trigger_type", config.Type,
		),
		status:    models.TriggerStatusInactive,
		createdAt: time.Now().UTC(),
	}
}

func (r *runner) start(ctx context.Context) error {
	r.mu.Lock()

	err := r.transition(models.TriggerStatusStarting)
	if err != nil {
		r.mu.Unlock()

		return err
	}

	detectorCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "Starting trigger detection loop")

	err = r.detector.Start(detectorCtx, r.fire)
	if err != nil {
		cancel()
		r.setError(err)

		return newTriggerError(r.config.ID, KindEventCapture, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Stop may have raced the detector start.
	if r.status != models.TriggerStatusStarting {
		return nil
	}

	return r.transition(models.TriggerStatusActive)
}

func (r *runner) stop(ctx context.Context) error {
	r.mu.Lock()

	err := r.transition(models.TriggerStatusStopping)
	if err != nil {
		r.mu.Unlock()

		return err
	}

	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "Stopping trigger detection loop")

	stopErr := r.detector.Stop(ctx)

	if cancel != nil {
		cancel()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if stopErr != nil {
		r.status = models.TriggerStatusError
		r.lastError = stopErr.Error()

		return newTriggerError(r.config.ID, KindEventCapture, stopErr)
	}

	return r.transition(models.TriggerStatusInactive)
}

func (r *runner) pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.transition(models.TriggerStatusPaused)
}

func (r *runner) resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != models.TriggerStatusPaused {
		return newTriggerError(r.config.ID, KindBadTransition,
			fmt.Errorf("cannot resume from %s", r.status))
	}

	return r.transition(models.TriggerStatusActive)
}

func (r *runner) info() models.TriggerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	return models.TriggerInfo{
		ID:        r.config.ID,
		Type:      r.config.Type,
		Status:    r.status,
		Config:    r.config,
		Stats:     r.stats,
		LastError: r.lastError,
		CreatedAt: r.createdAt,
	}
}

// fire is the FireFunc handed to the detector. It applies the uniform fire
// policy, builds the TriggerEvent, and hands it to the sink exactly once per
// accepted fire. A dropped fire is not an error to the detector.
func (r *runner) fire(ctx context.Context, payload map[string]any) error {
	defer r.recoverPanic()

	now := time.Now().UTC()

	r.mu.Lock()

	if r.status != models.TriggerStatusActive {
		r.drop("not active")
		r.mu.Unlock()

		return nil
	}

	if r.config.CooldownMs > 0 && !r.lastFire.IsZero() &&
		now.Sub(r.lastFire) < time.Duration(r.config.CooldownMs)*time.Millisecond {
		r.drop("cooldown")
		r.mu.Unlock()

		return nil
	}

	if r.busy && !r.config.AllowOverlap {
		r.drop("busy")
		r.mu.Unlock()

		return nil
	}

	r.stats.FireCount++
	r.lastFire = now
	r.busy = true
	maxReached := r.config.MaxRuns > 0 && r.stats.FireCount >= int64(r.config.MaxRuns)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.TriggerFires.WithLabelValues(r.config.Type).Inc()
	}

	event := models.TriggerEvent{
		TriggerID: r.config.ID,
		Payload:   payload,
		Metadata: map[string]any{
			"workflow_id":  r.config.WorkflowID,
			"trigger_type": r.config.Type,
		},
		Timestamp: now,
	}

	err := r.sink(ctx, event)

	r.mu.Lock()
	r.busy = false

	switch {
	case errors.Is(err, dispatcher.ErrDispatcherFull):
		// Backpressure: the fire is dropped, not failed. FireCount is
		// never rolled back.
		r.stats.DroppedCount++
		r.logger.WarnContext(ctx, "Dispatcher full, fire dropped")

		if r.metrics != nil {
			r.metrics.TriggerDrops.WithLabelValues(r.config.Type).Inc()
		}
	case err != nil:
		r.stats.ErrorCount++
		r.lastError = err.Error()
		r.logger.ErrorContext(ctx, "Fire delivery failed", "error", err)

		if r.metrics != nil {
			r.metrics.TriggerErrors.WithLabelValues(r.config.Type).Inc()
		}
	default:
		r.stats.SuccessCount++
	}
	r.mu.Unlock()

	if maxReached {
		r.logger.InfoContext(ctx, "Max runs reached, stopping trigger", "max_runs", r.config.MaxRuns)

		go func() {
			stopErr := r.stop(context.WithoutCancel(ctx))
			if stopErr != nil {
				r.logger.Error("Failed to auto-stop trigger at max runs", "error", stopErr)
			}
		}()
	}

	return err
}

// drop records a suppressed fire. Callers hold the runner mutex.
func (r *runner) drop(reason string) {
	r.stats.DroppedCount++
	r.logger.Debug("Fire dropped", "reason", reason)

	if r.metrics != nil {
		r.metrics.TriggerDrops.WithLabelValues(r.config.Type).Inc()
	}
}

// setError halts the trigger in the ERROR state. The detection loop is not
// restarted automatically.
func (r *runner) setError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status = models.TriggerStatusError
	r.lastError = err.Error()

	if r.metrics != nil {
		r.metrics.TriggerErrors.WithLabelValues(r.config.Type).Inc()
	}
}

func (r *runner) recoverPanic() {
	p := recover()
	if p == nil {
		return
	}

	r.logger.Error("Panic in trigger fire path", "panic", p)
	r.setError(fmt.Errorf("panic in fire path: %v", p))

	if stopErr := r.detector.Stop(context.Background()); stopErr != nil {
		r.logger.Error("Failed to stop detector after panic", "error", stopErr)
	}
}
