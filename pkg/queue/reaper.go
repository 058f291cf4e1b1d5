package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/conveyor-automation/conveyor/pkg/eventbus"
	"github.com/conveyor-automation/conveyor/pkg/events"
	"github.com/conveyor-automation/conveyor/pkg/metrics"
)

// DefaultReapInterval is the reaper cycle when none is configured.
const DefaultReapInterval = 15 * time.Second

// Reaper periodically returns expired-lease jobs to pending, yielding
// at-least-once delivery. It runs on a fixed interval independent of
// workflow execution.
type Reaper struct {
	queue    Queue
	interval time.Duration
	eventBus eventbus.EventBus
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewReaper(q Queue, interval time.Duration, bus eventbus.EventBus, m *metrics.Metrics, logger *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}

	return &Reaper{
		queue:    q,
		interval: interval,
		eventBus: bus,
		metrics:  m,
		logger:   logger.With("module", "lease_reaper"),
	}
}

// Run blocks until ctx is cancelled, reaping once per interval.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.InfoContext(ctx, "Lease reaper started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "Lease reaper stopped")

			return
		case now := <-ticker.C:
			r.reapOnce(ctx, now.UTC())
		}
	}
}

func (r *Reaper) reapOnce(ctx context.Context, now time.Time) {
	reaped, err := r.queue.ReapExpired(ctx, now)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to reap expired leases", "error", err)

		return
	}

	for _, job := range reaped {
		r.logger.WarnContext(ctx, "Reaped expired lease",
			"job_id", job.ID,
			"status", job.Status,
			"retry_count", job.RetryCount,
		)

		if r.metrics != nil {
			r.metrics.JobsReaped.Inc()
		}

		if r.eventBus != nil {
			event := events.JobReaped{
				BaseEvent:  events.NewBaseEvent(events.JobReapedEvent, job.WorkflowID),
				JobID:      job.ID,
				RetryCount: job.RetryCount,
			}

			err := r.eventBus.Publish(ctx, job.ID, event)
			if err != nil {
				r.logger.ErrorContext(ctx, "Failed to publish job reaped event", "error", err, "job_id", job.ID)
			}
		}
	}
}
