// Package dispatcher is the single job-creation entry point. Trigger
// detection loops push TriggerEvents into a bounded channel; one consumer
// goroutine drains it and enqueues jobs, so backpressure is explicit rather
// than hidden behind a callback.
package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conveyor-automation/conveyor/pkg/eventbus"
	"github.com/conveyor-automation/conveyor/pkg/events"
	"github.com/conveyor-automation/conveyor/pkg/metrics"
	"github.com/conveyor-automation/conveyor/pkg/models"
	"github.com/conveyor-automation/conveyor/pkg/queue"
)

// ErrDispatcherFull signals backpressure: the bounded channel is full and
// the event was not accepted. Trigger runners count this as a dropped fire.
var ErrDispatcherFull = errors.New("dispatcher channel full")

// ErrDispatcherClosed is returned by Offer after Stop.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// DefaultBufferSize bounds the hand-off channel when none is configured.
const DefaultBufferSize = 128

// JobBuilder converts an accepted trigger event into the job to enqueue.
type JobBuilder func(event models.TriggerEvent) (*models.Job, error)

type Dispatcher struct {
	queue    queue.Queue
	build    JobBuilder
	eventBus eventbus.EventBus
	metrics  *metrics.Metrics
	logger   *slog.Logger

	ch     chan models.TriggerEvent
	stop   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	closed sync.Once
}

func NewDispatcher(q queue.Queue, build JobBuilder, bus eventbus.EventBus, m *metrics.Metrics, bufferSize int, logger *slog.Logger) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	return &Dispatcher{
		queue:    q,
		build:    build,
		eventBus: bus,
		metrics:  m,
		logger:   logger.With("module", "dispatcher"),
		ch:       make(chan models.TriggerEvent, bufferSize),
		stop:     make(chan struct{}),
	}
}

// Start launches the single consumer goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	d.once.Do(func() {
		d.wg.Add(1)

		go d.consume(ctx)
	})
}

// Stop closes the intake and waits for the consumer to drain.
func (d *Dispatcher) Stop() {
	d.closed.Do(func() { close(d.stop) })
	d.wg.Wait()
}

// Offer hands an event to the dispatcher without blocking. A full channel
// is backpressure and returns ErrDispatcherFull.
func (d *Dispatcher) Offer(event models.TriggerEvent) error {
	select {
	case <-d.stop:
		return ErrDispatcherClosed
	default:
	}

	select {
	case d.ch <- event:
		if d.metrics != nil {
			d.metrics.DispatchDepth.Set(float64(len(d.ch)))
		}

		return nil
	default:
		if d.metrics != nil {
			d.metrics.DispatchDrops.Inc()
		}

		return ErrDispatcherFull
	}
}

func (d *Dispatcher) consume(ctx context.Context) {
	defer d.wg.Done()

	d.logger.InfoContext(ctx, "Dispatcher started", "buffer", cap(d.ch))

	for {
		select {
		case <-ctx.Done():
			d.logger.InfoContext(ctx, "Dispatcher context cancelled")

			return
		case <-d.stop:
			// Drain what was accepted before shutdown.
			for {
				select {
				case event := <-d.ch:
					d.dispatch(ctx, event)
				default:
					d.logger.InfoContext(ctx, "Dispatcher stopped")

					return
				}
			}
		case event := <-d.ch:
			d.dispatch(ctx, event)

			if d.metrics != nil {
				d.metrics.DispatchDepth.Set(float64(len(d.ch)))
			}
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, event models.TriggerEvent) {
	logger := d.logger.With("trigger_id", event.TriggerID)

	job, err := d.build(event)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to build job from trigger event", "error", err)

		return
	}

	if job.ID == "" {
		job.ID = "job-" + uuid.New().String()[:8]
	}

	job.TriggerID = event.TriggerID

	err = d.enqueueWithRetry(ctx, job)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to enqueue job", "error", err, "job_id", job.ID)

		return
	}

	logger.InfoContext(ctx, "Job enqueued", "job_id", job.ID, "workflow_id", job.WorkflowID, "priority", job.Priority)

	if d.metrics != nil {
		d.metrics.JobsEnqueued.Inc()
	}

	if d.eventBus != nil {
		enqueued := events.JobEnqueued{
			BaseEvent: events.NewBaseEvent(events.JobEnqueuedEvent, job.WorkflowID),
			JobID:     job.ID,
			TriggerID: event.TriggerID,
			Priority:  job.Priority,
		}

		err := d.eventBus.Publish(ctx, job.ID, enqueued)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to publish job enqueued event", "error", err)
		}
	}
}

// enqueueWithRetry bounds storage retries; connectivity loss past the bound
// is surfaced rather than retried forever.
func (d *Dispatcher) enqueueWithRetry(ctx context.Context, job *models.Job) error {
	const attempts = 3

	var err error

	for i := 0; i < attempts; i++ {
		err = d.queue.Enqueue(ctx, job)
		if err == nil || !errors.Is(err, queue.ErrStorageUnavailable) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * 200 * time.Millisecond):
		}
	}

	return err
}
