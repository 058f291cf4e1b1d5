package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conveyor-automation/conveyor/pkg/models"
	"github.com/conveyor-automation/conveyor/pkg/queue"
	"github.com/conveyor-automation/conveyor/pkg/queue/memory"
)

func passthroughBuilder(event models.TriggerEvent) (*models.Job, error) {
	return &models.Job{
		WorkflowID: "wf-1",
		Variables:  event.Payload,
		Priority:   1,
	}, nil
}

func TestDispatcherEnqueuesJobs(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	q := memory.NewQueue(queue.Options{})

	d := NewDispatcher(q, passthroughBuilder, nil, nil, 8, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d.Start(ctx)

	err := d.Offer(models.TriggerEvent{
		TriggerID: "trig-1",
		Payload:   map[string]any{"n": 1},
		Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		jobs, err := q.List(context.Background(), models.JobStatusPending)

		return err == nil && len(jobs) == 1
	}, time.Second, 10*time.Millisecond)

	jobs, err := q.List(context.Background(), models.JobStatusPending)
	require.NoError(t, err)
	assert.Equal(t, "trig-1", jobs[0].TriggerID)
	assert.Equal(t, "wf-1", jobs[0].WorkflowID)

	d.Stop()
}

func TestOfferBackpressure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	q := memory.NewQueue(queue.Options{})

	// Never started: the channel only fills.
	d := NewDispatcher(q, passthroughBuilder, nil, nil, 2, logger)

	require.NoError(t, d.Offer(models.TriggerEvent{TriggerID: "a"}))
	require.NoError(t, d.Offer(models.TriggerEvent{TriggerID: "b"}))

	err := d.Offer(models.TriggerEvent{TriggerID: "c"})
	assert.ErrorIs(t, err, ErrDispatcherFull)
}

func TestStopDrainsAcceptedEvents(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	q := memory.NewQueue(queue.Options{})

	d := NewDispatcher(q, passthroughBuilder, nil, nil, 8, logger)

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Offer(models.TriggerEvent{TriggerID: fmt.Sprintf("t-%d", i)}))
	}

	ctx := context.Background()
	d.Start(ctx)
	d.Stop()

	jobs, err := q.List(ctx, models.JobStatusPending)
	require.NoError(t, err)
	assert.Len(t, jobs, 5)

	assert.ErrorIs(t, d.Offer(models.TriggerEvent{TriggerID: "late"}), ErrDispatcherClosed)
}

func TestBuilderErrorDoesNotEnqueue(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	q := memory.NewQueue(queue.Options{})

	failing := func(models.TriggerEvent) (*models.Job, error) {
		return nil, fmt.Errorf("no workflow bound to trigger")
	}

	d := NewDispatcher(q, failing, nil, nil, 8, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d.Start(ctx)
	require.NoError(t, d.Offer(models.TriggerEvent{TriggerID: "t"}))
	d.Stop()

	jobs, err := q.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
