package robots

import (
	"context"
	"log/slog"
	"time"

	"github.com/conveyor-automation/conveyor/pkg/metrics"
	"github.com/conveyor-automation/conveyor/pkg/queue"
)

// Monitor watches heartbeats on a fixed interval. When a robot misses its
// deadline it is marked offline and its active lease is reaped immediately.
type Monitor struct {
	registry *Registry
	queue    queue.Queue
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewMonitor(registry *Registry, q queue.Queue, interval time.Duration, m *metrics.Metrics, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}

	return &Monitor{
		registry: registry,
		queue:    q,
		interval: interval,
		metrics:  m,
		logger:   logger.With("module", "robot_monitor"),
	}
}

// Run blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.InfoContext(ctx, "Robot monitor started", "interval", m.interval)

	for {
		select {
		case <-ctx.Done():
			m.logger.InfoContext(ctx, "Robot monitor stopped")

			return
		case now := <-ticker.C:
			m.sweep(ctx, now.UTC())
		}
	}
}

func (m *Monitor) sweep(ctx context.Context, now time.Time) {
	for _, robotID := range m.registry.MarkExpired(ctx, now) {
		m.logger.WarnContext(ctx, "Robot missed heartbeat deadline, marked offline", "robot_id", robotID)

		reaped, err := m.queue.ReapOwned(ctx, robotID)
		if err != nil {
			m.logger.ErrorContext(ctx, "Failed to reap leases of offline robot", "robot_id", robotID, "error", err)

			continue
		}

		for _, job := range reaped {
			m.logger.WarnContext(ctx, "Reaped lease of offline robot", "robot_id", robotID, "job_id", job.ID)

			if m.metrics != nil {
				m.metrics.JobsReaped.Inc()
			}
		}
	}

	if m.metrics != nil {
		m.metrics.OnlineRobots.Set(float64(m.registry.OnlineCount()))
	}
}
