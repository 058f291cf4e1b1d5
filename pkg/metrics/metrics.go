// Package metrics exposes prometheus instrumentation for the trigger,
// queue, and execution subsystems.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors shared across components. Construct one per
// process and register it against a prometheus registry.
type Metrics struct {
	TriggerFires   *prometheus.CounterVec
	TriggerDrops   *prometheus.CounterVec
	TriggerErrors  *prometheus.CounterVec
	JobsEnqueued   prometheus.Counter
	JobsClaimed    prometheus.Counter
	JobsCompleted  prometheus.Counter
	JobsFailed     prometheus.Counter
	JobsReaped     prometheus.Counter
	PendingJobs    prometheus.Gauge
	RunsStarted    prometheus.Counter
	RunsFailed     prometheus.Counter
	NodesExecuted  *prometheus.CounterVec
	OnlineRobots   prometheus.Gauge
	DispatchDepth  prometheus.Gauge
	DispatchDrops  prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		TriggerFires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_trigger_fires_total",
			Help: "Accepted trigger fires by trigger type.",
		}, []string{"type"}),
		TriggerDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_trigger_drops_total",
			Help: "Trigger fires dropped by busy, cooldown, or backpressure policy.",
		}, []string{"type"}),
		TriggerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_trigger_errors_total",
			Help: "Trigger detection or callback errors by trigger type.",
		}, []string{"type"}),
		JobsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conveyor_jobs_enqueued_total",
			Help: "Jobs inserted into the queue.",
		}),
		JobsClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conveyor_jobs_claimed_total",
			Help: "Jobs claimed by robots.",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conveyor_jobs_completed_total",
			Help: "Jobs completed successfully.",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conveyor_jobs_failed_total",
			Help: "Jobs that reached failed status.",
		}),
		JobsReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conveyor_jobs_reaped_total",
			Help: "Expired leases returned to pending by the reaper.",
		}),
		PendingJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "conveyor_jobs_pending",
			Help: "Jobs currently in pending status.",
		}),
		RunsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conveyor_runs_started_total",
			Help: "Workflow runs started.",
		}),
		RunsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conveyor_runs_failed_total",
			Help: "Workflow runs that finished failed.",
		}),
		NodesExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_nodes_executed_total",
			Help: "Node executions by terminal state.",
		}, []string{"state"}),
		OnlineRobots: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "conveyor_robots_online",
			Help: "Robots currently considered online.",
		}),
		DispatchDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "conveyor_dispatch_queue_depth",
			Help: "Trigger events buffered in the dispatcher channel.",
		}),
		DispatchDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conveyor_dispatch_drops_total",
			Help: "Trigger events rejected because the dispatcher channel was full.",
		}),
	}
}

// Register registers all collectors against the given registerer.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.TriggerFires, m.TriggerDrops, m.TriggerErrors,
		m.JobsEnqueued, m.JobsClaimed, m.JobsCompleted, m.JobsFailed, m.JobsReaped,
		m.PendingJobs, m.RunsStarted, m.RunsFailed, m.NodesExecuted,
		m.OnlineRobots, m.DispatchDepth, m.DispatchDrops,
	}

	for _, c := range collectors {
		err := reg.Register(c)
		if err != nil {
			return err
		}
	}

	return nil
}
