package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/conveyor-automation/conveyor/pkg/models"
	"github.com/conveyor-automation/conveyor/pkg/nodes"
	"github.com/conveyor-automation/conveyor/pkg/protocol"
	"github.com/conveyor-automation/conveyor/pkg/queue"
	queuepostgres "github.com/conveyor-automation/conveyor/pkg/queue/postgres"
	"github.com/conveyor-automation/conveyor/pkg/registry"
	storefile "github.com/conveyor-automation/conveyor/pkg/store/file"
	"github.com/conveyor-automation/conveyor/pkg/workflow"
)

type RobotConfig struct {
	RobotID       string
	DatabaseURL   string
	WorkflowsPath string
	Capabilities  []string
	PollInterval  time.Duration
}

// Robot is the pull-mode worker loop: claim, execute, settle, repeat. The
// lease is extended on a ticker while a job runs so slow workflows survive
// the reaper.
type Robot struct {
	config   RobotConfig
	store    *storefile.Store
	registry *registry.Registry
	executor *workflow.Executor
	logger   *slog.Logger
}

func NewRobot(config RobotConfig, logger *slog.Logger) *Robot {
	reg := registry.NewRegistry(logger)
	nodes.RegisterDefaults(reg)

	store := storefile.NewStore(config.WorkflowsPath)

	executor := workflow.NewExecutor(reg, nil, nil, logger).
		WithSubworkflowResolver(store.Get)

	return &Robot{
		config:   config,
		store:    store,
		registry: reg,
		executor: executor,
		logger:   logger,
	}
}

// Run blocks until SIGINT or SIGTERM.
func (r *Robot) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	q, err := queuepostgres.NewQueue(ctx, r.logger, r.config.DatabaseURL, queue.Options{})
	if err != nil {
		return fmt.Errorf("failed to open job queue: %w", err)
	}

	defer func() {
		err := q.Close(context.WithoutCancel(ctx))
		if err != nil {
			r.logger.ErrorContext(ctx, "Failed to close job queue", "error", err)
		}
	}()

	r.logger.InfoContext(ctx, "Robot started",
		"capabilities", r.config.Capabilities,
		"poll_interval", r.config.PollInterval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Robot shutting down")

			return nil
		default:
		}

		job, err := q.Claim(ctx, r.config.RobotID, r.config.Capabilities)
		if err != nil {
			r.logger.ErrorContext(ctx, "Claim failed", "error", err)
			r.sleep(ctx)

			continue
		}

		if job == nil {
			r.sleep(ctx)

			continue
		}

		r.execute(ctx, q, job)
	}
}

func (r *Robot) execute(ctx context.Context, q queue.Queue, job *models.Job) {
	logger := r.logger.With("job_id", job.ID, "workflow_id", job.WorkflowID)
	logger.InfoContext(ctx, "Job claimed")

	wf, err := r.store.Get(ctx, job.WorkflowID)
	if err != nil {
		r.fail(ctx, q, job, err)

		return
	}

	plan, err := workflow.Compile(wf, r.registry)
	if err != nil {
		r.fail(ctx, q, job, err)

		return
	}

	run := r.executor.Prepare(plan, workflow.RunOptions{
		RunID:       "run-" + uuid.New().String()[:8],
		JobID:       job.ID,
		RobotID:     r.config.RobotID,
		Variables:   job.Variables,
		Credentials: envCredentials(),
	})

	execCtx, stopLease := context.WithCancel(ctx)
	leaseDone := make(chan struct{})

	go r.extendLease(execCtx, q, job, run, leaseDone)

	result, execErr := run.Execute(execCtx)

	stopLease()
	<-leaseDone

	switch {
	case execErr != nil:
		r.fail(ctx, q, job, execErr)
	case result.Status == models.RunStatusCancelled:
		err := q.Fail(ctx, job.ID, r.config.RobotID, "run cancelled")
		if err != nil {
			logger.ErrorContext(ctx, "Failed to settle cancelled job", "error", err)
		}

		logger.InfoContext(ctx, "Job cancelled")
	default:
		err := q.Complete(ctx, job.ID, r.config.RobotID, result.Variables)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to complete job", "error", err)

			return
		}

		logger.InfoContext(ctx, "Job completed", "run_id", result.ID)
	}
}

// extendLease renews the lease at a third of its duration. A stale lease
// means another robot owns the job now; the run is cancelled to stop
// duplicate side effects as soon as possible.
func (r *Robot) extendLease(ctx context.Context, q queue.Queue, job *models.Job, run *workflow.Run, done chan<- struct{}) {
	defer close(done)

	interval := queue.DefaultLeaseDuration / 3

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := q.ExtendLease(ctx, job.ID, r.config.RobotID)
			if err != nil {
				if queue.IsStaleLease(err) {
					r.logger.WarnContext(ctx, "Lost job lease, cancelling run", "job_id", job.ID)
					run.Cancel()

					return
				}

				r.logger.ErrorContext(ctx, "Failed to extend lease", "job_id", job.ID, "error", err)
			}
		}
	}
}

func (r *Robot) fail(ctx context.Context, q queue.Queue, job *models.Job, jobErr error) {
	r.logger.ErrorContext(ctx, "Job failed", "job_id", job.ID, "error", jobErr)

	err := q.Fail(ctx, job.ID, r.config.RobotID, jobErr.Error())
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to settle failed job", "job_id", job.ID, "error", err)
	}
}

func (r *Robot) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(r.config.PollInterval):
	}
}

// envCredentials resolves credential aliases from CONVEYOR_CREDENTIAL_*
// environment variables, e.g. alias "api_key" reads CONVEYOR_CREDENTIAL_API_KEY.
func envCredentials() protocol.CredentialResolver {
	return protocol.CredentialResolverFunc(func(_ context.Context, alias string) (string, error) {
		key := "CONVEYOR_CREDENTIAL_" + strings.ToUpper(strings.ReplaceAll(alias, "-", "_"))

		value, ok := os.LookupEnv(key)
		if !ok {
			return "", fmt.Errorf("credential %q not found in environment", alias)
		}

		return value, nil
	})
}
