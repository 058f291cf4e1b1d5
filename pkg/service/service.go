// Package service wires the queue, trigger manager, robot registry,
// dispatcher, and workflow executor into one facade. CLI and HTTP layers
// call this package instead of composing the subsystems themselves.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conveyor-automation/conveyor/pkg/dispatcher"
	"github.com/conveyor-automation/conveyor/pkg/eventbus"
	"github.com/conveyor-automation/conveyor/pkg/metrics"
	"github.com/conveyor-automation/conveyor/pkg/models"
	"github.com/conveyor-automation/conveyor/pkg/nodes"
	"github.com/conveyor-automation/conveyor/pkg/protocol"
	"github.com/conveyor-automation/conveyor/pkg/queue"
	queuememory "github.com/conveyor-automation/conveyor/pkg/queue/memory"
	"github.com/conveyor-automation/conveyor/pkg/registry"
	"github.com/conveyor-automation/conveyor/pkg/robots"
	"github.com/conveyor-automation/conveyor/pkg/store"
	storememory "github.com/conveyor-automation/conveyor/pkg/store/memory"
	"github.com/conveyor-automation/conveyor/pkg/triggers"
	"github.com/conveyor-automation/conveyor/pkg/triggers/webhook"
	"github.com/conveyor-automation/conveyor/pkg/workflow"
)

// ErrJobNotCancellable indicates the job already reached a terminal status.
var ErrJobNotCancellable = errors.New("job not cancellable")

// DefaultReapInterval drives the periodic lease sweep.
const DefaultReapInterval = 30 * time.Second

// Config assembles a Service. Zero-value fields fall back to in-memory
// implementations, which is what the test suites and the single-binary
// deployment use.
type Config struct {
	Queue       queue.Queue
	Store       store.WorkflowStore
	Registry    *registry.Registry
	EventBus    eventbus.EventBus
	Metrics     *metrics.Metrics
	Credentials protocol.CredentialResolver

	// WebhookPort enables webhook triggers when non-zero.
	WebhookPort int

	// DispatchBuffer bounds the trigger-to-queue hand-off channel.
	DispatchBuffer int

	ReapInterval      time.Duration
	HeartbeatDeadline time.Duration

	Logger *slog.Logger
}

// JobStatus pairs a job with its execution run, when one exists.
type JobStatus struct {
	Job *models.Job         `json:"job"`
	Run *models.WorkflowRun `json:"run,omitempty"`
}

// Service is the orchestrator facade. All methods are safe for concurrent use.
type Service struct {
	queue       queue.Queue
	store       store.WorkflowStore
	registry    *registry.Registry
	robots      *robots.Registry
	triggers    *triggers.Manager
	dispatcher  *dispatcher.Dispatcher
	executor    *workflow.Executor
	reaper      *queue.Reaper
	monitor     *robots.Monitor
	webhooks    *webhook.ServerManager
	credentials protocol.CredentialResolver
	logger      *slog.Logger

	mu         sync.Mutex
	activeRuns map[string]*workflow.Run       // job ID -> in-flight run
	runs       map[string]*models.WorkflowRun // job ID -> finished run
	cancelled  map[string]struct{}            // running jobs flagged for cancel

	stopOnce sync.Once
}

func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Queue == nil {
		cfg.Queue = queuememory.NewQueue(queue.Options{})
	}

	if cfg.Store == nil {
		cfg.Store = storememory.NewStore()
	}

	var webhooks *webhook.ServerManager
	if cfg.WebhookPort > 0 {
		webhooks = webhook.NewServerManager(cfg.WebhookPort, logger)
	}

	if cfg.Registry == nil {
		cfg.Registry = registry.NewRegistry(logger)
		nodes.RegisterDefaults(cfg.Registry)
		triggers.RegisterDefaults(cfg.Registry, webhooks)
	}

	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = DefaultReapInterval
	}

	svc := &Service{
		queue:       cfg.Queue,
		store:       cfg.Store,
		registry:    cfg.Registry,
		robots:      robots.NewRegistry(cfg.HeartbeatDeadline, logger),
		webhooks:    webhooks,
		credentials: cfg.Credentials,
		logger:      logger.With("module", "service"),
		activeRuns: make(map[string]*workflow.Run),
		runs:       make(map[string]*models.WorkflowRun),
		cancelled:  make(map[string]struct{}),
	}

	svc.dispatcher = dispatcher.NewDispatcher(
		cfg.Queue, svc.buildJob, cfg.EventBus, cfg.Metrics, cfg.DispatchBuffer, logger)
	svc.triggers = triggers.NewManager(cfg.Registry, svc.dispatchFire, cfg.Metrics, logger)
	svc.executor = workflow.NewExecutor(cfg.Registry, cfg.EventBus, cfg.Metrics, logger).
		WithSubworkflowResolver(cfg.Store.Get)
	svc.reaper = queue.NewReaper(cfg.Queue, cfg.ReapInterval, cfg.EventBus, cfg.Metrics, logger)
	svc.monitor = robots.NewMonitor(svc.robots, cfg.Queue, cfg.ReapInterval, cfg.Metrics, logger)

	return svc
}

// Start launches the background loops: the dispatcher consumer, the lease
// reaper, and the robot heartbeat monitor. It returns immediately.
func (s *Service) Start(ctx context.Context) {
	s.dispatcher.Start(ctx)

	go s.reaper.Run(ctx)
	go s.monitor.Run(ctx)

	s.logger.InfoContext(ctx, "Service started")
}

// Stop shuts down in dependency order: triggers first so nothing new is
// fired, then the dispatcher so accepted events drain into the queue.
func (s *Service) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		err := s.triggers.StopAll(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to stop triggers cleanly", "error", err)
		}

		s.dispatcher.Stop()

		if s.webhooks != nil {
			err := s.webhooks.Shutdown(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "Failed to shut down webhook server", "error", err)
			}
		}

		s.logger.InfoContext(ctx, "Service stopped")
	})
}

// --- Workflows ---

// SaveWorkflow compiles the workflow first so structural violations are
// rejected at write time, not at execution time.
func (s *Service) SaveWorkflow(ctx context.Context, wf *models.Workflow) error {
	_, err := workflow.Compile(wf, s.registry)
	if err != nil {
		return fmt.Errorf("workflow %s does not compile: %w", wf.ID, err)
	}

	return s.store.Save(ctx, wf)
}

func (s *Service) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListWorkflows(ctx context.Context) ([]*models.Workflow, error) {
	return s.store.List(ctx)
}

func (s *Service) DeleteWorkflow(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// --- Jobs ---

// SubmitJob enqueues a job directly, bypassing triggers. Used by CLI runs
// and by API callers replaying a workflow.
func (s *Service) SubmitJob(ctx context.Context, workflowID string, variables map[string]any, priority int, capabilities []string) (*models.Job, error) {
	_, err := s.store.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	job := &models.Job{
		ID:           "job-" + uuid.New().String()[:8],
		WorkflowID:   workflowID,
		Variables:    variables,
		Priority:     priority,
		Capabilities: capabilities,
	}

	err = s.queue.Enqueue(ctx, job)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Job submitted", "job_id", job.ID, "workflow_id", workflowID)

	return job, nil
}

// ClaimJob claims the next matching job for a robot. Returns (nil, nil)
// when the queue has nothing for the given capabilities.
func (s *Service) ClaimJob(ctx context.Context, robotID string, capabilities []string) (*models.Job, error) {
	return s.queue.Claim(ctx, robotID, capabilities)
}

// ExecuteJob runs a claimed job's workflow to completion and settles the
// queue entry. The returned run is also retrievable through GetStatus.
func (s *Service) ExecuteJob(ctx context.Context, job *models.Job, robotID string) (*models.WorkflowRun, error) {
	wf, err := s.store.Get(ctx, job.WorkflowID)
	if err != nil {
		failErr := s.queue.Fail(ctx, job.ID, robotID, err.Error())
		if failErr != nil {
			s.logger.ErrorContext(ctx, "Failed to fail job", "job_id", job.ID, "error", failErr)
		}

		return nil, err
	}

	plan, err := workflow.Compile(wf, s.registry)
	if err != nil {
		failErr := s.queue.Fail(ctx, job.ID, robotID, err.Error())
		if failErr != nil {
			s.logger.ErrorContext(ctx, "Failed to fail job", "job_id", job.ID, "error", failErr)
		}

		return nil, err
	}

	run := s.executor.Prepare(plan, workflow.RunOptions{
		RunID:       "run-" + uuid.New().String()[:8],
		JobID:       job.ID,
		RobotID:     robotID,
		Variables:   job.Variables,
		Credentials: s.credentials,
	})

	s.mu.Lock()
	// A cancel request may have arrived between claim and execute.
	if _, ok := s.cancelled[job.ID]; ok {
		run.Cancel()
	}

	s.activeRuns[job.ID] = run
	s.mu.Unlock()

	result, execErr := run.Execute(ctx)

	s.mu.Lock()
	delete(s.activeRuns, job.ID)
	delete(s.cancelled, job.ID)

	if result != nil {
		s.runs[job.ID] = result
	}
	s.mu.Unlock()

	s.settleJob(ctx, job, robotID, result, execErr)

	return result, execErr
}

// settleJob maps the run outcome onto the queue-side job transition.
func (s *Service) settleJob(ctx context.Context, job *models.Job, robotID string, result *models.WorkflowRun, execErr error) {
	var err error

	switch {
	case execErr != nil:
		err = s.queue.Fail(ctx, job.ID, robotID, execErr.Error())
	case result != nil && result.Status == models.RunStatusCancelled:
		err = s.queue.Fail(ctx, job.ID, robotID, "run cancelled")
	default:
		var output map[string]any
		if result != nil {
			output = result.Variables
		}

		err = s.queue.Complete(ctx, job.ID, robotID, output)
	}

	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to settle job", "job_id", job.ID, "error", err)
	}
}

// GetStatus returns the job and, when it has executed in this process, the
// workflow run behind it.
func (s *Service) GetStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	job, err := s.queue.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	run := s.runs[jobID]
	s.mu.Unlock()

	return &JobStatus{Job: job, Run: run}, nil
}

func (s *Service) ListJobs(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	return s.queue.List(ctx, status)
}

// CancelJob cancels a pending job immediately. For a running job it flags
// the in-flight run, which stops at the next node boundary; the job settles
// as failed with a cancellation message when the robot reports back.
func (s *Service) CancelJob(ctx context.Context, jobID string) error {
	job, err := s.queue.Get(ctx, jobID)
	if err != nil {
		return err
	}

	switch job.Status {
	case models.JobStatusPending:
		return s.queue.Cancel(ctx, jobID)
	case models.JobStatusRunning:
		s.mu.Lock()
		defer s.mu.Unlock()

		s.cancelled[jobID] = struct{}{}

		if run, ok := s.activeRuns[jobID]; ok {
			run.Cancel()
		}

		return nil
	default:
		return fmt.Errorf("job %s is %s: %w", jobID, job.Status, ErrJobNotCancellable)
	}
}

// --- Triggers ---

func (s *Service) RegisterTrigger(ctx context.Context, config models.TriggerConfig) (string, error) {
	_, err := s.store.Get(ctx, config.WorkflowID)
	if err != nil {
		return "", err
	}

	return s.triggers.Register(config)
}

func (s *Service) StartTrigger(ctx context.Context, triggerID string) error {
	return s.triggers.Start(ctx, triggerID)
}

func (s *Service) StopTrigger(ctx context.Context, triggerID string) error {
	return s.triggers.Stop(ctx, triggerID)
}

func (s *Service) PauseTrigger(triggerID string) error {
	return s.triggers.Pause(triggerID)
}

func (s *Service) ResumeTrigger(triggerID string) error {
	return s.triggers.Resume(triggerID)
}

func (s *Service) DeleteTrigger(ctx context.Context, triggerID string) error {
	return s.triggers.Delete(ctx, triggerID)
}

// FireTrigger fires a trigger manually through the normal fire policy.
func (s *Service) FireTrigger(ctx context.Context, triggerID string, payload map[string]any) error {
	return s.triggers.Fire(ctx, triggerID, payload)
}

func (s *Service) GetTrigger(triggerID string) (models.TriggerInfo, error) {
	return s.triggers.Get(triggerID)
}

func (s *Service) ListTriggers() []models.TriggerInfo {
	return s.triggers.List()
}

// --- Robots ---

func (s *Service) RegisterRobot(ctx context.Context, robotID string, capabilities []string) (*models.RobotAgent, error) {
	return s.robots.SelfRegister(ctx, robotID, capabilities)
}

func (s *Service) RobotHeartbeat(ctx context.Context, robotID string, status models.RobotStatus, activeJobID string) error {
	return s.robots.Heartbeat(ctx, robotID, status, activeJobID)
}

func (s *Service) ListRobots(ctx context.Context) []*models.RobotAgent {
	return s.robots.List(ctx)
}

// --- Internal wiring ---

// dispatchFire is the FireSink handed to the trigger manager: accepted
// fires go to the dispatcher's bounded channel. A full channel surfaces as
// ErrDispatcherFull, which the trigger runner counts as a dropped fire.
func (s *Service) dispatchFire(_ context.Context, event models.TriggerEvent) error {
	return s.dispatcher.Offer(event)
}

// buildJob converts an accepted trigger event into a job using the trigger's
// registered workflow binding, priority, and capability requirements.
func (s *Service) buildJob(event models.TriggerEvent) (*models.Job, error) {
	info, err := s.triggers.Get(event.TriggerID)
	if err != nil {
		return nil, fmt.Errorf("trigger %s vanished before dispatch: %w", event.TriggerID, err)
	}

	variables := make(map[string]any, 1)
	if event.Payload != nil {
		variables["trigger"] = event.Payload
	}

	return &models.Job{
		WorkflowID:   info.Config.WorkflowID,
		Variables:    variables,
		Priority:     info.Config.Priority,
		Capabilities: info.Config.Capabilities,
	}, nil
}
