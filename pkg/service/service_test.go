package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conveyor-automation/conveyor/pkg/models"
	"github.com/conveyor-automation/conveyor/pkg/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	svc := New(Config{
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		ReapInterval: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	svc.Start(ctx)
	t.Cleanup(func() { svc.Stop(context.Background()) })

	return svc
}

func logNode(id, message string) *models.Node {
	return &models.Node{
		ID:      id,
		Type:    "log",
		Name:    id,
		Config:  map[string]any{"message": message},
		Enabled: true,
		ExecIn:  []string{models.PortMain},
		ExecOut: []string{models.PortMain},
	}
}

func linearWorkflow(id string) *models.Workflow {
	return &models.Workflow{
		ID:          id,
		Name:        "Linear " + id,
		Version:     1,
		StartNodeID: "a",
		Nodes: map[string]*models.Node{
			"a": logNode("a", "step a"),
			"b": logNode("b", "step b"),
			"c": logNode("c", "step c"),
		},
		Connections: []*models.Connection{
			{ID: "ab", Kind: models.ConnectionKindExec, SourcePort: "a:main", TargetPort: "b:main"},
			{ID: "bc", Kind: models.ConnectionKindExec, SourcePort: "b:main", TargetPort: "c:main"},
		},
	}
}

func TestSaveWorkflowRejectsInvalid(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)

	wf := linearWorkflow("wf-bad")
	wf.Nodes["x"] = &models.Node{ID: "x", Type: "no-such-type"}

	err := svc.SaveWorkflow(context.Background(), wf)
	require.Error(t, err)
}

func TestSubmitJobUnknownWorkflow(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)

	_, err := svc.SubmitJob(context.Background(), "missing", nil, 0, nil)
	require.ErrorIs(t, err, store.ErrWorkflowNotFound)
}

func TestSubmitClaimExecuteComplete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestService(t)

	require.NoError(t, svc.SaveWorkflow(ctx, linearWorkflow("wf-linear")))

	job, err := svc.SubmitJob(ctx, "wf-linear", map[string]any{"env": "test"}, 5, nil)
	require.NoError(t, err)

	claimed, err := svc.ClaimJob(ctx, "robot-1", nil)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, job.ID, claimed.ID)

	run, err := svc.ExecuteJob(ctx, claimed, "robot-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, models.NodeStateSucceeded, run.NodeStates["a"])
	assert.Equal(t, models.NodeStateSucceeded, run.NodeStates["b"])
	assert.Equal(t, models.NodeStateSucceeded, run.NodeStates["c"])

	status, err := svc.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, status.Job.Status)
	require.NotNil(t, status.Run)
	assert.Equal(t, run.ID, status.Run.ID)
}

func TestCancelPendingJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestService(t)

	require.NoError(t, svc.SaveWorkflow(ctx, linearWorkflow("wf-cancel")))

	job, err := svc.SubmitJob(ctx, "wf-cancel", nil, 0, nil)
	require.NoError(t, err)

	require.NoError(t, svc.CancelJob(ctx, job.ID))

	status, err := svc.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, status.Job.Status)

	claimed, err := svc.ClaimJob(ctx, "robot-1", nil)
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestCancelCompletedJobRejected(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestService(t)

	require.NoError(t, svc.SaveWorkflow(ctx, linearWorkflow("wf-done")))

	job, err := svc.SubmitJob(ctx, "wf-done", nil, 0, nil)
	require.NoError(t, err)

	claimed, err := svc.ClaimJob(ctx, "robot-1", nil)
	require.NoError(t, err)

	_, err = svc.ExecuteJob(ctx, claimed, "robot-1")
	require.NoError(t, err)

	err = svc.CancelJob(ctx, job.ID)
	require.ErrorIs(t, err, ErrJobNotCancellable)
}

func TestTriggerFireEndToEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestService(t)

	require.NoError(t, svc.SaveWorkflow(ctx, linearWorkflow("wf-triggered")))

	triggerID, err := svc.RegisterTrigger(ctx, models.TriggerConfig{
		Type:         "manual",
		Name:         "manual kick",
		WorkflowID:   "wf-triggered",
		Priority:     3,
		Capabilities: []string{"linux"},
	})
	require.NoError(t, err)
	require.NoError(t, svc.StartTrigger(ctx, triggerID))

	require.NoError(t, svc.FireTrigger(ctx, triggerID, map[string]any{"source": "test"}))

	// The dispatcher consumer runs async; wait for the job to land.
	var claimed *models.Job

	require.Eventually(t, func() bool {
		job, err := svc.ClaimJob(ctx, "robot-1", []string{"linux", "browser"})
		if err != nil || job == nil {
			return false
		}

		claimed = job

		return true
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "wf-triggered", claimed.WorkflowID)
	assert.Equal(t, 3, claimed.Priority)
	assert.Equal(t, triggerID, claimed.TriggerID)
	trigger, ok := claimed.Variables["trigger"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "test", trigger["source"])

	run, err := svc.ExecuteJob(ctx, claimed, "robot-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)

	info, err := svc.GetTrigger(triggerID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.Stats.FireCount)
	assert.Equal(t, int64(1), info.Stats.SuccessCount)
}

func TestRegisterTriggerUnknownWorkflow(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)

	_, err := svc.RegisterTrigger(context.Background(), models.TriggerConfig{
		Type:       "manual",
		WorkflowID: "missing",
	})
	require.ErrorIs(t, err, store.ErrWorkflowNotFound)
}

func TestScheduleTriggerEnqueuesJobs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestService(t)

	require.NoError(t, svc.SaveWorkflow(ctx, linearWorkflow("wf-interval")))

	triggerID, err := svc.RegisterTrigger(ctx, models.TriggerConfig{
		Type:       "interval",
		WorkflowID: "wf-interval",
		Settings:   map[string]any{"interval_ms": 20},
		MaxRuns:    1,
	})
	require.NoError(t, err)
	require.NoError(t, svc.StartTrigger(ctx, triggerID))

	require.Eventually(t, func() bool {
		jobs, err := svc.ListJobs(ctx, models.JobStatusPending)

		return err == nil && len(jobs) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		info, err := svc.GetTrigger(triggerID)

		return err == nil && info.Status == models.TriggerStatusInactive
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRobotRegistrationAndHeartbeat(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestService(t)

	robot, err := svc.RegisterRobot(ctx, "robot-hb", []string{"linux"})
	require.NoError(t, err)
	assert.Equal(t, models.RobotStatusIdle, robot.Status)

	require.NoError(t, svc.RobotHeartbeat(ctx, "robot-hb", models.RobotStatusBusy, "job-1"))

	listed := svc.ListRobots(ctx)
	require.Len(t, listed, 1)
	assert.Equal(t, models.RobotStatusBusy, listed[0].Status)
	assert.Equal(t, "job-1", listed[0].ActiveJobID)
}
