package robots

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conveyor-automation/conveyor/pkg/models"
)

func newTestRegistry(t *testing.T, deadline time.Duration) *Registry {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	return NewRegistry(deadline, logger)
}

func TestSelfRegisterAndHeartbeat(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, time.Minute)

	robot, err := r.SelfRegister(ctx, "robot-1", []string{"browser", "os"})
	require.NoError(t, err)
	assert.Equal(t, models.RobotStatusIdle, robot.Status)
	assert.ElementsMatch(t, []string{"browser", "os"}, robot.Capabilities)

	err = r.Heartbeat(ctx, "robot-1", models.RobotStatusBusy, "job-9")
	require.NoError(t, err)

	got, err := r.Get(ctx, "robot-1")
	require.NoError(t, err)
	assert.Equal(t, models.RobotStatusBusy, got.Status)
	assert.Equal(t, "job-9", got.ActiveJobID)
}

func TestHeartbeatUnknownRobot(t *testing.T) {
	r := newTestRegistry(t, time.Minute)

	err := r.Heartbeat(context.Background(), "ghost", models.RobotStatusIdle, "")
	assert.ErrorIs(t, err, ErrRobotNotFound)
}

func TestMarkExpired(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, 30*time.Second)

	now := time.Now().UTC()
	r.now = func() time.Time { return now }

	_, err := r.SelfRegister(ctx, "stale", nil)
	require.NoError(t, err)

	r.now = func() time.Time { return now.Add(40 * time.Second) }
	_, err = r.SelfRegister(ctx, "fresh", nil)
	require.NoError(t, err)

	expired := r.MarkExpired(ctx, now.Add(45*time.Second))
	assert.Equal(t, []string{"stale"}, expired)

	stale, err := r.Get(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, models.RobotStatusOffline, stale.Status)

	fresh, err := r.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, models.RobotStatusIdle, fresh.Status)

	// Already-offline robots are not reported twice.
	assert.Empty(t, r.MarkExpired(ctx, now.Add(50*time.Second)))
}

func TestListIdleFiltersByCapability(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, time.Minute)

	_, err := r.SelfRegister(ctx, "browser-bot", []string{"browser"})
	require.NoError(t, err)
	_, err = r.SelfRegister(ctx, "full-bot", []string{"browser", "desktop", "os"})
	require.NoError(t, err)
	require.NoError(t, r.Heartbeat(ctx, "browser-bot", models.RobotStatusBusy, "job-1"))

	idle := r.ListIdle(ctx, []string{"browser"})
	require.Len(t, idle, 1)
	assert.Equal(t, "full-bot", idle[0].ID)
}

func TestBalancers(t *testing.T) {
	job := &models.Job{Capabilities: []string{"browser"}}
	candidates := []*models.RobotAgent{
		{ID: "a", Capabilities: []string{"browser", "desktop", "os"}},
		{ID: "b", Capabilities: []string{"browser"}, ActiveJobID: "job-1"},
		{ID: "c", Capabilities: []string{"browser", "os"}},
	}

	rr := NewRoundRobin()
	assert.Equal(t, "a", rr.Pick(job, candidates).ID)
	assert.Equal(t, "b", rr.Pick(job, candidates).ID)
	assert.Equal(t, "c", rr.Pick(job, candidates).ID)
	assert.Equal(t, "a", rr.Pick(job, candidates).ID)

	assert.Equal(t, "a", LeastLoaded{}.Pick(job, candidates).ID)

	assert.Equal(t, "b", CapabilityAffinity{}.Pick(job, candidates).ID)

	assert.Nil(t, rr.Pick(job, nil))
}
