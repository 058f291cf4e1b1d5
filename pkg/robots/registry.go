// Package robots tracks the robot agent pool: self-registration, heartbeats,
// offline detection, and the balancing policies used by push-mode
// integrations.
package robots

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/conveyor-automation/conveyor/pkg/models"
)

// ErrRobotNotFound indicates no robot is registered with the given ID.
var ErrRobotNotFound = errors.New("robot not found")

// DefaultHeartbeatDeadline marks a robot offline when its heartbeat is older.
const DefaultHeartbeatDeadline = 45 * time.Second

// Registry is the in-memory robot registry. It is safe for concurrent use
// by robot heartbeat loops and the monitor.
type Registry struct {
	deadline time.Duration
	logger   *slog.Logger

	mu     sync.RWMutex
	robots map[string]*models.RobotAgent

	now func() time.Time
}

func NewRegistry(deadline time.Duration, logger *slog.Logger) *Registry {
	if deadline <= 0 {
		deadline = DefaultHeartbeatDeadline
	}

	return &Registry{
		deadline: deadline,
		logger:   logger.With("module", "robot_registry"),
		robots:   make(map[string]*models.RobotAgent),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SelfRegister adds a robot (or revives a known one) and marks it idle.
func (r *Registry) SelfRegister(ctx context.Context, id string, capabilities []string) (*models.RobotAgent, error) {
	if id == "" {
		return nil, fmt.Errorf("robot id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	robot, ok := r.robots[id]
	if !ok {
		robot = &models.RobotAgent{
			ID:           id,
			RegisteredAt: r.now(),
		}
		r.robots[id] = robot
	}

	robot.Capabilities = append([]string(nil), capabilities...)
	robot.Status = models.RobotStatusIdle
	robot.LastHeartbeat = r.now()

	r.logger.InfoContext(ctx, "Robot registered", "robot_id", id, "capabilities", capabilities)

	return cloneRobot(robot), nil
}

// Heartbeat records liveness and the robot's self-reported status.
func (r *Registry) Heartbeat(_ context.Context, id string, status models.RobotStatus, activeJobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	robot, ok := r.robots[id]
	if !ok {
		return fmt.Errorf("heartbeat from unknown robot %s: %w", id, ErrRobotNotFound)
	}

	robot.LastHeartbeat = r.now()
	robot.ActiveJobID = activeJobID

	if status != "" {
		robot.Status = status
	}

	return nil
}

// Get returns a robot by ID.
func (r *Registry) Get(_ context.Context, id string) (*models.RobotAgent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	robot, ok := r.robots[id]
	if !ok {
		return nil, ErrRobotNotFound
	}

	return cloneRobot(robot), nil
}

// List returns all registered robots, oldest registration first.
func (r *Registry) List(_ context.Context) []*models.RobotAgent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.RobotAgent, 0, len(r.robots))
	for _, robot := range r.robots {
		out = append(out, cloneRobot(robot))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].RegisteredAt.Before(out[j].RegisteredAt) })

	return out
}

// ListIdle returns online idle robots whose capabilities cover the given
// requirements. Used by push-mode balancers only.
func (r *Registry) ListIdle(_ context.Context, requirements []string) []*models.RobotAgent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	probe := models.Job{Capabilities: requirements}

	var out []*models.RobotAgent

	for _, robot := range r.robots {
		if robot.Status == models.RobotStatusIdle && probe.Matches(robot.Capabilities) {
			out = append(out, cloneRobot(robot))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// MarkExpired flags robots past the heartbeat deadline as offline and
// returns the IDs that just went offline, so their leases can be reaped
// proactively instead of waiting for natural lease expiry.
func (r *Registry) MarkExpired(_ context.Context, now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []string

	for id, robot := range r.robots {
		if robot.Status == models.RobotStatusOffline {
			continue
		}

		if now.Sub(robot.LastHeartbeat) > r.deadline {
			robot.Status = models.RobotStatusOffline
			robot.ActiveJobID = ""
			expired = append(expired, id)
		}
	}

	sort.Strings(expired)

	return expired
}

// OnlineCount reports robots not currently offline.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0

	for _, robot := range r.robots {
		if robot.Status != models.RobotStatusOffline {
			count++
		}
	}

	return count
}

func cloneRobot(robot *models.RobotAgent) *models.RobotAgent {
	dup := *robot
	dup.Capabilities = append([]string(nil), robot.Capabilities...)

	return &dup
}
