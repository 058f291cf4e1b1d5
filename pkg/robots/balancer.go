package robots

import (
	"sync"

	"github.com/conveyor-automation/conveyor/pkg/models"
)

// Balancer picks a robot from the idle candidates for a job. Only push-mode
// integrations use it; in the default pull mode robots self-select via the
// queue's Claim.
type Balancer interface {
	Pick(job *models.Job, candidates []*models.RobotAgent) *models.RobotAgent
}

// RoundRobin cycles through candidates across calls.
type RoundRobin struct {
	mu   sync.Mutex
	next int
}

func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

func (b *RoundRobin) Pick(_ *models.Job, candidates []*models.RobotAgent) *models.RobotAgent {
	if len(candidates) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	picked := candidates[b.next%len(candidates)]
	b.next++

	return picked
}

// LeastLoaded prefers robots without an active job.
type LeastLoaded struct{}

func (LeastLoaded) Pick(_ *models.Job, candidates []*models.RobotAgent) *models.RobotAgent {
	var best *models.RobotAgent

	for _, robot := range candidates {
		if robot.ActiveJobID == "" {
			return robot
		}

		if best == nil {
			best = robot
		}
	}

	return best
}

// CapabilityAffinity prefers the robot whose capability set is the tightest
// fit for the job, keeping broadly capable robots free.
type CapabilityAffinity struct{}

func (CapabilityAffinity) Pick(job *models.Job, candidates []*models.RobotAgent) *models.RobotAgent {
	var best *models.RobotAgent

	for _, robot := range candidates {
		if !job.Matches(robot.Capabilities) {
			continue
		}

		if best == nil || len(robot.Capabilities) < len(best.Capabilities) {
			best = robot
		}
	}

	return best
}
