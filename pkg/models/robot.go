package models

import "time"

// RobotStatus is the registry state of a robot agent.
type RobotStatus string

const (
	RobotStatusOffline     RobotStatus = "offline"
	RobotStatusIdle        RobotStatus = "idle"
	RobotStatusBusy        RobotStatus = "busy"
	RobotStatusError       RobotStatus = "error"
	RobotStatusMaintenance RobotStatus = "maintenance"
)

// RobotAgent is a worker process that claims and executes jobs. Robots
// self-register and are marked offline when heartbeats stop arriving.
type RobotAgent struct {
	ID            string      `json:"id"`
	Capabilities  []string    `json:"capabilities,omitempty"` // e.g. browser, desktop, os
	Status        RobotStatus `json:"status"`
	ActiveJobID   string      `json:"active_job_id,omitempty"`
	LastHeartbeat time.Time   `json:"last_heartbeat"`
	RegisteredAt  time.Time   `json:"registered_at"`
}
