// Package models defines the core domain models for workflow automation:
// workflow graphs, jobs, triggers, robots, and execution state.
package models

import "time"

// ConnectionKind distinguishes execution-flow edges from data-flow edges.
type ConnectionKind string

const (
	ConnectionKindExec ConnectionKind = "exec"
	ConnectionKindData ConnectionKind = "data"
)

// Connection links an output port of one node to an input port of another.
// Port references use the Port.ID format "{node_id}:{port_name}".
type Connection struct {
	ID         string         `json:"id"`
	Kind       ConnectionKind `json:"kind"        validate:"required,oneof=exec data"`
	SourcePort string         `json:"source_port" validate:"required"`
	TargetPort string         `json:"target_port" validate:"required"`
}

// Workflow is an immutable, pre-parsed workflow definition supplied by an
// external loader. The orchestrator never reads workflow files itself.
type Workflow struct {
	ID          string           `json:"id"      validate:"required"`
	Name        string           `json:"name"    validate:"required,min=1"`
	Version     int              `json:"version" validate:"gte=0"`
	StartNodeID string           `json:"start_node_id" validate:"required"`
	Nodes       map[string]*Node `json:"nodes"       validate:"dive,required"`
	Connections []*Connection    `json:"connections" validate:"dive,required"`
	Variables   map[string]any   `json:"variables,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Node returns the node with the given ID, or nil.
func (w *Workflow) Node(id string) *Node {
	return w.Nodes[id]
}
