package models

import "encoding/json"

// Built-in control node types. The plan compiler handles these directly;
// every other type is resolved to an Executable through the node registry.
const (
	NodeTypeCondition   = "control:condition"
	NodeTypeLoop        = "control:loop"
	NodeTypeJoin        = "control:join"
	NodeTypeTryScope    = "control:try"
	NodeTypeSubworkflow = "control:subworkflow"
)

// FailureMode selects how a node failure is handled by the orchestrator.
type FailureMode string

const (
	FailureModeFailFast FailureMode = "failfast"
	FailureModeContinue FailureMode = "continue"
	FailureModeRetry    FailureMode = "retry"
)

// FailurePolicy configures per-node failure handling.
type FailurePolicy struct {
	Mode       FailureMode `json:"mode"                  validate:"omitempty,oneof=failfast continue retry"`
	MaxRetries int         `json:"max_retries,omitempty" validate:"gte=0"`
	// BackoffMs is the initial retry delay; it doubles on every attempt.
	BackoffMs int `json:"backoff_ms,omitempty" validate:"gte=0"`
}

// PortDecl declares a data port with a type tag used for connection
// compatibility checks at compile time.
type PortDecl struct {
	Name     string `json:"name"      validate:"required"`
	DataType string `json:"data_type"`
}

// Node is a typed unit of work in a workflow graph. Concrete behavior is
// resolved from the type tag at plan-compile time.
type Node struct {
	ID       string         `json:"id"   validate:"required"`
	Type     string         `json:"type" validate:"required"`
	Name     string         `json:"name"`
	Config   map[string]any `json:"config,omitempty"`
	Enabled  bool           `json:"enabled"`
	ExecIn   []string       `json:"exec_in,omitempty"`
	ExecOut  []string       `json:"exec_out,omitempty"`
	DataIn   []PortDecl     `json:"data_in,omitempty"`
	DataOut  []PortDecl     `json:"data_out,omitempty"`
	OnError  FailurePolicy  `json:"on_error"`
	CatchRef string         `json:"catch_ref,omitempty"` // catch handler node for control:try scopes
}

// UnmarshalJSON defaults Enabled to true so workflow documents only state
// the exceptional case; a node omitting "enabled" executes.
func (n *Node) UnmarshalJSON(data []byte) error {
	type nodeAlias Node

	decoded := nodeAlias{Enabled: true}

	err := json.Unmarshal(data, &decoded)
	if err != nil {
		return err
	}

	*n = Node(decoded)

	return nil
}

// NodeState is the per-node execution state within a run.
type NodeState string

const (
	NodeStatePending   NodeState = "pending"
	NodeStateRunning   NodeState = "running"
	NodeStateSucceeded NodeState = "succeeded"
	NodeStateFailed    NodeState = "failed"
	NodeStateSkipped   NodeState = "skipped"
)

// IsControl reports whether the node type is handled by the plan compiler
// rather than the node registry.
func (n *Node) IsControl() bool {
	switch n.Type {
	case NodeTypeCondition, NodeTypeLoop, NodeTypeJoin, NodeTypeTryScope, NodeTypeSubworkflow:
		return true
	}

	return false
}

// ConfigString returns a string config value, or the fallback when absent.
func (n *Node) ConfigString(key, fallback string) string {
	if v, ok := n.Config[key].(string); ok && v != "" {
		return v
	}

	return fallback
}

// ConfigInt returns an integer config value, accepting JSON float64 decoding.
func (n *Node) ConfigInt(key string, fallback int) int {
	switch v := n.Config[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}

	return fallback
}
