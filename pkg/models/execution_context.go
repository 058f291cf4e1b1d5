package models

import (
	"sync"
	"sync/atomic"
)

// Scope is one level of the nested variable chain. Lookups walk from the
// innermost scope outward (loop-local < workflow < global); writes land in
// the scope they are issued against.
type Scope struct {
	parent *Scope

	mu     sync.RWMutex
	values map[string]any
}

// NewScope creates a scope layered on top of parent. A nil parent makes a
// root scope.
func NewScope(parent *Scope, seed map[string]any) *Scope {
	values := make(map[string]any, len(seed))
	for k, v := range seed {
		values[k] = v
	}

	return &Scope{parent: parent, values: values}
}

// Lookup resolves a name against the scope chain.
func (s *Scope) Lookup(name string) (any, bool) {
	for scope := s; scope != nil; scope = scope.parent {
		scope.mu.RLock()
		v, ok := scope.values[name]
		scope.mu.RUnlock()

		if ok {
			return v, true
		}
	}

	return nil, false
}

// Set binds a name in this scope, shadowing any outer binding.
func (s *Scope) Set(name string, value any) {
	s.mu.Lock()
	s.values[name] = value
	s.mu.Unlock()
}

// Snapshot flattens the chain into a single map, inner bindings winning.
func (s *Scope) Snapshot() map[string]any {
	var chain []*Scope
	for scope := s; scope != nil; scope = scope.parent {
		chain = append(chain, scope)
	}

	flat := make(map[string]any)

	for i := len(chain) - 1; i >= 0; i-- {
		chain[i].mu.RLock()
		for k, v := range chain[i].values {
			flat[k] = v
		}
		chain[i].mu.RUnlock()
	}

	return flat
}

// CallFrame records one level of nested subworkflow invocation.
type CallFrame struct {
	WorkflowID string `json:"workflow_id"`
	NodeID     string `json:"node_id"`
}

// ExecutionContext is the per-run mutable state. It is exclusively owned by
// the robot process executing the run and is never shared across processes.
type ExecutionContext struct {
	RunID      string
	WorkflowID string
	Scope      *Scope
	CallStack  []CallFrame

	mu         sync.RWMutex
	nodeStates map[string]NodeState
	outputs    map[string]any

	cancelled atomic.Bool
}

// NewExecutionContext creates the run-private state with a workflow scope
// layered over a global scope.
func NewExecutionContext(runID, workflowID string, global, initial map[string]any) *ExecutionContext {
	root := NewScope(nil, global)

	return &ExecutionContext{
		RunID:      runID,
		WorkflowID: workflowID,
		Scope:      NewScope(root, initial),
		nodeStates: make(map[string]NodeState),
		outputs:    make(map[string]any),
	}
}

// NodeState returns the recorded state for a node, defaulting to pending.
func (ec *ExecutionContext) NodeState(nodeID string) NodeState {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	if state, ok := ec.nodeStates[nodeID]; ok {
		return state
	}

	return NodeStatePending
}

// SetNodeState records the state for a node.
func (ec *ExecutionContext) SetNodeState(nodeID string, state NodeState) {
	ec.mu.Lock()
	ec.nodeStates[nodeID] = state
	ec.mu.Unlock()
}

// NodeStates copies the recorded node states.
func (ec *ExecutionContext) NodeStates() map[string]NodeState {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	states := make(map[string]NodeState, len(ec.nodeStates))
	for k, v := range ec.nodeStates {
		states[k] = v
	}

	return states
}

// SetOutput stores a node's output for downstream data connections.
func (ec *ExecutionContext) SetOutput(nodeID string, output any) {
	ec.mu.Lock()
	ec.outputs[nodeID] = output
	ec.mu.Unlock()
}

// Output returns a node's stored output.
func (ec *ExecutionContext) Output(nodeID string) (any, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	v, ok := ec.outputs[nodeID]

	return v, ok
}

// Cancel requests cooperative cancellation, observed at node boundaries.
func (ec *ExecutionContext) Cancel() {
	ec.cancelled.Store(true)
}

// Cancelled reports whether cancellation has been requested.
func (ec *ExecutionContext) Cancelled() bool {
	return ec.cancelled.Load()
}
