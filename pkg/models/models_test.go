package models

import (
	"encoding/json"
	"sync"
	"time"

	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobMatches(t *testing.T) {
	tests := []struct {
		name     string
		required []string
		robot    []string
		want     bool
	}{
		{name: "no requirements match any robot", required: nil, robot: nil, want: true},
		{name: "exact capability set", required: []string{"browser"}, robot: []string{"browser"}, want: true},
		{name: "subset of robot capabilities", required: []string{"browser"}, robot: []string{"browser", "excel"}, want: true},
		{name: "missing capability", required: []string{"browser", "sap"}, robot: []string{"browser"}, want: false},
		{name: "robot with nothing", required: []string{"browser"}, robot: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &Job{ID: "job-1", Capabilities: tt.required}
			assert.Equal(t, tt.want, job.Matches(tt.robot))
		})
	}
}

func TestJobTerminal(t *testing.T) {
	terminal := []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusCancelled}
	for _, status := range terminal {
		assert.True(t, (&Job{Status: status}).Terminal(), "status %s should be terminal", status)
	}

	for _, status := range []JobStatus{JobStatusPending, JobStatusRunning} {
		assert.False(t, (&Job{Status: status}).Terminal(), "status %s should not be terminal", status)
	}
}

func TestWorkflowRunSerialization(t *testing.T) {
	started := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	run := &WorkflowRun{
		ID:         "run-7",
		WorkflowID: "wf-1",
		JobID:      "job-7",
		RobotID:    "robot-2",
		Status:     RunStatusCompleted,
		NodeStates: map[string]NodeState{
			"fetch":  NodeStateSucceeded,
			"branch": NodeStateSucceeded,
			"notify": NodeStateSkipped,
		},
		Results: map[string]NodeResult{
			"fetch": {NodeID: "fetch", State: NodeStateSucceeded, Output: map[string]any{"rows": float64(3)}, Attempts: 2},
		},
		Variables: map[string]any{"region": "eu"},
		StartedAt: started,
	}

	payload, err := json.Marshal(run)
	require.NoError(t, err)

	var decoded WorkflowRun

	require.NoError(t, json.Unmarshal(payload, &decoded))

	assert.Equal(t, run.ID, decoded.ID)
	assert.Equal(t, run.Status, decoded.Status)
	assert.Equal(t, run.NodeStates, decoded.NodeStates)
	assert.Equal(t, run.Results, decoded.Results)
	assert.Equal(t, run.Variables, decoded.Variables)
	assert.True(t, run.StartedAt.Equal(decoded.StartedAt))
}

func TestNodeEnabledDecodeDefault(t *testing.T) {
	var node Node

	require.NoError(t, json.Unmarshal([]byte(`{"id":"a","type":"log"}`), &node))
	assert.True(t, node.Enabled, "omitted enabled must mean enabled")

	require.NoError(t, json.Unmarshal([]byte(`{"id":"a","type":"log","enabled":false}`), &node))
	assert.False(t, node.Enabled)

	require.NoError(t, json.Unmarshal([]byte(`{"id":"a","type":"log","enabled":true}`), &node))
	assert.True(t, node.Enabled)
}

func TestScopeChainLookup(t *testing.T) {
	global := NewScope(nil, map[string]any{"env": "prod", "region": "us"})
	workflow := NewScope(global, map[string]any{"region": "eu"})
	loop := NewScope(workflow, map[string]any{"item": "a", "index": 0})

	v, ok := loop.Lookup("item")
	require.True(t, ok)
	assert.Equal(t, "a", v)

	// Inner bindings shadow outer ones.
	v, ok = loop.Lookup("region")
	require.True(t, ok)
	assert.Equal(t, "eu", v)

	// Misses in inner scopes fall through to the chain root.
	v, ok = loop.Lookup("env")
	require.True(t, ok)
	assert.Equal(t, "prod", v)

	_, ok = loop.Lookup("missing")
	assert.False(t, ok)

	// Writes land in the scope they are issued against.
	loop.Set("region", "apac")

	v, _ = workflow.Lookup("region")
	assert.Equal(t, "eu", v)
}

func TestScopeSnapshotFlattens(t *testing.T) {
	global := NewScope(nil, map[string]any{"a": 1, "b": 1})
	inner := NewScope(global, map[string]any{"b": 2, "c": 3})

	assert.Equal(t, map[string]any{"a": 1, "b": 2, "c": 3}, inner.Snapshot())
}

func TestScopeConcurrentAccess(t *testing.T) {
	scope := NewScope(nil, nil)

	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			for j := 0; j < 100; j++ {
				scope.Set("key", i)
				scope.Lookup("key")
			}
		}(i)
	}

	wg.Wait()

	_, ok := scope.Lookup("key")
	assert.True(t, ok)
}

func TestExecutionContextCancellation(t *testing.T) {
	ec := NewExecutionContext("run-1", "wf-1", nil, nil)

	assert.False(t, ec.Cancelled())

	ec.Cancel()

	assert.True(t, ec.Cancelled())
}

func TestExecutionContextNodeStates(t *testing.T) {
	ec := NewExecutionContext("run-1", "wf-1", nil, nil)

	assert.Equal(t, NodeStatePending, ec.NodeState("fetch"))

	ec.SetNodeState("fetch", NodeStateRunning)
	ec.SetNodeState("fetch", NodeStateSucceeded)

	assert.Equal(t, NodeStateSucceeded, ec.NodeState("fetch"))

	states := ec.NodeStates()
	states["fetch"] = NodeStateFailed

	assert.Equal(t, NodeStateSucceeded, ec.NodeState("fetch"), "NodeStates must return a copy")
}

func TestParsePortID(t *testing.T) {
	nodeID, port, ok := ParsePortID("fetch:main")
	require.True(t, ok)
	assert.Equal(t, "fetch", nodeID)
	assert.Equal(t, "main", port)

	_, _, ok = ParsePortID("malformed")
	assert.False(t, ok)

	assert.Equal(t, "fetch:main", MakePortID("fetch", "main"))
}
