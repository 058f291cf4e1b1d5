package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conveyor-automation/conveyor/pkg/models"
	"github.com/conveyor-automation/conveyor/pkg/protocol"
)

func newTestExecutor(rec *runRecorder) *Executor {
	return NewExecutor(newStepRegistry(rec), nil, nil, testLogger())
}

func compileFor(t *testing.T, executor *Executor, wf *models.Workflow) *CompiledPlan {
	t.Helper()

	plan, err := Compile(wf, executor.registry)
	require.NoError(t, err)

	return plan
}

func TestExecuteLinearRun(t *testing.T) {
	rec := newRunRecorder()
	executor := newTestExecutor(rec)
	plan := compileFor(t, executor, linearWorkflow("a", "b", "c"))

	run, err := executor.Prepare(plan, RunOptions{RunID: "run-1", RobotID: "robot-1"}).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, []string{"a", "b", "c"}, rec.visited())

	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, models.NodeStateSucceeded, run.NodeStates[id])
		assert.Equal(t, 1, run.Results[id].Attempts)
	}

	assert.True(t, run.Terminal())
	assert.False(t, run.FinishedAt.Before(run.StartedAt))
}

func TestExecuteWorkflowDecodedFromJSON(t *testing.T) {
	rec := newRunRecorder()
	executor := newTestExecutor(rec)

	doc := `{
		"id": "wf-json",
		"name": "Decoded",
		"version": 1,
		"start_node_id": "a",
		"nodes": {
			"a": {"id": "a", "type": "test:step", "exec_in": ["main"], "exec_out": ["main"]},
			"b": {"id": "b", "type": "test:step", "exec_in": ["main"], "exec_out": ["main"]}
		},
		"connections": [
			{"id": "c0", "kind": "exec", "source_port": "a:main", "target_port": "b:main"}
		]
	}`

	var wf models.Workflow

	require.NoError(t, json.Unmarshal([]byte(doc), &wf))

	plan := compileFor(t, executor, &wf)

	run, err := executor.Prepare(plan, RunOptions{}).Execute(context.Background())
	require.NoError(t, err)

	// Documents omitting "enabled" execute their nodes; only an explicit
	// "enabled": false disables one.
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, []string{"a", "b"}, rec.visited())
	assert.Equal(t, models.NodeStateSucceeded, run.NodeStates["a"])
	assert.Equal(t, models.NodeStateSucceeded, run.NodeStates["b"])
}

func TestExecuteConditionRouting(t *testing.T) {
	buildBranching := func() *models.Workflow {
		cond := controlNode("cond", models.NodeTypeCondition,
			map[string]any{"expression": "{{flag}}"}, models.PortTrue, models.PortFalse)

		return buildWorkflow("cond",
			[]*models.Node{cond, stepNode("yes", nil), stepNode("no", nil)},
			execConn("c0", "cond:true", "yes:main"),
			execConn("c1", "cond:false", "no:main"),
		)
	}

	tests := []struct {
		name        string
		flag        any
		wantRun     string
		wantSkipped string
	}{
		{name: "true takes the true branch", flag: true, wantRun: "yes", wantSkipped: "no"},
		{name: "false takes the false branch", flag: false, wantRun: "no", wantSkipped: "yes"},
		{name: "nonzero number is truthy", flag: 7, wantRun: "yes", wantSkipped: "no"},
		{name: "string false parses", flag: "false", wantRun: "no", wantSkipped: "yes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newRunRecorder()
			executor := newTestExecutor(rec)
			plan := compileFor(t, executor, buildBranching())

			run, err := executor.Prepare(plan, RunOptions{
				Variables: map[string]any{"flag": tt.flag},
			}).Execute(context.Background())
			require.NoError(t, err)

			assert.Equal(t, models.RunStatusCompleted, run.Status)
			assert.Equal(t, models.NodeStateSucceeded, run.NodeStates[tt.wantRun])
			assert.Equal(t, models.NodeStateSkipped, run.NodeStates[tt.wantSkipped])
			assert.Equal(t, 0, rec.count(tt.wantSkipped))
		})
	}
}

func TestExecuteConditionSharedTailNotSkipped(t *testing.T) {
	rec := newRunRecorder()
	executor := newTestExecutor(rec)

	cond := controlNode("cond", models.NodeTypeCondition,
		map[string]any{"expression": "{{flag}}"}, models.PortTrue, models.PortFalse)

	wf := buildWorkflow("cond",
		[]*models.Node{cond, stepNode("yes", nil), stepNode("no", nil), stepNode("after", nil)},
		execConn("c0", "cond:true", "yes:main"),
		execConn("c1", "cond:false", "no:main"),
		execConn("c2", "yes:main", "after:main"),
		execConn("c3", "no:main", "after:main"),
	)

	plan := compileFor(t, executor, wf)

	run, err := executor.Prepare(plan, RunOptions{
		Variables: map[string]any{"flag": true},
	}).Execute(context.Background())
	require.NoError(t, err)

	// "after" sits on both branches and must execute, not be skipped.
	assert.Equal(t, models.NodeStateSucceeded, run.NodeStates["after"])
	assert.Equal(t, models.NodeStateSkipped, run.NodeStates["no"])
}

func TestExecuteLoopOverItems(t *testing.T) {
	rec := newRunRecorder()
	executor := newTestExecutor(rec)

	loop := controlNode("loop", models.NodeTypeLoop,
		map[string]any{"items": "{{fruits}}"}, models.PortLoopBody, models.PortLoopDone)

	wf := buildWorkflow("loop",
		[]*models.Node{loop, stepNode("body", map[string]any{"value": "{{item}}"}), stepNode("after", nil)},
		execConn("c0", "loop:body", "body:main"),
		execConn("c1", "loop:done", "after:main"),
	)

	plan := compileFor(t, executor, wf)

	run, err := executor.Prepare(plan, RunOptions{
		Variables: map[string]any{"fruits": []any{"apple", "banana", "cherry"}},
	}).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 3, rec.count("body"))
	assert.Equal(t, 1, rec.count("after"))

	// Last iteration's binding is what the final dispatch saw.
	result := run.Results["body"].Output.(map[string]any)
	assert.Equal(t, "cherry", result["value"])
}

func TestExecuteLoopFixedCount(t *testing.T) {
	rec := newRunRecorder()
	executor := newTestExecutor(rec)

	loop := controlNode("loop", models.NodeTypeLoop,
		map[string]any{"iterations": 4}, models.PortLoopBody, models.PortLoopDone)

	wf := buildWorkflow("loop",
		[]*models.Node{loop, stepNode("body", nil)},
		execConn("c0", "loop:body", "body:main"),
	)

	plan := compileFor(t, executor, wf)

	run, err := executor.Prepare(plan, RunOptions{}).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 4, rec.count("body"))
}

func TestExecuteLoopHitsIterationCeiling(t *testing.T) {
	rec := newRunRecorder()
	executor := newTestExecutor(rec)

	loop := controlNode("loop", models.NodeTypeLoop,
		map[string]any{"expression": "true", "max_iterations": 5}, models.PortLoopBody, models.PortLoopDone)

	wf := buildWorkflow("loop",
		[]*models.Node{loop, stepNode("body", nil)},
		execConn("c0", "loop:body", "body:main"),
	)

	plan := compileFor(t, executor, wf)

	run, err := executor.Prepare(plan, RunOptions{}).Execute(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, ErrMaxIterations)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, models.NodeStateFailed, run.NodeStates["loop"])
	assert.Equal(t, 5, rec.count("body"))
}

func TestExecuteRetryPolicyRecovers(t *testing.T) {
	rec := newRunRecorder()
	executor := newTestExecutor(rec)

	flaky := stepNode("flaky", map[string]any{"fail_times": 2})
	flaky.OnError = models.FailurePolicy{Mode: models.FailureModeRetry, MaxRetries: 3, BackoffMs: 1}

	plan := compileFor(t, executor, buildWorkflow("flaky", []*models.Node{flaky}))

	run, err := executor.Prepare(plan, RunOptions{}).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 3, rec.count("flaky"))
	assert.Equal(t, 3, run.Results["flaky"].Attempts)
}

func TestExecuteRetryPolicyExhausted(t *testing.T) {
	rec := newRunRecorder()
	executor := newTestExecutor(rec)

	broken := stepNode("broken", map[string]any{"fail": true})
	broken.OnError = models.FailurePolicy{Mode: models.FailureModeRetry, MaxRetries: 2, BackoffMs: 1}

	plan := compileFor(t, executor, buildWorkflow("broken", []*models.Node{broken}))

	run, err := executor.Prepare(plan, RunOptions{}).Execute(context.Background())
	require.Error(t, err)

	var nodeErr *NodeExecutionError

	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "broken", nodeErr.NodeID)
	assert.Equal(t, 3, nodeErr.Attempts)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, 3, rec.count("broken"))
}

func TestExecuteContinuePolicyKeepsGoing(t *testing.T) {
	rec := newRunRecorder()
	executor := newTestExecutor(rec)

	broken := stepNode("broken", map[string]any{"fail": true})
	broken.OnError = models.FailurePolicy{Mode: models.FailureModeContinue}

	wf := buildWorkflow("broken",
		[]*models.Node{broken, stepNode("after", nil)},
		execConn("c0", "broken:main", "after:main"),
	)

	plan := compileFor(t, executor, wf)

	run, err := executor.Prepare(plan, RunOptions{}).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, models.NodeStateFailed, run.NodeStates["broken"])
	assert.Equal(t, models.NodeStateSucceeded, run.NodeStates["after"])
	assert.Equal(t, 1, rec.count("after"))
}

func TestExecuteFailFastAbortsRun(t *testing.T) {
	rec := newRunRecorder()
	executor := newTestExecutor(rec)

	wf := buildWorkflow("broken",
		[]*models.Node{stepNode("broken", map[string]any{"fail": true}), stepNode("after", nil)},
		execConn("c0", "broken:main", "after:main"),
	)

	plan := compileFor(t, executor, wf)

	run, err := executor.Prepare(plan, RunOptions{}).Execute(context.Background())
	require.Error(t, err)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, 0, rec.count("after"))
	assert.Contains(t, run.Error, "broken")
}

func TestExecuteTryScopeRoutesToCatch(t *testing.T) {
	rec := newRunRecorder()
	executor := newTestExecutor(rec)

	try := controlNode("try", models.NodeTypeTryScope, nil, models.PortScopeBody, models.PortCatch, models.PortLoopDone)
	try.CatchRef = "handler"

	handler := stepNode("handler", map[string]any{"value": "{{error.message}}"})

	wf := buildWorkflow("try",
		[]*models.Node{
			try,
			stepNode("risky", map[string]any{"fail": true}),
			handler,
			stepNode("after", nil),
		},
		execConn("c0", "try:try", "risky:main"),
		execConn("c1", "try:catch", "handler:main"),
		execConn("c2", "try:done", "after:main"),
	)

	plan := compileFor(t, executor, wf)

	run, err := executor.Prepare(plan, RunOptions{}).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, models.NodeStateFailed, run.NodeStates["risky"])
	assert.Equal(t, models.NodeStateSucceeded, run.NodeStates["try"])
	assert.Equal(t, 1, rec.count("handler"))
	assert.Equal(t, 1, rec.count("after"))

	// The catch scope exposes the failure to the handler.
	result := run.Results["handler"].Output.(map[string]any)
	assert.Equal(t, "step failed", result["value"])
}

func TestExecuteTryScopeSuccessSkipsCatch(t *testing.T) {
	rec := newRunRecorder()
	executor := newTestExecutor(rec)

	try := controlNode("try", models.NodeTypeTryScope, nil, models.PortScopeBody, models.PortCatch, models.PortLoopDone)
	try.CatchRef = "handler"

	wf := buildWorkflow("try",
		[]*models.Node{try, stepNode("safe", nil), stepNode("handler", nil), stepNode("after", nil)},
		execConn("c0", "try:try", "safe:main"),
		execConn("c1", "try:catch", "handler:main"),
		execConn("c2", "try:done", "after:main"),
	)

	plan := compileFor(t, executor, wf)

	run, err := executor.Prepare(plan, RunOptions{}).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 0, rec.count("handler"))
	assert.Equal(t, 1, rec.count("safe"))
	assert.Equal(t, 1, rec.count("after"))
}

func TestExecuteParallelJoinWaitAll(t *testing.T) {
	rec := newRunRecorder()
	executor := newTestExecutor(rec)

	join := controlNode("join", models.NodeTypeJoin, map[string]any{"policy": "wait_all"}, models.PortMain)

	wf := buildWorkflow("fan",
		[]*models.Node{stepNode("fan", nil), stepNode("left", nil), stepNode("right", nil), join, stepNode("after", nil)},
		execConn("c0", "fan:main", "left:main"),
		execConn("c1", "fan:main", "right:main"),
		execConn("c2", "left:main", "join:main"),
		execConn("c3", "right:main", "join:main"),
		execConn("c4", "join:main", "after:main"),
	)

	plan := compileFor(t, executor, wf)

	run, err := executor.Prepare(plan, RunOptions{}).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 1, rec.count("left"))
	assert.Equal(t, 1, rec.count("right"))
	assert.Equal(t, 1, rec.count("after"), "join must release downstream exactly once")
}

func TestExecuteJoinReleasedWhenBranchSkipped(t *testing.T) {
	rec := newRunRecorder()
	executor := newTestExecutor(rec)

	cond := controlNode("cond", models.NodeTypeCondition,
		map[string]any{"expression": "{{flag}}"}, models.PortTrue, models.PortFalse)
	join := controlNode("join", models.NodeTypeJoin, map[string]any{"policy": "wait_all"}, models.PortMain)

	wf := buildWorkflow("cond",
		[]*models.Node{cond, stepNode("yes", nil), stepNode("no", nil), join, stepNode("tail", nil)},
		execConn("c0", "cond:true", "yes:main"),
		execConn("c1", "cond:false", "no:main"),
		execConn("c2", "yes:main", "join:main"),
		execConn("c3", "no:main", "join:main"),
		execConn("c4", "join:main", "tail:main"),
	)

	plan := compileFor(t, executor, wf)

	run, err := executor.Prepare(plan, RunOptions{
		Variables: map[string]any{"flag": true},
	}).Execute(context.Background())
	require.NoError(t, err)

	// The skipped branch can never arrive; the join must not wait for it.
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, models.NodeStateSkipped, run.NodeStates["no"])
	assert.Equal(t, models.NodeStateSucceeded, run.NodeStates["join"])
	assert.Equal(t, models.NodeStateSucceeded, run.NodeStates["tail"])
	assert.Equal(t, 1, rec.count("yes"))
	assert.Equal(t, 1, rec.count("tail"))
}

func TestExecuteJoinSkippedWhenAllBranchesSkipped(t *testing.T) {
	rec := newRunRecorder()
	executor := newTestExecutor(rec)

	// Both feeders of the inner join hang off the same unchosen branch, so
	// the join and its tail are skipped with it.
	cond := controlNode("cond", models.NodeTypeCondition,
		map[string]any{"expression": "{{flag}}"}, models.PortTrue, models.PortFalse)
	join := controlNode("join", models.NodeTypeJoin, map[string]any{"policy": "wait_all"}, models.PortMain)

	wf := buildWorkflow("cond",
		[]*models.Node{cond, stepNode("yes", nil), stepNode("fan", nil), stepNode("l", nil), stepNode("r", nil), join, stepNode("tail", nil)},
		execConn("c0", "cond:true", "yes:main"),
		execConn("c1", "cond:false", "fan:main"),
		execConn("c2", "fan:main", "l:main"),
		execConn("c3", "fan:main", "r:main"),
		execConn("c4", "l:main", "join:main"),
		execConn("c5", "r:main", "join:main"),
		execConn("c6", "join:main", "tail:main"),
	)

	plan := compileFor(t, executor, wf)

	run, err := executor.Prepare(plan, RunOptions{
		Variables: map[string]any{"flag": true},
	}).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, models.NodeStateSkipped, run.NodeStates["join"])
	assert.Equal(t, models.NodeStateSkipped, run.NodeStates["tail"])
	assert.Equal(t, 0, rec.count("tail"))
}

func TestExecuteParallelJoinFirstWins(t *testing.T) {
	rec := newRunRecorder()
	executor := newTestExecutor(rec)

	join := controlNode("join", models.NodeTypeJoin, map[string]any{"policy": "first_wins"}, models.PortMain)

	wf := buildWorkflow("fan",
		[]*models.Node{
			stepNode("fan", nil),
			stepNode("fast", nil),
			stepNode("slow", map[string]any{"sleep_ms": 30}),
			join,
			stepNode("after", nil),
		},
		execConn("c0", "fan:main", "fast:main"),
		execConn("c1", "fan:main", "slow:main"),
		execConn("c2", "fast:main", "join:main"),
		execConn("c3", "slow:main", "join:main"),
		execConn("c4", "join:main", "after:main"),
	)

	plan := compileFor(t, executor, wf)

	run, err := executor.Prepare(plan, RunOptions{}).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 1, rec.count("after"), "only the first arrival proceeds")
}

func TestExecuteParallelBranchFailureWinsOverSuccess(t *testing.T) {
	rec := newRunRecorder()
	executor := newTestExecutor(rec)

	wf := buildWorkflow("fan",
		[]*models.Node{
			stepNode("fan", nil),
			stepNode("ok", nil),
			stepNode("bad", map[string]any{"fail": true}),
		},
		execConn("c0", "fan:main", "ok:main"),
		execConn("c1", "fan:main", "bad:main"),
	)

	plan := compileFor(t, executor, wf)

	run, err := executor.Prepare(plan, RunOptions{}).Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
}

func TestExecuteCancellationAtNodeBoundary(t *testing.T) {
	rec := newRunRecorder()
	executor := newTestExecutor(rec)

	wf := buildWorkflow("slow",
		[]*models.Node{stepNode("slow", map[string]any{"sleep_ms": 50}), stepNode("after", nil)},
		execConn("c0", "slow:main", "after:main"),
	)

	plan := compileFor(t, executor, wf)
	run := executor.Prepare(plan, RunOptions{})

	go func() {
		time.Sleep(10 * time.Millisecond)
		run.Cancel()
	}()

	result, err := run.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCancelled, result.Status)
	assert.Equal(t, 0, rec.count("after"), "cancellation must stop the walk at the next node boundary")
}

func TestExecuteContextCancellation(t *testing.T) {
	rec := newRunRecorder()
	executor := newTestExecutor(rec)

	wf := buildWorkflow("slow",
		[]*models.Node{stepNode("slow", map[string]any{"sleep_ms": 200}), stepNode("after", nil)},
		execConn("c0", "slow:main", "after:main"),
	)

	plan := compileFor(t, executor, wf)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result, err := executor.Prepare(plan, RunOptions{}).Execute(ctx)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCancelled, result.Status)
	assert.Equal(t, 0, rec.count("after"))
}

func TestExecuteTemplateResolution(t *testing.T) {
	rec := newRunRecorder()
	executor := newTestExecutor(rec)

	wf := buildWorkflow("greet",
		[]*models.Node{stepNode("greet", map[string]any{"value": "hello {{name}}"})},
	)

	plan := compileFor(t, executor, wf)

	run, err := executor.Prepare(plan, RunOptions{
		Variables: map[string]any{"name": "world"},
	}).Execute(context.Background())
	require.NoError(t, err)

	result := run.Results["greet"].Output.(map[string]any)
	assert.Equal(t, "hello world", result["value"])
}

func TestExecuteCredentialResolution(t *testing.T) {
	rec := newRunRecorder()
	executor := newTestExecutor(rec)

	wf := buildWorkflow("call",
		[]*models.Node{stepNode("call", map[string]any{"value": "{{credential:api_key}}"})},
	)

	plan := compileFor(t, executor, wf)

	resolver := protocol.CredentialResolverFunc(func(_ context.Context, alias string) (string, error) {
		if alias != "api_key" {
			return "", fmt.Errorf("unknown credential alias %q", alias)
		}

		return "s3cret", nil
	})

	run, err := executor.Prepare(plan, RunOptions{Credentials: resolver}).Execute(context.Background())
	require.NoError(t, err)

	result := run.Results["call"].Output.(map[string]any)
	assert.Equal(t, "s3cret", result["value"])
}

func TestExecuteCredentialWithoutResolverFails(t *testing.T) {
	rec := newRunRecorder()
	executor := newTestExecutor(rec)

	wf := buildWorkflow("call",
		[]*models.Node{stepNode("call", map[string]any{"value": "{{credential:api_key}}"})},
	)

	plan := compileFor(t, executor, wf)

	run, err := executor.Prepare(plan, RunOptions{}).Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Contains(t, err.Error(), "credential")
}

func TestExecuteDataConnectionsFlow(t *testing.T) {
	rec := newRunRecorder()
	executor := newTestExecutor(rec)

	source := stepNode("source", map[string]any{"value": 42})
	source.DataOut = []models.PortDecl{{Name: "value", DataType: "any"}}

	sink := stepNode("sink", nil)
	sink.DataIn = []models.PortDecl{{Name: "input", DataType: "any"}}

	wf := buildWorkflow("source",
		[]*models.Node{source, sink},
		execConn("c0", "source:main", "sink:main"),
		dataConn("d0", "source:value", "sink:input"),
	)

	plan := compileFor(t, executor, wf)

	run, err := executor.Prepare(plan, RunOptions{}).Execute(context.Background())
	require.NoError(t, err)

	// The source output is a map, so the named port selects its key.
	sinkOutput := run.Results["sink"].Output.(map[string]any)
	data := sinkOutput["data"].(map[string]any)
	assert.Equal(t, 42, data["input"])
}

func TestExecuteSubworkflowCall(t *testing.T) {
	rec := newRunRecorder()
	executor := newTestExecutor(rec)

	child := linearWorkflow("inner-a", "inner-b")
	child.ID = "wf-child"

	executor.WithSubworkflowResolver(func(_ context.Context, workflowID string) (*models.Workflow, error) {
		if workflowID != "wf-child" {
			return nil, fmt.Errorf("workflow %q not found", workflowID)
		}

		return child, nil
	})

	call := controlNode("call", models.NodeTypeSubworkflow, map[string]any{"workflow_id": "wf-child"}, models.PortMain)

	wf := buildWorkflow("call",
		[]*models.Node{call, stepNode("after", nil)},
		execConn("c0", "call:main", "after:main"),
	)

	plan := compileFor(t, executor, wf)

	run, err := executor.Prepare(plan, RunOptions{}).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, []string{"inner-a", "inner-b", "after"}, rec.visited())
	assert.Equal(t, models.NodeStateSucceeded, run.NodeStates["call"])
}

func TestExecuteDisabledNodeSkipped(t *testing.T) {
	rec := newRunRecorder()
	executor := newTestExecutor(rec)

	disabled := stepNode("disabled", nil)
	disabled.Enabled = false

	wf := buildWorkflow("a",
		[]*models.Node{stepNode("a", nil), disabled, stepNode("c", nil)},
		execConn("c0", "a:main", "disabled:main"),
		execConn("c1", "disabled:main", "c:main"),
	)

	plan := compileFor(t, executor, wf)

	run, err := executor.Prepare(plan, RunOptions{}).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, models.NodeStateSkipped, run.NodeStates["disabled"])
	assert.Equal(t, 0, rec.count("disabled"))
	assert.Equal(t, 1, rec.count("c"))
}
