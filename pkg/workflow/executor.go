package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conveyor-automation/conveyor/pkg/eventbus"
	"github.com/conveyor-automation/conveyor/pkg/events"
	"github.com/conveyor-automation/conveyor/pkg/metrics"
	"github.com/conveyor-automation/conveyor/pkg/models"
	"github.com/conveyor-automation/conveyor/pkg/protocol"
	"github.com/conveyor-automation/conveyor/pkg/registry"
	"github.com/conveyor-automation/conveyor/pkg/template"
)

// DefaultMaxLoopIterations is the fail-safe ceiling applied when a loop node
// does not configure its own.
const DefaultMaxLoopIterations = 1000

// DefaultMaxCallDepth bounds nested subworkflow invocation.
const DefaultMaxCallDepth = 16

const credentialTokenPrefix = "credential:"

// SubworkflowResolver fetches a workflow definition for a subworkflow node.
type SubworkflowResolver func(ctx context.Context, workflowID string) (*models.Workflow, error)

// Executor drives node-by-node execution of compiled plans inside a single
// robot process.
type Executor struct {
	registry     *registry.Registry
	eventBus     eventbus.EventBus
	metrics      *metrics.Metrics
	logger       *slog.Logger
	subworkflows SubworkflowResolver
	maxCallDepth int
}

func NewExecutor(reg *registry.Registry, bus eventbus.EventBus, m *metrics.Metrics, logger *slog.Logger) *Executor {
	return &Executor{
		registry:     reg,
		eventBus:     bus,
		metrics:      m,
		logger:       logger.With("module", "workflow_executor"),
		maxCallDepth: DefaultMaxCallDepth,
	}
}

// WithSubworkflowResolver enables control:subworkflow nodes.
func (e *Executor) WithSubworkflowResolver(resolver SubworkflowResolver) *Executor {
	e.subworkflows = resolver

	return e
}

// RunOptions identify and parameterize one run.
type RunOptions struct {
	RunID       string
	JobID       string
	RobotID     string
	Variables   map[string]any
	Credentials protocol.CredentialResolver
}

// Run is one in-flight execution. Cancel may be called from any goroutine;
// it takes effect cooperatively at the next node boundary.
type Run struct {
	executor *Executor
	plan     *CompiledPlan
	opts     RunOptions
	ec       *models.ExecutionContext
	logger   *slog.Logger

	joinMu sync.Mutex
	joins  map[string]*joinState

	resultsMu sync.Mutex
	results   map[string]models.NodeResult
}

type joinState struct {
	expected  int
	arrived   int
	skipped   int
	proceeded bool
}

// Prepare creates the run state for a plan. The execution context is owned
// exclusively by this process and destroyed when the run terminates.
func (e *Executor) Prepare(plan *CompiledPlan, opts RunOptions) *Run {
	if opts.RunID == "" {
		opts.RunID = "run-" + uuid.New().String()[:8]
	}

	ec := models.NewExecutionContext(opts.RunID, plan.Workflow.ID, plan.Workflow.Variables, opts.Variables)

	return &Run{
		executor: e,
		plan:     plan,
		opts:     opts,
		ec:       ec,
		logger: e.logger.With(
			"workflow_id", plan.Workflow.ID,
			"run_id", opts.RunID,
		),
		joins:   make(map[string]*joinState),
		results: make(map[string]models.NodeResult),
	}
}

// Cancel requests cooperative cancellation of the run.
func (r *Run) Cancel() {
	r.ec.Cancel()
}

// Execute walks the plan from the start node and returns the aggregate run
// result. The returned WorkflowRun always reflects a terminal status; the
// error mirrors Status == failed for callers that prefer error handling.
func (r *Run) Execute(ctx context.Context) (*models.WorkflowRun, error) {
	startedAt := time.Now().UTC()

	r.logger.InfoContext(ctx, "Starting workflow run")
	r.publish(ctx, events.RunStarted{
		BaseEvent: r.baseEvent(events.RunStartedEvent),
		RunID:     r.opts.RunID,
		JobID:     r.opts.JobID,
	})

	if r.executor.metrics != nil {
		r.executor.metrics.RunsStarted.Inc()
	}

	runErr := r.runFrom(ctx, r.plan.StartNodeID, r.ec.Scope, 0)

	run := &models.WorkflowRun{
		ID:         r.opts.RunID,
		WorkflowID: r.plan.Workflow.ID,
		JobID:      r.opts.JobID,
		RobotID:    r.opts.RobotID,
		NodeStates: r.ec.NodeStates(),
		Results:    r.nodeResults(),
		Variables:  r.ec.Scope.Snapshot(),
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
	}

	duration := run.FinishedAt.Sub(startedAt)

	switch {
	case errors.Is(runErr, errRunCancelled):
		run.Status = models.RunStatusCancelled
		r.logger.InfoContext(ctx, "Workflow run cancelled", "duration", duration)
		r.publish(ctx, events.RunCancelled{
			BaseEvent: r.baseEvent(events.RunCancelledEvent),
			RunID:     r.opts.RunID,
		})

		return run, nil
	case runErr != nil:
		run.Status = models.RunStatusFailed
		run.Error = runErr.Error()
		r.logger.ErrorContext(ctx, "Workflow run failed", "error", runErr, "duration", duration)

		if r.executor.metrics != nil {
			r.executor.metrics.RunsFailed.Inc()
		}

		r.publish(ctx, events.RunFailed{
			BaseEvent: r.baseEvent(events.RunFailedEvent),
			RunID:     r.opts.RunID,
			Error:     runErr.Error(),
			Duration:  duration,
		})

		return run, runErr
	default:
		run.Status = models.RunStatusCompleted
		r.logger.InfoContext(ctx, "Workflow run completed", "duration", duration)
		r.publish(ctx, events.RunCompleted{
			BaseEvent: r.baseEvent(events.RunCompletedEvent),
			RunID:     r.opts.RunID,
			Duration:  duration,
		})

		return run, nil
	}
}

// runFrom executes nodes sequentially along exec connections starting at
// nodeID, spawning goroutines on fan-out and returning when its branch ends.
func (r *Run) runFrom(ctx context.Context, nodeID string, scope *models.Scope, depth int) error {
	for nodeID != "" {
		if err := r.checkCancelled(ctx); err != nil {
			return err
		}

		node := r.plan.Workflow.Nodes[nodeID]
		if node == nil {
			return fmt.Errorf("plan references unknown node %q", nodeID)
		}

		if !node.Enabled {
			r.ec.SetNodeState(nodeID, models.NodeStateSkipped)

			return r.followAll(ctx, node, models.PortMain, scope, depth)
		}

		switch node.Type {
		case models.NodeTypeCondition:
			return r.runCondition(ctx, node, scope, depth)
		case models.NodeTypeLoop:
			return r.runLoop(ctx, node, scope, depth)
		case models.NodeTypeJoin:
			proceed, err := r.arriveAtJoin(node)
			if err != nil {
				return err
			}

			if !proceed {
				return nil
			}

			r.ec.SetNodeState(nodeID, models.NodeStateSucceeded)

			return r.followAll(ctx, node, models.PortMain, scope, depth)
		case models.NodeTypeTryScope:
			return r.runTryScope(ctx, node, scope, depth)
		case models.NodeTypeSubworkflow:
			err := r.runSubworkflow(ctx, node, scope, depth)
			if err != nil {
				return err
			}

			return r.followAll(ctx, node, models.PortMain, scope, depth)
		default:
			err := r.executeAction(ctx, node, scope)
			if err != nil {
				return err
			}

			return r.followAll(ctx, node, models.PortMain, scope, depth)
		}
	}

	return nil
}

// followAll continues along every exec target of the port. A single target
// continues in-line; multiple targets fan out concurrently, with only
// per-branch ordering guaranteed.
func (r *Run) followAll(ctx context.Context, node *models.Node, port string, scope *models.Scope, depth int) error {
	targets := r.plan.ExecTargets(node.ID, port)

	switch len(targets) {
	case 0:
		return nil
	case 1:
		return r.runFrom(ctx, targets[0].NodeID, scope, depth)
	}

	var wg sync.WaitGroup

	errs := make([]error, len(targets))

	for i, target := range targets {
		wg.Add(1)

		go func(i int, target Target) {
			defer wg.Done()

			errs[i] = r.runFrom(ctx, target.NodeID, scope, depth)
		}(i, target)
	}

	wg.Wait()

	// Cancellation outranks branch failures in the aggregate result.
	var first error

	for _, err := range errs {
		if errors.Is(err, errRunCancelled) {
			return err
		}

		if err != nil && first == nil {
			first = err
		}
	}

	return first
}

func (r *Run) runCondition(ctx context.Context, node *models.Node, scope *models.Scope, depth int) error {
	value, err := template.ResolveValue(node.ConfigString("expression", ""), r.lookup(ctx, scope))
	if err != nil {
		r.ec.SetNodeState(node.ID, models.NodeStateFailed)

		return &NodeExecutionError{NodeID: node.ID, NodeType: node.Type, Attempts: 1, Err: err}
	}

	truthy, err := truthiness(value)
	if err != nil {
		r.ec.SetNodeState(node.ID, models.NodeStateFailed)

		return &NodeExecutionError{NodeID: node.ID, NodeType: node.Type, Attempts: 1, Err: err}
	}

	chosen, unchosen := models.PortTrue, models.PortFalse
	if !truthy {
		chosen, unchosen = models.PortFalse, models.PortTrue
	}

	r.ec.SetNodeState(node.ID, models.NodeStateSucceeded)

	err = r.skipBranch(ctx, node, chosen, unchosen, scope, depth)
	if err != nil {
		return err
	}

	return r.followAll(ctx, node, chosen, scope, depth)
}

// skipBranch marks nodes exclusively reachable through the unchosen port as
// skipped, then releases any joins those nodes feed.
func (r *Run) skipBranch(ctx context.Context, node *models.Node, chosen, unchosen string, scope *models.Scope, depth int) error {
	chosenSet := r.plan.BranchNodes(node.ID, chosen)
	skipSet := make(map[string]struct{})

	for skipped := range r.plan.BranchNodes(node.ID, unchosen) {
		if _, shared := chosenSet[skipped]; shared {
			continue
		}

		skipSet[skipped] = struct{}{}

		if r.ec.NodeState(skipped) == models.NodeStatePending {
			r.ec.SetNodeState(skipped, models.NodeStateSkipped)
		}
	}

	return r.releaseJoins(ctx, skipSet, scope, depth)
}

// releaseJoins delivers the arrivals that skipped nodes can no longer make.
// A wait_all join fed by a skipped branch would otherwise wait forever for
// an edge that cannot fire, leaving its tail unexecuted.
func (r *Run) releaseJoins(ctx context.Context, skipSet map[string]struct{}, scope *models.Scope, depth int) error {
	for nodeID := range skipSet {
		source := r.plan.Workflow.Nodes[nodeID]
		if source == nil {
			continue
		}

		for _, port := range source.ExecOut {
			for _, target := range r.plan.ExecTargets(nodeID, port) {
				if _, alsoSkipped := skipSet[target.NodeID]; alsoSkipped {
					continue
				}

				join := r.plan.Workflow.Nodes[target.NodeID]
				if join == nil || join.Type != models.NodeTypeJoin {
					continue
				}

				proceed, allSkipped := r.skipArriveAtJoin(join)

				if allSkipped {
					r.ec.SetNodeState(join.ID, models.NodeStateSkipped)

					err := r.releaseJoins(ctx, map[string]struct{}{join.ID: {}}, scope, depth)
					if err != nil {
						return err
					}

					continue
				}

				if proceed {
					r.ec.SetNodeState(join.ID, models.NodeStateSucceeded)

					err := r.followAll(ctx, join, models.PortMain, scope, depth)
					if err != nil {
						return err
					}
				}
			}
		}
	}

	return nil
}

// runLoop re-enters the compiled body subgraph under an explicit iteration
// counter; the graph itself stays acyclic.
func (r *Run) runLoop(ctx context.Context, node *models.Node, scope *models.Scope, depth int) error {
	maxIterations := node.ConfigInt("max_iterations", DefaultMaxLoopIterations)
	fixedCount := node.ConfigInt("iterations", -1)
	condition := node.ConfigString("expression", "")

	var items []any

	if itemsExpr := node.ConfigString("items", ""); itemsExpr != "" {
		resolved, err := template.ResolveValue(itemsExpr, r.lookup(ctx, scope))
		if err != nil {
			r.ec.SetNodeState(node.ID, models.NodeStateFailed)

			return &NodeExecutionError{NodeID: node.ID, NodeType: node.Type, Attempts: 1, Err: err}
		}

		list, ok := resolved.([]any)
		if !ok {
			r.ec.SetNodeState(node.ID, models.NodeStateFailed)

			return &NodeExecutionError{
				NodeID: node.ID, NodeType: node.Type, Attempts: 1,
				Err: fmt.Errorf("loop items resolved to %T, expected a list", resolved),
			}
		}

		items = list
	}

	r.ec.SetNodeState(node.ID, models.NodeStateRunning)

	for iteration := 0; ; iteration++ {
		if err := r.checkCancelled(ctx); err != nil {
			return err
		}

		if iteration >= maxIterations {
			r.ec.SetNodeState(node.ID, models.NodeStateFailed)

			return &NodeExecutionError{
				NodeID: node.ID, NodeType: node.Type, Attempts: iteration,
				Err: fmt.Errorf("%w (%d)", ErrMaxIterations, maxIterations),
			}
		}

		if items != nil && iteration >= len(items) {
			break
		}

		if fixedCount >= 0 && iteration >= fixedCount {
			break
		}

		// Loop-local scope: shadows outer bindings per iteration.
		iterScope := models.NewScope(scope, map[string]any{"index": iteration})
		if items != nil {
			iterScope.Set("item", items[iteration])
		}

		if condition != "" {
			value, err := template.ResolveValue(condition, r.lookup(ctx, iterScope))
			if err != nil {
				r.ec.SetNodeState(node.ID, models.NodeStateFailed)

				return &NodeExecutionError{NodeID: node.ID, NodeType: node.Type, Attempts: iteration, Err: err}
			}

			proceed, err := truthiness(value)
			if err != nil {
				r.ec.SetNodeState(node.ID, models.NodeStateFailed)

				return &NodeExecutionError{NodeID: node.ID, NodeType: node.Type, Attempts: iteration, Err: err}
			}

			if !proceed {
				break
			}
		}

		err := r.followAll(ctx, node, models.PortLoopBody, iterScope, depth)
		if err != nil {
			r.ec.SetNodeState(node.ID, models.NodeStateFailed)

			return err
		}
	}

	r.ec.SetNodeState(node.ID, models.NodeStateSucceeded)

	return r.followAll(ctx, node, models.PortLoopDone, scope, depth)
}

func (r *Run) arriveAtJoin(node *models.Node) (bool, error) {
	r.joinMu.Lock()
	defer r.joinMu.Unlock()

	state, ok := r.joins[node.ID]
	if !ok {
		state = &joinState{expected: r.execInCount(node.ID)}
		r.joins[node.ID] = state
	}

	state.arrived++

	switch node.ConfigString("policy", "wait_all") {
	case "first_wins":
		if state.proceeded {
			return false, nil
		}

		state.proceeded = true

		return true, nil
	default: // wait_all
		if state.arrived+state.skipped < state.expected {
			return false, nil
		}

		if state.proceeded {
			return false, nil
		}

		state.proceeded = true

		return true, nil
	}
}

// skipArriveAtJoin records an inbound edge that can never fire because its
// feeding branch was skipped. It reports whether the join is released now
// (all live arrivals are in) and whether every inbound edge was skipped.
func (r *Run) skipArriveAtJoin(node *models.Node) (proceed, allSkipped bool) {
	r.joinMu.Lock()
	defer r.joinMu.Unlock()

	state, ok := r.joins[node.ID]
	if !ok {
		state = &joinState{expected: r.execInCount(node.ID)}
		r.joins[node.ID] = state
	}

	state.skipped++

	if state.proceeded {
		return false, false
	}

	if state.skipped >= state.expected {
		state.proceeded = true

		return false, true
	}

	// first_wins still waits for a live arrival.
	if node.ConfigString("policy", "wait_all") == "first_wins" {
		return false, false
	}

	if state.arrived > 0 && state.arrived+state.skipped >= state.expected {
		state.proceeded = true

		return true, false
	}

	return false, false
}

func (r *Run) execInCount(nodeID string) int {
	count := 0

	for _, targets := range r.plan.execNext {
		for _, target := range targets {
			if target.NodeID == nodeID {
				count++
			}
		}
	}

	if count == 0 {
		return 1
	}

	return count
}

func (r *Run) runTryScope(ctx context.Context, node *models.Node, scope *models.Scope, depth int) error {
	r.ec.SetNodeState(node.ID, models.NodeStateRunning)

	tryErr := r.followAll(ctx, node, models.PortScopeBody, scope, depth)

	if tryErr != nil {
		if errors.Is(tryErr, errRunCancelled) {
			return tryErr
		}

		var nodeErr *NodeExecutionError
		if !errors.As(tryErr, &nodeErr) {
			r.ec.SetNodeState(node.ID, models.NodeStateFailed)

			return tryErr
		}

		r.logger.WarnContext(ctx, "Caught node failure in protected scope",
			"scope_id", node.ID,
			"failed_node", nodeErr.NodeID,
			"error", nodeErr.Err,
		)

		catchScope := models.NewScope(scope, map[string]any{
			"error": map[string]any{
				"node_id": nodeErr.NodeID,
				"message": nodeErr.Err.Error(),
			},
		})

		err := r.runCatch(ctx, node, catchScope, depth)
		if err != nil {
			r.ec.SetNodeState(node.ID, models.NodeStateFailed)

			return err
		}
	}

	r.ec.SetNodeState(node.ID, models.NodeStateSucceeded)

	return r.followAll(ctx, node, models.PortLoopDone, scope, depth)
}

func (r *Run) runCatch(ctx context.Context, node *models.Node, scope *models.Scope, depth int) error {
	if targets := r.plan.ExecTargets(node.ID, models.PortCatch); len(targets) > 0 {
		return r.followAll(ctx, node, models.PortCatch, scope, depth)
	}

	catchRef := node.CatchRef
	if catchRef == "" {
		catchRef = node.ConfigString("catch", "")
	}

	if catchRef == "" {
		return fmt.Errorf("try scope %q has no catch handler", node.ID)
	}

	return r.runFrom(ctx, catchRef, scope, depth)
}

// runSubworkflow invokes another workflow in-line, pushing a call frame onto
// the run's stack.
func (r *Run) runSubworkflow(ctx context.Context, node *models.Node, scope *models.Scope, depth int) error {
	if r.executor.subworkflows == nil {
		r.ec.SetNodeState(node.ID, models.NodeStateFailed)

		return &NodeExecutionError{
			NodeID: node.ID, NodeType: node.Type, Attempts: 1,
			Err: fmt.Errorf("no subworkflow resolver configured"),
		}
	}

	if depth+1 > r.executor.maxCallDepth {
		r.ec.SetNodeState(node.ID, models.NodeStateFailed)

		return &NodeExecutionError{
			NodeID: node.ID, NodeType: node.Type, Attempts: 1,
			Err: fmt.Errorf("%w (%d)", ErrCallDepthExceeded, r.executor.maxCallDepth),
		}
	}

	workflowID := node.ConfigString("workflow_id", "")

	sub, err := r.executor.subworkflows(ctx, workflowID)
	if err != nil {
		r.ec.SetNodeState(node.ID, models.NodeStateFailed)

		return &NodeExecutionError{NodeID: node.ID, NodeType: node.Type, Attempts: 1, Err: err}
	}

	subPlan, err := Compile(sub, r.executor.registry)
	if err != nil {
		r.ec.SetNodeState(node.ID, models.NodeStateFailed)

		return &NodeExecutionError{NodeID: node.ID, NodeType: node.Type, Attempts: 1, Err: err}
	}

	r.ec.CallStack = append(r.ec.CallStack, models.CallFrame{WorkflowID: workflowID, NodeID: node.ID})
	defer func() { r.ec.CallStack = r.ec.CallStack[:len(r.ec.CallStack)-1] }()

	r.ec.SetNodeState(node.ID, models.NodeStateRunning)

	subScope := models.NewScope(scope, sub.Variables)

	err = r.runFrom(ctx, subPlan.StartNodeID, subScope, depth+1)
	if err != nil {
		r.ec.SetNodeState(node.ID, models.NodeStateFailed)

		return err
	}

	r.ec.SetNodeState(node.ID, models.NodeStateSucceeded)

	return nil
}

// executeAction dispatches an action node through its resolved executable,
// applying lazy config resolution and the node's failure policy.
func (r *Run) executeAction(ctx context.Context, node *models.Node, scope *models.Scope) error {
	executable := r.plan.Executable(node.ID)
	if executable == nil {
		return fmt.Errorf("no executable resolved for node %q", node.ID)
	}

	logger := r.logger.With("node_id", node.ID, "node_type", node.Type)

	r.ec.SetNodeState(node.ID, models.NodeStateRunning)

	startedAt := time.Now().UTC()

	output, attempts, err := r.dispatchWithPolicy(ctx, node, scope, executable, logger)

	finishedAt := time.Now().UTC()
	durationMs := finishedAt.Sub(startedAt).Milliseconds()

	if err != nil {
		// A node unwound by context cancellation is a cancelled run,
		// not a failed one.
		if errors.Is(err, errRunCancelled) || ctx.Err() != nil {
			return errRunCancelled
		}

		r.ec.SetNodeState(node.ID, models.NodeStateFailed)
		r.setResult(models.NodeResult{
			NodeID: node.ID, State: models.NodeStateFailed, Error: err.Error(),
			Attempts: attempts, StartedAt: startedAt, FinishedAt: finishedAt,
		})
		r.recordNode(ctx, node.ID, models.NodeStateFailed, err.Error(), durationMs)

		if node.OnError.Mode == models.FailureModeContinue {
			logger.WarnContext(ctx, "Node failed, continuing per failure policy", "error", err, "attempts", attempts)

			return nil
		}

		return &NodeExecutionError{NodeID: node.ID, NodeType: node.Type, Attempts: attempts, Err: err}
	}

	r.ec.SetOutput(node.ID, output)
	r.ec.SetNodeState(node.ID, models.NodeStateSucceeded)
	r.setResult(models.NodeResult{
		NodeID: node.ID, State: models.NodeStateSucceeded, Output: output,
		Attempts: attempts, StartedAt: startedAt, FinishedAt: finishedAt,
	})
	r.recordNode(ctx, node.ID, models.NodeStateSucceeded, "", durationMs)

	logger.DebugContext(ctx, "Node executed", "attempts", attempts)

	return nil
}

func (r *Run) dispatchWithPolicy(
	ctx context.Context,
	node *models.Node,
	scope *models.Scope,
	executable protocol.Executable,
	logger *slog.Logger,
) (any, int, error) {
	maxAttempts := 1
	if node.OnError.Mode == models.FailureModeRetry {
		maxAttempts = node.OnError.MaxRetries + 1
	}

	backoff := time.Duration(node.OnError.BackoffMs) * time.Millisecond
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := r.checkCancelled(ctx); err != nil {
			return nil, attempt - 1, err
		}

		output, err := r.dispatchOnce(ctx, node, scope, executable, logger)
		if err == nil {
			return output, attempt, nil
		}

		lastErr = err

		if attempt < maxAttempts {
			logger.WarnContext(ctx, "Node attempt failed, backing off",
				"attempt", attempt,
				"backoff", backoff,
				"error", err,
			)

			select {
			case <-ctx.Done():
				return nil, attempt, errRunCancelled
			case <-time.After(backoff):
			}

			backoff *= 2
		}
	}

	return nil, maxAttempts, lastErr
}

func (r *Run) dispatchOnce(
	ctx context.Context,
	node *models.Node,
	scope *models.Scope,
	executable protocol.Executable,
	logger *slog.Logger,
) (any, error) {
	// Config resolution is lazy and per-dispatch: variables reflect the
	// current scope and credentials are never cached across nodes.
	config, err := template.ResolveConfig(node.Config, r.lookup(ctx, scope))
	if err != nil {
		return nil, err
	}

	input := protocol.NodeInput{
		Config: config,
		Data:   r.collectDataInputs(node.ID),
		Scope:  scope,
	}

	return executable.Execute(ctx, input, logger)
}

func (r *Run) collectDataInputs(nodeID string) map[string]any {
	edges := r.plan.DataInputs(nodeID)
	if len(edges) == 0 {
		return nil
	}

	data := make(map[string]any, len(edges))

	for _, edge := range edges {
		output, ok := r.ec.Output(edge.SourceNode)
		if !ok {
			continue
		}

		// A map output exposes named ports; anything else flows whole.
		if m, isMap := output.(map[string]any); isMap {
			if v, has := m[edge.SourcePort]; has {
				data[edge.TargetPort] = v

				continue
			}
		}

		data[edge.TargetPort] = output
	}

	return data
}

// lookup builds the template lookup for a scope: plain names resolve through
// the scope chain, credential: tokens through the injected resolver.
func (r *Run) lookup(ctx context.Context, scope *models.Scope) template.LookupFunc {
	scopeLookup := template.ScopeLookup(scope.Lookup)

	return func(name string) (any, bool, error) {
		if alias, ok := strings.CutPrefix(name, credentialTokenPrefix); ok {
			if r.opts.Credentials == nil {
				return nil, false, fmt.Errorf("no credential resolver injected")
			}

			secret, err := r.opts.Credentials.Resolve(ctx, alias)
			if err != nil {
				return nil, false, err
			}

			return secret, true, nil
		}

		return scopeLookup(name)
	}
}

func (r *Run) setResult(result models.NodeResult) {
	r.resultsMu.Lock()
	r.results[result.NodeID] = result
	r.resultsMu.Unlock()
}

func (r *Run) nodeResults() map[string]models.NodeResult {
	r.resultsMu.Lock()
	defer r.resultsMu.Unlock()

	results := make(map[string]models.NodeResult, len(r.results))
	for k, v := range r.results {
		results[k] = v
	}

	return results
}

func (r *Run) checkCancelled(ctx context.Context) error {
	if r.ec.Cancelled() || ctx.Err() != nil {
		return errRunCancelled
	}

	return nil
}

func (r *Run) recordNode(ctx context.Context, nodeID string, state models.NodeState, errMsg string, durationMs int64) {
	if r.executor.metrics != nil {
		r.executor.metrics.NodesExecuted.WithLabelValues(string(state)).Inc()
	}

	r.publish(ctx, events.NodeFinished{
		BaseEvent:  r.baseEvent(events.NodeFinishedEvent),
		RunID:      r.opts.RunID,
		NodeID:     nodeID,
		State:      state,
		Error:      errMsg,
		DurationMs: durationMs,
	})
}

func (r *Run) baseEvent(eventType events.EventType) events.BaseEvent {
	base := events.NewBaseEvent(eventType, r.plan.Workflow.ID)
	base.RobotID = r.opts.RobotID

	return base
}

func (r *Run) publish(ctx context.Context, event eventbus.Event) {
	if r.executor.eventBus == nil {
		return
	}

	err := r.executor.eventBus.Publish(ctx, r.opts.RunID, event)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to publish run event", "error", err, "event_type", event.GetType())
	}
}

// truthiness interprets a resolved expression value as a branch decision.
func truthiness(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("expression value %q is not a boolean", v)
		}

		return parsed, nil
	case int:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("expression value of type %T is not a boolean", value)
	}
}
