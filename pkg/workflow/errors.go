package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports every structural violation found during Compile.
// Compile is never partially applied: on any violation no plan is produced.
type ValidationError struct {
	WorkflowID string
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("workflow %s failed validation: %s", e.WorkflowID, strings.Join(e.Violations, "; "))
}

// NodeExecutionError wraps a node failure after its failure policy has been
// exhausted. It propagates to the enclosing try scope, or aborts the run.
type NodeExecutionError struct {
	NodeID   string
	NodeType string
	Attempts int
	Err      error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %s (%s) failed after %d attempt(s): %v", e.NodeID, e.NodeType, e.Attempts, e.Err)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Err
}

// errRunCancelled is the internal sentinel for cooperative cancellation.
var errRunCancelled = errors.New("run cancelled")

// ErrMaxIterations indicates a loop hit its fail-safe iteration ceiling.
var ErrMaxIterations = errors.New("loop reached max iterations")

// ErrCallDepthExceeded indicates too-deep subworkflow nesting.
var ErrCallDepthExceeded = errors.New("subworkflow call depth exceeded")
