package workflow

import (
	"github.com/conveyor-automation/conveyor/pkg/models"
	"github.com/conveyor-automation/conveyor/pkg/protocol"
)

// Target is one downstream endpoint of a connection.
type Target struct {
	NodeID string
	Port   string
}

// DataEdge is a resolved data connection into a node's input port.
type DataEdge struct {
	SourceNode string
	SourcePort string
	TargetPort string
}

// CompiledPlan is the immutable executable form of a workflow: the original
// definition plus O(1) adjacency indexes and pre-resolved node executables.
// A plan is compiled once and may be run many times.
type CompiledPlan struct {
	Workflow    *models.Workflow
	StartNodeID string

	execNext    map[string][]Target   // source port ID -> exec targets
	dataIn      map[string][]DataEdge // node ID -> inbound data edges
	executables map[string]protocol.Executable
	reachable   map[string]struct{}

	// branchReach maps a condition node's exec-out port ID to the set of
	// nodes reachable through it, used to mark unchosen branches skipped.
	branchReach map[string]map[string]struct{}
}

// ExecTargets returns the downstream exec endpoints of an output port.
func (p *CompiledPlan) ExecTargets(nodeID, port string) []Target {
	return p.execNext[models.MakePortID(nodeID, port)]
}

// DataInputs returns the inbound data edges of a node.
func (p *CompiledPlan) DataInputs(nodeID string) []DataEdge {
	return p.dataIn[nodeID]
}

// Executable returns the pre-resolved executable for an action node.
func (p *CompiledPlan) Executable(nodeID string) protocol.Executable {
	return p.executables[nodeID]
}

// Reachable reports whether a node is reachable from the start node.
func (p *CompiledPlan) Reachable(nodeID string) bool {
	_, ok := p.reachable[nodeID]

	return ok
}

// BranchNodes returns the nodes reachable through a condition port.
func (p *CompiledPlan) BranchNodes(nodeID, port string) map[string]struct{} {
	return p.branchReach[models.MakePortID(nodeID, port)]
}
