package workflow

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/conveyor-automation/conveyor/pkg/models"
	"github.com/conveyor-automation/conveyor/pkg/protocol"
	"github.com/conveyor-automation/conveyor/pkg/registry"
)

// structValidate enforces the declarative field rules on Workflow and its
// nested nodes and connections before any graph checks run.
var structValidate = validator.New()

// Compile validates a workflow's structure and builds its executable plan:
// a unique reachable start node, port compatibility on every connection, no
// cycles outside declared loop back-edges, and an O(1) adjacency index. On
// any violation it returns a *ValidationError and no plan.
func Compile(wf *models.Workflow, reg *registry.Registry) (*CompiledPlan, error) {
	var violations []string

	if wf == nil {
		return nil, &ValidationError{Violations: []string{"workflow is nil"}}
	}

	err := structValidate.Struct(wf)
	if err != nil {
		var fieldErrs validator.ValidationErrors

		if errors.As(err, &fieldErrs) {
			for _, fieldErr := range fieldErrs {
				violations = append(violations, fmt.Sprintf("field %s fails %q validation", fieldErr.Namespace(), fieldErr.Tag()))
			}
		} else {
			violations = append(violations, err.Error())
		}
	}

	if len(wf.Nodes) == 0 {
		violations = append(violations, "workflow has no nodes")
	}

	start := wf.Nodes[wf.StartNodeID]
	if wf.StartNodeID == "" {
		violations = append(violations, "start node not declared")
	} else if start == nil {
		violations = append(violations, fmt.Sprintf("start node %q does not exist", wf.StartNodeID))
	}

	plan := &CompiledPlan{
		Workflow:    wf,
		StartNodeID: wf.StartNodeID,
		execNext:    make(map[string][]Target),
		dataIn:      make(map[string][]DataEdge),
		executables: make(map[string]protocol.Executable),
		reachable:   make(map[string]struct{}),
		branchReach: make(map[string]map[string]struct{}),
	}

	violations = append(violations, indexConnections(wf, plan)...)
	violations = append(violations, resolveExecutables(wf, reg, plan)...)

	if cycle := findExecCycle(wf, plan); cycle != "" {
		violations = append(violations, fmt.Sprintf("execution graph contains a cycle through node %q outside a declared loop", cycle))
	}

	if len(violations) > 0 {
		sort.Strings(violations)

		return nil, &ValidationError{WorkflowID: wf.ID, Violations: violations}
	}

	markReachable(plan, wf.StartNodeID, plan.reachable)
	indexBranches(wf, plan)

	return plan, nil
}

func indexConnections(wf *models.Workflow, plan *CompiledPlan) []string {
	var violations []string

	dataInSeen := make(map[string]string) // target data port -> connection ID

	for _, conn := range wf.Connections {
		srcNodeID, srcPort, okSrc := models.ParsePortID(conn.SourcePort)
		dstNodeID, dstPort, okDst := models.ParsePortID(conn.TargetPort)

		if !okSrc || !okDst {
			violations = append(violations, fmt.Sprintf("connection %q has a malformed port reference", conn.ID))

			continue
		}

		srcNode := wf.Nodes[srcNodeID]
		dstNode := wf.Nodes[dstNodeID]

		if srcNode == nil || dstNode == nil {
			violations = append(violations, fmt.Sprintf("connection %q references an unknown node", conn.ID))

			continue
		}

		switch conn.Kind {
		case models.ConnectionKindExec:
			if !hasString(srcNode.ExecOut, srcPort) {
				violations = append(violations, fmt.Sprintf("connection %q: node %q has no exec-out port %q", conn.ID, srcNodeID, srcPort))

				continue
			}

			// A connection back into a loop's "continue" port is the
			// declared loop back-edge; it is validated but excluded
			// from the adjacency index and the cycle check.
			if dstPort == "continue" {
				if dstNode.Type != models.NodeTypeLoop {
					violations = append(violations, fmt.Sprintf("connection %q targets 'continue' on non-loop node %q", conn.ID, dstNodeID))
				}

				continue
			}

			if !hasString(dstNode.ExecIn, dstPort) {
				violations = append(violations, fmt.Sprintf("connection %q: node %q has no exec-in port %q", conn.ID, dstNodeID, dstPort))

				continue
			}

			plan.execNext[conn.SourcePort] = append(plan.execNext[conn.SourcePort], Target{NodeID: dstNodeID, Port: dstPort})

		case models.ConnectionKindData:
			srcDecl, okOut := findPort(srcNode.DataOut, srcPort)
			dstDecl, okIn := findPort(dstNode.DataIn, dstPort)

			if !okOut {
				violations = append(violations, fmt.Sprintf("connection %q: node %q has no data-out port %q", conn.ID, srcNodeID, srcPort))

				continue
			}

			if !okIn {
				violations = append(violations, fmt.Sprintf("connection %q: node %q has no data-in port %q", conn.ID, dstNodeID, dstPort))

				continue
			}

			if prev, dup := dataInSeen[conn.TargetPort]; dup {
				violations = append(violations, fmt.Sprintf("input port %q has multiple inbound connections (%q, %q)", conn.TargetPort, prev, conn.ID))

				continue
			}

			dataInSeen[conn.TargetPort] = conn.ID

			if !typesCompatible(srcDecl.DataType, dstDecl.DataType) {
				violations = append(violations, fmt.Sprintf("connection %q: port type %q is not compatible with %q", conn.ID, srcDecl.DataType, dstDecl.DataType))

				continue
			}

			plan.dataIn[dstNodeID] = append(plan.dataIn[dstNodeID], DataEdge{
				SourceNode: srcNodeID,
				SourcePort: srcPort,
				TargetPort: dstPort,
			})

		default:
			violations = append(violations, fmt.Sprintf("connection %q has unknown kind %q", conn.ID, conn.Kind))
		}
	}

	return violations
}

func resolveExecutables(wf *models.Workflow, reg *registry.Registry, plan *CompiledPlan) []string {
	var violations []string

	for _, node := range wf.Nodes {
		if node.IsControl() {
			violations = append(violations, validateControlNode(node)...)

			continue
		}

		if reg == nil || !reg.HasNodeType(node.Type) {
			violations = append(violations, fmt.Sprintf("node %q has unregistered type %q", node.ID, node.Type))

			continue
		}

		executable, err := reg.CreateNode(node)
		if err != nil {
			violations = append(violations, fmt.Sprintf("node %q could not be instantiated: %v", node.ID, err))

			continue
		}

		plan.executables[node.ID] = executable
	}

	return violations
}

func validateControlNode(node *models.Node) []string {
	var violations []string

	switch node.Type {
	case models.NodeTypeCondition:
		if node.ConfigString("expression", "") == "" {
			violations = append(violations, fmt.Sprintf("condition node %q has no expression", node.ID))
		}
	case models.NodeTypeLoop:
		if node.ConfigInt("max_iterations", 0) < 0 {
			violations = append(violations, fmt.Sprintf("loop node %q has negative max_iterations", node.ID))
		}
	case models.NodeTypeJoin:
		policy := node.ConfigString("policy", "wait_all")
		if policy != "wait_all" && policy != "first_wins" {
			violations = append(violations, fmt.Sprintf("join node %q has unknown policy %q", node.ID, policy))
		}
	case models.NodeTypeTryScope:
		if node.CatchRef == "" && node.ConfigString("catch", "") == "" {
			violations = append(violations, fmt.Sprintf("try node %q has no catch handler", node.ID))
		}
	case models.NodeTypeSubworkflow:
		if node.ConfigString("workflow_id", "") == "" {
			violations = append(violations, fmt.Sprintf("subworkflow node %q has no workflow_id", node.ID))
		}
	}

	return violations
}

// findExecCycle runs three-color DFS over the exec adjacency (back-edges to
// loop 'continue' ports are already excluded) and returns a node on a cycle.
func findExecCycle(wf *models.Workflow, plan *CompiledPlan) string {
	const (
		white = 0
		grey  = 1
		black = 2
	)

	color := make(map[string]int, len(wf.Nodes))

	var visit func(nodeID string) string

	visit = func(nodeID string) string {
		color[nodeID] = grey

		node := wf.Nodes[nodeID]
		if node != nil {
			for _, port := range node.ExecOut {
				for _, target := range plan.execNext[models.MakePortID(nodeID, port)] {
					switch color[target.NodeID] {
					case grey:
						return target.NodeID
					case white:
						if hit := visit(target.NodeID); hit != "" {
							return hit
						}
					}
				}
			}
		}

		color[nodeID] = black

		return ""
	}

	for nodeID := range wf.Nodes {
		if color[nodeID] == white {
			if hit := visit(nodeID); hit != "" {
				return hit
			}
		}
	}

	return ""
}

func markReachable(plan *CompiledPlan, nodeID string, seen map[string]struct{}) {
	if _, ok := seen[nodeID]; ok {
		return
	}

	seen[nodeID] = struct{}{}

	node := plan.Workflow.Nodes[nodeID]
	if node == nil {
		return
	}

	for _, port := range node.ExecOut {
		for _, target := range plan.execNext[models.MakePortID(nodeID, port)] {
			markReachable(plan, target.NodeID, seen)
		}
	}
}

func indexBranches(wf *models.Workflow, plan *CompiledPlan) {
	for _, node := range wf.Nodes {
		if node.Type != models.NodeTypeCondition {
			continue
		}

		for _, port := range node.ExecOut {
			seen := make(map[string]struct{})

			for _, target := range plan.execNext[models.MakePortID(node.ID, port)] {
				markReachable(plan, target.NodeID, seen)
			}

			plan.branchReach[models.MakePortID(node.ID, port)] = seen
		}
	}
}

func hasString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}

	return false
}

func findPort(decls []models.PortDecl, name string) (models.PortDecl, bool) {
	for _, decl := range decls {
		if decl.Name == name {
			return decl, true
		}
	}

	return models.PortDecl{}, false
}

func typesCompatible(src, dst string) bool {
	if src == "" || dst == "" || src == "any" || dst == "any" {
		return true
	}

	return src == dst
}
