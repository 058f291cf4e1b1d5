// Package variable provides a node that binds values into the run scope for
// later nodes to resolve through templating.
package variable

import (
	"context"
	"errors"
	"log/slog"

	"github.com/conveyor-automation/conveyor/pkg/models"
	"github.com/conveyor-automation/conveyor/pkg/protocol"
)

// ErrNoVariables is returned when the node config declares nothing to set.
var ErrNoVariables = errors.New("'variables' must be a non-empty object")

type NodeFactory struct{}

func NewNodeFactory() *NodeFactory {
	return &NodeFactory{}
}

func (*NodeFactory) ID() string {
	return "variable"
}

func (f *NodeFactory) Create(node *models.Node) (protocol.Executable, error) {
	variables, ok := node.Config["variables"].(map[string]any)
	if !ok || len(variables) == 0 {
		return nil, ErrNoVariables
	}

	return &Node{}, nil
}

func (f *NodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"variables": map[string]any{
				"type":        "object",
				"description": "Name/value pairs to bind into the run scope. Values support templating.",
				"examples": []map[string]any{
					{"greeting": "hello {{name}}", "attempts": 0},
				},
			},
		},
		"required": []string{"variables"},
	}
}

type Node struct{}

func (n *Node) Execute(ctx context.Context, input protocol.NodeInput, logger *slog.Logger) (any, error) {
	logger = logger.With("node_type", "variable")

	variables, _ := input.Config["variables"].(map[string]any)

	for name, value := range variables {
		input.Scope.Set(name, value)
	}

	logger.DebugContext(ctx, "Bound scope variables", "count", len(variables))

	return variables, nil
}
