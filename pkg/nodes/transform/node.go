// Package transform provides a node that reshapes data flowing between nodes.
// The expression is resolved against the run scope before dispatch, so the
// node's job is projection over its resolved config and data inputs.
package transform

import (
	"context"
	"errors"
	"log/slog"

	"github.com/conveyor-automation/conveyor/pkg/models"
	"github.com/conveyor-automation/conveyor/pkg/protocol"
)

// ErrExpressionMissing is returned when the transform has no expression.
var ErrExpressionMissing = errors.New("missing 'expression' in configuration")

type NodeFactory struct{}

func NewNodeFactory() *NodeFactory {
	return &NodeFactory{}
}

func (*NodeFactory) ID() string {
	return "transform"
}

func (f *NodeFactory) Create(node *models.Node) (protocol.Executable, error) {
	if _, ok := node.Config["expression"]; !ok {
		return nil, ErrExpressionMissing
	}

	return &Node{}, nil
}

func (f *NodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"description": "Value or structure to produce. Template tokens are resolved against the run scope.",
				"examples": []any{
					"{{fetch_response.body}}",
					map[string]any{"name": "{{customer.name}}", "total": "{{order.total}}"},
				},
			},
		},
		"required": []string{"expression"},
	}
}

type Node struct{}

func (n *Node) Execute(ctx context.Context, input protocol.NodeInput, logger *slog.Logger) (any, error) {
	logger = logger.With("node_type", "transform")

	result := input.Config["expression"]

	logger.DebugContext(ctx, "Transform produced value")

	return result, nil
}
