// Package log provides a node that writes a templated message to the robot's
// structured log.
package log

import (
	"context"
	"log/slog"

	"github.com/conveyor-automation/conveyor/pkg/models"
	"github.com/conveyor-automation/conveyor/pkg/protocol"
)

type NodeFactory struct{}

func NewNodeFactory() *NodeFactory {
	return &NodeFactory{}
}

func (*NodeFactory) ID() string {
	return "log"
}

func (f *NodeFactory) Create(_ *models.Node) (protocol.Executable, error) {
	return &Node{}, nil
}

func (f *NodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "The message to log. Supports templating for dynamic content.",
				"examples": []string{
					"Processing order {{order_id}}",
					"Loop item {{item}} at index {{index}}",
				},
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level for the message",
				"default":     "info",
				"enum":        []string{"debug", "info", "warn", "error"},
			},
		},
		"required": []string{"message"},
	}
}

type Node struct{}

func (n *Node) Execute(ctx context.Context, input protocol.NodeInput, logger *slog.Logger) (any, error) {
	logger = logger.With("node_type", "log")

	message, _ := input.Config["message"].(string)
	level, _ := input.Config["level"].(string)

	switch level {
	case "debug":
		logger.DebugContext(ctx, message)
	case "warn":
		logger.WarnContext(ctx, message)
	case "error":
		logger.ErrorContext(ctx, message)
	default:
		logger.InfoContext(ctx, message)
	}

	return map[string]any{"message": message, "level": level}, nil
}
