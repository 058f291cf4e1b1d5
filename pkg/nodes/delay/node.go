// Package delay provides a node that pauses the branch for a configured
// duration, honoring run cancellation.
package delay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/conveyor-automation/conveyor/pkg/models"
	"github.com/conveyor-automation/conveyor/pkg/protocol"
)

// ErrDurationInvalid is returned when duration_ms is missing or not positive.
var ErrDurationInvalid = errors.New("'duration_ms' must be a positive integer")

type NodeFactory struct{}

func NewNodeFactory() *NodeFactory {
	return &NodeFactory{}
}

func (*NodeFactory) ID() string {
	return "delay"
}

func (f *NodeFactory) Create(node *models.Node) (protocol.Executable, error) {
	if node.ConfigInt("duration_ms", 0) <= 0 {
		return nil, ErrDurationInvalid
	}

	return &Node{}, nil
}

func (f *NodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"duration_ms": map[string]any{
				"type":        "integer",
				"description": "How long to pause the branch, in milliseconds",
				"minimum":     1,
			},
		},
		"required": []string{"duration_ms"},
	}
}

type Node struct{}

func (n *Node) Execute(ctx context.Context, input protocol.NodeInput, logger *slog.Logger) (any, error) {
	durationMs, _ := input.Config["duration_ms"].(int)
	if durationMs <= 0 {
		if f, ok := input.Config["duration_ms"].(float64); ok {
			durationMs = int(f)
		}
	}

	duration := time.Duration(durationMs) * time.Millisecond

	logger.DebugContext(ctx, "Delaying branch", "duration", duration)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(duration):
	}

	return map[string]any{"delayed_ms": durationMs}, nil
}
