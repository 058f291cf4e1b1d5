// Package protocol defines the interfaces and contracts between the
// orchestrator, pluggable nodes, and trigger detectors.
package protocol

import (
	"context"
	"log/slog"

	"github.com/conveyor-automation/conveyor/pkg/models"
)

// NodeInput carries the resolved configuration and data inputs handed to a
// node at dispatch time. Config has already been through variable and
// credential resolution.
type NodeInput struct {
	Config map[string]any
	Data   map[string]any
	Scope  *models.Scope
}

// Executable is the capability every action node implements. Execute must be
// side-effect idempotent-tolerant: the queue gives at-least-once delivery.
type Executable interface {
	Execute(ctx context.Context, input NodeInput, logger *slog.Logger) (any, error)
}

// NodeFactory creates node instances for one type tag.
type NodeFactory interface {
	// Create builds a node instance for the given workflow node definition.
	Create(node *models.Node) (Executable, error)

	// ID returns the type tag this factory serves.
	ID() string

	// Schema returns the JSON schema for the node's config, or nil.
	Schema() map[string]any
}
