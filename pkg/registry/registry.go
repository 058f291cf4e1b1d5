// Package registry maps type tags to node and detector factories. A registry
// is an explicit instance constructed at startup and passed by dependency
// injection; there is no package-level singleton.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/xeipuuv/gojsonschema"

	"github.com/conveyor-automation/conveyor/pkg/models"
	"github.com/conveyor-automation/conveyor/pkg/protocol"
)

type Registry struct {
	logger            *slog.Logger
	nodeFactories     map[string]protocol.NodeFactory
	detectorFactories map[string]protocol.DetectorFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:            logger.With("module", "registry"),
		nodeFactories:     make(map[string]protocol.NodeFactory),
		detectorFactories: make(map[string]protocol.DetectorFactory),
	}
}

func (r *Registry) RegisterNode(factory protocol.NodeFactory) {
	r.nodeFactories[factory.ID()] = factory
}

func (r *Registry) RegisterDetector(factory protocol.DetectorFactory) {
	r.detectorFactories[factory.ID()] = factory
}

// CreateNode resolves a workflow node's type tag to an Executable instance.
func (r *Registry) CreateNode(node *models.Node) (protocol.Executable, error) {
	factory, ok := r.nodeFactories[node.Type]
	if !ok {
		return nil, fmt.Errorf("node type '%s' not registered", node.Type)
	}

	return factory.Create(node)
}

// HasNodeType reports whether a node type tag is registered.
func (r *Registry) HasNodeType(nodeType string) bool {
	_, ok := r.nodeFactories[nodeType]

	return ok
}

// CreateDetector validates settings against the trigger type's schema and
// instantiates a detector. Config errors never produce a half-built detector.
func (r *Registry) CreateDetector(triggerType string, settings map[string]any, logger *slog.Logger) (protocol.Detector, error) {
	factory, ok := r.detectorFactories[triggerType]
	if !ok {
		return nil, fmt.Errorf("trigger type '%s' not registered", triggerType)
	}

	if schema := factory.Schema(); schema != nil {
		err := validateSettings(schema, settings)
		if err != nil {
			return nil, err
		}
	}

	return factory.Create(settings, logger)
}

// DetectorTypes lists the registered trigger type tags.
func (r *Registry) DetectorTypes() []string {
	types := make([]string, 0, len(r.detectorFactories))
	for t := range r.detectorFactories {
		types = append(types, t)
	}

	return types
}

func validateSettings(schema map[string]any, settings map[string]any) error {
	if settings == nil {
		settings = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	settingsLoader := gojsonschema.NewGoLoader(settings)

	result, err := gojsonschema.Validate(schemaLoader, settingsLoader)
	if err != nil {
		return fmt.Errorf("failed to validate trigger settings: %w", err)
	}

	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return fmt.Errorf("invalid trigger settings: %s", errs[0].String())
		}

		return fmt.Errorf("invalid trigger settings")
	}

	return nil
}
