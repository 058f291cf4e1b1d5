// Package triggers manages the lifecycle of trigger instances: registration
// with config validation, the INACTIVE/STARTING/ACTIVE/PAUSED/STOPPING state
// machine, and the uniform fire policy applied to every trigger type.
package triggers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/conveyor-automation/conveyor/pkg/metrics"
	"github.com/conveyor-automation/conveyor/pkg/models"
	"github.com/conveyor-automation/conveyor/pkg/registry"
)

// Manager owns every registered trigger instance in the process.
type Manager struct {
	registry *registry.Registry
	sink     FireSink
	metrics  *metrics.Metrics
	logger   *slog.Logger
	validate *validator.Validate

	mu      sync.RWMutex
	runners map[string]*runner
}

func NewManager(reg *registry.Registry, sink FireSink, m *metrics.Metrics, logger *slog.Logger) *Manager {
	return &Manager{
		registry: reg,
		sink:     sink,
		metrics:  m,
		logger:   logger.With("module", "trigger_manager"),
		validate: validator.New(),
		runners:  make(map[string]*runner),
	}
}

// Register validates the config, instantiates the detector, and stores the
// trigger in the INACTIVE state. On any validation error nothing is
// registered. Returns the trigger ID.
func (m *Manager) Register(config models.TriggerConfig) (string, error) {
	if config.ID == "" {
		config.ID = "trigger-" + uuid.New().String()[:8]
	}

	err := m.validate.Struct(config)
	if err != nil {
		return "", newTriggerError(config.ID, KindBadConfiguration, err)
	}

	detector, err := m.registry.CreateDetector(config.Type, config.Settings, m.logger)
	if err != nil {
		return "", newTriggerError(config.ID, KindBadConfiguration, err)
	}

	err = detector.Validate()
	if err != nil {
		return "", newTriggerError(config.ID, KindBadConfiguration, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runners[config.ID]; exists {
		return "", newTriggerError(config.ID, KindBadConfiguration,
			fmt.Errorf("trigger %q is already registered", config.ID))
	}

	m.runners[config.ID] = newRunner(config, detector, m.sink, m.metrics, m.logger)

	m.logger.Info("Registered trigger",
		"trigger_id", config.ID,
		"trigger_type", config.Type,
		"workflow_id", config.WorkflowID,
	)

	return config.ID, nil
}

// Start activates a registered trigger's detection loop.
func (m *Manager) Start(ctx context.Context, triggerID string) error {
	runner, err := m.runner(triggerID)
	if err != nil {
		return err
	}

	return runner.start(ctx)
}

// Stop halts the detection loop and releases its resources before returning.
func (m *Manager) Stop(ctx context.Context, triggerID string) error {
	runner, err := m.runner(triggerID)
	if err != nil {
		return err
	}

	return runner.stop(ctx)
}

// Pause suppresses fires without tearing down the detection loop.
func (m *Manager) Pause(triggerID string) error {
	runner, err := m.runner(triggerID)
	if err != nil {
		return err
	}

	return runner.pause()
}

// Resume reactivates a paused trigger.
func (m *Manager) Resume(triggerID string) error {
	runner, err := m.runner(triggerID)
	if err != nil {
		return err
	}

	return runner.resume()
}

// Delete removes a trigger, stopping it first if it is still live.
func (m *Manager) Delete(ctx context.Context, triggerID string) error {
	runner, err := m.runner(triggerID)
	if err != nil {
		return err
	}

	switch runner.info().Status {
	case models.TriggerStatusInactive, models.TriggerStatusError:
	default:
		err = runner.stop(ctx)
		if err != nil {
			return err
		}
	}

	m.mu.Lock()
	delete(m.runners, triggerID)
	m.mu.Unlock()

	m.logger.Info("Deleted trigger", "trigger_id", triggerID)

	return nil
}

// Fire injects a fire for a trigger, subject to the same policy as detector
// fires. This is the path manual triggers use.
func (m *Manager) Fire(ctx context.Context, triggerID string, payload map[string]any) error {
	runner, err := m.runner(triggerID)
	if err != nil {
		return err
	}

	return runner.fire(ctx, payload)
}

// Get returns the externally visible view of one trigger.
func (m *Manager) Get(triggerID string) (models.TriggerInfo, error) {
	runner, err := m.runner(triggerID)
	if err != nil {
		return models.TriggerInfo{}, err
	}

	return runner.info(), nil
}

// List returns every registered trigger, ordered by ID.
func (m *Manager) List() []models.TriggerInfo {
	m.mu.RLock()

	infos := make([]models.TriggerInfo, 0, len(m.runners))
	for _, runner := range m.runners {
		infos = append(infos, runner.info())
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })

	return infos
}

// StopAll stops every live trigger, collecting the first error.
func (m *Manager) StopAll(ctx context.Context) error {
	var firstErr error

	for _, info := range m.List() {
		switch info.Status {
		case models.TriggerStatusInactive, models.TriggerStatusError:
			continue
		}

		err := m.Stop(ctx, info.ID)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (m *Manager) runner(triggerID string) (*runner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runners[triggerID]
	if !ok {
		return nil, newTriggerError(triggerID, KindNotFound, fmt.Errorf("trigger not registered"))
	}

	return r, nil
}
