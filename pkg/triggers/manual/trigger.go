// Package manual provides a trigger type with no detection loop: it fires
// only through the manager's Fire API.
package manual

import (
	"context"
	"log/slog"

	"github.com/conveyor-automation/conveyor/pkg/protocol"
)

func NewDetectorFactory() protocol.DetectorFactory {
	return &DetectorFactory{}
}

type DetectorFactory struct{}

func (f *DetectorFactory) ID() string {
	return "manual"
}

func (f *DetectorFactory) Schema() map[string]any {
	return map[string]any{
		"type":        "object",
		"title":       "Manual Trigger Settings",
		"description": "No settings; the trigger fires only on explicit request",
	}
}

func (f *DetectorFactory) Create(_ map[string]any, logger *slog.Logger) (protocol.Detector, error) {
	return &Detector{logger: logger.With("module", "manual_trigger")}, nil
}

type Detector struct {
	logger *slog.Logger
}

func (d *Detector) Validate() error {
	return nil
}

func (d *Detector) Start(ctx context.Context, _ protocol.FireFunc) error {
	d.logger.DebugContext(ctx, "Manual trigger active, waiting for explicit fires")

	return nil
}

func (d *Detector) Stop(_ context.Context) error {
	return nil
}
