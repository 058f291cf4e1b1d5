package schedule

import (
	"errors"
	"log/slog"

	"github.com/conveyor-automation/conveyor/pkg/protocol"
)

// ErrSettingsNil is returned when Create receives nil settings.
var ErrSettingsNil = errors.New("settings cannot be nil")

func NewDetectorFactory() protocol.DetectorFactory {
	return &DetectorFactory{}
}

type DetectorFactory struct{}

func (f *DetectorFactory) ID() string {
	return "schedule"
}

func (f *DetectorFactory) Schema() map[string]any {
	return map[string]any{
		"type":        "object",
		"title":       "Schedule Trigger Settings",
		"description": "Settings for cron-based workflow triggering",
		"properties": map[string]any{
			"cron": map[string]any{
				"type":        "string",
				"description": "Cron expression defining the schedule (standard 5-field format)",
				"examples": []string{
					"0 9 * * *",    // Daily at 9 AM
					"*/15 * * * *", // Every 15 minutes
					"0 18 * * 5",   // Every Friday at 6 PM
				},
			},
		},
		"required": []string{"cron"},
	}
}

func (f *DetectorFactory) Create(settings map[string]any, logger *slog.Logger) (protocol.Detector, error) {
	if settings == nil {
		return nil, ErrSettingsNil
	}

	return NewDetector(settings, logger)
}
