package triggers

import (
	"github.com/conveyor-automation/conveyor/pkg/registry"
	"github.com/conveyor-automation/conveyor/pkg/triggers/filewatch"
	"github.com/conveyor-automation/conveyor/pkg/triggers/interval"
	"github.com/conveyor-automation/conveyor/pkg/triggers/kafka"
	"github.com/conveyor-automation/conveyor/pkg/triggers/manual"
	"github.com/conveyor-automation/conveyor/pkg/triggers/queue"
	"github.com/conveyor-automation/conveyor/pkg/triggers/schedule"
	"github.com/conveyor-automation/conveyor/pkg/triggers/webhook"
)

// RegisterDefaults registers every built-in trigger type. The webhook server
// manager may be nil when the process exposes no webhook listener.
func RegisterDefaults(reg *registry.Registry, webhookManager *webhook.ServerManager) {
	reg.RegisterDetector(schedule.NewDetectorFactory())
	reg.RegisterDetector(interval.NewDetectorFactory())
	reg.RegisterDetector(filewatch.NewDetectorFactory())
	reg.RegisterDetector(queue.NewDetectorFactory())
	reg.RegisterDetector(kafka.NewDetectorFactory())
	reg.RegisterDetector(manual.NewDetectorFactory())

	if webhookManager != nil {
		reg.RegisterDetector(webhook.NewDetectorFactory(webhookManager))
	}
}
