// Package webhook provides the HTTP webhook trigger type. Every webhook
// trigger in a process shares one listener through the ServerManager.
package webhook

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/conveyor-automation/conveyor/pkg/protocol"
)

var (
	// ErrPathInvalid is returned when the settings carry no usable path.
	ErrPathInvalid = errors.New("webhook trigger 'path' must start with '/'")
	// ErrNoServerManager is returned when the factory has no server manager.
	ErrNoServerManager = errors.New("webhook trigger requires a server manager")
)

type DetectorFactory struct {
	manager *ServerManager
}

// NewDetectorFactory creates the webhook factory bound to the process-wide
// server manager.
func NewDetectorFactory(manager *ServerManager) *DetectorFactory {
	return &DetectorFactory{manager: manager}
}

func (f *DetectorFactory) ID() string {
	return "webhook"
}

func (f *DetectorFactory) Schema() map[string]any {
	return map[string]any{
		"type":        "object",
		"title":       "Webhook Trigger Settings",
		"description": "Settings for HTTP webhook triggering",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "URL path the webhook listens on, unique per trigger",
				"examples":    []string{"/hooks/orders", "/hooks/github"},
			},
			"secret": map[string]any{
				"type":        "string",
				"description": "Optional HMAC-SHA256 secret; requests must carry a valid X-Signature-256 header",
			},
		},
		"required": []string{"path"},
	}
}

func (f *DetectorFactory) Create(settings map[string]any, logger *slog.Logger) (protocol.Detector, error) {
	if f.manager == nil {
		return nil, ErrNoServerManager
	}

	path, _ := settings["path"].(string)
	secret, _ := settings["secret"].(string)

	detector := &Detector{
		Path:    path,
		Secret:  secret,
		manager: f.manager,
		logger: logger.With(
			"module", "webhook_trigger",
			"path", path,
		),
	}

	err := detector.Validate()
	if err != nil {
		return nil, err
	}

	return detector, nil
}

type Detector struct {
	Path   string
	Secret string

	manager *ServerManager
	logger  *slog.Logger
}

func (d *Detector) Validate() error {
	if !strings.HasPrefix(d.Path, "/") {
		return ErrPathInvalid
	}

	return nil
}

func (d *Detector) Start(ctx context.Context, fire protocol.FireFunc) error {
	err := d.manager.Register(d.Path, &Handler{
		TriggerID: d.Path,
		Secret:    d.Secret,
		Fire:      fire,
		Logger:    d.logger,
	})
	if err != nil {
		return err
	}

	return d.manager.Start(ctx)
}

func (d *Detector) Stop(ctx context.Context) error {
	d.logger.InfoContext(ctx, "Releasing webhook path")
	d.manager.Unregister(d.Path)

	return nil
}
