// Package filewatch provides a trigger type that fires on filesystem events
// in a watched directory.
package filewatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conveyor-automation/conveyor/pkg/protocol"
)

var (
	// ErrPathMissing is returned when the settings carry no directory path.
	ErrPathMissing = errors.New("filewatch trigger 'path' is required")
	// ErrPatternInvalid is returned for an unparsable glob pattern.
	ErrPatternInvalid = errors.New("filewatch trigger 'pattern' is not a valid glob")
)

// opNames maps fsnotify operations to the event names exposed in settings
// and payloads.
var opNames = map[fsnotify.Op]string{
	fsnotify.Create: "created",
	fsnotify.Write:  "modified",
	fsnotify.Remove: "deleted",
	fsnotify.Rename: "renamed",
}

func NewDetectorFactory() protocol.DetectorFactory {
	return &DetectorFactory{}
}

type DetectorFactory struct{}

func (f *DetectorFactory) ID() string {
	return "filewatch"
}

func (f *DetectorFactory) Schema() map[string]any {
	return map[string]any{
		"type":        "object",
		"title":       "File Watch Trigger Settings",
		"description": "Settings for filesystem event triggering",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Directory to watch",
			},
			"pattern": map[string]any{
				"type":        "string",
				"description": "Glob matched against file base names; empty matches everything",
				"examples":    []string{"*.csv", "invoice-*.pdf"},
			},
			"events": map[string]any{
				"type":        "array",
				"description": "Event names to react to; empty means all",
				"items": map[string]any{
					"type": "string",
					"enum": []string{"created", "modified", "deleted", "renamed"},
				},
			},
		},
		"required": []string{"path"},
	}
}

func (f *DetectorFactory) Create(settings map[string]any, logger *slog.Logger) (protocol.Detector, error) {
	return NewDetector(settings, logger)
}

type Detector struct {
	Path    string
	Pattern string
	Events  map[string]struct{}

	watcher *fsnotify.Watcher
	logger  *slog.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewDetector(settings map[string]any, logger *slog.Logger) (*Detector, error) {
	path, _ := settings["path"].(string)
	pattern, _ := settings["pattern"].(string)

	events := make(map[string]struct{})

	if list, ok := settings["events"].([]any); ok {
		for _, item := range list {
			if name, ok := item.(string); ok {
				events[name] = struct{}{}
			}
		}
	}

	detector := &Detector{
		Path:    path,
		Pattern: pattern,
		Events:  events,
		logger: logger.With(
			"module", "filewatch_trigger",
			"path", path,
			"pattern", pattern,
		),
	}

	err := detector.Validate()
	if err != nil {
		return nil, err
	}

	return detector, nil
}

func (d *Detector) Validate() error {
	if d.Path == "" {
		return ErrPathMissing
	}

	if d.Pattern != "" {
		_, err := filepath.Match(d.Pattern, "probe")
		if err != nil {
			return fmt.Errorf("%w: %q", ErrPatternInvalid, d.Pattern)
		}
	}

	return nil
}

func (d *Detector) Start(ctx context.Context, fire protocol.FireFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	err = watcher.Add(d.Path)
	if err != nil {
		_ = watcher.Close()

		return fmt.Errorf("failed to watch %s: %w", d.Path, err)
	}

	d.watcher = watcher
	d.stopCh = make(chan struct{})

	d.logger.InfoContext(ctx, "Starting filesystem detection loop")

	d.wg.Add(1)

	go d.watch(ctx, fire)

	return nil
}

func (d *Detector) watch(ctx context.Context, fire protocol.FireFunc) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			d.handleEvent(ctx, event, fire)
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}

			d.logger.Error("Filesystem watcher error", "error", err)
		}
	}
}

func (d *Detector) handleEvent(ctx context.Context, event fsnotify.Event, fire protocol.FireFunc) {
	name := ""

	for op, opName := range opNames {
		if event.Has(op) {
			name = opName

			break
		}
	}

	if name == "" {
		return
	}

	if len(d.Events) > 0 {
		if _, wanted := d.Events[name]; !wanted {
			return
		}
	}

	base := filepath.Base(event.Name)

	if d.Pattern != "" {
		matched, _ := filepath.Match(d.Pattern, base)
		if !matched {
			return
		}
	}

	payload := map[string]any{
		"event":     name,
		"path":      event.Name,
		"file":      base,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	err := fire(ctx, payload)
	if err != nil {
		d.logger.Error("Filewatch fire failed", "error", err)
	}
}

func (d *Detector) Stop(ctx context.Context) error {
	d.logger.InfoContext(ctx, "Stopping filesystem detection loop")

	if d.stopCh != nil {
		close(d.stopCh)
		d.stopCh = nil
	}

	if d.watcher != nil {
		err := d.watcher.Close()
		d.watcher = nil

		if err != nil {
			return fmt.Errorf("failed to close watcher: %w", err)
		}
	}

	d.wg.Wait()

	return nil
}
