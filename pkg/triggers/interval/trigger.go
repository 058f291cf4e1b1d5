// Package interval provides a trigger type that fires on a fixed tick.
package interval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/conveyor-automation/conveyor/pkg/protocol"
)

// ErrIntervalInvalid is returned when interval_ms is missing or not positive.
var ErrIntervalInvalid = errors.New("interval trigger 'interval_ms' must be a positive integer")

func NewDetectorFactory() protocol.DetectorFactory {
	return &DetectorFactory{}
}

type DetectorFactory struct{}

func (f *DetectorFactory) ID() string {
	return "interval"
}

func (f *DetectorFactory) Schema() map[string]any {
	return map[string]any{
		"type":        "object",
		"title":       "Interval Trigger Settings",
		"description": "Settings for fixed-interval workflow triggering",
		"properties": map[string]any{
			"interval_ms": map[string]any{
				"type":        "integer",
				"description": "Tick period in milliseconds",
				"minimum":     1,
			},
		},
		"required": []string{"interval_ms"},
	}
}

func (f *DetectorFactory) Create(settings map[string]any, logger *slog.Logger) (protocol.Detector, error) {
	return NewDetector(settings, logger)
}

type Detector struct {
	Interval time.Duration

	logger *slog.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewDetector(settings map[string]any, logger *slog.Logger) (*Detector, error) {
	intervalMs := 0

	switch v := settings["interval_ms"].(type) {
	case int:
		intervalMs = v
	case float64:
		intervalMs = int(v)
	}

	detector := &Detector{
		Interval: time.Duration(intervalMs) * time.Millisecond,
		logger: logger.With(
			"module", "interval_trigger",
			"interval_ms", intervalMs,
		),
	}

	err := detector.Validate()
	if err != nil {
		return nil, err
	}

	return detector, nil
}

func (d *Detector) Validate() error {
	if d.Interval <= 0 {
		return ErrIntervalInvalid
	}

	return nil
}

func (d *Detector) Start(ctx context.Context, fire protocol.FireFunc) error {
	d.logger.InfoContext(ctx, "Starting interval detection loop")

	d.stopCh = make(chan struct{})
	d.wg.Add(1)

	go func() {
		defer d.wg.Done()

		ticker := time.NewTicker(d.Interval)
		defer ticker.Stop()

		tick := int64(0)

		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stopCh:
				return
			case now := <-ticker.C:
				tick++

				payload := map[string]any{
					"timestamp": now.UTC().Format(time.RFC3339),
					"tick":      tick,
				}

				err := fire(ctx, payload)
				if err != nil {
					d.logger.Error("Interval fire failed", "error", err)
				}
			}
		}
	}()

	return nil
}

func (d *Detector) Stop(ctx context.Context) error {
	d.logger.InfoContext(ctx, "Stopping interval detection loop")

	if d.stopCh != nil {
		close(d.stopCh)
		d.stopCh = nil
	}

	done := make(chan struct{})

	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("interval loop did not stop: %w", ctx.Err())
	}
}
